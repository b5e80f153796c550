// Package naming turns configurable name patterns into platform-legal
// repository and team names.
package naming

import (
	"errors"
	"regexp"
	"strings"
)

const (
	organizationPlaceholderConstant  = "{orgName}"
	projectPlaceholderConstant       = "{projectName}"
	repositoryPlaceholderConstant    = "{repoName}"
	teamPlaceholderConstant          = "{teamName}"
	hyphenConstant                   = "-"
	nameNotGeneratedMessageConstant  = "name could not be generated"
	defaultMaximumNameLengthConstant = 100
	segmentSeparatorsConstant        = "-_ ./"
)

var (
	// ErrNameNotGenerated indicates normalization produced an empty name.
	ErrNameNotGenerated = errors.New(nameNotGeneratedMessageConstant)

	separatorReplacer        = strings.NewReplacer(" ", hyphenConstant, "_", hyphenConstant)
	illegalCharacterPattern  = regexp.MustCompile(`[^a-z0-9-]+`)
	repeatedHyphenPattern    = regexp.MustCompile(`-{2,}`)
	duplicationSeparatorList = []string{hyphenConstant, "_", " "}
)

// Placeholders carries the concrete values substituted into a pattern.
type Placeholders struct {
	OrganizationName string
	ProjectName      string
	EntityName       string
}

// Resolver generates normalized target names.
type Resolver struct {
	maximumLength int
}

// NewResolver constructs a Resolver capping names at maximumLength characters.
// Non-positive lengths fall back to the target platform limit of 100.
func NewResolver(maximumLength int) Resolver {
	if maximumLength <= 0 {
		maximumLength = defaultMaximumNameLengthConstant
	}
	return Resolver{maximumLength: maximumLength}
}

// Resolve expands pattern with values and normalizes the result.
func (resolver Resolver) Resolve(pattern string, values Placeholders) (string, error) {
	expanded := resolver.expand(strings.TrimSpace(pattern), values)
	normalized := resolver.Normalize(expanded)
	if len(normalized) == 0 {
		return "", ErrNameNotGenerated
	}
	return normalized, nil
}

// Normalize lowercases candidate and strips every character the target platform rejects.
func (resolver Resolver) Normalize(candidate string) string {
	maximumLength := resolver.maximumLength
	if maximumLength <= 0 {
		maximumLength = defaultMaximumNameLengthConstant
	}

	normalized := strings.ToLower(candidate)
	normalized = separatorReplacer.Replace(normalized)
	normalized = illegalCharacterPattern.ReplaceAllString(normalized, "")
	normalized = repeatedHyphenPattern.ReplaceAllString(normalized, hyphenConstant)
	normalized = strings.Trim(normalized, hyphenConstant)
	if len(normalized) > maximumLength {
		normalized = strings.TrimRight(normalized[:maximumLength], hyphenConstant)
	}
	return normalized
}

func (resolver Resolver) expand(pattern string, values Placeholders) string {
	projectName := strings.TrimSpace(values.ProjectName)
	entityName := strings.TrimSpace(values.EntityName)

	if len(pattern) == 0 {
		if strings.EqualFold(entityName, projectName) {
			return projectName
		}
		return entityName
	}

	expanded := strings.NewReplacer(
		organizationPlaceholderConstant, strings.TrimSpace(values.OrganizationName),
		projectPlaceholderConstant, projectName,
		repositoryPlaceholderConstant, entityName,
		teamPlaceholderConstant, entityName,
	).Replace(pattern)

	return collapseDuplicatedProjectName(expanded, projectName)
}

// collapseDuplicatedProjectName folds "P-P" into "P" when the source default
// naming already embedded the project name in the entity name. Only whole
// separator-delimited occurrences are folded.
func collapseDuplicatedProjectName(expanded string, projectName string) string {
	lowerProjectName := strings.ToLower(projectName)
	collapsed := strings.ToLower(expanded)
	if len(lowerProjectName) == 0 {
		return collapsed
	}

	for _, separator := range duplicationSeparatorList {
		duplicated := lowerProjectName + separator + lowerProjectName
		searchOffset := 0
		for searchOffset < len(collapsed) {
			relativeIndex := strings.Index(collapsed[searchOffset:], duplicated)
			if relativeIndex < 0 {
				break
			}
			index := searchOffset + relativeIndex
			end := index + len(duplicated)
			if !isSegmentBoundary(collapsed, index-1) || !isSegmentBoundary(collapsed, end) {
				searchOffset = index + 1
				continue
			}
			collapsed = collapsed[:index] + lowerProjectName + collapsed[end:]
			searchOffset = index
		}
	}
	return collapsed
}

func isSegmentBoundary(value string, position int) bool {
	if position < 0 || position >= len(value) {
		return true
	}
	return strings.ContainsRune(segmentSeparatorsConstant, rune(value[position]))
}
