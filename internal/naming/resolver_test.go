package naming_test

import (
	"math/rand"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/orgmigrate/internal/naming"
)

const (
	testCollapsedDuplicationCaseNameConstant = "collapsed_project_duplication"
	testPatternExpansionCaseNameConstant     = "pattern_expansion"
	testEmptyPatternEntityCaseNameConstant   = "empty_pattern_entity"
	testEmptyPatternProjectCaseNameConstant  = "empty_pattern_project_fallback"
	testIllegalCharactersCaseNameConstant    = "illegal_characters_stripped"
	testTruncationCaseNameConstant           = "truncation_trims_hyphens"
	testEmbeddedDuplicateCaseNameConstant    = "embedded_substring_not_collapsed"
	testUnnamedCaseNameConstant              = "empty_result"
	testProjectNameConstant                  = "Proj1"
	testOrganizationNameConstant             = "Contoso"
	testRepositoryPatternConstant            = "{projectName}-{repoName}"
	testPropertyIterationsConstant           = 2000
	testPropertyAlphabetConstant             = "abcXYZ019 _-.!@#{}/\\äöü日本"
)

var legalNamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

func TestResolverResolve(testInstance *testing.T) {
	testCases := []struct {
		name          string
		maximumLength int
		pattern       string
		values        naming.Placeholders
		expectedName  string
		expectedError error
	}{
		{
			name:         testCollapsedDuplicationCaseNameConstant,
			pattern:      testRepositoryPatternConstant,
			values:       naming.Placeholders{ProjectName: testProjectNameConstant, EntityName: testProjectNameConstant},
			expectedName: "proj1",
		},
		{
			name:         testPatternExpansionCaseNameConstant,
			pattern:      "{orgName}_{projectName}-{teamName}",
			values:       naming.Placeholders{OrganizationName: testOrganizationNameConstant, ProjectName: "Web Apps", EntityName: "Core Team"},
			expectedName: "contoso-web-apps-core-team",
		},
		{
			name:         testEmptyPatternEntityCaseNameConstant,
			pattern:      "",
			values:       naming.Placeholders{ProjectName: testProjectNameConstant, EntityName: "Billing_Service"},
			expectedName: "billing-service",
		},
		{
			name:         testEmptyPatternProjectCaseNameConstant,
			pattern:      "  ",
			values:       naming.Placeholders{ProjectName: testProjectNameConstant, EntityName: "proj1"},
			expectedName: "proj1",
		},
		{
			name:         testIllegalCharactersCaseNameConstant,
			pattern:      testRepositoryPatternConstant,
			values:       naming.Placeholders{ProjectName: "R&D", EntityName: "--Tools (legacy)--"},
			expectedName: "rd-tools-legacy",
		},
		{
			name:          testTruncationCaseNameConstant,
			maximumLength: 6,
			pattern:       testRepositoryPatternConstant,
			values:        naming.Placeholders{ProjectName: "abcde", EntityName: "xyz"},
			expectedName:  "abcde",
		},
		{
			name:         testEmbeddedDuplicateCaseNameConstant,
			pattern:      testRepositoryPatternConstant,
			values:       naming.Placeholders{ProjectName: "a", EntityName: "xa-ay"},
			expectedName: "a-xa-ay",
		},
		{
			name:          testUnnamedCaseNameConstant,
			pattern:       "{repoName}",
			values:        naming.Placeholders{ProjectName: testProjectNameConstant, EntityName: "日本語"},
			expectedError: naming.ErrNameNotGenerated,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			resolver := naming.NewResolver(testCase.maximumLength)
			resolvedName, resolveError := resolver.Resolve(testCase.pattern, testCase.values)
			if testCase.expectedError != nil {
				require.ErrorIs(testInstance, resolveError, testCase.expectedError)
				require.Empty(testInstance, resolvedName)
				return
			}
			require.NoError(testInstance, resolveError)
			require.Equal(testInstance, testCase.expectedName, resolvedName)
		})
	}
}

func TestResolverOutputIsAlwaysLegal(testInstance *testing.T) {
	alphabet := []rune(testPropertyAlphabetConstant)
	randomSource := rand.New(rand.NewSource(42))
	resolver := naming.NewResolver(20)

	randomValue := func() string {
		var builder strings.Builder
		length := randomSource.Intn(30)
		for index := 0; index < length; index++ {
			builder.WriteRune(alphabet[randomSource.Intn(len(alphabet))])
		}
		return builder.String()
	}

	for iteration := 0; iteration < testPropertyIterationsConstant; iteration++ {
		values := naming.Placeholders{
			OrganizationName: randomValue(),
			ProjectName:      randomValue(),
			EntityName:       randomValue(),
		}
		resolvedName, resolveError := resolver.Resolve(testRepositoryPatternConstant, values)
		if resolveError != nil {
			require.ErrorIs(testInstance, resolveError, naming.ErrNameNotGenerated)
			require.Empty(testInstance, resolvedName)
			continue
		}
		require.Regexp(testInstance, legalNamePattern, resolvedName)
		require.LessOrEqual(testInstance, len(resolvedName), 20)
	}
}
