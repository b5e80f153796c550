package identity

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	csvExtensionConstant              = ".csv"
	yamlExtensionConstant             = ".yaml"
	ymlExtensionConstant              = ".yml"
	csvCommentCharacterConstant       = '#'
	openFileErrorTemplateConstant     = "open identity mapping %s: %w"
	parseErrorTemplateConstant        = "parse identity mapping %s: %w"
	unsupportedFormatTemplateConstant = "unsupported identity mapping format %q"
	invalidRowTemplateConstant        = "row %d: expected source identity and target username"
	duplicateEntryTemplateConstant    = "source identity %q mapped to both %q and %q"
	mappingPathMissingMessageConstant = "identity mapping path required"
)

// Format names a supported mapping file encoding.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
)

// ErrMappingPathMissing indicates LoadFile was called without a path.
var ErrMappingPathMissing = errors.New(mappingPathMissingMessageConstant)

var (
	sourceHeaderNames = []string{"source", "source_identity", "source identity", "unique_name", "uniquename", "email", "ado", "azure_devops"}
	targetHeaderNames = []string{"target", "target_username", "target username", "github", "github_username", "login", "username"}
)

// UnsupportedFormatError reports a mapping file with an unknown extension.
type UnsupportedFormatError struct {
	Extension string
}

// Error describes the unsupported format.
func (formatError UnsupportedFormatError) Error() string {
	return fmt.Sprintf(unsupportedFormatTemplateConstant, formatError.Extension)
}

// InvalidRowError reports a CSV row without both identities.
type InvalidRowError struct {
	Row int
}

// Error describes the invalid row.
func (rowError InvalidRowError) Error() string {
	return fmt.Sprintf(invalidRowTemplateConstant, rowError.Row)
}

// DuplicateEntryError reports a source identity mapped to two different usernames.
type DuplicateEntryError struct {
	SourceIdentity string
	FirstTarget    string
	SecondTarget   string
}

// Error describes the conflicting entries.
func (duplicateError DuplicateEntryError) Error() string {
	return fmt.Sprintf(duplicateEntryTemplateConstant, duplicateError.SourceIdentity, duplicateError.FirstTarget, duplicateError.SecondTarget)
}

// Mapping is a read-only table keyed by source unique name. Keys compare
// case-insensitively. A Mapping is safe for concurrent reads.
type Mapping struct {
	entries map[string]string
}

// NewMapping builds a Mapping from source identity to target username pairs.
func NewMapping(entries map[string]string) (*Mapping, error) {
	mapping := &Mapping{entries: make(map[string]string, len(entries))}
	sourceIdentities := make([]string, 0, len(entries))
	for sourceIdentity := range entries {
		sourceIdentities = append(sourceIdentities, sourceIdentity)
	}
	slices.Sort(sourceIdentities)
	for _, sourceIdentity := range sourceIdentities {
		if addError := mapping.add(sourceIdentity, entries[sourceIdentity]); addError != nil {
			return nil, addError
		}
	}
	return mapping, nil
}

// LoadFile reads a mapping from a .csv, .yaml, or .yml file.
func LoadFile(path string) (*Mapping, error) {
	trimmedPath := strings.TrimSpace(path)
	if len(trimmedPath) == 0 {
		return nil, ErrMappingPathMissing
	}

	format, formatError := formatForPath(trimmedPath)
	if formatError != nil {
		return nil, formatError
	}

	file, openError := os.Open(trimmedPath)
	if openError != nil {
		return nil, fmt.Errorf(openFileErrorTemplateConstant, trimmedPath, openError)
	}
	defer file.Close()

	mapping, parseError := Parse(file, format)
	if parseError != nil {
		return nil, fmt.Errorf(parseErrorTemplateConstant, trimmedPath, parseError)
	}
	return mapping, nil
}

// Parse reads a mapping in the given format.
func Parse(reader io.Reader, format Format) (*Mapping, error) {
	switch format {
	case FormatCSV:
		return parseCSV(reader)
	case FormatYAML:
		return parseYAML(reader)
	default:
		return nil, UnsupportedFormatError{Extension: string(format)}
	}
}

// Lookup returns the target username mapped to uniqueName.
func (mapping *Mapping) Lookup(uniqueName string) (string, bool) {
	if mapping == nil {
		return "", false
	}
	targetUsername, found := mapping.entries[normalizeKey(uniqueName)]
	return targetUsername, found
}

// Len returns the number of mapped identities.
func (mapping *Mapping) Len() int {
	if mapping == nil {
		return 0
	}
	return len(mapping.entries)
}

// ValidateAgainst returns the mapped usernames, sorted and de-duplicated,
// that do not appear in organizationMembers. Logins compare case-insensitively.
func (mapping *Mapping) ValidateAgainst(organizationMembers []string) []string {
	if mapping == nil {
		return nil
	}
	knownMembers := make(map[string]struct{}, len(organizationMembers))
	for _, member := range organizationMembers {
		knownMembers[normalizeKey(member)] = struct{}{}
	}

	var unknownUsernames []string
	for _, targetUsername := range mapping.entries {
		if _, known := knownMembers[normalizeKey(targetUsername)]; known {
			continue
		}
		if !slices.Contains(unknownUsernames, targetUsername) {
			unknownUsernames = append(unknownUsernames, targetUsername)
		}
	}
	slices.Sort(unknownUsernames)
	return unknownUsernames
}

func (mapping *Mapping) add(sourceIdentity string, targetUsername string) error {
	key := normalizeKey(sourceIdentity)
	value := strings.TrimSpace(targetUsername)
	if len(key) == 0 || len(value) == 0 {
		return nil
	}
	if existing, exists := mapping.entries[key]; exists && !strings.EqualFold(existing, value) {
		return DuplicateEntryError{SourceIdentity: strings.TrimSpace(sourceIdentity), FirstTarget: existing, SecondTarget: value}
	}
	mapping.entries[key] = value
	return nil
}

func parseCSV(reader io.Reader) (*Mapping, error) {
	csvReader := csv.NewReader(reader)
	csvReader.Comment = csvCommentCharacterConstant
	csvReader.FieldsPerRecord = -1
	csvReader.TrimLeadingSpace = true

	mapping := &Mapping{entries: map[string]string{}}
	for row := 1; ; row++ {
		record, readError := csvReader.Read()
		if errors.Is(readError, io.EOF) {
			return mapping, nil
		}
		if readError != nil {
			return nil, readError
		}
		if isBlankRecord(record) {
			continue
		}
		if len(record) < 2 || len(strings.TrimSpace(record[0])) == 0 || len(strings.TrimSpace(record[1])) == 0 {
			return nil, InvalidRowError{Row: row}
		}
		if row == 1 && isHeaderRecord(record) {
			continue
		}
		if addError := mapping.add(record[0], record[1]); addError != nil {
			return nil, addError
		}
	}
}

func parseYAML(reader io.Reader) (*Mapping, error) {
	entries := map[string]string{}
	decoder := yaml.NewDecoder(reader)
	if decodeError := decoder.Decode(&entries); decodeError != nil && !errors.Is(decodeError, io.EOF) {
		return nil, decodeError
	}
	return NewMapping(entries)
}

func formatForPath(path string) (Format, error) {
	extension := strings.ToLower(filepath.Ext(path))
	switch extension {
	case csvExtensionConstant:
		return FormatCSV, nil
	case yamlExtensionConstant, ymlExtensionConstant:
		return FormatYAML, nil
	default:
		return "", UnsupportedFormatError{Extension: extension}
	}
}

func isHeaderRecord(record []string) bool {
	return slices.Contains(sourceHeaderNames, normalizeKey(record[0])) && slices.Contains(targetHeaderNames, normalizeKey(record[1]))
}

func isBlankRecord(record []string) bool {
	for _, field := range record {
		if len(strings.TrimSpace(field)) > 0 {
			return false
		}
	}
	return true
}

func normalizeKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
