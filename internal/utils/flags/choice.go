package flags

import (
	"fmt"
	"slices"
	"strings"
)

const (
	choicePlaceholderPrefix     = "<"
	choicePlaceholderSuffix     = ">"
	choiceSeparatorLiteral      = "|"
	choiceUsageEmptyTemplate    = "`%s`"
	choiceUsageFullTemplate     = "`%s` %s"
	choiceUnsupportedTemplate   = "unsupported %s %q; expected one of %s"
	choiceListSeparatorConstant = ", "
)

// UnsupportedChoiceError reports a value outside an allowed set.
type UnsupportedChoiceError struct {
	Subject string
	Value   string
	Choices []string
}

// Error lists the accepted values.
func (choiceError UnsupportedChoiceError) Error() string {
	return fmt.Sprintf(choiceUnsupportedTemplate, choiceError.Subject, choiceError.Value, strings.Join(choiceError.Choices, choiceListSeparatorConstant))
}

// FormatChoiceUsage builds a usage string where the default option is capitalized inside a placeholder.
func FormatChoiceUsage(defaultChoice string, choices []string, description string) string {
	placeholder := choicePlaceholderPrefix + strings.Join(highlightDefaultChoice(defaultChoice, choices), choiceSeparatorLiteral) + choicePlaceholderSuffix
	if len(strings.TrimSpace(description)) == 0 {
		return fmt.Sprintf(choiceUsageEmptyTemplate, placeholder)
	}
	return fmt.Sprintf(choiceUsageFullTemplate, placeholder, description)
}

// NormalizeChoice lowercases value and verifies it belongs to choices.
func NormalizeChoice(subject string, value string, choices []string) (string, error) {
	normalizedValue := strings.ToLower(strings.TrimSpace(value))
	if slices.Contains(choices, normalizedValue) {
		return normalizedValue, nil
	}
	return "", UnsupportedChoiceError{Subject: subject, Value: value, Choices: append([]string{}, choices...)}
}

func highlightDefaultChoice(defaultChoice string, choices []string) []string {
	normalizedDefault := strings.ToLower(strings.TrimSpace(defaultChoice))
	highlighted := make([]string, 0, len(choices))
	seen := make(map[string]struct{}, len(choices))

	for _, choice := range choices {
		trimmedChoice := strings.TrimSpace(choice)
		normalizedChoice := strings.ToLower(trimmedChoice)
		if len(normalizedChoice) == 0 {
			continue
		}
		if _, exists := seen[normalizedChoice]; exists {
			continue
		}
		seen[normalizedChoice] = struct{}{}

		if normalizedChoice == normalizedDefault {
			highlighted = append(highlighted, strings.ToUpper(trimmedChoice))
			continue
		}
		highlighted = append(highlighted, trimmedChoice)
	}

	return highlighted
}
