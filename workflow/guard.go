package workflow

import (
	"regexp"

	"github.com/genflow-ai/genflow/types"
)

// Basic prompt-injection patterns screened out of workflow input before
// any node runs.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+previous`),
	regexp.MustCompile(`(?i)\breveal\b`),
	regexp.MustCompile(`(?i)system\s+prompt`),
}

// ValidateInput recursively scans string values in the input data for
// injection patterns. Nested maps and lists are scanned too.
func ValidateInput(data map[string]any) error {
	for _, value := range data {
		if err := checkValue(value); err != nil {
			return err
		}
	}
	return nil
}

func checkValue(value any) error {
	switch v := value.(type) {
	case string:
		return checkInjection(v)
	case map[string]any:
		return ValidateInput(v)
	case []any:
		for _, item := range v {
			if err := checkValue(item); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkInjection(text string) error {
	for _, pattern := range injectionPatterns {
		if pattern.MatchString(text) {
			return types.NewErrorf(types.ErrValidation,
				"input contains potentially unsafe content matching pattern %q; review and sanitize input before use",
				pattern.String())
		}
	}
	return nil
}
