package llm

import (
	"regexp"
	"sort"
	"strings"
)

// Common PII in free text. Ordering matters for redaction: credit cards
// must be masked before phone numbers so the shorter pattern does not eat
// a partial card number.
var piiPatterns = []struct {
	kind    string
	pattern *regexp.Regexp
}{
	{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"credit_card", regexp.MustCompile(`\b(?:\d{4}[- ]?){3}\d{4}\b`)},
	{"phone", regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
}

// DetectPII returns the sorted kinds of PII found in text, empty when
// nothing matched.
func DetectPII(text string) []string {
	var kinds []string
	for _, p := range piiPatterns {
		if p.pattern.MatchString(text) {
			kinds = append(kinds, p.kind)
		}
	}
	sort.Strings(kinds)
	return kinds
}

// DetectPIIMatches maps each detected PII kind to the matched substrings.
func DetectPIIMatches(text string) map[string][]string {
	found := make(map[string][]string)
	for _, p := range piiPatterns {
		if matches := p.pattern.FindAllString(text, -1); len(matches) > 0 {
			found[p.kind] = matches
		}
	}
	return found
}

// RedactPII replaces every detected PII occurrence with a typed placeholder,
// e.g. "[EMAIL_REDACTED]".
func RedactPII(text string) string {
	for _, p := range piiPatterns {
		placeholder := "[" + strings.ToUpper(p.kind) + "_REDACTED]"
		text = p.pattern.ReplaceAllString(text, placeholder)
	}
	return text
}

// Secret-shaped strings (API keys, bearer tokens) that must never reach
// logs or upstream prompts.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`(?i)api[_-]?key['"]?\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.]{16,}`),
}

// RedactSecrets replaces known secret patterns with "[REDACTED]".
func RedactSecrets(text string) string {
	for _, p := range secretPatterns {
		text = p.ReplaceAllString(text, "[REDACTED]")
	}
	return text
}
