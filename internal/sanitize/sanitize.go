// Package sanitize scans claim text for personal-information patterns and
// produces a redacted body plus the list of detected category tags.
package sanitize

import (
	"regexp"
	"slices"
)

// Category tags for detected personal information.
const (
	CategoryEmail      = "email"
	CategoryPhone      = "phone"
	CategorySSN        = "ssn"
	CategoryCreditCard = "credit_card"
	CategoryIPAddress  = "ip_address"
)

type pattern struct {
	category string
	re       *regexp.Regexp
}

// Ordered so that overlapping matches redact deterministically:
// more specific formats first.
var patterns = []pattern{
	{CategorySSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{CategoryCreditCard, regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`)},
	{CategoryEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{CategoryPhone, regexp.MustCompile(`\b(?:\+?1[ -.]?)?\(?\d{3}\)?[ -.]?\d{3}[ -.]?\d{4}\b`)},
	{CategoryIPAddress, regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
}

// Result carries the redacted text and evidence along with the detected
// category tags. Detection is non-fatal; the pipeline proceeds with the
// redacted body.
type Result struct {
	Text       string   `json:"text"`
	Evidence   []string `json:"evidence,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// Scan redacts personal-information patterns in the claim text and each
// evidence fragment, replacing matches with "[REDACTED:<category>]".
func Scan(text string, evidence []string) Result {
	var categories []string

	redacted, cats := redact(text)
	categories = merge(categories, cats)

	var redactedEvidence []string
	if len(evidence) > 0 {
		redactedEvidence = make([]string, len(evidence))
		for i, fragment := range evidence {
			out, cats := redact(fragment)
			redactedEvidence[i] = out
			categories = merge(categories, cats)
		}
	}

	return Result{
		Text:       redacted,
		Evidence:   redactedEvidence,
		Categories: categories,
	}
}

func redact(s string) (string, []string) {
	var categories []string
	for _, p := range patterns {
		if !p.re.MatchString(s) {
			continue
		}
		s = p.re.ReplaceAllString(s, "[REDACTED:"+p.category+"]")
		categories = append(categories, p.category)
	}
	return s, categories
}

func merge(dst, src []string) []string {
	for _, c := range src {
		if !slices.Contains(dst, c) {
			dst = append(dst, c)
		}
	}
	slices.Sort(dst)
	return dst
}
