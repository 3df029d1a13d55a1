package sanitize_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/aegisproof/aegis/internal/sanitize"
)

func TestScanRedactsEmail(t *testing.T) {
	result := sanitize.Scan("Contact john.doe@example.com for records.", nil)

	if strings.Contains(result.Text, "john.doe@example.com") {
		t.Errorf("email survived redaction: %q", result.Text)
	}
	if !strings.Contains(result.Text, "[REDACTED:email]") {
		t.Errorf("missing redaction tag: %q", result.Text)
	}
	if !slices.Contains(result.Categories, sanitize.CategoryEmail) {
		t.Errorf("categories: got %v, want email", result.Categories)
	}
}

func TestScanRedactsSSN(t *testing.T) {
	result := sanitize.Scan("SSN on file: 123-45-6789.", nil)

	if strings.Contains(result.Text, "123-45-6789") {
		t.Errorf("ssn survived redaction: %q", result.Text)
	}
	if !slices.Contains(result.Categories, sanitize.CategorySSN) {
		t.Errorf("categories: got %v, want ssn", result.Categories)
	}
}

func TestScanRedactsPhone(t *testing.T) {
	tests := []string{
		"Call (555) 123-4567 to confirm.",
		"Call 555-123-4567 to confirm.",
		"Call +1 555 123 4567 to confirm.",
	}

	for _, text := range tests {
		result := sanitize.Scan(text, nil)
		if !slices.Contains(result.Categories, sanitize.CategoryPhone) {
			t.Errorf("Scan(%q) categories: got %v, want phone", text, result.Categories)
		}
	}
}

func TestScanRedactsCreditCard(t *testing.T) {
	result := sanitize.Scan("Card 4111 1111 1111 1111 was charged.", nil)

	if strings.Contains(result.Text, "4111") {
		t.Errorf("card number survived redaction: %q", result.Text)
	}
	if !slices.Contains(result.Categories, sanitize.CategoryCreditCard) {
		t.Errorf("categories: got %v, want credit_card", result.Categories)
	}
}

func TestScanRedactsIPAddress(t *testing.T) {
	result := sanitize.Scan("Request came from 192.168.10.42 overnight.", nil)

	if strings.Contains(result.Text, "192.168.10.42") {
		t.Errorf("ip survived redaction: %q", result.Text)
	}
	if !slices.Contains(result.Categories, sanitize.CategoryIPAddress) {
		t.Errorf("categories: got %v, want ip_address", result.Categories)
	}
}

func TestScanCleanTextUnchanged(t *testing.T) {
	text := "Veteran served 2001-2008 with documented noise exposure."
	result := sanitize.Scan(text, nil)

	if result.Text != text {
		t.Errorf("clean text modified: %q", result.Text)
	}
	if len(result.Categories) != 0 {
		t.Errorf("categories: got %v, want none", result.Categories)
	}
}

func TestScanEvidenceFragments(t *testing.T) {
	result := sanitize.Scan(
		"Claim body is clean.",
		[]string{"Reach me at vet@example.org.", "Nothing sensitive here."},
	)

	if strings.Contains(result.Evidence[0], "vet@example.org") {
		t.Errorf("evidence email survived: %q", result.Evidence[0])
	}
	if result.Evidence[1] != "Nothing sensitive here." {
		t.Errorf("clean evidence modified: %q", result.Evidence[1])
	}
	if !slices.Contains(result.Categories, sanitize.CategoryEmail) {
		t.Errorf("categories: got %v, want email from evidence", result.Categories)
	}
}

func TestScanCategoriesSortedAndUnique(t *testing.T) {
	result := sanitize.Scan(
		"Mail a@b.com and c@d.com, SSN 123-45-6789.",
		[]string{"Another mail e@f.com."},
	)

	if !slices.IsSorted(result.Categories) {
		t.Errorf("categories not sorted: %v", result.Categories)
	}

	seen := map[string]bool{}
	for _, c := range result.Categories {
		if seen[c] {
			t.Errorf("duplicate category %s in %v", c, result.Categories)
		}
		seen[c] = true
	}
}
