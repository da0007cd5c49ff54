// Package policy masks protected health information before message bodies
// reach logs. The stored conversation keeps the original text; only the
// logging path is redacted.
package policy

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	// Bare 7-10 digit runs cover national-id style patient identifiers.
	idPattern = regexp.MustCompile(`\b\d{7,10}\b`)
)

// RedactPHI masks contact details and patient identifiers in free text.
func RedactPHI(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Run phone redaction before bare-id redaction so a formatted phone is
	// not half-matched as an identifier.
	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	next = idPattern.ReplaceAllString(out, "[REDACTED_ID]")
	changed = changed || next != out
	out = next

	return out, changed
}
