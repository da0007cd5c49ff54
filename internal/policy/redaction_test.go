package policy

import (
	"strings"
	"testing"
)

func TestRedactPHI(t *testing.T) {
	input := "Patient Ana Diaz, record 40123456, reachable at ana@example.com or +54 (911) 5555-1234."
	out, changed := RedactPHI(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_ID]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
	if strings.Contains(out, "40123456") {
		t.Fatalf("identifier leaked: %q", out)
	}
}

func TestRedactPHINoChange(t *testing.T) {
	out, changed := RedactPHI("Reviewed today's agenda.")
	if changed {
		t.Fatalf("changed = true for clean input")
	}
	if out != "Reviewed today's agenda." {
		t.Fatalf("clean input mutated: %q", out)
	}
}
