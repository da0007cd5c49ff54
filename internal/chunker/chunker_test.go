package chunker

import (
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"
)

var markerPattern = regexp.MustCompile(`^\[(\d+)/(\d+)\]\n`)

func stripMarker(part string) string {
	return markerPattern.ReplaceAllString(part, "")
}

func normalizeWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func TestSplitShortTextSinglePart(t *testing.T) {
	text := "Hello, your appointment is confirmed."
	parts := Split(text, 990)
	if len(parts) != 1 {
		t.Fatalf("Split() parts = %d, want 1", len(parts))
	}
	if parts[0] != text {
		t.Fatalf("single part should equal original, got %q", parts[0])
	}
	if markerPattern.MatchString(parts[0]) {
		t.Fatalf("single part must not carry a marker")
	}
}

func TestSplitRespectsLimit(t *testing.T) {
	text := strings.Repeat("The patient was seen today and is recovering well. ", 120)
	limit := 200
	parts := Split(text, limit)
	if len(parts) < 2 {
		t.Fatalf("expected multiple parts, got %d", len(parts))
	}
	for i, p := range parts {
		content := stripMarker(p)
		if len(content) > limit {
			t.Fatalf("part %d content length %d exceeds limit %d", i, len(content), limit)
		}
	}
}

func TestSplitMarkersNumbered(t *testing.T) {
	text := strings.Repeat("a", 2500)
	parts := Split(text, 990)
	if want := 3; len(parts) != want {
		t.Fatalf("parts = %d, want %d", len(parts), want)
	}
	for i, p := range parts {
		m := markerPattern.FindStringSubmatch(p)
		if m == nil {
			t.Fatalf("part %d missing marker: %q", i, p[:20])
		}
		if m[1] != string(rune('1'+i)) {
			t.Fatalf("part %d marker index = %s", i, m[1])
		}
		if m[2] != "3" {
			t.Fatalf("part %d marker total = %s, want 3", i, m[2])
		}
	}
}

func TestSplitRoundTrip(t *testing.T) {
	text := "First paragraph about the patient history.\n\n" +
		"Second paragraph: " + strings.Repeat("more detail follows here. ", 40) + "\n\n" +
		"Closing note."
	parts := Split(text, 150)
	var joined strings.Builder
	for _, p := range parts {
		joined.WriteString(stripMarker(p))
		joined.WriteString(" ")
	}
	if normalizeWS(joined.String()) != normalizeWS(text) {
		t.Fatalf("round trip mismatch:\n got  %q\n want %q", normalizeWS(joined.String()), normalizeWS(text))
	}
}

func TestSplitHardWrapWithoutSpaces(t *testing.T) {
	text := strings.Repeat("x", 450)
	parts := Split(text, 200)
	var total int
	for _, p := range parts {
		content := stripMarker(p)
		if len(content) > 200 {
			t.Fatalf("content length %d exceeds limit", len(content))
		}
		total += len(content)
	}
	if total != 450 {
		t.Fatalf("reassembled length = %d, want 450", total)
	}
}

func TestSplitHardWrapKeepsRunesIntact(t *testing.T) {
	text := strings.Repeat("é", 600) // two bytes per rune, no spaces
	parts := Split(text, 201)        // odd byte limit lands mid-rune
	if len(parts) < 2 {
		t.Fatalf("parts = %d, want multi-part", len(parts))
	}
	var joined strings.Builder
	for i, p := range parts {
		content := stripMarker(p)
		if !utf8.ValidString(content) {
			t.Fatalf("part %d is not valid UTF-8: %q", i, content)
		}
		if len(content) > 201 {
			t.Fatalf("part %d length %d exceeds limit", i, len(content))
		}
		joined.WriteString(content)
	}
	if joined.String() != text {
		t.Fatalf("reassembled text does not match input")
	}
}

func TestSplitParagraphBoundariesPreferred(t *testing.T) {
	para := strings.Repeat("b", 400)
	text := para + "\n\n" + para + "\n\n" + para
	parts := Split(text, 450)
	for i, p := range parts {
		content := stripMarker(p)
		if strings.Contains(content, "\n\n") && len(content) > 450 {
			t.Fatalf("part %d merged paragraphs beyond limit", i)
		}
	}
	if len(parts) != 3 {
		t.Fatalf("parts = %d, want one per paragraph", len(parts))
	}
}
