// Package chunker splits long outbound answers into ordered, transport-safe
// parts. Splitting prefers paragraph boundaries, then sentence boundaries,
// and only hard-wraps when a single sentence exceeds the limit.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultLimit leaves headroom under the gateway's hard message cap for the
// "[i/n]" part marker.
const DefaultLimit = 990

// Split breaks text into parts of at most limit characters each. A text
// that already fits is returned as a single unmarked part. Multi-part
// output carries a "[i/n]\n" prefix on every part; the prefix is applied
// after length fitting, so limit must already include headroom for it.
func Split(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(text) <= limit {
		return []string{text}
	}

	var parts []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
		}
	}

	appendUnit := func(unit, sep string) {
		if current.Len() == 0 {
			current.WriteString(unit)
			return
		}
		if current.Len()+len(sep)+len(unit) > limit {
			flush()
			current.WriteString(unit)
			return
		}
		current.WriteString(sep)
		current.WriteString(unit)
	}

	for _, para := range splitParagraphs(text) {
		if len(para) <= limit {
			appendUnit(para, "\n\n")
			continue
		}
		for _, sentence := range splitSentences(para) {
			for _, piece := range hardWrap(sentence, limit) {
				appendUnit(piece, " ")
			}
		}
	}
	flush()

	if len(parts) <= 1 {
		return parts
	}
	n := len(parts)
	for i, p := range parts {
		parts[i] = fmt.Sprintf("[%d/%d]\n%s", i+1, n, p)
	}
	return parts
}

func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences breaks a paragraph at '.', '!', or '?' followed by
// whitespace, keeping the terminator with the preceding sentence.
func splitSentences(para string) []string {
	var out []string
	start := 0
	for i := 0; i < len(para)-1; i++ {
		c := para[i]
		if (c == '.' || c == '!' || c == '?') && isSpace(para[i+1]) {
			sentence := strings.TrimSpace(para[start : i+1])
			if sentence != "" {
				out = append(out, sentence)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(para[start:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

// hardWrap cuts an oversized sentence at the last space at or before limit,
// or at the nearest rune boundary at or before limit when no space exists.
func hardWrap(sentence string, limit int) []string {
	var out []string
	rest := sentence
	for len(rest) > limit {
		cut := strings.LastIndexByte(rest[:limit+1], ' ')
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(rest[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
		}
		out = append(out, strings.TrimSpace(rest[:cut]))
		rest = strings.TrimSpace(rest[cut:])
	}
	if rest != "" {
		out = append(out, rest)
	}
	return out
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}
