// Package delivery turns one model reply into a sequence of short messages
// delivered with human-paced typing delays.
package delivery

import "strings"

// Multiline markers. Text wrapped in a matched pair is sent as one unit
// even when it contains newlines (workout lists, numbered steps).
const (
	multilineOpen  = "<multiline>"
	multilineClose = "</multiline>"
)

// Split breaks a reply into delivery units. Text outside multiline markers
// splits on newlines; a matched multiline block becomes a single unit with
// the markers stripped. An unmatched opening marker degrades gracefully:
// everything from it onward is treated as plain text. Split never fails;
// the worst case is the raw string as a single unit.
func Split(text string) []string {
	units := []string{}
	rest := text
	for {
		open := strings.Index(rest, multilineOpen)
		if open < 0 {
			return appendLines(units, rest)
		}
		blockStart := open + len(multilineOpen)
		closeRel := strings.Index(rest[blockStart:], multilineClose)
		if closeRel < 0 {
			// Unmatched marker. Fall back to plain newline splitting so the
			// user still sees the text, marker included.
			return appendLines(units, rest)
		}
		units = appendLines(units, rest[:open])
		if block := strings.TrimSpace(rest[blockStart : blockStart+closeRel]); block != "" {
			units = append(units, block)
		}
		rest = rest[blockStart+closeRel+len(multilineClose):]
	}
}

func appendLines(units []string, text string) []string {
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			units = append(units, trimmed)
		}
	}
	return units
}
