package synthesis

import (
	"strings"
	"unicode/utf8"
)

var sentenceEnds = []string{". ", "! ", "? "}

// SplitText splits reply text into chunks no larger than budget bytes,
// preferring to break after a sentence end, then after a comma, then at a
// whitespace boundary, then hard-cutting at the budget. Every chunk is valid
// UTF-8 and chunks concatenate back to the original text exactly.
func SplitText(text string, budget int) []string {
	if budget < 1 || len(text) <= budget {
		return []string{text}
	}

	var chunks []string
	pos := 0

	for pos < len(text) {
		remaining := len(text) - pos
		if remaining <= budget {
			chunks = append(chunks, text[pos:])
			break
		}

		window := text[pos : pos+budget]
		end := breakPoint(window)
		// A hard cut may land inside a multi-byte rune; back off to the
		// previous rune start so the chunk stays valid UTF-8.
		for end > 0 && !utf8.RuneStart(text[pos+end]) {
			end--
		}
		if end == 0 {
			// A single rune wider than the budget: take it whole.
			_, end = utf8.DecodeRuneInString(text[pos:])
		}
		chunks = append(chunks, text[pos:pos+end])
		pos += end
	}

	return chunks
}

// breakPoint returns the cut offset within the window, always > 0
func breakPoint(window string) int {
	best := -1
	for _, sep := range sentenceEnds {
		if idx := strings.LastIndex(window, sep); idx > best {
			best = idx
		}
	}
	if best > 0 {
		// Cut after the punctuation and its trailing space.
		return best + 2
	}

	if idx := strings.LastIndex(window, ", "); idx > 0 {
		return idx + 2
	}

	if idx := strings.LastIndexByte(window, ' '); idx > 0 {
		return idx + 1
	}

	return len(window)
}
