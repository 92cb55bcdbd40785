package chat

import (
	"strings"
	"unicode/utf8"
)

const (
	titleMaxLen = 50
	// Packed titles leave room for the trailing ellipsis.
	titlePackLen = titleMaxLen - 3
)

// GenerateTitle derives a conversation title from its first message.
// Whitespace runs collapse to single spaces. Short messages become the
// title verbatim; longer ones are cut at a word boundary and suffixed
// with an ellipsis. A single word too long to fit is truncated mid-word
// so the title is never empty.
func GenerateTitle(message string) string {
	collapsed := strings.Join(strings.Fields(message), " ")
	if len(collapsed) <= titleMaxLen {
		return collapsed
	}

	words := strings.Fields(collapsed)
	title := ""
	for _, word := range words {
		candidate := word
		if title != "" {
			candidate = title + " " + word
		}
		if len(candidate) > titlePackLen {
			break
		}
		title = candidate
	}

	if title == "" {
		// Hard-truncate without splitting a rune.
		cut := titlePackLen
		for cut > 0 && !utf8.RuneStart(words[0][cut]) {
			cut--
		}
		title = words[0][:cut]
	}
	return title + "..."
}
