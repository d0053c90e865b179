// Package textutil holds small text helpers shared by the CLI surfaces.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DisplayTitle renders a raw topic string as a tidy title for table and
// status output. Separator punctuation collapses to single spaces; the topic
// stored in the record store is never modified.
func DisplayTitle(topic string) string {
	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range topic {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		return "Untitled Topic"
	}
	return cases.Title(language.Und).String(title)
}
