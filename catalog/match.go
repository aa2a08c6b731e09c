package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// LookupKey turns a classifier label into a search key: tokens made only of
// digits are dropped and the first remaining word is kept.
// "100 Argan oil 100ml" -> "Argan".
func LookupKey(label string) (string, bool) {
	for _, tok := range strings.Fields(label) {
		if !allDigits(tok) {
			return tok, true
		}
	}
	return "", false
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// MatchLabel finds the first item whose English name contains the label's
// lookup key, ignoring case.
func (c *ItemCatalog) MatchLabel(label string) (int, error) {
	key, ok := LookupKey(label)
	if !ok {
		return 0, ErrNoMatch
	}
	// A Caser keeps state, so each call gets its own.
	folder := cases.Fold()
	needle := folder.String(key)
	for idx, it := range c.items {
		if strings.Contains(folder.String(it.NameEN), needle) {
			return idx, nil
		}
	}
	return 0, ErrNoMatch
}
