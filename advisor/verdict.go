// Package advisor holds the two fair-price decision functions: the souk item
// price check and the taxi fare check. Both are pure functions of their inputs.
package advisor

import "errors"

// Verdict is the three-way judgement assigned to an asked price.
type Verdict string

const (
	VerdictFair         Verdict = "FAIR"
	VerdictSlightlyHigh Verdict = "SLIGHTLY_HIGH"
	VerdictOverpriced   Verdict = "OVERPRICED"
)

var (
	ErrInvalidPrice  = errors.New("price must be a non-negative whole number")
	ErrInvalidRange  = errors.New("invalid price range")
	ErrInvalidPoint  = errors.New("invalid coordinate")
	ErrInvalidConfig = errors.New("invalid fare configuration")
)

// DefaultPhrases is what the advisor suggests saying when a price is far too high.
var DefaultPhrases = []Phrase{
	{Darija: "هاد الثمن للسياح فقط؟ غالي بزاف!", English: "This price is for tourists only? Too expensive!"},
}

// Phrase is a bargaining line in Moroccan Arabic with its translation.
type Phrase struct {
	Darija  string `json:"darija" yaml:"darija"`
	English string `json:"english" yaml:"english"`
}

// pickPhrase rotates through phrases using the asked price as the selector.
func pickPhrase(phrases []Phrase, asked int) *Phrase {
	if len(phrases) == 0 {
		phrases = DefaultPhrases
	}
	p := phrases[asked%len(phrases)]
	return &p
}

// classify applies the shared ladder: at or under the fair bound is fair,
// up to bound*multiplier is slightly high, anything above is overpriced.
func classify(asked, bound int, multiplier float64) Verdict {
	switch {
	case asked <= bound:
		return VerdictFair
	case float64(asked) <= float64(bound)*multiplier:
		return VerdictSlightlyHigh
	default:
		return VerdictOverpriced
	}
}
