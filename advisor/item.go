package advisor

import (
	"encoding/json"
	"fmt"
)

// DefaultItemHighMultiplier bounds the "slightly high" band above max_price.
const DefaultItemHighMultiplier = 1.5

// ItemPolicy carries the tunables of the item check.
type ItemPolicy struct {
	HighMultiplier float64
	Phrases        []Phrase
}

// DefaultItemPolicy returns the policy used by every observed revision.
func DefaultItemPolicy() ItemPolicy {
	return ItemPolicy{HighMultiplier: DefaultItemHighMultiplier, Phrases: DefaultPhrases}
}

// ItemVerdict is the outcome of EvaluateItemPrice. Only the fields relevant to
// the verdict are set: Payable for FAIR, Target for SLIGHTLY_HIGH, the range
// and Phrase for OVERPRICED. Savings is non-zero whenever asked > max.
type ItemVerdict struct {
	Verdict    Verdict `json:"verdict"`
	AskedPrice int     `json:"asked_price"`
	Payable    int     `json:"payable,omitempty"`
	Target     int     `json:"target,omitempty"`
	MinPrice   int     `json:"min_price,omitempty"`
	MaxPrice   int     `json:"max_price,omitempty"`
	Savings    int     `json:"savings,omitempty"`
	Phrase     *Phrase `json:"phrase,omitempty"`
}

// MarshalJSON writes the fields that belong to the verdict even when they are
// zero, so a FAIR check at 0 still carries its payable amount.
func (v ItemVerdict) MarshalJSON() ([]byte, error) {
	out := struct {
		Verdict    Verdict `json:"verdict"`
		AskedPrice int     `json:"asked_price"`
		Payable    *int    `json:"payable,omitempty"`
		Target     *int    `json:"target,omitempty"`
		MinPrice   *int    `json:"min_price,omitempty"`
		MaxPrice   *int    `json:"max_price,omitempty"`
		Savings    int     `json:"savings,omitempty"`
		Phrase     *Phrase `json:"phrase,omitempty"`
	}{
		Verdict:    v.Verdict,
		AskedPrice: v.AskedPrice,
		Savings:    v.Savings,
		Phrase:     v.Phrase,
	}
	switch v.Verdict {
	case VerdictFair:
		out.Payable = &v.Payable
	case VerdictSlightlyHigh:
		out.Target = &v.Target
	case VerdictOverpriced:
		out.MinPrice, out.MaxPrice = &v.MinPrice, &v.MaxPrice
	}
	return json.Marshal(out)
}

// EvaluateItemPrice judges an asked price against a catalog range.
func EvaluateItemPrice(minPrice, maxPrice, asked int, policy ItemPolicy) (ItemVerdict, error) {
	if asked < 0 {
		return ItemVerdict{}, fmt.Errorf("%w: %d", ErrInvalidPrice, asked)
	}
	if minPrice < 0 || maxPrice < 0 || minPrice > maxPrice {
		return ItemVerdict{}, fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, minPrice, maxPrice)
	}
	multiplier := policy.HighMultiplier
	if multiplier < 1 {
		multiplier = DefaultItemHighMultiplier
	}

	out := ItemVerdict{
		Verdict:    classify(asked, maxPrice, multiplier),
		AskedPrice: asked,
	}
	switch out.Verdict {
	case VerdictFair:
		out.Payable = asked
	case VerdictSlightlyHigh:
		out.Target = maxPrice
	case VerdictOverpriced:
		out.MinPrice = minPrice
		out.MaxPrice = maxPrice
		out.Phrase = pickPhrase(policy.Phrases, asked)
	}
	if asked > maxPrice {
		out.Savings = asked - maxPrice
	}
	return out, nil
}
