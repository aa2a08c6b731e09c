package advisor

import (
	"fmt"
	"strconv"
)

// ParsePrice accepts only a non-empty run of ASCII digits. Signs, spaces,
// decimals and currency suffixes are rejected so the caller can re-prompt.
func ParsePrice(text string) (int, error) {
	if text == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidPrice)
	}
	for i := 0; i < len(text); i++ {
		if text[i] < '0' || text[i] > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, text)
		}
	}
	v, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPrice, err)
	}
	return v, nil
}
