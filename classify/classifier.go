// Package classify wraps the external image classifier that recognises souk
// items in a photo, and turns its output into a default catalog selection.
package classify

import (
	"context"
	"errors"
)

var (
	ErrUnavailable = errors.New("classifier unavailable")
	ErrBadImage    = errors.New("image could not be decoded")
)

// Prediction is the top label with its probability in [0,1].
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classifier recognises the item shown in an encoded image.
type Classifier interface {
	Classify(ctx context.Context, image []byte) (Prediction, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, image []byte) (Prediction, error)

func (f ClassifierFunc) Classify(ctx context.Context, image []byte) (Prediction, error) {
	return f(ctx, image)
}

// Unavailable is used when no model endpoint is configured.
type Unavailable struct{}

func (Unavailable) Classify(context.Context, []byte) (Prediction, error) {
	return Prediction{}, ErrUnavailable
}
