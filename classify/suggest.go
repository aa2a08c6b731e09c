package classify

import (
	"context"
	"errors"

	"github.com/liamcoop/fairprice/catalog"
	"github.com/liamcoop/fairprice/internal/logger"
)

// DefaultThreshold is the minimum confidence for an automatic selection.
const DefaultThreshold = 0.90

// Status says how the default selection was chosen.
type Status string

const (
	StatusAutoSelected  Status = "auto_selected"
	StatusNoMatch       Status = "no_match"
	StatusLowConfidence Status = "low_confidence"
	StatusUnavailable   Status = "unavailable"
	StatusNoPhoto       Status = "no_photo"
)

// Suggestion is the pre-selection offered to the user. The user always
// confirms or overrides it before a price is checked.
type Suggestion struct {
	DefaultIndex int         `json:"default_index"`
	Status       Status      `json:"status"`
	Prediction   *Prediction `json:"prediction,omitempty"`
	Message      string      `json:"message"`
}

// AutoSelected reports whether the classifier picked the default item.
func (s Suggestion) AutoSelected() bool {
	return s.Status == StatusAutoSelected
}

// Suggest classifies a photo and maps the label onto the item catalog.
// It never fails: any classifier problem degrades to manual selection.
func Suggest(ctx context.Context, c Classifier, image []byte, items *catalog.ItemCatalog, threshold float64) Suggestion {
	if len(image) == 0 {
		return Suggestion{Status: StatusNoPhoto, Message: "Add a photo or choose the item manually"}
	}
	if c == nil {
		c = Unavailable{}
	}

	pred, err := c.Classify(ctx, image)
	if err != nil {
		logger.ClassifierFallbacks.Add(1)
		if !errors.Is(err, ErrUnavailable) {
			logger.WarnContext(ctx, "classification failed", "error", err)
		}
		return Suggestion{Status: StatusUnavailable, Message: "Photo not clear - please choose item manually"}
	}

	if pred.Confidence < threshold {
		return Suggestion{
			Status:     StatusLowConfidence,
			Prediction: &pred,
			Message:    "Photo not clear - please choose item manually",
		}
	}

	idx, err := items.MatchLabel(pred.Label)
	if err != nil {
		return Suggestion{
			Status:     StatusNoMatch,
			Prediction: &pred,
			Message:    "Detected item not in list - choose manually",
		}
	}
	return Suggestion{
		DefaultIndex: idx,
		Status:       StatusAutoSelected,
		Prediction:   &pred,
		Message:      "Item auto-selected",
	}
}
