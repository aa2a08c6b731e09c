package rules

import (
	"github.com/liamcoop/fairprice/advisor"
	"github.com/liamcoop/fairprice/catalog"
)

// Numbers are exposed to CEL as doubles so that expressions such as
// item.asked_price > 100 and item.asked_price > 100.0 both type-check
// against the same facts.

// ItemFacts is the "item" variable seen by item-scoped rules.
type ItemFacts struct {
	Name       string  `json:"name"`
	MinPrice   float64 `json:"min_price"`
	MaxPrice   float64 `json:"max_price"`
	AskedPrice float64 `json:"asked_price"`
	Verdict    string  `json:"verdict"`
	Savings    float64 `json:"savings"`
}

// NewItemFacts collects the facts of an evaluated item check.
func NewItemFacts(item catalog.Item, v advisor.ItemVerdict) ItemFacts {
	return ItemFacts{
		Name:       item.NameEN,
		MinPrice:   float64(item.MinPrice),
		MaxPrice:   float64(item.MaxPrice),
		AskedPrice: float64(v.AskedPrice),
		Verdict:    string(v.Verdict),
		Savings:    float64(v.Savings),
	}
}

// ToMap returns the facts under the "item" variable.
func (f ItemFacts) ToMap() map[string]any {
	return map[string]any{
		"item": map[string]any{
			"name":        f.Name,
			"min_price":   f.MinPrice,
			"max_price":   f.MaxPrice,
			"asked_price": f.AskedPrice,
			"verdict":     f.Verdict,
			"savings":     f.Savings,
		},
	}
}

// TripFacts is the "trip" variable seen by taxi-scoped rules.
type TripFacts struct {
	DistanceKm  float64 `json:"distance_km"`
	FairPrice   float64 `json:"fair_price"`
	AskedPrice  float64 `json:"asked_price"`
	Night       bool    `json:"night"`
	AirportTrip bool    `json:"airport_trip"`
	Verdict     string  `json:"verdict"`
	Savings     float64 `json:"savings"`
}

// NewTripFacts collects the facts of an evaluated taxi check.
func NewTripFacts(v advisor.TaxiVerdict, night bool) TripFacts {
	return TripFacts{
		DistanceKm:  v.Quote.DistanceKm,
		FairPrice:   float64(v.Quote.FairPrice),
		AskedPrice:  float64(v.Quote.AskedPrice),
		Night:       night,
		AirportTrip: v.AirportTrip(),
		Verdict:     string(v.Verdict),
		Savings:     float64(v.Savings),
	}
}

// ToMap returns the facts under the "trip" variable.
func (f TripFacts) ToMap() map[string]any {
	return map[string]any{
		"trip": map[string]any{
			"distance_km":  f.DistanceKm,
			"fair_price":   f.FairPrice,
			"asked_price":  f.AskedPrice,
			"night":        f.Night,
			"airport_trip": f.AirportTrip,
			"verdict":      f.Verdict,
			"savings":      f.Savings,
		},
	}
}

// Facts is implemented by ItemFacts and TripFacts.
type Facts interface {
	ToMap() map[string]any
}

var (
	_ Facts = ItemFacts{}
	_ Facts = TripFacts{}
)
