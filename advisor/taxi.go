package advisor

import (
	"fmt"
	"math"
)

// FareConfig holds the linear fare model: base = max(MinFare, FixedCharge + km*RatePerKm).
type FareConfig struct {
	MinFare         float64 `json:"min_fare" yaml:"min_fare"`
	FixedCharge     float64 `json:"fixed_charge" yaml:"fixed_charge"`
	RatePerKm       float64 `json:"rate_per_km" yaml:"rate_per_km"`
	NightMultiplier float64 `json:"night_multiplier" yaml:"night_multiplier"`
	HighMultiplier  float64 `json:"high_multiplier" yaml:"high_multiplier"`
}

// DefaultFareConfig is the Rabat petit-taxi parameterisation.
func DefaultFareConfig() FareConfig {
	return FareConfig{
		MinFare:         25,
		FixedCharge:     8,
		RatePerKm:       8,
		NightMultiplier: 1.5,
		HighMultiplier:  1.4,
	}
}

// Validate checks that every constant is usable by the fare formula.
func (c FareConfig) Validate() error {
	switch {
	case c.MinFare < 0:
		return fmt.Errorf("%w: min_fare must be >= 0", ErrInvalidConfig)
	case c.FixedCharge < 0:
		return fmt.Errorf("%w: fixed_charge must be >= 0", ErrInvalidConfig)
	case c.RatePerKm < 0:
		return fmt.Errorf("%w: rate_per_km must be >= 0", ErrInvalidConfig)
	case c.NightMultiplier < 1:
		return fmt.Errorf("%w: night_multiplier must be >= 1", ErrInvalidConfig)
	case c.HighMultiplier < 1:
		return fmt.Errorf("%w: high_multiplier must be >= 1", ErrInvalidConfig)
	}
	return nil
}

// AirportPolicy describes when a trip should be flagged as an airport run.
type AirportPolicy struct {
	Name         string  `json:"name" yaml:"name"`
	Location     Point   `json:"location" yaml:"location"`
	RadiusKm     float64 `json:"radius_km" yaml:"radius_km"`
	GrandTaxiMin int     `json:"grand_taxi_min" yaml:"grand_taxi_min"`
	GrandTaxiMax int     `json:"grand_taxi_max" yaml:"grand_taxi_max"`
}

// Enabled reports whether airport detection is configured.
func (a AirportPolicy) Enabled() bool {
	return a.RadiusKm > 0
}

// Near reports whether p lies strictly inside the airport radius. The
// distance is rounded to metres-level precision first, as it is displayed.
func (a AirportPolicy) Near(p Point) bool {
	return a.Enabled() && Round(Haversine(p, a.Location), 2) < a.RadiusKm
}

// FareQuote is the fare derived for one trip.
type FareQuote struct {
	DistanceKm       float64 `json:"distance_km"`
	BasePrice        float64 `json:"base_price"`
	SurchargeApplied bool    `json:"surcharge_applied"`
	FairPrice        int     `json:"fair_price"`
	AskedPrice       int     `json:"asked_price"`
}

// AirportAdvisory recommends a fixed-price grand taxi instead of the meter.
type AirportAdvisory struct {
	Airport      string `json:"airport,omitempty"`
	GrandTaxiMin int    `json:"grand_taxi_min"`
	GrandTaxiMax int    `json:"grand_taxi_max"`
	Message      string `json:"message"`
}

// TaxiVerdict is the outcome of EvaluateTaxiFare.
type TaxiVerdict struct {
	Quote   FareQuote        `json:"quote"`
	Verdict Verdict          `json:"verdict"`
	Savings int              `json:"savings,omitempty"`
	Phrase  *Phrase          `json:"phrase,omitempty"`
	Airport *AirportAdvisory `json:"airport,omitempty"`
}

// AirportTrip reports whether the airport advisory fired.
func (v TaxiVerdict) AirportTrip() bool {
	return v.Airport != nil
}

// FairFare applies the fare model to a distance. It returns the unrounded base
// and the fair price after the optional night surcharge, floored to whole units.
func FairFare(distanceKm float64, night bool, cfg FareConfig) (float64, int) {
	base := math.Max(cfg.MinFare, cfg.FixedCharge+distanceKm*cfg.RatePerKm)
	if night {
		return base, int(math.Floor(base * cfg.NightMultiplier))
	}
	return base, int(math.Floor(base))
}

// EvaluateTaxiFare judges the fare a driver asked for a trip from dep to arr.
func EvaluateTaxiFare(dep, arr Point, asked int, night bool, cfg FareConfig, airport AirportPolicy) (TaxiVerdict, error) {
	if err := dep.Validate(); err != nil {
		return TaxiVerdict{}, fmt.Errorf("departure: %w", err)
	}
	if err := arr.Validate(); err != nil {
		return TaxiVerdict{}, fmt.Errorf("arrival: %w", err)
	}
	if asked < 0 {
		return TaxiVerdict{}, fmt.Errorf("%w: %d", ErrInvalidPrice, asked)
	}
	if err := cfg.Validate(); err != nil {
		return TaxiVerdict{}, err
	}

	distance := Round(Haversine(dep, arr), 2)
	base, fair := FairFare(distance, night, cfg)

	out := TaxiVerdict{
		Quote: FareQuote{
			DistanceKm:       distance,
			BasePrice:        base,
			SurchargeApplied: night && cfg.NightMultiplier > 1,
			FairPrice:        fair,
			AskedPrice:       asked,
		},
		Verdict: classify(asked, fair, cfg.HighMultiplier),
	}
	if out.Verdict == VerdictOverpriced {
		out.Phrase = pickPhrase(nil, asked)
	}
	if asked > fair {
		out.Savings = asked - fair
	}
	if airport.Near(dep) || airport.Near(arr) {
		out.Airport = &AirportAdvisory{
			Airport:      airport.Name,
			GrandTaxiMin: airport.GrandTaxiMin,
			GrandTaxiMax: airport.GrandTaxiMax,
			Message:      airportMessage(airport),
		}
	}
	return out, nil
}

func airportMessage(a AirportPolicy) string {
	if a.GrandTaxiMin > 0 && a.GrandTaxiMax >= a.GrandTaxiMin {
		return fmt.Sprintf("Airport trip? Use grand taxi - fixed price ~%d-%d", a.GrandTaxiMin, a.GrandTaxiMax)
	}
	return "Airport trip? Use grand taxi - agree on a fixed price before departure"
}
