// Package regions manages one fair-price configuration per city: fare
// constants, airport policy, item and place catalogs, and advisory rules.
package regions

import (
	"context"
	"fmt"

	"github.com/liamcoop/fairprice/advisor"
	"github.com/liamcoop/fairprice/catalog"
	"github.com/liamcoop/fairprice/geocode"
	"github.com/liamcoop/fairprice/rules"
)

// Profile is the tunable part of a region.
type Profile struct {
	ID                  string                `json:"id" yaml:"id"`
	Name                string                `json:"name" yaml:"name"`
	Currency            string                `json:"currency" yaml:"currency"`
	Center              advisor.Point         `json:"center" yaml:"center"`
	Zoom                int                   `json:"zoom" yaml:"zoom"`
	Fare                advisor.FareConfig    `json:"fare" yaml:"fare"`
	Airport             advisor.AirportPolicy `json:"airport" yaml:"airport"`
	Geocoder            geocode.Bias          `json:"geocoder" yaml:"geocoder"`
	ConfidenceThreshold *float64              `json:"confidence_threshold,omitempty" yaml:"confidence_threshold"`
	ItemHighMultiplier  float64               `json:"item_high_multiplier" yaml:"item_high_multiplier"`
	Phrases             []advisor.Phrase      `json:"phrases" yaml:"phrases"`
	SoukZones           []SoukZone            `json:"souk_zones,omitempty" yaml:"souk_zones"`
}

// ItemPolicy returns the item check settings of the region.
func (p Profile) ItemPolicy() advisor.ItemPolicy {
	policy := advisor.DefaultItemPolicy()
	if p.ItemHighMultiplier > 0 {
		policy.HighMultiplier = p.ItemHighMultiplier
	}
	if len(p.Phrases) > 0 {
		policy.Phrases = p.Phrases
	}
	return policy
}

// Definition is a region as stored in YAML or Postgres.
type Definition struct {
	Profile `yaml:",inline"`
	Items   []catalog.Item  `json:"items" yaml:"items"`
	Places  []catalog.Place `json:"places" yaml:"places"`
	Rules   []*rules.Rule   `json:"rules,omitempty" yaml:"rules"`
}

// Region is a loaded, ready-to-serve region. Its fields are never mutated
// after construction; fare updates replace the whole value.
type Region struct {
	Profile Profile
	Items   *catalog.ItemCatalog
	Places  *catalog.PlaceCatalog
	Rules   *rules.Engine
}

// ItemCheck is the response to an item price check.
type ItemCheck struct {
	Item       catalog.Item        `json:"item"`
	Result     advisor.ItemVerdict `json:"result"`
	Currency   string              `json:"currency"`
	Advisories []rules.Advisory    `json:"advisories"`
}

// EvaluateItem checks asked against the item at idx.
func (r *Region) EvaluateItem(ctx context.Context, idx, asked int) (ItemCheck, error) {
	item, err := r.Items.Get(idx)
	if err != nil {
		return ItemCheck{}, err
	}
	v, err := advisor.EvaluateItemPrice(item.MinPrice, item.MaxPrice, asked, r.Profile.ItemPolicy())
	if err != nil {
		return ItemCheck{}, err
	}

	advisories, err := r.Rules.Advise(ctx, rules.ScopeItem, rules.NewItemFacts(item, v))
	if err != nil {
		return ItemCheck{}, fmt.Errorf("advisories: %w", err)
	}
	return ItemCheck{Item: item, Result: v, Currency: r.Profile.Currency, Advisories: advisories}, nil
}

// TaxiCheck is the response to a taxi fare check.
type TaxiCheck struct {
	Result     advisor.TaxiVerdict `json:"result"`
	Night      bool                `json:"night"`
	Currency   string              `json:"currency"`
	Advisories []rules.Advisory    `json:"advisories"`
}

// EvaluateTaxi checks asked for a trip between dep and arr.
func (r *Region) EvaluateTaxi(ctx context.Context, dep, arr advisor.Point, asked int, night bool) (TaxiCheck, error) {
	v, err := advisor.EvaluateTaxiFare(dep, arr, asked, night, r.Profile.Fare, r.Profile.Airport)
	if err != nil {
		return TaxiCheck{}, err
	}

	advisories, err := r.Rules.Advise(ctx, rules.ScopeTaxi, rules.NewTripFacts(v, night))
	if err != nil {
		return TaxiCheck{}, fmt.Errorf("advisories: %w", err)
	}
	return TaxiCheck{Result: v, Night: night, Currency: r.Profile.Currency, Advisories: advisories}, nil
}

// Threshold returns the classifier confidence threshold, falling back to def
// when the region does not set one. An explicit 0 auto-selects every match.
func (r *Region) Threshold(def float64) float64 {
	if r.Profile.ConfidenceThreshold != nil {
		return *r.Profile.ConfidenceThreshold
	}
	return def
}
