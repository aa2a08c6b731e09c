package regions

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/liamcoop/fairprice/catalog"
)

var ErrInvalidDefinition = errors.New("invalid region definition")

const (
	maxItems      = 500
	maxPlaces     = 2000
	maxRules      = 200
	maxZones      = 20
	maxZoneRadius = 200
)

var (
	regionIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
	colorPattern    = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

// ValidateDefinition checks everything that can be checked without a CEL
// environment. Expressions are compiled when the region is built.
func ValidateDefinition(def Definition) error {
	if err := validate(def); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return nil
}

func validate(def Definition) error {
	p := def.Profile
	if err := validateRegionID(p.ID); err != nil {
		return fmt.Errorf("invalid region id %q: %w", p.ID, err)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("region %s: name is required", p.ID)
	}
	if !currencyPattern.MatchString(p.Currency) {
		return fmt.Errorf("region %s: currency %q must be a three-letter ISO code", p.ID, p.Currency)
	}
	if err := p.Center.Validate(); err != nil {
		return fmt.Errorf("region %s: center: %w", p.ID, err)
	}
	if p.Zoom < 0 || p.Zoom > 19 {
		return fmt.Errorf("region %s: zoom %d outside 0..19", p.ID, p.Zoom)
	}
	if err := p.Fare.Validate(); err != nil {
		return fmt.Errorf("region %s: %w", p.ID, err)
	}
	if err := validateAirport(def); err != nil {
		return fmt.Errorf("region %s: airport: %w", p.ID, err)
	}
	if t := p.ConfidenceThreshold; t != nil && (*t < 0 || *t > 1) {
		return fmt.Errorf("region %s: confidence_threshold %v outside [0,1]", p.ID, *t)
	}
	if p.ItemHighMultiplier != 0 && p.ItemHighMultiplier < 1 {
		return fmt.Errorf("region %s: item_high_multiplier must be >= 1", p.ID)
	}
	for i, ph := range p.Phrases {
		if strings.TrimSpace(ph.Darija) == "" && strings.TrimSpace(ph.English) == "" {
			return fmt.Errorf("region %s: phrase %d is empty", p.ID, i)
		}
	}
	if err := validateZones(p.SoukZones); err != nil {
		return fmt.Errorf("region %s: souk_zones: %w", p.ID, err)
	}

	if len(def.Items) == 0 {
		return fmt.Errorf("region %s: at least one item is required", p.ID)
	}
	if len(def.Items) > maxItems {
		return fmt.Errorf("region %s: %d items, maximum allowed is %d", p.ID, len(def.Items), maxItems)
	}
	if _, err := catalog.NewItemCatalog(def.Items); err != nil {
		return fmt.Errorf("region %s: %w", p.ID, err)
	}

	if len(def.Places) > maxPlaces {
		return fmt.Errorf("region %s: %d places, maximum allowed is %d", p.ID, len(def.Places), maxPlaces)
	}
	if _, err := catalog.NewPlaceCatalog(def.Places); err != nil {
		return fmt.Errorf("region %s: %w", p.ID, err)
	}

	if len(def.Rules) > maxRules {
		return fmt.Errorf("region %s: %d rules, maximum allowed is %d", p.ID, len(def.Rules), maxRules)
	}
	seen := make(map[string]bool, len(def.Rules))
	for _, r := range def.Rules {
		if r == nil {
			return fmt.Errorf("region %s: empty rule entry", p.ID)
		}
		if err := r.Validate(); err != nil {
			return fmt.Errorf("region %s: rule %q: %w", p.ID, r.ID, err)
		}
		if seen[r.ID] {
			return fmt.Errorf("region %s: rule %q is listed twice", p.ID, r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}

func validateAirport(def Definition) error {
	a := def.Airport
	if a.RadiusKm < 0 {
		return errors.New("radius_km must be >= 0")
	}
	if !a.Enabled() {
		return nil
	}
	if err := a.Location.Validate(); err != nil {
		return err
	}
	if a.GrandTaxiMin < 0 || a.GrandTaxiMax < a.GrandTaxiMin {
		return fmt.Errorf("grand taxi range [%d, %d] is invalid", a.GrandTaxiMin, a.GrandTaxiMax)
	}
	return nil
}

func validateZones(zones []SoukZone) error {
	if len(zones) > maxZones {
		return fmt.Errorf("%d zones, maximum allowed is %d", len(zones), maxZones)
	}
	seen := make(map[string]bool, len(zones))
	for i, z := range zones {
		if strings.TrimSpace(z.Name) == "" {
			return fmt.Errorf("zone %d: name is required", i)
		}
		if seen[z.Name] {
			return fmt.Errorf("zone %q is listed twice", z.Name)
		}
		seen[z.Name] = true
		if err := z.Center.Validate(); err != nil {
			return fmt.Errorf("zone %q: %w", z.Name, err)
		}
		if z.Radius <= 0 || z.Radius > maxZoneRadius {
			return fmt.Errorf("zone %q: radius %d outside 1..%d", z.Name, z.Radius, maxZoneRadius)
		}
		if !colorPattern.MatchString(z.Color) {
			return fmt.Errorf("zone %q: color %q must be #rrggbb", z.Name, z.Color)
		}
	}
	return nil
}

// validateRegionID accepts lower-case slugs of 1-64 characters, the form used
// in URLs and as the Postgres key.
func validateRegionID(id string) error {
	if len(id) == 0 {
		return errors.New("identifier cannot be empty")
	}
	if len(id) > 64 {
		return fmt.Errorf("identifier length %d exceeds maximum of 64 characters", len(id))
	}
	if !regionIDPattern.MatchString(id) {
		return errors.New("must match pattern ^[a-z][a-z0-9_-]*$")
	}
	return nil
}
