// Package catalog holds the static reference data the advisors read from:
// souk items with their fair price range and named places with coordinates.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/liamcoop/fairprice/advisor"
)

var (
	ErrItemNotFound  = errors.New("item not found")
	ErrPlaceNotFound = errors.New("place not found")
	ErrNoMatch       = errors.New("no catalog item matches label")
)

// Item is one row of the souk price table.
type Item struct {
	NameEN   string `json:"item_en" yaml:"item_en"`
	NameAR   string `json:"item_ar" yaml:"item_ar"`
	MinPrice int    `json:"min_price" yaml:"min_price"`
	MaxPrice int    `json:"max_price" yaml:"max_price"`
}

// Label is the bilingual display string used by selection controls.
func (i Item) Label() string {
	if i.NameAR == "" {
		return i.NameEN
	}
	return i.NameEN + " - " + i.NameAR
}

// Validate checks the name and price range.
func (i Item) Validate() error {
	if strings.TrimSpace(i.NameEN) == "" {
		return errors.New("item_en is required")
	}
	if i.MinPrice < 0 || i.MaxPrice < 0 {
		return fmt.Errorf("item %q: prices must be non-negative", i.NameEN)
	}
	if i.MinPrice > i.MaxPrice {
		return fmt.Errorf("item %q: min_price %d exceeds max_price %d", i.NameEN, i.MinPrice, i.MaxPrice)
	}
	return nil
}

// ItemCatalog is an ordered, read-only list of items addressed by index.
type ItemCatalog struct {
	items []Item
}

// NewItemCatalog copies items into a catalog after validating every row.
func NewItemCatalog(items []Item) (*ItemCatalog, error) {
	for idx, it := range items {
		if err := it.Validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", idx, err)
		}
	}
	c := &ItemCatalog{items: make([]Item, len(items))}
	copy(c.items, items)
	return c, nil
}

// Len returns the number of items.
func (c *ItemCatalog) Len() int {
	return len(c.items)
}

// Get returns the item at idx.
func (c *ItemCatalog) Get(idx int) (Item, error) {
	if idx < 0 || idx >= len(c.items) {
		return Item{}, fmt.Errorf("%w: index %d", ErrItemNotFound, idx)
	}
	return c.items[idx], nil
}

// Items returns a copy of the rows.
func (c *ItemCatalog) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Place is a named point of interest.
type Place struct {
	Name     string        `json:"name" yaml:"name"`
	Location advisor.Point `json:"location" yaml:"location"`
}

// PlaceCatalog is an ordered, read-only list of places with lookup by name.
type PlaceCatalog struct {
	places []Place
	byName map[string]int
}

// NewPlaceCatalog validates places and indexes them by name. Names must be unique.
func NewPlaceCatalog(places []Place) (*PlaceCatalog, error) {
	c := &PlaceCatalog{
		places: make([]Place, 0, len(places)),
		byName: make(map[string]int, len(places)),
	}
	for _, p := range places {
		if strings.TrimSpace(p.Name) == "" {
			return nil, errors.New("place name is required")
		}
		if err := p.Location.Validate(); err != nil {
			return nil, fmt.Errorf("place %q: %w", p.Name, err)
		}
		if _, dup := c.byName[p.Name]; dup {
			return nil, fmt.Errorf("place %q is listed twice", p.Name)
		}
		c.byName[p.Name] = len(c.places)
		c.places = append(c.places, p)
	}
	return c, nil
}

// Lookup returns the place with the exact display name.
func (c *PlaceCatalog) Lookup(name string) (Place, error) {
	idx, ok := c.byName[name]
	if !ok {
		return Place{}, fmt.Errorf("%w: %q", ErrPlaceNotFound, name)
	}
	return c.places[idx], nil
}

// Names returns the display names in catalog order.
func (c *PlaceCatalog) Names() []string {
	out := make([]string, len(c.places))
	for i, p := range c.places {
		out[i] = p.Name
	}
	return out
}

// Places returns a copy of the rows.
func (c *PlaceCatalog) Places() []Place {
	out := make([]Place, len(c.places))
	copy(out, c.places)
	return out
}

// Len returns the number of places.
func (c *PlaceCatalog) Len() int {
	return len(c.places)
}
