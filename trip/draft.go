// Package trip holds the departure/arrival selection of a taxi check and
// the map view derived from it. Drafts are plain values owned by the caller.
package trip

import (
	"fmt"

	"github.com/liamcoop/fairprice/advisor"
)

// Source records how an endpoint was chosen.
type Source string

const (
	SourcePlace  Source = "place"
	SourceSearch Source = "search"
	SourceClick  Source = "click"
	SourceCoords Source = "coordinates"
)

// Slot names one end of the trip.
type Slot string

const (
	SlotNone      Slot = ""
	SlotDeparture Slot = "departure"
	SlotArrival   Slot = "arrival"
)

// Endpoint is one end of the trip.
type Endpoint struct {
	Name   string        `json:"name,omitempty"`
	Point  advisor.Point `json:"point"`
	Source Source        `json:"source,omitempty"`
}

// Draft is a trip under construction.
type Draft struct {
	Departure *Endpoint `json:"departure,omitempty"`
	Arrival   *Endpoint `json:"arrival,omitempty"`
}

// Ready reports whether both endpoints are set.
func (d Draft) Ready() bool {
	return d.Departure != nil && d.Arrival != nil
}

// SetDeparture replaces the departure.
func (d *Draft) SetDeparture(e Endpoint) error {
	if err := e.Point.Validate(); err != nil {
		return fmt.Errorf("departure: %w", err)
	}
	d.Departure = &e
	return nil
}

// SetArrival replaces the arrival.
func (d *Draft) SetArrival(e Endpoint) error {
	if err := e.Point.Validate(); err != nil {
		return fmt.Errorf("arrival: %w", err)
	}
	d.Arrival = &e
	return nil
}

// Reset clears both endpoints.
func (d *Draft) Reset() {
	d.Departure = nil
	d.Arrival = nil
}

// ApplyClick fills the first empty slot with p. Once both are set a click
// changes nothing and SlotNone is returned.
func (d *Draft) ApplyClick(p advisor.Point) (Slot, error) {
	if err := p.Validate(); err != nil {
		return SlotNone, err
	}
	e := &Endpoint{Point: p, Source: SourceClick}
	switch {
	case d.Departure == nil:
		d.Departure = e
		return SlotDeparture, nil
	case d.Arrival == nil:
		d.Arrival = e
		return SlotArrival, nil
	default:
		return SlotNone, nil
	}
}
