package trip

import "github.com/liamcoop/fairprice/advisor"

// DefaultZoom matches a city-level map.
const DefaultZoom = 13

const (
	departureColor = "red"
	arrivalColor   = "green"
	routeColor     = "blue"
	routeWeight    = 6
)

// Marker is a pin on the map.
type Marker struct {
	Slot    Slot          `json:"slot"`
	Point   advisor.Point `json:"point"`
	Tooltip string        `json:"tooltip"`
	Color   string        `json:"color"`
}

// Polyline is the straight line drawn between the endpoints.
type Polyline struct {
	Points []advisor.Point `json:"points"`
	Color  string          `json:"color"`
	Weight int             `json:"weight"`
}

// View is everything a client needs to draw the trip map.
type View struct {
	Center  advisor.Point `json:"center"`
	Zoom    int           `json:"zoom"`
	Markers []Marker      `json:"markers"`
	Route   *Polyline     `json:"route,omitempty"`
}

// NewView centres on the arrival, else the departure, else fallback.
func NewView(d Draft, fallback advisor.Point, zoom int) View {
	if zoom <= 0 {
		zoom = DefaultZoom
	}
	v := View{Center: fallback, Zoom: zoom, Markers: []Marker{}}

	if d.Departure != nil {
		v.Center = d.Departure.Point
		v.Markers = append(v.Markers, Marker{
			Slot:    SlotDeparture,
			Point:   d.Departure.Point,
			Tooltip: tooltip("Departure", d.Departure),
			Color:   departureColor,
		})
	}
	if d.Arrival != nil {
		v.Center = d.Arrival.Point
		v.Markers = append(v.Markers, Marker{
			Slot:    SlotArrival,
			Point:   d.Arrival.Point,
			Tooltip: tooltip("Arrival", d.Arrival),
			Color:   arrivalColor,
		})
		if d.Departure != nil {
			v.Route = &Polyline{
				Points: []advisor.Point{d.Departure.Point, d.Arrival.Point},
				Color:  routeColor,
				Weight: routeWeight,
			}
		}
	}
	return v
}

func tooltip(role string, e *Endpoint) string {
	if e.Name == "" {
		return role
	}
	return role + ": " + e.Name
}
