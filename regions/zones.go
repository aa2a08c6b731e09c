package regions

import "github.com/liamcoop/fairprice/advisor"

const (
	soukZoom        = 14
	maxZoom         = 19
	zoneFillOpacity = 0.6
)

// SoukZone is a market area shown on the bargaining-culture map. Radius is in
// screen pixels, so a zone keeps its size at every zoom level.
type SoukZone struct {
	Name    string        `json:"name" yaml:"name"`
	Center  advisor.Point `json:"center" yaml:"center"`
	Radius  int           `json:"radius" yaml:"radius"`
	Color   string        `json:"color" yaml:"color"`
	Tooltip string        `json:"tooltip,omitempty" yaml:"tooltip"`
	Note    string        `json:"note" yaml:"note"`
}

// ZoneMarker is a filled circle on the souk map.
type ZoneMarker struct {
	Center      advisor.Point `json:"center"`
	Radius      int           `json:"radius"`
	Color       string        `json:"color"`
	FillOpacity float64       `json:"fill_opacity"`
	Tooltip     string        `json:"tooltip"`
	Popup       string        `json:"popup"`
}

// SoukMap is everything a client needs to draw the souk zones.
type SoukMap struct {
	Center advisor.Point `json:"center"`
	Zoom   int           `json:"zoom"`
	Zones  []ZoneMarker  `json:"zones"`
}

// NewSoukMap centres on the first zone, one level closer than the city map.
// A region without zones gets an empty map over its centre.
func NewSoukMap(p Profile) SoukMap {
	m := SoukMap{Center: p.Center, Zoom: soukZoom, Zones: make([]ZoneMarker, 0, len(p.SoukZones))}
	if p.Zoom > 0 {
		m.Zoom = min(p.Zoom+1, maxZoom)
	}

	for i, z := range p.SoukZones {
		if i == 0 {
			m.Center = z.Center
		}
		tooltip := z.Tooltip
		if tooltip == "" {
			tooltip = z.Name
		}
		m.Zones = append(m.Zones, ZoneMarker{
			Center:      z.Center,
			Radius:      z.Radius,
			Color:       z.Color,
			FillOpacity: zoneFillOpacity,
			Tooltip:     tooltip,
			Popup:       z.Note,
		})
	}
	return m
}
