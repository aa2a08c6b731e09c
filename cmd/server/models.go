package main

import (
	"encoding/json"
	"net/http"

	"github.com/liamcoop/fairprice/advisor"
	"github.com/liamcoop/fairprice/catalog"
	"github.com/liamcoop/fairprice/classify"
	"github.com/liamcoop/fairprice/internal/logger"
	"github.com/liamcoop/fairprice/regions"
	"github.com/liamcoop/fairprice/rules"
	"github.com/liamcoop/fairprice/trip"
)

// API request and response models

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string            `json:"status" example:"healthy"`
	Regions int               `json:"regions" example:"2"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// RegionSummary represents a region in list responses
type RegionSummary struct {
	ID       string        `json:"id" example:"rabat"`
	Name     string        `json:"name" example:"Rabat"`
	Currency string        `json:"currency" example:"MAD"`
	Center   advisor.Point `json:"center"`
	Zoom     int           `json:"zoom" example:"13"`
	Items    int           `json:"items" example:"9"`
	Places   int           `json:"places" example:"40"`
}

// RegionsListResponse represents the response for listing regions
type RegionsListResponse struct {
	Regions []RegionSummary `json:"regions"`
}

// RegionResponse is a region profile with its catalog sizes
type RegionResponse struct {
	regions.Profile
	Items  int `json:"items"`
	Places int `json:"places"`
}

func newRegionResponse(r *regions.Region) RegionResponse {
	return RegionResponse{Profile: r.Profile, Items: r.Items.Len(), Places: r.Places.Len()}
}

func newRegionSummary(r *regions.Region) RegionSummary {
	return RegionSummary{
		ID:       r.Profile.ID,
		Name:     r.Profile.Name,
		Currency: r.Profile.Currency,
		Center:   r.Profile.Center,
		Zoom:     r.Profile.Zoom,
		Items:    r.Items.Len(),
		Places:   r.Places.Len(),
	}
}

// ItemEntry is one selectable catalog row
type ItemEntry struct {
	Index int `json:"index" example:"0"`
	catalog.Item
	Label string `json:"label" example:"Copper lantern - فانوس نحاسي"`
}

// ItemsListResponse represents the response for listing items
type ItemsListResponse struct {
	Items []ItemEntry `json:"items"`
}

// EvaluateItemRequest represents the request body for an item price check.
// The price is a string so that "12a" or "1.5" can be rejected as typed.
type EvaluateItemRequest struct {
	ItemIndex  *int   `json:"item_index" example:"0"`
	AskedPrice string `json:"asked_price" example:"300"`
}

// ClassifyResponse is the suggested default item for a photo. DefaultItem is
// the row at DefaultIndex whatever the status, as a selection control shows it.
type ClassifyResponse struct {
	classify.Suggestion
	DefaultItem catalog.Item `json:"default_item"`
}

// PlacesResponse represents the response for listing places
type PlacesResponse struct {
	Places []catalog.Place `json:"places"`
}

// GeocodeResponse represents a resolved search
type GeocodeResponse struct {
	Name        string        `json:"name" example:"Kasbah of the Udayas"`
	DisplayName string        `json:"display_name"`
	Location    advisor.Point `json:"location"`
}

// TripClickRequest represents a map click on the current draft
type TripClickRequest struct {
	Draft trip.Draft    `json:"draft"`
	Click advisor.Point `json:"click"`
}

// TripViewRequest represents a request to render the current draft
type TripViewRequest struct {
	Draft trip.Draft `json:"draft"`
}

// TripResponse carries the draft back with the map to draw
type TripResponse struct {
	Draft   trip.Draft `json:"draft"`
	Changed trip.Slot  `json:"changed,omitempty" example:"departure"`
	Ready   bool       `json:"ready"`
	View    trip.View  `json:"view"`
}

// EndpointRequest names a trip end by place, by free-text search or by
// coordinates, in that order of precedence
type EndpointRequest struct {
	Place  string   `json:"place,omitempty" example:"Rabat Ville Train Station"`
	Search string   `json:"search,omitempty" example:"Kasbah des Oudaias"`
	Lat    *float64 `json:"lat,omitempty" example:"34.0142"`
	Lon    *float64 `json:"lon,omitempty" example:"-6.8365"`
}

// EvaluateTaxiRequest represents the request body for a taxi fare check
type EvaluateTaxiRequest struct {
	Departure  EndpointRequest `json:"departure"`
	Arrival    EndpointRequest `json:"arrival"`
	AskedPrice string          `json:"asked_price" example:"60"`
	Night      bool            `json:"night" example:"false"`
}

// EvaluateTaxiResponse is the fare check with the resolved endpoints
type EvaluateTaxiResponse struct {
	Departure trip.Endpoint `json:"departure"`
	Arrival   trip.Endpoint `json:"arrival"`
	regions.TaxiCheck
}

// RuleRequest represents the request body for creating or updating an advisory rule
type RuleRequest struct {
	Name       string      `json:"name" example:"Night airport run"`
	Scope      rules.Scope `json:"scope" example:"taxi"`
	Expression string      `json:"expression" example:"trip.night && trip.airport_trip"`
	Message    string      `json:"message" example:"Agree the fare before leaving"`
	Active     *bool       `json:"active,omitempty" example:"true"`
}

// EvaluateRulesRequest carries the facts of a dry run. Numbers are read as
// doubles, as in real checks.
type EvaluateRulesRequest struct {
	Item map[string]any `json:"item,omitempty"`
	Trip map[string]any `json:"trip,omitempty"`
}

func (req EvaluateRulesRequest) facts() map[string]any {
	facts := map[string]any{"item": map[string]any{}, "trip": map[string]any{}}
	if req.Item != nil {
		facts["item"] = req.Item
	}
	if req.Trip != nil {
		facts["trip"] = req.Trip
	}
	return facts
}

// EvaluationResponse is the outcome of one rule in a dry run
type EvaluationResponse struct {
	RuleID  string `json:"rule_id" example:"night-airport"`
	Name    string `json:"name" example:"Night airport run"`
	Matched bool   `json:"matched" example:"true"`
	Error   string `json:"error,omitempty" example:"no such key: weight"`
}

func newEvaluationResponse(res *rules.EvaluationResult) EvaluationResponse {
	out := EvaluationResponse{RuleID: res.RuleID, Name: res.RuleName, Matched: res.Matched}
	if res.Error != nil {
		out.Error = res.Error.Error()
	}
	return out
}

// EvaluationsResponse lists the outcome of every active rule in a dry run
type EvaluationsResponse struct {
	Results []EvaluationResponse `json:"results"`
}

// RulesListResponse represents the response for listing advisory rules
type RulesListResponse struct {
	Rules []*rules.Rule `json:"rules"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"invalid asked_price"`
	Details string `json:"details,omitempty" example:"price must be a non-negative whole number: \"12a\""`
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("failed to write response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}
