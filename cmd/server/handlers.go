package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/liamcoop/fairprice/advisor"
	"github.com/liamcoop/fairprice/catalog"
	"github.com/liamcoop/fairprice/classify"
	"github.com/liamcoop/fairprice/geocode"
	"github.com/liamcoop/fairprice/internal/logger"
	"github.com/liamcoop/fairprice/regions"
	"github.com/liamcoop/fairprice/rules"
	"github.com/liamcoop/fairprice/trip"
)

var errMissingEndpoint = errors.New("place, search or lat/lon is required")

// statusFor maps package errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, advisor.ErrInvalidPrice),
		errors.Is(err, advisor.ErrInvalidRange),
		errors.Is(err, advisor.ErrInvalidPoint),
		errors.Is(err, advisor.ErrInvalidConfig),
		errors.Is(err, rules.ErrInvalidRule),
		errors.Is(err, regions.ErrInvalidDefinition),
		errors.Is(err, errMissingEndpoint):
		return http.StatusBadRequest
	case errors.Is(err, regions.ErrRegionNotFound),
		errors.Is(err, catalog.ErrItemNotFound),
		errors.Is(err, catalog.ErrPlaceNotFound),
		errors.Is(err, catalog.ErrNoMatch),
		errors.Is(err, geocode.ErrNotFound),
		errors.Is(err, rules.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, rules.ErrRuleExists):
		return http.StatusConflict
	case errors.Is(err, geocode.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondFailure responds with the status mapped from err. Unexpected errors
// are logged with the request context.
func respondFailure(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), message, "error", err)
	}
	respondError(w, status, message, err)
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "healthy",
		Regions: len(s.regions.List()),
		Checks:  map[string]string{},
	}
	status := http.StatusOK

	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			resp.Checks["database"] = err.Error()
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		} else {
			resp.Checks["database"] = "ok"
		}
	}
	if s.rdb != nil {
		// searches still work without the cache
		if err := s.rdb.Ping(r.Context()).Err(); err != nil {
			resp.Checks["geocode_cache"] = err.Error()
		} else {
			resp.Checks["geocode_cache"] = "ok"
		}
	}

	respondJSON(w, status, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, logger.Snapshot())
}

func (s *Server) handleListRegions(w http.ResponseWriter, r *http.Request) {
	list := s.regions.List()
	out := make([]RegionSummary, 0, len(list))
	for _, region := range list {
		out = append(out, newRegionSummary(region))
	}
	respondJSON(w, http.StatusOK, RegionsListResponse{Regions: out})
}

func (s *Server) handleGetRegion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, newRegionResponse(regionFrom(r.Context())))
}

// Create region handler. An existing region with the same id is replaced.
func (s *Server) handleCreateRegion(w http.ResponseWriter, r *http.Request) {
	var def regions.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	region, err := s.regions.Create(r.Context(), def)
	if err != nil {
		respondFailure(w, r, "failed to create region", err)
		return
	}

	respondJSON(w, http.StatusCreated, newRegionResponse(region))
}

func (s *Server) handleDeleteRegion(w http.ResponseWriter, r *http.Request) {
	region := regionFrom(r.Context())

	if err := s.regions.Delete(r.Context(), region.Profile.ID); err != nil {
		respondFailure(w, r, "failed to delete region", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSoukMap(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, regions.NewSoukMap(regionFrom(r.Context()).Profile))
}

// Update fare handler. Takes effect for every check started afterwards.
func (s *Server) handleUpdateFare(w http.ResponseWriter, r *http.Request) {
	region := regionFrom(r.Context())

	var fare advisor.FareConfig
	if err := json.NewDecoder(r.Body).Decode(&fare); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	updated, err := s.regions.UpdateFare(r.Context(), region.Profile.ID, fare)
	if err != nil {
		respondFailure(w, r, "failed to update fare", err)
		return
	}

	respondJSON(w, http.StatusOK, updated.Profile.Fare)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	region := regionFrom(r.Context())

	items := region.Items.Items()
	out := make([]ItemEntry, 0, len(items))
	for i, item := range items {
		out = append(out, ItemEntry{Index: i, Item: item, Label: item.Label()})
	}
	respondJSON(w, http.StatusOK, ItemsListResponse{Items: out})
}

// readPhoto accepts a multipart form with a "photo" file or the raw image as
// the request body. No photo is not an error.
func readPhoto(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return io.ReadAll(r.Body)
	}

	file, _, err := r.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// Classify handler. Always answers 200 with a default selection; the client
// confirms or overrides it before evaluating.
func (s *Server) handleClassifyItem(w http.ResponseWriter, r *http.Request) {
	region := regionFrom(r.Context())

	photo, err := readPhoto(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid photo upload", err)
		return
	}

	suggestion := classify.Suggest(r.Context(), s.classifier, photo, region.Items, region.Threshold(s.cfg.ConfidenceThreshold))
	item, err := region.Items.Get(suggestion.DefaultIndex)
	if err != nil {
		respondFailure(w, r, "failed to select default item", err)
		return
	}

	respondJSON(w, http.StatusOK, ClassifyResponse{Suggestion: suggestion, DefaultItem: item})
}

func (s *Server) handleEvaluateItem(w http.ResponseWriter, r *http.Request) {
	region := regionFrom(r.Context())

	var req EvaluateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ItemIndex == nil {
		respondError(w, http.StatusBadRequest, "item_index is required", nil)
		return
	}

	asked, err := advisor.ParsePrice(req.AskedPrice)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Please enter numbers only", err)
		return
	}

	check, err := region.EvaluateItem(r.Context(), *req.ItemIndex, asked)
	if err != nil {
		respondFailure(w, r, "failed to evaluate price", err)
		return
	}

	respondJSON(w, http.StatusOK, check)
}

func (s *Server) handleListPlaces(w http.ResponseWriter, r *http.Request) {
	region := regionFrom(r.Context())
	respondJSON(w, http.StatusOK, PlacesResponse{Places: region.Places.Places()})
}

// Geocode handler. A miss is 404, a provider failure 503.
func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	region := regionFrom(r.Context())

	if s.nominatim == nil {
		respondError(w, http.StatusServiceUnavailable, "search is not configured", nil)
		return
	}

	res, err := geocode.Lookup(r.Context(), s.geocoder(region), r.URL.Query().Get("q"))
	switch {
	case errors.Is(err, geocode.ErrNotFound):
		respondError(w, http.StatusNotFound, "location not found", err)
		return
	case errors.Is(err, geocode.ErrUnavailable):
		logger.WarnContext(r.Context(), "geocoder unavailable", "error", err)
		respondError(w, http.StatusServiceUnavailable, "search service unavailable, try again", err)
		return
	case err != nil:
		respondFailure(w, r, "search failed", err)
		return
	}

	respondJSON(w, http.StatusOK, GeocodeResponse{
		Name:        res.Name(),
		DisplayName: res.DisplayName,
		Location:    res.Point(),
	})
}

// checkedDraft re-applies the endpoints of a client-held draft so that
// invalid coordinates are rejected.
func checkedDraft(in trip.Draft) (trip.Draft, error) {
	var d trip.Draft
	if in.Departure != nil {
		if err := d.SetDeparture(*in.Departure); err != nil {
			return trip.Draft{}, err
		}
	}
	if in.Arrival != nil {
		if err := d.SetArrival(*in.Arrival); err != nil {
			return trip.Draft{}, err
		}
	}
	return d, nil
}

func tripResponse(region *regions.Region, d trip.Draft, changed trip.Slot) TripResponse {
	return TripResponse{
		Draft:   d,
		Changed: changed,
		Ready:   d.Ready(),
		View:    trip.NewView(d, region.Profile.Center, region.Profile.Zoom),
	}
}

func (s *Server) handleTripClick(w http.ResponseWriter, r *http.Request) {
	region := regionFrom(r.Context())

	var req TripClickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	draft, err := checkedDraft(req.Draft)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid draft", err)
		return
	}
	changed, err := draft.ApplyClick(req.Click)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid click", err)
		return
	}

	respondJSON(w, http.StatusOK, tripResponse(region, draft, changed))
}

func (s *Server) handleTripView(w http.ResponseWriter, r *http.Request) {
	region := regionFrom(r.Context())

	var req TripViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	draft, err := checkedDraft(req.Draft)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid draft", err)
		return
	}

	respondJSON(w, http.StatusOK, tripResponse(region, draft, trip.SlotNone))
}

func (s *Server) resolveEndpoint(ctx context.Context, region *regions.Region, role string, e EndpointRequest) (trip.Endpoint, error) {
	switch {
	case e.Place != "":
		p, err := region.Places.Lookup(e.Place)
		if err != nil {
			return trip.Endpoint{}, fmt.Errorf("%s: %w", role, err)
		}
		return trip.Endpoint{Name: p.Name, Point: p.Location, Source: trip.SourcePlace}, nil
	case e.Search != "":
		if s.nominatim == nil {
			return trip.Endpoint{}, fmt.Errorf("%s: %w: search is not configured", role, geocode.ErrUnavailable)
		}
		res, err := geocode.Lookup(ctx, s.geocoder(region), e.Search)
		if err != nil {
			return trip.Endpoint{}, fmt.Errorf("%s: %w", role, err)
		}
		return trip.Endpoint{Name: res.Name(), Point: res.Point(), Source: trip.SourceSearch}, nil
	case e.Lat != nil && e.Lon != nil:
		pt := advisor.Point{Lat: *e.Lat, Lon: *e.Lon}
		if err := pt.Validate(); err != nil {
			return trip.Endpoint{}, fmt.Errorf("%s: %w", role, err)
		}
		return trip.Endpoint{Point: pt, Source: trip.SourceCoords}, nil
	default:
		return trip.Endpoint{}, fmt.Errorf("%s: %w", role, errMissingEndpoint)
	}
}

func (s *Server) handleEvaluateTaxi(w http.ResponseWriter, r *http.Request) {
	region := regionFrom(r.Context())

	var req EvaluateTaxiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	dep, err := s.resolveEndpoint(r.Context(), region, "departure", req.Departure)
	if err != nil {
		respondFailure(w, r, "invalid departure", err)
		return
	}
	arr, err := s.resolveEndpoint(r.Context(), region, "arrival", req.Arrival)
	if err != nil {
		respondFailure(w, r, "invalid arrival", err)
		return
	}

	asked, err := advisor.ParsePrice(req.AskedPrice)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Please enter numbers only", err)
		return
	}

	check, err := region.EvaluateTaxi(r.Context(), dep.Point, arr.Point, asked, req.Night)
	if err != nil {
		respondFailure(w, r, "failed to evaluate fare", err)
		return
	}

	respondJSON(w, http.StatusOK, EvaluateTaxiResponse{Departure: dep, Arrival: arr, TaxiCheck: check})
}

// Create advisory rule handler
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	region := regionFrom(r.Context())

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	now := time.Now().UTC()
	rule := &rules.Rule{
		ID:         uuid.NewString(),
		Name:       req.Name,
		Scope:      req.Scope,
		Expression: req.Expression,
		Message:    req.Message,
		Active:     req.Active == nil || *req.Active,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// AddRule validates and compiles before storing
	if err := region.Rules.AddRule(r.Context(), rule); err != nil {
		respondFailure(w, r, "failed to add rule", err)
		return
	}

	logger.From(r.Context()).Info("advisory rule created", "rule_id", rule.ID, "scope", rule.Scope)
	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	region := regionFrom(r.Context())

	list, err := region.Rules.Rules(r.Context())
	if err != nil {
		respondFailure(w, r, "failed to list rules", err)
		return
	}
	if list == nil {
		list = []*rules.Rule{}
	}
	respondJSON(w, http.StatusOK, RulesListResponse{Rules: list})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	region := regionFrom(r.Context())

	rule, err := region.Rules.Rule(r.Context(), chi.URLParam(r, "ruleId"))
	if err != nil {
		respondFailure(w, r, "rule not found", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

// Update advisory rule handler. Omitted fields keep their stored value.
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	region := regionFrom(r.Context())
	ruleID := chi.URLParam(r, "ruleId")

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	existing, err := region.Rules.Rule(r.Context(), ruleID)
	if err != nil {
		respondFailure(w, r, "rule not found", err)
		return
	}

	rule := *existing
	if req.Name != "" {
		rule.Name = req.Name
	}
	if req.Scope != "" {
		rule.Scope = req.Scope
	}
	if req.Expression != "" {
		rule.Expression = req.Expression
	}
	if req.Message != "" {
		rule.Message = req.Message
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}
	rule.UpdatedAt = time.Now().UTC()

	if err := region.Rules.UpdateRule(r.Context(), &rule); err != nil {
		respondFailure(w, r, "failed to update rule", err)
		return
	}

	respondJSON(w, http.StatusOK, &rule)
}

// Dry-run handler for one rule, active or not. A failing expression is
// reported in the result rather than as an error status.
func (s *Server) handleEvaluateRule(w http.ResponseWriter, r *http.Request) {
	region := regionFrom(r.Context())

	var req EvaluateRulesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	res, err := region.Rules.Evaluate(r.Context(), chi.URLParam(r, "ruleId"), req.facts())
	if err != nil {
		respondFailure(w, r, "failed to evaluate rule", err)
		return
	}
	respondJSON(w, http.StatusOK, newEvaluationResponse(res))
}

// Dry-run handler for every active rule of the region, whatever its scope.
func (s *Server) handleEvaluateRules(w http.ResponseWriter, r *http.Request) {
	region := regionFrom(r.Context())

	var req EvaluateRulesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	results, err := region.Rules.EvaluateAll(r.Context(), req.facts())
	if err != nil {
		respondFailure(w, r, "failed to evaluate rules", err)
		return
	}
	out := make([]EvaluationResponse, 0, len(results))
	for _, res := range results {
		out = append(out, newEvaluationResponse(res))
	}
	respondJSON(w, http.StatusOK, EvaluationsResponse{Results: out})
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	region := regionFrom(r.Context())

	if err := region.Rules.DeleteRule(r.Context(), chi.URLParam(r, "ruleId")); err != nil {
		respondFailure(w, r, "failed to delete rule", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
