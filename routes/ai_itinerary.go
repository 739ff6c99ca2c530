package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pocketbase/pocketbase/core"

	"tripplanner/itinerary"
)

const dateLayout = "2006-01-02"

type createTripRequest struct {
	Destination string  `json:"destination"`
	StartDate   string  `json:"startDate"`
	EndDate     string  `json:"endDate"`
	Budget      float64 `json:"budget"`
	Travelers   int     `json:"travelers"`
	Interests   string  `json:"interests"`
	Extras      string  `json:"extras"`
}

func (r createTripRequest) trip() (*itinerary.Trip, error) {
	start, err := time.Parse(dateLayout, strings.TrimSpace(r.StartDate))
	if err != nil {
		return nil, fmt.Errorf("startDate must be formatted as %s", dateLayout)
	}
	end, err := time.Parse(dateLayout, strings.TrimSpace(r.EndDate))
	if err != nil {
		return nil, fmt.Errorf("endDate must be formatted as %s", dateLayout)
	}
	return &itinerary.Trip{
		Destination: strings.TrimSpace(r.Destination),
		StartDate:   start,
		EndDate:     end,
		Budget:      r.Budget,
		Travelers:   r.Travelers,
		Interests:   strings.TrimSpace(r.Interests),
		Extras:      strings.TrimSpace(r.Extras),
	}, nil
}

type replaceStopRequest struct {
	StopID string `json:"stopId"`
	Index  *int   `json:"index"`
	Note   string `json:"note"`
}

// CreateTrip stores a new trip and plans it in the same request.
func (h *Handlers) CreateTrip(e *core.RequestEvent) error {
	var req createTripRequest
	if err := json.NewDecoder(e.Request.Body).Decode(&req); err != nil {
		return errorJSON(e, http.StatusBadRequest, "invalid request body")
	}

	trip, err := req.trip()
	if err != nil {
		return errorJSON(e, http.StatusBadRequest, err.Error())
	}

	return h.plan(e, trip, http.StatusCreated)
}

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// ListTrips pages through stored trips, newest first. Days are not included.
func (h *Handlers) ListTrips(e *core.RequestEvent) error {
	page, perPage := 1, defaultPerPage
	query := e.Request.URL.Query()
	if v := query.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return errorJSON(e, http.StatusBadRequest, "page must be a positive number")
		}
		page = n
	}
	if v := query.Get("perPage"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return errorJSON(e, http.StatusBadRequest, "perPage must be a positive number")
		}
		perPage = min(n, maxPerPage)
	}

	trips, err := h.Trips.ListTrips(e.Request.Context(), perPage, (page-1)*perPage)
	if err != nil {
		e.App.Logger().Error("ListTrips failed", "error", err)
		return errorJSON(e, http.StatusInternalServerError, "unable to list trips")
	}
	return e.JSON(http.StatusOK, map[string]any{
		"page":    page,
		"perPage": perPage,
		"items":   trips,
	})
}

func (h *Handlers) DeleteTrip(e *core.RequestEvent) error {
	trip, ok := tripFromEvent(e)
	if !ok {
		return errorJSON(e, http.StatusBadRequest, "trip context is missing")
	}
	if err := h.Trips.DeleteTrip(e.Request.Context(), trip.ID); err != nil {
		e.App.Logger().Error("DeleteTrip failed", "error", err, "tripId", trip.ID)
		return errorJSON(e, http.StatusInternalServerError, "unable to delete trip")
	}
	return e.NoContent(http.StatusNoContent)
}

func (h *Handlers) GetTrip(e *core.RequestEvent) error {
	trip, ok := tripFromEvent(e)
	if !ok {
		return errorJSON(e, http.StatusBadRequest, "trip context is missing")
	}
	return e.JSON(http.StatusOK, trip)
}

// PlanTrip re-plans a stored trip from scratch, keeping its day records.
func (h *Handlers) PlanTrip(e *core.RequestEvent) error {
	trip, ok := tripFromEvent(e)
	if !ok {
		return errorJSON(e, http.StatusBadRequest, "trip context is missing")
	}
	return h.plan(e, trip, http.StatusOK)
}

func (h *Handlers) plan(e *core.RequestEvent, trip *itinerary.Trip, status int) error {
	planned, err := h.Planner.PlanTrip(e.Request.Context(), trip)
	if err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			return e.JSON(http.StatusBadRequest, map[string]any{
				"error":  "invalid trip",
				"fields": verrs,
			})
		}
		e.App.Logger().Error("PlanTrip failed", "error", err, "tripId", trip.ID)
		return errorJSON(e, http.StatusInternalServerError, "could not plan the trip")
	}
	return e.JSON(status, planned)
}

// ReplaceStop swaps one stop of a day. The stop is picked by stopId when the
// body has one, otherwise by index.
func (h *Handlers) ReplaceStop(e *core.RequestEvent) error {
	trip, ok := tripFromEvent(e)
	if !ok {
		return errorJSON(e, http.StatusBadRequest, "trip context is missing")
	}

	dayNumber, err := strconv.Atoi(e.Request.PathValue("day"))
	if err != nil || dayNumber < 1 {
		return errorJSON(e, http.StatusBadRequest, "day must be a positive number")
	}

	var req replaceStopRequest
	if err := json.NewDecoder(e.Request.Body).Decode(&req); err != nil {
		return errorJSON(e, http.StatusBadRequest, "invalid request body")
	}
	if req.StopID == "" && req.Index == nil {
		return errorJSON(e, http.StatusBadRequest, "stopId or index is required")
	}

	ref := itinerary.StopRef{ID: strings.TrimSpace(req.StopID)}
	if req.Index != nil {
		ref.Index = *req.Index
	}

	day, err := h.Planner.ReplaceStop(e.Request.Context(), trip, dayNumber, ref, strings.TrimSpace(req.Note))
	switch {
	case err == nil:
		return e.JSON(http.StatusOK, day)
	case errors.Is(err, itinerary.ErrDayNotFound), errors.Is(err, itinerary.ErrStopNotFound):
		return errorJSON(e, http.StatusNotFound, err.Error())
	case errors.Is(err, itinerary.ErrNoReplacement):
		return errorJSON(e, http.StatusUnprocessableEntity, err.Error())
	default:
		e.App.Logger().Error("ReplaceStop failed", "error", err, "tripId", trip.ID, "day", dayNumber)
		return errorJSON(e, http.StatusBadGateway, "could not replace the stop")
	}
}
