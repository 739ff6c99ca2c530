package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"

	"tripplanner/itinerary"
	"tripplanner/llm"
	"tripplanner/store"
)

// Planner is the slice of the orchestrator the handlers drive.
type Planner interface {
	PlanTrip(ctx context.Context, trip *itinerary.Trip) (*itinerary.Trip, error)
	ReplaceStop(ctx context.Context, trip *itinerary.Trip, dayNumber int, ref itinerary.StopRef, note string) (*itinerary.Day, error)
}

type Assistant interface {
	Assist(ctx context.Context, trip *itinerary.Trip, messages []llm.Message) (string, error)
}

type TripStore interface {
	LoadTrip(ctx context.Context, id string) (*itinerary.Trip, error)
	ListTrips(ctx context.Context, limit, offset int) ([]*itinerary.Trip, error)
	DeleteTrip(ctx context.Context, id string) error
}

// Handlers serves the itinerary API. Assistant may be nil, in which case the
// assistant endpoint answers 503.
type Handlers struct {
	Planner   Planner
	Trips     TripStore
	Assistant Assistant
}

// Register mounts the itinerary API under /api/itinerary.
func Register(r *router.Router[*core.RequestEvent], h *Handlers) {
	g := r.Group("/api/itinerary")
	g.GET("/trips", h.ListTrips)
	g.POST("/trips", h.CreateTrip)

	trip := g.Group("/trips/{tripId}")
	trip.BindFunc(h.LoadTrip)
	trip.GET("", h.GetTrip)
	trip.DELETE("", h.DeleteTrip)
	trip.POST("/plan", h.PlanTrip)
	trip.POST("/days/{day}/replace", h.ReplaceStop)
	trip.GET("/calendar.ics", h.ExportCalendar)
	trip.GET("/map", h.MapData)
	trip.POST("/assistant", h.TripAssistant)
}

// LoadTrip resolves the {tripId} path segment and stores the trip under the
// "trip" key for the handlers that follow.
func (h *Handlers) LoadTrip(e *core.RequestEvent) error {
	id := e.Request.PathValue("tripId")
	trip, err := h.Trips.LoadTrip(e.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrTripNotFound) {
			return errorJSON(e, http.StatusNotFound, "trip not found")
		}
		e.App.Logger().Error("LoadTrip failed", "error", err, "tripId", id)
		return errorJSON(e, http.StatusInternalServerError, "unable to load trip")
	}
	e.Set("trip", trip)
	return e.Next()
}

func tripFromEvent(e *core.RequestEvent) (*itinerary.Trip, bool) {
	trip, ok := e.Get("trip").(*itinerary.Trip)
	return trip, ok && trip != nil
}

func errorJSON(e *core.RequestEvent, status int, message string) error {
	return e.JSON(status, map[string]string{
		"error": message,
	})
}
