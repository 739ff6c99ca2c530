package routes

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/pocketbase/pocketbase/core"

	"tripplanner/trips"
)

func (h *Handlers) ExportCalendar(e *core.RequestEvent) error {
	trip, ok := tripFromEvent(e)
	if !ok {
		return errorJSON(e, http.StatusBadRequest, "trip context is missing")
	}

	var buf bytes.Buffer
	if err := trips.ExportCalendar(trip, &buf); err != nil {
		e.App.Logger().Error("ExportCalendar failed", "error", err, "tripId", trip.ID)
		return errorJSON(e, http.StatusInternalServerError, "could not export the calendar")
	}

	e.Response.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="trip-%s.ics"`, slug(trip.Destination)))
	return e.Blob(http.StatusOK, "text/calendar; charset=utf-8", buf.Bytes())
}

func (h *Handlers) MapData(e *core.RequestEvent) error {
	trip, ok := tripFromEvent(e)
	if !ok {
		return errorJSON(e, http.StatusBadRequest, "trip context is missing")
	}
	return e.JSON(http.StatusOK, trips.BuildMapData(trip))
}

// slug keeps ASCII letters and digits, joining words with dashes.
func slug(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})
	if len(words) == 0 {
		return "itinerary"
	}
	return strings.Join(words, "-")
}
