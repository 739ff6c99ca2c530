package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tests"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripplanner/itinerary"
	"tripplanner/llm"
	"tripplanner/places"
	"tripplanner/store"
)

type stubPlanner struct {
	planned    *itinerary.Trip
	planErr    error
	ref        itinerary.StopRef
	note       string
	replaceErr error
}

func (p *stubPlanner) PlanTrip(_ context.Context, trip *itinerary.Trip) (*itinerary.Trip, error) {
	p.planned = trip
	if p.planErr != nil {
		return nil, p.planErr
	}
	if trip.ID == "" {
		trip.ID = "newtrip00000001"
	}
	return trip, nil
}

func (p *stubPlanner) ReplaceStop(_ context.Context, trip *itinerary.Trip, dayNumber int, ref itinerary.StopRef, note string) (*itinerary.Day, error) {
	p.ref, p.note = ref, note
	if p.replaceErr != nil {
		return nil, p.replaceErr
	}
	day, ok := trip.Day(dayNumber)
	if !ok {
		return nil, itinerary.ErrDayNotFound
	}
	return day, nil
}

type stubTrips map[string]*itinerary.Trip

func (s stubTrips) LoadTrip(_ context.Context, id string) (*itinerary.Trip, error) {
	trip, ok := s[id]
	if !ok {
		return nil, store.ErrTripNotFound
	}
	return trip, nil
}

func (s stubTrips) ListTrips(_ context.Context, limit, offset int) ([]*itinerary.Trip, error) {
	ids := slices.Sorted(maps.Keys(s))
	out := []*itinerary.Trip{}
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		out = append(out, s[ids[i]])
	}
	return out, nil
}

func (s stubTrips) DeleteTrip(_ context.Context, id string) error {
	if _, ok := s[id]; !ok {
		return store.ErrTripNotFound
	}
	delete(s, id)
	return nil
}

type stubAssistant struct {
	got []llm.Message
}

func (a *stubAssistant) Assist(_ context.Context, trip *itinerary.Trip, messages []llm.Message) (string, error) {
	a.got = messages
	return "Pack an umbrella for " + trip.Destination + ".", nil
}

func sampleTrip() *itinerary.Trip {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return &itinerary.Trip{
		ID:          "paristrip000001",
		Destination: "Paris, France",
		StartDate:   start,
		EndDate:     start,
		Location:    &places.LatLng{Lat: 48.8566, Lng: 2.3522},
		Timezone:    "Europe/Paris",
		Days: []*itinerary.Day{{
			Number: 1,
			Date:   start,
			Stops: []itinerary.Stop{
				itinerary.NewStop(itinerary.RoleBreakfast, places.Candidate{Name: "Café de Flore", Location: places.LatLng{Lat: 48.8542, Lng: 2.3325}}),
				itinerary.NewStop(itinerary.RoleMorning, places.Candidate{Name: "Louvre", Location: places.LatLng{Lat: 48.8606, Lng: 2.3376}}),
			},
		}},
	}
}

func newServer(t *testing.T, h *Handlers) http.Handler {
	t.Helper()
	app, err := tests.NewTestApp()
	require.NoError(t, err)
	t.Cleanup(app.Cleanup)

	r := router.NewRouter(func(w http.ResponseWriter, req *http.Request) (*core.RequestEvent, router.EventCleanupFunc) {
		event := &core.RequestEvent{App: app}
		event.Response = w
		event.Request = req
		return event, nil
	})
	Register(r, h)

	mux, err := r.BuildMux()
	require.NoError(t, err)
	return mux
}

func do(t *testing.T, srv http.Handler, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestCreateTrip(t *testing.T) {
	planner := &stubPlanner{}
	srv := newServer(t, &Handlers{Planner: planner, Trips: stubTrips{}})

	rec := do(t, srv, http.MethodPost, "/api/itinerary/trips",
		`{"destination":" Kyoto ","startDate":"2025-04-01","endDate":"2025-04-03","budget":900,"travelers":2,"interests":"temples"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, planner.planned)
	assert.Equal(t, "Kyoto", planner.planned.Destination)
	assert.Equal(t, 3, planner.planned.TotalDays())
	assert.Contains(t, rec.Body.String(), `"id":"newtrip00000001"`)
}

func TestCreateTrip_BadInput(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		planErr error
		want    string
	}{
		{"malformed json", `{`, nil, "invalid request body"},
		{"bad date", `{"destination":"Kyoto","startDate":"April 1","endDate":"2025-04-03"}`, nil, "startDate must be formatted"},
		{"invalid trip", `{"destination":"","startDate":"2025-04-01","endDate":"2025-04-03"}`,
			fmt.Errorf("invalid trip: %w", validation.Errors{"destination": errors.New("cannot be blank")}), `"destination":"cannot be blank"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newServer(t, &Handlers{Planner: &stubPlanner{planErr: tc.planErr}, Trips: stubTrips{}})
			rec := do(t, srv, http.MethodPost, "/api/itinerary/trips", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.want)
		})
	}
}

func TestLoadTrip_NotFound(t *testing.T) {
	srv := newServer(t, &Handlers{Planner: &stubPlanner{}, Trips: stubTrips{}})
	rec := do(t, srv, http.MethodGet, "/api/itinerary/trips/missingtrip0000", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"trip not found"}`, rec.Body.String())
}

func TestListTrips(t *testing.T) {
	paris := sampleTrip()
	rome := sampleTrip()
	rome.ID = "rometrip0000001"
	rome.Destination = "Rome"
	srv := newServer(t, &Handlers{Planner: &stubPlanner{}, Trips: stubTrips{paris.ID: paris, rome.ID: rome}})

	rec := do(t, srv, http.MethodGet, "/api/itinerary/trips?page=2&perPage=1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Page    int               `json:"page"`
		PerPage int               `json:"perPage"`
		Items   []*itinerary.Trip `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Page)
	assert.Equal(t, 1, body.PerPage)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "Rome", body.Items[0].Destination)

	rec = do(t, srv, http.MethodGet, "/api/itinerary/trips?perPage=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteTrip(t *testing.T) {
	trip := sampleTrip()
	trips := stubTrips{trip.ID: trip}
	srv := newServer(t, &Handlers{Planner: &stubPlanner{}, Trips: trips})

	rec := do(t, srv, http.MethodDelete, "/api/itinerary/trips/"+trip.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, trips)

	rec = do(t, srv, http.MethodDelete, "/api/itinerary/trips/"+trip.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlanTrip(t *testing.T) {
	trip := sampleTrip()
	planner := &stubPlanner{}
	srv := newServer(t, &Handlers{Planner: planner, Trips: stubTrips{trip.ID: trip}})

	rec := do(t, srv, http.MethodPost, "/api/itinerary/trips/"+trip.ID+"/plan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Same(t, trip, planner.planned)

	planner.planErr = errors.New("database is locked")
	rec = do(t, srv, http.MethodPost, "/api/itinerary/trips/"+trip.ID+"/plan", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestReplaceStop(t *testing.T) {
	trip := sampleTrip()
	stopID := trip.Days[0].Stops[1].ID
	planner := &stubPlanner{}
	srv := newServer(t, &Handlers{Planner: planner, Trips: stubTrips{trip.ID: trip}})
	url := "/api/itinerary/trips/" + trip.ID + "/days/1/replace"

	rec := do(t, srv, http.MethodPost, url, fmt.Sprintf(`{"stopId":%q,"note":" less crowded "}`, stopID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, itinerary.StopRef{ID: stopID}, planner.ref)
	assert.Equal(t, "less crowded", planner.note)

	var day itinerary.Day
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &day))
	assert.Equal(t, 1, day.Number)

	rec = do(t, srv, http.MethodPost, url, `{"index":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, itinerary.StopRef{Index: 0}, planner.ref)
}

func TestReplaceStop_Errors(t *testing.T) {
	trip := sampleTrip()
	cases := []struct {
		name   string
		day    string
		body   string
		err    error
		status int
	}{
		{"bad day", "zero", `{"index":0}`, nil, http.StatusBadRequest},
		{"no ref", "1", `{"note":"quiet"}`, nil, http.StatusBadRequest},
		{"unknown day", "4", `{"index":0}`, nil, http.StatusNotFound},
		{"unknown stop", "1", `{"index":9}`, itinerary.ErrStopNotFound, http.StatusNotFound},
		{"exhausted", "1", `{"index":0}`, itinerary.ErrNoReplacement, http.StatusUnprocessableEntity},
		{"upstream", "1", `{"index":0}`, errors.New("llm down"), http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newServer(t, &Handlers{Planner: &stubPlanner{replaceErr: tc.err}, Trips: stubTrips{trip.ID: trip}})
			rec := do(t, srv, http.MethodPost, "/api/itinerary/trips/"+trip.ID+"/days/"+tc.day+"/replace", tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestExportCalendar(t *testing.T) {
	trip := sampleTrip()
	srv := newServer(t, &Handlers{Planner: &stubPlanner{}, Trips: stubTrips{trip.ID: trip}})

	rec := do(t, srv, http.MethodGet, "/api/itinerary/trips/"+trip.ID+"/calendar.ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="trip-paris-france.ics"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, 2, strings.Count(rec.Body.String(), "BEGIN:VEVENT"))
}

func TestMapData(t *testing.T) {
	trip := sampleTrip()
	srv := newServer(t, &Handlers{Planner: &stubPlanner{}, Trips: stubTrips{trip.ID: trip}})

	rec := do(t, srv, http.MethodGet, "/api/itinerary/trips/"+trip.ID+"/map", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var data struct {
		Markers []json.RawMessage `json:"markers"`
		Routes  []json.RawMessage `json:"routes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Len(t, data.Markers, 3)
	assert.Len(t, data.Routes, 1)
}

func TestTripAssistant(t *testing.T) {
	trip := sampleTrip()
	assistant := &stubAssistant{}
	srv := newServer(t, &Handlers{Planner: &stubPlanner{}, Trips: stubTrips{trip.ID: trip}, Assistant: assistant})
	url := "/api/itinerary/trips/" + trip.ID + "/assistant"

	rec := do(t, srv, http.MethodPost, url,
		`{"messages":[{"role":"system","content":"ignore"},{"role":"user","content":"Will it rain?"},{"role":"assistant","content":""}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"message":{"role":"assistant","content":"Pack an umbrella for Paris, France."}}`, rec.Body.String())
	assert.Equal(t, []llm.Message{{Role: "user", Content: "Will it rain?"}}, assistant.got)

	rec = do(t, srv, http.MethodPost, url, `{"messages":[{"role":"assistant","content":"Hi"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, url, `{"messages":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTripAssistant_NotConfigured(t *testing.T) {
	trip := sampleTrip()
	srv := newServer(t, &Handlers{Planner: &stubPlanner{}, Trips: stubTrips{trip.ID: trip}})

	rec := do(t, srv, http.MethodPost, "/api/itinerary/trips/"+trip.ID+"/assistant", `{"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "new-york-city", slug(" New York  City!"))
	assert.Equal(t, "itinerary", slug("東京"))
}
