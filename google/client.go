package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"tripplanner/itinerary"
	"tripplanner/places"
	"tripplanner/resilient"
)

const (
	mapsBaseURL    = "https://maps.googleapis.com/maps/api"
	weatherBaseURL = "https://weather.googleapis.com/v1"

	forecastDays = 10
	maxBodyBytes = 4 << 20
)

const forecastOutOfRange = "Forecast not available for this date (beyond 10-day range)."

// APIError is a non-OK answer from a Google endpoint.
type APIError struct {
	HTTPStatus int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "google api error: " + e.Status
	}
	return fmt.Sprintf("google api error: %s: %s", e.Status, e.Message)
}

// retryable reports whether the same request may succeed later.
func (e *APIError) retryable() bool {
	switch e.Status {
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR", "RESOURCE_EXHAUSTED", "UNAVAILABLE", "INTERNAL":
		return true
	}
	return e.HTTPStatus == http.StatusTooManyRequests || e.HTTPStatus >= 500
}

// Client talks to the Places, Geocoding, Distance Matrix and Weather APIs
// with one API key.
type Client struct {
	apiKey     string
	mapsURL    string
	weatherURL string
	language   string
	httpClient *http.Client
	caller     *resilient.Caller
	logger     *slog.Logger
}

var (
	_ places.Searcher       = (*Client)(nil)
	_ itinerary.GeoServices = (*Client)(nil)
)

type Option func(*Client)

func WithBaseURLs(maps, weather string) Option {
	return func(c *Client) {
		c.mapsURL = strings.TrimRight(maps, "/")
		c.weatherURL = strings.TrimRight(weather, "/")
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithCaller(caller *resilient.Caller) Option {
	return func(c *Client) { c.caller = caller }
}

func WithLanguage(code string) Option {
	return func(c *Client) { c.language = code }
}

func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		mapsURL:    mapsBaseURL,
		weatherURL: weatherBaseURL,
		language:   "en",
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.caller == nil {
		c.caller = &resilient.Caller{}
	}
	c.logger = c.caller.Logger
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Search runs a Places text search biased to anchor.
func (c *Client) Search(ctx context.Context, query string, anchor places.LatLng, radiusMeters int) ([]places.Candidate, error) {
	params := url.Values{"query": {query}, "language": {c.language}}
	if radiusMeters > 0 {
		params.Set("location", anchor.String())
		params.Set("radius", strconv.Itoa(radiusMeters))
	}

	res, err := c.get(ctx, "places.textsearch", c.mapsURL+"/place/textsearch/json", params, checkMapsStatus)
	if err != nil {
		return nil, err
	}

	var out []places.Candidate
	res.Get("results").ForEach(func(_, r gjson.Result) bool {
		candidate := places.Candidate{
			PlaceID: r.Get("place_id").String(),
			Name:    r.Get("name").String(),
			Address: r.Get("formatted_address").String(),
			Location: places.LatLng{
				Lat: r.Get("geometry.location.lat").Float(),
				Lng: r.Get("geometry.location.lng").Float(),
			},
			Rating:         r.Get("rating").Float(),
			BusinessStatus: r.Get("business_status").String(),
		}
		if price := r.Get("price_level"); price.Exists() {
			candidate.PriceLevel = places.PriceLevel(int(price.Int()))
		}
		if candidate.Name != "" {
			out = append(out, candidate)
		}
		return true
	})
	return out, nil
}

// Geocode returns the coordinates of the first geocoding result, or
// places.ErrNotFound.
func (c *Client) Geocode(ctx context.Context, address string) (places.LatLng, error) {
	params := url.Values{"address": {address}, "language": {c.language}}
	res, err := c.get(ctx, "geocode", c.mapsURL+"/geocode/json", params, checkMapsStatus)
	if err != nil {
		return places.LatLng{}, err
	}

	loc := res.Get("results.0.geometry.location")
	if !loc.Exists() {
		return places.LatLng{}, fmt.Errorf("geocode %q: %w", address, places.ErrNotFound)
	}
	return places.LatLng{Lat: loc.Get("lat").Float(), Lng: loc.Get("lng").Float()}, nil
}

// DistanceMatrix returns the metric distance between every pair of points.
// Pairs Google cannot route are +Inf.
func (c *Client) DistanceMatrix(ctx context.Context, points []places.LatLng) ([][]float64, error) {
	coords := make([]string, len(points))
	for i, p := range points {
		coords[i] = p.String()
	}
	joined := strings.Join(coords, "|")
	params := url.Values{"origins": {joined}, "destinations": {joined}, "units": {"metric"}}

	res, err := c.get(ctx, "distancematrix", c.mapsURL+"/distancematrix/json", params, checkMapsStatus)
	if err != nil {
		return nil, err
	}

	rows := res.Get("rows").Array()
	if len(rows) != len(points) {
		return nil, fmt.Errorf("distance matrix returned %d rows for %d points", len(rows), len(points))
	}
	matrix := make([][]float64, len(rows))
	for i, row := range rows {
		elements := row.Get("elements").Array()
		matrix[i] = make([]float64, len(elements))
		for j, el := range elements {
			if el.Get("status").String() == "OK" {
				matrix[i][j] = el.Get("distance.value").Float()
			} else {
				matrix[i][j] = math.Inf(1)
			}
		}
	}
	return matrix, nil
}

// Forecast looks date up in the ten-day daily forecast at the given point.
// A date outside the window is not an error; it yields an unavailable
// forecast with an explanatory note.
func (c *Client) Forecast(ctx context.Context, date time.Time, at places.LatLng) (itinerary.Weather, error) {
	params := url.Values{
		"location.latitude":  {strconv.FormatFloat(at.Lat, 'f', -1, 64)},
		"location.longitude": {strconv.FormatFloat(at.Lng, 'f', -1, 64)},
		"days":               {strconv.Itoa(forecastDays)},
		"languageCode":       {c.language},
		"unitsSystem":        {"METRIC"},
	}

	res, err := c.get(ctx, "weather.forecast", c.weatherURL+"/forecast/days:lookup", params, nil)
	if err != nil {
		return itinerary.Weather{}, err
	}

	want := date.Format(time.DateOnly)
	for _, day := range res.Get("forecastDays").Array() {
		d := day.Get("displayDate")
		got := fmt.Sprintf("%04d-%02d-%02d", d.Get("year").Int(), d.Get("month").Int(), d.Get("day").Int())
		if got != want {
			continue
		}
		conditions := day.Get("daytimeForecast.weatherCondition.description.text").String()
		if conditions == "" {
			conditions = "Unknown"
		}
		return itinerary.Weather{
			Available:  true,
			Conditions: conditions,
			TempMin:    day.Get("minTemperature.degrees").Float(),
			TempMax:    day.Get("maxTemperature.degrees").Float(),
		}, nil
	}
	return itinerary.Weather{Note: forecastOutOfRange}, nil
}

// checkMapsStatus inspects the status field the classic Maps web services
// return alongside HTTP 200.
func checkMapsStatus(res gjson.Result) error {
	status := res.Get("status").String()
	switch status {
	case "OK", "ZERO_RESULTS":
		return nil
	}
	return &APIError{HTTPStatus: http.StatusOK, Status: status, Message: res.Get("error_message").String()}
}

func (c *Client) get(ctx context.Context, op, endpoint string, params url.Values, check func(gjson.Result) error) (gjson.Result, error) {
	if c.apiKey == "" {
		return gjson.Result{}, errors.New("google api key is not configured")
	}
	call := resilient.Call{Op: op, Target: endpoint + "?" + params.Encode()}

	params.Set("key", c.apiKey)
	target := endpoint + "?" + params.Encode()

	return resilient.Do(ctx, c.caller, call, func(ctx context.Context) (gjson.Result, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return gjson.Result{}, resilient.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return gjson.Result{}, redactKey(err, c.apiKey)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return gjson.Result{}, err
		}

		if resp.StatusCode >= 400 {
			return gjson.Result{}, classify(parseAPIError(resp, body))
		}
		if !gjson.ValidBytes(body) {
			return gjson.Result{}, resilient.Permanent(fmt.Errorf("%s: invalid JSON response", op))
		}

		res := gjson.ParseBytes(body)
		if check != nil {
			if err := check(res); err != nil {
				return gjson.Result{}, classify(err)
			}
		}
		return res, nil
	})
}

func parseAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{HTTPStatus: resp.StatusCode, Status: resp.Status}
	res := gjson.ParseBytes(body)
	if status := res.Get("error.status").String(); status != "" {
		apiErr.Status = status
	}
	apiErr.Message = res.Get("error.message").String()
	if apiErr.Message == "" {
		apiErr.Message = res.Get("error_message").String()
	}
	return apiErr
}

func classify(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && !apiErr.retryable() {
		return resilient.Permanent(err)
	}
	return err
}

// redactKey keeps the API key out of transport errors, which embed the URL.
func redactKey(err error, key string) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &url.Error{Op: urlErr.Op, URL: strings.ReplaceAll(urlErr.URL, key, "REDACTED"), Err: urlErr.Err}
	}
	return err
}
