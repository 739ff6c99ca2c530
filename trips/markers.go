package trips

import (
	polyline "github.com/twpayne/go-polyline"

	"tripplanner/itinerary"
)

type Marker struct {
	Name    string         `json:"name"`
	Lat     float64        `json:"lat"`
	Lng     float64        `json:"lng"`
	Day     int            `json:"day,omitempty"`
	Role    itinerary.Role `json:"role,omitempty"`
	Address string         `json:"address,omitempty"`
}

// DayRoute is the walking order of one day as an encoded polyline.
type DayRoute struct {
	Day      int    `json:"day"`
	Polyline string `json:"polyline"`
}

type MapData struct {
	Markers []Marker   `json:"markers"`
	Routes  []DayRoute `json:"routes"`
}

// BuildMapData lists the destination and every located stop, plus a route
// per day with at least two located stops. Unlocated stops are skipped.
func BuildMapData(trip *itinerary.Trip) MapData {
	data := MapData{Markers: []Marker{}, Routes: []DayRoute{}}
	if trip.Location != nil {
		data.Markers = append(data.Markers, Marker{
			Name: trip.Destination,
			Lat:  trip.Location.Lat,
			Lng:  trip.Location.Lng,
		})
	}

	for _, day := range trip.Days {
		var coords [][]float64
		for _, stop := range day.Stops {
			at, ok := stop.Location()
			if !ok {
				continue
			}
			data.Markers = append(data.Markers, Marker{
				Name:    stop.Name,
				Lat:     at.Lat,
				Lng:     at.Lng,
				Day:     day.Number,
				Role:    stop.Role,
				Address: stop.Address,
			})
			coords = append(coords, []float64{at.Lat, at.Lng})
		}
		if len(coords) >= 2 {
			data.Routes = append(data.Routes, DayRoute{Day: day.Number, Polyline: string(polyline.EncodeCoords(coords))})
		}
	}
	return data
}
