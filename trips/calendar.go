package trips

import (
	"fmt"
	"io"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"tripplanner/itinerary"
)

type slot struct {
	start, end time.Duration
}

func clock(h, m int) time.Duration {
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
}

var roleSlots = map[itinerary.Role]slot{
	itinerary.RoleBreakfast: {clock(8, 0), clock(9, 0)},
	itinerary.RoleMorning:   {clock(9, 30), clock(12, 0)},
	itinerary.RoleLunch:     {clock(12, 30), clock(14, 0)},
	itinerary.RoleAfternoon: {clock(14, 30), clock(17, 30)},
	itinerary.RoleDinner:    {clock(19, 0), clock(20, 30)},
	itinerary.RoleEvening:   {clock(21, 0), clock(22, 30)},
}

// stopSlot places a stop in the day. Stops without a role get consecutive
// two-hour blocks from 09:00.
func stopSlot(stop itinerary.Stop, index int) slot {
	if s, ok := roleSlots[stop.Role]; ok {
		return s
	}
	start := clock(9, 0) + time.Duration(index)*2*time.Hour
	return slot{start, start + 90*time.Minute}
}

// ExportCalendar writes the trip as an iCalendar feed with one event per
// stop, in the destination's local time.
func ExportCalendar(trip *itinerary.Trip, w io.Writer) error {
	loc := tripLocation(trip)
	now := time.Now().UTC()

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//tripplanner//itinerary//EN")
	cal.SetXWRCalName("Trip to " + trip.Destination)
	if trip.Timezone != "" {
		cal.SetXWRTimezone(trip.Timezone)
	}

	for _, day := range trip.Days {
		y, m, d := day.Date.Date()
		midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)

		for i, stop := range day.Stops {
			s := stopSlot(stop, i)
			event := cal.AddEvent(fmt.Sprintf("%s@tripplanner", stop.ID))
			event.SetDtStampTime(now)
			event.SetStartAt(midnight.Add(s.start))
			event.SetEndAt(midnight.Add(s.end))
			event.SetSummary(eventSummary(stop))
			if stop.Address != "" {
				event.SetLocation(stop.Address)
				event.SetURL(itinerary.MapsLink(stop.Address))
			}
			event.SetDescription(fmt.Sprintf("Day %d of your trip to %s", day.Number, trip.Destination))
		}
	}

	_, err := io.WriteString(w, cal.Serialize())
	return err
}

func eventSummary(stop itinerary.Stop) string {
	if stop.Role == "" {
		return stop.Name
	}
	return strings.TrimSpace(stop.Role.Label() + ": " + stop.Name)
}
