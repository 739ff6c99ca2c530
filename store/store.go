package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"tripplanner/itinerary"
	"tripplanner/places"
)

const (
	TripsCollection = "trips"
	DaysCollection  = "trip_days"
)

var ErrTripNotFound = errors.New("trip not found")

// Store persists trips and their days as PocketBase records.
type Store struct {
	app core.App
}

var _ itinerary.Repository = (*Store)(nil)

func New(app core.App) *Store {
	return &Store{app: app}
}

func (s *Store) SaveTrip(ctx context.Context, trip *itinerary.Trip) error {
	record, err := s.findOrNew(TripsCollection, trip.ID)
	if err != nil {
		return err
	}

	record.Set("destination", trip.Destination)
	record.Set("startDate", trip.StartDate)
	record.Set("endDate", trip.EndDate)
	record.Set("budget", trip.Budget)
	record.Set("travelers", trip.Travelers)
	record.Set("interests", trip.Interests)
	record.Set("extras", trip.Extras)
	record.Set("location", trip.Location)
	record.Set("timezone", trip.Timezone)
	record.Set("overview", trip.Overview)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("save trip record: %w", err)
	}
	trip.ID = record.Id
	return nil
}

func (s *Store) SaveDay(ctx context.Context, trip *itinerary.Trip, day *itinerary.Day) error {
	if trip.ID == "" {
		return errors.New("trip must be saved before its days")
	}

	record, err := s.findOrNew(DaysCollection, day.ID)
	if err != nil {
		return err
	}
	if day.ID == "" {
		existing, err := s.app.FindFirstRecordByFilter(DaysCollection, "trip = {:tripId} && number = {:number}",
			dbx.Params{"tripId": trip.ID, "number": day.Number})
		switch {
		case err == nil:
			record = existing
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
	}

	stops := day.Stops
	if stops == nil {
		stops = []itinerary.Stop{}
	}
	record.Set("trip", trip.ID)
	record.Set("number", day.Number)
	record.Set("date", day.Date)
	record.Set("stops", stops)
	record.Set("narrative", day.Narrative)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("save day %d record: %w", day.Number, err)
	}
	day.ID = record.Id
	day.TripID = trip.ID
	return nil
}

func (s *Store) findOrNew(collectionName, id string) (*core.Record, error) {
	if id != "" {
		record, err := s.app.FindRecordById(collectionName, id)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	collection, err := s.app.FindCachedCollectionByNameOrId(collectionName)
	if err != nil {
		return nil, err
	}
	record := core.NewRecord(collection)
	if id != "" {
		record.Id = id
	}
	return record, nil
}

// LoadTrip reads a trip and its days ordered by day number.
func (s *Store) LoadTrip(ctx context.Context, id string) (*itinerary.Trip, error) {
	record, err := s.app.FindRecordById(TripsCollection, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrTripNotFound, id)
		}
		return nil, err
	}
	return s.TripFromRecord(ctx, record)
}

// ListTrips returns trips newest first, without their days.
func (s *Store) ListTrips(ctx context.Context, limit, offset int) ([]*itinerary.Trip, error) {
	records, err := s.app.FindRecordsByFilter(TripsCollection, "", "-created", limit, offset)
	if err != nil {
		return nil, err
	}
	trips := make([]*itinerary.Trip, 0, len(records))
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		trips = append(trips, s.tripSummary(record))
	}
	return trips, nil
}

// DeleteTrip removes a trip; its days go with it through the cascading relation.
func (s *Store) DeleteTrip(ctx context.Context, id string) error {
	record, err := s.app.FindRecordById(TripsCollection, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrTripNotFound, id)
		}
		return err
	}
	if err := s.app.DeleteWithContext(ctx, record); err != nil {
		return fmt.Errorf("delete trip record: %w", err)
	}
	return nil
}

// TripFromRecord converts a trips record, loading its days.
func (s *Store) TripFromRecord(ctx context.Context, record *core.Record) (*itinerary.Trip, error) {
	trip := s.tripSummary(record)

	records, err := s.app.FindAllRecords(DaysCollection, dbx.NewExp("trip = {:tripId}", dbx.Params{"tripId": record.Id}))
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].GetInt("number") < records[j].GetInt("number")
	})

	for _, dayRecord := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		day := &itinerary.Day{
			ID:        dayRecord.Id,
			TripID:    record.Id,
			Number:    dayRecord.GetInt("number"),
			Date:      dayRecord.GetDateTime("date").Time(),
			Narrative: dayRecord.GetString("narrative"),
		}
		if err := dayRecord.UnmarshalJSONField("stops", &day.Stops); err != nil {
			s.app.Logger().Warn("Unable to parse day stops", "error", err, "tripId", record.Id, "day", day.Number)
		}
		trip.Days = append(trip.Days, day)
	}
	return trip, nil
}

func (s *Store) tripSummary(record *core.Record) *itinerary.Trip {
	trip := &itinerary.Trip{
		ID:          record.Id,
		Destination: record.GetString("destination"),
		StartDate:   record.GetDateTime("startDate").Time(),
		EndDate:     record.GetDateTime("endDate").Time(),
		Budget:      record.GetFloat("budget"),
		Travelers:   record.GetInt("travelers"),
		Interests:   record.GetString("interests"),
		Extras:      record.GetString("extras"),
		Timezone:    record.GetString("timezone"),
		Overview:    record.GetString("overview"),
	}

	var location *places.LatLng
	if err := record.UnmarshalJSONField("location", &location); err != nil {
		s.app.Logger().Warn("Unable to parse trip location", "error", err, "tripId", record.Id)
	}
	trip.Location = location
	return trip
}
