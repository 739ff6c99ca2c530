package store

import (
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

const longTextMax = 100_000

func init() {
	migrations.Register(func(app core.App) error {
		trips := core.NewBaseCollection(TripsCollection)
		trips.Fields.Add(
			&core.TextField{Name: "destination", Required: true, Max: 200},
			&core.DateField{Name: "startDate", Required: true},
			&core.DateField{Name: "endDate", Required: true},
			&core.NumberField{Name: "budget", Min: types.Pointer(0.0)},
			&core.NumberField{Name: "travelers", OnlyInt: true, Min: types.Pointer(0.0)},
			&core.TextField{Name: "interests", Max: 1000},
			&core.TextField{Name: "extras", Max: 200},
			&core.JSONField{Name: "location"},
			&core.TextField{Name: "timezone", Max: 64},
			&core.TextField{Name: "overview", Max: longTextMax},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		if err := app.Save(trips); err != nil {
			return err
		}

		days := core.NewBaseCollection(DaysCollection)
		days.Fields.Add(
			&core.RelationField{Name: "trip", CollectionId: trips.Id, Required: true, CascadeDelete: true, MaxSelect: 1},
			&core.NumberField{Name: "number", Required: true, OnlyInt: true, Min: types.Pointer(1.0)},
			&core.DateField{Name: "date", Required: true},
			&core.JSONField{Name: "stops", MaxSize: 1 << 20},
			&core.TextField{Name: "narrative", Max: longTextMax},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		days.AddIndex("idx_trip_days_trip_number", true, "`trip`, `number`", "")
		return app.Save(days)
	}, func(app core.App) error {
		for _, name := range []string{DaysCollection, TripsCollection} {
			collection, err := app.FindCollectionByNameOrId(name)
			if err != nil {
				continue
			}
			if err := app.Delete(collection); err != nil {
				return err
			}
		}
		return nil
	})
}
