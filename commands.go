package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/pocketbase/pocketbase/core"
	"github.com/spf13/cobra"

	"tripplanner/itinerary"
	"tripplanner/trips"
)

func planCommand(app core.App, svc *services) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <tripId>",
		Short: "Plans (or re-plans) a stored trip and prints every day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := prepare(app, svc); err != nil {
				return err
			}
			trip, err := svc.store.LoadTrip(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			planned, err := svc.orchestrator.PlanTrip(cmd.Context(), trip)
			if err != nil {
				return err
			}
			printTrip(cmd.OutOrStdout(), planned)
			return nil
		},
	}
}

func replaceCommand(app core.App, svc *services) *cobra.Command {
	var note string
	var byID bool

	cmd := &cobra.Command{
		Use:   "replace <tripId> <day> <stop>",
		Short: "Replaces one stop of a planned day with a new venue",
		Long:  "Replaces one stop of a planned day. <stop> is a 0-based index, or a stop id with --id.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			dayNumber, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid day %q", args[1])
			}
			ref := itinerary.StopRef{ID: args[2]}
			if !byID {
				ref.ID = ""
				if ref.Index, err = strconv.Atoi(args[2]); err != nil {
					return fmt.Errorf("invalid stop index %q", args[2])
				}
			}

			if err := prepare(app, svc); err != nil {
				return err
			}
			trip, err := svc.store.LoadTrip(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			day, err := svc.orchestrator.ReplaceStop(cmd.Context(), trip, dayNumber, ref, note)
			if err != nil {
				return err
			}
			printDay(cmd.OutOrStdout(), day)
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "what the new venue should be like")
	cmd.Flags().BoolVar(&byID, "id", false, "treat <stop> as a stop id")
	return cmd
}

func calendarCommand(app core.App, svc *services) *cobra.Command {
	return &cobra.Command{
		Use:   "calendar <tripId>",
		Short: "Writes a planned trip as an iCalendar feed to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := prepare(app, svc); err != nil {
				return err
			}
			trip, err := svc.store.LoadTrip(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return trips.ExportCalendar(trip, cmd.OutOrStdout())
		},
	}
}

func prepare(app core.App, svc *services) error {
	if !svc.ready() {
		return errors.New("itinerary planner is not configured, see the startup log")
	}
	return app.RunAllMigrations()
}

func printTrip(w io.Writer, trip *itinerary.Trip) {
	fmt.Fprintf(w, "Trip %s to %s\n\n%s\n", trip.ID, trip.Destination, trip.Overview)
	for _, day := range trip.Days {
		printDay(w, day)
	}
}

func printDay(w io.Writer, day *itinerary.Day) {
	fmt.Fprintf(w, "\n%s\n", day.Narrative)
	for i, stop := range day.Stops {
		fmt.Fprintf(w, "  [%d] %s %s\n", i, stop.ID, stop.Name)
	}
}
