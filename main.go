package main

import (
	"context"
	"log"
	"os"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"

	"tripplanner/config"
	"tripplanner/routes"
)

func main() {
	app := pocketbase.New()

	var configPath string
	app.RootCmd.PersistentFlags().StringVar(&configPath, "planner-config", "", "path to the itinerary planner YAML config")
	// eager parse so the config path is known before Start; errors resurface there
	_ = app.RootCmd.ParseFlags(os.Args[1:])

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	svc := &services{}

	app.OnBootstrap().BindFunc(func(e *core.BootstrapEvent) error {
		if err := e.Next(); err != nil {
			return err
		}
		if err := svc.init(context.Background(), e.App, cfg); err != nil {
			e.App.Logger().Error("Itinerary planner disabled", "error", err)
		}
		return nil
	})

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		if svc.ready() {
			routes.Register(se.Router, svc.handlers())
		}
		return se.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		if err := svc.Close(); err != nil {
			e.App.Logger().Warn("Failed to close planner services", "error", err)
		}
		return e.Next()
	})

	app.RootCmd.AddCommand(
		planCommand(app, svc),
		replaceCommand(app, svc),
		calendarCommand(app, svc),
	)

	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
}
