package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"transit-tracker/internal/config"
	"transit-tracker/internal/registry"
	"transit-tracker/internal/sim"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.RoutesFile == "" {
		log.Fatalf("ROUTES_FILE must be set for the simulator")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg, err := registry.LoadFile(cfg.RoutesFile)
	if err != nil {
		log.Fatalf("routes file error: %v", err)
	}

	var vehicles []sim.Vehicle
	for _, d := range reg.Devices() {
		if !d.Approved || d.RouteID == "" {
			continue
		}
		rt, err := reg.Route(ctx, d.RouteID)
		if err != nil {
			log.Printf("skipping device %s: %v", d.ID, err)
			continue
		}
		vehicles = append(vehicles, sim.Vehicle{Device: d, Route: rt})
	}
	if len(vehicles) == 0 {
		log.Fatalf("no approved devices with routes in %s", cfg.RoutesFile)
	}

	reporter := sim.NewHTTPReporter(cfg.TrackerURL)
	mgr := sim.NewManager(reporter, cfg.PublishInterval, cfg.SpeedMultiplier)
	log.Printf("simulating %d vehicles against %s every %s", len(vehicles), cfg.TrackerURL, cfg.PublishInterval)
	mgr.Start(ctx, vehicles)

	// Block until context cancelled
	<-ctx.Done()
	mgr.Stop()
	log.Println("shutdown complete")
}
