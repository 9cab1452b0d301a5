package main

import (
	"fmt"
	"log/slog"
	"time"

	"wanderguide/pkg/config"
	"wanderguide/pkg/geo"
	"wanderguide/pkg/location"
	"wanderguide/pkg/location/mockloc"
)

func initLocationSource(cfg *config.Config) (*location.Source, error) {
	var provider location.Provider
	switch cfg.Location.Provider {
	case "mock", "":
		slog.Info("Location Source: Mock walker", "lat", cfg.Mock.StartLat, "lon", cfg.Mock.StartLon)
		route := make([]geo.Point, len(cfg.Mock.Route))
		for i, wp := range cfg.Mock.Route {
			route[i] = geo.Point{Lat: wp.Lat, Lon: wp.Lon}
		}
		provider = mockloc.NewWalker(mockloc.Config{
			StartLat:       cfg.Mock.StartLat,
			StartLon:       cfg.Mock.StartLon,
			SpeedMps:       cfg.Mock.SpeedMps,
			Heading:        cfg.Mock.Heading,
			Route:          route,
			AccuracyMeters: cfg.Mock.AccuracyMeters,
			JitterMeters:   cfg.Mock.JitterMeters,
			Denied:         cfg.Mock.Denied,
			Tick:           time.Second,
		})
	case "push":
		slog.Info("Location Source: Push")
		provider = location.NewPushProvider(time.Duration(cfg.Location.PushMaxAge))
	default:
		return nil, fmt.Errorf("unknown location provider %q", cfg.Location.Provider)
	}

	perm := location.NewPermissionChecker(provider, location.PermissionConfig{
		CacheTTL:   time.Duration(cfg.Location.PermissionCacheTTL),
		MaxRetries: cfg.Location.PermissionRetries,
	})
	return location.NewSource(provider, perm, location.Config{
		PollInterval: time.Duration(cfg.Location.PollInterval),
		FixTimeout:   time.Duration(cfg.Location.FixTimeout),
		HighAccuracy: cfg.Location.HighAccuracy,
	}), nil
}
