// Command mockwalk simulates a pedestrian and prints each fix. With -push it
// feeds the fixes to a running server in push mode via POST /api/position.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wanderguide/internal/api"
	"wanderguide/pkg/config"
	"wanderguide/pkg/geo"
	"wanderguide/pkg/location"
	"wanderguide/pkg/location/mockloc"
	"wanderguide/pkg/model"
)

func main() {
	cfgPath := flag.String("config", "configs/wanderguide.yaml", "Path to config file (start point, pace and route)")
	push := flag.Bool("push", false, "Push fixes to the server")
	interval := flag.Duration("interval", 2*time.Second, "Time between fixes")
	speed := flag.Float64("speed", 0, "Walking speed in m/s (default: from config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *speed > 0 {
		cfg.Mock.SpeedMps = *speed
	}

	walker := mockloc.NewWalker(walkerConfig(cfg))
	defer walker.Close()

	var pusher *pusher
	if *push {
		pusher = newPusher(cfg.Server.Address)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	fmt.Println("Mock walker started. Press Ctrl+C to exit.")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-sigCh
		fmt.Println("\nReceived interrupt, shutting down...")
		cancel()
	}()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			walker.Step(*interval)
			pos, err := walker.CurrentPosition(ctx, 0, location.AccuracyHigh)
			if err != nil {
				log.Printf("Error getting position: %v", err)
				continue
			}
			fmt.Println(formatFix(pos))
			if pusher != nil {
				if err := pusher.Push(ctx, pos); err != nil {
					log.Printf("Push failed: %v", err)
				}
			}
		}
	}
}

func walkerConfig(cfg *config.Config) mockloc.Config {
	route := make([]geo.Point, len(cfg.Mock.Route))
	for i, wp := range cfg.Mock.Route {
		route[i] = geo.Point{Lat: wp.Lat, Lon: wp.Lon}
	}
	return mockloc.Config{
		StartLat:       cfg.Mock.StartLat,
		StartLon:       cfg.Mock.StartLon,
		SpeedMps:       cfg.Mock.SpeedMps,
		Heading:        cfg.Mock.Heading,
		Route:          route,
		AccuracyMeters: cfg.Mock.AccuracyMeters,
		JitterMeters:   cfg.Mock.JitterMeters,
	}
}

func formatFix(pos model.Position) string {
	return fmt.Sprintf("[%s] Pos: %.5f, %.5f | Acc: %.0f m",
		pos.CapturedAt.Format("15:04:05"),
		pos.Lat, pos.Lon,
		pos.AccuracyMeters,
	)
}

type pusher struct {
	url    string
	client *http.Client
}

func newPusher(addr string) *pusher {
	if addr == "" {
		addr = "localhost:1930"
	}
	return &pusher{
		url:    fmt.Sprintf("http://%s/api/position", addr),
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Push posts one fix. The server answers 202 once the sample is queued.
func (p *pusher) Push(ctx context.Context, pos model.Position) error {
	lat, lon := pos.Lat, pos.Lon
	body, err := json.Marshal(api.PushRequest{
		Lat:            &lat,
		Lon:            &lon,
		AccuracyMeters: pos.AccuracyMeters,
		CapturedAt:     pos.CapturedAt,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
