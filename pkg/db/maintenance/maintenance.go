// Package maintenance keeps the database in step with the landmark catalog file
// and trims the persisted HTTP cache.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"wanderguide/pkg/geo"
	"wanderguide/pkg/model"
	"wanderguide/pkg/store"
)

// CatalogStateKey holds the modification time of the last imported catalog file.
const CatalogStateKey = "catalog_mtime"

const catalogSource = "catalog"

// Store is what maintenance needs from the database.
type Store interface {
	store.POIStore
	store.StateStore
	store.CacheStore
}

// Run executes all maintenance tasks: catalog import and cache pruning.
// Failures are logged and never stop startup. It blocks until completion.
func Run(ctx context.Context, s Store, catalogPath string, httpTTL time.Duration) error {
	slog.Info("Starting database maintenance...")

	if n, err := ImportCatalog(ctx, s, catalogPath); err != nil {
		slog.Error("Catalog import failed", "error", err)
	} else if n > 0 {
		slog.Info("Catalog import completed", "pois", n)
	} else {
		slog.Info("Catalog import check completed")
	}

	if httpTTL > 0 {
		if n, err := s.PruneCache(ctx, httpTTL); err != nil {
			slog.Error("Cache pruning failed", "error", err)
		} else {
			slog.Info("Cache pruning completed", "removed", n)
		}
	}

	return nil
}

// ImportCatalog replaces the catalog rows of the poi table with the GeoJSON file,
// unless the file is unchanged since the last import. It returns the number of
// imported POIs; 0 means nothing was done.
func ImportCatalog(ctx context.Context, s Store, path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, nil // No catalog file, nothing to import
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat catalog: %w", err)
	}

	fileMTime := info.ModTime().UTC().Format(time.RFC3339Nano)
	if stored, found := s.GetState(ctx, CatalogStateKey); found && stored == fileMTime {
		return 0, nil // Up to date
	}

	slog.Info("Importing landmark catalog...", "path", path)

	pois, err := geo.LoadLandmarks(path)
	if err != nil {
		return 0, err
	}

	// The catalog rows are fully derived from the file, so a full replace is safe.
	removed, err := s.DeletePOIsBySource(ctx, catalogSource)
	if err != nil {
		return 0, fmt.Errorf("failed to clear catalog rows: %w", err)
	}

	batch := make([]*model.POI, 0, len(pois))
	for i := range pois {
		if pois[i].Lat == 0 && pois[i].Lon == 0 {
			continue
		}
		pois[i].Source = catalogSource
		batch = append(batch, &pois[i])
	}
	if err := s.SavePOIs(ctx, batch); err != nil {
		return 0, fmt.Errorf("failed to save catalog: %w", err)
	}
	slog.Debug("Catalog rows replaced", "removed", removed, "added", len(batch))

	if err := s.SetState(ctx, CatalogStateKey, fileMTime); err != nil {
		return len(batch), fmt.Errorf("failed to update state: %w", err)
	}
	return len(batch), nil
}
