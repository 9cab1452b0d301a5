package places

import (
	"context"
	"errors"
	"log/slog"

	"wanderguide/pkg/model"
)

// NamedEnricher labels an enricher for logs and stats.
type NamedEnricher struct {
	Name     string
	Enricher Enricher
}

// ChainEnricher tries enrichers in order and returns the first result with a summary.
// Missing name or category fields are filled from later results.
type ChainEnricher struct {
	chain  []NamedEnricher
	onFail func(name string)
	logger *slog.Logger
}

// NewChainEnricher builds a chain. onFail, if set, is called for every enricher that fails.
func NewChainEnricher(onFail func(name string), chain ...NamedEnricher) *ChainEnricher {
	return &ChainEnricher{
		chain:  chain,
		onFail: onFail,
		logger: slog.With("component", "enrichment"),
	}
}

// Len returns the number of enrichers in the chain.
func (c *ChainEnricher) Len() int { return len(c.chain) }

// Enrich implements Enricher.
func (c *ChainEnricher) Enrich(ctx context.Context, req EnrichRequest) (model.Enrichment, error) {
	var partial model.Enrichment
	var errs []error

	for _, ne := range c.chain {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		e, err := ne.Enricher.Enrich(ctx, req)
		if err != nil {
			c.logger.Debug("Enricher failed", "enricher", ne.Name, "poi", req.POI.ID, "error", err)
			if c.onFail != nil {
				c.onFail(ne.Name)
			}
			errs = append(errs, err)
			continue
		}
		if partial.Name == "" {
			partial.Name = e.Name
		}
		if partial.Category == "" {
			partial.Category = e.Category
		}
		if partial.Rating == 0 {
			partial.Rating = e.Rating
		}
		if e.Summary != "" {
			partial.Summary = e.Summary
			partial.Source = e.Source
			return partial, nil
		}
	}

	if len(errs) == 0 {
		errs = append(errs, errors.New("no enricher produced a summary"))
	}
	return partial, lookupError("enrichment", errors.Join(errs...))
}
