package places

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"wanderguide/pkg/articleproc"
	"wanderguide/pkg/model"
	"wanderguide/pkg/wikipedia"
)

const (
	wikipediaSource   = "wikipedia"
	wikipediaIDPrefix = "wp:"
	summaryMaxChars   = 240
)

// WikiSearcher is the part of the Wikipedia client the places layer needs.
type WikiSearcher interface {
	GeoSearch(ctx context.Context, lat, lon, radius float64, limit int, lang string) ([]wikipedia.GeoPage, error)
	GetIntro(ctx context.Context, title, lang, cacheKey string) (*wikipedia.Intro, error)
}

// WikipediaLookup finds geotagged articles around a point.
// Category filters are not applied since geosearch results carry no category.
type WikipediaLookup struct {
	wp   WikiSearcher
	lang string
}

// NewWikipediaLookup creates a lookup for the given language edition.
func NewWikipediaLookup(wp WikiSearcher, lang string) *WikipediaLookup {
	return &WikipediaLookup{wp: wp, lang: lang}
}

// Nearby implements Lookup.
func (l *WikipediaLookup) Nearby(ctx context.Context, req Request) ([]model.POI, error) {
	pages, err := l.wp.GeoSearch(ctx, req.Center.Lat, req.Center.Lon, req.Radius, req.Limit, l.lang)
	if err != nil {
		return nil, lookupError(wikipediaSource, err)
	}

	pois := make([]model.POI, 0, len(pages))
	for _, p := range pages {
		pois = append(pois, model.POI{
			ID:       wikipediaIDPrefix + strconv.Itoa(p.PageID),
			Name:     p.Title,
			Category: "landmark",
			Lat:      p.Lat,
			Lon:      p.Lon,
			Source:   wikipediaSource,
		})
	}

	unfiltered := req
	unfiltered.Categories = nil
	return refine(pois, unfiltered), nil
}

// WikipediaEnricher summarizes a POI from the lead section of its article.
type WikipediaEnricher struct {
	wp   WikiSearcher
	lang string
}

// NewWikipediaEnricher creates an enricher for the given language edition.
func NewWikipediaEnricher(wp WikiSearcher, lang string) *WikipediaEnricher {
	return &WikipediaEnricher{wp: wp, lang: lang}
}

// Enrich implements Enricher.
func (e *WikipediaEnricher) Enrich(ctx context.Context, req EnrichRequest) (model.Enrichment, error) {
	title := req.POI.Name
	if title == "" {
		return model.Enrichment{}, lookupError(wikipediaSource, fmt.Errorf("poi %s has no title", req.POI.ID))
	}

	cacheKey := fmt.Sprintf("wp_intro_%s_%s", e.lang, title)
	intro, err := e.wp.GetIntro(ctx, title, e.lang, cacheKey)
	if err != nil {
		return model.Enrichment{}, lookupError(wikipediaSource, err)
	}

	info, err := articleproc.ExtractProse(strings.NewReader(intro.HTML))
	if err != nil {
		return model.Enrichment{}, lookupError(wikipediaSource, fmt.Errorf("parse intro: %w", err))
	}

	summary := articleproc.FirstSentences(info.Prose, 1, summaryMaxChars)
	if summary == "" {
		return model.Enrichment{}, lookupError(wikipediaSource, fmt.Errorf("empty intro for %q", title))
	}

	category := req.POI.Category
	if intro.Description != "" && (category == "" || category == "landmark") {
		category = strings.ToLower(intro.Description)
	}

	return model.Enrichment{
		Name:     intro.Title,
		Category: category,
		Summary:  summary,
		Source:   wikipediaSource,
	}, nil
}
