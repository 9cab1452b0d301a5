package places

import (
	"context"
	"fmt"
	"strings"

	"wanderguide/pkg/articleproc"
	"wanderguide/pkg/llm"
	"wanderguide/pkg/model"
)

const llmSource = "llm"

// TextGenerator is the part of an LLM provider the enricher needs.
type TextGenerator interface {
	GenerateText(ctx context.Context, name, prompt string) (string, error)
}

var _ TextGenerator = (llm.Provider)(nil)

// LLMEnricher asks a language model for one short fact about a POI.
type LLMEnricher struct {
	gen    TextGenerator
	intent string
	lang   string
}

// NewLLMEnricher creates an enricher using the given intent profile.
func NewLLMEnricher(gen TextGenerator, intent, lang string) *LLMEnricher {
	if lang == "" {
		lang = "en"
	}
	return &LLMEnricher{gen: gen, intent: intent, lang: lang}
}

func (e *LLMEnricher) prompt(p model.POI) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a knowledgeable local guide.\n")
	fmt.Fprintf(&b, "Give exactly one short, verifiable fact about %q", p.DisplayName())
	if p.Category != "" {
		fmt.Fprintf(&b, " (a %s)", p.Category)
	}
	fmt.Fprintf(&b, " located at %.5f, %.5f.\n", p.Lat, p.Lon)
	if p.Summary != "" {
		fmt.Fprintf(&b, "%s\n%s\n%s\n", llm.SourceStart, p.Summary, llm.SourceEnd)
	}
	fmt.Fprintf(&b, "Answer in language %q with a single sentence, no preamble, no markdown.", e.lang)
	return b.String()
}

// Enrich implements Enricher.
func (e *LLMEnricher) Enrich(ctx context.Context, req EnrichRequest) (model.Enrichment, error) {
	out, err := e.gen.GenerateText(ctx, e.intent, e.prompt(req.POI))
	if err != nil {
		return model.Enrichment{}, lookupError(llmSource, err)
	}

	summary := articleproc.FirstSentences(strings.Trim(out, " \n\t\"*"), 1, summaryMaxChars)
	if summary == "" {
		return model.Enrichment{}, lookupError(llmSource, fmt.Errorf("empty answer for %s", req.POI.ID))
	}

	return model.Enrichment{
		Name:     req.POI.Name,
		Category: req.POI.Category,
		Summary:  summary,
		Source:   llmSource,
	}, nil
}
