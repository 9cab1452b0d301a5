package gemini

import (
	"log/slog"

	"google.golang.org/genai"
)

// Intents with search grounding enabled.
const (
	IntentEnrichment = "enrichment"
	IntentFact       = "fact"
)

// resolveModel returns the target model name and configuration for the given intent.
func (c *Client) resolveModel(intent string) (string, *genai.GenerateContentConfig) {
	c.mu.RLock()
	targetModel := c.modelName
	if profileModel, ok := c.profiles[intent]; ok && profileModel != "" {
		targetModel = profileModel
	}
	c.mu.RUnlock()

	config := &genai.GenerateContentConfig{}

	// Facts about real places are grounded on Google Search and kept sober
	if intent == IntentEnrichment || intent == IntentFact {
		config.Tools = []*genai.Tool{
			{
				GoogleSearch: &genai.GoogleSearch{},
			},
		}
		temp := float32(0.3)
		config.Temperature = &temp
	}

	return targetModel, config
}

// logGoogleSearchUsage logs the usage of the Google Search tool. meta may be nil.
func logGoogleSearchUsage(logger *slog.Logger, name string, meta *genai.GroundingMetadata) {
	used := false
	query := ""
	snippets := 0

	if meta != nil {
		snippets = len(meta.GroundingChunks)
		if len(meta.WebSearchQueries) > 0 {
			used = true
			query = meta.WebSearchQueries[0]
		}
		if meta.SearchEntryPoint != nil {
			used = true
			if query == "" {
				query = "[embedded in RenderedContent]"
			}
		}
		if snippets > 0 {
			used = true
		}
	}

	if used {
		logger.Debug("Google Search used",
			"intent", name,
			"snippets", snippets,
			"search_query", query)
	}
}
