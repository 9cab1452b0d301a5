package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/iterator"
	"google.golang.org/genai"

	"wanderguide/pkg/config"
	"wanderguide/pkg/llm"
	"wanderguide/pkg/tracker"
)

const providerName = "gemini"

// ErrNotConfigured is returned when no API key was supplied.
var ErrNotConfigured = errors.New("gemini client not configured")

// Client implements llm.Provider for Google Gemini.
type Client struct {
	genaiClient *genai.Client
	apiKey      string
	modelName   string
	profiles    map[string]string // Map intent -> modelName
	tracker     *tracker.Tracker
	logPath     string
	logger      *slog.Logger

	mu sync.RWMutex
}

// NewClient creates a new Gemini client. A missing key yields an unconfigured client, not an error.
func NewClient(cfg config.LLMConfig, logPath string, t *tracker.Tracker) (*Client, error) {
	c := &Client{
		tracker: t,
		logPath: logPath,
		logger:  slog.With("component", "gemini"),
	}
	if err := c.Configure(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// Configure updates the client with new settings.
func (c *Client) Configure(cfg config.LLMConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.apiKey = cfg.Key
	c.modelName = cfg.Model
	c.profiles = cfg.Profiles

	if c.modelName == "" {
		c.modelName = "gemini-2.5-flash-lite"
	}

	if c.apiKey == "" {
		c.genaiClient = nil
		return nil
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: c.apiKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create genai client: %w", err)
	}
	c.genaiClient = client

	// Startup must survive a flaky API; generation calls surface real key/model errors.
	if err := c.validateModel(context.Background()); err != nil {
		c.logger.Warn("Model validation failed (proceeding anyway)", "error", err)
	}

	return nil
}

// Close cleans up resources.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.genaiClient = nil
}

// HealthCheck reports whether the client can issue requests.
func (c *Client) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.genaiClient == nil {
		return ErrNotConfigured
	}
	return ctx.Err()
}

// HasProfile reports whether an intent has its own model.
func (c *Client) HasProfile(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.profiles[name]
	return ok && m != ""
}

// GenerateText sends a prompt and returns the text response.
func (c *Client) GenerateText(ctx context.Context, name, prompt string) (string, error) {
	client, modelName, cfg, err := c.prepare(name)
	if err != nil {
		return "", err
	}

	resp, err := client.Models.GenerateContent(ctx, modelName, genai.Text(prompt), cfg)
	if err != nil {
		c.fail(name, prompt, fmt.Sprintf("ERROR: %v", err))
		return "", fmt.Errorf("generate text error: %w", err)
	}

	if len(resp.Candidates) > 0 {
		logGoogleSearchUsage(c.logger, name, resp.Candidates[0].GroundingMetadata)
	}

	text, err := getResponseText(resp)
	if err != nil {
		c.fail(name, prompt, fmt.Sprintf("TEXT_PARSE_ERROR: %v", err))
		return "", err
	}

	c.logPrompt(name, prompt, text)
	c.succeed()
	return text, nil
}

// GenerateJSON sends a prompt and unmarshals the response into the target struct.
func (c *Client) GenerateJSON(ctx context.Context, name, prompt string, target any) error {
	client, modelName, cfg, err := c.prepare(name)
	if err != nil {
		return err
	}
	// Search grounding cannot be combined with JSON mode
	cfg.Tools = nil
	cfg.ResponseMIMEType = "application/json"

	resp, err := client.Models.GenerateContent(ctx, modelName, genai.Text(prompt), cfg)
	if err != nil {
		c.fail(name, prompt, fmt.Sprintf("ERROR: %v", err))
		return fmt.Errorf("generate json error: %w", err)
	}

	text, err := getResponseText(resp)
	if err != nil {
		c.fail(name, prompt, fmt.Sprintf("TEXT_PARSE_ERROR: %v", err))
		return err
	}

	cleaned := llm.CleanJSONBlock(text)
	c.logPrompt(name, prompt, cleaned)

	if err := json.Unmarshal([]byte(cleaned), target); err != nil {
		c.trackFailure()
		return fmt.Errorf("failed to unmarshal JSON response: %w. Response: %s", err, cleaned)
	}

	c.succeed()
	return nil
}

func (c *Client) prepare(name string) (*genai.Client, string, *genai.GenerateContentConfig, error) {
	c.mu.RLock()
	client := c.genaiClient
	c.mu.RUnlock()

	if client == nil {
		return nil, "", nil, ErrNotConfigured
	}
	modelName, cfg := c.resolveModel(name)
	return client, modelName, cfg, nil
}

func (c *Client) fail(name, prompt, detail string) {
	c.logPrompt(name, prompt, detail)
	c.trackFailure()
}

func (c *Client) trackFailure() {
	if c.tracker != nil {
		c.tracker.TrackAPIFailure(providerName)
	}
}

func (c *Client) succeed() {
	if c.tracker != nil {
		c.tracker.TrackAPISuccess(providerName)
	}
}

func (c *Client) logPrompt(name, prompt, response string) {
	if c.logPath == "" {
		return
	}

	if err := os.MkdirAll(filepath.Dir(c.logPath), 0o755); err != nil {
		return
	}

	f, err := os.OpenFile(c.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	entry := fmt.Sprintf("[%s] PROMPT: %s\nPROMPT_TEXT:\n%s\n\nRESPONSE:\n%s\n%s\n",
		timestamp, name, llm.TruncateParagraphs(prompt, 80), llm.WordWrap(response, 80), strings.Repeat("-", 80))

	_, _ = f.WriteString(entry)
}

func getResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates returned")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

// validateModel checks if the configured model is available for the API key.
func (c *Client) validateModel(ctx context.Context) error {
	name := c.modelName
	if !strings.HasPrefix(name, "models/") {
		name = "models/" + name
	}

	_, err := c.genaiClient.Models.Get(ctx, name, nil)
	if err == nil {
		c.logger.Debug("Model validation success", "model", c.modelName)
		return nil
	}

	c.logger.Warn("Model validation failed, fetching available models...", "model", c.modelName, "error", err)

	page, listErr := c.genaiClient.Models.List(ctx, nil)
	if listErr != nil {
		return fmt.Errorf("list models: %w", listErr)
	}

	var availableModels []string
	for {
		for _, m := range page.Items {
			if m != nil && strings.Contains(strings.ToLower(m.Name), "gemini") {
				availableModels = append(availableModels, m.Name)
			}
		}
		next, nextErr := page.Next(ctx)
		if nextErr != nil {
			if !errors.Is(nextErr, iterator.Done) {
				c.logger.Debug("Model listing stopped", "error", nextErr)
			}
			break
		}
		page = next
	}

	c.logger.Error("Configured model not found", "configured", c.modelName, "available", availableModels)
	return nil
}
