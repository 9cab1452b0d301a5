package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"wanderguide/pkg/request"
)

// maxGeoRadius is the largest radius the geosearch API accepts, in meters.
const maxGeoRadius = 10000

// Client handles Wikipedia API interactions.
type Client struct {
	request     *request.Client
	APIEndpoint string // Optional override for testing
}

// NewClient creates a new Wikipedia client.
func NewClient(r *request.Client) *Client {
	return &Client{request: r}
}

// GeoPage is one geosearch hit.
type GeoPage struct {
	PageID int     `json:"pageid"`
	Title  string  `json:"title"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Dist   float64 `json:"dist"`
}

func (c *Client) endpoint(lang string) string {
	if c.APIEndpoint != "" {
		return c.APIEndpoint
	}
	if lang == "" {
		lang = "en"
	}
	return fmt.Sprintf("https://%s.wikipedia.org/w/api.php", lang)
}

// GeoSearch lists articles with coordinates within radius meters of a point, closest first.
func (c *Client) GeoSearch(ctx context.Context, lat, lon, radius float64, limit int, lang string) ([]GeoPage, error) {
	if radius > maxGeoRadius {
		radius = maxGeoRadius
	}
	if radius < 10 {
		radius = 10
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	u, err := url.Parse(c.endpoint(lang))
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Add("action", "query")
	q.Add("list", "geosearch")
	q.Add("gscoord", fmt.Sprintf("%.6f|%.6f", lat, lon))
	q.Add("gsradius", strconv.Itoa(int(radius)))
	q.Add("gslimit", strconv.Itoa(limit))
	q.Add("format", "json")
	u.RawQuery = q.Encode()

	body, err := c.request.Get(ctx, u.String(), "")
	if err != nil {
		return nil, err
	}

	var apiResp struct {
		Query struct {
			GeoSearch []GeoPage `json:"geosearch"`
		} `json:"query"`
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}
	if apiResp.Error != nil {
		return nil, apiResp.Error
	}
	return apiResp.Query.GeoSearch, nil
}

// Intro is the lead section of an article.
type Intro struct {
	PageID      int    `json:"pageid"`
	Title       string `json:"title"`
	HTML        string `json:"extract"`
	Description string `json:"description"`
}

// GetIntro fetches the lead section of an article as HTML, plus its short description.
// The response is cached under the given key when it is not empty.
func (c *Client) GetIntro(ctx context.Context, title, lang, cacheKey string) (*Intro, error) {
	u, err := url.Parse(c.endpoint(lang))
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Add("action", "query")
	q.Add("prop", "extracts|description")
	q.Add("exintro", "1")
	q.Add("titles", title)
	q.Add("format", "json")
	q.Add("redirects", "1")
	u.RawQuery = q.Encode()

	body, err := c.request.Get(ctx, u.String(), cacheKey)
	if err != nil {
		return nil, err
	}

	var apiResp struct {
		Query struct {
			Pages map[string]struct {
				Intro
				Missing *string `json:"missing,omitempty"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}

	for _, page := range apiResp.Query.Pages {
		if page.Missing != nil || strings.TrimSpace(page.HTML) == "" {
			continue
		}
		intro := page.Intro
		return &intro, nil
	}
	return nil, fmt.Errorf("article not found: %s", title)
}

type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("wikipedia api error %s: %s", e.Code, e.Info)
}
