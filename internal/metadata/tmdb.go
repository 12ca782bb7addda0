// Package metadata looks up display metadata for catalog titles on TMDB.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/moviebot/internal/metrics"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

const (
	defaultBaseURL      = "https://api.themoviedb.org/3"
	defaultImageBaseURL = "https://image.tmdb.org/t/p/w500"
	defaultCacheSize    = 512
	defaultCacheTTL     = 6 * time.Hour
	defaultTimeout      = 10 * time.Second
	maxOverviewRunes    = 300
)

var errUnexpectedStatus = errors.New("tmdb: unexpected response status")

// Info is the enrichment shown next to a catalog entry.
type Info struct {
	Title     string
	Year      string
	Rating    float64
	Overview  string
	PosterURL string
}

// ClientConfig configures the TMDB client.
type ClientConfig struct {
	APIKey       string
	BaseURL      string
	ImageBaseURL string
	HTTPClient   *http.Client
	CacheSize    int
	CacheTTL     time.Duration
	Logger       *zap.Logger
}

// Client queries TMDB's movie search and caches answers per query.
type Client struct {
	apiKey       string
	baseURL      string
	imageBaseURL string
	httpClient   *http.Client
	cache        *expirable.LRU[string, cacheEntry]
	logger       *zap.Logger
}

type cacheEntry struct {
	info *Info
}

// NewClient builds a client. Without an API key every lookup returns no result.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	imageBaseURL := strings.TrimRight(strings.TrimSpace(cfg.ImageBaseURL), "/")
	if imageBaseURL == "" {
		imageBaseURL = defaultImageBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:       strings.TrimSpace(cfg.APIKey),
		baseURL:      baseURL,
		imageBaseURL: imageBaseURL,
		httpClient:   httpClient,
		cache:        expirable.NewLRU[string, cacheEntry](size, nil, ttl),
		logger:       logger,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Lookup returns the top search result for the query, nil when nothing matched or
// the client is disabled. Errors are returned for transport and decoding failures.
func (c *Client) Lookup(ctx context.Context, query string) (*Info, error) {
	trimmed := strings.TrimSpace(query)
	if !c.Enabled() || trimmed == "" {
		return nil, nil
	}

	key := strings.ToLower(trimmed)
	if entry, ok := c.cache.Get(key); ok {
		metrics.MetadataCacheTotal.WithLabelValues("hit").Inc()
		return entry.info, nil
	}
	metrics.MetadataCacheTotal.WithLabelValues("miss").Inc()

	info, err := c.search(ctx, trimmed)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, cacheEntry{info: info})
	return info, nil
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Title       string  `json:"title"`
	ReleaseDate string  `json:"release_date"`
	VoteAverage float64 `json:"vote_average"`
	Overview    string  `json:"overview"`
	PosterPath  string  `json:"poster_path"`
}

func (c *Client) search(ctx context.Context, query string) (*Info, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("query", query)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search/movie?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("tmdb: build request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("tmdb: request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", errUnexpectedStatus, response.StatusCode)
	}

	var document searchResponse
	if err := json.NewDecoder(response.Body).Decode(&document); err != nil {
		return nil, fmt.Errorf("tmdb: decode response: %w", err)
	}
	if len(document.Results) == 0 {
		return nil, nil
	}

	top := document.Results[0]
	info := &Info{
		Title:    top.Title,
		Rating:   top.VoteAverage,
		Overview: truncateRunes(top.Overview, maxOverviewRunes),
	}
	if info.Title == "" {
		info.Title = "Unknown"
	}
	if len(top.ReleaseDate) >= 4 {
		info.Year = top.ReleaseDate[:4]
	}
	if top.PosterPath != "" {
		info.PosterURL = c.imageBaseURL + top.PosterPath
	}
	return info, nil
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
