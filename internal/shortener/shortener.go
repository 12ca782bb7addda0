// Package shortener wraps a GPLinks-compatible URL shortening API.
package shortener

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultAPIURL is the GPLinks API endpoint.
	DefaultAPIURL  = "https://gplinks.com/api"
	defaultTimeout = 10 * time.Second
	statusSuccess  = "success"
)

// ClientConfig configures the shortener client.
type ClientConfig struct {
	APIKey     string
	APIURL     string
	HTTPClient *http.Client
}

// Client shortens URLs. A client without an API key is disabled.
type Client struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
}

// NewClient builds a shortener client.
func NewClient(cfg ClientConfig) *Client {
	apiURL := strings.TrimSpace(cfg.APIURL)
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		apiURL:     apiURL,
		httpClient: httpClient,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type shortenResponse struct {
	Status       string `json:"status"`
	ShortenedURL string `json:"shortenedUrl"`
}

// Shorten returns the shortened form of target. A disabled client returns target unchanged.
func (c *Client) Shorten(ctx context.Context, target string) (string, error) {
	if !c.Enabled() {
		return target, nil
	}

	endpoint, err := url.Parse(c.apiURL)
	if err != nil {
		return "", fmt.Errorf("shortener: parse api url: %w", err)
	}
	query := endpoint.Query()
	query.Set("api", c.apiKey)
	query.Set("url", target)
	endpoint.RawQuery = query.Encode()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return "", fmt.Errorf("shortener: build request: %w", err)
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("shortener: request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("shortener: unexpected status %d", response.StatusCode)
	}
	var document shortenResponse
	if err := json.NewDecoder(response.Body).Decode(&document); err != nil {
		return "", fmt.Errorf("shortener: decode response: %w", err)
	}
	if document.Status != statusSuccess || strings.TrimSpace(document.ShortenedURL) == "" {
		return "", fmt.Errorf("shortener: api reported status %q", document.Status)
	}
	return document.ShortenedURL, nil
}
