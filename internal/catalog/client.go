package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout = 30 * time.Second

	// MaxDownloadBytes bounds a single level package download.
	MaxDownloadBytes int64 = 512 << 20
)

var (
	// ErrMapNotFound marks an identifier the catalog does not know.
	ErrMapNotFound = errors.New("map not found")
	// ErrNoVersions marks a map without any uploaded version.
	ErrNoVersions = errors.New("map has no published versions")
)

// SortOrder selects the ranking used by Search.
type SortOrder string

const (
	SortLatest    SortOrder = "Latest"
	SortRelevance SortOrder = "Relevance"
)

// SearchOptions filters a catalog search.
type SearchOptions struct {
	Query string
	Order SortOrder
	// ExcludeExtensions drops maps requiring Noodle Extensions or Mapping
	// Extensions.
	ExcludeExtensions bool
}

// Client talks to a BeatSaver-compatible API.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// New creates a catalog client.
func New(baseURL, userAgent string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("catalog base url required")
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  strings.TrimSpace(userAgent),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// GetMap fetches the detail document for id.
func (c *Client) GetMap(ctx context.Context, id string) (*MapDetail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("map id must not be empty")
	}
	var detail MapDetail
	if err := c.getJSON(ctx, c.baseURL+"/maps/id/"+url.PathEscape(id), &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Search returns one upstream page of results.
func (c *Client) Search(ctx context.Context, opts SearchOptions, page int) (*SearchResponse, error) {
	if page < 0 {
		page = 0
	}
	endpoint, err := url.Parse(c.baseURL + "/search/text/" + strconv.Itoa(page))
	if err != nil {
		return nil, fmt.Errorf("parse catalog url: %w", err)
	}
	order := opts.Order
	if order == "" {
		order = SortLatest
	}
	params := url.Values{}
	params.Set("sortOrder", string(order))
	if q := strings.TrimSpace(opts.Query); q != "" {
		params.Set("q", q)
	}
	if opts.ExcludeExtensions {
		params.Set("noodle", "false")
		params.Set("me", "false")
	}
	endpoint.RawQuery = params.Encode()

	var resp SearchResponse
	if err := c.getJSON(ctx, endpoint.String(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Download fetches a level package into memory.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	resp, latency, err := c.do(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned %d (latency=%v)", resp.StatusCode, latency)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read download body: %w", err)
	}
	if int64(len(data)) > MaxDownloadBytes {
		return nil, fmt.Errorf("download exceeds %d bytes", MaxDownloadBytes)
	}
	return data, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	resp, latency, err := c.do(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w (latency=%v)", ErrMapNotFound, latency)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("catalog returned %d (latency=%v)", resp.StatusCode, latency)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode catalog response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, rawURL string) (*http.Response, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, latency, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	return resp, latency, nil
}
