// Package chunirec is a client for the chunirec 2.0 REST API, the upstream
// source of player profiles, rating lists, play history and the music
// catalog.
package chunirec

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
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ramonehamilton/CHUNI-Companion/internal/rating"
)

const (
	// DefaultBaseURL is the public chunirec API root.
	DefaultBaseURL = "https://api.chunirec.net/2.0"
	// DefaultRegion is the region passed with per-user requests.
	DefaultRegion = "jp2"

	defaultUserAgent = "CHUNI-Companion/1.0"

	rateLimitDelay = 250 * time.Millisecond
	requestTimeout = 30 * time.Second
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	maxBackoff     = 16 * time.Second
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	Token      string
	Region     string
	UserAgent  string
	Timeout    time.Duration
	RateDelay  time.Duration
	MaxRetries int
	HTTPClient *http.Client

	// OnResponse, when set, is called once per upstream response.
	OnResponse func(endpoint string, status int, elapsed time.Duration)
}

// Client talks to the chunirec API.
type Client struct {
	baseURL     string
	token       string
	region      string
	userAgent   string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	maxRetries  int
	backoff     time.Duration
	onResponse  func(string, int, time.Duration)

	mu        sync.RWMutex
	lastQuota RateLimitInfo
}

// NewClient creates a client. Zero config fields take package defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = requestTimeout
	}
	if cfg.RateDelay <= 0 {
		cfg.RateDelay = rateLimitDelay
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = maxRetries
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       strings.TrimSpace(cfg.Token),
		region:      cfg.Region,
		userAgent:   cfg.UserAgent,
		httpClient:  httpClient,
		rateLimiter: rate.NewLimiter(rate.Every(cfg.RateDelay), 1),
		maxRetries:  cfg.MaxRetries,
		backoff:     initialBackoff,
		onResponse:  cfg.OnResponse,
	}
}

// HasToken reports whether the client was configured with a token.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// LastRateLimit returns the quota reported by the most recent response.
func (c *Client) LastRateLimit() RateLimitInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastQuota
}

// GetProfile fetches a player's profile. An empty user selects the owner
// of the token.
func (c *Client) GetProfile(ctx context.Context, user string) (*Profile, error) {
	var profile Profile
	if err := c.doRequest(ctx, "records/profile.json", c.userQuery(user), &profile); err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

// GetRatingData fetches the player's best and recent rating lists.
func (c *Client) GetRatingData(ctx context.Context, user string) (*RatingData, error) {
	var data RatingData
	if err := c.doRequest(ctx, "records/rating_data.json", c.userQuery(user), &data); err != nil {
		return nil, fmt.Errorf("failed to get rating data: %w", err)
	}
	return &data, nil
}

// GetRecords fetches every record the player has on file.
func (c *Client) GetRecords(ctx context.Context, user string) (*UserRecords, error) {
	var records UserRecords
	if err := c.doRequest(ctx, "records/showall.json", c.userQuery(user), &records); err != nil {
		return nil, fmt.Errorf("failed to get records: %w", err)
	}
	return &records, nil
}

// GetMusic fetches the global music catalog flattened to one record per
// chart.
func (c *Client) GetMusic(ctx context.Context) ([]rating.Record, error) {
	var raw json.RawMessage
	q := url.Values{"region": {c.region}}
	if err := c.doRequest(ctx, "music/showall.json", q, &raw); err != nil {
		return nil, fmt.Errorf("failed to get music catalog: %w", err)
	}
	records, err := FlattenMusic(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to get music catalog: %w", err)
	}
	return records, nil
}

// RawResponse is an upstream response passed through untouched.
type RawResponse struct {
	StatusCode int
	Body       []byte
	Header     http.Header
	RateLimit  RateLimitInfo
}

// Forward issues a single GET to {base}/{endpoint} with query and the given
// token. It does not retry and does not interpret the status; callers relay
// the response as-is. An empty token falls back to the client's own.
func (c *Client) Forward(ctx context.Context, endpoint string, query url.Values, token string) (*RawResponse, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		token = c.token
	}
	if token == "" {
		return nil, ErrNoToken
	}

	q := url.Values{}
	for k, vs := range query {
		q[k] = append([]string(nil), vs...)
	}
	q.Set("token", token)

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	endpoint = strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.observe(endpoint, resp, time.Since(start))

	header := http.Header{}
	for _, h := range RateLimitHeaders {
		if v := resp.Header.Get(h); v != "" {
			header.Set(h, v)
		}
	}
	return &RawResponse{
		StatusCode: resp.StatusCode,
		Body:       body,
		Header:     header,
		RateLimit:  ParseRateLimit(resp.Header),
	}, nil
}

func (c *Client) userQuery(user string) url.Values {
	q := url.Values{"region": {c.region}}
	if user = strings.TrimSpace(user); user != "" {
		q.Set("user_name", user)
	}
	return q
}

func (c *Client) observe(endpoint string, resp *http.Response, elapsed time.Duration) {
	if quota := ParseRateLimit(resp.Header); quota.Present {
		c.mu.Lock()
		c.lastQuota = quota
		c.mu.Unlock()
	}
	if c.onResponse != nil {
		c.onResponse(endpoint, resp.StatusCode, elapsed)
	}
}

// doRequest performs a GET with rate limiting and retries, decoding a 200
// body into result.
func (c *Client) doRequest(ctx context.Context, endpoint string, query url.Values, result any) error {
	if c.token == "" {
		return ErrNoToken
	}
	q := url.Values{}
	for k, vs := range query {
		q[k] = vs
	}
	q.Set("token", c.token)
	reqURL := c.baseURL + "/" + endpoint + "?" + q.Encode()

	var lastErr error
	backoff := c.backoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter error: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt < c.maxRetries {
				if err := sleepCtx(ctx, backoff); err != nil {
					return err
				}
				backoff = min(backoff*2, maxBackoff)
				continue
			}
			return lastErr
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		c.observe(endpoint, resp, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK:
			if err := json.Unmarshal(body, result); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			return nil

		case http.StatusTooManyRequests:
			lastErr = ParseAPIError(resp.StatusCode, body)
			if attempt < c.maxRetries {
				wait := backoff
				if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
					if secs, err := strconv.Atoi(retryAfter); err == nil {
						wait = time.Duration(secs) * time.Second
					}
				}
				if err := sleepCtx(ctx, wait); err != nil {
					return err
				}
				backoff = min(backoff*2, maxBackoff)
				continue
			}
			return lastErr

		case http.StatusNotFound:
			return &NotFoundError{URL: c.baseURL + "/" + endpoint}

		default:
			return ParseAPIError(resp.StatusCode, body)
		}
	}

	if lastErr == nil {
		lastErr = errors.New("request failed after retries")
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
