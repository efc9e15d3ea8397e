package vcgamers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the VCGamers public API base URL.
	DefaultBaseURL = "https://api.vcgamers.com/v1"

	maxResponseBytes = 16 << 20
)

// Config holds VCGamers API credentials and limits.
type Config struct {
	BaseURL       string
	APIKey        string
	SecretKey     string
	RatePerSecond float64
	Timeout       time.Duration
}

// Client is a minimal HTTP client for the VCGamers catalog endpoints.
// Requests are throttled by a token bucket and never retried.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	secretKey  string
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewClient constructs a new VCGamers client with sane defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		secretKey:  cfg.SecretKey,
		limiter:    rate.NewLimiter(limit, 1),
		now:        time.Now,
	}
}

// ListBrands returns the raw brand list.
func (c *Client) ListBrands(ctx context.Context) ([]Brand, error) {
	var resp listResponse[Brand]
	if err := c.doRequest(ctx, "/brands", &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ListBrandProducts returns the raw product list of brandKey.
func (c *Client) ListBrandProducts(ctx context.Context, brandKey string) ([]Product, error) {
	var resp listResponse[Product]
	if err := c.doRequest(ctx, "/brands/"+url.PathEscape(brandKey)+"/products", &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ListVariations returns the raw variation list of brandKey.
func (c *Client) ListVariations(ctx context.Context, brandKey string) ([]Variation, error) {
	var resp listResponse[Variation]
	if err := c.doRequest(ctx, "/brands/"+url.PathEscape(brandKey)+"/variations", &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// sign returns hex(HMAC-SHA256(secretKey, method + path + timestamp)).
func (c *Client) sign(method, path, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(method + path + timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}

// doRequest performs a signed GET and decodes the JSON envelope into result.
func (c *Client) doRequest(ctx context.Context, path string, result envelope) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	ts := strconv.FormatInt(c.now().Unix(), 10)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-Signature", c.sign(http.MethodGet, path, ts))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Debug().
		Str("path", path).
		Int("status_code", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("[VCGAMERS] response")

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !result.ok() {
		return &APIError{StatusCode: resp.StatusCode, Message: result.message()}
	}
	return nil
}

func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return e.Message
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
