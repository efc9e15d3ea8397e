package digiflazz

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// BaseURL is the Digiflazz API base URL.
	BaseURL = "https://api.digiflazz.com/v1"
)

// Client is a minimal HTTP client for the Digiflazz price-list API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	apiKey     string
}

// NewClient constructs a new Digiflazz client with sane defaults.
func NewClient(username, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    BaseURL,
		username:   username,
		apiKey:     apiKey,
	}
}

// WithBaseURL points the client at another host. Used by tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

// sign generates the MD5 hex signature Digiflazz expects.
// sign = md5(username + apiKey + data)
func (c *Client) sign(data string) string {
	sum := md5.Sum([]byte(c.username + c.apiKey + data))
	return hex.EncodeToString(sum[:])
}

// GetPricelist retrieves the list of products for the specified type ("prepaid" or "pasca").
func (c *Client) GetPricelist(ctx context.Context, productType string) (*PricelistResponse, error) {
	req := PricelistRequest{
		Cmd:      productType,
		Username: c.username,
		Sign:     c.sign("pricelist"),
	}
	var resp PricelistResponse
	if err := c.doRequest(ctx, "/price-list", req, &resp); err != nil {
		return nil, err
	}
	if resp.Message != "" && len(resp.Data) == 0 {
		return nil, fmt.Errorf("digiflazz: %s (rc %s)", resp.Message, resp.RC)
	}
	return &resp, nil
}

// doRequest performs the HTTP POST to the Digiflazz API with JSON payloads and
// decodes the JSON response into result.
func (c *Client) doRequest(ctx context.Context, endpoint string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Debug().
		Str("endpoint", endpoint).
		Int("status_code", resp.StatusCode).
		Int("bytes", len(respBody)).
		Msg("[DIGIFLAZZ] Incoming response")

	// Digiflazz often returns 200 with status encapsulated in JSON,
	// but decode regardless of status code to provide any error message.
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}
