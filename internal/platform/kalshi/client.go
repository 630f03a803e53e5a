// Package kalshi talks to the binary-contract exchange: a REST client
// for the market catalog and an RSA-signed WebSocket feed of orderbook
// snapshots, quantity deltas, and ticker updates.
package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is the REST client for the exchange API.
type Client struct {
	baseURL    string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
}

// NewClient creates a REST client.
//
// baseURL is the API root, e.g. "https://api.elections.kalshi.com/trade-api/v2".
func NewClient(baseURL, apiKeyID string) *Client {
	return &Client{
		baseURL:  baseURL,
		apiKeyID: apiKeyID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetRSAPrivateKey loads an RSA private key from PEM-encoded bytes and
// configures the client for signed authentication.
func (c *Client) SetRSAPrivateKey(pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return fmt.Errorf("kalshi: no PEM block found in private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// Try PKCS1 as fallback.
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		c.privateKey = pkcs1Key
		return nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	c.privateKey = rsaKey
	return nil
}

// GetMarkets returns one page of the market listing. Callers follow the
// returned cursor until it comes back empty.
func (c *Client) GetMarkets(ctx context.Context, p MarketsParams) (MarketsPage, error) {
	params := url.Values{}
	if p.SeriesTicker != "" {
		params.Set("series_ticker", p.SeriesTicker)
	}
	if p.Status != "" {
		params.Set("status", p.Status)
	}
	if p.Limit > 0 {
		params.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Cursor != "" {
		params.Set("cursor", p.Cursor)
	}

	path := "/markets"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	body, err := c.doSignedRequest(ctx, http.MethodGet, path)
	if err != nil {
		return MarketsPage{}, fmt.Errorf("kalshi: get markets: %w", err)
	}

	var resp struct {
		Markets []Market `json:"markets"`
		Cursor  string   `json:"cursor"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return MarketsPage{}, fmt.Errorf("kalshi: decode markets: %w", err)
	}

	return MarketsPage{Markets: resp.Markets, Cursor: resp.Cursor}, nil
}

// ListSeriesMarkets walks the full paginated listing for one series and
// returns every open market. Pagination exhaustion is the signal that
// the catalog is complete.
func (c *Client) ListSeriesMarkets(ctx context.Context, seriesTicker string) ([]Market, error) {
	var markets []Market
	cursor := ""
	for {
		page, err := c.GetMarkets(ctx, MarketsParams{
			SeriesTicker: seriesTicker,
			Status:       "open",
			Limit:        200,
			Cursor:       cursor,
		})
		if err != nil {
			return nil, err
		}
		markets = append(markets, page.Markets...)
		if page.Cursor == "" {
			return markets, nil
		}
		cursor = page.Cursor
	}
}

// GetMarket returns a single market by its ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (Market, error) {
	path := fmt.Sprintf("/markets/%s", url.PathEscape(ticker))

	body, err := c.doSignedRequest(ctx, http.MethodGet, path)
	if err != nil {
		return Market{}, fmt.Errorf("kalshi: get market %s: %w", ticker, err)
	}

	var resp struct {
		Market Market `json:"market"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Market{}, fmt.Errorf("kalshi: decode market: %w", err)
	}

	return resp.Market, nil
}

// GetOrderbook fetches the current orderbook for one market, used to
// prime reconstruction before the WebSocket snapshot arrives.
func (c *Client) GetOrderbook(ctx context.Context, ticker string) (SnapshotMsg, error) {
	path := fmt.Sprintf("/markets/%s/orderbook", url.PathEscape(ticker))

	body, err := c.doSignedRequest(ctx, http.MethodGet, path)
	if err != nil {
		return SnapshotMsg{}, fmt.Errorf("kalshi: get orderbook %s: %w", ticker, err)
	}

	var resp struct {
		Orderbook struct {
			Yes []PriceLevel `json:"yes"`
			No  []PriceLevel `json:"no"`
		} `json:"orderbook"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return SnapshotMsg{}, fmt.Errorf("kalshi: decode orderbook: %w", err)
	}

	return SnapshotMsg{Ticker: ticker, Yes: resp.Orderbook.Yes, No: resp.Orderbook.No}, nil
}

// doSignedRequest builds, signs, sends, and reads an HTTP request
// against the exchange API.
func (c *Client) doSignedRequest(ctx context.Context, method, path string) ([]byte, error) {
	fullURL := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if err := c.signRequest(req, method, path); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := c.checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// signRequest adds authentication headers. The exchange expects an
// RSA-PSS-SHA256 signature over timestamp + method + path.
func (c *Client) signRequest(req *http.Request, method, path string) error {
	if c.privateKey == nil {
		return fmt.Errorf("kalshi: RSA private key not configured")
	}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	message := ts + method + path

	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("RSA sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)

	return nil
}

// checkStatus maps non-2xx HTTP status codes to errors.
func (c *Client) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr ErrorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("kalshi: not found: %s (%s)", apiErr.Message, apiErr.Code)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("kalshi: unauthorized: %s (%s)", apiErr.Message, apiErr.Code)
	case http.StatusTooManyRequests:
		return fmt.Errorf("kalshi: rate limited: %s (%s)", apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("kalshi: HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}
