// Package tradeapi is a thin JSON client for the remote watchlist
// persistence and symbol-search API. It mirrors the backend's routes,
// header conventions and TOTP-based session handling.
//
// Usage example:
//
//	c := tradeapi.New(tradeapi.Config{APIKey: "key", RootURL: "https://api.example.in"})
//	if err := c.GenerateSession(ctx, "CLIENTID", "PASSWORD", totpSecret); err != nil { log.Fatal(err) }
//	recs, err := c.List(ctx, refID, "mcx")
package tradeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"marketwatchv1/internal/logger"
	"marketwatchv1/internal/model"
	"marketwatchv1/internal/watchlist"

	"github.com/pquerna/otp/totp"
)

const (
	defaultRoot    = "https://apiconnect.angelone.in"
	defaultTimeout = 7 * time.Second
)

var routes = map[string]string{
	"api.login":  "/rest/auth/user/v1/loginByPassword",
	"api.logout": "/rest/secure/user/v1/logout",

	"watchlist.list":   "/rest/secure/marketwatch/v1/list",
	"watchlist.save":   "/rest/secure/marketwatch/v1/save",
	"watchlist.delete": "/rest/secure/marketwatch/v1/delete",

	"symbol.search": "/rest/secure/order/v1/searchScrip",
}

// Config configures the client.
type Config struct {
	APIKey      string
	AccessToken string

	RootURL string        // default: defaultRoot
	Timeout time.Duration // default: 7s
	Debug   bool
}

// Client talks to the remote API. Safe for concurrent use.
type Client struct {
	apiKey  string
	rootURL string
	debug   bool

	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string

	// SessionExpiryHook fires when the backend answers 401/403.
	SessionExpiryHook func()
}

var _ watchlist.Store = (*Client)(nil)

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		apiKey:      cfg.APIKey,
		rootURL:     strings.TrimRight(cfg.RootURL, "/"),
		debug:       cfg.Debug,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		accessToken: cfg.AccessToken,
	}
}

// GenerateSession logs in with a fresh TOTP code and stores the access
// token for subsequent calls.
func (c *Client) GenerateSession(ctx context.Context, clientID, password, totpSecret string) error {
	code, err := totp.GenerateCode(totpSecret, time.Now())
	if err != nil {
		return fmt.Errorf("tradeapi totp: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, "api.login", map[string]any{
		"clientcode": clientID,
		"password":   password,
		"totp":       code,
	})
	if err != nil {
		return fmt.Errorf("tradeapi login: %w", err)
	}

	var payload struct {
		JWTToken string `json:"jwtToken"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("tradeapi login decode: %w", err)
	}
	if payload.JWTToken == "" {
		return fmt.Errorf("tradeapi login: empty token")
	}

	c.mu.Lock()
	c.accessToken = payload.JWTToken
	c.mu.Unlock()

	log.Println("[tradeapi] session established")
	return nil
}

// List implements watchlist.Store.
func (c *Client) List(ctx context.Context, refID, exchange string) ([]model.WatchlistRecord, error) {
	data, err := c.do(ctx, http.MethodGet, "watchlist.list", map[string]any{
		"refId":    refID,
		"exchange": exchange,
	})
	if err != nil {
		return nil, fmt.Errorf("tradeapi list: %w", err)
	}
	return model.DecodeWatchlistRecords(data)
}

// Search implements watchlist.Store.
func (c *Client) Search(ctx context.Context, refID, exchange, query string) ([]model.SearchResult, error) {
	data, err := c.do(ctx, http.MethodGet, "symbol.search", map[string]any{
		"refId":       refID,
		"exchange":    exchange,
		"searchscrip": query,
	})
	if err != nil {
		return nil, fmt.Errorf("tradeapi search: %w", err)
	}
	return model.DecodeSearchResults(data)
}

// Save implements watchlist.Store.
func (c *Client) Save(ctx context.Context, refID string, item watchlist.Item) error {
	_, err := c.do(ctx, http.MethodPost, "watchlist.save", map[string]any{
		"refId":       refID,
		"symboltoken": item.Token,
		"symbolname":  item.Symbol,
		"exchange":    item.Exchange,
		"lotsize":     item.LotSize,
	})
	if err != nil {
		return fmt.Errorf("tradeapi save: %w", err)
	}
	return nil
}

// Delete implements watchlist.Store.
func (c *Client) Delete(ctx context.Context, refID, exchange, token string) error {
	_, err := c.do(ctx, http.MethodPost, "watchlist.delete", map[string]any{
		"refId":       refID,
		"symboltoken": token,
		"exchange":    exchange,
	})
	if err != nil {
		return fmt.Errorf("tradeapi delete: %w", err)
	}
	return nil
}

// envelope is the backend's standard response shape. Data is kept raw:
// some endpoints double-encode it as a JSON string and the model decoders
// unwrap that themselves.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) requestHeaders(ctx context.Context) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-PrivateKey", c.apiKey)
	if tid := logger.TraceID(ctx); tid != "" {
		h.Set("X-Request-ID", tid)
	}

	c.mu.RLock()
	token := c.accessToken
	c.mu.RUnlock()
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

func (c *Client) do(ctx context.Context, method, route string, params map[string]any) (json.RawMessage, error) {
	uri, ok := routes[route]
	if !ok {
		return nil, fmt.Errorf("unknown route: %s", route)
	}
	reqURL := c.rootURL + uri

	var body io.Reader
	if method == http.MethodGet || method == http.MethodDelete {
		if len(params) > 0 {
			q := url.Values{}
			for k, v := range params {
				q.Set(k, fmt.Sprint(v))
			}
			reqURL += "?" + q.Encode()
		}
	} else {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	req.Header = c.requestHeaders(ctx)

	if c.debug {
		log.Printf("[tradeapi] %s %s", method, reqURL)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		if c.SessionExpiryHook != nil {
			c.SessionExpiryHook()
		}
		return nil, fmt.Errorf("%s: session expired (HTTP %d)", route, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: HTTP %d: %s", route, resp.StatusCode, truncate(raw))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", route, err)
	}
	if !env.Status {
		return nil, fmt.Errorf("%s: %s", route, env.Message)
	}
	return env.Data, nil
}

func truncate(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
