// Package cloud pushes queued mutations to the AgroLink cloud API.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/custodia-labs/agrolink-core/internal/core/domain"
)

const (
	defaultTimeout = 30 * time.Second
	tokenTTL       = 5 * time.Minute
	tokenIssuer    = "agrolink-core"
	userAgent      = "agrolink-core"

	// maxErrorBody caps how much of an error response is kept
	maxErrorBody = 512
)

// StatusError is returned for any non-2xx response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("cloud API error %d", e.StatusCode)
	}
	return fmt.Sprintf("cloud API error %d: %s", e.StatusCode, e.Body)
}

// Unwrap maps 401 and 403 to domain.ErrUnauthorized
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return domain.ErrUnauthorized
	}
	return nil
}

// Client talks to the cloud sync API described by a CloudSyncConfig.
type Client struct {
	baseURL    string
	apiKey     []byte
	userID     string
	httpClient *http.Client
	now        func() time.Time
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock overrides the clock used for token timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a client for cfg. cfg is validated first.
func NewClient(cfg *domain.CloudSyncConfig, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, domain.ErrNotConfigured
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(cfg.APIURL, "/"),
		apiKey:     []byte(cfg.APIKey),
		userID:     cfg.UserID,
		httpClient: &http.Client{Timeout: defaultTimeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// pushRequest is the body POSTed for one queued mutation
type pushRequest struct {
	ID         string            `json:"id"`
	Type       domain.EntityType `json:"type"`
	Action     domain.SyncAction `json:"action"`
	Data       json.RawMessage   `json:"data,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	RetryCount int               `json:"retryCount"`
	UserID     string            `json:"userId,omitempty"`
}

// Push sends item to {apiUrl}/sync/{type}. It has the shape of a
// driving.SyncFunc: true on 2xx, false with an error otherwise. The item id
// is sent as the Idempotency-Key so a retried push is applied once.
func (c *Client) Push(ctx context.Context, item *domain.SyncQueueItem) (bool, error) {
	body, err := json.Marshal(pushRequest{
		ID:         item.ID,
		Type:       item.Type,
		Action:     item.Action,
		Data:       item.Data,
		CreatedAt:  item.CreatedAt,
		RetryCount: item.RetryCount,
		UserID:     c.userID,
	})
	if err != nil {
		return false, fmt.Errorf("encode push request: %w", err)
	}

	path := "/sync/" + url.PathEscape(string(item.Type))
	resp, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(body), func(req *http.Request) {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", item.ID)
	})
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return true, nil
}

// Ping checks {apiUrl}/health. Transport failures wrap domain.ErrOffline.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// do sends an authenticated request. Non-2xx responses become a *StatusError.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, decorate func(*http.Request)) (*http.Response, error) {
	token, err := c.token()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if decorate != nil {
		decorate(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return nil, fmt.Errorf("%w: %s %s timed out", domain.ErrOffline, method, path)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrOffline, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	return resp, nil
}

// token signs a short-lived HS256 bearer with the API key
func (c *Client) token() (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   c.userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.apiKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
