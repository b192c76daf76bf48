package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// CloudSyncConfig holds the remote endpoint queued mutations are pushed to
type CloudSyncConfig struct {
	APIURL string `json:"apiUrl"`
	APIKey string `json:"apiKey"`
	UserID string `json:"userId"`
}

// Validate checks that the config can be used to push
func (c *CloudSyncConfig) Validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return fmt.Errorf("%w: apiUrl is required", ErrInvalidInput)
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: apiUrl must be an absolute http(s) URL", ErrInvalidInput)
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: apiKey is required", ErrInvalidInput)
	}
	return nil
}

// Redacted returns a copy with the API key masked
func (c *CloudSyncConfig) Redacted() *CloudSyncConfig {
	r := *c
	if len(r.APIKey) > 4 {
		r.APIKey = strings.Repeat("*", len(r.APIKey)-4) + r.APIKey[len(r.APIKey)-4:]
	} else if r.APIKey != "" {
		r.APIKey = "****"
	}
	return &r
}
