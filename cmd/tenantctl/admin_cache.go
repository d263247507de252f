package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agencyhq/tenancy/modules/domains"
	"github.com/agencyhq/tenancy/pkg/tenant"
)

var errAdminRequest = errors.New("admin api request failed")

// adminCache forwards invalidations to a running tenantd through its admin
// API, so a change made from the CLI drops the server's in-memory entries.
// It caches nothing itself.
type adminCache struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ tenant.Cache = (*adminCache)(nil)

// newAdminCache targets baseURL, the prefix the admin router is mounted at
// (for example http://tenantd:8080/admin).
func newAdminCache(baseURL, apiKey string, client *http.Client) *adminCache {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &adminCache{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

func (c *adminCache) Get(context.Context, string) (*tenant.Config, bool) { return nil, false }

func (c *adminCache) Set(context.Context, string, *tenant.Config, time.Duration) error { return nil }

// Delete drops every server entry containing key, which includes key itself.
func (c *adminCache) Delete(ctx context.Context, key string) error {
	return c.invalidate(ctx, key)
}

// DeleteMatching reports zero removals; the server does not return a count.
func (c *adminCache) DeleteMatching(ctx context.Context, substr string) (int, error) {
	return 0, c.invalidate(ctx, substr)
}

func (c *adminCache) Clear(ctx context.Context) error {
	return c.invalidate(ctx, "")
}

func (c *adminCache) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *adminCache) invalidate(ctx context.Context, identifier string) error {
	target := c.baseURL + "/cache"
	if identifier != "" {
		target += "?" + url.Values{"identifier": {identifier}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", errAdminRequest, err)
	}
	req.Header.Set(domains.APIKeyHeader, c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errAdminRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var body domains.Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil && body.Error != nil {
		return fmt.Errorf("%w: %s: %s", errAdminRequest, resp.Status, body.Error.Message)
	}
	return fmt.Errorf("%w: %s", errAdminRequest, resp.Status)
}
