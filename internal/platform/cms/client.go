// Package cms reads products from the headless content store.
package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/scentbox/pkg/config"
)

var (
	ErrNotFound      = errors.New("cms: product not found")
	ErrNotConfigured = errors.New("cms: base url is not configured")
)

type Brand struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Product struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	Published bool   `json:"published"`
	Brand     *Brand `json:"brand"`
}

// Client is the subset of the content store API the catalog needs.
type Client interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	// ListProducts returns every published product, following pagination.
	ListProducts(ctx context.Context) ([]*Product, error)
}

type listResponse struct {
	Items []*Product `json:"items"`
	// Next is either a path relative to the base URL or an absolute URL on the same host.
	Next string `json:"next"`
}

// HTTPClient talks to the content store REST API with a bearer token.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *zap.SugaredLogger
}

func NewHTTPClient(cfg *config.Config, log *zap.SugaredLogger) *HTTPClient {
	timeout := cfg.CMS.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimSuffix(cfg.CMS.BaseURL, "/"),
		token:      cfg.CMS.Token,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

func (c *HTTPClient) GetProduct(ctx context.Context, id string) (*Product, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	var p Product
	if err := c.get(ctx, "/products/"+url.PathEscape(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) ListProducts(ctx context.Context) ([]*Product, error) {
	var out []*Product
	path := "/products?published=true"
	for page := 0; path != ""; page++ {
		if page >= 1000 {
			return nil, fmt.Errorf("cms: pagination did not terminate")
		}
		var res listResponse
		if err := c.get(ctx, path, &res); err != nil {
			return nil, err
		}
		out = append(out, res.Items...)
		path = res.Next
	}
	return out, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}
	target, err := c.resolve(path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request to cms: %w", err)
	}
	defer resp.Body.Close()
	c.log.Debugw("cms request", "path", path, "status", resp.StatusCode, "elapsed_ms", time.Since(start).Milliseconds())

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		return fmt.Errorf("cms returned error status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode cms response: %w", err)
	}
	return nil
}

// resolve joins a relative ref to the base URL. Absolute refs must stay on the
// base URL's host so the bearer token is never sent elsewhere.
func (c *HTTPClient) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("cms: invalid url %q: %w", ref, err)
	}
	if !u.IsAbs() {
		return c.baseURL + ref, nil
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("cms: invalid base url: %w", err)
	}
	if u.Scheme != base.Scheme || u.Host != base.Host {
		return "", fmt.Errorf("cms: refusing to follow %s outside %s", u.Redacted(), base.Host)
	}
	return u.String(), nil
}

var Module = fx.Options(
	fx.Provide(
		NewHTTPClient,
		func(c *HTTPClient) Client { return c },
	),
)
