package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go-canvas-download/internal/canvas"
	"go-canvas-download/internal/models"

	log "github.com/sirupsen/logrus"
)

// Custom Error Types
var (
	ErrUnauthorized = errors.New("API request unauthorized (check API token or session cookie)")
	ErrNotFound     = errors.New("API resource not found")
	ErrServerError  = errors.New("API server error")
	ErrHttpStatus   = errors.New("unexpected API status code")
)

// maxPageBytes caps how much of a fetched page is kept in memory.
const maxPageBytes = 8 << 20

// Client talks to a Canvas instance on behalf of the user.
type Client struct {
	APIToken      string
	SessionCookie string
	HttpClient    *http.Client
}

// Page is the outcome of a GET that followed redirects.
type Page struct {
	FinalURL    *url.URL
	StatusCode  int
	ContentType string
	Body        []byte
}

// Probe is the outcome of a HEAD that followed redirects.
type Probe struct {
	FinalURL   *url.URL
	StatusCode int
	Header     http.Header
}

// NewClient creates a new API client
func NewClient(cfg models.Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := 30 * time.Second
		if cfg.APIClientTimeoutSec > 0 {
			timeout = time.Duration(cfg.APIClientTimeoutSec) * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	log.Debugf("NewClient called (API logging handled by transport if enabled)")

	return &Client{
		APIToken:      cfg.APIToken,
		SessionCookie: cfg.SessionCookie,
		HttpClient:    httpClient,
	}
}

// NewRequest builds a request carrying the user's credentials. Credentials are
// set per request so net/http drops them on redirects to other hosts, such as
// the file CDN Canvas hands downloads off to.
func (c *Client) NewRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if c.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIToken)
	}
	if c.SessionCookie != "" {
		req.Header.Set("Cookie", c.SessionCookie)
	}
	return req, nil
}

// GetFileInfo fetches metadata for one course file.
func (c *Client) GetFileInfo(ctx context.Context, cc canvas.Context, fileID string) (models.FileInfo, error) {
	reqURL := cc.FileAPIURL(fileID)
	req, err := c.NewRequest(ctx, http.MethodGet, reqURL)
	if err != nil {
		log.WithError(err).Errorf("Error creating request for %s", reqURL)
		return models.FileInfo{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HttpClient.Do(req) // Transport will log if enabled
	if err != nil {
		return models.FileInfo{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return models.FileInfo{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.FileInfo{}, fmt.Errorf("error reading response body: %w", err)
	}

	info, err := models.DecodeFileInfo(body)
	if err != nil {
		log.Debugf("Response body causing unmarshal error: %.200s", string(body))
		return models.FileInfo{}, fmt.Errorf("error unmarshalling file info JSON: %w", err)
	}
	return info, nil
}

// Fetch performs a GET following redirects and returns the final URL with
// the body, whatever the status. Only transport failures are errors.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, err
	}
	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Debugf("GET %s returned status %d", rawURL, resp.StatusCode)
	}

	return &Page{
		FinalURL:    finalURL(resp, req),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// Head performs a HEAD following redirects, whatever the status.
func (c *Client) Head(ctx context.Context, rawURL string) (*Probe, error) {
	req, err := c.NewRequest(ctx, http.MethodHead, rawURL)
	if err != nil {
		return nil, err
	}
	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	resp.Body.Close()

	return &Probe{
		FinalURL:   finalURL(resp, req),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}, nil
}

// finalURL is the URL of the last request in the redirect chain.
func finalURL(resp *http.Response, req *http.Request) *url.URL {
	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL
	}
	return req.URL
}

func statusError(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrUnauthorized
	case code == http.StatusNotFound:
		return ErrNotFound
	case code >= 500:
		return fmt.Errorf("%w (status code %d)", ErrServerError, code)
	}
	return fmt.Errorf("%w: %d", ErrHttpStatus, code)
}
