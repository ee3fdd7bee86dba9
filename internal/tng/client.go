// Package tng is a client for the Illustris/TNG web API: simulation metadata,
// subhalo catalogue entries and particle cutouts.
package tng

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"subhalo-pipeline/internal/model"
	"subhalo-pipeline/pkg/utils"
)

// Client talks to one simulation of the API. It is safe for concurrent use.
type Client struct {
	BaseURL  string
	APIKey   string
	Snapshot int
	HTTP     *http.Client
	Retry    model.RetryConfig
	Logger   *zap.Logger

	sleep func(context.Context, time.Duration) error
}

// NewClient creates a client for the simulation rooted at baseURL.
func NewClient(baseURL, apiKey string, snapshot int, timeout time.Duration, retry model.RetryConfig, logger *zap.Logger) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		Snapshot: snapshot,
		HTTP:     &http.Client{Timeout: timeout},
		Retry:    retry,
		Logger:   logger,
		sleep:    sleepCtx,
	}
}

func (c *Client) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// SubhaloURL returns the catalogue URL of a subhalo.
func (c *Client) SubhaloURL(id model.SubhaloID) string {
	return fmt.Sprintf("%ssnapshots/%d/subhalos/%d/", c.BaseURL, c.Snapshot, id)
}

// Simulation fetches the simulation metadata.
func (c *Client) Simulation(ctx context.Context) (*Simulation, error) {
	var sim Simulation
	if err := c.getJSON(ctx, c.BaseURL, nil, &sim); err != nil {
		return nil, fmt.Errorf("failed to fetch simulation: %w", err)
	}
	return &sim, nil
}

// Subhalo fetches the catalogue entry of id.
func (c *Client) Subhalo(ctx context.Context, id model.SubhaloID) (*Subhalo, error) {
	var sub Subhalo
	if err := c.getJSON(ctx, c.SubhaloURL(id), nil, &sub); err != nil {
		return nil, fmt.Errorf("failed to fetch subhalo %d: %w", id, err)
	}
	return &sub, nil
}

// Cutout returns the path of the cutout of id inside dir, downloading it only
// when the file is not already there. query selects particle fields, e.g.
// gas=Coordinates,Masses.
func (c *Client) Cutout(ctx context.Context, id model.SubhaloID, dir string, query url.Values) (path string, cached bool, err error) {
	path = utils.CutoutFile(dir, int64(id))
	if utils.Exists(path) {
		return path, true, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", false, fmt.Errorf("failed to create cutout directory: %w", err)
	}

	c.logger().Info("downloading cutout", zap.Stringer("subhalo", id), zap.String("dir", dir))
	endpoint := c.SubhaloURL(id) + "cutout.hdf5"
	err = c.withRetry(ctx, endpoint, func() error {
		return c.download(ctx, endpoint, query, path)
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to download cutout %d: %w", id, err)
	}
	return path, false, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, query url.Values, v any) error {
	return c.withRetry(ctx, endpoint, func() error {
		resp, err := c.get(ctx, endpoint, query)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("failed to decode JSON from %s: %w", endpoint, err)
		}
		return nil
	})
}

// download streams the body into a temporary file next to dest and renames
// it into place, so an interrupted transfer never looks cached.
func (c *Client) download(ctx context.Context, endpoint string, query url.Values, dest string) error {
	resp, err := c.get(ctx, endpoint, query)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".part-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: reading body of %s: %v", model.ErrTransient, endpoint, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("failed to move cutout into place: %w", err)
	}
	return nil
}

// get performs one request and maps failures onto the item error classes.
// The caller closes the body of a successful response.
func (c *Client) get(ctx context.Context, endpoint string, query url.Values) (*http.Response, error) {
	u := endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid request %s: %w", u, err)
	}
	if c.APIKey != "" {
		req.Header.Set("api-key", c.APIKey)
	}
	req.Header.Set("Accept", "application/json, application/octet-stream")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", model.ErrTransient, err)
	}

	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	resp.Body.Close()
	err = &StatusError{URL: u, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %w", model.ErrMissingData, err)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %w", model.ErrTransient, err)
	default:
		return nil, err
	}
}

// StatusError is a non-200 API response.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	msg := "GET " + e.URL + ": " + strconv.Itoa(e.Code) + " " + http.StatusText(e.Code)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// IsStatus reports whether err carries an API response with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
