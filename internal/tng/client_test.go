package tng

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"subhalo-pipeline/internal/model"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	retry := model.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 2}
	c := NewClient(srv.URL+"/api/Illustris-1", "secret", 135, 5*time.Second, retry, zaptest.NewLogger(t))
	c.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return c
}

func TestSubhalo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/Illustris-1/snapshots/135/subhalos/42/", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":42,"pos_x":1.5,"pos_y":2.5,"pos_z":3.5,"mass_dm":12.0,"sfr":0.3}`))
	}))
	defer srv.Close()

	sub, err := newTestClient(t, srv).Subhalo(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), sub.ID)
	assert.Equal(t, [3]float64{1.5, 2.5, 3.5}, sub.Pos())
	assert.Equal(t, 12.0, sub.MassDM)
	assert.Equal(t, 0.3, sub.SFR)
}

func TestSimulation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"Illustris-1","boxsize":75000.0,"hubble":0.704}`))
	}))
	defer srv.Close()

	sim, err := newTestClient(t, srv).Simulation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Illustris-1", sim.Name)
	assert.Equal(t, 75000.0, sim.BoxSize)
}

func TestNotFoundIsMissingAndNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Subhalo(context.Background(), 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrMissingData)
	assert.NotErrorIs(t, err, model.ErrTransient)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.Equal(t, int32(1), calls.Load())
}

func TestServerErrorRetriedThenTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Subhalo(context.Background(), 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTransient)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetrySucceedsAfterTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"id":7}`))
	}))
	defer srv.Close()

	sub, err := newTestClient(t, srv).Subhalo(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), sub.ID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestForbiddenIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Subhalo(context.Background(), 7)
	require.Error(t, err)
	assert.False(t, errors.Is(err, model.ErrTransient))
	assert.False(t, errors.Is(err, model.ErrMissingData))
	assert.Contains(t, err.Error(), "bad key")
	assert.Equal(t, int32(1), calls.Load())
}

func TestCutoutDownloadsThenCaches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/Illustris-1/snapshots/135/subhalos/5/cutout.hdf5", r.URL.Path)
		assert.Equal(t, "Coordinates,Masses", r.URL.Query().Get("gas"))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("HDF5 payload"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	dir := filepath.Join(t.TempDir(), "gas")
	q := url.Values{"gas": {"Coordinates,Masses"}}

	path, cached, err := c.Cutout(context.Background(), 5, dir, q)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, filepath.Join(dir, "cutout_5.hdf5"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "HDF5 payload", string(data))

	path2, cached, err := c.Cutout(context.Background(), 5, dir, q)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, path, path2)
	assert.Equal(t, int32(1), calls.Load())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCutoutFailureLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dir := t.TempDir()
	_, _, err := newTestClient(t, srv).Cutout(context.Background(), 9, dir, nil)
	require.ErrorIs(t, err, model.ErrTransient)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRetryStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.sleep = sleepCtx
	c.Retry.InitialDelay = time.Hour
	c.Retry.MaxDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Subhalo(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNextDelay(t *testing.T) {
	cfg := model.RetryConfig{InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffMultiplier: 2}
	assert.Equal(t, time.Second, nextDelay(cfg, 1))
	assert.Equal(t, 2*time.Second, nextDelay(cfg, 2))
	assert.Equal(t, 4*time.Second, nextDelay(cfg, 3))
	assert.Equal(t, 5*time.Second, nextDelay(cfg, 4))

	cfg.Jitter = true
	d := nextDelay(cfg, 2)
	assert.InDelta(t, float64(2*time.Second), float64(d), float64(200*time.Millisecond))
}
