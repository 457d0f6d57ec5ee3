package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stretchr/testify/require"

	"github.com/Hrzwahusa/Open-Soundtouch/internal/config"
)

func TestNewHandlerServesMediaSurface(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{
		SQLiteDBPath:         filepath.Join(dir, "hub.db"),
		MediaRoot:            filepath.Join(dir, "music"),
		MediaHTTPPort:        9000,
		DeviceTimeoutMs:      1000,
		DiscoveryConcurrency: 4,
		DisableNotify:        true,
	}

	handler, shutdown, err := NewHandler(cfg, Options{DisableDiscovery: true, DisableWatch: true})
	require.NoError(t, err)
	defer func() { require.NoError(t, shutdown(context.Background())) }()

	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/library")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
