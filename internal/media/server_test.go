package media

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	lib, _ := testLibrary(t)
	server := NewServer(lib)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return server, srv
}

func TestServeFileWithForcedMIME(t *testing.T) {
	_, srv := testServer(t)

	resp, err := http.Get(srv.URL + "/media/albums/harvest/01%20-%20Out%20on%20the%20Weekend.mp3")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "mp3data", string(body))
}

func TestServeFileRangeRequests(t *testing.T) {
	_, srv := testServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/media/loose.m4a", nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=0-2")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "m4a", string(body))
}

func TestServeFileUnknownPath(t *testing.T) {
	_, srv := testServer(t)

	resp, err := http.Get(srv.URL + "/media/albums/harvest/missing.mp3")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Non-indexed files are unreachable even though they exist on disk.
	resp, err = http.Get(srv.URL + "/media/notes.txt")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLibraryListing(t *testing.T) {
	_, srv := testServer(t)

	resp, err := http.Get(srv.URL + "/library")
	require.NoError(t, err)
	defer resp.Body.Close()

	var entries []struct {
		Path string `json:"path"`
		Name string `json:"name"`
		Size int64  `json:"size"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 4)
	require.Equal(t, "albums/harvest/01 - Out on the Weekend.mp3", entries[0].Path)
}

func TestHealthCarriesInstanceID(t *testing.T) {
	server, srv := testServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, server.InstanceID(), payload["instanceId"])
	require.NotEmpty(t, server.InstanceID())
}

func TestTrackURLEscaping(t *testing.T) {
	lib, _ := testLibrary(t)
	server := NewServer(lib)

	url := server.TrackURL("192.168.1.5", 9000, "albums/harvest/01 - Out on the Weekend.mp3")
	require.Equal(t, "http://192.168.1.5:9000/media/albums/harvest/01%20-%20Out%20on%20the%20Weekend.mp3", url)
}
