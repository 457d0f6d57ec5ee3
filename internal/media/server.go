package media

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// audioMIMETypes forces correct Content-Type per extension; some renderers
// refuse streams served as octet-stream.
var audioMIMETypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".wma":  "audio/x-ms-wma",
	".aac":  "audio/aac",
}

// Server exposes the library over HTTP for the speakers to stream from.
type Server struct {
	library    *Library
	instanceID string
}

// NewServer creates a Server over library. Each instance gets a fresh ID so
// renderers never resume stale sessions against a restarted server.
func NewServer(library *Library) *Server {
	return &Server{
		library:    library,
		instanceID: uuid.NewString(),
	}
}

// InstanceID returns the server's run-scoped identifier.
func (s *Server) InstanceID() string { return s.instanceID }

// TrackURL builds the URL a renderer on the LAN uses to fetch rel.
func (s *Server) TrackURL(host string, port int, rel string) string {
	escaped := url.PathEscape(filepath.ToSlash(rel))
	// PathEscape encodes the separators too; put them back.
	escaped = strings.ReplaceAll(escaped, "%2F", "/")
	return fmt.Sprintf("http://%s:%d/media/%s", host, port, escaped)
}

// Handler builds the HTTP handler.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(s.corsMiddleware)
	router.Use(requestLogger)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok", "instanceId": s.instanceID})
	})

	router.Get("/library", func(w http.ResponseWriter, r *http.Request) {
		files := s.library.Files()
		type entry struct {
			Path string `json:"path"`
			Name string `json:"name"`
			Size int64  `json:"size"`
		}
		entries := make([]entry, 0, len(files))
		for _, file := range files {
			entries = append(entries, entry{Path: file.Rel, Name: file.Name, Size: file.Size})
		}
		writeJSON(w, entries)
	})

	router.Get("/media/*", s.serveFile)
	router.Head("/media/*", s.serveFile)

	return router
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	unescaped, err := url.PathUnescape(rel)
	if err == nil {
		rel = unescaped
	}

	file, ok := s.library.Lookup(rel)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if mimeType, known := audioMIMETypes[strings.ToLower(filepath.Ext(file.Path))]; known {
		w.Header().Set("Content-Type", mimeType)
	}
	// ServeFile handles Range requests; renderers seek aggressively.
	http.ServeFile(w, r, file.Path)
}

// corsMiddleware lets browser-based controllers hit the library endpoints.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Range")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("MEDIA: %s %s %s", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("MEDIA: encode response: %v", err)
	}
}
