// Package httpapi serves the local HTTP query service: alert listing,
// export, snapshot retrieval, and per-camera live frames. See spec §4.8.
// Every handler is GET-only (any other method is 405) and every response
// is written connection-per-request, with no keep-alive, matching the
// original desktop app's single-shot HTTP client usage.
package httpapi

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/sentineld/videosentry/internal/alertlog"
	"github.com/sentineld/videosentry/internal/logger"
	"github.com/sentineld/videosentry/internal/metrics"
	"github.com/sentineld/videosentry/internal/supervisor"
)

var log = logger.Module("httpapi")

// Server serves the query API described in spec §4.8.
type Server struct {
	log   *alertlog.Log
	sup   *supervisor.Supervisor
	stats *metrics.Metrics
}

// New creates a Server backed by log and sup.
func New(log *alertlog.Log, sup *supervisor.Supervisor, stats *metrics.Metrics) *Server {
	return &Server{log: log, sup: sup, stats: stats}
}

// Handler returns the configured http.Handler, ready to mount on a
// listener. Every route is wrapped to enforce GET-only and the fixed
// response headers the query service always sends.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", s.wrap(s.handlePing))
	mux.HandleFunc("/alerts", s.wrap(s.handleAlerts))
	mux.HandleFunc("/alerts/", s.wrap(s.handleAlertSnapshot))
	mux.HandleFunc("/cameras", s.wrap(s.handleCameras))
	mux.HandleFunc("/cameras/", s.wrap(s.handleCameraSnapshot))
	mux.HandleFunc("/", s.wrap(s.handleNotFound))
	return mux
}

func (s *Server) wrap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.stats.HTTPRequests.Add(1)
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Connection", "close")

		if r.Method != http.MethodGet {
			s.stats.HTTPErrors.Add(1)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		h(w, r)
	}
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	writeBody(w, http.StatusOK, []byte("ok"))
}

type alertPayload struct {
	ID           string `json:"id"`
	Timestamp    string `json:"timestamp"`
	CameraName   string `json:"cameraName"`
	Type         string `json:"type"`
	Message      string `json:"message"`
	HasSnapshot  bool   `json:"hasSnapshot"`
	SnapshotPath string `json:"snapshotPath,omitempty"`
}

// handleAlerts serves GET /alerts, with optional ?format=csv|json
// (default json). JSON results are newest first, matching the original
// desktop app's alert log view; CSV rows are oldest first.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	switch format {
	case "csv":
		var buf bytes.Buffer
		if err := s.log.ExportCSV(csv.NewWriter(&buf)); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		writeBody(w, http.StatusOK, buf.Bytes())
	case "json":
		alerts := s.log.List()
		out := make([]alertPayload, len(alerts))
		for i, a := range alerts {
			out[len(alerts)-1-i] = alertPayload{
				ID: a.ID, Timestamp: a.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
				CameraName: a.CameraName, Type: string(a.Type), Message: a.Message,
				HasSnapshot: a.HasImage(), SnapshotPath: a.SnapshotPath,
			}
		}
		writeJSON(w, http.StatusOK, out)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported format"})
	}
}

// handleAlertSnapshot serves GET /alerts/{id}/snapshot by reading the
// alert's persisted snapshot file from disk; an alert that was never
// exported (no snapshot_path) 404s even if it still carries the
// in-memory bitmap, matching the original's disk-backed contract.
func (s *Server) handleAlertSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathSuffix(r.URL.Path, "/alerts/", "/snapshot")
	if !ok {
		s.handleNotFound(w, r)
		return
	}

	alert, found := s.log.Get(id)
	if !found || alert.SnapshotPath == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshot for alert"})
		return
	}

	data, err := os.ReadFile(alert.SnapshotPath)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "snapshot not available"})
		return
	}

	mimeType := "image/png"
	if strings.HasSuffix(alert.SnapshotPath, ".jpg") || strings.HasSuffix(alert.SnapshotPath, ".jpeg") {
		mimeType = "image/jpeg"
	}
	w.Header().Set("Content-Type", mimeType)
	writeBody(w, http.StatusOK, data)
}

type cameraPayload struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Source string `json:"source"`
}

// handleCameras serves GET /cameras: every available (enabled) slot,
// addressed by its 0-based "cam{N}" id.
func (s *Server) handleCameras(w http.ResponseWriter, r *http.Request) {
	out := []cameraPayload{}
	for i := 1; i <= len(s.sup.Slots()); i++ {
		if !s.sup.Available(i) {
			continue
		}
		name, _ := s.sup.CameraName(i)
		typ, _ := s.sup.Type(i)
		source, _ := s.sup.Source(i)
		out = append(out, cameraPayload{ID: fmt.Sprintf("cam%d", i-1), Name: name, Type: typ, Source: source})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCameraSnapshot serves GET /cameras/cam{N}/snapshot, where N is
// the slot's 0-based index.
func (s *Server) handleCameraSnapshot(w http.ResponseWriter, r *http.Request) {
	camID, ok := pathSuffix(r.URL.Path, "/cameras/", "/snapshot")
	if !ok || !strings.HasPrefix(camID, "cam") {
		s.handleNotFound(w, r)
		return
	}

	n, err := strconv.Atoi(strings.TrimPrefix(camID, "cam"))
	if err != nil || n < 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "invalid camera id"})
		return
	}
	i := n + 1

	if !s.sup.Available(i) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "camera not available"})
		return
	}

	frame, found := s.sup.Frame(i)
	if !found || frame == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no frame available"})
		return
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: 85}); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	writeBody(w, http.StatusOK, buf.Bytes())
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}

// pathSuffix matches /{prefix}{id}{suffix} and returns id, unescaped.
func pathSuffix(path, prefix, suffix string) (string, bool) {
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Error("marshal response: %v", err)
		body = []byte(`{"error":"internal error"}`)
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	writeBody(w, status, body)
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Warn("write response: %v", err)
	}
}
