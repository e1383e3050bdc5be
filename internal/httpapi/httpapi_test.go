package httpapi

import (
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineld/videosentry/internal/alertlog"
	"github.com/sentineld/videosentry/internal/config"
	"github.com/sentineld/videosentry/internal/metrics"
	"github.com/sentineld/videosentry/internal/supervisor"
	"github.com/sentineld/videosentry/pkg/types"
)

func newTestServer(t *testing.T) (*Server, *alertlog.Log) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cameras.json")
	require.NoError(t, config.Save(path, []types.CameraConfig{
		{ID: "cam1", Name: "Front Door", Type: "usb", Source: "0", Enabled: true},
	}))

	stats := metrics.New()
	sup, err := supervisor.New(path, stats)
	require.NoError(t, err)

	log := alertlog.New(stats)
	return New(log, sup, stats), log
}

func TestPing(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "close", w.Header().Get("Connection"))
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "ok", w.Body.String())
}

func TestNonGetMethodIsRejected(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/ping", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestUnknownRouteReturns404JSON(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not found", body["error"])
}

func TestListAlertsJSONNewestFirst(t *testing.T) {
	s, log := newTestServer(t)
	log.Add(types.Alert{Timestamp: time.Now(), CameraName: "Front Door", Type: types.AlertMotion, Message: "first"})
	log.Add(types.Alert{Timestamp: time.Now(), CameraName: "Front Door", Type: types.AlertMotion, Message: "second"})

	req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var alerts []alertPayload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alerts))
	require.Len(t, alerts, 2)
	assert.Equal(t, "second", alerts[0].Message)
	assert.Equal(t, "first", alerts[1].Message)
	assert.Equal(t, "Front Door", alerts[0].CameraName)
}

func TestListAlertsCSV(t *testing.T) {
	s, log := newTestServer(t)
	log.Add(types.Alert{Timestamp: time.Now(), CameraName: "Front Door", Type: types.AlertMotion, Message: "motion"})

	req := httptest.NewRequest(http.MethodGet, "/alerts?format=csv", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
}

func TestAlertSnapshotMissingReturns404(t *testing.T) {
	s, log := newTestServer(t)
	id := log.Add(types.Alert{Timestamp: time.Now(), CameraName: "Front Door", Type: types.AlertMotion})

	req := httptest.NewRequest(http.MethodGet, "/alerts/"+id+"/snapshot", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAlertSnapshotWithoutExportReturns404(t *testing.T) {
	s, log := newTestServer(t)
	alert := types.Alert{Timestamp: time.Now(), CameraName: "Front Door", Type: types.AlertSnapshot,
		SnapshotImage: image.NewRGBA(image.Rect(0, 0, 2, 2))}
	id := log.Add(alert)

	req := httptest.NewRequest(http.MethodGet, "/alerts/"+id+"/snapshot", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAlertSnapshotFoundAfterExport(t *testing.T) {
	s, log := newTestServer(t)
	alert := types.Alert{Timestamp: time.Now(), CameraName: "Front Door", Type: types.AlertSnapshot,
		SnapshotImage: image.NewRGBA(image.Rect(0, 0, 2, 2))}
	id := log.Add(alert)

	dir := t.TempDir()
	_, err := log.ExportSnapshotPNG(id, dir)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/alerts/"+id+"/snapshot", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
}

func TestListCameras(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/cameras", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var cams []cameraPayload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cams))
	require.Len(t, cams, 1)
	assert.Equal(t, "cam0", cams[0].ID)
	assert.Equal(t, "Front Door", cams[0].Name)
	assert.Equal(t, "usb", cams[0].Type)
	assert.Equal(t, "0", cams[0].Source)
}

func TestCameraSnapshotNoFrameReturns503(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/cameras/cam0/snapshot", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCameraSnapshotUnknownIndexReturns404(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/cameras/cam7/snapshot", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
