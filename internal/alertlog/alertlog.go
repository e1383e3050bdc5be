// Package alertlog is the single source of truth for recorded alerts: an
// insertion-ordered, in-memory log fed by exactly one writer goroutine that
// drains the event bus every capture pipeline posts to (spec §4.7). All
// mutation happens on that one goroutine or under Log's mutex, never both
// racing: HTTP handlers and export helpers only ever read or request
// removal through Log's exported methods.
package alertlog

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sentineld/videosentry/internal/logger"
	"github.com/sentineld/videosentry/internal/metrics"
	"github.com/sentineld/videosentry/pkg/types"
)

var log = logger.Module("alertlog")

// Log holds every recorded alert, oldest first.
type Log struct {
	mu     sync.Mutex
	alerts []types.Alert
	seq    uint64
	stats  *metrics.Metrics
}

// New creates an empty Log that records AlertsLogged/AlertsRemoved/
// SnapshotsSaved/ExportsRun onto stats.
func New(stats *metrics.Metrics) *Log {
	return &Log{stats: stats}
}

// Add appends alert, assigning it an ID if it doesn't already have one, and
// returns the assigned ID.
func (l *Log) Add(alert types.Alert) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if alert.ID == "" {
		alert.ID = l.nextID(alert.Timestamp)
	}
	l.alerts = append(l.alerts, alert)
	l.stats.AlertsLogged.Add(1)
	return alert.ID
}

// nextID mints a timestamp-ordered, collision-free ID: millisecond
// timestamp plus a monotonic tie-breaking sequence number.
func (l *Log) nextID(ts time.Time) string {
	l.seq++
	return fmt.Sprintf("%d-%d", ts.UnixMilli(), l.seq)
}

// List returns a defensive copy of all alerts, oldest first.
func (l *Log) List() []types.Alert {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.Alert, len(l.alerts))
	copy(out, l.alerts)
	return out
}

// Get returns the alert with the given ID.
func (l *Log) Get(id string) (types.Alert, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.alerts {
		if a.ID == id {
			return a, true
		}
	}
	return types.Alert{}, false
}

// RemoveAt removes the alert at index i. Reports false if i is out of
// range.
func (l *Log) RemoveAt(i int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.removeAtLocked(i)
}

func (l *Log) removeAtLocked(i int) bool {
	if i < 0 || i >= len(l.alerts) {
		return false
	}
	l.alerts = append(l.alerts[:i], l.alerts[i+1:]...)
	l.stats.AlertsRemoved.Add(1)
	return true
}

// RemoveMany removes every alert at the given indices and returns how many
// were actually removed. Indices are sorted descending before removal so
// earlier indices stay valid as later ones are deleted; duplicates are
// removed once.
func (l *Log) RemoveMany(indices []int) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	sorted := make([]int, len(indices))
	copy(sorted, indices)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))

	removed := 0
	for k, i := range sorted {
		if k > 0 && i == sorted[k-1] {
			continue
		}
		if l.removeAtLocked(i) {
			removed++
		}
	}
	return removed
}

// Clear removes every alert.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alerts = nil
}

// ExportCSV writes every alert as CSV: ID, Timestamp, Camera Name, Type,
// Message, Snapshot Path.
func (l *Log) ExportCSV(w *csv.Writer) error {
	alerts := l.List()
	if err := w.Write([]string{"ID", "Timestamp", "Camera Name", "Type", "Message", "Snapshot Path"}); err != nil {
		return err
	}
	for _, a := range alerts {
		row := []string{
			a.ID,
			a.Timestamp.UTC().Format(time.RFC3339),
			a.CameraName,
			string(a.Type),
			a.Message,
			a.SnapshotPath,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	l.stats.ExportsRun.Add(1)
	return nil
}

// exportAlert is the JSON wire shape for one exported alert.
type exportAlert struct {
	ID           string `json:"id"`
	Timestamp    string `json:"timestamp"`
	CameraName   string `json:"cameraName"`
	Type         string `json:"type"`
	Message      string `json:"message"`
	SnapshotPath string `json:"snapshotPath"`
	HasImage     bool   `json:"hasImage"`
}

// exportEnvelope is the JSON wire shape ExportJSON writes: the alert array
// alongside the export's own timestamp and count.
type exportEnvelope struct {
	Alerts     []exportAlert `json:"alerts"`
	ExportTime string        `json:"exportTime"`
	TotalCount int           `json:"totalCount"`
}

// ExportJSON writes every alert wrapped in an envelope carrying the export
// time and total count alongside the alerts array.
func (l *Log) ExportJSON(w *json.Encoder) error {
	alerts := l.List()
	out := make([]exportAlert, len(alerts))
	for i, a := range alerts {
		out[i] = exportAlert{
			ID:           a.ID,
			Timestamp:    a.Timestamp.UTC().Format(time.RFC3339),
			CameraName:   a.CameraName,
			Type:         string(a.Type),
			Message:      a.Message,
			SnapshotPath: a.SnapshotPath,
			HasImage:     a.HasImage(),
		}
	}
	envelope := exportEnvelope{
		Alerts:     out,
		ExportTime: time.Now().UTC().Format(time.RFC3339),
		TotalCount: len(out),
	}
	if err := w.Encode(envelope); err != nil {
		return err
	}
	l.stats.ExportsRun.Add(1)
	return nil
}

var filenameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SuggestedPNGFilename derives a filesystem-safe PNG filename for alert
// from its camera name and timestamp.
func SuggestedPNGFilename(alert types.Alert) string {
	camera := filenameSanitizer.ReplaceAllString(alert.CameraName, "_")
	if camera == "" {
		camera = "camera"
	}
	stamp := alert.Timestamp.UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s.png", camera, stamp)
}

// ExportSnapshotPNG writes the alert's in-memory snapshot to a PNG file in
// dir, then updates the alert in place: SnapshotPath is set to the written
// path and Message becomes "Snapshot saved". Returns the written path.
func (l *Log) ExportSnapshotPNG(id string, dir string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := -1
	for i, a := range l.alerts {
		if a.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return "", fmt.Errorf("alertlog: no alert with id %q", id)
	}
	alert := &l.alerts[idx]
	if alert.SnapshotImage == nil {
		return "", fmt.Errorf("alertlog: alert %q has no snapshot image", id)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("alertlog: create snapshot dir: %w", err)
	}
	path := filepath.Join(dir, SuggestedPNGFilename(*alert))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("alertlog: create snapshot file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, alert.SnapshotImage); err != nil {
		return "", fmt.Errorf("alertlog: encode snapshot: %w", err)
	}

	alert.SnapshotPath = path
	alert.Message = "Snapshot saved"
	l.stats.SnapshotsSaved.Add(1)
	return path, nil
}

// Run is the log's single writer goroutine: it ingests every event until
// events is closed, converting each into an Alert and appending it. It
// is the only goroutine that ever calls Add, so Add's own locking is
// purely defensive against concurrent readers, not against a second
// writer. ctx is consulted only to log that a shutdown is underway;
// Run keeps draining events after ctx is canceled so an event posted by
// a pipeline moments before it stops is never silently dropped. The
// caller is responsible for closing events once every producer has
// stopped (see supervisor.Supervisor.Stop).
func (l *Log) Run(ctx context.Context, events <-chan types.Event) {
	shuttingDown := false
	for {
		select {
		case <-ctx.Done():
			if !shuttingDown {
				shuttingDown = true
				log.Debug("shutdown signaled, draining remaining events")
			}
			ctx = context.Background()
		case ev, ok := <-events:
			if !ok {
				return
			}
			l.ingest(ev)
		}
	}
}

func (l *Log) ingest(ev types.Event) {
	alert, ok := fromEvent(ev)
	if !ok {
		return
	}
	id := l.Add(alert)
	log.Debug("recorded alert %s (%s) for camera %s", id, alert.Type, alert.CameraName)
}

// fromEvent converts an analytic Event into an Alert, or reports false if
// the event kind doesn't correspond to an alert-worthy occurrence.
func fromEvent(ev types.Event) (types.Alert, bool) {
	alert := types.Alert{
		Timestamp:  ev.Timestamp,
		CameraName: ev.CameraName,
	}
	if ev.Snapshot != nil {
		alert.SnapshotImage = ev.Snapshot.Image
	}

	switch ev.Kind {
	case types.EventMotionScored:
		alert.Type = types.AlertMotion
		alert.Message = defaultMessage(ev.Message, fmt.Sprintf("Motion detected (score %.1f)", ev.Score))
	case types.EventRoiScored:
		alert.Type = types.AlertMotionROI
		alert.Message = defaultMessage(ev.Message, fmt.Sprintf("Motion in region of interest (score %.1f)", ev.Score))
	case types.EventMotionTripwire:
		alert.Type = types.AlertTripwire
		alert.Message = defaultMessage(ev.Message, fmt.Sprintf("Motion crossed tripwire (%s)", ev.Direction))
	case types.EventTrackTripwire:
		alert.Type = types.AlertTripwire
		alert.Message = defaultMessage(ev.Message, fmt.Sprintf("%s crossed tripwire (%s)", label(ev.Label), ev.Direction))
	case types.EventLoitering:
		alert.Type = types.AlertLoitering
		alert.Message = defaultMessage(ev.Message, fmt.Sprintf("%s loitering for %dms", label(ev.Label), ev.DurationMs))
	case types.EventSnapshotReady:
		alert.Type = types.AlertSnapshot
		alert.Message = defaultMessage(ev.Message, "Snapshot captured")
	case types.EventError:
		return types.Alert{}, false
	default:
		return types.Alert{}, false
	}
	return alert, true
}

func defaultMessage(message, fallback string) string {
	if strings.TrimSpace(message) != "" {
		return message
	}
	return fallback
}

func label(l string) string {
	if l == "" {
		return "Object"
	}
	return strings.ToUpper(l[:1]) + l[1:]
}
