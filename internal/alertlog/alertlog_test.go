package alertlog

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"image"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineld/videosentry/internal/metrics"
	"github.com/sentineld/videosentry/pkg/types"
)

func alertAt(camera string, ts time.Time) types.Alert {
	return types.Alert{Timestamp: ts, CameraName: camera, Type: types.AlertMotion, Message: "motion"}
}

// TestAddPreservesInsertionOrder covers invariant 1: the log lists alerts
// in the order they were added.
func TestAddPreservesInsertionOrder(t *testing.T) {
	l := New(metrics.New())
	id1 := l.Add(alertAt("cam1", time.Unix(1, 0)))
	id2 := l.Add(alertAt("cam1", time.Unix(2, 0)))
	id3 := l.Add(alertAt("cam1", time.Unix(3, 0)))

	alerts := l.List()
	require.Len(t, alerts, 3)
	assert.Equal(t, []string{id1, id2, id3}, []string{alerts[0].ID, alerts[1].ID, alerts[2].ID})
}

// TestAddAssignsUniqueIDsWithinSameMillisecond checks that two alerts added
// with the same timestamp get distinct IDs.
func TestAddAssignsUniqueIDsWithinSameMillisecond(t *testing.T) {
	l := New(metrics.New())
	ts := time.Unix(100, 0)
	id1 := l.Add(alertAt("cam1", ts))
	id2 := l.Add(alertAt("cam1", ts))
	assert.NotEqual(t, id1, id2)
}

func TestRemoveAt(t *testing.T) {
	l := New(metrics.New())
	l.Add(alertAt("cam1", time.Unix(1, 0)))
	l.Add(alertAt("cam1", time.Unix(2, 0)))

	assert.True(t, l.RemoveAt(0))
	assert.Len(t, l.List(), 1)
	assert.False(t, l.RemoveAt(5))
}

func TestRemoveManyPreservesUnrelatedIndices(t *testing.T) {
	l := New(metrics.New())
	for i := 0; i < 5; i++ {
		l.Add(alertAt("cam1", time.Unix(int64(i), 0)))
	}
	removed := l.RemoveMany([]int{1, 3})
	assert.Equal(t, 2, removed)
	remaining := l.List()
	require.Len(t, remaining, 3)
	assert.Equal(t, time.Unix(0, 0), remaining[0].Timestamp)
	assert.Equal(t, time.Unix(2, 0), remaining[1].Timestamp)
	assert.Equal(t, time.Unix(4, 0), remaining[2].Timestamp)
}

func TestClear(t *testing.T) {
	l := New(metrics.New())
	l.Add(alertAt("cam1", time.Unix(1, 0)))
	l.Clear()
	assert.Empty(t, l.List())
}

func TestExportCSV(t *testing.T) {
	l := New(metrics.New())
	l.Add(alertAt("Front Door", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))

	var buf bytes.Buffer
	require.NoError(t, l.ExportCSV(csv.NewWriter(&buf)))

	r := csv.NewReader(&buf)
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"ID", "Timestamp", "Camera Name", "Type", "Message", "Snapshot Path"}, rows[0])
	assert.Equal(t, "Front Door", rows[1][2])
	assert.Equal(t, "", rows[1][5])
}

func TestExportJSON(t *testing.T) {
	l := New(metrics.New())
	l.Add(alertAt("Backyard", time.Now()))

	var buf bytes.Buffer
	require.NoError(t, l.ExportJSON(json.NewEncoder(&buf)))

	var decoded exportEnvelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Alerts, 1)
	assert.Equal(t, "Backyard", decoded.Alerts[0].CameraName)
	assert.Equal(t, 1, decoded.TotalCount)
	assert.NotEmpty(t, decoded.ExportTime)
}

func TestExportSnapshotPNGUpdatesAlertInPlace(t *testing.T) {
	l := New(metrics.New())
	alert := alertAt("cam1", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	alert.Type = types.AlertSnapshot
	alert.SnapshotImage = image.NewRGBA(image.Rect(0, 0, 4, 4))
	id := l.Add(alert)

	dir := t.TempDir()
	path, err := l.ExportSnapshotPNG(id, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Dir(path), dir)

	got, ok := l.Get(id)
	require.True(t, ok)
	assert.Equal(t, path, got.SnapshotPath)
	assert.Equal(t, "Snapshot saved", got.Message)
}

func TestExportSnapshotPNGRequiresImage(t *testing.T) {
	l := New(metrics.New())
	id := l.Add(alertAt("cam1", time.Now()))
	_, err := l.ExportSnapshotPNG(id, t.TempDir())
	assert.Error(t, err)
}

func TestRunIngestsEventsInOrder(t *testing.T) {
	l := New(metrics.New())
	events := make(chan types.Event, 4)
	ctx, cancel := context.WithCancel(context.Background())

	events <- types.Event{Kind: types.EventMotionScored, CameraName: "cam1", Timestamp: time.Now(), Score: 42}
	events <- types.Event{Kind: types.EventLoitering, CameraName: "cam1", Timestamp: time.Now(), Label: "person", DurationMs: 9000}
	close(events)

	done := make(chan struct{})
	go func() {
		l.Run(ctx, events)
		close(done)
	}()
	cancel()
	<-done

	alerts := l.List()
	require.Len(t, alerts, 2)
	assert.Equal(t, types.AlertMotion, alerts[0].Type)
	assert.Equal(t, types.AlertLoitering, alerts[1].Type)
}

func TestRunDropsErrorEvents(t *testing.T) {
	l := New(metrics.New())
	events := make(chan types.Event, 1)
	events <- types.Event{Kind: types.EventError, CameraName: "cam1", Timestamp: time.Now()}
	close(events)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Run(ctx, events)

	assert.Empty(t, l.List())
}
