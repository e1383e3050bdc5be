package supervisor

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineld/videosentry/internal/config"
	"github.com/sentineld/videosentry/internal/metrics"
	"github.com/sentineld/videosentry/pkg/types"
)

func seedConfig(t *testing.T) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "cameras.json")
	require.NoError(t, config.Save(path, []types.CameraConfig{
		{ID: "cam1", Name: "Front Door", Type: "usb", Source: "0", Enabled: false},
		{ID: "cam2", Name: "Backyard", Type: "rtsp", Source: "rtsp://example/live", Enabled: false},
	}))
	return path
}

func TestNewConstructsOneSlotPerConfig(t *testing.T) {
	path := seedConfig(t)
	s, err := New(path, metrics.New())
	require.NoError(t, err)
	assert.Equal(t, []string{"Front Door", "Backyard"}, s.CameraNames())
}

func TestSetROIPersistsToDisk(t *testing.T) {
	path := seedConfig(t)
	s, err := New(path, metrics.New())
	require.NoError(t, err)

	roi := []types.Point{{X: 0.1, Y: 0.1}, {X: 0.9, Y: 0.1}, {X: 0.9, Y: 0.9}}
	ok, err := s.SetROI(1, roi)
	require.NoError(t, err)
	assert.True(t, ok)

	reloaded, err := config.Load(path)
	require.NoError(t, err)
	require.Len(t, reloaded, 2)
	assert.Equal(t, roi, reloaded[0].ROIPoints)

	got, ok := s.ROIPoints(1)
	require.True(t, ok)
	assert.Equal(t, roi, got)
}

func TestSetROIUnknownCameraReturnsFalse(t *testing.T) {
	path := seedConfig(t)
	s, err := New(path, metrics.New())
	require.NoError(t, err)

	ok, err := s.SetROI(99, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClearROIPersists(t *testing.T) {
	path := seedConfig(t)
	s, err := New(path, metrics.New())
	require.NoError(t, err)

	roi := []types.Point{{X: 0.1, Y: 0.1}, {X: 0.9, Y: 0.1}, {X: 0.9, Y: 0.9}}
	_, err = s.SetROI(1, roi)
	require.NoError(t, err)

	ok, err := s.ClearROI(1)
	require.NoError(t, err)
	assert.True(t, ok)

	got, ok := s.ROIPoints(1)
	require.True(t, ok)
	assert.Empty(t, got)
}

func TestSetTripwirePersists(t *testing.T) {
	path := seedConfig(t)
	s, err := New(path, metrics.New())
	require.NoError(t, err)

	a, b := types.Point{X: 0.5, Y: 0}, types.Point{X: 0.5, Y: 1}
	ok, err := s.SetTripwire(2, a, b)
	require.NoError(t, err)
	assert.True(t, ok)

	reloaded, err := config.Load(path)
	require.NoError(t, err)
	require.Len(t, reloaded, 2)
	assert.Equal(t, &types.Tripwire{Start: a, End: b}, reloaded[1].Tripwire)

	has, gotA, gotB, ok := s.Tripwire(2)
	require.True(t, ok)
	assert.True(t, has)
	assert.Equal(t, a, gotA)
	assert.Equal(t, b, gotB)
}

func TestClearTripwirePersists(t *testing.T) {
	path := seedConfig(t)
	s, err := New(path, metrics.New())
	require.NoError(t, err)

	_, err = s.SetTripwire(2, types.Point{X: 0.5, Y: 0}, types.Point{X: 0.5, Y: 1})
	require.NoError(t, err)

	ok, err := s.ClearTripwire(2)
	require.NoError(t, err)
	assert.True(t, ok)

	has, _, _, ok := s.Tripwire(2)
	require.True(t, ok)
	assert.False(t, has)
}

func TestCameraNameTypeSourceAvailable(t *testing.T) {
	path := seedConfig(t)
	s, err := New(path, metrics.New())
	require.NoError(t, err)

	name, ok := s.CameraName(1)
	require.True(t, ok)
	assert.Equal(t, "Front Door", name)

	typ, ok := s.Type(1)
	require.True(t, ok)
	assert.Equal(t, "usb", typ)

	source, ok := s.Source(2)
	require.True(t, ok)
	assert.Equal(t, "rtsp://example/live", source)

	assert.False(t, s.Available(1))
	assert.False(t, s.Available(99))
}

func TestStopClosesEventsChannel(t *testing.T) {
	path := seedConfig(t)
	s, err := New(path, metrics.New())
	require.NoError(t, err)

	s.Stop()
	_, ok := <-s.Events()
	assert.False(t, ok)
}
