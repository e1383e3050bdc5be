package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineld/videosentry/pkg/types"
)

// personAt builds a person detection whose box, within a 1000x1000 frame,
// centers exactly on the given normalized coordinate.
func personAt(nx, ny float64) types.Detection {
	return types.Detection{
		Label: "person",
		Score: 0.9,
		Box:   types.Rect{X: int(nx*1000) - 10, Y: int(ny*1000) - 10, Width: 20, Height: 20},
	}
}

const frameW, frameH = 1000, 1000

func TestUpdateDropsUntrackedLabels(t *testing.T) {
	tr := New()
	events := tr.Update([]types.Detection{{Label: "truck", Box: types.Rect{X: 0, Y: 0, Width: 10, Height: 10}}}, frameW, frameH, 0)
	assert.Empty(t, events)
	assert.Empty(t, tr.Tracks())
}

func TestUpdateSpawnsAndAssociatesTracks(t *testing.T) {
	tr := New()
	tr.Update([]types.Detection{personAt(0.5, 0.5)}, frameW, frameH, 0)
	require.Len(t, tr.Tracks(), 1)
	firstID := tr.Tracks()[0].ID

	// Small move within MaxTrackDistance should associate, not spawn.
	tr.Update([]types.Detection{personAt(0.52, 0.5)}, frameW, frameH, 100)
	tracks := tr.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, firstID, tracks[0].ID)

	// A second far-away detection spawns a new track.
	tr.Update([]types.Detection{personAt(0.52, 0.5), personAt(0.0, 0.0)}, frameW, frameH, 200)
	assert.Len(t, tr.Tracks(), 2)
}

func TestEvictionOnTimeout(t *testing.T) {
	tr := New()
	tr.Update([]types.Detection{personAt(0.5, 0.5)}, frameW, frameH, 0)
	require.Len(t, tr.Tracks(), 1)

	// Still within TrackTimeoutMs: stays.
	tr.Update(nil, frameW, frameH, TrackTimeoutMs)
	assert.Len(t, tr.Tracks(), 1)

	// Past TrackTimeoutMs since last seen at t=0: evicted.
	tr.Update(nil, frameW, frameH, TrackTimeoutMs+1)
	assert.Empty(t, tr.Tracks())
}

// TestROIStateInvariant covers invariant 3: after any update tick,
// T.inside_roi == point_in_polygon(T.centroid, roi).
func TestROIStateInvariant(t *testing.T) {
	tr := New()
	tr.SetROI([]types.Point{{X: 0.25, Y: 0.25}, {X: 0.75, Y: 0.25}, {X: 0.75, Y: 0.75}, {X: 0.25, Y: 0.75}})

	tr.Update([]types.Detection{personAt(0.7, 0.5)}, frameW, frameH, 0)
	require.Len(t, tr.Tracks(), 1)
	assert.True(t, tr.Tracks()[0].InsideROI)

	// A 0.08 step stays within MaxTrackDistance and leaves the ROI.
	tr.Update([]types.Detection{personAt(0.78, 0.5)}, frameW, frameH, 100)
	require.Len(t, tr.Tracks(), 1)
	assert.False(t, tr.Tracks()[0].InsideROI)
}

// TestS3TrackerCrossing is the S3 scenario from spec §8. The spec's literal
// centroids (0.4,0.5) then (0.6,0.5) move 0.2 between ticks, which exceeds
// MAX_TRACK_DISTANCE=0.10 (also normative, §6) and would spawn a second
// track instead of updating the first — see DESIGN.md. We use a smaller
// step that still crosses the tripwire and preserves every other claim in
// the scenario (one alert, correct direction, debounce timing).
func TestS3TrackerCrossing(t *testing.T) {
	tr := New()
	tr.SetTripwire(&types.Tripwire{Start: types.Point{X: 0.5, Y: 0.0}, End: types.Point{X: 0.5, Y: 1.0}})

	tr.Update([]types.Detection{personAt(0.46, 0.5)}, frameW, frameH, 0)
	events := tr.Update([]types.Detection{personAt(0.54, 0.5)}, frameW, frameH, 1000)
	require.Len(t, events, 1)
	assert.Equal(t, EventTripwireCrossed, events[0].Kind)
	assert.Equal(t, "left to right", events[0].Direction)

	// Third tick within 2s of the first alert: no second alert.
	events = tr.Update([]types.Detection{personAt(0.46, 0.5)}, frameW, frameH, 1500)
	assert.Empty(t, events)

	// Back to the right side, still within 2s of the first alert.
	events = tr.Update([]types.Detection{personAt(0.54, 0.5)}, frameW, frameH, 2000)
	assert.Empty(t, events)

	// At 2.1s after the first alert (t=1000+2100=3100): fires again.
	events = tr.Update([]types.Detection{personAt(0.46, 0.5)}, frameW, frameH, 3100)
	require.Len(t, events, 1)
	assert.Equal(t, "right to left", events[0].Direction)
}

// TestS4Loitering is the literal S4 scenario from spec §8.
func TestS4Loitering(t *testing.T) {
	tr := New()
	tr.SetROI([]types.Point{{X: 0.25, Y: 0.25}, {X: 0.75, Y: 0.25}, {X: 0.75, Y: 0.75}, {X: 0.25, Y: 0.75}})

	tr.Update([]types.Detection{personAt(0.5, 0.5)}, frameW, frameH, 0)

	var totalEvents []Event
	for ms := int64(1000); ms <= 9000; ms += 1000 {
		totalEvents = append(totalEvents, tr.Update([]types.Detection{personAt(0.5, 0.5)}, frameW, frameH, ms)...)
	}

	var loiterEvents []Event
	for _, e := range totalEvents {
		if e.Kind == EventLoitering {
			loiterEvents = append(loiterEvents, e)
		}
	}
	require.Len(t, loiterEvents, 1)
	assert.GreaterOrEqual(t, loiterEvents[0].DurationMs, int64(8000))

	// Further ticks without exit emit no more loitering events.
	more := tr.Update([]types.Detection{personAt(0.5, 0.5)}, frameW, frameH, 10000)
	for _, e := range more {
		assert.NotEqual(t, EventLoitering, e.Kind)
	}
}

// TestLoiteringResetsOnExit covers invariant 5: at most once per visit.
func TestLoiteringResetsOnExit(t *testing.T) {
	tr := New()
	tr.SetROI([]types.Point{{X: 0.25, Y: 0.25}, {X: 0.75, Y: 0.25}, {X: 0.75, Y: 0.75}, {X: 0.25, Y: 0.75}})

	tr.Update([]types.Detection{personAt(0.7, 0.5)}, frameW, frameH, 0)
	for ms := int64(1000); ms <= 8000; ms += 1000 {
		tr.Update([]types.Detection{personAt(0.7, 0.5)}, frameW, frameH, ms)
	}

	// Exit the ROI, then re-enter: loitering can fire again for the new visit.
	// Each step stays within MaxTrackDistance so the same track moves.
	tr.Update([]types.Detection{personAt(0.78, 0.5)}, frameW, frameH, 8100)
	tr.Update([]types.Detection{personAt(0.7, 0.5)}, frameW, frameH, 8200)

	var loiterCount int
	for ms := int64(9200); ms <= 16300; ms += 1000 {
		for _, e := range tr.Update([]types.Detection{personAt(0.7, 0.5)}, frameW, frameH, ms) {
			if e.Kind == EventLoitering {
				loiterCount++
			}
		}
	}
	assert.Equal(t, 1, loiterCount)
}

// TestTripwireDebounceInvariant covers invariant 4: consecutive crossing
// timestamps for the same track differ by at least the debounce interval.
func TestTripwireDebounceInvariant(t *testing.T) {
	tr := New()
	tr.SetTripwire(&types.Tripwire{Start: types.Point{X: 0.5, Y: 0.0}, End: types.Point{X: 0.5, Y: 1.0}})

	tr.Update([]types.Detection{personAt(0.46, 0.5)}, frameW, frameH, 0)
	first := tr.Update([]types.Detection{personAt(0.54, 0.5)}, frameW, frameH, 500)
	require.Len(t, first, 1)

	second := tr.Update([]types.Detection{personAt(0.46, 0.5)}, frameW, frameH, 500+TripwireAlertDebounceMs-1)
	assert.Empty(t, second)

	third := tr.Update([]types.Detection{personAt(0.54, 0.5)}, frameW, frameH, 500+TripwireAlertDebounceMs+1)
	require.Len(t, third, 1)
}
