// Package tracker stitches per-tick detections into stable tracks and
// derives track-level events: ROI loitering and tripwire crossings. It
// runs once per detector tick (every AIProcessInterval frames), not every
// frame — see internal/capture.
package tracker

import (
	"math"

	"github.com/sentineld/videosentry/internal/geometry"
	"github.com/sentineld/videosentry/pkg/types"
)

const (
	// MaxTrackDistance is the greedy-association radius in normalized
	// centroid space.
	MaxTrackDistance = 0.10
	// TrackTimeoutMs evicts a track once it has gone unseen this long.
	TrackTimeoutMs = 2000
	// TripwireAlertDebounceMs is the minimum gap between two tripwire
	// alerts for the same track.
	TripwireAlertDebounceMs = 2000
	// LoiteringThresholdMs is the minimum continuous ROI dwell time before
	// a loitering alert fires.
	LoiteringThresholdMs = 8000
	// LineEpsilon guards against firing on points that are (numerically)
	// colinear with the tripwire.
	LineEpsilon = 1e-4
)

// trackedLabels is the fixed label allow-list; detections for any other
// class are dropped before association (spec §4.4).
var trackedLabels = map[string]bool{
	"person": true, "car": true, "bicycle": true, "dog": true, "cat": true,
}

// TrackableLabel reports whether label participates in tracking.
func TrackableLabel(label string) bool {
	return trackedLabels[label]
}

// Event is a track-level occurrence the capture pipeline forwards to the
// Alert Log as an Event.
type Event struct {
	Kind       EventKind
	TrackID    int
	Label      string
	Direction  string // EventTripwireCrossed only
	DurationMs int64  // EventLoitering only
}

// EventKind enumerates the two kinds of track-level events.
type EventKind int

const (
	EventTripwireCrossed EventKind = iota
	EventLoitering
)

// Tracker owns a single camera's set of live tracks and the tripwire/ROI
// geometry they are evaluated against.
type Tracker struct {
	tracks []*types.TrackState
	nextID int

	roi      []types.Point
	tripwire *types.Tripwire

	createdTotal uint64
	evictedTotal uint64
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{nextID: 1}
}

// SetROI replaces the polygon tracks are tested against for containment.
// Passing nil or fewer than 3 points disables ROI evaluation.
func (t *Tracker) SetROI(roi []types.Point) {
	t.roi = roi
}

// SetTripwire replaces the directed line segment tracks are tested against
// for crossings. Passing nil disables tripwire evaluation.
func (t *Tracker) SetTripwire(tw *types.Tripwire) {
	t.tripwire = tw
}

// Counts returns the cumulative number of tracks created and evicted since
// the Tracker was constructed, for instrumentation (see internal/metrics).
func (t *Tracker) Counts() (created, evicted uint64) {
	return t.createdTotal, t.evictedTotal
}

// Tracks returns a defensive copy of the currently live tracks.
func (t *Tracker) Tracks() []types.TrackState {
	out := make([]types.TrackState, len(t.tracks))
	for i, tr := range t.tracks {
		out[i] = *tr
	}
	return out
}

// Update associates detections to existing tracks (or spawns new ones),
// advances ROI/loitering/tripwire state, evicts stale tracks, and returns
// the events raised this tick. frameW/frameH normalize each detection's
// pixel-space box into [0,1] centroid space; nowMs is the caller's clock
// so tests can drive ticks deterministically.
func (t *Tracker) Update(detections []types.Detection, frameW, frameH int, nowMs int64) []Event {
	filtered := make([]types.Detection, 0, len(detections))
	for _, d := range detections {
		if TrackableLabel(d.Label) {
			filtered = append(filtered, d)
		}
	}

	assigned := make(map[*types.TrackState]bool, len(t.tracks))
	for _, d := range filtered {
		centroid := normalizedCentroidOf(d.Box, frameW, frameH)
		track := t.nearestUnassigned(centroid, assigned)
		if track == nil {
			track = &types.TrackState{
				ID:          t.nextID,
				Label:       d.Label,
				Centroid:    centroid,
				PrevCentroid: centroid,
				FirstSeenMs: nowMs,
				LastSeenMs:  nowMs,
			}
			t.nextID++
			t.createdTotal++
			t.tracks = append(t.tracks, track)
		} else {
			track.PrevCentroid = track.Centroid
			track.Centroid = centroid
			track.LastSeenMs = nowMs
			track.Label = d.Label
		}
		assigned[track] = true
	}

	var events []Event
	for _, track := range t.tracks {
		if !assigned[track] {
			continue
		}
		events = append(events, t.updateROIAndLoitering(track, nowMs)...)
		events = append(events, t.updateTripwire(track, nowMs)...)
	}

	t.evict(nowMs)

	return events
}

func (t *Tracker) updateROIAndLoitering(track *types.TrackState, nowMs int64) []Event {
	wasInside := track.InsideROI
	nowInside := len(t.roi) >= 3 && geometry.PointInPolygon(track.Centroid, t.roi)
	track.InsideROI = nowInside

	if !wasInside && nowInside {
		track.EnteredROIMs = nowMs
	}
	if wasInside && !nowInside {
		track.EnteredROIMs = 0
		track.LoiterAlertSent = false
	}

	if nowInside && !track.LoiterAlertSent &&
		nowMs-track.EnteredROIMs >= LoiteringThresholdMs {
		track.LoiterAlertSent = true
		return []Event{{
			Kind:       EventLoitering,
			TrackID:    track.ID,
			Label:      track.Label,
			DurationMs: nowMs - track.EnteredROIMs,
		}}
	}
	return nil
}

func (t *Tracker) updateTripwire(track *types.TrackState, nowMs int64) []Event {
	if t.tripwire == nil {
		return nil
	}
	if track.Centroid == track.PrevCentroid {
		return nil
	}
	if track.LastTripwireAlertMs != 0 && nowMs-track.LastTripwireAlertMs < TripwireAlertDebounceMs {
		return nil
	}

	a, b := t.tripwire.Start, t.tripwire.End
	sPrev := geometry.SideOfLine(track.PrevCentroid, a, b)
	sCur := geometry.SideOfLine(track.Centroid, a, b)

	if math.Abs(sPrev) <= LineEpsilon || math.Abs(sCur) <= LineEpsilon {
		return nil
	}
	if sPrev*sCur >= 0 {
		return nil
	}

	direction := "right to left"
	if sPrev < 0 && sCur > 0 {
		direction = "left to right"
	}
	track.LastTripwireAlertMs = nowMs

	return []Event{{
		Kind:      EventTripwireCrossed,
		TrackID:   track.ID,
		Label:     track.Label,
		Direction: direction,
	}}
}

func (t *Tracker) nearestUnassigned(centroid types.Point, assigned map[*types.TrackState]bool) *types.TrackState {
	var best *types.TrackState
	bestDist := math.MaxFloat64
	for _, track := range t.tracks {
		if assigned[track] {
			continue
		}
		d := distance(track.Centroid, centroid)
		if d < MaxTrackDistance && d < bestDist {
			best = track
			bestDist = d
		}
	}
	return best
}

func (t *Tracker) evict(nowMs int64) {
	live := t.tracks[:0]
	for _, track := range t.tracks {
		if nowMs-track.LastSeenMs > TrackTimeoutMs {
			t.evictedTotal++
			continue
		}
		live = append(live, track)
	}
	t.tracks = live
}

func normalizedCentroidOf(box types.Rect, frameW, frameH int) types.Point {
	cx := float64(box.X) + float64(box.Width)/2
	cy := float64(box.Y) + float64(box.Height)/2
	if frameW <= 0 || frameH <= 0 {
		return types.Point{X: cx, Y: cy}
	}
	return types.Point{X: cx / float64(frameW), Y: cy / float64(frameH)}
}

func distance(a, b types.Point) float64 {
	dx, dy := a.X-b.X, a.Y-b.Y
	return math.Sqrt(dx*dx + dy*dy)
}
