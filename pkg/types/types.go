package types

import (
	"image"
	"time"
)

// Point is a normalized coordinate in [0,1] relative to a frame's width/height.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned pixel-space rectangle, top-left origin.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Frame is a single decoded video frame in RGBA pixel space, owned by its
// capture pipeline. Readers obtain a clone under a short-lived lock.
type Frame struct {
	Width     int
	Height    int
	Image     *image.RGBA
	Timestamp time.Time
}

// Clone returns a deep copy of the frame's pixel buffer.
func (f *Frame) Clone() *Frame {
	if f == nil || f.Image == nil {
		return nil
	}
	cp := image.NewRGBA(f.Image.Rect)
	copy(cp.Pix, f.Image.Pix)
	return &Frame{Width: f.Width, Height: f.Height, Image: cp, Timestamp: f.Timestamp}
}

// Detection is a single per-frame object detection in original-frame pixel
// coordinates, produced by the Detection Adapter.
type Detection struct {
	ClassID int
	Label   string
	Score   float64
	Box     Rect
}

// TrackState is the tracker's per-object summary, stitched across AI ticks.
type TrackState struct {
	ID       int
	Label    string
	Centroid Point
	PrevCentroid Point

	FirstSeenMs int64
	LastSeenMs  int64

	InsideROI    bool
	EnteredROIMs int64

	LoiterAlertSent bool

	LastTripwireAlertMs int64
}

// AlertType enumerates the kinds of events the Alert Log records.
type AlertType string

const (
	AlertSnapshot  AlertType = "snapshot"
	AlertMotion    AlertType = "motion"
	AlertMotionROI AlertType = "motion_roi"
	AlertTripwire  AlertType = "tripwire"
	AlertLoitering AlertType = "loitering"
)

// Alert is a single entry in the Alert Log. has_image is implied by
// SnapshotImage being non-nil; this invariant is enforced by the
// constructors in package alertlog, not by this struct directly.
type Alert struct {
	ID            string
	Timestamp     time.Time
	CameraName    string
	Type          AlertType
	Message       string
	SnapshotPath  string
	SnapshotImage *image.RGBA
}

// HasImage reports whether the alert carries an in-memory snapshot.
func (a *Alert) HasImage() bool {
	return a.SnapshotImage != nil
}

// CameraKind distinguishes how a camera's Source is interpreted at open
// time: CameraKindDevice opens Source as an integer device index,
// CameraKindURL opens Source as an RTSP/IP URL.
type CameraKind string

const (
	CameraKindDevice CameraKind = "device"
	CameraKindURL    CameraKind = "url"
)

// Tripwire is a normalized directed line segment. In cameras.json both
// endpoints at the origin means "no tripwire configured"; config.Load turns
// that into a nil *Tripwire.
type Tripwire struct {
	Start Point
	End   Point
}

// CameraConfig is the persisted, per-slot camera configuration. Type holds
// the wire-format discriminator ("usb", "rtsp", or "ip") verbatim so that
// save/load round-trips exactly; Kind derives the open-time behavior from
// it ("usb" opens by device index, "rtsp"/"ip" open by URL).
type CameraConfig struct {
	ID        string
	Name      string
	Type      string
	Source    string
	Enabled   bool
	ROIPoints []Point
	Tripwire  *Tripwire
}

// Kind derives the open-time camera kind from the persisted Type string.
func (c CameraConfig) Kind() CameraKind {
	if c.Type == "usb" {
		return CameraKindDevice
	}
	return CameraKindURL
}

// EventKind tags an Event; which of Event's payload fields are meaningful
// depends on the Kind (see the field groups on Event).
type EventKind string

const (
	EventMotionScored  EventKind = "motion_scored"
	EventRoiScored     EventKind = "roi_scored"
	EventMotionTripwire EventKind = "motion_tripwire"
	EventTrackTripwire EventKind = "track_tripwire"
	EventLoitering     EventKind = "loitering"
	EventSnapshotReady EventKind = "snapshot_ready"
	EventError         EventKind = "error"
)

// Event carries one analytic occurrence from a capture pipeline to the
// Alert Log writer goroutine.
type Event struct {
	Kind       EventKind
	CameraName string
	Timestamp  time.Time

	// EventMotionScored / EventRoiScored
	Score float64

	// EventMotionTripwire / EventTrackTripwire
	Direction string
	TrackID   int
	Label     string

	// EventLoitering
	DurationMs int64

	// EventSnapshotReady
	Snapshot *Frame

	// EventError
	Err error

	// Message is a human-readable summary used to build the Alert.Message.
	Message string
}
