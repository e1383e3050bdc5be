// Package capture runs one camera end to end: opening the device or
// stream, decoding frames on a fixed tick, running the motion analyzer
// and (less often) the detection/tracking stack, and posting analytic
// events to the shared Alert Log channel. Each camera gets its own
// Pipeline and its own goroutine; see spec §4.5 and §5.
package capture

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/sentineld/videosentry/internal/detect"
	"github.com/sentineld/videosentry/internal/geometry"
	"github.com/sentineld/videosentry/internal/logger"
	"github.com/sentineld/videosentry/internal/metrics"
	"github.com/sentineld/videosentry/internal/motion"
	"github.com/sentineld/videosentry/internal/tracker"
	"github.com/sentineld/videosentry/pkg/types"
)

var log = logger.Module("capture")

const (
	// TickInterval is the fixed frame-loop cadence: roughly 30fps.
	TickInterval = 33 * time.Millisecond
	// AIProcessInterval runs the detector/tracker stack on every Nth tick.
	AIProcessInterval = 5
	// MotionAlertDebounceMs is the minimum gap between two global motion alerts.
	MotionAlertDebounceMs = 2000
	// ROIAlertDebounceMs is the minimum gap between two ROI motion alerts.
	ROIAlertDebounceMs = 3000
	// TripwireMotionDebounceMs is the minimum gap between two motion-based
	// tripwire alerts (distinct from the tracker's own track-based debounce).
	TripwireMotionDebounceMs = 2000
	// TripwireMotionMaxDistancePx is how far, in image pixels, the motion
	// centroid may sit from the tripwire line and still count as a crossing.
	TripwireMotionMaxDistancePx = 50.0
	// FPSSampleTicks is how many ticks the rolling FPS estimate averages over.
	FPSSampleTicks = 10
)

// State is a pipeline's lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateError    State = "error"
)

// videoSource abstracts gocv.VideoCapture so tests can drive Pipeline's
// analytic logic without opening real hardware.
type videoSource interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// Pipeline owns one camera's capture loop and its mutable runtime state.
type Pipeline struct {
	mu    sync.RWMutex
	cfg   types.CameraConfig
	state State
	lastErr error

	source      videoSource
	analyzer    *motion.Analyzer
	rawDetector detect.Detector
	detector    *detect.Adapter
	track       *tracker.Tracker

	events chan<- types.Event
	stats  *metrics.Metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup

	currentFrame *types.Frame

	frameCount  uint64
	fps         float64
	fpsTickTime time.Time

	lastMotionAlertMs   int64
	lastROIAlertMs      int64
	lastTripwireMotionMs int64
	lastMotionCentroid  types.Point
	hasLastMotionCentroid bool

	tracksCreatedSeen uint64
	tracksEvictedSeen uint64

	motionEnabled          bool
	motionSensitivity      int
	aiEnabled              bool
	aiConfidenceThreshold  float64
	autoSnapshotOnMotion   bool
	autoSnapshotOnRoi      bool
	autoSnapshotOnTripwire bool
}

// New creates a Pipeline for cfg, wired to post events onto the shared
// bus and record counters onto stats. The pipeline owns no native
// resources until Start is called.
func New(cfg types.CameraConfig, events chan<- types.Event, stats *metrics.Metrics) *Pipeline {
	return &Pipeline{
		cfg:                   cfg,
		state:                 StateStopped,
		track:                 tracker.New(),
		rawDetector:           detect.NullDetector{},
		detector:              detect.New(detect.NullDetector{}, 0.6),
		events:                events,
		stats:                 stats,
		motionEnabled:         true,
		motionSensitivity:     50,
		aiEnabled:             true,
		aiConfidenceThreshold: 0.6,
	}
}

// State reports the pipeline's current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// SetDetector swaps in a real inference Detector. Call before Start.
func (p *Pipeline) SetDetector(d detect.Detector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rawDetector = d
	p.detector = detect.New(d, p.aiConfidenceThreshold)
}

// SetROI updates the polygon both the motion analyzer and the tracker
// evaluate containment against.
func (p *Pipeline) SetROI(roi []types.Point) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.ROIPoints = roi
	p.track.SetROI(roi)
}

// SetTripwire updates the directed line segment crossing detection runs
// against.
func (p *Pipeline) SetTripwire(tw *types.Tripwire) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.Tripwire = tw
	p.track.SetTripwire(tw)
}

// SetMotionEnabled toggles the motion analyzer. Runtime-only, not persisted.
func (p *Pipeline) SetMotionEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.motionEnabled = enabled
}

// SetMotionSensitivity sets the [0,100] motion sensitivity. Runtime-only.
func (p *Pipeline) SetMotionSensitivity(sensitivity int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.motionSensitivity = sensitivity
}

// SetAIEnabled toggles the detector/tracker stage. Runtime-only.
func (p *Pipeline) SetAIEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.aiEnabled = enabled
}

// SetAIConfidenceThreshold sets the detector's confidence floor. Runtime-only.
func (p *Pipeline) SetAIConfidenceThreshold(threshold float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.aiConfidenceThreshold = threshold
	p.detector = detect.New(p.rawDetector, threshold)
}

// SetAutoSnapshot configures which event kinds (motion, ROI, tripwire) are
// followed by a separate snapshot event carrying a frame copy. Loitering
// events are always followed by one. Runtime-only.
func (p *Pipeline) SetAutoSnapshot(onMotion, onRoi, onTripwire bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.autoSnapshotOnMotion = onMotion
	p.autoSnapshotOnRoi = onRoi
	p.autoSnapshotOnTripwire = onTripwire
}

// CurrentFrame returns a clone of the most recently decoded frame, or nil
// if the pipeline hasn't produced one yet.
func (p *Pipeline) CurrentFrame() *types.Frame {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentFrame.Clone()
}

// FPS returns the rolling frames-per-second estimate.
func (p *Pipeline) FPS() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fps
}

// Start opens the camera's video source and begins the capture loop. It
// is a no-op if the pipeline is already starting or running.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateStarting || p.state == StateRunning {
		p.mu.Unlock()
		return nil
	}
	p.state = StateStarting
	p.mu.Unlock()

	source, err := openSource(p.cfg)
	if err != nil {
		p.mu.Lock()
		p.state = StateError
		p.lastErr = err
		p.mu.Unlock()
		return fmt.Errorf("capture: open %s: %w", p.cfg.Name, err)
	}

	p.mu.Lock()
	p.source = source
	p.analyzer = motion.New()
	p.state = StateRunning
	p.fpsTickTime = time.Now()
	p.mu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.run(loopCtx)

	log.Info("camera %s started (%s)", p.cfg.Name, p.cfg.Kind())
	return nil
}

// Stop cancels the capture loop, waits for it to exit, and releases
// native resources.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	if p.source != nil {
		p.source.Close()
		p.source = nil
	}
	if p.analyzer != nil {
		p.analyzer.Close()
		p.analyzer = nil
	}
	p.state = StateStopped
	p.mu.Unlock()

	log.Info("camera %s stopped", p.cfg.Name)
}

func openSource(cfg types.CameraConfig) (videoSource, error) {
	if cfg.Kind() == types.CameraKindDevice {
		deviceIndex := 0
		fmt.Sscanf(cfg.Source, "%d", &deviceIndex)
		return gocv.OpenVideoCapture(deviceIndex)
	}
	return gocv.OpenVideoCapture(cfg.Source)
}

func (p *Pipeline) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	mat := gocv.NewMat()
	defer mat.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(&mat)
		}
	}
}

func (p *Pipeline) tick(mat *gocv.Mat) {
	p.mu.RLock()
	source := p.source
	p.mu.RUnlock()
	if source == nil {
		return
	}

	if ok := source.Read(mat); !ok || mat.Empty() {
		p.stats.CaptureErrors.Add(1)
		p.emitError(fmt.Errorf("capture: read failed for %s", p.cfg.Name))
		return
	}

	img, err := mat.ToImage()
	if err != nil {
		p.stats.CaptureErrors.Add(1)
		p.emitError(fmt.Errorf("capture: decode frame for %s: %w", p.cfg.Name, err))
		return
	}

	rgba := toRGBA(img)
	frame := &types.Frame{Width: rgba.Bounds().Dx(), Height: rgba.Bounds().Dy(), Image: rgba, Timestamp: time.Now()}

	p.mu.Lock()
	p.currentFrame = frame
	p.frameCount++
	count := p.frameCount
	motionEnabled := p.motionEnabled
	sensitivity := p.motionSensitivity
	aiEnabled := p.aiEnabled
	roi := p.cfg.ROIPoints
	tw := p.cfg.Tripwire
	p.mu.Unlock()

	p.stats.FramesCaptured.Add(1)
	p.updateFPS(count)

	if motionEnabled {
		p.runMotionAnalysis(*mat, roi, tw, sensitivity, frame)
	}

	if aiEnabled && count%AIProcessInterval == 0 {
		p.runDetectionAndTracking(frame)
	}
}

func (p *Pipeline) updateFPS(count uint64) {
	if count%FPSSampleTicks != 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(p.fpsTickTime).Seconds()
	if elapsed > 0 {
		p.fps = FPSSampleTicks / elapsed
	}
	p.fpsTickTime = now
}

func (p *Pipeline) runMotionAnalysis(mat gocv.Mat, roi []types.Point, tw *types.Tripwire, sensitivity int, frame *types.Frame) {
	p.mu.Lock()
	analyzer := p.analyzer
	p.mu.Unlock()
	if analyzer == nil {
		return
	}

	result := analyzer.Analyze(mat, roi, sensitivity)
	p.stats.FramesAnalyzed.Add(1)

	if !result.AboveThreshold {
		p.mu.Lock()
		p.hasLastMotionCentroid = false
		p.mu.Unlock()
	}

	now := time.Now()
	nowMs := now.UnixMilli()

	p.mu.Lock()
	var fireGlobal, fireROI bool
	fireGlobal, fireROI, p.lastMotionAlertMs, p.lastROIAlertMs = motionDebounce(
		result, roi, sensitivity, nowMs, p.lastMotionAlertMs, p.lastROIAlertMs)

	var crossing bool
	var direction string
	if tw != nil && result.HasCentroid {
		crossing, direction = crossedLine(p.lastLastCentroid(), result.Centroid, p.hasLastMotionCentroid, tw, frame.Width, frame.Height)
		if crossing && nowMs-p.lastTripwireMotionMs < TripwireMotionDebounceMs {
			crossing = false
		}
		if crossing {
			p.lastTripwireMotionMs = nowMs
		}
		p.lastMotionCentroid = result.Centroid
		p.hasLastMotionCentroid = true
	}
	autoSnapMotion := p.autoSnapshotOnMotion
	autoSnapRoi := p.autoSnapshotOnRoi
	autoSnapTripwire := p.autoSnapshotOnTripwire
	p.mu.Unlock()

	if fireGlobal {
		p.stats.MotionEvents.Add(1)
		p.postEvent(types.Event{Kind: types.EventMotionScored, CameraName: p.cfg.Name, Timestamp: now, Score: result.Score},
			autoSnapMotion, frame)
	}
	if fireROI {
		p.stats.MotionROIEvents.Add(1)
		p.postEvent(types.Event{Kind: types.EventRoiScored, CameraName: p.cfg.Name, Timestamp: now, Score: result.ROIScore},
			autoSnapRoi, frame)
	}
	if crossing {
		p.stats.TripwireEvents.Add(1)
		p.postEvent(types.Event{Kind: types.EventMotionTripwire, CameraName: p.cfg.Name, Timestamp: now, Direction: direction},
			autoSnapTripwire, frame)
	}
}

// lastLastCentroid exists so runMotionAnalysis can read p.lastMotionCentroid
// while already holding p.mu without a second lock acquisition.
func (p *Pipeline) lastLastCentroid() types.Point {
	return p.lastMotionCentroid
}

func (p *Pipeline) runDetectionAndTracking(frame *types.Frame) {
	p.mu.RLock()
	detector := p.detector
	p.mu.RUnlock()
	if detector == nil {
		return
	}

	dets := detector.Infer(frame.Image)
	p.stats.FramesAnalyzed.Add(1)
	if err := detector.LastInferenceError(); err != nil {
		p.stats.InferenceErrors.Add(1)
	}

	now := time.Now()
	events := p.track.Update(dets, frame.Width, frame.Height, now.UnixMilli())

	created, evicted := p.track.Counts()
	p.mu.Lock()
	p.stats.TracksCreated.Add(created - p.tracksCreatedSeen)
	p.stats.TracksEvicted.Add(evicted - p.tracksEvictedSeen)
	p.tracksCreatedSeen = created
	p.tracksEvictedSeen = evicted
	autoSnapTripwire := p.autoSnapshotOnTripwire
	p.mu.Unlock()

	for _, ev := range events {
		switch ev.Kind {
		case tracker.EventTripwireCrossed:
			p.stats.TripwireEvents.Add(1)
			p.postEvent(types.Event{
				Kind: types.EventTrackTripwire, CameraName: p.cfg.Name, Timestamp: now,
				Direction: ev.Direction, TrackID: ev.TrackID, Label: ev.Label,
			}, autoSnapTripwire, frame)
		case tracker.EventLoitering:
			p.stats.LoiteringEvents.Add(1)
			p.postEvent(types.Event{
				Kind: types.EventLoitering, CameraName: p.cfg.Name, Timestamp: now,
				TrackID: ev.TrackID, Label: ev.Label, DurationMs: ev.DurationMs,
			}, true, frame)
		}
	}

	p.stats.ActiveTracks.Store(uint64(len(p.track.Tracks())))
}

// postEvent posts ev unmodified, then, if withSnapshot is set, additionally
// posts a distinct EventSnapshotReady event carrying a clone of frame, per
// the auto-snapshot behavior: one alert for the trigger, one for the image.
func (p *Pipeline) postEvent(ev types.Event, withSnapshot bool, frame *types.Frame) {
	p.send(ev)
	if withSnapshot {
		p.send(types.Event{
			Kind:       types.EventSnapshotReady,
			CameraName: p.cfg.Name,
			Timestamp:  ev.Timestamp,
			Snapshot:   frame.Clone(),
		})
	}
}

func (p *Pipeline) send(ev types.Event) {
	select {
	case p.events <- ev:
	default:
		p.stats.FramesDropped.Add(1)
		log.Warn("camera %s: event bus full, dropping %s event", p.cfg.Name, ev.Kind)
	}
}

func (p *Pipeline) emitError(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
	log.Error("%v", err)
	select {
	case p.events <- types.Event{Kind: types.EventError, CameraName: p.cfg.Name, Timestamp: time.Now(), Err: err, Message: err.Error()}:
	default:
	}
}

// motionDebounce decides whether this tick's global and ROI motion scores
// clear their own threshold and their own debounce window, advancing
// whichever timer fires. The two triggers are evaluated independently:
// global motion staying below threshold never suppresses an ROI-only
// alert, and vice versa. Factored out of runMotionAnalysis so the
// single-alert-despite-repeated-motion and independent-ROI-firing
// behavior is testable without a real gocv.Mat.
func motionDebounce(result motion.Result, roi []types.Point, sensitivity int, nowMs, lastGlobalMs, lastROIMs int64) (fireGlobal, fireROI bool, newLastGlobalMs, newLastROIMs int64) {
	fireGlobal = result.AboveThreshold && nowMs-lastGlobalMs >= MotionAlertDebounceMs
	if fireGlobal {
		lastGlobalMs = nowMs
	}
	fireROI = len(roi) >= 3 && result.ROIScore > motion.SensitivityThreshold(sensitivity) &&
		nowMs-lastROIMs >= ROIAlertDebounceMs
	if fireROI {
		lastROIMs = nowMs
	}
	return fireGlobal, fireROI, lastGlobalMs, lastROIMs
}

// crossedLine reports whether the motion centroid crossed tw between the
// previous and current tick, and the crossing direction. A sign change
// alone isn't enough: the centroid must also pass within
// TripwireMotionMaxDistancePx image pixels of the line itself, or a
// centroid that merely wanders from one side of an extended (off-frame)
// line to the other would count as a crossing. Factored out of
// runMotionAnalysis so it's testable without a real gocv.Mat.
func crossedLine(prev, cur types.Point, hasPrev bool, tw *types.Tripwire, frameW, frameH int) (bool, string) {
	if !hasPrev || tw == nil {
		return false, ""
	}
	sPrev := geometry.SideOfLine(prev, tw.Start, tw.End)
	sCur := geometry.SideOfLine(cur, tw.Start, tw.End)
	if sPrev == 0 || sCur == 0 || sPrev*sCur >= 0 {
		return false, ""
	}

	x1, y1 := tw.Start.X*float64(frameW), tw.Start.Y*float64(frameH)
	x2, y2 := tw.End.X*float64(frameW), tw.End.Y*float64(frameH)
	cx, cy := cur.X*float64(frameW), cur.Y*float64(frameH)
	curSidePx := (cx-x1)*(y2-y1) - (cy-y1)*(x2-x1)
	lineLength := math.Hypot(x2-x1, y2-y1)
	if lineLength == 0 || math.Abs(curSidePx)/lineLength > TripwireMotionMaxDistancePx {
		return false, ""
	}

	if sPrev < 0 && sCur > 0 {
		return true, "left to right"
	}
	return true, "right to left"
}

// toRGBA converts a decoded image.Image into *image.RGBA, the pixel
// format every downstream consumer (geometry, alertlog export) expects.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			rgba.Set(x, y, img.At(x, y))
		}
	}
	return rgba
}
