// Package detect wraps an opaque object detector (a black box, out of
// core scope per spec §1) and turns its raw output into filtered,
// original-frame-pixel detections: confidence thresholding, non-maximum
// suppression, and box tightening.
package detect

import (
	"image"
	"sort"

	"github.com/sentineld/videosentry/internal/geometry"
	"github.com/sentineld/videosentry/pkg/types"
)

const (
	// DetectorInputSide is the fixed square side the letterboxed frame is
	// resized to before inference.
	DetectorInputSide = 640
	// HardConfidenceFloor overrides any lower configured threshold.
	HardConfidenceFloor = 0.4
	// NMSThreshold is the IoU cutoff used during non-maximum suppression.
	NMSThreshold = 0.45
	// BoxTightenFraction contracts each surviving box by this fraction on
	// every side.
	BoxTightenFraction = 0.22
	// MinBoxDimensionPx discards a tightened box if either dimension falls
	// below this, in pixels.
	MinBoxDimensionPx = 10
)

// RawDetection is what the black-box Detector returns: a class id, score,
// and pixel box within the square frame it was given.
type RawDetection struct {
	ClassID int
	Label   string
	Score   float64
	Box     types.Rect
}

// Detector is the black-box inference engine. Implementations are expected
// to fail soft: the Adapter treats any error as "no detections".
type Detector interface {
	Infer(square image.Image) ([]RawDetection, error)
}

// NullDetector is a Detector that never finds anything. It is the default
// wiring and the detector used by tests that exercise the Adapter's own
// filtering logic rather than a real model.
type NullDetector struct{}

func (NullDetector) Infer(image.Image) ([]RawDetection, error) { return nil, nil }

// Adapter runs a Detector on a frame and returns detections in
// original-frame pixel coordinates, applying the fixed pipeline described
// in spec §4.2.
type Adapter struct {
	detector            Detector
	confidenceThreshold float64
	lastErr             error
}

// New creates an Adapter. confidenceThreshold is clamped up to
// HardConfidenceFloor if configured lower.
func New(detector Detector, confidenceThreshold float64) *Adapter {
	if confidenceThreshold < HardConfidenceFloor {
		confidenceThreshold = HardConfidenceFloor
	}
	return &Adapter{detector: detector, confidenceThreshold: confidenceThreshold}
}

// LastInferenceError returns the error (if any) the underlying Detector
// returned on the most recent Infer call, for instrumentation. Infer itself
// always fails soft and never surfaces this to its caller directly.
func (a *Adapter) LastInferenceError() error {
	return a.lastErr
}

// Infer letterboxes frame to the detector's fixed input size, runs the
// detector, and maps surviving boxes back to frame's own pixel space.
// On any inference error it returns an empty, non-nil slice and no error.
func (a *Adapter) Infer(frame image.Image) []types.Detection {
	square, transform := geometry.Letterbox(frame, DetectorInputSide)

	raw, err := a.detector.Infer(square)
	a.lastErr = err
	if err != nil || len(raw) == 0 {
		return []types.Detection{}
	}

	filtered := make([]RawDetection, 0, len(raw))
	for _, d := range raw {
		if d.Score >= a.confidenceThreshold {
			filtered = append(filtered, d)
		}
	}

	kept := nonMaxSuppress(filtered)

	frameBounds := frame.Bounds()
	out := make([]types.Detection, 0, len(kept))
	for _, d := range kept {
		box, ok := tightenAndMapBack(d.Box, transform, frameBounds.Dx(), frameBounds.Dy())
		if !ok {
			continue
		}
		out = append(out, types.Detection{
			ClassID: d.ClassID,
			Label:   d.Label,
			Score:   d.Score,
			Box:     box,
		})
	}
	return out
}

// nonMaxSuppress greedily keeps the highest-score box in each cluster of
// boxes whose pairwise IoU exceeds NMSThreshold.
func nonMaxSuppress(dets []RawDetection) []RawDetection {
	sorted := make([]RawDetection, len(dets))
	copy(sorted, dets)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	kept := make([]RawDetection, 0, len(sorted))
	suppressed := make([]bool, len(sorted))

	for i := range sorted {
		if suppressed[i] {
			continue
		}
		kept = append(kept, sorted[i])
		for j := i + 1; j < len(sorted); j++ {
			if suppressed[j] {
				continue
			}
			if geometry.IoU(sorted[i].Box, sorted[j].Box) > NMSThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

// tightenAndMapBack contracts box by BoxTightenFraction on each side,
// maps it from detector-input pixel space back to original-frame pixel
// space, clamps it to frame bounds, and discards it if too small.
func tightenAndMapBack(box types.Rect, t geometry.LetterboxTransform, frameW, frameH int) (types.Rect, bool) {
	dx := float64(box.Width) * BoxTightenFraction
	dy := float64(box.Height) * BoxTightenFraction

	x1 := float64(box.X) + dx
	y1 := float64(box.Y) + dy
	x2 := float64(box.X+box.Width) - dx
	y2 := float64(box.Y+box.Height) - dy

	ox1, oy1 := geometry.Unletterbox(t, x1, y1)
	ox2, oy2 := geometry.Unletterbox(t, x2, y2)

	ox1 = clamp(ox1, 0, float64(frameW))
	oy1 = clamp(oy1, 0, float64(frameH))
	ox2 = clamp(ox2, 0, float64(frameW))
	oy2 = clamp(oy2, 0, float64(frameH))

	w := ox2 - ox1
	h := oy2 - oy1
	if w < MinBoxDimensionPx || h < MinBoxDimensionPx {
		return types.Rect{}, false
	}

	return types.Rect{X: int(ox1), Y: int(oy1), Width: int(w), Height: int(h)}, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
