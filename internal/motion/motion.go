// Package motion implements the per-camera motion analyzer: MOG2
// background subtraction, morphological cleanup, a global motion score,
// an optional ROI-masked score, and a motion centroid derived from image
// moments. See spec §4.3.
package motion

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/sentineld/videosentry/pkg/types"
)

const (
	// MOG2History is the number of frames the background model remembers.
	MOG2History = 500
	// MOG2VarThreshold is the MOG2 pixel-variance threshold.
	MOG2VarThreshold = 16
	// MorphKernelSize is the side of the elliptical open/close kernel.
	MorphKernelSize = 5
	// MinMomentMass is the minimum zeroth moment (foreground pixel count)
	// below which a centroid is not reported.
	MinMomentMass = 100
)

// ScoreFromMask computes the global motion score: the percentage of
// foreground (non-zero) pixels in a binary mask, in [0, 100].
func ScoreFromMask(nonZero, totalPixels int) float64 {
	if totalPixels <= 0 {
		return 0
	}
	return 100 * float64(nonZero) / float64(totalPixels)
}

// SensitivityThreshold maps a sensitivity setting in [0, 100] to the score
// threshold a frame's motion score must exceed to count as motion. Higher
// sensitivity means a lower threshold.
func SensitivityThreshold(sensitivity int) float64 {
	if sensitivity < 0 {
		sensitivity = 0
	}
	if sensitivity > 100 {
		sensitivity = 100
	}
	return 10.0 - (float64(sensitivity)/100)*9.5
}

// Result is one analyzer tick's output.
type Result struct {
	Score         float64
	ROIScore      float64
	HasCentroid   bool
	Centroid      types.Point
	AboveThreshold bool
}

// Analyzer owns the persistent MOG2 background model and scratch Mats for
// one camera. Not safe for concurrent use; the capture pipeline owns one
// per running camera.
type Analyzer struct {
	bgSubtractor gocv.BackgroundSubtractorMOG2
	kernel       gocv.Mat

	fgMask    gocv.Mat
	morphed   gocv.Mat
	roiMasked gocv.Mat
}

// New creates an Analyzer with a fresh background model.
func New() *Analyzer {
	return &Analyzer{
		bgSubtractor: gocv.NewBackgroundSubtractorMOG2WithParams(MOG2History, MOG2VarThreshold, false),
		kernel:       gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(MorphKernelSize, MorphKernelSize)),
		fgMask:       gocv.NewMat(),
		morphed:      gocv.NewMat(),
		roiMasked:    gocv.NewMat(),
	}
}

// Close releases native OpenCV resources. Must be called once the owning
// camera's pipeline stops.
func (a *Analyzer) Close() {
	a.bgSubtractor.Close()
	a.kernel.Close()
	a.fgMask.Close()
	a.morphed.Close()
	a.roiMasked.Close()
}

// Analyze feeds frame through the background subtractor, computes the
// global motion score and (if roi has at least 3 points) the ROI-masked
// score, and derives a centroid from image moments when present.
// sensitivity is in [0, 100] and controls AboveThreshold.
func (a *Analyzer) Analyze(frame gocv.Mat, roi []types.Point, sensitivity int) Result {
	a.bgSubtractor.Apply(frame, &a.fgMask)
	gocv.MorphologyEx(a.fgMask, &a.morphed, gocv.MorphOpen, a.kernel)
	gocv.MorphologyEx(a.morphed, &a.morphed, gocv.MorphClose, a.kernel)

	total := a.morphed.Rows() * a.morphed.Cols()
	nonZero := gocv.CountNonZero(a.morphed)
	score := ScoreFromMask(nonZero, total)

	result := Result{Score: score}

	if len(roi) >= 3 {
		mask := polygonMask(a.morphed.Rows(), a.morphed.Cols(), roi)
		defer mask.Close()
		a.morphed.CopyToWithMask(&a.roiMasked, mask)
		roiNonZero := gocv.CountNonZero(a.roiMasked)
		roiArea := gocv.CountNonZero(mask)
		result.ROIScore = ScoreFromMask(roiNonZero, roiArea)
	} else {
		result.ROIScore = score
	}

	moments := gocv.Moments(a.morphed, true)
	if moments.M00 >= MinMomentMass {
		cx := moments.M10 / moments.M00
		cy := moments.M01 / moments.M00
		result.HasCentroid = true
		result.Centroid = types.Point{
			X: cx / float64(a.morphed.Cols()),
			Y: cy / float64(a.morphed.Rows()),
		}
	}

	result.AboveThreshold = result.Score > SensitivityThreshold(sensitivity)

	return result
}

// polygonMask rasterizes an ROI (normalized points) into a single-channel
// 8-bit mask of the given pixel dimensions, white inside the polygon.
func polygonMask(rows, cols int, roi []types.Point) gocv.Mat {
	mask := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8U)
	pts := make([]image.Point, len(roi))
	for i, p := range roi {
		pts[i] = image.Pt(int(p.X*float64(cols)), int(p.Y*float64(rows)))
	}
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
	defer pv.Close()
	gocv.FillPoly(&mask, pv, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	return mask
}
