// Package geometry holds the pure, stateless primitives shared by the
// motion analyzer, tracker, and capture pipeline: point-in-polygon
// containment, directed-line side tests, IoU, and letterbox scaling.
package geometry

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/sentineld/videosentry/pkg/types"
)

// PointInPolygon reports whether p lies inside poly using the ray-casting,
// even-odd rule. Returns false for degenerate polygons (fewer than 3
// vertices).
func PointInPolygon(p types.Point, poly []types.Point) bool {
	if len(poly) < 3 {
		return false
	}
	inside := false
	j := len(poly) - 1
	for i := 0; i < len(poly); i++ {
		a, b := poly[i], poly[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			xIntersect := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < xIntersect {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// SideOfLine returns the cross product of (p-a) and (b-a); its sign tells
// which side of the line a-b p lies on. Zero means p is colinear with a-b.
func SideOfLine(p, a, b types.Point) float64 {
	return (p.X-a.X)*(b.Y-a.Y) - (p.Y-a.Y)*(b.X-a.X)
}

// IoU computes the intersection-over-union of two axis-aligned pixel
// rectangles. Returns 0 when the union area is 0.
func IoU(a, b types.Rect) float64 {
	ax2, ay2 := a.X+a.Width, a.Y+a.Height
	bx2, by2 := b.X+b.Width, b.Y+b.Height

	ix1, iy1 := max(a.X, b.X), max(a.Y, b.Y)
	ix2, iy2 := min(ax2, bx2), min(ay2, by2)

	iw, ih := ix2-ix1, iy2-iy1
	var interArea float64
	if iw > 0 && ih > 0 {
		interArea = float64(iw) * float64(ih)
	}

	areaA := float64(a.Width) * float64(a.Height)
	areaB := float64(b.Width) * float64(b.Height)
	unionArea := areaA + areaB - interArea
	if unionArea <= 0 {
		return 0
	}
	return interArea / unionArea
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// LetterboxTransform describes the mapping applied by Letterbox: a uniform
// scale factor plus the padding added on each axis to reach a square canvas
// of side `target`.
type LetterboxTransform struct {
	Scale float64
	PadX  float64
	PadY  float64
}

// Letterbox resizes src into a square canvas of side max(src.Width,
// src.Height), centers the original content with black padding, then
// scales the whole square to target x target. It returns the resulting
// image alongside the transform needed to map detector-space pixels back
// to the original frame: origX = (detX - PadX) / Scale.
func Letterbox(src image.Image, target int) (*image.RGBA, LetterboxTransform) {
	b := src.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	side := srcW
	if srcH > side {
		side = srcH
	}
	if side == 0 {
		side = 1
	}

	padXSquare := float64(side-srcW) / 2
	padYSquare := float64(side-srcH) / 2

	square := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(square, square.Bounds(), image.Black, image.Point{}, draw.Src)
	dstRect := image.Rect(int(padXSquare), int(padYSquare), int(padXSquare)+srcW, int(padYSquare)+srcH)
	draw.Draw(square, dstRect, src, b.Min, draw.Src)

	scale := float64(target) / float64(side)

	dst := image.NewRGBA(image.Rect(0, 0, target, target))
	draw.CatmullRom.Scale(dst, dst.Bounds(), square, square.Bounds(), draw.Src, nil)

	return dst, LetterboxTransform{
		Scale: scale,
		PadX:  padXSquare * scale,
		PadY:  padYSquare * scale,
	}
}

// Unletterbox maps a point in the letterboxed target frame back to the
// original source frame's pixel coordinates.
func Unletterbox(t LetterboxTransform, px, py float64) (float64, float64) {
	return (px - t.PadX) / t.Scale, (py - t.PadY) / t.Scale
}
