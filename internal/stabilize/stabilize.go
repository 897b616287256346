// Package stabilize implements 2D frame stabilization: the per-frame
// median of flagged tracks, the translate/rotate/scale transform it drives,
// the autoscale search that guarantees no black borders across a frame
// range, and the affine warp that applies it.
package stabilize

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/motioncore/tracker/internal/clipmodel"
	"github.com/motioncore/tracker/internal/coordspace"
	"github.com/motioncore/tracker/internal/imaging"
)

// Vec2 aliases coordspace.Vec2.
type Vec2 = coordspace.Vec2

// Filter selects the resampling filter applied during Warp.
type Filter = clipmodel.StabilizationFilter

// Transform is the per-frame stabilization motion: a translation (pixels),
// a rotation angle about the image center (radians), and a uniform scale.
type Transform struct {
	Translation Vec2
	Angle       float64
	Scale       float64
}

// Median returns the componentwise midpoint of the bounding box of every
// USE_2D_STAB-flagged track's position at frame, in frame-unified
// coordinates. ok is false if no flagged track has a position at frame.
func Median(tracks []*clipmodel.Track, frame int) (pos Vec2, ok bool) {
	var min, max Vec2
	found := false
	for _, t := range tracks {
		if !t.Flags.Has(clipmodel.TrackUse2DStab) {
			continue
		}
		p, posOK := t.Markers.SubframePosition(float64(frame), t.Offset)
		if !posOK {
			continue
		}
		if !found {
			min, max = p, p
			found = true
			continue
		}
		if p.X < min.X {
			min.X = p.X
		}
		if p.Y < min.Y {
			min.Y = p.Y
		}
		if p.X > max.X {
			max.X = p.X
		}
		if p.Y > max.Y {
			max.Y = p.Y
		}
	}
	if !found {
		return Vec2{}, false
	}
	return Vec2{X: (min.X + max.X) / 2, Y: (min.Y + max.Y) / 2}, true
}

// Data computes the translate/rotate/scale transform for frame given the
// reference frame's median (median1) and this frame's median (median).
// When StabilizationRotation is set, the angle is derived from RotTrack's
// displacement between frame 1 and frame, and the translation is adjusted
// so the rotation happens about the image center rather than about the
// tracked feature.
func Data(frame, w, h int, median1, median Vec2, stab *clipmodel.StabilizationConfig) Transform {
	scale := (stab.Scale-1)*stab.ScaleInf + 1
	size := Vec2{X: float64(w), Y: float64(h)}
	translation := median1.Sub(median).Mul(size).Scale(scale * stab.LocInf)

	var angle float64
	if stab.Flags.Has(clipmodel.StabilizationRotation) && stab.RotTrack != nil {
		m1, ok1 := stab.RotTrack.Markers.Get(1)
		mf, ok2 := stab.RotTrack.Markers.Get(frame)
		if ok1 && ok2 {
			a := m1.Pos.Add(stab.RotTrack.Offset).Sub(median1).Mul(size)
			b := mf.Pos.Add(stab.RotTrack.Offset).Sub(median).Mul(size)
			angle = -math.Atan2(a.X*b.Y-a.Y*b.X, a.X*b.X+a.Y*b.Y) * stab.RotInf

			// Re-derive the feature's offset from center before and after the
			// rotation and fold the difference into the translation, so the
			// rotation pivots on the image center rather than dragging the
			// feature.
			center := Vec2{X: size.X / 2, Y: size.Y / 2}
			rel := mf.Pos.Add(stab.RotTrack.Offset).Mul(size).Sub(center)
			cosA, sinA := math.Cos(angle), math.Sin(angle)
			rotated := Vec2{X: rel.X*cosA - rel.Y*sinA, Y: rel.X*sinA + rel.Y*cosA}
			translation = translation.Add(rel.Sub(rotated))
		}
	}

	return Transform{Translation: translation, Angle: angle, Scale: scale}
}

// Autoscale finds the minimum uniform scale such that, for every frame in
// [minFrame,maxFrame], the translate+rotate transform computed by Data
// leaves no black border around the frame, clipped at stab.MaxScale if
// positive. It caches the result in stab.Scale and marks stab.Ok true.
//
// For each frame, each of the output rectangle's four sides, and each of
// the (rotated) source rectangle's four corners, it computes the scale
// that would place that corner exactly on that side; the overall result is
// the max across frames, sides, and corners.
func Autoscale(tracks []*clipmodel.Track, w, h, minFrame, maxFrame int, stab *clipmodel.StabilizationConfig) float64 {
	if !stab.Flags.Has(clipmodel.StabilizationAutoscale) {
		stab.Scale = 1
		stab.Ok = true
		return 1
	}

	median1, ok := Median(tracks, minFrame)
	if !ok {
		stab.Scale = 1
		stab.Ok = true
		return 1
	}

	center := Vec2{X: float64(w) / 2, Y: float64(h) / 2}
	baseCorners := [4]Vec2{
		{X: -center.X, Y: -center.Y},
		{X: center.X, Y: -center.Y},
		{X: center.X, Y: center.Y},
		{X: -center.X, Y: center.Y},
	}
	sides := [4]struct {
		bound float64
		axis  byte
	}{
		{0, 'x'}, {float64(w), 'x'}, {0, 'y'}, {float64(h), 'y'},
	}

	savedScale := stab.Scale
	stab.Scale = 1 // solve for the scale on top of an otherwise-unscaled transform

	maxScale := 1.0
	for f := minFrame; f <= maxFrame; f++ {
		median, ok := Median(tracks, f)
		if !ok {
			continue
		}
		tr := Data(f, w, h, median1, median, stab)
		cosA, sinA := math.Cos(tr.Angle), math.Sin(tr.Angle)
		for _, bc := range baseCorners {
			rd := Vec2{X: bc.X*cosA - bc.Y*sinA, Y: bc.X*sinA + bc.Y*cosA}
			for _, side := range sides {
				s, ok := requiredScale(side.axis, side.bound, center, tr.Translation, rd)
				if ok && s > maxScale {
					maxScale = s
				}
			}
		}
	}

	stab.Scale = savedScale
	if stab.MaxScale > 0 && maxScale > stab.MaxScale {
		maxScale = stab.MaxScale
	}
	stab.Scale = maxScale
	stab.Ok = true
	return maxScale
}

// requiredScale computes the scale that places center+translation+s*rd on
// the named side (axis 'x' or 'y', bound 0 or the far edge). ok is false if
// rd points away from that side, in which case no finite positive scale
// reaches it.
func requiredScale(axis byte, bound float64, center, t, rd Vec2) (float64, bool) {
	near := bound == 0
	switch axis {
	case 'x':
		if near {
			if rd.X >= 0 {
				return 0, false
			}
		} else if rd.X <= 0 {
			return 0, false
		}
		return (bound - center.X - t.X) / rd.X, true
	default:
		if near {
			if rd.Y >= 0 {
				return 0, false
			}
		} else if rd.Y <= 0 {
			return 0, false
		}
		return (bound - center.Y - t.Y) / rd.Y, true
	}
}

// StabilizeFrame applies Transform to frame via Warp, or returns frame
// unchanged with an identity transform when Stabilization2D is off or no
// median is available at either the reference or the queried frame.
func StabilizeFrame(frame *imaging.Buffer, frameNum, referenceFrame int, tracks []*clipmodel.Track, stab *clipmodel.StabilizationConfig, pixelAspect float64) (*imaging.Buffer, Transform) {
	identity := Transform{Scale: 1}
	if !stab.Flags.Has(clipmodel.Stabilization2D) {
		return frame, identity
	}
	median1, ok1 := Median(tracks, referenceFrame)
	median, ok2 := Median(tracks, frameNum)
	if !ok1 || !ok2 {
		return frame, identity
	}
	tr := Data(frameNum, frame.Width, frame.Height, median1, median, stab)
	return Warp(frame, tr, pixelAspect, stab.Filter), tr
}

// Warp resamples frame through the inverse of the chain
// T·C·A·R·A⁻¹·S·C⁻¹: translate to center, undo pixel aspect, rotate,
// reapply aspect, translate back, then apply the stabilization translation,
// producing a same-size output buffer using the configured filter. Returns
// frame unchanged if the transform is singular (zero scale).
func Warp(frame *imaging.Buffer, tr Transform, pixelAspect float64, filter Filter) *imaging.Buffer {
	w, h := frame.Width, frame.Height
	forward := buildMatrix(w, h, tr, pixelAspect)
	var inv mat.Dense
	if err := inv.Inverse(forward); err != nil {
		return frame
	}

	out := imaging.NewBuffer(w, h, frame.Channels)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx := inv.At(0, 0)*float64(x) + inv.At(0, 1)*float64(y) + inv.At(0, 2)
			sy := inv.At(1, 0)*float64(x) + inv.At(1, 1)*float64(y) + inv.At(1, 2)
			for c := 0; c < frame.Channels; c++ {
				out.Set(x, y, c, sampleFiltered(frame, sx, sy, c, filter))
			}
		}
	}
	return out
}

func buildMatrix(w, h int, tr Transform, pixelAspect float64) *mat.Dense {
	cx, cy := float64(w)/2, float64(h)/2
	a := pixelAspect
	if a == 0 {
		a = 1
	}

	toOrigin := translationMat(-cx, -cy)    // C^-1
	backToCenter := translationMat(cx, cy)  // C
	aspect := scaleMat(1, a)                // A
	aspectInv := scaleMat(1, 1/a)           // A^-1
	rot := rotationMat(tr.Angle)            // R
	scale := scaleMat(tr.Scale, tr.Scale)   // S
	translate := translationMat(tr.Translation.X, tr.Translation.Y) // T

	m := mulNew(scale, toOrigin)
	m = mulNew(aspectInv, m)
	m = mulNew(rot, m)
	m = mulNew(aspect, m)
	m = mulNew(backToCenter, m)
	m = mulNew(translate, m)
	return m
}

func mulNew(a, b *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Mul(a, b)
	return &out
}

func translationMat(tx, ty float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, tx,
		0, 1, ty,
		0, 0, 1,
	})
}

func scaleMat(sx, sy float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		sx, 0, 0,
		0, sy, 0,
		0, 0, 1,
	})
}

func rotationMat(theta float64) *mat.Dense {
	c, s := math.Cos(theta), math.Sin(theta)
	return mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
}

func sampleFiltered(b *imaging.Buffer, x, y float64, ch int, filter Filter) float32 {
	switch filter {
	case clipmodel.FilterNearest:
		return clampedAt(b, int(math.Round(x)), int(math.Round(y)), ch)
	case clipmodel.FilterBicubic:
		return bicubicSample(b, x, y, ch)
	default:
		return b.Sample(x, y, ch)
	}
}

// cubicKernel is the Catmull-Rom convolution kernel used by bicubicSample.
func cubicKernel(x float64) float64 {
	x = math.Abs(x)
	switch {
	case x <= 1:
		return 1.5*x*x*x - 2.5*x*x + 1
	case x < 2:
		return -0.5*x*x*x + 2.5*x*x - 4*x + 2
	default:
		return 0
	}
}

func bicubicSample(b *imaging.Buffer, fx, fy float64, ch int) float32 {
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	var sum, wsum float64
	for m := -1; m <= 2; m++ {
		wy := cubicKernel(fy - float64(y0+m))
		if wy == 0 {
			continue
		}
		for n := -1; n <= 2; n++ {
			wx := cubicKernel(fx - float64(x0+n))
			w := wx * wy
			if w == 0 {
				continue
			}
			sum += w * float64(clampedAt(b, x0+n, y0+m, ch))
			wsum += w
		}
	}
	if wsum == 0 {
		return 0
	}
	return float32(sum / wsum)
}

func clampedAt(b *imaging.Buffer, x, y, ch int) float32 {
	if x < 0 {
		x = 0
	}
	if x >= b.Width {
		x = b.Width - 1
	}
	if y < 0 {
		y = 0
	}
	if y >= b.Height {
		y = b.Height - 1
	}
	return b.At(x, y, ch)
}
