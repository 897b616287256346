// Package ncctracker is a reference implementation of solver.TrackerKernel:
// brute-force normalized cross-correlation template matching, with a
// gonum/optimize-driven refinement pass when brute force is disabled.
package ncctracker

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"

	"github.com/motioncore/tracker/internal/coordspace"
	"github.com/motioncore/tracker/internal/imaging"
	"github.com/motioncore/tracker/internal/solver"
)

// Kernel is a translation-only NCC tracker kernel.
type Kernel struct{}

var _ solver.TrackerKernel = Kernel{}

// TrackRegion slides srcPatch over dstPatch and returns the offset with the
// highest normalized cross-correlation, translating srcXY by that offset.
func (Kernel) TrackRegion(opts solver.TrackRegionOpts, srcPatch, dstPatch *imaging.Buffer, srcXY coordspace.Correspondence) (bool, coordspace.Correspondence, float64) {
	maxDX := dstPatch.Width - srcPatch.Width
	maxDY := dstPatch.Height - srcPatch.Height
	if maxDX < 0 || maxDY < 0 {
		return false, coordspace.Correspondence{}, 0
	}

	var bestDX, bestDY int
	bestScore := math.Inf(-1)

	if opts.UseBrute {
		for dy := 0; dy <= maxDY; dy++ {
			for dx := 0; dx <= maxDX; dx++ {
				score := correlationAt(srcPatch, dstPatch, dx, dy, opts.UseNormalization)
				if score > bestScore {
					bestScore = score
					bestDX, bestDY = dx, dy
				}
			}
		}
	} else {
		bestDX, bestDY, bestScore = refineWithOptimizer(srcPatch, dstPatch, opts.UseNormalization)
	}

	if bestScore < opts.MinCorrelation {
		return false, coordspace.Correspondence{}, bestScore
	}

	var out coordspace.Correspondence
	for i, p := range srcXY {
		out[i] = coordspace.Vec2{X: p.X + float64(bestDX), Y: p.Y + float64(bestDY)}
	}
	return true, out, bestScore
}

// refineWithOptimizer runs BFGS from the search region's center to locate a
// local correlation maximum, for callers that disabled brute-force search.
func refineWithOptimizer(srcPatch, dstPatch *imaging.Buffer, normalize bool) (int, int, float64) {
	maxDX := float64(dstPatch.Width - srcPatch.Width)
	maxDY := float64(dstPatch.Height - srcPatch.Height)
	start := []float64{maxDX / 2, maxDY / 2}

	negCorrelation := func(x []float64) float64 {
		dx, dy := clampF(x[0], 0, maxDX), clampF(x[1], 0, maxDY)
		return -correlationAtF(srcPatch, dstPatch, dx, dy, normalize)
	}

	problem := optimize.Problem{
		Func: negCorrelation,
		Grad: func(grad, x []float64) { fd.Gradient(grad, negCorrelation, x, nil) },
	}
	result, err := optimize.Minimize(problem, start, &optimize.Settings{MajorIterations: 40}, &optimize.BFGS{})
	if err != nil || result == nil {
		dx, dy := int(start[0]), int(start[1])
		return dx, dy, correlationAt(srcPatch, dstPatch, dx, dy, normalize)
	}

	dx := int(clampF(result.X[0], 0, maxDX))
	dy := int(clampF(result.X[1], 0, maxDY))
	return dx, dy, correlationAt(srcPatch, dstPatch, dx, dy, normalize)
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func correlationAt(srcPatch, dstPatch *imaging.Buffer, dx, dy int, normalize bool) float64 {
	return correlationAtF(srcPatch, dstPatch, float64(dx), float64(dy), normalize)
}

// correlationAtF computes the (optionally mean-normalized) cross-correlation
// between srcPatch and the dstPatch window whose top-left corner sits at
// fractional offset (dx,dy), averaged over channels.
func correlationAtF(srcPatch, dstPatch *imaging.Buffer, dx, dy float64, normalize bool) float64 {
	n := srcPatch.Width * srcPatch.Height
	if n == 0 {
		return 0
	}

	var sumTotal float64
	for ch := 0; ch < srcPatch.Channels; ch++ {
		var sumA, sumB, sumAB, sumA2, sumB2 float64
		for y := 0; y < srcPatch.Height; y++ {
			for x := 0; x < srcPatch.Width; x++ {
				a := float64(srcPatch.At(x, y, ch))
				b := float64(dstPatch.Sample(dx+float64(x), dy+float64(y), ch))
				sumA += a
				sumB += b
				sumAB += a * b
				sumA2 += a * a
				sumB2 += b * b
			}
		}
		fn := float64(n)
		if !normalize {
			sumTotal += sumAB / fn
			continue
		}
		meanA, meanB := sumA/fn, sumB/fn
		cov := sumAB/fn - meanA*meanB
		varA := sumA2/fn - meanA*meanA
		varB := sumB2/fn - meanB*meanB
		denom := math.Sqrt(varA * varB)
		if denom < 1e-12 {
			sumTotal += 0
			continue
		}
		sumTotal += cov / denom
	}
	return sumTotal / float64(srcPatch.Channels)
}
