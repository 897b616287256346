// Package fastdetector is a reference implementation of
// solver.FeatureDetector: a Harris corner response over the luminance
// channel with non-maximum suppression and a greedy minimum-distance
// filter. Like ncctracker and lsqsolver, it demonstrates the black-box
// contract with real numerics rather than replacing a production detector.
package fastdetector

import (
	"math"
	"sort"

	"github.com/motioncore/tracker/internal/imaging"
	"github.com/motioncore/tracker/internal/solver"
)

// Detector detects corner features on a frame buffer.
type Detector struct {
	// WindowRadius is the half-size of the structure-tensor accumulation
	// window. Zero selects the default of 2 (a 5x5 window).
	WindowRadius int
}

var _ solver.FeatureDetector = Detector{}

// harrisK is the Harris response trace weight.
const harrisK = 0.04

func (d Detector) radius() int {
	if d.WindowRadius > 0 {
		return d.WindowRadius
	}
	return 2
}

// DetectFeatures returns corner features at least margin pixels away from
// every border, with a Harris response of at least minTrackness, spaced at
// least minDistance pixels apart. Features are returned strongest first.
func (d Detector) DetectFeatures(frame *imaging.Buffer, margin int, minTrackness, minDistance float64) []solver.Feature {
	w, h := frame.Width, frame.Height
	r := d.radius()
	if margin < r+1 {
		margin = r + 1
	}
	if w <= 2*margin || h <= 2*margin {
		return nil
	}

	lum := luminance(frame)
	response := make([]float64, w*h)
	for y := margin; y < h-margin; y++ {
		for x := margin; x < w-margin; x++ {
			response[y*w+x] = harrisResponse(lum, w, x, y, r)
		}
	}

	var candidates []solver.Feature
	for y := margin; y < h-margin; y++ {
		for x := margin; x < w-margin; x++ {
			v := response[y*w+x]
			if v < minTrackness {
				continue
			}
			if !isLocalMax(response, w, x, y) {
				continue
			}
			candidates = append(candidates, solver.Feature{
				X: float64(x), Y: float64(y), Score: v, Size: float64(2*r + 1),
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })

	if minDistance <= 0 {
		return candidates
	}
	minD2 := minDistance * minDistance
	var kept []solver.Feature
	for _, c := range candidates {
		ok := true
		for _, k := range kept {
			dx, dy := c.X-k.X, c.Y-k.Y
			if dx*dx+dy*dy < minD2 {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, c)
		}
	}
	return kept
}

func luminance(b *imaging.Buffer) []float64 {
	out := make([]float64, b.Width*b.Height)
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			if b.Channels >= 3 {
				out[y*b.Width+x] = imaging.WeightR*float64(b.At(x, y, 0)) +
					imaging.WeightG*float64(b.At(x, y, 1)) +
					imaging.WeightB*float64(b.At(x, y, 2))
			} else {
				out[y*b.Width+x] = float64(b.At(x, y, 0))
			}
		}
	}
	return out
}

// harrisResponse accumulates the structure tensor over a (2r+1)^2 window of
// central-difference gradients and returns det - k*trace^2.
func harrisResponse(lum []float64, w, cx, cy, r int) float64 {
	var sxx, syy, sxy float64
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			x, y := cx+dx, cy+dy
			gx := (lum[y*w+x+1] - lum[y*w+x-1]) / 2
			gy := (lum[(y+1)*w+x] - lum[(y-1)*w+x]) / 2
			sxx += gx * gx
			syy += gy * gy
			sxy += gx * gy
		}
	}
	det := sxx*syy - sxy*sxy
	trace := sxx + syy
	return det - harrisK*trace*trace
}

func isLocalMax(response []float64, w, x, y int) bool {
	v := response[y*w+x]
	if math.IsNaN(v) {
		return false
	}
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if response[(y+dy)*w+x+dx] > v {
				return false
			}
		}
	}
	return true
}
