// Package intrinsics implements the camera intrinsics and radial lens
// distortion model: forward distort/undistort of a single point, full-frame
// warps, and the perimeter-sampled undistortion delta bound used to size
// overscan.
package intrinsics

import (
	"math"
	"runtime"
	"sync"

	"github.com/motioncore/tracker/internal/coordspace"
	"github.com/motioncore/tracker/internal/imaging"
)

type Vec2 = coordspace.Vec2

// Intrinsics holds a pinhole camera's focal length, principal point, radial
// distortion coefficients, and sensor geometry.
type Intrinsics struct {
	Focal         float64
	PrincipalX    float64
	PrincipalY    float64
	K1, K2, K3    float64
	SensorWidthMM float64
	PixelAspect   float64

	threads int
}

// SetThreads sets the number of worker goroutines DistortFrame and
// UndistortFrame fan rows out over. n <= 0 selects GOMAXPROCS. Must not be
// called while a frame warp is in flight.
func (k *Intrinsics) SetThreads(n int) { k.threads = n }

func (k *Intrinsics) workerCount() int {
	if k.threads > 0 {
		return k.threads
	}
	return runtime.GOMAXPROCS(0)
}

// New returns an Intrinsics with the given pixel_aspect; PixelAspect must be
// positive (enforced by the configuration layer that loads it).
func New(focal, cx, cy, k1, k2, k3, sensorWidthMM, pixelAspect float64) *Intrinsics {
	return &Intrinsics{
		Focal: focal, PrincipalX: cx, PrincipalY: cy,
		K1: k1, K2: k2, K3: k3,
		SensorWidthMM: sensorWidthMM, PixelAspect: pixelAspect,
	}
}

// aspY is 1/pixel_aspect, the y-axis-only scale applied to the principal
// point and image height when handing geometry to the distortion kernel.
func (k *Intrinsics) aspY() float64 {
	if k.PixelAspect == 0 {
		return 1
	}
	return 1 / k.PixelAspect
}

func (k *Intrinsics) radialFactor(r2 float64) float64 {
	return 1 + k.K1*r2 + k.K2*r2*r2 + k.K3*r2*r2*r2
}

// Distort maps an ideal (undistorted) frame-pixel coordinate to its
// distorted frame-pixel coordinate under the forward radial model.
func (k *Intrinsics) Distort(p Vec2) Vec2 {
	aspy := k.aspY()
	nx := (p.X - k.PrincipalX) / k.Focal
	ny := (p.Y - k.PrincipalY*aspy) / k.Focal
	r2 := nx*nx + ny*ny
	factor := k.radialFactor(r2)
	return Vec2{
		X: k.Focal*nx*factor + k.PrincipalX,
		Y: k.Focal*ny*factor + k.PrincipalY*aspy,
	}
}

// undistortIterations is the fixed-point iteration count used to invert the
// radial model; the series converges quickly for the small-to-moderate k1..k3
// magnitudes a physical lens produces.
const undistortIterations = 20

// Undistort numerically inverts Distort.
func (k *Intrinsics) Undistort(p Vec2) Vec2 {
	aspy := k.aspY()
	dx := (p.X - k.PrincipalX) / k.Focal
	dy := (p.Y - k.PrincipalY*aspy) / k.Focal
	nx, ny := dx, dy
	for i := 0; i < undistortIterations; i++ {
		r2 := nx*nx + ny*ny
		factor := k.radialFactor(r2)
		if math.Abs(factor) < 1e-9 {
			factor = 1e-9
		}
		nx = dx / factor
		ny = dy / factor
	}
	return Vec2{
		X: k.Focal*nx + k.PrincipalX,
		Y: k.Focal*ny + k.PrincipalY*aspy,
	}
}

// warpFrame builds an (optionally overscanned) output buffer where each
// output pixel is sampled from src at mapBack(outputPixelInSourceSpace).
// Rows are fanned out over workers goroutines; each worker owns a disjoint
// band of output rows, so no two goroutines ever write the same pixel.
func warpFrame(src *imaging.Buffer, overscan float64, workers int, mapBack func(Vec2) Vec2) *imaging.Buffer {
	padX := int(overscan * float64(src.Width))
	padY := int(overscan * float64(src.Height))
	ow, oh := src.Width+2*padX, src.Height+2*padY

	out := imaging.NewBuffer(ow, oh, src.Channels)
	if workers > oh {
		workers = oh
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	rowsPer := (oh + workers - 1) / workers
	for w := 0; w < workers; w++ {
		y0 := w * rowsPer
		y1 := y0 + rowsPer
		if y1 > oh {
			y1 = oh
		}
		if y0 >= y1 {
			break
		}
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			for oy := y0; oy < y1; oy++ {
				for ox := 0; ox < ow; ox++ {
					p := Vec2{X: float64(ox - padX), Y: float64(oy - padY)}
					src2 := mapBack(p)
					for ch := 0; ch < src.Channels; ch++ {
						out.Set(ox, oy, ch, src.Sample(src2.X, src2.Y, ch))
					}
				}
			}
		}(y0, y1)
	}
	wg.Wait()
	return out
}

// DistortFrame warps an ideal (undistorted) frame into its distorted form:
// for every output (distorted) pixel, the source sample is taken at its
// undistorted position.
func (k *Intrinsics) DistortFrame(src *imaging.Buffer, overscan float64) *imaging.Buffer {
	return warpFrame(src, overscan, k.workerCount(), k.Undistort)
}

// UndistortFrame warps a distorted frame into its ideal form: for every
// output (undistorted) pixel, the source sample is taken at its distorted
// position.
func (k *Intrinsics) UndistortFrame(src *imaging.Buffer, overscan float64) *imaging.Buffer {
	return warpFrame(src, overscan, k.workerCount(), k.Distort)
}

// MaxUndistortionDeltaAcrossBound samples the perimeter of rect (given as
// min/max pixel corners) every 5 pixels, plus the exact corners, and
// returns the maximum componentwise |undistort(p) - p|.
func (k *Intrinsics) MaxUndistortionDeltaAcrossBound(min, max Vec2) Vec2 {
	var maxDX, maxDY float64
	consider := func(p Vec2) {
		u := k.Undistort(p)
		dx := math.Abs(u.X - p.X)
		dy := math.Abs(u.Y - p.Y)
		if dx > maxDX {
			maxDX = dx
		}
		if dy > maxDY {
			maxDY = dy
		}
	}

	const step = 5.0
	for x := min.X; x < max.X; x += step {
		consider(Vec2{X: x, Y: min.Y})
		consider(Vec2{X: x, Y: max.Y})
	}
	for y := min.Y; y < max.Y; y += step {
		consider(Vec2{X: min.X, Y: y})
		consider(Vec2{X: max.X, Y: y})
	}
	consider(Vec2{X: min.X, Y: min.Y})
	consider(Vec2{X: max.X, Y: min.Y})
	consider(Vec2{X: min.X, Y: max.Y})
	consider(Vec2{X: max.X, Y: max.Y})

	return Vec2{X: maxDX, Y: maxDY}
}
