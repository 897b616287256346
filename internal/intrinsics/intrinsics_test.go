package intrinsics

import (
	"testing"

	"github.com/motioncore/tracker/internal/imaging"
)

func approxEqual(a, b, eps float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}

func TestUndistortInvertsDistort(t *testing.T) {
	k := New(1000, 500, 500, -0.1, 0.02, 0, 36, 1)
	p := Vec2{X: 620, Y: 430}
	d := k.Distort(p)
	back := k.Undistort(d)
	if !approxEqual(back.X, p.X, 1e-4) || !approxEqual(back.Y, p.Y, 1e-4) {
		t.Fatalf("round trip failed: p=%v back=%v", p, back)
	}
}

func TestDistortIdentityWithZeroCoefficients(t *testing.T) {
	k := New(1000, 500, 500, 0, 0, 0, 36, 1)
	p := Vec2{X: 700, Y: 300}
	got := k.Distort(p)
	if !approxEqual(got.X, p.X, 1e-9) || !approxEqual(got.Y, p.Y, 1e-9) {
		t.Fatalf("expected identity with zero distortion coefficients, got %v", got)
	}
}

func TestMaxUndistortionDeltaAcrossBoundIsZeroWithoutDistortion(t *testing.T) {
	k := New(1000, 500, 500, 0, 0, 0, 36, 1)
	delta := k.MaxUndistortionDeltaAcrossBound(Vec2{X: 0, Y: 0}, Vec2{X: 1000, Y: 1000})
	if delta.X > 1e-6 || delta.Y > 1e-6 {
		t.Fatalf("expected ~zero delta with zero distortion, got %v", delta)
	}
}

func TestPixelAspectScalesYAxisOnly(t *testing.T) {
	k := New(1000, 500, 500, 0, 0, 0, 36, 2) // pixel_aspect=2 -> aspy=0.5
	p := Vec2{X: 700, Y: 700}
	got := k.Distort(p)
	// with zero distortion coefficients Distort is the identity; aspy enters
	// only through the principal point's y coordinate, so x must come out
	// unaffected by the pixel aspect.
	if !approxEqual(got.X, p.X, 1e-9) {
		t.Fatalf("expected x unaffected by pixel aspect, got %v", got.X)
	}
}

func TestUndistortFrameIdentityWithZeroCoefficients(t *testing.T) {
	k := New(1000, 16, 16, 0, 0, 0, 36, 1)
	src := imaging.NewBuffer(32, 32, 3)
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			v := float32(x+y) / 64
			src.Set(x, y, 0, v)
			src.Set(x, y, 1, v)
			src.Set(x, y, 2, v)
		}
	}
	out := k.UndistortFrame(src, 0)
	if out.Width != 32 || out.Height != 32 {
		t.Fatalf("expected same-size output without overscan, got %dx%d", out.Width, out.Height)
	}
	if diff := out.At(10, 20, 0) - src.At(10, 20, 0); diff > 1e-5 || diff < -1e-5 {
		t.Fatalf("expected identity warp with zero coefficients, got %v vs %v", out.At(10, 20, 0), src.At(10, 20, 0))
	}
}

func TestDistortFrameRespectsOverscanAndThreads(t *testing.T) {
	k := New(1000, 8, 8, -0.05, 0, 0, 36, 1)
	k.SetThreads(3)
	src := imaging.NewBuffer(16, 16, 1)
	out := k.DistortFrame(src, 0.25)
	// overscan of 0.25 pads by 4 pixels on each side
	if out.Width != 24 || out.Height != 24 {
		t.Fatalf("expected 24x24 overscanned output, got %dx%d", out.Width, out.Height)
	}
}
