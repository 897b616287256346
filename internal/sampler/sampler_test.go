package sampler

import (
	"testing"

	"github.com/motioncore/tracker/internal/clipmodel"
	"github.com/motioncore/tracker/internal/coordspace"
	"github.com/motioncore/tracker/internal/imaging"
	"github.com/motioncore/tracker/internal/markerstore"
)

func solidFrame(w, h int, r, g, b float32) *imaging.Buffer {
	buf := imaging.NewBuffer(w, h, 3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			buf.Set(x, y, 0, r)
			buf.Set(x, y, 1, g)
			buf.Set(x, y, 2, b)
		}
	}
	return buf
}

func TestGetSearchImbuf_CropsExpectedRegion(t *testing.T) {
	frame := solidFrame(100, 100, 1, 0, 0)
	tr := clipmodel.NewTrack("Track")
	m := markerstore.Marker{
		Pos:       Vec2{X: 0.5, Y: 0.5},
		SearchMin: Vec2{X: -0.1, Y: -0.1},
		SearchMax: Vec2{X: 0.1, Y: 0.1},
	}
	out, err := GetSearchImbuf(frame, tr, m, false, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == nil {
		t.Fatal("expected non-nil search buffer")
	}
	if out.Width != 20 || out.Height != 20 {
		t.Fatalf("expected ~20x20 crop, got %dx%d", out.Width, out.Height)
	}
}

func TestGetSearchImbuf_DegenerateReturnsNil(t *testing.T) {
	frame := solidFrame(100, 100, 1, 0, 0)
	tr := clipmodel.NewTrack("Track")
	m := markerstore.Marker{
		Pos:       Vec2{X: 0.5, Y: 0.5},
		SearchMin: Vec2{X: 0, Y: 0},
		SearchMax: Vec2{X: 0, Y: 0},
	}
	out, err := GetSearchImbuf(frame, tr, m, false, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != nil {
		t.Fatal("expected nil buffer for degenerate search region")
	}
}

func TestSamplePattern_CenterMatchesSolidColor(t *testing.T) {
	frame := solidFrame(100, 100, 0.2, 0.4, 0.6)
	tr := clipmodel.NewTrack("Track")
	m := markerstore.Marker{
		Pos: Vec2{X: 0.5, Y: 0.5},
		PatternCorners: [4]Vec2{
			{X: -0.05, Y: -0.05},
			{X: 0.05, Y: -0.05},
			{X: 0.05, Y: 0.05},
			{X: -0.05, Y: 0.05},
		},
		SearchMin: Vec2{X: -0.1, Y: -0.1},
		SearchMax: Vec2{X: 0.1, Y: 0.1},
	}
	patch, residual, err := SamplePattern(frame, tr, m, false, false, nil, 8, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if residual != (Vec2{}) {
		t.Fatalf("expected zero residual without from_anchor, got %v", residual)
	}
	if diff := patch.At(4, 4, 0) - 0.2; diff > 1e-3 || diff < -1e-3 {
		t.Fatalf("expected patch to sample the solid frame color, got %v", patch.At(4, 4, 0))
	}
}

func TestTrackGetMask_SizedToSearchRegion(t *testing.T) {
	m := markerstore.Marker{
		Pos:       Vec2{X: 0.5, Y: 0.5},
		SearchMin: Vec2{X: -0.1, Y: -0.1},
		SearchMax: Vec2{X: 0.1, Y: 0.1},
	}
	size := coordspace.Size{W: 100, H: 100}

	// A stroke covering the whole search region, in marker-relative offsets.
	stroke := []Vec2{
		{X: -0.1, Y: -0.1}, {X: 0.1, Y: -0.1}, {X: 0.1, Y: 0.1}, {X: -0.1, Y: 0.1},
	}
	mask := TrackGetMask(size, m, [][]Vec2{stroke})
	if mask == nil {
		t.Fatal("expected a mask buffer")
	}
	if mask.Width != 20 || mask.Height != 20 {
		t.Fatalf("expected 20x20 mask sized to the search region, got %dx%d", mask.Width, mask.Height)
	}
	if mask.At(10, 10, 0) < 0.9 {
		t.Fatalf("expected the stroke to cover the search center, got %v", mask.At(10, 10, 0))
	}
}

func TestTrackGetMask_DegenerateSearchReturnsNil(t *testing.T) {
	m := markerstore.Marker{Pos: Vec2{X: 0.5, Y: 0.5}}
	if mask := TrackGetMask(coordspace.Size{W: 100, H: 100}, m, nil); mask != nil {
		t.Fatal("expected nil mask for a degenerate search region")
	}
}

func TestSamplePattern_FromAnchorCompensatesFractionalOffset(t *testing.T) {
	// horizontal gradient so a sub-pixel shift is measurable
	frame := imaging.NewBuffer(100, 100, 1)
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			frame.Set(x, y, 0, float32(x)/100)
		}
	}

	tr := clipmodel.NewTrack("Track")
	tr.Offset = Vec2{X: 0.035, Y: 0} // 3.5 pixels: fractional part 0.5
	m := markerstore.Marker{
		Pos: Vec2{X: 0.5, Y: 0.5},
		PatternCorners: [4]Vec2{
			{X: -0.05, Y: -0.05},
			{X: 0.05, Y: -0.05},
			{X: 0.05, Y: 0.05},
			{X: -0.05, Y: 0.05},
		},
		SearchMin: Vec2{X: -0.1, Y: -0.1},
		SearchMax: Vec2{X: 0.1, Y: 0.1},
	}

	patch, residual, err := SamplePattern(frame, tr, m, true, false, nil, 3, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := residual.X - 0.5; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected half-pixel residual, got %v", residual)
	}
	if residual.Y != 0 {
		t.Fatalf("expected zero y residual for an integer y offset, got %v", residual.Y)
	}
	// quad center lands at pixel (49.5, 50): the compensation shifts the
	// sample by half a pixel, not half a frame
	got := float64(patch.At(1, 1, 0))
	want := 0.495
	if diff := got - want; diff > 1e-3 || diff < -1e-3 {
		t.Fatalf("expected center sample %v after compensation, got %v", want, got)
	}
}
