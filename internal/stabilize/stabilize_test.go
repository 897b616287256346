package stabilize

import (
	"math"
	"testing"

	"github.com/motioncore/tracker/internal/clipmodel"
	"github.com/motioncore/tracker/internal/config"
	"github.com/motioncore/tracker/internal/imaging"
	"github.com/motioncore/tracker/internal/markerstore"
)

func trackAt(name string, frames map[int]Vec2) *clipmodel.Track {
	tr := clipmodel.NewTrack(name)
	tr.Flags |= clipmodel.TrackUse2DStab
	for f, p := range frames {
		tr.Markers.Insert(markerstore.Marker{Frame: f, Pos: p})
	}
	return tr
}

func TestMedian_BoundingBoxMidpoint(t *testing.T) {
	a := trackAt("A", map[int]Vec2{1: {X: 0.2, Y: 0.4}})
	b := trackAt("B", map[int]Vec2{1: {X: 0.6, Y: 0.8}})
	notFlagged := clipmodel.NewTrack("ignored")
	notFlagged.Markers.Insert(markerstore.Marker{Frame: 1, Pos: Vec2{X: 0.9, Y: 0.9}})

	pos, ok := Median([]*clipmodel.Track{a, b, notFlagged}, 1)
	if !ok {
		t.Fatal("expected a median")
	}
	if math.Abs(pos.X-0.4) > 1e-9 || math.Abs(pos.Y-0.6) > 1e-9 {
		t.Fatalf("expected midpoint (0.4,0.6), got %v", pos)
	}
}

func TestMedian_NoFlaggedTracks(t *testing.T) {
	plain := clipmodel.NewTrack("plain")
	plain.Markers.Insert(markerstore.Marker{Frame: 1, Pos: Vec2{X: 0.5, Y: 0.5}})
	if _, ok := Median([]*clipmodel.Track{plain}, 1); ok {
		t.Fatal("expected no median without a flagged track")
	}
}

func TestData_TranslationFollowsMedianDelta(t *testing.T) {
	stab := &clipmodel.StabilizationConfig{ScaleInf: 1, LocInf: 1, Scale: 1}
	median1 := Vec2{X: 0.5, Y: 0.5}
	median := Vec2{X: 0.6, Y: 0.5} // feature drifted +0.1 in x
	tr := Data(10, 200, 100, median1, median, stab)
	// translation should move the frame by -(drift)*size to cancel it
	if math.Abs(tr.Translation.X-(-20)) > 1e-9 {
		t.Fatalf("expected translation.x = -20, got %v", tr.Translation.X)
	}
	if tr.Angle != 0 {
		t.Fatalf("expected zero angle without rotation tracking, got %v", tr.Angle)
	}
}

// With 2D stabilization off, StabilizeFrame is the identity.
func TestStabilizeFrame_IdentityWhenDisabled(t *testing.T) {
	stab := clipmodel.NewStabilizationConfig(mustDefaults(t))
	frame := newSolidBuffer(4, 4, 0.5)
	out, tr := StabilizeFrame(frame, 5, 1, nil, stab, 1)
	if out != frame {
		t.Fatal("expected the same buffer back when stabilization is off")
	}
	if tr.Scale != 1 || tr.Angle != 0 || tr.Translation != (Vec2{}) {
		t.Fatalf("expected an identity transform, got %+v", tr)
	}
}

// Autoscale must grow, never shrink below 1, and
// must be large enough that every frame's warp covers the full frame.
func TestAutoscale_CoversTranslationRange(t *testing.T) {
	stab := &clipmodel.StabilizationConfig{
		Flags:    clipmodel.StabilizationAutoscale,
		ScaleInf: 1,
		LocInf:   1,
		Scale:    1,
	}
	tracks := []*clipmodel.Track{
		trackAt("feature", map[int]Vec2{
			1:  {X: 0.5, Y: 0.5},
			10: {X: 0.6, Y: 0.5}, // drifts 0.1 of the frame width
		}),
	}
	scale := Autoscale(tracks, 200, 100, 1, 10, stab)
	if scale <= 1 {
		t.Fatalf("expected autoscale > 1 for a drifting feature, got %v", scale)
	}
	if !stab.Ok {
		t.Fatal("expected Ok to be set true after computing autoscale")
	}
	if stab.Scale != scale {
		t.Fatalf("expected stab.Scale cached as %v, got %v", scale, stab.Scale)
	}
}

func TestAutoscale_ClipsAtMaxScale(t *testing.T) {
	stab := &clipmodel.StabilizationConfig{
		Flags:    clipmodel.StabilizationAutoscale,
		ScaleInf: 1,
		LocInf:   1,
		Scale:    1,
		MaxScale: 1.05,
	}
	tracks := []*clipmodel.Track{
		trackAt("feature", map[int]Vec2{
			1:  {X: 0.5, Y: 0.5},
			10: {X: 0.9, Y: 0.5},
		}),
	}
	scale := Autoscale(tracks, 200, 100, 1, 10, stab)
	if scale != 1.05 {
		t.Fatalf("expected autoscale clipped to 1.05, got %v", scale)
	}
}

func TestAutoscale_DisabledReturnsOne(t *testing.T) {
	stab := &clipmodel.StabilizationConfig{Scale: 1}
	scale := Autoscale(nil, 200, 100, 1, 10, stab)
	if scale != 1 || !stab.Ok {
		t.Fatalf("expected scale 1 and Ok true, got %v, %v", scale, stab.Ok)
	}
}

func TestWarp_IdentityTransformPreservesCenterPixel(t *testing.T) {
	frame := newSolidBuffer(8, 8, 0.75)
	out := Warp(frame, Transform{Scale: 1}, 1, clipmodel.FilterBilinear)
	got := out.At(4, 4, 0)
	if math.Abs(float64(got)-0.75) > 1e-3 {
		t.Fatalf("expected identity warp to preserve pixel value, got %v", got)
	}
}

func newSolidBuffer(w, h int, v float32) *imaging.Buffer {
	b := imaging.NewBuffer(w, h, 1)
	for i := range b.Pix {
		b.Pix[i] = v
	}
	return b
}

func mustDefaults(t *testing.T) *config.ClipDefaults {
	t.Helper()
	return config.MustLoadDefaultClipDefaults()
}
