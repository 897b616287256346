package coordspace

import (
	"math"
	"testing"
)

func almostEqual(a, b Vec2, eps float64) bool {
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps
}

func TestUnifiedPixelRoundTrip(t *testing.T) {
	size := Size{W: 1920, H: 1080}
	u := Vec2{X: 0.42, Y: 0.73}
	p := UnifiedToPixel(u, size)
	back := PixelToUnified(p, size)
	if !almostEqual(u, back, 1e-9) {
		t.Fatalf("round trip mismatch: %v != %v", u, back)
	}
}

func TestSearchMarkerRoundTrip(t *testing.T) {
	size := Size{W: 1280, H: 720}
	markerPos := Vec2{X: 0.5, Y: 0.5}
	searchMin := Vec2{X: -0.05, Y: -0.05}

	cases := []Vec2{
		{X: -0.05, Y: -0.05},
		{X: 0, Y: 0},
		{X: 0.03, Y: -0.02},
		{X: 0.049, Y: 0.049},
	}
	for _, v := range cases {
		sp := MarkerUnifiedToSearchPixel(markerPos, searchMin, v, size)
		back := SearchPixelToMarkerUnified(markerPos, searchMin, sp, size)
		if !almostEqual(v, back, 1e-6) {
			t.Fatalf("search<->marker round trip mismatch for %v: got %v", v, back)
		}
	}
}

func TestSearchOriginIsIntegerSnapped(t *testing.T) {
	size := Size{W: 100, H: 100}
	markerPos := Vec2{X: 0.503, Y: 0.503}
	searchMin := Vec2{X: -0.1, Y: -0.1}
	origin := SearchOriginPixel(markerPos, searchMin, size)
	// frame-pixel of marker+searchMin = (0.403*100, 0.403*100) = (40.3, 40.3) -> floor = 40
	if origin[0] != 40 || origin[1] != 40 {
		t.Fatalf("expected integer-snapped origin (40,40), got %v", origin)
	}
}

func TestPackUnpackCorrespondenceShift(t *testing.T) {
	corners := [4]Vec2{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}}
	pixelOf := func(v Vec2) Vec2 { return v.Scale(10) }
	packed := PackCorrespondence(corners, pixelOf)
	for i, c := range corners {
		want := pixelOf(c)
		got := packed[i]
		if !almostEqual(Vec2{got.X + 0.5, got.Y + 0.5}, want, 1e-9) {
			t.Fatalf("corner %d: expected -0.5 shift from %v, got %v", i, want, got)
		}
	}
	unpacked := UnpackCorrespondence(packed)
	for i, c := range corners {
		want := pixelOf(c)
		if !almostEqual(unpacked[i], want, 1e-9) {
			t.Fatalf("unpack corner %d: expected %v, got %v", i, want, unpacked[i])
		}
	}
}

func TestResolveTrackedQuadRigidTranslation(t *testing.T) {
	// Simulate a tracker that returns the same quad shape translated by (0.01, -0.02)
	// in marker-unified space; verify the new corners (relative offsets) are unchanged
	// and the new position absorbs the translation.
	oldPos := Vec2{X: 0.4, Y: 0.4}
	oldCorners := [4]Vec2{{X: -0.05, Y: -0.05}, {X: 0.05, Y: -0.05}, {X: 0.05, Y: 0.05}, {X: -0.05, Y: 0.05}}
	translation := Vec2{X: 0.01, Y: -0.02}

	var raw Correspondence
	unifiedOf := func(v Vec2) Vec2 { return v } // identity: raw IS already marker-unified absolute
	for i, c := range oldCorners {
		raw[i] = oldPos.Add(c).Add(translation)
	}
	raw[4] = oldPos.Add(translation)

	newCorners, newPos := ResolveTrackedQuad(raw, unifiedOf)
	if !almostEqual(newPos, oldPos.Add(translation), 1e-9) {
		t.Fatalf("expected new pos %v, got %v", oldPos.Add(translation), newPos)
	}
	for i := range oldCorners {
		if !almostEqual(newCorners[i], oldCorners[i], 1e-9) {
			t.Fatalf("corner %d: expected unchanged offset %v, got %v", i, oldCorners[i], newCorners[i])
		}
	}
}
