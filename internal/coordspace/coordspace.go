// Package coordspace implements the coordinate algebra underneath the
// tracker: conversions among frame-pixel, frame-unified, search-pixel, and
// marker-unified coordinate spaces.
//
// Three frames (Frame, Search, Marker) and two units (Pixel, Unified) are
// modeled as free functions over a Size and plain Vec2 values rather than a
// family of distinct wrapper types. The coordinate space a value lives in
// is a property of which function produced it, not of its Go type.
package coordspace

import "math"

// Vec2 is a 2D point or offset. Which coordinate space and unit it is
// expressed in is determined by context (see package doc).
type Vec2 struct {
	X, Y float64
}

// Add returns a + b.
func (a Vec2) Add(b Vec2) Vec2 { return Vec2{a.X + b.X, a.Y + b.Y} }

// Sub returns a - b.
func (a Vec2) Sub(b Vec2) Vec2 { return Vec2{a.X - b.X, a.Y - b.Y} }

// Scale returns a scaled componentwise by s.
func (a Vec2) Scale(s float64) Vec2 { return Vec2{a.X * s, a.Y * s} }

// Mul returns a scaled componentwise by b.
func (a Vec2) Mul(b Vec2) Vec2 { return Vec2{a.X * b.X, a.Y * b.Y} }

// Size is the pixel dimensions of a frame or search image.
type Size struct {
	W, H int
}

// Vec2 returns the size as a Vec2 of (W, H).
func (s Size) Vec2() Vec2 { return Vec2{float64(s.W), float64(s.H)} }

// UnifiedToPixel converts a frame-unified point (0..1 over the frame) to
// frame-pixel coordinates: u.(W,H).
func UnifiedToPixel(u Vec2, size Size) Vec2 {
	return u.Mul(size.Vec2())
}

// PixelToUnified is the inverse of UnifiedToPixel.
func PixelToUnified(p Vec2, size Size) Vec2 {
	return Vec2{p.X / float64(size.W), p.Y / float64(size.H)}
}

// MarkerToFrameUnified computes marker→frame_unified(m, v) = m.pos + v for an
// offset v (e.g. a pattern corner or search bound) expressed relative to the
// marker position markerPos.
func MarkerToFrameUnified(markerPos, v Vec2) Vec2 {
	return markerPos.Add(v)
}

// SearchOriginPixel computes the integer-snapped frame-pixel origin of a
// marker's search region:
//
//	floor(unified→pixel(marker→frame_unified(m, m.search_min)))
func SearchOriginPixel(markerPos, searchMin Vec2, size Size) [2]int {
	p := UnifiedToPixel(MarkerToFrameUnified(markerPos, searchMin), size)
	return [2]int{int(math.Floor(p.X)), int(math.Floor(p.Y))}
}

// MarkerUnifiedToSearchPixel translates a marker-unified offset v into
// search-pixel coordinates: to frame-unified, to frame-pixel, minus the
// integer-snapped search origin.
func MarkerUnifiedToSearchPixel(markerPos, searchMin, v Vec2, size Size) Vec2 {
	framePixel := UnifiedToPixel(MarkerToFrameUnified(markerPos, v), size)
	origin := SearchOriginPixel(markerPos, searchMin, size)
	return Vec2{framePixel.X - float64(origin[0]), framePixel.Y - float64(origin[1])}
}

// SearchPixelToMarkerUnified is the exact inverse of MarkerUnifiedToSearchPixel
// for the same (markerPos, searchMin, size): it recovers the marker-unified
// offset v from a search-pixel coordinate. Round-trip property:
// SearchPixelToMarkerUnified(markerPos, searchMin, MarkerUnifiedToSearchPixel(markerPos, searchMin, v, size), size) == v.
func SearchPixelToMarkerUnified(markerPos, searchMin Vec2, searchPixel Vec2, size Size) Vec2 {
	origin := SearchOriginPixel(markerPos, searchMin, size)
	framePixel := Vec2{searchPixel.X + float64(origin[0]), searchPixel.Y + float64(origin[1])}
	frameUnified := PixelToUnified(framePixel, size)
	return frameUnified.Sub(markerPos)
}

// Correspondence is the five (x,y) pixel pairs (four pattern corners plus
// center) exchanged with the external tracker kernel as its src_xy/dst_xy
// arrays.
type Correspondence [5]Vec2

// PackCorrespondence builds the five-point pixel correspondence for a
// marker's pattern corners and position, applying the kernel's -0.5 pixel
// shift convention (pixel-center vs. pixel-corner) on pack. pixelOf converts
// a marker-unified offset (corner or zero for center) to the pixel space the
// kernel operates in (frame-pixel for a full-frame kernel, search-pixel for
// a cropped search patch).
func PackCorrespondence(corners [4]Vec2, pixelOf func(Vec2) Vec2) Correspondence {
	var c Correspondence
	for i, corner := range corners {
		p := pixelOf(corner)
		c[i] = Vec2{p.X - 0.5, p.Y - 0.5}
	}
	center := pixelOf(Vec2{})
	c[4] = Vec2{center.X - 0.5, center.Y - 0.5}
	return c
}

// UnpackCorrespondence reverses the -0.5 pixel shift applied by
// PackCorrespondence, returning raw pixel coordinates.
func UnpackCorrespondence(c Correspondence) Correspondence {
	var out Correspondence
	for i, p := range c {
		out[i] = Vec2{p.X + 0.5, p.Y + 0.5}
	}
	return out
}

// ResolveTrackedQuad converts an unpacked (post -0.5-reversal) five-point
// correspondence back into marker-unified pattern-corner offsets and a
// marker position, via unifiedOf which maps a raw kernel-space pixel to an
// absolute marker-unified point.
//
// The new marker position is simply the resolved center; the new corner
// offsets are each resolved corner minus that center. Deriving the offsets
// from the *new* center, rather than reusing the old offsets, is what
// applies a nonzero center residual as a rigid translation to all four
// corners and the marker position: any residual between the kernel's returned center
// and the geometric centroid of its returned corners is absorbed once, here,
// and the whole quad (corners + center) moves together.
func ResolveTrackedQuad(raw Correspondence, unifiedOf func(Vec2) Vec2) (corners [4]Vec2, pos Vec2) {
	pos = unifiedOf(raw[4])
	for i := 0; i < 4; i++ {
		corners[i] = unifiedOf(raw[i]).Sub(pos)
	}
	return corners, pos
}
