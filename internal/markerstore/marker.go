// Package markerstore implements the per-track sorted marker array:
// nearest-frame lookup with a cursor hint, insert/delete/ensure, pattern
// bounding box, subframe interpolation, path clearing, and the
// search⊇pattern clamp invariant.
package markerstore

import (
	"fmt"

	"github.com/motioncore/tracker/internal/coordspace"
)

// Flags is the subset of {DISABLED, TRACKED} a marker may carry.
type Flags uint8

const (
	// FlagDisabled marks a marker as not contributing to tracking/reconstruction.
	FlagDisabled Flags = 1 << iota
	// FlagTracked marks a marker as produced by the tracker (vs. user-placed/keyframed).
	FlagTracked
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Vec2 aliases coordspace.Vec2 for convenience within this package's API.
type Vec2 = coordspace.Vec2

// Marker is a time-sampled observation of a feature.
type Marker struct {
	Frame int

	// Pos is in frame-unified coordinates (0..1 over the frame).
	Pos coordspace.Vec2

	// PatternCorners are four offsets from Pos, in frame-unified units,
	// defining a (possibly non-axis-aligned) quad.
	PatternCorners [4]coordspace.Vec2

	// SearchMin, SearchMax are offsets from Pos, in frame-unified units,
	// defining the axis-aligned search window.
	SearchMin, SearchMax coordspace.Vec2

	Flags Flags
}

// Clone returns a deep copy (PatternCorners is a fixed-size array, copied by value).
func (m Marker) Clone() Marker { return m }

// PatternBBox returns the componentwise min/max over the four pattern corners.
func (m Marker) PatternBBox() (min, max coordspace.Vec2) {
	min, max = m.PatternCorners[0], m.PatternCorners[0]
	for _, c := range m.PatternCorners[1:] {
		if c.X < min.X {
			min.X = c.X
		}
		if c.Y < min.Y {
			min.Y = c.Y
		}
		if c.X > max.X {
			max.X = c.X
		}
		if c.Y > max.Y {
			max.Y = c.Y
		}
	}
	return min, max
}

// ClearAction selects the behavior of Store.ClearPath.
type ClearAction int

const (
	// ClearRemained truncates markers after ref (keeps ref and earlier).
	ClearRemained ClearAction = iota
	// ClearUpto truncates markers before ref (keeps the last marker at or
	// before ref, and everything later).
	ClearUpto
	// ClearAll collapses the track to a single marker at ref.
	ClearAll
)

// ErrEmpty is returned by operations that require at least one marker.
var ErrEmpty = fmt.Errorf("markerstore: track has no markers")
