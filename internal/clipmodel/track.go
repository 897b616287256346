// Package clipmodel implements the track/object/clip/reconstruction data
// model: tracks grouped under objects (camera object distinguished), name
// uniqueness, the track join/blend algorithm, and object lifecycle.
package clipmodel

import (
	"github.com/motioncore/tracker/internal/coordspace"
	"github.com/motioncore/tracker/internal/markerstore"
)

// Vec2 aliases coordspace.Vec2.
type Vec2 = coordspace.Vec2

// MotionModel is the per-track motion model used by the tracking kernel.
type MotionModel int

const (
	MotionTranslation MotionModel = iota
	MotionTranslationRotation
	MotionTranslationScale
	MotionAffine
	MotionPerspective
)

// MatchMode selects whether a track's reference patch is the keyframe or
// the previous frame.
type MatchMode int

const (
	MatchKeyframe MatchMode = iota
	MatchPrevFrame
)

// TrackFlags holds the per-track boolean state.
type TrackFlags uint16

const (
	TrackHidden TrackFlags = 1 << iota
	TrackLocked
	TrackSelect
	TrackPatFlag
	TrackSearchFlag
	TrackDisableRed
	TrackDisableGreen
	TrackDisableBlue
	TrackPreviewGrayscale
	TrackHasBundle
	TrackUse2DStab
)

func (f TrackFlags) Has(bit TrackFlags) bool { return f&bit != 0 }

// Track is the ordered sequence of markers for a single feature, plus its
// matching/motion settings.
type Track struct {
	Name    string
	Markers *markerstore.Store

	MotionModel      MotionModel
	MinCorrelation   float64
	MatchMode        MatchMode
	UseBrute         bool
	UseNormalization bool
	UseMask          bool
	Margin           float64 // frame-unified units, used by the tracking margin check

	// BundlePos is the optional reconstructed 3D point; HasBundle lives in Flags.
	BundlePos [3]float64
	// Error is the per-track reprojection error scalar from the last solve.
	Error float64

	// Offset is the frame-unified offset applied to all markers when
	// delivered to consumers.
	Offset Vec2

	Flags TrackFlags
}

// NewTrack returns a track with the given name and default settings but no
// markers.
func NewTrack(name string) *Track {
	return &Track{
		Name:           name,
		Markers:        markerstore.NewStore(),
		MotionModel:    MotionTranslation,
		MinCorrelation: 0.75,
		MatchMode:      MatchKeyframe,
		UseBrute:       true,
	}
}

// HasBundle reports whether this track has a reconstructed 3D point.
func (t *Track) HasBundle() bool { return t.Flags.Has(TrackHasBundle) }

// SetHasBundle sets or clears the HasBundle flag.
func (t *Track) SetHasBundle(v bool) {
	if v {
		t.Flags |= TrackHasBundle
	} else {
		t.Flags &^= TrackHasBundle
	}
}

// EnabledAt reports whether the track has a non-disabled marker at frame.
func (t *Track) EnabledAt(frame int) bool {
	m, ok := t.Markers.GetExact(frame)
	return ok && !m.Flags.Has(markerstore.FlagDisabled)
}
