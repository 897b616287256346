// Package solver declares the engine's external, pluggable numerical black
// boxes: a bundle-adjustment solver, a per-frame template-match
// tracker kernel, and a fast feature detector. The core depends only on
// these interfaces; ncctracker and lsqsolver below are one concrete,
// working implementation, and solvertest provides a canned test double so
// callers can exercise the surrounding pipeline without real numerics.
package solver

import (
	"context"

	"github.com/motioncore/tracker/internal/coordspace"
	"github.com/motioncore/tracker/internal/imaging"
	"github.com/motioncore/tracker/internal/monitoring"
)

type Vec2 = coordspace.Vec2

// TrackObservation is one 2D observation of a track at a frame, the unit
// exchanged with tracks_insert.
type TrackObservation struct {
	Frame   int
	TrackID int
	X, Y    float64 // pixel coordinates
}

// IntrinsicsOpts carries the camera model handed to the bundle solver.
type IntrinsicsOpts struct {
	Focal         float64
	PrincipalX    float64
	PrincipalY    float64
	K1, K2, K3    float64
	SensorWidthMM float64
	PixelAspect   float64
	ImageWidth    int
	ImageHeight   int
}

// ReconstructionOpts controls the bundle adjustment run: which frames
// define the reconstruction's origin (the Keyframe1/Keyframe2 pair) and
// whether rotation-only (modal) solving is requested.
type ReconstructionOpts struct {
	Keyframe1, Keyframe2 int
	Modal                bool
}

// ProgressFunc reports solver progress; fraction is in [0,1]. It aliases
// the monitoring package's progress type so implementations can invoke a
// possibly-nil callback through monitoring.Report.
type ProgressFunc = monitoring.ProgressFunc

// SolvedCamera is one frame's solved pose plus its reprojection error.
type SolvedCamera struct {
	Frame int
	Pose  [16]float64
	Error float64
}

// SolvedPoint is one track's triangulated 3D position plus its error.
type SolvedPoint struct {
	TrackID int
	XYZ     [3]float64
	Error   float64
}

// Reconstruction is the black box's raw solve result, kept distinct from clipmodel's
// persisted Reconstruction: this is the solver's raw output, before the
// driver normalizes its origin and merges it into the clip.
type Reconstruction struct {
	Cameras      []SolvedCamera
	Points       []SolvedPoint
	Intrinsics   IntrinsicsOpts
	OverallError float64
}

// BundleSolver is the pluggable bundle-adjustment black box.
type BundleSolver interface {
	SolveReconstruction(ctx context.Context, tracks []TrackObservation, intr IntrinsicsOpts, opts ReconstructionOpts, progress ProgressFunc) (*Reconstruction, error)
}

// TrackRegionOpts configures a single template-match invocation.
type TrackRegionOpts struct {
	MotionModel      int
	UseBrute         bool
	UseNormalization bool
	MinCorrelation   float64
}

// TrackerKernel is the pluggable per-frame template-matcher black box.
type TrackerKernel interface {
	// TrackRegion attempts to match srcPatch (the reference patch) within
	// dstPatch (the destination search region), using srcXY as the five-point
	// correspondence (four pattern corners + center) in srcPatch's pixel
	// space. On success it returns ok=true and the five-point correspondence
	// in dstPatch's pixel space.
	TrackRegion(opts TrackRegionOpts, srcPatch, dstPatch *imaging.Buffer, srcXY coordspace.Correspondence) (ok bool, dstXY coordspace.Correspondence, correlation float64)
}

// Feature is one detected interest point.
type Feature struct {
	X, Y, Score, Size float64
}

// FeatureDetector is the pluggable fast-feature-detection black box.
type FeatureDetector interface {
	DetectFeatures(frame *imaging.Buffer, margin int, minTrackness, minDistance float64) []Feature
}
