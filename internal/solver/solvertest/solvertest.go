// Package solvertest provides deterministic test doubles for
// solver.BundleSolver and solver.TrackerKernel, so property and scenario
// tests of the reconstruction driver and tracking engine do not depend on
// real numerical convergence.
package solvertest

import (
	"context"

	"github.com/motioncore/tracker/internal/coordspace"
	"github.com/motioncore/tracker/internal/imaging"
	"github.com/motioncore/tracker/internal/monitoring"
	"github.com/motioncore/tracker/internal/solver"
)

// CannedSolver returns a fixed solver.Reconstruction regardless of its
// input, for tests that only need to exercise the driver around a solve.
type CannedSolver struct {
	Result *solver.Reconstruction
	Err    error
}

var _ solver.BundleSolver = (*CannedSolver)(nil)

func (c *CannedSolver) SolveReconstruction(ctx context.Context, tracks []solver.TrackObservation, intr solver.IntrinsicsOpts, opts solver.ReconstructionOpts, progress solver.ProgressFunc) (*solver.Reconstruction, error) {
	monitoring.Report(progress, 1, "canned solve complete")
	return c.Result, c.Err
}

// FixedOffsetTracker always reports success, translating srcXY by a fixed
// (DX,DY) pixel offset, useful for deterministic tracking-engine tests.
type FixedOffsetTracker struct {
	DX, DY      float64
	Correlation float64
}

var _ solver.TrackerKernel = (*FixedOffsetTracker)(nil)

func (f *FixedOffsetTracker) TrackRegion(opts solver.TrackRegionOpts, srcPatch, dstPatch *imaging.Buffer, srcXY coordspace.Correspondence) (bool, coordspace.Correspondence, float64) {
	var out coordspace.Correspondence
	for i, p := range srcXY {
		out[i] = coordspace.Vec2{X: p.X + f.DX, Y: p.Y + f.DY}
	}
	corr := f.Correlation
	if corr == 0 {
		corr = 1
	}
	return true, out, corr
}

// AlwaysFailTracker always reports a failed match.
type AlwaysFailTracker struct{}

var _ solver.TrackerKernel = AlwaysFailTracker{}

func (AlwaysFailTracker) TrackRegion(opts solver.TrackRegionOpts, srcPatch, dstPatch *imaging.Buffer, srcXY coordspace.Correspondence) (bool, coordspace.Correspondence, float64) {
	return false, coordspace.Correspondence{}, 0
}
