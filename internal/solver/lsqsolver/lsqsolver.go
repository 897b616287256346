// Package lsqsolver is a reference implementation of solver.BundleSolver:
// a translation-only camera model (rotation fixed to identity) jointly
// refined against triangulated 3D points via gonum/optimize BFGS, with the
// first keyframe's camera pinned at the origin so the solve's gauge
// freedom is resolved consistently with the reconstruction driver's origin
// normalization.
//
// This is not a general structure-from-motion solver; it demonstrates the
// solver.BundleSolver contract with real numerics rather than replacing a
// production bundle adjuster.
package lsqsolver

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"

	"github.com/motioncore/tracker/internal/monitoring"
	"github.com/motioncore/tracker/internal/solver"
)

// Solver is a translation-only reference bundle adjuster.
type Solver struct {
	MajorIterations int
}

var _ solver.BundleSolver = (*Solver)(nil)

// New returns a Solver with a sane default iteration limit.
func New() *Solver {
	return &Solver{MajorIterations: 200}
}

type track struct {
	id   int
	obs  map[int][2]float64 // frame -> pixel (x,y)
}

func (s *Solver) SolveReconstruction(ctx context.Context, observations []solver.TrackObservation, intr solver.IntrinsicsOpts, opts solver.ReconstructionOpts, progress solver.ProgressFunc) (*solver.Reconstruction, error) {
	if len(observations) == 0 {
		return nil, fmt.Errorf("lsqsolver: no track observations")
	}

	frames, tracks := group(observations)
	if len(frames) < 2 {
		return nil, fmt.Errorf("lsqsolver: need at least 2 frames, got %d", len(frames))
	}

	anchor := frames[0]
	if opts.Keyframe1 != 0 {
		for _, f := range frames {
			if f == opts.Keyframe1 {
				anchor = f
				break
			}
		}
	}

	frameIndex := make(map[int]int, len(frames))
	movableFrames := make([]int, 0, len(frames)-1)
	for _, f := range frames {
		if f == anchor {
			continue
		}
		frameIndex[f] = len(movableFrames)
		movableFrames = append(movableFrames, f)
	}

	nCams := len(movableFrames)
	nPoints := len(tracks)
	x0 := make([]float64, nCams*3+nPoints*3)

	for i, tr := range tracks {
		X, Y, Z := initialPoint(tr, intr)
		base := nCams*3 + i*3
		x0[base+0], x0[base+1], x0[base+2] = X, Y, Z
	}

	residual := func(x []float64) float64 {
		var sum float64
		for i, tr := range tracks {
			base := nCams*3 + i*3
			X, Y, Z := x[base], x[base+1], x[base+2]
			for f, obs := range tr.obs {
				var tx, ty, tz float64
				if f != anchor {
					ci := frameIndex[f] * 3
					tx, ty, tz = x[ci], x[ci+1], x[ci+2]
				}
				px, py, ok := project(X-tx, Y-ty, Z-tz, intr)
				if !ok {
					sum += 1e6
					continue
				}
				dx := px - obs[0]
				dy := py - obs[1]
				sum += dx*dx + dy*dy
			}
		}
		return sum
	}

	monitoring.Report(progress, 0, "starting bundle adjustment")

	// BFGS needs a gradient; the residual's is taken by finite differences.
	problem := optimize.Problem{
		Func: residual,
		Grad: func(grad, x []float64) { fd.Gradient(grad, residual, x, nil) },
	}
	iterations := s.MajorIterations
	if iterations <= 0 {
		iterations = 200
	}
	result, err := optimize.Minimize(problem, x0, &optimize.Settings{MajorIterations: iterations}, &optimize.BFGS{})
	if err != nil && result == nil {
		return nil, fmt.Errorf("lsqsolver: optimize: %w", err)
	}
	xStar := x0
	if result != nil {
		xStar = result.X
	}

	monitoring.Report(progress, 1, "bundle adjustment complete")

	out := &solver.Reconstruction{Intrinsics: intr}
	out.Cameras = append(out.Cameras, solver.SolvedCamera{Frame: anchor, Pose: identityPose()})
	for _, f := range movableFrames {
		ci := frameIndex[f] * 3
		tx, ty, tz := xStar[ci], xStar[ci+1], xStar[ci+2]
		out.Cameras = append(out.Cameras, solver.SolvedCamera{Frame: f, Pose: translationPose(tx, ty, tz)})
	}
	sort.Slice(out.Cameras, func(i, j int) bool { return out.Cameras[i].Frame < out.Cameras[j].Frame })

	var totalErr float64
	for i, tr := range tracks {
		base := nCams*3 + i*3
		X, Y, Z := xStar[base], xStar[base+1], xStar[base+2]
		perTrackErr := trackReprojectionError(tr, X, Y, Z, anchor, frameIndex, xStar, nCams, intr)
		out.Points = append(out.Points, solver.SolvedPoint{TrackID: tr.id, XYZ: [3]float64{X, Y, Z}, Error: perTrackErr})
		totalErr += perTrackErr
	}
	if len(tracks) > 0 {
		out.OverallError = totalErr / float64(len(tracks))
	}

	return out, nil
}

func group(observations []solver.TrackObservation) ([]int, []*track) {
	frameSet := make(map[int]bool)
	byID := make(map[int]*track)
	var order []int
	for _, o := range observations {
		if !frameSet[o.Frame] {
			frameSet[o.Frame] = true
		}
		t, ok := byID[o.TrackID]
		if !ok {
			t = &track{id: o.TrackID, obs: make(map[int][2]float64)}
			byID[o.TrackID] = t
			order = append(order, o.TrackID)
		}
		t.obs[o.Frame] = [2]float64{o.X, o.Y}
	}
	frames := make([]int, 0, len(frameSet))
	for f := range frameSet {
		frames = append(frames, f)
	}
	sort.Ints(frames)
	sort.Ints(order)
	tracks := make([]*track, 0, len(order))
	for _, id := range order {
		tracks = append(tracks, byID[id])
	}
	return frames, tracks
}

// initialPoint back-projects the track's first observation to an arbitrary
// fixed depth, giving the optimizer a reasonable non-degenerate start.
func initialPoint(tr *track, intr solver.IntrinsicsOpts) (float64, float64, float64) {
	const assumedDepth = 10.0
	for _, obs := range tr.obs {
		f := intr.Focal
		if f == 0 {
			f = 1
		}
		X := (obs[0] - intr.PrincipalX) / f * assumedDepth
		Y := (obs[1] - intr.PrincipalY) / f * assumedDepth
		return X, Y, assumedDepth
	}
	return 0, 0, assumedDepth
}

func project(X, Y, Z float64, intr solver.IntrinsicsOpts) (float64, float64, bool) {
	if Z <= 1e-6 {
		return 0, 0, false
	}
	f := intr.Focal
	if f == 0 {
		f = 1
	}
	return f*X/Z + intr.PrincipalX, f*Y/Z + intr.PrincipalY, true
}

func identityPose() [16]float64 {
	return [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
}

func translationPose(tx, ty, tz float64) [16]float64 {
	return [16]float64{1, 0, 0, tx, 0, 1, 0, ty, 0, 0, 1, tz, 0, 0, 0, 1}
}

func trackReprojectionError(tr *track, X, Y, Z float64, anchor int, frameIndex map[int]int, x []float64, nCams int, intr solver.IntrinsicsOpts) float64 {
	var sum float64
	var n int
	for f, obs := range tr.obs {
		var tx, ty, tz float64
		if f != anchor {
			ci := frameIndex[f] * 3
			tx, ty, tz = x[ci], x[ci+1], x[ci+2]
		}
		px, py, ok := project(X-tx, Y-ty, Z-tz, intr)
		if !ok {
			continue
		}
		dx := px - obs[0]
		dy := py - obs[1]
		sum += dx*dx + dy*dy
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
