package lsqsolver

import (
	"context"
	"math"
	"testing"

	"github.com/motioncore/tracker/internal/solver"
)

// TestSolveReconstructionAnchorsFirstFrame checks that the anchor frame's
// pose is always identity, which is what lets the reconstruction driver's
// origin normalization be a no-op for this
// solver.
func TestSolveReconstructionAnchorsFirstFrame(t *testing.T) {
	intr := solver.IntrinsicsOpts{Focal: 1000, PrincipalX: 500, PrincipalY: 500}

	// Three points visible in two frames; frame 2's camera is translated
	// by (1,0,0) relative to frame 1, so the points appear shifted when
	// projected from frame 2.
	points := [][3]float64{{-1, 0, 10}, {1, 0, 10}, {0, 1, 10}}
	var obs []solver.TrackObservation
	for id, p := range points {
		px, py, _ := project(p[0], p[1], p[2], intr)
		obs = append(obs, solver.TrackObservation{Frame: 1, TrackID: id, X: px, Y: py})
		px2, py2, _ := project(p[0]-1, p[1], p[2], intr)
		obs = append(obs, solver.TrackObservation{Frame: 2, TrackID: id, X: px2, Y: py2})
	}

	s := &Solver{MajorIterations: 50}
	recon, err := s.SolveReconstruction(context.Background(), obs, intr, solver.ReconstructionOpts{Keyframe1: 1, Keyframe2: 2}, nil)
	if err != nil {
		t.Fatalf("SolveReconstruction: %v", err)
	}
	if len(recon.Cameras) != 2 {
		t.Fatalf("expected 2 cameras, got %d", len(recon.Cameras))
	}
	anchorCam := recon.Cameras[0]
	if anchorCam.Frame != 1 {
		t.Fatalf("expected frame 1 to anchor, got frame %d", anchorCam.Frame)
	}
	want := identityPose()
	for i := range want {
		if math.Abs(anchorCam.Pose[i]-want[i]) > 1e-9 {
			t.Fatalf("anchor pose not identity: %+v", anchorCam.Pose)
		}
	}
	if len(recon.Points) != len(points) {
		t.Fatalf("expected %d solved points, got %d", len(points), len(recon.Points))
	}
}

func TestSolveReconstructionRejectsSingleFrame(t *testing.T) {
	intr := solver.IntrinsicsOpts{Focal: 1000}
	obs := []solver.TrackObservation{{Frame: 1, TrackID: 0, X: 500, Y: 500}}

	s := New()
	if _, err := s.SolveReconstruction(context.Background(), obs, intr, solver.ReconstructionOpts{}, nil); err == nil {
		t.Fatalf("expected an error when fewer than 2 frames are observed")
	}
}

func TestSolveReconstructionRejectsEmptyInput(t *testing.T) {
	s := New()
	if _, err := s.SolveReconstruction(context.Background(), nil, solver.IntrinsicsOpts{}, solver.ReconstructionOpts{}, nil); err == nil {
		t.Fatalf("expected an error for empty observations")
	}
}
