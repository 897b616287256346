package ncctracker

import (
	"testing"

	"github.com/motioncore/tracker/internal/coordspace"
	"github.com/motioncore/tracker/internal/imaging"
	"github.com/motioncore/tracker/internal/solver"
)

// patch returns a single-channel buffer with a bright 2x2 block whose
// top-left corner sits at (ox,oy).
func patch(w, h, ox, oy int) *imaging.Buffer {
	b := imaging.NewBuffer(w, h, 1)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			b.Set(ox+x, oy+y, 0, 1)
		}
	}
	return b
}

func TestTrackRegionBruteForceLocatesShift(t *testing.T) {
	src := patch(4, 4, 1, 1)
	dst := patch(8, 8, 4, 3) // the same block shifted by (+3,+2)

	var kernel solver.TrackerKernel = Kernel{}
	srcXY := coordspace.Correspondence{{X: 0, Y: 0}, {X: 3, Y: 0}, {X: 3, Y: 3}, {X: 0, Y: 3}, {X: 1.5, Y: 1.5}}

	ok, dstXY, corr := kernel.TrackRegion(solver.TrackRegionOpts{UseBrute: true, MinCorrelation: 0.5}, src, dst, srcXY)
	if !ok {
		t.Fatalf("expected a successful match, correlation=%v", corr)
	}
	wantDX, wantDY := 3.0, 2.0
	for i, p := range srcXY {
		gotDX := dstXY[i].X - p.X
		gotDY := dstXY[i].Y - p.Y
		if gotDX != wantDX || gotDY != wantDY {
			t.Fatalf("corner %d: got shift (%v,%v), want (%v,%v)", i, gotDX, gotDY, wantDX, wantDY)
		}
	}
}

func TestTrackRegionFailsBelowMinCorrelation(t *testing.T) {
	src := patch(4, 4, 1, 1)
	dst := imaging.NewBuffer(8, 8, 1) // flat, uncorrelated with src

	var kernel solver.TrackerKernel = Kernel{}
	srcXY := coordspace.Correspondence{}

	ok, _, _ := kernel.TrackRegion(solver.TrackRegionOpts{UseBrute: true, MinCorrelation: 0.99, UseNormalization: true}, src, dst, srcXY)
	if ok {
		t.Fatalf("expected match to fail against an uncorrelated destination")
	}
}

func TestTrackRegionRejectsOversizedSource(t *testing.T) {
	src := imaging.NewBuffer(10, 10, 1)
	dst := imaging.NewBuffer(4, 4, 1)

	var kernel solver.TrackerKernel = Kernel{}
	ok, _, _ := kernel.TrackRegion(solver.TrackRegionOpts{UseBrute: true}, src, dst, coordspace.Correspondence{})
	if ok {
		t.Fatalf("source patch larger than destination must fail, not panic")
	}
}
