// Command clipsolve loads a persisted clip from SQLite, optionally runs a
// forward tracking pass over a directory of frame images, runs camera
// reconstruction against its active object's tracks using the reference
// lsqsolver.Solver, optionally warps those same frames through the clip's
// 2D stabilization, and saves the solved clip back. It is a thin CLI
// wrapper around internal/tracking, internal/reconstruct, internal/
// stabilize, internal/store, and internal/solver.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/motioncore/tracker/internal/clipmodel"
	"github.com/motioncore/tracker/internal/config"
	"github.com/motioncore/tracker/internal/monitoring"
	"github.com/motioncore/tracker/internal/reconstruct"
	"github.com/motioncore/tracker/internal/solver"
	"github.com/motioncore/tracker/internal/solver/lsqsolver"
	"github.com/motioncore/tracker/internal/solver/ncctracker"
	"github.com/motioncore/tracker/internal/store"
	"github.com/motioncore/tracker/internal/tracking"
)

func main() {
	dbPath := flag.String("db", "", "path to the clip's SQLite database")
	clipID := flag.Int64("clip", 1, "clip row id to solve")
	framesDir := flag.String("frames", "", "optional directory of frame images to track before solving")
	width := flag.Int("width", 1920, "frame width in pixels (ignored when -frames is given)")
	height := flag.Int("height", 1080, "frame height in pixels (ignored when -frames is given)")
	iterations := flag.Int("iterations", 200, "bundle-adjustment major iterations")
	stabilizeOut := flag.String("stabilize-out", "", "directory to write 2D-stabilized PNG frames to (requires -frames)")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "clipsolve: -db is required")
		os.Exit(2)
	}
	if *stabilizeOut != "" && *framesDir == "" {
		fmt.Fprintln(os.Stderr, "clipsolve: -stabilize-out requires -frames")
		os.Exit(2)
	}

	if err := run(*dbPath, *clipID, *framesDir, *stabilizeOut, *width, *height, *iterations); err != nil {
		monitoring.Logf("clipsolve: %v", err)
		os.Exit(1)
	}
}

func run(dbPath string, clipID int64, framesDir, stabilizeOut string, w, h, iterations int) error {
	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	if err := db.MigrateUp(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	defaults := config.MustLoadDefaultClipDefaults()
	clip, err := db.LoadClip(clipID, defaults)
	if err != nil {
		return fmt.Errorf("load clip %d: %w", clipID, err)
	}

	obj := clip.ActiveObject()
	tracks := clip.ActiveTracks()
	isCamera := obj.IsCamera()

	var source *dirFrameSource
	if framesDir != "" {
		source, err = newDirFrameSource(framesDir)
		if err != nil {
			return fmt.Errorf("frame source: %w", err)
		}
		w, h = source.GetSize()
		tracks = trackAllForward(clip, obj, tracks, source)
	}

	if err := reconstruct.EarlyCheck(tracks, obj.Keyframe1, obj.Keyframe2, defaults.GetKeyframeAutoSelect()); err != nil {
		return fmt.Errorf("early check: %w", err)
	}

	bs := lsqsolver.New()
	bs.MajorIterations = iterations

	opts := solver.ReconstructionOpts{Keyframe1: obj.Keyframe1, Keyframe2: obj.Keyframe2}
	result, trackIndex, err := reconstruct.Solve(context.Background(), bs, tracks, clip.Intrinsics, w, h, opts,
		func(fraction float64, message string) { monitoring.Logf("clipsolve: %.0f%% %s", fraction*100, message) })
	if err != nil {
		return fmt.Errorf("solve: %w", err)
	}

	target := obj.Reconstruction()
	if isCamera {
		target = clip.Recon
	}
	if target == nil {
		target = &clipmodel.Reconstruction{}
	}

	if ok := reconstruct.Finish(result, target, tracks, trackIndex, clip.Intrinsics, isCamera, obj.Scale); !ok {
		return fmt.Errorf("reconstruction did not converge; prior reconstruction left intact")
	}

	if !isCamera {
		obj.SetReconstruction(target)
	}

	if stabilizeOut != "" {
		if err := runStabilization(clip, tracks, source, clip.Intrinsics.PixelAspect, stabilizeOut); err != nil {
			return fmt.Errorf("stabilize: %w", err)
		}
	}

	if err := db.SaveClip(clipID, obj.Name, clip, w, h); err != nil {
		return fmt.Errorf("save clip %d: %w", clipID, err)
	}

	monitoring.Logf("clipsolve: solved clip %d, overall error %.4f, %d cameras, %d bundled tracks",
		clipID, target.Error, len(target.Cameras), countBundled(tracks))
	return nil
}

// trackAllForward runs a forward tracking pass over every eligible track
// starting at frame 1, then merges the result back into clip via
// ContextSync. It is an offline CLI stand-in for the
// interactive "track selected markers forward" operation; there being no
// concurrent live-data editor to race against, the merge happens once after
// the whole pass instead of after each step.
func trackAllForward(clip *clipmodel.Clip, obj *clipmodel.Object, tracks []*clipmodel.Track, source *dirFrameSource) []*clipmodel.Track {
	for _, t := range tracks {
		if !t.Flags.Has(clipmodel.TrackHidden) && !t.Flags.Has(clipmodel.TrackLocked) {
			t.Flags |= clipmodel.TrackSelect
		}
	}

	engine := tracking.NewEngine(obj.Name, obj.IsCamera(), tracks, 1, ncctracker.Kernel{}, source, false)
	steps := 0
	for engine.Step() {
		steps++
	}

	merged, _, _ := engine.ContextSync(tracks)
	engine.Close()

	if obj.IsCamera() {
		clip.Tracks = merged
	} else {
		obj.SetTracks(merged)
	}

	monitoring.Logf("clipsolve: tracked %d frames forward over %d tracks", steps, len(tracks))
	return merged
}

func countBundled(tracks []*clipmodel.Track) int {
	n := 0
	for _, t := range tracks {
		if t.HasBundle() {
			n++
		}
	}
	return n
}
