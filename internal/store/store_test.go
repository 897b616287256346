package store

import (
	"testing"

	"github.com/motioncore/tracker/internal/clipmodel"
	"github.com/motioncore/tracker/internal/config"
	"github.com/motioncore/tracker/internal/markerstore"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.MigrateUp(); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	return db
}

func buildSampleClip() *clipmodel.Clip {
	defaults := config.EmptyClipDefaults()
	clip := clipmodel.NewClip(defaults)
	clip.StartFrame = 101
	clip.Intrinsics.Focal = 1200
	clip.Intrinsics.PrincipalX = 0.5
	clip.Intrinsics.K1 = -0.05
	clip.Stabilization.Flags = clipmodel.Stabilization2D | clipmodel.StabilizationRotation
	clip.Stabilization.LocInf = 1
	clip.Stabilization.MaxScale = 2

	camTrack := clipmodel.NewTrack("Track")
	camTrack.Flags |= clipmodel.TrackUse2DStab
	camTrack.Markers.Insert(markerstore.Marker{
		Frame:          1,
		Pos:            clipmodel.Vec2{X: 0.4, Y: 0.4},
		PatternCorners: [4]clipmodel.Vec2{{X: -0.01, Y: -0.01}, {X: 0.01, Y: -0.01}, {X: 0.01, Y: 0.01}, {X: -0.01, Y: 0.01}},
		SearchMin:      clipmodel.Vec2{X: -0.05, Y: -0.05},
		SearchMax:      clipmodel.Vec2{X: 0.05, Y: 0.05},
	})
	camTrack.Markers.Insert(markerstore.Marker{
		Frame:     2,
		Pos:       clipmodel.Vec2{X: 0.42, Y: 0.41},
		SearchMin: clipmodel.Vec2{X: -0.05, Y: -0.05},
		SearchMax: clipmodel.Vec2{X: 0.05, Y: 0.05},
	})
	camTrack.SetHasBundle(true)
	camTrack.BundlePos = [3]float64{1, 2, 3}
	clip.Tracks = append(clip.Tracks, camTrack)
	clip.Stabilization.RotTrack = camTrack

	clip.Recon.SetCameras([]clipmodel.Camera{
		{Frame: 1, Pose: clipmodel.IdentityPose(), Error: 0.1},
		{Frame: 2, Pose: clipmodel.IdentityPose(), Error: 0.2},
	})

	obj := clip.AddObject("Plane")
	objTrack := clipmodel.NewTrack("PlaneTrack")
	objTrack.Markers.Insert(markerstore.Marker{Frame: 1, Pos: clipmodel.Vec2{X: 0.1, Y: 0.1}})
	obj.SetTracks([]*clipmodel.Track{objTrack})

	return clip
}

func TestSaveLoadClip_RoundTrips(t *testing.T) {
	db := openTestDB(t)
	clip := buildSampleClip()

	if err := db.SaveClip(1, "shot_010", clip, 1920, 1080); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := db.LoadClip(1, config.EmptyClipDefaults())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.StartFrame != 101 {
		t.Fatalf("expected start frame 101, got %d", loaded.StartFrame)
	}
	if loaded.Intrinsics.Focal != 1200 || loaded.Intrinsics.PrincipalX != 0.5 || loaded.Intrinsics.K1 != -0.05 {
		t.Fatalf("intrinsics mismatch: %+v", loaded.Intrinsics)
	}
	if !loaded.Stabilization.Flags.Has(clipmodel.Stabilization2D) || !loaded.Stabilization.Flags.Has(clipmodel.StabilizationRotation) {
		t.Fatalf("stabilization flags mismatch: %v", loaded.Stabilization.Flags)
	}
	if loaded.Stabilization.MaxScale != 2 {
		t.Fatalf("expected max scale 2, got %v", loaded.Stabilization.MaxScale)
	}

	if len(loaded.Tracks) != 1 {
		t.Fatalf("expected 1 camera-level track, got %d", len(loaded.Tracks))
	}
	lt := loaded.Tracks[0]
	if lt.Name != "Track" || !lt.Flags.Has(clipmodel.TrackUse2DStab) || !lt.HasBundle() {
		t.Fatalf("track round-trip mismatch: %+v", lt)
	}
	if lt.BundlePos != [3]float64{1, 2, 3} {
		t.Fatalf("expected bundle pos round-trip, got %v", lt.BundlePos)
	}
	if loaded.Stabilization.RotTrack == nil || loaded.Stabilization.RotTrack.Name != "Track" {
		t.Fatalf("expected rotation track to resolve back to %q, got %+v", "Track", loaded.Stabilization.RotTrack)
	}

	markers := lt.Markers.All()
	if len(markers) != 2 {
		t.Fatalf("expected 2 markers, got %d", len(markers))
	}
	m1 := markers[0]
	if m1.Frame != 1 || m1.Pos.X != 0.4 || m1.Pos.Y != 0.4 {
		t.Fatalf("marker 1 mismatch: %+v", m1)
	}
	if m1.PatternCorners[1].X != 0.01 {
		t.Fatalf("pattern corner round-trip mismatch: %+v", m1.PatternCorners)
	}

	if !loaded.Recon.IsReconstructed() {
		t.Fatal("expected camera reconstruction to round-trip as OK")
	}
	if len(loaded.Recon.Cameras) != 2 || loaded.Recon.Cameras[1].Error != 0.2 {
		t.Fatalf("camera round-trip mismatch: %+v", loaded.Recon.Cameras)
	}

	if len(loaded.Objects) != 2 {
		t.Fatalf("expected 2 objects (camera + Plane), got %d", len(loaded.Objects))
	}
	plane := loaded.Objects[1]
	if plane.Name != "Plane" || plane.IsCamera() {
		t.Fatalf("expected non-camera Plane object, got %+v", plane)
	}
	if len(plane.Tracks()) != 1 || plane.Tracks()[0].Name != "PlaneTrack" {
		t.Fatalf("expected Plane's own track to round-trip, got %+v", plane.Tracks())
	}
}

func TestSaveClip_ReplacesPriorContents(t *testing.T) {
	db := openTestDB(t)
	clip := buildSampleClip()

	if err := db.SaveClip(1, "v1", clip, 1920, 1080); err != nil {
		t.Fatalf("save v1: %v", err)
	}

	clip2 := clipmodel.NewClip(config.EmptyClipDefaults())
	if err := db.SaveClip(1, "v2", clip2, 1280, 720); err != nil {
		t.Fatalf("save v2: %v", err)
	}

	loaded, err := db.LoadClip(1, config.EmptyClipDefaults())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Objects) != 1 {
		t.Fatalf("expected the overwrite to drop the Plane object, got %d objects", len(loaded.Objects))
	}
	if len(loaded.Tracks) != 0 {
		t.Fatalf("expected the overwrite to drop the camera track, got %d", len(loaded.Tracks))
	}
}
