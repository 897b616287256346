package clipmodel

import (
	"testing"

	"github.com/motioncore/tracker/internal/config"
)

func newTestClip() *Clip {
	return NewClip(config.MustLoadDefaultClipDefaults())
}

func TestNewClipHasCameraFirst(t *testing.T) {
	c := newTestClip()
	if len(c.Objects) != 1 || !c.Objects[0].IsCamera() {
		t.Fatalf("expected a single camera object, got %+v", c.Objects)
	}
}

// Deleting the camera object must fail and leave state unchanged.
func TestDeleteObject_CameraProtected(t *testing.T) {
	c := newTestClip()
	before := len(c.Objects)
	if err := c.DeleteObject(c.Objects[0]); err != ErrCameraProtected {
		t.Fatalf("expected ErrCameraProtected, got %v", err)
	}
	if len(c.Objects) != before {
		t.Fatalf("object list mutated despite protection: %d != %d", len(c.Objects), before)
	}
}

func TestDeleteObject_NonCamera(t *testing.T) {
	c := newTestClip()
	o := c.AddObject("Cube")
	if err := c.DeleteObject(o); err != nil {
		t.Fatalf("unexpected error deleting non-camera object: %v", err)
	}
	if len(c.Objects) != 1 {
		t.Fatalf("expected object removed, got %d objects", len(c.Objects))
	}
}

// Track names must stay pairwise distinct after AddTrack.
func TestAddTrack_NameDedup(t *testing.T) {
	c := newTestClip()
	t1 := c.AddTrack(10, 10, 1, 100, 100)
	t2 := c.AddTrack(20, 20, 1, 100, 100)
	t3 := c.AddTrack(30, 30, 1, 100, 100)

	if t1.Name != "Track" {
		t.Fatalf("expected first track named Track, got %q", t1.Name)
	}
	if t2.Name == t1.Name || t3.Name == t1.Name || t3.Name == t2.Name {
		t.Fatalf("expected pairwise distinct names, got %q %q %q", t1.Name, t2.Name, t3.Name)
	}
}

func TestAddTrack_PatternAndSearchSizing(t *testing.T) {
	c := newTestClip()
	tr := c.AddTrack(50, 50, 1, 100, 100)
	m, ok := tr.Markers.GetExact(1)
	if !ok {
		t.Fatal("expected marker at frame 1")
	}
	patMin, patMax := m.PatternBBox()
	wantHalf := float64(c.Defaults.GetDefaultPatternSize()) / 2 / 100
	if diff := patMax.X - wantHalf; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("pattern half-width = %v, want %v", patMax.X, wantHalf)
	}
	if patMin.X != -patMax.X {
		t.Fatalf("expected symmetric pattern bbox, got min=%v max=%v", patMin, patMax)
	}
}

func TestActiveTracks_SwitchesWithActiveObject(t *testing.T) {
	c := newTestClip()
	c.AddTrack(1, 1, 1, 100, 100)
	o := c.AddObject("Cube")
	if err := c.SetActiveObject(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.ActiveTracks()) != 0 {
		t.Fatalf("expected new object's track list to start empty, got %d", len(c.ActiveTracks()))
	}
	c.AddTrack(2, 2, 1, 100, 100)
	if len(o.tracks) != 1 {
		t.Fatalf("expected track added to active (non-camera) object, got %d", len(o.tracks))
	}
	if len(c.Tracks) != 1 {
		t.Fatalf("expected camera's top-level tracks untouched, got %d", len(c.Tracks))
	}
}

func TestGetIndexed_OnlyBundledTracks(t *testing.T) {
	c := newTestClip()
	tr := c.AddTrack(1, 1, 1, 100, 100)
	c.AddTrack(2, 2, 1, 100, 100)
	tr.SetHasBundle(true)

	got, ok := c.GetIndexed(0)
	if !ok || got != tr {
		t.Fatalf("expected indexed bundled track %v, got %v ok=%v", tr, got, ok)
	}
	if _, ok := c.GetIndexed(1); ok {
		t.Fatal("expected only one bundled track")
	}
}

func TestGetActive_RejectsForeignTrack(t *testing.T) {
	c := newTestClip()
	c.AddTrack(1, 1, 1, 100, 100)
	foreign := NewTrack("Foreign")
	if _, err := c.GetActive(foreign); err != ErrNoActiveSelection {
		t.Fatalf("expected ErrNoActiveSelection, got %v", err)
	}
}

func TestSceneClipFrameMappingIsMonotoneBijection(t *testing.T) {
	c := newTestClip()
	c.StartFrame = 101
	if got := c.SceneToClip(101); got != 1 {
		t.Fatalf("expected scene 101 -> clip 1, got %d", got)
	}
	for scene := 95; scene <= 110; scene++ {
		if back := c.ClipToScene(c.SceneToClip(scene)); back != scene {
			t.Fatalf("scene<->clip round trip broken at %d: got %d", scene, back)
		}
	}
	if c.SceneToClip(105) <= c.SceneToClip(104) {
		t.Fatal("expected the mapping to be monotone")
	}
}
