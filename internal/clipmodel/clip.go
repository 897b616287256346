package clipmodel

import (
	"errors"
	"fmt"

	"github.com/motioncore/tracker/internal/config"
	"github.com/motioncore/tracker/internal/intrinsics"
	"github.com/motioncore/tracker/internal/markerstore"
)

// ErrCameraProtected is returned by DeleteObject when asked to remove the
// camera object.
var ErrCameraProtected = errors.New("clipmodel: cannot delete camera object")

// ErrNoActiveSelection is returned by GetActive when the current selection
// is not present in the active track list.
var ErrNoActiveSelection = errors.New("clipmodel: active selection not in active track list")

// Clip is the top-level container: an object list (index 0 always the
// camera), the top-level track list and reconstruction shared by the
// camera object, and the tuning defaults applied to newly added tracks.
type Clip struct {
	Objects  []*Object
	Tracks   []*Track
	Recon    *Reconstruction
	Defaults *config.ClipDefaults

	// Intrinsics is the clip's camera model,
	// shared by every object's reconstruction the same way the camera object
	// shares the clip's top-level track list.
	Intrinsics *intrinsics.Intrinsics

	// Stabilization holds the 2D stabilization settings and cached autoscale
	// factor.
	Stabilization *StabilizationConfig

	// StartFrame is the scene frame at which the clip's frame 1 plays; it
	// defines the monotone scene<->clip frame bijection.
	StartFrame int

	activeObject int
	activeTrack  *Track
}

// SceneToClip maps a scene frame number to the clip-space frame number all
// markers and cameras are indexed by.
func (c *Clip) SceneToClip(sceneFrame int) int { return sceneFrame - c.StartFrame + 1 }

// ClipToScene is the inverse of SceneToClip.
func (c *Clip) ClipToScene(clipFrame int) int { return clipFrame + c.StartFrame - 1 }

// NewClip returns a clip with just the camera object, no tracks, and
// intrinsics/stabilization initialized from defaults.
func NewClip(defaults *config.ClipDefaults) *Clip {
	if defaults == nil {
		defaults = config.EmptyClipDefaults()
	}
	return &Clip{
		Objects:       []*Object{newCameraObject()},
		Recon:         &Reconstruction{},
		Defaults:      defaults,
		Intrinsics:    intrinsics.New(0, 0, 0, 0, 0, 0, defaults.GetSensorWidthMM(), defaults.GetPixelAspect()),
		Stabilization: NewStabilizationConfig(defaults),
		StartFrame:    1,
	}
}

// ActiveObject returns the currently active object (camera by default).
func (c *Clip) ActiveObject() *Object { return c.Objects[c.activeObject] }

// SetActiveObject sets the active object by index.
func (c *Clip) SetActiveObject(i int) error {
	if i < 0 || i >= len(c.Objects) {
		return fmt.Errorf("clipmodel: object index %d out of range", i)
	}
	c.activeObject = i
	return nil
}

// ActiveTracks returns the track list of the active object: the clip's
// top-level tracks for the camera, or the object's own tracks otherwise.
func (c *Clip) ActiveTracks() []*Track {
	o := c.ActiveObject()
	if o.IsCamera() {
		return c.Tracks
	}
	return o.tracks
}

// activeReconstruction returns the reconstruction owned by the active
// object (camera shares the clip's top-level one).
func (c *Clip) activeReconstruction() *Reconstruction {
	o := c.ActiveObject()
	if o.IsCamera() {
		return c.Recon
	}
	return o.reconstruction
}

func (c *Clip) setActiveTracks(tracks []*Track) {
	o := c.ActiveObject()
	if o.IsCamera() {
		c.Tracks = tracks
	} else {
		o.tracks = tracks
	}
}

// AddObject creates and appends a non-camera tracked object.
func (c *Clip) AddObject(name string) *Object {
	o := newTrackedObject(name)
	c.Objects = append(c.Objects, o)
	return o
}

// DeleteObject removes a non-camera object. Deleting the camera object
// (always Objects[0]) fails and leaves state unchanged.
func (c *Clip) DeleteObject(o *Object) error {
	if o.IsCamera() {
		return ErrCameraProtected
	}
	for i, other := range c.Objects {
		if other == o {
			c.Objects = append(c.Objects[:i], c.Objects[i+1:]...)
			if c.activeObject >= len(c.Objects) {
				c.activeObject = 0
			} else if c.activeObject == i {
				c.activeObject = 0
			} else if c.activeObject > i {
				c.activeObject--
			}
			return nil
		}
	}
	return fmt.Errorf("clipmodel: object %q not found", o.Name)
}

// uniqueTrackName returns base if unused among existing, otherwise the
// first unused "base.NNN" dotted suffix.
func uniqueTrackName(base string, existing []*Track) string {
	used := make(map[string]bool, len(existing))
	for _, t := range existing {
		used[t.Name] = true
	}
	if !used[base] {
		return base
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s.%03d", base, n)
		if !used[candidate] {
			return candidate
		}
	}
}

func motionModelFromString(s string) MotionModel {
	switch s {
	case "translation_rotation":
		return MotionTranslationRotation
	case "translation_scale":
		return MotionTranslationScale
	case "affine":
		return MotionAffine
	case "perspective":
		return MotionPerspective
	default:
		return MotionTranslation
	}
}

func matchModeFromString(s string) MatchMode {
	if s == "prev_frame" {
		return MatchPrevFrame
	}
	return MatchKeyframe
}

// AddTrack creates a new track in the active object's track list with one
// marker at pixel position (x,y) on a frame-sized (w,h) image, pattern and
// search sizes drawn from clip defaults, and match/motion/algorithm
// settings filled from the same defaults.
func (c *Clip) AddTrack(x, y float64, frame, w, h int) *Track {
	tracks := c.ActiveTracks()
	name := uniqueTrackName("Track", tracks)

	t := NewTrack(name)
	t.MotionModel = motionModelFromString(c.Defaults.GetDefaultMotionModel())
	t.MatchMode = matchModeFromString(c.Defaults.GetDefaultMatchMode())
	t.MinCorrelation = c.Defaults.GetDefaultMinCorrelation()
	t.UseBrute = c.Defaults.GetUseBrute()
	t.UseNormalization = c.Defaults.GetUseNormalization()
	t.UseMask = c.Defaults.GetUseMask()
	if w > 0 {
		t.Margin = c.Defaults.GetDefaultMargin() / float64(w)
	}

	fw, fh := float64(w), float64(h)
	pat := float64(c.Defaults.GetDefaultPatternSize()) / 2
	srch := float64(c.Defaults.GetDefaultSearchSize()) / 2
	patX, patY := pat/fw, pat/fh
	srchX, srchY := srch/fw, srch/fh

	m := markerstore.Marker{
		Frame: frame,
		Pos:   Vec2{X: x / fw, Y: y / fh},
		PatternCorners: [4]Vec2{
			{X: -patX, Y: -patY},
			{X: patX, Y: -patY},
			{X: patX, Y: patY},
			{X: -patX, Y: patY},
		},
		SearchMin: Vec2{X: -srchX, Y: -srchY},
		SearchMax: Vec2{X: srchX, Y: srchY},
	}
	t.Markers.Insert(m)

	tracks = append(tracks, t)
	c.setActiveTracks(tracks)
	return t
}

// GetNamed returns the track with the given name among the active tracks.
func (c *Clip) GetNamed(name string) (*Track, bool) {
	for _, t := range c.ActiveTracks() {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// GetIndexed returns the i-th track, across all objects, among those that
// have a reconstructed bundle.
func (c *Clip) GetIndexed(i int) (*Track, bool) {
	bundled := c.bundledTracks()
	if i < 0 || i >= len(bundled) {
		return nil, false
	}
	return bundled[i], true
}

func (c *Clip) bundledTracks() []*Track {
	var out []*Track
	for _, t := range c.Tracks {
		if t.HasBundle() {
			out = append(out, t)
		}
	}
	for _, o := range c.Objects {
		if o.IsCamera() {
			continue
		}
		for _, t := range o.tracks {
			if t.HasBundle() {
				out = append(out, t)
			}
		}
	}
	return out
}

// GetActive validates that t is present in the active track list and
// returns it; otherwise reports ErrNoActiveSelection.
func (c *Clip) GetActive(t *Track) (*Track, error) {
	for _, candidate := range c.ActiveTracks() {
		if candidate == t {
			return t, nil
		}
	}
	return nil, ErrNoActiveSelection
}
