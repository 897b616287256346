package clipmodel

// ObjectFlags holds per-object boolean state.
type ObjectFlags uint8

const (
	// ObjectCamera distinguishes the single camera object from tracked objects.
	ObjectCamera ObjectFlags = 1 << iota
)

// Object is a named collection of tracks representing either the camera
// (exactly one per clip) or a rigid tracked object.
//
// The camera object shares the clip's top-level Tracks and Reconstruction
// (its own tracks/reconstruction fields are left nil); a non-camera object
// owns its own.
type Object struct {
	Name  string
	Flags ObjectFlags

	Scale     float64 // object-only
	Keyframe1 int
	Keyframe2 int

	tracks         []*Track
	reconstruction *Reconstruction
}

// Has reports whether the given bit is set.
func (f ObjectFlags) Has(bit ObjectFlags) bool { return f&bit != 0 }

// IsCamera reports whether this is the distinguished camera object.
func (o *Object) IsCamera() bool { return o.Flags.Has(ObjectCamera) }

// Tracks returns this object's own track list. It is always nil for the
// camera object, which shares the clip's top-level Tracks instead; callers
// needing the camera's tracks should use Clip.ActiveTracks with the camera
// selected, or Clip.Tracks directly.
func (o *Object) Tracks() []*Track { return o.tracks }

// SetTracks replaces this object's own track list, used when restoring a
// clip from storage. It is a no-op on the camera object.
func (o *Object) SetTracks(tracks []*Track) {
	if o.IsCamera() {
		return
	}
	o.tracks = tracks
}

// Reconstruction returns this object's own reconstruction; it does not
// allocate one when absent. It is always nil for the camera object, which
// shares the clip's top-level Recon instead.
func (o *Object) Reconstruction() *Reconstruction { return o.reconstruction }

// SetReconstruction replaces this object's own reconstruction, used when
// restoring a clip from storage. It is a no-op on the camera object.
func (o *Object) SetReconstruction(r *Reconstruction) {
	if o.IsCamera() {
		return
	}
	o.reconstruction = r
}

// newCameraObject returns the single, always-first camera object.
func newCameraObject() *Object {
	return &Object{Name: "Camera", Flags: ObjectCamera, Scale: 1, Keyframe1: 1, Keyframe2: 2}
}

// newTrackedObject returns a non-camera object with its own empty track
// list and reconstruction.
func newTrackedObject(name string) *Object {
	return &Object{
		Name:           name,
		Scale:          1,
		Keyframe1:      1,
		Keyframe2:      2,
		tracks:         nil,
		reconstruction: &Reconstruction{},
	}
}
