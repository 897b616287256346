package clipmodel

import "github.com/motioncore/tracker/internal/config"

// StabilizationFlags holds the per-clip 2D stabilization toggles.
type StabilizationFlags uint8

const (
	// Stabilization2D enables 2D stabilization.
	Stabilization2D StabilizationFlags = 1 << iota
	// StabilizationAutoscale enables the auto-scale search.
	StabilizationAutoscale
	// StabilizationRotation enables rotation compensation about the image center.
	StabilizationRotation
)

func (f StabilizationFlags) Has(bit StabilizationFlags) bool { return f&bit != 0 }

// StabilizationFilter selects the resampling filter used to warp a
// stabilized frame.
type StabilizationFilter int

const (
	FilterNearest StabilizationFilter = iota
	FilterBilinear
	FilterBicubic
)

func stabFilterFromString(s string) StabilizationFilter {
	switch s {
	case "nearest":
		return FilterNearest
	case "bicubic":
		return FilterBicubic
	default:
		return FilterBilinear
	}
}

// StabilizationConfig holds the per-clip 2D stabilization settings, the
// designated rotation-anchor track, and the cached autoscale factor.
type StabilizationConfig struct {
	Flags StabilizationFlags

	LocInf   float64
	ScaleInf float64
	RotInf   float64
	MaxScale float64

	// RotTrack is the track whose motion defines the rotation angle when
	// StabilizationRotation is set.
	RotTrack *Track

	// Scale is the cached autoscale factor; Ok reports whether it is still
	// valid for the current marker/flag state.
	Scale float64
	Ok    bool

	Filter StabilizationFilter
}

// NewStabilizationConfig returns a config initialized from clip defaults,
// with no rotation track and an un-cached (Ok=false) scale.
func NewStabilizationConfig(d *config.ClipDefaults) *StabilizationConfig {
	return &StabilizationConfig{
		LocInf:   d.GetStabilizationLocInf(),
		ScaleInf: d.GetStabilizationScaleInf(),
		RotInf:   d.GetStabilizationRotInf(),
		MaxScale: d.GetStabilizationMaxScale(),
		Scale:    1,
		Filter:   stabFilterFromString(d.GetStabilizationFilter()),
	}
}

// TagUpdate invalidates the cached autoscale factor; the next call to
// compute it will recompute rather than reuse the cache. Any marker or
// setting mutation that can move the stabilized frames must be followed by
// a TagUpdate.
func (s *StabilizationConfig) TagUpdate() { s.Ok = false }
