// Package config loads the tuning defaults applied when a clip, track, or
// stabilization config omits a setting. It follows the optional-pointer-
// field-plus-accessor pattern used throughout this project's configuration
// layer: every field is a pointer so a partial JSON document only overrides
// what it names, and a Get* method supplies the hard default otherwise.
package config

import (
	"embed"
	"encoding/json"
	"fmt"
)

//go:embed defaults.json
var embeddedDefaults embed.FS

// DefaultsFile is the canonical embedded defaults document's logical name.
const DefaultsFile = "defaults.json"

// ClipDefaults holds the tuning parameters used to initialize new tracks,
// objects, and stabilization configs. Fields are pointers so a JSON document
// overriding only a handful of settings is valid; omitted fields fall back
// to the Get* method's hard default.
type ClipDefaults struct {
	DefaultPatternSize     *int     `json:"default_pattern_size,omitempty"`
	DefaultSearchSize      *int     `json:"default_search_size,omitempty"`
	DefaultMotionModel     *string  `json:"default_motion_model,omitempty"`
	DefaultMatchMode       *string  `json:"default_match_mode,omitempty"`
	DefaultMinCorrelation  *float64 `json:"default_min_correlation,omitempty"`
	DefaultMargin          *float64 `json:"default_margin,omitempty"`
	UseBrute               *bool    `json:"use_brute,omitempty"`
	UseNormalization       *bool    `json:"use_normalization,omitempty"`
	UseMask                *bool    `json:"use_mask,omitempty"`
	StabilizationLocInf    *float64 `json:"stabilization_loc_influence,omitempty"`
	StabilizationScaleInf  *float64 `json:"stabilization_scale_influence,omitempty"`
	StabilizationRotInf    *float64 `json:"stabilization_rot_influence,omitempty"`
	StabilizationMaxScale  *float64 `json:"stabilization_max_scale,omitempty"`
	StabilizationFilter    *string  `json:"stabilization_filter,omitempty"`
	KeyframeAutoSelect     *bool    `json:"keyframe_auto_select,omitempty"`
	SensorWidthMM          *float64 `json:"sensor_width_mm,omitempty"`
	PixelAspect            *float64 `json:"pixel_aspect,omitempty"`
}

// EmptyClipDefaults returns a ClipDefaults with every field unset, so every
// Get* call falls back to its hard default.
func EmptyClipDefaults() *ClipDefaults {
	return &ClipDefaults{}
}

// LoadClipDefaults parses a JSON document into a ClipDefaults. Fields absent
// from data retain their hard defaults via the Get* accessors.
func LoadClipDefaults(data []byte) (*ClipDefaults, error) {
	cfg := EmptyClipDefaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse clip defaults: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid clip defaults: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultClipDefaults loads the canonical embedded defaults document.
// Panics on error; intended for package-level var initialization and tests.
func MustLoadDefaultClipDefaults() *ClipDefaults {
	data, err := embeddedDefaults.ReadFile(DefaultsFile)
	if err != nil {
		panic("config: cannot read embedded " + DefaultsFile + ": " + err.Error())
	}
	cfg, err := LoadClipDefaults(data)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate checks that set fields hold sane values.
func (c *ClipDefaults) Validate() error {
	if c.DefaultPatternSize != nil && *c.DefaultPatternSize <= 0 {
		return fmt.Errorf("default_pattern_size must be positive, got %d", *c.DefaultPatternSize)
	}
	if c.DefaultSearchSize != nil && *c.DefaultSearchSize <= 0 {
		return fmt.Errorf("default_search_size must be positive, got %d", *c.DefaultSearchSize)
	}
	if c.DefaultMinCorrelation != nil && (*c.DefaultMinCorrelation < 0 || *c.DefaultMinCorrelation > 1) {
		return fmt.Errorf("default_min_correlation must be in [0,1], got %f", *c.DefaultMinCorrelation)
	}
	if c.PixelAspect != nil && *c.PixelAspect <= 0 {
		return fmt.Errorf("pixel_aspect must be positive, got %f", *c.PixelAspect)
	}
	return nil
}

func (c *ClipDefaults) GetDefaultPatternSize() int {
	if c.DefaultPatternSize == nil {
		return 21
	}
	return *c.DefaultPatternSize
}

func (c *ClipDefaults) GetDefaultSearchSize() int {
	if c.DefaultSearchSize == nil {
		return 71
	}
	return *c.DefaultSearchSize
}

func (c *ClipDefaults) GetDefaultMotionModel() string {
	if c.DefaultMotionModel == nil {
		return "translation"
	}
	return *c.DefaultMotionModel
}

func (c *ClipDefaults) GetDefaultMatchMode() string {
	if c.DefaultMatchMode == nil {
		return "keyframe"
	}
	return *c.DefaultMatchMode
}

func (c *ClipDefaults) GetDefaultMinCorrelation() float64 {
	if c.DefaultMinCorrelation == nil {
		return 0.75
	}
	return *c.DefaultMinCorrelation
}

func (c *ClipDefaults) GetDefaultMargin() float64 {
	if c.DefaultMargin == nil {
		return 0
	}
	return *c.DefaultMargin
}

func (c *ClipDefaults) GetUseBrute() bool {
	if c.UseBrute == nil {
		return true
	}
	return *c.UseBrute
}

func (c *ClipDefaults) GetUseNormalization() bool {
	if c.UseNormalization == nil {
		return false
	}
	return *c.UseNormalization
}

func (c *ClipDefaults) GetUseMask() bool {
	if c.UseMask == nil {
		return false
	}
	return *c.UseMask
}

func (c *ClipDefaults) GetStabilizationLocInf() float64 {
	if c.StabilizationLocInf == nil {
		return 1.0
	}
	return *c.StabilizationLocInf
}

func (c *ClipDefaults) GetStabilizationScaleInf() float64 {
	if c.StabilizationScaleInf == nil {
		return 1.0
	}
	return *c.StabilizationScaleInf
}

func (c *ClipDefaults) GetStabilizationRotInf() float64 {
	if c.StabilizationRotInf == nil {
		return 1.0
	}
	return *c.StabilizationRotInf
}

func (c *ClipDefaults) GetStabilizationMaxScale() float64 {
	if c.StabilizationMaxScale == nil {
		return 0
	}
	return *c.StabilizationMaxScale
}

func (c *ClipDefaults) GetStabilizationFilter() string {
	if c.StabilizationFilter == nil {
		return "bilinear"
	}
	return *c.StabilizationFilter
}

func (c *ClipDefaults) GetKeyframeAutoSelect() bool {
	if c.KeyframeAutoSelect == nil {
		return true
	}
	return *c.KeyframeAutoSelect
}

func (c *ClipDefaults) GetSensorWidthMM() float64 {
	if c.SensorWidthMM == nil {
		return 36.0
	}
	return *c.SensorWidthMM
}

func (c *ClipDefaults) GetPixelAspect() float64 {
	if c.PixelAspect == nil {
		return 1.0
	}
	return *c.PixelAspect
}
