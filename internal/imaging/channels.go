package imaging

// ChannelMask selects which of a buffer's RGB channels are disabled, and
// whether the surviving luminance should be written to all three channels
// (PREVIEW_GRAYSCALE) rather than just the enabled ones.
type ChannelMask struct {
	DisableR, DisableG, DisableB bool
	Grayscale                    bool
}

// Any reports whether the mask changes anything (no-op fast path for callers).
func (m ChannelMask) Any() bool {
	return m.DisableR || m.DisableG || m.DisableB || m.Grayscale
}

// ApplyChannelDisable rescales a 3-channel buffer in place so that the sum
// of enabled luminance weights is preserved: when any channel is disabled,
// the remaining channels are boosted by weightTotal/enabledWeightTotal; if
// Grayscale is set, the luminance of the enabled channels, boosted the same
// way, is written to all three channels instead.
// When every channel would be disabled, the rescale denominator is clamped
// away from zero and the pixel is written as black.
func ApplyChannelDisable(b *Buffer, mask ChannelMask) {
	if !mask.Any() || b.Channels < 3 {
		return
	}

	enabledWeight := 0.0
	if !mask.DisableR {
		enabledWeight += WeightR
	}
	if !mask.DisableG {
		enabledWeight += WeightG
	}
	if !mask.DisableB {
		enabledWeight += WeightB
	}
	const totalWeight = WeightR + WeightG + WeightB
	denom := enabledWeight
	if denom < 1e-9 {
		denom = 1e-9
	}
	scale := float32(totalWeight / denom)

	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			r, g, bl := b.At(x, y, 0), b.At(x, y, 1), b.At(x, y, 2)
			if enabledWeight < 1e-9 {
				b.Set(x, y, 0, 0)
				b.Set(x, y, 1, 0)
				b.Set(x, y, 2, 0)
				continue
			}
			if mask.Grayscale {
				if mask.DisableR {
					r = 0
				}
				if mask.DisableG {
					g = 0
				}
				if mask.DisableB {
					bl = 0
				}
				lum := (float32(WeightR)*r + float32(WeightG)*g + float32(WeightB)*bl) * scale
				b.Set(x, y, 0, lum)
				b.Set(x, y, 1, lum)
				b.Set(x, y, 2, lum)
				continue
			}
			if mask.DisableR {
				r = 0
			} else {
				r *= scale
			}
			if mask.DisableG {
				g = 0
			} else {
				g *= scale
			}
			if mask.DisableB {
				bl = 0
			} else {
				bl *= scale
			}
			b.Set(x, y, 0, r)
			b.Set(x, y, 1, g)
			b.Set(x, y, 2, bl)
		}
	}
}
