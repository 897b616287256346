// Package imaging implements the image buffer type and per-pixel
// operations shared by the sampler, intrinsics, and stabilizer: a float32
// interleaved buffer, the channel-disable luminance blend, and antialiased
// scanline mask rasterization.
package imaging

import (
	"image"
	"image/color"
	"math"
)

// Luminance weights for the channel-disable blend.
const (
	WeightR = 0.2126
	WeightG = 0.7152
	WeightB = 0.0722
)

// Buffer is a row-major, channel-interleaved float32 image. Values are not
// clamped to [0,1] by the buffer itself; callers clamp where the domain
// requires it.
type Buffer struct {
	Width, Height, Channels int
	Pix                     []float32
}

// NewBuffer allocates a zeroed buffer of the given dimensions.
func NewBuffer(w, h, channels int) *Buffer {
	return &Buffer{Width: w, Height: h, Channels: channels, Pix: make([]float32, w*h*channels)}
}

func (b *Buffer) offset(x, y int) int { return (y*b.Width + x) * b.Channels }

// At returns the value of channel ch at (x,y). Out-of-bounds reads return 0.
func (b *Buffer) At(x, y, ch int) float32 {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return 0
	}
	return b.Pix[b.offset(x, y)+ch]
}

// Set writes the value of channel ch at (x,y). Out-of-bounds writes are
// silently ignored.
func (b *Buffer) Set(x, y, ch int, v float32) {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return
	}
	b.Pix[b.offset(x, y)+ch] = v
}

// Sample performs bilinear interpolation at floating-point pixel coordinates
// (fx,fy). Samples outside the buffer clamp to the nearest edge pixel.
func (b *Buffer) Sample(fx, fy float64, ch int) float32 {
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	clampX := func(x int) int {
		if x < 0 {
			return 0
		}
		if x >= b.Width {
			return b.Width - 1
		}
		return x
	}
	clampY := func(y int) int {
		if y < 0 {
			return 0
		}
		if y >= b.Height {
			return b.Height - 1
		}
		return y
	}

	x0c, x1c := clampX(x0), clampX(x0+1)
	y0c, y1c := clampY(y0), clampY(y0+1)

	v00 := float64(b.At(x0c, y0c, ch))
	v10 := float64(b.At(x1c, y0c, ch))
	v01 := float64(b.At(x0c, y1c, ch))
	v11 := float64(b.At(x1c, y1c, ch))

	top := v00 + (v10-v00)*tx
	bottom := v01 + (v11-v01)*tx
	return float32(top + (bottom-top)*ty)
}

// CopyRect extracts the [x0,y0)-[x0+w,y0+h) rectangle into a new buffer.
// Source pixels outside the original buffer read as 0.
func (b *Buffer) CopyRect(x0, y0, w, h int) *Buffer {
	out := NewBuffer(w, h, b.Channels)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < b.Channels; c++ {
				out.Set(x, y, c, b.At(x0+x, y0+y, c))
			}
		}
	}
	return out
}

// FromImage converts a standard library image.Image into a 3-channel
// float32 buffer in [0,1], dropping alpha.
func FromImage(img image.Image) *Buffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := NewBuffer(w, h, 3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bch, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			out.Set(x, y, 0, float32(r)/65535)
			out.Set(x, y, 1, float32(g)/65535)
			out.Set(x, y, 2, float32(bch)/65535)
		}
	}
	return out
}

// ToNRGBA converts a 3- or 4-channel float32 buffer in [0,1] into an
// image.NRGBA for display or encoding.
func (b *Buffer) ToNRGBA() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			r := clamp8(b.At(x, y, 0))
			g := clamp8(b.At(x, y, 1))
			bl := clamp8(b.At(x, y, 2))
			a := uint8(255)
			if b.Channels >= 4 {
				a = clamp8(b.At(x, y, 3))
			}
			img.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: bl, A: a})
		}
	}
	return img
}

func clamp8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
