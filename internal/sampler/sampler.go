// Package sampler implements pattern/search extraction: cropping a track's
// search region out of a frame buffer and resampling its (possibly
// non-axis-aligned) pattern quad into a fixed-size patch, including the
// channel-disable blend and anchored fractional-offset compensation.
package sampler

import (
	"math"

	"github.com/motioncore/tracker/internal/clipmodel"
	"github.com/motioncore/tracker/internal/coordspace"
	"github.com/motioncore/tracker/internal/imaging"
	"github.com/motioncore/tracker/internal/markerstore"
)

type Vec2 = coordspace.Vec2

// channelMask derives the imaging.ChannelMask implied by a track's
// DISABLE_{R,G,B}/PREVIEW_GRAYSCALE flags.
func channelMask(t *clipmodel.Track) imaging.ChannelMask {
	return imaging.ChannelMask{
		DisableR:  t.Flags.Has(clipmodel.TrackDisableRed),
		DisableG:  t.Flags.Has(clipmodel.TrackDisableGreen),
		DisableB:  t.Flags.Has(clipmodel.TrackDisableBlue),
		Grayscale: t.Flags.Has(clipmodel.TrackPreviewGrayscale),
	}
}

// GetSearchImbuf crops the rectangular search region of marker out of
// frameImage, optionally anchored by the track's offset, and applies the
// channel-disable blend when requested.
// Returns nil, nil when the computed width or height is non-positive (a
// benign numerical edge).
func GetSearchImbuf(frameImage *imaging.Buffer, track *clipmodel.Track, marker markerstore.Marker, anchored, disableChannels bool) (*imaging.Buffer, error) {
	size := coordspace.Size{W: frameImage.Width, H: frameImage.Height}
	markerPos := marker.Pos
	if anchored {
		markerPos = markerPos.Add(track.Offset)
	}

	origin := coordspace.SearchOriginPixel(markerPos, marker.SearchMin, size)
	maxPx := coordspace.UnifiedToPixel(coordspace.MarkerToFrameUnified(markerPos, marker.SearchMax), size)
	w := int(math.Round(maxPx.X)) - origin[0]
	h := int(math.Round(maxPx.Y)) - origin[1]
	if w <= 0 || h <= 0 {
		return nil, nil
	}

	out := frameImage.CopyRect(origin[0], origin[1], w, h)
	if disableChannels {
		mask := channelMask(track)
		if mask.Any() {
			imaging.ApplyChannelDisable(out, mask)
		}
	}
	return out, nil
}

// TrackGetMask rasterizes a set of polygonal mask strokes (vertices in
// marker-unified coordinates, i.e. offsets from the marker position, the
// convention a grease-pencil mask layer attached to a track uses) into a
// float coverage buffer sized to the marker's search region,
// (search_max-search_min)·(W,H). The returned buffer is owned by the caller
// and is suitable as the mask argument of SamplePattern. Returns nil when
// the search region is degenerate.
func TrackGetMask(size coordspace.Size, marker markerstore.Marker, strokes [][]Vec2) *imaging.Buffer {
	dim := marker.SearchMax.Sub(marker.SearchMin).Mul(size.Vec2())
	w, h := int(dim.X), int(dim.Y)
	if w <= 0 || h <= 0 {
		return nil
	}

	polys := make([][]imaging.Point2, 0, len(strokes))
	for _, stroke := range strokes {
		poly := make([]imaging.Point2, len(stroke))
		for i, v := range stroke {
			p := v.Sub(marker.SearchMin).Mul(size.Vec2())
			poly[i] = imaging.Point2{X: p.X, Y: p.Y}
		}
		polys = append(polys, poly)
	}
	return imaging.RasterizeMask(w, h, polys)
}

// fromAnchorCompensation computes the fractional-pixel offset of
// track.Offset that an anchored search silently snapped away. Truncation
// rounds toward zero, so for a negative offset the fraction is pushed back
// into [0,1) to match the direction the snap actually moved.
func fromAnchorCompensation(offset Vec2, size coordspace.Size) Vec2 {
	offPx := offset.Mul(size.Vec2())
	fracX := offPx.X - math.Trunc(offPx.X)
	if fracX < 0 {
		fracX++
	}
	fracY := offPx.Y - math.Trunc(offPx.Y)
	if fracY < 0 {
		fracY++
	}
	return Vec2{X: fracX, Y: fracY}
}

// bilinearQuad parametrizes the quad (c0,c1,c2,c3 in corner order
// TL,TR,BR,BL) at (u,v) in [0,1]x[0,1].
func bilinearQuad(c [4]Vec2, u, v float64) Vec2 {
	top := c[0].Scale(1 - u).Add(c[1].Scale(u))
	bottom := c[3].Scale(1 - u).Add(c[2].Scale(u))
	return top.Scale(1 - v).Add(bottom.Scale(v))
}

// SamplePattern resamples an nx×ny patch whose corners correspond to the
// marker's four pattern corners, optionally
// weighted by a rasterized mask buffer covering the marker's search region.
// Returns the patch and the warped-position residual: how far the sampled
// center moved due to from_anchor fractional-offset compensation.
func SamplePattern(frameImage *imaging.Buffer, track *clipmodel.Track, marker markerstore.Marker, fromAnchor, useMask bool, mask *imaging.Buffer, nx, ny int) (*imaging.Buffer, Vec2, error) {
	size := coordspace.Size{W: frameImage.Width, H: frameImage.Height}
	markerPos := marker.Pos

	// the compensation is already in pixel units
	var residual Vec2
	if fromAnchor {
		residual = fromAnchorCompensation(track.Offset, size)
	}

	var cornersPx [4]Vec2
	for i, corner := range marker.PatternCorners {
		p := coordspace.UnifiedToPixel(coordspace.MarkerToFrameUnified(markerPos, corner), size)
		cornersPx[i] = p.Sub(residual)
	}

	searchOrigin := coordspace.SearchOriginPixel(markerPos, marker.SearchMin, size)

	out := imaging.NewBuffer(nx, ny, frameImage.Channels)
	for j := 0; j < ny; j++ {
		v := 0.0
		if ny > 1 {
			v = float64(j) / float64(ny-1)
		}
		for i := 0; i < nx; i++ {
			u := 0.0
			if nx > 1 {
				u = float64(i) / float64(nx-1)
			}
			p := bilinearQuad(cornersPx, u, v)
			for ch := 0; ch < frameImage.Channels; ch++ {
				out.Set(i, j, ch, frameImage.Sample(p.X, p.Y, ch))
			}
			if useMask && mask != nil {
				mx := p.X - float64(searchOrigin[0])
				my := p.Y - float64(searchOrigin[1])
				weight := mask.Sample(mx, my, 0)
				for ch := 0; ch < frameImage.Channels; ch++ {
					out.Set(i, j, ch, out.At(i, j, ch)*weight)
				}
			}
		}
	}

	return out, residual, nil
}
