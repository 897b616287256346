package clipmodel

import (
	"sort"

	"github.com/motioncore/tracker/internal/markerstore"
)

// Join merges dst and src into a new marker store.
//
// At a frame present in only one store, that marker is taken as-is. At a
// frame present in both where at least one is disabled, the enabled one
// wins; if both are disabled, dst wins. At a
// maximal run of consecutive frames where both are enabled, positions are
// linearly blended from dst toward src across the run; the blend direction
// is inverted if the frame immediately preceding the run was disabled or
// absent in dst.
func Join(dst, src *markerstore.Store) *markerstore.Store {
	frames := unionFrames(dst, src)
	out := markerstore.NewStore()

	for i := 0; i < len(frames); {
		f := frames[i]
		dm, dok := dst.GetExact(f)
		sm, sok := src.GetExact(f)
		dEnabled := dok && !dm.Flags.Has(markerstore.FlagDisabled)
		sEnabled := sok && !sm.Flags.Has(markerstore.FlagDisabled)

		if dEnabled && sEnabled {
			j := i
			for j+1 < len(frames) && frames[j+1] == frames[j]+1 {
				nd, ndok := dst.GetExact(frames[j+1])
				ns, nsok := src.GetExact(frames[j+1])
				if !(ndok && !nd.Flags.Has(markerstore.FlagDisabled) && nsok && !ns.Flags.Has(markerstore.FlagDisabled)) {
					break
				}
				j++
			}
			invert := blendInverted(dst, f)
			emitBlendSegment(out, dst, src, frames[i:j+1], invert)
			i = j + 1
			continue
		}

		switch {
		case dok && !sok:
			out.Insert(dm)
		case sok && !dok:
			out.Insert(sm)
		case dEnabled && !sEnabled:
			out.Insert(dm)
		case sEnabled && !dEnabled:
			out.Insert(sm)
		default:
			// both present and both disabled: take dst.
			out.Insert(dm)
		}
		i++
	}

	return out
}

func unionFrames(dst, src *markerstore.Store) []int {
	seen := make(map[int]bool)
	var frames []int
	for _, m := range dst.All() {
		if !seen[m.Frame] {
			seen[m.Frame] = true
			frames = append(frames, m.Frame)
		}
	}
	for _, m := range src.All() {
		if !seen[m.Frame] {
			seen[m.Frame] = true
			frames = append(frames, m.Frame)
		}
	}
	sort.Ints(frames)
	return frames
}

// blendInverted reports whether the frame immediately before segStart was
// disabled or missing in dst.
func blendInverted(dst *markerstore.Store, segStart int) bool {
	m, ok := dst.GetExact(segStart - 1)
	return !ok || m.Flags.Has(markerstore.FlagDisabled)
}

func emitBlendSegment(out *markerstore.Store, dst, src *markerstore.Store, frames []int, invert bool) {
	n := len(frames)
	for idx, f := range frames {
		t := 0.0
		if n > 1 {
			t = float64(idx) / float64(n-1)
		}
		if invert {
			t = 1 - t
		}
		dm, _ := dst.GetExact(f)
		sm, _ := src.GetExact(f)
		blended := dm
		blended.Pos = dm.Pos.Scale(1 - t).Add(sm.Pos.Scale(t))
		blended.Flags &^= markerstore.FlagDisabled
		out.Insert(blended)
	}
}
