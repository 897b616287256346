// Package dopesheet summarizes per-track tracked-segment coverage:
// per-track segmentation into maximal enabled runs, channel sort orders,
// and per-frame coverage classification. Recomputation is lazy: Sheet.Ok
// is set false by TagUpdate and checked by Update.
package dopesheet

import (
	"sort"

	"github.com/motioncore/tracker/internal/clipmodel"
	"github.com/motioncore/tracker/internal/markerstore"
)

// Segment is a maximal run of consecutive frames, half-open [Start, End).
type Segment struct {
	Start, End int
}

// Length returns the number of frames the segment spans.
func (s Segment) Length() int { return s.End - s.Start }

// CoverageClass is a per-frame coverage bucket keyed off how many enabled
// markers land on that frame.
type CoverageClass int

const (
	Bad CoverageClass = iota
	Acceptable
	OK
)

// classFor maps an enabled-marker count to its coverage class; thresholds
// at 8 and 16.
func classFor(count int) CoverageClass {
	switch {
	case count < 8:
		return Bad
	case count < 16:
		return Acceptable
	default:
		return OK
	}
}

// CoverageSegment is a maximal run of consecutive frames sharing the same
// coverage class.
type CoverageSegment struct {
	Segment
	Class CoverageClass
}

// Channel is one track's dopesheet row.
type Channel struct {
	Track       *clipmodel.Track
	Segments    []Segment
	TotSegment  int
	MaxSegment  int
	TotalFrames int
	AverageError float64
}

// SortKey selects the channel sort order.
type SortKey int

const (
	SortName SortKey = iota
	SortTotalFrames
	SortMaxSegment
	SortAverageError
)

// Sheet is the dopesheet for a clip's active object: one channel per
// visible track, plus the overall coverage segmentation.
type Sheet struct {
	Channels []Channel
	Coverage []CoverageSegment

	Ok bool
}

// TagUpdate invalidates the sheet; the next Update call recomputes it from
// scratch.
func (s *Sheet) TagUpdate() { s.Ok = false }

// Update recomputes the sheet from tracks if it is not already valid. It is
// a no-op when s.Ok is already true.
// selectedOnly and showHidden filter which tracks contribute a channel, but
// every track (regardless of these flags) still contributes to Coverage.
// The filters scope channel visibility only, while the coverage count is
// defined over all tracks of the active object.
func (s *Sheet) Update(tracks []*clipmodel.Track, selectedOnly, showHidden bool) {
	if s.Ok {
		return
	}
	s.Channels = buildChannels(tracks, selectedOnly, showHidden)
	s.Coverage = buildCoverage(tracks)
	s.Ok = true
}

func visible(t *clipmodel.Track, selectedOnly, showHidden bool) bool {
	if !showHidden && t.Flags.Has(clipmodel.TrackHidden) {
		return false
	}
	if selectedOnly && !t.Flags.Has(clipmodel.TrackSelect) {
		return false
	}
	return true
}

func buildChannels(tracks []*clipmodel.Track, selectedOnly, showHidden bool) []Channel {
	var channels []Channel
	for _, t := range tracks {
		if !visible(t, selectedOnly, showHidden) {
			continue
		}
		segs := enabledRuns(t)
		ch := Channel{Track: t, Segments: segs, AverageError: t.Error}
		maxSeg := 0
		total := 0
		for _, sg := range segs {
			l := sg.Length()
			total += l
			if l > maxSeg {
				maxSeg = l
			}
		}
		ch.TotSegment = len(segs)
		ch.MaxSegment = maxSeg
		ch.TotalFrames = total
		channels = append(channels, ch)
	}
	return channels
}

// enabledRuns segments t's markers into maximal runs of consecutive frames
// (differing by exactly 1) where each marker is enabled.
func enabledRuns(t *clipmodel.Track) []Segment {
	markers := t.Markers.All()
	var segs []Segment
	runStart := -1
	prevFrame := 0
	flush := func(endFrame int) {
		if runStart >= 0 {
			segs = append(segs, Segment{Start: runStart, End: endFrame + 1})
			runStart = -1
		}
	}
	for _, m := range markers {
		enabled := !m.Flags.Has(markerstore.FlagDisabled)
		if !enabled {
			flush(prevFrame)
			prevFrame = m.Frame
			continue
		}
		if runStart >= 0 && m.Frame == prevFrame+1 {
			prevFrame = m.Frame
			continue
		}
		flush(prevFrame)
		runStart = m.Frame
		prevFrame = m.Frame
	}
	flush(prevFrame)
	return segs
}

// buildCoverage counts enabled markers per frame across every track
// (ignoring the channel visibility filters), classifies each frame, and collapses
// consecutive frames sharing a class into segments.
func buildCoverage(tracks []*clipmodel.Track) []CoverageSegment {
	counts := make(map[int]int)
	globalMin, globalMax := 0, 0
	first := true
	for _, t := range tracks {
		for _, m := range t.Markers.All() {
			if m.Flags.Has(markerstore.FlagDisabled) {
				continue
			}
			counts[m.Frame]++
			if first || m.Frame < globalMin {
				globalMin = m.Frame
			}
			if first || m.Frame > globalMax {
				globalMax = m.Frame
			}
			first = false
		}
	}
	if first {
		return nil
	}

	var out []CoverageSegment
	var curClass CoverageClass
	curStart := globalMin
	haveCur := false
	for f := globalMin; f <= globalMax; f++ {
		cls := classFor(counts[f])
		if !haveCur {
			curClass = cls
			curStart = f
			haveCur = true
			continue
		}
		if cls != curClass {
			out = append(out, CoverageSegment{Segment: Segment{Start: curStart, End: f}, Class: curClass})
			curClass = cls
			curStart = f
		}
	}
	if haveCur {
		out = append(out, CoverageSegment{Segment: Segment{Start: curStart, End: globalMax + 1}, Class: curClass})
	}
	return out
}

// Sort orders s.Channels by key, stably, reversing the comparison when
// inverse is true.
func (s *Sheet) Sort(key SortKey, inverse bool) {
	less := func(i, j int) bool {
		a, b := s.Channels[i], s.Channels[j]
		switch key {
		case SortTotalFrames:
			return a.TotalFrames < b.TotalFrames
		case SortMaxSegment:
			return a.MaxSegment < b.MaxSegment
		case SortAverageError:
			return a.AverageError < b.AverageError
		default:
			return a.Track.Name < b.Track.Name
		}
	}
	if inverse {
		orig := less
		less = func(i, j int) bool { return orig(j, i) }
	}
	sort.SliceStable(s.Channels, less)
}
