// Package tracking implements the 2D tracking engine: a fork-join
// per-frame step over a TracksMap snapshot, keyframe/prev-frame reference
// selection, the margin guard, and the disabled-marker bracketing that
// keeps a tracked segment well-formed.
package tracking

import (
	"sync"

	"github.com/motioncore/tracker/internal/clipmodel"
	"github.com/motioncore/tracker/internal/coordspace"
	"github.com/motioncore/tracker/internal/imaging"
	"github.com/motioncore/tracker/internal/markerstore"
	"github.com/motioncore/tracker/internal/monitoring"
	"github.com/motioncore/tracker/internal/sampler"
	"github.com/motioncore/tracker/internal/solver"
	"github.com/motioncore/tracker/internal/tracksmap"
)

// FrameSource is the pluggable frame image source: an image buffer by
// clip-space frame number, plus the frame's pixel size.
type FrameSource interface {
	GetImbuf(frame int) (*imaging.Buffer, bool)
	GetSize() (w, h int)
}

// trackContext is the per-track customdata carried in the TracksMap
// snapshot: the reference marker and patch used as the matching template.
type trackContext struct {
	referenceMarker markerstore.Marker
	referencePatch  *imaging.Buffer
}

// Engine drives one tracking session: a snapshot of selected tracks, a
// pluggable kernel and frame source, and the current frame cursor.
type Engine struct {
	Kernel    solver.TrackerKernel
	Source    FrameSource
	Backwards bool

	snapshot  *tracksmap.TracksMap
	firstTime bool
	frame     int
}

// NewEngine snapshots the selected, unlocked, visible, enabled-at-frame
// tracks of tracks into a TracksMap, each primed with an empty trackContext.
func NewEngine(ownerName string, ownerIsCamera bool, tracks []*clipmodel.Track, frame int, kernel solver.TrackerKernel, source FrameSource, backwards bool) *Engine {
	tm := tracksmap.New(ownerName, ownerIsCamera)
	for _, t := range tracks {
		if !eligible(t, frame) {
			continue
		}
		tm.Insert(t, &trackContext{})
	}
	return &Engine{Kernel: kernel, Source: source, Backwards: backwards, snapshot: tm, firstTime: true, frame: frame}
}

func eligible(t *clipmodel.Track, frame int) bool {
	if t.Flags.Has(clipmodel.TrackHidden) || t.Flags.Has(clipmodel.TrackLocked) {
		return false
	}
	if !t.Flags.Has(clipmodel.TrackSelect) {
		return false
	}
	return t.EnabledAt(frame)
}

// Frame returns the engine's current frame cursor.
func (e *Engine) Frame() int { return e.frame }

func (e *Engine) direction() int {
	if e.Backwards {
		return -1
	}
	return 1
}

// Step advances the frame cursor by one in the configured direction and
// tracks every snapshot track in parallel against the destination frame.
// Returns false, without advancing, when the destination frame's image
// cannot be fetched.
func (e *Engine) Step() bool {
	dir := e.direction()
	nextFrame := e.frame + dir

	dstImage, ok := e.Source.GetImbuf(nextFrame)
	if !ok {
		monitoring.Debugf("tracking: no image for frame %d, stopping step", nextFrame)
		return false
	}
	w, h := e.Source.GetSize()
	size := coordspace.Size{W: w, H: h}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < e.snapshot.Len(); i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.stepTrack(i, dstImage, size, dir, &mu)
		}()
	}
	wg.Wait()

	e.frame = nextFrame
	e.firstTime = false
	return true
}

func (e *Engine) stepTrack(i int, dstImage *imaging.Buffer, size coordspace.Size, dir int, mu *sync.Mutex) {
	track := e.snapshot.Snapshot(i)
	tc, _ := e.snapshot.CustomData(i).(*trackContext)

	oldMarker, ok := track.Markers.GetExact(e.frame)
	if !ok || oldMarker.Flags.Has(markerstore.FlagDisabled) {
		return
	}

	if marginRejected(track, oldMarker) {
		monitoring.Debugf("tracking: track %q margin-rejected at frame %d", track.Name, e.frame)
		return
	}

	refMarker, refPatch, ok := e.resolveReference(track, tc, oldMarker, dir)
	if !ok {
		return
	}

	dstSearch, err := sampler.GetSearchImbuf(dstImage, track, oldMarker, false, false)
	if err != nil || dstSearch == nil {
		return
	}

	srcXY := coordspace.PackCorrespondence(oldMarker.PatternCorners, func(corner coordspace.Vec2) coordspace.Vec2 {
		abs := oldMarker.Pos.Add(corner)
		v := abs.Sub(refMarker.Pos)
		return coordspace.MarkerUnifiedToSearchPixel(refMarker.Pos, refMarker.SearchMin, v, size)
	})

	opts := solver.TrackRegionOpts{
		MotionModel:      int(track.MotionModel),
		UseBrute:         track.UseBrute,
		UseNormalization: track.UseNormalization,
		MinCorrelation:   track.MinCorrelation,
	}
	tracked, dstXY, _ := e.Kernel.TrackRegion(opts, refPatch, dstSearch, srcXY)

	mu.Lock()
	defer mu.Unlock()
	e.insertNewMarker(track, oldMarker, tracked, dstXY, size, dir)
}

// resolveReference returns the reference marker and patch for track. The
// patch is reloaded on the first step only for KEYFRAME mode, and on every
// step for PREV_FRAME mode.
func (e *Engine) resolveReference(track *clipmodel.Track, tc *trackContext, oldMarker markerstore.Marker, dir int) (markerstore.Marker, *imaging.Buffer, bool) {
	if track.MatchMode == clipmodel.MatchPrevFrame {
		img, ok := e.Source.GetImbuf(e.frame)
		if !ok {
			return markerstore.Marker{}, nil, false
		}
		patch, err := sampler.GetSearchImbuf(img, track, oldMarker, false, false)
		if err != nil || patch == nil {
			return markerstore.Marker{}, nil, false
		}
		tc.referenceMarker, tc.referencePatch = oldMarker, patch
		return oldMarker, patch, true
	}

	if e.firstTime || tc.referencePatch == nil {
		refMarker, ok := findKeyframeReference(track, oldMarker, dir)
		if !ok {
			return markerstore.Marker{}, nil, false
		}
		img, ok := e.Source.GetImbuf(refMarker.Frame)
		if !ok {
			return markerstore.Marker{}, nil, false
		}
		patch, err := sampler.GetSearchImbuf(img, track, refMarker, false, false)
		if err != nil || patch == nil {
			return markerstore.Marker{}, nil, false
		}
		tc.referenceMarker, tc.referencePatch = refMarker, patch
	}
	return tc.referenceMarker, tc.referencePatch, true
}

// findKeyframeReference walks the marker array from cur toward the opposite
// of the tracking direction, returning the nearest enabled marker without
// the TRACKED flag (a user-placed, keyframed marker). The walk crosses
// disabled markers and frame gaps; if no keyframed marker exists in that
// direction, it falls back to the first marker of the enabled segment cur
// belongs to, and reports ok=false if there is no such boundary either.
func findKeyframeReference(track *clipmodel.Track, cur markerstore.Marker, dir int) (markerstore.Marker, bool) {
	markers := track.Markers.All()
	a := -1
	for i, m := range markers {
		if m.Frame == cur.Frame {
			a = i
			break
		}
	}
	if a < 0 {
		return cur, true
	}

	var fallback *markerstore.Marker
	for a >= 0 && a < len(markers) {
		next := a - dir
		m := markers[a]
		if !m.Flags.Has(markerstore.FlagDisabled) {
			if fallback == nil && next >= 0 && next < len(markers) && markers[next].Flags.Has(markerstore.FlagDisabled) {
				fb := m
				fallback = &fb
			}
			if !m.Flags.Has(markerstore.FlagTracked) {
				return m, true
			}
		}
		a = next
	}
	if fallback != nil {
		return *fallback, true
	}
	return markerstore.Marker{}, false
}

// marginRejected reports whether marker's center lies within the effective
// margin of any frame border. Both the pattern
// dimensions and track.Margin are in frame-unified units, so the check never
// needs the pixel size.
func marginRejected(track *clipmodel.Track, m markerstore.Marker) bool {
	bmin, bmax := m.PatternBBox()
	dimMax := bmax.X - bmin.X
	if d := bmax.Y - bmin.Y; d > dimMax {
		dimMax = d
	}
	margin := dimMax / 2
	if track.Margin > margin {
		margin = track.Margin
	}
	return m.Pos.X < margin || m.Pos.Y < margin || m.Pos.X > 1-margin || m.Pos.Y > 1-margin
}

// insertNewMarker commits one per-track step result: on a
// successful track, it resolves the kernel's quad, rescales the search
// region proportionally to the change in pattern extent, and brackets the
// tracked segment with DISABLED markers; on failure it unconditionally
// inserts a DISABLED marker at the next frame, replacing any marker
// already there.
func (e *Engine) insertNewMarker(track *clipmodel.Track, oldMarker markerstore.Marker, tracked bool, dstXY coordspace.Correspondence, size coordspace.Size, dir int) {
	next := e.frame + dir

	if !tracked {
		failed := oldMarker
		failed.Frame = next
		failed.Flags |= markerstore.FlagDisabled
		track.Markers.Insert(failed)
		return
	}

	unifiedOf := func(raw coordspace.Vec2) coordspace.Vec2 {
		off := coordspace.SearchPixelToMarkerUnified(oldMarker.Pos, oldMarker.SearchMin, raw, size)
		return oldMarker.Pos.Add(off)
	}
	newCorners, newPos := coordspace.ResolveTrackedQuad(coordspace.UnpackCorrespondence(dstXY), unifiedOf)

	newMarker := oldMarker
	newMarker.Frame = next
	newMarker.Pos = newPos
	newMarker.PatternCorners = newCorners
	newMarker.SearchMin, newMarker.SearchMax = rescaleSearch(oldMarker, newCorners)
	newMarker.Flags |= markerstore.FlagTracked
	newMarker.Flags &^= markerstore.FlagDisabled
	markerstore.Clamp(&newMarker, markerstore.ClampPatternDim)

	if e.firstTime {
		insertDisabledIfAbsent(track, e.frame-dir)
	}
	track.Markers.Insert(newMarker)
	insertDisabledIfAbsent(track, next+dir)
}

// rescaleSearch scales the old search bounds by the ratio of the new
// pattern bbox extent to the old one, componentwise, so the search window
// follows the pattern as it grows or shrinks.
func rescaleSearch(old markerstore.Marker, newCorners [4]coordspace.Vec2) (coordspace.Vec2, coordspace.Vec2) {
	oldMin, oldMax := old.PatternBBox()
	oldExtent := oldMax.Sub(oldMin)

	tmp := markerstore.Marker{PatternCorners: newCorners}
	newMin, newMax := tmp.PatternBBox()
	newExtent := newMax.Sub(newMin)

	ratio := coordspace.Vec2{X: safeRatio(newExtent.X, oldExtent.X), Y: safeRatio(newExtent.Y, oldExtent.Y)}
	return old.SearchMin.Mul(ratio), old.SearchMax.Mul(ratio)
}

func safeRatio(num, denom float64) float64 {
	if denom == 0 {
		return 1
	}
	return num / denom
}

// insertDisabledIfAbsent inserts a DISABLED marker at frame, copied from the
// nearest existing marker, unless one is already present there.
func insertDisabledIfAbsent(track *clipmodel.Track, frame int) {
	if _, ok := track.Markers.GetExact(frame); ok {
		return
	}
	base, ok := track.Markers.Get(frame)
	var m markerstore.Marker
	if ok {
		m = base
	}
	m.Frame = frame
	m.Flags |= markerstore.FlagDisabled
	m.Flags &^= markerstore.FlagTracked
	track.Markers.Insert(m)
}

// ContextSync merges the engine's snapshot into liveTracks and returns the
// merged list, the rebound selected/stabilization-flagged tracks (see
// tracksmap.MergeResult), and the
// synchronized frame cursor the UI should follow. Callers must externally
// serialize this against concurrent live-data edits; the engine does not
// lock the live store itself.
func (e *Engine) ContextSync(liveTracks []*clipmodel.Track) ([]*clipmodel.Track, tracksmap.MergeResult, int) {
	merged, result := e.snapshot.Merge(liveTracks)
	return merged, result, e.frame
}

// Close releases the engine's snapshot. Reference patches held in each
// track's customdata are dropped.
func (e *Engine) Close() {
	e.snapshot.Free(func(any) {})
}

// RefineMarker performs a single-step track from marker's keyframed or
// adjacent reference frame to marker's own frame, overwriting its quad with
// the tracker result and flagging it TRACKED on success. Refuses to refine
// a marker against itself.
func RefineMarker(kernel solver.TrackerKernel, source FrameSource, track *clipmodel.Track, marker markerstore.Marker, backwards bool) (markerstore.Marker, bool) {
	dir := 1
	if backwards {
		dir = -1
	}

	var refMarker markerstore.Marker
	if track.MatchMode == clipmodel.MatchPrevFrame {
		rm, ok := track.Markers.GetExact(marker.Frame - dir)
		if !ok {
			return marker, false
		}
		refMarker = rm
	} else {
		rm, ok := findKeyframeReference(track, marker, dir)
		if !ok {
			return marker, false
		}
		refMarker = rm
	}
	if refMarker.Frame == marker.Frame {
		return marker, false
	}

	w, h := source.GetSize()
	size := coordspace.Size{W: w, H: h}

	refImg, ok := source.GetImbuf(refMarker.Frame)
	if !ok {
		return marker, false
	}
	refPatch, err := sampler.GetSearchImbuf(refImg, track, refMarker, false, false)
	if err != nil || refPatch == nil {
		return marker, false
	}

	dstImg, ok := source.GetImbuf(marker.Frame)
	if !ok {
		return marker, false
	}
	dstSearch, err := sampler.GetSearchImbuf(dstImg, track, marker, false, false)
	if err != nil || dstSearch == nil {
		return marker, false
	}

	srcXY := coordspace.PackCorrespondence(marker.PatternCorners, func(corner coordspace.Vec2) coordspace.Vec2 {
		abs := marker.Pos.Add(corner)
		v := abs.Sub(refMarker.Pos)
		return coordspace.MarkerUnifiedToSearchPixel(refMarker.Pos, refMarker.SearchMin, v, size)
	})

	opts := solver.TrackRegionOpts{
		MotionModel:      int(track.MotionModel),
		UseBrute:         track.UseBrute,
		UseNormalization: track.UseNormalization,
		MinCorrelation:   track.MinCorrelation,
	}
	ok2, dstXY, _ := kernel.TrackRegion(opts, refPatch, dstSearch, srcXY)
	if !ok2 {
		return marker, false
	}

	unifiedOf := func(raw coordspace.Vec2) coordspace.Vec2 {
		off := coordspace.SearchPixelToMarkerUnified(marker.Pos, marker.SearchMin, raw, size)
		return marker.Pos.Add(off)
	}
	newCorners, newPos := coordspace.ResolveTrackedQuad(coordspace.UnpackCorrespondence(dstXY), unifiedOf)

	refined := marker
	refined.Pos = newPos
	refined.PatternCorners = newCorners
	refined.Flags |= markerstore.FlagTracked
	refined.Flags &^= markerstore.FlagDisabled
	track.Markers.Insert(refined)
	return refined, true
}
