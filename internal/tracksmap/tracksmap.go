// Package tracksmap implements the snapshot container for long-running
// operations: a detached, deep-copied set of tracks used while a job (the
// tracking engine's per-frame step loop) may run off-thread while the user
// continues editing the live clip, plus the merge-back that reconciles the
// snapshot with whatever the user changed meanwhile.
package tracksmap

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/motioncore/tracker/internal/clipmodel"
	"github.com/motioncore/tracker/internal/markerstore"
)

// SnapshotID tags a TracksMap for diagnostic/correlation purposes (e.g. log
// lines spanning the off-thread step loop and the merge-back).
type SnapshotID string

// entry pairs a deep-copied snapshot track with the live original it was
// copied from and the caller's per-track customdata.
type entry struct {
	snapshot *clipmodel.Track
	original *clipmodel.Track
	data     any
}

// TracksMap is a snapshot of selected live tracks, with a hash from
// snapshot track back to the live original it was copied from.
type TracksMap struct {
	ID          SnapshotID
	OwnerName   string
	OwnerCamera bool

	entries []entry
}

// New returns an empty snapshot for the given owner object.
func New(ownerName string, ownerIsCamera bool) *TracksMap {
	return &TracksMap{ID: SnapshotID(uuid.NewString()), OwnerName: ownerName, OwnerCamera: ownerIsCamera}
}

// Insert deep-copies track into the next slot, recording customdata and the
// original->snapshot association.
func (tm *TracksMap) Insert(original *clipmodel.Track, customdata any) *clipmodel.Track {
	snap := deepCopyTrack(original)
	tm.entries = append(tm.entries, entry{snapshot: snap, original: original, data: customdata})
	return snap
}

// Len returns the number of snapshot tracks.
func (tm *TracksMap) Len() int { return len(tm.entries) }

// Snapshot returns the i-th snapshot track.
func (tm *TracksMap) Snapshot(i int) *clipmodel.Track { return tm.entries[i].snapshot }

// CustomData returns the i-th slot's customdata.
func (tm *TracksMap) CustomData(i int) any { return tm.entries[i].data }

// OriginalOf returns the live track a snapshot track was copied from, or
// nil if snap is not one of this map's snapshots.
func (tm *TracksMap) OriginalOf(snap *clipmodel.Track) *clipmodel.Track {
	for _, e := range tm.entries {
		if e.snapshot == snap {
			return e.original
		}
	}
	return nil
}

// MergeResult reports in-list replacements for flagged originals that the
// merge dropped, so the caller can re-bind pointers it held to them. Merge
// does not see the caller's own active-track or rotation-track pointers;
// both fields are chosen from the originals' flags alone.
type MergeResult struct {
	// ReboundActive is the in-list replacement for the last original track,
	// in snapshot order, flagged TrackSelect at merge time, or nil if none was.
	ReboundActive *clipmodel.Track
	// ReboundStabilization is the in-list replacement for the last original
	// track, in snapshot order, flagged TrackUse2DStab, or nil if none was.
	// It is not necessarily the clip's StabilizationConfig.RotTrack.
	ReboundStabilization *clipmodel.Track
}

// Merge reconciles the snapshot against liveTracks: for each snapshot track
// whose original is still present in liveTracks, the original's selection
// and per-area flags are stolen onto the snapshot, the original is dropped,
// and the snapshot takes its place; any original not represented in the
// snapshot is preserved untouched. Names are deduplicated across the
// recombined set.
func (tm *TracksMap) Merge(liveTracks []*clipmodel.Track) ([]*clipmodel.Track, MergeResult) {
	var result MergeResult

	originalIndex := make(map[*clipmodel.Track]int, len(liveTracks))
	for i, t := range liveTracks {
		originalIndex[t] = i
	}

	replaced := make(map[int]bool, len(tm.entries))
	merged := make([]*clipmodel.Track, 0, len(liveTracks))

	for _, e := range tm.entries {
		if idx, ok := originalIndex[e.original]; ok {
			original := liveTracks[idx]
			e.snapshot.Flags |= original.Flags & (clipmodel.TrackSelect | clipmodel.TrackPatFlag | clipmodel.TrackSearchFlag)
			if original.Flags.Has(clipmodel.TrackSelect) {
				result.ReboundActive = e.snapshot
			}
			if original.Flags.Has(clipmodel.TrackUse2DStab) {
				result.ReboundStabilization = e.snapshot
			}
			replaced[idx] = true
		}
		merged = append(merged, e.snapshot)
	}

	for i, t := range liveTracks {
		if !replaced[i] {
			merged = append(merged, t)
		}
	}

	dedupeNames(merged)
	return merged, result
}

// Free invokes freeFn on every slot's customdata. After Free the map must
// not be used again.
func (tm *TracksMap) Free(freeFn func(any)) {
	if freeFn != nil {
		for _, e := range tm.entries {
			freeFn(e.data)
		}
	}
	tm.entries = nil
}

func deepCopyTrack(t *clipmodel.Track) *clipmodel.Track {
	cp := *t
	cp.Markers = markerstore.NewStore()
	for _, m := range t.Markers.All() {
		cp.Markers.Insert(m.Clone())
	}
	return &cp
}

func dedupeNames(tracks []*clipmodel.Track) {
	seen := make(map[string]bool, len(tracks))
	for _, t := range tracks {
		if !seen[t.Name] {
			seen[t.Name] = true
			continue
		}
		for n := 1; ; n++ {
			candidate := fmt.Sprintf("%s.%03d", t.Name, n)
			if !seen[candidate] {
				t.Name = candidate
				seen[candidate] = true
				break
			}
		}
	}
}
