// Package clipboard implements detached track-list copy/paste: a
// copy-selected operation that snapshots tracks into an owned list, and a
// paste-into-object operation that hands deep copies over to a destination
// track list.
//
// Rather than process-wide global state, Clipboard is a plain value the
// calling session owns and may share across goroutines via its own mutex.
package clipboard

import (
	"sync"

	"github.com/motioncore/tracker/internal/clipmodel"
	"github.com/motioncore/tracker/internal/markerstore"
)

// Clipboard holds a detached copy of previously selected tracks. The zero
// value is an empty, ready-to-use clipboard.
type Clipboard struct {
	mu     sync.Mutex
	tracks []*clipmodel.Track
}

// Copy replaces the clipboard contents with deep copies of selected.
func (c *Clipboard) Copy(selected []*clipmodel.Track) {
	copies := make([]*clipmodel.Track, len(selected))
	for i, t := range selected {
		copies[i] = deepCopyTrack(t)
	}
	c.mu.Lock()
	c.tracks = copies
	c.mu.Unlock()
}

// Empty reports whether the clipboard holds no tracks.
func (c *Clipboard) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tracks) == 0
}

// Paste returns fresh deep copies of the clipboard's tracks, each renamed
// to avoid colliding with a name already present in dstTracks, so names
// stay pairwise distinct after paste. The clipboard retains its own
// copies, so Paste may be called repeatedly.
func Paste(c *Clipboard, dstTracks []*clipmodel.Track) []*clipmodel.Track {
	c.mu.Lock()
	src := make([]*clipmodel.Track, len(c.tracks))
	for i, t := range c.tracks {
		src[i] = deepCopyTrack(t)
	}
	c.mu.Unlock()

	existing := make(map[string]bool, len(dstTracks))
	for _, t := range dstTracks {
		existing[t.Name] = true
	}

	out := make([]*clipmodel.Track, 0, len(src))
	for _, t := range src {
		t.Name = dedupName(t.Name, existing)
		existing[t.Name] = true
		out = append(out, t)
	}
	return out
}

func dedupName(base string, existing map[string]bool) string {
	if !existing[base] {
		return base
	}
	for n := 1; ; n++ {
		candidate := nameWithSuffix(base, n)
		if !existing[candidate] {
			return candidate
		}
	}
}

func nameWithSuffix(base string, n int) string {
	const digits = "0123456789"
	suf := make([]byte, 3)
	for i := 2; i >= 0; i-- {
		suf[i] = digits[n%10]
		n /= 10
	}
	return base + "." + string(suf)
}

func deepCopyTrack(t *clipmodel.Track) *clipmodel.Track {
	cp := *t
	cp.Markers = markerstore.NewStore()
	for _, m := range t.Markers.All() {
		cp.Markers.Insert(m.Clone())
	}
	return &cp
}
