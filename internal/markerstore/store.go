package markerstore

// Store is the sorted marker array for a single track, plus the
// last-marker-index cursor hint used for O(1) amortized lookup when frames
// are queried monotonically.
//
// Invariants: markers is strictly ascending by Frame;
// lastIndex < len(markers) whenever len(markers) > 0.
type Store struct {
	markers   []Marker
	lastIndex int
}

// NewStore returns an empty marker store.
func NewStore() *Store {
	return &Store{}
}

// Len returns the number of markers.
func (s *Store) Len() int { return len(s.markers) }

// All returns the markers in frame order. The returned slice must not be
// mutated by the caller; use the Store's methods to modify markers.
func (s *Store) All() []Marker { return s.markers }

// clampIndex keeps lastIndex within bounds after any mutation.
func (s *Store) clampIndex() {
	if len(s.markers) == 0 {
		s.lastIndex = 0
		return
	}
	if s.lastIndex >= len(s.markers) {
		s.lastIndex = len(s.markers) - 1
	}
	if s.lastIndex < 0 {
		s.lastIndex = 0
	}
}

// indexAtOrBefore returns the index of the marker with the largest Frame
// <= frame, or -1 if every marker's Frame > frame (i.e. frame precedes the
// whole track). It scans from the lastIndex hint, which makes a sequence of
// monotonically increasing queries amortized O(1) per call.
func (s *Store) indexAtOrBefore(frame int) int {
	n := len(s.markers)
	if n == 0 {
		return -1
	}
	s.clampIndex()
	i := s.lastIndex
	if s.markers[i].Frame <= frame {
		for i+1 < n && s.markers[i+1].Frame <= frame {
			i++
		}
	} else {
		for i > 0 && s.markers[i].Frame > frame {
			i--
		}
		if s.markers[i].Frame > frame {
			return -1
		}
	}
	s.lastIndex = i
	return i
}

// Get returns the marker with Frame == frame if present; otherwise the
// nearest marker with Frame <= frame, or the first marker if frame precedes
// the whole track. Never returns ok=false if the track has >= 1 marker.
func (s *Store) Get(frame int) (Marker, bool) {
	if len(s.markers) == 0 {
		return Marker{}, false
	}
	idx := s.indexAtOrBefore(frame)
	if idx < 0 {
		return s.markers[0], true
	}
	return s.markers[idx], true
}

// GetExact returns the marker at exactly frame, if one exists.
func (s *Store) GetExact(frame int) (Marker, bool) {
	m, ok := s.Get(frame)
	if !ok || m.Frame != frame {
		return Marker{}, false
	}
	return m, true
}

// Ensure returns the existing marker at frame, inserting a copy of Get(frame)
// with Frame replaced by frame if none exists yet.
func (s *Store) Ensure(frame int) Marker {
	if m, ok := s.GetExact(frame); ok {
		return m
	}
	base, ok := s.Get(frame)
	var m Marker
	if ok {
		m = base
	}
	m.Frame = frame
	s.Insert(m)
	return m
}

// Insert replaces the marker at m.Frame if one exists, otherwise inserts m
// maintaining ascending sort order.
func (s *Store) Insert(m Marker) {
	n := len(s.markers)
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if s.markers[mid].Frame < m.Frame {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < n && s.markers[lo].Frame == m.Frame {
		s.markers[lo] = m
		s.lastIndex = lo
		return
	}
	s.markers = append(s.markers, Marker{})
	copy(s.markers[lo+1:], s.markers[lo:])
	s.markers[lo] = m
	s.lastIndex = lo
	s.clampIndex()
}

// Delete removes the marker at frame, if present. Returns true if a marker
// was removed.
func (s *Store) Delete(frame int) bool {
	for i, m := range s.markers {
		if m.Frame == frame {
			s.markers = append(s.markers[:i], s.markers[i+1:]...)
			if len(s.markers) == 0 {
				s.markers = nil
			}
			s.clampIndex()
			return true
		}
	}
	return false
}

// ClearPath truncates or collapses the marker array around ref per action,
// then bounds the surviving segment on each truncated side with a DISABLED
// marker (only where no marker is already present at that frame).
func (s *Store) ClearPath(ref int, action ClearAction) {
	if len(s.markers) == 0 {
		return
	}
	switch action {
	case ClearRemained:
		// keep everything at or before ref (always at least the first marker)
		n := 1
		for n < len(s.markers) && s.markers[n].Frame <= ref {
			n++
		}
		s.markers = s.markers[:n]
		s.clampIndex()
		s.bracketDisabled(s.markers[len(s.markers)-1], +1)
	case ClearUpto:
		// keep everything from the last marker at or before ref onward
		a := len(s.markers) - 1
		for a > 0 && s.markers[a].Frame > ref {
			a--
		}
		s.markers = s.markers[a:]
		s.clampIndex()
		s.bracketDisabled(s.markers[0], -1)
	case ClearAll:
		var m Marker
		if got, ok := s.Get(ref); ok {
			m = got
		}
		m.Frame = ref
		s.markers = []Marker{m}
		s.lastIndex = 0
		s.bracketDisabled(m, -1)
		s.bracketDisabled(m, +1)
	}
}

// bracketDisabled inserts a DISABLED copy of ref at ref.Frame+delta, unless
// a marker is already present at that frame.
func (s *Store) bracketDisabled(ref Marker, delta int) {
	frame := ref.Frame + delta
	if _, ok := s.GetExact(frame); ok {
		return
	}
	m := ref
	m.Frame = frame
	m.Flags |= FlagDisabled
	m.Flags &^= FlagTracked
	s.Insert(m)
}

// SubframePosition linearly interpolates the marker position for a
// non-integer frame f, but only when markers exist at both of the
// surrounding consecutive integer frames; otherwise it returns the left
// neighbor's position. The result has the track offset added.
func (s *Store) SubframePosition(f float64, trackOffset Vec2) (Vec2, bool) {
	if len(s.markers) == 0 {
		return Vec2{}, false
	}
	lo := int(f)
	if float64(lo) > f {
		lo--
	}
	hi := lo + 1
	frac := f - float64(lo)
	if frac == 0 {
		m, ok := s.Get(lo)
		if !ok {
			return Vec2{}, false
		}
		return m.Pos.Add(trackOffset), true
	}
	a, aok := s.GetExact(lo)
	b, bok := s.GetExact(hi)
	if aok && bok {
		interp := Vec2{
			X: a.Pos.X + (b.Pos.X-a.Pos.X)*frac,
			Y: a.Pos.Y + (b.Pos.Y-a.Pos.Y)*frac,
		}
		return interp.Add(trackOffset), true
	}
	left, ok := s.Get(lo)
	if !ok {
		return Vec2{}, false
	}
	return left.Pos.Add(trackOffset), true
}
