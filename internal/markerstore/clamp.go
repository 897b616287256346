package markerstore

// ClampEvent selects which invariant-restoring adjustment Clamp performs.
type ClampEvent int

const (
	// ClampPatternDim expands the search region to contain the pattern bbox.
	ClampPatternDim ClampEvent = iota
	// ClampSearchDim re-applies the same containment (idempotent w.r.t. ClampPatternDim).
	ClampSearchDim
	// ClampPatternPos translates all four pattern corners to reseat the
	// pattern bbox inside the search region, accumulating the per-side
	// shifts on each axis.
	ClampPatternPos
	// ClampSearchPos translates search_min/search_max (preserving their
	// dimensions) to contain the pattern bbox.
	ClampSearchPos
)

// Clamp enforces search ⊇ pattern_bbox: after ClampPatternDim,
// SearchMin <= patternBBoxMin and SearchMax >= patternBBoxMax componentwise,
// and the operation is idempotent.
func Clamp(m *Marker, event ClampEvent) {
	patMin, patMax := m.PatternBBox()

	switch event {
	case ClampPatternDim, ClampSearchDim:
		if m.SearchMin.X > patMin.X {
			m.SearchMin.X = patMin.X
		}
		if m.SearchMin.Y > patMin.Y {
			m.SearchMin.Y = patMin.Y
		}
		if m.SearchMax.X < patMax.X {
			m.SearchMax.X = patMax.X
		}
		if m.SearchMax.Y < patMax.Y {
			m.SearchMax.Y = patMax.Y
		}

	case ClampPatternPos:
		var shift Vec2
		if patMin.X < m.SearchMin.X {
			shift.X += m.SearchMin.X - patMin.X
		}
		if patMax.X > m.SearchMax.X {
			shift.X += m.SearchMax.X - patMax.X
		}
		if patMin.Y < m.SearchMin.Y {
			shift.Y += m.SearchMin.Y - patMin.Y
		}
		if patMax.Y > m.SearchMax.Y {
			shift.Y += m.SearchMax.Y - patMax.Y
		}
		if shift != (Vec2{}) {
			for i := range m.PatternCorners {
				m.PatternCorners[i] = m.PatternCorners[i].Add(shift)
			}
		}

	case ClampSearchPos:
		width := m.SearchMax.X - m.SearchMin.X
		height := m.SearchMax.Y - m.SearchMin.Y
		if m.SearchMin.X > patMin.X {
			m.SearchMin.X = patMin.X
			m.SearchMax.X = m.SearchMin.X + width
		}
		if m.SearchMax.X < patMax.X {
			m.SearchMax.X = patMax.X
			m.SearchMin.X = m.SearchMax.X - width
		}
		if m.SearchMin.Y > patMin.Y {
			m.SearchMin.Y = patMin.Y
			m.SearchMax.Y = m.SearchMin.Y + height
		}
		if m.SearchMax.Y < patMax.Y {
			m.SearchMax.Y = patMax.Y
			m.SearchMin.Y = m.SearchMax.Y - height
		}
	}
}
