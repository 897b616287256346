package clipboard

import (
	"testing"

	"github.com/motioncore/tracker/internal/clipmodel"
	"github.com/motioncore/tracker/internal/markerstore"
)

func trackWithMarker(name string, frame int) *clipmodel.Track {
	t := clipmodel.NewTrack(name)
	t.Markers.Insert(markerstore.Marker{Frame: frame})
	return t
}

func TestCopyPasteDeepCopies(t *testing.T) {
	var cb Clipboard
	original := trackWithMarker("Track", 1)
	cb.Copy([]*clipmodel.Track{original})

	pasted := Paste(&cb, nil)
	if len(pasted) != 1 {
		t.Fatalf("expected 1 pasted track, got %d", len(pasted))
	}
	// mutate the pasted copy and confirm the original is untouched.
	pasted[0].Markers.Insert(markerstore.Marker{Frame: 99})
	if original.Markers.Len() != 1 {
		t.Fatalf("expected original track unaffected by paste mutation, got %d markers", original.Markers.Len())
	}
}

func TestPasteDedupesAgainstDestination(t *testing.T) {
	var cb Clipboard
	cb.Copy([]*clipmodel.Track{trackWithMarker("Track", 1)})

	dst := []*clipmodel.Track{clipmodel.NewTrack("Track")}
	pasted := Paste(&cb, dst)
	if pasted[0].Name == "Track" {
		t.Fatalf("expected pasted track renamed to avoid collision, got %q", pasted[0].Name)
	}
}

func TestPasteRepeatable(t *testing.T) {
	var cb Clipboard
	cb.Copy([]*clipmodel.Track{trackWithMarker("Track", 1)})
	first := Paste(&cb, nil)
	second := Paste(&cb, nil)
	if len(first) != 1 || len(second) != 1 {
		t.Fatal("expected paste to remain available after first call")
	}
}

func TestEmptyClipboard(t *testing.T) {
	var cb Clipboard
	if !cb.Empty() {
		t.Fatal("expected zero-value clipboard to be empty")
	}
}
