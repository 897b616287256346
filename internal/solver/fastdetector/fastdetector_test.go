package fastdetector

import (
	"testing"

	"github.com/motioncore/tracker/internal/imaging"
)

// checkerCorner builds a frame that is dark except for a bright square whose
// top-left corner sits at (cx,cy), giving a strong corner response there.
func checkerCorner(w, h, cx, cy int) *imaging.Buffer {
	b := imaging.NewBuffer(w, h, 1)
	for y := cy; y < h; y++ {
		for x := cx; x < w; x++ {
			b.Set(x, y, 0, 1)
		}
	}
	return b
}

func TestDetectFeaturesFindsCorner(t *testing.T) {
	frame := checkerCorner(40, 40, 20, 20)
	features := Detector{}.DetectFeatures(frame, 4, 1e-6, 0)
	if len(features) == 0 {
		t.Fatal("expected at least one feature on a strong corner")
	}
	best := features[0]
	if dx, dy := best.X-20, best.Y-20; dx < -2 || dx > 2 || dy < -2 || dy > 2 {
		t.Fatalf("expected strongest feature near (20,20), got (%v,%v)", best.X, best.Y)
	}
}

func TestDetectFeaturesRespectsMargin(t *testing.T) {
	frame := checkerCorner(40, 40, 5, 5) // corner inside the excluded border
	features := Detector{}.DetectFeatures(frame, 10, 1e-6, 0)
	for _, f := range features {
		if f.X < 10 || f.Y < 10 || f.X >= 30 || f.Y >= 30 {
			t.Fatalf("feature (%v,%v) violates the 10px margin", f.X, f.Y)
		}
	}
}

func TestDetectFeaturesMinDistanceSpacing(t *testing.T) {
	b := imaging.NewBuffer(60, 60, 1)
	// two bright squares -> clusters of corners
	for y := 10; y < 20; y++ {
		for x := 10; x < 20; x++ {
			b.Set(x, y, 0, 1)
		}
	}
	for y := 35; y < 45; y++ {
		for x := 35; x < 45; x++ {
			b.Set(x, y, 0, 1)
		}
	}
	features := Detector{}.DetectFeatures(b, 4, 1e-6, 8)
	for i := range features {
		for j := i + 1; j < len(features); j++ {
			dx := features[i].X - features[j].X
			dy := features[i].Y - features[j].Y
			if dx*dx+dy*dy < 64 {
				t.Fatalf("features %d and %d closer than min distance", i, j)
			}
		}
	}
}

func TestDetectFeaturesEmptyOnFlatFrame(t *testing.T) {
	flat := imaging.NewBuffer(40, 40, 1)
	if features := (Detector{}).DetectFeatures(flat, 4, 1e-6, 0); len(features) != 0 {
		t.Fatalf("expected no features on a flat frame, got %d", len(features))
	}
}
