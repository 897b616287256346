// Package reconstruct drives camera/object reconstruction: it builds
// normalized 2D correspondences from enabled markers, invokes the pluggable
// bundle-adjustment solver, retrieves cameras/points/intrinsics back into
// the data model, and normalizes the result's origin and object scale.
package reconstruct

import (
	"context"
	"errors"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/motioncore/tracker/internal/clipmodel"
	"github.com/motioncore/tracker/internal/intrinsics"
	"github.com/motioncore/tracker/internal/markerstore"
	"github.com/motioncore/tracker/internal/solver"
)

// ErrNotEnoughKeyframeTracks is returned by EarlyCheck when keyframe
// auto-select is disabled and fewer than 8 tracks have enabled markers at
// both keyframes.
var ErrNotEnoughKeyframeTracks = errors.New("reconstruct: fewer than 8 tracks have enabled markers at both keyframes")

// aspy returns 1/pixel_aspect (1 if unset), the y-axis-only scale applied
// throughout this driver.
func aspy(k *intrinsics.Intrinsics) float64 {
	if k.PixelAspect == 0 {
		return 1
	}
	return 1 / k.PixelAspect
}

// IntrinsicsOpts converts a clip's intrinsics into the solver's options
// struct, applying the aspy scaling to principal-y and image height.
func IntrinsicsOpts(k *intrinsics.Intrinsics, w, h int) solver.IntrinsicsOpts {
	a := aspy(k)
	return solver.IntrinsicsOpts{
		Focal:         k.Focal,
		PrincipalX:    k.PrincipalX,
		PrincipalY:    k.PrincipalY * a,
		K1:            k.K1,
		K2:            k.K2,
		K3:            k.K3,
		SensorWidthMM: k.SensorWidthMM,
		PixelAspect:   k.PixelAspect,
		ImageWidth:    w,
		ImageHeight:   int(float64(h) * a),
	}
}

// BuildCorrespondences emits one observation per enabled marker of each
// non-hidden track, in pixel coordinates with the y axis pre-scaled by
// aspy, plus the track-index map needed to relate solver output back to
// clipmodel tracks and the enabled-marker frame range.
func BuildCorrespondences(tracks []*clipmodel.Track, k *intrinsics.Intrinsics, w, h int) (obs []solver.TrackObservation, trackIndex map[*clipmodel.Track]int, sfra, efra int) {
	a := aspy(k)
	trackIndex = make(map[*clipmodel.Track]int, len(tracks))
	first := true
	for _, t := range tracks {
		if t.Flags.Has(clipmodel.TrackHidden) {
			continue
		}
		id := len(trackIndex)
		trackIndex[t] = id
		for _, m := range t.Markers.All() {
			if m.Flags.Has(markerstore.FlagDisabled) {
				continue
			}
			x := m.Pos.X * float64(w)
			y := m.Pos.Y * float64(h) * a
			obs = append(obs, solver.TrackObservation{Frame: m.Frame, TrackID: id, X: x, Y: y})
			if first || m.Frame < sfra {
				sfra = m.Frame
			}
			if first || m.Frame > efra {
				efra = m.Frame
			}
			first = false
		}
	}
	return obs, trackIndex, sfra, efra
}

// EarlyCheck refuses the solve when keyframe auto-select is disabled and
// fewer than 8 tracks have enabled markers at both keyframe1 and keyframe2.
func EarlyCheck(tracks []*clipmodel.Track, keyframe1, keyframe2 int, autoSelect bool) error {
	if autoSelect {
		return nil
	}
	count := 0
	for _, t := range tracks {
		if t.EnabledAt(keyframe1) && t.EnabledAt(keyframe2) {
			count++
		}
	}
	if count < 8 {
		return ErrNotEnoughKeyframeTracks
	}
	return nil
}

// Solve delegates to bs, building correspondences from tracks first. The
// solve is blocking; cancellation, if supported at all, is the solver's
// own responsibility.
func Solve(ctx context.Context, bs solver.BundleSolver, tracks []*clipmodel.Track, k *intrinsics.Intrinsics, w, h int, opts solver.ReconstructionOpts, progress solver.ProgressFunc) (*solver.Reconstruction, map[*clipmodel.Track]int, error) {
	obs, trackIndex, _, _ := BuildCorrespondences(tracks, k, w, h)
	result, err := bs.SolveReconstruction(ctx, obs, IntrinsicsOpts(k, w, h), opts, progress)
	return result, trackIndex, err
}

// Finish retrieves result into target (a clip's or object's reconstruction),
// the per-track bundles of the tracks named by trackIndex, and, for the
// camera object only, writes the refined intrinsics back to k. It
// normalizes the origin to the first reconstructed camera and, for a
// non-camera object, post-multiplies every camera by scale(1/objectScale).
// Returns false, leaving target, tracks, and k untouched, when result is
// nil, so an overall solver failure leaves the prior reconstruction intact.
func Finish(result *solver.Reconstruction, target *clipmodel.Reconstruction, tracks []*clipmodel.Track, trackIndex map[*clipmodel.Track]int, k *intrinsics.Intrinsics, isCamera bool, objectScale float64) bool {
	if result == nil {
		return false
	}

	if isCamera {
		a := aspy(k)
		k.Focal = result.Intrinsics.Focal
		k.PrincipalX = result.Intrinsics.PrincipalX
		if a != 0 {
			k.PrincipalY = result.Intrinsics.PrincipalY / a
		}
		k.K1, k.K2, k.K3 = result.Intrinsics.K1, result.Intrinsics.K2, result.Intrinsics.K3
	}

	cameras := append([]solver.SolvedCamera(nil), result.Cameras...)
	sort.Slice(cameras, func(i, j int) bool { return cameras[i].Frame < cameras[j].Frame })

	points := make(map[int]solver.SolvedPoint, len(result.Points))
	for _, p := range result.Points {
		points[p.TrackID] = p
	}

	for t, id := range trackIndex {
		p, ok := points[id]
		if !ok {
			t.SetHasBundle(false)
			continue
		}
		t.BundlePos = p.XYZ
		t.Error = p.Error
		t.SetHasBundle(true)
	}

	if len(cameras) == 0 {
		target.SetCameras(nil)
		return true
	}

	origin := cameras[0].Pose
	originInv, ok := invertPose(origin)
	if !ok {
		originInv = clipmodel.IdentityPose()
	}

	scaleMat := clipmodel.IdentityPose()
	if !isCamera && objectScale != 0 {
		s := 1 / objectScale
		scaleMat = scalePose(s)
	}

	normalized := make([]clipmodel.Camera, len(cameras))
	for i, c := range cameras {
		pose := multiplyPose(originInv, c.Pose)
		if !isCamera {
			pose = multiplyPose(pose, scaleMat)
		}
		normalized[i] = clipmodel.Camera{Frame: c.Frame, Pose: pose, Error: c.Error}
	}
	target.SetCameras(normalized)
	target.Error = result.OverallError

	for _, t := range tracks {
		if !t.HasBundle() {
			continue
		}
		t.BundlePos = applyPoseToPoint(originInv, t.BundlePos)
	}

	return true
}

// InterpolateCamera returns the camera pose for frame, blending linearly
// between the two nearest known camera frames when frame falls strictly
// between them, and clamping to the nearest known camera otherwise (no
// extrapolation past the solved range).
func InterpolateCamera(cameras []clipmodel.Camera, frame int) (clipmodel.Camera, bool) {
	if len(cameras) == 0 {
		return clipmodel.Camera{}, false
	}
	if frame <= cameras[0].Frame {
		return cameras[0], true
	}
	if frame >= cameras[len(cameras)-1].Frame {
		return cameras[len(cameras)-1], true
	}
	for i := 0; i+1 < len(cameras); i++ {
		a, b := cameras[i], cameras[i+1]
		if frame >= a.Frame && frame <= b.Frame {
			if a.Frame == b.Frame {
				return a, true
			}
			t := float64(frame-a.Frame) / float64(b.Frame-a.Frame)
			return clipmodel.Camera{Frame: frame, Pose: lerpPose(a.Pose, b.Pose, t), Error: a.Error + (b.Error-a.Error)*t}, true
		}
	}
	return clipmodel.Camera{}, false
}

func lerpPose(a, b [16]float64, t float64) [16]float64 {
	var out [16]float64
	for i := range out {
		out[i] = a[i] + (b[i]-a[i])*t
	}
	return out
}

func poseToMat(p [16]float64) *mat.Dense {
	return mat.NewDense(4, 4, p[:])
}

func matToPose(m *mat.Dense) [16]float64 {
	var out [16]float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[r*4+c] = m.At(r, c)
		}
	}
	return out
}

func invertPose(p [16]float64) ([16]float64, bool) {
	m := poseToMat(p)
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return clipmodel.IdentityPose(), false
	}
	return matToPose(&inv), true
}

func multiplyPose(a, b [16]float64) [16]float64 {
	ma, mb := poseToMat(a), poseToMat(b)
	var out mat.Dense
	out.Mul(ma, mb)
	return matToPose(&out)
}

func scalePose(s float64) [16]float64 {
	return [16]float64{
		s, 0, 0, 0,
		0, s, 0, 0,
		0, 0, s, 0,
		0, 0, 0, 1,
	}
}

func applyPoseToPoint(pose [16]float64, p [3]float64) [3]float64 {
	return [3]float64{
		pose[0]*p[0] + pose[1]*p[1] + pose[2]*p[2] + pose[3],
		pose[4]*p[0] + pose[5]*p[1] + pose[6]*p[2] + pose[7],
		pose[8]*p[0] + pose[9]*p[1] + pose[10]*p[2] + pose[11],
	}
}
