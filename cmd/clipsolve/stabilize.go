package main

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	"github.com/motioncore/tracker/internal/clipmodel"
	"github.com/motioncore/tracker/internal/imaging"
	"github.com/motioncore/tracker/internal/stabilize"
)

// runStabilization autoscales and warps every frame in source against
// clip.Stabilization, writing each stabilized frame as a PNG into outDir
// named after the source file it came from, with a .png extension. The reference frame is
// always frame 1, matching the reconstruction's own keyframe-1 anchor.
func runStabilization(clip *clipmodel.Clip, tracks []*clipmodel.Track, source *dirFrameSource, pixelAspect float64, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("stabilize output dir: %w", err)
	}

	n := source.FrameCount()
	stabilize.Autoscale(tracks, source.w, source.h, 1, n, clip.Stabilization)

	for frame := 1; frame <= n; frame++ {
		buf, ok := source.GetImbuf(frame)
		if !ok {
			continue
		}
		out, _ := stabilize.StabilizeFrame(buf, frame, 1, tracks, clip.Stabilization, pixelAspect)

		name := filepath.Base(source.files[frame-1])
		ext := filepath.Ext(name)
		outPath := filepath.Join(outDir, name[:len(name)-len(ext)]+".png")
		if err := writePNG(outPath, out); err != nil {
			return fmt.Errorf("write stabilized frame %d: %w", frame, err)
		}
	}
	return nil
}

func writePNG(path string, buf *imaging.Buffer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, buf.ToNRGBA())
}
