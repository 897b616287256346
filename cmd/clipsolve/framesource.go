package main

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"

	"github.com/motioncore/tracker/internal/imaging"
)

// dirFrameSource implements tracking.FrameSource over a directory of PNG/
// JPEG frame images named so that lexical order matches clip-frame order
// (e.g. "0001.png", "0002.png", ...). Frame 1 is the first file in that
// order. Image decoding stays outside the engine behind the FrameSource
// contract; this adapter is the CLI's own concern, using only the standard
// library's image/png and image/jpeg decoders.
type dirFrameSource struct {
	files []string
	w, h  int
}

func newDirFrameSource(dir string) (*dirFrameSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame directory %q: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".png" || ext == ".jpg" || ext == ".jpeg" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("no .png/.jpg frames found in %q", dir)
	}

	first, err := decodeImage(files[0])
	if err != nil {
		return nil, err
	}
	b := first.Bounds()
	return &dirFrameSource{files: files, w: b.Dx(), h: b.Dy()}, nil
}

func (d *dirFrameSource) GetSize() (w, h int) { return d.w, d.h }

// FrameCount returns the number of frames available, 1-indexed.
func (d *dirFrameSource) FrameCount() int { return len(d.files) }

// GetImbuf returns the 1-indexed frame's image as a 3-channel float buffer
// in [0,1], or false if frame is out of range or fails to decode; a missing
// frame is a skip condition for callers, not a fatal error.
func (d *dirFrameSource) GetImbuf(frame int) (*imaging.Buffer, bool) {
	if frame < 1 || frame > len(d.files) {
		return nil, false
	}
	img, err := decodeImage(d.files[frame-1])
	if err != nil {
		return nil, false
	}
	return imaging.FromImage(img), true
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", path, err)
	}
	return img, nil
}
