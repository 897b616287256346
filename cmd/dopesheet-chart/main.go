// Command dopesheet-chart renders a clip's dopesheet, per-track segment
// coverage and the overall coverage-class timeline, to PNG charts using
// gonum/plot.
package main

import (
	"flag"
	"fmt"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/motioncore/tracker/internal/config"
	"github.com/motioncore/tracker/internal/dopesheet"
	"github.com/motioncore/tracker/internal/monitoring"
	"github.com/motioncore/tracker/internal/store"
)

func main() {
	dbPath := flag.String("db", "", "path to the clip's SQLite database")
	clipID := flag.Int64("clip", 1, "clip row id to chart")
	outDir := flag.String("out", ".", "output directory for the PNG charts")
	showHidden := flag.Bool("show-hidden", false, "include HIDDEN tracks as channels")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "dopesheet-chart: -db is required")
		os.Exit(2)
	}

	if err := run(*dbPath, *clipID, *outDir, *showHidden); err != nil {
		monitoring.Logf("dopesheet-chart: %v", err)
		os.Exit(1)
	}
}

func run(dbPath string, clipID int64, outDir string, showHidden bool) error {
	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	if err := db.MigrateUp(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	defaults := config.MustLoadDefaultClipDefaults()
	clip, err := db.LoadClip(clipID, defaults)
	if err != nil {
		return fmt.Errorf("load clip %d: %w", clipID, err)
	}

	sheet := &dopesheet.Sheet{}
	sheet.Update(clip.ActiveTracks(), false, showHidden)
	sheet.Sort(dopesheet.SortName, false)

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("mkdir %q: %w", outDir, err)
	}

	if err := plotChannels(sheet, outDir); err != nil {
		return fmt.Errorf("plot channels: %w", err)
	}
	if err := plotCoverage(sheet, outDir); err != nil {
		return fmt.Errorf("plot coverage: %w", err)
	}

	monitoring.Logf("dopesheet-chart: wrote charts for clip %d (%d channels) to %s", clipID, len(sheet.Channels), outDir)
	return nil
}

// plotChannels renders one horizontal line per track spanning its enabled
// segments, at y = channel index, so gaps in tracking are visible as breaks.
func plotChannels(sheet *dopesheet.Sheet, outDir string) error {
	p := plot.New()
	p.Title.Text = "Dopesheet channels"
	p.X.Label.Text = "frame"
	p.Y.Label.Text = "channel"

	for i, ch := range sheet.Channels {
		for _, seg := range ch.Segments {
			pts := plotter.XYs{
				{X: float64(seg.Start), Y: float64(i)},
				{X: float64(seg.End - 1), Y: float64(i)},
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return err
			}
			line.Width = vg.Points(3)
			p.Add(line)
		}
	}

	return p.Save(14*vg.Inch, 6*vg.Inch, fmt.Sprintf("%s/channels.png", outDir))
}

// plotCoverage renders the per-frame coverage class (0=BAD, 1=ACCEPTABLE,
// 2=OK) as a step line over the coverage segments.
func plotCoverage(sheet *dopesheet.Sheet, outDir string) error {
	p := plot.New()
	p.Title.Text = "Dopesheet coverage"
	p.X.Label.Text = "frame"
	p.Y.Label.Text = "class (0=bad, 1=acceptable, 2=ok)"

	pts := make(plotter.XYs, 0, len(sheet.Coverage)*2)
	for _, seg := range sheet.Coverage {
		pts = append(pts, plotter.XY{X: float64(seg.Start), Y: float64(seg.Class)})
		pts = append(pts, plotter.XY{X: float64(seg.End), Y: float64(seg.Class)})
	}
	if len(pts) == 0 {
		pts = append(pts, plotter.XY{X: 0, Y: 0})
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Width = vg.Points(2)
	p.Add(line)

	return p.Save(14*vg.Inch, 4*vg.Inch, fmt.Sprintf("%s/coverage.png", outDir))
}
