// Package store persists a clipmodel.Clip to SQLite: camera intrinsics and
// stabilization settings on the clip row, one row per object, one row per
// track, one row per marker, and one row per solved camera pose. Schema
// migrations are embedded and applied with golang-migrate through its iofs
// source and sqlite database driver.
package store

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/motioncore/tracker/internal/clipmodel"
	"github.com/motioncore/tracker/internal/config"
	"github.com/motioncore/tracker/internal/intrinsics"
	"github.com/motioncore/tracker/internal/markerstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a SQLite connection holding the clip schema.
type DB struct {
	*sql.DB
}

// Open opens (creating if absent) a SQLite database at path and enables the
// pragmas this schema's foreign-key cascades depend on.
func Open(path string) (*DB, error) {
	if path == ":memory:" {
		// Plain ":memory:" gives each pooled connection its own private
		// database; share the cache so all connections see the same schema.
		path = "file::memory:?cache=shared"
	}
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	if _, err := sqlDB.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}
	return &DB{sqlDB}, nil
}

// MigrateUp applies every pending migration.
func (db *DB) MigrateUp() error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: sub filesystem: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("store: iofs source: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("store: sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("store: migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SaveClip persists clip under id, replacing any prior contents for that id
// (objects/tracks/markers/cameras cascade-delete on the clip row). name is
// stored alongside for the caller's own bookkeeping; this package does not
// interpret it.
func (db *DB) SaveClip(id int64, name string, clip *clipmodel.Clip, w, h int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM clip WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: clear prior clip: %w", err)
	}

	k := clip.Intrinsics
	stab := clip.Stabilization
	var rotTrackID sql.NullInt64 // resolved once the rotation track's own row exists, see below

	if _, err := tx.Exec(`
		INSERT INTO clip (
			id, name, frame_width, frame_height, start_frame,
			focal, principal_x, principal_y, k1, k2, k3, sensor_width_mm, pixel_aspect,
			stab_flags, stab_loc_inf, stab_scale_inf, stab_rot_inf, stab_max_scale, stab_scale, stab_filter
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, name, w, h, clip.StartFrame,
		k.Focal, k.PrincipalX, k.PrincipalY, k.K1, k.K2, k.K3, k.SensorWidthMM, k.PixelAspect,
		int(stab.Flags), stab.LocInf, stab.ScaleInf, stab.RotInf, stab.MaxScale, stab.Scale, int(stab.Filter),
	); err != nil {
		return fmt.Errorf("store: insert clip: %w", err)
	}

	trackRowID := make(map[*clipmodel.Track]int64)

	for oi, o := range clip.Objects {
		recon := clip.Recon
		tracks := clip.Tracks
		if !o.IsCamera() {
			recon = o.Reconstruction()
			tracks = o.Tracks()
		}
		var reconError float64
		var reconFlags clipmodel.ReconstructionFlags
		if recon != nil {
			reconError = recon.Error
			reconFlags = recon.Flags
		}

		res, err := tx.Exec(`
			INSERT INTO object (clip_id, ordinal, name, flags, scale, keyframe1, keyframe2, recon_error, recon_flags)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, oi, o.Name, int(o.Flags), o.Scale, o.Keyframe1, o.Keyframe2, reconError, int(reconFlags),
		)
		if err != nil {
			return fmt.Errorf("store: insert object %q: %w", o.Name, err)
		}
		objectID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("store: object %q insert id: %w", o.Name, err)
		}

		for _, t := range tracks {
			tres, err := tx.Exec(`
				INSERT INTO track (
					object_id, name, motion_model, min_correlation, match_mode,
					use_brute, use_normalization, use_mask, margin,
					offset_x, offset_y, flags, bundle_x, bundle_y, bundle_z, bundle_error
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				objectID, t.Name, int(t.MotionModel), t.MinCorrelation, int(t.MatchMode),
				boolToInt(t.UseBrute), boolToInt(t.UseNormalization), boolToInt(t.UseMask), t.Margin,
				t.Offset.X, t.Offset.Y, int(t.Flags), t.BundlePos[0], t.BundlePos[1], t.BundlePos[2], t.Error,
			)
			if err != nil {
				return fmt.Errorf("store: insert track %q: %w", t.Name, err)
			}
			trackID, err := tres.LastInsertId()
			if err != nil {
				return fmt.Errorf("store: track %q insert id: %w", t.Name, err)
			}
			trackRowID[t] = trackID

			if t == stab.RotTrack {
				rotTrackID = sql.NullInt64{Int64: trackID, Valid: true}
			}

			for _, m := range t.Markers.All() {
				corners, err := json.Marshal(m.PatternCorners)
				if err != nil {
					return fmt.Errorf("store: marshal pattern corners: %w", err)
				}
				if _, err := tx.Exec(`
					INSERT INTO marker (
						track_id, frame, pos_x, pos_y, pattern_corners_json,
						search_min_x, search_min_y, search_max_x, search_max_y, flags
					) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
					trackID, m.Frame, m.Pos.X, m.Pos.Y, string(corners),
					m.SearchMin.X, m.SearchMin.Y, m.SearchMax.X, m.SearchMax.Y, int(m.Flags),
				); err != nil {
					return fmt.Errorf("store: insert marker track=%q frame=%d: %w", t.Name, m.Frame, err)
				}
			}
		}

		if recon != nil {
			for _, c := range recon.Cameras {
				pose, err := json.Marshal(c.Pose)
				if err != nil {
					return fmt.Errorf("store: marshal pose: %w", err)
				}
				if _, err := tx.Exec(`
					INSERT INTO camera (object_id, frame, pose_json, error) VALUES (?, ?, ?, ?)`,
					objectID, c.Frame, string(pose), c.Error,
				); err != nil {
					return fmt.Errorf("store: insert camera frame=%d: %w", c.Frame, err)
				}
			}
		}
	}

	if rotTrackID.Valid {
		if _, err := tx.Exec(`UPDATE clip SET stab_rot_track_id = ? WHERE id = ?`, rotTrackID.Int64, id); err != nil {
			return fmt.Errorf("store: set rotation track: %w", err)
		}
	}

	return tx.Commit()
}

// LoadClip reconstructs a Clip from the rows persisted under id. defaults
// seeds the Defaults field used for subsequently added tracks; tuning
// defaults are configuration, not clip state, and are not themselves
// persisted.
func (db *DB) LoadClip(id int64, defaults *config.ClipDefaults) (*clipmodel.Clip, error) {
	if defaults == nil {
		defaults = config.EmptyClipDefaults()
	}

	var focal, px, py, k1, k2, k3, sensorW, pixelAspect float64
	var stabFlags, stabFilter, startFrame int
	var locInf, scaleInf, rotInf, maxScale, scale float64
	var rotTrackID sql.NullInt64
	row := db.QueryRow(`
		SELECT start_frame, focal, principal_x, principal_y, k1, k2, k3, sensor_width_mm, pixel_aspect,
			stab_flags, stab_loc_inf, stab_scale_inf, stab_rot_inf, stab_max_scale, stab_scale, stab_filter, stab_rot_track_id
		FROM clip WHERE id = ?`, id)
	if err := row.Scan(&startFrame, &focal, &px, &py, &k1, &k2, &k3, &sensorW, &pixelAspect,
		&stabFlags, &locInf, &scaleInf, &rotInf, &maxScale, &scale, &stabFilter, &rotTrackID); err != nil {
		return nil, fmt.Errorf("store: load clip %d: %w", id, err)
	}

	clip := clipmodel.NewClip(defaults)
	clip.StartFrame = startFrame
	clip.Intrinsics = intrinsics.New(focal, px, py, k1, k2, k3, sensorW, pixelAspect)
	clip.Stabilization = &clipmodel.StabilizationConfig{
		Flags:    clipmodel.StabilizationFlags(stabFlags),
		LocInf:   locInf,
		ScaleInf: scaleInf,
		RotInf:   rotInf,
		MaxScale: maxScale,
		Scale:    scale,
		Filter:   clipmodel.StabilizationFilter(stabFilter),
	}

	objRows, err := db.Query(`
		SELECT id, ordinal, name, flags, scale, keyframe1, keyframe2, recon_error, recon_flags
		FROM object WHERE clip_id = ? ORDER BY ordinal ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("store: query objects: %w", err)
	}
	defer objRows.Close()

	type objectRow struct {
		rowID                          int64
		name                           string
		flags                          int
		scale                          float64
		keyframe1, keyframe2           int
		reconError                     float64
		reconFlags                     int
	}
	var rows []objectRow
	for objRows.Next() {
		var r objectRow
		var ordinal int
		if err := objRows.Scan(&r.rowID, &ordinal, &r.name, &r.flags, &r.scale, &r.keyframe1, &r.keyframe2, &r.reconError, &r.reconFlags); err != nil {
			return nil, fmt.Errorf("store: scan object: %w", err)
		}
		rows = append(rows, r)
	}
	if err := objRows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate objects: %w", err)
	}

	trackByRowID := make(map[int64]*clipmodel.Track)
	var rotTrack *clipmodel.Track

	// rows[0] is always the pre-existing camera object created by NewClip.
	for i, r := range rows {
		isCamera := clipmodel.ObjectFlags(r.flags).Has(clipmodel.ObjectCamera)
		var obj *clipmodel.Object
		if isCamera && i == 0 {
			obj = clip.Objects[0]
			obj.Flags = clipmodel.ObjectFlags(r.flags)
		} else {
			obj = clip.AddObject(r.name)
			obj.Flags = clipmodel.ObjectFlags(r.flags)
		}
		obj.Scale = r.scale
		obj.Keyframe1, obj.Keyframe2 = r.keyframe1, r.keyframe2

		tracks, err := db.loadTracks(r.rowID, trackByRowID)
		if err != nil {
			return nil, err
		}
		if isCamera {
			clip.Tracks = tracks
		} else {
			obj.SetTracks(tracks)
		}

		cameras, err := db.loadCameras(r.rowID)
		if err != nil {
			return nil, err
		}
		recon := &clipmodel.Reconstruction{Error: r.reconError, Flags: clipmodel.ReconstructionFlags(r.reconFlags)}
		if len(cameras) > 0 {
			recon.SetCameras(cameras)
			recon.Flags = clipmodel.ReconstructionFlags(r.reconFlags) // SetCameras always sets OK; restore the persisted flags exactly
		}
		if isCamera {
			clip.Recon = recon
		} else {
			obj.SetReconstruction(recon)
		}

		if rotTrackID.Valid {
			if t, ok := trackByRowID[rotTrackID.Int64]; ok {
				rotTrack = t
			}
		}
	}

	clip.Stabilization.RotTrack = rotTrack
	return clip, nil
}

func (db *DB) loadTracks(objectRowID int64, trackByRowID map[int64]*clipmodel.Track) ([]*clipmodel.Track, error) {
	rows, err := db.Query(`
		SELECT id, name, motion_model, min_correlation, match_mode,
			use_brute, use_normalization, use_mask, margin,
			offset_x, offset_y, flags, bundle_x, bundle_y, bundle_z, bundle_error
		FROM track WHERE object_id = ? ORDER BY id ASC`, objectRowID)
	if err != nil {
		return nil, fmt.Errorf("store: query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*clipmodel.Track
	for rows.Next() {
		var trackID int64
		var name string
		var motionModel, matchMode, flags int
		var useBrute, useNorm, useMask int
		var minCorrelation, margin, offX, offY, bx, by, bz, berr float64
		if err := rows.Scan(&trackID, &name, &motionModel, &minCorrelation, &matchMode,
			&useBrute, &useNorm, &useMask, &margin, &offX, &offY, &flags, &bx, &by, &bz, &berr); err != nil {
			return nil, fmt.Errorf("store: scan track: %w", err)
		}
		t := clipmodel.NewTrack(name)
		t.MotionModel = clipmodel.MotionModel(motionModel)
		t.MinCorrelation = minCorrelation
		t.MatchMode = clipmodel.MatchMode(matchMode)
		t.UseBrute = useBrute != 0
		t.UseNormalization = useNorm != 0
		t.UseMask = useMask != 0
		t.Margin = margin
		t.Offset = clipmodel.Vec2{X: offX, Y: offY}
		t.Flags = clipmodel.TrackFlags(flags)
		t.BundlePos = [3]float64{bx, by, bz}
		t.Error = berr

		markers, err := db.loadMarkers(trackID)
		if err != nil {
			return nil, err
		}
		for _, m := range markers {
			t.Markers.Insert(m)
		}

		trackByRowID[trackID] = t
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate tracks: %w", err)
	}
	return tracks, nil
}

func (db *DB) loadMarkers(trackID int64) ([]markerstore.Marker, error) {
	rows, err := db.Query(`
		SELECT frame, pos_x, pos_y, pattern_corners_json, search_min_x, search_min_y, search_max_x, search_max_y, flags
		FROM marker WHERE track_id = ? ORDER BY frame ASC`, trackID)
	if err != nil {
		return nil, fmt.Errorf("store: query markers: %w", err)
	}
	defer rows.Close()

	var markers []markerstore.Marker
	for rows.Next() {
		var m markerstore.Marker
		var cornersJSON string
		var flags int
		if err := rows.Scan(&m.Frame, &m.Pos.X, &m.Pos.Y, &cornersJSON,
			&m.SearchMin.X, &m.SearchMin.Y, &m.SearchMax.X, &m.SearchMax.Y, &flags); err != nil {
			return nil, fmt.Errorf("store: scan marker: %w", err)
		}
		if err := json.Unmarshal([]byte(cornersJSON), &m.PatternCorners); err != nil {
			return nil, fmt.Errorf("store: unmarshal pattern corners: %w", err)
		}
		m.Flags = markerstore.Flags(flags)
		markers = append(markers, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate markers: %w", err)
	}
	return markers, nil
}

func (db *DB) loadCameras(objectRowID int64) ([]clipmodel.Camera, error) {
	rows, err := db.Query(`SELECT frame, pose_json, error FROM camera WHERE object_id = ? ORDER BY frame ASC`, objectRowID)
	if err != nil {
		return nil, fmt.Errorf("store: query cameras: %w", err)
	}
	defer rows.Close()

	var cameras []clipmodel.Camera
	for rows.Next() {
		var c clipmodel.Camera
		var poseJSON string
		if err := rows.Scan(&c.Frame, &poseJSON, &c.Error); err != nil {
			return nil, fmt.Errorf("store: scan camera: %w", err)
		}
		if err := json.Unmarshal([]byte(poseJSON), &c.Pose); err != nil {
			return nil, fmt.Errorf("store: unmarshal pose: %w", err)
		}
		cameras = append(cameras, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate cameras: %w", err)
	}
	return cameras, nil
}
