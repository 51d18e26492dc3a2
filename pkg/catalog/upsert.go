package catalog

import (
	"database/sql"
	"fmt"

	"github.com/discolog/discolog/internal/models"
)

// CreateOrUpdate inserts the media file if its path is new, or refreshes every
// mutable column if a row already exists. The created timestamp is immutable
// once set; version is always rewritten to the store's schema version. On
// return the file carries the surrogate id assigned to its path, so callers
// can insert dependent rows in the same scan pass.
//
// Repeated calls for the same path converge on the latest field values.
// Concurrent scans racing on the same path are tolerated: the insert branch
// upserts on path conflict instead of failing on the uniqueness constraint.
func (s *Store) CreateOrUpdate(file *models.MediaFile) error {
	log.WithField("path", file.Path).Trace("Creating/updating media file")

	err := s.write(func(db *sql.DB) error {
		res, err := db.Exec(`UPDATE media_file SET
			folder = ?, type = ?, format = ?, title = ?, album = ?, artist = ?,
			album_artist = ?, disc_number = ?, track_number = ?, year = ?, genre = ?,
			bit_rate = ?, variable_bit_rate = ?, duration = ?, file_size = ?,
			width = ?, height = ?, cover_art_path = ?, parent_path = ?,
			play_count = ?, last_played = ?, comment = ?, changed = ?,
			last_scanned = ?, children_last_updated = ?, present = ?, version = ?,
			mb_release_id = ?, mb_recording_id = ?
			WHERE path = ?`,
			nullString(file.Folder), string(file.Type), nullString(file.Format),
			nullString(file.Title), nullString(file.Album), nullString(file.Artist),
			nullString(file.AlbumArtist), nullIntPtr(file.DiscNumber),
			nullIntPtr(file.TrackNumber), nullIntPtr(file.Year), nullString(file.Genre),
			nullIntPtr(file.BitRate), file.VariableBitRate, file.Duration,
			nullInt64Ptr(file.FileSize), nullIntPtr(file.Width), nullIntPtr(file.Height),
			nullString(file.CoverArtPath), nullString(file.ParentPath),
			nullIntPtr(file.PlayCount), nullTimePtr(file.LastPlayed),
			nullString(file.Comment), nullTime(file.Changed), nullTime(file.LastScanned),
			nullTime(file.ChildrenLastUpdated), file.Present, s.version,
			nullString(file.MusicBrainzReleaseID), nullString(file.MusicBrainzRecordingID),
			file.Path)
		if err != nil {
			return err
		}

		n, err := res.RowsAffected()
		if err != nil {
			return err
		}

		if n == 0 {
			// First time this path is seen. Carry play stats and comment
			// forward from the obsolete music_file_info table if it has a row;
			// this is a one-time migration and never touches the update branch
			// above, so stale legacy data cannot resurrect into rows that have
			// since been updated.
			if legacy, err := s.legacyFileInfo(db, file.Path); err != nil {
				return err
			} else if legacy != nil {
				file.PlayCount = legacy.PlayCount
				file.LastPlayed = legacy.LastPlayed
				file.Comment = legacy.Comment
			}

			_, err = db.Exec(`INSERT INTO media_file (`+insertColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(path) DO UPDATE SET
					changed = excluded.changed,
					last_scanned = excluded.last_scanned,
					present = excluded.present,
					version = excluded.version`,
				file.Path, nullString(file.Folder), string(file.Type),
				nullString(file.Format), nullString(file.Title), nullString(file.Album),
				nullString(file.Artist), nullString(file.AlbumArtist),
				nullIntPtr(file.DiscNumber), nullIntPtr(file.TrackNumber),
				nullIntPtr(file.Year), nullString(file.Genre), nullIntPtr(file.BitRate),
				file.VariableBitRate, file.Duration, nullInt64Ptr(file.FileSize),
				nullIntPtr(file.Width), nullIntPtr(file.Height),
				nullString(file.CoverArtPath), nullString(file.ParentPath),
				nullIntPtr(file.PlayCount), nullTimePtr(file.LastPlayed),
				nullString(file.Comment), nullTime(file.Created), nullTime(file.Changed),
				nullTime(file.LastScanned), nullTime(file.ChildrenLastUpdated),
				file.Present, s.version,
				nullString(file.MusicBrainzReleaseID), nullString(file.MusicBrainzRecordingID))
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", file.Path, err)
	}

	var id int64
	if err := s.db.QueryRow(`SELECT id FROM media_file WHERE path = ?`, file.Path).Scan(&id); err != nil {
		return fmt.Errorf("failed to read back id for %s: %w", file.Path, err)
	}
	file.ID = id
	file.Version = s.version
	return nil
}

// legacyFileInfo reads the play stats and comment for path from the obsolete
// music_file_info table, or (nil, nil) when no row exists.
func (s *Store) legacyFileInfo(db *sql.DB, path string) (*models.MediaFile, error) {
	var (
		playCount  sql.NullInt64
		lastPlayed sql.NullInt64
		comment    sql.NullString
	)
	err := db.QueryRow(`SELECT play_count, last_played, comment FROM music_file_info WHERE path = ?`, path).
		Scan(&playCount, &lastPlayed, &comment)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &models.MediaFile{
		PlayCount:  intPtr(playCount),
		LastPlayed: timePtr(lastPlayed),
		Comment:    comment.String,
	}, nil
}
