package catalog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/discolog/discolog/internal/models"
)

// Star marks the given media files as starred by the user. Any existing star
// rows for the pairs are cleared first, so re-starring replaces the timestamp.
// All rows of one call share a single "now": a batch starred together is
// indistinguishable in ordering from a single star event, and listings break
// the tie on the star row's own id.
func (s *Store) Star(ids []int64, username string) error {
	if len(ids) == 0 {
		return nil
	}

	now := time.Now()
	return s.wq.SubmitTx(func(tx *sql.Tx) error {
		if err := unstarTx(tx, ids, username); err != nil {
			return err
		}

		stmt, err := tx.Prepare(`INSERT INTO starred_media_file (media_file_id, username, created) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, id := range ids {
			if _, err := stmt.Exec(id, username, now.UnixMilli()); err != nil {
				return err
			}
		}

		log.WithFields(logrus.Fields{
			"username": username,
			"count":    len(ids),
		}).Debug("Starred media files")
		return nil
	})
}

// Unstar removes the user's stars from the given media files. Removing stars
// that do not exist is not an error.
func (s *Store) Unstar(ids []int64, username string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.wq.SubmitTx(func(tx *sql.Tx) error {
		return unstarTx(tx, ids, username)
	})
}

func unstarTx(tx *sql.Tx, ids []int64, username string) error {
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, username)

	_, err := tx.Exec(`DELETE FROM starred_media_file
		WHERE media_file_id IN (`+inPlaceholders(len(ids))+`) AND username = ?`, args...)
	return err
}

// StarredDate returns when the user starred the media file; ok is false when
// no star exists.
func (s *Store) StarredDate(id int64, username string) (time.Time, bool, error) {
	var created int64
	err := s.db.QueryRow(`SELECT created FROM starred_media_file
		WHERE media_file_id = ? AND username = ?`, id, username).Scan(&created)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(created), true, nil
}

// ReplaceGenres swaps the entire genre summary table for the given aggregates
// in one transaction: readers see either the old table or the new one, never a
// half-replaced mix.
func (s *Store) ReplaceGenres(genres []models.Genre) error {
	return s.wq.SubmitTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM genre`); err != nil {
			return err
		}
		if len(genres) == 0 {
			return nil
		}

		stmt, err := tx.Prepare(`INSERT INTO genre (name, song_count, album_count) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, g := range genres {
			if _, err := stmt.Exec(g.Name, g.SongCount, g.AlbumCount); err != nil {
				return err
			}
		}

		log.WithField("genres", len(genres)).Debug("Replaced genre table")
		return nil
	})
}

// SetRating records the user's rating (1..5) for the album at path.
func (s *Store) SetRating(path, username string, rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("rating out of range: %d", rating)
	}
	return s.write(func(db *sql.DB) error {
		_, err := db.Exec(`INSERT INTO user_rating (path, username, rating) VALUES (?, ?, ?)
			ON CONFLICT(path, username) DO UPDATE SET rating = excluded.rating`,
			path, username, rating)
		return err
	})
}

// DeleteRating removes the user's rating for the album at path.
func (s *Store) DeleteRating(path, username string) error {
	return s.write(func(db *sql.DB) error {
		_, err := db.Exec(`DELETE FROM user_rating WHERE path = ? AND username = ?`, path, username)
		return err
	})
}

// Rating returns the user's rating for the album at path; ok is false when
// none is recorded.
func (s *Store) Rating(path, username string) (int, bool, error) {
	var rating int
	err := s.db.QueryRow(`SELECT rating FROM user_rating WHERE path = ? AND username = ?`,
		path, username).Scan(&rating)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rating, true, nil
}
