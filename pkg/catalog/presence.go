package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/discolog/discolog/internal/models"
)

// presenceChunkSize bounds how many paths a single presence UPDATE covers. A
// full library rescan can mark hundreds of thousands of paths in one call;
// chunking keeps each statement's IN list and lock window bounded.
const presenceChunkSize = 30000

// ErrBatchMismatch is returned when a chunked bulk operation affects a
// different number of rows than it was handed. That means the input contained
// duplicate or unknown paths, which is a correctness bug in the caller, so it
// is surfaced instead of swallowed.
var ErrBatchMismatch = errors.New("affected row count does not match batch size")

// MarkPresent flips every given path to present and advances its last_scanned
// to the scan epoch. Chunks are submitted concurrently and their affected-row
// counts summed; a shortfall fails with ErrBatchMismatch. Re-marking an
// already-present row is a no-op, so resuming an interrupted scan is safe.
func (s *Store) MarkPresent(paths []string, lastScanned time.Time) error {
	if len(paths) == 0 {
		return nil
	}

	var (
		wg       sync.WaitGroup
		affected atomic.Int64
		errMu    sync.Mutex
		firstErr error
	)

	for start := 0; start < len(paths); start += presenceChunkSize {
		end := start + presenceChunkSize
		if end > len(paths) {
			end = len(paths)
		}
		chunk := paths[start:end]

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.write(func(db *sql.DB) error {
				args := append([]any{lastScanned.UnixMilli()}, stringArgs(chunk)...)
				res, err := db.Exec(`UPDATE media_file SET present = 1, last_scanned = ?
					WHERE path IN (`+inPlaceholders(len(chunk))+`)`, args...)
				if err != nil {
					return err
				}
				n, err := res.RowsAffected()
				if err != nil {
					return err
				}
				affected.Add(n)
				return nil
			})
			if err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return fmt.Errorf("failed to mark paths present: %w", firstErr)
	}
	if n := affected.Load(); n != int64(len(paths)) {
		return fmt.Errorf("%w: marked %d of %d paths present", ErrBatchMismatch, n, len(paths))
	}

	log.WithFields(logrus.Fields{
		"paths":       len(paths),
		"lastScanned": lastScanned,
	}).Debug("Marked paths present")
	return nil
}

// MarkNonPresent sweeps every present row whose last_scanned predates the scan
// start into the stale state, in one bulk statement. The forced-rescan
// sentinel is stamped on children_last_updated so that a resurrected
// directory has its children fully re-enumerated rather than trusted from
// stale cache.
func (s *Store) MarkNonPresent(lastScanned time.Time) error {
	return s.write(func(db *sql.DB) error {
		res, err := db.Exec(`UPDATE media_file SET present = 0, children_last_updated = ?
			WHERE last_scanned < ? AND present`,
			ForcedChildRescan.UnixMilli(), lastScanned.UnixMilli())
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		log.WithFields(logrus.Fields{
			"cutoff": lastScanned,
			"swept":  n,
		}).Info("Swept unobserved rows to non-present")
		return nil
	})
}

// DeleteMediaFile tombstones a single path.
func (s *Store) DeleteMediaFile(path string) error {
	return s.DeleteMediaFiles([]string{path})
}

// DeleteMediaFiles tombstones the given paths: present is cleared and the
// forced-rescan sentinel stamped, but the rows stay until an explicit Expunge
// so external state (stars, play history) can still be reported or migrated.
func (s *Store) DeleteMediaFiles(paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	for start := 0; start < len(paths); start += presenceChunkSize {
		end := start + presenceChunkSize
		if end > len(paths) {
			end = len(paths)
		}
		chunk := paths[start:end]

		err := s.write(func(db *sql.DB) error {
			args := append([]any{ForcedChildRescan.UnixMilli()}, stringArgs(chunk)...)
			_, err := db.Exec(`UPDATE media_file SET present = 0, children_last_updated = ?
				WHERE path IN (`+inPlaceholders(len(chunk))+`)`, args...)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to delete media files: %w", err)
		}
	}
	return nil
}

// ArtistExpungeCandidates lists non-present artist directory ids.
func (s *Store) ArtistExpungeCandidates() ([]int64, error) {
	return s.expungeCandidates(models.TypeDirectory)
}

// AlbumExpungeCandidates lists non-present album ids.
func (s *Store) AlbumExpungeCandidates() ([]int64, error) {
	return s.expungeCandidates(models.TypeAlbum)
}

// SongExpungeCandidates lists non-present song and video ids.
func (s *Store) SongExpungeCandidates() ([]int64, error) {
	return s.expungeCandidates(models.TypeMusic, models.TypePodcast, models.TypeAudiobook, models.TypeVideo)
}

// Candidates are collected per type tier so callers can expunge dependent
// tiers (songs, then albums, then artist directories) in soft foreign-key
// order before the hard delete.
func (s *Store) expungeCandidates(types ...models.MediaType) ([]int64, error) {
	args := make([]any, len(types))
	for i, t := range types {
		args[i] = string(t)
	}

	rows, err := s.db.Query(`SELECT id FROM media_file
		WHERE type IN (`+inPlaceholders(len(types))+`) AND NOT present`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Expunge physically deletes every tombstoned row, along with star rows left
// orphaned by the deletion. Present rows are never touched, so calling it
// twice in a row is harmless: the second pass deletes nothing.
func (s *Store) Expunge() (int64, error) {
	var deleted int64
	err := s.wq.SubmitTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM starred_media_file WHERE media_file_id IN
			(SELECT id FROM media_file WHERE NOT present)`); err != nil {
			return err
		}
		res, err := tx.Exec(`DELETE FROM media_file WHERE NOT present`)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to expunge: %w", err)
	}

	log.WithField("deleted", deleted).Info("Expunged non-present rows")
	return deleted, nil
}
