package catalog

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discolog/discolog/internal/models"
)

// bulkInsertSongs seeds minimal MUSIC rows directly, bypassing the upsert
// engine, for tests that need row counts past what per-call upserts are worth.
func bulkInsertSongs(t *testing.T, s *Store, paths []string, lastScanned time.Time) {
	t.Helper()

	tx, err := s.db.Begin()
	require.NoError(t, err)

	stmt, err := tx.Prepare(`INSERT INTO media_file (path, folder, type, created, last_scanned, present, version)
		VALUES (?, '/music', 'MUSIC', ?, ?, 1, ?)`)
	require.NoError(t, err)

	now := time.Now().UnixMilli()
	for _, p := range paths {
		_, err := stmt.Exec(p, now, lastScanned.UnixMilli(), CurrentSchemaVersion)
		require.NoError(t, err)
	}
	require.NoError(t, stmt.Close())
	require.NoError(t, tx.Commit())
}

func genPaths(n int) []string {
	paths := make([]string, n)
	for i := range paths {
		paths[i] = fmt.Sprintf("/music/gen/%06d.mp3", i)
	}
	return paths
}

func TestMarkSweepScenario(t *testing.T) {
	s := newTestStore(t)

	t1 := time.Now().Add(-time.Hour)
	t2 := time.Now()

	bulkInsertSongs(t, s, []string{"/music/A.mp3", "/music/B.mp3", "/music/C.mp3"}, t1)
	require.NoError(t, s.MarkPresent([]string{"/music/A.mp3", "/music/B.mp3", "/music/C.mp3"}, t1))

	// Only B is observed by the second scan.
	require.NoError(t, s.MarkPresent([]string{"/music/B.mp3"}, t2))
	require.NoError(t, s.MarkNonPresent(t2))

	for path, wantPresent := range map[string]bool{
		"/music/A.mp3": false,
		"/music/B.mp3": true,
		"/music/C.mp3": false,
	} {
		var present bool
		err := s.db.QueryRow(`SELECT present FROM media_file WHERE path = ?`, path).Scan(&present)
		require.NoError(t, err)
		assert.Equal(t, wantPresent, present, path)
	}
}

func TestMarkNonPresentStampsForcedRescanSentinel(t *testing.T) {
	s := newTestStore(t)

	t1 := time.Now().Add(-time.Hour)
	bulkInsertSongs(t, s, []string{"/music/gone.mp3"}, t1)

	require.NoError(t, s.MarkNonPresent(time.Now()))

	got, err := s.MediaFileByPath("/music/gone.mp3")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Present)
	assert.Equal(t, ForcedChildRescan.UnixMilli(), got.ChildrenLastUpdated.UnixMilli())
}

func TestMarkPresentChunksAndSumsAffectedRows(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping large batch test in short mode")
	}
	s := newTestStore(t)

	// 45,000 paths means two chunks at the 30,000 chunk size; the summed
	// affected counts must equal the path count for the call to succeed.
	paths := genPaths(45000)
	bulkInsertSongs(t, s, paths, time.Now().Add(-time.Hour))

	epoch := time.Now()
	require.NoError(t, s.MarkPresent(paths, epoch))

	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM media_file WHERE last_scanned = ?`, epoch.UnixMilli()).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 45000, n)
}

func TestMarkPresentRejectsDuplicatePaths(t *testing.T) {
	s := newTestStore(t)

	bulkInsertSongs(t, s, []string{"/music/x.mp3"}, time.Now().Add(-time.Hour))

	err := s.MarkPresent([]string{"/music/x.mp3", "/music/x.mp3"}, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBatchMismatch)
}

func TestMarkPresentRejectsUnknownPaths(t *testing.T) {
	s := newTestStore(t)

	err := s.MarkPresent([]string{"/music/never-inserted.mp3"}, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBatchMismatch)
}

func TestMarkPresentIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	paths := []string{"/music/a.mp3", "/music/b.mp3"}
	bulkInsertSongs(t, s, paths, time.Now().Add(-time.Hour))

	epoch := time.Now()
	require.NoError(t, s.MarkPresent(paths, epoch))
	// Resuming an interrupted scan re-marks rows already present.
	require.NoError(t, s.MarkPresent(paths, epoch))
}

func TestDeleteMediaFilesTombstones(t *testing.T) {
	s := newTestStore(t)

	f := testSong("/music", "a", "b", "c")
	mustCreate(t, s, f)

	require.NoError(t, s.DeleteMediaFile(f.Path))

	got, err := s.MediaFileByPath(f.Path)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Present)
	assert.Equal(t, ForcedChildRescan.UnixMilli(), got.ChildrenLastUpdated.UnixMilli())

	// Tombstones stay invisible to folder-scoped readers.
	songs, err := s.SongsByArtist("a", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, songs)
}

func TestExpungeCandidatesPerTier(t *testing.T) {
	s := newTestStore(t)

	now := time.Now()
	dir := &models.MediaFile{Path: "/music/artist", Folder: "/music", Type: models.TypeDirectory, Created: now, Present: true}
	album := testAlbum("/music", "artist", "album")
	song := testSong("/music", "artist", "album", "song")
	video := &models.MediaFile{Path: "/music/clip.mkv", Folder: "/music", Type: models.TypeVideo, Created: now, Present: true}
	mustCreate(t, s, dir, album, song, video)

	require.NoError(t, s.DeleteMediaFiles([]string{dir.Path, album.Path, song.Path, video.Path}))

	artists, err := s.ArtistExpungeCandidates()
	require.NoError(t, err)
	assert.Equal(t, []int64{dir.ID}, artists)

	albums, err := s.AlbumExpungeCandidates()
	require.NoError(t, err)
	assert.Equal(t, []int64{album.ID}, albums)

	songs, err := s.SongExpungeCandidates()
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{song.ID, video.ID}, songs)
}

func TestExpungeIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	f := testSong("/music", "a", "b", "c")
	mustCreate(t, s, f)
	require.NoError(t, s.DeleteMediaFile(f.Path))

	deleted, err := s.Expunge()
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = s.Expunge()
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestExpungeRemovesOrphanedStars(t *testing.T) {
	s := newTestStore(t)

	f := testSong("/music", "a", "b", "c")
	mustCreate(t, s, f)
	require.NoError(t, s.Star([]int64{f.ID}, "alice"))

	require.NoError(t, s.DeleteMediaFile(f.Path))
	_, err := s.Expunge()
	require.NoError(t, err)

	var count int
	err = s.db.QueryRow(`SELECT COUNT(*) FROM starred_media_file`).Scan(&count)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestExpungeKeepsPresentRows(t *testing.T) {
	s := newTestStore(t)

	keep := testSong("/music", "keep", "keep", "keep")
	drop := testSong("/music", "drop", "drop", "drop")
	mustCreate(t, s, keep, drop)
	require.NoError(t, s.DeleteMediaFile(drop.Path))

	_, err := s.Expunge()
	require.NoError(t, err)

	got, err := s.MediaFileByPath(keep.Path)
	require.NoError(t, err)
	assert.NotNil(t, got)

	got, err = s.MediaFileByPath(drop.Path)
	require.NoError(t, err)
	assert.Nil(t, got)
}
