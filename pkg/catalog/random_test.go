package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discolog/discolog/internal/models"
)

func pathsOf(files []*models.MediaFile) []string {
	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	return paths
}

func TestRandomSongsEmptyFolderScope(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, testSong("/music", "a", "b", "c"))

	got, err := s.RandomSongs(RandomSpec{Count: 10}, "alice")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRandomSongsOnlyPresentMusic(t *testing.T) {
	s := newTestStore(t)

	song := testSong("/music", "a", "b", "song")
	gone := testSong("/music", "a", "b", "gone")
	album := testAlbum("/music", "a", "b")
	video := &models.MediaFile{Path: "/music/v.mkv", Folder: "/music", Type: models.TypeVideo,
		Created: time.Now(), Present: true}
	mustCreate(t, s, song, gone, album, video)
	require.NoError(t, s.DeleteMediaFile(gone.Path))

	got, err := s.RandomSongs(RandomSpec{Folders: []string{"/music"}, Count: 10}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{song.Path}, pathsOf(got))
}

func TestRandomSongsGenreAndFormat(t *testing.T) {
	s := newTestStore(t)

	jazz := testSong("/music", "a", "b", "jazz")
	jazz.Genre = "Jazz"
	rock := testSong("/music", "a", "b", "rock")
	rock.Genre = "Rock"
	flac := testSong("/music", "a", "b", "flac")
	flac.Genre = "Jazz"
	flac.Format = "flac"
	mustCreate(t, s, jazz, rock, flac)

	got, err := s.RandomSongs(RandomSpec{Folders: []string{"/music"}, Genre: "Jazz", Count: 10}, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{jazz.Path, flac.Path}, pathsOf(got))

	got, err = s.RandomSongs(RandomSpec{Folders: []string{"/music"}, Genre: "Jazz", Format: "flac", Count: 10}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{flac.Path}, pathsOf(got))
}

func TestRandomSongsUpperBoundIncludesNulls(t *testing.T) {
	s := newTestStore(t)

	neverPlayed := testSong("/music", "a", "b", "never")
	lightlyPlayed := testSong("/music", "a", "b", "light")
	lightlyPlayed.PlayCount = intp(5)
	heavilyPlayed := testSong("/music", "a", "b", "heavy")
	heavilyPlayed.PlayCount = intp(6)
	mustCreate(t, s, neverPlayed, lightlyPlayed, heavilyPlayed)

	got, err := s.RandomSongs(RandomSpec{
		Folders:      []string{"/music"},
		MaxPlayCount: intp(5),
		Count:        10,
	}, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{neverPlayed.Path, lightlyPlayed.Path}, pathsOf(got))
}

func TestRandomSongsLowerBoundExcludesNulls(t *testing.T) {
	s := newTestStore(t)

	neverPlayed := testSong("/music", "a", "b", "never")
	played := testSong("/music", "a", "b", "played")
	played.PlayCount = intp(2)
	mustCreate(t, s, neverPlayed, played)

	got, err := s.RandomSongs(RandomSpec{
		Folders:      []string{"/music"},
		MinPlayCount: intp(1),
		Count:        10,
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{played.Path}, pathsOf(got))
}

func TestRandomSongsBothBoundsExcludeNulls(t *testing.T) {
	s := newTestStore(t)

	unknownYear := testSong("/music", "a", "b", "unknown")
	early := testSong("/music", "a", "b", "early")
	early.Year = intp(1995)
	late := testSong("/music", "a", "b", "late")
	late.Year = intp(2015)
	mustCreate(t, s, unknownYear, early, late)

	got, err := s.RandomSongs(RandomSpec{
		Folders:  []string{"/music"},
		FromYear: intp(1990),
		ToYear:   intp(2000),
		Count:    10,
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{early.Path}, pathsOf(got))
}

func TestRandomSongsLastPlayedRange(t *testing.T) {
	s := newTestStore(t)

	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	old := cutoff.Add(-time.Hour)
	recent := time.Now().Add(-time.Hour)

	never := testSong("/music", "a", "b", "never")
	stale := testSong("/music", "a", "b", "stale")
	stale.LastPlayed = &old
	fresh := testSong("/music", "a", "b", "fresh")
	fresh.LastPlayed = &recent
	mustCreate(t, s, never, stale, fresh)

	// Upper bound only: never-played songs count as within range.
	got, err := s.RandomSongs(RandomSpec{
		Folders:       []string{"/music"},
		MaxLastPlayed: &cutoff,
		Count:         10,
	}, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{never.Path, stale.Path}, pathsOf(got))

	got, err = s.RandomSongs(RandomSpec{
		Folders:       []string{"/music"},
		MinLastPlayed: &cutoff,
		Count:         10,
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{fresh.Path}, pathsOf(got))
}

func TestRandomSongsStarFilterXOR(t *testing.T) {
	s := newTestStore(t)

	starred := testSong("/music", "a", "b", "starred")
	plain := testSong("/music", "a", "b", "plain")
	mustCreate(t, s, starred, plain)
	require.NoError(t, s.Star([]int64{starred.ID}, "alice"))

	got, err := s.RandomSongs(RandomSpec{
		Folders: []string{"/music"}, ShowStarred: true, Count: 10,
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{starred.Path}, pathsOf(got))

	got, err = s.RandomSongs(RandomSpec{
		Folders: []string{"/music"}, ShowUnstarred: true, Count: 10,
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{plain.Path}, pathsOf(got))

	// Another user's stars never leak into the filter.
	got, err = s.RandomSongs(RandomSpec{
		Folders: []string{"/music"}, ShowStarred: true, Count: 10,
	}, "bob")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRandomSongsStarFilterBothSetEqualsBothClear(t *testing.T) {
	s := newTestStore(t)

	starred := testSong("/music", "a", "b", "starred")
	plain := testSong("/music", "a", "b", "plain")
	mustCreate(t, s, starred, plain)
	require.NoError(t, s.Star([]int64{starred.ID}, "alice"))

	// Both flags set and both clear are the same deliberate no-op gate.
	bothSet, err := s.RandomSongs(RandomSpec{
		Folders: []string{"/music"}, ShowStarred: true, ShowUnstarred: true, Count: 10,
	}, "alice")
	require.NoError(t, err)

	bothClear, err := s.RandomSongs(RandomSpec{
		Folders: []string{"/music"}, Count: 10,
	}, "alice")
	require.NoError(t, err)

	assert.ElementsMatch(t, pathsOf(bothSet), pathsOf(bothClear))
	assert.Len(t, bothSet, 2)
}

func TestRandomSongsAlbumRatingJoin(t *testing.T) {
	s := newTestStore(t)

	album := testAlbum("/music", "artist", "rated")
	ratedSong := testSong("/music", "artist", "rated", "one")
	ratedSong.Album = "rated"
	ratedSong.Artist = "artist"

	unratedAlbum := testAlbum("/music", "artist", "unrated")
	unratedSong := testSong("/music", "artist", "unrated", "two")
	mustCreate(t, s, album, ratedSong, unratedAlbum, unratedSong)

	require.NoError(t, s.SetRating(album.Path, "alice", 4))

	got, err := s.RandomSongs(RandomSpec{
		Folders:        []string{"/music"},
		MinAlbumRating: intp(3),
		Count:          10,
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{ratedSong.Path}, pathsOf(got))

	// Upper bound only: songs on unrated albums count as within range.
	got, err = s.RandomSongs(RandomSpec{
		Folders:        []string{"/music"},
		MaxAlbumRating: intp(3),
		Count:          10,
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{unratedSong.Path}, pathsOf(got))
}

func TestRandomSongsHonorsCount(t *testing.T) {
	s := newTestStore(t)

	for _, name := range []string{"one", "two", "three", "four", "five"} {
		mustCreate(t, s, testSong("/music", "a", "b", name))
	}

	got, err := s.RandomSongs(RandomSpec{Folders: []string{"/music"}, Count: 3}, "alice")
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestRandomSongsFolderScoping(t *testing.T) {
	s := newTestStore(t)

	in := testSong("/music", "a", "b", "in")
	out := testSong("/podcasts", "a", "b", "out")
	mustCreate(t, s, in, out)

	got, err := s.RandomSongs(RandomSpec{Folders: []string{"/music"}, Count: 10}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{in.Path}, pathsOf(got))
}
