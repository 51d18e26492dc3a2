package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discolog/discolog/internal/models"
	"github.com/discolog/discolog/pkg/catalog"
)

var testFolders = []models.MusicFolder{{Path: "/music", Name: "Music"}}

func newTestServer(t *testing.T) (*Server, *catalog.Store) {
	t.Helper()
	store, err := catalog.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, testFolders, nil), store
}

func seedAlbum(t *testing.T, store *catalog.Store, artist, album string, songs int) *models.MediaFile {
	t.Helper()
	now := time.Now()
	dir := &models.MediaFile{
		Path:        fmt.Sprintf("/music/%s/%s", artist, album),
		Folder:      "/music",
		Type:        models.TypeAlbum,
		Album:       album,
		Artist:      artist,
		AlbumArtist: artist,
		Created:     now,
		Changed:     now,
		LastScanned: now,
		Present:     true,
	}
	require.NoError(t, store.CreateOrUpdate(dir))
	for i := 1; i <= songs; i++ {
		track := i
		song := &models.MediaFile{
			Path:        fmt.Sprintf("%s/%02d.mp3", dir.Path, i),
			Folder:      "/music",
			Type:        models.TypeMusic,
			Format:      "mp3",
			Title:       fmt.Sprintf("%s track %d", album, i),
			Album:       album,
			Artist:      artist,
			AlbumArtist: artist,
			TrackNumber: &track,
			Genre:       "Electronic",
			Created:     now,
			Changed:     now,
			LastScanned: now,
			Present:     true,
		}
		require.NoError(t, store.CreateOrUpdate(song))
	}
	return dir
}

func doRequest(t *testing.T, s *Server, method, url, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	var parsed map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	}
	return w, parsed
}

func TestAlbumsNewestView(t *testing.T) {
	s, store := newTestServer(t)
	seedAlbum(t, store, "Neon Lights", "First Steps", 2)
	seedAlbum(t, store, "Static Field", "Live 2019", 1)

	w, body := doRequest(t, s, http.MethodGet, "/api/albums?view=newest", "")
	require.Equal(t, http.StatusOK, w.Code)
	albums := body["albums"].([]any)
	assert.Len(t, albums, 2)
}

func TestAlbumsUnknownViewRejected(t *testing.T) {
	s, _ := newTestServer(t)
	w, _ := doRequest(t, s, http.MethodGet, "/api/albums?view=bogus", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAlbumSongs(t *testing.T) {
	s, store := newTestServer(t)
	seedAlbum(t, store, "Neon Lights", "First Steps", 3)

	w, body := doRequest(t, s, http.MethodGet, "/api/albums/songs?artist=Neon+Lights&album=First+Steps", "")
	require.Equal(t, http.StatusOK, w.Code)
	songs := body["songs"].([]any)
	assert.Len(t, songs, 3)

	w, _ = doRequest(t, s, http.MethodGet, "/api/albums/songs?artist=Neon+Lights", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRandomSongs(t *testing.T) {
	s, store := newTestServer(t)
	seedAlbum(t, store, "Neon Lights", "First Steps", 5)

	w, body := doRequest(t, s, http.MethodGet, "/api/songs/random?count=3", "")
	require.Equal(t, http.StatusOK, w.Code)
	songs := body["songs"].([]any)
	assert.Len(t, songs, 3)
}

func TestStarAndStarredListing(t *testing.T) {
	s, store := newTestServer(t)
	album := seedAlbum(t, store, "Neon Lights", "First Steps", 1)

	w, _ := doRequest(t, s, http.MethodPost, "/api/star",
		fmt.Sprintf(`{"ids":[%d],"username":"alice"}`, album.ID))
	require.Equal(t, http.StatusOK, w.Code)

	w, body := doRequest(t, s, http.MethodGet, "/api/starred?type=album&username=alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	starred := body["starred"].([]any)
	require.Len(t, starred, 1)

	// Another user sees nothing.
	w, body = doRequest(t, s, http.MethodGet, "/api/starred?type=album&username=bob", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["starred"])

	w, _ = doRequest(t, s, http.MethodPost, "/api/unstar",
		fmt.Sprintf(`{"ids":[%d],"username":"alice"}`, album.ID))
	require.Equal(t, http.StatusOK, w.Code)

	w, body = doRequest(t, s, http.MethodGet, "/api/starred?type=album&username=alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["starred"])
}

func TestRatingValidation(t *testing.T) {
	s, store := newTestServer(t)
	album := seedAlbum(t, store, "Neon Lights", "First Steps", 1)

	w, _ := doRequest(t, s, http.MethodPost, "/api/rating",
		fmt.Sprintf(`{"path":%q,"username":"alice","rating":5}`, album.Path))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = doRequest(t, s, http.MethodPost, "/api/rating",
		fmt.Sprintf(`{"path":%q,"username":"alice","rating":9}`, album.Path))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doRequest(t, s, http.MethodDelete, "/api/rating?path="+url.QueryEscape(album.Path)+"&username=alice", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestBrowseRootListsFolders(t *testing.T) {
	s, _ := newTestServer(t)
	w, body := doRequest(t, s, http.MethodGet, "/api/browse", "")
	require.Equal(t, http.StatusOK, w.Code)
	folders := body["folders"].([]any)
	require.Len(t, folders, 1)
	first := folders[0].(map[string]any)
	assert.Equal(t, "Music", first["name"])
}

func TestGenres(t *testing.T) {
	s, store := newTestServer(t)
	seedAlbum(t, store, "Neon Lights", "First Steps", 2)
	genres, err := store.GenreAggregates()
	require.NoError(t, err)
	require.NoError(t, store.ReplaceGenres(genres))

	w, body := doRequest(t, s, http.MethodGet, "/api/genres", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := body["genres"].([]any)
	require.Len(t, list, 1)
	first := list[0].(map[string]any)
	assert.Equal(t, "Electronic", first["name"])
	assert.Equal(t, float64(2), first["songCount"])
}

func TestStats(t *testing.T) {
	s, store := newTestServer(t)
	seedAlbum(t, store, "Neon Lights", "First Steps", 2)
	seedAlbum(t, store, "Static Field", "Live 2019", 3)

	w, body := doRequest(t, s, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["albumCount"])
	assert.Equal(t, float64(5), body["songCount"])
	assert.Equal(t, float64(0), body["playedAlbumCount"])
}

func TestScanUnavailableWithoutScanner(t *testing.T) {
	s, _ := newTestServer(t)
	w, _ := doRequest(t, s, http.MethodPost, "/api/scan", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
