package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/discolog/discolog/internal/models"
	"github.com/discolog/discolog/pkg/catalog"
	"github.com/discolog/discolog/pkg/scanner"
)

// defaultUsername is used when a request does not name a user. Per-user state
// (stars, ratings) is keyed by name only; authentication is out of scope here.
const defaultUsername = "admin"

type mediaFileJSON struct {
	ID          int64      `json:"id"`
	Path        string     `json:"path"`
	Type        string     `json:"type"`
	Format      string     `json:"format,omitempty"`
	Title       string     `json:"title,omitempty"`
	Album       string     `json:"album,omitempty"`
	Artist      string     `json:"artist,omitempty"`
	AlbumArtist string     `json:"albumArtist,omitempty"`
	DiscNumber  *int       `json:"discNumber,omitempty"`
	TrackNumber *int       `json:"trackNumber,omitempty"`
	Year        *int       `json:"year,omitempty"`
	Genre       string     `json:"genre,omitempty"`
	Duration    float64    `json:"duration,omitempty"`
	FileSize    *int64     `json:"fileSize,omitempty"`
	PlayCount   *int       `json:"playCount,omitempty"`
	LastPlayed  *time.Time `json:"lastPlayed,omitempty"`
	CoverArt    string     `json:"coverArt,omitempty"`
	Created     time.Time  `json:"created"`
}

func toJSON(m *models.MediaFile) mediaFileJSON {
	return mediaFileJSON{
		ID:          m.ID,
		Path:        m.Path,
		Type:        string(m.Type),
		Format:      m.Format,
		Title:       m.Title,
		Album:       m.Album,
		Artist:      m.Artist,
		AlbumArtist: m.AlbumArtist,
		DiscNumber:  m.DiscNumber,
		TrackNumber: m.TrackNumber,
		Year:        m.Year,
		Genre:       m.Genre,
		Duration:    m.Duration,
		FileSize:    m.FileSize,
		PlayCount:   m.PlayCount,
		LastPlayed:  m.LastPlayed,
		CoverArt:    m.CoverArtPath,
		Created:     m.Created,
	}
}

func toJSONList(files []*models.MediaFile) []mediaFileJSON {
	out := make([]mediaFileJSON, 0, len(files))
	for _, f := range files {
		out = append(out, toJSON(f))
	}
	return out
}

func (s *Server) folderPaths() []string {
	return models.FolderPaths(s.folders)
}

func intQuery(c *gin.Context, name string, def int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func optIntQuery(c *gin.Context, name string) *int {
	v := c.Query(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func optTimeQuery(c *gin.Context, name string) *time.Time {
	v := c.Query(name)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}

func username(c *gin.Context) string {
	if u := c.Query("username"); u != "" {
		return u
	}
	return defaultUsername
}

func serverError(c *gin.Context, err error) {
	log.WithError(err).Error("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (s *Server) handleAlbums(c *gin.Context) {
	offset := intQuery(c, "offset", 0)
	count := intQuery(c, "count", 20)
	folders := s.folderPaths()

	var (
		albums []*models.MediaFile
		err    error
	)
	switch view := c.DefaultQuery("view", "newest"); view {
	case "newest":
		albums, err = s.store.NewestAlbums(offset, count, folders)
	case "frequent":
		albums, err = s.store.MostFrequentlyPlayedAlbums(offset, count, folders)
	case "recent":
		albums, err = s.store.MostRecentlyPlayedAlbums(offset, count, folders)
	case "alphabetical":
		byArtist := c.Query("byArtist") == "true"
		albums, err = s.store.AlphabeticalAlbums(offset, count, byArtist, folders)
	case "byYear":
		fromYear := intQuery(c, "fromYear", 0)
		toYear := intQuery(c, "toYear", 0)
		albums, err = s.store.AlbumsByYear(offset, count, fromYear, toYear, folders)
	case "byGenre":
		albums, err = s.store.AlbumsByGenre(offset, count, c.Query("genre"), folders)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown view: " + view})
		return
	}
	if err != nil {
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"albums": toJSONList(albums)})
}

func (s *Server) handleAlbumSongs(c *gin.Context) {
	artist := c.Query("artist")
	album := c.Query("album")
	if artist == "" || album == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "artist and album are required"})
		return
	}
	songs, err := s.store.SongsForAlbum(artist, album)
	if err != nil {
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"songs": toJSONList(songs)})
}

func (s *Server) handleRandomSongs(c *gin.Context) {
	spec := catalog.RandomSpec{
		Folders:        s.folderPaths(),
		Genre:          c.Query("genre"),
		Format:         c.Query("format"),
		FromYear:       optIntQuery(c, "fromYear"),
		ToYear:         optIntQuery(c, "toYear"),
		MinAlbumRating: optIntQuery(c, "minAlbumRating"),
		MaxAlbumRating: optIntQuery(c, "maxAlbumRating"),
		MinPlayCount:   optIntQuery(c, "minPlayCount"),
		MaxPlayCount:   optIntQuery(c, "maxPlayCount"),
		MinLastPlayed:  optTimeQuery(c, "minLastPlayed"),
		MaxLastPlayed:  optTimeQuery(c, "maxLastPlayed"),
		Count:          intQuery(c, "count", 10),
	}
	switch c.Query("starred") {
	case "only":
		spec.ShowStarred = true
	case "exclude":
		spec.ShowUnstarred = true
	}

	songs, err := s.store.RandomSongs(spec, username(c))
	if err != nil {
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"songs": toJSONList(songs)})
}

func (s *Server) handleSongSearch(c *gin.Context) {
	artist := c.Query("artist")
	title := c.Query("title")

	if title != "" {
		song, err := s.store.SongByArtistAndTitle(artist, title, s.folderPaths())
		if err != nil {
			serverError(c, err)
			return
		}
		if song == nil {
			c.JSON(http.StatusOK, gin.H{"songs": []mediaFileJSON{}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"songs": []mediaFileJSON{toJSON(song)}})
		return
	}
	if artist == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "artist or title is required"})
		return
	}
	songs, err := s.store.SongsByArtist(artist, intQuery(c, "offset", 0), intQuery(c, "count", 20))
	if err != nil {
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"songs": toJSONList(songs)})
}

func (s *Server) handleVideos(c *gin.Context) {
	videos, err := s.store.Videos(intQuery(c, "count", 20), intQuery(c, "offset", 0), s.folderPaths())
	if err != nil {
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"videos": toJSONList(videos)})
}

func (s *Server) handleBrowse(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		folders := make([]gin.H, 0, len(s.folders))
		for _, f := range s.folders {
			folders = append(folders, gin.H{"name": f.Name, "path": f.Path})
		}
		c.JSON(http.StatusOK, gin.H{"folders": folders})
		return
	}
	children, err := s.store.ChildrenOf(path)
	if err != nil {
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"children": toJSONList(children)})
}

func (s *Server) handleGenres(c *gin.Context) {
	genres, err := s.store.Genres(c.Query("sort") == "albums")
	if err != nil {
		serverError(c, err)
		return
	}
	out := make([]gin.H, 0, len(genres))
	for _, g := range genres {
		out = append(out, gin.H{
			"name":       g.Name,
			"songCount":  g.SongCount,
			"albumCount": g.AlbumCount,
		})
	}
	c.JSON(http.StatusOK, gin.H{"genres": out})
}

func (s *Server) handleStarred(c *gin.Context) {
	offset := intQuery(c, "offset", 0)
	count := intQuery(c, "count", 20)
	user := username(c)
	folders := s.folderPaths()

	var (
		files []*models.MediaFile
		err   error
	)
	switch kind := c.DefaultQuery("type", "album"); kind {
	case "album":
		files, err = s.store.StarredAlbums(offset, count, user, folders)
	case "directory":
		files, err = s.store.StarredDirectories(offset, count, user, folders)
	case "file":
		files, err = s.store.StarredFiles(offset, count, user, folders)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown type: " + kind})
		return
	}
	if err != nil {
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"starred": toJSONList(files)})
}

type starRequest struct {
	IDs      []int64 `json:"ids" binding:"required"`
	Username string  `json:"username"`
}

func (s *Server) handleStar(c *gin.Context) {
	var req starRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Username == "" {
		req.Username = defaultUsername
	}
	if err := s.store.Star(req.IDs, req.Username); err != nil {
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"starred": len(req.IDs)})
}

func (s *Server) handleUnstar(c *gin.Context) {
	var req starRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Username == "" {
		req.Username = defaultUsername
	}
	if err := s.store.Unstar(req.IDs, req.Username); err != nil {
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unstarred": len(req.IDs)})
}

type ratingRequest struct {
	Path     string `json:"path" binding:"required"`
	Username string `json:"username"`
	Rating   int    `json:"rating"`
}

func (s *Server) handleSetRating(c *gin.Context) {
	var req ratingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Username == "" {
		req.Username = defaultUsername
	}
	if err := s.store.SetRating(req.Path, req.Username, req.Rating); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDeleteRating(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}
	if err := s.store.DeleteRating(path, username(c)); err != nil {
		serverError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleStats(c *gin.Context) {
	folders := s.folderPaths()
	user := username(c)

	albums, err := s.store.AlbumCount(folders)
	if err != nil {
		serverError(c, err)
		return
	}
	songs, err := s.store.SongCount(folders)
	if err != nil {
		serverError(c, err)
		return
	}
	played, err := s.store.PlayedAlbumCount(folders)
	if err != nil {
		serverError(c, err)
		return
	}
	starred, err := s.store.StarredAlbumCount(user, folders)
	if err != nil {
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"albumCount":        albums,
		"songCount":         songs,
		"playedAlbumCount":  played,
		"starredAlbumCount": starred,
	})
}

func (s *Server) handleScan(c *gin.Context) {
	if s.scanner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scanning not configured"})
		return
	}
	stats, err := s.scanner.Scan()
	if errors.Is(err, scanner.ErrScanInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"files":       stats.FilesScanned,
		"directories": stats.DirectoriesScanned,
		"unchanged":   stats.Unchanged,
		"errors":      stats.Errors,
		"duration":    stats.Duration.String(),
	})
}
