package scanner

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"

	"github.com/discolog/discolog/internal/models"
)

var audioFormats = map[string]models.MediaType{
	"mp3":  models.TypeMusic,
	"flac": models.TypeMusic,
	"ogg":  models.TypeMusic,
	"oga":  models.TypeMusic,
	"m4a":  models.TypeMusic,
	"aac":  models.TypeMusic,
	"opus": models.TypeMusic,
	"wav":  models.TypeMusic,
	"wma":  models.TypeMusic,
	"ape":  models.TypeMusic,
	"mpc":  models.TypeMusic,
	"m4b":  models.TypeAudiobook,
}

var videoFormats = map[string]models.MediaType{
	"mp4":  models.TypeVideo,
	"m4v":  models.TypeVideo,
	"mkv":  models.TypeVideo,
	"avi":  models.TypeVideo,
	"mov":  models.TypeVideo,
	"webm": models.TypeVideo,
	"mpg":  models.TypeVideo,
	"mpeg": models.TypeVideo,
	"wmv":  models.TypeVideo,
}

// classifyFile maps a file name to its media type by extension. The second
// return is false for files the scanner should ignore entirely (images,
// playlists, cue sheets and so on).
func classifyFile(name string) (string, models.MediaType, bool) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if t, ok := audioFormats[ext]; ok {
		return ext, t, true
	}
	if t, ok := videoFormats[ext]; ok {
		return ext, t, true
	}
	return ext, "", false
}

// applyTags reads embedded metadata into file. Unreadable or absent tags are
// not an error: plenty of files in real libraries carry no tags at all, so the
// fallback is the file name as title and the directory names as album and
// artist, which is what a human browsing the folder tree would infer anyway.
func applyTags(file *models.MediaFile) {
	file.Title = strings.TrimSuffix(filepath.Base(file.Path), filepath.Ext(file.Path))
	file.Album = filepath.Base(filepath.Dir(file.Path))
	file.Artist = filepath.Base(filepath.Dir(filepath.Dir(file.Path)))

	f, err := os.Open(file.Path)
	if err != nil {
		return
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return
	}

	if v := strings.TrimSpace(m.Title()); v != "" {
		file.Title = v
	}
	if v := strings.TrimSpace(m.Album()); v != "" {
		file.Album = v
	}
	if v := strings.TrimSpace(m.Artist()); v != "" {
		file.Artist = v
	}
	if v := strings.TrimSpace(m.AlbumArtist()); v != "" {
		file.AlbumArtist = v
	}
	file.Genre = strings.TrimSpace(m.Genre())

	if y := m.Year(); y > 0 {
		file.Year = &y
	}
	if n, _ := m.Track(); n > 0 {
		file.TrackNumber = &n
	}
	if n, _ := m.Disc(); n > 0 {
		file.DiscNumber = &n
	}

	// A genre of "Podcast" or "Audiobook" overrides the extension-based type,
	// so that podcast episodes saved as plain mp3 land in the right shelf.
	switch strings.ToLower(file.Genre) {
	case "podcast":
		file.Type = models.TypePodcast
	case "audiobook", "audio book":
		file.Type = models.TypeAudiobook
	}
}
