package models

import "time"

// MediaType classifies a catalog entry.
type MediaType string

const (
	TypeDirectory MediaType = "DIRECTORY"
	TypeMusic     MediaType = "MUSIC"
	TypePodcast   MediaType = "PODCAST"
	TypeAudiobook MediaType = "AUDIOBOOK"
	TypeVideo     MediaType = "VIDEO"
	TypeAlbum     MediaType = "ALBUM"
)

// AudioTypes are the types that count as playable songs.
var AudioTypes = []MediaType{TypeMusic, TypePodcast, TypeAudiobook}

// MediaFile is one catalog row: a directory, track, album or video discovered
// on disk. Path is the natural key and stays stable across rescans of the same
// physical file; ID is assigned on first insert and never changes.
//
// Numeric metadata that can be genuinely unknown (year, play count, bit rate,
// dimensions) is held as a pointer so that "unset" survives the round trip to
// the database as NULL. The range filters depend on that distinction.
type MediaFile struct {
	ID          int64
	Path        string
	Folder      string
	Type        MediaType
	Format      string
	Title       string
	Album       string
	Artist      string
	AlbumArtist string

	DiscNumber      *int
	TrackNumber     *int
	Year            *int
	Genre           string
	BitRate         *int
	VariableBitRate bool
	Duration        float64
	FileSize        *int64
	Width           *int
	Height          *int

	CoverArtPath string
	ParentPath   string

	PlayCount  *int
	LastPlayed *time.Time
	Comment    string

	Created             time.Time
	Changed             time.Time
	LastScanned         time.Time
	ChildrenLastUpdated time.Time

	// Present is false for tombstones: rows whose path vanished from disk and
	// that are pending expunge. Readers never see them.
	Present bool

	// Version is the writer's schema version at the time of the last write.
	Version int

	MusicBrainzReleaseID   string
	MusicBrainzRecordingID string
}

// IsDirectory reports whether the entry is a browsable container.
func (m *MediaFile) IsDirectory() bool {
	return m.Type == TypeDirectory || m.Type == TypeAlbum
}

// IsAudio reports whether the entry is a playable song.
func (m *MediaFile) IsAudio() bool {
	for _, t := range AudioTypes {
		if m.Type == t {
			return true
		}
	}
	return false
}

// Genre is one aggregate row of the genre summary table. The whole table is
// replaced on every recomputation; rows are never updated in place.
type Genre struct {
	Name       string
	SongCount  int
	AlbumCount int
}

// MusicFolder is a configured library root. Every folder-scoped query takes an
// explicit list of these; an empty list always yields an empty result.
type MusicFolder struct {
	Path string
	Name string
}

// FolderPaths extracts the path allow-list for query scoping.
func FolderPaths(folders []MusicFolder) []string {
	paths := make([]string, 0, len(folders))
	for _, f := range folders {
		paths = append(paths, f.Path)
	}
	return paths
}
