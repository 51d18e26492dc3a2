package catalog

import (
	"github.com/discolog/discolog/internal/models"
)

// Read operations. All folder-scoped queries take an explicit allow-list of
// library root paths; an empty list yields an empty result and runs no query.
// Every view filters on present, and every paginated view carries a trailing
// id in its ORDER BY so page boundaries stay stable across calls.

// MediaFileByPath returns the catalog row for path, or (nil, nil) if absent.
func (s *Store) MediaFileByPath(path string) (*models.MediaFile, error) {
	return s.queryMediaFile("SELECT "+queryColumns+" FROM media_file WHERE path = ?", path)
}

// MediaFileByID returns the catalog row for id, or (nil, nil) if absent.
func (s *Store) MediaFileByID(id int64) (*models.MediaFile, error) {
	return s.queryMediaFile("SELECT "+queryColumns+" FROM media_file WHERE id = ?", id)
}

// ChildrenOf returns the present direct children of path.
func (s *Store) ChildrenOf(path string) ([]*models.MediaFile, error) {
	return s.queryMediaFiles("SELECT "+queryColumns+" FROM media_file WHERE parent_path = ? AND present", path)
}

// SongsForAlbum returns the songs of an album in disc and track order.
func (s *Store) SongsForAlbum(artist, album string) ([]*models.MediaFile, error) {
	return s.queryMediaFiles("SELECT "+queryColumns+` FROM media_file
		WHERE album_artist = ? AND album = ? AND present AND type IN (`+inPlaceholders(len(models.AudioTypes))+`)
		ORDER BY disc_number, track_number`,
		append([]any{artist, album}, audioTypeArgs()...)...)
}

// Videos returns video entries ordered by title.
func (s *Store) Videos(count, offset int, folders []string) ([]*models.MediaFile, error) {
	if len(folders) == 0 {
		return nil, nil
	}
	args := append([]any{string(models.TypeVideo)}, stringArgs(folders)...)
	args = append(args, count, offset)
	return s.queryMediaFiles("SELECT "+queryColumns+` FROM media_file
		WHERE type = ? AND present AND folder IN (`+inPlaceholders(len(folders))+`)
		ORDER BY title, id LIMIT ? OFFSET ?`, args...)
}

// ArtistByName returns the artist directory entry with the given name.
func (s *Store) ArtistByName(name string, folders []string) (*models.MediaFile, error) {
	if len(folders) == 0 {
		return nil, nil
	}
	args := append([]any{string(models.TypeDirectory), name}, stringArgs(folders)...)
	return s.queryMediaFile("SELECT "+queryColumns+` FROM media_file
		WHERE type = ? AND artist = ? AND present AND folder IN (`+inPlaceholders(len(folders))+`)`, args...)
}

// MostFrequentlyPlayedAlbums returns albums ordered by descending play count.
func (s *Store) MostFrequentlyPlayedAlbums(offset, count int, folders []string) ([]*models.MediaFile, error) {
	if len(folders) == 0 {
		return nil, nil
	}
	args := append([]any{string(models.TypeAlbum)}, stringArgs(folders)...)
	args = append(args, count, offset)
	return s.queryMediaFiles("SELECT "+queryColumns+` FROM media_file
		WHERE type = ? AND play_count > 0 AND present AND folder IN (`+inPlaceholders(len(folders))+`)
		ORDER BY play_count DESC, id LIMIT ? OFFSET ?`, args...)
}

// MostRecentlyPlayedAlbums returns albums ordered by descending last play time.
func (s *Store) MostRecentlyPlayedAlbums(offset, count int, folders []string) ([]*models.MediaFile, error) {
	if len(folders) == 0 {
		return nil, nil
	}
	args := append([]any{string(models.TypeAlbum)}, stringArgs(folders)...)
	args = append(args, count, offset)
	return s.queryMediaFiles("SELECT "+queryColumns+` FROM media_file
		WHERE type = ? AND last_played IS NOT NULL AND present AND folder IN (`+inPlaceholders(len(folders))+`)
		ORDER BY last_played DESC, id LIMIT ? OFFSET ?`, args...)
}

// NewestAlbums returns albums ordered by descending creation time.
func (s *Store) NewestAlbums(offset, count int, folders []string) ([]*models.MediaFile, error) {
	if len(folders) == 0 {
		return nil, nil
	}
	args := append([]any{string(models.TypeAlbum)}, stringArgs(folders)...)
	args = append(args, count, offset)
	return s.queryMediaFiles("SELECT "+queryColumns+` FROM media_file
		WHERE type = ? AND folder IN (`+inPlaceholders(len(folders))+`) AND present
		ORDER BY created DESC, id LIMIT ? OFFSET ?`, args...)
}

// AlphabeticalAlbums returns albums in alphabetical order, optionally sorted
// by artist name first.
func (s *Store) AlphabeticalAlbums(offset, count int, byArtist bool, folders []string) ([]*models.MediaFile, error) {
	if len(folders) == 0 {
		return nil, nil
	}
	orderBy := "album"
	if byArtist {
		orderBy = "artist, album"
	}
	args := append([]any{string(models.TypeAlbum)}, stringArgs(folders)...)
	args = append(args, count, offset)
	return s.queryMediaFiles("SELECT "+queryColumns+` FROM media_file
		WHERE type = ? AND folder IN (`+inPlaceholders(len(folders))+`) AND present
		ORDER BY `+orderBy+`, id LIMIT ? OFFSET ?`, args...)
}

// AlbumsByYear returns albums whose year falls in the given range, ascending.
// A reversed range (fromYear > toYear) flips the ordering to descending.
func (s *Store) AlbumsByYear(offset, count, fromYear, toYear int, folders []string) ([]*models.MediaFile, error) {
	if len(folders) == 0 {
		return nil, nil
	}

	lo, hi, order := fromYear, toYear, "year"
	if fromYear > toYear {
		lo, hi, order = toYear, fromYear, "year DESC"
	}

	args := append([]any{string(models.TypeAlbum)}, stringArgs(folders)...)
	args = append(args, lo, hi, count, offset)
	return s.queryMediaFiles("SELECT "+queryColumns+` FROM media_file
		WHERE type = ? AND folder IN (`+inPlaceholders(len(folders))+`) AND present
		AND year BETWEEN ? AND ? ORDER BY `+order+`, id LIMIT ? OFFSET ?`, args...)
}

// AlbumsByGenre returns albums with the given genre.
func (s *Store) AlbumsByGenre(offset, count int, genre string, folders []string) ([]*models.MediaFile, error) {
	if len(folders) == 0 {
		return nil, nil
	}
	args := append([]any{string(models.TypeAlbum)}, stringArgs(folders)...)
	args = append(args, genre, count, offset)
	return s.queryMediaFiles("SELECT "+queryColumns+` FROM media_file
		WHERE type = ? AND folder IN (`+inPlaceholders(len(folders))+`) AND present AND genre = ?
		ORDER BY id LIMIT ? OFFSET ?`, args...)
}

// SongsByGenre returns songs with the given genre.
func (s *Store) SongsByGenre(genre string, offset, count int, folders []string) ([]*models.MediaFile, error) {
	if len(folders) == 0 {
		return nil, nil
	}
	args := append(audioTypeArgs(), genre)
	args = append(args, stringArgs(folders)...)
	args = append(args, count, offset)
	return s.queryMediaFiles("SELECT "+queryColumns+` FROM media_file
		WHERE type IN (`+inPlaceholders(len(models.AudioTypes))+`) AND genre = ? AND present
		AND folder IN (`+inPlaceholders(len(folders))+`) ORDER BY id LIMIT ? OFFSET ?`, args...)
}

// SongsByArtist returns songs by the given artist.
func (s *Store) SongsByArtist(artist string, offset, count int) ([]*models.MediaFile, error) {
	args := append(audioTypeArgs(), artist, count, offset)
	return s.queryMediaFiles("SELECT "+queryColumns+` FROM media_file
		WHERE type IN (`+inPlaceholders(len(models.AudioTypes))+`) AND artist = ? AND present
		ORDER BY id LIMIT ? OFFSET ?`, args...)
}

// SongByArtistAndTitle returns the first song matching artist and title, or
// (nil, nil). Blank artist or title never matches.
func (s *Store) SongByArtistAndTitle(artist, title string, folders []string) (*models.MediaFile, error) {
	if len(folders) == 0 || artist == "" || title == "" {
		return nil, nil
	}
	args := append([]any{artist, title, string(models.TypeMusic)}, stringArgs(folders)...)
	return s.queryMediaFile("SELECT "+queryColumns+` FROM media_file
		WHERE artist = ? AND title = ? AND type = ? AND present
		AND folder IN (`+inPlaceholders(len(folders))+`)`, args...)
}

// StarredAlbums returns the user's starred albums, most recently starred
// first, star row id breaking ties within one star batch.
func (s *Store) StarredAlbums(offset, count int, username string, folders []string) ([]*models.MediaFile, error) {
	return s.starred(offset, count, username, folders, models.TypeAlbum)
}

// StarredDirectories returns the user's starred artist directories.
func (s *Store) StarredDirectories(offset, count int, username string, folders []string) ([]*models.MediaFile, error) {
	return s.starred(offset, count, username, folders, models.TypeDirectory)
}

// StarredFiles returns the user's starred songs and videos.
func (s *Store) StarredFiles(offset, count int, username string, folders []string) ([]*models.MediaFile, error) {
	return s.starred(offset, count, username, folders,
		models.TypeMusic, models.TypePodcast, models.TypeAudiobook, models.TypeVideo)
}

func (s *Store) starred(offset, count int, username string, folders []string, types ...models.MediaType) ([]*models.MediaFile, error) {
	if len(folders) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(types)+len(folders)+3)
	for _, t := range types {
		args = append(args, string(t))
	}
	args = append(args, stringArgs(folders)...)
	args = append(args, username, count, offset)

	return s.queryMediaFiles("SELECT "+prefixColumns(queryColumns, "media_file")+`
		FROM starred_media_file
		JOIN media_file ON media_file.id = starred_media_file.media_file_id
		WHERE media_file.present AND media_file.type IN (`+inPlaceholders(len(types))+`)
		AND media_file.folder IN (`+inPlaceholders(len(folders))+`)
		AND starred_media_file.username = ?
		ORDER BY starred_media_file.created DESC, starred_media_file.id
		LIMIT ? OFFSET ?`, args...)
}

// AlbumCount returns the number of present albums in the given folders.
func (s *Store) AlbumCount(folders []string) (int, error) {
	if len(folders) == 0 {
		return 0, nil
	}
	args := append([]any{string(models.TypeAlbum)}, stringArgs(folders)...)
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM media_file
		WHERE type = ? AND folder IN (`+inPlaceholders(len(folders))+`) AND present`, args...).Scan(&count)
	return count, err
}

// PlayedAlbumCount returns the number of albums played at least once.
func (s *Store) PlayedAlbumCount(folders []string) (int, error) {
	if len(folders) == 0 {
		return 0, nil
	}
	args := append([]any{string(models.TypeAlbum)}, stringArgs(folders)...)
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM media_file
		WHERE type = ? AND play_count > 0 AND present AND folder IN (`+inPlaceholders(len(folders))+`)`, args...).Scan(&count)
	return count, err
}

// StarredAlbumCount returns the number of albums the user has starred.
func (s *Store) StarredAlbumCount(username string, folders []string) (int, error) {
	if len(folders) == 0 {
		return 0, nil
	}
	args := append([]any{string(models.TypeAlbum)}, stringArgs(folders)...)
	args = append(args, username)
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*)
		FROM starred_media_file
		JOIN media_file ON media_file.id = starred_media_file.media_file_id
		WHERE media_file.type = ? AND media_file.present
		AND media_file.folder IN (`+inPlaceholders(len(folders))+`)
		AND starred_media_file.username = ?`, args...).Scan(&count)
	return count, err
}

// SongCount returns the number of present songs in the given folders.
func (s *Store) SongCount(folders []string) (int, error) {
	if len(folders) == 0 {
		return 0, nil
	}
	args := append(audioTypeArgs(), stringArgs(folders)...)
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM media_file
		WHERE type IN (`+inPlaceholders(len(models.AudioTypes))+`) AND present
		AND folder IN (`+inPlaceholders(len(folders))+`)`, args...).Scan(&count)
	return count, err
}

// Genres returns the genre aggregates ordered by song count, or album count
// when sortByAlbum is set, with descending name as the secondary key.
func (s *Store) Genres(sortByAlbum bool) ([]models.Genre, error) {
	orderBy := "song_count"
	if sortByAlbum {
		orderBy = "album_count"
	}

	rows, err := s.db.Query(`SELECT name, song_count, album_count FROM genre
		ORDER BY ` + orderBy + `, name DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var genres []models.Genre
	for rows.Next() {
		var g models.Genre
		if err := rows.Scan(&g.Name, &g.SongCount, &g.AlbumCount); err != nil {
			return nil, err
		}
		genres = append(genres, g)
	}
	return genres, rows.Err()
}

// GenreAggregates recomputes genre counts from the present catalog rows: one
// aggregate per distinct genre, counting songs and albums carrying it. Feed
// the result to ReplaceGenres to publish it.
func (s *Store) GenreAggregates() ([]models.Genre, error) {
	args := append(audioTypeArgs(), string(models.TypeAlbum))
	rows, err := s.db.Query(`SELECT genre,
			SUM(CASE WHEN type IN (`+inPlaceholders(len(models.AudioTypes))+`) THEN 1 ELSE 0 END),
			SUM(CASE WHEN type = ? THEN 1 ELSE 0 END)
		FROM media_file
		WHERE genre IS NOT NULL AND present
		GROUP BY genre
		ORDER BY genre`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var genres []models.Genre
	for rows.Next() {
		var g models.Genre
		if err := rows.Scan(&g.Name, &g.SongCount, &g.AlbumCount); err != nil {
			return nil, err
		}
		genres = append(genres, g)
	}
	return genres, rows.Err()
}

func audioTypeArgs() []any {
	args := make([]any, len(models.AudioTypes))
	for i, t := range models.AudioTypes {
		args[i] = string(t)
	}
	return args
}
