// Package catalog maintains the persisted, queryable model of every media
// file discovered on disk, plus user annotations (stars, ratings, play counts,
// genre aggregates). It owns the presence mark-and-sweep lifecycle that keeps
// the catalog consistent across rescans, and the dynamic predicate builder
// behind random song search.
package catalog

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/discolog/discolog/internal/models"
	"github.com/discolog/discolog/pkg/logger"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("catalog")
}

// CurrentSchemaVersion is stamped into the version column on every write.
// It tracks the shape of the metadata the writer produces, not the SQL schema;
// future migrations key off it.
const CurrentSchemaVersion = 4

// ForcedChildRescan is the children_last_updated sentinel. A row stamped with
// it has its children fully re-enumerated on the next scan instead of trusted
// from cache; it is applied whenever a row goes non-present so that a later
// resurrection is detected correctly.
var ForcedChildRescan = time.UnixMilli(1)

const insertColumns = "path, folder, type, format, title, album, artist, album_artist, " +
	"disc_number, track_number, year, genre, bit_rate, variable_bit_rate, duration, " +
	"file_size, width, height, cover_art_path, parent_path, play_count, last_played, " +
	"comment, created, changed, last_scanned, children_last_updated, present, " +
	"version, mb_release_id, mb_recording_id"

const queryColumns = "id, " + insertColumns

// Options configures a Store.
type Options struct {
	// SchemaVersion overrides the version stamped on every write. Injected
	// rather than read from a package global so that multiple stores (e.g. in
	// tests) cannot cross-contaminate. Zero means CurrentSchemaVersion.
	SchemaVersion int

	// WriteQueue tunes the write serialization queue. Nil means defaults.
	WriteQueue *WriteQueueConfig
}

// Store is the catalog database. All mutations are funneled through a single
// write queue goroutine; SQLite only supports one writer at a time and
// concurrent write attempts fail with "database is locked".
type Store struct {
	db      *sql.DB
	wq      *WriteQueue
	version int
}

// Open opens (creating if necessary) the catalog database at path.
// Use ":memory:" for an ephemeral store.
func Open(path string, opts *Options) (*Store, error) {
	if opts == nil {
		opts = &Options{}
	}

	log.WithField("path", path).Info("Opening catalog database")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection only. Writes are serialized through the queue anyway, and
	// a pooled ":memory:" database would otherwise be a different database on
	// every connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &Store{db: db, version: opts.SchemaVersion}
	if s.version == 0 {
		s.version = CurrentSchemaVersion
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.verifySchema(); err != nil {
		db.Close()
		return nil, err
	}

	s.wq = NewWriteQueue(db, opts.WriteQueue)
	s.wq.Start()

	return s, nil
}

// Close stops the write queue and closes the database.
func (s *Store) Close() error {
	if s.wq != nil {
		s.wq.Stop()
	}
	return s.db.Close()
}

// SchemaVersion returns the version this store stamps on writes.
func (s *Store) SchemaVersion() int {
	return s.version
}

func (s *Store) initSchema() error {
	log.Debug("Creating tables and indexes")

	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS media_file (
		id INTEGER PRIMARY KEY,
		path TEXT UNIQUE NOT NULL,
		folder TEXT,
		type TEXT NOT NULL CHECK(type IN ('DIRECTORY', 'MUSIC', 'PODCAST', 'AUDIOBOOK', 'VIDEO', 'ALBUM')),
		format TEXT,
		title TEXT,
		album TEXT,
		artist TEXT,
		album_artist TEXT,
		disc_number INTEGER,
		track_number INTEGER,
		year INTEGER,
		genre TEXT,
		bit_rate INTEGER,
		variable_bit_rate INTEGER NOT NULL DEFAULT 0,
		duration REAL,
		file_size INTEGER,
		width INTEGER,
		height INTEGER,
		cover_art_path TEXT,
		parent_path TEXT,
		play_count INTEGER,
		last_played INTEGER,
		comment TEXT,
		created INTEGER NOT NULL,
		changed INTEGER,
		last_scanned INTEGER,
		children_last_updated INTEGER,
		present INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL,
		mb_release_id TEXT,
		mb_recording_id TEXT
	)`); err != nil {
		return err
	}

	for _, stmt := range []string{
		"CREATE INDEX IF NOT EXISTS idx_media_file_parent_path ON media_file(parent_path)",
		"CREATE INDEX IF NOT EXISTS idx_media_file_type_folder ON media_file(type, folder)",
		"CREATE INDEX IF NOT EXISTS idx_media_file_album_artist ON media_file(album_artist, album)",
		"CREATE INDEX IF NOT EXISTS idx_media_file_last_scanned ON media_file(last_scanned)",
	} {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}

	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS starred_media_file (
		id INTEGER PRIMARY KEY,
		media_file_id INTEGER NOT NULL,
		username TEXT NOT NULL,
		created INTEGER NOT NULL,
		UNIQUE (media_file_id, username)
	)`); err != nil {
		return err
	}

	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS genre (
		name TEXT PRIMARY KEY,
		song_count INTEGER NOT NULL DEFAULT 0,
		album_count INTEGER NOT NULL DEFAULT 0
	)`); err != nil {
		return err
	}

	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS user_rating (
		path TEXT NOT NULL,
		username TEXT NOT NULL,
		rating INTEGER NOT NULL,
		PRIMARY KEY (path, username)
	)`); err != nil {
		return err
	}

	// Obsolete pre-catalog table. Consulted once per path, on first insert,
	// to carry play counts and comments forward; never written.
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS music_file_info (
		path TEXT PRIMARY KEY,
		play_count INTEGER,
		last_played INTEGER,
		comment TEXT
	)`); err != nil {
		return err
	}

	log.Debug("Schema initialization complete")
	return nil
}

// verifySchema checks the media_file column set against the column list every
// query scans by, once at open. A drifted schema fails fast here instead of
// silently misaligning row mapping.
func (s *Store) verifySchema() error {
	rows, err := s.db.Query("PRAGMA table_info(media_file)")
	if err != nil {
		return fmt.Errorf("failed to inspect schema: %w", err)
	}
	defer rows.Close()

	have := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return err
		}
		have[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, col := range strings.Split(queryColumns, ",") {
		col = strings.TrimSpace(col)
		if !have[col] {
			return fmt.Errorf("media_file schema mismatch: missing column %q", col)
		}
	}
	return nil
}

// write submits a mutation to the write queue and waits for it.
func (s *Store) write(op func(db *sql.DB) error) error {
	return s.wq.Submit(op)
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanMediaFile maps one row in queryColumns order.
func scanMediaFile(r rowScanner) (*models.MediaFile, error) {
	var (
		m           models.MediaFile
		folder      sql.NullString
		typ         string
		format      sql.NullString
		title       sql.NullString
		album       sql.NullString
		artist      sql.NullString
		albumArtist sql.NullString
		discNumber  sql.NullInt64
		trackNumber sql.NullInt64
		year        sql.NullInt64
		genre       sql.NullString
		bitRate     sql.NullInt64
		duration    sql.NullFloat64
		fileSize    sql.NullInt64
		width       sql.NullInt64
		height      sql.NullInt64
		coverArt    sql.NullString
		parentPath  sql.NullString
		playCount   sql.NullInt64
		lastPlayed  sql.NullInt64
		comment     sql.NullString
		created     int64
		changed     sql.NullInt64
		lastScanned sql.NullInt64
		childrenLU  sql.NullInt64
		mbRelease   sql.NullString
		mbRecording sql.NullString
	)

	err := r.Scan(&m.ID, &m.Path, &folder, &typ, &format, &title, &album, &artist,
		&albumArtist, &discNumber, &trackNumber, &year, &genre, &bitRate,
		&m.VariableBitRate, &duration, &fileSize, &width, &height, &coverArt,
		&parentPath, &playCount, &lastPlayed, &comment, &created, &changed,
		&lastScanned, &childrenLU, &m.Present, &m.Version, &mbRelease, &mbRecording)
	if err != nil {
		return nil, err
	}

	m.Folder = folder.String
	m.Type = models.MediaType(typ)
	m.Format = format.String
	m.Title = title.String
	m.Album = album.String
	m.Artist = artist.String
	m.AlbumArtist = albumArtist.String
	m.DiscNumber = intPtr(discNumber)
	m.TrackNumber = intPtr(trackNumber)
	m.Year = intPtr(year)
	m.Genre = genre.String
	m.BitRate = intPtr(bitRate)
	m.Duration = duration.Float64
	m.FileSize = int64Ptr(fileSize)
	m.Width = intPtr(width)
	m.Height = intPtr(height)
	m.CoverArtPath = coverArt.String
	m.ParentPath = parentPath.String
	m.PlayCount = intPtr(playCount)
	m.LastPlayed = timePtr(lastPlayed)
	m.Comment = comment.String
	m.Created = time.UnixMilli(created)
	m.Changed = timeVal(changed)
	m.LastScanned = timeVal(lastScanned)
	m.ChildrenLastUpdated = timeVal(childrenLU)
	m.MusicBrainzReleaseID = mbRelease.String
	m.MusicBrainzRecordingID = mbRecording.String

	return &m, nil
}

// queryMediaFiles runs a query selecting queryColumns and maps every row.
func (s *Store) queryMediaFiles(query string, args ...any) ([]*models.MediaFile, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*models.MediaFile
	for rows.Next() {
		m, err := scanMediaFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, m)
	}
	return files, rows.Err()
}

// queryMediaFile returns the single matching row, or (nil, nil) when absent.
func (s *Store) queryMediaFile(query string, args ...any) (*models.MediaFile, error) {
	m, err := scanMediaFile(s.db.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Null conversion helpers. Empty strings, zero times and nil pointers are
// written as NULL so the range filters can tell "unset" from "zero".

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func nullTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func nullIntPtr(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt64Ptr(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func timeVal(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64)
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

// inPlaceholders returns n comma-joined "?" markers for an IN clause.
func inPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// stringArgs widens a string slice for driver argument lists.
func stringArgs(vals []string) []any {
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	return args
}
