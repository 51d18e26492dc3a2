package catalog

import (
	"strings"
	"time"

	"github.com/discolog/discolog/internal/models"
)

// RandomSpec is the filter specification for random song search. Every field
// except Folders and Count is optional: empty strings and nil pointers mean
// "no restriction on this attribute".
//
// Range filters are tri-state. A lower bound alone excludes rows where the
// column is unset; an upper bound alone includes them (no lower limit, and
// unset counts as within range); both bounds make a plain comparison.
type RandomSpec struct {
	// Folders is the library-root allow-list. Empty means an empty result,
	// never "all folders".
	Folders []string

	Genre  string
	Format string

	FromYear *int
	ToYear   *int

	MinLastPlayed *time.Time
	MaxLastPlayed *time.Time

	// Album rating bounds join each song to its owning album's rating row for
	// the searching user. When several ALBUM rows share the same (album,
	// artist) pair, the one with the lowest id wins.
	MinAlbumRating *int
	MaxAlbumRating *int

	MinPlayCount *int
	MaxPlayCount *int

	// ShowStarred/ShowUnstarred gate on the user's star rows only when exactly
	// one of them is set. Both set and both clear are equivalent: no
	// star-based restriction. That XOR behavior is intentional; keep it.
	ShowStarred   bool
	ShowUnstarred bool

	// Count is the sample size. The result is a uniformly random sample
	// across all matching rows, never the first Count matches, and there is
	// no pagination offset: every call draws fresh.
	Count int
}

// filterClause is one independent conjunct of the WHERE clause, with its bind
// arguments. Absent filters simply contribute no clause; composition is pure
// conjunction, never string-built values.
type filterClause struct {
	sql  string
	args []any
}

// rangeClauses renders the tri-state range semantics for one column.
func rangeClauses(col string, min, max any, hasMin, hasMax bool) []filterClause {
	var clauses []filterClause
	if hasMin {
		clauses = append(clauses, filterClause{sql: col + " >= ?", args: []any{min}})
	}
	if hasMax {
		if hasMin {
			clauses = append(clauses, filterClause{sql: col + " <= ?", args: []any{max}})
		} else {
			clauses = append(clauses, filterClause{sql: "(" + col + " IS NULL OR " + col + " <= ?)", args: []any{max}})
		}
	}
	return clauses
}

func intRange(col string, min, max *int) []filterClause {
	return rangeClauses(col, deref(min), deref(max), min != nil, max != nil)
}

func timeRange(col string, min, max *time.Time) []filterClause {
	var lo, hi any
	if min != nil {
		lo = min.UnixMilli()
	}
	if max != nil {
		hi = max.UnixMilli()
	}
	return rangeClauses(col, lo, hi, min != nil, max != nil)
}

func deref(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

// RandomSongs returns a uniformly random sample of up to spec.Count songs
// matching the spec, for the given user. The random ordering happens database
// side so the sample is drawn across all matching rows.
func (s *Store) RandomSongs(spec RandomSpec, username string) ([]*models.MediaFile, error) {
	if len(spec.Folders) == 0 || spec.Count <= 0 {
		return nil, nil
	}

	joinStarred := spec.ShowStarred != spec.ShowUnstarred
	joinRating := spec.MinAlbumRating != nil || spec.MaxAlbumRating != nil

	var b strings.Builder
	var args []any

	b.WriteString("SELECT " + prefixColumns(queryColumns, "media_file") + " FROM media_file ")

	if joinStarred {
		b.WriteString("LEFT OUTER JOIN starred_media_file ON media_file.id = starred_media_file.media_file_id " +
			"AND starred_media_file.username = ? ")
		args = append(args, username)
	}

	if joinRating {
		// Resolve the owning album by (album, artist) name pair; MIN(id)
		// breaks ties when distinct albums collide on the same pair.
		b.WriteString("LEFT OUTER JOIN media_file media_album ON media_album.id = " +
			"(SELECT MIN(a.id) FROM media_file a WHERE a.type = 'ALBUM' " +
			"AND a.album = media_file.album AND a.artist = media_file.artist) ")
		b.WriteString("LEFT OUTER JOIN user_rating ON user_rating.path = media_album.path " +
			"AND user_rating.username = ? ")
		args = append(args, username)
	}

	clauses := []filterClause{
		{sql: "media_file.present"},
		{sql: "media_file.type = ?", args: []any{string(models.TypeMusic)}},
		{sql: "media_file.folder IN (" + inPlaceholders(len(spec.Folders)) + ")", args: stringArgs(spec.Folders)},
	}

	if spec.Genre != "" {
		clauses = append(clauses, filterClause{sql: "media_file.genre = ?", args: []any{spec.Genre}})
	}
	if spec.Format != "" {
		clauses = append(clauses, filterClause{sql: "media_file.format = ?", args: []any{spec.Format}})
	}

	clauses = append(clauses, intRange("media_file.year", spec.FromYear, spec.ToYear)...)
	clauses = append(clauses, timeRange("media_file.last_played", spec.MinLastPlayed, spec.MaxLastPlayed)...)
	clauses = append(clauses, intRange("user_rating.rating", spec.MinAlbumRating, spec.MaxAlbumRating)...)
	clauses = append(clauses, intRange("media_file.play_count", spec.MinPlayCount, spec.MaxPlayCount)...)

	if spec.ShowStarred && !spec.ShowUnstarred {
		clauses = append(clauses, filterClause{sql: "starred_media_file.id IS NOT NULL"})
	}
	if spec.ShowUnstarred && !spec.ShowStarred {
		clauses = append(clauses, filterClause{sql: "starred_media_file.id IS NULL"})
	}

	b.WriteString("WHERE ")
	for i, c := range clauses {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(c.sql)
		args = append(args, c.args...)
	}

	b.WriteString(" ORDER BY RANDOM() LIMIT ?")
	args = append(args, spec.Count)

	return s.queryMediaFiles(b.String(), args...)
}

// prefixColumns qualifies each column in a comma-separated list with a table
// name, for queries that join media_file against itself or the star table.
func prefixColumns(columns, table string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = table + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
