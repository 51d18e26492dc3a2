package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/discolog/discolog/internal/models"
	"github.com/discolog/discolog/pkg/catalog"
	"github.com/discolog/discolog/pkg/config"
	"github.com/discolog/discolog/pkg/logger"
	"github.com/discolog/discolog/pkg/scanner"
	"github.com/discolog/discolog/pkg/server"
)

var (
	log *logrus.Entry

	// Global options
	configPath string

	// Scan command options
	workers int

	// Serve command options
	listen string

	// Random command options
	randomCount  int
	randomGenre  string
	randomFormat string
	fromYear     int
	toYear       int

	// Albums command options
	albumView   string
	albumOffset int
	albumCount  int
	albumGenre  string
	byArtist    bool

	// Genres command options
	sortByAlbums bool

	// Annotation command options
	user string
)

func init() {
	log = logger.WithName("cli")
}

func main() {
	var rootCmd = &cobra.Command{
		Use:   "discolog",
		Short: "Music library indexing and browsing tool",
		Long: `discolog - Music library catalog built with Go.

It scans music folders, stores track and album metadata in SQLite, and
serves the catalog over a JSON API for browsing, search and playlists.`,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.config/discolog/config.toml)")

	var scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Scan the configured music folders",
		Run:   runScan,
	}
	scanCmd.Flags().IntVar(&workers, "workers", 0, "Number of metadata extraction workers (default: from config)")

	var serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Run:   runServe,
	}
	serveCmd.Flags().StringVar(&listen, "listen", "", "Listen address (default: from config)")

	var randomCmd = &cobra.Command{
		Use:   "random",
		Short: "Pick random songs from the catalog",
		Run:   runRandom,
	}
	randomCmd.Flags().IntVar(&randomCount, "count", 10, "Number of songs to pick")
	randomCmd.Flags().StringVar(&randomGenre, "genre", "", "Restrict to a genre")
	randomCmd.Flags().StringVar(&randomFormat, "format", "", "Restrict to a file format")
	randomCmd.Flags().IntVar(&fromYear, "from-year", 0, "Only songs released in or after this year")
	randomCmd.Flags().IntVar(&toYear, "to-year", 0, "Only songs released in or before this year")

	var albumsCmd = &cobra.Command{
		Use:   "albums",
		Short: "List albums",
		Run:   runAlbums,
	}
	albumsCmd.Flags().StringVar(&albumView, "view", "newest", "View: newest, frequent, recent, alphabetical, byYear, byGenre")
	albumsCmd.Flags().IntVar(&albumOffset, "offset", 0, "Pagination offset")
	albumsCmd.Flags().IntVar(&albumCount, "count", 20, "Maximum number of albums")
	albumsCmd.Flags().StringVar(&albumGenre, "genre", "", "Genre (only with --view byGenre)")
	albumsCmd.Flags().IntVar(&fromYear, "from-year", 0, "Start year (only with --view byYear)")
	albumsCmd.Flags().IntVar(&toYear, "to-year", 0, "End year (only with --view byYear)")
	albumsCmd.Flags().BoolVar(&byArtist, "by-artist", false, "Sort by artist (only with --view alphabetical)")

	var genresCmd = &cobra.Command{
		Use:   "genres",
		Short: "List genres with song and album counts",
		Run:   runGenres,
	}
	genresCmd.Flags().BoolVar(&sortByAlbums, "by-albums", false, "Sort by album count instead of song count")

	var starCmd = &cobra.Command{
		Use:   "star <id>...",
		Short: "Star catalog entries",
		Args:  cobra.MinimumNArgs(1),
		Run:   runStar,
	}
	starCmd.Flags().StringVar(&user, "username", "admin", "User the stars belong to")

	var unstarCmd = &cobra.Command{
		Use:   "unstar <id>...",
		Short: "Unstar catalog entries",
		Args:  cobra.MinimumNArgs(1),
		Run:   runUnstar,
	}
	unstarCmd.Flags().StringVar(&user, "username", "admin", "User the stars belong to")

	var expungeCmd = &cobra.Command{
		Use:   "expunge",
		Short: "Permanently remove entries whose files are gone",
		Run:   runExpunge,
	}

	var statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show catalog statistics",
		Run:   runStats,
	}
	statsCmd.Flags().StringVar(&user, "username", "admin", "User for the starred count")

	rootCmd.AddCommand(scanCmd, serveCmd, randomCmd, albumsCmd, genresCmd, starCmd, unstarCmd, expungeCmd, statsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// setup loads config, applies the log level and opens the catalog store.
func setup() (*config.Config, *catalog.Store) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.ConfigureFromString(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to create database directory: %v\n", err)
			os.Exit(1)
		}
	}

	store, err := catalog.Open(cfg.DatabasePath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open catalog: %v\n", err)
		os.Exit(1)
	}
	return cfg, store
}

func runScan(cmd *cobra.Command, args []string) {
	cfg, store := setup()
	defer store.Close()

	folders := cfg.MusicFolders()
	if len(folders) == 0 {
		fmt.Fprintln(os.Stderr, "Error: No music folders configured. Add a [[folders]] section to the config file.")
		os.Exit(1)
	}

	opts := scanner.DefaultOptions()
	if workers > 0 {
		opts.WorkerCount = workers
	} else if cfg.Scanner.Workers > 0 {
		opts.WorkerCount = cfg.Scanner.Workers
	}

	log.WithFields(logrus.Fields{
		"command": "scan",
		"folders": len(folders),
		"workers": opts.WorkerCount,
	}).Info("Executing command")

	stats, err := scanner.New(store, folders, opts).Scan()
	if err != nil {
		log.WithError(err).Error("Scan failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Scanned %s files and %s directories (%s unchanged, %d errors) in %s\n",
		humanize.Comma(int64(stats.FilesScanned)),
		humanize.Comma(int64(stats.DirectoriesScanned)),
		humanize.Comma(int64(stats.Unchanged)),
		stats.Errors,
		stats.Duration.Round(time.Millisecond))
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, store := setup()
	defer store.Close()

	addr := cfg.Server.Listen
	if listen != "" {
		addr = listen
	}

	folders := cfg.MusicFolders()
	sc := scanner.New(store, folders, &scanner.Options{WorkerCount: cfg.Scanner.Workers})

	if err := server.New(store, folders, sc).Run(addr); err != nil {
		log.WithError(err).Error("Server failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runRandom(cmd *cobra.Command, args []string) {
	cfg, store := setup()
	defer store.Close()

	spec := catalog.RandomSpec{
		Folders: models.FolderPaths(cfg.MusicFolders()),
		Genre:   randomGenre,
		Format:  randomFormat,
		Count:   randomCount,
	}
	if fromYear > 0 {
		spec.FromYear = &fromYear
	}
	if toYear > 0 {
		spec.ToYear = &toYear
	}

	songs, err := store.RandomSongs(spec, "admin")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(songs) == 0 {
		fmt.Println("No songs matched")
		return
	}
	for _, s := range songs {
		fmt.Printf("%-8d %s - %s (%s)\n", s.ID, s.Artist, s.Title, s.Album)
	}
}

func runAlbums(cmd *cobra.Command, args []string) {
	cfg, store := setup()
	defer store.Close()

	folders := models.FolderPaths(cfg.MusicFolders())

	var (
		albums []*models.MediaFile
		err    error
	)
	switch albumView {
	case "newest":
		albums, err = store.NewestAlbums(albumOffset, albumCount, folders)
	case "frequent":
		albums, err = store.MostFrequentlyPlayedAlbums(albumOffset, albumCount, folders)
	case "recent":
		albums, err = store.MostRecentlyPlayedAlbums(albumOffset, albumCount, folders)
	case "alphabetical":
		albums, err = store.AlphabeticalAlbums(albumOffset, albumCount, byArtist, folders)
	case "byYear":
		albums, err = store.AlbumsByYear(albumOffset, albumCount, fromYear, toYear, folders)
	case "byGenre":
		albums, err = store.AlbumsByGenre(albumOffset, albumCount, albumGenre, folders)
	default:
		fmt.Fprintf(os.Stderr, "Error: Unknown view %q\n", albumView)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(albums) == 0 {
		fmt.Println("No albums found")
		return
	}
	fmt.Printf("%-8s %-30s %-30s %s\n", "ID", "Artist", "Album", "Year")
	for _, a := range albums {
		year := ""
		if a.Year != nil {
			year = strconv.Itoa(*a.Year)
		}
		fmt.Printf("%-8d %-30s %-30s %s\n", a.ID, truncateString(a.Artist, 30), truncateString(a.Album, 30), year)
	}
}

func runGenres(cmd *cobra.Command, args []string) {
	_, store := setup()
	defer store.Close()

	genres, err := store.Genres(sortByAlbums)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(genres) == 0 {
		fmt.Println("No genres found. Run 'discolog scan' first.")
		return
	}
	fmt.Printf("%-30s %10s %10s\n", "Genre", "Songs", "Albums")
	for _, g := range genres {
		fmt.Printf("%-30s %10s %10s\n",
			truncateString(g.Name, 30),
			humanize.Comma(int64(g.SongCount)),
			humanize.Comma(int64(g.AlbumCount)))
	}
}

func runStar(cmd *cobra.Command, args []string) {
	_, store := setup()
	defer store.Close()

	ids := parseIDs(args)
	if err := store.Star(ids, user); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Starred %d entries for %s\n", len(ids), user)
}

func runUnstar(cmd *cobra.Command, args []string) {
	_, store := setup()
	defer store.Close()

	ids := parseIDs(args)
	if err := store.Unstar(ids, user); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Unstarred %d entries for %s\n", len(ids), user)
}

func runExpunge(cmd *cobra.Command, args []string) {
	_, store := setup()
	defer store.Close()

	removed, err := store.Expunge()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Removed %s entries\n", humanize.Comma(removed))
}

func runStats(cmd *cobra.Command, args []string) {
	cfg, store := setup()
	defer store.Close()

	folders := models.FolderPaths(cfg.MusicFolders())

	albums, err := store.AlbumCount(folders)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	songs, err := store.SongCount(folders)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	played, err := store.PlayedAlbumCount(folders)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	starred, err := store.StarredAlbumCount(user, folders)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Albums:         %s\n", humanize.Comma(int64(albums)))
	fmt.Printf("Songs:          %s\n", humanize.Comma(int64(songs)))
	fmt.Printf("Played albums:  %s\n", humanize.Comma(int64(played)))
	fmt.Printf("Starred albums: %s (%s)\n", humanize.Comma(int64(starred)), user)
}

func parseIDs(args []string) []int64 {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Invalid id %q\n", a)
			os.Exit(1)
		}
		ids = append(ids, id)
	}
	return ids
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
