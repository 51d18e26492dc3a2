// Package scanner walks the configured music folders and reconciles the
// catalog with what is actually on disk. Directories are traversed by a single
// goroutine; file metadata extraction fans out to a worker pool since tag
// parsing is the expensive part of a scan.
package scanner

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/discolog/discolog/internal/models"
	"github.com/discolog/discolog/pkg/catalog"
	"github.com/discolog/discolog/pkg/logger"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("scanner")
}

// ErrScanInProgress is returned when Scan is called while another scan is
// still running on the same Scanner.
var ErrScanInProgress = errors.New("scan already in progress")

// Options configures a scan.
type Options struct {
	// WorkerCount is the number of goroutines extracting file metadata.
	WorkerCount int
	// QueueSize is the file job channel capacity.
	QueueSize int
}

// DefaultOptions returns the defaults used when Options is nil.
func DefaultOptions() *Options {
	return &Options{
		WorkerCount: 4,
		QueueSize:   1000,
	}
}

// Stats summarizes a completed scan.
type Stats struct {
	FilesScanned       int
	DirectoriesScanned int
	Unchanged          int
	Errors             int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}

// Scanner drives full-library scans against a catalog store.
type Scanner struct {
	store   *catalog.Store
	folders []models.MusicFolder
	opts    *Options

	scanning atomic.Bool

	filesScanned atomic.Int64
	dirsScanned  atomic.Int64
	unchanged    atomic.Int64
	errorCount   atomic.Int64

	observedMu sync.Mutex
	observed   []string
}

// New returns a Scanner over the given folders. A nil opts means defaults.
func New(store *catalog.Store, folders []models.MusicFolder, opts *Options) *Scanner {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = DefaultOptions().WorkerCount
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultOptions().QueueSize
	}
	return &Scanner{
		store:   store,
		folders: folders,
		opts:    opts,
	}
}

type fileJob struct {
	path   string
	folder string
	mtype  models.MediaType
	format string
	info   fs.FileInfo
	epoch  time.Time
}

// Scan walks every configured folder, upserts what it finds, then sweeps rows
// whose paths were not seen this time. The scan epoch is taken once at the
// start; every row touched by this scan carries it as last_scanned, which is
// what lets the sweep distinguish stale rows without a second walk.
func (sc *Scanner) Scan() (*Stats, error) {
	if !sc.scanning.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer sc.scanning.Store(false)

	epoch := time.Now()
	sc.filesScanned.Store(0)
	sc.dirsScanned.Store(0)
	sc.unchanged.Store(0)
	sc.errorCount.Store(0)
	sc.observed = nil

	log.WithFields(logrus.Fields{
		"folders": len(sc.folders),
		"workers": sc.opts.WorkerCount,
	}).Info("Starting library scan")

	jobs := make(chan fileJob, sc.opts.QueueSize)
	var wg sync.WaitGroup
	for i := 0; i < sc.opts.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if err := sc.processFile(job); err != nil {
					sc.errorCount.Add(1)
					log.WithFields(logrus.Fields{
						"path":  job.path,
						"error": err,
					}).Error("Failed to index file")
				}
			}
		}()
	}

	for _, folder := range sc.folders {
		sc.walkDirectory(folder.Path, folder.Path, epoch, jobs)
	}
	close(jobs)
	wg.Wait()

	if err := sc.store.MarkPresent(sc.observed, epoch); err != nil {
		return nil, err
	}
	if err := sc.store.MarkNonPresent(epoch); err != nil {
		return nil, err
	}

	genres, err := sc.store.GenreAggregates()
	if err != nil {
		return nil, err
	}
	if err := sc.store.ReplaceGenres(genres); err != nil {
		return nil, err
	}

	end := time.Now()
	stats := &Stats{
		FilesScanned:       int(sc.filesScanned.Load()),
		DirectoriesScanned: int(sc.dirsScanned.Load()),
		Unchanged:          int(sc.unchanged.Load()),
		Errors:             int(sc.errorCount.Load()),
		StartTime:          epoch,
		EndTime:            end,
		Duration:           end.Sub(epoch),
	}

	log.WithFields(logrus.Fields{
		"files":       stats.FilesScanned,
		"directories": stats.DirectoriesScanned,
		"unchanged":   stats.Unchanged,
		"errors":      stats.Errors,
		"duration":    stats.Duration,
	}).Info("Library scan complete")

	return stats, nil
}

// walkDirectory recurses depth first. Each directory becomes a catalog row
// itself: ALBUM when it directly contains audio files, DIRECTORY otherwise.
func (sc *Scanner) walkDirectory(path, folder string, epoch time.Time, jobs chan<- fileJob) {
	entries, err := os.ReadDir(path)
	if err != nil {
		sc.errorCount.Add(1)
		log.WithFields(logrus.Fields{
			"path":  path,
			"error": err,
		}).Error("Failed to read directory")
		return
	}

	dirType := models.TypeDirectory
	coverArt := ""
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, t, ok := classifyFile(e.Name()); ok && t != models.TypeVideo {
			dirType = models.TypeAlbum
		}
		if coverArt == "" && isCoverArt(e.Name()) {
			coverArt = filepath.Join(path, e.Name())
		}
	}

	if err := sc.processDirectory(path, folder, dirType, coverArt, epoch); err != nil {
		sc.errorCount.Add(1)
		log.WithFields(logrus.Fields{
			"path":  path,
			"error": err,
		}).Error("Failed to index directory")
		return
	}
	sc.dirsScanned.Add(1)

	for _, e := range entries {
		child := filepath.Join(path, e.Name())
		if e.IsDir() {
			sc.walkDirectory(child, folder, epoch, jobs)
			continue
		}
		format, mtype, ok := classifyFile(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			sc.errorCount.Add(1)
			continue
		}
		jobs <- fileJob{
			path:   child,
			folder: folder,
			mtype:  mtype,
			format: format,
			info:   info,
			epoch:  epoch,
		}
	}
}

func (sc *Scanner) processDirectory(path, folder string, dirType models.MediaType, coverArt string, epoch time.Time) error {
	prior, err := sc.store.MediaFileByPath(path)
	if err != nil {
		return err
	}

	file := &models.MediaFile{
		Path:         path,
		Folder:       folder,
		Type:         dirType,
		Title:        filepath.Base(path),
		ParentPath:   filepath.Dir(path),
		CoverArtPath: coverArt,
		Changed:      epoch,
		Created:      epoch,
		LastScanned:  epoch,
		Present:      true,
	}
	if dirType == models.TypeAlbum {
		file.Album = filepath.Base(path)
		file.Artist = filepath.Base(filepath.Dir(path))
	}
	carryOver(file, prior)

	if err := sc.store.CreateOrUpdate(file); err != nil {
		return err
	}
	sc.recordObserved(path)
	return nil
}

func (sc *Scanner) processFile(job fileJob) error {
	prior, err := sc.store.MediaFileByPath(job.path)
	if err != nil {
		return err
	}

	mtime := job.info.ModTime()
	if prior != nil && prior.Present &&
		prior.Changed.UnixMilli() == mtime.UnixMilli() &&
		prior.Version == sc.store.SchemaVersion() {
		// Nothing changed on disk since the row was written. Skipping the tag
		// read is what makes rescans of a large library cheap; the presence
		// sweep still needs the path recorded.
		sc.unchanged.Add(1)
		sc.recordObserved(job.path)
		return nil
	}

	size := job.info.Size()
	file := &models.MediaFile{
		Path:        job.path,
		Folder:      job.folder,
		Type:        job.mtype,
		Format:      job.format,
		ParentPath:  filepath.Dir(job.path),
		FileSize:    &size,
		Changed:     mtime,
		Created:     mtime,
		LastScanned: job.epoch,
		Present:     true,
	}
	if job.mtype == models.TypeVideo {
		file.Title = strings.TrimSuffix(filepath.Base(job.path), filepath.Ext(job.path))
	} else {
		applyTags(file)
	}
	carryOver(file, prior)

	if err := sc.store.CreateOrUpdate(file); err != nil {
		return err
	}
	sc.filesScanned.Add(1)
	sc.recordObserved(job.path)
	return nil
}

// carryOver preserves the parts of an existing row that a rescan must not
// clobber: the original creation time, play statistics and user comment. A row
// coming back from tombstone state additionally gets the forced-rescan
// sentinel so dependent caches know its subtree history is untrustworthy.
func carryOver(file *models.MediaFile, prior *models.MediaFile) {
	if prior == nil {
		return
	}
	file.Created = prior.Created
	file.PlayCount = prior.PlayCount
	file.LastPlayed = prior.LastPlayed
	file.Comment = prior.Comment
	if prior.Present {
		file.ChildrenLastUpdated = prior.ChildrenLastUpdated
	} else {
		file.ChildrenLastUpdated = catalog.ForcedChildRescan
	}
}

func (sc *Scanner) recordObserved(path string) {
	sc.observedMu.Lock()
	sc.observed = append(sc.observed, path)
	sc.observedMu.Unlock()
}

var coverArtNames = map[string]bool{
	"cover.jpg":  true,
	"cover.png":  true,
	"folder.jpg": true,
	"folder.png": true,
	"album.jpg":  true,
	"front.jpg":  true,
}

func isCoverArt(name string) bool {
	return coverArtNames[strings.ToLower(name)]
}
