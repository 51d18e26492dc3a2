// Package server exposes the catalog over a small JSON HTTP API.
package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/discolog/discolog/internal/models"
	"github.com/discolog/discolog/pkg/catalog"
	"github.com/discolog/discolog/pkg/logger"
	"github.com/discolog/discolog/pkg/scanner"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("server")
}

// Server wires the catalog store and the configured folders to a gin router.
type Server struct {
	store   *catalog.Store
	folders []models.MusicFolder
	scanner *scanner.Scanner
	router  *gin.Engine
}

// New builds the router. The scanner may be nil, in which case the scan
// endpoint reports that scanning is unavailable.
func New(store *catalog.Store, folders []models.MusicFolder, sc *scanner.Scanner) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		store:   store,
		folders: folders,
		scanner: sc,
		router:  gin.New(),
	}
	s.router.Use(requestLogger(), gin.Recovery())
	s.registerRoutes()
	return s
}

// Router exposes the underlying engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run blocks serving HTTP on addr.
func (s *Server) Run(addr string) error {
	log.WithField("addr", addr).Info("Starting API server")
	return s.router.Run(addr)
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")

	api.GET("/albums", s.handleAlbums)
	api.GET("/albums/songs", s.handleAlbumSongs)
	api.GET("/songs/random", s.handleRandomSongs)
	api.GET("/songs/search", s.handleSongSearch)
	api.GET("/videos", s.handleVideos)
	api.GET("/browse", s.handleBrowse)
	api.GET("/genres", s.handleGenres)
	api.GET("/starred", s.handleStarred)
	api.POST("/star", s.handleStar)
	api.POST("/unstar", s.handleUnstar)
	api.POST("/rating", s.handleSetRating)
	api.DELETE("/rating", s.handleDeleteRating)
	api.GET("/stats", s.handleStats)
	api.POST("/scan", s.handleScan)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"clientIP": c.ClientIP(),
			"duration": time.Since(start),
		}).Info("Request completed")
	}
}
