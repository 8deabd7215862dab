// file: internal/server/server.go
// version: 1.7.0
// guid: 0a2c4e6d-8f1b-4d3f-b5c7-2e4a6c8e0a3d

// Package server exposes the HTTP API: search, download dispatch, job
// queries, source metadata, the activity feed, and the SSE stream.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JeremiahM37/librarr/internal/database"
	"github.com/JeremiahM37/librarr/internal/download"
	"github.com/JeremiahM37/librarr/internal/jobs"
	"github.com/JeremiahM37/librarr/internal/library"
	"github.com/JeremiahM37/librarr/internal/orchestrator"
	"github.com/JeremiahM37/librarr/internal/realtime"
	"github.com/JeremiahM37/librarr/internal/search"
	"github.com/JeremiahM37/librarr/internal/source"
)

// Version is the reported application version.
const Version = "1.7.0"

// Deps are the collaborators the handlers reach. Torrents is nil when
// qBittorrent is not configured.
type Deps struct {
	Sources    *source.Registry
	Health     *source.HealthTracker
	Aggregator *search.Aggregator
	Jobs       *jobs.Registry
	Orch       *orchestrator.Orchestrator
	Library    *library.Library
	Hub        *realtime.EventHub
	Torrents   download.TorrentClient
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	deps       Deps
}

// NewServer creates a new server instance
func NewServer(deps Deps) *Server {
	router := gin.Default()
	router.Use(corsMiddleware())

	server := &Server{
		router: router,
		deps:   deps,
	}
	server.setupRoutes()
	return server
}

// Router returns the underlying gin engine, for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start starts the HTTP server and blocks until SIGINT/SIGTERM, then shuts
// down gracefully.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   0, // SSE connections stay open
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	go func() {
		log.Printf("[INFO] Starting server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Heartbeat: push periodic system.status events via SSE while running.
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if s.deps.Hub == nil || s.deps.Hub.GetClientCount() == 0 {
					continue
				}
				var mem runtime.MemStats
				runtime.ReadMemStats(&mem)
				running := 0
				for _, job := range s.deps.Jobs.List(0) {
					if job.Status == jobs.StatusRunning {
						running++
					}
				}
				s.deps.Hub.SendSystemStatus(map[string]interface{}{
					"jobs_running": running,
					"memory_alloc": mem.Alloc,
					"goroutines":   runtime.NumGoroutine(),
					"timestamp":    time.Now().Unix(),
				})
			case <-quit:
				return
			}
		}
	}()

	<-quit
	log.Println("[INFO] Shutting down server...")

	if s.deps.Hub != nil {
		s.deps.Hub.Broadcast(&realtime.Event{
			Type: "system.shutdown",
			Data: map[string]interface{}{
				"message": "Server is shutting down",
			},
		})
		// Give clients a moment to receive the event
		time.Sleep(500 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("[INFO] Server exited")
	return nil
}

// setupRoutes configures all the routes
func (s *Server) setupRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.healthCheck)
	s.router.GET("/api/health", s.healthCheck)

	// Real-time events (SSE)
	if s.deps.Hub != nil {
		s.router.GET("/api/events", s.deps.Hub.HandleSSE)
	}

	api := s.router.Group("/api")
	{
		api.GET("/search", s.handleSearch)
		api.POST("/download", s.handleDownload)

		api.GET("/jobs", s.listJobs)
		api.GET("/jobs/:id", s.getJob)
		api.DELETE("/jobs/:id", s.deleteJob)
		api.POST("/jobs/clear", s.clearJobs)

		api.GET("/sources", s.listSources)
		api.GET("/activity", s.listActivity)
		api.GET("/qbittorrent/diagnose", s.diagnoseQBittorrent)
	}
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	running := 0
	all := s.deps.Jobs.List(0)
	for _, job := range all {
		if job.Status == jobs.StatusRunning {
			running++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"version":   Version,
		"metrics": gin.H{
			"jobs":         len(all),
			"jobs_running": running,
			"sse_clients":  s.clientCount(),
		},
	})
}

func (s *Server) clientCount() int {
	if s.deps.Hub == nil {
		return 0
	}
	return s.deps.Hub.GetClientCount()
}

// handleSearch runs the fan-out aggregation for one query.
func (s *Server) handleSearch(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}
	category := source.Category(c.DefaultQuery("category", string(source.CategoryEbook)))
	if category != source.CategoryEbook && category != source.CategoryAudiobook {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown category %q", category)})
		return
	}

	results := s.deps.Aggregator.Search(c.Request.Context(), query, category)
	if results == nil {
		results = []search.NormalizedResult{}
	}
	c.JSON(http.StatusOK, gin.H{
		"query":    query,
		"category": category,
		"count":    len(results),
		"results":  results,
	})
}

// downloadRequest is the dispatch payload: one result as returned by
// /api/search, plus force to override the duplicate preflight.
type downloadRequest struct {
	Result search.NormalizedResult `json:"result"`
	Force  bool                    `json:"force"`
}

// handleDownload runs preflight checks and dispatches the download job.
func (s *Server) handleDownload(c *gin.Context) {
	var req downloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result := req.Result
	if result.Title == "" || result.Source == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "result requires title and source"})
		return
	}
	src := s.deps.Sources.Get(result.Source)
	if src == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown source %q", result.Source)})
		return
	}
	if !src.Enabled() {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("source %q is not configured", result.Source)})
		return
	}
	// The client round-trips the result verbatim, but Kind is cheap to forge
	// and the orchestrator trusts it.
	result.Kind = src.Kind()

	if !req.Force {
		check := s.deps.Library.CheckDuplicate(result.Title, search.ContentSignature(result.Payload))
		if check.Duplicate {
			c.JSON(http.StatusConflict, gin.H{
				"error":     "already in library; repeat with force=true to download anyway",
				"duplicate": check,
			})
			return
		}
	}

	if result.Kind == source.KindTorrent {
		if s.deps.Torrents == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "qBittorrent not configured"})
			return
		}
		diag := s.deps.Torrents.Diagnose(c.Request.Context())
		if !diag.Success {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":     "qBittorrent unavailable",
				"diagnosis": diag,
			})
			return
		}
	}

	job, err := s.deps.Orch.Dispatch(result)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

func (s *Server) listJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	list := s.deps.Jobs.List(limit)
	if list == nil {
		list = []jobs.Job{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": list, "count": len(list)})
}

func (s *Server) getJob(c *gin.Context) {
	job, ok := s.deps.Jobs.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) deleteJob(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.deps.Jobs.Get(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err := s.deps.Jobs.Delete(id); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (s *Server) clearJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cleared": s.deps.Jobs.Clear()})
}

// listSources returns every registered source with its health snapshot.
func (s *Server) listSources(c *gin.Context) {
	meta := s.deps.Sources.Metadata()
	for name, m := range meta {
		info := s.deps.Health.Info(name)
		m.Health = &info
		meta[name] = m
	}
	c.JSON(http.StatusOK, gin.H{"sources": meta})
}

func (s *Server) listActivity(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	events := s.deps.Library.Recent(limit)
	if events == nil {
		events = []database.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func (s *Server) diagnoseQBittorrent(c *gin.Context) {
	if s.deps.Torrents == nil {
		c.JSON(http.StatusOK, download.Diagnosis{ErrorClass: "not_configured", Error: "qBittorrent not configured"})
		return
	}
	c.JSON(http.StatusOK, s.deps.Torrents.Diagnose(c.Request.Context()))
}
