package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/raphaelgruber/reelimport/internal/db"
	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/raphaelgruber/reelimport/internal/service"
)

const defaultListLimit = 50

// ListImportRequest starts a canonical list import.
type ListImportRequest struct {
	Key    string `json:"key" binding:"required"`
	ListID string `json:"list_id" binding:"required"`
}

// FestivalImportRequest queues ceremonies for a year range.
type FestivalImportRequest struct {
	Festival string `json:"festival" binding:"required"`
	From     int    `json:"from" binding:"required"`
	To       int    `json:"to"`
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.health)

	api := s.engine.Group("/api")
	{
		api.GET("/progress", s.progress)
		api.GET("/progress/stream", s.streamProgress)

		imp := api.Group("/import")
		imp.POST("/start", s.startImport)
		imp.POST("/stop", s.stopImport)
		imp.POST("/resume", s.resumeImport)

		api.GET("/jobs/counts", s.jobCounts)
		api.GET("/jobs", s.listJobs)
		api.POST("/jobs/:id/retry", s.retryJob)

		api.GET("/skipped", s.listSkipped)
		api.POST("/lists", s.importList)
		api.POST("/festivals", s.importFestival)

		api.GET("/movies/:ref", s.getMovie)
		api.GET("/sources/:key/movies", s.sourceMovies)
		api.GET("/persons/:id", s.getPerson)

		api.GET("/stats", s.getStats)
		api.POST("/policy/reload", s.reloadPolicy)
	}
}

// fail maps service errors onto HTTP status codes.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return limit
}

func (s *Server) health(c *gin.Context) {
	if s.pinger != nil {
		if err := s.pinger.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) progress(c *gin.Context) {
	report, err := s.op.Report(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) startImport(c *gin.Context) {
	restart, _ := strconv.ParseBool(c.DefaultQuery("restart", "false"))
	p, err := s.op.StartDiscovery(c.Request.Context(), restart)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, p)
}

func (s *Server) stopImport(c *gin.Context) {
	p, err := s.op.StopDiscovery(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) resumeImport(c *gin.Context) {
	p, err := s.op.ResumeDiscovery(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, p)
}

func (s *Server) jobCounts(c *gin.Context) {
	counts, err := s.op.JobCounts(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

func (s *Server) listJobs(c *gin.Context) {
	filter := models.JobFilter{
		Kind:  models.JobKind(c.Query("kind")),
		State: models.JobState(c.Query("state")),
		Limit: queryLimit(c),
	}
	jobs, err := s.op.ListJobs(c.Request.Context(), filter)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

func (s *Server) retryJob(c *gin.Context) {
	job, err := s.op.RetryJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) listSkipped(c *gin.Context) {
	rows, err := s.op.ListSkipped(c.Request.Context(), c.Query("decision"), queryLimit(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"skipped": rows, "count": len(rows)})
}

func (s *Server) importList(c *gin.Context) {
	var req ListImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := s.op.ImportList(c.Request.Context(), req.Key, req.ListID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job, "queued": job != nil})
}

func (s *Server) importFestival(c *gin.Context) {
	var req FestivalImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.To == 0 {
		req.To = req.From
	}
	jobs, err := s.op.ImportFestival(c.Request.Context(), req.Festival, req.From, req.To)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobs": jobs, "queued": len(jobs)})
}

func (s *Server) getMovie(c *gin.Context) {
	detail, err := s.op.Movie(c.Request.Context(), c.Param("ref"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) sourceMovies(c *gin.Context) {
	movies, err := s.op.SourceMovies(c.Request.Context(), c.Param("key"), queryLimit(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"movies": movies, "count": len(movies)})
}

func (s *Server) getPerson(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "person id must be numeric"})
		return
	}
	p, err := s.op.Person(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) getStats(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		out models.ImportStats
		err error
	)
	if out.Movies, err = s.op.MovieCounts(ctx); err != nil {
		fail(c, err)
		return
	}
	if out.Jobs, err = s.op.JobCounts(ctx); err != nil {
		fail(c, err)
		return
	}
	if s.collector != nil {
		snap := s.collector.Snapshot()
		out.Runtime = &snap
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) reloadPolicy(c *gin.Context) {
	p, err := s.op.ReloadPolicy()
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         "reloaded",
		"min_vote_count": p.Quality.MinVoteCount,
		"top_cast":       p.Collaboration.TopCast,
		"key_crew_jobs":  p.Collaboration.KeyCrewJobs,
		"max_pages":      p.Discovery.MaxPages,
	})
}
