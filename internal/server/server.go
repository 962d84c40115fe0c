// Package server exposes config repository ingestion and job history over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Promptonauts/configrepo/pkg/configrepo"
	"github.com/Promptonauts/configrepo/pkg/models"
	"github.com/Promptonauts/configrepo/pkg/observability"
	"github.com/Promptonauts/configrepo/pkg/store"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 25
	maxPageSize     = 200
	maxBodyBytes    = 4 << 20
)

type Server struct {
	reconciler *configrepo.Reconciler
	store      store.JobInstanceStore
	registry   *observability.MetricsRegistry
	logger     *slog.Logger
	engine     *gin.Engine
}

func New(rec *configrepo.Reconciler, st store.JobInstanceStore, reg *observability.MetricsRegistry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		reconciler: rec,
		store:      st,
		registry:   reg,
		logger:     logger,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/sources", s.listSources)
	r.POST("/sources/:name", s.ingestSource)
	r.GET("/sources/:name", s.getSource)
	r.GET("/sources/:name/plans", s.previewPlans)

	r.GET("/agents/:uuid/jobs", s.agentHistory)
	r.GET("/agents/:uuid/current", s.agentCurrentJob)

	r.GET("/jobs/active", s.activeJobs)
	r.GET("/jobs/hung", s.hungJobs)
	r.GET("/jobs/:id", s.getJob)

	r.GET("/metrics", s.metrics)
	return r
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("took", time.Since(start)))
	}
}

func errorJSON(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// storeError maps store failures to HTTP statuses.
func storeError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		errorJSON(c, http.StatusNotFound, err)
		return
	}
	errorJSON(c, http.StatusInternalServerError, err)
}

func (s *Server) listSources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sources": s.reconciler.Sources()})
}

// POST /sources/:name -> ingest a document for the named source
func (s *Server) ingestSource(c *gin.Context) {
	name := c.Param("name")
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorJSON(c, http.StatusRequestEntityTooLarge, fmt.Errorf("document exceeds %d bytes", tooLarge.Limit))
			return
		}
		errorJSON(c, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return
	}

	result, err := s.reconciler.Ingest(name, data)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	if result.Outcome == configrepo.OutcomeRejected {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

type sourceView struct {
	Source     string    `json:"source"`
	Revision   string    `json:"revision"`
	AcceptedAt time.Time `json:"acceptedAt"`
	Jobs       []string  `json:"jobs"`
}

// GET /sources/:name -> active revision of the source
func (s *Server) getSource(c *gin.Context) {
	rev, ok := s.reconciler.Active(c.Param("name"))
	if !ok {
		errorJSON(c, http.StatusNotFound, fmt.Errorf("source %q has no active revision", c.Param("name")))
		return
	}
	view := sourceView{Source: rev.Source, Revision: rev.ID, AcceptedAt: rev.AcceptedAt, Jobs: []string{}}
	for _, j := range rev.Document.Jobs {
		view.Jobs = append(view.Jobs, j.Name)
	}
	c.JSON(http.StatusOK, view)
}

// GET /sources/:name/plans?pipeline=&stage= -> execution plans the active revision would produce
func (s *Server) previewPlans(c *gin.Context) {
	rev, ok := s.reconciler.Active(c.Param("name"))
	if !ok {
		errorJSON(c, http.StatusNotFound, fmt.Errorf("source %q has no active revision", c.Param("name")))
		return
	}
	pipelineCounter, err := queryInt(c, "pipelineCounter", 1)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	stageCounter, err := queryInt(c, "stageCounter", 1)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	if pipelineCounter < 1 || stageCounter < 1 {
		errorJSON(c, http.StatusBadRequest, errors.New("pipelineCounter and stageCounter must be >= 1"))
		return
	}
	stage := models.StageIdentifier{
		PipelineName:    c.DefaultQuery("pipeline", rev.Source),
		PipelineCounter: pipelineCounter,
		StageName:       c.DefaultQuery("stage", "default"),
		StageCounter:    stageCounter,
	}
	plans := make([]*models.JobPlan, 0, len(rev.Document.Jobs))
	for _, job := range rev.Document.Jobs {
		plans = append(plans, configrepo.PlanFor(rev, stage, job))
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

type historyPage struct {
	Total  int                   `json:"total"`
	Offset int                   `json:"offset"`
	Limit  int                   `json:"limit"`
	Jobs   []*models.JobInstance `json:"jobs"`
}

// GET /agents/:uuid/jobs?column=completed&order=DESC&offset=0&limit=25
func (s *Server) agentHistory(c *gin.Context) {
	agent := c.Param("uuid")
	column := store.HistoryColumn(c.DefaultQuery("column", string(store.ColumnCompleted)))
	order := store.SortOrder(strings.ToUpper(c.DefaultQuery("order", string(store.Descending))))
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	if offset < 0 || limit <= 0 || limit > maxPageSize {
		errorJSON(c, http.StatusBadRequest, fmt.Errorf("offset must be >= 0 and limit in 1..%d", maxPageSize))
		return
	}

	jobs, err := s.store.CompletedJobsOnAgent(agent, column, order, offset, limit)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	total, err := s.store.TotalCompletedJobsOnAgent(agent)
	if err != nil {
		storeError(c, err)
		return
	}
	if jobs == nil {
		jobs = []*models.JobInstance{}
	}
	c.JSON(http.StatusOK, historyPage{Total: total, Offset: offset, Limit: limit, Jobs: jobs})
}

func (s *Server) agentCurrentJob(c *gin.Context) {
	job, err := s.store.LatestInProgressBuildByAgent(c.Param("uuid"))
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) activeJobs(c *gin.Context) {
	jobs, err := s.store.ActiveJobs()
	if err != nil {
		storeError(c, err)
		return
	}
	if jobs == nil {
		jobs = []models.ActiveJob{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// GET /jobs/hung?agent=a&agent=b
func (s *Server) hungJobs(c *gin.Context) {
	jobs, err := s.store.FindHungJobs(c.QueryArray("agent"))
	if err != nil {
		storeError(c, err)
		return
	}
	if jobs == nil {
		jobs = []*models.JobInstance{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (s *Server) getJob(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Errorf("invalid job id %q", c.Param("id")))
		return
	}
	job, err := s.store.BuildByIDWithTransitions(id)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) metrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.Snapshot())
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v, ok := c.GetQuery(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be an integer", key, v)
	}
	return n, nil
}
