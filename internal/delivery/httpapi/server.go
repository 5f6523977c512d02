package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Stockmasterflex/legendwatch/internal/usecase"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SchedulerControl interface {
	Status() usecase.SchedulerStatus
	RunOnce(ctx context.Context) usecase.CycleReport
}

type AlertHistory interface {
	OwnerHistory(ctx context.Context, ownerID uint, limit int) ([]usecase.AlertHistoryItem, error)
	AcknowledgeEvent(ctx context.Context, eventID uint) error
	DismissEvent(ctx context.Context, eventID uint) error
}

type SubjectMuter interface {
	MuteSubject(ctx context.Context, subjectID uint, duration time.Duration) (time.Time, error)
	UnmuteSubject(ctx context.Context, subjectID uint) error
}

type DeliveryStatsSource interface {
	Stats() usecase.DeliveryStats
}

type Deps struct {
	Scheduler  SchedulerControl
	History    AlertHistory
	Subjects   SubjectMuter
	Deliveries DeliveryStatsSource
}

type muteRequest struct {
	Duration string `json:"duration" binding:"required"`
}

type Server struct {
	deps   Deps
	engine *gin.Engine
	server *http.Server
	logger *zap.Logger
}

func NewServer(addr string, deps Deps, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{deps: deps, engine: gin.New(), logger: logger}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	scheduler := s.engine.Group("/scheduler")
	scheduler.GET("/status", s.schedulerStatus)
	scheduler.POST("/run", s.runCycle)

	s.engine.GET("/owners/:owner_id/alerts", s.ownerAlerts)
	s.engine.POST("/alerts/:id/ack", s.acknowledge)
	s.engine.POST("/alerts/:id/dismiss", s.dismiss)
	s.engine.POST("/subjects/:id/mute", s.mute)
	s.engine.DELETE("/subjects/:id/mute", s.unmute)
	s.engine.GET("/deliveries/stats", s.deliveryStats)
}

func (s *Server) schedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Scheduler.Status())
}

func (s *Server) runCycle(c *gin.Context) {
	report := s.deps.Scheduler.RunOnce(context.WithoutCancel(c.Request.Context()))
	c.JSON(http.StatusOK, report)
}

func (s *Server) ownerAlerts(c *gin.Context) {
	ownerID, ok := pathID(c, "owner_id")
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	items, err := s.deps.History.OwnerHistory(c.Request.Context(), ownerID, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": items, "count": len(items)})
}

func (s *Server) acknowledge(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.deps.History.AcknowledgeEvent(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "acknowledged": true})
}

func (s *Server) dismiss(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.deps.History.DismissEvent(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "dismissed": true})
}

func (s *Server) mute(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req muteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	duration, err := usecase.ParseDuration(req.Duration)
	if err != nil {
		s.fail(c, err)
		return
	}
	until, err := s.deps.Subjects.MuteSubject(c.Request.Context(), id, duration)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "muted_until": until.UTC()})
}

func (s *Server) unmute(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.deps.Subjects.UnmuteSubject(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "muted_until": nil})
}

func (s *Server) deliveryStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Deliveries.Stats())
}

func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrAlertNotFound), errors.Is(err, usecase.ErrSubjectNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, usecase.ErrInvalidDuration):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.Error("operator request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug(
			"http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func pathID(c *gin.Context, name string) (uint, bool) {
	value, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || value == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(value), true
}
