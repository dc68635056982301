package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/akiraliebert/event-driven-notification-system/internal/events"
)

// HealthFunc reports readiness of the gateway's dependencies. A nil
// HealthFunc means always healthy.
type HealthFunc func(ctx context.Context) error

// Server is the HTTP ingestion server.
type Server struct {
	router   *gin.Engine
	producer Producer
	health   HealthFunc
	logger   *logrus.Entry
}

// NewServer creates the ingestion server and registers its routes.
func NewServer(producer Producer, health HealthFunc, logger *logrus.Entry) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:   router,
		producer: producer,
		health:   health,
		logger:   logger,
	}

	router.POST("/events", s.handleSubmitEvent)
	router.GET("/health", s.handleHealth)
	return s
}

// Run serves HTTP on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("Gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleSubmitEvent accepts one domain event, validates it, and appends
// it to the log. Acceptance means durably appended, not delivered;
// callers track outcomes on the status topic.
func (s *Server) handleSubmitEvent(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	event, err := events.Parse(raw)
	if err != nil {
		if errors.Is(err, events.ErrUnknownEventType) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":     err.Error(),
				"supported": events.AllTypes(),
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.producer.Publish(event); err != nil {
		s.logger.WithError(err).WithField("event_type", event.Metadata.EventType).
			Error("Failed to publish event")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event log unavailable"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":   "accepted",
		"event_id": event.Metadata.EventID.String(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health != nil {
		if err := s.health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
