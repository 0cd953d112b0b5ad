package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pyramidbot/internal/domain"
	"pyramidbot/internal/engine"
	"pyramidbot/internal/ports"
)

// Server exposes the reconciliation engine over HTTP: POST /signal takes
// one trading signal and returns the full structured result including the
// diagnostic trace.
type Server struct {
	engine  *engine.Engine
	factory ports.ExchangeClientFactory
	logger  ports.Logger
	router  *gin.Engine
	httpSrv *http.Server
}

// New creates the webhook server.
func New(eng *engine.Engine, factory ports.ExchangeClientFactory, logger ports.Logger) (*Server, error) {
	if eng == nil || factory == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Server")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		engine:  eng,
		factory: factory,
		logger:  logger,
		router:  router,
	}

	router.POST("/signal", s.handleSignal)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return s, nil
}

// handleSignal processes one inbound trading signal. Invalid input is
// rejected before any external call; everything after validation runs the
// engine's best-effort sequence, so the HTTP status is 200 even when
// individual steps degraded (the trace carries the detail).
func (s *Server) handleSignal(c *gin.Context) {
	ctx := c.Request.Context()

	var sig domain.Signal
	if err := c.ShouldBindJSON(&sig); err != nil {
		mtxSignals.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signal payload: " + err.Error()})
		return
	}
	if err := sig.Validate(); err != nil {
		mtxSignals.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exchange, err := s.factory.NewClient(sig.APIKey, sig.SecretKey)
	if err != nil {
		mtxSignals.WithLabelValues("rejected").Inc()
		s.logger.Error(ctx, err, "exchange client construction failed", map[string]interface{}{"symbol": sig.Symbol})
		c.JSON(http.StatusBadGateway, gin.H{"error": "exchange client unavailable"})
		return
	}

	s.logger.Info(ctx, "signal received", map[string]interface{}{
		"symbol":       sig.Symbol,
		"positionSide": string(sig.Side()),
		"pyramiding":   sig.Pyramiding,
	})

	res := s.engine.Process(ctx, exchange, sig)
	recordResult(res)
	c.JSON(http.StatusOK, res)
}

func recordResult(res *domain.Result) {
	mtxSignals.WithLabelValues("ok").Inc()
	countOrder := func(kind string, o *domain.OrderOutcome) {
		if o == nil {
			return
		}
		mtxOrders.WithLabelValues(kind).Inc()
		if o.Failed() {
			mtxOrderFailures.WithLabelValues(kind).Inc()
		}
	}
	countOrder("entry", res.EntryOrder)
	countOrder("take_profit", res.TakeProfitOrder)
	countOrder("stop_loss", res.StopLossOrder)
	if res.AlarmSent {
		mtxAlarms.Inc()
	}
}

// Run serves until the context is cancelled, then drains with a timeout.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "HTTP server listening", map[string]interface{}{"addr": addr})
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info(context.Background(), "Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
