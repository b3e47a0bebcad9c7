package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitos/crypto_trade_bot/internal/domain"
	"github.com/vitos/crypto_trade_bot/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router       *http.ServeMux
	server       *http.Server
	orchestrator *usecase.Orchestrator
	ledger       *usecase.PositionLedger
	signalRepo   domain.SignalRepository
	tradeRepo    domain.TradeRepository
	statusRepo   domain.StatusRepository
	logger       *zap.Logger
}

func NewServer(
	port int,
	orchestrator *usecase.Orchestrator,
	ledger *usecase.PositionLedger,
	signalRepo domain.SignalRepository,
	tradeRepo domain.TradeRepository,
	statusRepo domain.StatusRepository,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:       http.NewServeMux(),
		orchestrator: orchestrator,
		ledger:       ledger,
		signalRepo:   signalRepo,
		tradeRepo:    tradeRepo,
		statusRepo:   statusRepo,
		logger:       logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Lifecycle
	s.router.HandleFunc("POST /start", s.handleStart)
	s.router.HandleFunc("POST /stop", s.handleStop)

	// Status
	s.router.HandleFunc("GET /status", s.handleStatus)

	// Positions
	s.router.HandleFunc("GET /positions", s.handlePositions)

	// Signals
	s.router.HandleFunc("GET /signals", s.handleSignals)

	// Trades
	s.router.HandleFunc("GET /trades", s.handleTrades)

	// Metrics
	s.router.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
