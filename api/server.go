package api

import (
	"context"
	"net/http"
	"time"

	"derby/config"
	"derby/service"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Server exposes the wagering and ledger services over HTTP
type Server struct {
	cfg      *config.Config
	ledger   service.LedgerService
	wagering service.WageringService
	http     *http.Server
}

// NewServer creates the HTTP server with all routes registered
func NewServer(cfg *config.Config, ledger service.LedgerService, wagering service.WageringService) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		ledger:   ledger,
		wagering: wagering,
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestID(), requestLogger())

	api := router.Group("/api", requireUser())
	{
		api.GET("/races/active", s.getActiveRace)
		api.POST("/races/:raceID/bets", s.placeBet)
		api.DELETE("/bets/:betID", s.cancelBet)

		api.POST("/wallet/transactions", s.transact)
		api.GET("/wallet/reconcile", s.reconcile)
		api.GET("/wallet/history", s.getHistory)
		api.POST("/wallet/daily-bonus", s.claimDailyBonus)
	}

	s.http = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start begins serving and blocks until the listener fails or closes
func (s *Server) Start() error {
	log.WithField("addr", s.cfg.HTTPAddr).Info("HTTP server starting")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("HTTP server shutting down")
	return s.http.Shutdown(ctx)
}
