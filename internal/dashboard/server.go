// Package dashboard exposes the JSON API consumed by the terminal UI:
// the latest snapshot, market directory, session control and the oracle
// annotation.
package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"vortexflow/config"
	"vortexflow/internal/directory"
	"vortexflow/internal/hub"
	"vortexflow/internal/model"
	"vortexflow/internal/oracle"
	"vortexflow/internal/session"
	"vortexflow/logger"
)

// Server hosts the Gin-powered API for Vortexflow.
type Server struct {
	cfg        config.DashboardConfig
	session    *session.Session
	hub        *hub.Hub
	directory  *directory.Directory
	oracle     *oracle.Oracle
	httpServer *http.Server
	log        *logger.Log

	analysisMu   sync.Mutex
	analysisAt   time.Time
	analysisText string
}

// NewServer constructs the API server when the dashboard feature is
// enabled. When disabled the returned server is nil.
func NewServer(cfg config.DashboardConfig, s *session.Session, h *hub.Hub, d *directory.Directory, o *oracle.Oracle) *Server {
	if !cfg.Enabled {
		return nil
	}

	cfg.Address = normalizeAddress(cfg.Address)
	if cfg.AnalysisInterval <= 0 {
		cfg.AnalysisInterval = 30 * time.Second
	}

	return &Server{
		cfg:       cfg,
		session:   s,
		hub:       h,
		directory: d,
		oracle:    o,
		log:       logger.GetLogger(),
	}
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server exits with an error.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}

	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: router,
	}

	s.log.WithComponent("dashboard").WithFields(logger.Fields{
		"address": s.cfg.Address,
	}).Info("starting dashboard server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// Address reports the network address the server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/api/snapshot", s.handleSnapshot)
	router.GET("/api/markets", s.handleMarkets)
	router.GET("/api/session", s.handleSession)
	router.POST("/api/session/market", s.handleSelectMarket)
	router.GET("/api/analysis", s.handleAnalysis)

	return router, nil
}

func (s *Server) handleSnapshot(c *gin.Context) {
	snapshot, ok := s.hub.Latest()
	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"status":   model.StatusAwaitingFlow,
			"snapshot": nil,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"snapshot": snapshot,
	})
}

func (s *Server) handleMarkets(c *gin.Context) {
	exchange, err := model.ParseExchange(c.DefaultQuery("exchange", string(model.ExchangeBinance)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	markets, err := s.directory.ListMarkets(c.Request.Context(), exchange)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"markets": markets})
}

func (s *Server) handleSession(c *gin.Context) {
	payload := gin.H{"state": string(s.session.State())}
	if market, ok := s.session.ActiveMarket(); ok {
		payload["market"] = market
	}
	c.JSON(http.StatusOK, payload)
}

type selectMarketRequest struct {
	Symbol   string `json:"symbol" binding:"required"`
	Exchange string `json:"exchange" binding:"required"`
	Base     string `json:"base"`
	Quote    string `json:"quote"`
}

func (s *Server) handleSelectMarket(c *gin.Context) {
	var req selectMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exchange, err := model.ParseExchange(req.Exchange)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	market := model.MarketDef{
		Symbol:   strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Exchange: exchange,
		Base:     req.Base,
		Quote:    req.Quote,
	}

	if err := s.session.SelectMarket(c.Request.Context(), market); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": string(s.session.State()), "market": market})
}

// handleAnalysis serves the oracle annotation for the latest snapshot,
// refreshed at most once per configured interval.
func (s *Server) handleAnalysis(c *gin.Context) {
	snapshot, ok := s.hub.Latest()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"analysis": model.StatusAwaitingFlow})
		return
	}

	s.analysisMu.Lock()
	defer s.analysisMu.Unlock()

	if s.analysisText != "" && time.Since(s.analysisAt) < s.cfg.AnalysisInterval {
		c.JSON(http.StatusOK, gin.H{"analysis": s.analysisText, "cached": true})
		return
	}

	text := s.oracle.Annotate(c.Request.Context(), snapshot)
	s.analysisText = text
	s.analysisAt = time.Now()
	c.JSON(http.StatusOK, gin.H{"analysis": text, "cached": false})
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
