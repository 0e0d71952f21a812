// Package httpapi exposes the read-only operational surface: health, engine
// status, stake state, trade history, the event journal and the trend chart.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"riptide/internal/analysis/trend"
	"riptide/internal/analysis/visual"
	"riptide/internal/engine"
	"riptide/internal/logger"
	"riptide/internal/market"
	"riptide/internal/stake"
	"riptide/internal/store/gormstore"
)

type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig describes the server's collaborators. Engine and Stakes are
// required; the rest degrade their endpoints to 404/503 when absent.
type ServerConfig struct {
	Addr    string
	Engine  *engine.Engine
	Stakes  *stake.Controller
	Store   *gormstore.GormStore
	Journal *engine.Journal
	Source  market.Source
	Ticks   *market.TickBuffer
	Trend   trend.Config
	// AppConfig is dumped verbatim on /api/config for operator inspection.
	AppConfig any
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil || cfg.Stakes == nil {
		return nil, errors.New("http server requires engine and stake controller")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/status", statusHandler(cfg))
	api.GET("/stake", stakeHandler(cfg.Stakes))
	api.GET("/trades", tradesHandler(cfg.Store))
	api.GET("/events", eventsHandler(cfg.Journal))
	api.GET("/trend/:symbol", trendHandler(cfg))
	api.GET("/config", configHandler(cfg.AppConfig))

	return &Server{addr: cfg.Addr, router: router}, nil
}

func statusHandler(cfg ServerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := gin.H{
			"engine": cfg.Engine.Snapshot(),
			"stake":  cfg.Stakes.Snapshot(),
		}
		if cfg.Source != nil {
			out["source"] = cfg.Source.Stats()
		}
		c.JSON(http.StatusOK, out)
	}
}

func stakeHandler(stakes *stake.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, stakes.Snapshot())
	}
}

func tradesHandler(store *gormstore.GormStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trade store not configured"})
			return
		}
		trades, err := store.RecentTrades(c.Request.Context(), 50)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"trades": trades})
	}
}

func eventsHandler(journal *engine.Journal) gin.HandlerFunc {
	return func(c *gin.Context) {
		if journal == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event journal not configured"})
			return
		}
		events, err := journal.Recent(100)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	}
}

// trendHandler renders the per-timeframe candle chart with the decycler
// overlay, rebuilding the filter from the same data path the engine uses.
func trendHandler(cfg ServerConfig) gin.HandlerFunc {
	trendCfg := cfg.Trend
	return func(c *gin.Context) {
		if cfg.Source == nil || cfg.Ticks == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market source not configured"})
			return
		}
		symbol := c.Param("symbol")

		blocks := make([]visual.TimeframeBlock, 0, len(trendCfg.TimeframesSec))
		for _, gran := range trendCfg.TimeframesSec {
			candles, err := cfg.Source.FetchCandles(c.Request.Context(), symbol, gran, trendCfg.CandleCount)
			if err != nil || len(candles) < 3 {
				candles = market.SynthesizeCandles(cfg.Ticks.Recent(symbol, 0), gran)
			}
			filtered := trend.Decycler(market.Closes(candles), trendCfg.Alpha)
			blocks = append(blocks, visual.TimeframeBlock{
				GranularitySec: gran,
				Candles:        candles,
				Filtered:       filtered,
				Class:          trend.Classify(filtered),
			})
		}

		c.Header("Content-Type", "text/html; charset=utf-8")
		c.Status(http.StatusOK)
		if err := visual.RenderTrendPage(c.Writer, symbol, blocks); err != nil {
			logger.Warnf("http: trend render %s failed: %v", symbol, err)
		}
	}
}

func configHandler(appConfig any) gin.HandlerFunc {
	return func(c *gin.Context) {
		if appConfig == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "config not available"})
			return
		}
		out, err := yaml.Marshal(appConfig)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "text/yaml; charset=utf-8", out)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
