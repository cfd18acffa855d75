package backtesthttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"goldsweep/internal/backtest"
	"goldsweep/internal/logger"
	"goldsweep/internal/market"
	livehttp "goldsweep/internal/transport/http/live"
)

// RunService 是 HTTP 层依赖的回测能力，backtest.Service 实现了它。
type RunService interface {
	StartRun(req backtest.RunRequest) (backtest.Run, error)
	GetRun(ctx context.Context, id string) (backtest.Run, error)
	ListRuns(ctx context.Context, limit int) ([]backtest.Run, error)
	ListTrades(ctx context.Context, id string) ([]backtest.Trade, error)
	ListEquity(ctx context.Context, id string) ([]backtest.EquityPoint, error)
	Manifest(ctx context.Context, timeframe string) (backtest.Manifest, error)
	QueryCandles(ctx context.Context, timeframe string, start, end int64, limit int) ([]market.Candle, error)
}

var _ RunService = (*backtest.Service)(nil)

// Server 提供回测与实时信号的 HTTP API。
type Server struct {
	addr    string
	svc     RunService
	router  *gin.Engine
	live    *livehttp.Router
	metrics http.Handler
}

// Config 描述 HTTP Server 的依赖。Svc 与 Live 至少提供一个；Metrics 可选。
type Config struct {
	Addr    string
	Svc     RunService
	Live    *livehttp.Router
	Metrics http.Handler
}

// NewServer 构建 HTTP Server。
func NewServer(cfg Config) (*Server, error) {
	if cfg.Svc == nil && cfg.Live == nil {
		return nil, errors.New("http server requires backtest service or live router")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		addr:    cfg.Addr,
		svc:     cfg.Svc,
		router:  router,
		live:    cfg.Live,
		metrics: cfg.Metrics,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics))
	}
	if s.svc != nil {
		api := s.router.Group("/api/backtest")
		api.GET("/data", s.handleManifest)
		api.GET("/candles", s.handleCandles)
		api.POST("/runs", s.handleRunStart)
		api.GET("/runs", s.handleRunList)
		api.GET("/runs/:id", s.handleRunDetail)
		api.GET("/runs/:id/trades", s.handleRunTrades)
		api.GET("/runs/:id/equity", s.handleRunEquity)
	}
	if s.live != nil {
		s.live.Register(s.router.Group("/api"))
	}
}

// Handler 返回底层 http.Handler（测试与嵌入使用）。
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Addr() string { return s.addr }

func (s *Server) handleManifest(c *gin.Context) {
	tf := c.Query("timeframe")
	if tf == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "timeframe 必填"})
		return
	}
	info, err := s.svc.Manifest(c.Request.Context(), tf)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"manifest": info})
}

func (s *Server) handleCandles(c *gin.Context) {
	tf := c.Query("timeframe")
	if tf == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "timeframe 必填"})
		return
	}
	start, _ := strconv.ParseInt(c.Query("start_ts"), 10, 64)
	end, _ := strconv.ParseInt(c.Query("end_ts"), 10, 64)
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "200"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit 非法"})
		return
	}
	data, err := s.svc.QueryCandles(c.Request.Context(), tf, start, end, limit)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candles": data})
}

func (s *Server) handleRunStart(c *gin.Context) {
	var req backtest.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := s.svc.StartRun(req)
	if err != nil {
		logger.Warnf("[api] backtest run rejected ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] backtest run %s submitted ip=%s", run.ID, c.ClientIP())
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

func (s *Server) handleRunList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.svc.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	run, err := s.svc.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *Server) handleRunTrades(c *gin.Context) {
	trades, err := s.svc.ListTrades(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleRunEquity(c *gin.Context) {
	points, err := s.svc.ListEquity(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"equity": points})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, backtest.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, backtest.ErrNoCandleStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// requestLogger 以 debug 级别记录每个请求。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			path += "?" + q
		}
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			c.Request.Method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
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
