package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/tgstep/internal/inference"
	"github.com/samcharles93/tgstep/internal/logger"
	"github.com/samcharles93/tgstep/internal/metrics"
	"github.com/samcharles93/tgstep/internal/version"
)

const (
	defaultMaxNewTokens     = 512
	defaultMaxStopSequences = 4
)

type Config struct {
	ModelID   string
	Shards    int
	Defaults  inference.GenDefaults
	Formatter inference.ChatFormatter
	// MaxNewTokens caps the per-request token budget.
	MaxNewTokens     int
	MaxStopSequences int
	Log              logger.Logger
}

// Server exposes one engine over HTTP. Requests are decoded one batch at a
// time; the engine serializes concurrent callers.
type Server struct {
	engine inference.Engine
	cfg    Config
	log    logger.Logger
	clock  func() time.Time
}

func NewServer(engine inference.Engine, cfg Config) *Server {
	if cfg.MaxNewTokens <= 0 {
		cfg.MaxNewTokens = defaultMaxNewTokens
	}
	if cfg.MaxStopSequences <= 0 {
		cfg.MaxStopSequences = defaultMaxStopSequences
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "tgstep"
	}
	log := cfg.Log
	if log == nil {
		log = logger.Discard()
	}
	return &Server{engine: engine, cfg: cfg, log: log, clock: time.Now}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/health", s.handleHealth)
	e.GET("/info", s.handleInfo)
	e.GET("/metrics", s.handleMetrics)

	e.POST("/generate", s.handleGenerate)
	e.POST("/generate_stream", s.handleGenerateStream)

	e.POST("/v1/completions", s.handleCompletions)
	e.POST("/v1/chat/completions", s.handleChatCompletions)
	e.GET("/v1/models", s.handleListModels)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(c *echo.Context) error {
	v := version.Resolve()
	return c.JSON(http.StatusOK, Info{
		ModelID:          s.cfg.ModelID,
		Version:          v.Version,
		Sha:              v.Commit,
		Shards:           max(s.cfg.Shards, 1),
		MaxNewTokens:     s.cfg.MaxNewTokens,
		MaxStopSequences: s.cfg.MaxStopSequences,
	})
}

func (s *Server) handleMetrics(c *echo.Context) error {
	metrics.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}

func (s *Server) handleListModels(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"object": "list",
		"data": []map[string]any{{
			"id":       s.cfg.ModelID,
			"object":   "model",
			"created":  s.clock().Unix(),
			"owned_by": "local",
		}},
	})
}

// validate rejects requests the engine would accept but the server should
// not run.
func (s *Server) validate(req inference.Request) error {
	switch {
	case req.MaxNewTokens < 1:
		return newInvalidRequest("max_new_tokens must be strictly positive")
	case req.MaxNewTokens > s.cfg.MaxNewTokens:
		return newInvalidRequest(fmt.Sprintf("max_new_tokens must be <= %d, got %d", s.cfg.MaxNewTokens, req.MaxNewTokens))
	case len(req.StopSequences) > s.cfg.MaxStopSequences:
		return newInvalidRequest(fmt.Sprintf("at most %d stop sequences are allowed, got %d", s.cfg.MaxStopSequences, len(req.StopSequences)))
	case req.Truncate < 0:
		return newInvalidRequest("truncate must be positive")
	}
	return nil
}

// run generates a single request. stream may be nil.
func (s *Server) run(ctx context.Context, req inference.Request, stream inference.StreamFunc) (*inference.Result, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	start := s.clock()
	results, err := s.engine.Generate(ctx, []inference.Request{req}, stream)
	if err != nil {
		s.log.Warn("generation failed", "request_id", req.ID, "error", err)
		return nil, err
	}
	s.log.Debug("request served", "request_id", req.ID, "elapsed", s.clock().Sub(start))
	return results[0], nil
}

func tokenInfo(t inference.Token) TokenInfo {
	return TokenInfo{ID: t.ID, Text: t.Text, Logprob: logprobOrNil(t.Logprob), Special: t.Special}
}
