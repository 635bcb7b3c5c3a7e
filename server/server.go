// Package server exposes the generation pipeline over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Aafimalek/animation-genai/generator"
	"github.com/Aafimalek/animation-genai/logging"
	"github.com/Aafimalek/animation-genai/metrics"
	"github.com/Aafimalek/animation-genai/pipeline"
)

// Runner runs one generation request to completion.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Options configures a Server.
type Options struct {
	Runner         Runner
	MaxAttempts    int
	AutoFix        bool
	MaxConcurrent  int
	RequestTimeout time.Duration
	Logger         *zap.Logger
	// MaxResults caps the finished results kept for lookup; the oldest are
	// evicted first. ResultTTL, when positive, expires them by age.
	MaxResults int
	ResultTTL  time.Duration
	// NewID and Now override id generation and the clock, mainly for tests.
	NewID func() string
	Now   func() time.Time
}

type Server struct {
	runner   Runner
	opts     Options
	store    *resultStore
	sem      *semaphore.Weighted
	logger   *zap.Logger
	inflight sync.WaitGroup
}

// resultStore keeps finished results for lookup by id, oldest first.
type resultStore struct {
	mu      sync.Mutex
	max     int
	ttl     time.Duration
	now     func() time.Time
	order   []string
	results map[string]storedResult
}

type storedResult struct {
	res *pipeline.Result
	at  time.Time
}

// maxStoredStderr bounds the stderr tail kept per attempt.
const maxStoredStderr = 4096

func newStore(max int, ttl time.Duration, now func() time.Time) *resultStore {
	return &resultStore{max: max, ttl: ttl, now: now, results: make(map[string]storedResult)}
}

func (s *resultStore) set(id string, res *pipeline.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[id]; !ok {
		s.order = append(s.order, id)
	}
	s.results[id] = storedResult{res: compact(res), at: s.now()}
	for len(s.order) > s.max {
		delete(s.results, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *resultStore) get(id string) (*pipeline.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.results[id]
	if !ok || s.expired(e) {
		return nil, false
	}
	return e.res, true
}

func (s *resultStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

func (s *resultStore) expired(e storedResult) bool {
	return s.ttl > 0 && s.now().Sub(e.at) > s.ttl
}

// prune drops expired results and returns how many were removed.
func (s *resultStore) prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		if s.expired(s.results[id]) {
			delete(s.results, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}

// compact copies res without renderer stdout and with a short stderr tail.
func compact(res *pipeline.Result) *pipeline.Result {
	out := *res
	out.Attempts = make([]pipeline.Attempt, len(res.Attempts))
	for i, a := range res.Attempts {
		a.Stdout = ""
		if len(a.Stderr) > maxStoredStderr {
			cut := len(a.Stderr) - maxStoredStderr
			for cut < len(a.Stderr) && !utf8.RuneStart(a.Stderr[cut]) {
				cut++
			}
			a.Stderr = a.Stderr[cut:]
		}
		out.Attempts[i] = a
	}
	out.Turns = nil
	return &out
}

func New(opts Options) (*Server, error) {
	if opts.Runner == nil {
		return nil, errors.New("pipeline runner required")
	}
	if opts.MaxAttempts < 1 || opts.MaxAttempts > pipeline.MaxAttemptsLimit {
		opts.MaxAttempts = 3
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.MaxResults < 1 {
		opts.MaxResults = 500
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	logger = logging.OrNop(logger)
	return &Server{
		runner: opts.Runner,
		opts:   opts,
		store:  newStore(opts.MaxResults, opts.ResultTTL, opts.Now),
		sem:    semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		logger: logger,
	}, nil
}

// Routes builds the gin engine.
func (s *Server) Routes() http.Handler {
	engine := gin.New()
	engine.Use(s.recovery(), requestID(), s.accessLog())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	{
		api.POST("/generations", s.handleCreate)
		api.GET("/generations/:id", s.handleGet)
		api.GET("/generations/:id/video", s.handleVideo)
	}
	return engine
}

// PruneResults drops stored results older than ResultTTL.
func (s *Server) PruneResults() int {
	n := s.store.prune()
	if n > 0 {
		s.logger.Debug("expired stored results", zap.Int("count", n))
	}
	return n
}

// Wait blocks until every in-flight generation has returned.
func (s *Server) Wait() { s.inflight.Wait() }

// --- Handlers ---

type generateReq struct {
	Prompt      string `json:"prompt" binding:"required,max=4000"`
	MaxAttempts *int   `json:"max_attempts" binding:"omitempty,min=1,max=5"`
	AutoFix     *bool  `json:"auto_fix"`
}

type generationResp struct {
	ID       string           `json:"id"`
	State    string           `json:"state,omitempty"`
	VideoURL string           `json:"video_url,omitempty"`
	Error    string           `json:"error,omitempty"`
	Result   *pipeline.Result `json:"result,omitempty"`
}

type errorResp struct {
	Error string `json:"error"`
}

func (s *Server) handleCreate(c *gin.Context) {
	var body generateReq
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}

	if !s.sem.TryAcquire(1) {
		c.JSON(http.StatusServiceUnavailable, errorResp{Error: "too many generations in progress"})
		return
	}
	s.inflight.Add(1)
	metrics.InFlightGenerations.Inc()
	defer func() {
		metrics.InFlightGenerations.Dec()
		s.inflight.Done()
		s.sem.Release(1)
	}()

	req := pipeline.Request{
		ID:          s.opts.NewID(),
		Prompt:      body.Prompt,
		MaxAttempts: s.opts.MaxAttempts,
		AutoFix:     s.opts.AutoFix,
	}
	if body.MaxAttempts != nil {
		req.MaxAttempts = *body.MaxAttempts
	}
	if body.AutoFix != nil {
		req.AutoFix = *body.AutoFix
	}

	ctx := c.Request.Context()
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	s.logger.Info("generation started",
		zap.String("id", req.ID),
		zap.String("http_request_id", c.GetString(requestIDKey)),
		zap.Int("max_attempts", req.MaxAttempts))

	res, err := s.runner.Run(ctx, req)
	if res != nil {
		s.store.set(req.ID, res)
	}

	status := statusFor(res, err)
	resp := generationResp{ID: req.ID, Result: res}
	if res != nil {
		resp.State = res.State.String()
		if res.State == pipeline.StateSuccess {
			resp.VideoURL = "/api/generations/" + req.ID + "/video"
		}
	}
	if err != nil {
		resp.Error = err.Error()
		s.logger.Warn("generation returned an error", zap.String("id", req.ID), zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, resp)
}

// statusFor maps a pipeline outcome to an HTTP status.
func statusFor(res *pipeline.Result, err error) int {
	var (
		genErr *generator.GenerationError
		valErr validator.ValidationErrors
	)
	switch {
	case err == nil && res != nil && res.State == pipeline.StateSuccess:
		return http.StatusOK
	case err == nil && res != nil:
		return http.StatusUnprocessableEntity
	case errors.As(err, &valErr):
		return http.StatusBadRequest
	case errors.As(err, &genErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// The client is gone; the status only shows up in logs.
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleGet(c *gin.Context) {
	id := c.Param("id")
	res, ok := s.store.get(id)
	if !ok {
		c.JSON(http.StatusNotFound, errorResp{Error: "generation not found"})
		return
	}
	resp := generationResp{ID: id, State: res.State.String(), Result: res}
	if res.State == pipeline.StateSuccess {
		resp.VideoURL = "/api/generations/" + id + "/video"
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleVideo(c *gin.Context) {
	id := c.Param("id")
	res, ok := s.store.get(id)
	if !ok || res.State != pipeline.StateSuccess || res.VideoPath == "" {
		c.JSON(http.StatusNotFound, errorResp{Error: "video not found"})
		return
	}
	if _, err := os.Stat(res.VideoPath); err != nil {
		c.JSON(http.StatusNotFound, errorResp{Error: "video no longer available"})
		return
	}
	c.FileAttachment(res.VideoPath, id+".mp4")
}
