package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aafimalek/animation-genai/generator"
	"github.com/Aafimalek/animation-genai/pipeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeRunner returns a canned result, or blocks until release is closed.
type fakeRunner struct {
	mu      sync.Mutex
	res     *pipeline.Result
	err     error
	got     []pipeline.Request
	started chan struct{}
	release chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.mu.Lock()
	f.got = append(f.got, req)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.res != nil {
		res := *f.res
		res.RequestID = req.ID
		return &res, f.err
	}
	if f.err != nil {
		return nil, f.err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &pipeline.Result{RequestID: req.ID, State: pipeline.StateSuccess}, nil
}

func newTestServer(t *testing.T, runner *fakeRunner, opts ...func(*Options)) http.Handler {
	t.Helper()
	o := Options{Runner: runner, MaxAttempts: 3, AutoFix: true, MaxConcurrent: 1, NewID: func() string { return "gen-1" }}
	for _, fn := range opts {
		fn(&o)
	}
	s, err := New(o)
	require.NoError(t, err)
	return s.Routes()
}

func post(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, generationResp) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/generations", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var resp generationResp
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestCreate_Success(t *testing.T) {
	video := filepath.Join(t.TempDir(), "gen-1.mp4")
	require.NoError(t, os.WriteFile(video, []byte("mp4 bytes"), 0o644))
	runner := &fakeRunner{res: &pipeline.Result{State: pipeline.StateSuccess, VideoPath: video}}
	h := newTestServer(t, runner)

	rec, resp := post(t, h, `{"prompt":"explain eigenvectors","max_attempts":2,"auto_fix":false}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gen-1", resp.ID)
	assert.Equal(t, "success", resp.State)
	assert.Equal(t, "/api/generations/gen-1/video", resp.VideoURL)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	require.Len(t, runner.got, 1)
	assert.Equal(t, 2, runner.got[0].MaxAttempts)
	assert.False(t, runner.got[0].AutoFix)
	assert.Equal(t, "explain eigenvectors", runner.got[0].Prompt)

	// Lookup and download.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generations/gen-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generations/gen-1/video", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mp4 bytes", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "gen-1.mp4")
}

func TestCreate_Defaults(t *testing.T) {
	runner := &fakeRunner{}
	h := newTestServer(t, runner)

	rec, _ := post(t, h, `{"prompt":"fractions"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, runner.got, 1)
	assert.Equal(t, 3, runner.got[0].MaxAttempts)
	assert.True(t, runner.got[0].AutoFix)
}

func TestCreate_StatusMapping(t *testing.T) {
	gaveUp := &pipeline.Result{
		State:   pipeline.StateGivingUp,
		Failure: &pipeline.FailureSummary{Reason: "rendering failed after 2 attempt(s)"},
	}
	tests := []struct {
		name   string
		runner *fakeRunner
		want   int
	}{
		{"gave up", &fakeRunner{res: gaveUp}, http.StatusUnprocessableEntity},
		{"generation error", &fakeRunner{res: gaveUp, err: &generator.GenerationError{Op: "complete", Err: errors.New("503")}}, http.StatusBadGateway},
		{"deadline", &fakeRunner{err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{"internal", &fakeRunner{err: errors.New("disk full")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := post(t, newTestServer(t, tt.runner), `{"prompt":"x"}`)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want != http.StatusInternalServerError && tt.want != http.StatusGatewayTimeout {
				require.NotNil(t, resp.Result)
			}
		})
	}
}

func TestCreate_BadRequests(t *testing.T) {
	h := newTestServer(t, &fakeRunner{})
	for _, body := range []string{`{`, `{}`, `{"prompt":"x","max_attempts":6}`, `{"prompt":"x","max_attempts":0}`} {
		rec, _ := post(t, h, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	// Invalid ids are caught by the pipeline's own validation.
	h = newTestServer(t, &fakeRunner{}, func(o *Options) { o.NewID = func() string { return "bad/id" } })
	rec, _ := post(t, h, `{"prompt":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreate_BusyWhenSlotsTaken(t *testing.T) {
	runner := &fakeRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
	ids := make(chan string, 2)
	ids <- "first"
	ids <- "second"
	h := newTestServer(t, runner, func(o *Options) { o.NewID = func() string { return <-ids } })

	done := make(chan int)
	go func() {
		rec, _ := post(t, h, `{"prompt":"slow"}`)
		done <- rec.Code
	}()
	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first generation never started")
	}

	rec, _ := post(t, h, `{"prompt":"second"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	close(runner.release)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestGet_NotFound(t *testing.T) {
	h := newTestServer(t, &fakeRunner{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generations/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generations/missing/video", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, &fakeRunner{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "animgen_http_requests_total")
}

func TestNew_RequiresRunner(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestResultStore_EvictsOldest(t *testing.T) {
	s := newStore(2, 0, time.Now)
	for _, id := range []string{"a", "b", "c"} {
		s.set(id, &pipeline.Result{RequestID: id, State: pipeline.StateSuccess})
	}
	_, ok := s.get("a")
	assert.False(t, ok)
	_, ok = s.get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, s.size())

	// Overwriting an id does not count twice.
	s.set("c", &pipeline.Result{RequestID: "c"})
	assert.Equal(t, 2, s.size())
	_, ok = s.get("b")
	assert.True(t, ok)
}

func TestResultStore_ExpiresByAge(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newStore(10, time.Hour, func() time.Time { return now })
	s.set("old", &pipeline.Result{RequestID: "old"})
	now = now.Add(30 * time.Minute)
	s.set("new", &pipeline.Result{RequestID: "new"})
	now = now.Add(45 * time.Minute)

	_, ok := s.get("old")
	assert.False(t, ok)
	assert.Equal(t, 1, s.prune())
	assert.Equal(t, 1, s.size())
	_, ok = s.get("new")
	assert.True(t, ok)
}

func TestResultStore_CompactsAttempts(t *testing.T) {
	stderr := strings.Repeat("x", maxStoredStderr) + "Traceback tail"
	res := &pipeline.Result{
		RequestID: "r",
		Attempts:  []pipeline.Attempt{{Index: 1, Stdout: "progress bars", Stderr: stderr}},
	}
	s := newStore(1, 0, time.Now)
	s.set("r", res)

	got, ok := s.get("r")
	require.True(t, ok)
	require.Len(t, got.Attempts, 1)
	assert.Empty(t, got.Attempts[0].Stdout)
	assert.Len(t, got.Attempts[0].Stderr, maxStoredStderr)
	assert.True(t, strings.HasSuffix(got.Attempts[0].Stderr, "Traceback tail"))
	// The caller's result is untouched.
	assert.Equal(t, "progress bars", res.Attempts[0].Stdout)
	assert.Equal(t, stderr, res.Attempts[0].Stderr)
}

func TestPruneResults_ExpiresLookups(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	runner := &fakeRunner{}
	o := Options{Runner: runner, ResultTTL: time.Hour, NewID: func() string { return "gen-1" }, Now: func() time.Time { return now }}
	s, err := New(o)
	require.NoError(t, err)
	h := s.Routes()

	rec, _ := post(t, h, `{"prompt":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	now = now.Add(2 * time.Hour)
	assert.Equal(t, 1, s.PruneResults())
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generations/gen-1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
