// Package renderer runs generated Manim scripts through the manim CLI and
// locates the rendered video.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Aafimalek/animation-genai/logging"
	"github.com/Aafimalek/animation-genai/metrics"
)

const (
	ScriptName = "animation.py"
	LogName    = "render.log"
)

// Kind tags the ways a render can fail.
type Kind string

const (
	KindSyntax        Kind = "syntax"
	KindTimeout       Kind = "timeout"
	KindMissingOutput Kind = "missing-output"
	KindUnknown       Kind = "unknown"
)

// RenderError describes a failed render. These failures are expected and
// drive the correction loop.
type RenderError struct {
	Kind       Kind
	ExitStatus int
	Err        error
}

func (e *RenderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("render failed (%s, exit %d): %v", e.Kind, e.ExitStatus, e.Err)
	}
	return fmt.Sprintf("render failed (%s, exit %d)", e.Kind, e.ExitStatus)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Options configures the manim invocation.
type Options struct {
	Binary         string
	Scene          string
	Quality        string
	Timeout        time.Duration
	MaxOutputBytes int
	ExtraArgs      []string
}

// Job is one render request. A zero Timeout uses Options.Timeout.
type Job struct {
	Source  string
	Dir     string
	Timeout time.Duration
}

// Result captures everything a render produced. Failure is nil on success.
type Result struct {
	ExitStatus int           `json:"exit_status"`
	Stdout     string        `json:"stdout"`
	Stderr     string        `json:"stderr"`
	VideoPath  string        `json:"video_path,omitempty"`
	ScriptPath string        `json:"script_path"`
	LogPath    string        `json:"log_path"`
	Duration   time.Duration `json:"duration"`
	Failure    *RenderError  `json:"-"`
}

// Renderer invokes manim for a job.
type Renderer struct {
	opts   Options
	exec   Executor
	logger *zap.Logger
}

// New returns a Renderer. A nil executor uses ProcessExecutor.
func New(opts Options, executor Executor, logger *zap.Logger) (*Renderer, error) {
	if opts.Binary == "" {
		return nil, errors.New("renderer binary is required")
	}
	if opts.Scene == "" {
		opts.Scene = "MainScene"
	}
	if opts.Quality == "" {
		opts.Quality = "l"
	}
	if _, ok := qualityDirs[opts.Quality]; !ok {
		return nil, fmt.Errorf("unsupported render quality %q", opts.Quality)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if executor == nil {
		executor = ProcessExecutor{}
	}
	logger = logging.OrNop(logger)
	return &Renderer{opts: opts, exec: executor, logger: logger}, nil
}

// Render writes job.Source into job.Dir and runs manim on it. Render failures
// are reported through Result.Failure; the returned error is non-nil only when
// ctx itself was cancelled, in which case the child has already been killed.
func (r *Renderer) Render(ctx context.Context, job Job) (*Result, error) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = r.opts.Timeout
	}

	dir, err := filepath.Abs(job.Dir)
	if err != nil {
		return failed(KindUnknown, err), nil
	}
	res := &Result{
		ExitStatus: -1,
		ScriptPath: filepath.Join(dir, ScriptName),
		LogPath:    filepath.Join(dir, LogName),
	}
	if err := os.WriteFile(res.ScriptPath, []byte(job.Source), 0o644); err != nil {
		res.Failure = &RenderError{Kind: KindUnknown, ExitStatus: -1, Err: fmt.Errorf("failed to write script: %w", err)}
		return res, nil
	}

	cmd := Command{
		Binary: r.opts.Binary,
		Args:   r.args(res.ScriptPath, dir),
		Dir:    dir,
		Env: []string{
			"PYTHONIOENCODING=utf-8",
			"PYTHONLEGACYWINDOWSFSENCODING=0",
		},
		MaxOutputBytes: r.opts.MaxOutputBytes,
	}

	r.logger.Debug("starting render",
		zap.String("binary", cmd.Binary),
		zap.Strings("args", cmd.Args),
		zap.Duration("timeout", timeout))

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	out, execErr := r.exec.Execute(execCtx, cmd)
	res.Duration = time.Since(start)
	res.ExitStatus = out.ExitCode
	res.Stdout = out.Stdout
	res.Stderr = out.Stderr

	if err := writeLog(res); err != nil {
		r.logger.Warn("failed to write render log", zap.String("path", res.LogPath), zap.Error(err))
	}

	switch {
	case ctx.Err() != nil:
		// The caller went away; this is not a render failure.
		return res, ctx.Err()
	case execErr != nil && errors.Is(execErr, context.DeadlineExceeded):
		res.ExitStatus = -1
		res.Failure = &RenderError{Kind: KindTimeout, ExitStatus: -1, Err: fmt.Errorf("timed out after %v", timeout)}
	case execErr != nil:
		res.Failure = &RenderError{Kind: KindUnknown, ExitStatus: res.ExitStatus, Err: execErr}
	case out.ExitCode != 0:
		res.Failure = &RenderError{Kind: KindSyntax, ExitStatus: out.ExitCode}
	default:
		video, ok := r.locateVideo(dir)
		if !ok {
			res.Failure = &RenderError{Kind: KindMissingOutput, ExitStatus: 0, Err: errors.New("no video file found after rendering")}
		} else {
			res.VideoPath = video
		}
	}

	outcome := "success"
	if res.Failure != nil {
		outcome = string(res.Failure.Kind)
	}
	metrics.RenderDuration.WithLabelValues(outcome).Observe(res.Duration.Seconds())
	r.logger.Info("render finished",
		zap.String("outcome", outcome),
		zap.Int("exit_status", res.ExitStatus),
		zap.Duration("duration", res.Duration),
		zap.String("video", res.VideoPath))
	return res, nil
}

func (r *Renderer) args(script, dir string) []string {
	args := []string{
		script,
		r.opts.Scene,
		"-q" + r.opts.Quality,
		"--disable_caching",
		"--media_dir=" + filepath.Join(dir, "media"),
	}
	return append(args, r.opts.ExtraArgs...)
}

func failed(kind Kind, err error) *Result {
	return &Result{ExitStatus: -1, Failure: &RenderError{Kind: kind, ExitStatus: -1, Err: err}}
}

func writeLog(res *Result) error {
	var b strings.Builder
	fmt.Fprintf(&b, "exit status: %d\nduration: %s\n\n", res.ExitStatus, res.Duration)
	b.WriteString("STDOUT:\n")
	b.WriteString(res.Stdout)
	b.WriteString("\n\nSTDERR:\n")
	b.WriteString(res.Stderr)
	b.WriteString("\n")
	return os.WriteFile(res.LogPath, []byte(b.String()), 0o644)
}

// qualityDirs maps the -q flag to the resolution directory manim writes into.
var qualityDirs = map[string]string{
	"l": "480p15",
	"m": "720p30",
	"h": "1080p60",
	"p": "1440p60",
	"k": "2160p60",
}

// locateVideo follows manim's media_dir layout, falling back to shallower
// directories when the expected one is empty.
func (r *Renderer) locateVideo(dir string) (string, bool) {
	media := filepath.Join(dir, "media")
	res := qualityDirs[r.opts.Quality]
	stem := strings.TrimSuffix(ScriptName, filepath.Ext(ScriptName))
	candidates := []string{
		filepath.Join(media, "videos", stem, res),
		filepath.Join(media, "videos", res),
		filepath.Join(media, "videos"),
		media,
	}
	for _, c := range candidates {
		matches, err := filepath.Glob(filepath.Join(c, "*.mp4"))
		if err != nil || len(matches) == 0 {
			continue
		}
		sort.Strings(matches)
		preferred := filepath.Join(c, r.opts.Scene+".mp4")
		for _, m := range matches {
			if m == preferred {
				return m, true
			}
		}
		return matches[0], true
	}
	return "", false
}
