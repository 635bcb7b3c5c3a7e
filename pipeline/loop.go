package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Aafimalek/animation-genai/autofix"
	"github.com/Aafimalek/animation-genai/classifier"
	"github.com/Aafimalek/animation-genai/generator"
	"github.com/Aafimalek/animation-genai/logging"
	"github.com/Aafimalek/animation-genai/metrics"
	"github.com/Aafimalek/animation-genai/renderer"
	"github.com/Aafimalek/animation-genai/workspace"
)

// ErrNoModel is returned when a request needs the model but the loop has none.
var ErrNoModel = errors.New("no model configured for this loop")

// Renderer runs one script in one attempt directory.
type Renderer interface {
	Render(ctx context.Context, job renderer.Job) (*renderer.Result, error)
}

// Publisher exports a finished request out of its workspace. It runs before
// the workspace is removed.
type Publisher interface {
	Publish(ctx context.Context, res *Result) (*Export, error)
}

// Options wires a Loop. Agent may be nil for loops that only render supplied
// sources in a single attempt; Publisher may be nil to skip exporting.
type Options struct {
	Agent      *generator.Agent
	Renderer   Renderer
	Workspaces *workspace.Manager
	Publisher  Publisher
	KeepFailed bool
	Logger     *zap.Logger
	// OnTransition, if set, is called synchronously on every state change.
	OnTransition func(Transition)
}

// Loop is the correction loop. It is safe for concurrent use; each Run owns
// its own workspace and model session.
type Loop struct {
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

func New(opts Options) (*Loop, error) {
	if opts.Renderer == nil {
		return nil, errors.New("pipeline: renderer is required")
	}
	if opts.Workspaces == nil {
		return nil, errors.New("pipeline: workspace manager is required")
	}
	logger := opts.Logger
	logger = logging.OrNop(logger)
	return &Loop{opts: opts, logger: logger, now: time.Now}, nil
}

// Run executes req to completion.
//
// A request that used up its attempts is not an error: the Result has State
// GivingUp and a FailureSummary. The error is non-nil for an invalid request,
// a *generator.GenerationError (the Result is returned alongside it), a
// workspace failure, or cancellation of ctx.
func (l *Loop) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if l.opts.Agent == nil && (req.Source == "" || req.MaxAttempts > 1) {
		return nil, ErrNoModel
	}

	ws, err := l.opts.Workspaces.Create(req.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	r := &run{
		loop:   l,
		req:    req,
		ws:     ws,
		logger: l.logger.With(zap.String("request_id", req.ID)),
		res: &Result{
			RequestID: req.ID,
			Prompt:    req.Prompt,
			State:     StateInit,
			Workspace: ws.Dir,
			StartedAt: l.now(),
		},
	}
	if l.opts.Agent != nil {
		r.session = generator.NewSession(req.ID, req.Prompt, l.opts.Agent)
	}

	runErr := r.execute(ctx)
	r.finish(ctx, runErr)
	return r.res, runErr
}

// run is the mutable state of one Run call.
type run struct {
	loop    *Loop
	req     Request
	ws      *workspace.Workspace
	session *generator.Session
	logger  *zap.Logger
	res     *Result

	source  string
	fixes   []string
	pending *Attempt
	render  *renderer.Result
	corr    *generator.Correction
}

func (r *run) execute(ctx context.Context) error {
	next := StateGenerating
	if r.req.Source != "" {
		r.source = r.req.Source
		next = StateStaticFixing
	}
	r.transition(next)

	for !r.res.State.Terminal() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		switch r.res.State {
		case StateGenerating:
			err = r.generate(ctx)
		case StateStaticFixing:
			r.staticFix()
		case StateRendering:
			err = r.renderAttempt(ctx)
		case StateDiagnosing:
			r.diagnose()
		default:
			return fmt.Errorf("pipeline: unexpected state %s", r.res.State)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *run) generate(ctx context.Context) error {
	var (
		source string
		err    error
	)
	if r.corr == nil {
		source, err = r.session.Propose(ctx)
	} else {
		source, err = r.session.Correct(ctx, *r.corr)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Error("generation failed", zap.Int("attempt", len(r.res.Attempts)+1), zap.Error(err))
		r.giveUp(err.Error())
		return err
	}
	r.source = source
	r.transition(StateStaticFixing)
	return nil
}

func (r *run) staticFix() {
	r.fixes = nil
	if r.req.AutoFix {
		fixed, applied := autofix.Apply(r.source)
		for _, f := range applied {
			metrics.StaticFixesTotal.WithLabelValues(f.Rule).Inc()
		}
		if len(applied) > 0 {
			r.logger.Info("applied static fixes", zap.Strings("fixes", autofix.Descriptions(applied)))
		}
		r.source = fixed
		r.fixes = autofix.Descriptions(applied)
	}
	r.transition(StateRendering)
}

func (r *run) renderAttempt(ctx context.Context) error {
	index := len(r.res.Attempts) + 1
	dir, err := r.ws.AttemptDir(index)
	if err != nil {
		return err
	}

	out, err := r.loop.opts.Renderer.Render(ctx, renderer.Job{Source: r.source, Dir: dir})
	if err != nil {
		return err
	}
	r.render = out

	attempt := Attempt{
		Index:        index,
		Source:       r.source,
		AppliedFixes: r.fixes,
		Stdout:       out.Stdout,
		Stderr:       out.Stderr,
		ExitStatus:   out.ExitStatus,
		Duration:     out.Duration,
		Dir:          r.relative(dir),
	}
	if out.Failure == nil {
		attempt.Outcome = Outcome{Success: true, VideoPath: r.relative(out.VideoPath)}
		r.res.Attempts = append(r.res.Attempts, attempt)
		r.res.VideoPath = out.VideoPath
		metrics.AttemptsTotal.WithLabelValues("success").Inc()
		r.transition(StateSuccess)
		return nil
	}

	attempt.Outcome = Outcome{ErrorKind: out.Failure.Kind}
	r.pending = &attempt
	metrics.AttemptsTotal.WithLabelValues(string(out.Failure.Kind)).Inc()
	r.transition(StateDiagnosing)
	return nil
}

func (r *run) diagnose() {
	attempt := r.pending
	r.pending = nil

	diag := diagnosisFor(r.render)
	attempt.Outcome.Diagnosis = &diag
	r.res.Attempts = append(r.res.Attempts, *attempt)
	metrics.DiagnosesTotal.WithLabelValues(string(diag.Category)).Inc()

	r.logger.Warn("render attempt failed",
		zap.Int("attempt", attempt.Index),
		zap.String("kind", string(attempt.Outcome.ErrorKind)),
		zap.String("pattern", diag.MatchedPattern),
		zap.String("message", diag.Message))

	if len(r.res.Attempts) >= r.req.MaxAttempts {
		r.giveUp(fmt.Sprintf("rendering failed after %d attempt(s)", len(r.res.Attempts)))
		return
	}
	r.corr = &generator.Correction{
		Source:    attempt.Source,
		Diagnosis: diag,
		Stderr:    attempt.Stderr,
	}
	r.transition(StateGenerating)
}

// diagnosisFor picks the diagnosis for a failed render by error kind.
func diagnosisFor(out *renderer.Result) classifier.Diagnosis {
	switch out.Failure.Kind {
	case renderer.KindTimeout:
		return classifier.Timeout()
	case renderer.KindMissingOutput:
		return classifier.MissingOutput()
	case renderer.KindUnknown:
		if out.Stderr == "" && out.Failure.Err != nil {
			return classifier.Classify(out.Failure.Err.Error())
		}
	}
	return classifier.Classify(out.Stderr)
}

func (r *run) giveUp(reason string) {
	r.res.Failure = &FailureSummary{
		Reason:    reason,
		Diagnoses: r.res.Diagnoses(),
	}
	r.transition(StateGivingUp)
}

func (r *run) transition(to State) {
	from := r.res.State
	r.res.State = to
	r.logger.Debug("state transition",
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Int("attempt", len(r.res.Attempts)))
	if cb := r.loop.opts.OnTransition; cb != nil {
		cb(Transition{RequestID: r.req.ID, From: from, To: to, Attempt: len(r.res.Attempts)})
	}
}

// relative returns path relative to the workspace, or path itself when it lies
// outside it.
func (r *run) relative(path string) string {
	rel, err := filepath.Rel(r.ws.Dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}

// finish exports the outcome and disposes of the workspace.
func (r *run) finish(ctx context.Context, runErr error) {
	res := r.res
	res.FinishedAt = r.loop.now()
	if r.session != nil {
		res.Turns = r.session.History
	}

	if res.State.Terminal() {
		metrics.GenerationsTotal.WithLabelValues(res.State.String()).Inc()
		metrics.AttemptsPerGeneration.Observe(float64(len(res.Attempts)))
	} else {
		metrics.GenerationsTotal.WithLabelValues("aborted").Inc()
	}

	exported := false
	if p := r.loop.opts.Publisher; p != nil && res.State.Terminal() {
		// Export even when the caller has gone away; the artifacts are cheap
		// to write and the workspace is about to disappear.
		exp, err := p.Publish(context.WithoutCancel(ctx), res)
		if err != nil {
			r.logger.Error("failed to export result", zap.Error(err))
		} else {
			res.Export = exp
			if exp.VideoPath != "" {
				res.VideoPath = exp.VideoPath
			}
			exported = true
		}
	}

	keep := r.loop.opts.KeepFailed
	if res.State == StateSuccess {
		// Without an export the video only exists inside the workspace.
		keep = !exported
	}
	if keep {
		r.logger.Info("keeping workspace", zap.String("dir", r.ws.Dir))
	} else if err := r.ws.Remove(); err != nil {
		r.logger.Warn("failed to remove workspace", zap.String("dir", r.ws.Dir), zap.Error(err))
	} else {
		res.Workspace = ""
	}

	fields := []zap.Field{
		zap.Stringer("state", res.State),
		zap.Int("attempts", len(res.Attempts)),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	}
	switch {
	case runErr != nil:
		r.logger.Error("generation aborted", append(fields, zap.Error(runErr))...)
	case res.State == StateSuccess:
		r.logger.Info("generation succeeded", append(fields, zap.String("video", res.VideoPath))...)
	default:
		r.logger.Warn("generation gave up", append(fields, zap.String("reason", res.Failure.Reason))...)
	}
}
