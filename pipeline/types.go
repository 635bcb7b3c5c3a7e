// Package pipeline drives one generation request through the
// generate, static-fix, render and diagnose cycle until it succeeds or the
// attempt budget runs out.
package pipeline

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Aafimalek/animation-genai/classifier"
	"github.com/Aafimalek/animation-genai/generator"
	"github.com/Aafimalek/animation-genai/renderer"
	"github.com/Aafimalek/animation-genai/workspace"
)

// MaxAttemptsLimit is the hard upper bound on render attempts per request.
const MaxAttemptsLimit = 5

// Request is one immutable generation request. When Source is set the first
// attempt renders it instead of asking the model.
type Request struct {
	ID          string `json:"id" yaml:"id" validate:"required,max=64,workspaceid"`
	Prompt      string `json:"prompt" yaml:"prompt" validate:"required_without=Source,max=4000"`
	Source      string `json:"source,omitempty" yaml:"-"`
	MaxAttempts int    `json:"max_attempts" yaml:"max_attempts" validate:"min=1,max=5"`
	AutoFix     bool   `json:"auto_fix" yaml:"auto_fix"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("workspaceid", func(fl validator.FieldLevel) bool {
		return workspace.ValidID(fl.Field().String())
	})
}

// Validate checks the request fields.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// State is a node of the correction loop state machine.
type State int

const (
	StateInit State = iota
	StateGenerating
	StateStaticFixing
	StateRendering
	StateDiagnosing
	StateSuccess
	StateGivingUp
)

var stateNames = map[State]string{
	StateInit:         "init",
	StateGenerating:   "generating",
	StateStaticFixing: "static-fixing",
	StateRendering:    "rendering",
	StateDiagnosing:   "diagnosing",
	StateSuccess:      "success",
	StateGivingUp:     "giving-up",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool { return s == StateSuccess || s == StateGivingUp }

// Outcome is how one attempt ended. Exactly one of VideoPath or ErrorKind is set.
type Outcome struct {
	Success   bool                  `json:"success" yaml:"success"`
	VideoPath string                `json:"video_path,omitempty" yaml:"video_path,omitempty"`
	ErrorKind renderer.Kind         `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Diagnosis *classifier.Diagnosis `json:"diagnosis,omitempty" yaml:"diagnosis,omitempty"`
}

// Attempt records one generate-or-correct, static-fix and render cycle.
// Source is the text that was actually rendered. Dir and Outcome.VideoPath are
// relative to the request workspace.
type Attempt struct {
	Index        int           `json:"index" yaml:"index"`
	Source       string        `json:"source" yaml:"source"`
	AppliedFixes []string      `json:"applied_fixes,omitempty" yaml:"applied_fixes,omitempty"`
	Stdout       string        `json:"stdout,omitempty" yaml:"-"`
	Stderr       string        `json:"stderr,omitempty" yaml:"stderr,omitempty"`
	ExitStatus   int           `json:"exit_status" yaml:"exit_status"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
	Dir          string        `json:"dir" yaml:"dir"`
	Outcome      Outcome       `json:"outcome" yaml:"outcome"`
}

// AttemptDiagnosis pairs a failed attempt with its diagnosis.
type AttemptDiagnosis struct {
	Attempt   int                  `json:"attempt" yaml:"attempt"`
	ErrorKind renderer.Kind        `json:"error_kind" yaml:"error_kind"`
	Diagnosis classifier.Diagnosis `json:"diagnosis" yaml:"diagnosis"`
}

// FailureSummary lists every attempt's diagnosis, not just the last, so a
// human can pick a fix by hand.
type FailureSummary struct {
	Reason    string             `json:"reason" yaml:"reason"`
	Diagnoses []AttemptDiagnosis `json:"diagnoses" yaml:"diagnoses"`
}

// Export is where a finished request's artifacts were written.
type Export struct {
	Dir         string `json:"dir" yaml:"dir"`
	VideoPath   string `json:"video_path,omitempty" yaml:"video_path,omitempty"`
	ScriptPath  string `json:"script_path,omitempty" yaml:"script_path,omitempty"`
	ReportPath  string `json:"report_path" yaml:"report_path"`
	HTMLPath    string `json:"html_path" yaml:"html_path"`
	HistoryPath string `json:"history_path" yaml:"history_path"`
}

// Result is what Run hands back to the caller. Workspace is the absolute
// workspace directory, empty once it has been removed.
type Result struct {
	RequestID  string           `json:"request_id" yaml:"request_id"`
	Prompt     string           `json:"prompt" yaml:"prompt"`
	State      State            `json:"state" yaml:"state"`
	VideoPath  string           `json:"video_path,omitempty" yaml:"video_path,omitempty"`
	Workspace  string           `json:"workspace,omitempty" yaml:"-"`
	Attempts   []Attempt        `json:"attempts" yaml:"attempts"`
	Failure    *FailureSummary  `json:"failure,omitempty" yaml:"failure,omitempty"`
	Turns      []generator.Turn `json:"-" yaml:"turns,omitempty"`
	Export     *Export          `json:"export,omitempty" yaml:"-"`
	StartedAt  time.Time        `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time        `json:"finished_at" yaml:"finished_at"`
}

// Diagnoses collects the diagnosis of every failed attempt in order.
func (r *Result) Diagnoses() []AttemptDiagnosis {
	var out []AttemptDiagnosis
	for _, a := range r.Attempts {
		if a.Outcome.Success || a.Outcome.Diagnosis == nil {
			continue
		}
		out = append(out, AttemptDiagnosis{
			Attempt:   a.Index,
			ErrorKind: a.Outcome.ErrorKind,
			Diagnosis: *a.Outcome.Diagnosis,
		})
	}
	return out
}

// Transition is reported to observers on every state change.
type Transition struct {
	RequestID string
	From      State
	To        State
	Attempt   int
}
