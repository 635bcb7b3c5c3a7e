package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Aafimalek/animation-genai/autofix"
	"github.com/Aafimalek/animation-genai/pipeline"
)

// errGaveUp makes the process exit non-zero after a reported give-up.
var errGaveUp = errors.New("generation gave up")

var (
	maxAttempts int
	noAutoFix   bool
	jsonOut     bool
	requestID   string

	generateCmd = &cobra.Command{
		Use:   "generate <prompt...>",
		Short: "Generate and render an animation for a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runGenerate,
	}

	renderCmd = &cobra.Command{
		Use:   "render <script.py>",
		Short: "Render an existing or hand-edited script once, without the model",
		Args:  cobra.ExactArgs(1),
		RunE:  runRender,
	}

	fixCmd = &cobra.Command{
		Use:   "fix <script.py|->",
		Short: "Print the script with static fixes applied",
		Args:  cobra.ExactArgs(1),
		RunE:  runFix,
	}
)

func init() {
	generateCmd.Flags().IntVarP(&maxAttempts, "max-attempts", "n", 0, "render attempts (1-5, default generation.max_attempts)")
	generateCmd.Flags().BoolVar(&noAutoFix, "no-auto-fix", false, "disable static fixes")
	generateCmd.Flags().BoolVar(&jsonOut, "json", false, "print the result as JSON")
	generateCmd.Flags().StringVar(&requestID, "id", "", "request id (default: random UUID)")

	renderCmd.Flags().BoolVar(&noAutoFix, "no-auto-fix", false, "disable static fixes")
	renderCmd.Flags().BoolVar(&jsonOut, "json", false, "print the result as JSON")
	renderCmd.Flags().StringVar(&requestID, "id", "", "request id (default: random UUID)")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newRequestID() string {
	if requestID != "" {
		return requestID
	}
	return uuid.NewString()
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	loop, err := buildLoop(ctx, cfg, true)
	if err != nil {
		return err
	}

	req := pipeline.Request{
		ID:          newRequestID(),
		Prompt:      strings.Join(args, " "),
		MaxAttempts: cfg.Generation.MaxAttempts,
		AutoFix:     cfg.Generation.AutoFix && !noAutoFix,
	}
	if maxAttempts > 0 {
		req.MaxAttempts = maxAttempts
	}

	res, err := loop.Run(ctx, req)
	return report(cmd.OutOrStdout(), res, err)
}

func runRender(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateRender(); err != nil {
		return err
	}
	source, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	loop, err := buildLoop(ctx, cfg, false)
	if err != nil {
		return err
	}
	res, err := loop.Run(ctx, pipeline.Request{
		ID:          newRequestID(),
		Prompt:      "Re-render of " + filepath.Base(args[0]),
		Source:      string(source),
		MaxAttempts: 1,
		AutoFix:     cfg.Generation.AutoFix && !noAutoFix,
	})
	return report(cmd.OutOrStdout(), res, err)
}

func runFix(cmd *cobra.Command, args []string) error {
	var (
		src []byte
		err error
	)
	if args[0] == "-" {
		src, err = io.ReadAll(cmd.InOrStdin())
	} else {
		src, err = os.ReadFile(args[0])
	}
	if err != nil {
		return err
	}

	fixed, applied := autofix.Apply(string(src))
	fmt.Fprint(cmd.OutOrStdout(), fixed)
	for _, d := range autofix.Descriptions(applied) {
		fmt.Fprintln(cmd.ErrOrStderr(), "fixed:", d)
	}
	return nil
}

// report prints res and converts a give-up into errGaveUp.
func report(w io.Writer, res *pipeline.Result, runErr error) error {
	if res == nil {
		return runErr
	}
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printResult(w, res)
	}
	if runErr != nil {
		return runErr
	}
	if res.State != pipeline.StateSuccess {
		return errGaveUp
	}
	return nil
}

func printResult(w io.Writer, res *pipeline.Result) {
	fmt.Fprintf(w, "request:  %s\n", res.RequestID)
	fmt.Fprintf(w, "state:    %s\n", res.State)
	fmt.Fprintf(w, "attempts: %d\n", len(res.Attempts))
	if res.VideoPath != "" {
		fmt.Fprintf(w, "video:    %s\n", res.VideoPath)
	}
	if res.Export != nil {
		fmt.Fprintf(w, "report:   %s\n", res.Export.ReportPath)
	}
	if res.Failure == nil {
		return
	}
	fmt.Fprintf(w, "\n%s\n", res.Failure.Reason)
	for _, d := range res.Failure.Diagnoses {
		fmt.Fprintf(w, "  attempt %d [%s] %s\n", d.Attempt, d.ErrorKind, d.Diagnosis.Message)
		if d.Diagnosis.Suggestion != "" {
			fmt.Fprintf(w, "    suggestion: %s\n", d.Diagnosis.Suggestion)
		}
	}
}
