package publisher

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aafimalek/animation-genai/pipeline"
)

// maxReportStderr caps the traceback tail shown per attempt.
const maxReportStderr = 2000

// BuildReport renders a request's attempts as markdown.
func BuildReport(res *pipeline.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Animation report: %s\n\n", res.RequestID)
	fmt.Fprintf(&b, "> %s\n\n", strings.ReplaceAll(strings.TrimSpace(res.Prompt), "\n", "\n> "))

	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| State | %s |\n", res.State)
	fmt.Fprintf(&b, "| Attempts | %d |\n", len(res.Attempts))
	if res.State == pipeline.StateSuccess {
		fmt.Fprintf(&b, "| Video | `%s.mp4` |\n", res.RequestID)
	}
	if !res.StartedAt.IsZero() && !res.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "| Started | %s |\n", res.StartedAt.UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, "| Elapsed | %s |\n", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	}
	b.WriteString("\n")

	if res.Failure != nil {
		b.WriteString("## Failure summary\n\n")
		fmt.Fprintf(&b, "%s\n\n", res.Failure.Reason)
		for _, d := range res.Failure.Diagnoses {
			fmt.Fprintf(&b, "- Attempt %d (%s): %s", d.Attempt, d.ErrorKind, d.Diagnosis.Message)
			if d.Diagnosis.Suggestion != "" {
				fmt.Fprintf(&b, " Suggestion: %s", d.Diagnosis.Suggestion)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	for _, a := range res.Attempts {
		status := "rendered"
		if !a.Outcome.Success {
			status = "failed (" + string(a.Outcome.ErrorKind) + ")"
		}
		fmt.Fprintf(&b, "## Attempt %d: %s\n\n", a.Index, status)
		fmt.Fprintf(&b, "Exit status %d after %s.\n\n", a.ExitStatus, a.Duration.Round(time.Millisecond))

		if len(a.AppliedFixes) > 0 {
			b.WriteString("Static fixes:\n\n")
			for _, f := range a.AppliedFixes {
				fmt.Fprintf(&b, "- %s\n", f)
			}
			b.WriteString("\n")
		}
		if d := a.Outcome.Diagnosis; d != nil {
			fmt.Fprintf(&b, "**Diagnosis** (%s): %s\n\n", d.Category, d.Message)
			if d.Suggestion != "" {
				fmt.Fprintf(&b, "**Suggestion**: %s\n\n", d.Suggestion)
			}
		}

		writeFenced(&b, "python", a.Source)
		if !a.Outcome.Success && strings.TrimSpace(a.Stderr) != "" {
			b.WriteString("Renderer output (tail):\n\n")
			writeFenced(&b, "text", tail(a.Stderr, maxReportStderr))
		}
	}
	return b.String()
}

// writeFenced picks a fence longer than any backtick run in body.
func writeFenced(b *strings.Builder, lang, body string) {
	fence := "```"
	for strings.Contains(body, fence) {
		fence += "`"
	}
	body = strings.TrimRight(body, "\n")
	fmt.Fprintf(b, "%s%s\n%s\n%s\n\n", fence, lang, body, fence)
}

func tail(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	cut := len(s) - max
	for cut < len(s) && s[cut]&0xC0 == 0x80 {
		cut++
	}
	return "..." + s[cut:]
}
