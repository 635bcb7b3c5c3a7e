// Package publisher exports finished generation requests out of their
// workspace: the video, the final script, a markdown/HTML attempt report and a
// YAML history manifest. It can also notify a webhook.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Aafimalek/animation-genai/logging"
	"github.com/Aafimalek/animation-genai/pipeline"
	"github.com/Aafimalek/animation-genai/workspace"
)

const (
	ReportName  = "report.md"
	HTMLName    = "report.html"
	HistoryName = "history.yaml"
)

// Config holds the export destination.
type Config struct {
	Dir        string
	WebhookURL string
}

// Publisher writes request artifacts under Config.Dir/<request-id>/.
type Publisher struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates a Publisher. The HTTP client is only used for webhooks.
func New(cfg Config, client *http.Client, logger *zap.Logger) (*Publisher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("publisher: output dir is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger = logging.OrNop(logger)
	return &Publisher{cfg: cfg, client: client, logger: logger}, nil
}

// Dir returns the export directory for a request.
func (p *Publisher) Dir(requestID string) string {
	return filepath.Join(p.cfg.Dir, requestID)
}

// Publish copies the video (on success) and writes the report and history.
// A failed webhook is logged, not returned.
func (p *Publisher) Publish(ctx context.Context, res *pipeline.Result) (*pipeline.Export, error) {
	if res == nil {
		return nil, errors.New("publisher: nil result")
	}
	if !workspace.ValidID(res.RequestID) {
		return nil, fmt.Errorf("publisher: invalid request id %q", res.RequestID)
	}
	dir := p.Dir(res.RequestID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	exp := &pipeline.Export{
		Dir:         dir,
		ReportPath:  filepath.Join(dir, ReportName),
		HTMLPath:    filepath.Join(dir, HTMLName),
		HistoryPath: filepath.Join(dir, HistoryName),
	}

	if res.State == pipeline.StateSuccess && res.VideoPath != "" {
		exp.VideoPath = filepath.Join(dir, res.RequestID+".mp4")
		if err := copyFile(res.VideoPath, exp.VideoPath); err != nil {
			return nil, fmt.Errorf("failed to export video: %w", err)
		}
		p.logger.Debug("exported video", zap.String("path", exp.VideoPath))
	}
	if n := len(res.Attempts); n > 0 {
		exp.ScriptPath = filepath.Join(dir, res.RequestID+".py")
		if err := os.WriteFile(exp.ScriptPath, []byte(res.Attempts[n-1].Source), 0o644); err != nil {
			return nil, fmt.Errorf("failed to export script: %w", err)
		}
	}

	report := BuildReport(res)
	if err := os.WriteFile(exp.ReportPath, []byte(report), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	page, err := mdToHTML(report)
	if err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	if err := os.WriteFile(exp.HTMLPath, []byte(wrapPage("Animation report "+res.RequestID, page)), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write html report: %w", err)
	}

	// The history outlives the workspace, so it points at the exported video.
	hist := *res
	hist.VideoPath = exp.VideoPath
	history, err := yaml.Marshal(&hist)
	if err != nil {
		return nil, fmt.Errorf("failed to encode history: %w", err)
	}
	if err := os.WriteFile(exp.HistoryPath, history, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write history: %w", err)
	}

	p.logger.Info("exported result",
		zap.String("request_id", res.RequestID),
		zap.Stringer("state", res.State),
		zap.String("dir", dir))

	if p.cfg.WebhookURL != "" {
		if err := p.notify(ctx, res, exp); err != nil {
			p.logger.Warn("webhook notification failed", zap.String("url", p.cfg.WebhookURL), zap.Error(err))
		}
	}
	return exp, nil
}

// Notification is the webhook payload.
type Notification struct {
	RequestID string   `json:"request_id"`
	State     string   `json:"state"`
	Attempts  int      `json:"attempts"`
	VideoPath string   `json:"video_path,omitempty"`
	Report    string   `json:"report"`
	Reason    string   `json:"reason,omitempty"`
	Diagnoses []string `json:"diagnoses,omitempty"`
}

func (p *Publisher) notify(ctx context.Context, res *pipeline.Result, exp *pipeline.Export) error {
	n := Notification{
		RequestID: res.RequestID,
		State:     res.State.String(),
		Attempts:  len(res.Attempts),
		VideoPath: exp.VideoPath,
		Report:    exp.ReportPath,
	}
	if res.Failure != nil {
		n.Reason = res.Failure.Reason
		for _, d := range res.Failure.Diagnoses {
			n.Diagnoses = append(n.Diagnoses, d.Diagnosis.Message)
		}
	}
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

func mdToHTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func wrapPage(title, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; max-width: 960px; margin: 2em auto; padding: 0 1em; line-height: 1.5; }
pre { background: #f6f8fa; padding: 1em; overflow-x: auto; }
code { font-family: "SFMono-Regular", Consolas, monospace; font-size: 0.9em; }
</style>
</head>
<body>
%s</body>
</html>
`, html.EscapeString(title), body)
}
