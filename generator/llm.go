package generator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Aafimalek/animation-genai/config"
	"github.com/Aafimalek/animation-genai/logging"
	"github.com/Aafimalek/animation-genai/metrics"
)

// LLMClient 抽象大模型客户端，便于替换/Mock。
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// LLMSettings 提供给具体实现的基础配置。
type LLMSettings struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// NewLLM 按 cfg.Provider 构建客户端，附带超时与指标；
// 配置了 requests_per_minute 时再加一层限流。
func NewLLM(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (LLMClient, error) {
	settings := &LLMSettings{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		APIKey:   cfg.ResolveAPIKey(),
		BaseURL:  cfg.BaseURL,
	}

	var (
		client LLMClient
		err    error
	)
	switch cfg.Provider {
	case "gemini":
		client, err = NewGeminiLLM(ctx, settings)
	case "openai", "deepseek":
		client, err = NewOpenAILLMFromConfig(settings)
	case "mock":
		client = MockLLM{}
	default:
		return nil, &config.ConfigurationError{Key: "llm.provider", Reason: fmt.Sprintf("provider %s not supported", cfg.Provider)}
	}
	if err != nil {
		return nil, err
	}

	logger = logging.OrNop(logger)
	client = &instrumented{
		provider: cfg.Provider,
		timeout:  cfg.Timeout,
		next:     client,
		logger:   logger,
	}
	if cfg.RequestsPerMinute > 0 {
		client = NewRateLimited(client, cfg.RequestsPerMinute)
	}
	return client, nil
}

// instrumented 为每次调用设置超时，并记录指标和日志。
type instrumented struct {
	provider string
	timeout  time.Duration
	next     LLMClient
	logger   *zap.Logger
}

func (c *instrumented) Complete(ctx context.Context, prompt Prompt) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := c.next.Complete(ctx, prompt)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.LLMRequestsTotal.WithLabelValues(c.provider, status).Inc()
	c.logger.Debug("model call finished",
		zap.String("provider", c.provider),
		zap.String("status", status),
		zap.Int("history", len(prompt.History)),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
	return out, err
}
