package generator

import (
	"context"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited 限制模型调用频率，使并发请求不超出服务商配额。
type RateLimited struct {
	limiter *rate.Limiter
	next    LLMClient
}

// NewRateLimited 每分钟允许 perMinute 次调用，突发为 1。
func NewRateLimited(next LLMClient, perMinute int) *RateLimited {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Duration(math.Ceil(float64(time.Minute) / float64(perMinute))))
	}
	return &RateLimited{limiter: rate.NewLimiter(limit, 1), next: next}
}

func (r *RateLimited) Complete(ctx context.Context, prompt Prompt) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.Complete(ctx, prompt)
}
