package generator

import (
	"context"
	"time"
)

// Session 持有一次请求的多轮生成/修正上下文。
type Session struct {
	ID      string
	Request string
	Source  string
	History []Turn
	agent   *Agent
	now     func() time.Time
}

// NewSession 创建 session，尚未生成脚本。
func NewSession(id, request string, agent *Agent) *Session {
	return &Session{
		ID:      id,
		Request: request,
		agent:   agent,
		now:     time.Now,
	}
}

// Propose 生成首个脚本。
func (s *Session) Propose(ctx context.Context) (string, error) {
	source, err := s.agent.Generate(ctx, s.Request, nil, s.History)
	if err != nil {
		return "", err
	}
	s.appendTurn(TurnInitial, BuildInitialPrompt(s.Request).User, source)
	return source, nil
}

// Correct 在渲染失败后请求修正脚本。
func (s *Session) Correct(ctx context.Context, corr Correction) (string, error) {
	source, err := s.agent.Generate(ctx, s.Request, &corr, s.History)
	if err != nil {
		return "", err
	}
	s.appendTurn(TurnCorrection, BuildCorrectionPrompt(s.Request, corr, nil).User, source)
	return source, nil
}

func (s *Session) appendTurn(kind, request, source string) {
	s.Source = source
	s.History = append(s.History, Turn{
		Kind:      kind,
		Request:   request,
		Source:    source,
		CreatedAt: s.now(),
	})
}
