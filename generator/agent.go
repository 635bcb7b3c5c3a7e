package generator

import (
	"context"
	"errors"
)

// Agent 负责根据用户描述生成脚本，或根据渲染诊断修正脚本。
type Agent struct {
	llm LLMClient
}

func NewAgent(llm LLMClient) (*Agent, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	return &Agent{llm: llm}, nil
}

// Generate 根据是否存在 corr 决定首次生成或修正流程。
// 失败统一返回 *GenerationError；ctx 被取消时原样返回 ctx 的错误。
func (a *Agent) Generate(ctx context.Context, request string, corr *Correction, history []Turn) (string, error) {
	var prompt Prompt
	if corr == nil {
		prompt = BuildInitialPrompt(request)
	} else {
		prompt = BuildCorrectionPrompt(request, *corr, history)
	}

	raw, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &GenerationError{Op: "complete", Err: err}
	}
	source, err := PostProcess(raw)
	if err != nil {
		return "", &GenerationError{Op: "postprocess", Err: err}
	}
	return source, nil
}
