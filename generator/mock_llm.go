package generator

import (
	"context"
	"fmt"
	"strings"
)

// MockLLM 一个简单的占位实现，便于本地调试，不调用外部模型。
// 总是返回一个以请求内容为标题的最小可渲染场景。
type MockLLM struct{}

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	title := prompt.User
	if i := strings.Index(title, ":"); i >= 0 {
		title = title[i+1:]
	}
	if line, _, ok := strings.Cut(strings.TrimSpace(title), "\n"); ok {
		title = line
	}
	title = strings.TrimSpace(title)
	if len(title) > 40 {
		title = title[:40]
	}

	var sb strings.Builder
	sb.WriteString("```python\n")
	sb.WriteString("from manim import *\n\n")
	sb.WriteString("class MainScene(Scene):\n")
	sb.WriteString("    def construct(self):\n")
	sb.WriteString(fmt.Sprintf("        title = Text(%q)\n", title))
	sb.WriteString("        title.move_to(ORIGIN)\n")
	sb.WriteString("        self.play(Write(title))\n")
	sb.WriteString("        self.wait()\n")
	sb.WriteString("        circle = Circle(color=BLUE)\n")
	sb.WriteString("        self.play(Transform(title, circle))\n")
	sb.WriteString("        self.wait()\n")
	sb.WriteString("```\n")
	return sb.String(), nil
}
