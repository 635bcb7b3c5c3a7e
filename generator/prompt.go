package generator

import (
	"fmt"
	"strings"
)

// Prompt 表示发送给 LLM 的消息集合。
type Prompt struct {
	System  string
	User    string
	History []Message
}

// Message 用于少量历史（可选）。
type Message struct {
	Role    string
	Content string
}

const (
	// 回传给模型的 traceback 尾部上限。
	maxStderrBytes = 4000
	// 修正时附带的历史轮数上限。
	maxHistoryTurns = 2
)

// SystemPrompt 约定 Manim 版本、场景结构和输出格式。
const SystemPrompt = `You are an expert in creating educational animations using the Manim library (Community Edition v0.19.0), in the style of 3Blue1Brown.

Generate a complete Python script that:
1. Uses Manim to create a 2D educational animation
2. Explains the concept clearly with visual elements
3. Includes proper animations, text, and mathematical expressions
4. Has a clean, professional look with a good color scheme

SYNTAX REQUIREMENTS for Manim Community v0.19.0:
- Use .move_to(ORIGIN) or .center() instead of .to_center()
- Use .shift() for positioning adjustments
- Use MathTex() for mathematical expressions (not TexMobject)
- Use Text() for regular text (not TextMobject)
- Use Create() instead of ShowCreation()
- For axes use Axes(x_range=[min, max], y_range=[min, max]); never put x_range or y_range inside x_axis_config or y_axis_config
- Axis configs only hold visual properties such as font_size or color
- For graphs use axes.plot(function, x_range=[min, max]), not axes.get_graph()
- Use axes.get_graph_label() and axes.get_axis_labels() for labels
- Define functions with lambda or def before plotting
- Use self.play() for animations, self.add() for static objects and self.wait() for pauses

The script MUST follow this structure:
- Start with: from manim import *
- Define a class named MainScene that inherits from Scene
- Implement construct(self) with the animation logic
- Use animations like Write, Create, Transform, FadeIn, FadeOut
- Use colors from Manim's palette (BLUE, RED, GREEN, YELLOW, ...)

Return ONLY the Python code. Do not use markdown formatting and do not add explanations.

Example:
from manim import *

class MainScene(Scene):
    def construct(self):
        title = Text("Your Title")
        title.move_to(ORIGIN)
        self.play(Write(title))
        self.wait()

        axes = Axes(x_range=[-3, 3, 1], y_range=[-2, 2, 1], x_length=6, y_length=4)
        graph = axes.plot(lambda x: x**2, x_range=[-2, 2], color=BLUE)
        self.play(Create(axes), Create(graph))`

// BuildInitialPrompt 生成首次生成的提示词。
func BuildInitialPrompt(request string) Prompt {
	return Prompt{
		System: SystemPrompt,
		User:   "Create an educational animation about: " + strings.TrimSpace(request),
	}
}

// BuildCorrectionPrompt 带上失败脚本、诊断和 stderr 尾部，要求返回完整的修正脚本。
// 之前的往返作为对话历史重放。
func BuildCorrectionPrompt(request string, corr Correction, history []Turn) Prompt {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("The animation requested was: %s\n\n", strings.TrimSpace(request)))
	sb.WriteString("This Manim script failed to render:\n\n")
	sb.WriteString(corr.Source)
	sb.WriteString("\n\n")

	d := corr.Diagnosis
	sb.WriteString(fmt.Sprintf("Diagnosis: %s\n", d.Message))
	if d.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("Suggested fix: %s\n", d.Suggestion))
	}
	if tail := tailString(strings.TrimSpace(corr.Stderr), maxStderrBytes); tail != "" {
		sb.WriteString("\nRenderer error output (tail):\n")
		sb.WriteString(tail)
		sb.WriteString("\n")
	}
	sb.WriteString("\nReturn the complete corrected script, not a diff. Keep the MainScene class and the same animation idea.")

	return Prompt{
		System:  SystemPrompt,
		User:    sb.String(),
		History: historyMessages(history),
	}
}

func historyMessages(history []Turn) []Message {
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	var msgs []Message
	for _, t := range history {
		msgs = append(msgs,
			Message{Role: "user", Content: t.Request},
			Message{Role: "assistant", Content: t.Source},
		)
	}
	return msgs
}

// tailString 保留 s 的最后 max 字节，不截断 UTF-8 字符。
func tailString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := len(s) - max
	for cut < len(s) && s[cut]&0xC0 == 0x80 {
		cut++
	}
	return s[cut:]
}
