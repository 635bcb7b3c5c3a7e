package generator

import (
	"bytes"
	"errors"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ErrEmptyScript 表示模型回复中没有可用代码。
var ErrEmptyScript = errors.New("model returned an empty script")

var mdParser = goldmark.New().Parser()

// PostProcess 从模型回复中提取 Python 源码。
// 取第一个 python（或未标注语言）的代码块；没有代码块时去掉零散的 ``` 行。
func PostProcess(raw string) (string, error) {
	reply := strings.TrimSpace(raw)
	if reply == "" {
		return "", ErrEmptyScript
	}

	code, ok := firstCodeFence(reply)
	if !ok {
		code = stripFences(reply)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return "", ErrEmptyScript
	}
	return code + "\n", nil
}

func firstCodeFence(md string) (string, bool) {
	src := []byte(md)
	doc := mdParser.Parse(text.NewReader(src))

	var (
		out   bytes.Buffer
		found bool
	)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		switch strings.ToLower(string(block.Language(src))) {
		case "", "python", "py", "python3":
		default:
			return ast.WalkContinue, nil
		}
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			out.Write(seg.Value(src))
		}
		found = true
		return ast.WalkStop, nil
	})
	return out.String(), found
}

func stripFences(s string) string {
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[0]), "```") {
		lines = lines[1:]
	}
	if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
		lines = lines[:n-1]
	}
	return strings.Join(lines, "\n")
}
