// Package autofix rewrites known-deprecated Manim API usage in generated
// scripts before they are rendered.
package autofix

import (
	"regexp"
	"strings"
)

// Rule is one deterministic source rewrite. Apply must return its input
// unchanged when the rule does not match.
type Rule struct {
	Name        string
	Description string
	Apply       func(string) string
}

// Fix records a rule that changed the source.
type Fix struct {
	Rule        string `json:"rule" yaml:"rule"`
	Description string `json:"description" yaml:"description"`
}

var (
	texMobjectRe   = regexp.MustCompile(`\bTexMobject\b`)
	textMobjectRe  = regexp.MustCompile(`\bTextMobject\b`)
	showCreationRe = regexp.MustCompile(`\bShowCreation\(`)
	xRangeArgRe    = regexp.MustCompile(`,\s*x_range\s*=\s*\[`)
)

// Rules is the ordered rule table used by Apply.
var Rules = []Rule{
	{
		Name:        "to_center",
		Description: "Replaced .to_center() with .move_to(ORIGIN)",
		Apply: func(s string) string {
			return strings.ReplaceAll(s, ".to_center()", ".move_to(ORIGIN)")
		},
	},
	{
		Name:        "tex_mobject",
		Description: "Replaced TexMobject with MathTex",
		Apply: func(s string) string {
			return texMobjectRe.ReplaceAllString(s, "MathTex")
		},
	},
	{
		Name:        "text_mobject",
		Description: "Replaced TextMobject with Text",
		Apply: func(s string) string {
			return textMobjectRe.ReplaceAllString(s, "Text")
		},
	},
	{
		Name:        "show_creation",
		Description: "Replaced ShowCreation with Create",
		Apply: func(s string) string {
			return showCreationRe.ReplaceAllString(s, "Create(")
		},
	},
	{
		Name:        "axes_config",
		Description: "Fixed Axes configuration - moved x_range/y_range out of axis configs",
		Apply:       fixAxes,
	},
	{
		Name:        "get_graph",
		Description: "Replaced .get_graph() with .plot() for graph plotting",
		Apply:       fixGetGraph,
	},
}

// Apply runs every rule in order and reports the ones that changed the source.
// Applying it to its own output is a no-op.
func Apply(source string) (string, []Fix) {
	var applied []Fix
	for _, r := range Rules {
		out := r.Apply(source)
		if out != source {
			applied = append(applied, Fix{Rule: r.Name, Description: r.Description})
			source = out
		}
	}
	return source, applied
}

// fixGetGraph renames a .get_graph( call to .plot( when its own argument list
// passes x_range. Calls with unbalanced parentheses are left alone.
func fixGetGraph(src string) string {
	const call = ".get_graph("
	var b strings.Builder
	rest := src
	for {
		i := strings.Index(rest, call)
		if i < 0 {
			break
		}
		open := i + len(call) - 1
		b.WriteString(rest[:i])
		if end := matchingParen(rest, open); end >= 0 && xRangeArgRe.MatchString(outerArgs(rest[open+1:end])) {
			b.WriteString(".plot(")
		} else {
			b.WriteString(call)
		}
		rest = rest[open+1:]
	}
	b.WriteString(rest)
	return b.String()
}

// outerArgs collapses nested call arguments to "()" so only the outer call's
// keywords remain visible.
func outerArgs(args string) string {
	var b strings.Builder
	for i := 0; i < len(args); i++ {
		if args[i] == '(' {
			if end := matchingParen(args, i); end >= 0 {
				b.WriteString("()")
				i = end
				continue
			}
		}
		b.WriteByte(args[i])
	}
	return b.String()
}

// Descriptions flattens fixes into their human-readable descriptions.
func Descriptions(fixes []Fix) []string {
	out := make([]string, 0, len(fixes))
	for _, f := range fixes {
		out = append(out, f.Description)
	}
	return out
}
