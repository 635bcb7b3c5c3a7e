package autofix

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApply_Rules(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		want      string
		wantRules []string
	}{
		{
			name:      "to_center",
			in:        "title.to_center()",
			want:      "title.move_to(ORIGIN)",
			wantRules: []string{"to_center"},
		},
		{
			name:      "tex and text mobject",
			in:        `a = TexMobject("x^2")` + "\n" + `b = TextMobject("hi")`,
			want:      `a = MathTex("x^2")` + "\n" + `b = Text("hi")`,
			wantRules: []string{"tex_mobject", "text_mobject"},
		},
		{
			name:      "show creation",
			in:        "self.play(ShowCreation(circle))",
			want:      "self.play(Create(circle))",
			wantRules: []string{"show_creation"},
		},
		{
			name:      "get_graph",
			in:        "graph = axes.get_graph(lambda x: x**2, x_range=[-2, 2], color=BLUE)",
			want:      "graph = axes.plot(lambda x: x**2, x_range=[-2, 2], color=BLUE)",
			wantRules: []string{"get_graph"},
		},
		{
			name:      "get_graph only rewrites the call passing x_range",
			in:        "g1 = axes.get_graph(f); g2 = axes.get_graph(g, x_range=[0, 1])",
			want:      "g1 = axes.get_graph(f); g2 = axes.plot(g, x_range=[0, 1])",
			wantRules: []string{"get_graph"},
		},
		{
			name:      "get_graph with nested call and x_range",
			in:        "axes.get_graph(lambda x: np.sin(x), x_range=[0, PI])",
			want:      "axes.plot(lambda x: np.sin(x), x_range=[0, PI])",
			wantRules: []string{"get_graph"},
		},
		{
			name: "get_graph with x_range only inside a nested call",
			in:   "axes.get_graph(make(f, x_range=[0, 1]))",
			want: "axes.get_graph(make(f, x_range=[0, 1]))",
		},
		{
			name:      "axes ranges moved out of configs",
			in:        `axes = Axes(x_axis_config={"x_range": [-3, 3]}, y_axis_config={"y_range": [-2, 2]})`,
			want:      `axes = Axes(x_range=[-3, 3], y_range=[-2, 2])`,
			wantRules: []string{"axes_config"},
		},
		{
			name:      "axes keeps other config entries",
			in:        `axes = Axes(x_length=6, x_axis_config={"x_range": [0, 5], "color": BLUE})`,
			want:      `axes = Axes(x_range=[0, 5], x_length=6, x_axis_config={"color": BLUE})`,
			wantRules: []string{"axes_config"},
		},
		{
			name:      "axes does not duplicate an existing kwarg",
			in:        `axes = Axes(x_range=[-3, 3], x_axis_config={'x_range': [-3, 3], 'color': RED})`,
			want:      `axes = Axes(x_range=[-3, 3], x_axis_config={'color': RED})`,
			wantRules: []string{"axes_config"},
		},
		{
			name:      "three d axes",
			in:        `ThreeDAxes(x_axis_config={"x_range": [-1, 1]})`,
			want:      `ThreeDAxes(x_range=[-1, 1])`,
			wantRules: []string{"axes_config"},
		},
		{
			name: "unmatched passes through",
			in:   "from manim import *\n\nclass MainScene(Scene):\n    def construct(self):\n        self.wait()\n",
			want: "from manim import *\n\nclass MainScene(Scene):\n    def construct(self):\n        self.wait()\n",
		},
		{
			name: "correct axes untouched",
			in:   `axes = Axes(x_range=[-3, 3, 1], y_range=[-2, 2, 1], x_length=6)`,
			want: `axes = Axes(x_range=[-3, 3, 1], y_range=[-2, 2, 1], x_length=6)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fixes := Apply(tt.in)
			assert.Equal(t, tt.want, got)

			var rules []string
			for _, f := range fixes {
				rules = append(rules, f.Rule)
			}
			assert.Equal(t, tt.wantRules, rules)
		})
	}
}

func TestApply_MultilineAxes(t *testing.T) {
	in := `axes = Axes(
            x_axis_config={"x_range": [-3, 3], "include_numbers": True},
            y_axis_config={"y_range": [-2, 2]},
        )`
	got, fixes := Apply(in)

	assert.Len(t, fixes, 1)
	assert.Contains(t, got, "x_range=[-3, 3], y_range=[-2, 2], ")
	assert.Contains(t, got, `x_axis_config={"include_numbers": True}`)
	assert.NotContains(t, got, "y_axis_config")
}

func TestApply_Idempotent(t *testing.T) {
	samples := []string{
		"",
		"title.to_center()\nTexMobject TextMobject",
		`Axes(x_axis_config={"x_range": [-3, 3]}, y_axis_config={"y_range": [-2, 2], "color": RED})`,
		`Axes(x_range=[0, 1], x_axis_config={"x_range": [0, 1]}, y_axis_config={})`,
		"axes.get_graph(f, x_range=[0, 1]); axes.get_graph(g, x_range=[1, 2])",
		"g1 = axes.get_graph(f); g2 = axes.get_graph(g, x_range=[0, 1])",
		"axes.get_graph(lambda x: np.sin(x), x_range=[0, 1]",
		"self.play(ShowCreation(a), ShowCreation(b))",
		"Axes(x_axis_config={\"x_range\": [1, 2]}", // unbalanced
		`Text("Axes(x_axis_config={'x_range': [1]})")`,
	}

	for _, s := range samples {
		once, _ := Apply(s)
		twice, fixes := Apply(once)
		assert.Equal(t, once, twice, "input %q", s)
		assert.Empty(t, fixes, "second pass should apply nothing for %q", s)
	}
}

func TestDescriptions(t *testing.T) {
	_, fixes := Apply("TexMobject().to_center()")
	assert.Equal(t, []string{
		"Replaced .to_center() with .move_to(ORIGIN)",
		"Replaced TexMobject with MathTex",
	}, Descriptions(fixes))
}
