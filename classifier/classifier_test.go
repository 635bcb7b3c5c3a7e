package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		stderr   string
		pattern  string
		category Category
	}{
		{
			name:     "axes conflict",
			stderr:   "TypeError: CoordinateSystem.__init__() got multiple values for argument 'x_range'",
			pattern:  "axes-range-conflict",
			category: CategoryAxesConfig,
		},
		{
			name:     "to_center",
			stderr:   "AttributeError: Text object has no attribute 'to_center'",
			pattern:  "to-center",
			category: CategoryDeprecatedAPI,
		},
		{
			name:     "tex mobject",
			stderr:   "NameError: name 'TexMobject' is not defined",
			pattern:  "tex-mobject",
			category: CategoryDeprecatedAPI,
		},
		{
			name:     "text mobject",
			stderr:   "NameError: name 'TextMobject' is not defined",
			pattern:  "text-mobject",
			category: CategoryDeprecatedAPI,
		},
		{
			name:     "show creation",
			stderr:   "NameError: name 'ShowCreation' is not defined",
			pattern:  "show-creation",
			category: CategoryDeprecatedAPI,
		},
		{
			name:     "get_graph",
			stderr:   "TypeError: Axes.get_graph() got an unexpected keyword argument 'x_range'",
			pattern:  "get-graph",
			category: CategoryGraphPlotting,
		},
		{
			name:     "latex",
			stderr:   "ValueError: latex error converting to dvi. See log output above",
			pattern:  "latex",
			category: CategoryLatex,
		},
		{
			name:     "missing scene",
			stderr:   "MainScene is not in the script",
			pattern:  "missing-scene",
			category: CategoryMissingScene,
		},
		{
			name:     "syntax",
			stderr:   "  File \"animation.py\", line 7\n    self.play(Write(title)\nSyntaxError: '(' was never closed",
			pattern:  "python-syntax",
			category: CategoryPythonSyntax,
		},
		{
			name:     "import",
			stderr:   "ModuleNotFoundError: No module named 'scipy'",
			pattern:  "import",
			category: CategoryImport,
		},
		{
			name:     "name error",
			stderr:   "NameError: name 'foo' is not defined",
			pattern:  "name-error",
			category: CategoryUndefinedName,
		},
		{
			name:     "attribute error",
			stderr:   "AttributeError: 'Circle' object has no attribute 'glow'",
			pattern:  "attribute-error",
			category: CategoryAttribute,
		},
		{
			name:     "type error",
			stderr:   "TypeError: Mobject.__init__() got an unexpected keyword argument 'fill'",
			pattern:  "type-error",
			category: CategoryType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Classify(tt.stderr)
			assert.Equal(t, tt.pattern, d.MatchedPattern)
			assert.Equal(t, tt.category, d.Category)
			assert.NotEmpty(t, d.Message)
			assert.NotEmpty(t, d.Suggestion)
		})
	}
}

func TestClassify_Unrecognized(t *testing.T) {
	for _, stderr := range []string{"", "Segmentation fault", "something odd happened"} {
		d := Classify(stderr)
		assert.Empty(t, d.MatchedPattern)
		assert.Equal(t, "unrecognized rendering error", d.Message)
		assert.Equal(t, CategoryUnknown, d.Category)
	}
}

func TestClassify_FirstMatchWins(t *testing.T) {
	// Matches both the to_center signature and the generic AttributeError one.
	d := Classify("AttributeError: 'VGroup' object has no attribute 'to_center'")
	assert.Equal(t, "to-center", d.MatchedPattern)
}

func TestClassify_Deterministic(t *testing.T) {
	stderr := "TypeError: got multiple values for argument 'y_range'"
	first := Classify(stderr)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(stderr))
	}
}

func TestFixedDiagnoses(t *testing.T) {
	assert.Equal(t, CategoryTimeout, Timeout().Category)
	assert.Equal(t, CategoryMissingOutput, MissingOutput().Category)
}
