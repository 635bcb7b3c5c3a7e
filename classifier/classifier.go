// Package classifier turns captured manim stderr into a structured diagnosis.
package classifier

import (
	"regexp"
)

// Category groups diagnoses by the kind of fix they call for.
type Category string

const (
	CategoryAxesConfig    Category = "axes-config"
	CategoryDeprecatedAPI Category = "deprecated-api"
	CategoryGraphPlotting Category = "graph-plotting"
	CategoryLatex         Category = "latex"
	CategoryMissingScene  Category = "missing-scene"
	CategoryPythonSyntax  Category = "python-syntax"
	CategoryImport        Category = "import"
	CategoryUndefinedName Category = "undefined-name"
	CategoryAttribute     Category = "attribute"
	CategoryType          Category = "type"
	CategoryTimeout       Category = "timeout"
	CategoryMissingOutput Category = "missing-output"
	CategoryUnknown       Category = "unknown"
)

// Diagnosis is a human-readable classification of a render failure.
// MatchedPattern is empty when no signature matched.
type Diagnosis struct {
	MatchedPattern string   `json:"matched_pattern,omitempty" yaml:"matched_pattern,omitempty"`
	Message        string   `json:"message" yaml:"message"`
	Suggestion     string   `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
	Category       Category `json:"category" yaml:"category"`
}

// Signature is one row of the classification table. All patterns must match
// for the signature to apply.
type Signature struct {
	Name       string
	Patterns   []*regexp.Regexp
	Message    string
	Suggestion string
	Category   Category
}

func (s Signature) matches(stderr string) bool {
	for _, p := range s.Patterns {
		if !p.MatchString(stderr) {
			return false
		}
	}
	return len(s.Patterns) > 0
}

func re(expr string) *regexp.Regexp { return regexp.MustCompile(expr) }

// Signatures is ordered from most to least specific; the first match wins.
var Signatures = []Signature{
	{
		Name:       "axes-range-conflict",
		Patterns:   []*regexp.Regexp{re(`multiple values for (?:keyword )?argument '[xy]_range'`)},
		Message:    "Axes configuration error: x_range/y_range conflict detected.",
		Suggestion: "Use Axes(x_range=[...], y_range=[...]) instead of putting ranges in axis configs.",
		Category:   CategoryAxesConfig,
	},
	{
		Name:       "to-center",
		Patterns:   []*regexp.Regexp{re(`AttributeError`), re(`to_center`)},
		Message:    "The script calls .to_center(), which does not exist in Manim Community.",
		Suggestion: "Replace .to_center() with .move_to(ORIGIN) or .center().",
		Category:   CategoryDeprecatedAPI,
	},
	{
		Name:       "tex-mobject",
		Patterns:   []*regexp.Regexp{re(`\bTexMobject\b`)},
		Message:    "The script uses TexMobject, which was removed from Manim Community.",
		Suggestion: "Replace TexMobject with MathTex.",
		Category:   CategoryDeprecatedAPI,
	},
	{
		Name:       "text-mobject",
		Patterns:   []*regexp.Regexp{re(`\bTextMobject\b`)},
		Message:    "The script uses TextMobject, which was removed from Manim Community.",
		Suggestion: "Replace TextMobject with Text.",
		Category:   CategoryDeprecatedAPI,
	},
	{
		Name:       "show-creation",
		Patterns:   []*regexp.Regexp{re(`\bShowCreation\b`)},
		Message:    "The script uses ShowCreation, which was renamed in Manim Community.",
		Suggestion: "Replace ShowCreation(...) with Create(...).",
		Category:   CategoryDeprecatedAPI,
	},
	{
		Name:       "get-graph",
		Patterns:   []*regexp.Regexp{re(`(?:TypeError|AttributeError)`), re(`get_graph`)},
		Message:    "Graph plotting error: outdated graph plotting syntax detected.",
		Suggestion: "Replace axes.get_graph(func, x_range=[...]) with axes.plot(func, x_range=[...]) and define func first.",
		Category:   CategoryGraphPlotting,
	},
	{
		Name:       "latex",
		Patterns:   []*regexp.Regexp{re(`(?i)latex (?:compilation )?error|error converting to dvi|\.tex\b.*(?:failed|error)`)},
		Message:    "LaTeX failed to compile one of the MathTex/Tex expressions.",
		Suggestion: "Check MathTex strings for unbalanced braces or unsupported commands; use raw strings for backslashes.",
		Category:   CategoryLatex,
	},
	{
		Name:       "missing-scene",
		Patterns:   []*regexp.Regexp{re(`(?i)MainScene is not in the script|no scenes? (?:inside|found)|could not find.*MainScene`)},
		Message:    "The rendering tool could not find the MainScene class.",
		Suggestion: "Define exactly one scene as `class MainScene(Scene):` with a construct(self) method.",
		Category:   CategoryMissingScene,
	},
	{
		Name:       "python-syntax",
		Patterns:   []*regexp.Regexp{re(`\b(?:SyntaxError|IndentationError|TabError)\b`)},
		Message:    "The script is not valid Python.",
		Suggestion: "Fix the syntax error at the reported line; return only Python code without markdown.",
		Category:   CategoryPythonSyntax,
	},
	{
		Name:       "import",
		Patterns:   []*regexp.Regexp{re(`\b(?:ModuleNotFoundError|ImportError)\b`)},
		Message:    "The script imports a module that is not available.",
		Suggestion: "Only import from manim (from manim import *) and the Python standard library.",
		Category:   CategoryImport,
	},
	{
		Name:       "name-error",
		Patterns:   []*regexp.Regexp{re(`\bNameError\b`)},
		Message:    "The script references an undefined name.",
		Suggestion: "Define the name before use or replace it with its Manim Community equivalent.",
		Category:   CategoryUndefinedName,
	},
	{
		Name:       "attribute-error",
		Patterns:   []*regexp.Regexp{re(`\bAttributeError\b`)},
		Message:    "Syntax error detected: the script contains outdated Manim syntax.",
		Suggestion: "Use only methods that exist in Manim Community v0.19.",
		Category:   CategoryAttribute,
	},
	{
		Name:       "type-error",
		Patterns:   []*regexp.Regexp{re(`\bTypeError\b`)},
		Message:    "A Manim call received arguments of the wrong type or name.",
		Suggestion: "Check keyword arguments against the Manim Community v0.19 signatures.",
		Category:   CategoryType,
	},
}

var unrecognized = Diagnosis{
	Message:    "unrecognized rendering error",
	Suggestion: "Inspect the full stderr output for the failing line.",
	Category:   CategoryUnknown,
}

// Classify returns the diagnosis of the first matching signature, or a generic
// diagnosis when nothing matches. It never fails.
func Classify(stderr string) Diagnosis {
	for _, s := range Signatures {
		if s.matches(stderr) {
			return Diagnosis{
				MatchedPattern: s.Name,
				Message:        s.Message,
				Suggestion:     s.Suggestion,
				Category:       s.Category,
			}
		}
	}
	return unrecognized
}

// Timeout is the fixed diagnosis for a render that exceeded its deadline.
func Timeout() Diagnosis {
	return Diagnosis{
		MatchedPattern: "timeout",
		Message:        "Rendering exceeded the time limit.",
		Suggestion:     "Shorten the animation: fewer objects, shorter run_time and wait() calls, no long loops.",
		Category:       CategoryTimeout,
	}
}

// MissingOutput is the fixed diagnosis for a render that exited cleanly but
// produced no video file.
func MissingOutput() Diagnosis {
	return Diagnosis{
		MatchedPattern: "missing-output",
		Message:        "Rendering finished but no video file was produced.",
		Suggestion:     "Make sure MainScene plays at least one animation with self.play().",
		Category:       CategoryMissingOutput,
	}
}
