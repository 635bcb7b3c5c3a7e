package autofix

import (
	"regexp"
	"strings"
)

var (
	axesCallRe = regexp.MustCompile(`\b(?:ThreeD)?Axes\(`)

	axisConfigRe = map[string]*regexp.Regexp{
		"x": regexp.MustCompile(`x_axis_config\s*=\s*\{[^{}]*\}`),
		"y": regexp.MustCompile(`y_axis_config\s*=\s*\{[^{}]*\}`),
	}
	rangeEntryRe = map[string]*regexp.Regexp{
		"x": regexp.MustCompile(`["']x_range["']\s*:\s*(\[[^\]]*\])\s*,?\s*`),
		"y": regexp.MustCompile(`["']y_range["']\s*:\s*(\[[^\]]*\])\s*,?\s*`),
	}
	emptyConfigRe = map[string]*regexp.Regexp{
		"x": regexp.MustCompile(`x_axis_config\s*=\s*\{\s*\}\s*,?\s*`),
		"y": regexp.MustCompile(`y_axis_config\s*=\s*\{\s*\}\s*,?\s*`),
	}
	rangeKwargRe = map[string]*regexp.Regexp{
		"x": regexp.MustCompile(`(?:^|[\s,(])x_range\s*=`),
		"y": regexp.MustCompile(`(?:^|[\s,(])y_range\s*=`),
	}
)

// fixAxes moves x_range/y_range entries out of x_axis_config/y_axis_config
// dicts into top-level Axes keyword arguments.
func fixAxes(src string) string {
	locs := axesCallRe.FindAllStringIndex(src, -1)
	if len(locs) == 0 {
		return src
	}

	var b strings.Builder
	last := 0
	for _, loc := range locs {
		open := loc[1] - 1
		if open < last {
			continue
		}
		end := matchingParen(src, open)
		if end < 0 {
			continue
		}
		b.WriteString(src[last : open+1])
		b.WriteString(fixAxesArgs(src[open+1 : end]))
		last = end
	}
	b.WriteString(src[last:])
	return b.String()
}

func fixAxesArgs(args string) string {
	var moved []string
	for _, axis := range []string{"x", "y"} {
		cfgLoc := axisConfigRe[axis].FindStringIndex(args)
		if cfgLoc == nil {
			continue
		}
		cfg := args[cfgLoc[0]:cfgLoc[1]]
		m := rangeEntryRe[axis].FindStringSubmatchIndex(cfg)
		if m == nil {
			continue
		}
		value := cfg[m[2]:m[3]]
		cfg = cfg[:m[0]] + cfg[m[1]:]
		args = args[:cfgLoc[0]] + cfg + args[cfgLoc[1]:]
		args = emptyConfigRe[axis].ReplaceAllString(args, "")

		if !rangeKwargRe[axis].MatchString(args) {
			moved = append(moved, axis+"_range="+value)
		}
	}
	if len(moved) == 0 {
		return args
	}

	rest := strings.TrimLeft(args, " \t\r\n")
	lead := args[:len(args)-len(rest)]
	params := strings.Join(moved, ", ")
	if strings.TrimSpace(rest) == "" {
		return lead + params
	}
	return lead + params + ", " + rest
}

// matchingParen returns the index of the ')' closing the '(' at open, skipping
// string literals, or -1 when unbalanced.
func matchingParen(s string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
