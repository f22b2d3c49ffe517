package naming

import (
	"slices"
	"strconv"
	"strings"

	"github.com/wintopic/iDanmu-Speed/internal/model"
)

// DefaultRule is used when no naming rule is configured.
const DefaultRule = "{index:03d}_{base}"

// Fields lists the placeholders a naming rule may reference.
var Fields = []string{
	"index", "base", "name", "mode", "ext", "url",
	"anime", "episode", "commentId", "animeTitle", "episodeTitle",
}

// value is a placeholder value: an integer or a string.
type value struct {
	isInt bool
	i     int64
	s     string
}

func intValue(i int64) value { return value{isInt: true, i: i} }
func strValue(s string) value { return value{s: s} }

// spec is a parsed "[0][width][d|s]" format spec.
type spec struct {
	zero  bool
	width int
	verb  byte
}

type segment struct {
	literal string
	field   string
	spec    spec
}

// Template is a parsed naming rule such as "{index:03d}_{base}".
//
// Literal braces are written "{{" and "}}". A placeholder is "{field}" or
// "{field:spec}" where spec is an optional "0" flag, an optional width and
// an optional type "d" (integer) or "s" (string).
type Template struct {
	rule     string
	segments []segment
}

// Parse parses rule. An empty rule parses as DefaultRule. Syntax errors and
// unknown fields are *model.InputError.
func Parse(rule string) (*Template, error) {
	if strings.TrimSpace(rule) == "" {
		rule = DefaultRule
	}

	t := &Template{rule: rule}
	var lit strings.Builder

	for i := 0; i < len(rule); i++ {
		c := rule[i]
		switch c {
		case '{':
			if i+1 < len(rule) && rule[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(rule[i+1:], '}')
			if end < 0 {
				return nil, model.Inputf("invalid naming rule: expected '}' before end of string")
			}
			body := rule[i+1 : i+1+end]
			if strings.ContainsRune(body, '{') {
				return nil, model.Inputf("invalid naming rule: unexpected '{' in field name")
			}
			seg, err := parseField(body)
			if err != nil {
				return nil, err
			}
			if lit.Len() > 0 {
				t.segments = append(t.segments, segment{literal: lit.String()})
				lit.Reset()
			}
			t.segments = append(t.segments, seg)
			i += end + 1

		case '}':
			if i+1 < len(rule) && rule[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, model.Inputf("invalid naming rule: single '}' encountered in format string")

		default:
			lit.WriteByte(c)
		}
	}
	if lit.Len() > 0 {
		t.segments = append(t.segments, segment{literal: lit.String()})
	}
	return t, nil
}

func parseField(body string) (segment, error) {
	name, rawSpec, _ := strings.Cut(body, ":")
	if name == "" {
		return segment{}, model.Inputf("invalid naming rule: positional fields are not supported")
	}
	if strings.ContainsAny(name, "!.[") {
		return segment{}, model.Inputf("invalid naming rule: unsupported field expression %q", name)
	}
	if !slices.Contains(Fields, name) {
		return segment{}, model.Inputf("invalid naming rule field: %s", name)
	}

	sp, err := parseSpec(rawSpec)
	if err != nil {
		return segment{}, err
	}
	return segment{field: name, spec: sp}, nil
}

func parseSpec(raw string) (spec, error) {
	var sp spec
	rest := raw

	if n := len(rest); n > 0 && (rest[n-1] == 'd' || rest[n-1] == 's') {
		sp.verb = rest[n-1]
		rest = rest[:n-1]
	}
	if strings.HasPrefix(rest, "0") {
		sp.zero = true
		rest = rest[1:]
	}
	if rest != "" {
		w, err := strconv.Atoi(rest)
		if err != nil || w < 0 {
			return spec{}, model.Inputf("invalid naming rule: invalid format specifier %q", raw)
		}
		sp.width = w
	}
	return sp, nil
}

// Rule returns the source rule.
func (t *Template) Rule() string { return t.rule }

func (t *Template) execute(vals map[string]value) (string, error) {
	var b strings.Builder
	for _, seg := range t.segments {
		if seg.field == "" {
			b.WriteString(seg.literal)
			continue
		}
		s, err := formatValue(seg.field, vals[seg.field], seg.spec)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

func formatValue(field string, v value, sp spec) (string, error) {
	if v.isInt {
		if sp.verb == 's' {
			return "", model.Inputf("invalid naming rule: unknown format code 's' for integer field %s", field)
		}
		s := strconv.FormatInt(v.i, 10)
		return pad(s, sp.width, sp.zero, true), nil
	}

	if sp.verb == 'd' {
		return "", model.Inputf("invalid naming rule: unknown format code 'd' for text field %s", field)
	}
	return pad(v.s, sp.width, sp.zero, false), nil
}

// pad widens s to width characters. Numbers are right-aligned and zero
// padding goes after the sign; text is left-aligned.
func pad(s string, width int, zero, numeric bool) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	fill := " "
	if zero {
		fill = "0"
	}
	padding := strings.Repeat(fill, width-n)

	if !numeric {
		return s + padding
	}
	if zero && strings.HasPrefix(s, "-") {
		return "-" + padding + s[1:]
	}
	return padding + s
}
