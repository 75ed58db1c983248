package classify

import (
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/caremarket/parentry/errors"
)

// matcher reports whether an uppercased, whitespace-collapsed name matches.
type matcher interface {
	match(name string) bool
}

type regexMatcher struct {
	res []*regexp.Regexp
}

func (m regexMatcher) match(name string) bool {
	for _, re := range m.res {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

type exprMatcher struct {
	program cel.Program
}

func (m exprMatcher) match(name string) bool {
	out, _, err := m.program.Eval(map[string]any{"name": name})
	if err != nil {
		return false
	}
	v, ok := out.Value().(bool)
	return ok && v
}

// Word boundaries for prefix/phrase/suffix rules. Names are uppercased before
// matching, so only A-Z and digits count as word characters.
const (
	leftBoundary  = `(?:^|[^A-Z0-9])`
	rightBoundary = `(?:$|[^A-Z0-9])`
	trailingPunct = `[\s.,;]*$`
)

// compileRule builds the matcher for one validated rule.
func compileRule(env *cel.Env, r Rule) (matcher, error) {
	if r.Kind == KindExpr {
		return compileExpr(env, r)
	}

	res := make([]*regexp.Regexp, 0, len(r.Patterns))
	for _, p := range r.Patterns {
		var src string
		switch r.Kind {
		case KindRegex:
			src = p
		case KindPrefix:
			src = `^` + tokens(p) + rightBoundary
		case KindPhrase:
			src = leftBoundary + tokens(p) + rightBoundary
		case KindSuffix:
			src = leftBoundary + tokens(strings.TrimRight(p, ".,; ")) + trailingPunct
		}

		re, err := regexp.Compile(src)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidRequest, "rule %s: pattern %q: %s", r.ID, p, err.Error())
		}
		res = append(res, re)
	}
	return regexMatcher{res: res}, nil
}

func compileExpr(env *cel.Env, r Rule) (matcher, error) {
	ast, issues := env.Compile(strings.TrimSpace(r.Expr))
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "rule %s: expr: %s", r.ID, issues.Err().Error())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.NewInvalidRequestError("rule %s: expr must evaluate to bool", r.ID)
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "rule %s: build program", r.ID)
	}
	return exprMatcher{program: program}, nil
}

// tokens quotes an uppercased pattern and lets any whitespace run separate its tokens.
func tokens(p string) string {
	fields := strings.Fields(strings.ToUpper(p))
	for i, f := range fields {
		fields[i] = regexp.QuoteMeta(f)
	}
	return strings.Join(fields, `\s+`)
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(cel.Variable("name", cel.StringType))
}
