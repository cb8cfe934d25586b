// Package filter decides which statuses are processed, using a CEL
// predicate over the status fields.
package filter

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"github.com/lsm/tagpulse/internal/source"
)

// Filter evaluates a compiled CEL predicate. The expression sees the
// string variables id, text, lang and user, e.g.
//
//	lang == "en" && !text.contains("RT @")
type Filter struct {
	expr    string
	program cel.Program
}

// New compiles expression. It must evaluate to a bool.
func New(expression string) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("text", cel.StringType),
		cel.Variable("lang", cel.StringType),
		cel.Variable("user", cel.StringType),
		ext.Strings(),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel compile: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter must evaluate to bool, got %s", ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel program: %w", err)
	}
	return &Filter{expr: expression, program: prg}, nil
}

// Match reports whether st passes the filter.
func (f *Filter) Match(st source.Status) (bool, error) {
	out, _, err := f.program.Eval(map[string]interface{}{
		"id":   st.ID,
		"text": st.Text,
		"lang": st.Lang,
		"user": st.User,
	})
	if err != nil {
		return false, fmt.Errorf("cel eval: %w", err)
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter returned %T, want bool", out.Value())
	}
	return v, nil
}

// String returns the source expression.
func (f *Filter) String() string { return f.expr }
