// Package query compiles delete criteria into operation.Predicate values.
//
// Two forms are supported: a CEL expression evaluated against the document
// (exposed as the map variable "doc"), and a plain field/value term.
//
//	p, err := query.Compile(`doc.status == "archived" && doc.age > 30`)
//	t := query.Term("id", "42")
package query

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/rzbill/sift/internal/operation"
)

// ErrNotBoolean is returned when an expression does not evaluate to a bool.
var ErrNotBoolean = errors.New("query: expression must be boolean")

// ErrEmpty is returned for a blank expression.
var ErrEmpty = errors.New("query: empty expression")

// Predicate wraps a compiled CEL program.
type Predicate struct {
	expr string
	prog cel.Program
}

var _ operation.Predicate = (*Predicate)(nil)

// newEnv is shared by every compilation; cel.Env is safe for concurrent use.
// Documents decoded from JSON carry doubles, so numeric comparisons are
// allowed across int and double.
var newEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("doc", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
})

// Compile parses and type-checks expr.
func Compile(expr string) (*Predicate, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, ErrEmpty
	}
	env, err := newEnv()
	if err != nil {
		return nil, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("query: parse %q: %w", expr, iss.Err())
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return nil, fmt.Errorf("query: check %q: %w", expr, iss2.Err())
	}
	if !checked.OutputType().IsExactType(cel.BoolType) && !checked.OutputType().IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: %q yields %s", ErrNotBoolean, expr, checked.OutputType())
	}
	prog, err := env.Program(checked)
	if err != nil {
		return nil, err
	}
	return &Predicate{expr: expr, prog: prog}, nil
}

// MustCompile is Compile for expressions known to be valid.
func MustCompile(expr string) *Predicate {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Matches evaluates the program against doc. Evaluation errors (for example
// a missing field) and non-boolean results count as no match.
func (p *Predicate) Matches(doc operation.Document) bool {
	out, _, err := p.prog.Eval(map[string]any{"doc": map[string]any(doc)})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

func (p *Predicate) String() string { return p.expr }

// TermPredicate matches documents whose field equals a value.
type TermPredicate struct {
	Field string
	Value any
}

var _ operation.Predicate = TermPredicate{}

// Term builds a TermPredicate.
func Term(field string, value any) TermPredicate {
	return TermPredicate{Field: field, Value: value}
}

func (t TermPredicate) Matches(doc operation.Document) bool {
	v, ok := doc[t.Field]
	if !ok {
		return false
	}
	return equalValues(v, t.Value)
}

func (t TermPredicate) String() string { return fmt.Sprintf("%s:%v", t.Field, t.Value) }

// equalValues compares numbers by value regardless of their Go type so that a
// term built from an int matches a float64 decoded from JSON.
func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
