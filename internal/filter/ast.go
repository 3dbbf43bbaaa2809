package filter

import (
	"fmt"
	"sort"
	"strings"

	dErrors "beacon/pkg/domain-errors"
)

// Expr is a parsed filter node. Filters are parsed once at registration and
// evaluated many times.
type Expr interface {
	isExpr()
}

// And matches when every child matches. An empty And matches everything.
type And struct{ Exprs []Expr }

// Or matches when any child matches. An empty Or matches nothing.
type Or struct{ Exprs []Expr }

// FieldEquals compares the value at Path with Value as a whole, lists included.
type FieldEquals struct {
	Path  string
	Value any
}

// FieldIn matches when the value at Path, or any element of it when it is a
// list, is one of Values.
type FieldIn struct {
	Path   string
	Values []any
}

// FieldNotIn is the negation of FieldIn.
type FieldNotIn struct {
	Path   string
	Values []any
}

// FieldExists matches when the presence of Path equals Exists.
type FieldExists struct {
	Path   string
	Exists bool
}

// Never stands in for operators the evaluator does not support. It never matches.
type Never struct{ Reason string }

func (And) isExpr()         {}
func (Or) isExpr()          {}
func (FieldEquals) isExpr() {}
func (FieldIn) isExpr()     {}
func (FieldNotIn) isExpr()  {}
func (FieldExists) isExpr() {}
func (Never) isExpr()       {}

// Parse builds an Expr from a typecast filter. A mapping with several keys is an
// implicit conjunction.
func Parse(filter map[string]any) (Expr, error) {
	expr, err := parseMap(filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid filter")
	}
	return expr, nil
}

func parseMap(m map[string]any) (Expr, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]Expr, 0, len(keys))
	for _, key := range keys {
		value := m[key]
		switch {
		case key == opAnd || key == opOr:
			children, err := parseList(key, value)
			if err != nil {
				return nil, err
			}
			if key == opAnd {
				conds = append(conds, And{Exprs: children})
			} else {
				conds = append(conds, Or{Exprs: children})
			}
		case strings.HasPrefix(key, "$"):
			conds = append(conds, Never{Reason: "unsupported operator " + key})
		default:
			exprs, err := parseField(key, value)
			if err != nil {
				return nil, err
			}
			conds = append(conds, exprs...)
		}
	}
	if len(conds) == 1 {
		return conds[0], nil
	}
	return And{Exprs: conds}, nil
}

func parseList(op string, value any) ([]Expr, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects a list, got %T", ErrInvalidOperatorShape, op, value)
	}
	children := make([]Expr, 0, len(list))
	for i, elem := range list {
		sub, ok := elem.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d] must be an object, got %T", ErrInvalidOperatorShape, op, i, elem)
		}
		child, err := parseMap(sub)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

func parseField(path string, value any) ([]Expr, error) {
	ops, ok := value.(map[string]any)
	if !ok || !isOperatorMap(ops) {
		return []Expr{FieldEquals{Path: path, Value: value}}, nil
	}

	names := make([]string, 0, len(ops))
	for k := range ops {
		names = append(names, k)
	}
	sort.Strings(names)

	exprs := make([]Expr, 0, len(names))
	for _, op := range names {
		operand := ops[op]
		switch op {
		case opIn, opNotIn:
			values, ok := operand.([]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s on %q expects a list, got %T", ErrInvalidOperatorShape, op, path, operand)
			}
			if op == opIn {
				exprs = append(exprs, FieldIn{Path: path, Values: values})
			} else {
				exprs = append(exprs, FieldNotIn{Path: path, Values: values})
			}
		case opExists:
			exists, ok := truthy(operand)
			if !ok {
				return nil, fmt.Errorf("%w: $exists on %q expects a boolean, got %T", ErrInvalidOperatorShape, path, operand)
			}
			exprs = append(exprs, FieldExists{Path: path, Exists: exists})
		default:
			// includes plain keys mixed into an operator mapping
			exprs = append(exprs, Never{Reason: fmt.Sprintf("unsupported operator %s on %q", op, path)})
		}
	}
	return exprs, nil
}

// truthy accepts booleans and numbers, matching {"$exists": 1}.
func truthy(v any) (bool, bool) {
	if b, ok := v.(bool); ok {
		return b, true
	}
	if n, ok := toFloat(v); ok {
		return n != 0, true
	}
	return false, false
}
