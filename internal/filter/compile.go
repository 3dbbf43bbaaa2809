package filter

// Compiled is a filter that has been typecast and parsed for one kind.
type Compiled struct {
	Kind string
	// Coerced is the typecast filter, kept for count queries against a store.
	Coerced map[string]any
	Expr    Expr
}

// Compile typecasts raw for kind and parses the result.
func Compile(t *Typecaster, kind string, raw map[string]any) (Compiled, error) {
	coerced, err := t.Filter(kind, raw)
	if err != nil {
		return Compiled{}, err
	}
	if coerced == nil {
		coerced = map[string]any{}
	}
	expr, err := Parse(coerced)
	if err != nil {
		return Compiled{}, err
	}
	return Compiled{Kind: kind, Coerced: coerced, Expr: expr}, nil
}

// Matches evaluates an already typecast record.
func (c Compiled) Matches(record map[string]any) bool {
	if record == nil {
		return false
	}
	return Matches(record, c.Expr)
}
