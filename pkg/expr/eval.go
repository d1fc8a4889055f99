package expr

import "fmt"

// EvalError reports a runtime evaluation failure, including references to
// undefined context variables.
type EvalError struct {
	Message string
}

func (e *EvalError) Error() string {
	return "eval error: " + e.Message
}

func newEvalError(format string, args ...any) error {
	return &EvalError{Message: fmt.Sprintf(format, args...)}
}

// env carries the evaluation context and the reserved output maps. The
// output maps are created fresh for every run, so nothing leaks between
// expressions.
type env struct {
	ctx map[string]any
	add map[string]any
	set map[string]any
}

func newEnv(ctx map[string]any) *env {
	return &env{
		ctx: ctx,
		add: map[string]any{},
		set: map[string]any{},
	}
}

func (p *program) eval(env *env) (any, error) {
	var result any
	for _, stmt := range p.stmts {
		v, err := stmt.eval(env)
		if err != nil {
			return nil, err
		}
		result = v
	}
	return result, nil
}

func (l *literal) eval(*env) (any, error) {
	return l.value, nil
}

func (id *identifier) eval(env *env) (any, error) {
	switch id.name {
	case "$add":
		return env.add, nil
	case "$set":
		return env.set, nil
	}

	v, ok := env.ctx[id.name]
	if !ok {
		return nil, newEvalError("undefined variable %q", id.name)
	}
	return v, nil
}

func (m *member) eval(env *env) (any, error) {
	base, err := m.base.eval(env)
	if err != nil {
		return nil, err
	}
	return lookupField(base, m.name)
}

func (ix *index) eval(env *env) (any, error) {
	base, err := ix.base.eval(env)
	if err != nil {
		return nil, err
	}

	key, err := ix.key.eval(env)
	if err != nil {
		return nil, err
	}

	name, ok := key.(string)
	if !ok {
		return nil, newEvalError("index must be a string, got %s", typeName(key))
	}
	return lookupField(base, name)
}

// lookupField resolves a field on a map value. A missing field yields null
// rather than an error; member access on a non-map is an error.
func lookupField(base any, name string) (any, error) {
	switch m := base.(type) {
	case map[string]any:
		return m[name], nil
	case map[string]string:
		if v, ok := m[name]; ok {
			return v, nil
		}
		return nil, nil
	case nil:
		return nil, newEvalError("cannot access field %q of null", name)
	default:
		return nil, newEvalError("cannot access field %q of %s", name, typeName(base))
	}
}

func (u *unary) eval(env *env) (any, error) {
	v, err := u.operand.eval(env)
	if err != nil {
		return nil, err
	}

	switch u.op {
	case "!":
		b, ok := v.(bool)
		if !ok {
			return nil, newEvalError("operator ! requires boolean, got %s", typeName(v))
		}
		return !b, nil
	case "-":
		n, ok := toNumber(v)
		if !ok {
			return nil, newEvalError("operator - requires number, got %s", typeName(v))
		}
		return -n, nil
	}
	return nil, newEvalError("unknown operator %q", u.op)
}

func (b *binary) eval(env *env) (any, error) {
	// Boolean operators short-circuit.
	if b.op == "&&" || b.op == "||" {
		return b.evalLogical(env)
	}

	left, err := b.left.eval(env)
	if err != nil {
		return nil, err
	}
	right, err := b.right.eval(env)
	if err != nil {
		return nil, err
	}

	switch b.op {
	case "==":
		return looseEquals(left, right), nil
	case "!=":
		return !looseEquals(left, right), nil
	case "<", "<=", ">", ">=":
		return compare(b.op, left, right)
	case "+":
		return add(left, right)
	case "-", "*", "/":
		return arithmetic(b.op, left, right)
	}
	return nil, newEvalError("unknown operator %q", b.op)
}

func (b *binary) evalLogical(env *env) (any, error) {
	left, err := b.left.eval(env)
	if err != nil {
		return nil, err
	}

	lb, ok := left.(bool)
	if !ok {
		return nil, newEvalError("operator %s requires boolean, got %s", b.op, typeName(left))
	}

	if b.op == "&&" && !lb {
		return false, nil
	}
	if b.op == "||" && lb {
		return true, nil
	}

	right, err := b.right.eval(env)
	if err != nil {
		return nil, err
	}

	rb, ok := right.(bool)
	if !ok {
		return nil, newEvalError("operator %s requires boolean, got %s", b.op, typeName(right))
	}
	return rb, nil
}

func (a *assign) eval(env *env) (any, error) {
	v, err := a.rhs.eval(env)
	if err != nil {
		return nil, err
	}

	switch a.root {
	case "$add":
		env.add[a.name] = v
	case "$set":
		env.set[a.name] = v
	}
	return v, nil
}

// looseEquals compares across the value types the context can hold.
// Numbers compare numerically regardless of their Go representation;
// mismatched types are unequal rather than an error.
func looseEquals(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if an, ok := toNumber(a); ok {
		if bn, ok := toNumber(b); ok {
			return an == bn
		}
		return false
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

func compare(op string, a, b any) (any, error) {
	if an, aok := toNumber(a); aok {
		bn, bok := toNumber(b)
		if !bok {
			return nil, newEvalError("cannot compare number with %s", typeName(b))
		}
		return orderResult(op, an < bn, an == bn), nil
	}

	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return orderResult(op, as < bs, as == bs), nil
	}

	return nil, newEvalError("cannot compare %s with %s", typeName(a), typeName(b))
}

func orderResult(op string, less, equal bool) bool {
	switch op {
	case "<":
		return less
	case "<=":
		return less || equal
	case ">":
		return !less && !equal
	case ">=":
		return !less
	}
	return false
}

func add(a, b any) (any, error) {
	if an, ok := toNumber(a); ok {
		if bn, ok := toNumber(b); ok {
			return an + bn, nil
		}
	}

	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as + bs, nil
	}

	return nil, newEvalError("operator + requires two numbers or two strings")
}

func arithmetic(op string, a, b any) (any, error) {
	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	if !aok || !bok {
		return nil, newEvalError("operator %s requires numbers", op)
	}

	switch op {
	case "-":
		return an - bn, nil
	case "*":
		return an * bn, nil
	case "/":
		if bn == 0 {
			return nil, newEvalError("division by zero")
		}
		return an / bn, nil
	}
	return nil, newEvalError("unknown operator %q", op)
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case float64, float32, int, int32, int64:
		return "number"
	case map[string]any, map[string]string:
		return "map"
	default:
		return fmt.Sprintf("%T", v)
	}
}
