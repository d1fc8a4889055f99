// Package expr implements the restricted expression language used for task
// entry conditions and result transformations.
//
// The grammar is a fixed AST: string/number/bool/null literals, context
// identifiers, member access, indexing, comparisons, boolean operators,
// arithmetic, and assignment into the two reserved output maps $add and
// $set. There is no looping, no function calls, and no access to anything
// outside the supplied context, so an expression can never execute
// arbitrary code.
//
// Evaluation fails closed: callers treat any returned error as "condition
// false" or "transformation skipped" and log it, never propagate it.
package expr

// Mutation carries the side effects of a transformation expression.
// Add introduces new context fields; Set mutates existing ones.
type Mutation struct {
	Add map[string]any
	Set map[string]any
}

// Empty reports whether the mutation carries no changes.
func (m *Mutation) Empty() bool {
	return len(m.Add) == 0 && len(m.Set) == 0
}

// Evaluate parses and evaluates expression as a boolean condition against
// ctx. Any lexical, syntax, or runtime error (including a reference to an
// undefined context variable or a non-boolean result) yields false along
// with the error for logging.
func Evaluate(expression string, ctx map[string]any) (bool, error) {
	prog, err := parse(expression)
	if err != nil {
		return false, err
	}

	env := newEnv(ctx)
	result, err := prog.eval(env)
	if err != nil {
		return false, err
	}

	b, ok := result.(bool)
	if !ok {
		return false, newEvalError("condition result is %s, not boolean", typeName(result))
	}
	return b, nil
}

// Transform parses and evaluates expression for its $add/$set side effects
// against ctx. The reserved maps start empty for every run; the returned
// Mutation is the only way their contents escape. On error the returned
// mutation is empty and the caller skips the transformation.
func Transform(expression string, ctx map[string]any) (*Mutation, error) {
	empty := &Mutation{Add: map[string]any{}, Set: map[string]any{}}

	prog, err := parse(expression)
	if err != nil {
		return empty, err
	}

	env := newEnv(ctx)
	if _, err := prog.eval(env); err != nil {
		return empty, err
	}

	return &Mutation{Add: env.add, Set: env.set}, nil
}
