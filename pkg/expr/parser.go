package expr

// Node types. Each node evaluates against an env and returns a value or a
// runtime error; runtime errors surface to the caller as fail-closed.

type node interface {
	eval(env *env) (any, error)
}

type program struct {
	stmts []node
}

type literal struct {
	value any
}

type identifier struct {
	name string
}

type member struct {
	base node
	name string
}

type index struct {
	base node
	key  node
}

type unary struct {
	op      string
	operand node
}

type binary struct {
	op          string
	left, right node
}

type assign struct {
	root string // "$add" or "$set"
	name string
	rhs  node
}

type parser struct {
	tokens []token
	pos    int
}

func parse(src string) (*program, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	prog := &program{}

	for !p.at(tokEOF) {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		prog.stmts = append(prog.stmts, stmt)

		if !p.acceptOp(";") {
			break
		}
	}

	if !p.at(tokEOF) {
		return nil, lexError(p.peek().pos, "unexpected token %q", p.peek().text)
	}
	if len(prog.stmts) == 0 {
		return nil, lexError(0, "empty expression")
	}

	return prog, nil
}

// parseStatement handles `$add.x = expr` / `$set["x"] = expr` assignments
// and plain expressions.
func (p *parser) parseStatement() (node, error) {
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if !p.acceptOp("=") {
		return expr, nil
	}

	target, err := assignTarget(expr, p.peek().pos)
	if err != nil {
		return nil, err
	}

	rhs, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	target.rhs = rhs
	return target, nil
}

// assignTarget validates that the left side of an assignment is a single
// member or constant index on one of the reserved output maps.
func assignTarget(lhs node, pos int) (*assign, error) {
	switch n := lhs.(type) {
	case *member:
		if root, ok := n.base.(*identifier); ok && reservedMap(root.name) {
			return &assign{root: root.name, name: n.name}, nil
		}
	case *index:
		root, ok := n.base.(*identifier)
		if !ok || !reservedMap(root.name) {
			break
		}
		key, ok := n.key.(*literal)
		if !ok {
			break
		}
		name, ok := key.value.(string)
		if !ok {
			break
		}
		return &assign{root: root.name, name: name}, nil
	}
	return nil, lexError(pos, "assignment target must be a field of $add or $set")
}

func reservedMap(name string) bool {
	return name == "$add" || name == "$set"
}

func (p *parser) parseOr() (node, error) {
	return p.parseBinary(0)
}

// Precedence climbing over the binary operator tiers.
var binaryTiers = [][]string{
	{"||"},
	{"&&"},
	{"==", "!="},
	{"<", "<=", ">", ">="},
	{"+", "-"},
	{"*", "/"},
}

func (p *parser) parseBinary(tier int) (node, error) {
	if tier >= len(binaryTiers) {
		return p.parseUnary()
	}

	left, err := p.parseBinary(tier + 1)
	if err != nil {
		return nil, err
	}

	for {
		op := p.acceptAnyOp(binaryTiers[tier])
		if op == "" {
			return left, nil
		}

		right, err := p.parseBinary(tier + 1)
		if err != nil {
			return nil, err
		}
		left = &binary{op: op, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	if op := p.acceptAnyOp([]string{"!", "-"}); op != "" {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unary{op: op, operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		switch {
		case p.acceptOp("."):
			tok := p.peek()
			if tok.kind != tokIdent {
				return nil, lexError(tok.pos, "expected field name after '.'")
			}
			p.pos++
			base = &member{base: base, name: tok.text}

		case p.acceptOp("["):
			key, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if !p.acceptOp("]") {
				return nil, lexError(p.peek().pos, "expected ']'")
			}
			base = &index{base: base, key: key}

		default:
			return base, nil
		}
	}
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.peek()

	switch tok.kind {
	case tokNumber:
		p.pos++
		return &literal{value: tok.num}, nil

	case tokString:
		p.pos++
		return &literal{value: tok.text}, nil

	case tokIdent:
		p.pos++
		switch tok.text {
		case "true":
			return &literal{value: true}, nil
		case "false":
			return &literal{value: false}, nil
		case "null":
			return &literal{value: nil}, nil
		}
		return &identifier{name: tok.text}, nil

	case tokOp:
		if tok.text == "(" {
			p.pos++
			inner, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if !p.acceptOp(")") {
				return nil, lexError(p.peek().pos, "expected ')'")
			}
			return inner, nil
		}
	}

	return nil, lexError(tok.pos, "unexpected token %q", tok.text)
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) at(kind tokenKind) bool {
	return p.tokens[p.pos].kind == kind
}

func (p *parser) acceptOp(text string) bool {
	tok := p.peek()
	if tok.kind == tokOp && tok.text == text {
		p.pos++
		return true
	}
	return false
}

func (p *parser) acceptAnyOp(ops []string) string {
	tok := p.peek()
	if tok.kind != tokOp {
		return ""
	}
	for _, op := range ops {
		if tok.text == op {
			p.pos++
			return op
		}
	}
	return ""
}
