// parser.go is a small hand-written recursive-descent parser over the
// MinCaml-family surface syntax described informally by spec.md's
// end-to-end scenarios (§8). It exists to give internal/typecheck and
// internal/codegen a real driver; spec.md explicitly treats parsing as an
// external collaborator (§1), so this implementation favors directness over
// completeness — it covers exactly the constructs spec.md names.
package ast

import (
	"fmt"

	"github.com/mincamlc/mincamlc/internal/ctx"
)

// Parser turns source text into an Expr, allocating fresh VarIds for every
// binding occurrence as it goes (spec.md §4.2: binders already carry
// identity by the time the type checker sees them).
type Parser struct {
	lex  *lexer
	tok  token
	c    *ctx.Ctx
}

// NewParser returns a Parser for src, registering fresh binders against c.
func NewParser(src string, c *ctx.Ctx) *Parser {
	p := &Parser{lex: newLexer(src), c: c}
	p.advance()
	return p
}

func (p *Parser) advance() {
	p.tok = p.lex.next()
}

func (p *Parser) expect(tt tokenType, what string) (token, error) {
	if p.tok.typ != tt {
		return token{}, fmt.Errorf("parse error at %d: expected %s, got %s", p.tok.pos, what, p.tok)
	}
	t := p.tok
	p.advance()
	return t, nil
}

// ParseProgram parses the whole source as a single top-level expression.
func (p *Parser) ParseProgram() (*Expr, error) {
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.tok.typ != tokEOF {
		return nil, fmt.Errorf("parse error at %d: unexpected trailing token %s", p.tok.pos, p.tok)
	}
	return e, nil
}

func (p *Parser) parseExpr() (*Expr, error) {
	return p.parseSeq()
}

// parseSeq handles `e1; e2`, the lowest-precedence form, desugared to
// `let () = e1 in e2` the way MinCaml's front end does.
func (p *Parser) parseSeq() (*Expr, error) {
	left, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	if p.tok.typ == tokSemi {
		p.advance()
		right, err := p.parseSeq()
		if err != nil {
			return nil, err
		}
		bndr := &Binder{Name: "_", Id: p.c.Declare("_")}
		return &Expr{Kind: KLet, Bndr: bndr, Rhs: left, Body: right}, nil
	}
	return left, nil
}

func (p *Parser) parseStmt() (*Expr, error) {
	switch p.tok.typ {
	case tokKwLet:
		return p.parseLet()
	case tokKwIf:
		return p.parseIf()
	default:
		return p.parsePut()
	}
}

func (p *Parser) parseLet() (*Expr, error) {
	p.advance() // 'let'

	if p.tok.typ == tokKwRec {
		p.advance()
		nameTok, err := p.expect(tokIdent, "function name")
		if err != nil {
			return nil, err
		}
		funBndr := &Binder{Name: nameTok.val, Id: p.c.Declare(nameTok.val)}

		var args []*Binder
		for p.tok.typ == tokIdent {
			args = append(args, &Binder{Name: p.tok.val, Id: p.c.Declare(p.tok.val)})
			p.advance()
		}
		if _, err := p.expect(tokEq, "'='"); err != nil {
			return nil, err
		}
		rhs, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokKwIn, "'in'"); err != nil {
			return nil, err
		}
		body, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: KLetRec, FunBndr: funBndr, Args: args, Rhs: rhs, Body: body}, nil
	}

	if p.tok.typ == tokLParen {
		// Tuple destructuring let.
		p.advance()
		var bndrs []*Binder
		for {
			nameTok, err := p.expect(tokIdent, "identifier")
			if err != nil {
				return nil, err
			}
			bndrs = append(bndrs, &Binder{Name: nameTok.val, Id: p.c.Declare(nameTok.val)})
			if p.tok.typ == tokComma {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		if _, err := p.expect(tokEq, "'='"); err != nil {
			return nil, err
		}
		rhs, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokKwIn, "'in'"); err != nil {
			return nil, err
		}
		body, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: KLetTuple, Bndrs: bndrs, Rhs: rhs, Body: body}, nil
	}

	// Plain binder: either a value binding (`let x = ...`), the unit-pattern
	// binding (`let () = ...`), or a sugared function binding with
	// arguments (`let f a b = ...`, accepted as LetRec so the name is in
	// scope for its own (possibly unused) body, a harmless superset of
	// plain MinCaml).
	var name string
	if p.tok.typ == tokBool && p.tok.val == "()" {
		name = "_"
		p.advance()
	} else {
		nameTok, err := p.expect(tokIdent, "identifier")
		if err != nil {
			return nil, err
		}
		name = nameTok.val
	}

	var args []*Binder
	for p.tok.typ == tokIdent {
		args = append(args, &Binder{Name: p.tok.val, Id: p.c.Declare(p.tok.val)})
		p.advance()
	}

	bndr := &Binder{Name: name, Id: p.c.Declare(name)}

	if _, err := p.expect(tokEq, "'='"); err != nil {
		return nil, err
	}
	rhs, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokKwIn, "'in'"); err != nil {
		return nil, err
	}
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	if len(args) > 0 {
		return &Expr{Kind: KLetRec, FunBndr: bndr, Args: args, Rhs: rhs, Body: body}, nil
	}
	return &Expr{Kind: KLet, Bndr: bndr, Rhs: rhs, Body: body}, nil
}

func (p *Parser) parseIf() (*Expr, error) {
	p.advance() // 'if'
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokKwThen, "'then'"); err != nil {
		return nil, err
	}
	thenE, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokKwElse, "'else'"); err != nil {
		return nil, err
	}
	elseE, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &Expr{Kind: KIf, E1: cond, E2: thenE, E3: elseE}, nil
}

// parsePut handles `e.(i) <- v`, which must see the whole array-get on its
// left before knowing whether this is a read or a write.
func (p *Parser) parsePut() (*Expr, error) {
	e, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if p.tok.typ == tokArrow {
		if e.Kind != KGet {
			return nil, fmt.Errorf("parse error at %d: '<-' target must be an array index", p.tok.pos)
		}
		p.advance()
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: KPut, E1: e.E1, E2: e.E2, E3: val}, nil
	}
	return e, nil
}

func (p *Parser) parseComparison() (*Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.tok.typ == tokEq || p.tok.typ == tokLe {
		kind := KEq
		if p.tok.typ == tokLe {
			kind = KLe
		}
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &Expr{Kind: kind, E1: left, E2: right}
	}
	return left, nil
}

func (p *Parser) parseAdditive() (*Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.tok.typ == tokPlus || p.tok.typ == tokMinus || p.tok.typ == tokFPlus || p.tok.typ == tokFMinus {
		var kind Kind
		switch p.tok.typ {
		case tokPlus:
			kind = KAdd
		case tokMinus:
			kind = KSub
		case tokFPlus:
			kind = KFAdd
		case tokFMinus:
			kind = KFSub
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &Expr{Kind: kind, E1: left, E2: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (*Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.typ == tokStar || p.tok.typ == tokFStar || p.tok.typ == tokFSlash {
		op := p.tok.typ
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		switch op {
		case tokStar:
			left = &Expr{Kind: KMul, E1: left, E2: right}
		case tokFStar:
			left = &Expr{Kind: KFMul, E1: left, E2: right}
		case tokFSlash:
			left = &Expr{Kind: KFDiv, E1: left, E2: right}
		}
	}
	return left, nil
}

func (p *Parser) parseUnary() (*Expr, error) {
	switch p.tok.typ {
	case tokMinus:
		p.advance()
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: KNeg, E1: e}, nil
	case tokFMinus:
		p.advance()
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: KFNeg, E1: e}, nil
	case tokKwNot:
		p.advance()
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: KNot, E1: e}, nil
	default:
		return p.parseApp()
	}
}

func canStartAtom(t token) bool {
	switch t.typ {
	case tokIdent, tokInt, tokFloat, tokBool, tokLParen, tokKwArrayCreate:
		return true
	}
	return false
}

func (p *Parser) parseApp() (*Expr, error) {
	fn, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	var args []*Expr
	for canStartAtom(p.tok) {
		arg, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	if len(args) == 0 {
		return fn, nil
	}
	return &Expr{Kind: KApp, Fun: fn, AppArgs: args}, nil
}

func (p *Parser) parsePostfix() (*Expr, error) {
	e, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for p.tok.typ == tokDot {
		p.advance()
		if _, err := p.expect(tokLParen, "'('"); err != nil {
			return nil, err
		}
		idx, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		e = &Expr{Kind: KGet, E1: e, E2: idx}
	}
	return e, nil
}

func (p *Parser) parseAtom() (*Expr, error) {
	switch p.tok.typ {
	case tokInt:
		v, err := parseIntLiteral(p.tok.val)
		if err != nil {
			return nil, fmt.Errorf("parse error at %d: bad integer literal %q", p.tok.pos, p.tok.val)
		}
		p.advance()
		return &Expr{Kind: KInt, IntVal: v}, nil
	case tokFloat:
		v, err := parseFloatLiteral(p.tok.val)
		if err != nil {
			return nil, fmt.Errorf("parse error at %d: bad float literal %q", p.tok.pos, p.tok.val)
		}
		p.advance()
		return &Expr{Kind: KFloat, FloatVal: v}, nil
	case tokBool:
		v := p.tok.val
		p.advance()
		if v == "()" {
			return &Expr{Kind: KUnit}, nil
		}
		return &Expr{Kind: KBool, BoolVal: v == "true"}, nil
	case tokIdent:
		name := p.tok.val
		p.advance()
		return &Expr{Kind: KVar, Name: name}, nil
	case tokKwArrayCreate:
		p.advance()
		lenE, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		elemE, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: KArray, E1: lenE, E2: elemE}, nil
	case tokLParen:
		p.advance()
		first, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.tok.typ == tokComma {
			elems := []*Expr{first}
			for p.tok.typ == tokComma {
				p.advance()
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				elems = append(elems, e)
			}
			if _, err := p.expect(tokRParen, "')'"); err != nil {
				return nil, err
			}
			return &Expr{Kind: KTuple, Elems: elems}, nil
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return first, nil
	default:
		return nil, fmt.Errorf("parse error at %d: unexpected token %s", p.tok.pos, p.tok)
	}
}
