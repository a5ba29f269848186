package ast

import (
	"testing"

	"github.com/mincamlc/mincamlc/internal/ctx"
)

func parse(t *testing.T, src string) *Expr {
	t.Helper()
	c := ctx.New()
	p := NewParser(src, c)
	e, err := p.ParseProgram()
	if err != nil {
		t.Fatalf("ParseProgram(%q): %v", src, err)
	}
	return e
}

func TestParseLiterals(t *testing.T) {
	cases := []struct {
		src  string
		kind Kind
	}{
		{"()", KUnit},
		{"true", KBool},
		{"false", KBool},
		{"42", KInt},
		{"3.14", KFloat},
	}
	for _, c := range cases {
		e := parse(t, c.src)
		if e.Kind != c.kind {
			t.Errorf("parse(%q).Kind = %v, want %v", c.src, e.Kind, c.kind)
		}
	}
}

func TestParseArithmetic(t *testing.T) {
	e := parse(t, "1 + 2 * 3")
	if e.Kind != KAdd {
		t.Fatalf("top-level kind = %v, want KAdd", e.Kind)
	}
	if e.E2.Kind != KMul {
		t.Fatalf("rhs kind = %v, want KMul (precedence)", e.E2.Kind)
	}
}

func TestParseLetAndVar(t *testing.T) {
	e := parse(t, "let x = 1 in x + 1")
	if e.Kind != KLet {
		t.Fatalf("top-level kind = %v, want KLet", e.Kind)
	}
	if e.Bndr == nil || e.Bndr.Name != "x" {
		t.Fatalf("binder = %+v, want name x", e.Bndr)
	}
	if e.Body.Kind != KAdd || e.Body.E1.Kind != KVar || e.Body.E1.Name != "x" {
		t.Fatalf("body = %+v, want x + 1", e.Body)
	}
}

func TestParseLetRecAndApp(t *testing.T) {
	e := parse(t, "let rec f x = x in f 1")
	if e.Kind != KLetRec {
		t.Fatalf("top-level kind = %v, want KLetRec", e.Kind)
	}
	if len(e.Args) != 1 || e.Args[0].Name != "x" {
		t.Fatalf("args = %+v, want [x]", e.Args)
	}
	if e.Body.Kind != KApp || len(e.Body.AppArgs) != 1 {
		t.Fatalf("body = %+v, want application of one argument", e.Body)
	}
}

func TestParseSequenceDesugarsToLet(t *testing.T) {
	e := parse(t, "1; 2")
	if e.Kind != KLet || e.Bndr.Name != "_" {
		t.Fatalf("sequence = %+v, want desugared let _ = 1 in 2", e)
	}
}

func TestParseUnbalancedParenIsError(t *testing.T) {
	c := ctx.New()
	p := NewParser("(1", c)
	if _, err := p.ParseProgram(); err == nil {
		t.Fatal("expected parse error on unbalanced paren, got nil")
	}
}
