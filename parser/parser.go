// Package parser implements the backtracking recursive-descent parser for the
// TL schema language.
//
// Each grammar production is one method that either returns its parse-tree
// node or returns nil after rewinding the lexer to where the production
// started. Alternatives are tried in a fixed order, so the grammar behaves as
// a PEG: the first alternative that succeeds wins and later ones are never
// consulted.
//
// Because failing productions are routine, individual failures carry no
// error value. Instead the parser tracks the failure that got furthest into
// the input and reports only that one when the whole program fails to parse.
// That single furthest failure is almost always the mistake the user actually
// made.
package parser

import (
	"fmt"

	"github.com/metaphox/tl/ast"
	"github.com/metaphox/tl/lexer"
)

// Error is a positional syntax error. Line and column are 1-based.
type Error struct {
	Msg  string
	Line int
	Col  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (line %d col %d)", e.Msg, e.Line, e.Col)
}

// Parser holds the lexer cursor, the current lookahead lexeme and the
// furthest-failure record.
type Parser struct {
	l   *lexer.Lexer
	lex ast.Lexeme // one lexeme of lookahead

	// Furthest failure seen so far. errPos < 0 means none yet.
	errPos  int
	errLine int
	errCol  int
	errMsg  string
}

// New creates a parser over input and primes the lookahead.
func New(input string) *Parser {
	p := &Parser{l: lexer.New(input), errPos: -1}
	p.next()
	return p
}

// Parse parses a complete TL program and returns its parse tree. On failure
// it returns the furthest syntax error encountered.
func Parse(input string) (*ast.Node, error) {
	p := New(input)
	t := p.parseProgram()
	if t == nil {
		return nil, p.err()
	}
	return t, nil
}

// err packages the furthest failure as an *Error.
func (p *Parser) err() error {
	if p.errPos < 0 {
		// Unreachable in practice: a failing program always records
		// at least one failure.
		return &Error{Msg: "syntax error", Line: p.lex.Line, Col: p.lex.Col}
	}
	return &Error{Msg: p.errMsg, Line: p.errLine, Col: p.errCol}
}

// ── Lookahead and backtracking ──────────────────────────────────────────────

// state is a full parser snapshot: the lexer cursor plus the lookahead.
type state struct {
	ls  lexer.State
	lex ast.Lexeme
}

func (p *Parser) save() state {
	return state{ls: p.l.Save(), lex: p.lex}
}

func (p *Parser) restore(s state) {
	p.l.Restore(s.ls)
	p.lex = s.lex
}

// next advances the lookahead. An ERROR lexeme records its message as a
// failure and stays current, so every production looking at it fails.
func (p *Parser) next() {
	p.lex = p.l.Next()
	if p.lex.Type == ast.ERROR {
		p.failAt(p.lex, p.lex.Msg)
	}
}

// fail records a failure at the current lookahead if it is the furthest one
// seen, then always returns nil for use as a production's failure result.
func (p *Parser) fail(msg string) *ast.Node {
	p.failAt(p.lex, msg)
	return nil
}

func (p *Parser) failAt(lex ast.Lexeme, msg string) {
	if lex.Pos > p.errPos {
		p.errPos = lex.Pos
		p.errLine = lex.Line
		p.errCol = lex.Col
		p.errMsg = msg
	}
}

// expectChar consumes the punctuation character c or records a failure.
func (p *Parser) expectChar(c byte) bool {
	if !p.lex.IsChar(c) {
		p.failAt(p.lex, fmt.Sprintf("Expected %c", c))
		return false
	}
	p.next()
	return true
}

// expectText consumes a lexeme with exactly the given text, used for the
// section separator words.
func (p *Parser) expectText(s string) bool {
	if p.lex.Type == ast.ERROR || p.lex.Type == ast.EOF || p.lex.Text != s {
		p.failAt(p.lex, "Expected "+s)
		return false
	}
	p.next()
	return true
}

// begin starts a node at the current lookahead's position.
func (p *Parser) begin(t ast.NodeType) *ast.Node {
	return &ast.Node{Type: t, Line: p.lex.Line, Col: p.lex.Col}
}

// leaf consumes the current lexeme into a leaf node of the given type.
func (p *Parser) leaf(t ast.NodeType) *ast.Node {
	n := &ast.Node{Type: t, Text: p.lex.Text, Flags: p.lex.Flags, Line: p.lex.Line, Col: p.lex.Col}
	p.next()
	return n
}

// ── Identifier productions ──────────────────────────────────────────────────

func (p *Parser) parseBoxedTypeIdent() *ast.Node {
	if p.lex.Type != ast.UC_IDENT {
		return p.fail("Can not parse boxed type")
	}
	return p.leaf(ast.BoxedTypeIdent)
}

func (p *Parser) parseFullCombinatorID() *ast.Node {
	if p.lex.Type == ast.LC_IDENT || p.lex.IsChar('_') {
		return p.leaf(ast.FullCombinatorID)
	}
	return p.fail("Can not parse full combinator id")
}

func (p *Parser) parseCombinatorID() *ast.Node {
	if p.lex.Type == ast.LC_IDENT && p.lex.Flags&ast.FlagMagic == 0 {
		return p.leaf(ast.CombinatorID)
	}
	return p.fail("Can not parse combinator id")
}

func (p *Parser) parseVarIdent() *ast.Node {
	if (p.lex.Type == ast.LC_IDENT || p.lex.Type == ast.UC_IDENT) &&
		p.lex.Flags&(ast.FlagNamespace|ast.FlagMagic) == 0 {
		return p.leaf(ast.VarIdent)
	}
	return p.fail("Can not parse var ident")
}

func (p *Parser) parseVarIdentOpt() *ast.Node {
	if (p.lex.Type == ast.LC_IDENT || p.lex.Type == ast.UC_IDENT) &&
		p.lex.Flags&(ast.FlagNamespace|ast.FlagMagic) == 0 {
		return p.leaf(ast.VarIdentOpt)
	}
	if p.lex.IsChar('_') {
		return p.leaf(ast.VarIdentOpt)
	}
	return p.fail("Can not parse var ident opt")
}

func (p *Parser) parseNatConst() *ast.Node {
	if p.lex.Type == ast.NUM {
		return p.leaf(ast.NatConst)
	}
	return p.fail("Can not parse nat const")
}

func (p *Parser) parseTypeIdent() *ast.Node {
	if (p.lex.Type == ast.UC_IDENT || p.lex.Type == ast.LC_IDENT) &&
		p.lex.Flags&ast.FlagMagic == 0 {
		return p.leaf(ast.TypeIdent)
	}
	if p.lex.IsChar('#') {
		return p.leaf(ast.TypeIdent)
	}
	return p.fail("Can not parse type ident")
}

// ── Expression productions ──────────────────────────────────────────────────

// parseTerm handles `%`-prefixed terms, parenthesized expressions, type
// idents with optional `<...>` argument lists, and bare nat constants.
func (p *Parser) parseTerm() *ast.Node {
	save := p.save()
	t := p.begin(ast.Term)
	for p.lex.IsChar('%') {
		p.next()
		t.Add(p.begin(ast.Percent))
	}
	if p.lex.IsChar('(') {
		p.next()
		e := p.parseExpr()
		if e == nil || !p.expectChar(')') {
			p.restore(save)
			return nil
		}
		t.Add(e)
		return t
	}
	if ti := p.parseTypeIdent(); ti != nil {
		t.Add(ti)
		if p.lex.IsChar('<') {
			p.next()
			for {
				e := p.parseExpr()
				if e == nil {
					p.restore(save)
					return nil
				}
				t.Add(e)
				if p.lex.IsChar('>') {
					break
				}
				if !p.expectChar(',') {
					p.restore(save)
					return nil
				}
			}
			p.next() // consume '>'
		}
		return t
	}
	if nc := p.parseNatConst(); nc != nil {
		t.Add(nc)
		return t
	}
	p.restore(save)
	return nil
}

func (p *Parser) parseNatTerm() *ast.Node {
	t := p.begin(ast.NatTerm)
	inner := p.parseTerm()
	if inner == nil {
		return nil
	}
	t.Add(inner)
	return t
}

func (p *Parser) parseTypeTerm() *ast.Node {
	t := p.begin(ast.TypeTerm)
	inner := p.parseTerm()
	if inner == nil {
		return nil
	}
	t.Add(inner)
	return t
}

// parseSubexpr parses a `+`-joined chain of nat constants and at most one
// non-constant term.
func (p *Parser) parseSubexpr() *ast.Node {
	save := p.save()
	t := p.begin(ast.Subexpr)
	wasTerm := false
	cc := 0
	for {
		if nc := p.parseNatConst(); nc != nil {
			t.Add(nc)
		} else if !wasTerm {
			wasTerm = true
			term := p.parseTerm()
			if term == nil {
				break
			}
			t.Add(term)
		} else {
			break
		}
		cc++
		if !p.lex.IsChar('+') {
			break
		}
		p.next()
	}
	if cc == 0 {
		p.restore(save)
		return nil
	}
	return t
}

// parseExpr parses one or more juxtaposed subexpressions.
func (p *Parser) parseExpr() *ast.Node {
	save := p.save()
	t := p.begin(ast.Expr)
	for {
		s := p.parseSubexpr()
		if s == nil {
			if len(t.Children) == 0 {
				p.restore(save)
				return nil
			}
			return t
		}
		t.Add(s)
	}
}

// ── Directive productions ───────────────────────────────────────────────────

func (p *Parser) parseFinalKeyword(nt ast.NodeType, kw ast.LexemeType, word string) *ast.Node {
	save := p.save()
	t := p.begin(nt)
	if p.lex.Type != kw {
		p.failAt(p.lex, "Expected "+word)
		return nil
	}
	p.next()
	id := p.parseBoxedTypeIdent()
	if id == nil {
		p.restore(save)
		return nil
	}
	t.Add(id)
	return t
}

func (p *Parser) parseFinalDecl() *ast.Node {
	t := p.begin(ast.FinalDecl)
	for _, try := range []func() *ast.Node{
		func() *ast.Node { return p.parseFinalKeyword(ast.FinalNew, ast.NEW, "New") },
		func() *ast.Node { return p.parseFinalKeyword(ast.FinalFinal, ast.FINAL, "Final") },
		func() *ast.Node { return p.parseFinalKeyword(ast.FinalEmpty, ast.EMPTY, "Empty") },
	} {
		if s := try(); s != nil {
			t.Add(s)
			return t
		}
	}
	return nil
}

// ── Partial application productions ─────────────────────────────────────────

func (p *Parser) parsePartialCombAppDecl() *ast.Node {
	save := p.save()
	t := p.begin(ast.PartialCombAppDecl)
	id := p.parseCombinatorID()
	if id == nil {
		return nil
	}
	t.Add(id)
	for {
		s := p.parseSubexpr()
		if s == nil {
			p.restore(save)
			return nil
		}
		t.Add(s)
		if p.lex.IsChar(';') {
			return t
		}
	}
}

func (p *Parser) parsePartialTypeAppDecl() *ast.Node {
	save := p.save()
	t := p.begin(ast.PartialTypeAppDecl)
	id := p.parseBoxedTypeIdent()
	if id == nil {
		return nil
	}
	t.Add(id)
	if p.lex.IsChar('<') {
		p.next()
		for {
			e := p.parseExpr()
			if e == nil {
				p.restore(save)
				return nil
			}
			t.Add(e)
			if p.lex.IsChar('>') {
				break
			}
			if !p.expectChar(',') {
				p.restore(save)
				return nil
			}
		}
		p.next() // consume '>'
		return t
	}
	for {
		s := p.parseSubexpr()
		if s == nil {
			p.restore(save)
			return nil
		}
		t.Add(s)
		if p.lex.IsChar(';') {
			return t
		}
	}
}

func (p *Parser) parsePartialAppDecl() *ast.Node {
	t := p.begin(ast.PartialAppDecl)
	if s := p.parsePartialTypeAppDecl(); s != nil {
		t.Add(s)
		return t
	}
	if s := p.parsePartialCombAppDecl(); s != nil {
		t.Add(s)
		return t
	}
	return nil
}

// ── Argument productions ────────────────────────────────────────────────────

func (p *Parser) parseMultiplicity() *ast.Node {
	t := p.begin(ast.Multiplicity)
	inner := p.parseNatTerm()
	if inner == nil {
		return nil
	}
	t.Add(inner)
	return t
}

// parseOptionalArgDef parses the conditional tag `var.N?`.
func (p *Parser) parseOptionalArgDef() *ast.Node {
	save := p.save()
	t := p.begin(ast.OptionalArgDef)
	v := p.parseVarIdent()
	if v == nil {
		return nil
	}
	t.Add(v)
	if !p.expectChar('.') {
		p.restore(save)
		return nil
	}
	nc := p.parseNatConst()
	if nc == nil {
		p.restore(save)
		return nil
	}
	t.Add(nc)
	if !p.expectChar('?') {
		p.restore(save)
		return nil
	}
	return t
}

// condExclamTerm parses the common tail of args1, args3 and args4: an
// optional conditional tag, an optional `!`, and the type term. It appends
// the parsed children to t and reports success.
func (p *Parser) condExclamTerm(t *ast.Node) bool {
	so := p.save()
	if oad := p.parseOptionalArgDef(); oad != nil {
		t.Add(oad)
	} else {
		p.restore(so)
	}
	if p.lex.IsChar('!') {
		t.Add(p.begin(ast.Exclam))
		p.next()
	}
	tt := p.parseTypeTerm()
	if tt == nil {
		return false
	}
	t.Add(tt)
	return true
}

// parseArgs4 is a bare argument: [cond-def] [!] type-term.
func (p *Parser) parseArgs4() *ast.Node {
	save := p.save()
	t := p.begin(ast.Args4)
	if !p.condExclamTerm(t) {
		p.restore(save)
		return nil
	}
	return t
}

// parseArgs3 is a named argument: name : [cond-def] [!] type-term.
func (p *Parser) parseArgs3() *ast.Node {
	save := p.save()
	t := p.begin(ast.Args3)
	v := p.parseVarIdentOpt()
	if v == nil {
		return nil
	}
	t.Add(v)
	if !p.expectChar(':') {
		p.restore(save)
		return nil
	}
	if !p.condExclamTerm(t) {
		p.restore(save)
		return nil
	}
	return t
}

// parseArgs2 is an array argument: [name :] [cond-def] [mult *] [ args ].
func (p *Parser) parseArgs2() *ast.Node {
	save := p.save()
	t := p.begin(ast.Args2)
	if v := p.parseVarIdentOpt(); v != nil && p.lex.IsChar(':') {
		t.Add(v)
		p.next()
	} else {
		p.restore(save)
	}
	so := p.save()
	if oad := p.parseOptionalArgDef(); oad != nil {
		t.Add(oad)
	} else {
		p.restore(so)
	}
	so = p.save()
	if m := p.parseMultiplicity(); m != nil && p.lex.IsChar('*') {
		t.Add(m)
		p.next()
	} else {
		p.restore(so)
	}
	if !p.expectChar('[') {
		p.restore(save)
		return nil
	}
	for !p.lex.IsChar(']') {
		a := p.parseArgs()
		if a == nil {
			p.restore(save)
			return nil
		}
		t.Add(a)
	}
	p.next() // consume ']'
	return t
}

// parseArgs1 is a parenthesized group: ( name+ : [cond-def] [!] type-term ).
func (p *Parser) parseArgs1() *ast.Node {
	save := p.save()
	t := p.begin(ast.Args1)
	if !p.expectChar('(') {
		return nil
	}
	for {
		v := p.parseVarIdentOpt()
		if v == nil {
			p.restore(save)
			return nil
		}
		t.Add(v)
		if p.lex.IsChar(':') {
			break
		}
	}
	p.next() // consume ':'
	if !p.condExclamTerm(t) {
		p.restore(save)
		return nil
	}
	if !p.expectChar(')') {
		p.restore(save)
		return nil
	}
	return t
}

func (p *Parser) parseArgs() *ast.Node {
	t := p.begin(ast.Args)
	for _, try := range []func() *ast.Node{p.parseArgs1, p.parseArgs2, p.parseArgs3, p.parseArgs4} {
		if s := try(); s != nil {
			t.Add(s)
			return t
		}
	}
	return nil
}

// parseOptArgs parses one braced generic-parameter group: name+ : type-term.
func (p *Parser) parseOptArgs() *ast.Node {
	save := p.save()
	t := p.begin(ast.OptArgs)
	for {
		v := p.parseVarIdent()
		if v == nil {
			p.restore(save)
			return nil
		}
		t.Add(v)
		if p.lex.IsChar(':') {
			break
		}
	}
	p.next() // consume ':'
	tt := p.parseTypeTerm()
	if tt == nil {
		p.restore(save)
		return nil
	}
	t.Add(tt)
	return t
}

// ── Declaration productions ─────────────────────────────────────────────────

// parseResultType parses the right-hand side of a combinator declaration:
// a boxed type ident followed by either `<expr, ...>` or bare subexpressions
// up to the closing semicolon.
func (p *Parser) parseResultType() *ast.Node {
	save := p.save()
	t := p.begin(ast.ResultType)
	id := p.parseBoxedTypeIdent()
	if id == nil {
		return nil
	}
	t.Add(id)
	if p.lex.IsChar('<') {
		p.next()
		for {
			e := p.parseExpr()
			if e == nil {
				p.restore(save)
				return nil
			}
			t.Add(e)
			if p.lex.IsChar('>') {
				break
			}
			if !p.expectChar(',') {
				p.restore(save)
				return nil
			}
		}
		p.next() // consume '>'
		return t
	}
	for {
		if p.lex.IsChar(';') {
			return t
		}
		s := p.parseSubexpr()
		if s == nil {
			p.restore(save)
			return nil
		}
		t.Add(s)
	}
}

func (p *Parser) parseCombinatorDecl() *ast.Node {
	save := p.save()
	t := p.begin(ast.CombinatorDecl)
	id := p.parseFullCombinatorID()
	if id == nil {
		return nil
	}
	t.Add(id)
	for p.lex.IsChar('{') {
		p.next()
		oa := p.parseOptArgs()
		if oa == nil || !p.expectChar('}') {
			p.restore(save)
			return nil
		}
		t.Add(oa)
	}
	for !p.lex.IsChar('=') {
		a := p.parseArgs()
		if a == nil {
			p.restore(save)
			return nil
		}
		t.Add(a)
	}
	p.next() // consume '='
	t.Add(p.begin(ast.Equals))
	rt := p.parseResultType()
	if rt == nil {
		p.restore(save)
		return nil
	}
	t.Add(rt)
	return t
}

func (p *Parser) parseBuiltinCombinatorDecl() *ast.Node {
	save := p.save()
	t := p.begin(ast.BuiltinCombinatorDecl)
	id := p.parseFullCombinatorID()
	if id == nil {
		return nil
	}
	t.Add(id)
	if !p.expectChar('?') || !p.expectChar('=') {
		p.restore(save)
		return nil
	}
	bt := p.parseBoxedTypeIdent()
	if bt == nil {
		p.restore(save)
		return nil
	}
	t.Add(bt)
	return t
}

func (p *Parser) parseDeclaration() *ast.Node {
	t := p.begin(ast.Declaration)
	for _, try := range []func() *ast.Node{
		p.parseCombinatorDecl,
		p.parsePartialAppDecl,
		p.parseFinalDecl,
		p.parseBuiltinCombinatorDecl,
	} {
		if s := try(); s != nil {
			t.Add(s)
			return t
		}
	}
	return nil
}

// parseDeclarations parses `declaration ;` until EOF or a section separator.
func (p *Parser) parseDeclarations(nt ast.NodeType) *ast.Node {
	save := p.save()
	t := p.begin(nt)
	if p.lex.Type == ast.TRIPLE_MINUS || p.lex.Type == ast.EOF {
		return t
	}
	for {
		d := p.parseDeclaration()
		if d == nil || !p.expectChar(';') {
			p.restore(save)
			return nil
		}
		t.Add(d)
		if p.lex.Type == ast.EOF || p.lex.Type == ast.TRIPLE_MINUS {
			return t
		}
	}
}

// parseProgram parses alternating constructor and function sections joined by
// `---functions---` and `---types---` separators.
func (p *Parser) parseProgram() *ast.Node {
	t := p.begin(ast.Program)
	for {
		cd := p.parseDeclarations(ast.ConstrDeclarations)
		if cd == nil {
			return nil
		}
		t.Add(cd)
		if p.lex.Type == ast.EOF {
			return t
		}
		if p.lex.Type == ast.ERROR ||
			!p.expectText("---") || !p.expectText("functions") || !p.expectText("---") {
			return nil
		}
		fd := p.parseDeclarations(ast.FunDeclarations)
		if fd == nil {
			return nil
		}
		t.Add(fd)
		if p.lex.Type == ast.EOF {
			return t
		}
		if p.lex.Type == ast.ERROR ||
			!p.expectText("---") || !p.expectText("types") || !p.expectText("---") {
			return nil
		}
	}
}
