package compiler

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/emirpasic/gods/maps/treemap"

	"github.com/metaphox/tl/ast"
)

// Error is a compilation diagnostic. Line and Col point at the declaration
// being compiled; they are zero for schema-wide consistency errors.
type Error struct {
	Msg  string
	Line int
	Col  int
}

func (e *Error) Error() string {
	if e.Line == 0 {
		return e.Msg
	}
	return fmt.Sprintf("%s (line %d col %d)", e.Msg, e.Line, e.Col)
}

// Schema is the result of a successful compilation. Types and Functions are
// ordered by identifier; within a type, constructors keep declaration order
// except that a default constructor is moved last.
type Schema struct {
	Types     []*Type
	Functions []*Constructor
	Warnings  []string
}

// ConstructorCount returns the number of constructors over all types,
// including defaults and specializations.
func (s *Schema) ConstructorCount() int {
	n := 0
	for _, t := range s.Types {
		n += len(t.Constructors)
	}
	return n
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithTrace makes the compiler print every registered combinator, in
// canonical form with its magic, to w.
func WithTrace(w io.Writer) Option {
	return func(c *Compiler) { c.trace = w }
}

// Compiler holds the registries built up while walking declarations.
type Compiler struct {
	types        *treemap.Map // type id -> *Type
	constructors *treemap.Map // constructor id -> *Constructor
	functions    *treemap.Map // function id -> *Constructor

	scope    *scopes
	trace    io.Writer
	warnings []string
	anonSeq  int

	// position of the declaration being compiled
	line, col int
}

// New returns an empty Compiler with the builtin `#` and `Type` types
// registered.
func New(opts ...Option) *Compiler {
	c := &Compiler{
		types:        treemap.NewWithStringComparator(),
		constructors: treemap.NewWithStringComparator(),
		functions:    treemap.NewWithStringComparator(),
	}
	for _, o := range opts {
		o(c)
	}
	c.mustAddType("#", 0, 0)
	c.mustAddType("Type", 0, 0)
	return c
}

// Compile compiles a parsed program in one shot.
func Compile(prog *ast.Node, opts ...Option) (*Schema, error) {
	return New(opts...).Compile(prog)
}

// maxNameLen bounds every identifier that ends up in the binary output,
// where names carry a single-byte length prefix.
const maxNameLen = 254

func (c *Compiler) errf(format string, args ...interface{}) error {
	return &Error{Msg: fmt.Sprintf(format, args...), Line: c.line, Col: c.col}
}

func (c *Compiler) anonVarName() string {
	c.anonSeq++
	return fmt.Sprintf("v$%d", c.anonSeq)
}

// ── Registries ──────────────────────────────────────────────────────────────

func (c *Compiler) getType(id string) *Type {
	if v, ok := c.types.Get(id); ok {
		return v.(*Type)
	}
	return nil
}

// addType registers a type or retrieves the existing one. paramsNum -1 means
// the arity is not yet known; a later addType or setTypeParams fixes it. A
// conflict between two fixed arities or parameter kinds is an error.
func (c *Compiler) addType(id string, paramsNum int, paramsTypes uint64) (*Type, error) {
	if t := c.getType(id); t != nil {
		if paramsNum >= 0 {
			if t.Flags&TypeFlagPending != 0 {
				t.ParamsNum = paramsNum
				t.ParamsTypes = paramsTypes
				t.Flags &^= TypeFlagPending
			} else if t.ParamsNum != paramsNum || t.ParamsTypes != paramsTypes {
				return nil, c.errf("Wrong number or kinds of parameters for type %s", id)
			}
		}
		return t, nil
	}
	if len(id) > maxNameLen {
		return nil, c.errf("Type id is too long")
	}
	t := &Type{ID: id, PrintID: printID(id), ParamsNum: paramsNum, ParamsTypes: paramsTypes}
	if paramsNum < 0 {
		t.Flags |= TypeFlagPending
	}
	c.types.Put(id, t)
	return t, nil
}

func (c *Compiler) mustAddType(id string, paramsNum int, paramsTypes uint64) *Type {
	t, err := c.addType(id, paramsNum, paramsTypes)
	if err != nil {
		panic(err)
	}
	return t
}

// setTypeParams fixes the arity of a forward-declared type, or checks it
// against the already fixed one.
func (c *Compiler) setTypeParams(t *Type, paramsNum int, paramsTypes uint64) error {
	if t.Flags&TypeFlagPending != 0 {
		t.ParamsNum = paramsNum
		t.ParamsTypes = paramsTypes
		t.Flags &^= TypeFlagPending
		return nil
	}
	if t.ParamsNum != paramsNum || t.ParamsTypes != paramsTypes {
		return c.errf("Wrong number of parameters for type %s", t.ID)
	}
	return nil
}

func (c *Compiler) getConstructor(id string) *Constructor {
	if v, ok := c.constructors.Get(id); ok {
		return v.(*Constructor)
	}
	return nil
}

func (c *Compiler) getFunction(id string) *Constructor {
	if v, ok := c.functions.Get(id); ok {
		return v.(*Constructor)
	}
	return nil
}

// splitMagic splits an id of the form name#hex into the bare name and the
// explicit magic. An absent suffix yields magic 0.
func splitMagic(rawID string) (string, uint32, error) {
	i := strings.IndexByte(rawID, '#')
	if i < 0 {
		return rawID, 0, nil
	}
	x, err := strconv.ParseUint(rawID[i+1:], 16, 32)
	if err != nil {
		return "", 0, fmt.Errorf("bad magic in %s", rawID)
	}
	if x == 0 || x == 0xffffffff {
		return "", 0, fmt.Errorf("explicit magic for %s can not be %08x", rawID[:i], x)
	}
	return rawID[:i], uint32(x), nil
}

// addConstructor registers a constructor for t. With forceMagic the id is
// taken verbatim and never split at `#`; partial applications need this since
// their generated ids may embed one.
func (c *Compiler) addConstructor(t *Type, rawID string, forceMagic bool) (*Constructor, error) {
	if t != nil && t.Flags&TypeFlagFinal != 0 {
		return nil, c.errf("New constructor for type `%s` after final statement", t.ID)
	}
	id, magic := rawID, uint32(0)
	if !forceMagic {
		var err error
		if id, magic, err = splitMagic(rawID); err != nil {
			return nil, c.errf("%s", err)
		}
	}
	if len(id) > maxNameLen {
		return nil, c.errf("Constructor id is too long")
	}
	if id != "_" {
		if c.getConstructor(id) != nil {
			return nil, c.errf("Duplicate constructor id `%s`", id)
		}
	}
	r := &Constructor{ID: id, PrintID: printID(id), Magic: magic, Type: t}
	if id != "_" {
		c.constructors.Put(id, r)
	} else {
		t.Flags |= TypeFlagDefaultCtor
	}
	t.Constructors = append(t.Constructors, r)
	return r, nil
}

func (c *Compiler) addFunction(t *Type, rawID string, forceMagic bool) (*Constructor, error) {
	id, magic := rawID, uint32(0)
	if !forceMagic {
		var err error
		if id, magic, err = splitMagic(rawID); err != nil {
			return nil, c.errf("%s", err)
		}
	}
	if len(id) > maxNameLen {
		return nil, c.errf("Function id is too long")
	}
	if c.getFunction(id) != nil {
		return nil, c.errf("Duplicate function id `%s`", id)
	}
	r := &Constructor{ID: id, PrintID: printID(id), Magic: magic, Type: t}
	c.functions.Put(id, r)
	return r, nil
}

func (c *Compiler) traceCombinator(r *Constructor) {
	if c.trace != nil {
		fmt.Fprintln(c.trace, renderWithMagic(r))
	}
}

// ── Declaration walkers ─────────────────────────────────────────────────────

// buildCombinatorDecl compiles one full combinator declaration into a
// registered constructor or function.
func (c *Compiler) buildCombinatorDecl(n *ast.Node, fun bool) error {
	c.scope = newScopes()
	rawID := n.Children[0].Text

	var left *Tree
	i := 1
	for ; i < len(n.Children) && n.Children[i].Type == ast.OptArgs; i++ {
		s, err := c.buildOptArgs(n.Children[i])
		if err != nil {
			return err
		}
		if left, err = c.union(left, s); err != nil {
			return err
		}
	}
	for ; i < len(n.Children) && n.Children[i].Type == ast.Args; i++ {
		s, err := c.buildArgs(n.Children[i])
		if err != nil {
			return err
		}
		if left, err = c.union(left, s); err != nil {
			return err
		}
	}
	if i >= len(n.Children) || n.Children[i].Type != ast.Equals {
		return c.errf("malformed combinator declaration")
	}
	i++
	right, err := c.buildResultType(n.Children[i])
	if err != nil {
		return err
	}

	t := right.headType()
	if !fun && t == nil {
		return c.errf("Only functions can return variables")
	}
	unused := false
	c.scope.eachTopVar(func(v *Var) {
		if v.Flags&(varUsed|varField) == 0 {
			unused = true
		}
	})
	if unused {
		return c.errf("Not all variables are used in right side")
	}

	id, _, err := splitMagic(rawID)
	if err != nil {
		return c.errf("%s", err)
	}
	if id != "_" && (c.getConstructor(id) != nil || c.getFunction(id) != nil) {
		return c.errf("Duplicate combinator id %s", id)
	}

	var r *Constructor
	if fun {
		r, err = c.addFunction(t, rawID, false)
	} else {
		r, err = c.addConstructor(t, rawID, false)
	}
	if err != nil {
		return err
	}
	r.Left = left
	r.Right = right
	assignMagic(r)
	c.traceCombinator(r)
	return nil
}

// builtinPairs maps a builtin constructor id to the one boxed type it may
// declare.
var builtinPairs = map[string]string{
	"int":      "Int",
	"long":     "Long",
	"double":   "Double",
	"string":   "String",
	"object":   "Object",
	"function": "Function",
}

// buildBuiltinDecl compiles a `lc ? = Uc;` builtin declaration.
func (c *Compiler) buildBuiltinDecl(n *ast.Node, fun bool) error {
	if fun {
		return c.errf("Builtin type can not be described in function block")
	}
	id := n.Children[0].Text
	boxed := n.Children[1].Text
	if builtinPairs[id] != boxed {
		return c.errf("Unknown builtin type `%s`", id)
	}
	t, err := c.addType(boxed, 0, 0)
	if err != nil {
		return err
	}
	r, err := c.addConstructor(t, id, false)
	if err != nil {
		return err
	}
	r.Left = &Tree{Act: ActQuestionMark, Kind: KindListItem}
	r.Right = &Tree{Act: ActType, Kind: KindType, Type: t}
	assignMagic(r)
	c.traceCombinator(r)
	return nil
}

// buildFinalDecl compiles Final/New/Empty statements.
func (c *Compiler) buildFinalDecl(n *ast.Node, fun bool) error {
	if fun {
		return c.errf("Final statement in functions block")
	}
	kw := n.Children[0]
	id := kw.Children[0].Text
	switch kw.Type {
	case ast.FinalFinal:
		t := c.getType(id)
		if t == nil {
			return c.errf("Final statement for type `%s` before declaration", id)
		}
		t.Flags |= TypeFlagFinal
	case ast.FinalNew:
		if c.getType(id) != nil {
			return c.errf("New statement: type `%s` already declared", id)
		}
	case ast.FinalEmpty:
		if c.getType(id) != nil {
			return c.errf("Empty statement: type `%s` already declared", id)
		}
		t, err := c.addType(id, 0, 0)
		if err != nil {
			return err
		}
		t.Flags |= TypeFlagFinal | TypeFlagEmpty
	}
	return nil
}

// buildPartialTypeApp compiles `Type<args>;` or `Type args;`, producing a
// specialized copy of the type with every matching constructor instantiated.
func (c *Compiler) buildPartialTypeApp(n *ast.Node, fun bool) error {
	if fun {
		return c.errf("Partial type app in functions block")
	}
	head := n.Children[0]
	t := c.getType(head.Text)
	if t == nil || t.Flags&TypeFlagPending != 0 {
		return c.errf("Can not make partial app for unknown type")
	}

	l, err := c.buildIdent(head, 0)
	if err != nil {
		return err
	}
	var suffix renderer
	cc := 0
	for _, ch := range n.Children[1:] {
		s, err := c.buildAnyTerm(ch, 0)
		if err != nil {
			return err
		}
		if l, err = c.union(l, s); err != nil {
			return err
		}
		suffix.tree(l.Right, true)
		cc++
	}
	for l.TypeLen > 0 {
		anon := &Tree{Act: ActVar}
		if l.TypeFlags&1 != 0 {
			anon.Kind = KindNum
		} else {
			anon.Kind = KindType
		}
		if l, err = c.union(l, anon); err != nil {
			return err
		}
	}

	nt, err := c.addType(t.ID+suffix.b.String(), t.ParamsNum-cc, t.ParamsTypes>>uint(cc))
	if err != nil {
		return err
	}
	for _, ctor := range t.Constructors {
		a, b := ctor.Left, ctor.Right
		if a != nil {
			a = a.dup()
		}
		b = b.dup()
		w := bindings{}
		changeVarPtrs(ctor.Left, a, w)
		changeVarPtrs(ctor.Right, b, w)

		v := bindings{}
		if !constructorsEqual(b, l, v) {
			continue
		}
		b = reduceType(b, nt)
		if a != nil {
			switch st, aa := changeValueVar(a, v); st {
			case rwCollapse:
				a = nil
			case rwNode:
				a = aa
			}
		}
		st, bb := changeValueVar(b, v)
		if st != rwNode {
			return c.errf("Partial app: type mismatch for `%s`", ctor.ID)
		}
		b = bb

		r, err := c.addConstructor(nt, ctor.ID+suffix.b.String(), true)
		if err != nil {
			return err
		}
		r.Left = a
		r.Right = b
		r.RealID = ctor.ID
		assignMagic(r)
		c.traceCombinator(r)
	}
	return nil
}

// buildPartialCombApp compiles `comb args;`, producing a copy of the
// combinator with its leading variables substituted by the given arguments.
func (c *Compiler) buildPartialCombApp(n *ast.Node, fun bool) error {
	id := n.Children[0].Text
	var base *Constructor
	if fun {
		base = c.getFunction(id)
	} else {
		base = c.getConstructor(id)
	}
	if base == nil {
		return c.errf("Can not make partial app for undefined combinator")
	}

	l, r := base.Left, base.Right
	w := bindings{}
	if l != nil {
		l = l.dup()
		changeVarPtrs(base.Left, l, w)
	}
	r = r.dup()
	changeVarPtrs(base.Right, r, w)

	var suffix renderer
	for _, ch := range n.Children[1:] {
		x, err := c.buildAnyTerm(ch, 0)
		if err != nil {
			return err
		}
		var k *Tree
		st, nl := changeFirstVar(l, &k, x)
		switch st {
		case rwErr:
			return c.errf("Partial app: type mismatch")
		case rwCollapse, rwNil:
			l = nil
		case rwNode:
			l = nl
		}
		if k == nil {
			return c.errf("Partial app: not enough variables")
		}
		st, nr := changeFirstVar(r, &k, x)
		switch st {
		case rwErr:
			return c.errf("Partial app: type mismatch")
		case rwCollapse, rwNil:
			return c.errf("Partial app: result type consumed")
		case rwNode:
			r = nr
		}
		suffix.tree(x, true)
	}

	var nc *Constructor
	var err error
	if fun {
		nc, err = c.addFunction(base.Type, base.ID+suffix.b.String(), true)
	} else {
		nc, err = c.addConstructor(base.Type, base.ID+suffix.b.String(), true)
	}
	if err != nil {
		return err
	}
	nc.Left = l
	nc.Right = r
	nc.RealID = base.ID
	assignMagic(nc)
	c.traceCombinator(nc)
	return nil
}

func (c *Compiler) buildDeclaration(n *ast.Node, fun bool) error {
	c.line, c.col = n.Line, n.Col
	switch n.Type {
	case ast.CombinatorDecl:
		return c.buildCombinatorDecl(n, fun)
	case ast.BuiltinCombinatorDecl:
		return c.buildBuiltinDecl(n, fun)
	case ast.FinalDecl:
		return c.buildFinalDecl(n, fun)
	case ast.PartialAppDecl:
		inner := n.Children[0]
		if inner.Type == ast.PartialTypeAppDecl {
			return c.buildPartialTypeApp(inner, fun)
		}
		return c.buildPartialCombApp(inner, fun)
	default:
		return c.errf("unexpected declaration %v", n.Type)
	}
}

// Compile walks every declaration of the program, runs the schema-wide
// consistency pass and returns the finished Schema.
func (c *Compiler) Compile(prog *ast.Node) (*Schema, error) {
	for _, section := range prog.Children {
		fun := section.Type == ast.FunDeclarations
		for _, decl := range section.Children {
			if err := c.buildDeclaration(decl.Children[0], fun); err != nil {
				return nil, err
			}
		}
	}
	if err := c.check(); err != nil {
		return nil, err
	}

	s := &Schema{Warnings: c.warnings}
	c.types.Each(func(_ interface{}, v interface{}) {
		s.Types = append(s.Types, v.(*Type))
	})
	c.functions.Each(func(_ interface{}, v interface{}) {
		s.Functions = append(s.Functions, v.(*Constructor))
	})
	return s, nil
}
