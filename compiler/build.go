package compiler

import (
	"github.com/metaphox/tl/ast"
)

// ── Expression-tree construction ────────────────────────────────────────────

// union merges the subtree r into the accumulated tree l. For nat values it
// folds constant offsets, for argument lists it builds a union node, and for
// type expressions it performs one application step, checking arity and
// parameter kind.
func (c *Compiler) union(l, r *Tree) (*Tree, error) {
	if l == nil {
		return r, nil
	}
	if r == nil {
		return l, nil
	}
	switch l.Kind {
	case KindNum:
		if r.Kind != KindNumValue {
			return nil, c.errf("Union: type mismatch")
		}
		l.TypeFlags += r.TypeFlags
		return l, nil
	case KindNumValue:
		if r.Kind != KindNumValue && r.Kind != KindNum {
			return nil, c.errf("Union: type mismatch")
		}
		r.TypeFlags += l.TypeFlags
		return r, nil
	case KindList, KindListItem:
		if r.Kind != KindListItem {
			return nil, c.errf("Union: type mismatch")
		}
		return &Tree{Left: l, Right: r, Kind: KindList, Act: ActUnion}, nil
	case KindType:
		if l.TypeLen == 0 {
			if ht := l.headType(); ht != nil {
				return nil, c.errf("Arguments number exceeds arity of type %s", ht.ID)
			}
			return nil, c.errf("Arguments number exceeds type arity")
		}
		if r.Kind != KindNum && r.Kind != KindType && r.Kind != KindNumValue {
			return nil, c.errf("Union: type mismatch")
		}
		if r.Kind == KindType && r.TypeLen < 0 {
			if err := c.finishSubtree(r); err != nil {
				return nil, err
			}
		}
		if r.Kind == KindType && r.TypeLen > 0 {
			return nil, c.errf("Argument type must have full number of arguments")
		}
		isNat := r.Kind == KindNum || r.Kind == KindNumValue
		if l.TypeLen > 0 && (l.TypeFlags&1 != 0) != isNat {
			return nil, c.errf("Argument types mismatch")
		}
		v := &Tree{Left: l, Right: r, Kind: KindType, Act: ActArg, TypeFlags: l.TypeFlags >> 1}
		if l.TypeLen > 0 {
			v.TypeLen = l.TypeLen - 1
		} else {
			v.TypeLen = -1
		}
		return v, nil
	}
	return nil, c.errf("Union: type mismatch")
}

// finishSubtree resolves the arity of a type-expression chain bottom-up. When
// arity could not be checked while the chain was built (the head type was
// only forward-declared), this is where the head type's arity gets fixed, or
// where a mismatch with an earlier fixing surfaces.
func (c *Compiler) finishSubtree(r *Tree) error {
	if r.Kind != KindType {
		return nil
	}
	if r.TypeLen >= 0 {
		if r.TypeLen > 0 {
			if ht := r.headType(); ht != nil {
				return c.errf("Not enough parameters for type %s", ht.ID)
			}
			return c.errf("Not enough parameters")
		}
		return nil
	}
	return c.finishChain(r, 0, 0)
}

func (c *Compiler) finishChain(r *Tree, x int, y uint64) error {
	r.TypeLen = x
	r.TypeFlags = int64(y)
	if r.Act == ActType {
		return c.setTypeParams(r.Type, x, y)
	}
	bit := uint64(0)
	if r.Right.Kind == KindNum || r.Right.Kind == KindNumValue {
		bit = 1
	}
	return c.finishChain(r.Left, x+1, y*2+bit)
}

// markVars flags every variable referenced in t as used.
func (c *Compiler) markVars(t *Tree) {
	if t == nil {
		return
	}
	if t.Act == ActVar && t.Binding != nil {
		if v := c.scope.lookup(t.Binding.Name); v != nil {
			v.Flags |= varUsed
		}
	}
	c.markVars(t.Left)
	c.markVars(t.Right)
}

// ── Term builders ───────────────────────────────────────────────────────────

// buildAnyTerm dispatches on the parse-tree production. The bare parameter
// counts the `%` prefixes in effect for the first leaf built.
func (c *Compiler) buildAnyTerm(n *ast.Node, bare int) (*Tree, error) {
	switch n.Type {
	case ast.TypeTerm:
		return c.buildTypeTerm(n, bare)
	case ast.NatTerm:
		return c.buildNatTerm(n, bare)
	case ast.Term:
		return c.buildTerm(n, bare)
	case ast.Expr:
		return c.buildSeq(n, bare)
	case ast.Subexpr:
		return c.buildSeq(n, bare)
	case ast.NatConst:
		return c.buildNatConst(n, bare)
	case ast.TypeIdent, ast.VarIdent:
		return c.buildIdent(n, bare)
	default:
		return nil, c.errf("unexpected %v in expression", n.Type)
	}
}

// buildTerm handles the leading `%` markers of a term and unions the rest.
func (c *Compiler) buildTerm(n *ast.Node, bare int) (*Tree, error) {
	i := 0
	for i < len(n.Children) && n.Children[i].Type == ast.Percent {
		i++
		bare++
	}
	var l *Tree
	for ; i < len(n.Children); i++ {
		s, err := c.buildAnyTerm(n.Children[i], bare)
		if err != nil {
			return nil, err
		}
		bare = 0
		if l, err = c.union(l, s); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// buildSeq unions the children of an expr or subexpr node in order.
func (c *Compiler) buildSeq(n *ast.Node, bare int) (*Tree, error) {
	var l *Tree
	for _, ch := range n.Children {
		s, err := c.buildAnyTerm(ch, bare)
		if err != nil {
			return nil, err
		}
		bare = 0
		var uerr error
		if l, uerr = c.union(l, s); uerr != nil {
			return nil, uerr
		}
	}
	return l, nil
}

func (c *Compiler) buildTypeTerm(n *ast.Node, bare int) (*Tree, error) {
	z, err := c.buildTerm(n.Children[0], bare)
	if err != nil {
		return nil, err
	}
	if z.Kind != KindType {
		return nil, c.errf("Expected type expression")
	}
	return z, nil
}

func (c *Compiler) buildNatTerm(n *ast.Node, bare int) (*Tree, error) {
	z, err := c.buildTerm(n.Children[0], bare)
	if err != nil {
		return nil, err
	}
	if z.Kind != KindNum && z.Kind != KindNumValue {
		return nil, c.errf("Expected nat expression")
	}
	return z, nil
}

func (c *Compiler) buildNatConst(n *ast.Node, bare int) (*Tree, error) {
	if bare > 0 {
		return nil, c.errf("Nat const can not be prefixed with %%")
	}
	var x int64
	for i := 0; i < len(n.Text); i++ {
		x = x*10 + int64(n.Text[i]-'0')
	}
	return &Tree{Act: ActNatConst, Kind: KindNumValue, TypeFlags: x}, nil
}

// isTypeName reports whether an identifier names a type: `#`, or an
// identifier whose final namespace segment starts with an upper-case letter.
func isTypeName(id string) bool {
	if id == "#" {
		return true
	}
	ok := id[0] >= 'A' && id[0] <= 'Z'
	for i := 0; i+1 < len(id); i++ {
		if id[i] == '.' {
			ok = id[i+1] >= 'A' && id[i+1] <= 'Z'
		}
	}
	return ok
}

// buildIdent resolves an identifier leaf, in order of preference: a variable
// in scope, the sole constructor of a known type used as shorthand, or a
// (possibly forward-declared) type name.
func (c *Compiler) buildIdent(n *ast.Node, bare int) (*Tree, error) {
	if v := c.scope.lookup(n.Text); v != nil {
		l := &Tree{Act: ActVar, Binding: v.Ptr}
		if v.IsNat {
			l.Kind = KindNum
			if bare > 0 {
				return nil, c.errf("Nat var can not be prefixed with %%")
			}
		} else {
			l.Kind = KindType
			if bare > 0 {
				// The binary format has no encoding for a bare variable.
				return nil, c.errf("Bare type variables are not supported")
			}
		}
		return l, nil
	}

	if ctor := c.getConstructor(n.Text); ctor != nil {
		if len(ctor.Type.Constructors) != 1 {
			return nil, c.errf("Constructor can be used only if it is the only constructor of the type")
		}
		ctor.Type.Flags |= TypeFlagFinal
		return &Tree{
			Act:       ActType,
			Kind:      KindType,
			Flags:     FlagBare | FlagShorthand,
			Type:      ctor.Type,
			TypeLen:   ctor.Type.ParamsNum,
			TypeFlags: int64(ctor.Type.ParamsTypes),
		}, nil
	}

	if isTypeName(n.Text) {
		t, err := c.addType(n.Text, -1, 0)
		if err != nil {
			return nil, err
		}
		l := &Tree{
			Act:       ActType,
			Kind:      KindType,
			Type:      t,
			TypeLen:   t.ParamsNum,
			TypeFlags: int64(t.ParamsTypes),
		}
		if bare > 0 {
			l.Flags |= FlagBare
			t.Flags |= TypeFlagUsedBare
		}
		return l, nil
	}
	return nil, c.errf("Not a type/var ident `%s`", n.Text)
}

// ── Argument builders ───────────────────────────────────────────────────────

// optArgKind classifies the declared type of a braced or positional variable
// argument: 1 for `#`, 0 for `Type`, -1 for anything else.
func optArgKind(r *Tree) int {
	t := r.headType()
	switch {
	case t != nil && t.ID == "#":
		return 1
	case t != nil && t.ID == "Type":
		return 0
	default:
		return -1
	}
}

// buildOptArgs builds one braced generic-parameter group {a b:Type} into a
// union of field nodes, declaring each name as a variable.
func (c *Compiler) buildOptArgs(n *ast.Node) (*Tree, error) {
	r, err := c.buildTypeTerm(n.Children[len(n.Children)-1], 0)
	if err != nil {
		return nil, err
	}
	if err := c.finishSubtree(r); err != nil {
		return nil, err
	}
	tt := optArgKind(r)
	if tt < 0 {
		return nil, c.errf("Optional args must be of type # or Type")
	}
	for _, ch := range n.Children[:len(n.Children)-1] {
		if ch.Type != ast.VarIdent {
			return nil, c.errf("Variable name expected")
		}
		if ch.Text == "_" {
			return nil, c.errf("Variables can not be unnamed")
		}
		if len(ch.Text) > maxNameLen {
			return nil, c.errf("Variable name %s is too long", ch.Text)
		}
	}
	var h *Tree
	names := n.Children[:len(n.Children)-1]
	for i, ch := range names {
		left := r
		if i != len(names)-1 {
			left = r.dup()
		}
		s := &Tree{
			Left:  left,
			Kind:  KindListItem,
			Act:   ActField,
			Name:  ch.Text,
			Flags: FlagBare | FlagOptVar,
		}
		c.scope.addVar(s.Name, s, tt == 1)
		if h, err = c.union(h, s); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// buildSimpleArg builds an args1, args3 or args4 group: names, an optional
// conditional tag, an optional `!`, and the shared type term.
func (c *Compiler) buildSimpleArg(n *ast.Node) (*Tree, error) {
	r, err := c.buildTypeTerm(n.Children[len(n.Children)-1], 0)
	if err != nil {
		return nil, err
	}
	if err := c.finishSubtree(r); err != nil {
		return nil, err
	}
	tt := optArgKind(r)

	last := len(n.Children) - 2
	excl := false
	if last >= 0 && n.Children[last].Type == ast.Exclam {
		excl = true
		c.markVars(r)
		last--
	}
	if last >= 0 && n.Children[last].Type == ast.OptionalArgDef {
		oad := n.Children[last]
		guard, err := c.buildIdent(oad.Children[0], 0)
		if err != nil {
			return nil, err
		}
		var bit int64
		for i := 0; i < len(oad.Children[1].Text); i++ {
			bit = bit*10 + int64(oad.Children[1].Text[i]-'0')
		}
		guard.TypeFlags = bit
		r = &Tree{
			Kind:      KindType,
			Act:       ActOptField,
			Left:      guard,
			Right:     r,
			TypeFlags: r.TypeFlags,
			TypeLen:   r.TypeLen,
		}
		last--
	}
	for i := 0; i < last; i++ {
		if n.Children[i].Type != ast.VarIdent && n.Children[i].Type != ast.VarIdentOpt {
			return nil, c.errf("Variable name expected")
		}
	}

	var h *Tree
	lo := 0
	if last < 0 {
		lo = -1
	}
	for i := lo; i <= last; i++ {
		left := r
		if i != last {
			left = r.dup()
		}
		s := &Tree{Left: left, Kind: KindListItem, Act: ActField}
		if i >= 0 {
			s.Name = n.Children[i].Text
		}
		if excl {
			s.Flags |= FlagExcl
		}
		if s.Name != "" && s.Name != "_" {
			if len(s.Name) > maxNameLen {
				return nil, c.errf("Field name %s is too long", s.Name)
			}
			if !c.scope.addField(s.Name) {
				return nil, c.errf("Duplicate field name %s", s.Name)
			}
		}
		if tt >= 0 {
			name := s.Name
			if name == "" {
				name = c.anonVarName()
			}
			v := c.scope.addVar(name, s, tt == 1)
			if v == nil {
				return nil, c.errf("Duplicate variable %s", name)
			}
			v.Flags |= varField
		}
		var uerr error
		if h, uerr = c.union(h, s); uerr != nil {
			return nil, uerr
		}
	}
	return h, nil
}

// buildArrayArg builds an args2 group: an optional field name, a multiplicity
// (explicit or the innermost nat variable in scope), and a bracketed inner
// argument list compiled in its own namespace level.
func (c *Compiler) buildArrayArg(n *ast.Node) (*Tree, error) {
	x := 0
	fieldName := ""
	if len(n.Children) > 0 &&
		(n.Children[x].Type == ast.VarIdentOpt || n.Children[x].Type == ast.VarIdent) {
		fieldName = n.Children[x].Text
		if len(fieldName) > maxNameLen {
			return nil, c.errf("Field name %s is too long", fieldName)
		}
		if !c.scope.addField(fieldName) {
			return nil, c.errf("Duplicate field name %s", fieldName)
		}
		x++
	}
	if x < len(n.Children) && n.Children[x].Type == ast.OptionalArgDef {
		return nil, c.errf("Conditional tag can not guard a repeated group")
	}
	var l *Tree
	if x < len(n.Children) && n.Children[x].Type == ast.Multiplicity {
		var err error
		if l, err = c.buildNatTerm(n.Children[x].Children[0], 0); err != nil {
			return nil, err
		}
		x++
	} else {
		v := c.scope.lastNat()
		if v == nil {
			return nil, c.errf("Expected multiplicity or nat var")
		}
		l = &Tree{Act: ActVar, Kind: KindNum, Flags: FlagImplicitMult, Binding: v.Ptr}
		v.Ptr.Flags |= FlagUsedAsMult
	}
	c.scope.push()
	var r *Tree
	for ; x < len(n.Children); x++ {
		a, err := c.buildArgs(n.Children[x])
		if err != nil {
			return nil, err
		}
		if r, err = c.union(r, a); err != nil {
			return nil, err
		}
	}
	c.scope.pop()

	arr := &Tree{Kind: KindType, Act: ActArray, Left: l, Right: r}
	return &Tree{Kind: KindListItem, Act: ActField, Left: arr, Name: fieldName}, nil
}

// buildArgs dispatches one args group to its builder.
func (c *Compiler) buildArgs(n *ast.Node) (*Tree, error) {
	inner := n.Children[0]
	switch inner.Type {
	case ast.Args1, ast.Args3, ast.Args4:
		return c.buildSimpleArg(inner)
	case ast.Args2:
		return c.buildArrayArg(inner)
	default:
		return nil, c.errf("unexpected %v in argument list", inner.Type)
	}
}

// buildResultType builds the right-hand side of a combinator declaration:
// either a variable reference (functions only) or a type application chain.
func (c *Compiler) buildResultType(n *ast.Node) (*Tree, error) {
	head := n.Children[0]
	var l *Tree
	if v := c.scope.lookup(head.Text); v != nil {
		if len(n.Children) != 1 {
			return nil, c.errf("Variable can not take params")
		}
		if v.IsNat {
			return nil, c.errf("Type mismatch")
		}
		l = &Tree{Act: ActVar, Kind: KindType, Binding: v.Ptr}
	} else {
		t, err := c.addType(head.Text, -1, 0)
		if err != nil {
			return nil, err
		}
		l = &Tree{
			Act:       ActType,
			Kind:      KindType,
			Type:      t,
			TypeLen:   t.ParamsNum,
			TypeFlags: int64(t.ParamsTypes),
		}
		for _, ch := range n.Children[1:] {
			s, err := c.buildAnyTerm(ch, 0)
			if err != nil {
				return nil, err
			}
			if l, err = c.union(l, s); err != nil {
				return nil, err
			}
		}
	}
	if err := c.finishSubtree(l); err != nil {
		return nil, err
	}
	c.markVars(l)
	return l, nil
}
