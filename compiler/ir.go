// Package compiler turns a TL parse tree into registered types and
// combinators, computes magic numbers, and runs the whole-schema consistency
// pass. The result is a [Schema] ready for binary encoding.
//
// The central data structure is the combinator tree ([Tree]): a binary tree
// of typed expression nodes describing a combinator's argument list and
// result type. Argument lists are left-leaning unions of field nodes; type
// expressions are left-leaning application chains whose remaining arity is
// tracked per node, so that applying one more argument is a constant-time
// check.
package compiler

// Act is the action tag of a combinator-tree node. It decides which payload
// fields of [Tree] are meaningful.
type Act int

const (
	// ActVar references a variable. Binding points at the field node that
	// declared it; a nil Binding is the anonymous wildcard introduced while
	// specializing a generic type.
	ActVar Act = iota
	// ActField is one argument: Name (may be empty), Left the argument type.
	ActField
	// ActPlus is a nat-expression sum node.
	ActPlus
	// ActType references a registered type; Type holds it.
	ActType
	// ActNatConst is a literal number; the value lives in TypeFlags.
	ActNatConst
	// ActArray is a repeated-group argument: Left the multiplicity, Right the
	// inner argument list.
	ActArray
	// ActQuestionMark is the placeholder left side of a builtin combinator.
	ActQuestionMark
	// ActUnion joins two argument-list subtrees.
	ActUnion
	// ActArg is a type application: Left the applied type so far, Right the
	// next argument.
	ActArg
	// ActOptField wraps a conditional argument: Left the guard variable
	// reference (bit number in its TypeFlags), Right the guarded type.
	ActOptField
)

// Kind classifies what a combinator-tree node evaluates to.
type Kind int

const (
	// KindNum is a nat variable reference plus a constant offset
	// (the offset lives in TypeFlags).
	KindNum Kind = iota
	// KindNumValue is a constant nat value (in TypeFlags).
	KindNumValue
	// KindType is a type expression.
	KindType
	// KindList is a union of argument-list items.
	KindList
	// KindListItem is a single argument-list item.
	KindListItem
)

// Tree node flags.
const (
	// FlagBare marks a `%`-prefixed (bare) type reference.
	FlagBare = 1 << 0
	// FlagOptVar marks a field that declares a generic parameter
	// (a braced {x:Type} or {n:#} argument).
	FlagOptVar = 1 << 5
	// FlagShorthand marks a type reference written via its sole
	// constructor's id rather than the type name.
	FlagShorthand = 1 << 2
	// FlagImplicitMult marks a multiplicity reference inserted implicitly
	// from the nearest nat variable in scope.
	FlagImplicitMult = 1 << 7
	// FlagUsedAsMult marks a field whose variable was consumed as an
	// implicit multiplicity.
	FlagUsedAsMult = 1 << 8
	// FlagExcl marks an argument declared with the `!` modifier.
	FlagExcl = 1 << 18
	// FlagCondField marks an argument guarded by a conditional tag.
	FlagCondField = 1 << 20
	// FlagNoVar marks a field that declares a `#` or `Type` variable; it is
	// set while serializing, when the field gets its variable index.
	FlagNoVar = 1 << 21
)

// Type flags.
const (
	// TypeFlagFinal forbids further constructors for the type.
	TypeFlagFinal = 1 << 0
	// TypeFlagPending marks a forward-declared type whose arity is not yet
	// known.
	TypeFlagPending = 1 << 2
	// TypeFlagUsedBare is set when any constructor references the type with
	// `%`.
	TypeFlagUsedBare = 1 << 3
	// TypeFlagOverlapping is set by the consistency pass when two
	// constructors' result types unify.
	TypeFlagOverlapping = 1 << 4
	// TypeFlagEmpty marks a type created by an Empty directive, which is
	// legal without constructors.
	TypeFlagEmpty = 1 << 10
	// TypeFlagDefaultCtor is set when the type has a `_` default
	// constructor.
	TypeFlagDefaultCtor = 1 << 25
)

// Tree is one combinator-tree node. Left and Right are owned children; the
// payload fields Type, Binding and Name are meaningful per the Act tag.
// TypeLen is the remaining arity of a type expression, -1 while still
// undetermined. TypeFlags is overloaded the same way the node kinds are: a
// nat offset for KindNum, a literal for KindNumValue, the
// parameter-kind bitmask shifted along an application chain for KindType,
// and the conditional bit number on an ActOptField guard.
type Tree struct {
	Left  *Tree
	Right *Tree

	Act   Act
	Kind  Kind
	Flags int

	TypeLen   int
	TypeFlags int64

	Type    *Type  // ActType
	Binding *Tree  // ActVar: declaring field node, nil for wildcards
	Name    string // ActField: field name, "" when unnamed
}

// dup deep-copies a combinator tree. Payload references (Type, Binding) are
// copied as-is; callers remap bindings afterwards when the copy must be
// self-contained.
func (t *Tree) dup() *Tree {
	if t == nil {
		return nil
	}
	s := *t
	s.Left = t.Left.dup()
	s.Right = t.Right.dup()
	return &s
}

// listSize counts the items of an argument-list subtree.
func (t *Tree) listSize() int {
	if t.Kind == KindListItem {
		return 1
	}
	return t.Left.listSize() + t.Right.listSize()
}

// headType walks the left spine of a type expression and returns the
// registered type at its head, or nil when the head is a variable or an
// array.
func (t *Tree) headType() *Type {
	if t.Act == ActArray {
		return nil
	}
	for t.Left != nil {
		t = t.Left
		if t.Act == ActArray {
			return nil
		}
	}
	if t.Act == ActType {
		return t.Type
	}
	return nil
}

// Type is one registered schema type.
type Type struct {
	// ID is the internal name; PrintID is ID with the characters `.`, `#`
	// and space replaced by `$` for use in generated identifiers.
	ID      string
	PrintID string

	// Magic is the type's magic number: the XOR of its constructors' magics,
	// assigned by the consistency pass.
	Magic uint32

	Flags int

	// ParamsNum is the arity; -1 while the type is only forward-declared.
	// ParamsTypes has bit i set when parameter i is a nat parameter.
	ParamsNum   int
	ParamsTypes uint64

	// Constructors in declaration order. The consistency pass moves a
	// default constructor to the last slot.
	Constructors []*Constructor
}

// Constructor is one registered combinator: a constructor of a type or a
// function.
type Constructor struct {
	ID      string
	PrintID string
	// RealID is the pre-specialization id for combinators produced by
	// partial application, "" otherwise. When set, it is what the canonical
	// rendering shows.
	RealID string

	// Magic is the combinator's magic number, either taken from an explicit
	// `#hex` suffix or computed as the CRC32 of the canonical rendering.
	Magic uint32

	// Type is the result type; nil for a function returning a variable.
	Type *Type

	// Left is the argument list (nil when there are no arguments), Right
	// the result-type expression.
	Left  *Tree
	Right *Tree
}

// displayID returns the id the canonical rendering uses.
func (c *Constructor) displayID() string {
	if c.RealID != "" {
		return c.RealID
	}
	return c.ID
}

// printID converts an internal id to its display form.
func printID(id string) string {
	b := []byte(id)
	for i, ch := range b {
		if ch == '.' || ch == '#' || ch == ' ' {
			b[i] = '$'
		}
	}
	return string(b)
}
