package ast

import (
	"fmt"
	"strings"
)

// NodeType tags a parse-tree node with the grammar production it came from.
type NodeType int

const (
	// Program is the root node: alternating constructor-declarations and
	// function-declarations blocks.
	Program NodeType = iota
	// ConstrDeclarations and FunDeclarations are lists of Declaration nodes
	// from the constructors resp. functions section of the schema.
	ConstrDeclarations
	FunDeclarations
	// Declaration wraps exactly one of CombinatorDecl, PartialAppDecl,
	// FinalDecl or BuiltinCombinatorDecl.
	Declaration
	// CombinatorDecl is a full combinator declaration:
	// id {opt-args}* args* = result-type.
	CombinatorDecl
	// BuiltinCombinatorDecl is `id ? = Boxed`.
	BuiltinCombinatorDecl
	// PartialAppDecl wraps a PartialTypeAppDecl or PartialCombAppDecl.
	PartialAppDecl
	PartialTypeAppDecl
	PartialCombAppDecl
	// FinalDecl wraps one of FinalFinal, FinalNew, FinalEmpty
	// (the Final/New/Empty directives).
	FinalDecl
	FinalFinal
	FinalNew
	FinalEmpty
	// OptArgs is a braced generic-parameter group: {x y:Type}.
	OptArgs
	// Args wraps one of the four positional-argument shapes below.
	Args
	Args1 // parenthesized multi-name group: (a b:Type)
	Args2 // bracketed array group:          name:mult*[ args ]
	Args3 // colon-named argument:           name:flags.0?!Type
	Args4 // bare type term, optionally conditional / exclamation-marked
	// OptionalArgDef is the conditional tag `var.N?` inside an argument.
	OptionalArgDef
	// Multiplicity is the repeat-count term before `*[`.
	Multiplicity
	// Exclam marks the `!` prefix on an argument type.
	Exclam
	// Equals marks the `=` between arguments and result type.
	Equals
	// Percent marks a `%` bare-type prefix inside a term.
	Percent
	// ResultType is the right-hand side of a combinator declaration.
	ResultType
	// Expr, Subexpr, Term, TypeTerm and NatTerm are the expression grammar.
	Expr
	Subexpr
	Term
	TypeTerm
	NatTerm
	// Leaf identifier productions. Text and Flags are set on these.
	FullCombinatorID // lower-case id, may carry #magic, or `_`
	CombinatorID     // lower-case id without magic
	VarIdent         // plain (un-namespaced, magicless) identifier
	VarIdentOpt      // VarIdent or `_`
	TypeIdent        // un-magicked identifier or `#`
	BoxedTypeIdent   // upper-case identifier
	NatConst         // decimal number
)

var nodeTypeNames = map[NodeType]string{
	Program:               "program",
	ConstrDeclarations:    "constr-declarations",
	FunDeclarations:       "fun-declarations",
	Declaration:           "declaration",
	CombinatorDecl:        "combinator-decl",
	BuiltinCombinatorDecl: "builtin-combinator-decl",
	PartialAppDecl:        "partial-app-decl",
	PartialTypeAppDecl:    "partial-type-app-decl",
	PartialCombAppDecl:    "partial-comb-app-decl",
	FinalDecl:             "final-decl",
	FinalFinal:            "final",
	FinalNew:              "new",
	FinalEmpty:            "empty",
	OptArgs:               "opt-args",
	Args:                  "args",
	Args1:                 "args1",
	Args2:                 "args2",
	Args3:                 "args3",
	Args4:                 "args4",
	OptionalArgDef:        "optional-arg-def",
	Multiplicity:          "multiplicity",
	Exclam:                "exclam",
	Equals:                "equals",
	Percent:               "percent",
	ResultType:            "result-type",
	Expr:                  "expr",
	Subexpr:               "subexpr",
	Term:                  "term",
	TypeTerm:              "type-term",
	NatTerm:               "nat-term",
	FullCombinatorID:      "full-combinator-id",
	CombinatorID:          "combinator-id",
	VarIdent:              "var-ident",
	VarIdentOpt:           "var-ident-opt",
	TypeIdent:             "type-ident",
	BoxedTypeIdent:        "boxed-type-ident",
	NatConst:              "nat-const",
}

// String returns the grammar-production name of the node type.
func (nt NodeType) String() string {
	if s, ok := nodeTypeNames[nt]; ok {
		return s
	}
	return fmt.Sprintf("node-type(%d)", int(nt))
}

// Node is one parse-tree node: every grammar production yields one Node
// tagged with its NodeType, owning an ordered list of child nodes. Children
// are owned by their parent; the tree is strictly a tree, never a DAG. For
// leaf productions Text and Flags hold the matched lexeme's span and shape
// flags. The compiler package walks this tree into the typed combinator
// representation.
type Node struct {
	Type     NodeType
	Children []*Node
	Text     string
	Flags    int
	Line     int // 1-based line where the production started
	Col      int // 1-based column where the production started
}

// Add appends a child node.
func (n *Node) Add(c *Node) {
	n.Children = append(n.Children, c)
}

// String renders the subtree as an s-expression, for debugging and tests.
func (n *Node) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n *Node) write(b *strings.Builder) {
	if len(n.Children) == 0 && n.Text != "" {
		fmt.Fprintf(b, "(%s %q)", n.Type, n.Text)
		return
	}
	fmt.Fprintf(b, "(%s", n.Type)
	for _, c := range n.Children {
		b.WriteByte(' ')
		c.write(b)
	}
	b.WriteByte(')')
}
