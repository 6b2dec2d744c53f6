// Package tl compiles TL (Type Language) schema text into its binary
// serialized form.
//
// The pipeline has four stages, each usable on its own: Load reads schema
// text, Parse produces a syntax tree, Compile builds and checks the
// combinator registries, and Encode serializes them. A typical caller chains
// them:
//
//	src, err := tl.Load("telegram_api.tl")
//	prog, err := tl.Parse(src)
//	schema, err := tl.Compile(prog)
//	out := tl.Encode(schema)
package tl

import (
	"os"

	"github.com/metaphox/tl/ast"
	"github.com/metaphox/tl/compiler"
	"github.com/metaphox/tl/encoder"
	"github.com/metaphox/tl/parser"
)

// Load reads a schema file into memory.
func Load(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Parse runs the lexer and parser over schema text. On failure the returned
// error is a *parser.Error carrying the position of the furthest-advanced
// syntax error.
func Parse(src string) (*ast.Node, error) {
	return parser.Parse(src)
}

// Compile builds the combinator trees for every declaration of a parsed
// program and runs the schema-wide consistency pass.
func Compile(prog *ast.Node, opts ...compiler.Option) (*compiler.Schema, error) {
	return compiler.Compile(prog, opts...)
}

// Encode serializes a compiled schema into the binary format. It never fails
// on a schema produced by Compile.
func Encode(s *compiler.Schema) []byte {
	return encoder.Encode(s)
}
