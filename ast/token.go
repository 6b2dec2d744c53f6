// Package ast defines the lexeme types and the generic parse-tree nodes shared
// by the TL lexer and parser.
//
// Lexemes are the smallest meaningful units of a .tl schema file. Every lexeme
// carries its classification, the exact source text it was scanned from, a
// flags word describing identifier shape, and its source position (line +
// column, both 1-based).
package ast

// LexemeType identifies the category of a scanned lexeme.
type LexemeType int

const (
	// ERROR represents input the lexer could not classify. The lexeme's Msg
	// field describes the problem; the parser turns it into a positional
	// syntax error.
	ERROR LexemeType = iota
	// EOF marks the end of the input stream.
	EOF
	// CHAR is a single punctuation character from the TL set
	// : ; ( ) [ ] { } = # ? % < > + , * _ ! .
	CHAR
	// TRIPLE_MINUS is the section separator token `---` used in
	// `---functions---` and `---types---` markers.
	TRIPLE_MINUS
	// UC_IDENT is an identifier whose final segment starts with an upper-case
	// letter, e.g. Bool or storage.FileType.
	UC_IDENT
	// LC_IDENT is an identifier whose final segment starts with a lower-case
	// letter, e.g. boolTrue or storage.fileJpeg#7efe0e. It may carry an
	// explicit magic suffix (see FlagMagic).
	LC_IDENT
	// FINAL, NEW and EMPTY are the three directive keywords. An upper-case
	// identifier that exactly matches one of them is re-classified before the
	// lexeme is returned.
	FINAL
	NEW
	EMPTY
	// NUM is a run of decimal digits.
	NUM
)

// Identifier shape flags, stored in Lexeme.Flags and copied verbatim onto the
// parse-tree leaf built from the lexeme.
const (
	// FlagNamespace marks an identifier that contains at least one
	// `.`-qualified segment, e.g. storage.fileJpeg.
	FlagNamespace = 1 << 0
	// FlagMagic marks a lower-case identifier that ends in an explicit
	// `#hexdigits` magic suffix. The suffix is part of the lexeme text.
	FlagMagic = 1 << 1
)

// Lexeme is a single lexical unit produced by the TL lexer.
type Lexeme struct {
	Type  LexemeType
	Text  string // the exact source text that was scanned
	Flags int    // FlagNamespace / FlagMagic
	Line  int    // 1-based source line
	Col   int    // 1-based column of the first character
	Pos   int    // byte offset of the first character, used for furthest-error tracking
	Msg   string // for ERROR lexemes only: what went wrong
}

// IsChar reports whether the lexeme is the single punctuation character c.
func (l Lexeme) IsChar(c byte) bool {
	return l.Type == CHAR && len(l.Text) == 1 && l.Text[0] == c
}

// String returns the scanned text, useful in error messages.
func (l Lexeme) String() string {
	return l.Text
}
