// Package lexer turns TL schema source text into a stream of [ast.Lexeme]
// values.
//
// The lexer is a plain byte scanner. It treats every byte with value 32 or
// below as whitespace, strips `//` line comments, and classifies everything
// else into the small lexeme alphabet of the TL language: punctuation
// characters, the `---` section separator, upper- and lower-case identifiers
// (with optional namespace qualifiers and magic suffixes), and decimal
// numbers.
//
// Because the TL parser backtracks, the lexer exposes its full cursor as a
// value-type [State]: the parser snapshots it before trying a production and
// restores it when the production fails. Scanning never allocates anything
// the snapshot would have to share.
package lexer

import "github.com/metaphox/tl/ast"

// Lexer scans one TL source buffer.
type Lexer struct {
	input string
	pos   int  // byte offset of ch within input
	ch    byte // current byte, 0 once the input is exhausted
	line  int  // 1-based line of ch
	col   int  // 1-based column of ch
}

// State is a snapshot of the lexer cursor. It is a plain value; copying it is
// cheap and restoring it rewinds the lexer exactly.
type State struct {
	pos  int
	ch   byte
	line int
	col  int
}

// New creates a lexer over input with the cursor on the first byte.
func New(input string) *Lexer {
	l := &Lexer{input: input, line: 1, col: 1}
	if len(input) > 0 {
		l.ch = input[0]
	}
	return l
}

// Save captures the current cursor.
func (l *Lexer) Save() State {
	return State{pos: l.pos, ch: l.ch, line: l.line, col: l.col}
}

// Restore rewinds the cursor to a previously saved state.
func (l *Lexer) Restore(s State) {
	l.pos, l.ch, l.line, l.col = s.pos, s.ch, s.line, s.col
}

// ── Cursor movement ─────────────────────────────────────────────────────────

// advance moves the cursor one byte forward and returns the new current byte.
func (l *Lexer) advance() byte {
	if l.ch == '\n' {
		l.line++
		l.col = 1
	} else if l.ch != 0 {
		l.col++
	}
	l.pos++
	if l.pos < len(l.input) {
		l.ch = l.input[l.pos]
	} else {
		l.ch = 0
	}
	return l.ch
}

// peek returns the byte after the current one without moving the cursor.
func (l *Lexer) peek() byte {
	if l.pos+1 < len(l.input) {
		return l.input[l.pos+1]
	}
	return 0
}

// ── Character classes ───────────────────────────────────────────────────────

// TL counts every control byte and the space as whitespace.
func isWhitespace(c byte) bool { return c != 0 && c <= 32 }

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }
func isLower(c byte) bool { return c >= 'a' && c <= 'z' }
func isLetter(c byte) bool { return isUpper(c) || isLower(c) }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Magic suffixes use lower-case hex only.
func isHexDigit(c byte) bool { return isDigit(c) || (c >= 'a' && c <= 'f') }

func isIdentChar(c byte) bool { return isLetter(c) || isDigit(c) || c == '_' }

// isPunct reports membership in the TL punctuation alphabet.
func isPunct(c byte) bool {
	switch c {
	case ':', ';', '(', ')', '[', ']', '{', '}', '=', '#', '?', '%', '<', '>', '+', ',', '*', '_', '!', '.':
		return true
	}
	return false
}

// ── Scanning ────────────────────────────────────────────────────────────────

// Next scans and returns the next lexeme. At the end of the input it returns
// an EOF lexeme forever. A byte sequence the lexer cannot classify yields an
// ERROR lexeme whose Msg names the problem; the cursor is left where the
// problem was found, so the caller's furthest-error tracking points at it.
func (l *Lexer) Next() ast.Lexeme {
	l.skipWhitespaceAndComments()

	start := l.mark()
	if l.ch == 0 {
		start.Type = ast.EOF
		return start
	}

	switch {
	case l.ch == '-':
		return l.scanTripleMinus(start)
	case isPunct(l.ch):
		start.Type = ast.CHAR
		start.Text = string(l.ch)
		l.advance()
		return start
	case isUpper(l.ch):
		return l.scanUpperIdent(start)
	case isLower(l.ch):
		return l.scanLowerIdent(start)
	case isDigit(l.ch):
		for isDigit(l.advance()) {
		}
		start.Type = ast.NUM
		start.Text = l.input[start.Pos:l.pos]
		return start
	default:
		return l.errorf(start, "Unknown lexem")
	}
}

// mark builds a lexeme skeleton carrying the current position.
func (l *Lexer) mark() ast.Lexeme {
	return ast.Lexeme{Line: l.line, Col: l.col, Pos: l.pos}
}

// errorf finishes lex as an ERROR lexeme. The position is re-stamped to the
// current cursor, which is where scanning got stuck, not where the lexeme
// started.
func (l *Lexer) errorf(lex ast.Lexeme, msg string) ast.Lexeme {
	lex.Type = ast.ERROR
	lex.Msg = msg
	lex.Line, lex.Col, lex.Pos = l.line, l.col, l.pos
	return lex
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for isWhitespace(l.ch) {
			l.advance()
		}
		if l.ch == '/' && l.peek() == '/' {
			for l.ch != 0 && l.ch != '\n' {
				l.advance()
			}
			continue
		}
		return
	}
}

// scanTripleMinus consumes the `---` section separator. A `-` not followed by
// two more is an error; TL has no other use for the character.
func (l *Lexer) scanTripleMinus(start ast.Lexeme) ast.Lexeme {
	if l.advance() != '-' || l.advance() != '-' {
		return l.errorf(start, "Can not parse triple minus")
	}
	l.advance()
	start.Type = ast.TRIPLE_MINUS
	start.Text = "---"
	return start
}

// scanUpperIdent scans an identifier starting with an upper-case letter and
// re-classifies the three directive keywords.
func (l *Lexer) scanUpperIdent(start ast.Lexeme) ast.Lexeme {
	for isIdentChar(l.advance()) {
	}
	start.Text = l.input[start.Pos:l.pos]
	switch start.Text {
	case "Final":
		start.Type = ast.FINAL
	case "New":
		start.Type = ast.NEW
	case "Empty":
		start.Type = ast.EMPTY
	default:
		start.Type = ast.UC_IDENT
	}
	return start
}

// scanLowerIdent scans a lower-case identifier together with any namespace
// qualifiers and an optional `#magic` suffix.
//
// A `.` continues the identifier only when a letter follows: `a.b` is one
// lexeme while `a.5` ends the identifier before the dot. A segment starting
// with an upper-case letter finishes the identifier and flips its class to
// UC_IDENT, which is how boxed type names like storage.FileType scan.
func (l *Lexer) scanLowerIdent(start ast.Lexeme) ast.Lexeme {
	for isIdentChar(l.advance()) {
	}

	if l.ch == '.' && !isLetter(l.peek()) {
		start.Type = ast.LC_IDENT
		start.Text = l.input[start.Pos:l.pos]
		return start
	}

	for l.ch == '.' {
		start.Flags |= ast.FlagNamespace
		l.advance()
		if isUpper(l.ch) {
			for isIdentChar(l.advance()) {
			}
			start.Type = ast.UC_IDENT
			start.Text = l.input[start.Pos:l.pos]
			return start
		}
		if !isLower(l.ch) {
			return l.errorf(start, "Expected letter")
		}
		for isIdentChar(l.advance()) {
		}
	}

	if l.ch == '#' {
		var ok bool
		if start, ok = l.scanMagic(start); !ok {
			return start
		}
	}

	start.Type = ast.LC_IDENT
	start.Text = l.input[start.Pos:l.pos]
	return start
}

// scanMagic consumes a `#` magic suffix of up to eight lower-case hex digits.
// Five to seven digits are accepted when a space follows, matching schemas in
// the wild whose hashes drop leading zeroes. On failure it returns the ERROR
// lexeme and false.
func (l *Lexer) scanMagic(start ast.Lexeme) (ast.Lexeme, bool) {
	start.Flags |= ast.FlagMagic
	for i := 0; i < 8; i++ {
		if !isHexDigit(l.advance()) {
			if l.ch == ' ' && i >= 5 {
				return start, true
			}
			return l.errorf(start, "Hex digit expected"), false
		}
	}
	l.advance()
	return start, true
}
