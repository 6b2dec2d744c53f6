package lexer

import (
	"testing"

	"github.com/metaphox/tl/ast"
)

// lexCase is one expected lexeme in a scan sequence.
type lexCase struct {
	typ   ast.LexemeType
	text  string
	flags int
}

// runCases scans input and checks the lexeme stream against want, then
// verifies the stream ends with EOF.
func runCases(t *testing.T, input string, want []lexCase) {
	t.Helper()
	l := New(input)
	for i, w := range want {
		got := l.Next()
		if got.Type != w.typ {
			t.Fatalf("lexeme %d: type = %v, want %v (text %q)", i, got.Type, w.typ, got.Text)
		}
		if got.Text != w.text {
			t.Fatalf("lexeme %d: text = %q, want %q", i, got.Text, w.text)
		}
		if got.Flags != w.flags {
			t.Fatalf("lexeme %d: flags = %#x, want %#x (text %q)", i, got.Flags, w.flags, got.Text)
		}
	}
	if got := l.Next(); got.Type != ast.EOF {
		t.Fatalf("trailing lexeme: type = %v text = %q, want EOF", got.Type, got.Text)
	}
}

// ── Basic classification ────────────────────────────────────────────────────

func TestPunctuation(t *testing.T) {
	runCases(t, ": ; ( ) [ ] { } = # ? % < > + , * _ ! .", []lexCase{
		{ast.CHAR, ":", 0}, {ast.CHAR, ";", 0}, {ast.CHAR, "(", 0},
		{ast.CHAR, ")", 0}, {ast.CHAR, "[", 0}, {ast.CHAR, "]", 0},
		{ast.CHAR, "{", 0}, {ast.CHAR, "}", 0}, {ast.CHAR, "=", 0},
		{ast.CHAR, "#", 0}, {ast.CHAR, "?", 0}, {ast.CHAR, "%", 0},
		{ast.CHAR, "<", 0}, {ast.CHAR, ">", 0}, {ast.CHAR, "+", 0},
		{ast.CHAR, ",", 0}, {ast.CHAR, "*", 0}, {ast.CHAR, "_", 0},
		{ast.CHAR, "!", 0}, {ast.CHAR, ".", 0},
	})
}

func TestTripleMinus(t *testing.T) {
	runCases(t, "---functions---", []lexCase{
		{ast.TRIPLE_MINUS, "---", 0},
		{ast.LC_IDENT, "functions", 0},
		{ast.TRIPLE_MINUS, "---", 0},
	})
}

func TestNumbers(t *testing.T) {
	runCases(t, "0 12 54321", []lexCase{
		{ast.NUM, "0", 0},
		{ast.NUM, "12", 0},
		{ast.NUM, "54321", 0},
	})
}

func TestKeywords(t *testing.T) {
	runCases(t, "Final New Empty Finally", []lexCase{
		{ast.FINAL, "Final", 0},
		{ast.NEW, "New", 0},
		{ast.EMPTY, "Empty", 0},
		{ast.UC_IDENT, "Finally", 0},
	})
}

// ── Identifiers ─────────────────────────────────────────────────────────────

func TestIdents(t *testing.T) {
	runCases(t, "boolTrue Bool vector t2 x_y", []lexCase{
		{ast.LC_IDENT, "boolTrue", 0},
		{ast.UC_IDENT, "Bool", 0},
		{ast.LC_IDENT, "vector", 0},
		{ast.LC_IDENT, "t2", 0},
		{ast.LC_IDENT, "x_y", 0},
	})
}

func TestNamespacedIdents(t *testing.T) {
	runCases(t, "storage.fileJpeg storage.FileType a.b.c a.b.C", []lexCase{
		{ast.LC_IDENT, "storage.fileJpeg", ast.FlagNamespace},
		{ast.UC_IDENT, "storage.FileType", ast.FlagNamespace},
		{ast.LC_IDENT, "a.b.c", ast.FlagNamespace},
		{ast.UC_IDENT, "a.b.C", ast.FlagNamespace},
	})
}

// A dot not followed by a letter ends the identifier before the dot, so that
// conditional tags like flags.0 scan as three lexemes.
func TestDotBeforeNonLetter(t *testing.T) {
	runCases(t, "flags.0?string", []lexCase{
		{ast.LC_IDENT, "flags", 0},
		{ast.CHAR, ".", 0},
		{ast.NUM, "0", 0},
		{ast.CHAR, "?", 0},
		{ast.LC_IDENT, "string", 0},
	})
}

// ── Magic suffixes ──────────────────────────────────────────────────────────

func TestMagicSuffix(t *testing.T) {
	runCases(t, "boolTrue#997275b5 user.user#d23fb078", []lexCase{
		{ast.LC_IDENT, "boolTrue#997275b5", ast.FlagMagic},
		{ast.LC_IDENT, "user.user#d23fb078", ast.FlagNamespace | ast.FlagMagic},
	})
}

// Magics with five to seven hex digits are accepted when a space follows,
// for schemas whose hashes drop leading zeroes.
func TestShortMagicBeforeSpace(t *testing.T) {
	runCases(t, "a#12345 b#123456 c#1234567 = X;", []lexCase{
		{ast.LC_IDENT, "a#12345", ast.FlagMagic},
		{ast.LC_IDENT, "b#123456", ast.FlagMagic},
		{ast.LC_IDENT, "c#1234567", ast.FlagMagic},
		{ast.CHAR, "=", 0},
		{ast.UC_IDENT, "X", 0},
		{ast.CHAR, ";", 0},
	})
}

func TestMagicErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"too short", "a#1234 = X;"},
		{"short before semicolon", "a#12345;"},
		{"upper-case hex", "a#997275B5"},
		{"no digits", "a# = X;"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := New(tc.input).Next()
			if got.Type != ast.ERROR {
				t.Fatalf("type = %v text = %q, want ERROR", got.Type, got.Text)
			}
			if got.Msg != "Hex digit expected" {
				t.Fatalf("msg = %q, want %q", got.Msg, "Hex digit expected")
			}
		})
	}
}

// ── Whitespace, comments, errors ────────────────────────────────────────────

func TestCommentsAndWhitespace(t *testing.T) {
	input := "// full line\nboolTrue = Bool; // trailing\n\t\r\n boolFalse"
	runCases(t, input, []lexCase{
		{ast.LC_IDENT, "boolTrue", 0},
		{ast.CHAR, "=", 0},
		{ast.UC_IDENT, "Bool", 0},
		{ast.CHAR, ";", 0},
		{ast.LC_IDENT, "boolFalse", 0},
	})
}

func TestScanErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
		msg   string
	}{
		{"single minus", "-", "Can not parse triple minus"},
		{"double minus", "--functions", "Can not parse triple minus"},
		{"stray byte", "@", "Unknown lexem"},
		{"dot then digit in namespace", "a.b.1x", "Expected letter"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := New(tc.input)
			var got ast.Lexeme
			for {
				got = l.Next()
				if got.Type == ast.ERROR || got.Type == ast.EOF {
					break
				}
			}
			if got.Type != ast.ERROR {
				t.Fatalf("no error lexeme for %q", tc.input)
			}
			if got.Msg != tc.msg {
				t.Fatalf("msg = %q, want %q", got.Msg, tc.msg)
			}
		})
	}
}

func TestPositions(t *testing.T) {
	l := New("boolTrue = Bool;\nboolFalse = Bool;")
	l.Next() // boolTrue
	eq := l.Next()
	if eq.Line != 1 || eq.Col != 10 {
		t.Fatalf("`=` at line %d col %d, want line 1 col 10", eq.Line, eq.Col)
	}
	l.Next() // Bool
	l.Next() // ;
	bf := l.Next()
	if bf.Line != 2 || bf.Col != 1 {
		t.Fatalf("boolFalse at line %d col %d, want line 2 col 1", bf.Line, bf.Col)
	}
}

func TestSaveRestore(t *testing.T) {
	l := New("a b c")
	if got := l.Next(); got.Text != "a" {
		t.Fatalf("first lexeme = %q, want %q", got.Text, "a")
	}
	s := l.Save()
	if got := l.Next(); got.Text != "b" {
		t.Fatalf("second lexeme = %q, want %q", got.Text, "b")
	}
	l.Restore(s)
	if got := l.Next(); got.Text != "b" {
		t.Fatalf("after restore = %q, want %q", got.Text, "b")
	}
}
