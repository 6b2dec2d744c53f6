package compiler

import (
	"bytes"
	"hash/crc32"
	"strings"
	"testing"

	"github.com/metaphox/tl/parser"
)

func mustCompile(t *testing.T, src string, opts ...Option) *Schema {
	t.Helper()
	prog, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s, err := Compile(prog, opts...)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return s
}

func compileErr(t *testing.T, src string) string {
	t.Helper()
	prog, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err = Compile(prog)
	if err == nil {
		t.Fatalf("compile succeeded, want error")
	}
	return err.Error()
}

func schemaType(t *testing.T, s *Schema, id string) *Type {
	t.Helper()
	for _, ty := range s.Types {
		if ty.ID == id {
			return ty
		}
	}
	t.Fatalf("type %s not in schema", id)
	return nil
}

func TestBoolScenario(t *testing.T) {
	s := mustCompile(t, "boolTrue#3fedd339 = Bool;\nboolFalse#c9d946ea = Bool;\n---functions---\n")
	if len(s.Types) != 3 { // #, Bool, Type
		t.Fatalf("got %d types, want 3", len(s.Types))
	}
	if n := s.ConstructorCount(); n != 2 {
		t.Fatalf("got %d constructors, want 2", n)
	}
	b := schemaType(t, s, "Bool")
	if len(b.Constructors) != 2 {
		t.Fatalf("Bool has %d constructors, want 2", len(b.Constructors))
	}
	if got := b.Constructors[0].Magic; got != 0x3fedd339 {
		t.Errorf("boolTrue magic = %08x, want 3fedd339", got)
	}
	if got := b.Constructors[1].Magic; got != 0xc9d946ea {
		t.Errorf("boolFalse magic = %08x, want c9d946ea", got)
	}
	if got, want := b.Magic, uint32(0x3fedd339^0xc9d946ea); got != want {
		t.Errorf("Bool magic = %08x, want %08x", got, want)
	}
}

func TestComputedMagic(t *testing.T) {
	s := mustCompile(t, "boolTrue = Bool;\nboolFalse = Bool;\n")
	b := schemaType(t, s, "Bool")
	if got := b.Constructors[0].Magic; got != 0x997275b5 {
		t.Errorf("boolTrue magic = %08x, want 997275b5", got)
	}
	if got := b.Constructors[1].Magic; got != 0xbc799737 {
		t.Errorf("boolFalse magic = %08x, want bc799737", got)
	}
}

func TestBuiltinCombinators(t *testing.T) {
	s := mustCompile(t, "int ? = Int;\nlong ? = Long;\ndouble ? = Double;\nstring ? = String;\n")
	for _, tc := range []struct {
		typeID string
		magic  uint32
	}{
		{"Int", 0xa8509bda},
		{"Long", 0x22076cba},
		{"Double", 0x2210c154},
		{"String", 0xb5286e24},
	} {
		ty := schemaType(t, s, tc.typeID)
		if len(ty.Constructors) != 1 {
			t.Fatalf("%s has %d constructors, want 1", tc.typeID, len(ty.Constructors))
		}
		if got := ty.Constructors[0].Magic; got != tc.magic {
			t.Errorf("%s constructor magic = %08x, want %08x", tc.typeID, got, tc.magic)
		}
		if ty.Magic != tc.magic {
			t.Errorf("%s type magic = %08x, want %08x", tc.typeID, ty.Magic, tc.magic)
		}
	}
}

func TestBuiltinRejected(t *testing.T) {
	for _, tc := range []struct {
		name, src, want string
	}{
		{"unknown pair", "float ? = Float;", "Unknown builtin type"},
		{"in functions block", "---functions---\nint ? = Int;", "function block"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			msg := compileErr(t, tc.src)
			if !strings.Contains(msg, tc.want) {
				t.Errorf("error %q does not mention %q", msg, tc.want)
			}
		})
	}
}

const vectorDecl = "int ? = Int;\nvector#1cb5c415 {t:Type} # [ t ] = Vector t;\n"

func TestVectorRendering(t *testing.T) {
	s := mustCompile(t, vectorDecl)
	v := schemaType(t, s, "Vector")
	if got, want := render(v.Constructors[0]), "vector t:Type # [ t ] = Vector t"; got != want {
		t.Fatalf("render = %q, want %q", got, want)
	}
	// The declared magic matches the CRC32 of the canonical form.
	if crc := crc32.ChecksumIEEE([]byte(render(v.Constructors[0]))); crc != 0x1cb5c415 {
		t.Errorf("canonical crc = %08x, want 1cb5c415", crc)
	}
}

func TestVectorSpecialization(t *testing.T) {
	s := mustCompile(t, vectorDecl+"Vector<int>;\n")
	nt := schemaType(t, s, "Vector int")
	if nt.ParamsNum != 0 {
		t.Errorf("specialized arity = %d, want 0", nt.ParamsNum)
	}
	if len(nt.Constructors) != 1 {
		t.Fatalf("specialized type has %d constructors, want 1", len(nt.Constructors))
	}
	c := nt.Constructors[0]
	if c.ID != "vector int" || c.RealID != "vector" {
		t.Errorf("got id %q real id %q", c.ID, c.RealID)
	}
	if n := c.Left.listSize(); n != 2 {
		t.Errorf("specialized argument count = %d, want 2", n)
	}
	if got, want := render(c), "vector # [ int ] = Vector int"; got != want {
		t.Errorf("render = %q, want %q", got, want)
	}
	if want := crc32.ChecksumIEEE([]byte("vector # [ int ] = Vector int")); c.Magic != want {
		t.Errorf("magic = %08x, want %08x", c.Magic, want)
	}
}

func TestPartialCombApp(t *testing.T) {
	s := mustCompile(t, vectorDecl+"vector int;\n")
	v := schemaType(t, s, "Vector")
	if len(v.Constructors) != 2 {
		t.Fatalf("Vector has %d constructors, want 2", len(v.Constructors))
	}
	c := v.Constructors[1]
	if c.ID != "vector int" || c.RealID != "vector" {
		t.Errorf("got id %q real id %q", c.ID, c.RealID)
	}
	if got, want := render(c), "vector # [ int ] = Vector int"; got != want {
		t.Errorf("render = %q, want %q", got, want)
	}
}

func TestPartialAppUnknown(t *testing.T) {
	for _, tc := range []struct {
		name, src, want string
	}{
		{"unknown type", "Vector<Int>;", "unknown type"},
		{"undefined combinator", "int ? = Int;\nvector int;", "undefined combinator"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			msg := compileErr(t, tc.src)
			if !strings.Contains(msg, tc.want) {
				t.Errorf("error %q does not mention %q", msg, tc.want)
			}
		})
	}
}

func TestArityMismatch(t *testing.T) {
	for _, tc := range []struct {
		name, src string
	}{
		{"narrow then wide", "foo {X:Type} = T X;\nfoo2 {X:Type} {Y:Type} = T X Y;"},
		{"wide then narrow", "foo2 {X:Type} {Y:Type} = T X Y;\nfoo {X:Type} = T X;"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			msg := compileErr(t, tc.src)
			if !strings.Contains(msg, "T") {
				t.Errorf("arity error %q does not reference the type", msg)
			}
		})
	}
}

func TestDuplicateCombinator(t *testing.T) {
	for _, tc := range []struct {
		name, src string
	}{
		{"constructor twice", "a = A;\na = A;"},
		{"constructor and function", "a = A;\n---functions---\na = A;"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			msg := compileErr(t, tc.src)
			if !strings.Contains(msg, "Duplicate combinator id a") {
				t.Errorf("got error %q", msg)
			}
		})
	}
}

func TestDuplicateFieldName(t *testing.T) {
	msg := compileErr(t, "int ? = Int;\np a:int a:int = P;")
	if !strings.Contains(msg, "Duplicate field name a") {
		t.Errorf("got error %q", msg)
	}
}

func TestUnusedVariable(t *testing.T) {
	msg := compileErr(t, "int ? = Int;\nf {X:Type} = Int;")
	if !strings.Contains(msg, "Not all variables are used") {
		t.Errorf("got error %q", msg)
	}
}

func TestVariableResultType(t *testing.T) {
	src := "f {X:Type} x:!X = X;"
	msg := compileErr(t, src)
	if !strings.Contains(msg, "Only functions can return variables") {
		t.Errorf("got error %q", msg)
	}

	s := mustCompile(t, "---functions---\n"+src)
	if len(s.Functions) != 1 {
		t.Fatalf("got %d functions, want 1", len(s.Functions))
	}
	if f := s.Functions[0]; f.ID != "f" || f.Type != nil {
		t.Errorf("function %q has owning type %v, want none", f.ID, f.Type)
	}
}

func TestDefaultConstructorRules(t *testing.T) {
	for _, tc := range []struct {
		name, src, want string
	}{
		{"two defaults", "_ = X;\n_ = X;", "default constructors"},
		{"default and bare", "int ? = Int;\n_ = X;\nuseIt a:%X = Y;", "used bare"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			msg := compileErr(t, tc.src)
			if !strings.Contains(msg, tc.want) {
				t.Errorf("error %q does not mention %q", msg, tc.want)
			}
		})
	}
}

func TestDefaultConstructorMovedLast(t *testing.T) {
	s := mustCompile(t, "x1 = X;\n_ = X;\nx2 = X;\n")
	x := schemaType(t, s, "X")
	ids := []string{}
	for _, c := range x.Constructors {
		ids = append(ids, c.ID)
	}
	if len(ids) != 3 || ids[0] != "x1" || ids[1] != "x2" || ids[2] != "_" {
		t.Errorf("constructor order = %v, want [x1 x2 _]", ids)
	}
}

func TestMissingConstructorsAggregated(t *testing.T) {
	msg := compileErr(t, "a = A B C;")
	for _, want := range []string{"Type B has no constructors", "Type C has no constructors"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not contain %q", msg, want)
		}
	}
}

func TestEmptyDirective(t *testing.T) {
	s := mustCompile(t, "Empty X;\na = A X;\n")
	x := schemaType(t, s, "X")
	if x.Flags&TypeFlagEmpty == 0 || x.Flags&TypeFlagFinal == 0 {
		t.Errorf("X flags = %x, want empty and final", x.Flags)
	}
}

// An Empty type nothing ever references must still come out with a fixed
// arity of zero, not in a forward-declared state.
func TestEmptyDirectiveUnreferenced(t *testing.T) {
	s := mustCompile(t, "Empty X;\nint ? = Int;\n")
	x := schemaType(t, s, "X")
	if x.ParamsNum != 0 {
		t.Errorf("X arity = %d, want 0", x.ParamsNum)
	}
	if x.Flags&TypeFlagPending != 0 {
		t.Errorf("X flags = %x, pending bit still set", x.Flags)
	}
	if x.Flags&TypeFlagEmpty == 0 || x.Flags&TypeFlagFinal == 0 {
		t.Errorf("X flags = %x, want empty and final", x.Flags)
	}
}

func TestFinalDirectives(t *testing.T) {
	for _, tc := range []struct {
		name, src, want string
	}{
		{"final before declaration", "Final X;", "before declaration"},
		{"new on declared type", "b = B;\nNew B;", "already declared"},
		{"constructor after final", "b = B;\nFinal B;\nb2 = B;", "after final statement"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			msg := compileErr(t, tc.src)
			if !strings.Contains(msg, tc.want) {
				t.Errorf("error %q does not mention %q", msg, tc.want)
			}
		})
	}
}

func TestOverlapWarning(t *testing.T) {
	s := mustCompile(t, "t1 = T;\nt2 = T;\nuse x:%T = U;\n")
	if len(s.Warnings) != 1 || !strings.Contains(s.Warnings[0], "overlapping constructors") {
		t.Errorf("warnings = %v, want one overlap warning for T", s.Warnings)
	}
	if schemaType(t, s, "T").Flags&TypeFlagOverlapping == 0 {
		t.Errorf("T not flagged as overlapping")
	}
}

func TestConditionalField(t *testing.T) {
	s := mustCompile(t, "boolTrue = Bool;\nuser flags:# verified:flags.0?Bool = User;\n")
	u := schemaType(t, s, "User")
	got := render(u.Constructors[0])
	if want := "user flags:# verified:flags.0?Bool = User"; got != want {
		t.Errorf("render = %q, want %q", got, want)
	}
}

func TestConditionalOnArrayRejected(t *testing.T) {
	msg := compileErr(t, "int ? = Int;\nx flags:# a:flags.0?2*[ int ] = X;")
	if !strings.Contains(msg, "repeated group") {
		t.Errorf("got error %q", msg)
	}
}

func TestMatrixMultiplicity(t *testing.T) {
	s := mustCompile(t, "matrix {t:Type} n:# m:# a:n*[ m*[ t ] ] = Matrix t;\n")
	m := schemaType(t, s, "Matrix")
	got := render(m.Constructors[0])
	if want := "matrix t:Type n:# m:# a:n*[ m*[ t ] ] = Matrix t"; got != want {
		t.Errorf("render = %q, want %q", got, want)
	}
}

func TestImplicitMultiplicity(t *testing.T) {
	s := mustCompile(t, "tuple {t:Type} n:# [ t ] = Tuple t n;\n")
	tp := schemaType(t, s, "Tuple")
	got := render(tp.Constructors[0])
	if want := "tuple t:Type n:# [ t ] = Tuple t n"; got != want {
		t.Errorf("render = %q, want %q", got, want)
	}
	if tp.ParamsNum != 2 {
		t.Errorf("Tuple arity = %d, want 2", tp.ParamsNum)
	}
}

func TestMissingMultiplicity(t *testing.T) {
	msg := compileErr(t, "int ? = Int;\nx a:[ int ] = X;")
	if !strings.Contains(msg, "Expected multiplicity or nat var") {
		t.Errorf("got error %q", msg)
	}
}

func TestBareVariableRejected(t *testing.T) {
	msg := compileErr(t, "f {X:Type} x:%X = F X;")
	if !strings.Contains(msg, "Bare type variables") {
		t.Errorf("got error %q", msg)
	}
}

func TestTrace(t *testing.T) {
	var buf bytes.Buffer
	mustCompile(t, "boolTrue = Bool;\n", WithTrace(&buf))
	if got, want := buf.String(), "boolTrue#997275b5 = Bool\n"; got != want {
		t.Errorf("trace = %q, want %q", got, want)
	}
}

func TestDeterminism(t *testing.T) {
	src := vectorDecl + "Vector<int>;\nmsg flags:# text:flags.1?Vector<int> = Message;\n"
	a := mustCompile(t, src)
	b := mustCompile(t, src)
	if len(a.Types) != len(b.Types) {
		t.Fatalf("type counts differ: %d vs %d", len(a.Types), len(b.Types))
	}
	for i := range a.Types {
		at, bt := a.Types[i], b.Types[i]
		if at.ID != bt.ID || at.Magic != bt.Magic || len(at.Constructors) != len(bt.Constructors) {
			t.Fatalf("type %q differs between runs", at.ID)
		}
		for j := range at.Constructors {
			if render(at.Constructors[j]) != render(bt.Constructors[j]) {
				t.Errorf("constructor %q renders differently", at.Constructors[j].ID)
			}
		}
	}
}
