// Package encoder serializes a compiled schema into the versioned
// little-endian binary format consumed by downstream code generators.
package encoder

import (
	"encoding/binary"

	"github.com/metaphox/tl/compiler"
)

// Section and expression opcodes of the binary format.
const (
	tlsSchemaV2              = 0x3a2f9be2
	tlsType                  = 0x12eb4386
	tlsCombinator            = 0x5c0a1ed5
	tlsCombinatorLeftBuiltin = 0xcd211f63
	tlsCombinatorLeft        = 0x4c12c6d9
	tlsCombinatorRightV2     = 0x2c064372
	tlsArgV2                 = 0x29dfe61b
	tlsExprNat               = 0xdcb49bd8
	tlsExprType              = 0xecc9da78
	tlsNatConst              = 0x8ce940b1
	tlsNatVar                = 0x4e8a14f0
	tlsTypeVar               = 0x0142ceae
	tlsArray                 = 0xd9fb20de
	tlsTypeExpr              = 0xc1863d08
)

// Output flag bits. The compiler's in-tree flag values are remapped to the
// format's fixed positions on write.
const (
	outBare        = 1
	outOptField    = 2
	outVarBinding  = 4
	outOptVar      = 1 << 17
	outExcl        = 1 << 18
	outDefaultCtor = 1 << 25
)

type writer struct {
	buf []byte

	// per-combinator variable indexing, keyed by the declaring field node
	vars    map[*compiler.Tree]int
	lastVar int
}

func (w *writer) u32(x uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, x)
}

func (w *writer) u64(x uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, x)
}

// str writes a length-prefixed string zero-padded to a 4-byte boundary. An
// empty string stands for "no name" and is written as a 4-byte zero.
func (w *writer) str(s string) {
	if s == "" {
		w.u32(0)
		return
	}
	w.buf = append(w.buf, byte(len(s)))
	w.buf = append(w.buf, s...)
	for n := len(s) + 1; n%4 != 0; n++ {
		w.buf = append(w.buf, 0)
	}
}

// Encode serializes a compiled schema. It cannot fail: everything that would
// be unencodable is rejected at compile time.
func Encode(s *compiler.Schema) []byte {
	w := &writer{}
	w.u32(tlsSchemaV2)
	w.u32(0) // reserved version
	w.u32(0) // build date, fixed for reproducible output

	w.u32(uint32(len(s.Types)))
	for _, t := range s.Types {
		w.writeType(t)
	}
	w.u32(uint32(s.ConstructorCount()))
	for _, t := range s.Types {
		for _, c := range t.Constructors {
			w.u32(tlsCombinator)
			w.writeCombinator(c)
		}
	}
	w.u32(uint32(len(s.Functions)))
	for _, f := range s.Functions {
		w.u32(tlsCombinator)
		w.writeCombinator(f)
	}
	return w.buf
}

func (w *writer) writeType(t *compiler.Type) {
	w.u32(tlsType)
	w.u32(t.Magic)
	w.str(t.ID)
	w.u32(uint32(len(t.Constructors)))
	w.u32(uint32(t.Flags))
	w.u32(uint32(t.ParamsNum))
	w.u64(t.ParamsTypes)
}

var builtinIDs = map[string]bool{
	"int": true, "long": true, "double": true,
	"string": true, "object": true, "function": true,
}

func (w *writer) writeCombinator(c *compiler.Constructor) {
	w.u32(c.Magic)
	w.str(c.ID)
	if c.Type != nil {
		w.u32(c.Type.Magic)
	} else {
		w.u32(0)
	}
	w.vars = map[*compiler.Tree]int{}
	w.lastVar = 0
	if c.Left != nil {
		if builtinIDs[c.ID] {
			w.u32(tlsCombinatorLeftBuiltin)
		} else {
			w.u32(tlsCombinatorLeft)
			w.writeTree(c.Left)
		}
	} else {
		w.u32(tlsCombinatorLeft)
		w.u32(0)
	}
	w.u32(tlsCombinatorRightV2)
	w.writeTree(c.Right)
}

func listSize(t *compiler.Tree) uint32 {
	if t.Kind == compiler.KindListItem {
		return 1
	}
	return listSize(t.Left) + listSize(t.Right)
}

func (w *writer) writeTree(t *compiler.Tree) {
	switch t.Kind {
	case compiler.KindList, compiler.KindListItem:
		w.u32(listSize(t))
		w.writeArgs(t)
	case compiler.KindNumValue:
		w.u32(tlsNatConst)
		w.u32(uint32(t.TypeFlags))
	case compiler.KindNum:
		w.u32(tlsNatVar)
		w.u32(uint32(t.TypeFlags))
		w.u32(uint32(w.vars[t.Binding]))
	case compiler.KindType:
		switch t.Act {
		case compiler.ActArray:
			w.writeArray(t)
		case compiler.ActOptField:
			w.writeOptField(t)
		default:
			w.writeTypeExpr(t, 0)
		}
	}
}

func (w *writer) writeArgs(t *compiler.Tree) {
	if t.Kind == compiler.KindList {
		w.writeArgs(t.Left)
		w.writeArgs(t.Right)
		return
	}
	w.u32(tlsArgV2)
	if t.Name != "_" {
		w.str(t.Name)
	} else {
		w.str("")
	}
	f := t.Flags
	if t.Left.Act == compiler.ActOptField {
		f |= compiler.FlagCondField
	}
	if bindsVar(t.Left) {
		w.writeFieldFlags(f | compiler.FlagNoVar)
		w.u32(uint32(w.lastVar))
		w.vars[t] = w.lastVar
		w.lastVar++
	} else {
		w.writeFieldFlags(f)
	}
	w.writeTree(t.Left)
}

// bindsVar reports whether a field declares a nat or generic-type variable,
// which is what gets a per-combinator index in the output.
func bindsVar(t *compiler.Tree) bool {
	if t.Act != compiler.ActType || t.Type == nil {
		return false
	}
	return t.Type.ID == "#" || t.Type.ID == "Type"
}

func (w *writer) writeFieldFlags(f int) {
	out := 0
	if f&compiler.FlagBare != 0 {
		out |= outBare
	}
	if f&compiler.FlagOptVar != 0 {
		out |= outOptVar
	}
	if f&compiler.FlagExcl != 0 {
		out |= outExcl
	}
	if f&compiler.FlagCondField != 0 {
		out |= outOptField
	}
	if f&compiler.FlagNoVar != 0 {
		out |= outVarBinding
	}
	w.u32(uint32(out))
}

func (w *writer) writeTypeFlags(f int) {
	out := 0
	if f&compiler.FlagBare != 0 {
		out |= outBare
	}
	if f&compiler.TypeFlagDefaultCtor != 0 {
		out |= outDefaultCtor
	}
	w.u32(uint32(out))
}

func (w *writer) writeArray(t *compiler.Tree) {
	w.u32(tlsArray)
	w.writeTree(t.Left)
	w.writeTree(t.Right)
}

// writeTypeExpr encodes a type-application chain; cc counts the arguments
// applied below the current node.
func (w *writer) writeTypeExpr(t *compiler.Tree, cc int) {
	if t.Act == compiler.ActArg {
		w.writeTypeExpr(t.Left, cc+1)
		if t.Right.Kind == compiler.KindNum || t.Right.Kind == compiler.KindNumValue {
			w.u32(tlsExprNat)
		} else {
			w.u32(tlsExprType)
		}
		w.writeTree(t.Right)
		return
	}
	if t.Act == compiler.ActVar {
		w.u32(tlsTypeVar)
		w.u32(uint32(w.vars[t.Binding]))
		w.u32(0) // compiled trees never carry bare variables
		return
	}
	w.u32(tlsTypeExpr)
	w.u32(t.Type.Magic)
	w.writeTypeFlags(t.Flags)
	w.u32(uint32(cc))
}

func (w *writer) writeOptField(t *compiler.Tree) {
	w.u32(uint32(w.vars[t.Left.Binding]))
	w.u32(uint32(t.Left.TypeFlags))
	w.writeTree(t.Right)
}
