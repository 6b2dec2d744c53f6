package compiler

import (
	"fmt"
	"strings"
)

// Well-known magics of the two builtin kinds.
const (
	natKindMagic  = 0x70659eff
	typeKindMagic = 0x2cecf817
)

// check runs the schema-wide consistency pass: every registered type is
// visited, in id order, regardless of failures on earlier types, so that all
// diagnostics surface in one run. Warnings do not fail the pass.
func (c *Compiler) check() error {
	var msgs []string
	c.types.Each(func(_ interface{}, v interface{}) {
		if msg := c.checkType(v.(*Type)); msg != "" {
			msgs = append(msgs, msg)
		}
	})
	if len(msgs) != 0 {
		return &Error{Msg: strings.Join(msgs, "\n")}
	}
	return nil
}

// checkType finalizes one type: fixes builtin magics, requires at least one
// constructor, computes the type magic as the XOR of its constructors',
// detects overlapping constructors and enforces the default-constructor
// rules. It returns a diagnostic message, or "" when the type is legal.
func (c *Compiler) checkType(t *Type) string {
	switch t.ID {
	case "#":
		t.Magic = natKindMagic
		return ""
	case "Type":
		t.Magic = typeKindMagic
		return ""
	}
	if len(t.Constructors) == 0 {
		if t.Flags&TypeFlagEmpty != 0 {
			return ""
		}
		return fmt.Sprintf("Type %s has no constructors", t.ID)
	}

	t.Magic = 0
	for _, ctor := range t.Constructors {
		t.Magic ^= ctor.Magic
	}
	for i, a := range t.Constructors {
		for _, b := range t.Constructors[i+1:] {
			if constructorsEqual(a.Right, b.Right, bindings{}) {
				t.Flags |= TypeFlagOverlapping
			}
		}
	}
	if t.Flags&(TypeFlagUsedBare|TypeFlagOverlapping) == TypeFlagUsedBare|TypeFlagOverlapping {
		c.warnings = append(c.warnings,
			fmt.Sprintf("Type %s has overlapping constructors, but it is used with `%%`", t.ID))
	}

	defaults := 0
	di := -1
	for i, ctor := range t.Constructors {
		if ctor.ID == "_" {
			defaults++
			di = i
		}
	}
	if defaults > 1 {
		return fmt.Sprintf("Type %s has %d default constructors", t.ID, defaults)
	}
	if defaults == 1 && t.Flags&TypeFlagUsedBare != 0 {
		return fmt.Sprintf("Type %s has default constructors and used bare", t.ID)
	}
	if defaults == 1 {
		last := len(t.Constructors) - 1
		t.Constructors[di], t.Constructors[last] = t.Constructors[last], t.Constructors[di]
	}
	return ""
}
