package compiler

import (
	"fmt"
	"hash/crc32"
	"strings"
)

// renderer accumulates the canonical text form of a combinator. Most tokens
// are preceded by a single space; the spaced argument suppresses it for
// tokens glued to the previous one (a field name's colon, a `+offset`, the
// id after a `%`).
type renderer struct {
	b strings.Builder
}

func (r *renderer) add(s string, spaced bool) {
	if spaced {
		r.b.WriteByte(' ')
	}
	r.b.WriteString(s)
}

// tree renders a combinator subtree in canonical form.
func (r *renderer) tree(t *Tree, spaced bool) {
	if t == nil {
		return
	}
	switch t.Act {
	case ActQuestionMark:
		r.add("?", spaced)
	case ActType:
		if t.Flags&FlagBare != 0 && t.Flags&FlagShorthand == 0 {
			r.add("%", spaced)
			spaced = false
		}
		if t.Flags&FlagShorthand != 0 {
			// Written via the type's sole constructor, rendered the same way.
			r.add(t.Type.Constructors[0].displayID(), spaced)
		} else {
			r.add(t.Type.ID, spaced)
		}
	case ActField:
		if t.Name != "" {
			r.add(t.Name, spaced)
			r.add(":", false)
			spaced = false
		}
		r.tree(t.Left, spaced)
		r.tree(t.Right, true)
	case ActUnion, ActArg:
		r.tree(t.Left, spaced)
		r.tree(t.Right, true)
	case ActVar:
		if t.Binding == nil {
			return
		}
		r.add(t.Binding.Name, spaced)
		if t.Kind == KindNum && t.TypeFlags != 0 {
			r.add(fmt.Sprintf("+%d", t.TypeFlags), false)
		}
	case ActArray:
		if t.Left != nil && t.Left.Flags&FlagImplicitMult == 0 {
			r.tree(t.Left, spaced)
			spaced = false
			r.add("*", spaced)
		}
		r.add("[", spaced)
		r.tree(t.Right, true)
		r.add("]", true)
	case ActPlus:
		r.tree(t.Left, spaced)
		r.add("+", false)
		r.tree(t.Right, false)
	case ActNatConst:
		r.add(fmt.Sprintf("%d", t.TypeFlags), spaced)
	case ActOptField:
		r.add(t.Left.Binding.Name, spaced)
		r.add(".", false)
		r.add(fmt.Sprintf("%d", t.Left.TypeFlags), false)
		r.add("?", false)
		r.tree(t.Right, false)
	}
}

// render returns the canonical text of a combinator without its magic, the
// form the magic is computed over.
func render(c *Constructor) string {
	var r renderer
	r.add(c.displayID(), false)
	r.tree(c.Left, true)
	r.add("=", true)
	r.tree(c.Right, true)
	return r.b.String()
}

// renderWithMagic returns the canonical text with the `#magic` suffix, used
// for trace output.
func renderWithMagic(c *Constructor) string {
	var r renderer
	r.add(c.displayID(), false)
	r.add(fmt.Sprintf("#%08x", c.Magic), false)
	r.tree(c.Left, true)
	r.add("=", true)
	r.tree(c.Right, true)
	return r.b.String()
}

// Render returns the canonical text of the constructor, the form its magic
// is computed over.
func (c *Constructor) Render() string { return render(c) }

// String returns the canonical text with the magic suffix, the form printed
// by the compiler's trace option.
func (c *Constructor) String() string { return renderWithMagic(c) }

// assignMagic computes the combinator's magic from its canonical rendering
// unless an explicit one is already set.
func assignMagic(c *Constructor) {
	if c.Magic == 0 {
		c.Magic = crc32.ChecksumIEEE([]byte(render(c)))
	}
}
