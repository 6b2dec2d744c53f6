package compiler

// Occurs-check results for lookupValue and lookupValueNat.
const (
	lookupMiss   = -1 // variable does not occur
	lookupSame   = 0  // the tree is exactly the variable
	lookupOccurs = 1  // the variable occurs strictly inside the tree
)

// lookupValue reports how the variable declared by field node v occurs in l,
// following bindings in t.
func lookupValue(l *Tree, v *Tree, t bindings) int {
	if l == nil {
		return lookupMiss
	}
	if l.Act == ActVar && l.Binding == v {
		return lookupSame
	}
	if l.Act == ActVar {
		e := t.value(l.Binding)
		if e == nil {
			return lookupMiss
		}
		return lookupValue(e, v, t)
	}
	if lookupValue(l.Left, v, t) >= 0 {
		return lookupOccurs
	}
	if lookupValue(l.Right, v, t) >= 0 {
		return lookupOccurs
	}
	return lookupMiss
}

// lookupValueNat is the nat-chain analogue: it reports whether l resolves to
// the variable v with accumulated offset x (lookupSame), to v with a
// different offset (lookupOccurs), or to something else entirely
// (lookupMiss).
func lookupValueNat(l *Tree, v *Tree, x int64, t bindings) int {
	if l.Kind == KindNumValue {
		return lookupMiss
	}
	if l.Binding == v {
		if x == l.TypeFlags {
			return lookupSame
		}
		return lookupOccurs
	}
	val := t.value(l.Binding)
	if val == nil {
		return lookupMiss
	}
	return lookupValueNat(val, v, x+t.num(l.Binding), t)
}

// uniformize unifies two combinator subtrees, recording variable bindings in
// t. Anonymous wildcard variables match anything without binding. It returns
// false when the trees cannot be made equal.
func uniformize(l, r *Tree, t bindings) bool {
	if l == nil || r == nil {
		return l == nil && r == nil
	}
	if r.Act == ActVar {
		l, r = r, l
	}

	if l.Kind == KindType {
		if r.Kind != KindType || l.TypeLen != r.TypeLen || l.TypeFlags != r.TypeFlags {
			return false
		}
		if isAnonVar(l) || isAnonVar(r) {
			return true
		}
		if l.Act == ActVar {
			switch lookupValue(r, l.Binding, t) {
			case lookupOccurs:
				return false
			case lookupSame:
				return true
			}
			e := t.value(l.Binding)
			if e == nil {
				t.set(l.Binding, r)
				return true
			}
			return uniformize(e, r, t)
		}
		if l.Act != r.Act || l.Type != r.Type || l.Binding != r.Binding {
			return false
		}
		return uniformize(l.Left, r.Left, t) && uniformize(l.Right, r.Right, t)
	}

	if r.Kind != KindNum && r.Kind != KindNumValue {
		return false
	}
	if isAnonVar(l) || isAnonVar(r) {
		return true
	}

	// Walk both nat chains, accumulating constant offsets through existing
	// bindings, until each side ends at a literal or an unbound variable.
	var x int64
	k := l
	for {
		x += k.TypeFlags
		if k.Kind == KindNumValue {
			break
		}
		if t.value(k.Binding) == nil {
			switch lookupValueNat(r, k.Binding, k.TypeFlags, t) {
			case lookupOccurs:
				return false
			case lookupSame:
				return true
			}
			break
		}
		x += t.num(k.Binding)
		k = t.value(k.Binding)
	}
	var y int64
	m := r
	for {
		y += m.TypeFlags
		if m.Kind == KindNumValue {
			break
		}
		if t.value(m.Binding) == nil {
			switch lookupValueNat(l, m.Binding, m.TypeFlags, t) {
			case lookupOccurs:
				return false
			case lookupSame:
				return true
			}
			break
		}
		y += t.num(m.Binding)
		m = t.value(m.Binding)
	}

	switch {
	case k.Kind == KindNumValue && m.Kind == KindNumValue:
		return x == y
	case m.Kind == KindNumValue:
		t.setNum(k.Binding, m, -(x - y + m.TypeFlags))
		return true
	case k.Kind == KindNumValue:
		t.setNum(m.Binding, k, -(y - x + k.TypeFlags))
		return true
	case x >= y:
		t.setNum(k.Binding, m, -(x - y + m.TypeFlags))
		return true
	default:
		t.setNum(m.Binding, k, -(y - x + k.TypeFlags))
		return true
	}
}

// natValuesLegal verifies that no nat binding resolves to a negative value.
func natValuesLegal(t bindings) bool {
	for _, b := range t {
		x := b.Num
		l := b.Val
		if l.Kind == KindType {
			continue
		}
		for l != nil {
			if l.Kind == KindNumValue {
				if x+l.TypeFlags < 0 {
					return false
				}
				break
			}
			x += l.TypeFlags + t.num(l.Binding)
			l = t.value(l.Binding)
		}
	}
	return true
}

// constructorsEqual reports whether two result-type trees unify with legal
// nat values, recording the bindings in t.
func constructorsEqual(l, r *Tree, t bindings) bool {
	return uniformize(l, r, t) && natValuesLegal(t)
}
