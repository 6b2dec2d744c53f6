package compiler

// binding is one unification or substitution entry: the variable (keyed by
// its declaring field node) stands for Val plus the constant nat offset Num.
type binding struct {
	Val *Tree
	Num int64
}

// bindings maps declaring field nodes to their bound values. Keys are node
// pointers; the map is only ever iterated where order is irrelevant.
type bindings map[*Tree]binding

func (b bindings) set(v *Tree, val *Tree) {
	b[v] = binding{Val: val}
}

func (b bindings) setNum(v *Tree, val *Tree, num int64) {
	b[v] = binding{Val: val, Num: num}
}

func (b bindings) value(v *Tree) *Tree {
	return b[v].Val
}

func (b bindings) num(v *Tree) int64 {
	return b[v].Num
}

// rwStatus is the result class of the tree-rewriting helpers: an error, "the
// input was nil", "this node was consumed and must be spliced out", or "here
// is the (possibly replaced) node".
type rwStatus int

const (
	rwErr rwStatus = iota
	rwNil
	rwCollapse
	rwNode
)

// isAnonVar reports whether t is an anonymous wildcard variable.
func isAnonVar(t *Tree) bool {
	return t.Act == ActVar && t.Binding == nil
}

// changeVarPtrs rebinds a duplicated tree d so that its variable references
// point at d's own field nodes rather than the original o's. It records the
// original-to-copy field mapping in v while walking both trees in lockstep.
func changeVarPtrs(o, d *Tree, v bindings) {
	if o == nil || d == nil {
		return
	}
	if o.Act == ActField {
		if t := o.Left.headType(); t != nil && (t.ID == "#" || t.ID == "Type") {
			v.set(o, d)
		}
	}
	if o.Act == ActVar && o.Binding != nil {
		d.Binding = v.value(o.Binding)
	}
	changeVarPtrs(o.Left, d.Left, v)
	changeVarPtrs(o.Right, d.Right, v)
}

// changeFirstVar locates the first still-unconsumed `#` or `Type` field in o,
// removes it, and substitutes y for every reference to it. The located field
// is communicated through *x so a second call on the result-type tree
// substitutes the same variable. It returns rwErr when y's kind does not
// match the field's.
func changeFirstVar(o *Tree, x **Tree, y *Tree) (rwStatus, *Tree) {
	if o == nil {
		return rwNil, nil
	}
	if o.Act == ActField && *x == nil {
		if t := o.Left.headType(); t != nil {
			if t.ID == "#" {
				if y.Kind != KindNum && y.Kind != KindNumValue {
					return rwErr, nil
				}
				*x = o
				return rwCollapse, nil
			}
			if t.ID == "Type" {
				if y.Kind != KindType || y.TypeLen != 0 {
					return rwErr, nil
				}
				*x = o
				return rwCollapse, nil
			}
		}
	}
	if o.Act == ActVar && *x != nil && o.Binding == *x {
		r := y.dup()
		if o.Kind == KindNum || o.Kind == KindNumValue {
			r.TypeFlags += o.TypeFlags
		}
		return rwNode, r
	}
	st, t := changeFirstVar(o.Left, x, y)
	if st == rwErr {
		return rwErr, nil
	}
	if st == rwCollapse {
		st, t = changeFirstVar(o.Right, x, y)
		if st == rwErr {
			return rwErr, nil
		}
		if st == rwCollapse {
			return rwCollapse, nil
		}
		if st != rwNil {
			return rwNode, t
		}
		return rwCollapse, nil
	}
	if st != rwNil {
		o.Left = t
	}
	st, t = changeFirstVar(o.Right, x, y)
	if st == rwErr {
		return rwErr, nil
	}
	if st == rwCollapse {
		return rwNode, o.Left
	}
	if st != rwNil {
		o.Right = t
	}
	return rwNode, o
}

// changeValueVar replaces every variable reference bound in x by its value
// and splices out every field node that x binds. It is applied to a
// specialized constructor's trees after unification decided the bindings.
func changeValueVar(o *Tree, x bindings) (rwStatus, *Tree) {
	if o == nil {
		return rwNil, nil
	}
	for o.Act == ActVar {
		if o.Binding == nil {
			break
		}
		val := x.value(o.Binding)
		if val == nil {
			break
		}
		if o.Kind == KindType {
			o = val.dup()
		} else {
			n := x.num(o.Binding)
			o.Binding = val.Binding
			o.Type = val.Type
			o.Kind = val.Kind
			o.Act = val.Act
			o.TypeFlags = o.TypeFlags + n + val.TypeFlags
		}
	}
	if o.Act == ActField {
		if x.value(o) != nil {
			return rwCollapse, nil
		}
	}
	st, t := changeValueVar(o.Left, x)
	if st == rwErr {
		return rwErr, nil
	}
	if st == rwCollapse {
		st, t = changeValueVar(o.Right, x)
		if st == rwErr {
			return rwErr, nil
		}
		if st == rwCollapse {
			return rwCollapse, nil
		}
		if st != rwNil {
			return rwNode, t
		}
		return rwCollapse, nil
	}
	if st != rwNil {
		o.Left = t
	}
	st, t = changeValueVar(o.Right, x)
	if st == rwErr {
		return rwErr, nil
	}
	if st == rwCollapse {
		return rwNode, o.Left
	}
	if st != rwNil {
		o.Right = t
	}
	return rwNode, o
}

// reduceType collapses the fully-applied head of a specialized result-type
// chain into a direct reference to the specialized type t.
func reduceType(a *Tree, t *Type) *Tree {
	if a.TypeLen == t.ParamsNum {
		a.Act = ActType
		a.Kind = KindType
		a.Left, a.Right = nil, nil
		a.Type = t
		a.Binding = nil
		a.Name = ""
		return a
	}
	a.Left = reduceType(a.Left, t)
	return a
}
