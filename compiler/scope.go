package compiler

import (
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/sets/treeset"
)

// Var flags.
const (
	// varUsed is set once the variable is referenced on a result type or
	// under a `!` argument.
	varUsed = 1 << 0
	// varField is set for variables bound by positional `#`/`Type`
	// arguments, which do not have to be referenced again.
	varField = 1 << 1
)

// Var is one variable in scope: a generic parameter or a `#`/`Type`-typed
// field usable as a variable.
type Var struct {
	ID    string
	Ptr   *Tree // the field node that declared the variable
	IsNat bool  // true for `#` variables, false for `Type`
	Flags int
}

// scopeDepth bounds the nesting of bracketed array arguments.
const scopeDepth = 10

// scopes is the per-combinator stack of variable and field namespaces.
// Level 0 is the combinator's own namespace; each bracketed array group
// pushes one level. Variable lookup walks from the innermost level outward;
// field-name uniqueness is per level.
type scopes struct {
	level      int
	vars       [scopeDepth]*treemap.Map // id -> *Var
	fields     [scopeDepth]*treeset.Set // declared field names
	lastNumVar [scopeDepth]*Var
}

func newScopes() *scopes {
	s := &scopes{}
	for i := 0; i < scopeDepth; i++ {
		s.vars[i] = treemap.NewWithStringComparator()
		s.fields[i] = treeset.NewWithStringComparator()
	}
	return s
}

// reset clears the current level, used at the start of every combinator
// declaration when the level is back at 0.
func (s *scopes) reset() {
	s.vars[s.level].Clear()
	s.fields[s.level].Clear()
	s.lastNumVar[s.level] = nil
}

func (s *scopes) push() {
	s.level++
	s.reset()
}

func (s *scopes) pop() {
	s.level--
}

// addField registers a field name at the current level; false on duplicate.
func (s *scopes) addField(name string) bool {
	if s.fields[s.level].Contains(name) {
		return false
	}
	s.fields[s.level].Add(name)
	return true
}

// addVar declares a variable at the current level; nil on duplicate.
func (s *scopes) addVar(id string, ptr *Tree, isNat bool) *Var {
	if _, ok := s.vars[s.level].Get(id); ok {
		return nil
	}
	v := &Var{ID: id, Ptr: ptr, IsNat: isNat}
	s.vars[s.level].Put(id, v)
	if isNat {
		s.lastNumVar[s.level] = v
	}
	return v
}

// lookup finds a variable, walking from the innermost level outward.
func (s *scopes) lookup(id string) *Var {
	for i := s.level; i >= 0; i-- {
		if v, ok := s.vars[i].Get(id); ok {
			return v.(*Var)
		}
	}
	return nil
}

// lastNat returns the innermost level's most recently declared nat variable,
// used as the implicit multiplicity of a bracketed group.
func (s *scopes) lastNat() *Var {
	return s.lastNumVar[s.level]
}

// eachTopVar visits every level-0 variable in name order.
func (s *scopes) eachTopVar(f func(*Var)) {
	s.vars[0].Each(func(_, v interface{}) {
		f(v.(*Var))
	})
}
