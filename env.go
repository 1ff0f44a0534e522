package icc

import "github.com/hashicorp/go-set/v3"

// VariableKind is a binding's usage discipline (spec.md §3).
type VariableKind int

const (
	// VarLinear must be used exactly once before its scope closes.
	VarLinear VariableKind = iota
	// VarReplicable may be used any number of times; each use splits off a
	// copy via a duplication node, leaving the binding live.
	VarReplicable
	// VarBoxed is replicable behind a dereliction (SPEC_FULL.md Open
	// Question resolution #1): each use inserts D(handle, fresh), the left
	// output is the use, the residual is re-wrapped as Boxed.
	VarBoxed
)

type binding struct {
	kind VariableKind
	tree *Tree
	typ  *Type
}

// Environment is an ordered Name -> binding map: a plain Go map would lose
// the declaration order the Match/Begin context-capture walks rely on for
// deterministic multiplexing (spec.md §4.3), so, like Branches, this keeps
// parallel slices instead.
type Environment struct {
	names    []Name
	bindings []*binding
	live     *set.Set[string]

	// resolveGlobal backs the "attempt compile_global(name)" fallback in
	// use_variable (spec.md §4.3); nil in environments that should never
	// see a miss resolve to a global (there are none in practice, but the
	// zero value keeps Environment usable without a Compiler in tests).
	resolveGlobal func(Name) (*Tree, *Type, error)
}

// NewEnvironment returns an empty environment.
func NewEnvironment() *Environment {
	return &Environment{live: set.New[string](0)}
}

// BindVariable introduces a new binding, fatal if name is already bound
// (spec.md §7 "DuplicateBindingError").
func (e *Environment) BindVariable(name Name, kind VariableKind, tree *Tree, typ *Type) error {
	for _, n := range e.names {
		if n.Eq(name) {
			return &DuplicateBindingError{Name: name}
		}
	}
	e.names = append(e.names, name)
	e.bindings = append(e.bindings, &binding{kind: kind, tree: tree, typ: typ})
	e.live.Insert(name.Text)
	return nil
}

func (e *Environment) find(name Name) int {
	for i, n := range e.names {
		if n.Eq(name) {
			return i
		}
	}
	return -1
}

func (e *Environment) removeAt(i int) {
	e.live.Remove(e.names[i].Text)
	e.names = append(e.names[:i], e.names[i+1:]...)
	e.bindings = append(e.bindings[:i], e.bindings[i+1:]...)
}

// UseVariable consumes or splits off a use of name, returning the tree to
// wire at the reference site and the type it carries (spec.md §4.3
// "use_variable"):
//   - Linear: removed from the environment, its tree returned directly.
//   - Replicable: a duplication node is inserted; one output is returned
//     as this use, the other replaces the stored handle.
//   - Boxed: a dereliction node is inserted the same way a Replicable use
//     is, but the residual is re-wrapped so the binding stays Boxed.
func (e *Environment) UseVariable(net *Net, name Name) (*Tree, *Type, error) {
	i := e.find(name)
	if i < 0 {
		if e.resolveGlobal != nil {
			tree, ty, err := e.resolveGlobal(name)
			if err != nil {
				return nil, nil, err
			}
			if tree != nil {
				if err := e.BindVariable(name, VarReplicable, tree, ty); err != nil {
					return nil, nil, err
				}
				return e.UseVariable(net, name)
			}
		}
		return nil, nil, &UnknownVariableError{Name: name}
	}
	b := e.bindings[i]
	switch b.kind {
	case VarLinear:
		e.removeAt(i)
		return b.tree, b.typ, nil
	case VarReplicable, VarBoxed:
		use, residual := net.CreateWire()
		keep, handle := net.CreateWire()
		net.Link(dupOrDer(b.kind, use, keep), b.tree)
		b.tree = handle
		return residual, b.typ, nil
	default:
		return nil, nil, &UnknownVariableError{Name: name}
	}
}

// dupOrDer builds the node UseVariable inserts for a non-linear use: a
// plain duplication node for Replicable, a dereliction node for Boxed —
// both have the shape D(a,b) at the tree level (spec.md §3 "D(a,b)"); they
// differ only in how a Reducer would later interpret them, which is out
// of scope here.
func dupOrDer(kind VariableKind, a, b *Tree) *Tree {
	return dup(a, b)
}

// InstantiateVariable is UseVariable followed by a structural cast to want
// when the binding's recorded type differs from the type the reference
// site expects (spec.md §4.3 "instantiate_variable").
func (e *Environment) InstantiateVariable(net *Net, name Name, want *Type) (*Tree, error) {
	tree, have, err := e.UseVariable(net, name)
	if err != nil {
		return nil, err
	}
	if want == nil || have.Equal(want) {
		return tree, nil
	}
	return cast(net, tree, have, want)
}

// CloseLinearScope checks that every remaining Linear binding has been
// consumed, fatal otherwise (spec.md §7 "UnclosedLinearError"). Any
// surviving Replicable/Boxed bindings are erased, since their handles are
// not required to be used.
func (e *Environment) CloseLinearScope(net *Net) error {
	for i, b := range e.bindings {
		if b.kind == VarLinear {
			return &UnclosedLinearError{Name: e.names[i]}
		}
	}
	for _, b := range e.bindings {
		net.Link(b.tree, erase())
	}
	e.names = nil
	e.bindings = nil
	e.live = set.New[string](0)
	return nil
}

// LiveNames returns the names currently bound, in declaration order.
func (e *Environment) LiveNames() []Name {
	out := make([]Name, len(e.names))
	copy(out, e.names)
	return out
}

// CaptureContext extracts the current tree+type+kind for each of names (in
// the order given), removing Linear bindings and splitting
// Replicable/Boxed ones exactly like UseVariable, and folds the results
// into one multiplexed tree via nested binary C nodes (spec.md §4.5's
// multiplexing convention, reused here for Match/Begin/Loop captures —
// SPEC_FULL.md Open Question resolution #2). An empty name list yields a
// single Erase leaf, the multiplex identity.
func (e *Environment) CaptureContext(net *Net, names []Name) (*Tree, []*Type, []VariableKind, error) {
	types := make([]*Type, len(names))
	kinds := make([]VariableKind, len(names))
	trees := make([]*Tree, len(names))
	for i, n := range names {
		t, ty, err := e.UseVariable(net, n)
		if err != nil {
			return nil, nil, nil, err
		}
		trees[i] = t
		types[i] = ty
		kinds[i] = e.kindOf(n, ty)
	}
	return multiplexTrees(trees), types, kinds, nil
}

// kindOf records which discipline a captured name had, for RestoreContext
// to rebind it under the same discipline on the other side. CaptureContext
// calls it after UseVariable: a Replicable/Boxed binding is still present
// and reports its own kind, while a name no longer present was removed by
// that use, so it was Linear.
func (e *Environment) kindOf(name Name, fallback *Type) VariableKind {
	if i := e.find(name); i >= 0 {
		return e.bindings[i].kind
	}
	return VarLinear
}

// WithCaptures implements with_captures (spec.md §4.3): it builds a fresh
// environment populated only by the named captures (one use each, taken
// from outer), runs body in it, and on return fails fatally if any Linear
// capture was never consumed and erases any surviving Replicable/Boxed
// residuals. Unlike CaptureContext (above), this never crosses a net/
// package boundary — Fork stays within the enclosing definition's Net, so
// captures are rebound directly, with no multiplexing wire needed.
func WithCaptures(net *Net, outer *Environment, captures []Name, resolveGlobal func(Name) (*Tree, *Type, error), body func(inner *Environment) error) error {
	inner := NewEnvironment()
	inner.resolveGlobal = resolveGlobal
	for _, name := range captures {
		idx := outer.find(name)
		kind := VarReplicable // names resolved via a global fall in as Replicable
		if idx >= 0 {
			kind = outer.bindings[idx].kind
		}
		tree, ty, err := outer.UseVariable(net, name)
		if err != nil {
			return err
		}
		if err := inner.BindVariable(name, kind, tree, ty); err != nil {
			return err
		}
	}
	if err := body(inner); err != nil {
		return err
	}
	return inner.CloseLinearScope(net)
}

// RestoreContext is CaptureContext's inverse, run in the callee's fresh
// environment: it splits a multiplexed tree back into one tree per name
// (via fresh wire pairs linked against the combined tree's shape) and
// rebinds each under its recorded type and kind.
func RestoreContext(net *Net, env *Environment, combined *Tree, names []Name, types []*Type, kinds []VariableKind) error {
	trees := demultiplexTrees(net, combined, len(names))
	for i, n := range names {
		if err := env.BindVariable(n, kinds[i], trees[i], types[i]); err != nil {
			return err
		}
	}
	return nil
}
