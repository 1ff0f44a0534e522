package icc

// TypeKind tags the alternative a Type holds, mirroring spec.md §3's
// tagged-variant data model.
type TypeKind int

const (
	TypeName TypeKind = iota
	TypeChan
	TypeSend
	TypeReceive
	TypeEither
	TypeChoice
	TypeBreak
	TypeContinue
	TypeRecursive
	TypeIterative
	TypeSelf
	TypeSendType
	TypeReceiveType
)

// Branches is an insertion-ordered Name -> Type map. Plain Go maps cannot be
// used here: spec.md §3's invariant requires branch order to be preserved,
// because it determines the positional encoding used by choice_instance
// (spec.md §4.5).
type Branches struct {
	names []Name
	types []*Type
}

// NewBranches builds an empty ordered branch map.
func NewBranches() *Branches {
	return &Branches{}
}

// Insert appends (name, t) if name is new, or overwrites the type in place
// if name was already present — insertion order of the *first* occurrence is
// preserved, matching IndexMap::insert semantics the original parser relies
// on (original_source/src/par/parser.rs's typ_either/typ_choice folds).
func (b *Branches) Insert(name Name, t *Type) {
	for i, n := range b.names {
		if n.Eq(name) {
			b.types[i] = t
			return
		}
	}
	b.names = append(b.names, name)
	b.types = append(b.types, t)
}

// Get looks up a branch's type by name.
func (b *Branches) Get(name Name) (*Type, bool) {
	for i, n := range b.names {
		if n.Eq(name) {
			return b.types[i], true
		}
	}
	return nil, false
}

// IndexOf returns the position of name in declaration order, or -1.
func (b *Branches) IndexOf(name Name) int {
	for i, n := range b.names {
		if n.Eq(name) {
			return i
		}
	}
	return -1
}

// Len returns the number of branches.
func (b *Branches) Len() int { return len(b.names) }

// Names returns the branch names in declaration order. The returned slice
// must not be mutated by callers.
func (b *Branches) Names() []Name { return b.names }

// Each calls f for every (name, type) pair in declaration order.
func (b *Branches) Each(f func(Name, *Type)) {
	for i, n := range b.names {
		f(n, b.types[i])
	}
}

// Type is a session type, a tagged variant over the alternatives of
// spec.md §3.
type Type struct {
	Kind TypeKind
	Loc  Loc

	// TypeName
	Name     Name
	TypeArgs []*Type

	// TypeChan, TypeRecursive, TypeIterative, TypeSendType/TypeReceiveType inner body
	Inner *Type

	// TypeSend, TypeReceive
	A *Type
	B *Type

	// TypeEither, TypeChoice
	Branches *Branches

	// TypeRecursive, TypeIterative, TypeSelf
	Label *Name

	// TypeSendType, TypeReceiveType
	TypeParam Name
}

// Dual computes the session-typed dual of t: Send<->Receive, Choice<->Either,
// Break<->Continue, Chan stripped/added, structurally distributed otherwise.
// Grounded on spec.md §3/§4.4 ("dual(T) swaps ... and distributes
// structurally").
func (t *Type) Dual() *Type {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case TypeChan:
		return t.Inner
	case TypeSend:
		return &Type{Kind: TypeReceive, Loc: t.Loc, A: t.A, B: t.B.Dual()}
	case TypeReceive:
		return &Type{Kind: TypeSend, Loc: t.Loc, A: t.A, B: t.B.Dual()}
	case TypeEither:
		return &Type{Kind: TypeChoice, Loc: t.Loc, Branches: dualBranches(t.Branches)}
	case TypeChoice:
		return &Type{Kind: TypeEither, Loc: t.Loc, Branches: dualBranches(t.Branches)}
	case TypeBreak:
		return &Type{Kind: TypeContinue, Loc: t.Loc}
	case TypeContinue:
		return &Type{Kind: TypeBreak, Loc: t.Loc}
	case TypeRecursive:
		return &Type{Kind: TypeIterative, Loc: t.Loc, Label: t.Label, Inner: t.Inner.Dual()}
	case TypeIterative:
		return &Type{Kind: TypeRecursive, Loc: t.Loc, Label: t.Label, Inner: t.Inner.Dual()}
	case TypeSelf:
		return &Type{Kind: TypeSelf, Loc: t.Loc, Label: t.Label}
	case TypeSendType:
		return &Type{Kind: TypeReceiveType, Loc: t.Loc, TypeParam: t.TypeParam, Inner: t.Inner.Dual()}
	case TypeReceiveType:
		return &Type{Kind: TypeSendType, Loc: t.Loc, TypeParam: t.TypeParam, Inner: t.Inner.Dual()}
	case TypeName:
		// A bare reference to a named type is dualized by wrapping it in a
		// Chan: dual(Chan T) = T, so dual(Name) must add the Chan it is the
		// absence of.
		return &Type{Kind: TypeChan, Loc: t.Loc, Inner: t}
	default:
		return t
	}
}

func dualBranches(b *Branches) *Branches {
	out := NewBranches()
	b.Each(func(n Name, ty *Type) {
		out.Insert(n, ty.Dual())
	})
	return out
}

// Equal performs a structural comparison of two types, ignoring Loc. It is
// used by tests that check the duality law dual(dual(T)) == T.
func (t *Type) Equal(other *Type) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case TypeName:
		if !t.Name.Eq(other.Name) || len(t.TypeArgs) != len(other.TypeArgs) {
			return false
		}
		for i := range t.TypeArgs {
			if !t.TypeArgs[i].Equal(other.TypeArgs[i]) {
				return false
			}
		}
		return true
	case TypeChan, TypeRecursive, TypeIterative, TypeSendType, TypeReceiveType:
		return t.Inner.Equal(other.Inner)
	case TypeSend, TypeReceive:
		return t.A.Equal(other.A) && t.B.Equal(other.B)
	case TypeEither, TypeChoice:
		if t.Branches.Len() != other.Branches.Len() {
			return false
		}
		for i, n := range t.Branches.Names() {
			on := other.Branches.Names()[i]
			if !n.Eq(on) {
				return false
			}
			ta, _ := t.Branches.Get(n)
			tb, _ := other.Branches.Get(on)
			if !ta.Equal(tb) {
				return false
			}
		}
		return true
	case TypeBreak, TypeContinue, TypeSelf:
		return true
	default:
		return false
	}
}
