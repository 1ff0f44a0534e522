package icc

// TreeKind tags the alternative a Tree node holds: the five interaction
// combinator primitives spec.md §3/§4.2 names.
type TreeKind int

const (
	// TreeErase is the nullary eraser (spec.md: "E").
	TreeErase TreeKind = iota
	// TreeComb is a binary combinator node with two sub-trees (spec.md: "C(l,r)").
	TreeComb
	// TreeDup is a duplication/dereliction node (spec.md: "D(a,b)").
	TreeDup
	// TreeWire is a half-edge referencing a port by id (spec.md: "Wire(id)").
	TreeWire
	// TreePackage references a compiled global by id (spec.md: "Package(id)").
	TreePackage
)

// PackageId names a compiled global in a Net's package table (spec.md §4.7).
type PackageId int

// Tree is an interaction-combinator node or leaf.
type Tree struct {
	Kind TreeKind

	L, R *Tree // TreeComb
	A, B *Tree // TreeDup

	WireID int // TreeWire
	Pkg    PackageId // TreePackage
}

func erase() *Tree { return &Tree{Kind: TreeErase} }

func comb(l, r *Tree) *Tree { return &Tree{Kind: TreeComb, L: l, R: r} }

func dup(a, b *Tree) *Tree { return &Tree{Kind: TreeDup, A: a, B: b} }

func wire(id int) *Tree { return &Tree{Kind: TreeWire, WireID: id} }

func pkgRef(id PackageId) *Tree { return &Tree{Kind: TreePackage, Pkg: id} }

// Reducer normalizes a Net. Its implementation — the confluent
// graph-rewriting engine that actually fires interactions — is out of
// scope here (spec.md §1/§6): the compiler only needs to be able to hand
// a Net to one.
type Reducer interface {
	Normalize(n *Net)
}

// Net holds the wire pairs created during compilation of one package body,
// plus a queue of tree ports awaiting connection, plus the package table a
// compiled program's global references resolve through. It mirrors
// original_source/src/icombs/compiler.rs's Net: create_wire/Net.ports/
// Net.packages, with ports represented here as a plain slice-backed deque of
// *Tree — the pack carries no queue/deque library, and this one is small and
// append/pop-front only (see DESIGN.md).
type Net struct {
	nextWire int
	ports    []*Tree

	packages map[PackageId]*Tree

	// pairOf and resolved implement spec.md §4.2's "if both are Wire, they
	// are unified so that linking through them is transparent": pairOf
	// records each wire half's sibling (set once, at CreateWire), and
	// resolved records what the *other* half of a linked wire now stands
	// for (set by Link). Neither performs combinator rewriting — only the
	// administrative step of collapsing a Wire indirection to whatever it
	// was ultimately connected to.
	pairOf   map[*Tree]*Tree
	resolved map[*Tree]*Tree

	reducer Reducer
}

// NewNet returns an empty Net, optionally wired to a Reducer for
// normalization after compilation (nil is a legal no-op reducer).
func NewNet(r Reducer) *Net {
	return &Net{
		packages: make(map[PackageId]*Tree),
		pairOf:   make(map[*Tree]*Tree),
		resolved: make(map[*Tree]*Tree),
		reducer:  r,
	}
}

// CreateWire allocates a fresh wire pair: two half-edges sharing one id,
// which link() will later consume exactly once each (spec.md §4.2
// "create_wire").
func (n *Net) CreateWire() (*Tree, *Tree) {
	id := n.nextWire
	n.nextWire++
	x, y := wire(id), wire(id)
	n.pairOf[x] = y
	n.pairOf[y] = x
	return x, y
}

// Link records that tree a and tree b should be connected once
// normalization runs, by pushing both onto the ports queue. Unlike wire ids,
// the trees pushed here may be any node kind (Erase/Comb/Dup/Wire/Package) —
// compile_expression/compile_command routinely link a freshly built
// combinator node directly against a variable's handle tree.
//
// When one side is a Wire half, the *other* half of that same wire now
// transparently stands for whatever it was linked against (spec.md §4.2):
// this is bookkeeping for ResolvePackages, not a combinator interaction.
func (n *Net) Link(a, b *Tree) {
	n.PushPort(a)
	n.PushPort(b)
	if a.Kind == TreeWire {
		if pair, ok := n.pairOf[a]; ok {
			n.resolved[pair] = b
		}
	}
	if b.Kind == TreeWire {
		if pair, ok := n.pairOf[b]; ok {
			n.resolved[pair] = a
		}
	}
}

// resolveWire chases a Wire node through n.resolved until it reaches a
// non-Wire tree or a still-dangling (unresolved) wire half.
func (n *Net) resolveWire(t *Tree) *Tree {
	visited := map[*Tree]bool{}
	cur := t
	for cur.Kind == TreeWire {
		if visited[cur] {
			return cur
		}
		visited[cur] = true
		next, ok := n.resolved[cur]
		if !ok {
			return cur
		}
		cur = next
	}
	return cur
}

// DeepResolve rewrites every Wire node reachable from t to whatever it was
// ultimately linked against, recursing into Comb/Dup children. It leaves
// genuine combinator redexes (a Dup facing a Comb, say) untouched — that
// rewriting is the Reducer's job, out of scope here.
func (n *Net) DeepResolve(t *Tree) *Tree {
	if t == nil {
		return t
	}
	switch t.Kind {
	case TreeWire:
		r := n.resolveWire(t)
		if r.Kind == TreeWire {
			return r
		}
		return n.DeepResolve(r)
	case TreeComb:
		return comb(n.DeepResolve(t.L), n.DeepResolve(t.R))
	case TreeDup:
		return dup(n.DeepResolve(t.A), n.DeepResolve(t.B))
	default:
		return t
	}
}

// ResolvePackages runs DeepResolve over every registered package body in
// place, collapsing administrative wire indirections left over from
// compilation before a Reducer (or the canonical printer) ever sees them.
func (n *Net) ResolvePackages() {
	for id, tree := range n.packages {
		n.packages[id] = n.DeepResolve(tree)
	}
}

// PushPort appends a tree to the port queue.
func (n *Net) PushPort(t *Tree) {
	n.ports = append(n.ports, t)
}

// PopPort removes and returns the oldest queued port, for a Reducer (or a
// test) that wants FIFO access to Link's accumulated pairs.
func (n *Net) PopPort() (*Tree, bool) {
	if len(n.ports) == 0 {
		return nil, false
	}
	t := n.ports[0]
	n.ports = n.ports[1:]
	return t, true
}

// Packages exposes the package table so compile_global (global.go) can
// register a freshly compiled body under its PackageId, and compile_command
// can reference it back by id for recursive/global lookups.
func (n *Net) Packages() map[PackageId]*Tree {
	return n.packages
}

// SetPackage records tree as the compiled body for id, replacing any prior
// (pre-registration) placeholder — compile_global pre-registers id before
// compiling its own body so self-recursive references resolve (spec.md
// §4.7).
func (n *Net) SetPackage(id PackageId, tree *Tree) {
	n.packages[id] = tree
}

// Normalize hands the net to its Reducer, a no-op if none was configured.
func (n *Net) Normalize() {
	if n.reducer != nil {
		n.reducer.Normalize(n)
	}
}
