package icc

import "testing"

func TestCreateWireSharesID(t *testing.T) {
	net := NewNet(nil)
	a, b := net.CreateWire()
	if a.Kind != TreeWire || b.Kind != TreeWire {
		t.Fatalf("CreateWire should return two Wire trees")
	}
	if a.WireID != b.WireID {
		t.Fatalf("a fresh wire pair must share one id: got %d and %d", a.WireID, b.WireID)
	}
	c, _ := net.CreateWire()
	if c.WireID == a.WireID {
		t.Fatalf("a second CreateWire call must allocate a fresh id")
	}
}

func TestLinkQueuesBothPorts(t *testing.T) {
	net := NewNet(nil)
	x, y := erase(), erase()
	net.Link(x, y)
	p1, ok := net.PopPort()
	if !ok || p1 != x {
		t.Fatalf("expected x to be queued first")
	}
	p2, ok := net.PopPort()
	if !ok || p2 != y {
		t.Fatalf("expected y to be queued second")
	}
	if _, ok := net.PopPort(); ok {
		t.Fatalf("expected the port queue to be empty after draining both")
	}
}

func TestNetPackagesSetAndGet(t *testing.T) {
	net := NewNet(nil)
	tree := erase()
	net.SetPackage(PackageId(3), tree)
	if net.Packages()[PackageId(3)] != tree {
		t.Fatalf("SetPackage/Packages round-trip failed")
	}
	// Pre-registration (spec.md §4.7): SetPackage may be called again under
	// the same id once the real body is ready, overwriting the placeholder.
	real := comb(erase(), erase())
	net.SetPackage(PackageId(3), real)
	if net.Packages()[PackageId(3)] != real {
		t.Fatalf("expected overwrite of pre-registered package id")
	}
}

type countingReducer struct{ calls int }

func (r *countingReducer) Normalize(n *Net) { r.calls++ }

// TestDeepResolveChasesWireChain pins spec.md §4.2: "if both are Wire, they
// are unified so that linking through them is transparent." Two wire pairs
// fused end to end should resolve straight through to whatever the far end
// was finally linked against.
func TestDeepResolveChasesWireChain(t *testing.T) {
	net := NewNet(nil)
	self0, body0 := net.CreateWire()
	self1, other1 := net.CreateWire()
	target := erase()
	net.Link(self1, target) // other1 now stands for target
	net.Link(body0, other1) // self0 now stands for other1, which stands for target
	if got := net.DeepResolve(self0); got != target {
		t.Fatalf("expected DeepResolve to chase through both wire pairs to target, got %+v", got)
	}
}

// TestDeepResolveRecursesIntoChildren pins the same mechanism applied under
// a Comb: each child's Wire indirection should collapse independently.
func TestDeepResolveRecursesIntoChildren(t *testing.T) {
	net := NewNet(nil)
	la, lb := net.CreateWire()
	ra, rb := net.CreateWire()
	leftTarget, rightTarget := erase(), pkgRef(PackageId(7))
	net.Link(la, leftTarget)
	net.Link(ra, rightTarget)
	tree := comb(lb, rb)
	got := net.DeepResolve(tree)
	if got.Kind != TreeComb || got.L != leftTarget || got.R != rightTarget {
		t.Fatalf("expected DeepResolve to collapse both children, got %+v", got)
	}
}

// TestDeepResolveLeavesDanglingWireAlone pins the "unresolved" half of the
// invariant: a Wire whose partner was never linked stays a Wire rather than
// panicking or looping.
func TestDeepResolveLeavesDanglingWireAlone(t *testing.T) {
	net := NewNet(nil)
	a, _ := net.CreateWire()
	got := net.DeepResolve(a)
	if got.Kind != TreeWire {
		t.Fatalf("expected an unlinked wire to resolve to itself, got %v", got.Kind)
	}
}

func TestResolvePackagesRewritesPackageTable(t *testing.T) {
	net := NewNet(nil)
	self, body := net.CreateWire()
	net.SetPackage(PackageId(1), self)
	target := erase()
	net.Link(body, target)
	net.ResolvePackages()
	if net.Packages()[PackageId(1)] != target {
		t.Fatalf("expected ResolvePackages to collapse the package body to target")
	}
}

func TestNetNormalizeDelegatesToReducer(t *testing.T) {
	r := &countingReducer{}
	net := NewNet(r)
	net.Normalize()
	if r.calls != 1 {
		t.Fatalf("Normalize should call the configured Reducer exactly once, got %d", r.calls)
	}

	// A nil reducer is a legal no-op.
	net2 := NewNet(nil)
	net2.Normalize() // must not panic
}
