package icc

import "testing"

func TestMultiplexTreesEmptyIsErase(t *testing.T) {
	got := multiplexTrees(nil)
	if got.Kind != TreeErase {
		t.Fatalf("multiplexTrees(nil).Kind = %v, want TreeErase", got.Kind)
	}
}

func TestMultiplexTreesSingleIsIdentity(t *testing.T) {
	leaf := erase()
	got := multiplexTrees([]*Tree{leaf})
	if got != leaf {
		t.Fatalf("multiplexTrees of one element should return it unchanged")
	}
}

func TestMultiplexTreesBalancedSplit(t *testing.T) {
	a, b, c := erase(), erase(), erase()
	got := multiplexTrees([]*Tree{a, b, c})
	if got.Kind != TreeComb {
		t.Fatalf("expected a Comb root, got %v", got.Kind)
	}
	// 3 elements split as [1 | 2]: left is the first, right combines the rest.
	if got.L != a {
		t.Fatalf("expected left leaf to be the first element")
	}
	if got.R.Kind != TreeComb || got.R.L != b || got.R.R != c {
		t.Fatalf("expected right subtree to combine the remaining two, got %+v", got.R)
	}
}

func TestDemultiplexTreesInverse(t *testing.T) {
	net := NewNet(nil)
	a, b, c := wire(100), wire(101), wire(102)
	combined := multiplexTrees([]*Tree{a, b, c})
	leaves := demultiplexTrees(net, combined, 3)
	if len(leaves) != 3 {
		t.Fatalf("got %d leaves, want 3", len(leaves))
	}
	// demultiplexTrees links combined against a freshly built matching shape
	// and hands back the other side of each fresh wire pair.
	var linked []*Tree
	for {
		p, ok := net.PopPort()
		if !ok {
			break
		}
		linked = append(linked, p)
	}
	if len(linked) != 2 {
		t.Fatalf("expected exactly one Link call (2 ports), got %d", len(linked))
	}
}

// TestChoiceInstanceWrapsWireAroundInner pins spec.md §4.5's wire-pair
// wrapping even at width 1: the chosen leaf is C(w1, inner), not inner
// bare, and the whole multiplex is wrapped again as C(w0, ...).
func TestChoiceInstanceWrapsWireAroundInner(t *testing.T) {
	net := NewNet(nil)
	inner := erase()
	got := choiceInstance(net, inner, 0, 1)
	if got.Kind != TreeComb || got.L.Kind != TreeWire {
		t.Fatalf("choiceInstance(net,inner,0,1) = %+v, want outer C(w0, ...)", got)
	}
	leaf := got.R
	if leaf.Kind != TreeComb || leaf.L.Kind != TreeWire || leaf.R != inner {
		t.Fatalf("choiceInstance(net,inner,0,1) inner slot = %+v, want C(w1, inner)", leaf)
	}
}

// TestChoiceInstancePositionalEncoding pins spec.md §8's end-to-end
// scenario 4: choosing branch index 0 of 2 puts the wrapped leaf first and
// Erase second; choosing index 1 puts it second, both under one more
// outer wire-wrapped C layer (spec.md §4.5, original_source/src/icombs/
// compiler.rs:282-287).
func TestChoiceInstancePositionalEncoding(t *testing.T) {
	net := NewNet(nil)
	inner := wire(7)

	left := choiceInstance(net, inner, 0, 2)
	if left.Kind != TreeComb || left.L.Kind != TreeWire {
		t.Fatalf("choiceInstance(net,inner,0,2) = %+v, want outer C(w0, ...)", left)
	}
	combined := left.R
	if combined.Kind != TreeComb {
		t.Fatalf("expected multiplexed Comb root, got %+v", combined)
	}
	if combined.L.Kind != TreeComb || combined.L.R != inner || combined.L.L.Kind != TreeWire {
		t.Fatalf("choiceInstance(net,inner,0,2) left slot = %+v, want C(w1, inner)", combined.L)
	}
	if combined.R.Kind != TreeErase {
		t.Fatalf("choiceInstance(net,inner,0,2) right slot = %+v, want Erase", combined.R)
	}

	right := choiceInstance(net, inner, 1, 2)
	combinedR := right.R
	if combinedR.L.Kind != TreeErase {
		t.Fatalf("choiceInstance(net,inner,1,2) left slot = %+v, want Erase", combinedR.L)
	}
	if combinedR.R.Kind != TreeComb || combinedR.R.R != inner || combinedR.R.L.Kind != TreeWire {
		t.Fatalf("choiceInstance(net,inner,1,2) right slot = %+v, want C(w1, inner)", combinedR.R)
	}
}

func TestEitherInstanceWrapsCtxOutAroundMultiplex(t *testing.T) {
	ctxOut := wire(99)
	a, b := erase(), erase()
	got := eitherInstance(ctxOut, []*Tree{a, b})
	if got.Kind != TreeComb || got.L != ctxOut {
		t.Fatalf("eitherInstance(ctxOut, cases) = %+v, want outer C(ctxOut, ...)", got)
	}
	want := multiplexTrees([]*Tree{a, b})
	if got.R.Kind != want.Kind || got.R.L != want.L || got.R.R != want.R {
		t.Fatalf("eitherInstance's inner shape should match multiplexTrees(cases)")
	}
}

func TestDuplicateTreeZeroErases(t *testing.T) {
	net := NewNet(nil)
	tree := wire(1)
	out := duplicateTree(net, tree, 0)
	if out != nil {
		t.Fatalf("duplicateTree(tree, 0) should return nil, got %v", out)
	}
	a, ok := net.PopPort()
	if !ok || a != tree {
		t.Fatalf("expected tree to be linked to erasure")
	}
	b, ok := net.PopPort()
	if !ok || b.Kind != TreeErase {
		t.Fatalf("expected the other port to be an Erase leaf, got %v", b)
	}
}

func TestDuplicateTreeOneIsIdentity(t *testing.T) {
	net := NewNet(nil)
	tree := wire(1)
	out := duplicateTree(net, tree, 1)
	if len(out) != 1 || out[0] != tree {
		t.Fatalf("duplicateTree(tree, 1) should return [tree] unchanged")
	}
}

func TestDuplicateTreeN(t *testing.T) {
	net := NewNet(nil)
	tree := wire(1)
	out := duplicateTree(net, tree, 3)
	if len(out) != 3 {
		t.Fatalf("got %d handles, want 3", len(out))
	}
	// Each of the n-1 splits inserts one Dup node (2 Link calls == 4 ports).
	var ports int
	for {
		if _, ok := net.PopPort(); !ok {
			break
		}
		ports++
	}
	if ports != 4 {
		t.Fatalf("expected 4 queued ports (2 Link calls for 2 dup nodes), got %d", ports)
	}
}
