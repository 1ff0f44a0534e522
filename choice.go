package icc

// multiplexTrees folds n trees into one via a balanced binary tree of C
// nodes (spec.md §4.5): depth is O(log n) rather than a linear chain, so a
// wide Match/Fork capture list doesn't degrade into a deep right-leaning
// structure. An empty list multiplexes to a bare Erase leaf, the additive
// identity a Reducer can always interact against harmlessly.
func multiplexTrees(trees []*Tree) *Tree {
	switch len(trees) {
	case 0:
		return erase()
	case 1:
		return trees[0]
	default:
		mid := len(trees) / 2
		return comb(multiplexTrees(trees[:mid]), multiplexTrees(trees[mid:]))
	}
}

// demultiplexTrees is multiplexTrees' inverse on the receiving side: it
// builds a matching balanced shape out of n fresh wire pairs, links the
// combined tree against it, and returns the pairs' other ends as the n
// individual values (used by RestoreContext to unpack a captured
// parameter tree).
func demultiplexTrees(net *Net, combined *Tree, n int) []*Tree {
	shape, leaves := buildReceiveShape(net, n)
	net.Link(combined, shape)
	return leaves
}

func buildReceiveShape(net *Net, n int) (*Tree, []*Tree) {
	switch n {
	case 0:
		return erase(), nil
	case 1:
		a, b := net.CreateWire()
		return a, []*Tree{b}
	default:
		mid := n / 2
		lshape, lleaves := buildReceiveShape(net, mid)
		rshape, rleaves := buildReceiveShape(net, n-mid)
		return comb(lshape, rshape), append(lleaves, rleaves...)
	}
}

// choiceInstance builds the sender's side of a positional dispatch over
// width alternatives (spec.md §4.5 "choice_instance", grounded on
// original_source/src/icombs/compiler.rs:282-287): a fresh wire pair
// (w0, w1) is created, inner is wrapped as C(w1, inner) at slot index of
// a width-long Erase-filled multiplex, and the whole thing is wrapped one
// more layer as C(w0, combined). Used by CmdChoose to commit to one
// branch of a Choice type, and by castBranches to re-encode a cast
// branch's payload at its new index.
func choiceInstance(net *Net, inner *Tree, index, width int) *Tree {
	w0, w1 := net.CreateWire()
	trees := make([]*Tree, width)
	for i := range trees {
		trees[i] = erase()
	}
	trees[index] = comb(w1, inner)
	return comb(w0, multiplexTrees(trees))
}

// eitherInstance builds the receiver's side of the same positional
// dispatch (spec.md §4.5 "either_instance", grounded on
// original_source/src/icombs/compiler.rs:288-292): cases are multiplexed
// and the result wrapped in one more C built from ctxOut, matching
// choiceInstance's outer wire-pair layer so a Reducer unwinds both sides
// in lockstep.
func eitherInstance(ctxOut *Tree, cases []*Tree) *Tree {
	return comb(ctxOut, multiplexTrees(cases))
}

// duplicateTree returns n handles to tree, each independently usable, by
// chaining n-1 duplication nodes (spec.md §3 "D(a,b)"). Used by CmdMatch
// (SPEC_FULL.md Open Question resolution #3) to give every case branch its
// own copy of the multiplexed ambient context, the same way a Replicable
// variable's handle is split on each use (env.go's UseVariable) — only
// instead of one extra use, Match needs one per case, produced up front.
// n==0 erases tree outright (a Match with no cases still owns the tree and
// must dispose of it); n==1 returns tree unchanged.
func duplicateTree(net *Net, tree *Tree, n int) []*Tree {
	if n == 0 {
		net.Link(tree, erase())
		return nil
	}
	out := make([]*Tree, n)
	cur := tree
	for i := 0; i < n-1; i++ {
		outA, outB := net.CreateWire()
		restA, restB := net.CreateWire()
		net.Link(dup(outA, restA), cur)
		out[i] = outB
		cur = restB
	}
	out[n-1] = cur
	return out
}
