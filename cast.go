package icc

// cast coerces tree, typed from, into a value of type to (spec.md §4.4
// "cast(tt, to)"). Every legal coercion this compiler materializes is
// structural: Send->Send and Receive->Receive recurse into both halves
// through fresh wire pairs (the original is linked against C(fst, snd) and
// C(cast(fst'), cast(snd')) is returned); Either/Choice branch reordering
// or widening is rebuilt per source branch through choiceInstance/
// eitherInstance, the same positional dispatch Choose/Match use; and any
// two types that already agree cast by identity. Anything else reports
// CastNotImplementedError (spec.md §4.4/§7).
func cast(net *Net, tree *Tree, from, to *Type) (*Tree, error) {
	if from.Equal(to) {
		return tree, nil
	}
	if from.Kind != to.Kind {
		return nil, &CastNotImplementedError{From: from, To: to}
	}
	switch from.Kind {
	case TypeSend, TypeReceive:
		fst0, fst1 := net.CreateWire()
		snd0, snd1 := net.CreateWire()
		net.Link(tree, comb(fst1, snd1))
		a, err := cast(net, fst0, from.A, to.A)
		if err != nil {
			return nil, err
		}
		b, err := cast(net, snd0, from.B, to.B)
		if err != nil {
			return nil, err
		}
		return comb(a, b), nil
	case TypeEither, TypeChoice:
		return castBranches(net, tree, from, to)
	default:
		return nil, &CastNotImplementedError{From: from, To: to}
	}
}

// castBranches reorders (and recursively recasts) an Either/Choice value's
// branches, grounded on original_source/src/icombs/compiler.rs:208-225: for
// each from-branch, build a fresh wire pair typed at that branch, route one
// half through choiceInstance at that branch's index within to's order, and
// expose the other half (recast to the matching to-branch's type) as the
// case's value. Combine all per-branch cases via one eitherInstance and
// link the incoming tree against the result: one choiceInstance per source
// branch and a single eitherInstance overall, matching the same positional
// encoding choiceInstance/eitherInstance already give Choose/Match. The
// target may have more branches than the source; a source branch missing
// from the target is a BranchMissingError.
func castBranches(net *Net, tree *Tree, from, to *Type) (*Tree, error) {
	fromNames := from.Branches.Names()
	width := to.Branches.Len()

	ctxSelf, ctxOther := net.CreateWire()
	cases := make([]*Tree, len(fromNames))
	for i, n := range fromNames {
		fromTy, _ := from.Branches.Get(n)
		index := to.Branches.IndexOf(n)
		if index < 0 {
			return nil, &BranchMissingError{Branch: n}
		}
		toTy, _ := to.Branches.Get(n)

		valueSelf, valueOther := net.CreateWire()
		payload, err := cast(net, valueSelf, fromTy, toTy)
		if err != nil {
			return nil, err
		}
		cases[i] = comb(choiceInstance(net, valueOther, index, width), payload)
	}
	net.Link(tree, eitherInstance(ctxSelf, cases))
	return ctxOther, nil
}
