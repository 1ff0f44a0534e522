package icc

import "testing"

func mkName(s string) Name { return Name{Text: s} }

// TestDualityLaw pins spec.md §8: for every type T, dual(dual(T)) == T
// structurally.
func TestDualityLaw(t *testing.T) {
	branches := NewBranches()
	branches.Insert(mkName("a"), &Type{Kind: TypeBreak})
	branches.Insert(mkName("b"), &Type{Kind: TypeContinue})

	cases := []*Type{
		{Kind: TypeBreak},
		{Kind: TypeContinue},
		{Kind: TypeSend, A: &Type{Kind: TypeBreak}, B: &Type{Kind: TypeContinue}},
		{Kind: TypeReceive, A: &Type{Kind: TypeBreak}, B: &Type{Kind: TypeBreak}},
		{Kind: TypeEither, Branches: branches},
		{Kind: TypeChoice, Branches: branches},
		{Kind: TypeRecursive, Label: namePtr("x"), Inner: &Type{Kind: TypeBreak}},
		{Kind: TypeIterative, Label: namePtr("x"), Inner: &Type{Kind: TypeContinue}},
		{Kind: TypeSelf, Label: namePtr("x")},
		{Kind: TypeSendType, TypeParam: mkName("a"), Inner: &Type{Kind: TypeBreak}},
		{Kind: TypeReceiveType, TypeParam: mkName("a"), Inner: &Type{Kind: TypeContinue}},
	}
	for i, ty := range cases {
		got := ty.Dual().Dual()
		if !got.Equal(ty) {
			t.Errorf("case %d: dual(dual(T)) != T: got %s, want %s", i, PrintType(got), PrintType(ty))
		}
	}
}

func namePtr(s string) *Name {
	n := mkName(s)
	return &n
}

func TestDualSwapsSendReceive(t *testing.T) {
	send := &Type{Kind: TypeSend, A: &Type{Kind: TypeBreak}, B: &Type{Kind: TypeContinue}}
	d := send.Dual()
	if d.Kind != TypeReceive {
		t.Fatalf("dual(Send) kind = %v, want Receive", d.Kind)
	}
	// A's polarity is unchanged, B is dualized (spec.md §3/§4.4).
	if d.A.Kind != TypeBreak {
		t.Fatalf("dual(Send).A = %v, want unchanged Break", d.A.Kind)
	}
	if d.B.Kind != TypeBreak { // dual(Continue) == Break
		t.Fatalf("dual(Send).B = %v, want dualized Break", d.B.Kind)
	}
}

func TestDualChanStripsAndAdds(t *testing.T) {
	inner := &Type{Kind: TypeBreak}
	chanT := &Type{Kind: TypeChan, Inner: inner}
	if chanT.Dual() != inner {
		t.Fatalf("dual(Chan T) should be T itself")
	}
	name := &Type{Kind: TypeName, Name: mkName("X")}
	got := name.Dual()
	if got.Kind != TypeChan || got.Inner != name {
		t.Fatalf("dual(Name) should wrap in Chan, got %+v", got)
	}
}

func TestBranchesInsertionOrderAndOverwrite(t *testing.T) {
	b := NewBranches()
	b.Insert(mkName("x"), &Type{Kind: TypeBreak})
	b.Insert(mkName("y"), &Type{Kind: TypeContinue})
	b.Insert(mkName("x"), &Type{Kind: TypeContinue}) // overwrite in place
	names := b.Names()
	if len(names) != 2 || names[0].Text != "x" || names[1].Text != "y" {
		t.Fatalf("expected order [x y] preserved across overwrite, got %v", names)
	}
	ty, _ := b.Get(mkName("x"))
	if ty.Kind != TypeContinue {
		t.Fatalf("expected x's type to be overwritten to Continue, got %v", ty.Kind)
	}
}
