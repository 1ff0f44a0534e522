package icc

import "testing"

func TestBindVariableDuplicateFails(t *testing.T) {
	env := NewEnvironment()
	if err := env.BindVariable(mkName("x"), VarLinear, erase(), nil); err != nil {
		t.Fatal(err)
	}
	err := env.BindVariable(mkName("x"), VarLinear, erase(), nil)
	if err == nil {
		t.Fatal("expected DuplicateBindingError")
	}
	if _, ok := err.(*DuplicateBindingError); !ok {
		t.Fatalf("expected *DuplicateBindingError, got %T", err)
	}
}

func TestUseVariableLinearConsumesBinding(t *testing.T) {
	net := NewNet(nil)
	env := NewEnvironment()
	tree := wire(1)
	if err := env.BindVariable(mkName("x"), VarLinear, tree, nil); err != nil {
		t.Fatal(err)
	}
	got, _, err := env.UseVariable(net, mkName("x"))
	if err != nil {
		t.Fatal(err)
	}
	if got != tree {
		t.Fatalf("Linear use should hand back the original tree unchanged")
	}
	if _, _, err := env.UseVariable(net, mkName("x")); err == nil {
		t.Fatal("expected UnknownVariableError: x was already consumed")
	}
}

// TestUseVariableReplicableSplitsOnce pins spec.md §8: referencing a
// Replicable binding twice inserts exactly one D node on the first reuse.
func TestUseVariableReplicableSplitsOnce(t *testing.T) {
	net := NewNet(nil)
	env := NewEnvironment()
	tree := wire(1)
	if err := env.BindVariable(mkName("g"), VarReplicable, tree, nil); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.UseVariable(net, mkName("g")); err != nil {
		t.Fatal(err)
	}
	// First use: exactly one Link call queued (2 ports), linking a Dup node
	// against the original handle.
	var ports []*Tree
	for {
		p, ok := net.PopPort()
		if !ok {
			break
		}
		ports = append(ports, p)
	}
	if len(ports) != 2 {
		t.Fatalf("expected exactly 2 ports queued (one Link call) after first reuse, got %d", len(ports))
	}
	var sawDup bool
	for _, p := range ports {
		if p.Kind == TreeDup {
			sawDup = true
		}
	}
	if !sawDup {
		t.Fatalf("expected a TreeDup node among the queued ports, got %+v", ports)
	}
	// The binding must remain live for further uses.
	if _, _, err := env.UseVariable(net, mkName("g")); err != nil {
		t.Fatal("replicable binding should still be usable after one reuse:", err)
	}
}

func TestCloseLinearScopeFailsOnUnconsumedLinear(t *testing.T) {
	net := NewNet(nil)
	env := NewEnvironment()
	if err := env.BindVariable(mkName("x"), VarLinear, erase(), nil); err != nil {
		t.Fatal(err)
	}
	err := env.CloseLinearScope(net)
	if err == nil {
		t.Fatal("expected UnclosedLinearError")
	}
	if _, ok := err.(*UnclosedLinearError); !ok {
		t.Fatalf("expected *UnclosedLinearError, got %T", err)
	}
}

// TestCloseLinearScopeErasesReplicableResidual pins spec.md §8: a global
// referenced zero times still emits an Erase link for its residual handle.
func TestCloseLinearScopeErasesReplicableResidual(t *testing.T) {
	net := NewNet(nil)
	env := NewEnvironment()
	tree := wire(1)
	if err := env.BindVariable(mkName("g"), VarReplicable, tree, nil); err != nil {
		t.Fatal(err)
	}
	if err := env.CloseLinearScope(net); err != nil {
		t.Fatal(err)
	}
	a, ok := net.PopPort()
	if !ok {
		t.Fatal("expected a Link call erasing the unused replicable binding")
	}
	b, _ := net.PopPort()
	if a != tree && b != tree {
		t.Fatalf("expected the original tree to be one side of the erase link")
	}
	if a.Kind != TreeErase && b.Kind != TreeErase {
		t.Fatalf("expected the other side to be an Erase leaf")
	}
}

func TestUnknownVariableFails(t *testing.T) {
	net := NewNet(nil)
	env := NewEnvironment()
	if _, _, err := env.UseVariable(net, mkName("nope")); err == nil {
		t.Fatal("expected UnknownVariableError")
	} else if _, ok := err.(*UnknownVariableError); !ok {
		t.Fatalf("expected *UnknownVariableError, got %T", err)
	}
}

func TestUseVariableResolvesGlobal(t *testing.T) {
	net := NewNet(nil)
	env := NewEnvironment()
	called := false
	env.resolveGlobal = func(n Name) (*Tree, *Type, error) {
		called = true
		return pkgRef(PackageId(5)), &Type{Kind: TypeBreak}, nil
	}
	tree, ty, err := env.UseVariable(net, mkName("g"))
	if err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("expected resolveGlobal to be invoked on a miss")
	}
	if tree.Kind != TreeWire || ty.Kind != TypeBreak {
		t.Fatalf("expected one replicable use (a wire) of type Break, got tree=%+v ty=%+v", tree, ty)
	}
}

// TestWithCapturesUnclosedLinearCapture pins spec.md §8: a Fork body that
// binds a channel (or captures a linear one) but never consumes it is a
// fatal UnclosedLinearError.
func TestWithCapturesUnclosedLinearCapture(t *testing.T) {
	net := NewNet(nil)
	outer := NewEnvironment()
	if err := outer.BindVariable(mkName("cap"), VarLinear, wire(1), nil); err != nil {
		t.Fatal(err)
	}
	err := WithCaptures(net, outer, []Name{mkName("cap")}, nil, func(inner *Environment) error {
		return nil // never consumes "cap"
	})
	if err == nil {
		t.Fatal("expected UnclosedLinearError")
	}
	if _, ok := err.(*UnclosedLinearError); !ok {
		t.Fatalf("expected *UnclosedLinearError, got %T", err)
	}
}

func TestWithCapturesErasesReplicableResidual(t *testing.T) {
	net := NewNet(nil)
	outer := NewEnvironment()
	if err := outer.BindVariable(mkName("g"), VarReplicable, wire(1), nil); err != nil {
		t.Fatal(err)
	}
	err := WithCaptures(net, outer, []Name{mkName("g")}, nil, func(inner *Environment) error {
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCaptureRestoreContextRoundTrip(t *testing.T) {
	net := NewNet(nil)
	env := NewEnvironment()
	t1, t2 := wire(1), wire(2)
	if err := env.BindVariable(mkName("a"), VarLinear, t1, &Type{Kind: TypeBreak}); err != nil {
		t.Fatal(err)
	}
	if err := env.BindVariable(mkName("b"), VarLinear, t2, &Type{Kind: TypeContinue}); err != nil {
		t.Fatal(err)
	}
	names := env.LiveNames()
	combined, types, kinds, err := env.CaptureContext(net, names)
	if err != nil {
		t.Fatal(err)
	}
	dest := NewEnvironment()
	if err := RestoreContext(net, dest, combined, names, types, kinds); err != nil {
		t.Fatal(err)
	}
	for _, n := range names {
		if _, _, err := dest.UseVariable(net, n); err != nil {
			t.Fatalf("expected %s to be restored and usable: %v", n.Text, err)
		}
	}
}
