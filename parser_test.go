package icc

import "testing"

func parseProgram(t *testing.T, src string) *Program {
	t.Helper()
	prog, err := ParseProgram(lexTest(src))
	if err != nil {
		t.Fatalf("ParseProgram(%q): %v", src, err)
	}
	return prog
}

func parseType(t *testing.T, src string) *Type {
	t.Helper()
	p := NewParser(lexTest(src))
	ty, err := p.typ()
	if err != nil {
		t.Fatalf("typ(%q): %v", src, err)
	}
	return ty
}

func TestProgramTopLevelItems(t *testing.T) {
	prog := parseProgram(t, `
		type Pair = (!) !
		dec x : !
		def x = chan a { a! }
	`)
	if _, ok := prog.TypeDefs["Pair"]; !ok {
		t.Fatal("expected type def Pair")
	}
	if _, ok := prog.Declarations["x"]; !ok {
		t.Fatal("expected declaration x")
	}
	if _, ok := prog.Definitions["x"]; !ok {
		t.Fatal("expected definition x")
	}
}

func TestProgramUnrecognizedItemFails(t *testing.T) {
	_, err := ParseProgram(lexTest(`garbage`))
	if err == nil {
		t.Fatal("expected error for a non-item token stream remainder")
	}
}

func TestProgramDuplicateDefOverrides(t *testing.T) {
	prog := parseProgram(t, `
		def foo = chan a { a! }
		def foo = chan b { b! }
	`)
	if len(prog.DefinitionOrder) != 1 {
		t.Fatalf("expected one DefinitionOrder entry for foo, got %d", len(prog.DefinitionOrder))
	}
	if prog.Definitions["foo"].ChanName_() != "b" {
		t.Fatalf("expected second definition to win, got chan name %q", prog.Definitions["foo"].ChanName_())
	}
}

// ChanName_ is a tiny test-only accessor avoiding a type switch at every call
// site above; defined here rather than on Expression itself since nothing in
// production code needs it.
func (e *Expression) ChanName_() string {
	if e.Kind == ExprFork {
		return e.ChanName.Text
	}
	return ""
}

func TestTypeGrammarDispatch(t *testing.T) {
	cases := []struct {
		src  string
		kind TypeKind
	}{
		{"!", TypeBreak},
		{"?", TypeContinue},
		{"chan !", TypeChan},
		{"either { .a !, .b ? }", TypeEither},
		{"{ .a !, .b ? }", TypeChoice},
		{"recursive !", TypeRecursive},
		{"iterative !", TypeIterative},
		{"self", TypeSelf},
		{"Foo", TypeName},
		{"(!) !", TypeSend},
		{"[!] !", TypeReceive},
		{"(type a) !", TypeSendType},
		{"[type a] !", TypeReceiveType},
	}
	for _, c := range cases {
		ty := parseType(t, c.src)
		if ty.Kind != c.kind {
			t.Errorf("typ(%q).Kind = %v, want %v", c.src, ty.Kind, c.kind)
		}
	}
}

// TestTypeQualifiedBeforeUnqualified pins spec.md §4.1's disambiguation
// rule: "(type ...)"/"[type ...]" must be tried before the unqualified
// Send/Receive forms that also start with the same bracket.
func TestTypeQualifiedBeforeUnqualified(t *testing.T) {
	send := parseType(t, "(type a) !")
	if send.Kind != TypeSendType {
		t.Fatalf("expected TypeSendType, got %v", send.Kind)
	}
	recv := parseType(t, "[type a] !")
	if recv.Kind != TypeReceiveType {
		t.Fatalf("expected TypeReceiveType, got %v", recv.Kind)
	}
	// The unqualified forms must still work once "type" isn't next.
	plainSend := parseType(t, "(!) !")
	if plainSend.Kind != TypeSend {
		t.Fatalf("expected TypeSend, got %v", plainSend.Kind)
	}
}

// TestMultiArgSendRightFolds pins spec.md §4.1: "(a, b, c) T" right-folds
// into nested binary Send nodes sharing the outer span.
func TestMultiArgSendRightFolds(t *testing.T) {
	ty := parseType(t, "(!, ?, !) ?")
	if ty.Kind != TypeSend {
		t.Fatalf("expected outer TypeSend, got %v", ty.Kind)
	}
	if ty.A.Kind != TypeBreak {
		t.Fatalf("expected first arg Break, got %v", ty.A.Kind)
	}
	if ty.B.Kind != TypeSend {
		t.Fatalf("expected nested TypeSend, got %v", ty.B.Kind)
	}
	if ty.B.A.Kind != TypeContinue {
		t.Fatalf("expected second arg Continue, got %v", ty.B.A.Kind)
	}
	if ty.B.B.Kind != TypeSend {
		t.Fatalf("expected doubly nested TypeSend, got %v", ty.B.B.Kind)
	}
	if ty.B.B.A.Kind != TypeBreak || ty.B.B.B.Kind != TypeContinue {
		t.Fatalf("unexpected innermost shape: %+v", ty.B.B)
	}
	// All three nodes share the outer production's span (spec.md §4.1).
	if ty.Loc != ty.B.Loc || ty.Loc != ty.B.B.Loc {
		t.Fatalf("expected shared Loc across right-folded Send nodes")
	}
}

// TestKeywordRejection pins spec.md §8: for each reserved keyword k, name
// parsing fails on k alone.
func TestKeywordRejection(t *testing.T) {
	keywords := []string{
		"type", "dec", "def", "chan", "let", "do", "in", "pass", "begin",
		"loop", "telltypes", "either", "recursive", "iterative", "self",
	}
	for _, kw := range keywords {
		p := NewParser(lexTest(kw))
		if _, err := p.parseName(); err == nil {
			t.Errorf("parseName(%q) succeeded, want rejection as a keyword", kw)
		}
	}
}

// TestListGrammar pins spec.md §8's list() combinator properties.
func TestListGrammar(t *testing.T) {
	one := func(src string, wantLen int, wantErr bool) {
		t.Helper()
		p := NewParser(lexTest(src))
		items, err := parseList(p, p.parseName)
		if wantErr {
			// parseList itself never rejects a double comma outright; the
			// caller's subsequent expectText does. We assert the stream is
			// left with an unconsumed "," so the caller's next expectText
			// fails, matching spec.md §8 "rejects item,item,,".
			if err != nil {
				return
			}
			if tok, ok := p.toks.Peek(); !ok || tok.Text != "," {
				t.Fatalf("parseList(%q): expected a dangling comma left unconsumed, got tok=%v ok=%v", src, tok, ok)
			}
			return
		}
		if err != nil {
			t.Fatalf("parseList(%q): %v", src, err)
		}
		if len(items) != wantLen {
			t.Fatalf("parseList(%q) = %d items, want %d", src, len(items), wantLen)
		}
		if _, ok := p.toks.Peek(); ok {
			t.Fatalf("parseList(%q) left tokens unconsumed", src)
		}
	}
	one("a", 1, false)
	one("a,b", 2, false)
	one("a,b,", 2, false)
	one("a,b,,", 2, true)
}

// TestLoopLabel pins spec.md §8: ":x" parses as Some("x") spanning the two
// tokens.
func TestLoopLabel(t *testing.T) {
	p := NewParser(lexTest(":x"))
	label, err := p.loopLabel()
	if err != nil {
		t.Fatal(err)
	}
	if label == nil || label.Text != "x" {
		t.Fatalf("loopLabel(\":x\") = %v, want Some(x)", label)
	}

	p2 := NewParser(lexTest("loop"))
	label2, err := p2.loopLabel()
	if err != nil {
		t.Fatal(err)
	}
	if label2 != nil {
		t.Fatalf("loopLabel() without leading ':' = %v, want None", label2)
	}
}

// TestBranchOrderPreservation pins spec.md §8: an either type's branch map
// iterates in exactly declaration order, and swapping declaration order
// changes which branch choiceInstance targets.
func TestBranchOrderPreservation(t *testing.T) {
	ty := parseType(t, "either { .a !, .b ?, .c ! }")
	names := ty.Branches.Names()
	want := []string{"a", "b", "c"}
	if len(names) != len(want) {
		t.Fatalf("got %d branches, want %d", len(names), len(want))
	}
	for i, n := range names {
		if n.Text != want[i] {
			t.Errorf("branch %d = %q, want %q", i, n.Text, want[i])
		}
	}
	if ty.Branches.IndexOf(Name{Text: "b"}) != 1 {
		t.Fatalf("IndexOf(b) = %d, want 1", ty.Branches.IndexOf(Name{Text: "b"}))
	}

	swapped := parseType(t, "either { .b ?, .a !, .c ! }")
	if swapped.Branches.IndexOf(Name{Text: "b"}) != 0 {
		t.Fatalf("swapped IndexOf(b) = %d, want 0", swapped.Branches.IndexOf(Name{Text: "b"}))
	}
}

// TestCommitPolicy pins spec.md §4.1: once a distinguishing prefix token is
// consumed, a later failure in that production is fatal (a *commitError),
// not a plain prefix mismatch.
func TestCommitPolicy(t *testing.T) {
	p := NewParser(lexTest("chan"))
	_, err := p.typChan()
	if err == nil {
		t.Fatal("expected error: chan with no inner type")
	}
	if !isCommitted(err) {
		t.Fatalf("expected a committed error once 'chan' was consumed, got %v (%T)", err, err)
	}
}

// TestApplicationDesugaring exercises the application/apply suffix grammar
// producing ProcessDo-wrapped commands, and the bare-reference fallback.
func TestApplicationDesugaring(t *testing.T) {
	p := NewParser(lexTest("x.left!"))
	expr, err := p.expression()
	if err != nil {
		t.Fatal(err)
	}
	if expr.Kind != ExprDo {
		t.Fatalf("expected ExprDo wrapping the suffix chain, got %v", expr.Kind)
	}
	if expr.Then.Kind != ExprReference || expr.Then.Name.Text != "x" {
		t.Fatalf("expected trailing reference to x, got %+v", expr.Then)
	}
	if expr.Proc.Cmd.Kind != CmdChoose || expr.Proc.Cmd.Branch.Text != "left" {
		t.Fatalf("expected CmdChoose(left), got %+v", expr.Proc.Cmd)
	}

	bare := NewParser(lexTest("x"))
	ref, err := bare.expression()
	if err != nil {
		t.Fatal(err)
	}
	if ref.Kind != ExprReference {
		t.Fatalf("bare reference should parse directly as ExprReference, got %v", ref.Kind)
	}
}

// TestParserRoundTrip pins spec.md §8's round-trip property: parsing a
// valid fragment, pretty-printing it, and reparsing yields the same AST
// (modulo Loc).
func TestParserRoundTrip(t *testing.T) {
	sources := []string{
		`def id = chan a { a<>a }`,
		`def x = chan a { a! }`,
		`def p = chan c { c(chan a { a! })! }`,
		`def pick = chan c { c.left! }`,
		`def m = chan c { c { .a => { c! } .b => { c! } } }`,
	}
	for _, src := range sources {
		prog1 := parseProgram(t, src)
		printed := PrintProgram(prog1)
		prog2 := parseProgram(t, printed)
		if PrintProgram(prog2) != printed {
			t.Errorf("round-trip mismatch for %q:\nfirst:  %s\nsecond: %s", src, printed, PrintProgram(prog2))
		}
	}
}
