package icc

// Parser is a recursive-descent parser over a pre-lexed TokenSource
// (spec.md §4.1). It has no backtracking budget beyond the ordinary
// single-token lookahead an `alt`-style combinator needs to choose a
// production: once a distinguishing prefix is consumed, commitAfter makes
// every later failure fatal, mirroring original_source/src/par/parser.rs's
// winnow-based commit_after/cut_err discipline.
type Parser struct {
	toks TokenSource
}

// NewParser builds a Parser over an already-lexed token stream.
func NewParser(toks TokenSource) *Parser {
	return &Parser{toks: toks}
}

// ParseProgram parses a whole source file into a Program (spec.md §4.1
// "program"). The whole stream must be consumed: a token left over after
// the last item is a ParseError expecting "end of input".
func ParseProgram(toks TokenSource) (*Program, error) {
	p := NewParser(toks)
	prog, err := p.program()
	if err != nil {
		return nil, err
	}
	if tok, ok := p.toks.Peek(); ok {
		return nil, &ParseError{Expected: []string{"end of input"}, Got: tok.Text, Loc: tok.Loc}
	}
	return prog, nil
}

// commitError marks an error as having occurred after a production's
// distinguishing prefix was already consumed; isCommitted tells it apart
// from a plain prefix mismatch.
type commitError struct{ err error }

func (c *commitError) Error() string { return c.err.Error() }
func (c *commitError) Unwrap() error { return c.err }

func committed(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*commitError); ok {
		return err
	}
	return &commitError{err: err}
}

func isCommitted(err error) bool {
	_, ok := err.(*commitError)
	return ok
}

func (p *Parser) loc() Loc {
	if tok, ok := p.toks.Peek(); ok {
		return tok.Loc
	}
	return Loc{}
}

// peekText reports the text of the next token, or "" at end of stream.
func (p *Parser) peekText() string {
	tok, ok := p.toks.Peek()
	if !ok {
		return ""
	}
	return tok.Text
}

// peekTextAt peeks n tokens ahead of the current position without
// consuming anything, for the two-token lookahead typ()/pattern() need to
// disambiguate a type-qualifying "type" keyword from an unqualified form.
func (p *Parser) peekTextAt(n int) string {
	start := p.toks.Pos()
	defer p.toks.Seek(start)
	for i := 0; i < n; i++ {
		if _, ok := p.toks.Take(); !ok {
			return ""
		}
	}
	tok, ok := p.toks.Peek()
	if !ok {
		return ""
	}
	return tok.Text
}

// eatText consumes the next token if its text equals text, reporting
// whether it did. It never leaves the stream partially advanced.
func (p *Parser) eatText(text string) bool {
	tok, ok := p.toks.Peek()
	if !ok || tok.Text != text {
		return false
	}
	p.toks.Take()
	return true
}

// expectText consumes a required literal (punctuation or keyword), fatal
// on mismatch since callers only call it once a production has committed.
func (p *Parser) expectText(text string) error {
	if p.eatText(text) {
		return nil
	}
	tok, ok := p.toks.Peek()
	if !ok {
		return &UnexpectedEOFError{Expected: []string{text}}
	}
	return &ParseError{Expected: []string{text}, Got: tok.Text, Loc: tok.Loc}
}

// commitAfter consumes prefix (a sequence of literal texts) and, only if
// every one of them matched, runs body with any error marked committed.
// If the prefix itself fails to match, the stream is rewound and a plain,
// uncommitted error is returned —
// mirroring commit_after(ignored, parser)'s split between a backtracking
// "ignored" prefix and a cut_err'd "parser" body.
func (p *Parser) commitAfter(prefix []string, body func() (interface{}, error)) (interface{}, error) {
	start := p.toks.Pos()
	for _, want := range prefix {
		if !p.eatText(want) {
			p.toks.Seek(start)
			tok, ok := p.toks.Peek()
			got := ""
			loc := p.loc()
			if ok {
				got = tok.Text
			}
			return nil, &ParseError{Expected: []string{want}, Got: got, Loc: loc}
		}
	}
	v, err := body()
	if err != nil {
		return nil, committed(err)
	}
	return v, nil
}

// parseName parses a bare identifier, rejecting reserved keywords
// (original_source: `name = preceded(not(keyword()), Ident)`).
func (p *Parser) parseName() (Name, error) {
	tok, ok := p.toks.Peek()
	if !ok {
		return Name{}, &UnexpectedEOFError{Expected: []string{"name"}}
	}
	if tok.Kind != TokenIdent || isKeyword(tok.Text) {
		return Name{}, &ParseError{Expected: []string{"name"}, Got: tok.Text, Loc: tok.Loc}
	}
	p.toks.Take()
	return Name{Loc: tok.Loc, Text: tok.Text}, nil
}

// parseList parses item ("," item)* with a single optional trailing comma
// (spec.md §8 "list grammar"), matching
// original_source/src/par/parser.rs's `terminated(separated(1.., item, ","), opt(","))`:
// a run of ", item" pairs, backtracking the last separator the moment the
// item after it fails, then consuming one more standalone trailing comma.
// "a,a,," is rejected because the second trailing comma is left unconsumed
// and trips up whatever the caller requires next.
func parseList[T any](p *Parser, item func() (T, error)) ([]T, error) {
	first, err := item()
	if err != nil {
		return nil, err
	}
	out := []T{first}
	for {
		save := p.toks.Pos()
		if !p.eatText(",") {
			break
		}
		v, err := item()
		if err != nil {
			p.toks.Seek(save)
			break
		}
		out = append(out, v)
	}
	p.eatText(",")
	return out, nil
}

// loopLabel parses an optional ":" name suffix used by begin/loop
// (spec.md §8 "loop label parsing"): ":one" parses to Some(Name("one")).
func (p *Parser) loopLabel() (*Name, error) {
	if !p.eatText(":") {
		return nil, nil
	}
	n, err := p.parseName()
	if err != nil {
		return nil, committed(err)
	}
	return &n, nil
}

// ---------------------------------------------------------------------
// program / type_def / declaration / definition
// ---------------------------------------------------------------------

func (p *Parser) program() (*Program, error) {
	prog := NewProgram()
	for {
		if _, ok := p.toks.Peek(); !ok {
			break
		}
		matched, err := p.programItem(prog)
		if err != nil {
			return nil, err
		}
		if !matched {
			break
		}
	}
	return prog, nil
}

func (p *Parser) programItem(prog *Program) (bool, error) {
	switch p.peekText() {
	case "type":
		td, err := p.typeDef()
		if err != nil {
			return false, err
		}
		prog.addTypeDef(td)
		return true, nil
	case "dec":
		name, t, err := p.declaration()
		if err != nil {
			return false, err
		}
		prog.addDeclaration(name, t)
		return true, nil
	case "def":
		name, ann, expr, err := p.definition()
		if err != nil {
			return false, err
		}
		prog.addDefinition(name, expr, ann)
		return true, nil
	default:
		return false, nil
	}
}

func (p *Parser) typeDef() (*TypeDef, error) {
	v, err := p.commitAfter([]string{"type"}, func() (interface{}, error) {
		name, err := p.parseName()
		if err != nil {
			return nil, err
		}
		params, err := p.typeParams()
		if err != nil {
			return nil, err
		}
		if err := p.expectText("="); err != nil {
			return nil, err
		}
		t, err := p.typ()
		if err != nil {
			return nil, err
		}
		return &TypeDef{Name: name, Params: params, Type: t}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*TypeDef), nil
}

func (p *Parser) typeParams() ([]Name, error) {
	if !p.eatText("<") {
		return nil, nil
	}
	names, err := parseList(p, p.parseName)
	if err != nil {
		return nil, committed(err)
	}
	if err := p.expectText(">"); err != nil {
		return nil, committed(err)
	}
	return names, nil
}

func (p *Parser) declaration() (Name, *Type, error) {
	v, err := p.commitAfter([]string{"dec"}, func() (interface{}, error) {
		name, err := p.parseName()
		if err != nil {
			return nil, err
		}
		if err := p.expectText(":"); err != nil {
			return nil, err
		}
		t, err := p.typ()
		if err != nil {
			return nil, err
		}
		return []interface{}{name, t}, nil
	})
	if err != nil {
		return Name{}, nil, err
	}
	pair := v.([]interface{})
	return pair[0].(Name), pair[1].(*Type), nil
}

func (p *Parser) definition() (Name, *Type, *Expression, error) {
	v, err := p.commitAfter([]string{"def"}, func() (interface{}, error) {
		name, err := p.parseName()
		if err != nil {
			return nil, err
		}
		var ann *Type
		if p.eatText(":") {
			ann, err = p.typ()
			if err != nil {
				return nil, err
			}
		}
		if err := p.expectText("="); err != nil {
			return nil, err
		}
		expr, err := p.expression()
		if err != nil {
			return nil, err
		}
		return []interface{}{name, ann, expr}, nil
	})
	if err != nil {
		return Name{}, nil, nil, err
	}
	triple := v.([]interface{})
	ann, _ := triple[1].(*Type)
	return triple[0].(Name), ann, triple[2].(*Expression), nil
}

// ---------------------------------------------------------------------
// typ
// ---------------------------------------------------------------------

// typ dispatches on the next token's text. "(" and "[" are ambiguous
// between a type-qualified and an unqualified form; spec.md §4.1 requires
// the qualified form to be tried first, which here is just a two-token
// lookahead rather than a backtracking alternative, since the qualifying
// "type" keyword immediately follows the opening bracket when present.
func (p *Parser) typ() (*Type, error) {
	loc := p.loc()
	switch p.peekText() {
	case "chan":
		return p.typChan()
	case "either":
		return p.typEither()
	case "{":
		return p.typChoice()
	case "!":
		p.toks.Take()
		return &Type{Kind: TypeBreak, Loc: loc}, nil
	case "?":
		p.toks.Take()
		return &Type{Kind: TypeContinue, Loc: loc}, nil
	case "recursive":
		return p.typRecursive()
	case "iterative":
		return p.typIterative()
	case "self":
		return p.typSelf()
	case "(":
		if p.peekTextAt(1) == "type" {
			return p.typSendType()
		}
		return p.typSend()
	case "[":
		if p.peekTextAt(1) == "type" {
			return p.typReceiveType()
		}
		return p.typReceive()
	default:
		return p.typName()
	}
}

func (p *Parser) typName() (*Type, error) {
	loc := p.loc()
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	var args []*Type
	if p.eatText("<") {
		args, err = parseList(p, p.typ)
		if err != nil {
			return nil, committed(err)
		}
		if err := p.expectText(">"); err != nil {
			return nil, committed(err)
		}
	}
	return &Type{Kind: TypeName, Loc: loc, Name: name, TypeArgs: args}, nil
}

func (p *Parser) typChan() (*Type, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"chan"}, func() (interface{}, error) {
		return p.typ()
	})
	if err != nil {
		return nil, err
	}
	return &Type{Kind: TypeChan, Loc: loc, Inner: v.(*Type)}, nil
}

// typSend/typReceive parse the multi-argument "(a, b, c) T" / "[a, b, c] T"
// forms and right-fold into nested binary nodes sharing the outer span
// (spec.md §4.1).
func (p *Parser) typSend() (*Type, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"("}, func() (interface{}, error) {
		args, err := parseList(p, p.typ)
		if err != nil {
			return nil, err
		}
		if err := p.expectText(")"); err != nil {
			return nil, err
		}
		rest, err := p.typ()
		if err != nil {
			return nil, err
		}
		return []interface{}{args, rest}, nil
	})
	if err != nil {
		return nil, err
	}
	pair := v.([]interface{})
	args := pair[0].([]*Type)
	t := pair[1].(*Type)
	for i := len(args) - 1; i >= 0; i-- {
		t = &Type{Kind: TypeSend, Loc: loc, A: args[i], B: t}
	}
	return t, nil
}

func (p *Parser) typReceive() (*Type, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"["}, func() (interface{}, error) {
		args, err := parseList(p, p.typ)
		if err != nil {
			return nil, err
		}
		if err := p.expectText("]"); err != nil {
			return nil, err
		}
		rest, err := p.typ()
		if err != nil {
			return nil, err
		}
		return []interface{}{args, rest}, nil
	})
	if err != nil {
		return nil, err
	}
	pair := v.([]interface{})
	args := pair[0].([]*Type)
	t := pair[1].(*Type)
	for i := len(args) - 1; i >= 0; i-- {
		t = &Type{Kind: TypeReceive, Loc: loc, A: args[i], B: t}
	}
	return t, nil
}

func (p *Parser) typSendType() (*Type, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"(", "type"}, func() (interface{}, error) {
		names, err := parseList(p, p.parseName)
		if err != nil {
			return nil, err
		}
		if err := p.expectText(")"); err != nil {
			return nil, err
		}
		rest, err := p.typ()
		if err != nil {
			return nil, err
		}
		return []interface{}{names, rest}, nil
	})
	if err != nil {
		return nil, err
	}
	pair := v.([]interface{})
	names := pair[0].([]Name)
	t := pair[1].(*Type)
	for i := len(names) - 1; i >= 0; i-- {
		t = &Type{Kind: TypeSendType, Loc: loc, TypeParam: names[i], Inner: t}
	}
	return t, nil
}

func (p *Parser) typReceiveType() (*Type, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"[", "type"}, func() (interface{}, error) {
		names, err := parseList(p, p.parseName)
		if err != nil {
			return nil, err
		}
		if err := p.expectText("]"); err != nil {
			return nil, err
		}
		rest, err := p.typ()
		if err != nil {
			return nil, err
		}
		return []interface{}{names, rest}, nil
	})
	if err != nil {
		return nil, err
	}
	pair := v.([]interface{})
	names := pair[0].([]Name)
	t := pair[1].(*Type)
	for i := len(names) - 1; i >= 0; i-- {
		t = &Type{Kind: TypeReceiveType, Loc: loc, TypeParam: names[i], Inner: t}
	}
	return t, nil
}

func (p *Parser) typBranches() (*Branches, error) {
	if err := p.expectText("{"); err != nil {
		return nil, err
	}
	b := NewBranches()
	for p.eatText(".") {
		name, err := p.parseName()
		if err != nil {
			return nil, committed(err)
		}
		t, err := p.typ()
		if err != nil {
			return nil, committed(err)
		}
		b.Insert(name, t)
		p.eatText(",")
	}
	if err := p.expectText("}"); err != nil {
		return nil, committed(err)
	}
	return b, nil
}

func (p *Parser) typEither() (*Type, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"either"}, func() (interface{}, error) {
		return p.typBranches()
	})
	if err != nil {
		return nil, err
	}
	return &Type{Kind: TypeEither, Loc: loc, Branches: v.(*Branches)}, nil
}

func (p *Parser) typChoice() (*Type, error) {
	loc := p.loc()
	b, err := p.typBranches()
	if err != nil {
		return nil, err
	}
	return &Type{Kind: TypeChoice, Loc: loc, Branches: b}, nil
}

func (p *Parser) typRecursive() (*Type, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"recursive"}, func() (interface{}, error) {
		label, err := p.loopLabel()
		if err != nil {
			return nil, err
		}
		inner, err := p.typ()
		if err != nil {
			return nil, err
		}
		return []interface{}{label, inner}, nil
	})
	if err != nil {
		return nil, err
	}
	pair := v.([]interface{})
	label, _ := pair[0].(*Name)
	return &Type{Kind: TypeRecursive, Loc: loc, Label: label, Inner: pair[1].(*Type)}, nil
}

func (p *Parser) typIterative() (*Type, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"iterative"}, func() (interface{}, error) {
		label, err := p.loopLabel()
		if err != nil {
			return nil, err
		}
		inner, err := p.typ()
		if err != nil {
			return nil, err
		}
		return []interface{}{label, inner}, nil
	})
	if err != nil {
		return nil, err
	}
	pair := v.([]interface{})
	label, _ := pair[0].(*Name)
	return &Type{Kind: TypeIterative, Loc: loc, Label: label, Inner: pair[1].(*Type)}, nil
}

func (p *Parser) typSelf() (*Type, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"self"}, func() (interface{}, error) {
		return p.loopLabel()
	})
	if err != nil {
		return nil, err
	}
	label, _ := v.(*Name)
	return &Type{Kind: TypeSelf, Loc: loc, Label: label}, nil
}

// ---------------------------------------------------------------------
// pattern
// ---------------------------------------------------------------------

func (p *Parser) pattern() (*Pattern, error) {
	loc := p.loc()
	switch p.peekText() {
	case "!":
		p.toks.Take()
		return &Pattern{Kind: PatternContinue, Loc: loc}, nil
	case "(":
		if p.peekTextAt(1) == "type" {
			return p.patternReceiveType()
		}
		return p.patternReceive()
	default:
		return p.patternName()
	}
}

func (p *Parser) patternName() (*Pattern, error) {
	loc := p.loc()
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	var ann *Type
	if p.eatText(":") {
		ann, err = p.typ()
		if err != nil {
			return nil, committed(err)
		}
	}
	return &Pattern{Kind: PatternName, Loc: loc, Name: name, Annotation: ann}, nil
}

func (p *Parser) patternReceive() (*Pattern, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"("}, func() (interface{}, error) {
		items, err := parseList(p, p.pattern)
		if err != nil {
			return nil, err
		}
		if err := p.expectText(")"); err != nil {
			return nil, err
		}
		rest, err := p.pattern()
		if err != nil {
			return nil, err
		}
		return []interface{}{items, rest}, nil
	})
	if err != nil {
		return nil, err
	}
	pair := v.([]interface{})
	items := pair[0].([]*Pattern)
	rest := pair[1].(*Pattern)
	for i := len(items) - 1; i >= 0; i-- {
		rest = &Pattern{Kind: PatternReceive, Loc: loc, First: items[i], Rest: rest}
	}
	return rest, nil
}

func (p *Parser) patternReceiveType() (*Pattern, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"(", "type"}, func() (interface{}, error) {
		names, err := parseList(p, p.parseName)
		if err != nil {
			return nil, err
		}
		if err := p.expectText(")"); err != nil {
			return nil, err
		}
		rest, err := p.pattern()
		if err != nil {
			return nil, err
		}
		return []interface{}{names, rest}, nil
	})
	if err != nil {
		return nil, err
	}
	pair := v.([]interface{})
	names := pair[0].([]Name)
	rest := pair[1].(*Pattern)
	for i := len(names) - 1; i >= 0; i-- {
		rest = &Pattern{Kind: PatternReceiveType, Loc: loc, TypeParam: names[i], Rest: rest}
	}
	return rest, nil
}

// ---------------------------------------------------------------------
// expression / application / apply / construction
// ---------------------------------------------------------------------

func (p *Parser) expression() (*Expression, error) {
	switch p.peekText() {
	case "let":
		return p.exprLet()
	case "do":
		return p.exprDo()
	case "chan":
		return p.exprFork()
	case "(":
		return p.construction()
	default:
		return p.application()
	}
}

func (p *Parser) exprLet() (*Expression, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"let"}, func() (interface{}, error) {
		pat, err := p.pattern()
		if err != nil {
			return nil, err
		}
		if err := p.expectText("="); err != nil {
			return nil, err
		}
		value, err := p.expression()
		if err != nil {
			return nil, err
		}
		if err := p.expectText("in"); err != nil {
			return nil, err
		}
		then, err := p.expression()
		if err != nil {
			return nil, err
		}
		return []interface{}{pat, value, then}, nil
	})
	if err != nil {
		return nil, err
	}
	triple := v.([]interface{})
	return &Expression{
		Kind:    ExprLet,
		Loc:     loc,
		Pattern: triple[0].(*Pattern),
		Value:   triple[1].(*Expression),
		Then:    triple[2].(*Expression),
	}, nil
}

func (p *Parser) exprDo() (*Expression, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"do", "{"}, func() (interface{}, error) {
		proc, err := p.process()
		if err != nil {
			return nil, err
		}
		if err := p.expectText("}"); err != nil {
			return nil, err
		}
		if err := p.expectText("in"); err != nil {
			return nil, err
		}
		then, err := p.expression()
		if err != nil {
			return nil, err
		}
		return []interface{}{proc, then}, nil
	})
	if err != nil {
		return nil, err
	}
	pair := v.([]interface{})
	return &Expression{Kind: ExprDo, Loc: loc, Proc: pair[0].(*Process), Then: pair[1].(*Expression)}, nil
}

func (p *Parser) exprFork() (*Expression, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"chan"}, func() (interface{}, error) {
		name, err := p.parseName()
		if err != nil {
			return nil, err
		}
		var ann *Type
		if p.eatText(":") {
			ann, err = p.typ()
			if err != nil {
				return nil, err
			}
		}
		if err := p.expectText("{"); err != nil {
			return nil, err
		}
		proc, err := p.process()
		if err != nil {
			return nil, err
		}
		if err := p.expectText("}"); err != nil {
			return nil, err
		}
		return []interface{}{name, ann, proc}, nil
	})
	if err != nil {
		return nil, err
	}
	triple := v.([]interface{})
	name := triple[0].(Name)
	proc := triple[2].(*Process)
	ann, _ := triple[1].(*Type)
	return &Expression{
		Kind:       ExprFork,
		Loc:        loc,
		ChanName:   name,
		Annotation: ann,
		Body:       proc,
		Captures:   freeNamesInProcess(proc, name),
	}, nil
}

// application parses a bare reference followed by an apply suffix
// (spec.md §4.1 "application = reference apply") and desugars it
// immediately: the commands the suffix names run on the reference's own
// channel, and the application's value is that same channel afterward —
// `Expression::Do(loc, applyAsProcess, Reference(name))`.
func (p *Parser) application() (*Expression, error) {
	loc := p.loc()
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	proc, err := p.apply(name)
	if err != nil {
		return nil, err
	}
	if proc == nil {
		return &Expression{Kind: ExprReference, Loc: loc, Name: name}, nil
	}
	return &Expression{
		Kind: ExprDo,
		Loc:  loc,
		Proc: proc,
		Then: &Expression{Kind: ExprReference, Loc: loc, Name: name},
	}, nil
}

// apply parses the suffix grammar send/choose/either/begin/loop/send_type
// /noop chained after a reference already bound to name, desugaring each
// step into a ProcessDo wrapping a Command on name. Returns nil if the
// suffix is empty (a bare reference).
func (p *Parser) apply(name Name) (*Process, error) {
	switch p.peekText() {
	case "(":
		return p.applySend(name)
	case ".":
		return p.applyChoose(name)
	case "{":
		return p.applyEither(name)
	case "begin":
		return p.applyBegin(name)
	case "loop":
		return p.applyLoop(name)
	default:
		return nil, nil
	}
}

func (p *Parser) applySend(name Name) (*Process, error) {
	if p.peekTextAt(1) == "type" {
		return p.applySendType(name)
	}
	loc := p.loc()
	v, err := p.commitAfter([]string{"("}, func() (interface{}, error) {
		args, err := parseList(p, p.expression)
		if err != nil {
			return nil, err
		}
		if err := p.expectText(")"); err != nil {
			return nil, err
		}
		return args, nil
	})
	if err != nil {
		return nil, err
	}
	args := v.([]*Expression)
	rest, err := p.apply(name)
	if err != nil {
		return nil, err
	}
	cont := restProcess(name, rest)
	for i := len(args) - 1; i >= 0; i-- {
		cont = doCmd(loc, name, &Command{Kind: CmdSend, Loc: loc, SendValue: args[i], Continuation: cont})
	}
	return cont, nil
}

func (p *Parser) applySendType(name Name) (*Process, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"(", "type"}, func() (interface{}, error) {
		args, err := parseList(p, p.typ)
		if err != nil {
			return nil, err
		}
		if err := p.expectText(")"); err != nil {
			return nil, err
		}
		return args, nil
	})
	if err != nil {
		return nil, err
	}
	types := v.([]*Type)
	rest, err := p.apply(name)
	if err != nil {
		return nil, err
	}
	return doCmd(loc, name, &Command{Kind: CmdSendType, Loc: loc, SentTypes: types, Continuation: restProcess(name, rest)}), nil
}

func (p *Parser) applyChoose(name Name) (*Process, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"."}, func() (interface{}, error) {
		return p.parseName()
	})
	if err != nil {
		return nil, err
	}
	branch := v.(Name)
	rest, err := p.apply(name)
	if err != nil {
		return nil, err
	}
	return doCmd(loc, name, &Command{Kind: CmdChoose, Loc: loc, Branch: branch, Continuation: restProcess(name, rest)}), nil
}

func (p *Parser) applyEither(name Name) (*Process, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"{"}, func() (interface{}, error) {
		names, procs, err := p.cmdBranches(name)
		if err != nil {
			return nil, err
		}
		if err := p.expectText("}"); err != nil {
			return nil, err
		}
		return []interface{}{names, procs}, nil
	})
	if err != nil {
		return nil, err
	}
	pair := v.([]interface{})
	return doCmd(loc, name, &Command{
		Kind:            CmdMatch,
		Loc:             loc,
		BranchNames:     pair[0].([]Name),
		BranchProcesses: pair[1].([]*Process),
	}), nil
}

func (p *Parser) applyBegin(name Name) (*Process, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"begin"}, func() (interface{}, error) {
		return p.loopLabel()
	})
	if err != nil {
		return nil, err
	}
	label, _ := v.(*Name)
	rest, err := p.apply(name)
	if err != nil {
		return nil, err
	}
	return doCmd(loc, name, &Command{Kind: CmdBegin, Loc: loc, Label: label, Body: restProcess(name, rest)}), nil
}

func (p *Parser) applyLoop(name Name) (*Process, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"loop"}, func() (interface{}, error) {
		return p.loopLabel()
	})
	if err != nil {
		return nil, err
	}
	label, _ := v.(*Name)
	return doCmd(loc, name, &Command{Kind: CmdLoop, Loc: loc, Label: label}), nil
}

// construction parses a value built directly from a suffix chain with no
// preceding reference (spec.md §4.1's "construction" alternative):
// `(x) then body` etc. It desugars into a Fork over a freshly synthesized
// channel whose body replays the chain as commands on that channel, ending
// in a Link to the wrapped expression — the 1:1 counterpart of apply's
// desugaring, just anchored on a fresh name instead of an existing one.
func (p *Parser) construction() (*Expression, error) {
	loc := p.loc()
	fresh := Name{Loc: loc, Text: "%construct"}
	proc, err := p.constructChain(fresh)
	if err != nil {
		return nil, err
	}
	return &Expression{
		Kind:     ExprFork,
		Loc:      loc,
		ChanName: fresh,
		Body:     proc,
		Captures: freeNamesInProcess(proc, fresh),
	}, nil
}

func (p *Parser) constructChain(name Name) (*Process, error) {
	loc := p.loc()
	switch p.peekText() {
	case "(":
		if p.peekTextAt(1) == "type" {
			return p.constructSendType(name)
		}
		return p.constructSend(name)
	default:
		expr, err := p.expression()
		if err != nil {
			return nil, err
		}
		return doCmd(loc, name, &Command{Kind: CmdLink, Loc: loc, Target: expr}), nil
	}
}

func (p *Parser) constructSend(name Name) (*Process, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"("}, func() (interface{}, error) {
		args, err := parseList(p, p.expression)
		if err != nil {
			return nil, err
		}
		if err := p.expectText(")"); err != nil {
			return nil, err
		}
		return args, nil
	})
	if err != nil {
		return nil, err
	}
	args := v.([]*Expression)
	rest, err := p.constructChain(name)
	if err != nil {
		return nil, err
	}
	cont := rest
	for i := len(args) - 1; i >= 0; i-- {
		cont = doCmd(loc, name, &Command{Kind: CmdSend, Loc: loc, SendValue: args[i], Continuation: cont})
	}
	return cont, nil
}

func (p *Parser) constructSendType(name Name) (*Process, error) {
	loc := p.loc()
	_, err := p.commitAfter([]string{"(", "type"}, func() (interface{}, error) {
		_, err := parseList(p, p.typ)
		if err != nil {
			return nil, err
		}
		return nil, p.expectText(")")
	})
	if err != nil {
		return nil, err
	}
	return p.constructChain(name)
}

// doCmd wraps a Command as the sole statement of a ProcessDo on name.
func doCmd(loc Loc, name Name, cmd *Command) *Process {
	return &Process{Kind: ProcessDo, Loc: loc, ChanName: name, Cmd: cmd}
}

// restProcess turns the continuation returned by apply (nil at the noop
// base case) into the Process a Command's own continuation field expects.
func restProcess(name Name, rest *Process) *Process {
	if rest == nil {
		return &Process{Kind: ProcessNoop, Loc: name.Loc}
	}
	return rest
}

// ---------------------------------------------------------------------
// process / command / cmd
// ---------------------------------------------------------------------

func (p *Parser) process() (*Process, error) {
	switch p.peekText() {
	case "let":
		return p.procLet()
	case "pass":
		loc := p.loc()
		p.toks.Take()
		return &Process{Kind: ProcessPass, Loc: loc}, nil
	case "telltypes":
		return p.procTelltypes()
	case "", "}":
		return &Process{Kind: ProcessNoop, Loc: p.loc()}, nil
	default:
		return p.command()
	}
}

func (p *Parser) procLet() (*Process, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"let"}, func() (interface{}, error) {
		pat, err := p.pattern()
		if err != nil {
			return nil, err
		}
		if err := p.expectText("="); err != nil {
			return nil, err
		}
		value, err := p.expression()
		if err != nil {
			return nil, err
		}
		rest, err := p.process()
		if err != nil {
			return nil, err
		}
		return []interface{}{pat, value, rest}, nil
	})
	if err != nil {
		return nil, err
	}
	triple := v.([]interface{})
	return &Process{
		Kind:    ProcessLet,
		Loc:     loc,
		Pattern: triple[0].(*Pattern),
		Value:   triple[1].(*Expression),
		Rest:    triple[2].(*Process),
	}, nil
}

func (p *Parser) procTelltypes() (*Process, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"telltypes"}, func() (interface{}, error) {
		return p.process()
	})
	if err != nil {
		return nil, err
	}
	return &Process{Kind: ProcessTelltypes, Loc: loc, Then: v.(*Process)}, nil
}

func (p *Parser) command() (*Process, error) {
	loc := p.loc()
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	cmd, err := p.cmd(name)
	if err != nil {
		return nil, err
	}
	return &Process{Kind: ProcessDo, Loc: loc, ChanName: name, Cmd: cmd}, nil
}

// cmd dispatches the action performed on a channel already named by the
// enclosing command() call, mirroring original_source/src/par/parser.rs's
// cmd() alt list.
func (p *Parser) cmd(name Name) (*Command, error) {
	loc := p.loc()
	switch p.peekText() {
	case "<>":
		return p.cmdLink()
	case ".":
		return p.cmdChoose(name)
	case "{":
		return p.cmdEither(name)
	case "!":
		p.toks.Take()
		return &Command{Kind: CmdBreak, Loc: loc}, nil
	case "?":
		p.toks.Take()
		rest, err := p.process()
		if err != nil {
			return nil, err
		}
		return &Command{Kind: CmdContinue, Loc: loc, Continuation: rest}, nil
	case "begin":
		return p.cmdBegin(name)
	case "loop":
		return p.cmdLoop()
	case "(":
		if p.peekTextAt(1) == "type" {
			return p.cmdSendType(name)
		}
		return p.cmdSend(name)
	case "[":
		if p.peekTextAt(1) == "type" {
			return p.cmdReceiveType(name)
		}
		return p.cmdReceive(name)
	default:
		return p.cmdThen(name)
	}
}

func (p *Parser) cmdLink() (*Command, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"<>"}, func() (interface{}, error) {
		return p.expression()
	})
	if err != nil {
		return nil, err
	}
	return &Command{Kind: CmdLink, Loc: loc, Target: v.(*Expression)}, nil
}

func (p *Parser) cmdSend(name Name) (*Command, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"("}, func() (interface{}, error) {
		args, err := parseList(p, p.expression)
		if err != nil {
			return nil, err
		}
		if err := p.expectText(")"); err != nil {
			return nil, err
		}
		tail, err := p.cmd(name)
		if err != nil {
			return nil, err
		}
		return []interface{}{args, tail}, nil
	})
	if err != nil {
		return nil, err
	}
	pair := v.([]interface{})
	args := pair[0].([]*Expression)
	tail := pair[1].(*Command)
	for i := len(args) - 1; i >= 0; i-- {
		wrapped := tail
		tail = &Command{Kind: CmdSend, Loc: loc, SendValue: args[i], Continuation: doCmd(loc, name, wrapped)}
	}
	return tail, nil
}

func (p *Parser) cmdReceive(name Name) (*Command, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"["}, func() (interface{}, error) {
		pats, err := parseList(p, p.pattern)
		if err != nil {
			return nil, err
		}
		if err := p.expectText("]"); err != nil {
			return nil, err
		}
		tail, err := p.cmd(name)
		if err != nil {
			return nil, err
		}
		return []interface{}{pats, tail}, nil
	})
	if err != nil {
		return nil, err
	}
	pair := v.([]interface{})
	pats := pair[0].([]*Pattern)
	tail := pair[1].(*Command)
	for i := len(pats) - 1; i >= 0; i-- {
		wrapped := tail
		tail = &Command{Kind: CmdReceive, Loc: loc, ReceivePat: pats[i], Continuation: doCmd(loc, name, wrapped)}
	}
	return tail, nil
}

// cmdSendType sends one or more concrete type arguments (spec.md §4.1):
// unlike cmd_receive_type, which binds local names to incoming types,
// this hands over already-parsed Type values, substituted for the
// channel's bound type variables in the continuation's type.
func (p *Parser) cmdSendType(name Name) (*Command, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"(", "type"}, func() (interface{}, error) {
		types, err := parseList(p, p.typ)
		if err != nil {
			return nil, err
		}
		if err := p.expectText(")"); err != nil {
			return nil, err
		}
		tail, err := p.cmd(name)
		if err != nil {
			return nil, err
		}
		return []interface{}{types, tail}, nil
	})
	if err != nil {
		return nil, err
	}
	pair := v.([]interface{})
	types := pair[0].([]*Type)
	tail := pair[1].(*Command)
	return &Command{Kind: CmdSendType, Loc: loc, SentTypes: types, Continuation: doCmd(loc, name, tail)}, nil
}

func (p *Parser) cmdReceiveType(name Name) (*Command, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"[", "type"}, func() (interface{}, error) {
		names, err := parseList(p, p.parseName)
		if err != nil {
			return nil, err
		}
		if err := p.expectText("]"); err != nil {
			return nil, err
		}
		tail, err := p.cmd(name)
		if err != nil {
			return nil, err
		}
		return []interface{}{names, tail}, nil
	})
	if err != nil {
		return nil, err
	}
	pair := v.([]interface{})
	names := pair[0].([]Name)
	tail := pair[1].(*Command)
	for i := len(names) - 1; i >= 0; i-- {
		wrapped := tail
		tail = &Command{Kind: CmdReceiveType, Loc: loc, TypeParam: names[i], Continuation: doCmd(loc, name, wrapped)}
	}
	return tail, nil
}

func (p *Parser) cmdChoose(name Name) (*Command, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"."}, func() (interface{}, error) {
		branch, err := p.parseName()
		if err != nil {
			return nil, err
		}
		tail, err := p.cmd(name)
		if err != nil {
			return nil, err
		}
		return []interface{}{branch, tail}, nil
	})
	if err != nil {
		return nil, err
	}
	pair := v.([]interface{})
	return &Command{
		Kind:         CmdChoose,
		Loc:          loc,
		Branch:       pair[0].(Name),
		Continuation: doCmd(loc, name, pair[1].(*Command)),
	}, nil
}

// cmdEither parses `{ .branch => { process } ... }` as a Match command
// ending a command chain, distinct from applyEither only in that it is
// itself the full Command. No fallthrough branch is parsed after the
// closing brace.
func (p *Parser) cmdEither(name Name) (*Command, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"{"}, func() (interface{}, error) {
		names, procs, err := p.cmdBranches(name)
		if err != nil {
			return nil, err
		}
		if err := p.expectText("}"); err != nil {
			return nil, err
		}
		return []interface{}{names, procs}, nil
	})
	if err != nil {
		return nil, err
	}
	pair := v.([]interface{})
	return &Command{
		Kind:            CmdMatch,
		Loc:             loc,
		BranchNames:     pair[0].([]Name),
		BranchProcesses: pair[1].([]*Process),
	}, nil
}

// cmdBranches parses the repeated ".branch => { process }" items inside a
// match/either block, in source order (order carries the same positional
// significance as a type's Branches — spec.md §4.5).
func (p *Parser) cmdBranches(name Name) ([]Name, []*Process, error) {
	var names []Name
	var procs []*Process
	for p.eatText(".") {
		branch, err := p.parseName()
		if err != nil {
			return nil, nil, committed(err)
		}
		if err := p.expectText("=>"); err != nil {
			return nil, nil, committed(err)
		}
		if err := p.expectText("{"); err != nil {
			return nil, nil, committed(err)
		}
		proc, err := p.process()
		if err != nil {
			return nil, nil, committed(err)
		}
		if err := p.expectText("}"); err != nil {
			return nil, nil, committed(err)
		}
		names = append(names, branch)
		procs = append(procs, proc)
	}
	if len(names) == 0 {
		return nil, nil, &ParseError{Expected: []string{"branch"}, Got: p.peekText(), Loc: p.loc()}
	}
	return names, procs, nil
}

func (p *Parser) cmdBegin(name Name) (*Command, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"begin"}, func() (interface{}, error) {
		label, err := p.loopLabel()
		if err != nil {
			return nil, err
		}
		tail, err := p.cmd(name)
		if err != nil {
			return nil, err
		}
		return []interface{}{label, tail}, nil
	})
	if err != nil {
		return nil, err
	}
	pair := v.([]interface{})
	label, _ := pair[0].(*Name)
	return &Command{Kind: CmdBegin, Loc: loc, Label: label, Body: doCmd(loc, name, pair[1].(*Command))}, nil
}

func (p *Parser) cmdLoop() (*Command, error) {
	loc := p.loc()
	v, err := p.commitAfter([]string{"loop"}, func() (interface{}, error) {
		return p.loopLabel()
	})
	if err != nil {
		return nil, err
	}
	label, _ := v.(*Name)
	return &Command{Kind: CmdLoop, Loc: loc, Label: label}, nil
}

// cmdThen is cmd()'s lowest-priority alternative: none of the action
// tokens (<>, ., {, !, ?, begin, loop, (, [) started next, so the command
// chain on name ends here and whatever follows is parsed as a fresh
// process (which may itself open a command() on an unrelated channel).
// Grounded on original_source's `cmd_then = process.map(Command::Then)`.
func (p *Parser) cmdThen(name Name) (*Command, error) {
	loc := p.loc()
	proc, err := p.process()
	if err != nil {
		return nil, err
	}
	return &Command{Kind: CmdThen, Loc: loc, Then: proc}, nil
}

// ---------------------------------------------------------------------
// free-variable analysis for Fork captures
// ---------------------------------------------------------------------

// freeNamesInProcess computes the names Process proc references that are
// not bound, directly or transitively, within proc itself or by the
// excluded name (the enclosing Fork's own channel). Order is first-seen,
// for deterministic output; duplicates are suppressed. Grounded on
// original_source's older pest-based parser threading a `free: &mut
// Vec<Name>` accumulator while walking expressions — here recomputed in
// one pass after the AST is built, since the winnow-based parser.rs this
// module otherwise follows does not thread captures during parsing.
func freeNamesInProcess(proc *Process, excluded Name) []Name {
	var order []Name
	seen := map[string]bool{excluded.Text: true}
	bound := map[string]bool{excluded.Text: true}
	var use func(n Name)
	use = func(n Name) {
		if bound[n.Text] || seen[n.Text] {
			return
		}
		seen[n.Text] = true
		order = append(order, n)
	}
	var bindPattern func(pat *Pattern)
	bindPattern = func(pat *Pattern) {
		if pat == nil {
			return
		}
		switch pat.Kind {
		case PatternName:
			bound[pat.Name.Text] = true
		case PatternReceive:
			bindPattern(pat.First)
			bindPattern(pat.Rest)
		case PatternReceiveType:
			bindPattern(pat.Rest)
		}
	}
	var walkExpr func(e *Expression)
	var walkProc func(pr *Process)
	var walkCmd func(c *Command)
	walkExpr = func(e *Expression) {
		if e == nil {
			return
		}
		switch e.Kind {
		case ExprReference:
			use(e.Name)
		case ExprFork:
			saved := bound[e.ChanName.Text]
			bound[e.ChanName.Text] = true
			walkProc(e.Body)
			bound[e.ChanName.Text] = saved
		case ExprLet:
			walkExpr(e.Value)
			bindPattern(e.Pattern)
			walkExpr(e.Then)
		case ExprDo:
			walkProc(e.Proc)
			walkExpr(e.Then)
		}
	}
	walkProc = func(pr *Process) {
		if pr == nil {
			return
		}
		switch pr.Kind {
		case ProcessLet:
			walkExpr(pr.Value)
			bindPattern(pr.Pattern)
			walkProc(pr.Rest)
		case ProcessDo:
			use(pr.ChanName)
			walkCmd(pr.Cmd)
		case ProcessTelltypes:
			walkProc(pr.Then)
		}
	}
	walkCmd = func(c *Command) {
		if c == nil {
			return
		}
		switch c.Kind {
		case CmdLink:
			walkExpr(c.Target)
		case CmdSend:
			walkExpr(c.SendValue)
			walkProc(c.Continuation)
		case CmdReceive:
			bindPattern(c.ReceivePat)
			walkProc(c.Continuation)
		case CmdChoose:
			walkProc(c.Continuation)
		case CmdMatch:
			for _, pr := range c.BranchProcesses {
				walkProc(pr)
			}
		case CmdBegin:
			walkProc(c.Body)
		case CmdThen:
			walkProc(c.Then)
		}
	}
	walkProc(proc)
	return order
}
