package icc

// Config is passed to the compiler entry points (SPEC_FULL.md "AMBIENT STACK /
// Configuration"). Its Debug field is not read by the compiler; tracing is
// switched with InitLog. There is no larger configuration surface: the token
// stream, the type checker and the net reducer are all external
// collaborators this module never constructs itself.
type Config struct {
	Debug bool
}

// loopFrame records one live Begin binding: the package id Loop(label)
// should reference, the ordered capture list that package's body expects,
// and the types/kinds recorded when that capture was taken, so Loop can
// recapture the same shape (SPEC_FULL.md Open Question resolution #2).
type loopFrame struct {
	pkg   PackageId
	names []Name
	types []*Type
	kinds []VariableKind
}

// Compiler lowers a parsed, type-annotated Program into a CompiledProgram
// of interaction-combinator packages (spec.md §4.6/§4.7), grounded on
// original_source/src/icombs/compiler.rs's Compiler struct.
type Compiler struct {
	cfg     Config
	net     *Net
	program *Program

	// reducer and packages persist across every top-level definition, even
	// though net itself is swapped out per definition (spec.md §4.7 step 3,
	// §5 "Shared resources"): packages is the one piece of state a
	// definition's isolated net must still share with every other
	// definition, since a PackageId has to resolve across definition
	// boundaries even though the wires that built it don't.
	reducer  Reducer
	packages map[PackageId]*Tree

	nextPkg  PackageId
	pkgByDef map[string]PackageId
	compiled map[string]bool

	// loops maps a label's text to a stack of frames, innermost last, so a
	// nested Begin can shadow an outer one with the same label the way a
	// nested Go block shadows an outer variable.
	loops map[string][]*loopFrame
}

// newCompiler wires a fresh Compiler over net/program; net's package table
// is shared with every isolated per-definition net this Compiler later
// builds (see compileGlobal), so CmdLink/ExprReference to an
// already-compiled global resolve without recompiling it.
func newCompiler(cfg Config, net *Net, program *Program) *Compiler {
	return &Compiler{
		cfg:      cfg,
		net:      net,
		reducer:  net.reducer,
		packages: net.packages,
		program:  program,
		pkgByDef: make(map[string]PackageId),
		compiled: make(map[string]bool),
		loops:    make(map[string][]*loopFrame),
	}
}

func (c *Compiler) newEnv() *Environment {
	env := NewEnvironment()
	env.resolveGlobal = c.resolveGlobal
	return env
}

// resolveGlobal backs Environment.UseVariable's "attempt compile_global"
// fallback (spec.md §4.3): if name names a top-level definition, compile it
// (memoized) and hand back a fresh reference tree typed by its declaration.
func (c *Compiler) resolveGlobal(name Name) (*Tree, *Type, error) {
	if _, ok := c.program.Definitions[name.Text]; !ok {
		return nil, nil, nil
	}
	id, typ, err := c.compileGlobal(name.Text)
	if err != nil {
		return nil, nil, err
	}
	return pkgRef(id), typ, nil
}

// compileExpression lowers a typed Expression to a tree usable wherever a
// channel handle is expected (spec.md §4.6 "compile_expression").
func (c *Compiler) compileExpression(env *Environment, expr *Expression) (*Tree, error) {
	switch expr.Kind {
	case ExprReference:
		logf("compile_expression: reference %s", hi(expr.Name.Text))
		return env.InstantiateVariable(c.net, expr.Name, expr.Type)

	case ExprFork:
		logf("compile_expression: fork chan=%s captures=%v", hi(expr.ChanName.Text), expr.Captures)
		self, other := c.net.CreateWire()
		err := WithCaptures(c.net, env, expr.Captures, c.resolveGlobal, func(inner *Environment) error {
			ty := expr.Annotation
			if ty == nil {
				ty = expr.Type
			}
			if err := inner.BindVariable(expr.ChanName, VarLinear, self, ty); err != nil {
				return err
			}
			return c.compileProcess(inner, expr.Body)
		})
		if err != nil {
			return nil, err
		}
		return other, nil

	case ExprLet:
		inner, err := c.bindExpressionValue(env, expr.Pattern, expr.Value)
		if err != nil {
			return nil, err
		}
		return c.compileExpression(inner, expr.Then)

	case ExprDo:
		inner := env
		if err := c.compileProcess(inner, expr.Proc); err != nil {
			return nil, err
		}
		return c.compileExpression(inner, expr.Then)

	default:
		return nil, &UnsupportedCommandError{Loc: expr.Loc}
	}
}

// bindExpressionValue compiles value and binds the result through pattern
// into env in place, returning env itself (ExprLet/ProcessLet share this).
func (c *Compiler) bindExpressionValue(env *Environment, pattern *Pattern, value *Expression) (*Environment, error) {
	tree, err := c.compileExpression(env, value)
	if err != nil {
		return nil, err
	}
	if err := c.bindPattern(env, pattern, tree, value.Type); err != nil {
		return nil, err
	}
	return env, nil
}

// bindPattern destructures tree (typed typ) through pattern into env
// (spec.md §4.1 patterns, §4.6 binding sites).
func (c *Compiler) bindPattern(env *Environment, pattern *Pattern, tree *Tree, typ *Type) error {
	switch pattern.Kind {
	case PatternName:
		want := pattern.Annotation
		if want == nil {
			want = typ
		}
		if want != nil && typ != nil && !want.Equal(typ) {
			recast, err := cast(c.net, tree, typ, want)
			if err != nil {
				return err
			}
			tree = recast
			typ = want
		}
		return env.BindVariable(pattern.Name, VarLinear, tree, typ)

	case PatternReceive:
		if typ == nil || typ.Kind != TypeSend {
			return &CastNotImplementedError{From: typ, To: nil}
		}
		a, b := c.net.CreateWire()
		c2, d := c.net.CreateWire()
		c.net.Link(comb(a, c2), tree)
		if err := c.bindPattern(env, pattern.First, b, typ.A); err != nil {
			return err
		}
		return c.bindPattern(env, pattern.Rest, d, typ.B)

	case PatternReceiveType:
		if typ == nil || typ.Kind != TypeSendType {
			return &CastNotImplementedError{From: typ, To: nil}
		}
		return env.BindVariable(pattern.TypeParam, VarLinear, tree, typ.Inner)

	case PatternContinue:
		c.net.Link(tree, erase())
		return nil

	default:
		return &UnsupportedCommandError{Loc: pattern.Loc}
	}
}

// compileProcess lowers a Process statement, threading env by mutation the
// way UseVariable/BindVariable already do (spec.md §4.6 "compile_process").
func (c *Compiler) compileProcess(env *Environment, proc *Process) error {
	switch proc.Kind {
	case ProcessLet:
		next, err := c.bindExpressionValue(env, proc.Pattern, proc.Value)
		if err != nil {
			return err
		}
		return c.compileProcess(next, proc.Rest)

	case ProcessDo:
		logf("compile_process: do %s", hi(proc.ChanName.Text))
		// Link is the one command whose table entry (spec.md §4.6) compiles
		// its expression *before* taking the channel's own handle, unlike
		// every other command: "a<>a" (spec.md §8 scenario 1) names the
		// channel as its own Link target, so the handle must still be live
		// when the target expression is compiled.
		if proc.Cmd.Kind == CmdLink {
			return c.compileLink(env, proc.ChanName, proc.Cmd)
		}
		tree, err := env.InstantiateVariable(c.net, proc.ChanName, proc.TargetType)
		if err != nil {
			return err
		}
		return c.compileCommand(env, proc.ChanName, tree, proc.TargetType, proc.Cmd)

	case ProcessTelltypes:
		// A structural no-op at the net level (spec.md §4.6); the AST node
		// survives purely so the printer can round-trip it (SPEC_FULL.md
		// "Supplemented features").
		return c.compileProcess(env, proc.Then)

	case ProcessPass, ProcessNoop:
		return nil

	default:
		return &UnsupportedCommandError{Loc: proc.Loc}
	}
}

// compileLink handles Link(e) (spec.md §4.6: "compile e, take name's
// handle, link them" — the one command table entry ordered with the
// expression first). Compiling cmd.Target while chanName is still bound
// lets a self-referential Link ("a<>a", spec.md §8 scenario 1) consume
// chanName's one linear use as that very expression; taking chanName's
// handle afterward then naturally reports it already gone, which closes
// the loop back onto the handle compileExpression just produced instead of
// erroring.
func (c *Compiler) compileLink(env *Environment, chanName Name, cmd *Command) error {
	other, err := c.compileExpression(env, cmd.Target)
	if err != nil {
		return err
	}
	tree, _, err := env.UseVariable(c.net, chanName)
	if err != nil {
		if _, ok := err.(*UnknownVariableError); ok {
			c.net.Link(other, other)
			return nil
		}
		return err
	}
	c.net.Link(tree, other)
	return nil
}

// compileCommand lowers one action performed on chan (currently typed
// chanType, holding tree) followed by its continuation (spec.md §4.6
// "compile_command", full table).
func (c *Compiler) compileCommand(env *Environment, chan_ Name, tree *Tree, chanType *Type, cmd *Command) error {
	switch cmd.Kind {
	case CmdLink:
		// Reached only when some caller already holds chan_'s handle (e.g.
		// a test driving compileCommand directly); the normal compileProcess
		// path routes Link through compileLink instead, see its comment.
		other, err := c.compileExpression(env, cmd.Target)
		if err != nil {
			return err
		}
		c.net.Link(tree, other)
		return nil

	case CmdSend:
		value, err := c.compileExpression(env, cmd.SendValue)
		if err != nil {
			return err
		}
		contSelf, contOther := c.net.CreateWire()
		c.net.Link(comb(value, contSelf), tree)
		contType := typeOrNil(chanType, func(t *Type) *Type { return t.B })
		return c.compileProcessContinuation(env, chan_, contOther, contType, cmd.Continuation)

	case CmdReceive:
		a, b := c.net.CreateWire()
		cc, d := c.net.CreateWire()
		c.net.Link(comb(a, cc), tree)
		var payloadType, contType *Type
		if chanType != nil && chanType.Kind == TypeReceive {
			payloadType, contType = chanType.A, chanType.B
		}
		if err := c.bindPattern(env, cmd.ReceivePat, b, payloadType); err != nil {
			return err
		}
		return c.compileProcessContinuation(env, chan_, d, contType, cmd.Continuation)

	case CmdSendType:
		// Type arguments carry no runtime representation in this net
		// encoding: the handle is forwarded unchanged, only its type
		// narrows (spec.md §4.6, Send of a type is erased at compile time,
		// the type checker already substituted it into the continuation's
		// recorded type).
		contType := typeOrNil(chanType, func(t *Type) *Type { return t.Inner })
		return c.compileProcessContinuation(env, chan_, tree, contType, cmd.Continuation)

	case CmdReceiveType:
		contType := typeOrNil(chanType, func(t *Type) *Type { return t.Inner })
		return c.compileProcessContinuation(env, chan_, tree, contType, cmd.Continuation)

	case CmdChoose:
		return c.compileChoose(env, chan_, tree, chanType, cmd)

	case CmdMatch:
		return c.compileMatch(env, chan_, tree, chanType, cmd)

	case CmdBreak:
		// Break closes the channel (dual of a server-side Continue) and
		// ends the process outright — ast.go records no continuation field
		// for it.
		c.net.Link(tree, erase())
		return nil

	case CmdContinue:
		// Continue resolves this channel to end-of-session but, unlike
		// Break, the surrounding process still has work to do on other
		// channels, so it runs Continuation afterward (ast.go's CmdContinue
		// comment: "Continuation field above is reused").
		c.net.Link(tree, erase())
		return c.compileProcess(env, cmd.Continuation)

	case CmdBegin:
		return c.compileBegin(env, chan_, tree, chanType, cmd)

	case CmdLoop:
		return c.compileLoop(env, chan_, tree, chanType, cmd)

	case CmdThen:
		// Parser-only fallback (ast.go's CmdThen doc comment): the channel
		// is simply handed back into scope under its current type and the
		// next process runs.
		if err := env.BindVariable(chan_, VarLinear, tree, chanType); err != nil {
			return err
		}
		return c.compileProcess(env, cmd.Then)

	default:
		return &UnsupportedCommandError{Kind: cmd.Kind, Loc: cmd.Loc}
	}
}

// compileProcessContinuation rebinds chan under its (possibly narrowed)
// continuation type and compiles the rest of the process.
func (c *Compiler) compileProcessContinuation(env *Environment, chanName Name, tree *Tree, typ *Type, rest *Process) error {
	if err := env.BindVariable(chanName, VarLinear, tree, typ); err != nil {
		return err
	}
	return c.compileProcess(env, rest)
}

func typeOrNil(t *Type, f func(*Type) *Type) *Type {
	if t == nil {
		return nil
	}
	return f(t)
}

// compileChoose implements CmdChoose (SPEC_FULL.md Open Question resolution
// #4): a fresh wire pair typed as the selected branch is created, one end
// bound to chan under its narrower type, the other handed to choice_instance
// at the branch's positional index.
func (c *Compiler) compileChoose(env *Environment, chanName Name, tree *Tree, chanType *Type, cmd *Command) error {
	if chanType == nil || chanType.Kind != TypeChoice {
		return &CastNotImplementedError{From: chanType, To: nil}
	}
	width := chanType.Branches.Len()
	idx := chanType.Branches.IndexOf(cmd.Branch)
	if idx < 0 {
		return &BranchMissingError{Branch: cmd.Branch}
	}
	branchType, _ := chanType.Branches.Get(cmd.Branch)
	contSelf, contOther := c.net.CreateWire()
	c.net.Link(choiceInstance(c.net, contSelf, idx, width), tree)
	return c.compileProcessContinuation(env, chanName, contOther, branchType, cmd.Continuation)
}

// compileMatch implements CmdMatch (SPEC_FULL.md Open Question resolutions
// #3: ambient context is captured/restored under the outer binding's key k,
// not the scrutinee's own name). Every live name besides the scrutinee is
// multiplexed into one context tree, duplicated once per case so each
// branch gets an independent copy, then each branch demultiplexes its own
// copy back into a fresh environment before compiling its process.
func (c *Compiler) compileMatch(env *Environment, chanName Name, tree *Tree, chanType *Type, cmd *Command) error {
	if chanType == nil || chanType.Kind != TypeEither {
		return &CastNotImplementedError{From: chanType, To: nil}
	}
	n := len(cmd.BranchNames)

	liveKeys := env.LiveNames()
	combined, types, kinds, err := env.CaptureContext(c.net, liveKeys)
	if err != nil {
		return err
	}
	copies := duplicateTree(c.net, combined, n)

	branches := make([]*Tree, n)
	for i, caseName := range cmd.BranchNames {
		branchType, ok := chanType.Branches.Get(caseName)
		if !ok {
			return &BranchMissingError{Branch: caseName}
		}
		caseEnv := c.newEnv()
		if err := RestoreContext(c.net, caseEnv, copies[i], liveKeys, types, kinds); err != nil {
			return err
		}
		selfTree, otherTree := c.net.CreateWire()
		if err := caseEnv.BindVariable(chanName, VarLinear, otherTree, branchType); err != nil {
			return err
		}
		if err := c.compileProcess(caseEnv, cmd.BranchProcesses[i]); err != nil {
			return err
		}
		if err := caseEnv.CloseLinearScope(c.net); err != nil {
			return err
		}
		branches[i] = selfTree
	}
	// Match links the handle to the right-associated, Erase-terminated C
	// chain of branches (spec.md §4.6, grounded on original_source/src/
	// icombs/compiler.rs:399-403) — a different shape from the balanced
	// multiplex eitherInstance/multiplexTrees build, and not interchangeable
	// with them.
	chain := erase()
	for i := n - 1; i >= 0; i-- {
		chain = comb(branches[i], chain)
	}
	c.net.Link(chain, tree)
	return nil
}

// compileBegin implements CmdBegin (SPEC_FULL.md Open Question resolution
// #2): the entire live environment (including chan itself, since the loop
// body re-enters at the same channel) is captured as the package's
// parameter context, a fresh package id is reserved and pushed onto the
// label's frame stack before compiling the body so nested Loop references
// resolve, and the body is compiled as that package's content.
func (c *Compiler) compileBegin(env *Environment, chanName Name, tree *Tree, chanType *Type, cmd *Command) error {
	label := ""
	if cmd.Label != nil {
		label = cmd.Label.Text
	}

	if err := env.BindVariable(chanName, VarLinear, tree, chanType); err != nil {
		return err
	}
	paramNames := env.LiveNames()
	combined, types, kinds, err := env.CaptureContext(c.net, paramNames)
	if err != nil {
		return err
	}

	id := c.reservePackage()
	frame := &loopFrame{pkg: id, names: paramNames, types: types, kinds: kinds}
	c.loops[label] = append(c.loops[label], frame)
	defer func() {
		stack := c.loops[label]
		c.loops[label] = stack[:len(stack)-1]
	}()

	// Register the package's reusable interface — a fresh receiving shape,
	// distinct from `combined` above — before compiling the body, so a
	// nested Loop(label) can already resolve frame.pkg to a real tree.
	content, leaves := buildReceiveShape(c.net, len(paramNames))
	c.net.SetPackage(id, content)

	bodyEnv := c.newEnv()
	for i, n := range paramNames {
		if err := bodyEnv.BindVariable(n, kinds[i], leaves[i], types[i]); err != nil {
			return err
		}
	}
	if cmd.Body == nil {
		return &UnsupportedCommandError{Kind: CmdBegin, Loc: cmd.Loc}
	}
	if err := c.compileProcess(bodyEnv, cmd.Body); err != nil {
		return err
	}
	if err := bodyEnv.CloseLinearScope(c.net); err != nil {
		return err
	}

	// Begin itself is the loop's first entry: hand the just-captured
	// context straight to the package reference, exactly as Loop does.
	c.net.Link(pkgRef(id), combined)
	return nil
}

// compileLoop implements the Loop half of Open Question resolution #2: look
// up label's innermost frame, recapture the ambient context under that
// frame's exact name list (so the package reference's arity matches what
// Begin built), and link a fresh package reference carrying it in, with the
// loop's own channel folded into the same multiplex the same way Begin
// folded it in.
func (c *Compiler) compileLoop(env *Environment, chanName Name, tree *Tree, chanType *Type, cmd *Command) error {
	label := ""
	if cmd.Label != nil {
		label = cmd.Label.Text
	}
	stack := c.loops[label]
	if len(stack) == 0 {
		lbl := Name{Text: label}
		if cmd.Label != nil {
			lbl = *cmd.Label
		}
		return &UnknownLabelError{Label: lbl}
	}
	frame := stack[len(stack)-1]

	if err := env.BindVariable(chanName, VarLinear, tree, chanType); err != nil {
		return err
	}
	combined, _, _, err := env.CaptureContext(c.net, frame.names)
	if err != nil {
		return err
	}
	ref := pkgRef(frame.pkg)
	c.net.Link(ref, combined)
	return nil
}

func (c *Compiler) reservePackage() PackageId {
	id := c.nextPkg
	c.nextPkg++
	return id
}
