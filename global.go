package icc

import (
	"fmt"
	"sort"
	"strings"
)

// compileGlobal lowers the top-level definition named defName exactly once,
// memoized in c.pkgByDef (spec.md §4.7 "compile_global"). The package id is
// reserved and recorded *before* compileExpression runs on the body, so a
// self-recursive or mutually-recursive reference resolved through
// resolveGlobal during that compilation sees a real PackageId immediately
// rather than looping back into compileGlobal.
//
// Each definition gets its own Net, owned exclusively by the compiler for
// the duration of this call (spec.md §4.7 steps 3/5/6, §5 "Shared
// resources"): c.net is saved and swapped for a fresh one sharing only
// c.packages/c.reducer, the body is compiled and normalized against that
// net alone, and the closed, reduced result is what gets recorded under id
// — not a tree still living in a net the caller is free to keep mutating.
// Swapping rather than nesting lets a self/mutually-recursive reference
// compiled mid-body (via resolveGlobal) get its own isolated net in turn,
// with c.net restored to the outer definition's net once that nested call
// returns.
func (c *Compiler) compileGlobal(defName string) (PackageId, *Type, error) {
	if id, ok := c.pkgByDef[defName]; ok {
		return id, c.program.Declarations[defName], nil
	}

	expr, ok := c.program.Definitions[defName]
	if !ok {
		return 0, nil, &UnknownVariableError{Name: Name{Text: defName}}
	}

	id := c.reservePackage()
	c.pkgByDef[defName] = id
	logf("compile_global: %s as package %s", hi(defName), hi(id))

	outerNet := c.net
	net := &Net{
		packages: c.packages,
		pairOf:   make(map[*Tree]*Tree),
		resolved: make(map[*Tree]*Tree),
		reducer:  c.reducer,
	}
	c.net = net
	defer func() { c.net = outerNet }()

	self, body := net.CreateWire()
	net.SetPackage(id, self)

	env := c.newEnv()
	tree, err := c.compileExpression(env, expr)
	if err != nil {
		return 0, nil, wrapf(err, "compiling global %q", defName)
	}
	net.Link(body, tree)
	if err := env.CloseLinearScope(net); err != nil {
		return 0, nil, wrapf(err, "compiling global %q", defName)
	}
	c.compiled[defName] = true

	net.Normalize()
	net.SetPackage(id, net.DeepResolve(self))

	declared := c.program.Declarations[defName]
	if declared == nil {
		declared = expr.Type
	}
	return id, declared, nil
}

// CompiledProgram is the net-compiler's final artifact: every top-level
// definition's package id, plus the shared package table those ids and any
// Begin/Loop-internal ids index into (spec.md §4.7/§6).
type CompiledProgram struct {
	IDToPackage map[PackageId]*Tree
	NameToID    map[string]PackageId
}

// CompileProgram is the top-level entry point: it compiles every top-level
// definition reachable from program.DefinitionOrder (spec.md §4.7's
// pre-registration pass walks definitions in source order so that, absent
// any forcing reference, compilation order matches declaration order). Each
// definition is compiled, normalized and closed in its own isolated Net by
// compileGlobal; the scaffold net constructed here never itself holds
// compiled content — it only seeds the package table and reducer every
// per-definition net shares.
func CompileProgram(cfg Config, program *Program, reducer Reducer) (*CompiledProgram, error) {
	net := NewNet(reducer)
	c := newCompiler(cfg, net, program)

	nameToID := make(map[string]PackageId, len(program.DefinitionOrder))
	for _, name := range program.DefinitionOrder {
		id, _, err := c.compileGlobal(name.Text)
		if err != nil {
			return nil, err
		}
		nameToID[name.Text] = id
	}

	return &CompiledProgram{
		IDToPackage: c.packages,
		NameToID:    nameToID,
	}, nil
}

// String renders the canonical text serialization spec.md §6 prescribes for
// a compiled program: one `// <name>` comment line per top-level definition
// (sorted, for determinism across map iteration), followed by that
// definition's package as an `@<id> = <body>` line, the body using the
// fixed grammar
// `E -> *`, `C(a,b) -> (a b)`, `D(a,b) -> [a b]`, `Wire(id) -> w<id>`,
// `Package(id) -> @<id>`. Packages that no name maps to (Begin bodies) are
// not printed.
func (p *CompiledProgram) String() string {
	names := make([]string, 0, len(p.NameToID))
	for name := range p.NameToID {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		id := p.NameToID[name]
		fmt.Fprintf(&b, "// %s\n", name)
		fmt.Fprintf(&b, "@%d = %s\n", id, serializeTree(p.IDToPackage[id]))
	}
	return b.String()
}

// serializeTree renders a single Tree per the canonical grammar above.
func serializeTree(t *Tree) string {
	if t == nil {
		return "*"
	}
	switch t.Kind {
	case TreeErase:
		return "*"
	case TreeComb:
		return fmt.Sprintf("(%s %s)", serializeTree(t.L), serializeTree(t.R))
	case TreeDup:
		return fmt.Sprintf("[%s %s]", serializeTree(t.A), serializeTree(t.B))
	case TreeWire:
		return fmt.Sprintf("w%d", t.WireID)
	case TreePackage:
		return fmt.Sprintf("@%d", t.Pkg)
	default:
		return "*"
	}
}
