package icc

import (
	"fmt"
	"strings"
)

// printer is grounded on original_source/src/print.rs's minimal recursive
// Write-based style: each node kind gets one small method, no layout engine,
// separators written inline. Used exclusively by parser round-trip tests
// (SPEC_FULL.md "Supplemented features") — it is not the compiled-artifact
// contract, which is CompiledProgram.String() in global.go.
type printer struct {
	b strings.Builder
}

// PrintProgram renders each definition in DefinitionOrder as a `def` line,
// preceded by the `type` and `dec` lines that share its name, the way
// program() parses them. Type definitions and declarations with no
// definition of the same name are not printed.
func PrintProgram(p *Program) string {
	pr := &printer{}
	for _, name := range p.DefinitionOrder {
		if td, ok := p.TypeDefs[name.Text]; ok {
			pr.printTypeDef(td)
		}
		if t, ok := p.Declarations[name.Text]; ok {
			fmt.Fprintf(&pr.b, "dec %s: ", name.Text)
			pr.printType(t)
			pr.b.WriteString("\n")
		}
		fmt.Fprintf(&pr.b, "def %s = ", name.Text)
		pr.printExpr(p.Definitions[name.Text])
		pr.b.WriteString("\n")
	}
	return pr.b.String()
}

func (pr *printer) printTypeDef(td *TypeDef) {
	fmt.Fprintf(&pr.b, "type %s", td.Name.Text)
	if len(td.Params) > 0 {
		names := make([]string, len(td.Params))
		for i, p := range td.Params {
			names[i] = p.Text
		}
		fmt.Fprintf(&pr.b, "<%s>", strings.Join(names, ", "))
	}
	pr.b.WriteString(" = ")
	pr.printType(td.Type)
	pr.b.WriteString("\n")
}

// PrintType renders a single Type (exported for types_test.go's duality
// round-trip diagnostics).
func PrintType(t *Type) string {
	pr := &printer{}
	pr.printType(t)
	return pr.b.String()
}

func (pr *printer) printType(t *Type) {
	if t == nil {
		pr.b.WriteString("<?>")
		return
	}
	switch t.Kind {
	case TypeName:
		pr.b.WriteString(t.Name.Text)
		if len(t.TypeArgs) > 0 {
			pr.b.WriteString("<")
			for i, a := range t.TypeArgs {
				if i > 0 {
					pr.b.WriteString(", ")
				}
				pr.printType(a)
			}
			pr.b.WriteString(">")
		}
	case TypeChan:
		pr.b.WriteString("chan ")
		pr.printType(t.Inner)
	case TypeSend:
		pr.b.WriteString("(")
		pr.printType(t.A)
		pr.b.WriteString(") ")
		pr.printType(t.B)
	case TypeReceive:
		pr.b.WriteString("[")
		pr.printType(t.A)
		pr.b.WriteString("] ")
		pr.printType(t.B)
	case TypeSendType:
		fmt.Fprintf(&pr.b, "(type %s) ", t.TypeParam.Text)
		pr.printType(t.Inner)
	case TypeReceiveType:
		fmt.Fprintf(&pr.b, "[type %s] ", t.TypeParam.Text)
		pr.printType(t.Inner)
	case TypeEither:
		pr.b.WriteString("either { ")
		pr.printBranches(t.Branches)
		pr.b.WriteString(" }")
	case TypeChoice:
		pr.b.WriteString("{ ")
		pr.printBranches(t.Branches)
		pr.b.WriteString(" }")
	case TypeBreak:
		pr.b.WriteString("!")
	case TypeContinue:
		pr.b.WriteString("?")
	case TypeRecursive:
		pr.b.WriteString("recursive ")
		if t.Label != nil {
			fmt.Fprintf(&pr.b, ":%s ", t.Label.Text)
		}
		pr.printType(t.Inner)
	case TypeIterative:
		pr.b.WriteString("iterative ")
		if t.Label != nil {
			fmt.Fprintf(&pr.b, ":%s ", t.Label.Text)
		}
		pr.printType(t.Inner)
	case TypeSelf:
		pr.b.WriteString("self")
		if t.Label != nil {
			fmt.Fprintf(&pr.b, " :%s", t.Label.Text)
		}
	default:
		pr.b.WriteString("<?>")
	}
}

func (pr *printer) printBranches(br *Branches) {
	first := true
	br.Each(func(n Name, t *Type) {
		if !first {
			pr.b.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&pr.b, ".%s ", n.Text)
		pr.printType(t)
	})
}

// PrintPattern renders a single Pattern.
func PrintPattern(p *Pattern) string {
	pr := &printer{}
	pr.printPattern(p)
	return pr.b.String()
}

func (pr *printer) printPattern(p *Pattern) {
	switch p.Kind {
	case PatternName:
		pr.b.WriteString(p.Name.Text)
		if p.Annotation != nil {
			pr.b.WriteString(": ")
			pr.printType(p.Annotation)
		}
	case PatternReceive:
		pr.b.WriteString("(")
		pr.printPattern(p.First)
		pr.b.WriteString(") ")
		pr.printPattern(p.Rest)
	case PatternReceiveType:
		fmt.Fprintf(&pr.b, "(type %s) ", p.TypeParam.Text)
		pr.printPattern(p.Rest)
	case PatternContinue:
		pr.b.WriteString("!")
	default:
		pr.b.WriteString("<?>")
	}
}

// PrintExpr renders a single Expression.
func PrintExpr(e *Expression) string {
	pr := &printer{}
	pr.printExpr(e)
	return pr.b.String()
}

func (pr *printer) printExpr(e *Expression) {
	if e == nil {
		pr.b.WriteString("<?>")
		return
	}
	switch e.Kind {
	case ExprReference:
		pr.b.WriteString(e.Name.Text)
	case ExprFork:
		fmt.Fprintf(&pr.b, "chan %s ", e.ChanName.Text)
		if e.Annotation != nil {
			pr.b.WriteString(": ")
			pr.printType(e.Annotation)
			pr.b.WriteString(" ")
		}
		pr.b.WriteString("{ ")
		pr.printProcess(e.Body)
		pr.b.WriteString(" }")
	case ExprLet:
		pr.b.WriteString("let ")
		pr.printPattern(e.Pattern)
		pr.b.WriteString(" = ")
		pr.printExpr(e.Value)
		pr.b.WriteString(" in ")
		pr.printExpr(e.Then)
	case ExprDo:
		pr.b.WriteString("do { ")
		pr.printProcess(e.Proc)
		pr.b.WriteString(" } in ")
		pr.printExpr(e.Then)
	default:
		pr.b.WriteString("<?>")
	}
}

// PrintProcess renders a single Process.
func PrintProcess(p *Process) string {
	pr := &printer{}
	pr.printProcess(p)
	return pr.b.String()
}

func (pr *printer) printProcess(p *Process) {
	if p == nil {
		return
	}
	switch p.Kind {
	case ProcessLet:
		pr.b.WriteString("let ")
		pr.printPattern(p.Pattern)
		pr.b.WriteString(" = ")
		pr.printExpr(p.Value)
		pr.b.WriteString("\n")
		pr.printProcess(p.Rest)
	case ProcessDo:
		pr.b.WriteString(p.ChanName.Text)
		pr.printCommand(p.ChanName, p.Cmd)
	case ProcessTelltypes:
		pr.b.WriteString("telltypes\n")
		pr.printProcess(p.Then)
	case ProcessPass:
		pr.b.WriteString("pass\n")
	case ProcessNoop:
		// nothing to render — the empty process
	}
}

// PrintCommand renders a single Command as it would appear immediately
// after chanName in a command chain (spec.md §4.1's cmd() grammar never
// re-reads the channel name mid-chain; see printContinuation).
func PrintCommand(chanName Name, c *Command) string {
	pr := &printer{}
	pr.printCommand(chanName, c)
	return pr.b.String()
}

func (pr *printer) printCommand(chanName Name, c *Command) {
	switch c.Kind {
	case CmdLink:
		pr.b.WriteString("<> ")
		pr.printExpr(c.Target)
	case CmdSend:
		pr.b.WriteString("(")
		pr.printExpr(c.SendValue)
		pr.b.WriteString(")")
		pr.printContinuation(chanName, c.Continuation)
	case CmdReceive:
		pr.b.WriteString("[")
		pr.printPattern(c.ReceivePat)
		pr.b.WriteString("]")
		pr.printContinuation(chanName, c.Continuation)
	case CmdSendType:
		pr.b.WriteString("(type")
		for i, t := range c.SentTypes {
			if i > 0 {
				pr.b.WriteString(",")
			}
			pr.b.WriteString(" ")
			pr.printType(t)
		}
		pr.b.WriteString(")")
		pr.printContinuation(chanName, c.Continuation)
	case CmdReceiveType:
		fmt.Fprintf(&pr.b, "[type %s]", c.TypeParam.Text)
		pr.printContinuation(chanName, c.Continuation)
	case CmdChoose:
		fmt.Fprintf(&pr.b, ".%s", c.Branch.Text)
		pr.printContinuation(chanName, c.Continuation)
	case CmdMatch:
		pr.b.WriteString("{ ")
		for i, n := range c.BranchNames {
			if i > 0 {
				pr.b.WriteString(" ")
			}
			fmt.Fprintf(&pr.b, ".%s => { ", n.Text)
			pr.printProcess(c.BranchProcesses[i])
			pr.b.WriteString(" }")
		}
		pr.b.WriteString(" }")
	case CmdBreak:
		pr.b.WriteString("!")
	case CmdContinue:
		pr.b.WriteString("?")
		pr.printContinuation(chanName, c.Continuation)
	case CmdBegin:
		pr.b.WriteString("begin")
		if c.Label != nil {
			fmt.Fprintf(&pr.b, ":%s", c.Label.Text)
		}
		pr.b.WriteString("\n")
		pr.printProcess(c.Body)
	case CmdLoop:
		pr.b.WriteString("loop")
		if c.Label != nil {
			fmt.Fprintf(&pr.b, ":%s", c.Label.Text)
		}
	case CmdThen:
		pr.b.WriteString("\n")
		pr.printProcess(c.Then)
	}
}

// printContinuation inlines the next command directly onto the same line
// when it continues the same ProcessDo chain (every CmdSend/CmdReceive/...
// continuation is doCmd-wrapped onto the same channel name by the parser),
// matching cmd()'s recursive descent, which never re-reads the channel name
// mid-chain. Anything else — a different channel, or a non-Do process —
// starts a fresh line.
func (pr *printer) printContinuation(chanName Name, rest *Process) {
	if rest == nil {
		return
	}
	if rest.Kind == ProcessDo && rest.ChanName.Eq(chanName) {
		pr.printCommand(chanName, rest.Cmd)
		return
	}
	pr.b.WriteString("\n")
	pr.printProcess(rest)
}
