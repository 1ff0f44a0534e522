package icc

import (
	"fmt"

	"github.com/pkg/errors"
)

// ParseError reports the first committed parse failure, with the set of
// alternatives that were expected (spec.md §7).
type ParseError struct {
	Expected []string
	Got      string
	Loc      Loc
}

func (e *ParseError) Error() string {
	if len(e.Expected) == 0 {
		return fmt.Sprintf("%s: unexpected token %q", e.Loc, e.Got)
	}
	return fmt.Sprintf("%s: expected %v, got %q", e.Loc, e.Expected, e.Got)
}

// UnexpectedEOFError reports running out of tokens mid-production.
type UnexpectedEOFError struct {
	Expected []string
}

func (e *UnexpectedEOFError) Error() string {
	return fmt.Sprintf("unexpected end of input, expected %v", e.Expected)
}

// ExpectedKeywordError reports a commit point whose keyword never matched.
type ExpectedKeywordError struct {
	Keyword string
	Loc     Loc
}

func (e *ExpectedKeywordError) Error() string {
	return fmt.Sprintf("%s: expected keyword %q", e.Loc, e.Keyword)
}

// UnknownVariableError is fatal: a definition referenced a name that is
// neither a bound variable nor a known global (spec.md §4.3/§7).
type UnknownVariableError struct {
	Name Name
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("%s: unknown variable %q", e.Name.Loc, e.Name.Text)
}

// UnclosedLinearError is fatal: a Linear variable remained live at the end
// of its scope (spec.md §3/§7).
type UnclosedLinearError struct {
	Name Name
}

func (e *UnclosedLinearError) Error() string {
	return fmt.Sprintf("%s: some variables were not closed: %q", e.Name.Loc, e.Name.Text)
}

// CastNotImplementedError is fatal: the declared coercion between two
// session types is structurally impossible or unsupported (spec.md §4.4).
type CastNotImplementedError struct {
	From *Type
	To   *Type
}

func (e *CastNotImplementedError) Error() string {
	return fmt.Sprintf("cast not implemented: %s -> %s", describeType(e.From), describeType(e.To))
}

// BranchMissingError is fatal: Choose/Match referred to a branch absent
// from the session type (spec.md §7).
type BranchMissingError struct {
	Branch Name
}

func (e *BranchMissingError) Error() string {
	return fmt.Sprintf("%s: branch %q is not part of this type", e.Branch.Loc, e.Branch.Text)
}

// DuplicateBindingError is a fatal assertion from bind_variable (spec.md §7).
type DuplicateBindingError struct {
	Name Name
}

func (e *DuplicateBindingError) Error() string {
	return fmt.Sprintf("%s: variable %q is already bound", e.Name.Loc, e.Name.Text)
}

// UnsupportedCommandError is fatal for AST nodes this compiler cannot lower
// (spec.md §7): it is raised for a Begin with no body and for unknown
// expression, pattern and process kinds.
type UnsupportedCommandError struct {
	Kind CommandKind
	Loc  Loc
}

func (e *UnsupportedCommandError) Error() string {
	return fmt.Sprintf("%s: unsupported command kind %d", e.Loc, e.Kind)
}

// UnknownLabelError is fatal: CmdLoop named a label no enclosing CmdBegin
// registered (spec.md §7, SPEC_FULL.md Open Question resolution #2).
type UnknownLabelError struct {
	Label Name
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("%s: loop label %q is not bound by an enclosing begin", e.Label.Loc, e.Label.Text)
}

func describeType(t *Type) string {
	if t == nil {
		return "<nil>"
	}
	return fmt.Sprintf("Type(kind=%d)", t.Kind)
}

// wrapf is the package's single point of contact with pkg/errors, mirroring
// the teacher's own errors.Wrapf usage in package.go/nil_check.go.
func wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}
