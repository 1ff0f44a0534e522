package icc

import "fmt"

// Loc is a single source position: line and column are 1-based, as produced
// by the external lexer.
type Loc struct {
	Line   int
	Column int
}

func (l Loc) String() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// Span is a byte range in the original source, carried alongside Loc so
// diagnostics can point at more than a single position.
type Span struct {
	Start int
	End   int
}

// Name is an opaque identifier with the location it was spelled at. Equality
// and hashing are by string value only; Loc is carried for diagnostics and
// does not participate in equality.
type Name struct {
	Loc  Loc
	Text string
}

func (n Name) String() string { return n.Text }

// Eq compares two names by text, ignoring location.
func (n Name) Eq(other Name) bool { return n.Text == other.Text }
