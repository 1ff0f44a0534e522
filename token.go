package icc

// TokenKind classifies a Token as produced by the external lexer. The lexer
// itself — tokenization, comment stripping, keyword recognition — is out of
// scope here (spec.md §1); this is only the interface the parser consumes.
type TokenKind int

const (
	// TokenIdent covers both identifiers and reserved keywords: the lexer
	// does not split keywords into their own kind (spec.md §4.1, "Name
	// tokens are otherwise Ident tokens"); the parser itself performs
	// keyword exclusion by comparing Text against the reserved set.
	TokenIdent TokenKind = iota
	// TokenPunct covers every punctuation/operator lexeme: "(", ")", "{",
	// "}", "[", "]", "<", ">", ",", ".", ":", "=", "=>", "<>", "!", "?".
	TokenPunct
	// TokenEOF marks the end of the stream.
	TokenEOF
)

// Token is a single lexed unit: a kind tag, its literal text, the byte span
// it occupies, and the source location of its first byte (spec.md §6).
type Token struct {
	Kind TokenKind
	Text string
	Span Span
	Loc  Loc
}

// TokenSource is the positionally-indexable, single-token-look-ahead stream
// the parser consumes (spec.md §6: "peek/any/take primitive set"). A real
// lexer's output slice wrapped by tokenStream (below) satisfies it; tests
// build fixtures the same way.
type TokenSource interface {
	// Peek returns the token at the current position without consuming it.
	// ok is false at end of stream.
	Peek() (tok Token, ok bool)
	// Take consumes and returns the token at the current position. ok is
	// false at end of stream.
	Take() (tok Token, ok bool)
	// Pos returns the current token index, for error reporting and for
	// rewinding when the parser's commitAfter prefix fails to match.
	Pos() int
	// Seek resets the stream to a previously observed Pos().
	Seek(pos int)
}

// tokenStream is the concrete, slice-backed TokenSource the parser is built
// against; it is also what production callers construct around a real
// lexer's output (spec.md §6: "the parser treats the stream as positionally
// indexable").
type tokenStream struct {
	toks []Token
	pos  int
}

// NewTokenSource wraps an already-lexed token slice for the parser to
// consume.
func NewTokenSource(toks []Token) TokenSource {
	return &tokenStream{toks: toks}
}

func (s *tokenStream) Peek() (Token, bool) {
	if s.pos >= len(s.toks) {
		return Token{}, false
	}
	return s.toks[s.pos], true
}

func (s *tokenStream) Take() (Token, bool) {
	tok, ok := s.Peek()
	if ok {
		s.pos++
	}
	return tok, ok
}

func (s *tokenStream) Pos() int { return s.pos }

func (s *tokenStream) Seek(pos int) { s.pos = pos }
