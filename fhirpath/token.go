package fhirpath

import "fmt"

// Span is a byte range into the original expression source.
//
// Spans are used throughout the lexer, parser, AST, and diagnostic engine
// so that every node and every diagnostic can point back at the exact
// source text it was derived from.
type Span struct {
	Start int
	End   int
}

// Empty reports whether the span covers zero bytes.
func (s Span) Empty() bool { return s.Start >= s.End }

// Cover returns the smallest span that contains both s and other.
func (s Span) Cover(other Span) Span {
	if other.Empty() {
		return s
	}
	if s.Empty() {
		return other
	}
	start := s.Start
	if other.Start < start {
		start = other.Start
	}
	end := s.End
	if other.End > end {
		end = other.End
	}
	return Span{Start: start, End: end}
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d", s.Start, s.End)
}

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokError

	tokIdentifier
	tokDelimitedIdentifier // `backtick quoted`

	tokIntegerLiteral
	tokLongLiteral // 1L
	tokDecimalLiteral
	tokStringLiteral
	tokDateLiteral     // @2020-01-01
	tokDateTimeLiteral // @2020-01-01T10:00:00Z
	tokTimeLiteral     // @T10:00:00
	tokExternalConstant
	tokDollarSigil // $this, $index, $total

	tokTrue
	tokFalse
	tokAnd
	tokOr
	tokXor
	tokImplies
	tokDiv
	tokMod
	tokIn
	tokContains
	tokIs
	tokAs

	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokAmp
	tokPipe
	tokEq
	tokNotEq
	tokEquiv
	tokNotEquiv
	tokLt
	tokLtEq
	tokGt
	tokGtEq

	tokDot
	tokComma
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokLBrace
	tokRBrace
)

// keywords that double as identifiers depending on grammar position.
var keywords = map[string]tokenKind{
	"true":     tokTrue,
	"false":    tokFalse,
	"and":      tokAnd,
	"or":       tokOr,
	"xor":      tokXor,
	"implies":  tokImplies,
	"div":      tokDiv,
	"mod":      tokMod,
	"in":       tokIn,
	"contains": tokContains,
	"is":       tokIs,
	"as":       tokAs,
}

type token struct {
	kind tokenKind
	text string
	span Span
}

func (t token) String() string {
	return fmt.Sprintf("%v(%q)@%s", t.kind, t.text, t.span)
}
