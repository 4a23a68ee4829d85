package fhirpath

import (
	"strings"
)

// Node is the common interface implemented by every AST node variant named
// in spec.md §3: Literal, Identifier, Variable, Path, Index, FunctionCall,
// MethodCall, BinaryOp, UnaryOp, TypeOp, and collection literals.
//
// Every node carries a Span (byte range) into the original source, per
// spec.md's AST section.
type Node interface {
	Span() Span
	// Format renders the node back to FHIRPath source text. format(parse(E))
	// == E modulo whitespace and optional parentheses, per spec.md §8.
	Format() string
}

// LiteralKind distinguishes the typed literal forms the lexer recognizes.
type LiteralKind uint8

const (
	LiteralNull LiteralKind = iota
	LiteralBoolean
	LiteralString
	LiteralInteger
	LiteralLong
	LiteralDecimal
	LiteralDate
	LiteralDateTime
	LiteralTime
	LiteralQuantity
)

// LiteralNode is a typed literal term (spec.md §3 AST).
type LiteralNode struct {
	SourceSpan Span
	Kind       LiteralKind
	// Text is the literal's raw token text, except for LiteralString, where
	// the parser stores the unescaped body without its quotes.
	Text string
	// Unit is populated for LiteralQuantity: the UCUM string or calendar
	// keyword following the number.
	Unit string
}

func (n *LiteralNode) Span() Span { return n.SourceSpan }
func (n *LiteralNode) Format() string {
	switch n.Kind {
	case LiteralString:
		return "'" + escapeString(n.Text) + "'"
	case LiteralQuantity:
		if _, ok := calendarUnitWords[n.Unit]; ok {
			return n.Text + " " + n.Unit
		}
		return n.Text + " '" + escapeString(n.Unit) + "'"
	}
	return n.Text
}

// IdentifierNode is a bare name: a property, function name, or type name
// depending on evaluation context (spec.md §3, §4.8 item 2).
type IdentifierNode struct {
	SourceSpan Span
	Name       string
	Delimited  bool // was written as `backtick quoted`
}

func (n *IdentifierNode) Span() Span { return n.SourceSpan }
func (n *IdentifierNode) Format() string {
	if n.Delimited {
		return "`" + n.Name + "`"
	}
	return n.Name
}

// VariableSigil distinguishes the four variable forms spec.md names:
// $this, $index, $total, and user/environment %name variables.
type VariableSigil uint8

const (
	SigilThis VariableSigil = iota
	SigilIndex
	SigilTotal
	SigilExternal
)

// VariableNode is a $this/$index/$total/%name reference.
type VariableNode struct {
	SourceSpan Span
	Sigil      VariableSigil
	Name       string // populated only for SigilExternal
}

func (n *VariableNode) Span() Span { return n.SourceSpan }
func (n *VariableNode) Format() string {
	switch n.Sigil {
	case SigilThis:
		return "$this"
	case SigilIndex:
		return "$index"
	case SigilTotal:
		return "$total"
	default:
		return "%" + n.Name
	}
}

// CollectionLiteralNode is the `{ }` empty-collection literal. FHIRPath
// only allows the empty form at the term level; non-empty brace literals
// are rejected by the parser.
type CollectionLiteralNode struct {
	SourceSpan Span
	Items      []Node
}

func (n *CollectionLiteralNode) Span() Span { return n.SourceSpan }
func (n *CollectionLiteralNode) Format() string {
	parts := make([]string, len(n.Items))
	for i, it := range n.Items {
		parts[i] = it.Format()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// PathNode is `base.prop` navigation (spec.md §3 AST: Path{base, segment}).
type PathNode struct {
	Base Node
	Prop *IdentifierNode
}

func (n *PathNode) Span() Span { return n.Base.Span().Cover(n.Prop.Span()) }
func (n *PathNode) Format() string {
	return n.Base.Format() + "." + n.Prop.Format()
}

// IndexNode is `base[index]`.
type IndexNode struct {
	Base       Node
	IndexExpr  Node
	BracketEnd Span
}

func (n *IndexNode) Span() Span { return n.Base.Span().Cover(n.BracketEnd) }
func (n *IndexNode) Format() string {
	return n.Base.Format() + "[" + n.IndexExpr.Format() + "]"
}

// FunctionCallNode is a call with no explicit receiver, e.g. a leading
// `today()` term or a lambda argument's own nested call.
type FunctionCallNode struct {
	Name     *IdentifierNode
	Args     []Node
	ArgsSpan Span // spans the parenthesized argument list, including parens
}

func (n *FunctionCallNode) Span() Span { return n.Name.Span().Cover(n.ArgsSpan) }
func (n *FunctionCallNode) Format() string {
	return n.Name.Format() + "(" + formatArgs(n.Args) + ")"
}

// MethodCallNode is `receiver.name(args)` — the common case for the vast
// majority of FHIRPath functions (where, select, exists, ...).
type MethodCallNode struct {
	Receiver Node
	Name     *IdentifierNode
	Args     []Node
	ArgsSpan Span
}

func (n *MethodCallNode) Span() Span { return n.Receiver.Span().Cover(n.ArgsSpan) }
func (n *MethodCallNode) Format() string {
	return n.Receiver.Format() + "." + n.Name.Format() + "(" + formatArgs(n.Args) + ")"
}

func formatArgs(args []Node) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Format()
	}
	return strings.Join(parts, ", ")
}

// BinaryOp enumerates every binary operator in spec.md §4.1's precedence
// table, strongest-bound first within each tier.
type BinaryOp uint8

const (
	OpMul BinaryOp = iota
	OpDiv
	OpIntDiv // div
	OpMod
	OpAdd
	OpSub
	OpConcat // &
	OpUnion  // |
	OpLt
	OpLtEq
	OpGt
	OpGtEq
	OpEq
	OpNotEq
	OpEquivalent
	OpNotEquivalent
	OpIn
	OpContains
	OpAnd
	OpOr
	OpXor
	OpImplies
)

var binaryOpText = map[BinaryOp]string{
	OpMul: "*", OpDiv: "/", OpIntDiv: "div", OpMod: "mod",
	OpAdd: "+", OpSub: "-", OpConcat: "&", OpUnion: "|",
	OpLt: "<", OpLtEq: "<=", OpGt: ">", OpGtEq: ">=",
	OpEq: "=", OpNotEq: "!=", OpEquivalent: "~", OpNotEquivalent: "!~",
	OpIn: "in", OpContains: "contains",
	OpAnd: "and", OpOr: "or", OpXor: "xor", OpImplies: "implies",
}

func (op BinaryOp) String() string { return binaryOpText[op] }

// BinaryOpNode is a two-operand operator application.
type BinaryOpNode struct {
	Op       BinaryOp
	OpSpan   Span
	Left     Node
	Right    Node
}

func (n *BinaryOpNode) Span() Span { return n.Left.Span().Cover(n.Right.Span()) }
func (n *BinaryOpNode) Format() string {
	return n.Left.Format() + " " + n.Op.String() + " " + n.Right.Format()
}

// UnaryOp enumerates the unary operators (spec.md §4.7): only +/- apply.
type UnaryOp uint8

const (
	UnaryPlus UnaryOp = iota
	UnaryMinus
)

// UnaryOpNode is a prefix `+`/`-` application.
type UnaryOpNode struct {
	Op      UnaryOp
	OpSpan  Span
	Operand Node
}

func (n *UnaryOpNode) Span() Span { return n.OpSpan.Cover(n.Operand.Span()) }
func (n *UnaryOpNode) Format() string {
	sym := "+"
	if n.Op == UnaryMinus {
		sym = "-"
	}
	return sym + n.Operand.Format()
}

// TypeOpKind distinguishes `is` from `as`.
type TypeOpKind uint8

const (
	TypeOpIs TypeOpKind = iota
	TypeOpAs
)

// TypeOpNode is `operand is Type` / `operand as Type`.
type TypeOpNode struct {
	Op         TypeOpKind
	Operand    Node
	Type       TypeSpecifier
	TypeSpan   Span
}

func (n *TypeOpNode) Span() Span { return n.Operand.Span().Cover(n.TypeSpan) }
func (n *TypeOpNode) Format() string {
	kw := "is"
	if n.Op == TypeOpAs {
		kw = "as"
	}
	return n.Operand.Format() + " " + kw + " " + n.Type.String()
}

// ParenNode preserves an explicit parenthesization so Format() can restore
// it when grouping changes precedence; parentheses that are not required
// for the parse to round-trip may be dropped, per spec.md §8.
type ParenNode struct {
	LParenSpan Span
	RParenSpan Span
	Inner      Node
}

func (n *ParenNode) Span() Span { return n.LParenSpan.Cover(n.RParenSpan) }
func (n *ParenNode) Format() string {
	return "(" + n.Inner.Format() + ")"
}

// externalConstantName extracts the variable name from the raw lexer token
// text of %name / %'string' / %`ident` (which includes the leading '%'),
// reporting whether the name was written in quoted or delimited form.
func externalConstantName(tokenText string) (name string, quoted bool) {
	trimmed := strings.TrimPrefix(tokenText, "%")
	if strings.HasPrefix(trimmed, "'") {
		unescaped, err := unescapeString(trimmed[1 : len(trimmed)-1])
		if err != nil {
			return trimmed, true
		}
		return unescaped, true
	}
	if strings.HasPrefix(trimmed, "`") {
		return strings.Trim(trimmed, "`"), true
	}
	return trimmed, false
}
