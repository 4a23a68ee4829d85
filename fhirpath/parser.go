package fhirpath

import (
	"strings"

	"github.com/fhirpath-go/fhirpath-engine/fhirpath/diag"
)

// parser is a hand-written recursive-descent / precedence-climbing parser
// producing the AST defined in ast.go, per spec.md §4.1's thirteen-tier
// precedence table. Grounded on the teacher's ANTLR grammar productions
// (ExpressionContext variants in expression.go): each evalExpression case
// there — PolarityExpression, MultiplicativeExpression, AdditiveExpression,
// TypeExpression, UnionExpression, InequalityExpression,
// EqualityExpression, MembershipExpression, AndExpression, OrExpression,
// ImpliesExpression — becomes one precedence level here, same grouping and
// associativity, but hand-written instead of grammar-generated (spec.md
// §4.1 mandates a hand-written parser; antlr4-go is dropped, see
// DESIGN.md).
type parser struct {
	toks []token
	pos  int
	bag  diag.Bag
	src  string
}

// parseSource lexes and parses a FHIRPath expression, returning its AST
// root and any diagnostics accumulated along the way (spec.md §4.1, §4.9).
// A nil root with a non-empty diagnostic bag indicates unrecoverable syntax
// errors; a non-nil root may still carry diagnostics from error recovery.
// The public entry point is Parse, in fhirpath.go.
func parseSource(src string) (Node, []diag.Diagnostic) {
	lx := newLexer(src)
	var toks []token
	for {
		t := lx.next()
		toks = append(toks, t)
		if t.kind == tokEOF {
			break
		}
	}
	p := &parser{toks: toks, src: src}
	for _, e := range lx.errs {
		p.bag.Add(diag.New("FP0001", diag.SeverityError, diag.Span(e.span), e.msg))
	}

	if p.peek().kind == tokEOF {
		p.bag.Addf("FP0100", diag.SeverityError, diag.Span{}, "empty expression")
		return nil, p.bag.Diagnostics()
	}

	expr := p.parseExpression()
	if p.peek().kind != tokEOF {
		tok := p.peek()
		p.bag.Addf("FP0101", diag.SeverityError, diag.Span(tok.span),
			"unexpected token %q after expression", tok.text)
	}
	return expr, p.bag.Diagnostics()
}

func (p *parser) peek() token    { return p.toks[p.pos] }
func (p *parser) peekAt(o int) token {
	if p.pos+o >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+o]
}
func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}
func (p *parser) at(k tokenKind) bool { return p.peek().kind == k }

// expect consumes a token of kind k, or records an FP0102 diagnostic and
// returns a tokError placeholder without consuming input; it does not
// resynchronize (only parseInvocation calls resync, which stops at `.`,
// `,`, `)`, `]`, `|`, or end of input, not at keywords).
func (p *parser) expect(k tokenKind, what string) token {
	if p.at(k) {
		return p.advance()
	}
	tok := p.peek()
	p.bag.Addf("FP0102", diag.SeverityError, diag.Span(tok.span),
		"expected %s, got %q", what, tok.text)
	return token{kind: tokError, span: tok.span}
}

func (p *parser) resync() {
	for {
		switch p.peek().kind {
		case tokEOF, tokDot, tokComma, tokRParen, tokRBracket, tokPipe:
			return
		default:
			p.advance()
		}
	}
}

// parseExpression is the entry point: implies has the lowest precedence.
func (p *parser) parseExpression() Node {
	return p.parseImplies()
}

func (p *parser) parseImplies() Node {
	left := p.parseOr()
	for p.at(tokImplies) {
		opTok := p.advance()
		right := p.parseOr()
		left = &BinaryOpNode{Op: OpImplies, OpSpan: Span(opTok.span), Left: left, Right: right}
	}
	return left
}

func (p *parser) parseOr() Node {
	left := p.parseAnd()
	for p.at(tokOr) || p.at(tokXor) {
		opTok := p.advance()
		op := OpOr
		if opTok.kind == tokXor {
			op = OpXor
		}
		right := p.parseAnd()
		left = &BinaryOpNode{Op: op, OpSpan: Span(opTok.span), Left: left, Right: right}
	}
	return left
}

func (p *parser) parseAnd() Node {
	left := p.parseMembership()
	for p.at(tokAnd) {
		opTok := p.advance()
		right := p.parseMembership()
		left = &BinaryOpNode{Op: OpAnd, OpSpan: Span(opTok.span), Left: left, Right: right}
	}
	return left
}

func (p *parser) parseMembership() Node {
	left := p.parseEquality()
	for p.at(tokIn) || p.at(tokContains) {
		opTok := p.advance()
		op := OpIn
		if opTok.kind == tokContains {
			op = OpContains
		}
		right := p.parseEquality()
		left = &BinaryOpNode{Op: op, OpSpan: Span(opTok.span), Left: left, Right: right}
	}
	return left
}

func (p *parser) parseEquality() Node {
	left := p.parseInequality()
	for {
		var op BinaryOp
		switch p.peek().kind {
		case tokEq:
			op = OpEq
		case tokNotEq:
			op = OpNotEq
		case tokEquiv:
			op = OpEquivalent
		case tokNotEquiv:
			op = OpNotEquivalent
		default:
			return left
		}
		opTok := p.advance()
		right := p.parseInequality()
		left = &BinaryOpNode{Op: op, OpSpan: Span(opTok.span), Left: left, Right: right}
	}
}

func (p *parser) parseInequality() Node {
	left := p.parseUnion()
	for {
		var op BinaryOp
		switch p.peek().kind {
		case tokLt:
			op = OpLt
		case tokLtEq:
			op = OpLtEq
		case tokGt:
			op = OpGt
		case tokGtEq:
			op = OpGtEq
		default:
			return left
		}
		opTok := p.advance()
		right := p.parseUnion()
		left = &BinaryOpNode{Op: op, OpSpan: Span(opTok.span), Left: left, Right: right}
	}
}

func (p *parser) parseUnion() Node {
	left := p.parseTypeExpr()
	for p.at(tokPipe) {
		opTok := p.advance()
		right := p.parseTypeExpr()
		left = &BinaryOpNode{Op: OpUnion, OpSpan: Span(opTok.span), Left: left, Right: right}
	}
	return left
}

func (p *parser) parseTypeExpr() Node {
	left := p.parseAdditive()
	for p.at(tokIs) || p.at(tokAs) {
		opTok := p.advance()
		kind := TypeOpIs
		if opTok.kind == tokAs {
			kind = TypeOpAs
		}
		spec, span := p.parseTypeSpecifier()
		left = &TypeOpNode{Op: kind, Operand: left, Type: spec, TypeSpan: span}
	}
	return left
}

func (p *parser) parseAdditive() Node {
	left := p.parseMultiplicative()
	for {
		var op BinaryOp
		switch p.peek().kind {
		case tokPlus:
			op = OpAdd
		case tokMinus:
			op = OpSub
		case tokAmp:
			op = OpConcat
		default:
			return left
		}
		opTok := p.advance()
		right := p.parseMultiplicative()
		left = &BinaryOpNode{Op: op, OpSpan: Span(opTok.span), Left: left, Right: right}
	}
}

func (p *parser) parseMultiplicative() Node {
	left := p.parseUnary()
	for {
		var op BinaryOp
		switch p.peek().kind {
		case tokStar:
			op = OpMul
		case tokSlash:
			op = OpDiv
		case tokDiv:
			op = OpIntDiv
		case tokMod:
			op = OpMod
		default:
			return left
		}
		opTok := p.advance()
		right := p.parseUnary()
		left = &BinaryOpNode{Op: op, OpSpan: Span(opTok.span), Left: left, Right: right}
	}
}

func (p *parser) parseUnary() Node {
	if p.at(tokPlus) || p.at(tokMinus) {
		opTok := p.advance()
		op := UnaryPlus
		if opTok.kind == tokMinus {
			op = UnaryMinus
		}
		operand := p.parseUnary()
		return &UnaryOpNode{Op: op, OpSpan: Span(opTok.span), Operand: operand}
	}
	return p.parsePostfix()
}

// parsePostfix handles invocation (`.`) and indexing (`[]`), the two
// tightest-binding productions, applied left-to-right over a term.
func (p *parser) parsePostfix() Node {
	n := p.parseTerm()
	for {
		switch p.peek().kind {
		case tokDot:
			p.advance()
			n = p.parseInvocation(n)
		case tokLBracket:
			p.advance()
			idx := p.parseExpression()
			end := p.expect(tokRBracket, "`]`")
			n = &IndexNode{Base: n, IndexExpr: idx, BracketEnd: Span(end.span)}
		default:
			return n
		}
	}
}

// parseInvocation parses the invocation following a `.`: a bare
// identifier (property access) or a function/method call `name(args)`.
func (p *parser) parseInvocation(receiver Node) Node {
	if !p.at(tokIdentifier) && !p.at(tokDelimitedIdentifier) {
		tok := p.peek()
		p.bag.Addf("FP0103", diag.SeverityError, diag.Span(tok.span), "expected identifier after '.'")
		p.resync()
		return receiver
	}
	nameTok := p.advance()
	ident := identifierFromToken(nameTok)
	if !p.at(tokLParen) {
		return &PathNode{Base: receiver, Prop: ident}
	}
	lparen := p.advance()
	args := p.parseArgList()
	rparen := p.expect(tokRParen, "`)`")
	return &MethodCallNode{
		Receiver: receiver,
		Name:     ident,
		Args:     args,
		ArgsSpan: Span(lparen.span).Cover(Span(rparen.span)),
	}
}

func (p *parser) parseArgList() []Node {
	var args []Node
	if p.at(tokRParen) {
		return nil
	}
	args = append(args, p.parseExpression())
	for p.at(tokComma) {
		p.advance()
		args = append(args, p.parseExpression())
	}
	return args
}

func identifierFromToken(t token) *IdentifierNode {
	if t.kind == tokDelimitedIdentifier {
		name, err := unescapeString(t.text[1 : len(t.text)-1])
		if err != nil {
			name = t.text
		}
		return &IdentifierNode{SourceSpan: Span(t.span), Name: name, Delimited: true}
	}
	return &IdentifierNode{SourceSpan: Span(t.span), Name: t.text}
}

// parseTypeSpecifier parses a (possibly dotted) qualified identifier used
// by `is`/`as`/`ofType`, e.g. "FHIR.Patient" or "System.String".
func (p *parser) parseTypeSpecifier() (TypeSpecifier, Span) {
	startTok := p.peek()
	var parts []string
	if p.at(tokIdentifier) || p.at(tokDelimitedIdentifier) {
		ident := identifierFromToken(p.advance())
		parts = append(parts, ident.Name)
	} else {
		tok := p.peek()
		p.bag.Addf("FP0104", diag.SeverityError, diag.Span(tok.span), "expected type specifier")
		return TypeSpecifier{}, Span(tok.span)
	}
	endSpan := Span(startTok.span)
	for p.at(tokDot) {
		// Only consume as part of the type name if followed by an identifier
		// (defensive: a trailing `.` belongs to the outer expression grammar
		// in malformed input, but a valid type specifier always continues).
		if !(p.peekAt(1).kind == tokIdentifier || p.peekAt(1).kind == tokDelimitedIdentifier) {
			break
		}
		p.advance()
		ident := identifierFromToken(p.advance())
		parts = append(parts, ident.Name)
		endSpan = endSpan.Cover(ident.SourceSpan)
	}
	if len(parts) == 1 {
		return TypeSpecifier{Name: parts[0]}, endSpan
	}
	return TypeSpecifier{Namespace: strings.Join(parts[:len(parts)-1], "."), Name: parts[len(parts)-1]}, endSpan
}

// parseTerm parses the tightest-binding productions: literals, variables,
// parenthesized expressions, the empty collection literal, and a leading
// bare invocation (identifier or function call with no receiver).
func (p *parser) parseTerm() Node {
	tok := p.peek()
	switch tok.kind {
	case tokIntegerLiteral:
		p.advance()
		return p.maybeQuantity(tok, LiteralInteger)
	case tokLongLiteral:
		p.advance()
		return &LiteralNode{SourceSpan: Span(tok.span), Kind: LiteralLong, Text: tok.text}
	case tokDecimalLiteral:
		p.advance()
		return p.maybeQuantity(tok, LiteralDecimal)
	case tokStringLiteral:
		p.advance()
		unescaped, err := unescapeString(tok.text[1 : len(tok.text)-1])
		if err != nil {
			p.bag.Addf("FP0105", diag.SeverityError, diag.Span(tok.span), "invalid string escape: %v", err)
		}
		return &LiteralNode{SourceSpan: Span(tok.span), Kind: LiteralString, Text: unescaped}
	case tokDateLiteral:
		p.advance()
		return &LiteralNode{SourceSpan: Span(tok.span), Kind: LiteralDate, Text: tok.text}
	case tokDateTimeLiteral:
		p.advance()
		return &LiteralNode{SourceSpan: Span(tok.span), Kind: LiteralDateTime, Text: tok.text}
	case tokTimeLiteral:
		p.advance()
		return &LiteralNode{SourceSpan: Span(tok.span), Kind: LiteralTime, Text: tok.text}
	case tokTrue:
		p.advance()
		return &LiteralNode{SourceSpan: Span(tok.span), Kind: LiteralBoolean, Text: "true"}
	case tokFalse:
		p.advance()
		return &LiteralNode{SourceSpan: Span(tok.span), Kind: LiteralBoolean, Text: "false"}
	case tokExternalConstant:
		p.advance()
		name, _ := externalConstantName(tok.text)
		return &VariableNode{SourceSpan: Span(tok.span), Sigil: SigilExternal, Name: name}
	case tokDollarSigil:
		p.advance()
		switch tok.text {
		case "$this":
			return &VariableNode{SourceSpan: Span(tok.span), Sigil: SigilThis}
		case "$index":
			return &VariableNode{SourceSpan: Span(tok.span), Sigil: SigilIndex}
		case "$total":
			return &VariableNode{SourceSpan: Span(tok.span), Sigil: SigilTotal}
		default:
			p.bag.Addf("FP0107", diag.SeverityError, diag.Span(tok.span),
				"unknown reserved variable %q (only $this, $index, $total are defined)", tok.text)
			return &LiteralNode{SourceSpan: Span(tok.span), Kind: LiteralNull}
		}
	case tokLParen:
		p.advance()
		inner := p.parseExpression()
		rparen := p.expect(tokRParen, "`)`")
		return &ParenNode{LParenSpan: Span(tok.span), RParenSpan: Span(rparen.span), Inner: inner}
	case tokLBrace:
		p.advance()
		rbrace := p.expect(tokRBrace, "`}`")
		return &CollectionLiteralNode{SourceSpan: Span(tok.span).Cover(Span(rbrace.span))}
	case tokIdentifier, tokDelimitedIdentifier:
		ident := identifierFromToken(p.advance())
		return p.parseLeadingIdentifier(ident)
	case tokIn, tokContains, tokIs, tokAs, tokDiv, tokMod, tokAnd, tokOr, tokXor, tokImplies:
		// Keywords are also legal identifiers in the term position
		// (e.g. a property or function literally named "contains").
		p.advance()
		ident := &IdentifierNode{SourceSpan: Span(tok.span), Name: tok.text}
		return p.parseLeadingIdentifier(ident)
	default:
		p.bag.Addf("FP0106", diag.SeverityError, diag.Span(tok.span), "unexpected token %q", tok.text)
		p.advance()
		return &LiteralNode{SourceSpan: Span(tok.span), Kind: LiteralNull}
	}
}

// parseLeadingIdentifier distinguishes a bare function call from a plain
// identifier (property access against the implicit input, resolved by the
// evaluator). $this/$index/$total are lexed as tokDollarSigil and handled
// directly in parseTerm, never reaching here.
func (p *parser) parseLeadingIdentifier(ident *IdentifierNode) Node {
	if p.at(tokLParen) {
		lparen := p.advance()
		args := p.parseArgList()
		rparen := p.expect(tokRParen, "`)`")
		return &FunctionCallNode{
			Name:     ident,
			Args:     args,
			ArgsSpan: Span(lparen.span).Cover(Span(rparen.span)),
		}
	}
	return ident
}

// maybeQuantity checks whether a number literal is immediately followed by
// a unit string or calendar keyword, assembling a LiteralQuantity node
// (spec.md §3); the lexer never emits a single quantity token, matching
// the teacher's QuantityContext production which composes NUMBER + unit.
func (p *parser) maybeQuantity(numTok token, kind LiteralKind) Node {
	lit := &LiteralNode{SourceSpan: Span(numTok.span), Kind: kind, Text: numTok.text}
	switch p.peek().kind {
	case tokStringLiteral:
		unitTok := p.peek()
		unit, err := unescapeString(unitTok.text[1 : len(unitTok.text)-1])
		if err != nil {
			unit = unitTok.text
		}
		p.advance()
		lit.Kind = LiteralQuantity
		lit.Unit = unit
		lit.SourceSpan = lit.SourceSpan.Cover(Span(unitTok.span))
		return lit
	case tokIdentifier:
		if word, ok := calendarUnitWords[p.peek().text]; ok {
			unitTok := p.advance()
			lit.Kind = LiteralQuantity
			lit.Unit = word
			lit.SourceSpan = lit.SourceSpan.Cover(Span(unitTok.span))
		}
		return lit
	default:
		return lit
	}
}

// calendarUnitWords are the English calendar-unit keywords legal directly
// after a number literal in a quantity (spec.md §3): singular and plural
// forms both normalize to the singular canonical token.
var calendarUnitWords = map[string]string{
	"year": "year", "years": "year",
	"month": "month", "months": "month",
	"week": "week", "weeks": "week",
	"day": "day", "days": "day",
	"hour": "hour", "hours": "hour",
	"minute": "minute", "minutes": "minute",
	"second": "second", "seconds": "second",
	"millisecond": "millisecond", "milliseconds": "millisecond",
}
