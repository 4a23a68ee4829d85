package fhirpath

import (
	"context"

	"github.com/fhirpath-go/fhirpath-engine/fhirpath/diag"
)

// This file implements the static Analyzer (spec.md §4.8's analysis pass):
// a top-down walk of the AST that tracks the set of candidate result types
// flowing through each node, emitting diagnostics for unknown functions and
// (when a ModelProvider is configured) unknown properties, without ever
// evaluating the expression. Grounded on the teacher's own two-phase
// design — fhirpath/fhirpath.go's Evaluate always runs a
// TypeSpecifierVisitor-backed static pass before walking the antlr tree —
// adapted here to this engine's hand-written Node types and to produce
// diag.Diagnostic rather than panicking on an unresolvable reference.
//
// Diagnostic codes in the 0200-0299 range are reserved for analyzer
// findings, continuing the lexer (0000s) and parser (0100s) ranges
// documented in spec.md §4.9.
const (
	codeUnknownFunction  diag.Code = "FP0201"
	codeUnknownProperty  diag.Code = "FP0202"
	codeUnknownType      diag.Code = "FP0203"
	codeRecursionLimit   diag.Code = "FP0204"
	codeAmbiguousChoice  diag.Code = "FP0205"
)

// anyType is returned whenever the analyzer cannot narrow a node's result
// type further (no ModelProvider, a dynamic choice element, or a construct
// the analyzer doesn't specialize), matching the teacher's permissive
// fallback for the same situations.
var anyType = TypeSpecifier{Namespace: "System", Name: "Any"}

type analyzer struct {
	ctx      context.Context
	opts     Options
	bag      *diag.Bag
	depth    int
	maxDepth int
}

// analyze infers the set of candidate result types for node given the
// current set of input types, recursing into subexpressions. isRoot mirrors
// evalNode's own isRoot flag: only the outermost node may resolve a bare
// identifier against the input types themselves rather than as a function
// call or external constant.
func (a *analyzer) analyze(node Node, inputTypes []TypeSpecifier, isRoot bool) []TypeSpecifier {
	if node == nil {
		return nil
	}
	a.depth++
	defer func() { a.depth-- }()
	if a.depth > a.maxDepth {
		a.bag.Addf(codeRecursionLimit, diag.SeverityError, toSpan(node.Span()), "expression nesting exceeds the recursion limit (%d)", a.maxDepth)
		return nil
	}

	switch n := node.(type) {
	case *LiteralNode:
		return []TypeSpecifier{a.literalType(n)}
	case *VariableNode:
		return a.analyzeVariable(n)
	case *IdentifierNode:
		return a.analyzeIdentifier(n, inputTypes, isRoot)
	case *CollectionLiteralNode:
		var out []TypeSpecifier
		for _, item := range n.Items {
			out = append(out, a.analyze(item, inputTypes, isRoot)...)
		}
		return out
	case *ParenNode:
		return a.analyze(n.Inner, inputTypes, isRoot)
	case *PathNode:
		base := a.analyze(n.Base, inputTypes, isRoot)
		return a.analyzeIdentifier(n.Prop, base, false)
	case *IndexNode:
		base := a.analyze(n.Base, inputTypes, isRoot)
		a.analyze(n.IndexExpr, inputTypes, false)
		return base
	case *UnaryOpNode:
		return a.analyze(n.Operand, inputTypes, isRoot)
	case *FunctionCallNode:
		return a.analyzeCall(n.Name, n.Args, inputTypes, isRoot)
	case *MethodCallNode:
		recv := a.analyze(n.Receiver, inputTypes, isRoot)
		return a.analyzeCall(n.Name, n.Args, recv, false)
	case *TypeOpNode:
		a.analyze(n.Operand, inputTypes, isRoot)
		if _, ok := resolveType(a.ctx, n.Type); !ok && a.opts.ModelProvider == nil {
			a.bag.Addf(codeUnknownType, diag.SeverityWarning, toSpan(n.TypeSpan), "unknown type %q (no model provider configured)", n.Type.String())
		}
		if n.Op == TypeOpIs {
			return []TypeSpecifier{{Namespace: "System", Name: "Boolean"}}
		}
		return []TypeSpecifier{n.Type}
	case *BinaryOpNode:
		a.analyze(n.Left, inputTypes, isRoot)
		a.analyze(n.Right, inputTypes, isRoot)
		return a.binaryOpResultType(n.Op)
	default:
		return nil
	}
}

func (a *analyzer) literalType(n *LiteralNode) TypeSpecifier {
	switch n.Kind {
	case LiteralBoolean:
		return TypeSpecifier{Namespace: "System", Name: "Boolean"}
	case LiteralString:
		return TypeSpecifier{Namespace: "System", Name: "String"}
	case LiteralInteger:
		return TypeSpecifier{Namespace: "System", Name: "Integer"}
	case LiteralLong:
		return TypeSpecifier{Namespace: "System", Name: "Long"}
	case LiteralDecimal:
		return TypeSpecifier{Namespace: "System", Name: "Decimal"}
	case LiteralDate:
		return TypeSpecifier{Namespace: "System", Name: "Date"}
	case LiteralTime:
		return TypeSpecifier{Namespace: "System", Name: "Time"}
	case LiteralDateTime:
		return TypeSpecifier{Namespace: "System", Name: "DateTime"}
	case LiteralQuantity:
		return TypeSpecifier{Namespace: "System", Name: "Quantity"}
	default:
		return anyType
	}
}

func (a *analyzer) analyzeVariable(n *VariableNode) []TypeSpecifier {
	switch n.Sigil {
	case SigilThis, SigilIndex, SigilTotal:
		return []TypeSpecifier{anyType}
	default:
		if _, ok := systemVariables[n.Name]; ok {
			return []TypeSpecifier{{Namespace: "System", Name: "String"}}
		}
		return []TypeSpecifier{anyType}
	}
}

// analyzeIdentifier resolves a bare name against the Model Provider when
// one is configured, emitting codeUnknownProperty if none of the candidate
// input types declare it. With no ModelProvider the analyzer cannot know
// the FHIR schema and silently falls back to Any, matching the evaluator's
// own behavior of deferring to runtime Children() lookups in that case.
func (a *analyzer) analyzeIdentifier(n *IdentifierNode, inputTypes []TypeSpecifier, isRoot bool) []TypeSpecifier {
	if a.opts.ModelProvider == nil || len(inputTypes) == 0 {
		return []TypeSpecifier{anyType}
	}
	var out []TypeSpecifier
	var matched bool
	for _, parent := range inputTypes {
		candidates, ok, err := a.opts.ModelProvider.PropertyType(a.ctx, parent, n.Name)
		if err != nil || !ok {
			continue
		}
		matched = true
		for _, c := range candidates {
			if q, ok := c.QualifiedName(); ok {
				out = append(out, q)
			}
		}
	}
	if !matched && !isRoot {
		a.bag.Addf(codeUnknownProperty, diag.SeverityWarning, toSpan(n.SourceSpan), "property %q is not declared on %s", n.Name, typeSpecifierList(inputTypes))
		return []TypeSpecifier{anyType}
	}
	if len(out) == 0 {
		return []TypeSpecifier{anyType}
	}
	return out
}

// analyzeCall resolves a function/method call's result type. Arity and
// argument-type checks are intentionally not attempted: Function (eval.go)
// carries no declared signature, only a variadic Expression slice, so the
// engine (like the teacher's own lenient antlr-visitor analyzer) can only
// confirm the function name is registered.
func (a *analyzer) analyzeCall(name *IdentifierNode, args []Node, inputTypes []TypeSpecifier, isRoot bool) []TypeSpecifier {
	for _, arg := range args {
		a.analyze(arg, inputTypes, false)
	}
	if _, ok := getFunction(a.ctx, name.Name); !ok {
		a.bag.Addf(codeUnknownFunction, diag.SeverityError, toSpan(name.SourceSpan), "unknown function %q", name.Name)
		return []TypeSpecifier{anyType}
	}
	switch name.Name {
	case "exists", "empty", "all", "allTrue", "anyTrue", "allFalse", "anyFalse",
		"startsWith", "endsWith", "contains", "matches", "matchesFull",
		"is", "supersetOf", "subsetOf", "hasValue", "conformsTo", "isDistinct":
		return []TypeSpecifier{{Namespace: "System", Name: "Boolean"}}
	case "count":
		return []TypeSpecifier{{Namespace: "System", Name: "Integer"}}
	case "toString", "substring", "upper", "lower", "trim", "replace", "replaceMatches", "join", "encode", "decode", "escape", "unescape":
		return []TypeSpecifier{{Namespace: "System", Name: "String"}}
	case "toInteger":
		return []TypeSpecifier{{Namespace: "System", Name: "Integer"}}
	case "toDecimal":
		return []TypeSpecifier{{Namespace: "System", Name: "Decimal"}}
	case "toBoolean":
		return []TypeSpecifier{{Namespace: "System", Name: "Boolean"}}
	case "where", "first", "last", "tail", "skip", "take", "single", "distinct", "distinctValues":
		return inputTypes
	default:
		return []TypeSpecifier{anyType}
	}
}

func (a *analyzer) binaryOpResultType(op BinaryOp) []TypeSpecifier {
	switch op {
	case OpEq, OpNotEq, OpEquivalent, OpNotEquivalent, OpLt, OpLtEq, OpGt, OpGtEq,
		OpAnd, OpOr, OpXor, OpImplies, OpIn, OpContains:
		return []TypeSpecifier{{Namespace: "System", Name: "Boolean"}}
	case OpConcat:
		return []TypeSpecifier{{Namespace: "System", Name: "String"}}
	default:
		return []TypeSpecifier{anyType}
	}
}

func typeSpecifierList(types []TypeSpecifier) string {
	if len(types) == 1 {
		return types[0].String()
	}
	s := "("
	for i, t := range types {
		if i > 0 {
			s += " | "
		}
		s += t.String()
	}
	return s + ")"
}

func toSpan(s Span) diag.Span { return diag.Span{Start: s.Start, End: s.End} }
