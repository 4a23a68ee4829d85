package fhirpath

import (
	"context"
	"fmt"
)

// Expression wraps an unevaluated AST subtree together with an optional
// sort direction, the unit of work handed to a Function's lambda
// parameters (where, select, aggregate, sort, ...). Grounded on the
// teacher's Expression type (fhirpath/expression.go), adapted to carry a
// Node from this engine's hand-written AST instead of an antlr parse tree.
type Expression struct {
	node Node
	sort sortDirection
}

type sortDirection uint8

const (
	sortDirectionNone sortDirection = iota
	sortDirectionAsc
	sortDirectionDesc
)

// SortDescending reports whether this argument expression carried a
// leading unary minus, the only descending marker the parser recognizes
// (there is no `asc`/`desc` keyword form), per SPEC_FULL.md's sort()
// supplement.
func (e Expression) SortDescending() bool { return e.sort == sortDirectionDesc }

func (e Expression) String() string {
	if e.node == nil {
		return ""
	}
	return e.node.Format()
}

// Functions is the registry of built-in and host-installed functions.
type Functions map[string]Function

// Function is a FHIRPath function implementation. It receives its
// arguments unevaluated (as Expression) plus an EvaluateFunc closure, so
// lambda-taking functions (where, select, repeat, aggregate, iif) control
// exactly when and against what target each argument is evaluated.
type Function func(
	ctx context.Context,
	root Element, target Collection,
	inputOrdered bool,
	args []Expression,
	evaluate EvaluateFunc,
) (result Collection, resultOrdered bool, err error)

// EvaluateFunc evaluates one argument Expression against target, optionally
// installing a function scope ($this/$index/$total) first. A nil scope
// preserves whatever scope the parent call established.
type EvaluateFunc func(
	ctx context.Context,
	target Collection,
	expr Expression,
	scope *FunctionScope,
) (result Collection, resultOrdered bool, err error)

// FunctionScope is the caller-facing view a Function passes to evaluate
// when iterating a collection: the element's index and (for aggregate)
// the running total.
type FunctionScope struct {
	Index int
	Total Collection
}

// evalNode is the core tree-walking dispatcher over every Node variant in
// ast.go (spec.md §4.8's nine dispatch rules), grounded on the teacher's
// evalExpression/evalTerm/evalInvocation (fhirpath/expression.go,
// fhirpath/invocation.go), translated from antlr parse-tree cases onto
// this engine's hand-written AST node types.
func evalNode(
	ctx context.Context,
	root Element, target Collection,
	inputOrdered bool,
	node Node,
	isRoot bool,
) (result Collection, resultOrdered bool, err error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	ctx, err = enterEvalDepth(ctx)
	if err != nil {
		return nil, false, err
	}

	switch n := node.(type) {
	case *LiteralNode:
		return evalLiteral(n)
	case *VariableNode:
		return evalVariableNode(ctx, root, n)
	case *IdentifierNode:
		return evalMemberAccess(ctx, root, target, inputOrdered, n, isRoot)
	case *CollectionLiteralNode:
		var out Collection
		for _, item := range n.Items {
			c, _, err := evalNode(ctx, root, target, inputOrdered, item, isRoot)
			if err != nil {
				return nil, false, err
			}
			out = append(out, c...)
		}
		return out, true, nil
	case *ParenNode:
		return evalNode(ctx, root, target, inputOrdered, n.Inner, isRoot)
	case *PathNode:
		base, baseOrdered, err := evalNode(ctx, root, target, inputOrdered, n.Base, isRoot)
		if err != nil {
			return nil, false, err
		}
		return evalMemberAccess(ctx, root, base, baseOrdered, n.Prop, false)
	case *IndexNode:
		base, baseOrdered, err := evalNode(ctx, root, target, inputOrdered, n.Base, isRoot)
		if err != nil {
			return nil, false, err
		}
		if !baseOrdered {
			return nil, false, fmt.Errorf("cannot index into an unordered collection")
		}
		idxColl, _, err := evalNode(ctx, root, target, inputOrdered, n.IndexExpr, false)
		if err != nil {
			return nil, false, err
		}
		idx, ok, err := Singleton[Integer](idxColl)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		i := int(idx)
		if i < 0 || i >= len(base) {
			return nil, true, nil
		}
		return Collection{base[i]}, true, nil
	case *UnaryOpNode:
		operand, ordered, err := evalNode(ctx, root, target, inputOrdered, n.Operand, isRoot)
		if err != nil {
			return nil, false, err
		}
		if n.Op == UnaryPlus {
			return operand, ordered, nil
		}
		negated, err := operand.Multiply(ctx, Collection{Integer(-1)})
		return negated, true, err
	case *FunctionCallNode:
		return evalCall(ctx, root, target, inputOrdered, n.Name, n.Args, isRoot)
	case *MethodCallNode:
		recv, recvOrdered, err := evalNode(ctx, root, target, inputOrdered, n.Receiver, isRoot)
		if err != nil {
			return nil, false, err
		}
		return evalCall(ctx, root, recv, recvOrdered, n.Name, n.Args, false)
	case *TypeOpNode:
		return evalTypeOp(ctx, root, target, inputOrdered, n, isRoot)
	case *BinaryOpNode:
		return evalBinaryOp(ctx, root, target, inputOrdered, n, isRoot)
	default:
		return nil, false, fmt.Errorf("unevaluated node type %T", node)
	}
}

func evalLiteral(n *LiteralNode) (Collection, bool, error) {
	switch n.Kind {
	case LiteralNull:
		return nil, true, nil
	case LiteralBoolean:
		return Collection{Boolean(n.Text == "true")}, true, nil
	case LiteralString:
		return Collection{String(n.Text)}, true, nil
	case LiteralInteger:
		v, err := parseInt32Literal(n.Text)
		if err != nil {
			return nil, false, err
		}
		return Collection{Integer(v)}, true, nil
	case LiteralLong:
		v, err := parseInt64Literal(n.Text)
		if err != nil {
			return nil, false, err
		}
		return Collection{Long(v)}, true, nil
	case LiteralDecimal:
		d, _, err := apdFromDecimalText(n.Text)
		if err != nil {
			return nil, false, err
		}
		return Collection{Decimal{Value: d}}, true, nil
	case LiteralDate:
		d, err := ParseDate(n.Text)
		return Collection{d}, true, err
	case LiteralTime:
		t, err := ParseTime(n.Text)
		return Collection{t}, true, err
	case LiteralDateTime:
		dt, err := ParseDateTime(n.Text)
		return Collection{dt}, true, err
	case LiteralQuantity:
		q, err := ParseQuantity(n.Text + " " + n.Unit)
		return Collection{q}, true, err
	default:
		return nil, false, fmt.Errorf("unknown literal kind %v", n.Kind)
	}
}

// evalVariableNode resolves $this/$index/$total/%name (spec.md §3's
// Variable AST node), grounded on the teacher's ThisInvocationContext /
// IndexInvocationContext / TotalInvocationContext / evalExternalConstant
// (fhirpath/invocation.go, fhirpath/expression.go).
func evalVariableNode(ctx context.Context, root Element, n *VariableNode) (Collection, bool, error) {
	switch n.Sigil {
	case SigilThis:
		if scope, ok := getFunctionScope(ctx); ok && scope.this != nil {
			return Collection{scope.this}, true, nil
		}
		if root == nil {
			return nil, false, fmt.Errorf("$this has no value outside a lambda or root context")
		}
		return Collection{root}, true, nil
	case SigilIndex:
		scope, ok := getFunctionScope(ctx)
		if !ok {
			return nil, false, fmt.Errorf("$index not defined outside a lambda")
		}
		return Collection{Integer(scope.index)}, true, nil
	case SigilTotal:
		scope, ok := getFunctionScope(ctx)
		if !ok || !scope.aggregate {
			return nil, false, fmt.Errorf("$total not defined (only inside aggregate)")
		}
		return scope.total, true, nil
	default:
		value, ok := envValue(ctx, n.Name)
		if !ok {
			return nil, false, fmt.Errorf("%w: %q", ErrUnknownVariable, n.Name)
		}
		return value, true, nil
	}
}

func evalMemberAccess(
	ctx context.Context,
	root Element, target Collection,
	inputOrdered bool,
	ident *IdentifierNode,
	isRoot bool,
) (Collection, bool, error) {
	var members Collection
	for _, e := range target {
		members = append(members, e.Children(ident.Name)...)
	}
	if len(members) > 0 {
		return members, inputOrdered, nil
	}
	if isRoot {
		if expected, ok := resolveType(ctx, TypeSpecifier{Name: ident.Name}); ok {
			if root == nil {
				return nil, false, fmt.Errorf("no root element to type-check against")
			}
			if !subTypeOf(ctx, root.TypeInfo(), expected) {
				return nil, false, fmt.Errorf("expected element of type %s, got %s", expected, root.TypeInfo())
			}
			return Collection{root}, inputOrdered, nil
		}
	}
	return members, inputOrdered, nil
}

func evalTypeOp(
	ctx context.Context,
	root Element, target Collection,
	inputOrdered bool,
	n *TypeOpNode,
	isRoot bool,
) (Collection, bool, error) {
	operand, _, err := evalNode(ctx, root, target, inputOrdered, n.Operand, isRoot)
	if err != nil {
		return nil, false, err
	}
	if len(operand) == 0 {
		return nil, true, nil
	}
	if len(operand) != 1 {
		kw := "is"
		if n.Op == TypeOpAs {
			kw = "as"
		}
		return nil, false, fmt.Errorf("%s requires a single input element, got %d", kw, len(operand))
	}
	switch n.Op {
	case TypeOpIs:
		b, err := isType(ctx, operand[0], n.Type)
		return Collection{b}, true, err
	case TypeOpAs:
		c, err := asType(ctx, operand[0], n.Type)
		return c, true, err
	default:
		return nil, false, fmt.Errorf("unknown type operator")
	}
}

func evalBinaryOp(
	ctx context.Context,
	root Element, target Collection,
	inputOrdered bool,
	n *BinaryOpNode,
	isRoot bool,
) (Collection, bool, error) {
	switch n.Op {
	case OpUnion:
		leftCtx, _ := withNewEnvStackFrame(ctx)
		left, leftOrdered, err := evalNode(leftCtx, root, target, inputOrdered, n.Left, isRoot)
		if err != nil {
			return nil, false, err
		}
		rightCtx, _ := withNewEnvStackFrame(ctx)
		right, rightOrdered, err := evalNode(rightCtx, root, target, inputOrdered, n.Right, isRoot)
		if err != nil {
			return nil, false, err
		}
		return left.Union(right), leftOrdered && rightOrdered, nil

	case OpAnd:
		return evalAnd(ctx, root, target, inputOrdered, n, isRoot)
	case OpOr, OpXor:
		return evalOrXor(ctx, root, target, inputOrdered, n, isRoot)
	case OpImplies:
		return evalImplies(ctx, root, target, inputOrdered, n, isRoot)
	}

	left, leftOrdered, err := evalNode(ctx, root, target, inputOrdered, n.Left, isRoot)
	if err != nil {
		return nil, false, err
	}
	right, rightOrdered, err := evalNode(ctx, root, target, inputOrdered, n.Right, isRoot)
	if err != nil {
		return nil, false, err
	}

	switch n.Op {
	case OpMul:
		r, err := left.Multiply(ctx, right)
		return r, true, err
	case OpDiv:
		r, err := left.Divide(ctx, right)
		return r, true, err
	case OpIntDiv:
		r, err := left.Div(ctx, right)
		return r, true, err
	case OpMod:
		r, err := left.Mod(ctx, right)
		return r, true, err
	case OpAdd:
		r, err := left.Add(ctx, right)
		return r, true, err
	case OpSub:
		r, err := left.Subtract(ctx, right)
		return r, true, err
	case OpConcat:
		r, err := left.Concat(right)
		return r, true, err
	case OpLt, OpLtEq, OpGt, OpGtEq:
		cmp, ok, err := left.Cmp(right)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		var b bool
		switch n.Op {
		case OpLt:
			b = cmp < 0
		case OpLtEq:
			b = cmp <= 0
		case OpGt:
			b = cmp > 0
		case OpGtEq:
			b = cmp >= 0
		}
		return Collection{Boolean(b)}, true, nil
	case OpEq, OpNotEq:
		if (len(left) > 1 || len(right) > 1) && (!leftOrdered || !rightOrdered) {
			return nil, false, fmt.Errorf("equality requires ordered inputs when comparing collections of more than one element")
		}
		eq, ok := left.Equal(right)
		if !ok {
			return nil, false, nil
		}
		if n.Op == OpNotEq {
			eq = !eq
		}
		return Collection{Boolean(eq)}, true, nil
	case OpEquivalent, OpNotEquivalent:
		eq := left.Equivalent(right)
		if n.Op == OpNotEquivalent {
			eq = !eq
		}
		return Collection{Boolean(eq)}, true, nil
	case OpIn:
		if len(left) == 0 {
			return nil, false, nil
		}
		if len(left) > 1 {
			return nil, false, fmt.Errorf("left operand of \"in\" has more than 1 value")
		}
		return Collection{Boolean(right.Contains(left[0]))}, true, nil
	case OpContains:
		if len(right) == 0 {
			return nil, false, nil
		}
		if len(right) > 1 {
			return nil, false, fmt.Errorf("right operand of \"contains\" has more than 1 value")
		}
		return Collection{Boolean(left.Contains(right[0]))}, true, nil
	default:
		return nil, false, fmt.Errorf("unhandled binary operator %v", n.Op)
	}
}

// evalAnd/evalOrXor/evalImplies implement FHIRPath's three-valued boolean
// logic (spec.md §4.2): each operand's truthiness is read via Singleton
// conversion, and an empty-but-indeterminate side is only definitive when
// the other side's value already decides the result.
func evalAnd(ctx context.Context, root Element, target Collection, inputOrdered bool, n *BinaryOpNode, isRoot bool) (Collection, bool, error) {
	left, _, err := evalNode(ctx, root, target, inputOrdered, n.Left, isRoot)
	if err != nil {
		return nil, false, err
	}
	right, _, err := evalNode(ctx, root, target, inputOrdered, n.Right, isRoot)
	if err != nil {
		return nil, false, err
	}
	ls, lok, err := Singleton[Boolean](left)
	if err != nil {
		return nil, false, err
	}
	rs, rok, err := Singleton[Boolean](right)
	if err != nil {
		return nil, false, err
	}
	switch {
	case lok && !bool(ls):
		return Collection{Boolean(false)}, true, nil
	case rok && !bool(rs):
		return Collection{Boolean(false)}, true, nil
	case lok && rok:
		return Collection{Boolean(true)}, true, nil
	default:
		return nil, true, nil
	}
}

func evalOrXor(ctx context.Context, root Element, target Collection, inputOrdered bool, n *BinaryOpNode, isRoot bool) (Collection, bool, error) {
	left, _, err := evalNode(ctx, root, target, inputOrdered, n.Left, isRoot)
	if err != nil {
		return nil, false, err
	}
	right, _, err := evalNode(ctx, root, target, inputOrdered, n.Right, isRoot)
	if err != nil {
		return nil, false, err
	}
	ls, lok, err := Singleton[Boolean](left)
	if err != nil {
		return nil, false, err
	}
	rs, rok, err := Singleton[Boolean](right)
	if err != nil {
		return nil, false, err
	}
	if n.Op == OpOr {
		switch {
		case lok && bool(ls):
			return Collection{Boolean(true)}, true, nil
		case rok && bool(rs):
			return Collection{Boolean(true)}, true, nil
		case lok && rok:
			return Collection{Boolean(false)}, true, nil
		default:
			return nil, true, nil
		}
	}
	// xor requires both sides known.
	if !lok || !rok {
		return nil, true, nil
	}
	return Collection{Boolean(bool(ls) != bool(rs))}, true, nil
}

func evalImplies(ctx context.Context, root Element, target Collection, inputOrdered bool, n *BinaryOpNode, isRoot bool) (Collection, bool, error) {
	left, _, err := evalNode(ctx, root, target, inputOrdered, n.Left, isRoot)
	if err != nil {
		return nil, false, err
	}
	right, _, err := evalNode(ctx, root, target, inputOrdered, n.Right, isRoot)
	if err != nil {
		return nil, false, err
	}
	ls, lok, err := Singleton[Boolean](left)
	if err != nil {
		return nil, false, err
	}
	rs, rok, err := Singleton[Boolean](right)
	if err != nil {
		return nil, false, err
	}
	switch {
	case lok && bool(ls):
		if rok {
			return Collection{rs}, true, nil
		}
		return nil, true, nil
	case lok && !bool(ls):
		return Collection{Boolean(true)}, true, nil
	case rok && bool(rs):
		return Collection{Boolean(true)}, true, nil
	default:
		return nil, true, nil
	}
}

func evalCall(
	ctx context.Context,
	root Element, target Collection,
	inputOrdered bool,
	name *IdentifierNode,
	argNodes []Node,
	isRoot bool,
) (Collection, bool, error) {
	fn, ok := getFunction(ctx, name.Name)
	if !ok {
		return nil, false, fmt.Errorf("function %q not found", name.Name)
	}
	args := buildSortAwareArgs(name.Name, argNodes)

	evaluate := func(ctx context.Context, evalTarget Collection, expr Expression, scope *FunctionScope) (Collection, bool, error) {
		ctx, _ = withNewEnvStackFrame(ctx)
		parentScope, parentOK := getFunctionScope(ctx)
		if scope != nil {
			fs := functionScope{index: scope.Index}
			if len(evalTarget) == 1 {
				fs.this = evalTarget[0]
			}
			if parentOK && parentScope.aggregate {
				fs.aggregate = true
				fs.total = parentScope.total
			}
			if name.Name == "aggregate" {
				fs.aggregate = true
				fs.total = scope.Total
			}
			ctx = withFunctionScope(ctx, fs)
		}
		resolvedTarget := evalTarget
		if len(resolvedTarget) == 0 {
			if s, ok := getFunctionScope(ctx); ok && s.this != nil {
				resolvedTarget = Collection{s.this}
			} else if root != nil {
				resolvedTarget = Collection{root}
			}
		}
		return evalNode(ctx, root, resolvedTarget, true, expr.node, true)
	}

	return fn(ctx, root, target, inputOrdered, args, evaluate)
}

func buildSortAwareArgs(fnName string, argNodes []Node) []Expression {
	args := make([]Expression, 0, len(argNodes))
	for _, a := range argNodes {
		dir := sortDirectionNone
		node := a
		if fnName == "sort" {
			node, dir = normalizeLegacySortDirection(a)
		}
		args = append(args, Expression{node: node, sort: dir})
	}
	return args
}

// normalizeLegacySortDirection reads a leading unary minus as `desc`, per
// SPEC_FULL.md's sort() supplement (grounded on the teacher's
// normalizeLegacySortDirection in invocation.go).
func normalizeLegacySortDirection(n Node) (Node, sortDirection) {
	if u, ok := n.(*UnaryOpNode); ok && u.Op == UnaryMinus {
		return u.Operand, sortDirectionDesc
	}
	return n, sortDirectionNone
}

// Singleton extracts the single element of c as type T, converting if
// necessary; ok is false for an empty collection, and err is returned for
// a collection with more than one element. Grounded on the teacher's
// Singleton (fhirpath/expression.go), used throughout the boolean-logic
// operators and functions that require a single input value.
func Singleton[T Element](c Collection) (v T, ok bool, err error) {
	if len(c) == 0 {
		return v, false, nil
	}
	if len(c) > 1 {
		return v, false, fmt.Errorf("cannot convert to singleton: collection has %d elements", len(c))
	}
	v, ok, err = elementTo[T](c[0], false)
	if _, wantBool := any(v).(Boolean); err != nil && wantBool {
		return any(Boolean(true)).(T), true, nil
	}
	return v, ok, err
}
