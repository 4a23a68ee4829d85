package fhirpath

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"html"
	"math"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// This file is the built-in Functions registry (spec.md §4.6), grounded on
// the teacher's fhirpath/functions.go: one map entry per function, each a
// closure receiving its arguments unevaluated (as Expression) so lambda-
// taking functions control exactly when and against what target each
// argument runs.

// maxRepeatResultSize bounds repeat()'s iterative growth so a cyclic
// or runaway expression fails fast instead of exhausting memory.
const maxRepeatResultSize = 200_000

var defaultFunctions = Functions{
	// --- Type functions ---

	"type": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 0 {
			return nil, false, fmt.Errorf("type() expects no parameters")
		}
		result = make(Collection, 0, len(target))
		for _, elem := range target {
			result = append(result, elem.TypeInfo())
		}
		return result, inputOrdered, nil
	},
	"is": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return nil, true, nil
		}
		if len(target) > 1 {
			return nil, false, fmt.Errorf("is() expects a single input element")
		}
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("is() expects a single type specifier")
		}
		typeSpec := ParseTypeSpecifier(parameters[0].String())
		b, err := isType(ctx, target[0], typeSpec)
		if err != nil {
			return nil, false, err
		}
		return Collection{b}, true, nil
	},
	"as": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return nil, true, nil
		}
		if len(target) > 1 {
			return nil, false, fmt.Errorf("as() expects a single input element")
		}
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("as() expects a single type specifier")
		}
		typeSpec := ParseTypeSpecifier(parameters[0].String())
		c, err := asType(ctx, target[0], typeSpec)
		if err != nil {
			return nil, false, err
		}
		return c, true, nil
	},
	"ofType": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("ofType() expects a single type specifier")
		}
		if len(target) == 0 {
			return nil, true, nil
		}
		typeSpec := ParseTypeSpecifier(parameters[0].String())
		for _, elem := range target {
			b, err := isType(ctx, elem, typeSpec)
			if err != nil {
				return nil, false, err
			}
			if bool(b) {
				result = append(result, elem)
			}
		}
		return result, inputOrdered, nil
	},

	// --- Boolean / existence functions ---

	"not": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 0 {
			return nil, false, fmt.Errorf("not() expects no parameters")
		}
		b, ok, err := Singleton[Boolean](target)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		return Collection{!b}, true, nil
	},
	"empty": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 0 {
			return nil, false, fmt.Errorf("empty() expects no parameters")
		}
		return Collection{Boolean(len(target) == 0)}, true, nil
	},
	"exists": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) > 1 {
			return nil, false, fmt.Errorf("exists() expects at most one criteria parameter")
		}
		if len(parameters) == 0 {
			return Collection{Boolean(len(target) > 0)}, true, nil
		}
		for i, elem := range target {
			criteria, _, err := evaluate(ctx, Collection{elem}, parameters[0], &FunctionScope{Index: i})
			if err != nil {
				return nil, false, err
			}
			b, ok, err := Singleton[Boolean](criteria)
			if err != nil {
				return nil, false, err
			}
			if ok && bool(b) {
				return Collection{Boolean(true)}, true, nil
			}
		}
		return Collection{Boolean(false)}, true, nil
	},
	// "any" is exists(criteria)'s required-criteria form under its own
	// name (spec.md §4.6's Existence group lists both); the bodies are
	// identical since FHIRPath treats exists(crit) and any(crit) as the
	// same test over the input collection.
	"any": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("any() expects a single criteria parameter")
		}
		for i, elem := range target {
			criteria, _, err := evaluate(ctx, Collection{elem}, parameters[0], &FunctionScope{Index: i})
			if err != nil {
				return nil, false, err
			}
			b, ok, err := Singleton[Boolean](criteria)
			if err != nil {
				return nil, false, err
			}
			if ok && bool(b) {
				return Collection{Boolean(true)}, true, nil
			}
		}
		return Collection{Boolean(false)}, true, nil
	},
	"all": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("all() expects a single criteria parameter")
		}
		if len(target) == 0 {
			return Collection{Boolean(true)}, true, nil
		}
		for i, elem := range target {
			criteria, _, err := evaluate(ctx, Collection{elem}, parameters[0], &FunctionScope{Index: i})
			if err != nil {
				return nil, false, err
			}
			b, ok, err := Singleton[Boolean](criteria)
			if err != nil {
				return nil, false, err
			}
			if !ok || !bool(b) {
				return Collection{Boolean(false)}, true, nil
			}
		}
		return Collection{Boolean(true)}, true, nil
	},
	"allTrue": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return Collection{Boolean(true)}, true, nil
		}
		for _, elem := range target {
			b, ok, err := elem.ToBoolean(false)
			if err != nil {
				return nil, false, err
			}
			if !ok || !bool(b) {
				return Collection{Boolean(false)}, true, nil
			}
		}
		return Collection{Boolean(true)}, true, nil
	},
	"anyTrue": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return Collection{Boolean(false)}, true, nil
		}
		for _, elem := range target {
			b, ok, err := elem.ToBoolean(false)
			if err != nil {
				return nil, false, err
			}
			if ok && bool(b) {
				return Collection{Boolean(true)}, true, nil
			}
		}
		return Collection{Boolean(false)}, true, nil
	},
	"allFalse": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return Collection{Boolean(true)}, true, nil
		}
		for _, elem := range target {
			b, ok, err := elem.ToBoolean(false)
			if err != nil {
				return nil, false, err
			}
			if !ok || bool(b) {
				return Collection{Boolean(false)}, true, nil
			}
		}
		return Collection{Boolean(true)}, true, nil
	},
	"anyFalse": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return Collection{Boolean(false)}, true, nil
		}
		for _, elem := range target {
			b, ok, err := elem.ToBoolean(false)
			if err != nil {
				return nil, false, err
			}
			if ok && !bool(b) {
				return Collection{Boolean(true)}, true, nil
			}
		}
		return Collection{Boolean(false)}, true, nil
	},
	"subsetOf": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("subsetOf() expects a single collection parameter")
		}
		if len(target) == 0 {
			return Collection{Boolean(true)}, true, nil
		}
		other, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		return Collection{Boolean(target.SubsetOf(other))}, true, nil
	},
	"supersetOf": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("supersetOf() expects a single collection parameter")
		}
		other, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		return Collection{Boolean(target.SupersetOf(other))}, true, nil
	},

	// --- Collection / filtering functions ---

	"count": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		return Collection{Integer(len(target))}, true, nil
	},
	"distinct": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return nil, true, nil
		}
		return target.Distinct(), false, nil
	},
	"isDistinct": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		return Collection{Boolean(target.IsDistinct())}, true, nil
	},
	"where": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("where() expects a single criteria parameter")
		}
		if len(target) == 0 {
			return nil, true, nil
		}
		for i, elem := range target {
			criteria, _, err := evaluate(ctx, Collection{elem}, parameters[0], &FunctionScope{Index: i})
			if err != nil {
				return nil, false, err
			}
			b, ok, err := Singleton[Boolean](criteria)
			if err != nil {
				return nil, false, err
			}
			if ok && bool(b) {
				result = append(result, elem)
			}
		}
		return result, inputOrdered, nil
	},
	"select": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("select() expects a single projection parameter")
		}
		if len(target) == 0 {
			return nil, true, nil
		}
		resultOrdered = inputOrdered
		for i, elem := range target {
			projection, ordered, err := evaluate(ctx, Collection{elem}, parameters[0], &FunctionScope{Index: i})
			if err != nil {
				return nil, false, err
			}
			result = append(result, projection...)
			if !ordered {
				resultOrdered = false
			}
		}
		return result, resultOrdered, nil
	},
	// sort is SPEC_FULL.md's supplemented ordering function: each parameter
	// is a sort key expression, optionally marked descending.
	"sort": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return nil, true, nil
		}

		type sortKey struct {
			empty bool
			value Element
		}
		type sortItem struct {
			elem Element
			keys []sortKey
		}

		items := make([]sortItem, len(target))
		for i, elem := range target {
			items[i].elem = elem
			if len(parameters) == 0 {
				continue
			}
			items[i].keys = make([]sortKey, len(parameters))
			for j, param := range parameters {
				keyResult, _, err := evaluate(ctx, Collection{elem}, param, &FunctionScope{Index: i})
				if err != nil {
					return nil, false, err
				}
				switch len(keyResult) {
				case 0:
					items[i].keys[j] = sortKey{empty: true}
				case 1:
					items[i].keys[j] = sortKey{value: keyResult[0]}
				default:
					return nil, false, fmt.Errorf("sort key %d evaluated to %d items (expected 0 or 1)", j+1, len(keyResult))
				}
			}
		}

		var sortErr error
		slices.SortStableFunc(items, func(a, b sortItem) int {
			if sortErr != nil {
				return 0
			}
			if len(parameters) == 0 {
				cmp, _, err := Collection{a.elem}.Cmp(Collection{b.elem})
				if err != nil {
					sortErr = err
					return 0
				}
				return cmp
			}
			for idx, param := range parameters {
				av, bv := a.keys[idx], b.keys[idx]
				if av.empty && bv.empty {
					continue
				}
				if av.empty {
					return -1
				}
				if bv.empty {
					return 1
				}
				cmp, _, err := Collection{av.value}.Cmp(Collection{bv.value})
				if err != nil {
					sortErr = err
					return 0
				}
				if cmp != 0 {
					if param.SortDescending() {
						cmp = -cmp
					}
					return cmp
				}
			}
			return 0
		})
		if sortErr != nil {
			return nil, false, sortErr
		}

		result = make(Collection, len(items))
		for i, item := range items {
			result[i] = item.elem
		}
		return result, true, nil
	},
	// repeat iteratively applies projection to its own output until no new
	// items appear, growth-bounded by maxRepeatResultSize so a cyclic
	// projection (e.g. repeat(parent)) fails instead of looping forever.
	"repeat": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("repeat() expects a single projection parameter")
		}
		current := target
		for {
			var newItems Collection
			for i, elem := range current {
				projection, _, err := evaluate(ctx, Collection{elem}, parameters[0], &FunctionScope{Index: i})
				if err != nil {
					return nil, false, err
				}
				for _, p := range projection {
					isNew := true
					for _, seen := range result {
						if eq, ok := seen.Equal(p); ok && eq {
							isNew = false
							break
						}
					}
					if isNew {
						newItems = append(newItems, p)
					}
				}
			}
			if len(newItems) == 0 {
				break
			}
			if len(result)+len(newItems) > maxRepeatResultSize {
				return nil, false, fmt.Errorf("%w: repeat() exceeded %d items", ErrCollectionLimit, maxRepeatResultSize)
			}
			result = append(result, newItems...)
			current = newItems
		}
		return result, false, nil
	},
	"aggregate": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) == 0 || len(parameters) > 2 {
			return nil, false, fmt.Errorf("aggregate() expects one or two parameters")
		}
		if len(target) == 0 {
			return nil, true, nil
		}

		total := Collection{}
		totalOrdered := inputOrdered
		if len(parameters) == 2 {
			total, totalOrdered, err = evaluate(ctx, nil, parameters[1], nil)
			if err != nil {
				return nil, false, err
			}
		}

		for i, elem := range target {
			var ordered bool
			total, ordered, err = evaluate(ctx, Collection{elem}, parameters[0], &FunctionScope{Index: i, Total: total})
			if err != nil {
				return nil, false, err
			}
			if !ordered {
				totalOrdered = false
			}
		}
		return total, totalOrdered, nil
	},
	"single": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return nil, true, nil
		}
		if len(target) > 1 {
			return nil, false, fmt.Errorf("single() expects 0 or 1 items, got %d", len(target))
		}
		return Collection{target[0]}, true, nil
	},
	"first": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return nil, true, nil
		}
		return Collection{target[0]}, true, nil
	},
	"last": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return nil, true, nil
		}
		return Collection{target[len(target)-1]}, true, nil
	},
	"tail": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) <= 1 {
			return nil, true, nil
		}
		return target[1:], inputOrdered, nil
	},
	"skip": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("skip() expects a single num parameter")
		}
		if len(target) == 0 {
			return nil, true, nil
		}
		numCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		num, ok, err := Singleton[Integer](numCollection)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, fmt.Errorf("skip() expects an integer parameter")
		}
		if num <= 0 {
			return target, inputOrdered, nil
		}
		if int(num) >= len(target) {
			return nil, true, nil
		}
		return target[num:], inputOrdered, nil
	},
	"take": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("take() expects a single num parameter")
		}
		if len(target) == 0 {
			return nil, true, nil
		}
		numCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		num, ok, err := Singleton[Integer](numCollection)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, fmt.Errorf("take() expects an integer parameter")
		}
		if num <= 0 {
			return nil, true, nil
		}
		if int(num) >= len(target) {
			return target, inputOrdered, nil
		}
		return target[:num], inputOrdered, nil
	},
	// "union" is the `|` operator's function-call form (spec.md §4.6's
	// Collection group names it alongside the operator); both dedupe by
	// structural equality via Collection.Union.
	"union": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("union() expects a single collection parameter")
		}
		other, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		return target.Union(other), false, nil
	},
	"intersect": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("intersect() expects a single collection parameter")
		}
		if len(target) == 0 {
			return nil, true, nil
		}
		other, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		return target.Intersect(other), false, nil
	},
	"exclude": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("exclude() expects a single collection parameter")
		}
		if len(target) == 0 {
			return nil, true, nil
		}
		other, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		return target.Exclude(other), inputOrdered, nil
	},
	"combine": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("combine() expects a single collection parameter")
		}
		other, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		return target.Combine(other), false, nil
	},
	"coalesce": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) == 0 {
			return nil, false, fmt.Errorf("coalesce() expects at least one parameter")
		}
		for _, param := range parameters {
			value, ordered, err := evaluate(ctx, nil, param, nil)
			if err != nil {
				return nil, false, err
			}
			if len(value) > 0 {
				return value, ordered, nil
			}
		}
		return nil, true, nil
	},

	// --- String functions ---

	"indexOf": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("indexOf() expects a single substring parameter")
		}
		s, ok, err := Singleton[String](target)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		substringCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		substring, ok, err := Singleton[String](substringCollection)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		if substring == "" {
			return Collection{Integer(0)}, true, nil
		}
		return Collection{Integer(strings.Index(string(s), string(substring)))}, true, nil
	},
	"lastIndexOf": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("lastIndexOf() expects a single substring parameter")
		}
		s, ok, err := Singleton[String](target)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		substringCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		substring, ok, err := Singleton[String](substringCollection)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		if substring == "" {
			return Collection{Integer(len([]rune(s)))}, true, nil
		}
		return Collection{Integer(strings.LastIndex(string(s), string(substring)))}, true, nil
	},
	"substring": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) < 1 || len(parameters) > 2 {
			return nil, false, fmt.Errorf("substring() expects one or two parameters (start, [length])")
		}
		s, ok, err := Singleton[String](target)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		runes := []rune(string(s))
		runeCount := len(runes)

		startCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		if len(startCollection) == 0 {
			return nil, true, nil
		}
		start, ok, err := Singleton[Integer](startCollection)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, fmt.Errorf("substring() expects an integer start parameter")
		}
		startIdx := int(start)
		if startIdx < 0 || startIdx >= runeCount {
			return nil, true, nil
		}

		if len(parameters) == 2 {
			lengthCollection, _, err := evaluate(ctx, nil, parameters[1], nil)
			if err != nil {
				return nil, false, err
			}
			if len(lengthCollection) == 0 {
				return Collection{String(string(runes[startIdx:]))}, true, nil
			}
			length, ok, err := Singleton[Integer](lengthCollection)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				return nil, false, fmt.Errorf("substring() expects an integer length parameter")
			}
			if length <= 0 {
				return Collection{String("")}, true, nil
			}
			end := startIdx + int(length)
			if end > runeCount {
				end = runeCount
			}
			return Collection{String(string(runes[startIdx:end]))}, true, nil
		}
		return Collection{String(string(runes[startIdx:]))}, true, nil
	},
	"startsWith": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("startsWith() expects a single prefix parameter")
		}
		s, ok, err := Singleton[String](target)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		prefixCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		prefix, ok, err := Singleton[String](prefixCollection)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, fmt.Errorf("startsWith() expects a string prefix parameter")
		}
		return Collection{Boolean(strings.HasPrefix(string(s), string(prefix)))}, true, nil
	},
	"endsWith": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("endsWith() expects a single suffix parameter")
		}
		s, ok, err := Singleton[String](target)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		suffixCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		suffix, ok, err := Singleton[String](suffixCollection)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, fmt.Errorf("endsWith() expects a string suffix parameter")
		}
		return Collection{Boolean(strings.HasSuffix(string(s), string(suffix)))}, true, nil
	},
	"contains": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("contains() expects a single substring parameter")
		}
		s, ok, err := Singleton[String](target)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		substringCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		substring, ok, err := Singleton[String](substringCollection)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, fmt.Errorf("contains() expects a string substring parameter")
		}
		return Collection{Boolean(strings.Contains(string(s), string(substring)))}, true, nil
	},
	"upper": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		s, ok, err := Singleton[String](target)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		return Collection{String(strings.ToUpper(string(s)))}, true, nil
	},
	"lower": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		s, ok, err := Singleton[String](target)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		return Collection{String(strings.ToLower(string(s)))}, true, nil
	},
	"trim": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		s, ok, err := Singleton[String](target)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		return Collection{String(strings.TrimSpace(string(s)))}, true, nil
	},
	"replace": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 2 {
			return nil, false, fmt.Errorf("replace() expects pattern and substitution parameters")
		}
		s, ok, err := Singleton[String](target)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		patternCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		pattern, ok, err := Singleton[String](patternCollection)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, fmt.Errorf("replace() expects a string pattern parameter")
		}
		substitutionCollection, _, err := evaluate(ctx, nil, parameters[1], nil)
		if err != nil {
			return nil, false, err
		}
		substitution, ok, err := Singleton[String](substitutionCollection)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, fmt.Errorf("replace() expects a string substitution parameter")
		}
		if pattern == "" {
			var b strings.Builder
			b.WriteString(string(substitution))
			for _, c := range s {
				b.WriteRune(c)
				b.WriteString(string(substitution))
			}
			return Collection{String(b.String())}, true, nil
		}
		return Collection{String(strings.ReplaceAll(string(s), string(pattern), string(substitution)))}, true, nil
	},
	"matches": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("matches() expects a single regex parameter")
		}
		s, ok, err := Singleton[String](target)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		regexCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		regexStr, ok, err := Singleton[String](regexCollection)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		// FHIRPath regex matching runs in single-line mode by default ('.'
		// matches newlines), grounded on the teacher's "(?s)" prefix.
		re, err := regexp.Compile("(?s)" + string(regexStr))
		if err != nil {
			return nil, false, fmt.Errorf("matches(): invalid regular expression: %w", err)
		}
		return Collection{Boolean(re.MatchString(string(s)))}, true, nil
	},
	"replaceMatches": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 2 {
			return nil, false, fmt.Errorf("replaceMatches() expects regex and substitution parameters")
		}
		s, ok, err := Singleton[String](target)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		regexCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		regexStr, ok, err := Singleton[String](regexCollection)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		substitutionCollection, _, err := evaluate(ctx, nil, parameters[1], nil)
		if err != nil {
			return nil, false, err
		}
		substitution, ok, err := Singleton[String](substitutionCollection)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		re, err := regexp.Compile("(?s)" + string(regexStr))
		if err != nil {
			return nil, false, fmt.Errorf("replaceMatches(): invalid regular expression: %w", err)
		}
		return Collection{String(re.ReplaceAllString(string(s), string(substitution)))}, true, nil
	},
	"length": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		s, ok, err := Singleton[String](target)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		return Collection{Integer(len([]rune(string(s))))}, true, nil
	},
	"toChars": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		s, ok, err := Singleton[String](target)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		for _, c := range string(s) {
			result = append(result, String(c))
		}
		return result, true, nil
	},
	"split": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("split() expects a single separator parameter")
		}
		s, ok, err := Singleton[String](target)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		separatorCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		separator, ok, err := Singleton[String](separatorCollection)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, fmt.Errorf("split() expects a string separator parameter")
		}
		for _, part := range strings.Split(string(s), string(separator)) {
			result = append(result, String(part))
		}
		return result, true, nil
	},
	"join": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) > 1 {
			return nil, false, fmt.Errorf("join() expects at most one separator parameter")
		}
		if len(target) == 0 {
			return nil, true, nil
		}
		separator := String("")
		if len(parameters) == 1 {
			separatorCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
			if err != nil {
				return nil, false, err
			}
			sep, ok, err := Singleton[String](separatorCollection)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				return nil, false, fmt.Errorf("join() expects a string separator parameter")
			}
			separator = sep
		}
		parts := make([]string, 0, len(target))
		for _, elem := range target {
			s, ok, err := elementTo[String](elem, true)
			if err != nil || !ok {
				continue
			}
			parts = append(parts, string(s))
		}
		if len(parts) == 0 {
			return nil, true, nil
		}
		return Collection{String(strings.Join(parts, string(separator)))}, true, nil
	},
	"encode": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("encode() expects a single format parameter")
		}
		s, ok, err := Singleton[String](target)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		formatCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		format, ok, err := Singleton[String](formatCollection)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, fmt.Errorf("encode() expects a string format parameter")
		}
		switch string(format) {
		case "hex":
			return Collection{String(hex.EncodeToString([]byte(s)))}, true, nil
		case "base64":
			return Collection{String(base64.StdEncoding.EncodeToString([]byte(s)))}, true, nil
		case "urlbase64":
			return Collection{String(base64.URLEncoding.EncodeToString([]byte(s)))}, true, nil
		default:
			return nil, false, fmt.Errorf("encode(): unsupported format %q", format)
		}
	},
	"decode": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("decode() expects a single format parameter")
		}
		s, ok, err := Singleton[String](target)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		formatCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		format, ok, err := Singleton[String](formatCollection)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, fmt.Errorf("decode() expects a string format parameter")
		}
		var decoded []byte
		switch string(format) {
		case "hex":
			decoded, err = hex.DecodeString(string(s))
		case "base64":
			decoded, err = base64.StdEncoding.DecodeString(string(s))
		case "urlbase64":
			decoded, err = base64.URLEncoding.DecodeString(string(s))
		default:
			return nil, false, fmt.Errorf("decode(): unsupported format %q", format)
		}
		if err != nil {
			return nil, false, fmt.Errorf("decode(): %w", err)
		}
		return Collection{String(decoded)}, true, nil
	},
	"escape": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("escape() expects a single target format parameter")
		}
		s, ok, err := Singleton[String](target)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		targetCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		targetFormat, ok, err := Singleton[String](targetCollection)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, fmt.Errorf("escape() expects a string target format parameter")
		}
		switch string(targetFormat) {
		case "html":
			var b strings.Builder
			for _, r := range string(s) {
				switch r {
				case '<':
					b.WriteString("&lt;")
				case '>':
					b.WriteString("&gt;")
				case '&':
					b.WriteString("&amp;")
				case '"':
					b.WriteString("&quot;")
				case '\'':
					b.WriteString("&#39;")
				default:
					if r > 127 {
						fmt.Fprintf(&b, "&#%d;", r)
					} else {
						b.WriteRune(r)
					}
				}
			}
			return Collection{String(b.String())}, true, nil
		case "json":
			var b strings.Builder
			for _, r := range string(s) {
				switch r {
				case '"':
					b.WriteString(`\"`)
				case '\\':
					b.WriteString(`\\`)
				case '\n':
					b.WriteString(`\n`)
				case '\r':
					b.WriteString(`\r`)
				case '\t':
					b.WriteString(`\t`)
				case '\b':
					b.WriteString(`\b`)
				case '\f':
					b.WriteString(`\f`)
				default:
					b.WriteRune(r)
				}
			}
			return Collection{String(b.String())}, true, nil
		default:
			return nil, false, fmt.Errorf("escape(): unsupported target %q", targetFormat)
		}
	},
	"unescape": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("unescape() expects a single target format parameter")
		}
		s, ok, err := Singleton[String](target)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		targetCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		targetFormat, ok, err := Singleton[String](targetCollection)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, fmt.Errorf("unescape() expects a string target format parameter")
		}
		switch string(targetFormat) {
		case "html":
			return Collection{String(html.UnescapeString(string(s)))}, true, nil
		case "json":
			unescaped, err := unescapeJSONFragment(string(s))
			if err != nil {
				return nil, false, err
			}
			return Collection{String(unescaped)}, true, nil
		default:
			return nil, false, fmt.Errorf("unescape(): unsupported target %q", targetFormat)
		}
	},

	// --- Math functions ---

	"abs": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return nil, true, nil
		}
		if len(target) > 1 {
			return nil, false, fmt.Errorf("abs() expects a single input element")
		}
		if i, ok, _ := Singleton[Integer](target); ok {
			if i < 0 {
				return Collection{-i}, true, nil
			}
			return Collection{i}, true, nil
		}
		if d, ok, _ := Singleton[Decimal](target); ok {
			var abs apd.Decimal
			abs.Abs(d.Value)
			return Collection{Decimal{Value: &abs}}, true, nil
		}
		if q, ok, _ := Singleton[Quantity](target); ok {
			var abs apd.Decimal
			abs.Abs(q.Value.Value)
			return Collection{Quantity{Value: Decimal{Value: &abs}, Unit: q.Unit}}, true, nil
		}
		return nil, false, fmt.Errorf("abs(): expected Integer, Decimal, or Quantity, got %T", target[0])
	},
	"ceiling": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return nil, true, nil
		}
		if len(target) > 1 {
			return nil, false, fmt.Errorf("ceiling() expects a single input element")
		}
		if i, ok, _ := Singleton[Integer](target); ok {
			return Collection{i}, true, nil
		}
		if d, ok, _ := Singleton[Decimal](target); ok {
			var whole apd.Decimal
			if _, err := apdContext(ctx).Ceil(&whole, d.Value); err != nil {
				return nil, false, err
			}
			i64, err := whole.Int64()
			if err != nil {
				return nil, false, err
			}
			return Collection{Integer(i64)}, true, nil
		}
		return nil, false, fmt.Errorf("ceiling(): expected Integer or Decimal, got %T", target[0])
	},
	"floor": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return nil, true, nil
		}
		if len(target) > 1 {
			return nil, false, fmt.Errorf("floor() expects a single input element")
		}
		if i, ok, _ := Singleton[Integer](target); ok {
			return Collection{i}, true, nil
		}
		if d, ok, _ := Singleton[Decimal](target); ok {
			var whole apd.Decimal
			if _, err := apdContext(ctx).Floor(&whole, d.Value); err != nil {
				return nil, false, err
			}
			i64, err := whole.Int64()
			if err != nil {
				return nil, false, err
			}
			return Collection{Integer(i64)}, true, nil
		}
		return nil, false, fmt.Errorf("floor(): expected Integer or Decimal, got %T", target[0])
	},
	"truncate": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return nil, true, nil
		}
		if len(target) > 1 {
			return nil, false, fmt.Errorf("truncate() expects a single input element")
		}
		if i, ok, _ := Singleton[Integer](target); ok {
			return Collection{i}, true, nil
		}
		if d, ok, _ := Singleton[Decimal](target); ok {
			var whole apd.Decimal
			var err error
			if d.Value.Negative {
				_, err = apdContext(ctx).Ceil(&whole, d.Value)
			} else {
				_, err = apdContext(ctx).Floor(&whole, d.Value)
			}
			if err != nil {
				return nil, false, err
			}
			i64, err := whole.Int64()
			if err != nil {
				return nil, false, err
			}
			return Collection{Integer(i64)}, true, nil
		}
		return nil, false, fmt.Errorf("truncate(): expected Integer or Decimal, got %T", target[0])
	},
	"round": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) > 1 {
			return nil, false, fmt.Errorf("round() expects at most one precision parameter")
		}
		if len(target) == 0 {
			return nil, true, nil
		}
		if len(target) > 1 {
			return nil, false, fmt.Errorf("round() expects a single input element")
		}

		decimalPlaces := int64(0)
		if len(parameters) == 1 {
			c, _, err := evaluate(ctx, nil, parameters[0], nil)
			if err != nil {
				return nil, false, err
			}
			places, ok, err := Singleton[Integer](c)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				return nil, false, fmt.Errorf("round() expects an integer precision parameter")
			}
			if places < 0 {
				return nil, false, fmt.Errorf("round(): precision must be >= 0")
			}
			decimalPlaces = int64(places)
		}

		var dec *apd.Decimal
		if i, ok, _ := Singleton[Integer](target); ok {
			dec = apd.New(int64(i), 0)
		} else if d, ok, _ := Singleton[Decimal](target); ok {
			dec = d.Value
		} else {
			return nil, false, fmt.Errorf("round(): expected Integer or Decimal, got %T", target[0])
		}

		apdCtx := apdContext(ctx).WithPrecision(uint32(dec.NumDigits() + decimalPlaces))
		var rounded apd.Decimal
		if _, err := apdCtx.Quantize(&rounded, dec, int32(-decimalPlaces)); err != nil {
			return nil, false, err
		}
		return Collection{Decimal{Value: &rounded}}, true, nil
	},
	"exp": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return nil, true, nil
		}
		if len(target) > 1 {
			return nil, false, fmt.Errorf("exp() expects a single input element")
		}
		d, ok, err := decimalOperand(target[0])
		if err != nil || !ok {
			return nil, false, fmt.Errorf("exp(): expected Integer or Decimal, got %T", target[0])
		}
		var r apd.Decimal
		if _, err := apdContext(ctx).Exp(&r, d.Value); err != nil {
			return nil, false, err
		}
		return Collection{Decimal{Value: &r}}, true, nil
	},
	"ln": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return nil, true, nil
		}
		if len(target) > 1 {
			return nil, false, fmt.Errorf("ln() expects a single input element")
		}
		d, ok, err := decimalOperand(target[0])
		if err != nil || !ok {
			return nil, false, fmt.Errorf("ln(): expected Integer or Decimal, got %T", target[0])
		}
		var r apd.Decimal
		if _, err := apdContext(ctx).Ln(&r, d.Value); err != nil {
			return nil, false, err
		}
		return Collection{Decimal{Value: &r}}, true, nil
	},
	"log": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("log() expects a single base parameter")
		}
		if len(target) == 0 {
			return nil, true, nil
		}
		if len(target) > 1 {
			return nil, false, fmt.Errorf("log() expects a single input element")
		}
		baseCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		if len(baseCollection) == 0 {
			return nil, true, nil
		}
		base, ok, err := Singleton[Decimal](baseCollection)
		if err != nil || !ok {
			base, ok, err = decimalOperand(baseCollection[0])
			if err != nil || !ok {
				return nil, false, fmt.Errorf("log(): expected Integer or Decimal base, got %T", baseCollection[0])
			}
		}
		d, ok, err := decimalOperand(target[0])
		if err != nil || !ok {
			return nil, false, fmt.Errorf("log(): expected Integer or Decimal, got %T", target[0])
		}
		var lnX, lnBase, r apd.Decimal
		if _, err := apdContext(ctx).Ln(&lnX, d.Value); err != nil {
			return nil, false, err
		}
		if _, err := apdContext(ctx).Ln(&lnBase, base.Value); err != nil {
			return nil, false, err
		}
		if _, err := apdContext(ctx).Quo(&r, &lnX, &lnBase); err != nil {
			return nil, false, err
		}
		return Collection{Decimal{Value: &r}}, true, nil
	},
	"power": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("power() expects a single exponent parameter")
		}
		if len(target) == 0 {
			return nil, true, nil
		}
		if len(target) > 1 {
			return nil, false, fmt.Errorf("power() expects a single input element")
		}
		exponentCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		if len(exponentCollection) == 0 {
			return nil, true, nil
		}

		if i, ok, _ := Singleton[Integer](target); ok {
			if exp, ok, _ := Singleton[Integer](exponentCollection); ok {
				f := math.Pow(float64(i), float64(exp))
				if whole := int64(f); f == float64(whole) {
					return Collection{Integer(whole)}, true, nil
				}
				dec, _, err := apdFromFloat(f)
				if err != nil {
					return nil, false, err
				}
				return Collection{Decimal{Value: dec}}, true, nil
			}
		}

		exponent, ok, err := decimalOperand(exponentCollection[0])
		if err != nil || !ok {
			return nil, false, fmt.Errorf("power(): expected Integer or Decimal exponent, got %T", exponentCollection[0])
		}
		d, ok, err := decimalOperand(target[0])
		if err != nil || !ok {
			return nil, false, fmt.Errorf("power(): expected Integer or Decimal, got %T", target[0])
		}
		if d.Value.Negative {
			return nil, true, nil
		}
		var r apd.Decimal
		if _, err := apdContext(ctx).Pow(&r, d.Value, exponent.Value); err != nil {
			return nil, false, err
		}
		return Collection{Decimal{Value: &r}}, true, nil
	},
	"sqrt": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return nil, true, nil
		}
		if len(target) > 1 {
			return nil, false, fmt.Errorf("sqrt() expects a single input element")
		}
		d, ok, err := decimalOperand(target[0])
		if err != nil || !ok {
			return nil, false, fmt.Errorf("sqrt(): expected Integer or Decimal, got %T", target[0])
		}
		if d.Value.Negative {
			return nil, true, nil
		}
		var r apd.Decimal
		if _, err := apdContext(ctx).Sqrt(&r, d.Value); err != nil {
			return nil, false, err
		}
		return Collection{Decimal{Value: &r}}, true, nil
	},

	// --- Temporal boundary / precision functions ---

	"lowBoundary": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		return evalBoundary(ctx, target, parameters, evaluate, false)
	},
	"highBoundary": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		return evalBoundary(ctx, target, parameters, evaluate, true)
	},
	"precision": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return nil, true, nil
		}
		if len(target) > 1 {
			return nil, false, fmt.Errorf("precision() expects a single input element")
		}
		if d, ok, _ := Singleton[Decimal](target); ok {
			return Collection{Integer(d.Precision())}, true, nil
		}
		if d, ok, _ := Singleton[Date](target); ok {
			return Collection{Integer(d.Precision.dateDigits())}, true, nil
		}
		if dt, ok, _ := Singleton[DateTime](target); ok {
			return Collection{Integer(dateTimeDigits(dt.Precision))}, true, nil
		}
		if t, ok, _ := Singleton[Time](target); ok {
			return Collection{Integer(timeDigits(t.Precision))}, true, nil
		}
		return nil, false, fmt.Errorf("precision(): expected Decimal, Date, DateTime, or Time, got %T", target[0])
	},

	// --- Utility functions ---

	"trace": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) == 0 || len(parameters) > 2 {
			return nil, false, fmt.Errorf("trace() expects one or two parameters")
		}
		nameParam, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		name, ok, err := Singleton[String](nameParam)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, fmt.Errorf("trace(): name parameter cannot be empty")
		}

		logCollection := target
		if len(parameters) == 2 {
			logCollection = nil
			for i, elem := range target {
				projection, _, err := evaluate(ctx, Collection{elem}, parameters[1], &FunctionScope{Index: i})
				if err != nil {
					return nil, false, err
				}
				logCollection = append(logCollection, projection...)
			}
		}

		if err := getTracer(ctx).Log(string(name), logCollection); err != nil {
			return nil, false, err
		}
		return target, inputOrdered, nil
	},
	"defineVariable": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 && len(parameters) != 2 {
			return nil, false, fmt.Errorf("defineVariable() expects one or two parameters (name [, value])")
		}
		nameCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		name, ok, err := Singleton[String](nameCollection)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, fmt.Errorf("defineVariable() expects a string name parameter")
		}
		if _, isSystem := systemVariables[string(name)]; isSystem {
			return nil, false, fmt.Errorf("defineVariable(): cannot redefine system variable %%%s", name)
		}
		if frame, ok := envStackFrame(ctx); ok {
			if _, exists := frame[string(name)]; exists {
				return nil, false, fmt.Errorf("defineVariable(): variable %%%s already defined", name)
			}
		}

		value := target
		if len(parameters) == 2 {
			value, _, err = evaluate(ctx, target, parameters[1], nil)
			if err != nil {
				return nil, false, err
			}
		}
		WithEnv(ctx, string(name), value)
		return target, inputOrdered, nil
	},
	"now": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		instant := evaluationInstant(ctx)
		return Collection{DateTime{Value: instant, Precision: PrecisionMillisecond, TzSpecified: true}}, true, nil
	},
	"today": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		instant := evaluationInstant(ctx)
		d := time.Date(instant.Year(), instant.Month(), instant.Day(), 0, 0, 0, 0, instant.Location())
		return Collection{Date{Value: d, Precision: PrecisionDay}}, true, nil
	},
	"timeOfDay": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		instant := evaluationInstant(ctx)
		tod := time.Date(timeAnchorYear, timeAnchorMonth, timeAnchorDay, instant.Hour(), instant.Minute(), instant.Second(), instant.Nanosecond(), instant.Location())
		return Collection{Time{Value: tod, Precision: PrecisionMillisecond}}, true, nil
	},
	"iif": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) < 2 || len(parameters) > 3 {
			return nil, false, fmt.Errorf("iif() expects 2 or 3 parameters (criterion, true-result, [otherwise-result])")
		}
		if len(target) > 1 {
			return nil, false, fmt.Errorf("iif() requires an input collection with 0 or 1 items, got %d", len(target))
		}

		scope := &FunctionScope{Index: 0}
		if parent, ok := getFunctionScope(ctx); ok {
			scope = &FunctionScope{Index: parent.index}
		}

		criterion, _, err := evaluate(ctx, target, parameters[0], scope)
		if err != nil {
			return nil, false, err
		}
		b, ok, err := Singleton[Boolean](criterion)
		if err != nil {
			return nil, false, err
		}
		if ok && bool(b) {
			return evaluate(ctx, target, parameters[1], scope)
		}
		if len(parameters) == 3 {
			return evaluate(ctx, target, parameters[2], scope)
		}
		return nil, true, nil
	},
	"children": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return nil, true, nil
		}
		for _, elem := range target {
			result = append(result, elem.Children()...)
		}
		return result, false, nil
	},
	"descendants": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return nil, true, nil
		}
		current := target
		for {
			var newItems Collection
			for _, elem := range current {
				for _, child := range elem.Children() {
					isNew := true
					for _, seen := range result {
						if eq, ok := seen.Equal(child); ok && eq {
							isNew = false
							break
						}
					}
					if isNew {
						newItems = append(newItems, child)
					}
				}
			}
			if len(newItems) == 0 {
				break
			}
			if len(result)+len(newItems) > maxRepeatResultSize {
				return nil, false, fmt.Errorf("%w: descendants() exceeded %d items", ErrCollectionLimit, maxRepeatResultSize)
			}
			result = append(result, newItems...)
			current = newItems
		}
		return result, false, nil
	},
	"hasValue": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) != 1 {
			return nil, inputOrdered, nil
		}
		if hv, ok := target[0].(hasValuer); ok {
			return Collection{Boolean(hv.HasValue())}, true, nil
		}
		return Collection{Boolean(true)}, true, nil
	},
	"conformsTo": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("conformsTo() expects a single profile URL parameter")
		}
		if len(target) != 1 {
			return nil, false, fmt.Errorf("conformsTo() expects a single input resource")
		}
		res, ok := asResource(target[0])
		if !ok {
			return nil, false, fmt.Errorf("conformsTo(): input is not a resource")
		}
		urlCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		url, ok, err := Singleton[String](urlCollection)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, fmt.Errorf("conformsTo() expects a string profile URL parameter")
		}
		mp := getModelProvider(ctx)
		if err := requireModelProvider(mp, "conformsTo"); err != nil {
			return nil, false, err
		}
		outcome, err := mp.ConformsTo(ctx, res, string(url))
		if err != nil {
			return nil, false, NewModelError("conformsTo", err)
		}
		return Collection{Boolean(outcome.Valid)}, true, nil
	},
	// resolve() dereferences a literal Reference.reference/canonical URL;
	// without a package cache or HTTP client wired in (out of scope per
	// spec.md §1) it can only resolve references already present in the
	// evaluated resource tree, which this engine does not index, so it
	// conservatively returns empty.
	"resolve": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		return nil, true, nil
	},
	"extension": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("extension() expects a single url parameter")
		}
		urlCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		url, ok, err := Singleton[String](urlCollection)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, fmt.Errorf("extension() expects a string url parameter")
		}
		for _, elem := range target {
			for _, ext := range elem.Children("extension") {
				extURL, ok, err := Singleton[String](ext.Children("url"))
				if err == nil && ok && extURL == url {
					result = append(result, ext)
				}
			}
		}
		return result, inputOrdered, nil
	},

	// --- Conversion functions ---

	"toBoolean":          convertTo[Boolean](),
	"convertsToBoolean":  convertsTo[Boolean](),
	"toInteger":          convertTo[Integer](),
	"convertsToInteger":  convertsTo[Integer](),
	"toLong":             convertTo[Long](),
	"convertsToLong":     convertsTo[Long](),
	"toDecimal":          convertTo[Decimal](),
	"convertsToDecimal":  convertsTo[Decimal](),
	"toDate":             convertTo[Date](),
	"convertsToDate":     convertsTo[Date](),
	"toDateTime":         convertTo[DateTime](),
	"convertsToDateTime": convertsTo[DateTime](),
	"toTime":             convertTo[Time](),
	"convertsToTime":     convertsTo[Time](),
	"toString":           convertTo[String](),
	"convertsToString":   convertsTo[String](),

	"toQuantity": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) > 1 {
			return nil, false, fmt.Errorf("toQuantity() expects at most one unit parameter")
		}
		if len(target) == 0 {
			return nil, true, nil
		}
		if len(target) > 1 {
			return nil, false, fmt.Errorf("toQuantity(): collection contains > 1 values")
		}
		q, ok, err := elementTo[Quantity](target[0], true)
		if err != nil || !ok {
			return nil, true, nil
		}
		if len(parameters) == 1 {
			unitCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
			if err != nil {
				return nil, false, err
			}
			unit, ok, err := Singleton[String](unitCollection)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				return nil, false, fmt.Errorf("toQuantity() expects a string unit parameter")
			}
			q.Unit = unit
		}
		return Collection{q}, true, nil
	},
	"convertsToQuantity": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return Collection{Boolean(false)}, true, nil
		}
		if len(target) > 1 {
			return nil, false, fmt.Errorf("convertsToQuantity(): collection contains > 1 values")
		}
		_, ok, err := elementTo[Quantity](target[0], true)
		if err != nil || !ok {
			return Collection{Boolean(false)}, true, nil
		}
		return Collection{Boolean(true)}, true, nil
	},

	// comparable() reports whether two
	// quantity units reduce to the same dimension and are therefore
	// comparable without a runtime conversion failure.
	"comparable": func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(parameters) != 1 {
			return nil, false, fmt.Errorf("comparable() expects a single quantity parameter")
		}
		if len(target) == 0 {
			return nil, true, nil
		}
		inputQty, ok, err := Singleton[Quantity](target)
		if err != nil || !ok {
			return nil, false, fmt.Errorf("comparable(): input is not a Quantity")
		}
		paramCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		paramQty, ok, err := Singleton[Quantity](paramCollection)
		if err != nil || !ok {
			return nil, false, fmt.Errorf("comparable(): parameter is not a Quantity")
		}
		_, _, compatible := dimensionallyCompatible(string(inputQty.Unit), string(paramQty.Unit))
		return Collection{Boolean(compatible)}, true, nil
	},
}

// dateTimeDigits and timeDigits report the precision() digit count for
// DateTime and Time values (spec.md §4.6), extending Date's own
// dateDigits() (temporal.go) to the rest of the shared precision lattice.
func dateTimeDigits(p TemporalPrecision) int {
	switch p {
	case PrecisionYear:
		return 4
	case PrecisionMonth:
		return 6
	case PrecisionDay:
		return 8
	case PrecisionHour:
		return 10
	case PrecisionMinute:
		return 12
	case PrecisionSecond:
		return 14
	default:
		return 17
	}
}

func timeDigits(p TemporalPrecision) int {
	switch p {
	case PrecisionHour:
		return 2
	case PrecisionMinute:
		return 4
	case PrecisionSecond:
		return 6
	default:
		return 9
	}
}

// decimalOperand accepts either an Integer or a Decimal, widening an
// Integer the way arithmetic promotion does elsewhere in this package, for
// math functions whose domain is "numeric" rather than strictly Decimal.
func decimalOperand(e Element) (Decimal, bool, error) {
	if d, ok := e.(Decimal); ok {
		return d, true, nil
	}
	if i, ok := e.(Integer); ok {
		return Decimal{Value: apd.New(int64(i), 0)}, true, nil
	}
	return Decimal{}, false, nil
}

// evalBoundary backs lowBoundary()/highBoundary() (spec.md §4.6): dispatch
// over Decimal, Quantity, Date, DateTime, and Time. An explicit precision
// argument widens or narrows a temporal target to that digit-count
// precision exactly as it does for Decimal/Quantity, per
// compute_date_boundary/compute_datetime_boundary/compute_time_boundary in
// original_source's boundary_utils.rs.
func evalBoundary(
	ctx context.Context,
	target Collection,
	parameters []Expression,
	evaluate EvaluateFunc,
	high bool,
) (Collection, bool, error) {
	if len(target) == 0 {
		return nil, true, nil
	}
	if len(target) > 1 {
		return nil, false, fmt.Errorf("boundary function expects a single input element")
	}
	if len(parameters) > 1 {
		return nil, false, fmt.Errorf("boundary function expects at most one precision parameter")
	}

	var outputPrecision *int
	if len(parameters) == 1 {
		precisionCollection, _, err := evaluate(ctx, nil, parameters[0], nil)
		if err != nil {
			return nil, false, err
		}
		prec, ok, err := Singleton[Integer](precisionCollection)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, fmt.Errorf("boundary function expects an integer precision parameter")
		}
		if prec < 0 || prec > 31 {
			return nil, true, nil
		}
		p := int(prec)
		outputPrecision = &p
	}

	if d, ok, _ := Singleton[Decimal](target); ok {
		var boundary Decimal
		var err error
		if high {
			boundary, err = d.HighBoundary(ctx, outputPrecision)
		} else {
			boundary, err = d.LowBoundary(ctx, outputPrecision)
		}
		if err != nil {
			return nil, false, err
		}
		return Collection{boundary}, true, nil
	}
	if q, ok, _ := Singleton[Quantity](target); ok {
		var boundary Decimal
		var err error
		if high {
			boundary, err = q.Value.HighBoundary(ctx, outputPrecision)
		} else {
			boundary, err = q.Value.LowBoundary(ctx, outputPrecision)
		}
		if err != nil {
			return nil, false, err
		}
		q.Value = boundary
		return Collection{q}, true, nil
	}
	if d, ok, _ := Singleton[Date](target); ok {
		var tp *TemporalPrecision
		if outputPrecision != nil {
			p, ok := precisionFromDateDigits(*outputPrecision)
			if !ok {
				return nil, true, nil
			}
			tp = &p
		}
		if high {
			return Collection{d.HighBoundary(tp)}, true, nil
		}
		return Collection{d.LowBoundary(tp)}, true, nil
	}
	if dt, ok, _ := Singleton[DateTime](target); ok {
		var tp *TemporalPrecision
		if outputPrecision != nil {
			p, ok := precisionFromDateTimeDigits(*outputPrecision)
			if !ok {
				return nil, true, nil
			}
			tp = &p
		}
		if high {
			return Collection{dt.HighBoundary(tp)}, true, nil
		}
		return Collection{dt.LowBoundary(tp)}, true, nil
	}
	if t, ok, _ := Singleton[Time](target); ok {
		var tp *TemporalPrecision
		if outputPrecision != nil {
			p, ok := precisionFromTimeDigits(*outputPrecision)
			if !ok {
				return nil, true, nil
			}
			tp = &p
		}
		if high {
			return Collection{t.HighBoundary(tp)}, true, nil
		}
		return Collection{t.LowBoundary(tp)}, true, nil
	}
	return nil, false, fmt.Errorf("boundary function: expected Decimal, Quantity, Date, DateTime, or Time, got %T", target[0])
}

// convertTo builds a toX() conversion function generic over the target
// Element type, grounded on the teacher's per-type toBoolean/toInteger/...
// bodies, all of which share this empty/singleton/elementTo shape.
func convertTo[T Element]() Function {
	return func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return nil, true, nil
		}
		if len(target) > 1 {
			return nil, false, fmt.Errorf("conversion function: collection contains > 1 values")
		}
		v, ok, err := elementTo[T](target[0], true)
		if err != nil || !ok {
			return nil, true, nil
		}
		return Collection{v}, true, nil
	}
}

// convertsTo builds a convertsToX() predicate generic over the target
// Element type, mirroring convertTo but returning a Boolean instead of the
// converted value (and false rather than empty when input is empty).
func convertsTo[T Element]() Function {
	return func(
		ctx context.Context,
		root Element, target Collection,
		inputOrdered bool,
		parameters []Expression,
		evaluate EvaluateFunc,
	) (result Collection, resultOrdered bool, err error) {
		if len(target) == 0 {
			return Collection{Boolean(false)}, true, nil
		}
		if len(target) > 1 {
			return nil, false, fmt.Errorf("conversion predicate: collection contains > 1 values")
		}
		_, ok, err := elementTo[T](target[0], true)
		if err != nil || !ok {
			return Collection{Boolean(false)}, true, nil
		}
		return Collection{Boolean(true)}, true, nil
	}
}

// unescapeJSONFragment interprets JSON escape sequences (\", \\, \/, \n,
// \r, \t, \b, \f, \uXXXX) in s, grounded on the teacher's manual-scan
// unescape("json") body: Go's encoding/json expects a full JSON document,
// not a bare fragment, so the standard library can't do this directly.
func unescapeJSONFragment(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		switch s[i+1] {
		case '"':
			b.WriteByte('"')
			i++
		case '\\':
			b.WriteByte('\\')
			i++
		case '/':
			b.WriteByte('/')
			i++
		case 'b':
			b.WriteByte('\b')
			i++
		case 'f':
			b.WriteByte('\f')
			i++
		case 'n':
			b.WriteByte('\n')
			i++
		case 'r':
			b.WriteByte('\r')
			i++
		case 't':
			b.WriteByte('\t')
			i++
		case 'u':
			if i+5 < len(s) {
				var codePoint int
				if _, err := fmt.Sscanf(s[i+2:i+6], "%x", &codePoint); err == nil {
					b.WriteRune(rune(codePoint))
					i += 5
					continue
				}
			}
			b.WriteByte(s[i])
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String(), nil
}

// traceToStdout is StdoutTracer's default Log implementation (context.go),
// grounded on the teacher's StdoutTracer.Log (fhirpath/functions.go).
func traceToStdout(name string, collection Collection) error {
	_, err := fmt.Printf("%s: %v\n", name, collection)
	return err
}
