/*
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package planner

import (
	"sort"

	"github.com/imillan/presto/pkg/sql/rowexpr"
)

// InequalityInference derives new ordering comparisons implied by the
// ordering and equality conjuncts of a set of predicates, by transitivity
// through shared terms. Built from a join's predicate plus the inherited
// predicate; optionally scoped to an outer join's outer variable set, in
// which case only conjuncts pushable to the inner side are emitted.
type InequalityInference struct {
	outerVariables rowexpr.VariableSet // nil when unscoped
	base           []ordering
	equalities     *EqualityInference
	baseKeys       map[string]struct{}
}

// ordering is a comparison normalized to the form left < right or
// left <= right.
type ordering struct {
	left, right rowexpr.RowExpression
	strict      bool
}

// NewInequalityInference builds an inference from the given predicates.
// outerVariables may be nil for the unscoped (inner join) variant.
func NewInequalityInference(
	outerVariables rowexpr.VariableSet, predicates ...rowexpr.RowExpression,
) *InequalityInference {
	inf := &InequalityInference{
		outerVariables: outerVariables,
		equalities:     NewEqualityInference(predicates...),
		baseKeys:       make(map[string]struct{}),
	}
	for _, predicate := range predicates {
		for _, conjunct := range rowexpr.ExtractConjuncts(predicate) {
			ord, ok := asOrdering(conjunct)
			if !ok {
				continue
			}
			inf.base = append(inf.base, ord)
			inf.baseKeys[ord.key()] = struct{}{}
		}
	}
	return inf
}

func asOrdering(conjunct rowexpr.RowExpression) (ordering, bool) {
	call, ok := conjunct.(*rowexpr.Call)
	if !ok || len(call.Arguments()) != 2 || !rowexpr.IsOrderingOperator(call.Name()) {
		return ordering{}, false
	}
	if !rowexpr.IsDeterministic(call) {
		return ordering{}, false
	}
	left, right := call.Arguments()[0], call.Arguments()[1]
	switch call.Name() {
	case rowexpr.LessThan:
		return ordering{left: left, right: right, strict: true}, true
	case rowexpr.LessThanOrEqual:
		return ordering{left: left, right: right, strict: false}, true
	case rowexpr.GreaterThan:
		return ordering{left: right, right: left, strict: true}, true
	case rowexpr.GreaterThanOrEqual:
		return ordering{left: right, right: left, strict: false}, true
	}
	return ordering{}, false
}

func (o ordering) key() string {
	op := "<="
	if o.strict {
		op = "<"
	}
	return o.left.String() + op + o.right.String()
}

func (o ordering) expression() rowexpr.RowExpression {
	op := rowexpr.LessThanOrEqual
	if o.strict {
		op = rowexpr.LessThan
	}
	return rowexpr.NewComparison(op, o.left, o.right)
}

// InferInequalities returns the novel ordering comparisons derivable by one
// step of transitive chaining, deduplicated and in deterministic order. Only
// derived conjuncts are returned, never the base comparisons themselves.
func (inf *InequalityInference) InferInequalities() []rowexpr.RowExpression {
	derived := make(map[string]ordering)
	for _, ab := range inf.base {
		for _, cd := range inf.base {
			if !inf.sameTerm(ab.right, cd.left) {
				continue
			}
			candidate := ordering{left: ab.left, right: cd.right, strict: ab.strict || cd.strict}
			if candidate.left.String() == candidate.right.String() {
				continue
			}
			if _, known := inf.baseKeys[candidate.key()]; known {
				continue
			}
			if !inf.admissible(candidate) {
				continue
			}
			derived[candidate.key()] = candidate
		}
	}

	keys := make([]string, 0, len(derived))
	for key := range derived {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]rowexpr.RowExpression, 0, len(keys))
	for _, key := range keys {
		out = append(out, derived[key].expression())
	}
	return out
}

// sameTerm reports whether two expressions are the same term for chaining
// purposes: structurally equal, or members of one equivalence class.
func (inf *InequalityInference) sameTerm(a, b rowexpr.RowExpression) bool {
	if rowexpr.Equals(a, b) {
		return true
	}
	aIdx, aok := inf.equalities.byKey[a.String()]
	bIdx, bok := inf.equalities.byKey[b.String()]
	return aok && bok && aIdx == bIdx
}

// admissible applies the scope rule: scoped inferences feed an outer join's
// inner-side pushdown and must not mention outer variables; unscoped
// inferences join the residual bucket and are unrestricted.
func (inf *InequalityInference) admissible(candidate ordering) bool {
	if inf.outerVariables == nil {
		return true
	}
	return rowexpr.AllVariablesMatch(candidate.expression(), rowexpr.NotIn(inf.outerVariables))
}
