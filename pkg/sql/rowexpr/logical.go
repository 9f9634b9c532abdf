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

package rowexpr

import "github.com/imillan/presto/pkg/sql/types"

// ExtractConjuncts decomposes a predicate at top-level AND into its operands.
// A non-AND predicate is its own single conjunct.
func ExtractConjuncts(predicate RowExpression) []RowExpression {
	return extractPredicates(And, predicate, nil)
}

// ExtractDisjuncts decomposes a predicate at top-level OR into its operands.
func ExtractDisjuncts(predicate RowExpression) []RowExpression {
	return extractPredicates(Or, predicate, nil)
}

func extractPredicates(op OperatorName, expr RowExpression, out []RowExpression) []RowExpression {
	if call, ok := expr.(*Call); ok && call.Name() == op {
		for _, arg := range call.Arguments() {
			out = extractPredicates(op, arg, out)
		}
		return out
	}
	return append(out, expr)
}

// CombineConjuncts folds a list of conjuncts back into a single predicate.
// TRUE members are dropped, duplicate conjuncts are kept once, an empty list
// collapses to TRUE and any FALSE member collapses the result to FALSE.
func CombineConjuncts(conjuncts ...RowExpression) RowExpression {
	return combinePredicates(And, conjuncts)
}

// CombineDisjuncts is the OR dual of CombineConjuncts: FALSE members are
// dropped, an empty list collapses to FALSE, any TRUE member to TRUE.
func CombineDisjuncts(disjuncts ...RowExpression) RowExpression {
	return combinePredicates(Or, disjuncts)
}

func combinePredicates(op OperatorName, operands []RowExpression) RowExpression {
	short, identity := FalseConstant, TrueConstant
	if op == Or {
		short, identity = TrueConstant, FalseConstant
	}

	var flat []RowExpression
	for _, operand := range operands {
		flat = extractPredicates(op, operand, flat)
	}

	seen := make(map[string]struct{}, len(flat))
	kept := flat[:0]
	for _, operand := range flat {
		if Equals(operand, short) {
			return short
		}
		if Equals(operand, identity) {
			continue
		}
		key := operand.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, operand)
	}

	switch len(kept) {
	case 0:
		return identity
	case 1:
		return kept[0]
	}
	result := kept[len(kept)-1]
	for i := len(kept) - 2; i >= 0; i-- {
		result = NewCall(op, types.Boolean, kept[i], result)
	}
	return result
}

// FilterDeterministicConjuncts returns the predicate restricted to its
// deterministic conjuncts.
func FilterDeterministicConjuncts(predicate RowExpression) RowExpression {
	return filterConjuncts(predicate, IsDeterministic)
}

// FilterNonDeterministicConjuncts returns the predicate restricted to its
// non-deterministic conjuncts.
func FilterNonDeterministicConjuncts(predicate RowExpression) RowExpression {
	return filterConjuncts(predicate, func(e RowExpression) bool { return !IsDeterministic(e) })
}

func filterConjuncts(predicate RowExpression, keep func(RowExpression) bool) RowExpression {
	var kept []RowExpression
	for _, conjunct := range ExtractConjuncts(predicate) {
		if keep(conjunct) {
			kept = append(kept, conjunct)
		}
	}
	return CombineConjuncts(kept...)
}
