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

// AreEquivalent reports whether two expressions are semantically equivalent
// up to simplification, operand order of commutative connectives, and
// comparison orientation. It is used to decide whether a rewrite actually
// changed anything, so a false negative only costs an unnecessary "changed"
// report, never correctness.
func AreEquivalent(a, b rowexpr.RowExpression) bool {
	return canonicalize(Simplify(a)).String() == canonicalize(Simplify(b)).String()
}

func canonicalize(expr rowexpr.RowExpression) rowexpr.RowExpression {
	call, ok := expr.(*rowexpr.Call)
	if !ok {
		return expr
	}

	args := call.Arguments()
	canonical := make([]rowexpr.RowExpression, len(args))
	for i, arg := range args {
		canonical[i] = canonicalize(arg)
	}

	switch call.Name() {
	case rowexpr.And, rowexpr.Or:
		var flat []rowexpr.RowExpression
		for _, operand := range canonical {
			flat = extractInto(call.Name(), operand, flat)
		}
		sort.Slice(flat, func(i, j int) bool { return flat[i].String() < flat[j].String() })
		if call.Name() == rowexpr.And {
			return rowexpr.CombineConjuncts(flat...)
		}
		return rowexpr.CombineDisjuncts(flat...)
	case rowexpr.Equal, rowexpr.NotEqual,
		rowexpr.LessThan, rowexpr.LessThanOrEqual,
		rowexpr.GreaterThan, rowexpr.GreaterThanOrEqual,
		rowexpr.IsDistinctFrom:
		if canonical[0].String() > canonical[1].String() {
			return rowexpr.NewComparison(rowexpr.Negate(call.Name()), canonical[1], canonical[0])
		}
	}

	return rebuildIfChanged(call, canonical)
}
