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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/imillan/presto/pkg/sql/rowexpr"
	"github.com/imillan/presto/pkg/sql/types"
)

func TestEqualityInferenceRewriteIntoScope(t *testing.T) {
	a, b := bigintVar("a"), bigintVar("b")
	inference := NewEqualityInference(rowexpr.EqualsCall(a, b))

	// a < 10 rewrites into {b} scope as b < 10.
	rewritten := inference.RewriteExpression(
		rowexpr.NewComparison(rowexpr.LessThan, a, bigintConst(10)),
		rowexpr.In(rowexpr.NewVariableSet(b)))
	require.NotNil(t, rewritten)
	require.True(t, rowexpr.Equals(rewritten,
		rowexpr.NewComparison(rowexpr.LessThan, b, bigintConst(10))))

	// No rewrite exists into a scope disjoint from the class.
	require.Nil(t, inference.RewriteExpression(
		rowexpr.NewComparison(rowexpr.LessThan, a, bigintConst(10)),
		rowexpr.In(rowexpr.NewVariableSet(bigintVar("c")))))
}

func TestEqualityInferenceRefusesNonDeterministic(t *testing.T) {
	a, b := bigintVar("a"), bigintVar("b")
	inference := NewEqualityInference(rowexpr.EqualsCall(a, b))

	random := rowexpr.NewComparison(rowexpr.LessThan, a, rowexpr.NewCall("random", types.Bigint))
	require.Nil(t, inference.RewriteExpression(random, rowexpr.In(rowexpr.NewVariableSet(a, b))))
	require.NotNil(t, inference.RewriteExpressionAllowNonDeterministic(
		random, rowexpr.In(rowexpr.NewVariableSet(a, b))))
}

func TestEqualityInferenceTransitiveClasses(t *testing.T) {
	a, b, c := bigintVar("a"), bigintVar("b"), bigintVar("c")
	inference := NewEqualityInference(rowexpr.CombineConjuncts(
		rowexpr.EqualsCall(a, b),
		rowexpr.EqualsCall(b, c),
	))

	// a and c are in one class even though no direct equality links them.
	rewritten := inference.RewriteExpression(
		rowexpr.EqualsCall(a, bigintConst(1)),
		rowexpr.In(rowexpr.NewVariableSet(c)))
	require.NotNil(t, rewritten)
	require.True(t, rowexpr.Equals(rewritten, rowexpr.EqualsCall(c, bigintConst(1))))
}

func TestGenerateEqualitiesPartitionedBy(t *testing.T) {
	a, b := bigintVar("a"), bigintVar("b")
	x, y := bigintVar("x"), bigintVar("y")
	// One class {a, b, x, y} with two members per side of the scope.
	inference := NewEqualityInference(rowexpr.CombineConjuncts(
		rowexpr.EqualsCall(a, b),
		rowexpr.EqualsCall(b, x),
		rowexpr.EqualsCall(x, y),
	))

	scope := rowexpr.NewVariableSet(a, b)
	partition := inference.GenerateEqualitiesPartitionedBy(rowexpr.In(scope))

	// Each bucket carries only variables on its side of the scope.
	for _, equality := range partition.ScopeEqualities {
		require.True(t, rowexpr.AllVariablesMatch(equality, rowexpr.In(scope)), "%s", equality)
	}
	for _, equality := range partition.ScopeComplementEqualities {
		require.True(t, rowexpr.AllVariablesMatch(equality, rowexpr.NotIn(scope)), "%s", equality)
	}
	require.Len(t, partition.ScopeEqualities, 1)
	require.Len(t, partition.ScopeComplementEqualities, 1)
	require.Len(t, partition.ScopeStraddlingEqualities, 1)

	// The partition together restores the whole class: a = b, x = y and one
	// connector crossing the scope.
	all := NewEqualityInference(rowexpr.CombineConjuncts(append(append(
		partition.ScopeEqualities,
		partition.ScopeComplementEqualities...),
		partition.ScopeStraddlingEqualities...)...))
	require.NotNil(t, all.RewriteExpression(
		rowexpr.EqualsCall(a, bigintConst(1)),
		rowexpr.In(rowexpr.NewVariableSet(y))))
}

func TestGenerateEqualitiesPartitionedByConstantAnchor(t *testing.T) {
	a, b := bigintVar("a"), bigintVar("b")
	// The constant joins the class and anchors both sides of the scope, so
	// each bucket gets a point equality and no connector is needed.
	inference := NewEqualityInference(rowexpr.CombineConjuncts(
		rowexpr.EqualsCall(a, bigintConst(5)),
		rowexpr.EqualsCall(a, b),
	))

	partition := inference.GenerateEqualitiesPartitionedBy(
		rowexpr.In(rowexpr.NewVariableSet(a)))

	require.Len(t, partition.ScopeEqualities, 1)
	require.True(t, rowexpr.Equals(partition.ScopeEqualities[0],
		rowexpr.EqualsCall(bigintConst(5), a)))
	require.Len(t, partition.ScopeComplementEqualities, 1)
	require.True(t, rowexpr.Equals(partition.ScopeComplementEqualities[0],
		rowexpr.EqualsCall(bigintConst(5), b)))
	require.Empty(t, partition.ScopeStraddlingEqualities)
}

func TestNonInferableConjuncts(t *testing.T) {
	a, b := bigintVar("a"), bigintVar("b")
	predicate := rowexpr.CombineConjuncts(
		rowexpr.EqualsCall(a, b),
		rowexpr.NewComparison(rowexpr.LessThan, a, bigintConst(10)),
		rowexpr.EqualsCall(a, nullBigint()),
	)

	rest := NonInferableConjuncts(predicate)
	// The equality is absorbed; the ordering comparison and the NULL equality
	// (which never proves equivalence) remain.
	require.Len(t, rest, 2)
}

func TestInequalityInferenceChainsThroughEqualities(t *testing.T) {
	a, b, c := bigintVar("a"), bigintVar("b"), bigintVar("c")

	// a < b and b <= c derive a < c.
	inference := NewInequalityInference(nil, rowexpr.CombineConjuncts(
		rowexpr.NewComparison(rowexpr.LessThan, a, b),
		rowexpr.NewComparison(rowexpr.LessThanOrEqual, b, c),
	))
	derived := inference.InferInequalities()
	require.Len(t, derived, 1)
	require.True(t, rowexpr.Equals(derived[0], rowexpr.NewComparison(rowexpr.LessThan, a, c)))

	// The chain also crosses an equality class: a < b, b = m, m < z.
	m, z := bigintVar("m"), bigintVar("z")
	inference = NewInequalityInference(nil, rowexpr.CombineConjuncts(
		rowexpr.NewComparison(rowexpr.LessThan, a, b),
		rowexpr.EqualsCall(b, m),
		rowexpr.NewComparison(rowexpr.LessThan, m, z),
	))
	derived = inference.InferInequalities()
	require.Len(t, derived, 1)
	require.True(t, rowexpr.Equals(derived[0], rowexpr.NewComparison(rowexpr.LessThan, a, z)))
}

func TestInequalityInferenceScoped(t *testing.T) {
	outer, inner := bigintVar("o"), bigintVar("i")

	// o < i chained with i <= 100 derives o < 100, but the scoped variant
	// serves the inner-side pushdown and refuses anything mentioning o.
	predicates := rowexpr.CombineConjuncts(
		rowexpr.NewComparison(rowexpr.LessThan, outer, inner),
		rowexpr.NewComparison(rowexpr.LessThanOrEqual, inner, bigintConst(100)),
	)
	scoped := NewInequalityInference(rowexpr.NewVariableSet(outer), predicates)
	require.Empty(t, scoped.InferInequalities())

	unscoped := NewInequalityInference(nil, predicates)
	derived := unscoped.InferInequalities()
	require.Len(t, derived, 1)
	require.True(t, rowexpr.Equals(derived[0],
		rowexpr.NewComparison(rowexpr.LessThan, outer, bigintConst(100))))
}

func TestInequalityInferenceSkipsKnownFacts(t *testing.T) {
	a, b := bigintVar("a"), bigintVar("b")
	// a < b and b < a chain to a < a, which is degenerate and skipped.
	inference := NewInequalityInference(nil, rowexpr.CombineConjuncts(
		rowexpr.NewComparison(rowexpr.LessThan, a, b),
		rowexpr.NewComparison(rowexpr.LessThan, b, a),
	))
	require.Empty(t, inference.InferInequalities())
}
