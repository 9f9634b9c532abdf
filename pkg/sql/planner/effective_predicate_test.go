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

	"github.com/imillan/presto/pkg/sql/plan"
	"github.com/imillan/presto/pkg/sql/rowexpr"
	"github.com/imillan/presto/pkg/sql/types"
)

func TestEffectivePredicateScan(t *testing.T) {
	a := bigintVar("a")
	scan := plan.NewScanNode(1, "t", []*rowexpr.Variable{a})
	require.True(t, rowexpr.IsTrue(EffectivePredicate(scan)))

	predicate := rowexpr.EqualsCall(a, bigintConst(5))
	withPredicate := plan.NewScanNodeWithPredicate(1, "t", []*rowexpr.Variable{a}, predicate)
	require.True(t, rowexpr.Equals(EffectivePredicate(withPredicate), predicate))
}

func TestEffectivePredicateFilterDropsNonDeterministic(t *testing.T) {
	a := bigintVar("a")
	scan := plan.NewScanNode(1, "t", []*rowexpr.Variable{a})
	deterministic := rowexpr.EqualsCall(a, bigintConst(5))
	random := rowexpr.NewComparison(rowexpr.LessThan,
		rowexpr.NewCall("random", types.Double), rowexpr.NewConstant(0.5, types.Double))
	filter := plan.NewFilterNode(2, scan, rowexpr.CombineConjuncts(deterministic, random))

	require.True(t, rowexpr.Equals(EffectivePredicate(filter), deterministic))
}

func TestEffectivePredicateIgnoresDynamicFilterPlaceholders(t *testing.T) {
	a := bigintVar("a")
	predicate := rowexpr.CombineConjuncts(
		rowexpr.EqualsCall(a, bigintConst(5)),
		rowexpr.NewDynamicFilterExpression("df_1", a, rowexpr.Equal),
	)
	scan := plan.NewScanNodeWithPredicate(1, "t", []*rowexpr.Variable{a}, predicate)
	require.True(t, rowexpr.Equals(EffectivePredicate(scan), rowexpr.EqualsCall(a, bigintConst(5))))
}

func TestEffectivePredicateProject(t *testing.T) {
	a := bigintVar("a")
	out := bigintVar("out")
	scan := plan.NewScanNodeWithPredicate(
		1, "t", []*rowexpr.Variable{a}, rowexpr.EqualsCall(a, bigintConst(5)))

	// a surviving as out keeps its guarantee under the new name.
	project := plan.NewProjectNode(2, scan, plan.Assignments{
		{Variable: out, Expression: a},
	})
	require.True(t, rowexpr.Equals(
		EffectivePredicate(project), rowexpr.EqualsCall(out, bigintConst(5))))

	// A constant assignment contributes its own equality fact.
	constOut := bigintVar("c")
	project = plan.NewProjectNode(3, scan, plan.Assignments{
		{Variable: constOut, Expression: bigintConst(7)},
	})
	require.True(t, rowexpr.Equals(
		EffectivePredicate(project), rowexpr.EqualsCall(constOut, bigintConst(7))))
}

func TestEffectivePredicateJoin(t *testing.T) {
	a, b := bigintVar("a"), bigintVar("b")
	left := plan.NewScanNodeWithPredicate(
		1, "l", []*rowexpr.Variable{a}, rowexpr.EqualsCall(a, bigintConst(5)))
	right := plan.NewScanNodeWithPredicate(
		2, "r", []*rowexpr.Variable{b}, rowexpr.EqualsCall(b, bigintConst(7)))
	outputs := []*rowexpr.Variable{a, b}
	criteria := []plan.EquiJoinClause{{Left: a, Right: b}}

	inner := plan.NewJoinNode(3, plan.InnerJoin, left, right, criteria, outputs, nil, nil)
	effective := EffectivePredicate(inner)
	conjuncts := rowexpr.ExtractConjuncts(effective)
	require.Len(t, conjuncts, 3)

	// A left join only guarantees the preserved side.
	leftJoin := plan.NewJoinNode(4, plan.LeftJoin, left, right, criteria, outputs, nil, nil)
	require.True(t, rowexpr.Equals(
		EffectivePredicate(leftJoin), rowexpr.EqualsCall(a, bigintConst(5))))

	// A full join guarantees nothing.
	fullJoin := plan.NewJoinNode(5, plan.FullJoin, left, right, criteria, outputs, nil, nil)
	require.True(t, rowexpr.IsTrue(EffectivePredicate(fullJoin)))
}

func TestEffectivePredicateAggregation(t *testing.T) {
	a, b := bigintVar("a"), bigintVar("b")
	scan := plan.NewScanNodeWithPredicate(1, "t", []*rowexpr.Variable{a, b},
		rowexpr.CombineConjuncts(
			rowexpr.EqualsCall(a, bigintConst(5)),
			rowexpr.EqualsCall(b, bigintConst(7)),
		))
	agg := plan.NewAggregationNode(2, scan, []*rowexpr.Variable{a}, nil, nil, false, nil)

	// Only the grouping-key fact passes through; b is aggregated away.
	require.True(t, rowexpr.Equals(
		EffectivePredicate(agg), rowexpr.EqualsCall(a, bigintConst(5))))
}

func TestEffectivePredicateUnion(t *testing.T) {
	out := bigintVar("out")
	l, r := bigintVar("l"), bigintVar("r")
	left := plan.NewScanNodeWithPredicate(1, "a", []*rowexpr.Variable{l},
		rowexpr.EqualsCall(l, bigintConst(1)))
	right := plan.NewScanNodeWithPredicate(2, "b", []*rowexpr.Variable{r},
		rowexpr.EqualsCall(r, bigintConst(2)))
	union := plan.NewUnionNode(3, []plan.Node{left, right},
		[]*rowexpr.Variable{out},
		[][]*rowexpr.Variable{{l}, {r}})

	// The union's rows satisfy the disjunction of the branch facts.
	effective := EffectivePredicate(union)
	disjuncts := rowexpr.ExtractDisjuncts(effective)
	require.Len(t, disjuncts, 2)
	require.True(t, rowexpr.Equals(disjuncts[0], rowexpr.EqualsCall(out, bigintConst(1))))
	require.True(t, rowexpr.Equals(disjuncts[1], rowexpr.EqualsCall(out, bigintConst(2))))

	// An uninformative branch degrades the whole union to TRUE.
	bare := plan.NewScanNode(4, "c", []*rowexpr.Variable{r})
	union = plan.NewUnionNode(5, []plan.Node{left, bare},
		[]*rowexpr.Variable{out},
		[][]*rowexpr.Variable{{l}, {r}})
	require.True(t, rowexpr.IsTrue(EffectivePredicate(union)))
}

func TestEffectivePredicateStaysInOutputScope(t *testing.T) {
	a, b := bigintVar("a"), bigintVar("b")
	scan := plan.NewScanNodeWithPredicate(1, "t", []*rowexpr.Variable{a, b},
		rowexpr.EqualsCall(a, b))

	// Unnest replicates only a; the a = b fact must not escape.
	unnest := plan.NewUnnestNode(2, scan,
		[]*rowexpr.Variable{a}, []*rowexpr.Variable{b},
		[]*rowexpr.Variable{rowexpr.NewVariable("elem", types.Bigint)}, nil)
	require.True(t, rowexpr.IsTrue(EffectivePredicate(unnest)))
}
