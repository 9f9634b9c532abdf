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

package optimizations

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/imillan/presto/pkg/sql/plan"
	"github.com/imillan/presto/pkg/sql/rowexpr"
	"github.com/imillan/presto/pkg/sql/session"
	"github.com/imillan/presto/pkg/sql/types"
)

// twoScanJoin builds join(scan l[a], scan r[b]) with the a = b criterion.
func twoScanJoin(joinType plan.JoinType) (*plan.JoinNode, *rowexpr.Variable, *rowexpr.Variable) {
	a := bigintVar("a")
	b := bigintVar("b")
	left := plan.NewScanNode(1, "l", []*rowexpr.Variable{a})
	right := plan.NewScanNode(2, "r", []*rowexpr.Variable{b})
	join := plan.NewJoinNode(3, joinType, left, right,
		[]plan.EquiJoinClause{{Left: a, Right: b}},
		[]*rowexpr.Variable{a, b}, nil, nil)
	return join, a, b
}

func TestInnerJoinPushesToBothSides(t *testing.T) {
	join, a, b := twoScanJoin(plan.InnerJoin)
	root := plan.NewFilterNode(4, join, rowexpr.CombineConjuncts(
		rowexpr.NewComparison(rowexpr.LessThan, a, bigintConst(5)),
		rowexpr.NewComparison(rowexpr.GreaterThanOrEqual, b, bigintConst(0))))

	result, changed := optimize(root, session.New())
	require.True(t, changed)
	require.Equal(t, `join INNER on [a = b]
  scan l filter=((a < 5) AND (a >= 0))
  scan r filter=((b < 5) AND (b >= 0))
`, plan.Format(result))

	// A second run must recognize its own output.
	result, changed = optimize(result, session.New())
	require.False(t, changed)
}

func TestInnerJoinPropagatesConstantEqualities(t *testing.T) {
	join, a, b := twoScanJoin(plan.InnerJoin)
	root := plan.NewFilterNode(4, join, rowexpr.CombineConjuncts(
		rowexpr.EqualsCall(a, bigintConst(5)),
		rowexpr.EqualsCall(b, bigintConst(5))))

	// With both keys pinned to the same constant the equi-join criterion is
	// subsumed by the per-side point filters; no residual may survive on or
	// above the join.
	result, changed := optimize(root, session.New())
	require.True(t, changed)
	require.Equal(t, `join INNER
  scan l filter=(5 = a)
  scan r filter=(5 = b)
`, plan.Format(result))

	result, changed = optimize(result, session.New())
	require.False(t, changed)
}

func TestLeftJoinPushesOuterAndTranslatesToInner(t *testing.T) {
	join, a, _ := twoScanJoin(plan.LeftJoin)
	root := plan.NewFilterNode(4, join,
		rowexpr.NewComparison(rowexpr.LessThan, a, bigintConst(3)))

	result, changed := optimize(root, session.New())
	require.True(t, changed)
	require.Equal(t, `join LEFT on [a = b]
  scan l filter=(a < 3)
  scan r filter=(b < 3)
`, plan.Format(result))
}

func TestLeftJoinDemotedToInner(t *testing.T) {
	join, _, b := twoScanJoin(plan.LeftJoin)
	// b < 5 folds to NULL on an all-NULL right row, so no extension row
	// survives the filter and LEFT behaves as INNER.
	root := plan.NewFilterNode(4, join,
		rowexpr.NewComparison(rowexpr.LessThan, b, bigintConst(5)))

	result, changed := optimize(root, session.New())
	require.True(t, changed)
	require.Equal(t, `join INNER on [a = b]
  scan l filter=(a < 5)
  scan r filter=(b < 5)
`, plan.Format(result))
}

func TestLeftJoinDemotedToInnerByCrossSideEquality(t *testing.T) {
	join, a, b := twoScanJoin(plan.LeftJoin)
	// a = b folds to NULL once b is bound to NULL, so the filter rejects
	// every extension row even though a stays free.
	root := plan.NewFilterNode(4, join, rowexpr.EqualsCall(a, b))

	result, changed := optimize(root, session.New())
	require.True(t, changed)
	require.Equal(t, `join INNER on [a = b]
  scan l
  scan r
`, plan.Format(result))
}

func TestLeftJoinKeptWhenNullRowsAccepted(t *testing.T) {
	join, _, b := twoScanJoin(plan.LeftJoin)
	root := plan.NewFilterNode(4, join, rowexpr.IsNullCall(b))

	result, changed := optimize(root, session.New())
	require.False(t, changed)
	require.Same(t, plan.Node(root), result)
}

func TestFullJoinPushesNothing(t *testing.T) {
	join, a, b := twoScanJoin(plan.FullJoin)
	// Both conjuncts accept all-NULL extension rows, so neither side loses
	// its preservation and nothing may move below the join.
	root := plan.NewFilterNode(4, join, rowexpr.CombineConjuncts(
		rowexpr.IsNullCall(a), rowexpr.IsNullCall(b)))

	result, changed := optimize(root, session.New())
	require.False(t, changed)
	require.Same(t, plan.Node(root), result)
}

func TestFullJoinDemotedToInner(t *testing.T) {
	join, a, b := twoScanJoin(plan.FullJoin)
	root := plan.NewFilterNode(4, join, rowexpr.CombineConjuncts(
		rowexpr.NewComparison(rowexpr.LessThan, a, bigintConst(5)),
		rowexpr.NewComparison(rowexpr.LessThan, b, bigintConst(5))))

	result, changed := optimize(root, session.New())
	require.True(t, changed)
	require.Equal(t, `join INNER on [a = b]
  scan l filter=(a < 5)
  scan r filter=(b < 5)
`, plan.Format(result))
}

func TestInnerJoinProjectsComputedEquality(t *testing.T) {
	a := bigintVar("a")
	b := bigintVar("b")
	left := plan.NewScanNode(1, "l", []*rowexpr.Variable{a})
	right := plan.NewScanNode(2, "r", []*rowexpr.Variable{b})
	join := plan.NewJoinNode(3, plan.InnerJoin, left, right, nil,
		[]*rowexpr.Variable{a, b},
		rowexpr.EqualsCall(
			rowexpr.NewCall(rowexpr.Add, types.Bigint, a, bigintConst(1)), b),
		nil)

	result, changed := optimize(join, session.New())
	require.True(t, changed)
	require.Equal(t, `join INNER on [expr_1 = b]
  project [a, expr_1 := (a + 1)]
    scan l
  scan r
`, plan.Format(result))
}

func TestCrossJoinOutputRestoration(t *testing.T) {
	a := bigintVar("a")
	b := bigintVar("b")
	left := plan.NewScanNode(1, "l", []*rowexpr.Variable{a})
	right := plan.NewScanNode(2, "r", []*rowexpr.Variable{b})
	join := plan.NewJoinNode(3, plan.InnerJoin, left, right, nil,
		[]*rowexpr.Variable{a}, nil, nil)
	root := plan.NewFilterNode(4, join,
		rowexpr.NewComparison(rowexpr.LessThan, a, bigintConst(5)))

	result, changed := optimize(root, session.New())
	require.True(t, changed)
	require.Equal(t, `project [a]
  join INNER
    scan l filter=(a < 5)
    scan r
`, plan.Format(result))
}

func dynamicFilterSession() *session.Session {
	sess := session.New()
	sess.EnableDynamicFiltering = true
	return sess
}

func TestDynamicFiltersOnInnerJoin(t *testing.T) {
	join, _, _ := twoScanJoin(plan.InnerJoin)

	result, changed := optimize(join, dynamicFilterSession())
	require.True(t, changed)

	rewritten, ok := result.(*plan.JoinNode)
	require.True(t, ok)
	require.Len(t, rewritten.DynamicFilters, 1)
	require.Equal(t, "b", rewritten.DynamicFilters[0].Build.Name())

	probe, ok := rewritten.Left.(*plan.ScanNode)
	require.True(t, ok)
	require.True(t, rowexpr.IsDynamicFilterPlaceholder(probe.Predicate))
	id, ok := rowexpr.DynamicFilterID(probe.Predicate)
	require.True(t, ok)
	require.Equal(t, rewritten.DynamicFilters[0].ID, id)

	// Ids are reconciled against the existing table, so a second run leaves
	// the plan untouched.
	result, changed = optimize(rewritten, dynamicFilterSession())
	require.False(t, changed)
	require.Same(t, plan.Node(rewritten), result)
}

func TestDynamicFiltersOnRightJoinProbeLeftSide(t *testing.T) {
	join, _, _ := twoScanJoin(plan.RightJoin)

	result, changed := optimize(join, dynamicFilterSession())
	require.True(t, changed)

	rewritten, ok := result.(*plan.JoinNode)
	require.True(t, ok)
	require.Equal(t, plan.RightJoin, rewritten.Type)
	require.Len(t, rewritten.DynamicFilters, 1)
	require.Equal(t, "b", rewritten.DynamicFilters[0].Build.Name())

	probe, ok := rewritten.Left.(*plan.ScanNode)
	require.True(t, ok)
	require.True(t, rowexpr.IsDynamicFilterPlaceholder(probe.Predicate))
}

func TestNoDynamicFiltersOnLeftJoin(t *testing.T) {
	join, _, _ := twoScanJoin(plan.LeftJoin)

	result, changed := optimize(join, dynamicFilterSession())
	require.False(t, changed)
	require.Same(t, plan.Node(join), result)
}

func TestNativeExecutionDisablesDynamicFilters(t *testing.T) {
	join, _, _ := twoScanJoin(plan.InnerJoin)
	sess := dynamicFilterSession()
	sess.NativeExecution = true

	result, changed := optimize(join, sess)
	require.False(t, changed)
	require.Same(t, plan.Node(join), result)
}

func TestDynamicFiltersFromBetweenFilter(t *testing.T) {
	a := bigintVar("a")
	a2 := bigintVar("a2")
	b := bigintVar("b")
	lo := bigintVar("lo")
	hi := bigintVar("hi")
	left := plan.NewScanNode(1, "l", []*rowexpr.Variable{a, a2})
	right := plan.NewScanNode(2, "r", []*rowexpr.Variable{b, lo, hi})
	join := plan.NewJoinNode(3, plan.InnerJoin, left, right,
		[]plan.EquiJoinClause{{Left: a, Right: b}},
		[]*rowexpr.Variable{a, a2, b},
		rowexpr.NewCall(rowexpr.Between, types.Boolean, a2, lo, hi),
		nil)

	result, changed := optimize(join, dynamicFilterSession())
	require.True(t, changed)

	rewritten, ok := result.(*plan.JoinNode)
	require.True(t, ok)
	require.NotNil(t, rewritten.Filter)
	require.Len(t, rewritten.DynamicFilters, 3)

	tableIDs := make(map[string]struct{})
	for _, entry := range rewritten.DynamicFilters {
		tableIDs[entry.ID] = struct{}{}
	}
	probe, ok := rewritten.Left.(*plan.ScanNode)
	require.True(t, ok)
	conjuncts := rowexpr.ExtractConjuncts(probe.Predicate)
	require.Len(t, conjuncts, 3)
	for _, conjunct := range conjuncts {
		require.True(t, rowexpr.IsDynamicFilterPlaceholder(conjunct))
		id, ok := rowexpr.DynamicFilterID(conjunct)
		require.True(t, ok)
		require.Contains(t, tableIDs, id)
	}
}

func TestNotEqualNeverBecomesDynamicFilter(t *testing.T) {
	a := bigintVar("a")
	a2 := bigintVar("a2")
	b := bigintVar("b")
	c := bigintVar("c")
	left := plan.NewScanNode(1, "l", []*rowexpr.Variable{a, a2})
	right := plan.NewScanNode(2, "r", []*rowexpr.Variable{b, c})
	join := plan.NewJoinNode(3, plan.InnerJoin, left, right,
		[]plan.EquiJoinClause{{Left: a, Right: b}},
		[]*rowexpr.Variable{a, a2, b},
		rowexpr.NewComparison(rowexpr.NotEqual, a2, c),
		nil)

	result, _ := optimize(join, dynamicFilterSession())
	rewritten, ok := result.(*plan.JoinNode)
	require.True(t, ok)
	require.Len(t, rewritten.DynamicFilters, 1)
	require.Equal(t, "b", rewritten.DynamicFilters[0].Build.Name())
}

func inequalitySession() *session.Session {
	sess := session.New()
	sess.InferInequalityPredicates = true
	return sess
}

func domainFilterSession() *session.Session {
	sess := session.New()
	sess.GenerateDomainFilters = true
	return sess
}

func TestInnerJoinInfersInequalities(t *testing.T) {
	a := bigintVar("a")
	b := bigintVar("b")
	left := plan.NewScanNode(1, "l", []*rowexpr.Variable{a})
	right := plan.NewScanNode(2, "r", []*rowexpr.Variable{b})
	join := plan.NewJoinNode(3, plan.InnerJoin, left, right, nil,
		[]*rowexpr.Variable{a, b},
		rowexpr.NewComparison(rowexpr.LessThan, a, b), nil)
	root := plan.NewFilterNode(4, join,
		rowexpr.NewComparison(rowexpr.LessThanOrEqual, b, bigintConst(5)))

	// Off: the band condition stays put and only b's bound pushes down.
	result, changed := optimize(root, session.New())
	require.True(t, changed)
	require.Equal(t, `filter (a < b)
  join INNER
    scan l
    scan r filter=(b <= 5)
`, plan.Format(result))

	// On: a < b chained with b <= 5 derives a < 5.
	result, changed = optimize(root, inequalitySession())
	require.True(t, changed)
	require.Equal(t, `filter ((a < 5) AND (a < b))
  join INNER
    scan l
    scan r filter=(b <= 5)
`, plan.Format(result))
}

func TestLeftJoinInfersInnerSideInequalities(t *testing.T) {
	a := bigintVar("a")
	b := bigintVar("b")
	c := bigintVar("c")
	left := plan.NewScanNode(1, "l", []*rowexpr.Variable{a})
	right := plan.NewScanNode(2, "r", []*rowexpr.Variable{b, c})
	join := plan.NewJoinNode(3, plan.LeftJoin, left, right, nil,
		[]*rowexpr.Variable{a, b, c},
		rowexpr.CombineConjuncts(
			rowexpr.NewComparison(rowexpr.LessThan, b, c),
			rowexpr.NewComparison(rowexpr.LessThanOrEqual, c, bigintConst(100))), nil)

	result, changed := optimize(join, session.New())
	require.True(t, changed)
	require.Equal(t, `join LEFT
  scan l
  scan r filter=((b < c) AND (c <= 100))
`, plan.Format(result))

	// The scoped inference only derives facts free of preserved-side
	// variables; b < 100 qualifies and pre-filters the inner side.
	result, changed = optimize(join, inequalitySession())
	require.True(t, changed)
	require.Equal(t, `join LEFT
  scan l
  scan r filter=((b < 100) AND ((b < c) AND (c <= 100)))
`, plan.Format(result))
}

func TestInnerJoinDomainFiltersRecoverDisjunctivePushdown(t *testing.T) {
	a := bigintVar("a")
	b := bigintVar("b")
	left := plan.NewScanNode(1, "l", []*rowexpr.Variable{a})
	right := plan.NewScanNode(2, "r", []*rowexpr.Variable{b})
	join := plan.NewJoinNode(3, plan.InnerJoin, left, right, nil,
		[]*rowexpr.Variable{a, b}, nil, nil)
	root := plan.NewFilterNode(4, join, rowexpr.CombineDisjuncts(
		rowexpr.CombineConjuncts(
			rowexpr.EqualsCall(a, bigintConst(1)), rowexpr.EqualsCall(b, bigintConst(10))),
		rowexpr.CombineConjuncts(
			rowexpr.EqualsCall(a, bigintConst(2)), rowexpr.EqualsCall(b, bigintConst(20)))))

	// The disjunction straddles both sides, so without domains nothing moves.
	result, changed := optimize(root, session.New())
	require.False(t, changed)
	require.Same(t, plan.Node(root), result)

	// Per-variable domains extracted across the disjunction push to each side.
	result, changed = optimize(root, domainFilterSession())
	require.True(t, changed)
	require.Equal(t, `filter (((a = 1) AND (b = 10)) OR ((a = 2) AND (b = 20)))
  join INNER
    scan l filter=((a = 1) OR (a = 2))
    scan r filter=((b = 10) OR (b = 20))
`, plan.Format(result))
}

func TestLeftJoinDomainFiltersSkipNullAdmittingInnerDomain(t *testing.T) {
	join, a, b := twoScanJoin(plan.LeftJoin)
	root := plan.NewFilterNode(4, join, rowexpr.CombineDisjuncts(
		rowexpr.CombineConjuncts(
			rowexpr.EqualsCall(a, bigintConst(1)), rowexpr.EqualsCall(b, bigintConst(10))),
		rowexpr.CombineConjuncts(
			rowexpr.EqualsCall(a, bigintConst(2)), rowexpr.IsNullCall(b))))

	// b's domain admits NULL, so a pre-filter on the inner side would also
	// drop the extension rows the filter above still accepts. Only the
	// preserved side takes its domain.
	result, changed := optimize(root, domainFilterSession())
	require.True(t, changed)
	require.Equal(t, `filter (((a = 1) AND (b = 10)) OR ((a = 2) AND (b IS NULL)))
  join LEFT on [a = b]
    scan l filter=((a = 1) OR (a = 2))
    scan r
`, plan.Format(result))
}

func TestLeftJoinDomainFiltersPushNullFreeInnerDomain(t *testing.T) {
	join, a, b := twoScanJoin(plan.LeftJoin)
	root := plan.NewFilterNode(4, join, rowexpr.CombineDisjuncts(
		rowexpr.CombineConjuncts(
			rowexpr.EqualsCall(a, bigintConst(1)), rowexpr.EqualsCall(b, bigintConst(10))),
		rowexpr.CombineConjuncts(
			rowexpr.EqualsCall(a, bigintConst(2)), rowexpr.EqualsCall(b, bigintConst(20)))))

	result, changed := optimize(root, domainFilterSession())
	require.True(t, changed)
	require.Equal(t, `filter (((a = 1) AND (b = 10)) OR ((a = 2) AND (b = 20)))
  join LEFT on [a = b]
    scan l filter=((a = 1) OR (a = 2))
    scan r filter=((b = 10) OR (b = 20))
`, plan.Format(result))
}

func newSemiJoin() (*plan.SemiJoinNode, *rowexpr.Variable, *rowexpr.Variable, *rowexpr.Variable) {
	a := bigintVar("a")
	b := bigintVar("b")
	m := boolVar("m")
	source := plan.NewScanNode(1, "s", []*rowexpr.Variable{a})
	filtering := plan.NewScanNode(2, "f", []*rowexpr.Variable{b})
	semi := plan.NewSemiJoinNode(3, source, filtering, a, b, m, nil)
	return semi, a, b, m
}

func TestFilteringSemiJoinCrossPushes(t *testing.T) {
	semi, a, _, m := newSemiJoin()
	root := plan.NewFilterNode(4, semi, rowexpr.CombineConjuncts(
		m, rowexpr.NewComparison(rowexpr.LessThan, a, bigintConst(5))))

	result, changed := optimize(root, session.New())
	require.True(t, changed)
	require.Equal(t, `filter m
  semijoin a in b as m
    scan s filter=(a < 5)
    scan f filter=(b < 5)
`, plan.Format(result))
}

func TestNonFilteringSemiJoinPushesToSourceOnly(t *testing.T) {
	semi, a, _, _ := newSemiJoin()
	root := plan.NewFilterNode(4, semi,
		rowexpr.NewComparison(rowexpr.LessThan, a, bigintConst(5)))

	result, changed := optimize(root, session.New())
	require.True(t, changed)
	require.Equal(t, `semijoin a in b as m
  scan s filter=(a < 5)
  scan f
`, plan.Format(result))
}

func TestFilteringSemiJoinDynamicFilter(t *testing.T) {
	semi, _, _, m := newSemiJoin()
	root := plan.NewFilterNode(4, semi, m)

	result, changed := optimize(root, dynamicFilterSession())
	require.True(t, changed)

	filter, ok := result.(*plan.FilterNode)
	require.True(t, ok)
	rewritten, ok := filter.Source.(*plan.SemiJoinNode)
	require.True(t, ok)
	require.Len(t, rewritten.DynamicFilters, 1)
	require.Equal(t, "b", rewritten.DynamicFilters[0].Build.Name())

	probe, ok := rewritten.Source.(*plan.ScanNode)
	require.True(t, ok)
	require.True(t, rowexpr.IsDynamicFilterPlaceholder(probe.Predicate))
	id, ok := rowexpr.DynamicFilterID(probe.Predicate)
	require.True(t, ok)
	require.Equal(t, rewritten.DynamicFilters[0].ID, id)

	result, changed = optimize(result, dynamicFilterSession())
	require.False(t, changed)
}

func TestSpatialInnerJoinPushesInheritedConjuncts(t *testing.T) {
	a := bigintVar("a")
	b := bigintVar("b")
	left := plan.NewScanNode(1, "l", []*rowexpr.Variable{a})
	right := plan.NewScanNode(2, "r", []*rowexpr.Variable{b})
	spatial := plan.NewSpatialJoinNode(3, plan.SpatialInner, left, right,
		[]*rowexpr.Variable{a, b},
		rowexpr.NewCall("st_intersects", types.Boolean, a, b))
	root := plan.NewFilterNode(4, spatial,
		rowexpr.NewComparison(rowexpr.LessThan, a, bigintConst(5)))

	result, changed := optimize(root, session.New())
	require.True(t, changed)
	require.Equal(t, `spatialjoin INNER filter=st_intersects(a, b)
  scan l filter=(a < 5)
  scan r
`, plan.Format(result))
}

func TestSpatialLeftJoinDemotedToInner(t *testing.T) {
	a := bigintVar("a")
	b := bigintVar("b")
	left := plan.NewScanNode(1, "l", []*rowexpr.Variable{a})
	right := plan.NewScanNode(2, "r", []*rowexpr.Variable{b})
	spatial := plan.NewSpatialJoinNode(3, plan.SpatialLeft, left, right,
		[]*rowexpr.Variable{a, b},
		rowexpr.NewCall("st_intersects", types.Boolean, a, b))
	root := plan.NewFilterNode(4, spatial,
		rowexpr.NewComparison(rowexpr.LessThan, b, bigintConst(5)))

	result, changed := optimize(root, session.New())
	require.True(t, changed)
	require.Equal(t, `spatialjoin INNER filter=st_intersects(a, b)
  scan l
  scan r filter=(b < 5)
`, plan.Format(result))
}
