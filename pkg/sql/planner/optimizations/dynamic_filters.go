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
	"github.com/imillan/presto/pkg/sql/plan"
	"github.com/imillan/presto/pkg/sql/rowexpr"
)

// dynamicFiltersResult carries the join's id-to-build-variable table together
// with the probe-side placeholder predicates, one per eligible comparison.
type dynamicFiltersResult struct {
	filters    plan.DynamicFilters
	predicates []rowexpr.RowExpression
}

// createDynamicFilters derives dynamic filter descriptors from a join's
// equi-join clauses and residual filter comparisons. Only INNER and RIGHT
// joins participate: every probe-side row surviving the filter must still be
// producible by the join.
//
// Ids are reconciled against the node's existing table: a build variable that
// already carries an id keeps it, so re-running the pass regenerates
// identical placeholders and the plan stays stable.
func (r *rewriter) createDynamicFilters(
	node *plan.JoinNode,
	equiJoinClauses []plan.EquiJoinClause,
	joinFilterConjuncts []rowexpr.RowExpression,
) dynamicFiltersResult {
	if node.Type != plan.InnerJoin && node.Type != plan.RightJoin {
		return dynamicFiltersResult{filters: node.DynamicFilters}
	}

	comparisons := dynamicFilterComparisons(node, equiJoinClauses, joinFilterConjuncts)
	if len(comparisons) == 0 {
		return dynamicFiltersResult{filters: node.DynamicFilters}
	}

	// Two explicit ordered tables: build variable to id for reconciliation,
	// and the id-keyed result table attached to the join. One id serves every
	// comparison probing the same build variable.
	var result dynamicFiltersResult
	assigned := plan.DynamicFilters{}
	for _, comparison := range comparisons {
		build := comparison.Arguments()[1].(*rowexpr.Variable)
		id, ok := assigned.IDForBuild(build)
		if !ok {
			if existing, reuse := node.DynamicFilters.IDForBuild(build); reuse {
				id = existing
			} else {
				id = r.idAllocator.NextID().String()
			}
			assigned = append(assigned, plan.DynamicFilterEntry{ID: id, Build: build})
		}
		result.predicates = append(result.predicates,
			rowexpr.NewDynamicFilterExpression(id, comparison.Arguments()[0], comparison.Name()))
	}
	result.filters = assigned
	return result
}

// dynamicFilterComparisons collects the normalized comparisons eligible for
// dynamic filtering: probe expression on the left, a build-side variable on
// the right.
func dynamicFilterComparisons(
	node *plan.JoinNode,
	equiJoinClauses []plan.EquiJoinClause,
	joinFilterConjuncts []rowexpr.RowExpression,
) []*rowexpr.Call {
	var comparisons []*rowexpr.Call
	for _, clause := range equiJoinClauses {
		comparisons = append(comparisons, rowexpr.EqualsCall(clause.Left, clause.Right))
	}
	for _, conjunct := range joinFilterConjuncts {
		call, ok := conjunct.(*rowexpr.Call)
		if !ok {
			continue
		}
		if call.Name() == rowexpr.Between && len(call.Arguments()) == 3 {
			// BETWEEN decomposes into its two bound comparisons; each bound
			// qualifies independently.
			if probe, isVariable := call.Arguments()[0].(*rowexpr.Variable); isVariable {
				if low, isVariable := call.Arguments()[1].(*rowexpr.Variable); isVariable {
					if comparison := dynamicFilterComparison(
						node, rowexpr.NewComparison(rowexpr.GreaterThanOrEqual, probe, low)); comparison != nil {
						comparisons = append(comparisons, comparison)
					}
				}
				if high, isVariable := call.Arguments()[2].(*rowexpr.Variable); isVariable {
					if comparison := dynamicFilterComparison(
						node, rowexpr.NewComparison(rowexpr.LessThanOrEqual, probe, high)); comparison != nil {
						comparisons = append(comparisons, comparison)
					}
				}
			}
			continue
		}
		if comparison := dynamicFilterComparison(node, call); comparison != nil {
			comparisons = append(comparisons, comparison)
		}
	}
	return comparisons
}

// dynamicFilterComparison normalizes one comparison into probe-op-build form,
// flipping the operator when the build side appears on the left. NOT_EQUAL
// and IS_DISTINCT_FROM exclude too little to be worth a filter.
func dynamicFilterComparison(node *plan.JoinNode, call *rowexpr.Call) *rowexpr.Call {
	operator := call.Name()
	if !rowexpr.IsComparisonOperator(operator) || len(call.Arguments()) != 2 ||
		operator == rowexpr.NotEqual || operator == rowexpr.IsDistinctFrom {
		return nil
	}

	left, right := call.Arguments()[0], call.Arguments()[1]
	leftVariables := rowexpr.ExtractUnique(left)
	rightVariables := rowexpr.ExtractUnique(right)
	probeSide := rowexpr.NewVariableSet(node.Left.OutputVariables()...)
	buildSide := rowexpr.NewVariableSet(node.Right.OutputVariables()...)

	aligned := probeSide.ContainsAll(leftVariables) && buildSide.ContainsAll(rightVariables)
	flipped := probeSide.ContainsAll(rightVariables) && buildSide.ContainsAll(leftVariables)
	if !aligned && !flipped {
		return nil
	}
	if !aligned {
		operator = rowexpr.Negate(operator)
		left, right = right, left
	}
	if _, ok := right.(*rowexpr.Variable); !ok {
		return nil
	}
	return rowexpr.NewComparison(operator, left, right)
}
