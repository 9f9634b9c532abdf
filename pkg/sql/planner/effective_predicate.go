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
	"github.com/cockroachdb/errors"

	"github.com/imillan/presto/pkg/sql/plan"
	"github.com/imillan/presto/pkg/sql/rowexpr"
)

// EffectivePredicate computes a conservative predicate guaranteed to hold for
// every row the subtree can ever produce, expressed over the subtree's output
// variables. TRUE is always a sound answer; the extractor only strengthens it
// where a node kind's semantics make that safe. Joins use it to borrow
// knowledge across sides.
func EffectivePredicate(node plan.Node) rowexpr.RowExpression {
	predicate := extractEffective(node)
	outputs := rowexpr.NewVariableSet(node.OutputVariables()...)
	if !rowexpr.AllVariablesMatch(predicate, rowexpr.In(outputs)) {
		panic(errors.AssertionFailedf(
			"effective predicate %s references variables outside node %s outputs",
			predicate, node.ID()))
	}
	return predicate
}

func extractEffective(node plan.Node) rowexpr.RowExpression {
	switch n := node.(type) {
	case *plan.ScanNode:
		if n.Predicate != nil {
			return withoutDynamicFilters(rowexpr.FilterDeterministicConjuncts(n.Predicate))
		}
		return rowexpr.TrueConstant

	case *plan.FilterNode:
		return rowexpr.CombineConjuncts(
			extractEffective(n.Source),
			withoutDynamicFilters(rowexpr.FilterDeterministicConjuncts(n.Predicate)),
		)

	case *plan.ProjectNode:
		return effectiveThroughProject(n)

	case *plan.JoinNode:
		return effectiveThroughJoin(n)

	case *plan.SemiJoinNode:
		// The semi-join marker column carries no row-level guarantee; the
		// source rows pass through unchanged.
		return restrictToScope(extractEffective(n.Source), n.OutputVariables())

	case *plan.AggregationNode:
		// Grouping keys pass through verbatim; aggregate outputs do not.
		return restrictToScope(extractEffective(n.Source), n.GroupingKeys)

	case *plan.UnionNode:
		return effectiveThroughBranches(n.Sources, func(i int) map[string]*rowexpr.Variable {
			return invertBranchMap(n.SourceVariableMap(i))
		}, n.OutputVariables())

	case *plan.ExchangeNode:
		return effectiveThroughBranches(n.Sources, func(i int) map[string]*rowexpr.Variable {
			return invertBranchMap(n.SourceVariableMap(i))
		}, n.OutputVariables())

	case *plan.UnnestNode:
		// Only the replicated columns keep their source guarantees; unnested
		// element columns are new values.
		return restrictToScope(extractEffective(n.Source), n.ReplicateVariables)

	case *plan.SortNode:
		return extractEffective(n.Source)
	case *plan.SampleNode:
		return extractEffective(n.Source)
	case *plan.LimitNode:
		return extractEffective(n.Source)
	case *plan.MarkDistinctNode:
		return restrictToScope(extractEffective(n.Source), n.Source.OutputVariables())
	case *plan.AssignUniqueIDNode:
		return restrictToScope(extractEffective(n.Source), n.Source.OutputVariables())
	}

	// Conservative default for kinds without a transfer rule (window,
	// group-id, spatial join).
	return rowexpr.TrueConstant
}

func effectiveThroughProject(n *plan.ProjectNode) rowexpr.RowExpression {
	underlying := extractEffective(n.Source)

	// Variables surviving under a (possibly new) name keep their guarantees;
	// constant assignments contribute equality facts of their own.
	renames := make(map[string]rowexpr.RowExpression)
	var conjuncts []rowexpr.RowExpression
	for _, assignment := range n.Assignments {
		switch expr := assignment.Expression.(type) {
		case *rowexpr.Variable:
			renames[expr.Name()] = assignment.Variable
		case *rowexpr.Constant:
			if !expr.IsNull() {
				conjuncts = append(conjuncts, rowexpr.EqualsCall(assignment.Variable, expr))
			}
		}
	}

	outputs := rowexpr.NewVariableSet(n.OutputVariables()...)
	for _, conjunct := range rowexpr.ExtractConjuncts(underlying) {
		renamed := rowexpr.InlineVariables(renames, conjunct)
		if rowexpr.AllVariablesMatch(renamed, rowexpr.In(outputs)) {
			conjuncts = append(conjuncts, renamed)
		}
	}
	return rowexpr.CombineConjuncts(conjuncts...)
}

func effectiveThroughJoin(n *plan.JoinNode) rowexpr.RowExpression {
	var conjuncts []rowexpr.RowExpression
	switch n.Type {
	case plan.InnerJoin:
		conjuncts = append(conjuncts, extractEffective(n.Left), extractEffective(n.Right))
		for _, clause := range n.Criteria {
			conjuncts = append(conjuncts, rowexpr.EqualsCall(clause.Left, clause.Right))
		}
		if n.Filter != nil {
			conjuncts = append(conjuncts, rowexpr.FilterDeterministicConjuncts(n.Filter))
		}
	case plan.LeftJoin:
		conjuncts = append(conjuncts, extractEffective(n.Left))
	case plan.RightJoin:
		conjuncts = append(conjuncts, extractEffective(n.Right))
	default:
		return rowexpr.TrueConstant
	}
	return restrictToScope(rowexpr.CombineConjuncts(conjuncts...), n.OutputVariables())
}

// effectiveThroughBranches over-approximates a union-shaped node: the
// disjunction of the branch predicates holds for every output row. If any
// branch contributes no information the result degrades to TRUE.
func effectiveThroughBranches(
	sources []plan.Node,
	inputToOutput func(branch int) map[string]*rowexpr.Variable,
	outputs []*rowexpr.Variable,
) rowexpr.RowExpression {
	outputSet := rowexpr.NewVariableSet(outputs...)
	disjuncts := make([]rowexpr.RowExpression, 0, len(sources))
	for i, source := range sources {
		renamed := rowexpr.RenameVariables(inputToOutput(i), extractEffective(source))
		renamed = restrictToScope(renamed, outputs)
		if rowexpr.IsTrue(renamed) || !rowexpr.AllVariablesMatch(renamed, rowexpr.In(outputSet)) {
			return rowexpr.TrueConstant
		}
		disjuncts = append(disjuncts, renamed)
	}
	return rowexpr.CombineDisjuncts(disjuncts...)
}

func invertBranchMap(outputToInput map[string]*rowexpr.Variable) map[string]*rowexpr.Variable {
	inverted := make(map[string]*rowexpr.Variable, len(outputToInput))
	for outputName, input := range outputToInput {
		inverted[input.Name()] = rowexpr.NewVariable(outputName, input.Type())
	}
	return inverted
}

// withoutDynamicFilters drops dynamic filter placeholder conjuncts. They
// describe a runtime pruning opportunity, not a row-level guarantee, and must
// not transfer across join sides through equality inference.
func withoutDynamicFilters(predicate rowexpr.RowExpression) rowexpr.RowExpression {
	var kept []rowexpr.RowExpression
	for _, conjunct := range rowexpr.ExtractConjuncts(predicate) {
		if !rowexpr.IsDynamicFilterPlaceholder(conjunct) {
			kept = append(kept, conjunct)
		}
	}
	return rowexpr.CombineConjuncts(kept...)
}

// restrictToScope drops every conjunct referencing a variable outside the
// scope, keeping the strongest predicate expressible over it.
func restrictToScope(
	predicate rowexpr.RowExpression, scope []*rowexpr.Variable,
) rowexpr.RowExpression {
	scopeSet := rowexpr.NewVariableSet(scope...)
	var kept []rowexpr.RowExpression
	for _, conjunct := range rowexpr.ExtractConjuncts(predicate) {
		if rowexpr.AllVariablesMatch(conjunct, rowexpr.In(scopeSet)) {
			kept = append(kept, conjunct)
		}
	}
	return rowexpr.CombineConjuncts(kept...)
}
