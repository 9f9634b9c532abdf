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
	"github.com/imillan/presto/pkg/sql/planner"
	"github.com/imillan/presto/pkg/sql/rowexpr"
)

// rewriteProject pushes conjuncts through a projection by inlining the
// projection's defining expressions into them. A conjunct stays above the
// projection if it references a non-deterministic output or if inlining would
// duplicate an expensive or externally evaluated expression.
func (r *rewriter) rewriteProject(
	node *plan.ProjectNode, inherited rowexpr.RowExpression,
) (plan.Node, bool) {
	deterministic := rowexpr.VariableSet{}
	for i := range node.Assignments {
		if rowexpr.IsDeterministic(node.Assignments[i].Expression) {
			deterministic = deterministic.Add(node.Assignments[i].Variable)
		}
	}

	mapping := node.Assignments.AsMap()
	var inlined, residual []rowexpr.RowExpression
	for _, conjunct := range rowexpr.ExtractConjuncts(inherited) {
		if rowexpr.AllVariablesMatch(conjunct, rowexpr.In(deterministic)) &&
			isInliningCandidate(conjunct, node) {
			inlined = append(inlined, rowexpr.InlineVariables(mapping, conjunct))
		} else {
			residual = append(residual, conjunct)
		}
	}

	rewritten, changed := r.rewriteChildren(node, rowexpr.CombineConjuncts(inlined...))
	return r.withResidualFilter(rewritten, residual, changed)
}

// isInliningCandidate checks that no output variable the conjunct references
// would have its defining expression duplicated by inlining, unless that
// expression is a plain constant. Expressions evaluated by an external
// function never move below the projection.
func isInliningCandidate(conjunct rowexpr.RowExpression, node *plan.ProjectNode) bool {
	outputs := rowexpr.NewVariableSet(node.OutputVariables()...)
	counts := make(map[string]int)
	for _, v := range rowexpr.ExtractAll(conjunct) {
		if outputs.Contains(v) {
			counts[v.Name()]++
		}
	}
	for name, count := range counts {
		expression, ok := node.Assignments.Get(name)
		if !ok {
			continue
		}
		if _, isConstant := expression.(*rowexpr.Constant); isConstant {
			continue
		}
		if count > 1 || rowexpr.HasExternalCall(expression) {
			return false
		}
	}
	return true
}

// rewriteWindow pushes a conjunct below a window node only when it is
// deterministic and references partitioning variables alone: such a conjunct
// removes whole partitions and cannot change any window function result.
func (r *rewriter) rewriteWindow(
	node *plan.WindowNode, inherited rowexpr.RowExpression,
) (plan.Node, bool) {
	partitionBy := rowexpr.NewVariableSet(node.PartitionBy...)
	push, residual := partitionConjuncts(inherited, func(conjunct rowexpr.RowExpression) bool {
		return rowexpr.IsDeterministic(conjunct) &&
			rowexpr.AllVariablesMatch(conjunct, rowexpr.In(partitionBy))
	})
	rewritten, changed := r.rewriteChildren(node, rowexpr.CombineConjuncts(push...))
	return r.withResidualFilter(rewritten, residual, changed)
}

// rewriteMarkDistinct pushes conjuncts expressible over the distinct-tracked
// variables: removing rows by those variables drops entire duplicate groups,
// so first-occurrence marking is unaffected.
func (r *rewriter) rewriteMarkDistinct(
	node *plan.MarkDistinctNode, inherited rowexpr.RowExpression,
) (plan.Node, bool) {
	distinct := rowexpr.NewVariableSet(node.DistinctVariables...)
	push, residual := partitionConjuncts(inherited, func(conjunct rowexpr.RowExpression) bool {
		return rowexpr.AllVariablesMatch(conjunct, rowexpr.In(distinct))
	})
	rewritten, changed := r.rewriteChildren(node, rowexpr.CombineConjuncts(push...))
	return r.withResidualFilter(rewritten, residual, changed)
}

// rewriteGroupID pushes conjuncts over grouping variables common to every
// grouping set, rewritten to the underlying source variables. Variables
// missing from some set are NULL-extended there and must stay above.
func (r *rewriter) rewriteGroupID(
	node *plan.GroupIDNode, inherited rowexpr.RowExpression,
) (plan.Node, bool) {
	common := node.CommonGroupingVariables()
	commonMapping := make(map[string]*rowexpr.Variable, len(common))
	for name, output := range common {
		if input, ok := node.InputOf(output); ok {
			commonMapping[name] = input
		}
	}

	var push, residual []rowexpr.RowExpression
	for _, conjunct := range rowexpr.ExtractConjuncts(inherited) {
		if rowexpr.AllVariablesMatch(conjunct, rowexpr.In(common)) {
			push = append(push, rowexpr.RenameVariables(commonMapping, conjunct))
		} else {
			residual = append(residual, conjunct)
		}
	}

	rewritten, changed := r.rewriteChildren(node, rowexpr.CombineConjuncts(push...))
	return r.withResidualFilter(rewritten, residual, changed)
}

// rewriteAggregation pushes deterministic conjuncts expressible over the
// grouping keys, using equality inference to rewrite into key scope where
// possible. An aggregation with an empty grouping set produces a row even for
// empty input, so nothing may be pushed below it.
func (r *rewriter) rewriteAggregation(
	node *plan.AggregationNode, inherited rowexpr.RowExpression,
) (plan.Node, bool) {
	if node.HasEmptyGroupingSet {
		return r.rewriteDefault(node, inherited)
	}

	inference := planner.NewEqualityInference(inherited)
	groupingKeys := rowexpr.NewVariableSet(node.GroupingKeys...)
	inKeys := rowexpr.In(groupingKeys)

	var push, post []rowexpr.RowExpression
	if nonDeterministic := rowexpr.FilterNonDeterministicConjuncts(inherited); !rowexpr.IsTrue(nonDeterministic) {
		post = append(post, rowexpr.ExtractConjuncts(nonDeterministic)...)
	}
	deterministic := rowexpr.FilterDeterministicConjuncts(inherited)

	for _, conjunct := range planner.NonInferableConjuncts(deterministic) {
		// A conjunct over the group id describes grouping sets, not source
		// rows, and never moves below the aggregation.
		if node.GroupIDVariable != nil && rowexpr.ExtractUnique(conjunct).Contains(node.GroupIDVariable) {
			post = append(post, conjunct)
			continue
		}
		if rewritten := inference.RewriteExpression(conjunct, inKeys); rewritten != nil {
			push = append(push, rewritten)
		} else {
			post = append(post, conjunct)
		}
	}

	partition := inference.GenerateEqualitiesPartitionedBy(inKeys)
	push = append(push, partition.ScopeEqualities...)
	post = append(post, partition.ScopeComplementEqualities...)
	post = append(post, partition.ScopeStraddlingEqualities...)

	rewrittenSource, sourceChanged := r.rewrite(node.Source, rowexpr.CombineConjuncts(push...))
	var output plan.Node = node
	if sourceChanged {
		output = replaceChildren(node, []plan.Node{rewrittenSource})
	}
	return r.withResidualFilter(output, post, sourceChanged)
}

// rewriteUnnest pushes conjuncts expressible over the replicate variables;
// unnested element and ordinality variables do not exist below the node.
func (r *rewriter) rewriteUnnest(
	node *plan.UnnestNode, inherited rowexpr.RowExpression,
) (plan.Node, bool) {
	inference := planner.NewEqualityInference(inherited)
	replicate := rowexpr.NewVariableSet(node.ReplicateVariables...)
	inReplicate := rowexpr.In(replicate)

	var push, post []rowexpr.RowExpression
	if nonDeterministic := rowexpr.FilterNonDeterministicConjuncts(inherited); !rowexpr.IsTrue(nonDeterministic) {
		post = append(post, rowexpr.ExtractConjuncts(nonDeterministic)...)
	}
	deterministic := rowexpr.FilterDeterministicConjuncts(inherited)

	for _, conjunct := range planner.NonInferableConjuncts(deterministic) {
		if rewritten := inference.RewriteExpression(conjunct, inReplicate); rewritten != nil {
			push = append(push, rewritten)
		} else {
			post = append(post, conjunct)
		}
	}

	partition := inference.GenerateEqualitiesPartitionedBy(inReplicate)
	push = append(push, partition.ScopeEqualities...)
	post = append(post, partition.ScopeComplementEqualities...)
	post = append(post, partition.ScopeStraddlingEqualities...)

	rewritten, changed := r.rewriteChildren(node, rowexpr.CombineConjuncts(push...))
	return r.withResidualFilter(rewritten, post, changed)
}
