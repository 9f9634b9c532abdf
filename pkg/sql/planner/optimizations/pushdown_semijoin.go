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

// rewriteSemiJoin picks between two modes. When the inherited predicate
// asserts the semi-join output variable is true, only source rows with a
// filtering-source match survive, which licenses cross-inference between both
// sides exactly like an inner join on the join variables. Otherwise the
// output variable is merely computed, and conjuncts push to the source side
// alone.
func (r *rewriter) rewriteSemiJoin(
	node *plan.SemiJoinNode, inherited rowexpr.RowExpression,
) (plan.Node, bool) {
	if semiJoinOutputAssertedTrue(node, inherited) {
		return r.rewriteFilteringSemiJoin(node, inherited)
	}
	return r.rewriteNonFilteringSemiJoin(node, inherited)
}

// semiJoinOutputAssertedTrue reports whether some inherited conjunct forces
// the semi-join output variable to true: the bare variable, or an explicit
// equality with the TRUE literal in either orientation.
func semiJoinOutputAssertedTrue(node *plan.SemiJoinNode, inherited rowexpr.RowExpression) bool {
	output := node.SemiJoinOutput
	for _, conjunct := range rowexpr.ExtractConjuncts(inherited) {
		if rowexpr.Equals(conjunct, output) {
			return true
		}
		call, ok := conjunct.(*rowexpr.Call)
		if !ok || call.Name() != rowexpr.Equal || len(call.Arguments()) != 2 {
			continue
		}
		left, right := call.Arguments()[0], call.Arguments()[1]
		if (rowexpr.Equals(left, output) && rowexpr.IsTrue(right)) ||
			(rowexpr.IsTrue(left) && rowexpr.Equals(right, output)) {
			return true
		}
	}
	return false
}

func (r *rewriter) rewriteNonFilteringSemiJoin(
	node *plan.SemiJoinNode, inherited rowexpr.RowExpression,
) (plan.Node, bool) {
	inference := planner.NewEqualityInference(inherited)
	sourceVariables := rowexpr.NewVariableSet(node.Source.OutputVariables()...)
	inSource := rowexpr.In(sourceVariables)

	var sourceConjuncts, postJoinConjuncts []rowexpr.RowExpression
	for _, conjunct := range planner.NonInferableConjuncts(inherited) {
		// The source side sees each row exactly once, so pushing even a
		// non-deterministic conjunct cannot change how often it fires.
		if rewritten := inference.RewriteExpressionAllowNonDeterministic(conjunct, inSource); rewritten != nil {
			sourceConjuncts = append(sourceConjuncts, rewritten)
		} else {
			postJoinConjuncts = append(postJoinConjuncts, conjunct)
		}
	}

	partition := inference.GenerateEqualitiesPartitionedBy(inSource)
	sourceConjuncts = append(sourceConjuncts, partition.ScopeEqualities...)
	postJoinConjuncts = append(postJoinConjuncts, partition.ScopeComplementEqualities...)
	postJoinConjuncts = append(postJoinConjuncts, partition.ScopeStraddlingEqualities...)

	rewrittenSource, _ := r.rewrite(node.Source, rowexpr.CombineConjuncts(sourceConjuncts...))
	rewrittenFilteringSource, _ := r.rewrite(node.FilteringSource, rowexpr.TrueConstant)

	var output plan.Node = node
	changed := false
	if rewrittenSource != node.Source || rewrittenFilteringSource != node.FilteringSource {
		output = plan.NewSemiJoinNode(
			node.ID(), rewrittenSource, rewrittenFilteringSource,
			node.SourceJoinVariable, node.FilteringSourceJoinVariable,
			node.SemiJoinOutput, node.DynamicFilters)
		changed = true
	}
	return r.withResidualFilter(output, postJoinConjuncts, changed)
}

func (r *rewriter) rewriteFilteringSemiJoin(
	node *plan.SemiJoinNode, inherited rowexpr.RowExpression,
) (plan.Node, bool) {
	// Conjuncts over the output variable itself have no meaning below the
	// node and stay above it.
	var postJoinConjuncts, onSources []rowexpr.RowExpression
	for _, conjunct := range rowexpr.ExtractConjuncts(inherited) {
		if rowexpr.ExtractUnique(conjunct).Contains(node.SemiJoinOutput) {
			postJoinConjuncts = append(postJoinConjuncts, conjunct)
		} else {
			onSources = append(onSources, conjunct)
		}
	}
	inheritedOnSources := rowexpr.CombineConjuncts(onSources...)
	deterministicInherited := rowexpr.FilterDeterministicConjuncts(inheritedOnSources)
	sourceEffective := rowexpr.FilterDeterministicConjuncts(planner.EffectivePredicate(node.Source))
	filteringEffective := rowexpr.FilterDeterministicConjuncts(planner.EffectivePredicate(node.FilteringSource))
	joinExpression := rowexpr.EqualsCall(node.SourceJoinVariable, node.FilteringSourceJoinVariable)

	sourceVariables := rowexpr.NewVariableSet(node.Source.OutputVariables()...)
	filteringVariables := rowexpr.NewVariableSet(node.FilteringSource.OutputVariables()...)
	inSource := rowexpr.In(sourceVariables)
	inFiltering := rowexpr.In(filteringVariables)

	allInference := planner.NewEqualityInference(
		deterministicInherited, sourceEffective, filteringEffective, joinExpression)
	allInferenceWithoutSource := planner.NewEqualityInference(
		deterministicInherited, filteringEffective, joinExpression)
	allInferenceWithoutFiltering := planner.NewEqualityInference(
		deterministicInherited, sourceEffective, joinExpression)

	var sourceConjuncts, filteringSourceConjuncts []rowexpr.RowExpression
	for _, conjunct := range planner.NonInferableConjuncts(inheritedOnSources) {
		if rewritten := allInference.RewriteExpressionAllowNonDeterministic(conjunct, inSource); rewritten != nil {
			sourceConjuncts = append(sourceConjuncts, rewritten)
		} else {
			postJoinConjuncts = append(postJoinConjuncts, conjunct)
		}
	}

	// The filtering side may multiply match; only deterministic conjuncts
	// transfer to it.
	for _, conjunct := range planner.NonInferableConjuncts(deterministicInherited) {
		if rewritten := allInference.RewriteExpression(conjunct, inFiltering); rewritten != nil {
			filteringSourceConjuncts = append(filteringSourceConjuncts, rewritten)
		}
	}
	for _, conjunct := range planner.NonInferableConjuncts(filteringEffective) {
		if rewritten := allInference.RewriteExpression(conjunct, inSource); rewritten != nil {
			sourceConjuncts = append(sourceConjuncts, rewritten)
		}
	}
	for _, conjunct := range planner.NonInferableConjuncts(sourceEffective) {
		if rewritten := allInference.RewriteExpression(conjunct, inFiltering); rewritten != nil {
			filteringSourceConjuncts = append(filteringSourceConjuncts, rewritten)
		}
	}

	sourceConjuncts = append(sourceConjuncts,
		allInferenceWithoutSource.GenerateEqualitiesPartitionedBy(inSource).ScopeEqualities...)
	filteringSourceConjuncts = append(filteringSourceConjuncts,
		allInferenceWithoutFiltering.GenerateEqualitiesPartitionedBy(inFiltering).ScopeEqualities...)

	// A filtering semi-join behaves like an inner join on the join variables,
	// so the source side qualifies for a dynamic filter probe. The
	// placeholder joins the pushed conjuncts before the source rewrite; an
	// existing table means the placeholder already sits in the subtree.
	dynamicFilters := node.DynamicFilters
	if r.session.DynamicFilteringEnabled() && len(dynamicFilters) == 0 {
		id := r.idAllocator.NextID().String()
		dynamicFilters = plan.DynamicFilters{{ID: id, Build: node.FilteringSourceJoinVariable}}
		sourceConjuncts = append(sourceConjuncts,
			rowexpr.NewDynamicFilterExpression(id, node.SourceJoinVariable, rowexpr.Equal))
	}

	rewrittenSource, _ := r.rewrite(node.Source, rowexpr.CombineConjuncts(sourceConjuncts...))
	rewrittenFilteringSource, _ := r.rewrite(
		node.FilteringSource, rowexpr.CombineConjuncts(filteringSourceConjuncts...))

	var output plan.Node = node
	changed := false
	if rewrittenSource != node.Source || rewrittenFilteringSource != node.FilteringSource ||
		!dynamicFilters.Equal(node.DynamicFilters) {
		output = plan.NewSemiJoinNode(
			node.ID(), rewrittenSource, rewrittenFilteringSource,
			node.SourceJoinVariable, node.FilteringSourceJoinVariable,
			node.SemiJoinOutput, dynamicFilters)
		changed = true
	}
	return r.withResidualFilter(output, postJoinConjuncts, changed)
}
