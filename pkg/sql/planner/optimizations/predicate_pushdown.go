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

// Package optimizations holds the planner's plan-rewriting passes.
//
// PredicatePushDown is the central one: it threads an inherited predicate
// down a logical plan, pushing filtering work as close to the data sources as
// each operator's semantics allow, normalizing outer joins whose far side is
// unconditionally eliminated, and synthesizing dynamic filter hints from join
// conditions.
package optimizations

import (
	"github.com/cockroachdb/errors"

	"github.com/imillan/presto/pkg/sql/plan"
	"github.com/imillan/presto/pkg/sql/planner"
	"github.com/imillan/presto/pkg/sql/rowexpr"
	"github.com/imillan/presto/pkg/sql/session"
)

// PredicatePushDown rewrites a plan so that filtering conditions are
// evaluated as close to the data sources as legal. The pass is a pure
// function of its inputs: it owns its allocators for one invocation, mutates
// no input node, and is safe to re-run on its own output.
type PredicatePushDown struct{}

// NewPredicatePushDown returns the pass.
func NewPredicatePushDown() *PredicatePushDown {
	return &PredicatePushDown{}
}

// Optimize rewrites the plan rooted at root and reports whether any node
// differs from the input. The allocators must be owned by this invocation.
func (*PredicatePushDown) Optimize(
	root plan.Node,
	sess *session.Session,
	idAllocator *plan.NodeIDAllocator,
	variableAllocator *planner.VariableAllocator,
) (plan.Node, bool) {
	r := &rewriter{
		session:           sess,
		idAllocator:       idAllocator,
		variableAllocator: variableAllocator,
	}
	return r.rewrite(root, rowexpr.TrueConstant)
}

// rewriter carries the per-invocation state of one pass run. It holds no
// mutable rewrite state: every rewrite returns its own (node, changed) pair
// and results combine with logical OR on the way back up.
type rewriter struct {
	session           *session.Session
	idAllocator       *plan.NodeIDAllocator
	variableAllocator *planner.VariableAllocator
}

// rewrite dispatches on the node kind. The kind set is closed; an unknown
// kind is a programming defect, not an input error.
func (r *rewriter) rewrite(
	node plan.Node, inherited rowexpr.RowExpression,
) (plan.Node, bool) {
	switch n := node.(type) {
	case *plan.ScanNode:
		return r.rewriteScan(n, inherited)
	case *plan.FilterNode:
		return r.rewriteFilter(n, inherited)
	case *plan.ProjectNode:
		return r.rewriteProject(n, inherited)
	case *plan.JoinNode:
		return r.rewriteJoin(n, inherited)
	case *plan.SemiJoinNode:
		return r.rewriteSemiJoin(n, inherited)
	case *plan.SpatialJoinNode:
		return r.rewriteSpatialJoin(n, inherited)
	case *plan.AggregationNode:
		return r.rewriteAggregation(n, inherited)
	case *plan.WindowNode:
		return r.rewriteWindow(n, inherited)
	case *plan.UnionNode:
		return r.rewriteBranches(n, n.Sources, n.SourceVariableMap, inherited)
	case *plan.ExchangeNode:
		return r.rewriteBranches(n, n.Sources, n.SourceVariableMap, inherited)
	case *plan.UnnestNode:
		return r.rewriteUnnest(n, inherited)
	case *plan.MarkDistinctNode:
		return r.rewriteMarkDistinct(n, inherited)
	case *plan.GroupIDNode:
		return r.rewriteGroupID(n, inherited)
	case *plan.AssignUniqueIDNode:
		return r.rewriteAssignUniqueID(n, inherited)
	case *plan.SortNode:
		// Ordering does not interact with row-level predicates.
		return r.rewriteChildren(n, inherited)
	case *plan.SampleNode:
		return r.rewriteChildren(n, inherited)
	case *plan.LimitNode:
		return r.rewriteDefault(n, inherited)
	}
	panic(errors.AssertionFailedf("unsupported plan node kind %T", node))
}

// rewriteChildren rewrites every child with the given predicate, in fixed
// left-to-right order, and reconstructs the node if anything changed.
func (r *rewriter) rewriteChildren(
	node plan.Node, childPredicate rowexpr.RowExpression,
) (plan.Node, bool) {
	children := node.Children()
	if len(children) == 0 {
		return node, false
	}
	rewritten := make([]plan.Node, len(children))
	changed := false
	for i, child := range children {
		var childChanged bool
		rewritten[i], childChanged = r.rewrite(child, childPredicate)
		changed = changed || childChanged
	}
	if !changed {
		return node, false
	}
	return replaceChildren(node, rewritten), true
}

// rewriteDefault is the policy for node kinds without a specialized rule:
// the predicate cannot cross the node, so children are rewritten with TRUE
// and the whole inherited predicate lands in a filter above the node.
func (r *rewriter) rewriteDefault(
	node plan.Node, inherited rowexpr.RowExpression,
) (plan.Node, bool) {
	rewritten, changed := r.rewriteChildren(node, rowexpr.TrueConstant)
	if !rowexpr.IsTrue(inherited) {
		return plan.NewFilterNode(r.idAllocator.NextID(), rewritten, inherited), true
	}
	return rewritten, changed
}

// withResidualFilter places the leftover conjuncts in a filter above the
// rewritten node.
func (r *rewriter) withResidualFilter(
	node plan.Node, residual []rowexpr.RowExpression, changed bool,
) (plan.Node, bool) {
	if len(residual) > 0 {
		return plan.NewFilterNode(r.idAllocator.NextID(), node, rowexpr.CombineConjuncts(residual...)), true
	}
	return node, changed
}

// rewriteScan attaches the simplified predicate directly at the scan; there
// is nowhere further to push.
func (r *rewriter) rewriteScan(
	node *plan.ScanNode, inherited rowexpr.RowExpression,
) (plan.Node, bool) {
	predicate := planner.Simplify(inherited)
	if node.Predicate != nil {
		predicate = planner.Simplify(rowexpr.CombineConjuncts(node.Predicate, predicate))
		if planner.AreEquivalent(predicate, node.Predicate) {
			return node, false
		}
	} else if rowexpr.IsTrue(predicate) {
		return node, false
	}
	return plan.NewScanNodeWithPredicate(node.ID(), node.Table, node.Outputs, predicate), true
}

// rewriteFilter folds the filter's own predicate into the inherited one and
// rewrites the source with the combination. The filter node itself survives
// only if the source could not absorb the predicate.
func (r *rewriter) rewriteFilter(
	node *plan.FilterNode, inherited rowexpr.RowExpression,
) (plan.Node, bool) {
	combined := rowexpr.CombineConjuncts(node.Predicate, inherited)
	rewritten, _ := r.rewrite(node.Source, combined)
	if result, ok := rewritten.(*plan.FilterNode); ok &&
		result.Source == node.Source &&
		planner.AreEquivalent(result.Predicate, node.Predicate) {
		return node, false
	}
	return rewritten, true
}

// rewriteAssignUniqueID relays the predicate to its child. Reasoning about a
// freshly minted unique id under a predicate is not supported; an upstream
// stage producing such a plan is malformed.
func (r *rewriter) rewriteAssignUniqueID(
	node *plan.AssignUniqueIDNode, inherited rowexpr.RowExpression,
) (plan.Node, bool) {
	if rowexpr.ExtractUnique(inherited).Contains(node.IDVariable) {
		panic(errors.AssertionFailedf(
			"predicate %s references unique id variable %s", inherited, node.IDVariable.Name()))
	}
	return r.rewriteChildren(node, inherited)
}

// rewriteBranches handles union and exchange: the predicate is remapped
// through each branch's output-to-input correspondence and pushed into every
// source independently. Each branch fully absorbs its copy, so no residual
// remains at this node.
func (r *rewriter) rewriteBranches(
	node plan.Node,
	sources []plan.Node,
	variableMap func(branch int) map[string]*rowexpr.Variable,
	inherited rowexpr.RowExpression,
) (plan.Node, bool) {
	rewritten := make([]plan.Node, len(sources))
	changed := false
	for i, source := range sources {
		sourcePredicate := rowexpr.RenameVariables(variableMap(i), inherited)
		var branchChanged bool
		rewritten[i], branchChanged = r.rewrite(source, sourcePredicate)
		changed = changed || branchChanged
	}
	if !changed {
		return node, false
	}
	return replaceChildren(node, rewritten), true
}

// replaceChildren reconstructs a node with new children, preserving its id
// and payload.
func replaceChildren(node plan.Node, children []plan.Node) plan.Node {
	switch n := node.(type) {
	case *plan.FilterNode:
		return plan.NewFilterNode(n.ID(), children[0], n.Predicate)
	case *plan.ProjectNode:
		return plan.NewProjectNode(n.ID(), children[0], n.Assignments)
	case *plan.SortNode:
		return plan.NewSortNode(n.ID(), children[0], n.OrderBy)
	case *plan.SampleNode:
		return plan.NewSampleNode(n.ID(), children[0], n.Ratio)
	case *plan.LimitNode:
		return plan.NewLimitNode(n.ID(), children[0], n.Count)
	case *plan.AssignUniqueIDNode:
		return plan.NewAssignUniqueIDNode(n.ID(), children[0], n.IDVariable)
	case *plan.MarkDistinctNode:
		return plan.NewMarkDistinctNode(n.ID(), children[0], n.MarkerVariable, n.DistinctVariables)
	case *plan.WindowNode:
		return plan.NewWindowNode(n.ID(), children[0], n.PartitionBy, n.WindowFunctions)
	case *plan.GroupIDNode:
		return plan.NewGroupIDNode(
			n.ID(), children[0], n.GroupingSets, n.GroupingColumns, n.AggregationArguments, n.GroupIDVariable)
	case *plan.UnnestNode:
		return plan.NewUnnestNode(
			n.ID(), children[0], n.ReplicateVariables, n.ArrayVariables, n.UnnestedVariables, n.OrdinalityVariable)
	case *plan.AggregationNode:
		// A rewritten source invalidates any pre-grouped property.
		return plan.NewAggregationNode(
			n.ID(), children[0], n.GroupingKeys, n.Aggregations, n.GroupIDVariable, n.HasEmptyGroupingSet, nil)
	case *plan.UnionNode:
		return plan.NewUnionNode(n.ID(), children, n.Outputs, n.Inputs)
	case *plan.ExchangeNode:
		return plan.NewExchangeNode(n.ID(), children, n.Outputs, n.Inputs)
	case *plan.JoinNode:
		return plan.NewJoinNode(
			n.ID(), n.Type, children[0], children[1], n.Criteria, n.Outputs, n.Filter, n.DynamicFilters)
	case *plan.SemiJoinNode:
		return plan.NewSemiJoinNode(
			n.ID(), children[0], children[1],
			n.SourceJoinVariable, n.FilteringSourceJoinVariable, n.SemiJoinOutput, n.DynamicFilters)
	case *plan.SpatialJoinNode:
		return plan.NewSpatialJoinNode(n.ID(), n.Type, children[0], children[1], n.Outputs, n.Filter)
	}
	panic(errors.AssertionFailedf("unsupported plan node kind %T", node))
}

// partitionConjuncts splits a predicate's conjuncts by the given test.
func partitionConjuncts(
	predicate rowexpr.RowExpression, test func(rowexpr.RowExpression) bool,
) (matching, rest []rowexpr.RowExpression) {
	for _, conjunct := range rowexpr.ExtractConjuncts(predicate) {
		if test(conjunct) {
			matching = append(matching, conjunct)
		} else {
			rest = append(rest, conjunct)
		}
	}
	return matching, rest
}
