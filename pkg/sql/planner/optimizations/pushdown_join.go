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
	"github.com/cockroachdb/errors"

	"github.com/imillan/presto/pkg/sql/plan"
	"github.com/imillan/presto/pkg/sql/planner"
	"github.com/imillan/presto/pkg/sql/rowexpr"
	"github.com/imillan/presto/pkg/sql/types"
)

// rewriteJoin classifies the inherited predicate, the join's own condition
// and both children's effective predicates into per-side pushable conjuncts,
// a new join condition and a post-join residual, then rebuilds the join. The
// join is first normalized: an outer join whose inherited predicate rejects
// every all-NULL extension of the non-preserved side demotes toward inner.
func (r *rewriter) rewriteJoin(
	node *plan.JoinNode, inherited rowexpr.RowExpression,
) (plan.Node, bool) {
	node, demoted := r.normalizeOuterToInner(node, inherited)

	leftEffective := planner.EffectivePredicate(node.Left)
	rightEffective := planner.EffectivePredicate(node.Right)
	joinPredicate := extractJoinPredicate(node)
	leftVariables := rowexpr.NewVariableSet(node.Left.OutputVariables()...)
	rightVariables := rowexpr.NewVariableSet(node.Right.OutputVariables()...)

	var leftPredicate, rightPredicate rowexpr.RowExpression
	var postJoinPredicate, newJoinPredicate rowexpr.RowExpression
	switch node.Type {
	case plan.InnerJoin:
		result := r.processInnerJoin(inherited, leftEffective, rightEffective, joinPredicate, leftVariables)
		leftPredicate, rightPredicate = result.left, result.right
		postJoinPredicate, newJoinPredicate = result.postJoin, result.join
	case plan.LeftJoin:
		result := r.processLimitedOuterJoin(inherited, leftEffective, rightEffective, joinPredicate, leftVariables)
		leftPredicate, rightPredicate = result.outer, result.inner
		postJoinPredicate, newJoinPredicate = result.postJoin, result.join
	case plan.RightJoin:
		result := r.processLimitedOuterJoin(inherited, rightEffective, leftEffective, joinPredicate, rightVariables)
		leftPredicate, rightPredicate = result.inner, result.outer
		postJoinPredicate, newJoinPredicate = result.postJoin, result.join
	case plan.FullJoin:
		// Neither side accepts a push under full preservation.
		leftPredicate, rightPredicate = rowexpr.TrueConstant, rowexpr.TrueConstant
		postJoinPredicate, newJoinPredicate = inherited, joinPredicate
	default:
		panic(errors.AssertionFailedf("unsupported join type %s", node.Type))
	}

	newJoinPredicate = planner.Simplify(newJoinPredicate)
	if rowexpr.IsFalse(newJoinPredicate) {
		// Execution rejects a literal FALSE join condition; an always-false
		// comparison behaves identically.
		newJoinPredicate = rowexpr.EqualsCall(
			rowexpr.NewConstant(int64(0), types.Bigint),
			rowexpr.NewConstant(int64(1), types.Bigint))
	}

	// Decompose the new join condition into equi-join clauses and a residual
	// filter, projecting computed equality sides into fresh variables.
	leftProjections := plan.IdentityAssignments(node.Left.OutputVariables())
	rightProjections := plan.IdentityAssignments(node.Right.OutputVariables())
	var equiJoinClauses []plan.EquiJoinClause
	var joinFilterConjuncts []rowexpr.RowExpression
	for _, conjunct := range rowexpr.ExtractConjuncts(newJoinPredicate) {
		leftExpression, rightExpression, ok := alignedEquality(conjunct, leftVariables, rightVariables)
		if !ok {
			joinFilterConjuncts = append(joinFilterConjuncts, conjunct)
			continue
		}
		leftVariable, added := variableFor(leftExpression, leftVariables, r.variableAllocator)
		if added {
			leftProjections = append(leftProjections, plan.Assignment{Variable: leftVariable, Expression: leftExpression})
		}
		rightVariable, added := variableFor(rightExpression, rightVariables, r.variableAllocator)
		if added {
			rightProjections = append(rightProjections, plan.Assignment{Variable: rightVariable, Expression: rightExpression})
		}
		equiJoinClauses = append(equiJoinClauses, plan.EquiJoinClause{Left: leftVariable, Right: rightVariable})
	}

	dynamicFilters := node.DynamicFilters
	if r.session.DynamicFilteringEnabled() {
		result := r.createDynamicFilters(node, equiJoinClauses, joinFilterConjuncts)
		dynamicFilters = result.filters
		if len(result.predicates) > 0 {
			leftPredicate = rowexpr.CombineConjuncts(
				leftPredicate, rowexpr.CombineConjuncts(result.predicates...))
		}
	}

	equiClausesUnmodified := plan.EquiJoinClausesEqual(equiJoinClauses, node.Criteria)

	leftSource, _ := r.rewrite(r.wrapInProjectIfNeeded(node.Left, leftProjections), leftPredicate)
	rightSource, _ := r.rewrite(r.wrapInProjectIfNeeded(node.Right, rightProjections), rightPredicate)

	newJoinFilter := rowexpr.CombineConjuncts(joinFilterConjuncts...)
	var filter rowexpr.RowExpression
	if !rowexpr.IsTrue(newJoinFilter) {
		filter = newJoinFilter
	}

	// An inner join with no equi-join clauses executes as a nested-loops
	// cross product; its condition evaluates just as well in a filter above.
	if node.Type == plan.InnerJoin && filter != nil && len(equiJoinClauses) == 0 {
		postJoinPredicate = rowexpr.CombineConjuncts(postJoinPredicate, filter)
		filter = nil
	}

	filtersEquivalent := (filter == nil) == (node.Filter == nil) &&
		(filter == nil || planner.AreEquivalent(filter, node.Filter))

	var output plan.Node = node
	changed := demoted
	if leftSource != node.Left || rightSource != node.Right || !filtersEquivalent ||
		!dynamicFilters.Equal(node.DynamicFilters) || !equiClausesUnmodified {
		combinedOutputs := rowexpr.NewVariableSet(leftSource.OutputVariables()...)
		for _, v := range rightSource.OutputVariables() {
			combinedOutputs = combinedOutputs.Add(v)
		}
		if !combinedOutputs.ContainsAll(rowexpr.NewVariableSet(node.Outputs...)) {
			panic(errors.AssertionFailedf(
				"rewritten join sources no longer produce the join outputs"))
		}

		// Widen the outputs when the residual moved above the join or when a
		// clause-less inner join degenerated to a cross product; the original
		// column list is restored by a trailing projection.
		outputs := node.Outputs
		postJoinVariables := rowexpr.ExtractUnique(postJoinPredicate)
		if (node.Type == plan.InnerJoin && len(equiJoinClauses) == 0 && filter == nil) ||
			!rowexpr.NewVariableSet(outputs...).ContainsAll(postJoinVariables) {
			outputs = append(
				append([]*rowexpr.Variable{}, leftSource.OutputVariables()...),
				rightSource.OutputVariables()...)
		}
		output = plan.NewJoinNode(
			node.ID(), node.Type, leftSource, rightSource, equiJoinClauses, outputs, filter, dynamicFilters)
		changed = true
	}

	if !rowexpr.IsTrue(postJoinPredicate) {
		output = plan.NewFilterNode(r.idAllocator.NextID(), output, postJoinPredicate)
		changed = true
	}
	if !variableListsEqual(node.OutputVariables(), output.OutputVariables()) {
		output = plan.NewProjectNode(
			r.idAllocator.NextID(), output, plan.IdentityAssignments(node.OutputVariables()))
		changed = true
	}
	return output, changed
}

// normalizeOuterToInner demotes an outer join toward inner when the inherited
// predicate cannot accept any all-NULL extension row of a non-preserved side.
func (r *rewriter) normalizeOuterToInner(
	node *plan.JoinNode, inherited rowexpr.RowExpression,
) (*plan.JoinNode, bool) {
	switch node.Type {
	case plan.InnerJoin:
		return node, false
	case plan.LeftJoin:
		if r.rejectsAllNullRows(node.Right.OutputVariables(), inherited) {
			return node.WithType(plan.InnerJoin), true
		}
	case plan.RightJoin:
		if r.rejectsAllNullRows(node.Left.OutputVariables(), inherited) {
			return node.WithType(plan.InnerJoin), true
		}
	case plan.FullJoin:
		// Rejecting all-NULL left rows kills the extensions produced for
		// unmatched right rows, so the right side stops being preserved.
		dropRightPreservation := r.rejectsAllNullRows(node.Left.OutputVariables(), inherited)
		dropLeftPreservation := r.rejectsAllNullRows(node.Right.OutputVariables(), inherited)
		switch {
		case dropRightPreservation && dropLeftPreservation:
			return node.WithType(plan.InnerJoin), true
		case dropRightPreservation:
			return node.WithType(plan.LeftJoin), true
		case dropLeftPreservation:
			return node.WithType(plan.RightJoin), true
		}
	}
	return node, false
}

// rejectsAllNullRows reports whether some deterministic inherited conjunct
// folds to FALSE or NULL once every given variable is bound to NULL. NULL
// counts as rejection: a filter keeps only rows evaluating to TRUE.
func (r *rewriter) rejectsAllNullRows(
	innerVariables []*rowexpr.Variable, inherited rowexpr.RowExpression,
) bool {
	nullVariables := rowexpr.NewVariableSet(innerVariables...)
	for _, conjunct := range rowexpr.ExtractConjuncts(inherited) {
		if !rowexpr.IsDeterministic(conjunct) {
			continue
		}
		result := planner.NullInputResult(conjunct, nullVariables)
		if rowexpr.IsFalse(result) || rowexpr.IsNullLiteral(result) {
			return true
		}
	}
	return false
}

// extractJoinPredicate renders the join's full condition: each equi-join
// clause as an equality conjunct, plus the residual filter.
func extractJoinPredicate(node *plan.JoinNode) rowexpr.RowExpression {
	conjuncts := make([]rowexpr.RowExpression, 0, len(node.Criteria)+1)
	for _, clause := range node.Criteria {
		conjuncts = append(conjuncts, rowexpr.EqualsCall(clause.Left, clause.Right))
	}
	if node.Filter != nil {
		conjuncts = append(conjuncts, node.Filter)
	}
	return rowexpr.CombineConjuncts(conjuncts...)
}

// alignedEquality recognizes a deterministic equality whose sides reference
// exactly one join child each, returned in (left child, right child) order.
func alignedEquality(
	conjunct rowexpr.RowExpression, leftVariables, rightVariables rowexpr.VariableSet,
) (leftExpression, rightExpression rowexpr.RowExpression, ok bool) {
	call, isCall := conjunct.(*rowexpr.Call)
	if !isCall || call.Name() != rowexpr.Equal || len(call.Arguments()) != 2 ||
		!rowexpr.IsDeterministic(conjunct) {
		return nil, nil, false
	}
	first, second := call.Arguments()[0], call.Arguments()[1]
	firstVariables := rowexpr.ExtractUnique(first)
	secondVariables := rowexpr.ExtractUnique(second)
	if len(firstVariables) == 0 || len(secondVariables) == 0 {
		return nil, nil, false
	}
	if leftVariables.ContainsAll(firstVariables) && rightVariables.ContainsAll(secondVariables) {
		return first, second, true
	}
	if leftVariables.ContainsAll(secondVariables) && rightVariables.ContainsAll(firstVariables) {
		return second, first, true
	}
	return nil, nil, false
}

// variableFor returns the expression itself when it is already an output
// variable of the side, minting a projection variable otherwise.
func variableFor(
	expression rowexpr.RowExpression,
	sideVariables rowexpr.VariableSet,
	allocator *planner.VariableAllocator,
) (v *rowexpr.Variable, added bool) {
	if variable, ok := expression.(*rowexpr.Variable); ok && sideVariables.Contains(variable) {
		return variable, false
	}
	return allocator.NewVariable(expression), true
}

// wrapInProjectIfNeeded projects the child to the given assignments. Identity
// assignments add nothing and are skipped.
func (r *rewriter) wrapInProjectIfNeeded(child plan.Node, assignments plan.Assignments) plan.Node {
	if assignments.IsIdentity() {
		return child
	}
	return plan.NewProjectNode(r.idAllocator.NextID(), child, assignments)
}

func variableListsEqual(a, b []*rowexpr.Variable) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name() != b[i].Name() {
			return false
		}
	}
	return true
}

// innerJoinPushDownResult classifies conjuncts around an inner join. postJoin
// is always TRUE here: anything not pushable to a side stays in the join
// condition itself.
type innerJoinPushDownResult struct {
	left, right, join, postJoin rowexpr.RowExpression
}

func (r *rewriter) processInnerJoin(
	inherited, leftEffective, rightEffective, joinPredicate rowexpr.RowExpression,
	leftVariables rowexpr.VariableSet,
) innerJoinPushDownResult {
	if !rowexpr.AllVariablesMatch(leftEffective, rowexpr.In(leftVariables)) {
		panic(errors.AssertionFailedf("left effective predicate escapes the left scope"))
	}
	if !rowexpr.AllVariablesMatch(rightEffective, rowexpr.NotIn(leftVariables)) {
		panic(errors.AssertionFailedf("right effective predicate overlaps the left scope"))
	}

	var leftPush, rightPush, joinConjuncts []rowexpr.RowExpression

	// Non-deterministic conjuncts evaluate exactly once per row pair, so they
	// stay in the join condition.
	appendConjunctsOf := func(predicate rowexpr.RowExpression) {
		if !rowexpr.IsTrue(predicate) {
			joinConjuncts = append(joinConjuncts, rowexpr.ExtractConjuncts(predicate)...)
		}
	}
	appendConjunctsOf(rowexpr.FilterNonDeterministicConjuncts(inherited))
	appendConjunctsOf(rowexpr.FilterNonDeterministicConjuncts(joinPredicate))
	inherited = rowexpr.FilterDeterministicConjuncts(inherited)
	joinPredicate = rowexpr.FilterDeterministicConjuncts(joinPredicate)
	leftEffective = rowexpr.FilterDeterministicConjuncts(leftEffective)
	rightEffective = rowexpr.FilterDeterministicConjuncts(rightEffective)

	if r.session.InferInequalityPredicates {
		inference := planner.NewInequalityInference(nil, joinPredicate, inherited)
		joinConjuncts = append(joinConjuncts, inference.InferInequalities()...)
	}

	allInference := planner.NewEqualityInference(inherited, leftEffective, rightEffective, joinPredicate)
	allInferenceWithoutLeft := planner.NewEqualityInference(inherited, rightEffective, joinPredicate)
	allInferenceWithoutRight := planner.NewEqualityInference(inherited, leftEffective, joinPredicate)
	inLeft := rowexpr.In(leftVariables)
	notInLeft := rowexpr.NotIn(leftVariables)

	// Sort each inherited conjunct to one side or, failing both, the join.
	for _, conjunct := range planner.NonInferableConjuncts(inherited) {
		leftRewritten := allInference.RewriteExpression(conjunct, inLeft)
		if leftRewritten != nil {
			leftPush = append(leftPush, leftRewritten)
		}
		rightRewritten := allInference.RewriteExpression(conjunct, notInLeft)
		if rightRewritten != nil {
			rightPush = append(rightPush, rightRewritten)
		}
		if leftRewritten == nil && rightRewritten == nil {
			joinConjuncts = append(joinConjuncts, conjunct)
		}
	}

	// Cross-pollinate the sides: facts known on one side transfer through
	// equalities to the other.
	for _, conjunct := range planner.NonInferableConjuncts(rightEffective) {
		if rewritten := allInference.RewriteExpression(conjunct, inLeft); rewritten != nil {
			leftPush = append(leftPush, rewritten)
		}
	}
	for _, conjunct := range planner.NonInferableConjuncts(leftEffective) {
		if rewritten := allInference.RewriteExpression(conjunct, notInLeft); rewritten != nil {
			rightPush = append(rightPush, rewritten)
		}
	}

	// The join's own condition pushes to a side when expressible there.
	for _, conjunct := range planner.NonInferableConjuncts(joinPredicate) {
		leftRewritten := allInference.RewriteExpression(conjunct, inLeft)
		if leftRewritten != nil {
			leftPush = append(leftPush, leftRewritten)
		}
		rightRewritten := allInference.RewriteExpression(conjunct, notInLeft)
		if rightRewritten != nil {
			rightPush = append(rightPush, rightRewritten)
		}
		if leftRewritten == nil && rightRewritten == nil {
			joinConjuncts = append(joinConjuncts, conjunct)
		}
	}

	if r.session.GenerateDomainFilters {
		for _, vd := range planner.FromPredicate(inherited) {
			predicate := planner.ToPredicate(vd.Domain, vd.Variable)
			if leftVariables.Contains(vd.Variable) {
				leftPush = append(leftPush, predicate)
			} else {
				rightPush = append(rightPush, predicate)
			}
		}
	}

	// Regenerate equalities. Each side's equalities come from an inference
	// excluding its own effective predicate, so facts originating on that side
	// are not re-derived onto it.
	leftPush = append(leftPush,
		allInferenceWithoutLeft.GenerateEqualitiesPartitionedBy(inLeft).ScopeEqualities...)
	rightPush = append(rightPush,
		allInferenceWithoutRight.GenerateEqualitiesPartitionedBy(notInLeft).ScopeEqualities...)
	joinConjuncts = append(joinConjuncts,
		allInference.GenerateEqualitiesPartitionedBy(inLeft).ScopeStraddlingEqualities...)

	return innerJoinPushDownResult{
		left:     rowexpr.CombineConjuncts(leftPush...),
		right:    rowexpr.CombineConjuncts(rightPush...),
		join:     rowexpr.CombineConjuncts(joinConjuncts...),
		postJoin: rowexpr.TrueConstant,
	}
}

// outerJoinPushDownResult classifies conjuncts around a LEFT or RIGHT join,
// expressed side-neutrally as the preserved (outer) and NULL-extended (inner)
// side.
type outerJoinPushDownResult struct {
	outer, inner, join, postJoin rowexpr.RowExpression
}

func (r *rewriter) processLimitedOuterJoin(
	inherited, outerEffective, innerEffective, joinPredicate rowexpr.RowExpression,
	outerVariables rowexpr.VariableSet,
) outerJoinPushDownResult {
	if !rowexpr.AllVariablesMatch(outerEffective, rowexpr.In(outerVariables)) {
		panic(errors.AssertionFailedf("outer effective predicate escapes the outer scope"))
	}
	if !rowexpr.AllVariablesMatch(innerEffective, rowexpr.NotIn(outerVariables)) {
		panic(errors.AssertionFailedf("inner effective predicate overlaps the outer scope"))
	}

	var outerPush, innerPush, postJoin, joinConjuncts []rowexpr.RowExpression

	if nonDeterministic := rowexpr.FilterNonDeterministicConjuncts(inherited); !rowexpr.IsTrue(nonDeterministic) {
		postJoin = append(postJoin, rowexpr.ExtractConjuncts(nonDeterministic)...)
	}
	if nonDeterministic := rowexpr.FilterNonDeterministicConjuncts(joinPredicate); !rowexpr.IsTrue(nonDeterministic) {
		joinConjuncts = append(joinConjuncts, rowexpr.ExtractConjuncts(nonDeterministic)...)
	}
	inherited = rowexpr.FilterDeterministicConjuncts(inherited)
	joinPredicate = rowexpr.FilterDeterministicConjuncts(joinPredicate)
	outerEffective = rowexpr.FilterDeterministicConjuncts(outerEffective)
	innerEffective = rowexpr.FilterDeterministicConjuncts(innerEffective)

	inOuter := rowexpr.In(outerVariables)
	notInOuter := rowexpr.NotIn(outerVariables)

	inheritedInference := planner.NewEqualityInference(inherited)
	outerInference := planner.NewEqualityInference(inherited, outerEffective)

	equalityPartition := inheritedInference.GenerateEqualitiesPartitionedBy(inOuter)
	outerOnlyInheritedEqualities := rowexpr.CombineConjuncts(equalityPartition.ScopeEqualities...)

	// Facts combined here hold only for matching row pairs, never for
	// NULL-extension rows, so rewrites out of this inference target the inner
	// side exclusively.
	potentialNullSymbolInference := planner.NewEqualityInference(
		outerOnlyInheritedEqualities, outerEffective, innerEffective, joinPredicate)

	if r.session.InferInequalityPredicates {
		inference := planner.NewInequalityInference(outerVariables, joinPredicate, inherited)
		innerPush = append(innerPush, inference.InferInequalities()...)
	}

	for _, conjunct := range planner.NonInferableConjuncts(inherited) {
		outerRewritten := outerInference.RewriteExpression(conjunct, inOuter)
		if outerRewritten != nil {
			outerPush = append(outerPush, outerRewritten)
			// The conjunct holds above the join, so pre-filtering the inner
			// side with its translation never removes a needed match.
			if innerRewritten := potentialNullSymbolInference.RewriteExpression(outerRewritten, notInOuter); innerRewritten != nil {
				innerPush = append(innerPush, innerRewritten)
			}
		} else {
			postJoin = append(postJoin, conjunct)
		}
	}

	if r.session.GenerateDomainFilters {
		for _, vd := range planner.FromPredicate(inherited) {
			if outerVariables.Contains(vd.Variable) {
				outerPush = append(outerPush, planner.ToPredicate(vd.Domain, vd.Variable))
			} else if !vd.Domain.NullAllowed() {
				// A null-admitting inner domain would also admit the
				// NULL-extension rows, making it useless as a pre-filter.
				innerPush = append(innerPush, planner.ToPredicate(vd.Domain, vd.Variable))
			}
		}
	}

	outerPush = append(outerPush, equalityPartition.ScopeEqualities...)
	postJoin = append(postJoin, equalityPartition.ScopeComplementEqualities...)
	postJoin = append(postJoin, equalityPartition.ScopeStraddlingEqualities...)

	// See if we can push the outer effective predicate to the inner side.
	for _, conjunct := range planner.NonInferableConjuncts(outerEffective) {
		if rewritten := potentialNullSymbolInference.RewriteExpression(conjunct, notInOuter); rewritten != nil {
			innerPush = append(innerPush, rewritten)
		}
	}

	// Join conditions pushable entirely to the inner side pre-filter it; the
	// rest stays in the join.
	for _, conjunct := range planner.NonInferableConjuncts(joinPredicate) {
		if rewritten := potentialNullSymbolInference.RewriteExpression(conjunct, notInOuter); rewritten != nil {
			innerPush = append(innerPush, rewritten)
		} else {
			joinConjuncts = append(joinConjuncts, conjunct)
		}
	}

	withoutInnerInference := planner.NewEqualityInference(
		outerOnlyInheritedEqualities, outerEffective, joinPredicate)
	innerPush = append(innerPush,
		withoutInnerInference.GenerateEqualitiesPartitionedBy(notInOuter).ScopeEqualities...)

	joinEqualityPartition := planner.NewEqualityInference(joinPredicate).
		GenerateEqualitiesPartitionedBy(notInOuter)
	innerPush = append(innerPush, joinEqualityPartition.ScopeEqualities...)
	joinConjuncts = append(joinConjuncts, joinEqualityPartition.ScopeComplementEqualities...)
	joinConjuncts = append(joinConjuncts, joinEqualityPartition.ScopeStraddlingEqualities...)

	return outerJoinPushDownResult{
		outer:    rowexpr.CombineConjuncts(outerPush...),
		inner:    rowexpr.CombineConjuncts(innerPush...),
		join:     rowexpr.CombineConjuncts(joinConjuncts...),
		postJoin: rowexpr.CombineConjuncts(postJoin...),
	}
}

// rewriteSpatialJoin reuses the join classifiers, with two differences: the
// condition is a single spatial filter expression with no equi-join clauses,
// and a condition folding to FALSE is a planning defect rather than a
// degenerate plan.
func (r *rewriter) rewriteSpatialJoin(
	node *plan.SpatialJoinNode, inherited rowexpr.RowExpression,
) (plan.Node, bool) {
	demoted := false
	if node.Type == plan.SpatialLeft &&
		r.rejectsAllNullRows(node.Right.OutputVariables(), inherited) {
		node = node.WithType(plan.SpatialInner)
		demoted = true
	}

	leftEffective := planner.EffectivePredicate(node.Left)
	rightEffective := planner.EffectivePredicate(node.Right)
	leftVariables := rowexpr.NewVariableSet(node.Left.OutputVariables()...)

	var leftPredicate, rightPredicate rowexpr.RowExpression
	var postJoinPredicate, newJoinPredicate rowexpr.RowExpression
	switch node.Type {
	case plan.SpatialInner:
		result := r.processInnerJoin(inherited, leftEffective, rightEffective, node.Filter, leftVariables)
		leftPredicate, rightPredicate = result.left, result.right
		postJoinPredicate, newJoinPredicate = result.postJoin, result.join
	case plan.SpatialLeft:
		result := r.processLimitedOuterJoin(inherited, leftEffective, rightEffective, node.Filter, leftVariables)
		leftPredicate, rightPredicate = result.outer, result.inner
		postJoinPredicate, newJoinPredicate = result.postJoin, result.join
	}

	newJoinPredicate = planner.Simplify(newJoinPredicate)
	if rowexpr.IsFalse(newJoinPredicate) {
		panic(errors.AssertionFailedf("spatial join condition is degenerate"))
	}

	leftSource, _ := r.rewrite(node.Left, leftPredicate)
	rightSource, _ := r.rewrite(node.Right, rightPredicate)

	var output plan.Node = node
	changed := demoted
	if leftSource != node.Left || rightSource != node.Right ||
		!planner.AreEquivalent(newJoinPredicate, node.Filter) {
		output = plan.NewSpatialJoinNode(
			node.ID(), node.Type, leftSource, rightSource, node.Outputs, newJoinPredicate)
		changed = true
	}
	if !rowexpr.IsTrue(postJoinPredicate) {
		output = plan.NewFilterNode(r.idAllocator.NextID(), output, postJoinPredicate)
		changed = true
	}
	return output, changed
}
