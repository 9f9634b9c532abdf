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

// EqualityInference maintains equivalence classes over expressions, built
// from the simple equality conjuncts of a set of predicates. It can rewrite
// an expression into an equivalent one restricted to a variable scope, and
// regenerate the equality facts partitioned by scope.
type EqualityInference struct {
	// byKey maps an expression rendering to its class index.
	byKey map[string]int
	// classes holds each equivalence class's members, sorted by rendering.
	// The first member is the class canonical.
	classes [][]rowexpr.RowExpression
}

// NewEqualityInference builds the equivalence classes implied by the equality
// conjuncts of the given predicates.
func NewEqualityInference(predicates ...rowexpr.RowExpression) *EqualityInference {
	parent := make(map[string]string)
	exprs := make(map[string]rowexpr.RowExpression)

	var find func(key string) string
	find = func(key string) string {
		if parent[key] != key {
			parent[key] = find(parent[key])
		}
		return parent[key]
	}
	add := func(expr rowexpr.RowExpression) string {
		key := expr.String()
		if _, ok := parent[key]; !ok {
			parent[key] = key
			exprs[key] = expr
		}
		return key
	}

	for _, predicate := range predicates {
		for _, conjunct := range rowexpr.ExtractConjuncts(predicate) {
			left, right, ok := inferenceCandidate(conjunct)
			if !ok {
				continue
			}
			leftRoot := find(add(left))
			rightRoot := find(add(right))
			if leftRoot != rightRoot {
				parent[leftRoot] = rightRoot
			}
		}
	}

	members := make(map[string][]rowexpr.RowExpression)
	for key := range parent {
		root := find(key)
		members[root] = append(members[root], exprs[key])
	}

	e := &EqualityInference{byKey: make(map[string]int)}
	roots := make([]string, 0, len(members))
	for root := range members {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	for _, root := range roots {
		class := members[root]
		if len(class) < 2 {
			continue
		}
		sort.Slice(class, func(i, j int) bool { return class[i].String() < class[j].String() })
		idx := len(e.classes)
		e.classes = append(e.classes, class)
		for _, member := range class {
			e.byKey[member.String()] = idx
		}
	}
	return e
}

// inferenceCandidate recognizes a conjunct usable for equality inference: a
// deterministic equality between two distinct non-NULL expressions.
func inferenceCandidate(conjunct rowexpr.RowExpression) (left, right rowexpr.RowExpression, ok bool) {
	call, isCall := conjunct.(*rowexpr.Call)
	if !isCall || call.Name() != rowexpr.Equal || len(call.Arguments()) != 2 {
		return nil, nil, false
	}
	if !rowexpr.IsDeterministic(call) {
		return nil, nil, false
	}
	left, right = call.Arguments()[0], call.Arguments()[1]
	if rowexpr.IsNullLiteral(left) || rowexpr.IsNullLiteral(right) {
		return nil, nil, false
	}
	if left.String() == right.String() {
		return nil, nil, false
	}
	return left, right, true
}

// NonInferableConjuncts returns the conjuncts of a predicate that equality
// inference cannot absorb into its classes. These are the conjuncts a caller
// still has to place somewhere after building an inference.
func NonInferableConjuncts(predicate rowexpr.RowExpression) []rowexpr.RowExpression {
	var out []rowexpr.RowExpression
	for _, conjunct := range rowexpr.ExtractConjuncts(predicate) {
		if _, _, ok := inferenceCandidate(conjunct); !ok {
			out = append(out, conjunct)
		}
	}
	return out
}

// RewriteExpression rewrites a deterministic expression so that every
// variable it references satisfies the scope predicate, substituting
// equivalent expressions where necessary. It returns nil if no such rewrite
// exists, or if the expression is non-deterministic.
func (e *EqualityInference) RewriteExpression(
	expr rowexpr.RowExpression, scope rowexpr.VariablePredicate,
) rowexpr.RowExpression {
	if !rowexpr.IsDeterministic(expr) {
		return nil
	}
	return e.rewrite(expr, scope)
}

// RewriteExpressionAllowNonDeterministic is RewriteExpression without the
// determinism precondition. It exists for the one pushdown target where
// duplication is impossible (a semi-join's source side).
func (e *EqualityInference) RewriteExpressionAllowNonDeterministic(
	expr rowexpr.RowExpression, scope rowexpr.VariablePredicate,
) rowexpr.RowExpression {
	return e.rewrite(expr, scope)
}

func (e *EqualityInference) rewrite(
	expr rowexpr.RowExpression, scope rowexpr.VariablePredicate,
) rowexpr.RowExpression {
	if substitute := e.scopedEquivalent(expr, scope); substitute != nil {
		return substitute
	}
	switch expr := expr.(type) {
	case *rowexpr.Variable:
		if scope(expr) {
			return expr
		}
		return nil
	case *rowexpr.Constant:
		return expr
	case *rowexpr.Call:
		args := expr.Arguments()
		rewritten := make([]rowexpr.RowExpression, len(args))
		for i, arg := range args {
			rewritten[i] = e.rewrite(arg, scope)
			if rewritten[i] == nil {
				return nil
			}
		}
		return rebuildIfChanged(expr, rewritten)
	}
	return nil
}

// scopedEquivalent returns the canonical in-scope member of expr's
// equivalence class, or nil if expr is in no class or its class has no
// in-scope member.
func (e *EqualityInference) scopedEquivalent(
	expr rowexpr.RowExpression, scope rowexpr.VariablePredicate,
) rowexpr.RowExpression {
	idx, ok := e.byKey[expr.String()]
	if !ok {
		return nil
	}
	for _, member := range e.classes[idx] {
		if rowexpr.AllVariablesMatch(member, scope) {
			return member
		}
	}
	return nil
}

// EqualityPartition is the regenerated equality facts of an inference, split
// by a variable scope.
type EqualityPartition struct {
	// ScopeEqualities hold only in-scope variables.
	ScopeEqualities []rowexpr.RowExpression
	// ScopeComplementEqualities hold only out-of-scope variables.
	ScopeComplementEqualities []rowexpr.RowExpression
	// ScopeStraddlingEqualities connect the two sides and any member that
	// itself mentions both.
	ScopeStraddlingEqualities []rowexpr.RowExpression
}

// GenerateEqualitiesPartitionedBy regenerates, for each equivalence class, a
// minimal set of equality conjuncts that together imply the class, split into
// in-scope, out-of-scope and straddling facts.
func (e *EqualityInference) GenerateEqualitiesPartitionedBy(
	scope rowexpr.VariablePredicate,
) EqualityPartition {
	var partition EqualityPartition
	notScope := func(v *rowexpr.Variable) bool { return !scope(v) }

	for _, class := range e.classes {
		var scopeMembers, complementMembers, straddlingMembers []rowexpr.RowExpression
		for _, member := range class {
			inScope := rowexpr.AllVariablesMatch(member, scope)
			inComplement := rowexpr.AllVariablesMatch(member, notScope)
			switch {
			case inScope && inComplement:
				// Variable-free members anchor both sides.
				scopeMembers = append(scopeMembers, member)
				complementMembers = append(complementMembers, member)
			case inScope:
				scopeMembers = append(scopeMembers, member)
			case inComplement:
				complementMembers = append(complementMembers, member)
			default:
				straddlingMembers = append(straddlingMembers, member)
			}
		}

		partition.ScopeEqualities = appendChain(partition.ScopeEqualities, scopeMembers)
		partition.ScopeComplementEqualities = appendChain(partition.ScopeComplementEqualities, complementMembers)

		// One connector per class ties the scoped and complement canonicals
		// together with any genuinely straddling members. When both canonicals
		// are the same variable-free member the sides are already connected
		// through it.
		var connectors []rowexpr.RowExpression
		if len(scopeMembers) > 0 {
			connectors = append(connectors, scopeMembers[0])
		}
		if len(complementMembers) > 0 &&
			(len(connectors) == 0 || complementMembers[0].String() != connectors[0].String()) {
			connectors = append(connectors, complementMembers[0])
		}
		connectors = append(connectors, straddlingMembers...)
		partition.ScopeStraddlingEqualities = appendChain(partition.ScopeStraddlingEqualities, connectors)
	}
	return partition
}

// appendChain emits the equalities linking every member to the first one.
func appendChain(
	out []rowexpr.RowExpression, members []rowexpr.RowExpression,
) []rowexpr.RowExpression {
	for i := 1; i < len(members); i++ {
		out = append(out, rowexpr.EqualsCall(members[0], members[i]))
	}
	return out
}
