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

package rowexpr

// VariableSet is a set of variables keyed by name.
type VariableSet map[string]*Variable

// NewVariableSet builds a set from the given variables.
func NewVariableSet(vars ...*Variable) VariableSet {
	s := make(VariableSet, len(vars))
	for _, v := range vars {
		s[v.Name()] = v
	}
	return s
}

// VariableSetOf builds a set from a slice of variables.
func VariableSetOf(vars []*Variable) VariableSet {
	return NewVariableSet(vars...)
}

// Contains reports set membership.
func (s VariableSet) Contains(v *Variable) bool {
	_, ok := s[v.Name()]
	return ok
}

// ContainsAll reports whether every member of other is in s.
func (s VariableSet) ContainsAll(other VariableSet) bool {
	for name := range other {
		if _, ok := s[name]; !ok {
			return false
		}
	}
	return true
}

// Add returns a new set extended with v. The receiver is not modified.
func (s VariableSet) Add(v *Variable) VariableSet {
	out := make(VariableSet, len(s)+1)
	for name, member := range s {
		out[name] = member
	}
	out[v.Name()] = v
	return out
}

// VariablePredicate is a variable scope test.
type VariablePredicate func(*Variable) bool

// In returns a predicate matching members of the set.
func In(s VariableSet) VariablePredicate {
	return s.Contains
}

// NotIn returns a predicate matching non-members of the set.
func NotIn(s VariableSet) VariablePredicate {
	return func(v *Variable) bool { return !s.Contains(v) }
}

// AllVariablesMatch reports whether every variable referenced by expr
// satisfies the predicate.
func AllVariablesMatch(expr RowExpression, pred VariablePredicate) bool {
	for _, v := range ExtractUnique(expr) {
		if !pred(v) {
			return false
		}
	}
	return true
}

// ExtractUnique returns the distinct variables referenced by expr.
func ExtractUnique(expr RowExpression) VariableSet {
	s := make(VariableSet)
	collectVariables(expr, func(v *Variable) { s[v.Name()] = v })
	return s
}

// ExtractAll returns every variable reference in expr, with multiplicity, in
// depth-first order.
func ExtractAll(expr RowExpression) []*Variable {
	var out []*Variable
	collectVariables(expr, func(v *Variable) { out = append(out, v) })
	return out
}

func collectVariables(expr RowExpression, emit func(*Variable)) {
	switch e := expr.(type) {
	case *Variable:
		emit(e)
	case *Call:
		for _, arg := range e.Arguments() {
			collectVariables(arg, emit)
		}
	}
}

// InlineVariables replaces each variable reference whose name appears in the
// mapping with its replacement expression. Unmapped variables are left alone.
func InlineVariables(mapping map[string]RowExpression, expr RowExpression) RowExpression {
	switch e := expr.(type) {
	case *Variable:
		if replacement, ok := mapping[e.Name()]; ok {
			return replacement
		}
		return e
	case *Call:
		args := e.Arguments()
		newArgs := make([]RowExpression, len(args))
		changed := false
		for i, arg := range args {
			newArgs[i] = InlineVariables(mapping, arg)
			if newArgs[i] != arg {
				changed = true
			}
		}
		if !changed {
			return e
		}
		return NewCall(e.Name(), e.Type(), newArgs...)
	}
	return expr
}

// RenameVariables is InlineVariables restricted to variable-to-variable
// substitution, as used when translating a predicate through a union or
// exchange branch's output-to-input correspondence.
func RenameVariables(mapping map[string]*Variable, expr RowExpression) RowExpression {
	exprMapping := make(map[string]RowExpression, len(mapping))
	for name, v := range mapping {
		exprMapping[name] = v
	}
	return InlineVariables(exprMapping, expr)
}
