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

package plan

import "github.com/imillan/presto/pkg/sql/rowexpr"

// Assignment binds one output variable to its defining expression.
type Assignment struct {
	Variable   *rowexpr.Variable
	Expression rowexpr.RowExpression
}

// Assignments is an ordered output-variable-to-expression mapping. The order
// defines output column order and is preserved by every rewrite.
type Assignments []Assignment

// Outputs returns the assigned variables in assignment order.
func (a Assignments) Outputs() []*rowexpr.Variable {
	out := make([]*rowexpr.Variable, len(a))
	for i := range a {
		out[i] = a[i].Variable
	}
	return out
}

// Get returns the defining expression of the named output variable.
func (a Assignments) Get(name string) (rowexpr.RowExpression, bool) {
	for i := range a {
		if a[i].Variable.Name() == name {
			return a[i].Expression, true
		}
	}
	return nil, false
}

// AsMap returns the mapping keyed by output variable name, for use with
// rowexpr.InlineVariables.
func (a Assignments) AsMap() map[string]rowexpr.RowExpression {
	m := make(map[string]rowexpr.RowExpression, len(a))
	for i := range a {
		m[a[i].Variable.Name()] = a[i].Expression
	}
	return m
}

// IsIdentity reports whether every assignment maps a variable to itself.
func (a Assignments) IsIdentity() bool {
	for i := range a {
		v, ok := a[i].Expression.(*rowexpr.Variable)
		if !ok || v.Name() != a[i].Variable.Name() {
			return false
		}
	}
	return true
}

// IdentityAssignments builds the identity mapping over the given variables.
func IdentityAssignments(vars []*rowexpr.Variable) Assignments {
	a := make(Assignments, len(vars))
	for i, v := range vars {
		a[i] = Assignment{Variable: v, Expression: v}
	}
	return a
}
