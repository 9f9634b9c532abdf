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

import "github.com/imillan/presto/pkg/sql/types"

// OperatorName names the operator or function applied by a Call. The operator
// set relevant to the planner is closed and listed below; anything else is an
// opaque scalar function.
type OperatorName string

// SafeValue implements the redact.SafeValue interface.
func (OperatorName) SafeValue() {}

// Comparison, logical and arithmetic operators.
const (
	Equal              OperatorName = "EQUAL"
	NotEqual           OperatorName = "NOT_EQUAL"
	LessThan           OperatorName = "LESS_THAN"
	LessThanOrEqual    OperatorName = "LESS_THAN_OR_EQUAL"
	GreaterThan        OperatorName = "GREATER_THAN"
	GreaterThanOrEqual OperatorName = "GREATER_THAN_OR_EQUAL"
	IsDistinctFrom     OperatorName = "IS_DISTINCT_FROM"
	Between            OperatorName = "BETWEEN"
	And                OperatorName = "AND"
	Or                 OperatorName = "OR"
	Not                OperatorName = "NOT"
	IsNull             OperatorName = "IS_NULL"
	Add                OperatorName = "ADD"
	Subtract           OperatorName = "SUBTRACT"
	Multiply           OperatorName = "MULTIPLY"
)

var infixSymbols = map[OperatorName]string{
	Equal:              "=",
	NotEqual:           "<>",
	LessThan:           "<",
	LessThanOrEqual:    "<=",
	GreaterThan:        ">",
	GreaterThanOrEqual: ">=",
	IsDistinctFrom:     "IS DISTINCT FROM",
	And:                "AND",
	Or:                 "OR",
	Add:                "+",
	Subtract:           "-",
	Multiply:           "*",
}

// IsComparisonOperator reports whether the operator compares two values for
// equality or order.
func IsComparisonOperator(name OperatorName) bool {
	switch name {
	case Equal, NotEqual, LessThan, LessThanOrEqual, GreaterThan, GreaterThanOrEqual, IsDistinctFrom:
		return true
	}
	return false
}

// IsOrderingOperator reports whether the operator is a strict or non-strict
// ordering comparison.
func IsOrderingOperator(name OperatorName) bool {
	switch name {
	case LessThan, LessThanOrEqual, GreaterThan, GreaterThanOrEqual:
		return true
	}
	return false
}

// Negate returns the operator obtained by swapping the two operands of a
// comparison: a op b <=> b Negate(op) a. Equality operators are their own
// negation in this sense.
func Negate(name OperatorName) OperatorName {
	switch name {
	case LessThan:
		return GreaterThan
	case LessThanOrEqual:
		return GreaterThanOrEqual
	case GreaterThan:
		return LessThan
	case GreaterThanOrEqual:
		return LessThanOrEqual
	}
	return name
}

// NewComparison builds a boolean comparison call.
func NewComparison(name OperatorName, left, right RowExpression) *Call {
	return NewCall(name, types.Boolean, left, right)
}

// EqualsCall builds the equality comparison left = right.
func EqualsCall(left, right RowExpression) *Call {
	return NewComparison(Equal, left, right)
}

// NotCall builds the boolean negation of the argument.
func NotCall(arg RowExpression) *Call {
	return NewCall(Not, types.Boolean, arg)
}

// IsNullCall builds the IS NULL test of the argument.
func IsNullCall(arg RowExpression) *Call {
	return NewCall(IsNull, types.Boolean, arg)
}
