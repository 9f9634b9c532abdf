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

// Package planner implements the analysis collaborators consumed by the
// optimization passes: expression simplification and equivalence, equality
// and inequality inference, effective predicate extraction, and value-domain
// translation. Everything here is a pure function over immutable expression
// and plan trees.
package planner

import (
	"github.com/imillan/presto/pkg/sql/rowexpr"
	"github.com/imillan/presto/pkg/sql/types"
)

// Simplify folds constant subexpressions of expr under SQL three-valued NULL
// semantics and flattens boolean connectives. It never changes the
// expression's meaning over any row.
func Simplify(expr rowexpr.RowExpression) rowexpr.RowExpression {
	call, ok := expr.(*rowexpr.Call)
	if !ok {
		return expr
	}

	args := call.Arguments()
	simplified := make([]rowexpr.RowExpression, len(args))
	for i, arg := range args {
		simplified[i] = Simplify(arg)
	}

	switch call.Name() {
	case rowexpr.And:
		return simplifyAnd(simplified)
	case rowexpr.Or:
		return simplifyOr(simplified)
	case rowexpr.Not:
		return simplifyNot(simplified[0])
	case rowexpr.IsNull:
		if c, ok := simplified[0].(*rowexpr.Constant); ok {
			return booleanConstant(c.IsNull())
		}
	case rowexpr.Equal, rowexpr.NotEqual,
		rowexpr.LessThan, rowexpr.LessThanOrEqual,
		rowexpr.GreaterThan, rowexpr.GreaterThanOrEqual:
		if folded, ok := foldComparison(call.Name(), simplified[0], simplified[1]); ok {
			return folded
		}
	case rowexpr.IsDistinctFrom:
		if folded, ok := foldIsDistinctFrom(simplified[0], simplified[1]); ok {
			return folded
		}
	case rowexpr.Between:
		lower := Simplify(rowexpr.NewComparison(rowexpr.GreaterThanOrEqual, simplified[0], simplified[1]))
		upper := Simplify(rowexpr.NewComparison(rowexpr.LessThanOrEqual, simplified[0], simplified[2]))
		if isBooleanConstant(lower) || isBooleanConstant(upper) {
			return simplifyAnd([]rowexpr.RowExpression{lower, upper})
		}
	case rowexpr.Add, rowexpr.Subtract, rowexpr.Multiply:
		if folded, ok := foldArithmetic(call.Name(), simplified[0], simplified[1]); ok {
			return folded
		}
	}

	return rebuildIfChanged(call, simplified)
}

func rebuildIfChanged(call *rowexpr.Call, args []rowexpr.RowExpression) rowexpr.RowExpression {
	for i, arg := range call.Arguments() {
		if args[i] != arg {
			return rowexpr.NewCall(call.Name(), call.Type(), args...)
		}
	}
	return call
}

// simplifyAnd applies three-valued AND: FALSE dominates, TRUE is identity,
// and an all-NULL operand list folds to NULL. A NULL operand alongside
// unknowns must be kept, since the result is FALSE if any unknown is.
func simplifyAnd(operands []rowexpr.RowExpression) rowexpr.RowExpression {
	var kept []rowexpr.RowExpression
	allNull := true
	for _, operand := range operands {
		kept = extractInto(rowexpr.And, operand, kept)
	}
	filtered := kept[:0]
	for _, operand := range kept {
		if rowexpr.IsFalse(operand) {
			return rowexpr.FalseConstant
		}
		if rowexpr.IsTrue(operand) {
			continue
		}
		if !rowexpr.IsNullLiteral(operand) {
			allNull = false
		}
		filtered = append(filtered, operand)
	}
	if len(filtered) == 0 {
		return rowexpr.TrueConstant
	}
	if allNull {
		return rowexpr.NullConstant(types.Boolean)
	}
	return rowexpr.CombineConjuncts(filtered...)
}

func simplifyOr(operands []rowexpr.RowExpression) rowexpr.RowExpression {
	var kept []rowexpr.RowExpression
	allNull := true
	for _, operand := range operands {
		kept = extractInto(rowexpr.Or, operand, kept)
	}
	filtered := kept[:0]
	for _, operand := range kept {
		if rowexpr.IsTrue(operand) {
			return rowexpr.TrueConstant
		}
		if rowexpr.IsFalse(operand) {
			continue
		}
		if !rowexpr.IsNullLiteral(operand) {
			allNull = false
		}
		filtered = append(filtered, operand)
	}
	if len(filtered) == 0 {
		return rowexpr.FalseConstant
	}
	if allNull {
		return rowexpr.NullConstant(types.Boolean)
	}
	return rowexpr.CombineDisjuncts(filtered...)
}

func extractInto(
	op rowexpr.OperatorName, expr rowexpr.RowExpression, out []rowexpr.RowExpression,
) []rowexpr.RowExpression {
	if call, ok := expr.(*rowexpr.Call); ok && call.Name() == op {
		for _, arg := range call.Arguments() {
			out = extractInto(op, arg, out)
		}
		return out
	}
	return append(out, expr)
}

func simplifyNot(arg rowexpr.RowExpression) rowexpr.RowExpression {
	if c, ok := arg.(*rowexpr.Constant); ok {
		if c.IsNull() {
			return rowexpr.NullConstant(types.Boolean)
		}
		if b, ok := c.Value().(bool); ok {
			return booleanConstant(!b)
		}
	}
	if call, ok := arg.(*rowexpr.Call); ok && call.Name() == rowexpr.Not {
		return call.Arguments()[0]
	}
	return rowexpr.NotCall(arg)
}

func foldComparison(
	op rowexpr.OperatorName, left, right rowexpr.RowExpression,
) (rowexpr.RowExpression, bool) {
	lc, lok := left.(*rowexpr.Constant)
	rc, rok := right.(*rowexpr.Constant)
	// A NULL operand poisons the comparison even when the other side is not
	// constant.
	if (lok && lc.IsNull()) || (rok && rc.IsNull()) {
		return rowexpr.NullConstant(types.Boolean), true
	}
	if !lok || !rok {
		return nil, false
	}
	cmp, ok := compareValues(lc.Value(), rc.Value())
	if !ok {
		return nil, false
	}
	switch op {
	case rowexpr.Equal:
		return booleanConstant(cmp == 0), true
	case rowexpr.NotEqual:
		return booleanConstant(cmp != 0), true
	case rowexpr.LessThan:
		return booleanConstant(cmp < 0), true
	case rowexpr.LessThanOrEqual:
		return booleanConstant(cmp <= 0), true
	case rowexpr.GreaterThan:
		return booleanConstant(cmp > 0), true
	case rowexpr.GreaterThanOrEqual:
		return booleanConstant(cmp >= 0), true
	}
	return nil, false
}

func foldIsDistinctFrom(left, right rowexpr.RowExpression) (rowexpr.RowExpression, bool) {
	lc, lok := left.(*rowexpr.Constant)
	rc, rok := right.(*rowexpr.Constant)
	if !lok || !rok {
		return nil, false
	}
	if lc.IsNull() || rc.IsNull() {
		return booleanConstant(lc.IsNull() != rc.IsNull()), true
	}
	cmp, ok := compareValues(lc.Value(), rc.Value())
	if !ok {
		return nil, false
	}
	return booleanConstant(cmp != 0), true
}

func foldArithmetic(
	op rowexpr.OperatorName, left, right rowexpr.RowExpression,
) (rowexpr.RowExpression, bool) {
	lc, lok := left.(*rowexpr.Constant)
	rc, rok := right.(*rowexpr.Constant)
	if (lok && lc.IsNull()) || (rok && rc.IsNull()) {
		return rowexpr.NullConstant(types.Bigint), true
	}
	if !lok || !rok {
		return nil, false
	}
	a, aok := lc.Value().(int64)
	b, bok := rc.Value().(int64)
	if !aok || !bok {
		return nil, false
	}
	switch op {
	case rowexpr.Add:
		return rowexpr.NewConstant(a+b, types.Bigint), true
	case rowexpr.Subtract:
		return rowexpr.NewConstant(a-b, types.Bigint), true
	case rowexpr.Multiply:
		return rowexpr.NewConstant(a*b, types.Bigint), true
	}
	return nil, false
}

func booleanConstant(b bool) *rowexpr.Constant {
	if b {
		return rowexpr.TrueConstant
	}
	return rowexpr.FalseConstant
}

func isBooleanConstant(expr rowexpr.RowExpression) bool {
	c, ok := expr.(*rowexpr.Constant)
	return ok && c.Type().Family() == types.BooleanFamily
}

// compareValues orders two literal values of compatible kinds. Bigint and
// double values compare numerically across kinds.
func compareValues(a, b interface{}) (int, bool) {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return compareOrdered(af, bf), true
		}
		return 0, false
	}
	switch a := a.(type) {
	case string:
		b, ok := b.(string)
		if !ok {
			return 0, false
		}
		return compareOrdered(a, b), true
	case bool:
		b, ok := b.(bool)
		if !ok {
			return 0, false
		}
		return compareOrdered(boolRank(a), boolRank(b)), true
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch v := v.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func compareOrdered[T int | int64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// NullInputResult binds every variable in nullVars to a typed NULL and
// simplifies. The outer-join normalizer inspects the result: a conjunct that
// folds to FALSE or NULL under an all-NULL binding of the far side rejects
// every NULL-extension row that side could produce.
func NullInputResult(
	expr rowexpr.RowExpression, nullVars rowexpr.VariableSet,
) rowexpr.RowExpression {
	mapping := make(map[string]rowexpr.RowExpression, len(nullVars))
	for name, v := range nullVars {
		mapping[name] = rowexpr.NullConstant(v.Type())
	}
	return Simplify(rowexpr.InlineVariables(mapping, expr))
}
