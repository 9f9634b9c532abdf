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

// Package rowexpr holds the scalar expression model shared by the planner:
// an immutable tree of variable references, constants and calls, plus the
// boolean conjunct algebra the predicate pushdown pass is built on.
//
// Expressions are never mutated after construction. Rewrites build new trees
// and structural equality (Equals) is the notion of expression identity;
// semantic equivalence is a planner concern layered on top.
package rowexpr

import (
	"fmt"
	"strings"

	"github.com/imillan/presto/pkg/sql/types"
)

// RowExpression is an immutable typed scalar expression. The variant set is
// closed: *Variable, *Constant and *Call.
type RowExpression interface {
	fmt.Stringer

	// Type returns the expression's result type.
	Type() *types.T

	rowExpression()
}

// Variable is a reference to a named column or intermediate value.
type Variable struct {
	name string
	typ  *types.T
}

// NewVariable constructs a variable reference.
func NewVariable(name string, typ *types.T) *Variable {
	return &Variable{name: name, typ: typ}
}

// Name returns the variable's name. Names are unique within one compile.
func (v *Variable) Name() string { return v.name }

// Type implements RowExpression.
func (v *Variable) Type() *types.T { return v.typ }

func (v *Variable) String() string { return v.name }

func (v *Variable) rowExpression() {}

// Constant is a literal value. A nil value is the typed NULL literal.
type Constant struct {
	value interface{}
	typ   *types.T
}

// NewConstant constructs a literal. Supported value kinds are nil, bool,
// int64, float64 and string.
func NewConstant(value interface{}, typ *types.T) *Constant {
	return &Constant{value: value, typ: typ}
}

// NullConstant returns the NULL literal of the given type.
func NullConstant(typ *types.T) *Constant {
	return &Constant{value: nil, typ: typ}
}

// Value returns the literal's value.
func (c *Constant) Value() interface{} { return c.value }

// IsNull reports whether the literal is NULL.
func (c *Constant) IsNull() bool { return c.value == nil }

// Type implements RowExpression.
func (c *Constant) Type() *types.T { return c.typ }

func (c *Constant) String() string {
	if c.value == nil {
		return "null"
	}
	if s, ok := c.value.(string); ok {
		return "'" + s + "'"
	}
	return fmt.Sprintf("%v", c.value)
}

func (c *Constant) rowExpression() {}

// Predefined boolean literals. These are the canonical TRUE and FALSE used
// throughout the planner; use IsTrue/IsFalse rather than pointer comparison.
var (
	TrueConstant  = NewConstant(true, types.Boolean)
	FalseConstant = NewConstant(false, types.Boolean)
)

// Call applies a named operator or function to an ordered argument list.
type Call struct {
	name OperatorName
	args []RowExpression
	typ  *types.T
}

// NewCall constructs a call expression. The argument slice is not copied; the
// caller must not retain it for mutation.
func NewCall(name OperatorName, typ *types.T, args ...RowExpression) *Call {
	return &Call{name: name, args: args, typ: typ}
}

// Name returns the called operator or function name.
func (c *Call) Name() OperatorName { return c.name }

// Arguments returns the ordered argument list. Callers must not mutate it.
func (c *Call) Arguments() []RowExpression { return c.args }

// Type implements RowExpression.
func (c *Call) Type() *types.T { return c.typ }

func (c *Call) String() string {
	if symbol, ok := infixSymbols[c.name]; ok && len(c.args) == 2 {
		return "(" + c.args[0].String() + " " + symbol + " " + c.args[1].String() + ")"
	}
	if c.name == Not && len(c.args) == 1 {
		return "(NOT " + c.args[0].String() + ")"
	}
	if c.name == IsNull && len(c.args) == 1 {
		return "(" + c.args[0].String() + " IS NULL)"
	}
	if c.name == Between && len(c.args) == 3 {
		return "(" + c.args[0].String() + " BETWEEN " + c.args[1].String() + " AND " + c.args[2].String() + ")"
	}
	var sb strings.Builder
	sb.WriteString(string(c.name))
	sb.WriteByte('(')
	for i, arg := range c.args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(arg.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

func (c *Call) rowExpression() {}

// IsTrue reports whether the expression is the literal TRUE.
func IsTrue(expr RowExpression) bool {
	c, ok := expr.(*Constant)
	return ok && c.value == true
}

// IsFalse reports whether the expression is the literal FALSE.
func IsFalse(expr RowExpression) bool {
	c, ok := expr.(*Constant)
	return ok && c.value == false
}

// IsNullLiteral reports whether the expression is a NULL literal of any type.
func IsNullLiteral(expr RowExpression) bool {
	c, ok := expr.(*Constant)
	return ok && c.IsNull()
}

// Equals reports structural equality of two expressions.
func Equals(a, b RowExpression) bool {
	switch a := a.(type) {
	case *Variable:
		b, ok := b.(*Variable)
		return ok && a.name == b.name && a.typ.Identical(b.typ)
	case *Constant:
		b, ok := b.(*Constant)
		return ok && a.value == b.value && a.typ.Identical(b.typ)
	case *Call:
		b, ok := b.(*Call)
		if !ok || a.name != b.name || len(a.args) != len(b.args) || !a.typ.Identical(b.typ) {
			return false
		}
		for i := range a.args {
			if !Equals(a.args[i], b.args[i]) {
				return false
			}
		}
		return true
	}
	return false
}
