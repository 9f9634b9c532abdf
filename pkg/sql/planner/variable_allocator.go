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
	"fmt"

	"github.com/imillan/presto/pkg/sql/rowexpr"
)

// VariableAllocator mints fresh variables, globally unique within one
// compile. One allocator is owned by a single pass invocation.
type VariableAllocator struct {
	next int
}

// NewVariableAllocator returns an empty allocator.
func NewVariableAllocator() *VariableAllocator {
	return &VariableAllocator{}
}

// NewVariable mints a fresh variable with the type of the given expression.
func (a *VariableAllocator) NewVariable(expr rowexpr.RowExpression) *rowexpr.Variable {
	a.next++
	return rowexpr.NewVariable(fmt.Sprintf("expr_%d", a.next), expr.Type())
}
