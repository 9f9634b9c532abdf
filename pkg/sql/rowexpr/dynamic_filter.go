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

// DynamicFilterPlaceholderFunction is the name of the no-op boolean function
// wrapping a probe-side dynamic filter hint. The compiler treats a call to it
// as TRUE; the runtime join operator resolves the embedded id against the
// build side's collected statistics to prune probe rows.
const DynamicFilterPlaceholderFunction OperatorName = "$internal$dynamic_filter_function"

// NewDynamicFilterExpression builds the placeholder predicate
// DF(probe, 'operator', 'id') tagging the probe-side expression with the
// filter id and the comparison operator it stands for.
func NewDynamicFilterExpression(id string, probe RowExpression, operator OperatorName) *Call {
	return NewCall(
		DynamicFilterPlaceholderFunction,
		types.Boolean,
		probe,
		NewConstant(string(operator), types.Varchar),
		NewConstant(id, types.Varchar),
	)
}

// IsDynamicFilterPlaceholder recognizes placeholder predicates built by
// NewDynamicFilterExpression.
func IsDynamicFilterPlaceholder(expr RowExpression) bool {
	call, ok := expr.(*Call)
	return ok && call.Name() == DynamicFilterPlaceholderFunction
}

// DynamicFilterID extracts the filter id from a placeholder predicate.
func DynamicFilterID(expr RowExpression) (string, bool) {
	call, ok := expr.(*Call)
	if !ok || call.Name() != DynamicFilterPlaceholderFunction || len(call.Arguments()) != 3 {
		return "", false
	}
	idArg, ok := call.Arguments()[2].(*Constant)
	if !ok || idArg.IsNull() {
		return "", false
	}
	id, ok := idArg.Value().(string)
	return id, ok
}
