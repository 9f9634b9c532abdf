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

import "strings"

// nonDeterministicFunctions is the closed registry of scalar functions whose
// result can differ between evaluations of the same row.
var nonDeterministicFunctions = map[OperatorName]struct{}{
	"random":    {},
	"rand":      {},
	"uuid":      {},
	"shuffle":   {},
	"now":       {},
	"current_timestamp": {},
}

// IsDeterministic reports whether the expression is free of non-deterministic
// function calls. Pushdown must never duplicate a non-deterministic conjunct
// across multiple targets.
func IsDeterministic(expr RowExpression) bool {
	call, ok := expr.(*Call)
	if !ok {
		return true
	}
	if _, nondet := nonDeterministicFunctions[call.Name()]; nondet {
		return false
	}
	for _, arg := range call.Arguments() {
		if !IsDeterministic(arg) {
			return false
		}
	}
	return true
}

// externalFunctionPrefix marks scalar functions that require out-of-process
// evaluation. Inlining such a call into a pushed-down predicate would force a
// remote round trip per candidate row, so project inlining refuses them.
const externalFunctionPrefix = "remote_"

// HasExternalCall reports whether the expression contains a call requiring
// out-of-process evaluation.
func HasExternalCall(expr RowExpression) bool {
	call, ok := expr.(*Call)
	if !ok {
		return false
	}
	if strings.HasPrefix(string(call.Name()), externalFunctionPrefix) {
		return true
	}
	for _, arg := range call.Arguments() {
		if HasExternalCall(arg) {
			return true
		}
	}
	return false
}
