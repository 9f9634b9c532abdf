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

// Package session carries the per-query feature toggles consulted by the
// planner. A Session is a plain value: copy it to derive a variant.
package session

// Session holds the feature toggles relevant to planning one query.
type Session struct {
	// EnableDynamicFiltering turns on synthesis of runtime pruning hints from
	// join conditions.
	EnableDynamicFiltering bool
	// InferInequalityPredicates derives additional ordering comparisons from
	// join and inherited predicates.
	InferInequalityPredicates bool
	// GenerateDomainFilters derives per-variable value-domain predicates from
	// the inherited predicate at joins, recovering pushdown lost to
	// disjunctive predicate shapes.
	GenerateDomainFilters bool
	// NativeExecution targets the native execution backend, which implements
	// its own dynamic filtering; the planner's synthesis is disabled.
	NativeExecution bool
}

// New returns a session with all optional planner features off.
func New() *Session {
	return &Session{}
}

// DynamicFilteringEnabled reports whether the planner should synthesize
// dynamic filters for this session.
func (s *Session) DynamicFilteringEnabled() bool {
	return s.EnableDynamicFiltering && !s.NativeExecution
}
