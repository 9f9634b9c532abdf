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

import (
	"strings"

	"github.com/cockroachdb/redact"

	"github.com/imillan/presto/pkg/sql/rowexpr"
)

// Format renders the plan as an indented tree, one node per line. Structural
// elements (node kinds, join types, ids) are safe for logging; expressions
// and table names may embed literals and are treated as unsafe.
func Format(node Node) string {
	var sb redact.StringBuilder
	formatNode(&sb, node, 0)
	return sb.RedactableString().StripMarkers()
}

func formatNode(sb *redact.StringBuilder, node Node, depth int) {
	sb.SafeString(redact.SafeString(strings.Repeat("  ", depth)))
	switch n := node.(type) {
	case *ScanNode:
		sb.Printf("scan %s", n.Table)
		if n.Predicate != nil {
			sb.Printf(" filter=%s", n.Predicate)
		}
	case *FilterNode:
		sb.Printf("filter %s", n.Predicate)
	case *ProjectNode:
		sb.Printf("project %s", formatAssignments(n.Assignments))
	case *JoinNode:
		sb.Printf("join %s", n.Type)
		if len(n.Criteria) > 0 {
			sb.Printf(" on %s", formatCriteria(n.Criteria))
		}
		if n.Filter != nil {
			sb.Printf(" filter=%s", n.Filter)
		}
		if len(n.DynamicFilters) > 0 {
			sb.Printf(" dynamic=%s", formatDynamicFilters(n.DynamicFilters))
		}
	case *SemiJoinNode:
		sb.Printf("semijoin %s in %s as %s",
			n.SourceJoinVariable, n.FilteringSourceJoinVariable, n.SemiJoinOutput)
		if len(n.DynamicFilters) > 0 {
			sb.Printf(" dynamic=%s", formatDynamicFilters(n.DynamicFilters))
		}
	case *SpatialJoinNode:
		sb.Printf("spatialjoin %s filter=%s", n.Type, n.Filter)
	case *AggregationNode:
		sb.Printf("aggregate by %s", formatVariables(n.GroupingKeys))
	case *WindowNode:
		sb.Printf("window partition by %s", formatVariables(n.PartitionBy))
	case *SortNode:
		sb.Printf("sort %s", formatVariables(n.OrderBy))
	case *SampleNode:
		sb.Printf("sample %f", n.Ratio)
	case *LimitNode:
		sb.Printf("limit %d", n.Count)
	case *MarkDistinctNode:
		sb.Printf("markdistinct %s by %s", n.MarkerVariable, formatVariables(n.DistinctVariables))
	case *AssignUniqueIDNode:
		sb.Printf("assignuniqueid %s", n.IDVariable)
	case *GroupIDNode:
		sb.Printf("groupid %s", n.GroupIDVariable)
	case *UnnestNode:
		sb.Printf("unnest %s", formatVariables(n.UnnestedVariables))
	case *UnionNode:
		sb.SafeString("union")
	case *ExchangeNode:
		sb.SafeString("exchange")
	default:
		sb.Printf("%T", node)
	}
	sb.SafeRune('\n')
	for _, child := range node.Children() {
		formatNode(sb, child, depth+1)
	}
}

func formatAssignments(assignments Assignments) string {
	parts := make([]string, len(assignments))
	for i := range assignments {
		if v, ok := assignments[i].Expression.(*rowexpr.Variable); ok &&
			v.Name() == assignments[i].Variable.Name() {
			parts[i] = v.Name()
			continue
		}
		parts[i] = assignments[i].Variable.Name() + " := " + assignments[i].Expression.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatCriteria(criteria []EquiJoinClause) string {
	parts := make([]string, len(criteria))
	for i, clause := range criteria {
		parts[i] = clause.Left.Name() + " = " + clause.Right.Name()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatDynamicFilters(filters DynamicFilters) string {
	parts := make([]string, len(filters))
	for i := range filters {
		parts[i] = filters[i].ID + " -> " + filters[i].Build.Name()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatVariables(vars []*rowexpr.Variable) string {
	parts := make([]string, len(vars))
	for i, v := range vars {
		parts[i] = v.Name()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
