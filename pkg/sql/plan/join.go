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

// JoinType is the join's preservation semantics.
type JoinType int

const (
	// InnerJoin emits only matching row pairs.
	InnerJoin JoinType = iota
	// LeftJoin preserves left rows, NULL-extending the right side.
	LeftJoin
	// RightJoin preserves right rows, NULL-extending the left side.
	RightJoin
	// FullJoin preserves both sides.
	FullJoin
)

func (t JoinType) String() string {
	switch t {
	case InnerJoin:
		return "INNER"
	case LeftJoin:
		return "LEFT"
	case RightJoin:
		return "RIGHT"
	case FullJoin:
		return "FULL"
	}
	return "UNKNOWN"
}

// SafeValue implements the redact.SafeValue interface.
func (JoinType) SafeValue() {}

// EquiJoinClause asserts equality join semantics between one left-side and
// one right-side variable. It is held separately from the join's general
// residual filter.
type EquiJoinClause struct {
	Left  *rowexpr.Variable
	Right *rowexpr.Variable
}

// EquiJoinClausesEqual compares two clause lists as sets.
func EquiJoinClausesEqual(a, b []EquiJoinClause) bool {
	if len(a) != len(b) {
		return false
	}
	key := func(c EquiJoinClause) string { return c.Left.Name() + "=" + c.Right.Name() }
	seen := make(map[string]struct{}, len(a))
	for _, c := range a {
		seen[key(c)] = struct{}{}
	}
	for _, c := range b {
		if _, ok := seen[key(c)]; !ok {
			return false
		}
	}
	return true
}

// DynamicFilterEntry pairs one opaque filter id with the build-side variable
// whose runtime statistics back the filter.
type DynamicFilterEntry struct {
	ID    string
	Build *rowexpr.Variable
}

// DynamicFilters is the id-to-build-variable table attached to a join or
// semi-join. Entries are ordered; ids are unique within one pass invocation
// and paired 1:1 with probe-side placeholder predicates.
type DynamicFilters []DynamicFilterEntry

// IDForBuild returns the id already assigned to a build variable, if any.
func (d DynamicFilters) IDForBuild(build *rowexpr.Variable) (string, bool) {
	for i := range d {
		if d[i].Build.Name() == build.Name() {
			return d[i].ID, true
		}
	}
	return "", false
}

// BuildForID returns the build variable registered under an id, if any.
func (d DynamicFilters) BuildForID(id string) (*rowexpr.Variable, bool) {
	for i := range d {
		if d[i].ID == id {
			return d[i].Build, true
		}
	}
	return nil, false
}

// Equal compares two tables as id-to-build-variable mappings.
func (d DynamicFilters) Equal(other DynamicFilters) bool {
	if len(d) != len(other) {
		return false
	}
	for i := range d {
		build, ok := other.BuildForID(d[i].ID)
		if !ok || build.Name() != d[i].Build.Name() {
			return false
		}
	}
	return true
}

// JoinNode joins two sources. Criteria holds the pairwise equality join
// conditions; Filter (possibly nil) carries any residual join condition.
type JoinNode struct {
	id       NodeID
	Type     JoinType
	Left     Node
	Right    Node
	Criteria []EquiJoinClause
	Outputs  []*rowexpr.Variable
	Filter   rowexpr.RowExpression
	// DynamicFilters maps probe-side placeholder ids to build-side variables.
	DynamicFilters DynamicFilters
}

// NewJoinNode constructs a join. filter may be nil.
func NewJoinNode(
	id NodeID,
	joinType JoinType,
	left, right Node,
	criteria []EquiJoinClause,
	outputs []*rowexpr.Variable,
	filter rowexpr.RowExpression,
	dynamicFilters DynamicFilters,
) *JoinNode {
	return &JoinNode{
		id:             id,
		Type:           joinType,
		Left:           left,
		Right:          right,
		Criteria:       criteria,
		Outputs:        outputs,
		Filter:         filter,
		DynamicFilters: dynamicFilters,
	}
}

func (n *JoinNode) ID() NodeID                           { return n.id }
func (n *JoinNode) OutputVariables() []*rowexpr.Variable { return n.Outputs }
func (n *JoinNode) Children() []Node                     { return []Node{n.Left, n.Right} }

// WithType returns a copy of the join with a different join type. Everything
// else, including the node id, carries over.
func (n *JoinNode) WithType(joinType JoinType) *JoinNode {
	copied := *n
	copied.Type = joinType
	return &copied
}

// SemiJoinNode marks each source row with whether its join variable matches
// any filtering-source row, exposing the answer as SemiJoinOutput.
type SemiJoinNode struct {
	id                          NodeID
	Source                      Node
	FilteringSource             Node
	SourceJoinVariable          *rowexpr.Variable
	FilteringSourceJoinVariable *rowexpr.Variable
	SemiJoinOutput              *rowexpr.Variable
	DynamicFilters              DynamicFilters
}

// NewSemiJoinNode constructs a semi-join.
func NewSemiJoinNode(
	id NodeID,
	source, filteringSource Node,
	sourceJoinVariable, filteringSourceJoinVariable, semiJoinOutput *rowexpr.Variable,
	dynamicFilters DynamicFilters,
) *SemiJoinNode {
	return &SemiJoinNode{
		id:                          id,
		Source:                      source,
		FilteringSource:             filteringSource,
		SourceJoinVariable:          sourceJoinVariable,
		FilteringSourceJoinVariable: filteringSourceJoinVariable,
		SemiJoinOutput:              semiJoinOutput,
		DynamicFilters:              dynamicFilters,
	}
}

func (n *SemiJoinNode) ID() NodeID { return n.id }

func (n *SemiJoinNode) OutputVariables() []*rowexpr.Variable {
	return appendVariables(n.Source.OutputVariables(), n.SemiJoinOutput)
}

func (n *SemiJoinNode) Children() []Node { return []Node{n.Source, n.FilteringSource} }

// SpatialJoinType is the preservation semantics of a spatial join. Only inner
// and left variants exist.
type SpatialJoinType int

const (
	// SpatialInner emits only matching row pairs.
	SpatialInner SpatialJoinType = iota
	// SpatialLeft preserves left rows.
	SpatialLeft
)

func (t SpatialJoinType) String() string {
	if t == SpatialLeft {
		return "LEFT"
	}
	return "INNER"
}

// SafeValue implements the redact.SafeValue interface.
func (SpatialJoinType) SafeValue() {}

// SpatialJoinNode joins two sources on a spatial relationship expressed as a
// general filter expression; there are no equi-join clauses.
type SpatialJoinNode struct {
	id      NodeID
	Type    SpatialJoinType
	Left    Node
	Right   Node
	Outputs []*rowexpr.Variable
	Filter  rowexpr.RowExpression
}

// NewSpatialJoinNode constructs a spatial join.
func NewSpatialJoinNode(
	id NodeID,
	joinType SpatialJoinType,
	left, right Node,
	outputs []*rowexpr.Variable,
	filter rowexpr.RowExpression,
) *SpatialJoinNode {
	return &SpatialJoinNode{id: id, Type: joinType, Left: left, Right: right, Outputs: outputs, Filter: filter}
}

func (n *SpatialJoinNode) ID() NodeID                           { return n.id }
func (n *SpatialJoinNode) OutputVariables() []*rowexpr.Variable { return n.Outputs }
func (n *SpatialJoinNode) Children() []Node                     { return []Node{n.Left, n.Right} }

// WithType returns a copy of the spatial join with a different join type.
func (n *SpatialJoinNode) WithType(joinType SpatialJoinType) *SpatialJoinNode {
	copied := *n
	copied.Type = joinType
	return &copied
}
