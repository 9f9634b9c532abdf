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

// Package plan holds the logical query plan model consumed by the planner's
// optimization passes. Nodes are immutable after construction: an optimizer
// "updates" a node by constructing a replacement and discarding the old one.
package plan

import (
	"strconv"

	"github.com/imillan/presto/pkg/sql/rowexpr"
)

// NodeID uniquely identifies a plan node within one compile.
type NodeID int

func (id NodeID) String() string { return strconv.Itoa(int(id)) }

// SafeValue implements the redact.SafeValue interface.
func (NodeID) SafeValue() {}

// NodeIDAllocator mints fresh node ids. One allocator is owned by a single
// pass invocation; its ids double as dynamic filter ids and are never reused
// across invocations.
type NodeIDAllocator struct {
	next NodeID
}

// NewNodeIDAllocator returns an allocator whose first id follows the given
// high-water mark.
func NewNodeIDAllocator(highWaterMark NodeID) *NodeIDAllocator {
	return &NodeIDAllocator{next: highWaterMark + 1}
}

// NextID returns a fresh node id.
func (a *NodeIDAllocator) NextID() NodeID {
	id := a.next
	a.next++
	return id
}

// Node is one relational operator in the logical plan tree. The kind set is
// closed; the optimizer dispatch is exhaustive over it and treats any other
// implementation as a programming defect.
type Node interface {
	// ID returns the node's unique id.
	ID() NodeID
	// OutputVariables returns the node's declared outputs, in column order.
	OutputVariables() []*rowexpr.Variable
	// Children returns the node's inputs in fixed left-to-right order.
	Children() []Node
}

// ScanNode reads rows from a named table.
type ScanNode struct {
	id      NodeID
	Table   string
	Outputs []*rowexpr.Variable
	// Predicate is the filter condition attached directly at the scan, or nil.
	// Pushdown lands predicates here when no deeper target exists.
	Predicate rowexpr.RowExpression
}

// NewScanNode constructs a table scan.
func NewScanNode(id NodeID, table string, outputs []*rowexpr.Variable) *ScanNode {
	return &ScanNode{id: id, Table: table, Outputs: outputs}
}

// NewScanNodeWithPredicate constructs a table scan carrying a filter
// condition evaluated at the scan.
func NewScanNodeWithPredicate(
	id NodeID, table string, outputs []*rowexpr.Variable, predicate rowexpr.RowExpression,
) *ScanNode {
	return &ScanNode{id: id, Table: table, Outputs: outputs, Predicate: predicate}
}

func (n *ScanNode) ID() NodeID                           { return n.id }
func (n *ScanNode) OutputVariables() []*rowexpr.Variable { return n.Outputs }
func (n *ScanNode) Children() []Node                     { return nil }

// FilterNode keeps the source rows satisfying its predicate.
type FilterNode struct {
	id        NodeID
	Source    Node
	Predicate rowexpr.RowExpression
}

// NewFilterNode constructs a filter.
func NewFilterNode(id NodeID, source Node, predicate rowexpr.RowExpression) *FilterNode {
	return &FilterNode{id: id, Source: source, Predicate: predicate}
}

func (n *FilterNode) ID() NodeID                           { return n.id }
func (n *FilterNode) OutputVariables() []*rowexpr.Variable { return n.Source.OutputVariables() }
func (n *FilterNode) Children() []Node                     { return []Node{n.Source} }

// ProjectNode computes a new output column list from its source.
type ProjectNode struct {
	id          NodeID
	Source      Node
	Assignments Assignments
}

// NewProjectNode constructs a projection.
func NewProjectNode(id NodeID, source Node, assignments Assignments) *ProjectNode {
	return &ProjectNode{id: id, Source: source, Assignments: assignments}
}

func (n *ProjectNode) ID() NodeID                           { return n.id }
func (n *ProjectNode) OutputVariables() []*rowexpr.Variable { return n.Assignments.Outputs() }
func (n *ProjectNode) Children() []Node                     { return []Node{n.Source} }

// SortNode orders its source rows. Ordering does not interact with row-level
// predicates, so pushdown passes straight through.
type SortNode struct {
	id      NodeID
	Source  Node
	OrderBy []*rowexpr.Variable
}

// NewSortNode constructs a sort.
func NewSortNode(id NodeID, source Node, orderBy []*rowexpr.Variable) *SortNode {
	return &SortNode{id: id, Source: source, OrderBy: orderBy}
}

func (n *SortNode) ID() NodeID                           { return n.id }
func (n *SortNode) OutputVariables() []*rowexpr.Variable { return n.Source.OutputVariables() }
func (n *SortNode) Children() []Node                     { return []Node{n.Source} }

// SampleNode emits a random sample of its source rows.
type SampleNode struct {
	id     NodeID
	Source Node
	Ratio  float64
}

// NewSampleNode constructs a sample.
func NewSampleNode(id NodeID, source Node, ratio float64) *SampleNode {
	return &SampleNode{id: id, Source: source, Ratio: ratio}
}

func (n *SampleNode) ID() NodeID                           { return n.id }
func (n *SampleNode) OutputVariables() []*rowexpr.Variable { return n.Source.OutputVariables() }
func (n *SampleNode) Children() []Node                     { return []Node{n.Source} }

// LimitNode truncates its source to the first Count rows. It has no
// specialized pushdown rule and exercises the generic single-child policy.
type LimitNode struct {
	id     NodeID
	Source Node
	Count  int64
}

// NewLimitNode constructs a limit.
func NewLimitNode(id NodeID, source Node, count int64) *LimitNode {
	return &LimitNode{id: id, Source: source, Count: count}
}

func (n *LimitNode) ID() NodeID                           { return n.id }
func (n *LimitNode) OutputVariables() []*rowexpr.Variable { return n.Source.OutputVariables() }
func (n *LimitNode) Children() []Node                     { return []Node{n.Source} }

// AssignUniqueIDNode extends each source row with a freshly minted unique id.
type AssignUniqueIDNode struct {
	id         NodeID
	Source     Node
	IDVariable *rowexpr.Variable
}

// NewAssignUniqueIDNode constructs an id-assignment node.
func NewAssignUniqueIDNode(id NodeID, source Node, idVariable *rowexpr.Variable) *AssignUniqueIDNode {
	return &AssignUniqueIDNode{id: id, Source: source, IDVariable: idVariable}
}

func (n *AssignUniqueIDNode) ID() NodeID { return n.id }

func (n *AssignUniqueIDNode) OutputVariables() []*rowexpr.Variable {
	return appendVariables(n.Source.OutputVariables(), n.IDVariable)
}

func (n *AssignUniqueIDNode) Children() []Node { return []Node{n.Source} }

// MarkDistinctNode extends each row with a boolean marking the first
// occurrence of its distinct-variable combination.
type MarkDistinctNode struct {
	id                NodeID
	Source            Node
	MarkerVariable    *rowexpr.Variable
	DistinctVariables []*rowexpr.Variable
}

// NewMarkDistinctNode constructs a mark-distinct node.
func NewMarkDistinctNode(
	id NodeID, source Node, marker *rowexpr.Variable, distinct []*rowexpr.Variable,
) *MarkDistinctNode {
	return &MarkDistinctNode{id: id, Source: source, MarkerVariable: marker, DistinctVariables: distinct}
}

func (n *MarkDistinctNode) ID() NodeID { return n.id }

func (n *MarkDistinctNode) OutputVariables() []*rowexpr.Variable {
	return appendVariables(n.Source.OutputVariables(), n.MarkerVariable)
}

func (n *MarkDistinctNode) Children() []Node { return []Node{n.Source} }

// WindowNode computes window functions over partitions of its source.
type WindowNode struct {
	id              NodeID
	Source          Node
	PartitionBy     []*rowexpr.Variable
	WindowFunctions Assignments
}

// NewWindowNode constructs a window node.
func NewWindowNode(
	id NodeID, source Node, partitionBy []*rowexpr.Variable, windowFunctions Assignments,
) *WindowNode {
	return &WindowNode{id: id, Source: source, PartitionBy: partitionBy, WindowFunctions: windowFunctions}
}

func (n *WindowNode) ID() NodeID { return n.id }

func (n *WindowNode) OutputVariables() []*rowexpr.Variable {
	return appendVariables(n.Source.OutputVariables(), n.WindowFunctions.Outputs()...)
}

func (n *WindowNode) Children() []Node { return []Node{n.Source} }

// UnnestNode expands array-valued columns into rows, replicating the
// remaining columns alongside every produced element.
type UnnestNode struct {
	id                 NodeID
	Source             Node
	ReplicateVariables []*rowexpr.Variable
	ArrayVariables     []*rowexpr.Variable
	UnnestedVariables  []*rowexpr.Variable
	OrdinalityVariable *rowexpr.Variable
}

// NewUnnestNode constructs an unnest node. ordinality may be nil.
func NewUnnestNode(
	id NodeID,
	source Node,
	replicate, arrays, unnested []*rowexpr.Variable,
	ordinality *rowexpr.Variable,
) *UnnestNode {
	return &UnnestNode{
		id:                 id,
		Source:             source,
		ReplicateVariables: replicate,
		ArrayVariables:     arrays,
		UnnestedVariables:  unnested,
		OrdinalityVariable: ordinality,
	}
}

func (n *UnnestNode) ID() NodeID { return n.id }

func (n *UnnestNode) OutputVariables() []*rowexpr.Variable {
	out := appendVariables(n.ReplicateVariables, n.UnnestedVariables...)
	if n.OrdinalityVariable != nil {
		out = append(out, n.OrdinalityVariable)
	}
	return out
}

func (n *UnnestNode) Children() []Node { return []Node{n.Source} }

// VariableMapping relates one node output variable to the source variable it
// is produced from.
type VariableMapping struct {
	Output *rowexpr.Variable
	Input  *rowexpr.Variable
}

// GroupIDNode replicates its source once per grouping set and emits a
// synthetic group id identifying the set each row belongs to.
type GroupIDNode struct {
	id NodeID
	Source Node
	// GroupingSets lists, per set, the output grouping variables present in it.
	GroupingSets [][]*rowexpr.Variable
	// GroupingColumns maps every output grouping variable to its source input.
	GroupingColumns []VariableMapping
	// AggregationArguments pass through unchanged under their source names.
	AggregationArguments []*rowexpr.Variable
	GroupIDVariable      *rowexpr.Variable
}

// NewGroupIDNode constructs a group-id node.
func NewGroupIDNode(
	id NodeID,
	source Node,
	groupingSets [][]*rowexpr.Variable,
	groupingColumns []VariableMapping,
	aggregationArguments []*rowexpr.Variable,
	groupIDVariable *rowexpr.Variable,
) *GroupIDNode {
	return &GroupIDNode{
		id:                   id,
		Source:               source,
		GroupingSets:         groupingSets,
		GroupingColumns:      groupingColumns,
		AggregationArguments: aggregationArguments,
		GroupIDVariable:      groupIDVariable,
	}
}

func (n *GroupIDNode) ID() NodeID { return n.id }

func (n *GroupIDNode) OutputVariables() []*rowexpr.Variable {
	var out []*rowexpr.Variable
	for i := range n.GroupingColumns {
		out = append(out, n.GroupingColumns[i].Output)
	}
	out = append(out, n.AggregationArguments...)
	return append(out, n.GroupIDVariable)
}

func (n *GroupIDNode) Children() []Node { return []Node{n.Source} }

// CommonGroupingVariables returns the output grouping variables present in
// every grouping set. Only predicates over these survive pushdown through the
// node: any other grouping variable is NULL-extended in some set.
func (n *GroupIDNode) CommonGroupingVariables() rowexpr.VariableSet {
	if len(n.GroupingSets) == 0 {
		return rowexpr.VariableSet{}
	}
	common := rowexpr.NewVariableSet(n.GroupingSets[0]...)
	for _, set := range n.GroupingSets[1:] {
		members := rowexpr.NewVariableSet(set...)
		for name := range common {
			if _, ok := members[name]; !ok {
				delete(common, name)
			}
		}
	}
	return common
}

// InputOf returns the source variable an output grouping variable maps to.
func (n *GroupIDNode) InputOf(output *rowexpr.Variable) (*rowexpr.Variable, bool) {
	for i := range n.GroupingColumns {
		if n.GroupingColumns[i].Output.Name() == output.Name() {
			return n.GroupingColumns[i].Input, true
		}
	}
	return nil, false
}

// AggregationNode groups its source rows by the grouping keys and computes
// aggregate functions per group.
type AggregationNode struct {
	id           NodeID
	Source       Node
	GroupingKeys []*rowexpr.Variable
	Aggregations Assignments
	// GroupIDVariable is the synthetic group id when the aggregation sits over
	// grouping sets, or nil.
	GroupIDVariable *rowexpr.Variable
	// HasEmptyGroupingSet marks an aggregation producing a row even for empty
	// input (global grouping set).
	HasEmptyGroupingSet bool
	// PreGroupedVariables records keys the source already groups by; a rewrite
	// of the source invalidates the property and clears the list.
	PreGroupedVariables []*rowexpr.Variable
}

// NewAggregationNode constructs an aggregation.
func NewAggregationNode(
	id NodeID,
	source Node,
	groupingKeys []*rowexpr.Variable,
	aggregations Assignments,
	groupIDVariable *rowexpr.Variable,
	hasEmptyGroupingSet bool,
	preGroupedVariables []*rowexpr.Variable,
) *AggregationNode {
	return &AggregationNode{
		id:                  id,
		Source:              source,
		GroupingKeys:        groupingKeys,
		Aggregations:        aggregations,
		GroupIDVariable:     groupIDVariable,
		HasEmptyGroupingSet: hasEmptyGroupingSet,
		PreGroupedVariables: preGroupedVariables,
	}
}

func (n *AggregationNode) ID() NodeID { return n.id }

func (n *AggregationNode) OutputVariables() []*rowexpr.Variable {
	return appendVariables(n.GroupingKeys, n.Aggregations.Outputs()...)
}

func (n *AggregationNode) Children() []Node { return []Node{n.Source} }

// UnionNode concatenates its sources. Inputs[i][j] is the source-i variable
// feeding output column j.
type UnionNode struct {
	id      NodeID
	Sources []Node
	Outputs []*rowexpr.Variable
	Inputs  [][]*rowexpr.Variable
}

// NewUnionNode constructs a union.
func NewUnionNode(
	id NodeID, sources []Node, outputs []*rowexpr.Variable, inputs [][]*rowexpr.Variable,
) *UnionNode {
	return &UnionNode{id: id, Sources: sources, Outputs: outputs, Inputs: inputs}
}

func (n *UnionNode) ID() NodeID                           { return n.id }
func (n *UnionNode) OutputVariables() []*rowexpr.Variable { return n.Outputs }
func (n *UnionNode) Children() []Node                     { return n.Sources }

// SourceVariableMap returns the output-to-input correspondence of one branch,
// keyed by output variable name.
func (n *UnionNode) SourceVariableMap(branch int) map[string]*rowexpr.Variable {
	return branchVariableMap(n.Outputs, n.Inputs[branch])
}

// ExchangeNode moves rows between execution stages. Like union, each branch
// has its own output-to-input variable correspondence.
type ExchangeNode struct {
	id      NodeID
	Sources []Node
	Outputs []*rowexpr.Variable
	Inputs  [][]*rowexpr.Variable
}

// NewExchangeNode constructs an exchange.
func NewExchangeNode(
	id NodeID, sources []Node, outputs []*rowexpr.Variable, inputs [][]*rowexpr.Variable,
) *ExchangeNode {
	return &ExchangeNode{id: id, Sources: sources, Outputs: outputs, Inputs: inputs}
}

func (n *ExchangeNode) ID() NodeID                           { return n.id }
func (n *ExchangeNode) OutputVariables() []*rowexpr.Variable { return n.Outputs }
func (n *ExchangeNode) Children() []Node                     { return n.Sources }

// SourceVariableMap returns the output-to-input correspondence of one branch,
// keyed by output variable name.
func (n *ExchangeNode) SourceVariableMap(branch int) map[string]*rowexpr.Variable {
	return branchVariableMap(n.Outputs, n.Inputs[branch])
}

func branchVariableMap(outputs, inputs []*rowexpr.Variable) map[string]*rowexpr.Variable {
	m := make(map[string]*rowexpr.Variable, len(outputs))
	for i, out := range outputs {
		m[out.Name()] = inputs[i]
	}
	return m
}

func appendVariables(vars []*rowexpr.Variable, extra ...*rowexpr.Variable) []*rowexpr.Variable {
	out := make([]*rowexpr.Variable, 0, len(vars)+len(extra))
	out = append(out, vars...)
	return append(out, extra...)
}
