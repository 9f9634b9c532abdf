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
	"sort"

	"github.com/imillan/presto/pkg/sql/rowexpr"
	"github.com/imillan/presto/pkg/sql/types"
)

// ValueRange is one contiguous range of values. A nil bound is unbounded.
type ValueRange struct {
	Low           *rowexpr.Constant
	High          *rowexpr.Constant
	LowInclusive  bool
	HighInclusive bool
}

func (r ValueRange) isPoint() bool {
	return r.Low != nil && r.High != nil && r.LowInclusive && r.HighInclusive &&
		constantsEqual(r.Low, r.High)
}

// Domain is the set of values one variable may take: a union of ordered
// ranges plus a NULL-allowed flag. A nil range list with none=false means all
// values.
type Domain struct {
	none        bool
	ranges      []ValueRange // sorted by low bound, disjoint; nil means all
	nullAllowed bool
}

// AllDomain allows every value including NULL.
func AllDomain() Domain { return Domain{nullAllowed: true} }

// NoneDomain allows no value at all.
func NoneDomain() Domain { return Domain{none: true} }

// OnlyNullDomain allows exactly NULL.
func OnlyNullDomain() Domain { return Domain{none: true, nullAllowed: true} }

// NotNullDomain allows every non-NULL value.
func NotNullDomain() Domain { return Domain{} }

func pointDomain(value *rowexpr.Constant) Domain {
	return Domain{ranges: []ValueRange{{Low: value, High: value, LowInclusive: true, HighInclusive: true}}}
}

func rangeDomain(r ValueRange) Domain {
	return Domain{ranges: []ValueRange{r}}
}

// IsAll reports whether the domain allows every value including NULL.
func (d Domain) IsAll() bool { return !d.none && d.ranges == nil && d.nullAllowed }

// IsNone reports whether the domain allows no value at all.
func (d Domain) IsNone() bool { return d.none && !d.nullAllowed }

// NullAllowed reports whether NULL satisfies the domain.
func (d Domain) NullAllowed() bool { return d.nullAllowed }

// Intersect returns the domain of values satisfying both inputs.
func (d Domain) Intersect(other Domain) Domain {
	out := Domain{nullAllowed: d.nullAllowed && other.nullAllowed}
	switch {
	case d.none || other.none:
		out.none = true
	case d.ranges == nil:
		out.ranges = other.ranges
	case other.ranges == nil:
		out.ranges = d.ranges
	default:
		for _, a := range d.ranges {
			for _, b := range other.ranges {
				if r, ok := intersectRanges(a, b); ok {
					out.ranges = append(out.ranges, r)
				}
			}
		}
		if out.ranges == nil {
			out.none = true
		}
	}
	return out
}

// Union returns the domain of values satisfying either input. The result may
// over-approximate when range values are incomparable.
func (d Domain) Union(other Domain) Domain {
	out := Domain{nullAllowed: d.nullAllowed || other.nullAllowed}
	switch {
	case d.none:
		out.ranges = other.ranges
		out.none = other.none
	case other.none:
		out.ranges = d.ranges
		out.none = d.none
	case d.ranges == nil || other.ranges == nil:
		// all ∪ anything = all
	default:
		out.ranges = normalizeRanges(append(append([]ValueRange{}, d.ranges...), other.ranges...))
	}
	return out
}

func constantsEqual(a, b *rowexpr.Constant) bool {
	cmp, ok := compareValues(a.Value(), b.Value())
	return ok && cmp == 0
}

// compareBound orders two bounds of the same side; unbounded sorts first for
// low bounds and last for high bounds.
func compareLow(a, b *rowexpr.Constant) (int, bool) {
	switch {
	case a == nil && b == nil:
		return 0, true
	case a == nil:
		return -1, true
	case b == nil:
		return 1, true
	}
	return compareValues(a.Value(), b.Value())
}

func compareHigh(a, b *rowexpr.Constant) (int, bool) {
	switch {
	case a == nil && b == nil:
		return 0, true
	case a == nil:
		return 1, true
	case b == nil:
		return -1, true
	}
	return compareValues(a.Value(), b.Value())
}

func intersectRanges(a, b ValueRange) (ValueRange, bool) {
	out := ValueRange{}

	cmp, ok := compareLow(a.Low, b.Low)
	if !ok {
		return out, false
	}
	if cmp >= 0 {
		out.Low, out.LowInclusive = a.Low, a.LowInclusive
		if cmp == 0 {
			out.LowInclusive = a.LowInclusive && b.LowInclusive
		}
	} else {
		out.Low, out.LowInclusive = b.Low, b.LowInclusive
	}

	cmp, ok = compareHigh(a.High, b.High)
	if !ok {
		return out, false
	}
	if cmp <= 0 {
		out.High, out.HighInclusive = a.High, a.HighInclusive
		if cmp == 0 {
			out.HighInclusive = a.HighInclusive && b.HighInclusive
		}
	} else {
		out.High, out.HighInclusive = b.High, b.HighInclusive
	}

	if out.Low != nil && out.High != nil {
		cmp, ok = compareValues(out.Low.Value(), out.High.Value())
		if !ok || cmp > 0 || (cmp == 0 && !(out.LowInclusive && out.HighInclusive)) {
			return out, false
		}
	}
	return out, true
}

func normalizeRanges(ranges []ValueRange) []ValueRange {
	if len(ranges) <= 1 {
		return ranges
	}
	sort.SliceStable(ranges, func(i, j int) bool {
		cmp, ok := compareLow(ranges[i].Low, ranges[j].Low)
		if !ok {
			return false
		}
		return cmp < 0
	})
	merged := ranges[:1]
	for _, r := range ranges[1:] {
		last := &merged[len(merged)-1]
		if rangesConnect(*last, r) {
			cmp, ok := compareHigh(last.High, r.High)
			if ok && cmp < 0 {
				last.High, last.HighInclusive = r.High, r.HighInclusive
			} else if ok && cmp == 0 {
				last.HighInclusive = last.HighInclusive || r.HighInclusive
			}
		} else {
			merged = append(merged, r)
		}
	}
	return merged
}

// rangesConnect reports whether the second range overlaps or touches the
// first (first sorts lower).
func rangesConnect(a, b ValueRange) bool {
	if a.High == nil || b.Low == nil {
		return true
	}
	cmp, ok := compareValues(a.High.Value(), b.Low.Value())
	if !ok {
		return false
	}
	if cmp > 0 {
		return true
	}
	return cmp == 0 && (a.HighInclusive || b.LowInclusive)
}

// VariableDomain pairs one variable with its inferred value domain. The
// FromPredicate result is ordered by variable name for reproducible plans.
type VariableDomain struct {
	Variable *rowexpr.Variable
	Domain   Domain
}

// FromPredicate derives per-variable value domains implied by the predicate.
// The result is an over-approximation: every row satisfying the predicate
// satisfies every derived domain, so each domain's predicate form is safe to
// push down independently. Disjunctions are handled by per-variable union,
// which recovers IN-list shapes spread across a disjunction of conjunctions.
func FromPredicate(predicate rowexpr.RowExpression) []VariableDomain {
	domains := domainsOf(predicate)
	names := make([]string, 0, len(domains))
	for name := range domains {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]VariableDomain, 0, len(names))
	for _, name := range names {
		entry := domains[name]
		if entry.domain.IsAll() {
			continue
		}
		out = append(out, VariableDomain{Variable: entry.variable, Domain: entry.domain})
	}
	return out
}

type domainEntry struct {
	variable *rowexpr.Variable
	domain   Domain
}

func domainsOf(predicate rowexpr.RowExpression) map[string]domainEntry {
	call, ok := predicate.(*rowexpr.Call)
	if !ok {
		return nil
	}

	switch call.Name() {
	case rowexpr.And:
		merged := make(map[string]domainEntry)
		for _, conjunct := range rowexpr.ExtractConjuncts(call) {
			for name, entry := range domainsOf(conjunct) {
				if existing, ok := merged[name]; ok {
					entry.domain = existing.domain.Intersect(entry.domain)
				}
				merged[name] = entry
			}
		}
		return merged

	case rowexpr.Or:
		disjuncts := rowexpr.ExtractDisjuncts(call)
		merged := domainsOf(disjuncts[0])
		for _, disjunct := range disjuncts[1:] {
			next := domainsOf(disjunct)
			// A variable unconstrained in any branch is unconstrained overall.
			for name := range merged {
				entry, ok := next[name]
				if !ok {
					delete(merged, name)
					continue
				}
				entry.domain = merged[name].domain.Union(entry.domain)
				merged[name] = entry
			}
		}
		return merged

	case rowexpr.IsNull:
		if v, ok := call.Arguments()[0].(*rowexpr.Variable); ok {
			return map[string]domainEntry{v.Name(): {variable: v, domain: OnlyNullDomain()}}
		}

	case rowexpr.Not:
		if inner, ok := call.Arguments()[0].(*rowexpr.Call); ok && inner.Name() == rowexpr.IsNull {
			if v, ok := inner.Arguments()[0].(*rowexpr.Variable); ok {
				return map[string]domainEntry{v.Name(): {variable: v, domain: NotNullDomain()}}
			}
		}

	case rowexpr.Between:
		v, vok := call.Arguments()[0].(*rowexpr.Variable)
		lo, lok := call.Arguments()[1].(*rowexpr.Constant)
		hi, hok := call.Arguments()[2].(*rowexpr.Constant)
		if vok && lok && hok && !lo.IsNull() && !hi.IsNull() {
			return map[string]domainEntry{v.Name(): {
				variable: v,
				domain:   rangeDomain(ValueRange{Low: lo, High: hi, LowInclusive: true, HighInclusive: true}),
			}}
		}

	case rowexpr.Equal, rowexpr.LessThan, rowexpr.LessThanOrEqual,
		rowexpr.GreaterThan, rowexpr.GreaterThanOrEqual:
		return comparisonDomain(call)
	}
	return nil
}

func comparisonDomain(call *rowexpr.Call) map[string]domainEntry {
	op := call.Name()
	v, vok := call.Arguments()[0].(*rowexpr.Variable)
	c, cok := call.Arguments()[1].(*rowexpr.Constant)
	if !vok || !cok {
		// Try the flipped orientation: constant op variable.
		c, cok = call.Arguments()[0].(*rowexpr.Constant)
		v, vok = call.Arguments()[1].(*rowexpr.Variable)
		if !vok || !cok {
			return nil
		}
		op = rowexpr.Negate(op)
	}
	if c.IsNull() {
		return nil
	}

	var d Domain
	switch op {
	case rowexpr.Equal:
		d = pointDomain(c)
	case rowexpr.LessThan:
		d = rangeDomain(ValueRange{High: c})
	case rowexpr.LessThanOrEqual:
		d = rangeDomain(ValueRange{High: c, HighInclusive: true})
	case rowexpr.GreaterThan:
		d = rangeDomain(ValueRange{Low: c})
	case rowexpr.GreaterThanOrEqual:
		d = rangeDomain(ValueRange{Low: c, LowInclusive: true})
	default:
		return nil
	}
	return map[string]domainEntry{v.Name(): {variable: v, domain: d}}
}

// ToPredicate renders a domain back into a predicate over the variable.
func ToPredicate(d Domain, v *rowexpr.Variable) rowexpr.RowExpression {
	if d.none {
		if d.nullAllowed {
			return rowexpr.IsNullCall(v)
		}
		return rowexpr.FalseConstant
	}
	if d.ranges == nil {
		if d.nullAllowed {
			return rowexpr.TrueConstant
		}
		return rowexpr.NotCall(rowexpr.IsNullCall(v))
	}

	disjuncts := make([]rowexpr.RowExpression, 0, len(d.ranges)+1)
	for _, r := range d.ranges {
		disjuncts = append(disjuncts, rangePredicate(r, v))
	}
	if d.nullAllowed {
		disjuncts = append(disjuncts, rowexpr.IsNullCall(v))
	}
	return rowexpr.CombineDisjuncts(disjuncts...)
}

func rangePredicate(r ValueRange, v *rowexpr.Variable) rowexpr.RowExpression {
	if r.isPoint() {
		return rowexpr.EqualsCall(v, r.Low)
	}
	if r.Low != nil && r.High != nil && r.LowInclusive && r.HighInclusive {
		return rowexpr.NewCall(rowexpr.Between, types.Boolean, v, r.Low, r.High)
	}

	var conjuncts []rowexpr.RowExpression
	if r.Low != nil {
		op := rowexpr.GreaterThan
		if r.LowInclusive {
			op = rowexpr.GreaterThanOrEqual
		}
		conjuncts = append(conjuncts, rowexpr.NewComparison(op, v, r.Low))
	}
	if r.High != nil {
		op := rowexpr.LessThan
		if r.HighInclusive {
			op = rowexpr.LessThanOrEqual
		}
		conjuncts = append(conjuncts, rowexpr.NewComparison(op, v, r.High))
	}
	return rowexpr.CombineConjuncts(conjuncts...)
}
