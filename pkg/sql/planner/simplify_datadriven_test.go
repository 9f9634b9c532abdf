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
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"

	"github.com/imillan/presto/pkg/sql/rowexpr"
	"github.com/imillan/presto/pkg/sql/types"
)

// TestSimplifyDataDriven runs the simplification corpus in testdata/simplify.
// Each directive's input lines are conjuncts in a small grammar:
//
//	<operand> <op> <operand>          comparison, op in = <> < <= > >=
//	<operand> between <lo> and <hi>   range predicate
//	isnull <operand>                  NULL test
//	<operand>                         bare literal or variable
//
// Operands are integer literals, null, true, false, or bigint variables.
func TestSimplifyDataDriven(t *testing.T) {
	datadriven.RunTest(t, "testdata/simplify", func(t *testing.T, d *datadriven.TestData) string {
		lines := parseConjunctLines(t, d.Input)
		switch d.Cmd {
		case "simplify":
			return Simplify(rowexpr.CombineConjuncts(lines...)).String() + "\n"
		case "equivalent":
			if len(lines) != 2 {
				t.Fatalf("equivalent expects exactly two input lines, got %d", len(lines))
			}
			return strconv.FormatBool(AreEquivalent(lines[0], lines[1])) + "\n"
		case "null-input":
			nulls := rowexpr.VariableSet{}
			for _, arg := range d.CmdArgs {
				if arg.Key == "nulls" {
					for _, name := range arg.Vals {
						nulls = nulls.Add(rowexpr.NewVariable(name, types.Bigint))
					}
				}
			}
			return NullInputResult(rowexpr.CombineConjuncts(lines...), nulls).String() + "\n"
		default:
			t.Fatalf("unknown command %q", d.Cmd)
			return ""
		}
	})
}

func parseConjunctLines(t *testing.T, input string) []rowexpr.RowExpression {
	var out []rowexpr.RowExpression
	for _, line := range strings.Split(strings.TrimSpace(input), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, parseConjunct(t, line))
	}
	return out
}

var comparisonTokens = map[string]rowexpr.OperatorName{
	"=":  rowexpr.Equal,
	"<>": rowexpr.NotEqual,
	"<":  rowexpr.LessThan,
	"<=": rowexpr.LessThanOrEqual,
	">":  rowexpr.GreaterThan,
	">=": rowexpr.GreaterThanOrEqual,
}

func parseConjunct(t *testing.T, line string) rowexpr.RowExpression {
	fields := strings.Fields(line)
	switch {
	case len(fields) == 1:
		return parseScalar(fields[0])
	case len(fields) == 2 && fields[0] == "isnull":
		return rowexpr.IsNullCall(parseScalar(fields[1]))
	case len(fields) == 3:
		op, ok := comparisonTokens[fields[1]]
		if !ok {
			t.Fatalf("unknown comparison operator %q in %q", fields[1], line)
		}
		return rowexpr.NewComparison(op, parseScalar(fields[0]), parseScalar(fields[2]))
	case len(fields) == 5 && fields[1] == "between" && fields[3] == "and":
		return rowexpr.NewCall(rowexpr.Between, types.Boolean,
			parseScalar(fields[0]), parseScalar(fields[2]), parseScalar(fields[4]))
	}
	t.Fatalf("cannot parse conjunct %q", line)
	return nil
}

func parseScalar(token string) rowexpr.RowExpression {
	switch token {
	case "null":
		return rowexpr.NullConstant(types.Bigint)
	case "true":
		return rowexpr.TrueConstant
	case "false":
		return rowexpr.FalseConstant
	}
	if n, err := strconv.ParseInt(token, 10, 64); err == nil {
		return rowexpr.NewConstant(n, types.Bigint)
	}
	return rowexpr.NewVariable(token, types.Bigint)
}
