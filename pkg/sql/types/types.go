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

// Package types holds the scalar type model used by plan expressions. It is
// deliberately small: the optimizer only needs enough typing to construct
// well-typed comparison and equality expressions and to mint variables that
// mirror an existing expression's type.
package types

// Family identifies a group of types that share a representation.
type Family int

const (
	// UnknownFamily is the family of the NULL literal's type.
	UnknownFamily Family = iota
	// BooleanFamily is the family of the boolean type.
	BooleanFamily
	// BigintFamily is the family of the 64-bit integer type.
	BigintFamily
	// DoubleFamily is the family of the 64-bit float type.
	DoubleFamily
	// VarcharFamily is the family of the string type.
	VarcharFamily
	// ArrayFamily is the family of array types.
	ArrayFamily
)

// T is an immutable scalar type. Construct array types with MakeArray; all
// other types are singletons below.
type T struct {
	family Family
	elem   *T
}

// Predefined singleton types.
var (
	Unknown = &T{family: UnknownFamily}
	Boolean = &T{family: BooleanFamily}
	Bigint  = &T{family: BigintFamily}
	Double  = &T{family: DoubleFamily}
	Varchar = &T{family: VarcharFamily}
)

// MakeArray returns the array type with the given element type.
func MakeArray(elem *T) *T {
	return &T{family: ArrayFamily, elem: elem}
}

// Family returns the type's family.
func (t *T) Family() Family { return t.family }

// ArrayContents returns the element type of an array type, or nil.
func (t *T) ArrayContents() *T { return t.elem }

// Identical reports whether two types are exactly the same.
func (t *T) Identical(other *T) bool {
	if t.family != other.family {
		return false
	}
	if t.family == ArrayFamily {
		return t.elem.Identical(other.elem)
	}
	return true
}

func (t *T) String() string {
	switch t.family {
	case UnknownFamily:
		return "unknown"
	case BooleanFamily:
		return "boolean"
	case BigintFamily:
		return "bigint"
	case DoubleFamily:
		return "double"
	case VarcharFamily:
		return "varchar"
	case ArrayFamily:
		return "array(" + t.elem.String() + ")"
	}
	return "invalid"
}

// SafeValue implements the redact.SafeValue interface.
func (t *T) SafeValue() {}
