// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"fmt"
	"strconv"

	"github.com/googleapis/toolbox-federate/internal/engineerr"
)

const stageCoerce = "coerce"

// compareValues applies spec §4.6.4's two-sided coercion table and returns
// -1, 0, or 1. A bool compared against anything non-bool always stringifies
// both sides, per the Open Question decision recorded in DESIGN.md: this
// repository never attempts to parse a string as a bool.
func compareValues(v1, v2 any) (int, error) {
	if v1 == nil && v2 == nil {
		return 0, nil
	}

	b1, isBool1 := v1.(bool)
	b2, isBool2 := v2.(bool)
	if isBool1 || isBool2 {
		if isBool1 && isBool2 {
			return compareBool(b1, b2), nil
		}
		return compareStrings(fmt.Sprint(v1), fmt.Sprint(v2)), nil
	}

	n1, isNum1 := asFloat(v1)
	n2, isNum2 := asFloat(v2)
	if isNum1 && isNum2 {
		return compareFloat(n1, n2), nil
	}

	s1, isStr1 := v1.(string)
	s2, isStr2 := v2.(string)
	if isNum1 && isStr2 {
		parsed, err := strconv.ParseFloat(s2, 64)
		if err != nil {
			return 0, engineerr.New(engineerr.KindCoercion, stageCoerce, fmt.Sprintf("cannot coerce %q to a number", s2))
		}
		return compareFloat(n1, parsed), nil
	}
	if isStr1 && isNum2 {
		parsed, err := strconv.ParseFloat(s1, 64)
		if err != nil {
			return 0, engineerr.New(engineerr.KindCoercion, stageCoerce, fmt.Sprintf("cannot coerce %q to a number", s1))
		}
		return compareFloat(parsed, n2), nil
	}
	return compareStrings(fmt.Sprint(v1), fmt.Sprint(v2)), nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

func compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareNilAware orders nil as greater than any non-nil value, independent
// of sort direction; nil equals nil. The order-by stage negates this result
// wholesale for DESC, which is what turns "nil sorts last" into "nil sorts
// first" rather than re-deriving a separate nil rule per direction, per
// spec §4.6.4/§4.6.8.
func compareNilAware(v1, v2 any) (int, error) {
	n1, n2 := v1 == nil, v2 == nil
	switch {
	case n1 && n2:
		return 0, nil
	case n1:
		return 1, nil
	case n2:
		return -1, nil
	}
	return compareValues(v1, v2)
}
