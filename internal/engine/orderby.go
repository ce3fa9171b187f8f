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
	"sort"

	"github.com/googleapis/toolbox-federate/internal/engineerr"
	"github.com/googleapis/toolbox-federate/internal/parser"
	"github.com/googleapis/toolbox-federate/internal/tabular"
)

const stageOrderBy = "order_by"

// applyOrderBy stable-sorts rows by a single resolved key column, per spec
// §4.6.8. nil always compares "greater" (see coerce.go); negating the whole
// comparator for DESC is what turns that into "nil sorts first" rather than
// re-deriving a direction-specific nil rule.
func applyOrderBy(columns *tabular.ColumnIndex, rows []tabular.Row, keyIdx int, dir parser.Direction) ([]tabular.Row, error) {
	if keyIdx < 0 {
		return rows, nil
	}
	out := make([]tabular.Row, len(rows))
	copy(out, rows)

	var sortErr error
	sort.SliceStable(out, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		cmp, err := compareNilAware(out[i].Cells[keyIdx], out[j].Cells[keyIdx])
		if err != nil {
			sortErr = err
			return false
		}
		if dir == parser.DirDesc {
			cmp = -cmp
		}
		return cmp < 0
	})
	if sortErr != nil {
		return nil, engineerr.Wrap(engineerr.KindCoercion, stageOrderBy, sortErr)
	}
	return out, nil
}
