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

import "github.com/googleapis/toolbox-federate/internal/tabular"

// applyLimit keeps the first n rows, per spec §4.6.9.
func applyLimit(rows []tabular.Row, n int) []tabular.Row {
	if n < 0 || n >= len(rows) {
		return rows
	}
	return rows[:n]
}
