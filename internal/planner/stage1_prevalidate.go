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

package planner

import "github.com/googleapis/toolbox-federate/internal/engineerr"

const stagePreValidate = "pre_validate"

// preValidate checks the query carries a usable SELECT list and a FROM
// resource. The grammar already guarantees SELECT is the first segment;
// this stage exists as the pipeline's first fallible checkpoint, per spec
// §4.5 stage 1.
func preValidate(q *planState) error {
	if len(q.query.Select.Fields) == 0 {
		return engineerr.New(engineerr.KindValidation, stagePreValidate, "SELECT list must not be empty")
	}
	if q.query.Select.From.Alias == "" {
		return engineerr.New(engineerr.KindValidation, stagePreValidate, "FROM resource must carry an alias")
	}
	return nil
}
