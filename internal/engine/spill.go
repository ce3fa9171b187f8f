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
	"encoding/json"
	"os"

	"github.com/googleapis/toolbox-federate/internal/engineerr"
)

const stageSpill = "spill"

// SpillDocument is the exact on-disk shape of spec §3.3/§6.2:
// {"data":{"columns":[...],"rows":[[...],...]}}.
type SpillDocument struct {
	Data SpillData `json:"data"`
}

// SpillData is the payload nested under SpillDocument.Data.
type SpillData struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// WriteSpill marshals rs into the §3.3 spill-file schema and writes it to
// path. A crashed write is the caller's signal to mark the request FAILED
// and let the expiry sweep reclaim the partial file.
func WriteSpill(path string, rs *ResultSet) error {
	doc := SpillDocument{Data: SpillData{Columns: rs.Columns, Rows: rs.Rows}}
	if rs.Rows == nil {
		doc.Data.Rows = [][]any{}
	}
	if rs.Columns == nil {
		doc.Data.Columns = []string{}
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return engineerr.Wrap(engineerr.KindInternal, stageSpill, err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return engineerr.Wrap(engineerr.KindInternal, stageSpill, err)
	}
	return nil
}

// ReadSpill reads and decodes a previously written spill file.
func ReadSpill(path string) (*SpillDocument, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindNotFound, stageSpill, err)
	}
	var doc SpillDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, engineerr.Wrap(engineerr.KindInternal, stageSpill, err)
	}
	return &doc, nil
}
