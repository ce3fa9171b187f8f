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

import (
	"fmt"

	"github.com/googleapis/toolbox-federate/internal/engineerr"
	"github.com/googleapis/toolbox-federate/internal/parser"
)

const stageExtractSelect = "extract_select_fields"

// extractSelectFields splits the SELECT list into plain fields/stars and
// function calls, builds the alias map, and seeds the resource set with the
// FROM resource, per spec §4.5 stage 2.
func extractSelectFields(ps *planState) error {
	ps.addResource(ps.query.Select.From)

	for _, fe := range ps.query.Select.Fields {
		switch f := fe.(type) {
		case parser.StarExpr:
			// A bare "*" binds to the SELECT resource; "alias.*" names its
			// own resource directly, including the JOIN side. Either way it
			// is expanded post-fetch against that resource's discovered
			// schema (stage 7's Star flag, project.go's finalizeProjection).
			alias := f.Src
			if alias == "" {
				alias = ps.query.Select.From.Alias
			}
			ps.resourceStar[alias] = true

		case parser.FieldExprItem:
			// f.Ref.Resource may name the JOIN side, not yet registered in
			// ps.resources; existence of the alias itself is checked once
			// all resources are known, in stage 3's validateSources.
			existing := ps.fieldEntryFor(f.Ref.Resource, f.Ref.Field)
			if existing != nil {
				existing.Index = f.Index
				existing.Drop = false
				existing.OutputAlias = f.Alias
			} else {
				ps.fields[f.Ref.Resource] = append(ps.fields[f.Ref.Resource], &FieldEntry{
					Field:       f.Ref.Field,
					OutputAlias: f.Alias,
					Index:       f.Index,
					Drop:        false,
				})
			}
			if f.Alias != "" {
				ps.aliasMap[f.Alias] = aliasTarget{ref: f.Ref}
			}

		case parser.FuncCallExpr:
			ps.funcs = append(ps.funcs, &FuncEntry{Call: f})
			if f.Alias != "" {
				ps.aliasMap[f.Alias] = aliasTarget{isFunc: true, funcIndex: len(ps.funcs) - 1}
			}

		default:
			return engineerr.New(engineerr.KindInternal, stageExtractSelect, fmt.Sprintf("unrecognized select field %T", fe))
		}
	}
	return nil
}
