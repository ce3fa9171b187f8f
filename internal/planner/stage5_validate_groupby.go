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
	"github.com/googleapis/toolbox-federate/internal/engineerr"
	"github.com/googleapis/toolbox-federate/internal/parser"
)

const stageValidateGroupBy = "validate_group_by"

// validateGroupBy enforces spec §4.5 stage 5's group-by soundness rule: a
// query with aggregates and no GROUP BY must consume every other projected
// field inside some aggregate's arguments; a query with GROUP BY must have
// every non-dropped projected field be either the group key or an aggregate
// argument.
func validateGroupBy(ps *planState) error {
	if ps.query.GroupBy == nil {
		if !ps.hasAggregate {
			return nil
		}
		if anyStarSelected(ps) || !everyPlainFieldInAggregate(ps) {
			return engineerr.New(engineerr.KindValidation, stageValidateGroupBy,
				"aggregate without GROUP BY requires all fields in a function")
		}
		return nil
	}

	if len(ps.query.GroupBy.Attrs) != 1 {
		return engineerr.New(engineerr.KindValidation, stageValidateGroupBy,
			"multi-column GROUP BY is not supported")
	}
	isFuncAlias, funcIndex, ref, err := ps.resolveAttr(ps.query.GroupBy.Attrs[0])
	if err != nil {
		return engineerr.Wrap(engineerr.KindValidation, stageValidateGroupBy, err)
	}
	ps.groupBy = &resolvedGroupBy{IsFuncAlias: isFuncAlias, FuncIndex: funcIndex, Ref: ref}

	if anyStarSelected(ps) {
		return engineerr.New(engineerr.KindValidation, stageValidateGroupBy,
			"SELECT * cannot be combined with GROUP BY")
	}
	for _, alias := range ps.resourceOrder {
		for _, fe := range ps.fields[alias] {
			if fe.Drop || fe.Index < 0 {
				continue
			}
			if !isFuncAlias && alias == ref.Resource && fe.Field == ref.Field {
				continue
			}
			if fieldConsumedByAggregate(ps, alias, fe.Field) {
				continue
			}
			return engineerr.New(engineerr.KindValidation, stageValidateGroupBy,
				"field "+alias+"."+fe.Field+" must be the GROUP BY key or an aggregate argument")
		}
	}
	return nil
}

func anyStarSelected(ps *planState) bool {
	for _, v := range ps.resourceStar {
		if v {
			return true
		}
	}
	return false
}

func everyPlainFieldInAggregate(ps *planState) bool {
	for _, alias := range ps.resourceOrder {
		for _, fe := range ps.fields[alias] {
			if fe.Drop || fe.Index < 0 {
				continue
			}
			if !fieldConsumedByAggregate(ps, alias, fe.Field) {
				return false
			}
		}
	}
	return true
}

func fieldConsumedByAggregate(ps *planState, alias, field string) bool {
	for _, fe := range ps.funcs {
		if !fe.Call.Func.IsAggregate() {
			continue
		}
		for _, p := range fe.Call.Params {
			if fp, ok := p.(parser.FuncFieldParam); ok && fp.Ref.Resource == alias && fp.Ref.Field == field {
				return true
			}
		}
	}
	return false
}
