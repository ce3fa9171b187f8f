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

// Package engine drives per-source fetches and the in-process relational
// operators (join, filter, functions, group-by, order-by, limit, project)
// over the plan the planner produces, per spec §4.6. One file per stage.
package engine

import (
	"context"

	"github.com/googleapis/toolbox-federate/internal/engineerr"
	"github.com/googleapis/toolbox-federate/internal/planner"
	"github.com/googleapis/toolbox-federate/internal/sources"
	"github.com/googleapis/toolbox-federate/internal/tabular"
)

const stageFetch = "fetch"

// SourceResolver connects a resource's configured data source by name.
// internal/server supplies the concrete implementation wired to the
// decoded source configs.
type SourceResolver interface {
	Resolve(ctx context.Context, dataSourceName string) (sources.Source, error)
}

// fetched is one resource's materialized result: its column layout and the
// full set of rows read from the connector, per spec §4.6.1's "streams are
// consumed eagerly into in-memory row vectors" accepted limitation.
type fetched struct {
	resourcePlan planner.ResourcePlan
	columns      *tabular.ColumnIndex
	rows         []tabular.Row
}

func buildPreparedFetch(rp planner.ResourcePlan) sources.PreparedFetch {
	pf := sources.PreparedFetch{Resource: rp.Resource, Star: rp.Star}
	for _, fe := range rp.Fields {
		pf.Attributes = append(pf.Attributes, sources.FetchAttribute{Field: fe.Field, Ident: fe.Field})
	}
	for _, fn := range rp.PushdownFuncs {
		pf.Attributes = append(pf.Attributes, sources.FetchAttribute{Rendered: fn.Rendered, Ident: fn.Call.Ident()})
	}
	return pf
}

// fetchResource connects to rp's data source, prepares and streams its rows,
// and materializes them in memory alongside the connector's column layout.
func fetchResource(ctx context.Context, rp planner.ResourcePlan, resolver SourceResolver) (*fetched, error) {
	src, err := resolver.Resolve(ctx, rp.Resource.DataSource)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindConnect, stageFetch, err)
	}
	handle, err := src.Connect(ctx)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindConnect, stageFetch, err)
	}
	defer handle.Close()

	result, err := handle.Prepare(ctx, buildPreparedFetch(rp))
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindFetch, stageFetch, err)
	}
	defer result.Close()

	iter, err := result.Stream(ctx)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindFetch, stageFetch, err)
	}

	var rows []tabular.Row
	for {
		row, err := iter.Next(ctx)
		if err == sources.ErrIterDone {
			break
		}
		if err != nil {
			return nil, engineerr.Wrap(engineerr.KindFetch, stageFetch, err)
		}
		rows = append(rows, row)
	}

	return &fetched{resourcePlan: rp, columns: tabular.NewColumnIndex(result.Columns()), rows: rows}, nil
}
