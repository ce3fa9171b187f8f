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

package server

import (
	"context"

	"github.com/googleapis/toolbox-federate/internal/engineerr"
	"github.com/googleapis/toolbox-federate/internal/sources"
)

const stageResolve = "resolve_source"

// StaticResolver implements engine.SourceResolver over the fixed set of
// connected sources config.Load produces at startup; the source registry
// is read-only after initialization, per spec §5.
type StaticResolver struct {
	sources map[string]sources.Source
}

// NewStaticResolver wraps a name -> connected Source map.
func NewStaticResolver(srcs map[string]sources.Source) *StaticResolver {
	return &StaticResolver{sources: srcs}
}

func (r *StaticResolver) Resolve(ctx context.Context, dataSourceName string) (sources.Source, error) {
	src, ok := r.sources[dataSourceName]
	if !ok {
		return nil, engineerr.New(engineerr.KindNotFound, stageResolve, "no connected source named "+dataSourceName)
	}
	return src, nil
}
