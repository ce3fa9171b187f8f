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

// Package sources is the connector registry: it resolves a configured data
// source's (type, version) to a connector implementation, and dispatches
// per-kind YAML config decoding the same way the rest of this module
// dispatches on a "kind" discriminator.
package sources

import (
	"context"
	"errors"
	"fmt"
	"sync"

	yaml "github.com/goccy/go-yaml"
	"github.com/googleapis/toolbox-federate/internal/parser"
	"github.com/googleapis/toolbox-federate/internal/tabular"
)

// Class is one of the three connector implementations spec §2 names.
type Class string

const (
	ClassRelational Class = "relational"
	ClassFile       Class = "file"
	ClassWebAPI     Class = "web_api"
)

// Observer is the query-plan telemetry hook named in spec §1 as an external
// collaborator: this repository only defines the observation points, it does
// not implement a timing-span backend.
type Observer interface {
	ObserveConnect(ctx context.Context, kind, name string)
}

// NopObserver discards every observation; it is the default when no
// Observer is configured.
type NopObserver struct{}

func (NopObserver) ObserveConnect(context.Context, string, string) {}

// SourceConfigFactory decodes one source kind's YAML body into a typed
// SourceConfig, the same shape every per-source newConfig function uses.
type SourceConfigFactory func(ctx context.Context, name string, decoder *yaml.Decoder) (SourceConfig, error)

// SourceConfig is the decoded, not-yet-connected configuration of a data source.
type SourceConfig interface {
	SourceConfigKind() string
	Initialize(ctx context.Context, obs Observer) (Source, error)
}

// Source is a connectable data source. Connect is called once per request
// that targets it (spec §4.3 permits per-request side effects such as
// opening a socket or performing kinit).
type Source interface {
	SourceKind() string
	Class() Class
	Connect(ctx context.Context) (Handle, error)
}

// Handle is a live connection or session obtained from Source.Connect.
type Handle interface {
	Prepare(ctx context.Context, fetch PreparedFetch) (ResultHandle, error)
	Close() error
}

// ResultHandle is the prepared-but-not-yet-streamed result of one fetch.
type ResultHandle interface {
	Stream(ctx context.Context) (RowIter, error)
	Columns() []tabular.ColumnDescriptor
	Close() error
}

// RowIter yields rows lazily. Next returns ErrIterDone once exhausted.
type RowIter interface {
	Next(ctx context.Context) (tabular.Row, error)
}

// ErrIterDone is the sentinel a RowIter returns once no more rows remain.
var ErrIterDone = errors.New("sources: iterator exhausted")

// FetchAttribute is one column a PreparedFetch asks a connector to produce.
// Exactly one of Field or Rendered is meaningful: Rendered carries a
// function-capability-module pushdown string (e.g. "LOWER(alias.field)")
// destined for a relational connector's projection; Field names a plain
// source column otherwise.
type FetchAttribute struct {
	Field    string
	Rendered string
	Ident    string
}

// PreparedFetch is what the planner's "prepare segments" stage attaches to
// each resource: the resource to read from, the attributes to project
// (including pushdown-rendered function strings), and whether the original
// SELECT asked for this resource's Star expansion.
type PreparedFetch struct {
	Resource   parser.Resource
	Attributes []FetchAttribute
	Star       bool
}

type registry struct {
	mu        sync.RWMutex
	factories map[string]SourceConfigFactory
}

var defaultRegistry = &registry{factories: map[string]SourceConfigFactory{}}

// Register adds a source kind's config factory to the registry. It reports
// false (and does not overwrite) if the kind is already registered.
func Register(kind string, factory SourceConfigFactory) bool {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if _, ok := defaultRegistry.factories[kind]; ok {
		return false
	}
	defaultRegistry.factories[kind] = factory
	return true
}

// DecodeConfig decodes name's YAML body using the factory registered for kind.
func DecodeConfig(ctx context.Context, kind, name string, decoder *yaml.Decoder) (SourceConfig, error) {
	defaultRegistry.mu.RLock()
	factory, ok := defaultRegistry.factories[kind]
	defaultRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("sources: no source kind registered for %q", kind)
	}
	return factory(ctx, name, decoder)
}
