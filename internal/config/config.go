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

// Package config decodes the multi-document YAML configuration file into
// the pieces the rest of the module needs: metadata entries for the
// planner's Source Registry, live connector configs for the request
// lifecycle's SourceResolver, and the engine tuning knobs of spec §6.4.
package config

import (
	"bytes"
	"context"
	"fmt"
	"time"

	yaml "github.com/goccy/go-yaml"

	"github.com/googleapis/toolbox-federate/internal/metadata"
	"github.com/googleapis/toolbox-federate/internal/sources"
	"github.com/googleapis/toolbox-federate/internal/util"
)

// Engine is the closed option set of spec §6.4: the only configuration
// actually consumed by the core.
type Engine struct {
	MetadataBaseDir     string        `yaml:"metadata_base_dir"`
	ResultTmpDir        string        `yaml:"result_tmp_dir"`
	ResultSetExpiry     time.Duration `yaml:"-"`
	ResultSetExpiryMins int           `yaml:"result_set_expiry"`
	KerberosKeytab      string        `yaml:"kerberos_client_keytab"`
	KerberosUID         string        `yaml:"kerberos_client_uid"`
}

// Config is everything decoded from the configuration file: the metadata
// facade pre-populated with data_sources/models/endpoints, the live
// connector Source instances keyed by data source name, and the engine
// tuning knobs.
type Config struct {
	Engine  Engine
	Sources map[string]sources.Source
	Store   *metadata.Store
}

// dataSourceDoc is the superset of fields a "kind: data_sources" document
// may carry: the metadata fields the planner's type registry resolves
// against, plus which connector kind and body decode the live Source.
type dataSourceDoc struct {
	Type            string            `yaml:"type"`
	Version         *int              `yaml:"version"`
	ConnectionProps map[string]string `yaml:"connection_props"`
	Connector       string            `yaml:"connector"`
}

// Load decodes raw, a "---"-separated sequence of YAML documents, into a
// Config. obs is the telemetry observation hook every connector's
// Initialize receives (spec §1's "observation hook only" non-goal).
func Load(ctx context.Context, raw []byte, types *sources.TypeRegistry, obs sources.Observer) (*Config, error) {
	store := metadata.NewStore(types)
	liveSources := map[string]sources.Source{}
	var eng Engine

	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	for {
		var doc map[string]any
		if err := decoder.DecodeContext(ctx, &doc); err != nil {
			if err.Error() == "EOF" {
				break
			}
			return nil, fmt.Errorf("config: unable to parse document: %w", err)
		}

		kind, _ := doc["kind"].(string)
		name, _ := doc["name"].(string)

		switch kind {
		case "data_sources":
			if name == "" {
				return nil, fmt.Errorf("config: data_sources document missing name")
			}
			if err := loadDataSource(ctx, name, doc, store, liveSources, obs); err != nil {
				return nil, err
			}
		case "models":
			if name == "" {
				return nil, fmt.Errorf("config: models document missing name")
			}
			query, _ := doc["query"].(string)
			if err := store.PutModel(metadata.ModelSpec{Name: name, Query: query}); err != nil {
				return nil, err
			}
		case "endpoints":
			if name == "" {
				return nil, fmt.Errorf("config: endpoints document missing name")
			}
			model, _ := doc["model"].(string)
			if err := store.PutEndpoint(metadata.EndpointSpec{Name: name, Model: model}); err != nil {
				return nil, err
			}
		case "engine":
			delete(doc, "kind")
			dec, err := util.NewStrictDecoder(doc)
			if err != nil {
				return nil, fmt.Errorf("config: error creating decoder: %w", err)
			}
			if err := dec.DecodeContext(ctx, &eng); err != nil {
				return nil, fmt.Errorf("config: unable to parse engine settings: %w", err)
			}
		default:
			return nil, fmt.Errorf("config: unrecognized document kind %q", kind)
		}
	}

	eng.ResultSetExpiry = time.Duration(eng.ResultSetExpiryMins) * time.Minute
	return &Config{Engine: eng, Sources: liveSources, Store: store}, nil
}

func loadDataSource(ctx context.Context, name string, doc map[string]any, store *metadata.Store, liveSources map[string]sources.Source, obs sources.Observer) error {
	var meta dataSourceDoc
	metaDec, err := util.NewStrictDecoder(map[string]any{
		"type":            doc["type"],
		"version":         doc["version"],
		"connection_props": doc["connection_props"],
		"connector":       doc["connector"],
	})
	if err != nil {
		return fmt.Errorf("config: error creating decoder: %w", err)
	}
	if err := metaDec.DecodeContext(ctx, &meta); err != nil {
		return fmt.Errorf("config: unable to parse data source %s: %w", name, err)
	}
	if meta.Connector == "" {
		return fmt.Errorf("config: data source %s missing connector", name)
	}

	if err := store.PutDataSource(metadata.DataSourceSpec{
		Name:            name,
		Type:            meta.Type,
		Version:         meta.Version,
		ConnectionProps: meta.ConnectionProps,
	}); err != nil {
		return err
	}

	body := map[string]any{"kind": meta.Connector}
	for k, v := range doc {
		switch k {
		case "kind", "type", "version", "connection_props", "connector":
			continue
		default:
			body[k] = v
		}
	}
	dec, err := util.NewStrictDecoder(body)
	if err != nil {
		return fmt.Errorf("config: error creating decoder: %w", err)
	}
	cfg, err := sources.DecodeConfig(ctx, meta.Connector, name, dec)
	if err != nil {
		return fmt.Errorf("config: unable to decode connector config for %s: %w", name, err)
	}
	src, err := cfg.Initialize(ctx, obs)
	if err != nil {
		return fmt.Errorf("config: unable to initialize data source %s: %w", name, err)
	}
	liveSources[name] = src
	return nil
}
