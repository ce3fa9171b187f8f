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

// Package file implements the file connector: CSV and JSON documents read
// from a configured base directory, one row/array-element at a time.
package file

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	yaml "github.com/goccy/go-yaml"
	"github.com/googleapis/toolbox-federate/internal/engineerr"
	"github.com/googleapis/toolbox-federate/internal/sources"
)

// SourceKind is the "kind" discriminator this connector registers under.
const SourceKind string = "file"

const stageFile = "file_source"

var _ sources.SourceConfig = Config{}

func init() {
	if !sources.Register(SourceKind, newConfig) {
		panic(fmt.Sprintf("source kind %q already registered", SourceKind))
	}
}

func newConfig(ctx context.Context, name string, decoder *yaml.Decoder) (sources.SourceConfig, error) {
	actual := Config{Name: name, Delimiter: ",", ResultPath: "$"}
	if err := decoder.DecodeContext(ctx, &actual); err != nil {
		return nil, err
	}
	return actual, nil
}

// Config is the decoded YAML body of a "kind: file" data source.
type Config struct {
	Name string `yaml:"name" validate:"required"`
	Kind string `yaml:"kind" validate:"required"`
	// BaseDir is the directory every Resource.Src is resolved relative to.
	BaseDir string `yaml:"baseDir" validate:"required"`
	// Format is either "csv" or "json".
	Format string `yaml:"format" validate:"required"`
	// Delimiter is the single-character CSV field separator. Defaults to ",".
	Delimiter string `yaml:"delimiter"`
	// ResultPath is the dot path to the JSON array of row objects, rooted at
	// the document root ("$"). Ignored for Format "csv".
	ResultPath string `yaml:"resultPath"`
}

func (c Config) SourceConfigKind() string {
	return SourceKind
}

func (c Config) Initialize(ctx context.Context, obs sources.Observer) (sources.Source, error) {
	obs.ObserveConnect(ctx, SourceKind, c.Name)
	delim := c.Delimiter
	if delim == "" {
		delim = ","
	}
	resultPath := c.ResultPath
	if resultPath == "" {
		resultPath = "$"
	}
	format := strings.ToLower(c.Format)
	if format != "csv" && format != "json" {
		return nil, engineerr.New(engineerr.KindValidation, stageFile, "file source format must be csv or json, got "+c.Format)
	}
	return &Source{
		name:       c.Name,
		baseDir:    c.BaseDir,
		format:     format,
		delimiter:  delim,
		resultPath: resultPath,
	}, nil
}

var _ sources.Source = &Source{}

// Source is a connected file data source: a base directory plus the format
// and parse options every fetch against it shares.
type Source struct {
	name       string
	baseDir    string
	format     string
	delimiter  string
	resultPath string
}

func (s *Source) SourceKind() string { return SourceKind }

func (s *Source) Class() sources.Class { return sources.ClassFile }

// Connect opens no persistent resource; each Prepare call opens its own file.
func (s *Source) Connect(ctx context.Context) (sources.Handle, error) {
	return &Handle{src: s}, nil
}

// Handle is a no-op session; file reads are stateless per fetch.
type Handle struct {
	src *Source
}

func (h *Handle) Close() error { return nil }

// Prepare resolves fetch.Resource.Src safely under the source's base
// directory and opens it according to the source's configured format.
func (h *Handle) Prepare(ctx context.Context, fetch sources.PreparedFetch) (sources.ResultHandle, error) {
	path, err := safeJoin(h.src.baseDir, fetch.Resource.Src)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindValidation, stageFile, err)
	}
	switch h.src.format {
	case "csv":
		return prepareCSV(path, h.src.delimiter, fetch)
	case "json":
		return prepareJSON(path, h.src.resultPath, fetch)
	default:
		return nil, engineerr.New(engineerr.KindInternal, stageFile, "unreachable file format "+h.src.format)
	}
}

// safeJoin joins base and src after stripping "." and ".." path elements
// from src, so a configured data source can never be made to read outside
// its base directory.
func safeJoin(base, src string) (string, error) {
	clean := filepath.ToSlash(filepath.Clean(src))
	parts := strings.Split(clean, "/")
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return "", fmt.Errorf("file source: empty resource path")
	}
	return filepath.Join(base, filepath.Join(kept...)), nil
}
