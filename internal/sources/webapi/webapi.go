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

// Package webapi implements the web API connector of spec §4.3.3: GET-only,
// application/json-only HTTP requests against endpoints named in a
// configured endpoint_mappings table, optionally SPNEGO-authenticated.
package webapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	yaml "github.com/goccy/go-yaml"
	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/spnego"

	"github.com/googleapis/toolbox-federate/internal/engineerr"
	"github.com/googleapis/toolbox-federate/internal/sources"
)

// SourceKind is the "kind" discriminator this connector registers under.
const SourceKind string = "web_api"

const stageWebAPI = "webapi_source"

// maxNegotiateRounds caps the SPNEGO 401/Negotiate retry loop, per spec
// §4.3.3.
const maxNegotiateRounds = 3

var _ sources.SourceConfig = Config{}

func init() {
	if !sources.Register(SourceKind, newConfig) {
		panic(fmt.Sprintf("source kind %q already registered", SourceKind))
	}
}

func newConfig(ctx context.Context, name string, decoder *yaml.Decoder) (sources.SourceConfig, error) {
	actual := Config{Name: name}
	if err := decoder.DecodeContext(ctx, &actual); err != nil {
		return nil, err
	}
	return actual, nil
}

// EndpointMapping is the base URL and result path for one src name a
// web_api data source serves.
type EndpointMapping struct {
	URL        string `yaml:"url" validate:"required"`
	ResultPath string `yaml:"resultPath"`
}

// Config is the decoded YAML body of a "kind: web_api" data source.
type Config struct {
	Name             string                     `yaml:"name" validate:"required"`
	Kind             string                     `yaml:"kind" validate:"required"`
	EndpointMappings map[string]EndpointMapping `yaml:"endpointMappings" validate:"required"`
	Timeout          time.Duration              `yaml:"timeout"`
	SPN              string                     `yaml:"spn"`
	KeytabPath       string                     `yaml:"keytabPath"`
	Principal        string                     `yaml:"principal"`
	Realm            string                     `yaml:"realm"`
	KrbConf          string                     `yaml:"krb5Conf"`
}

func (c Config) SourceConfigKind() string {
	return SourceKind
}

func (c Config) Initialize(ctx context.Context, obs sources.Observer) (sources.Source, error) {
	obs.ObserveConnect(ctx, SourceKind, c.Name)

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	var spnegoClient *spnego.Client
	if c.KeytabPath != "" {
		kt, err := keytab.Load(c.KeytabPath)
		if err != nil {
			return nil, engineerr.Wrap(engineerr.KindConnect, stageWebAPI, err)
		}
		var cfg *config.Config
		if c.KrbConf != "" {
			cfg, err = config.Load(c.KrbConf)
		} else {
			cfg, err = config.NewFromString("[libdefaults]\n")
		}
		if err != nil {
			return nil, engineerr.Wrap(engineerr.KindConnect, stageWebAPI, err)
		}
		krbCl := client.NewWithKeytab(c.Principal, c.Realm, kt, cfg)
		if err := krbCl.Login(); err != nil {
			return nil, engineerr.Wrap(engineerr.KindConnect, stageWebAPI, err)
		}
		spnegoClient = spnego.NewClient(krbCl, httpClient, c.SPN)
	}

	return &Source{
		name:       c.Name,
		mappings:   c.EndpointMappings,
		httpClient: httpClient,
		spnego:     spnegoClient,
	}, nil
}

var _ sources.Source = &Source{}

// Source is a connected web API data source: the endpoint table and the
// HTTP client (plain or SPNEGO-wrapped) every fetch shares.
type Source struct {
	name       string
	mappings   map[string]EndpointMapping
	httpClient *http.Client
	spnego     *spnego.Client
}

func (s *Source) SourceKind() string { return SourceKind }

func (s *Source) Class() sources.Class { return sources.ClassWebAPI }

// Connect hands out a thin Handle; the HTTP client is already connection-
// pooled by net/http, so no per-request dial happens here.
func (s *Source) Connect(ctx context.Context) (sources.Handle, error) {
	return &Handle{src: s}, nil
}

// Handle issues one GET request per Prepare call.
type Handle struct {
	src *Source
}

func (h *Handle) Close() error { return nil }

// doWithNegotiate performs req, retrying up to maxNegotiateRounds times
// while the server keeps responding 401 (whatever challenge header it
// sends), per spec §4.3.3's SPNEGO round cap.
func (h *Handle) doWithNegotiate(req *http.Request) (*http.Response, error) {
	client := h.src.httpClient
	doer := func(r *http.Request) (*http.Response, error) { return client.Do(r) }
	if h.src.spnego != nil {
		doer = func(r *http.Request) (*http.Response, error) { return h.src.spnego.Do(r) }
	}

	for round := 0; round < maxNegotiateRounds; round++ {
		resp, err := doer(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusUnauthorized {
			return resp, nil
		}
		resp.Body.Close()
	}
	return nil, engineerr.New(engineerr.KindConnect, stageWebAPI,
		"SPNEGO negotiation did not complete within the allotted continuation rounds")
}
