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

// Package relational implements the relational connector of spec §4.3.1: an
// ODBC connection, optionally Kerberos-authenticated via a keytab kinit,
// against which the planner's pushdown-rendered projections are executed as
// plain SQL.
package relational

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/alexbrainman/odbc"
	yaml "github.com/goccy/go-yaml"
	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/keytab"

	"github.com/googleapis/toolbox-federate/internal/engineerr"
	"github.com/googleapis/toolbox-federate/internal/sources"
)

// SourceKind is the "kind" discriminator this connector registers under.
const SourceKind string = "relational"

const stageRelational = "relational_source"

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

// Config is the decoded YAML body of a "kind: relational" data source. The
// connection string is a template with $driver/$hostname/$database/$spn/$uid
// placeholders, substituted at Initialize time.
type Config struct {
	Name       string `yaml:"name" validate:"required"`
	Kind       string `yaml:"kind" validate:"required"`
	Driver     string `yaml:"driver" validate:"required"`
	Hostname   string `yaml:"hostname" validate:"required"`
	Database   string `yaml:"database" validate:"required"`
	ConnString string `yaml:"connectionStringTemplate" validate:"required"`

	// Kerberos, all optional: when KeytabPath is set the connector performs
	// a kinit before opening the ODBC connection.
	KeytabPath string `yaml:"keytabPath"`
	Principal  string `yaml:"principal"`
	Realm      string `yaml:"realm"`
	SPN        string `yaml:"spn"`
	UID        string `yaml:"uid"`
	KrbConf    string `yaml:"krb5Conf"`
}

func (c Config) SourceConfigKind() string {
	return SourceKind
}

func (c Config) Initialize(ctx context.Context, obs sources.Observer) (sources.Source, error) {
	obs.ObserveConnect(ctx, SourceKind, c.Name)

	if c.KeytabPath != "" {
		if err := kinit(c); err != nil {
			return nil, engineerr.Wrap(engineerr.KindConnect, stageRelational, err)
		}
	}

	connStr := renderConnString(c.ConnString, c)
	db, err := sql.Open("odbc", connStr)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindConnect, stageRelational, err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, engineerr.Wrap(engineerr.KindConnect, stageRelational, err)
	}

	return &Source{name: c.Name, db: db}, nil
}

// kinit obtains a Kerberos ticket-granting ticket from a keytab, the way an
// ODBC DSN configured for integrated auth expects one to already exist in
// the session's credential cache before a connection is opened.
func kinit(c Config) error {
	kt, err := keytab.Load(c.KeytabPath)
	if err != nil {
		return fmt.Errorf("relational source: loading keytab: %w", err)
	}
	var cfg *config.Config
	if c.KrbConf != "" {
		cfg, err = config.Load(c.KrbConf)
	} else {
		cfg, err = config.NewFromString("[libdefaults]\n")
	}
	if err != nil {
		return fmt.Errorf("relational source: loading krb5 config: %w", err)
	}
	cl := client.NewWithKeytab(c.Principal, c.Realm, kt, cfg)
	if err := cl.Login(); err != nil {
		return fmt.Errorf("relational source: kinit: %w", err)
	}
	cl.Destroy()
	return nil
}

// renderConnString substitutes the $driver/$hostname/$database/$spn/$uid
// placeholders in tmpl with c's fields.
func renderConnString(tmpl string, c Config) string {
	r := strings.NewReplacer(
		"$driver", c.Driver,
		"$hostname", c.Hostname,
		"$database", c.Database,
		"$spn", c.SPN,
		"$uid", c.UID,
	)
	return r.Replace(tmpl)
}

var _ sources.Source = &Source{}

// Source is a connected relational data source backed by a pooled ODBC
// *sql.DB; Connect hands out a thin Handle wrapping the same pool, since
// ODBC connections are already pooled by database/sql.
type Source struct {
	name string
	db   *sql.DB
}

func (s *Source) SourceKind() string { return SourceKind }

func (s *Source) Class() sources.Class { return sources.ClassRelational }

func (s *Source) Connect(ctx context.Context) (sources.Handle, error) {
	return &Handle{db: s.db}, nil
}

// Handle issues one SQL query per Prepare call; Close is a no-op since the
// underlying *sql.DB pool outlives any single request.
type Handle struct {
	db *sql.DB
}

func (h *Handle) Close() error { return nil }
