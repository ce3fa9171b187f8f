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

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/googleapis/toolbox-federate/internal/parser"
	"github.com/googleapis/toolbox-federate/internal/planner"
)

// newPlanCmd returns the "plan" subcommand, which parses and plans a query
// against root's configured metadata without ever executing it, mirroring
// what get_query_plan returns over the wire.
func newPlanCmd(root *Command) *cobra.Command {
	var query string
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the resource-level plan for a query without running it",
		RunE: func(c *cobra.Command, args []string) error {
			return planQuery(root, query)
		},
	}
	planCmd.Flags().StringVarP(&query, "query", "q", "", "The query to plan.")
	return planCmd
}

func planQuery(root *Command, query string) error {
	ctx := root.Context()
	cfg, err := loadConfig(ctx, root)
	if err != nil {
		return err
	}

	q, err := parser.ParseQuery(query)
	if err != nil {
		return fmt.Errorf("unable to parse query: %w", err)
	}
	plan, err := planner.Plan(q, cfg.Store)
	if err != nil {
		return fmt.Errorf("unable to plan query: %w", err)
	}

	out, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to render plan: %w", err)
	}
	fmt.Fprintln(root.outStream, string(out))
	return nil
}
