// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"rowbase/cli/internal/httperrors"
	"rowbase/cli/pkg/client"
	"rowbase/cli/pkg/query"
)

var queryFlags filterFlags

// queryCmd lists rows of one table.
var queryCmd = &cobra.Command{
	Use:   "query <table>",
	Short: "List table rows matching filters",
	Long: `The query command lists rows of a table. Filters, sort order, field selection
and pagination are encoded into the canonical query form the API expects.

Examples:
  rowbase query orders --where status:eq:paid --where total:gte:100 --sort created_at:desc --limit 20
  rowbase query users --or --where role:eq:admin --where role:eq:owner --select id,email
  rowbase query users --where deleted_at:isNull --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRows(cmd, &queryFlags, args[0], "", false)
	},
}

var searchFlags filterFlags

// searchCmd runs full-text search with the same filters.
var searchCmd = &cobra.Command{
	Use:   "search <table> <text>",
	Short: "Full-text search a table",
	Long: `The search command runs a full-text search over a table. All query filters
apply on top of the text match.

Example:
  rowbase search articles "postgres replication" --where published:eq:true --limit 5`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRows(cmd, &searchFlags, args[0], strings.Join(args[1:], " "), true)
	},
}

func runRows(cmd *cobra.Command, f *filterFlags, table, text string, search bool) error {
	req, err := f.request(cmd)
	if err != nil {
		return err
	}

	if f.dryRun {
		enc, err := query.Encode(req)
		if err != nil {
			return err
		}
		path := strings.ReplaceAll(client.DefaultEndpoints().Rows, "{table}", table)
		if search {
			path = strings.ReplaceAll(client.DefaultEndpoints().Search, "{table}", table) + " (q=" + text + ")"
		}
		printEncoded(path, enc)
		return nil
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	s, err := newSession(ctx, true)
	if err != nil {
		return err
	}
	s.log.Debug("querying", s.log.Args("table", table, "filter", describeFilter(req)))

	var rows []json.RawMessage
	if search {
		rows, err = s.client.Search(ctx, table, text, req)
	} else {
		rows, err = s.client.Select(ctx, table, req)
	}
	if err != nil {
		return httperrors.Report(err, "querying "+table)
	}
	return printRows(os.Stdout, rows, req.Select, f.output)
}

func init() {
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(searchCmd)
	queryFlags.register(queryCmd)
	searchFlags.register(searchCmd)
}
