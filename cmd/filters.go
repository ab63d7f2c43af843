// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"rowbase/cli/pkg/query"
)

// filterFlags holds the flags shared by query and search.
type filterFlags struct {
	where  []string
	or     bool
	sort   []string
	fields string
	limit  int
	offset int
	dryRun bool
	output string
}

func (f *filterFlags) register(c *cobra.Command) {
	fs := c.Flags()
	fs.StringArrayVarP(&f.where, "where", "w", nil, "Condition field:operator[:value]; repeatable (e.g. age:gte:21, id:in:1,2,3)")
	fs.BoolVar(&f.or, "or", false, "Match any --where condition instead of all")
	fs.StringArrayVarP(&f.sort, "sort", "s", nil, "Sort field[:asc|desc]; repeatable, first wins")
	fs.StringVar(&f.fields, "select", "", "Comma-separated fields to return")
	fs.IntVar(&f.limit, "limit", 0, "Maximum number of rows")
	fs.IntVar(&f.offset, "offset", 0, "Number of rows to skip")
	fs.BoolVar(&f.dryRun, "dry-run", false, "Print the encoded query instead of sending it")
	fs.StringVarP(&f.output, "output", "o", "table", "Output format: table or json")
}

// request builds the query from flags. Limit and offset are sent only when
// given on the command line.
func (f *filterFlags) request(c *cobra.Command) (query.Request, error) {
	var req query.Request

	if len(f.where) > 0 {
		terms := make([]query.Term, 0, len(f.where))
		for _, w := range f.where {
			cond, err := query.ParseCondition(w)
			if err != nil {
				return req, err
			}
			terms = append(terms, cond)
		}
		if f.or {
			req.Where = query.AnyOf(terms...)
		} else {
			req.Where = query.AllOf(terms...)
		}
	}

	for _, s := range f.sort {
		sort, err := query.ParseSort(s)
		if err != nil {
			return req, err
		}
		req.OrderBy = append(req.OrderBy, sort)
	}

	req.Select = query.ParseSelection(f.fields)
	if c.Flags().Changed("limit") {
		req.Limit = query.Int(f.limit)
	}
	if c.Flags().Changed("offset") {
		req.Offset = query.Int(f.offset)
	}
	if f.output != "table" && f.output != "json" {
		return req, fmt.Errorf("unknown output format %q (want table or json)", f.output)
	}
	return req, nil
}

// printEncoded shows what would go on the wire, one parameter per line.
func printEncoded(path string, enc query.Encoded) {
	pterm.Println(pterm.Bold.Sprint("GET ") + path)
	if enc.Empty() {
		pterm.Println(pterm.Gray("  (no query parameters)"))
		return
	}
	for _, p := range enc.Params() {
		pterm.Printfln("  %s = %s", pterm.Cyan(p.Key), p.Value)
	}
	pterm.Println()
	pterm.Println(pterm.Gray("?" + enc.RawQuery()))
}

func describeFilter(req query.Request) string {
	if req.Where == nil {
		return "all rows"
	}
	parts := make([]string, 0, len(req.Where.Terms))
	for _, t := range req.Where.Terms {
		if c, ok := t.(query.Condition); ok {
			parts = append(parts, c.Field+" "+string(c.Operator))
		}
	}
	return strings.Join(parts, " "+string(req.Where.Connective)+" ")
}
