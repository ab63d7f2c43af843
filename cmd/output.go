// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/pterm/pterm"
)

const maxCellWidth = 60

// tableData turns JSON rows into a pterm table. Columns follow fields when
// given; otherwise "id" comes first and the rest are sorted.
func tableData(rows []json.RawMessage, fields []string) (pterm.TableData, error) {
	records := make([]map[string]any, 0, len(rows))
	seen := map[string]struct{}{}
	for _, r := range rows {
		dec := json.NewDecoder(bytes.NewReader(r))
		dec.UseNumber()
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("row is not a JSON object: %w", err)
		}
		for k := range m {
			seen[k] = struct{}{}
		}
		records = append(records, m)
	}

	cols := fields
	if len(cols) == 0 {
		for k := range seen {
			if k != "id" {
				cols = append(cols, k)
			}
		}
		sort.Strings(cols)
		if _, ok := seen["id"]; ok {
			cols = append([]string{"id"}, cols...)
		}
	}

	data := pterm.TableData{cols}
	for _, m := range records {
		line := make([]string, len(cols))
		for i, c := range cols {
			line[i] = cell(m[c])
		}
		data = append(data, line)
	}
	return data, nil
}

func cell(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		s = "NULL"
	case string:
		s = x
	case json.Number:
		s = x.String()
	default:
		b, _ := json.Marshal(x)
		s = string(b)
	}
	if r := []rune(s); len(r) > maxCellWidth {
		s = string(r[:maxCellWidth-1]) + "…"
	}
	return s
}

func printRows(w io.Writer, rows []json.RawMessage, fields []string, format string) error {
	if format == "json" {
		out := rows
		if out == nil {
			out = []json.RawMessage{}
		}
		b, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}

	if len(rows) == 0 {
		pterm.Info.Println("No rows matched")
		return nil
	}
	data, err := tableData(rows, fields)
	if err != nil {
		return err
	}
	if err := pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render(); err != nil {
		return err
	}
	pterm.Fprintln(w, pterm.Gray(fmt.Sprintf("%d row(s)", len(rows))))
	return nil
}
