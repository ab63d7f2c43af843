// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package query

import (
	"encoding/json"
	"strings"

	rberrors "rowbase/cli/pkg/errors"
)

// ParseCondition parses the compact "field:operator[:value]" form used on the
// command line. List operators take comma-separated values. Each value is read
// as a JSON number, boolean or quoted string when it parses as one, and as a
// plain string otherwise.
//
//	status:eq:active
//	age:gte:21
//	id:in:1,2,3
//	deleted_at:isNull
func ParseCondition(expr string) (Condition, error) {
	parts := strings.SplitN(expr, ":", 3)
	if len(parts) < 2 {
		return Condition{}, rberrors.Invalid("", "", "condition must look like field:operator[:value]: "+expr)
	}
	c := Condition{Field: parts[0], Operator: Operator(parts[1])}
	if !c.Operator.Valid() {
		return Condition{}, rberrors.Invalid(c.Field, parts[1], "unknown operator")
	}

	if c.Operator.takesNoValue() {
		if len(parts) == 3 {
			return Condition{}, rberrors.Invalid(c.Field, parts[1], "operator takes no value")
		}
		return c, nil
	}
	if len(parts) < 3 {
		return Condition{}, rberrors.Invalid(c.Field, parts[1], "operator requires a value")
	}

	raw := parts[2]
	switch {
	case c.Operator.takesList():
		items := strings.Split(raw, ",")
		vals := make([]any, 0, len(items))
		for _, it := range items {
			vals = append(vals, literal(strings.TrimSpace(it)))
		}
		c.Value = vals
	case c.Operator == Like:
		c.Value = raw
	default:
		c.Value = literal(raw)
	}
	return c, nil
}

func literal(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	switch v.(type) {
	case float64:
		// keep the caller's digits; float64 would round large ids
		return json.Number(s)
	case bool, string:
		return v
	}
	return s
}

// ParseSort parses "field" or "field:asc|desc".
func ParseSort(expr string) (Sort, error) {
	field, dir, found := strings.Cut(expr, ":")
	s := Sort{Field: field, Direction: Asc}
	if found {
		s.Direction = Direction(strings.ToLower(dir))
	}
	if s.Direction != Asc && s.Direction != Desc {
		return Sort{}, rberrors.Invalid(field, dir, "sort direction must be asc or desc")
	}
	return s, nil
}

// ParseSelection parses a comma-separated list of field names.
func ParseSelection(expr string) Selection {
	var sel Selection
	for _, f := range strings.Split(expr, ",") {
		if f = strings.TrimSpace(f); f != "" {
			sel = append(sel, f)
		}
	}
	return sel
}
