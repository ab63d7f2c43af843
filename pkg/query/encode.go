// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	rberrors "rowbase/cli/pkg/errors"
)

// Parameter names, in the order they are always emitted.
const (
	ParamWhere   = "where"
	ParamOrderBy = "orderBy"
	ParamSelect  = "select"
	ParamLimit   = "limit"
	ParamOffset  = "offset"
)

// Param is one encoded query parameter. Value is the unescaped text.
type Param struct {
	Key   string
	Value string
}

// Encoded is the canonical transport form of a Request.
type Encoded struct {
	params []Param
}

// Params returns the parameters in canonical order.
func (e Encoded) Params() []Param {
	return append([]Param(nil), e.params...)
}

// Get returns the unescaped value of key and whether it is present.
func (e Encoded) Get(key string) (string, bool) {
	for _, p := range e.params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Empty reports whether the request carries no parameters at all.
func (e Encoded) Empty() bool { return len(e.params) == 0 }

// RawQuery renders the parameters as a percent-encoded query string.
func (e Encoded) RawQuery() string {
	var b strings.Builder
	for i, p := range e.params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}

// Body renders the same request as a JSON object for POST queries. Keys
// appear in canonical order and where, orderBy and select hold the same JSON
// text that RawQuery carries.
func (e Encoded) Body() []byte {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, p := range e.params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(p.Key))
		b.WriteByte(':')
		b.WriteString(p.Value)
	}
	b.WriteByte('}')
	return b.Bytes()
}

// wire forms

type wireCondition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

type wireGroup struct {
	And []any `json:"and,omitempty"`
	Or  []any `json:"or,omitempty"`
}

type wireSort struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

// Encode validates req and renders it in canonical form. It fails with a
// Validation error before producing any output when req is malformed.
func Encode(req Request) (Encoded, error) {
	var enc Encoded

	if req.Where != nil {
		terms, err := wireWhere(req.Where)
		if err != nil {
			return Encoded{}, err
		}
		s, err := marshal(terms)
		if err != nil {
			return Encoded{}, err
		}
		enc.params = append(enc.params, Param{ParamWhere, s})
	}

	if len(req.OrderBy) > 0 {
		sorts, err := wireOrder(req.OrderBy)
		if err != nil {
			return Encoded{}, err
		}
		s, err := marshal(sorts)
		if err != nil {
			return Encoded{}, err
		}
		enc.params = append(enc.params, Param{ParamOrderBy, s})
	}

	fields, err := wireSelect(req.Select)
	if err != nil {
		return Encoded{}, err
	}
	if len(fields) > 0 {
		s, err := marshal(fields)
		if err != nil {
			return Encoded{}, err
		}
		enc.params = append(enc.params, Param{ParamSelect, s})
	}

	if req.Limit != nil {
		if *req.Limit < 0 {
			return Encoded{}, rberrors.Invalid(ParamLimit, "", "limit must not be negative")
		}
		enc.params = append(enc.params, Param{ParamLimit, strconv.Itoa(*req.Limit)})
	}
	if req.Offset != nil {
		if *req.Offset < 0 {
			return Encoded{}, rberrors.Invalid(ParamOffset, "", "offset must not be negative")
		}
		enc.params = append(enc.params, Param{ParamOffset, strconv.Itoa(*req.Offset)})
	}

	return enc, nil
}

// wireWhere renders the root group. An AND root is a bare array of terms;
// any other root is wrapped as the single element of that array.
func wireWhere(g *Group) ([]any, error) {
	if connective(g) == And {
		return wireTerms(g, 0)
	}
	w, err := wireNested(g, 0)
	if err != nil {
		return nil, err
	}
	return []any{w}, nil
}

func connective(g *Group) Connective {
	if g.Connective == "" {
		return And
	}
	return g.Connective
}

func wireTerms(g *Group, depth int) ([]any, error) {
	if depth >= maxDepth {
		return nil, rberrors.Invalid("", "", fmt.Sprintf("filter groups nested deeper than %d", maxDepth))
	}
	if c := connective(g); c != And && c != Or {
		return nil, rberrors.Invalid("", string(c), "unknown group connective")
	}
	if len(g.Terms) == 0 {
		return nil, rberrors.Invalid("", string(connective(g)), "filter group has no conditions")
	}

	out := make([]any, 0, len(g.Terms))
	for _, t := range g.Terms {
		switch term := t.(type) {
		case Condition:
			v, err := conditionValue(term)
			if err != nil {
				return nil, err
			}
			out = append(out, wireCondition{Field: term.Field, Operator: term.Operator, Value: v})
		case *Condition:
			if term == nil {
				return nil, rberrors.Invalid("", "", "nil condition in filter group")
			}
			v, err := conditionValue(*term)
			if err != nil {
				return nil, err
			}
			out = append(out, wireCondition{Field: term.Field, Operator: term.Operator, Value: v})
		case *Group:
			if term == nil {
				return nil, rberrors.Invalid("", "", "nil group in filter group")
			}
			w, err := wireNested(term, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, w)
		default:
			return nil, rberrors.Invalid("", "", fmt.Sprintf("unsupported filter term %T", t))
		}
	}
	return out, nil
}

func wireNested(g *Group, depth int) (wireGroup, error) {
	terms, err := wireTerms(g, depth)
	if err != nil {
		return wireGroup{}, err
	}
	if connective(g) == Or {
		return wireGroup{Or: terms}, nil
	}
	return wireGroup{And: terms}, nil
}

func wireOrder(order []Sort) ([]wireSort, error) {
	seen := make(map[string]struct{}, len(order))
	out := make([]wireSort, 0, len(order))
	for _, s := range order {
		if err := checkField(s.Field, ""); err != nil {
			return nil, err
		}
		if _, dup := seen[s.Field]; dup {
			return nil, rberrors.Invalid(s.Field, "", "field appears twice in sort order")
		}
		seen[s.Field] = struct{}{}

		dir := s.Direction
		if dir == "" {
			dir = Asc
		}
		if dir != Asc && dir != Desc {
			return nil, rberrors.Invalid(s.Field, string(s.Direction), "sort direction must be asc or desc")
		}
		out = append(out, wireSort{Field: s.Field, Direction: dir})
	}
	return out, nil
}

// wireSelect validates the selection and drops repeated names, keeping the
// first occurrence.
func wireSelect(sel Selection) ([]string, error) {
	if len(sel) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(sel))
	out := make([]string, 0, len(sel))
	for _, f := range sel {
		if err := checkField(f, ""); err != nil {
			return nil, err
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out, nil
}

// marshal renders v as compact JSON without HTML escaping, so '<', '>' and
// '&' in values reach the server as written.
func marshal(v any) (string, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", rberrors.Wrap(rberrors.Validation, "value cannot be encoded as JSON", err)
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}
