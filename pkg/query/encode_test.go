// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package query

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rberrors "rowbase/cli/pkg/errors"
)

func TestEncode_ThreeParameterExample(t *testing.T) {
	req := Request{
		Where:   AllOf(Where("status", Eq, "active")),
		OrderBy: []Sort{{Field: "score", Direction: Desc}},
		Select:  Selection{"name", "age"},
	}

	enc, err := Encode(req)
	require.NoError(t, err)

	want := "where=" + url.QueryEscape(`[{"field":"status","operator":"eq","value":"active"}]`) +
		"&orderBy=" + url.QueryEscape(`[{"field":"score","direction":"desc"}]`) +
		"&select=%5B%22name%22%2C%22age%22%5D"
	assert.Equal(t, want, enc.RawQuery())
	assert.True(t, strings.HasPrefix(enc.RawQuery(), "where=%5B%7B"))
	assert.Len(t, enc.Params(), 3)

	// No bracket-indexed or repeated keys.
	values, err := url.ParseQuery(enc.RawQuery())
	require.NoError(t, err)
	assert.Len(t, values, 3)
	for k, v := range values {
		assert.NotContains(t, k, "[")
		assert.Len(t, v, 1)
	}
}

func TestEncode_Deterministic(t *testing.T) {
	build := func() Request {
		return Request{
			Where: AllOf(
				Where("age", Gte, 21),
				AnyOf(
					Where("country", In, []string{"DE", "FR"}),
					Where("vip", Eq, true),
				),
				Where("deleted_at", IsNull, nil),
			),
			OrderBy: []Sort{{Field: "created_at", Direction: Desc}, {Field: "id"}},
			Select:  Selection{"id", "email"},
			Limit:   Int(50),
			Offset:  Int(100),
		}
	}

	first, err := Encode(build())
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Encode(build())
		require.NoError(t, err)
		assert.Equal(t, first.RawQuery(), again.RawQuery())
		assert.Equal(t, first.Body(), again.Body())
	}

	keys := make([]string, 0, 5)
	for _, p := range first.Params() {
		keys = append(keys, p.Key)
	}
	assert.Equal(t, []string{"where", "orderBy", "select", "limit", "offset"}, keys)
}

func TestEncode_NamedTypesEncodeLikeBuiltins(t *testing.T) {
	type status string
	type ids []int32

	a, err := Encode(Request{Where: AllOf(Where("s", Eq, status("x")), Where("id", In, ids{1, 2}))})
	require.NoError(t, err)
	b, err := Encode(Request{Where: AllOf(Where("s", Eq, "x"), Where("id", In, []int{1, 2}))})
	require.NoError(t, err)
	assert.Equal(t, b.RawQuery(), a.RawQuery())
}

func TestEncode_WhereRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		where *Group
		want  string
	}{
		{
			name:  "single condition",
			where: AllOf(Where("status", Eq, "active")),
			want:  `[{"field":"status","operator":"eq","value":"active"}]`,
		},
		{
			name:  "or root",
			where: AnyOf(Where("a", Gt, 1), Where("b", Lt, 2.5)),
			want:  `[{"or":[{"field":"a","operator":"gt","value":1},{"field":"b","operator":"lt","value":2.5}]}]`,
		},
		{
			name: "nested and inside or",
			where: AnyOf(
				AllOf(Where("a", Eq, "x"), Where("b", IsNotNull, nil)),
				Where("c", NotIn, []any{"p", 3, false}),
			),
			want: `[{"or":[{"and":[{"field":"a","operator":"eq","value":"x"},{"field":"b","operator":"isNotNull"}]},{"field":"c","operator":"notIn","value":["p",3,false]}]}]`,
		},
		{
			name:  "like with html characters",
			where: AllOf(Where("name", Like, "%<b>&%")),
			want:  `[{"field":"name","operator":"like","value":"%<b>&%"}]`,
		},
		{
			name:  "zero connective is and",
			where: &Group{Terms: []Term{Where("n", Eq, 0)}},
			want:  `[{"field":"n","operator":"eq","value":0}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := Encode(Request{Where: tt.where})
			require.NoError(t, err)

			raw, ok := enc.Get(ParamWhere)
			require.True(t, ok)

			var got, want any
			require.NoError(t, json.Unmarshal([]byte(raw), &got))
			require.NoError(t, json.Unmarshal([]byte(tt.want), &want))
			assert.Equal(t, want, got)

			values, err := url.ParseQuery(enc.RawQuery())
			require.NoError(t, err)
			assert.Equal(t, raw, values.Get(ParamWhere))
		})
	}
}

func TestEncode_Omissions(t *testing.T) {
	enc, err := Encode(Request{})
	require.NoError(t, err)
	assert.True(t, enc.Empty())
	assert.Equal(t, "", enc.RawQuery())
	assert.Equal(t, "{}", string(enc.Body()))

	enc, err = Encode(Request{Select: Selection{}, Limit: Int(0)})
	require.NoError(t, err)
	_, hasWhere := enc.Get(ParamWhere)
	_, hasSelect := enc.Get(ParamSelect)
	assert.False(t, hasWhere)
	assert.False(t, hasSelect)
	assert.Equal(t, "limit=0", enc.RawQuery())
}

func TestEncode_SelectDropsRepeats(t *testing.T) {
	enc, err := Encode(Request{Select: Selection{"a", "b", "a"}})
	require.NoError(t, err)
	v, _ := enc.Get(ParamSelect)
	assert.Equal(t, `["a","b"]`, v)
}

func TestEncode_Body(t *testing.T) {
	enc, err := Encode(Request{
		Where:  AllOf(Where("x", Eq, "y")),
		Limit:  Int(5),
		Select: Selection{"x"},
	})
	require.NoError(t, err)

	assert.Equal(t, `{"where":[{"field":"x","operator":"eq","value":"y"}],"select":["x"],"limit":5}`, string(enc.Body()))
	assert.True(t, json.Valid(enc.Body()))
}

func TestEncode_ValidationErrors(t *testing.T) {
	self := &Group{Connective: And}
	self.Terms = []Term{self}

	tests := []struct {
		name      string
		req       Request
		wantField string
		wantOp    string
	}{
		{"in with scalar", Request{Where: AllOf(Where("x", In, "not-an-array"))}, "x", "in"},
		{"notIn with nil", Request{Where: AllOf(Where("x", NotIn, nil))}, "x", "notIn"},
		{"in with empty array", Request{Where: AllOf(Where("x", In, []int{}))}, "x", "in"},
		{"in with nested array", Request{Where: AllOf(Where("x", In, []any{[]int{1}}))}, "x", "in"},
		{"in with bytes", Request{Where: AllOf(Where("x", In, []byte("ab")))}, "x", "in"},
		{"isNull with value", Request{Where: AllOf(Where("x", IsNull, 1))}, "x", "isNull"},
		{"eq with nil", Request{Where: AllOf(Where("x", Eq, nil))}, "x", "eq"},
		{"eq with array", Request{Where: AllOf(Where("x", Eq, []int{1}))}, "x", "eq"},
		{"eq with map", Request{Where: AllOf(Where("x", Eq, map[string]int{"a": 1}))}, "x", "eq"},
		{"like with number", Request{Where: AllOf(Where("x", Like, 3))}, "x", "like"},
		{"unknown operator", Request{Where: AllOf(Where("x", Operator("between"), 1))}, "x", "between"},
		{"bad field", Request{Where: AllOf(Where("x-y", Eq, 1))}, "x-y", "eq"},
		{"empty field", Request{Where: AllOf(Where("", Eq, 1))}, "", "eq"},
		{"empty root group", Request{Where: AllOf()}, "", "and"},
		{"empty nested group", Request{Where: AllOf(Where("a", Eq, 1), AnyOf())}, "", "or"},
		{"self-referencing group", Request{Where: self}, "", ""},
		{"bad connective", Request{Where: &Group{Connective: "xor", Terms: []Term{Where("a", Eq, 1)}}}, "", "xor"},
		{"duplicate sort", Request{OrderBy: []Sort{{Field: "a"}, {Field: "a", Direction: Desc}}}, "a", ""},
		{"bad direction", Request{OrderBy: []Sort{{Field: "a", Direction: "up"}}}, "a", "up"},
		{"bad select", Request{Select: Selection{"ok", "not ok"}}, "not ok", ""},
		{"negative limit", Request{Limit: Int(-1)}, "limit", ""},
		{"negative offset", Request{Offset: Int(-1)}, "offset", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.req)
			require.Error(t, err)
			assert.True(t, rberrors.Is(err, rberrors.Validation), "got %v", err)

			var e *rberrors.E
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.wantField, e.Field)
			if tt.wantOp != "" {
				assert.Equal(t, tt.wantOp, e.Operator)
			}
		})
	}
}

func TestEncode_DoesNotMutateRequest(t *testing.T) {
	sel := Selection{"a", "a", "b"}
	order := []Sort{{Field: "a"}}
	req := Request{Where: AllOf(Where("a", Eq, 1)), OrderBy: order, Select: sel}

	_, err := Encode(req)
	require.NoError(t, err)
	assert.Equal(t, Selection{"a", "a", "b"}, req.Select)
	assert.Equal(t, Direction(""), req.OrderBy[0].Direction)
}
