// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	rberrors "rowbase/cli/pkg/errors"
	"rowbase/cli/pkg/query"
)

// SearchParam carries the full-text search string.
const SearchParam = "q"

// Select returns the rows of table matching q. The request is validated and
// encoded before anything is sent.
func (c *Client) Select(ctx context.Context, table string, q query.Request) ([]json.RawMessage, error) {
	path, err := c.path(c.endpoints.Rows, table, "")
	if err != nil {
		return nil, err
	}
	enc, err := query.Encode(q)
	if err != nil {
		return nil, err
	}
	resp, err := c.Send(ctx, Request{Method: http.MethodGet, Path: path, Query: enc})
	if err != nil {
		return nil, err
	}
	return rows(resp.Data)
}

// Search runs a full-text search over table, narrowed by q.
func (c *Client) Search(ctx context.Context, table, text string, q query.Request) ([]json.RawMessage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, rberrors.Invalid(SearchParam, "", "search text must not be empty")
	}
	path, err := c.path(c.endpoints.Search, table, "")
	if err != nil {
		return nil, err
	}
	enc, err := query.Encode(q)
	if err != nil {
		return nil, err
	}
	resp, err := c.Send(ctx, Request{
		Method: http.MethodGet,
		Path:   path,
		Query:  enc,
		Params: []query.Param{{Key: SearchParam, Value: text}},
	})
	if err != nil {
		return nil, err
	}
	return rows(resp.Data)
}

// Insert creates a row and returns it as stored.
func (c *Client) Insert(ctx context.Context, table string, record any) (json.RawMessage, error) {
	path, err := c.path(c.endpoints.Rows, table, "")
	if err != nil {
		return nil, err
	}
	resp, err := c.Send(ctx, Request{Method: http.MethodPost, Path: path, Body: record})
	if err != nil {
		return nil, err
	}
	return row(resp.Data), nil
}

// Update applies patch to the row with the given id.
func (c *Client) Update(ctx context.Context, table, id string, patch any) (json.RawMessage, error) {
	path, err := c.path(c.endpoints.Row, table, id)
	if err != nil {
		return nil, err
	}
	resp, err := c.Send(ctx, Request{Method: http.MethodPut, Path: path, Body: patch})
	if err != nil {
		return nil, err
	}
	return row(resp.Data), nil
}

func (c *Client) Delete(ctx context.Context, table, id string) error {
	path, err := c.path(c.endpoints.Row, table, id)
	if err != nil {
		return err
	}
	_, err = c.Send(ctx, Request{Method: http.MethodDelete, Path: path})
	return err
}

// Version returns the backend version, or "unknown" when the server does not
// report one.
func (c *Client) Version(ctx context.Context) (string, error) {
	resp, err := c.Send(ctx, Request{Method: http.MethodGet, Path: c.endpoints.Version})
	if err != nil {
		return "", err
	}
	var out struct {
		Version string `json:"version"`
	}
	if err := resp.Decode(&out); err != nil || out.Version == "" {
		return "unknown", nil
	}
	return out.Version, nil
}

func (c *Client) path(template, table, id string) (string, error) {
	if !query.ValidField(table) {
		return "", rberrors.Invalid(table, "", "table name must contain only letters, digits and underscores")
	}
	p := strings.ReplaceAll(template, "{table}", table)
	if strings.Contains(p, "{id}") {
		if id == "" {
			return "", rberrors.Invalid("id", "", "row id must not be empty")
		}
		p = strings.ReplaceAll(p, "{id}", url.PathEscape(id))
	}
	return p, nil
}

// rows accepts a bare array or an envelope with "data" or "rows".
func rows(data json.RawMessage) ([]json.RawMessage, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var env struct {
		Data []json.RawMessage `json:"data"`
		Rows []json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, rberrors.Wrap(rberrors.Server, "unexpected response body", err)
	}
	if env.Data != nil {
		return env.Data, nil
	}
	return env.Rows, nil
}

// row unwraps {"data": {...}} when present.
func row(data json.RawMessage) json.RawMessage {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err == nil && len(env.Data) > 0 {
		return env.Data
	}
	return data
}
