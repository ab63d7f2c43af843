// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package client is the one-shot REST side of the rowbase API. Every request
// carries the API key header; queries travel in the canonical encoding from
// package query and are never re-encoded on the way out.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pterm/pterm"

	rberrors "rowbase/cli/pkg/errors"
	"rowbase/cli/pkg/query"
)

// APIKeyHeader carries the project API key on every request.
const APIKeyHeader = "X-API-Key"

const maxErrorBody = 64 << 10

// Endpoints holds REST path templates. "{table}" and "{id}" are substituted.
type Endpoints struct {
	Rows    string `json:"rows"`
	Row     string `json:"row"`
	Search  string `json:"search"`
	Version string `json:"version"`
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		Rows:    "/api/tables/{table}/rows",
		Row:     "/api/tables/{table}/rows/{id}",
		Search:  "/api/tables/{table}/search",
		Version: "/api/version",
	}
}

type Options struct {
	BaseURL   string
	APIKey    string
	Endpoints Endpoints
	// Timeout applies when HTTPClient is nil. Defaults to 10s.
	Timeout    time.Duration
	HTTPClient *http.Client
	UserAgent  string
	Logger     *pterm.Logger
}

// Client sends requests to one rowbase project.
type Client struct {
	baseURL   string
	apiKey    string
	endpoints Endpoints
	http      *http.Client
	userAgent string
	log       *pterm.Logger
}

func New(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, rberrors.Invalid("", "", fmt.Sprintf("base url %q must be an absolute http(s) url", opts.BaseURL))
	}

	c := &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		apiKey:    opts.APIKey,
		endpoints: opts.Endpoints,
		http:      opts.HTTPClient,
		userAgent: opts.UserAgent,
		log:       opts.Logger,
	}
	if c.endpoints == (Endpoints{}) {
		c.endpoints = DefaultEndpoints()
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.userAgent == "" {
		c.userAgent = "rowbase-go"
	}
	if c.log == nil {
		c.log = pterm.DefaultLogger.WithLevel(pterm.LogLevelDisabled)
	}
	return c, nil
}

// Request is one REST call. Query is appended verbatim; Params follow it.
// A non-nil Body is sent as JSON; []byte and json.RawMessage go as-is.
type Request struct {
	Method string
	Path   string
	Query  query.Encoded
	Params []query.Param
	Body   any
	Header http.Header
}

// Response is a 2xx reply.
type Response struct {
	Status int
	Header http.Header
	Data   json.RawMessage
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// Send performs req. Network failures are Transport errors; non-2xx replies
// are Server errors carrying the status and the server's message.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	target := c.baseURL + req.Path
	if raw := rawQuery(req); raw != "" {
		target += "?" + raw
	}

	var body io.Reader
	switch b := req.Body.(type) {
	case nil:
	case []byte:
		body = bytes.NewReader(b)
	case json.RawMessage:
		body = bytes.NewReader(b)
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, rberrors.Wrap(rberrors.Validation, "encode request body", err)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, rberrors.Wrap(rberrors.Validation, "build request", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	c.setStandardHeaders(httpReq)
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Debug("http request failed", c.log.Args("method", req.Method, "path", req.Path, "error", err))
		return nil, rberrors.Wrap(rberrors.Transport, fmt.Sprintf("%s %s", req.Method, req.Path), err)
	}
	defer resp.Body.Close()

	c.log.Debug("http request", c.log.Args(
		"method", req.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, rberrors.ServerError(resp.StatusCode, serverMessage(resp.StatusCode, b))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, rberrors.Wrap(rberrors.Transport, "read response", err)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Data: data}, nil
}

func (c *Client) setStandardHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}
}

func rawQuery(req Request) string {
	raw := req.Query.RawQuery()
	for _, p := range req.Params {
		if raw != "" {
			raw += "&"
		}
		raw += url.QueryEscape(p.Key) + "=" + url.QueryEscape(p.Value)
	}
	return raw
}

// serverMessage pulls a human-readable message out of an error body. The
// server sends {"message": "..."}; {"error": "..."} and
// {"error": {"message": "..."}} are accepted as well.
func serverMessage(status int, body []byte) string {
	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		var s string
		if json.Unmarshal(payload.Error, &s) == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && !strings.HasPrefix(text, "{") {
		return text
	}
	return http.StatusText(status)
}
