// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package manifest discovers where a rowbase project serves its REST paths
// and its realtime socket.
package manifest

import (
	"net/url"
	"strings"

	"rowbase/cli/pkg/client"
)

// Manifest is the endpoint document served at /api/endpoints.
type Manifest struct {
	Version     int              `json:"version"`
	RealtimeURL string           `json:"realtime_url"`
	HTTP        client.Endpoints `json:"http"`
}

// Endpoints returns the REST paths with defaults filled in for any the
// server left out.
func (m *Manifest) Endpoints() client.Endpoints {
	def := client.DefaultEndpoints()
	out := m.HTTP
	if out.Rows == "" {
		out.Rows = def.Rows
	}
	if out.Row == "" {
		out.Row = def.Row
	}
	if out.Search == "" {
		out.Search = def.Search
	}
	if out.Version == "" {
		out.Version = def.Version
	}
	return out
}

// Fallback is used when the server has no endpoint document. The realtime
// socket is then assumed to live at /realtime on the API host.
func Fallback(apiURL string) *Manifest {
	return &Manifest{
		RealtimeURL: defaultRealtimeURL(apiURL),
		HTTP:        client.DefaultEndpoints(),
	}
}

func defaultRealtimeURL(apiURL string) string {
	u, err := url.Parse(strings.TrimRight(apiURL, "/"))
	if err != nil || u.Host == "" {
		return ""
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/realtime"
	u.RawQuery = ""
	return u.String()
}
