// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	rberrors "rowbase/cli/pkg/errors"
)

// Path is where the endpoint document is served, relative to the API URL.
const Path = "/api/endpoints"

const maxManifestSize = 1 << 20

// fetch retrieves the manifest from apiURL. A 404 yields (nil, nil) so the
// caller can fall back to the built-in layout.
func fetch(ctx context.Context, hc *http.Client, apiURL string) (*Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(apiURL, "/")+Path, nil)
	if err != nil {
		return nil, rberrors.Wrap(rberrors.Validation, "build manifest request", err)
	}
	req.Header.Set("User-Agent", "rowbase-cli")
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, rberrors.Wrap(rberrors.Transport, "fetch manifest", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, rberrors.ServerError(resp.StatusCode, fmt.Sprintf("manifest request returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return nil, rberrors.Wrap(rberrors.Transport, "read manifest", err)
	}

	var m Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, rberrors.Wrap(rberrors.Server, "parse manifest JSON", err)
	}
	if m.Version == 0 {
		return nil, rberrors.New(rberrors.Server, "invalid manifest: missing version field")
	}
	if m.RealtimeURL == "" {
		m.RealtimeURL = defaultRealtimeURL(apiURL)
	}
	return &m, nil
}

// Resolve returns the endpoints for apiURL, using the process cache when
// possible. hc may be nil.
func Resolve(ctx context.Context, hc *http.Client, apiURL string) (*Manifest, error) {
	if cached := GetCached(apiURL); cached != nil {
		return cached, nil
	}
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}

	m, err := fetch(ctx, hc, apiURL)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = Fallback(apiURL)
	}
	SetCached(apiURL, m)
	return m, nil
}
