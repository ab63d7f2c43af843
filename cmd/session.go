// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"net/http"

	"github.com/pterm/pterm"

	"rowbase/cli/internal/auth"
	"rowbase/cli/internal/config"
	"rowbase/cli/internal/logging"
	"rowbase/cli/internal/manifest"
	"rowbase/cli/pkg/client"
)

// session bundles what most commands need: settings, a logger, the API key
// and a REST client pointed at the discovered endpoints.
type session struct {
	cfg      config.Config
	log      *pterm.Logger
	key      auth.Credential
	manifest *manifest.Manifest
	http     *http.Client
	client   *client.Client
}

func loadSettings() (config.Config, *pterm.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	log, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}

// newSession loads config and resolves endpoints. With needKey set a
// missing API key is an error that tells the user how to log in.
func newSession(ctx context.Context, needKey bool) (*session, error) {
	cfg, log, err := loadSettings()
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, log: log}

	s.key, err = auth.APIKey()
	if err != nil && needKey {
		return nil, err
	}

	s.http = &http.Client{Timeout: cfg.HTTPTimeout}
	s.manifest, err = manifest.Resolve(ctx, s.http, cfg.APIURL)
	if err != nil {
		log.Debug("endpoint discovery failed, using defaults", log.Args("api_url", cfg.APIURL, "error", logging.Mask(err.Error())))
		s.manifest = manifest.Fallback(cfg.APIURL)
	}

	s.client, err = s.clientWithKey(s.key.Value)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *session) clientWithKey(key string) (*client.Client, error) {
	return client.New(client.Options{
		BaseURL:    s.cfg.APIURL,
		APIKey:     key,
		Endpoints:  s.manifest.Endpoints(),
		HTTPClient: s.http,
		UserAgent:  "rowbase-cli/" + Version,
		Logger:     s.log,
	})
}

// realtimeURL prefers the configured URL over the discovered one.
func (s *session) realtimeURL() string {
	if s.cfg.RealtimeURL != "" {
		return s.cfg.RealtimeURL
	}
	return s.manifest.RealtimeURL
}
