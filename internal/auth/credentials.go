// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package auth resolves the credentials the CLI runs with. An environment
// variable always wins over the keychain so CI jobs never touch the OS
// credential store.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"rowbase/cli/internal/keychain"
)

// Environment overrides.
const (
	EnvAPIKey  = "ROWBASE_API_KEY"
	EnvSinkDSN = "ROWBASE_SINK_DSN"
)

// Source says where a credential came from.
type Source string

const (
	SourceEnv      Source = "environment"
	SourceKeychain Source = "keychain"
)

var (
	ErrNoAPIKey  = errors.New("no API key configured; run 'rowbase login' or set " + EnvAPIKey)
	ErrNoSinkDSN = errors.New("no sink database configured; run 'rowbase sink connect' or set " + EnvSinkDSN)
)

type Credential struct {
	Value  string
	Source Source
}

// Store is the keychain subset auth reads from.
type Store interface {
	LoadAPIKey() (string, error)
	LoadSinkDSN() (string, error)
}

// Resolver looks credentials up in the environment, then in a Store.
type Resolver struct {
	Getenv func(string) string
	Open   func() (Store, error)
}

// Default reads the process environment and the OS keychain.
var Default = Resolver{
	Getenv: os.Getenv,
	Open: func() (Store, error) {
		m, err := keychain.GetManager()
		if err != nil {
			return nil, err
		}
		return m, nil
	},
}

func APIKey() (Credential, error)  { return Default.APIKey() }
func SinkDSN() (Credential, error) { return Default.SinkDSN() }

func (r Resolver) APIKey() (Credential, error) {
	return r.resolve(EnvAPIKey, Store.LoadAPIKey, ErrNoAPIKey)
}

func (r Resolver) SinkDSN() (Credential, error) {
	return r.resolve(EnvSinkDSN, Store.LoadSinkDSN, ErrNoSinkDSN)
}

func (r Resolver) resolve(env string, load func(Store) (string, error), missing error) (Credential, error) {
	if v := strings.TrimSpace(r.Getenv(env)); v != "" {
		return Credential{Value: v, Source: SourceEnv}, nil
	}
	s, err := r.Open()
	if err != nil {
		return Credential{}, fmt.Errorf("%w (%v)", missing, err)
	}
	v, err := load(s)
	if errors.Is(err, keychain.ErrNotFound) {
		return Credential{}, missing
	}
	if err != nil {
		return Credential{}, err
	}
	return Credential{Value: v, Source: SourceKeychain}, nil
}

// CheckAPIKey rejects keys that cannot be valid before any request is made.
func CheckAPIKey(key string) error {
	if key == "" {
		return errors.New("API key must not be empty")
	}
	if strings.IndexFunc(key, unicode.IsSpace) >= 0 {
		return errors.New("API key must not contain whitespace")
	}
	if len(key) < 16 {
		return errors.New("API key looks too short")
	}
	return nil
}
