// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package auth

import (
	"errors"
	"testing"

	"rowbase/cli/internal/keychain"
)

type memStore map[string]string

func (m memStore) get(k string) (string, error) {
	v, ok := m[k]
	if !ok {
		return "", keychain.ErrNotFound
	}
	return v, nil
}

func (m memStore) LoadAPIKey() (string, error)  { return m.get(keychain.KeyAPIKey) }
func (m memStore) LoadSinkDSN() (string, error) { return m.get(keychain.KeySinkDSN) }

func resolver(env map[string]string, store Store, openErr error) Resolver {
	return Resolver{
		Getenv: func(k string) string { return env[k] },
		Open: func() (Store, error) {
			if openErr != nil {
				return nil, openErr
			}
			return store, nil
		},
	}
}

func TestResolver_APIKey(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		store      memStore
		openErr    error
		wantValue  string
		wantSource Source
		wantErr    error
	}{
		{
			name:       "environment wins",
			env:        map[string]string{EnvAPIKey: " env-key "},
			store:      memStore{keychain.KeyAPIKey: "stored-key"},
			wantValue:  "env-key",
			wantSource: SourceEnv,
		},
		{
			name:       "keychain fallback",
			store:      memStore{keychain.KeyAPIKey: "stored-key"},
			wantValue:  "stored-key",
			wantSource: SourceKeychain,
		},
		{
			name:    "nothing configured",
			store:   memStore{},
			wantErr: ErrNoAPIKey,
		},
		{
			name:    "keychain unavailable",
			openErr: errors.New("no backend"),
			wantErr: ErrNoAPIKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver(tt.env, tt.store, tt.openErr).APIKey()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("APIKey() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("APIKey() error = %v", err)
			}
			if got.Value != tt.wantValue || got.Source != tt.wantSource {
				t.Errorf("APIKey() = %+v, want %q from %s", got, tt.wantValue, tt.wantSource)
			}
		})
	}
}

func TestResolver_SinkDSN(t *testing.T) {
	r := resolver(nil, memStore{keychain.KeySinkDSN: "postgres://localhost/db"}, nil)
	got, err := r.SinkDSN()
	if err != nil || got.Value != "postgres://localhost/db" {
		t.Fatalf("SinkDSN() = %+v, %v", got, err)
	}

	_, err = resolver(nil, memStore{}, nil).SinkDSN()
	if !errors.Is(err, ErrNoSinkDSN) {
		t.Errorf("SinkDSN() error = %v, want ErrNoSinkDSN", err)
	}
}

func TestCheckAPIKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"rb_live_0123456789abcdef", false},
		{"", true},
		{"short", true},
		{"rb_live_0123 456789abcdef", true},
	}
	for _, tt := range tests {
		if err := CheckAPIKey(tt.key); (err != nil) != tt.wantErr {
			t.Errorf("CheckAPIKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
		}
	}
}
