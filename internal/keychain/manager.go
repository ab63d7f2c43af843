// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain stores rowbase secrets in the OS credential store.
//
// Two secrets are kept: the project API key and the Postgres DSN of the
// change-mirror sink. On macOS the native `security` tool is preferred, with
// 99designs/keyring as the fallback there and the only backend elsewhere
// (Windows Credential Manager, Secret Service, KWallet or pass).
package keychain

import (
	"errors"
	"runtime"
	"strings"
	"sync"

	"github.com/99designs/keyring"
)

var (
	globalManager *Manager
	mu            sync.Mutex
)

// ErrNotFound is returned when a secret has never been stored.
var ErrNotFound = errors.New("secret not found in keychain")

// ServiceName identifies our keychain/credential store namespace.
const ServiceName = "rowbase"

// Keys used for storing secrets in the OS keychain.
const (
	KeyAPIKey  = "api_key"
	KeySinkDSN = "sink_dsn"
)

// backend is the minimal store the Manager needs.
type backend interface {
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
}

// Manager provides thread-safe access to stored secrets.
type Manager struct {
	mu    sync.RWMutex
	store backend
}

// NewManager opens the platform credential store.
func NewManager() (*Manager, error) {
	if runtime.GOOS == "darwin" {
		if b, err := newSecurityBackend(); err == nil {
			return &Manager{store: b}, nil
		}
	}
	ring, err := openRing()
	if err != nil {
		return nil, err
	}
	return &Manager{store: ringBackend{ring}}, nil
}

// newWithBackend is used by tests to run against an in-memory keyring.
func newWithBackend(b backend) *Manager {
	return &Manager{store: b}
}

// GetManager returns the process-wide Manager, opening it on first use. A
// failed open is retried on the next call.
func GetManager() (*Manager, error) {
	mu.Lock()
	defer mu.Unlock()
	if globalManager != nil {
		return globalManager, nil
	}
	m, err := NewManager()
	if err != nil {
		return nil, err
	}
	globalManager = m
	return m, nil
}

func openRing() (keyring.Keyring, error) {
	var allowed []keyring.BackendType
	switch runtime.GOOS {
	case "darwin":
		allowed = []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		allowed = []keyring.BackendType{keyring.WinCredBackend}
	default:
		allowed = []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.PassBackend}
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:     ServiceName,
		AllowedBackends: allowed,
		PassPrefix:      ServiceName,
		WinCredPrefix:   ServiceName,
	})
	if err != nil {
		if runtime.GOOS == "darwin" {
			return nil, errors.New("macOS Keychain unavailable; install 'pass' (brew install pass gnupg) or set ROWBASE_API_KEY")
		}
		return nil, errors.New("no OS credential store available; set ROWBASE_API_KEY instead")
	}
	return ring, nil
}

// ringBackend adapts a keyring.Keyring.
type ringBackend struct {
	ring keyring.Keyring
}

func (r ringBackend) Set(key, value string) error {
	return r.ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: ServiceName + " " + key})
}

func (r ringBackend) Get(key string) (string, error) {
	it, err := r.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(it.Data), nil
}

func (r ringBackend) Delete(key string) error {
	err := r.ring.Remove(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (m *Manager) save(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Set(key, value)
}

func (m *Manager) load(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, err := m.store.Get(key)
	if err != nil {
		return "", err
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Manager) remove(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		_ = m.store.Delete(k)
	}
}

func (m *Manager) SaveAPIKey(key string) error  { return m.save(KeyAPIKey, key) }
func (m *Manager) LoadAPIKey() (string, error)  { return m.load(KeyAPIKey) }
func (m *Manager) SaveSinkDSN(dsn string) error { return m.save(KeySinkDSN, dsn) }
func (m *Manager) LoadSinkDSN() (string, error) { return m.load(KeySinkDSN) }

// ClearAPIKey removes the API key.
func (m *Manager) ClearAPIKey() { m.remove(KeyAPIKey) }

// ClearSink removes the sink DSN.
func (m *Manager) ClearSink() { m.remove(KeySinkDSN) }

// ClearAll removes every rowbase secret.
func (m *Manager) ClearAll() { m.remove(KeyAPIKey, KeySinkDSN) }
