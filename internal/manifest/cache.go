// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package manifest

import "sync"

var (
	// Per-process cache keyed by API URL. Cleared when the CLI exits.
	cache     = map[string]*Manifest{}
	cacheLock sync.RWMutex
)

// GetCached returns the cached manifest for apiURL, or nil.
func GetCached(apiURL string) *Manifest {
	cacheLock.RLock()
	defer cacheLock.RUnlock()
	return cache[apiURL]
}

// SetCached stores m for apiURL.
func SetCached(apiURL string, m *Manifest) {
	cacheLock.Lock()
	defer cacheLock.Unlock()
	cache[apiURL] = m
}

// ClearCache drops every cached manifest (primarily for testing).
func ClearCache() {
	cacheLock.Lock()
	defer cacheLock.Unlock()
	cache = map[string]*Manifest{}
}
