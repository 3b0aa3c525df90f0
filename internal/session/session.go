// Package session exposes the current server session to the offline core.
// The token and base URL are owned by the login flow elsewhere; this core
// only ever reads them.
package session

import "sync"

// Provider exposes the current bearer token and server base URL.
// Token returns the empty string when no session exists.
type Provider interface {
	Token() string
	BaseURL() string
}

// Static is a Provider backed by fixed values, used by the composition
// root and by tests.
type Static struct {
	token   string
	baseURL string
}

// NewStatic creates a Static provider
func NewStatic(baseURL, token string) *Static {
	return &Static{token: token, baseURL: baseURL}
}

// Token returns the bearer token
func (s *Static) Token() string { return s.token }

// BaseURL returns the server base URL
func (s *Static) BaseURL() string { return s.baseURL }

// Mutable is a Provider whose values can be swapped at runtime, e.g. when
// the user logs in or switches servers. Safe for concurrent use.
type Mutable struct {
	mu      sync.RWMutex
	token   string
	baseURL string
}

// NewMutable creates a Mutable provider
func NewMutable(baseURL, token string) *Mutable {
	return &Mutable{token: token, baseURL: baseURL}
}

// Token returns the current bearer token
func (m *Mutable) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// BaseURL returns the current server base URL
func (m *Mutable) BaseURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.baseURL
}

// Update replaces the session values
func (m *Mutable) Update(baseURL, token string) {
	m.mu.Lock()
	m.baseURL = baseURL
	m.token = token
	m.mu.Unlock()
}
