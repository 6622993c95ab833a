package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrConsentUnavailable is returned by providers that cannot start a consent flow.
var ErrConsentUnavailable = errors.New("auth: no consent flow configured")

// Provider hands out the bearer token used for uploads. RequestToken starts
// an asynchronous acquisition and returns without waiting for it; the token
// shows up in Token once the flow completes.
type Provider interface {
	Token() (string, bool)
	RequestToken(ctx context.Context) error
	Invalidate()
}

// StaticProvider serves a pre-issued token, as used by the command line.
type StaticProvider struct {
	mu    sync.RWMutex
	token string
}

func NewStaticProvider(token string) *StaticProvider {
	return &StaticProvider{token: strings.TrimSpace(token)}
}

func (p *StaticProvider) Token() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token, p.token != ""
}

func (p *StaticProvider) RequestToken(context.Context) error {
	return ErrConsentUnavailable
}

// Receive replaces the held token.
func (p *StaticProvider) Receive(token string) {
	p.mu.Lock()
	p.token = strings.TrimSpace(token)
	p.mu.Unlock()
}

func (p *StaticProvider) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()
}

var _ Provider = (*StaticProvider)(nil)
