package mailbox

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"
)

// IdentityKey derives the registry key for a credential. The refresh token
// is preferred because it survives access-token refreshes.
func IdentityKey(accessToken, refreshToken string) string {
	src := refreshToken
	if src == "" {
		src = accessToken
	}
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:])
}

// Registry hands out one Service per identity so users never share caches.
type Registry struct {
	dial   Dialer
	opts   []Option
	clock  Clock
	logger *slog.Logger

	mu       sync.Mutex
	services map[string]*Service
}

// NewRegistry creates a registry whose Services are built with dial and
// opts.
func NewRegistry(dial Dialer, opts ...Option) *Registry {
	o := buildOptions(opts)
	return &Registry{
		dial:     dial,
		opts:     opts,
		clock:    o.clock,
		logger:   o.logger,
		services: make(map[string]*Service),
	}
}

// Get returns the Service for key, creating it on first use.
func (r *Registry) Get(key string) *Service {
	r.mu.Lock()
	defer r.mu.Unlock()
	svc, ok := r.services[key]
	if !ok {
		svc = New(r.dial, r.opts...)
		r.services[key] = svc
		r.logger.Debug("mailbox created", "identity", key[:min(12, len(key))])
	}
	return svc
}

// Forget drops the Service for key, e.g. on logout.
func (r *Registry) Forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services, key)
}

// Reap drops Services that have not been used for longer than idle and
// returns how many were removed.
func (r *Registry) Reap(idle time.Duration) int {
	cutoff := r.clock.Now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, svc := range r.services {
		if svc.LastUsed().Before(cutoff) {
			delete(r.services, key)
			n++
		}
	}
	if n > 0 {
		r.logger.Info("reaped idle mailboxes", "count", n, "remaining", len(r.services))
	}
	return n
}

// Len returns the number of live Services.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.services)
}
