// Package match maps sender addresses to known retailers. Matching is for
// labeling only; a miss never gates processing.
package match

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/ordertrail/internal/model"
	"github.com/Veraticus/ordertrail/internal/service"
)

// defaultCacheTTL bounds how stale the domain table may get before the next
// lookup reloads it.
const defaultCacheTTL = 15 * time.Minute

// Matcher resolves sender domains against a cached retailer table. The cache
// is read-through with an explicit Refresh hook for manual invalidation.
type Matcher struct {
	storage  service.Storage
	logger   *slog.Logger
	byDomain map[string]model.Retailer
	loadedAt time.Time
	ttl      time.Duration
	mu       sync.RWMutex
}

// New creates a matcher backed by the given storage.
func New(storage service.Storage, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		storage:  storage,
		logger:   logger,
		byDomain: make(map[string]model.Retailer),
		ttl:      defaultCacheTTL,
	}
}

// Match resolves a sender address to a retailer. Forwarded messages retry
// against the original pre-forward sender when the direct sender has no
// match. Returns nil when nothing matches; callers tolerate unlabeled orders.
func (m *Matcher) Match(ctx context.Context, sender, originalSender string) *model.Retailer {
	if err := m.ensureLoaded(ctx); err != nil {
		m.logger.Warn("retailer table unavailable, leaving order unlabeled", "error", err)
		return nil
	}

	if r := m.matchAddress(sender); r != nil {
		return r
	}
	if originalSender != "" {
		return m.matchAddress(originalSender)
	}
	return nil
}

// Refresh drops the cached table so the next lookup reloads it.
func (m *Matcher) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadedAt = time.Time{}
}

// Reload drops the cached table and loads it immediately, returning the
// number of domains now cached.
func (m *Matcher) Reload(ctx context.Context) (int, error) {
	m.Refresh()
	if err := m.ensureLoaded(ctx); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byDomain), nil
}

func (m *Matcher) matchAddress(address string) *model.Retailer {
	domain := domainOf(address)
	if domain == "" {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	// Exact domain first, then suffix match so orders@mail.example.com still
	// resolves to example.com.
	if r, ok := m.byDomain[domain]; ok {
		matched := r
		return &matched
	}
	for known, r := range m.byDomain {
		if strings.HasSuffix(domain, "."+known) {
			matched := r
			return &matched
		}
	}
	return nil
}

func (m *Matcher) ensureLoaded(ctx context.Context) error {
	m.mu.RLock()
	fresh := !m.loadedAt.IsZero() && time.Since(m.loadedAt) < m.ttl
	m.mu.RUnlock()
	if fresh {
		return nil
	}

	retailers, err := m.storage.GetRetailers(ctx)
	if err != nil {
		return err
	}

	byDomain := make(map[string]model.Retailer, len(retailers))
	for _, r := range retailers {
		for _, d := range r.Domains {
			byDomain[strings.ToLower(d)] = r
		}
	}

	m.mu.Lock()
	m.byDomain = byDomain
	m.loadedAt = time.Now()
	m.mu.Unlock()

	m.logger.Debug("retailer table loaded", "retailers", len(retailers), "domains", len(byDomain))
	return nil
}

// domainOf extracts the lowercased domain after the @ of an email address.
func domainOf(address string) string {
	address = strings.TrimSpace(address)
	// Tolerate "Name <user@example.com>" forms.
	if i := strings.LastIndex(address, "<"); i >= 0 {
		address = strings.TrimSuffix(address[i+1:], ">")
	}
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}
