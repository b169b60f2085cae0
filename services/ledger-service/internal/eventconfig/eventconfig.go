// Package eventconfig stores, per tenant, which business event types are captured.
// A type with no stored setting is not captured.
package eventconfig

import (
	"context"
	"fmt"
	"sync"

	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/businessevent"
)

type Checker interface {
	IsEnabled(ctx context.Context, tenantID, eventType string) (bool, error)
}

// Store is a Checker that can also be listed and changed.
type Store interface {
	Checker
	List(ctx context.Context, tenantID string) (map[string]bool, error)
	Set(ctx context.Context, tenantID string, changes map[string]bool) error
}

// UnknownTypeError rejects changes for event types the catalog does not declare.
type UnknownTypeError struct {
	EventType string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown external event type %q", e.EventType)
}

func validate(catalog *businessevent.Catalog, changes map[string]bool) error {
	for t := range changes {
		if !catalog.Has(t) {
			return &UnknownTypeError{EventType: t}
		}
	}
	return nil
}

// listFrom expands stored settings to every catalog type.
func listFrom(catalog *businessevent.Catalog, stored map[string]bool) map[string]bool {
	out := make(map[string]bool, len(stored))
	for _, e := range catalog.Entries() {
		out[e.Type] = stored[e.Type]
	}
	return out
}

type Memory struct {
	catalog *businessevent.Catalog
	mu      sync.RWMutex
	enabled map[string]map[string]bool
}

func NewMemory(catalog *businessevent.Catalog) *Memory {
	if catalog == nil {
		catalog = businessevent.DefaultCatalog()
	}
	return &Memory{catalog: catalog, enabled: make(map[string]map[string]bool)}
}

func (m *Memory) IsEnabled(_ context.Context, tenantID, eventType string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled[tenantID][eventType], nil
}

func (m *Memory) List(_ context.Context, tenantID string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return listFrom(m.catalog, m.enabled[tenantID]), nil
}

func (m *Memory) Set(_ context.Context, tenantID string, changes map[string]bool) error {
	if err := validate(m.catalog, changes); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.enabled[tenantID]
	if t == nil {
		t = make(map[string]bool)
		m.enabled[tenantID] = t
	}
	for k, v := range changes {
		t[k] = v
	}
	return nil
}

// Seed stores the catalog defaults for types the tenant has no setting for yet.
func (m *Memory) Seed(_ context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.enabled[tenantID]
	if t == nil {
		t = make(map[string]bool)
		m.enabled[tenantID] = t
	}
	for _, e := range m.catalog.Entries() {
		if _, ok := t[e.Type]; !ok {
			t[e.Type] = e.Enabled
		}
	}
	return nil
}
