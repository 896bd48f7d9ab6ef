package dap

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InstantiateRecord captures metadata about a mock instantiation.
type InstantiateRecord struct {
	Name          string
	Source        []byte
	Imports       map[string]any
	InstantiateAt time.Time
}

// MockEngine implements Engine for tests, recording instantiations without
// running any module code.
type MockEngine struct {
	mu      sync.Mutex
	records []InstantiateRecord
	closes  map[string]int
	err     error
	nextID  int
}

// NewMockEngine constructs an engine stub optionally preconfigured with an
// error via SetError.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		closes: make(map[string]int),
		nextID: 1,
	}
}

// SetError forces subsequent Instantiate calls to fail with the provided error.
func (m *MockEngine) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Instantiate records the request and returns a controllable instance.
func (m *MockEngine) Instantiate(_ context.Context, name string, source []byte, imports map[string]any) (Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	record := InstantiateRecord{
		Name:          name,
		Source:        append([]byte(nil), source...),
		InstantiateAt: time.Now().UTC(),
	}
	if len(imports) > 0 {
		record.Imports = make(map[string]any, len(imports))
		for k, v := range imports {
			record.Imports[k] = v
		}
	}
	m.records = append(m.records, record)

	inst := &mockInstance{
		parent: m,
		name:   name,
		id:     fmt.Sprintf("mock-%d", m.nextID),
	}
	m.nextID++
	return inst, nil
}

// Records returns a copy of instantiation records for assertions.
func (m *MockEngine) Records() []InstantiateRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]InstantiateRecord, len(m.records))
	copy(out, m.records)
	return out
}

// CloseCount returns how many times Close was invoked for instances of name.
func (m *MockEngine) CloseCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes[name]
}

// Reset clears recorded instantiations and close counters.
func (m *MockEngine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	m.closes = make(map[string]int)
}

type mockInstance struct {
	parent *MockEngine
	name   string
	id     string
}

func (i *mockInstance) ID() string {
	return i.id
}

func (i *mockInstance) Close() error {
	i.parent.mu.Lock()
	i.parent.closes[i.name]++
	i.parent.mu.Unlock()
	return nil
}
