package dap

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dapla-platform/dapla/internal/eventbus"
)

// EventRecorder persists lifecycle events for later inspection. A nil
// recorder disables history.
type EventRecorder interface {
	RecordDapEvent(ctx context.Context, name, status, instanceID, message string) error
}

// ManagerOptions configures a registry manager.
type ManagerOptions struct {
	// Root is the directory holding one subdirectory per dap.
	Root string
	// Engine instantiates server modules. Defaults to the goja engine.
	Engine Engine
	// Bus receives lifecycle events. Optional.
	Bus *eventbus.Bus
	// Recorder persists lifecycle events. Optional.
	Recorder EventRecorder
}

// Manager owns the registry: the mapping from dap name to entity plus any
// running module instances. It is not safe for concurrent use on its own —
// all access is serialized through Service, which holds the registry lock
// for the duration of every operation.
type Manager struct {
	root     string
	engine   Engine
	bus      *eventbus.Bus
	recorder EventRecorder

	daps      map[string]*Dap
	instances map[string]Instance
}

// NewManager constructs a registry manager for the given daps root.
func NewManager(opts ManagerOptions) *Manager {
	m := &Manager{
		root:      opts.Root,
		engine:    opts.Engine,
		bus:       opts.Bus,
		recorder:  opts.Recorder,
		daps:      make(map[string]*Dap),
		instances: make(map[string]Instance),
	}
	if m.engine == nil {
		m.engine = NewGojaEngine()
	}
	return m
}

// Root returns the daps root directory.
func (m *Manager) Root() string {
	return m.root
}

// LoadDaps scans the root directory and rebuilds the registry. One dap per
// immediate subdirectory; files, hidden entries and names with a leading
// underscore are skipped. A dap whose settings cannot be read is logged and
// skipped — one broken dap must not block the platform. Daps that are
// enabled and ship a module are instantiated eagerly; instantiation failures
// are logged, the dap stays registered but unloaded.
func (m *Manager) LoadDaps(ctx context.Context) error {
	entries, err := os.ReadDir(m.root)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || isReservedName(name) {
			continue
		}

		d, err := New(name, m.dapDir(name))
		if err != nil {
			log.Printf("[DapsManager] skipping dap %q: %v", name, err)
			m.publishDiscovery(ctx, name, true, err.Error())
			continue
		}
		if !d.IsMain() && !d.Settings().RequiredSubsetOfAllowed() {
			log.Printf("[DapsManager] dap %q requires permissions it is not allowed", name)
		}
		m.daps[name] = d
		m.publishDiscovery(ctx, name, false, "")

		if !d.IsMain() && d.Enabled() {
			if err := m.Load(ctx, name); err != nil {
				log.Printf("[DapsManager] dap %q enabled but not loaded: %v", name, err)
			}
		}
	}

	// The main dap is part of the registry even when its directory is
	// missing on disk.
	if _, ok := m.daps[MainName]; !ok {
		m.daps[MainName] = NewMain(m.root)
	}
	return nil
}

// Dap returns the registered dap for name.
func (m *Manager) Dap(name string) (*Dap, error) {
	d, ok := m.daps[name]
	if !ok {
		return nil, NotFoundError{Name: name}
	}
	return d, nil
}

// Daps returns a registry snapshot in unspecified order. Consumers that need
// determinism sort explicitly.
func (m *Manager) Daps() []*Dap {
	out := make([]*Dap, 0, len(m.daps))
	for _, d := range m.daps {
		out = append(out, d)
	}
	return out
}

// Instance returns the running module instance for name, if any.
func (m *Manager) Instance(name string) (Instance, bool) {
	inst, ok := m.instances[name]
	return inst, ok
}

// Loaded reports whether a module instance is held for name.
func (m *Manager) Loaded(name string) bool {
	_, ok := m.instances[name]
	return ok
}

// Load reads the dap's module and instantiates it through the engine. Valid
// only for enabled non-main daps; a dap without a module file stays in the
// unloaded state without error. Any previously held instance is dropped
// first so a reload never reuses a stale instance. Unreadable bytes or an
// engine rejection is a ModuleError and leaves the dap unloaded.
func (m *Manager) Load(ctx context.Context, name string) error {
	d, err := m.Dap(name)
	if err != nil {
		return err
	}
	if d.IsMain() {
		return nil
	}
	if !d.Enabled() {
		return ModuleError{Name: name, Err: ErrDapDisabled}
	}
	if !d.HasModule() {
		return nil
	}

	m.Unload(ctx, name)

	source, err := os.ReadFile(d.ModuleFile())
	if err != nil {
		modErr := ModuleError{Name: name, Err: err}
		m.publishStatus(ctx, name, eventbus.DapStatusError, "", modErr.Error())
		return modErr
	}

	imports := make(map[string]any, len(d.AllowedPermissions()))
	for _, perm := range Permissions() {
		if d.IsAllowedPermission(perm) {
			imports[perm.String()] = true
		}
	}

	inst, err := m.engine.Instantiate(ctx, name, source, imports)
	if err != nil {
		modErr := ModuleError{Name: name, Err: err}
		m.publishStatus(ctx, name, eventbus.DapStatusError, "", modErr.Error())
		return modErr
	}

	m.instances[name] = inst
	m.publishStatus(ctx, name, eventbus.DapStatusLoaded, inst.ID(), "")
	return nil
}

// Unload drops any held module instance for name. Idempotent: unloading a
// dap without an instance is a no-op.
func (m *Manager) Unload(ctx context.Context, name string) {
	inst, ok := m.instances[name]
	if !ok {
		return
	}
	if err := inst.Close(); err != nil {
		log.Printf("[DapsManager] close instance for %q: %v", name, err)
	}
	delete(m.instances, name)
	m.publishStatus(ctx, name, eventbus.DapStatusUnloaded, inst.ID(), "")
}

// UnloadAll drops every held instance; used on shutdown.
func (m *Manager) UnloadAll(ctx context.Context) {
	for name := range m.instances {
		m.Unload(ctx, name)
	}
}

// Update applies an administrative mutation to the named dap. On an
// effective enabled transition the settings are persisted first, then the
// lifecycle follows: true loads the module, false unloads it. A failed
// persistence means no lifecycle transition happens. The main dap is exempt
// from this surface.
func (m *Manager) Update(ctx context.Context, name string, query UpdateQuery) (Updated, error) {
	d, err := m.Dap(name)
	if err != nil {
		return Updated{}, err
	}
	if d.IsMain() {
		return Updated{}, RequestError{Reason: ErrMainDapImmutable.Error()}
	}

	updated, err := d.Update(query)
	if err != nil {
		return Updated{}, err
	}

	if updated.Enabled != nil {
		if d.Enabled() {
			m.publishStatus(ctx, name, eventbus.DapStatusEnabled, "", "")
			if err := m.Load(ctx, name); err != nil {
				return updated, err
			}
		} else {
			m.publishStatus(ctx, name, eventbus.DapStatusDisabled, "", "")
			m.Unload(ctx, name)
		}
	}
	return updated, nil
}

func (m *Manager) dapDir(name string) string {
	return filepath.Join(m.root, name)
}

func (m *Manager) publishStatus(ctx context.Context, name string, status eventbus.DapStatus, instanceID, message string) {
	if m.recorder != nil {
		if err := m.recorder.RecordDapEvent(ctx, name, string(status), instanceID, message); err != nil {
			log.Printf("[DapsManager] record event for %q: %v", name, err)
		}
	}
	m.bus.Publish(ctx, eventbus.Envelope{
		Topic:  eventbus.TopicDapsStatus,
		Source: eventbus.SourceDapsManager,
		Payload: eventbus.DapStatusEvent{
			Name:       name,
			Status:     status,
			InstanceID: instanceID,
			Message:    message,
		},
	})
}

func (m *Manager) publishDiscovery(ctx context.Context, name string, skipped bool, reason string) {
	m.bus.Publish(ctx, eventbus.Envelope{
		Topic:  eventbus.TopicDapsDiscovery,
		Source: eventbus.SourceDapsManager,
		Payload: eventbus.DapDiscoveryEvent{
			Name:    name,
			Skipped: skipped,
			Reason:  reason,
		},
	})
}

// isReservedName filters directory entries that can never be dap names.
// Hidden and underscore-prefixed entries are scaffolding; a dap named after
// the static asset directory would collide with the main dap's /static/
// routes and crash route composition.
func isReservedName(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return true
	}
	return name == StaticDirName
}
