package dap

import (
	"errors"
	"os"
	"path/filepath"
)

const (
	// MainName is the distinguished dap representing the platform's own
	// landing UI. It has no catch-all scope and is exempt from the public
	// listing and toggle surface.
	MainName = "dapla"

	// SettingsFileName is the per-dap settings document inside the dap root.
	SettingsFileName = "settings.yaml"

	// StaticDirName holds a dap's static web assets.
	StaticDirName = "static"

	// IndexFileName is the entry document inside the static directory.
	IndexFileName = "index.html"

	moduleFileSuffix = "_server.js"
)

// Dap is one hosted sub-application: a stable name, a filesystem root and a
// settings document. Everything else (URIs, asset paths, the module file) is
// derived. Name and root are immutable after construction.
type Dap struct {
	name     string
	rootDir  string
	settings Settings
}

// New constructs a dap rooted at rootDir, reading its settings file. A
// missing file yields defaults; a malformed file is returned as a
// SettingsError so discovery can skip the dap. The main dap never reads a
// settings file and is always enabled.
func New(name, rootDir string) (*Dap, error) {
	d := &Dap{name: name, rootDir: rootDir}
	if d.IsMain() {
		d.settings.Application.Enabled = true
		d.settings.Application.Title = "Dapla"
		return d, nil
	}

	settings, err := LoadSettings(d.SettingsPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	d.settings = settings
	return d, nil
}

// NewMain constructs the main dap rooted under dapsRoot.
func NewMain(dapsRoot string) *Dap {
	d, _ := New(MainName, filepath.Join(dapsRoot, MainName))
	return d
}

func (d *Dap) Name() string {
	return d.name
}

func (d *Dap) RootDir() string {
	return d.rootDir
}

func (d *Dap) Settings() Settings {
	return d.settings
}

// IsMain reports whether this is the distinguished main dap.
func (d *Dap) IsMain() bool {
	return d.name == MainName
}

func (d *Dap) Enabled() bool {
	return d.settings.Application.Enabled
}

func (d *Dap) SetEnabled(enabled bool) {
	d.settings.Application.Enabled = enabled
}

// SwitchEnabled flips the enabled flag without persisting.
func (d *Dap) SwitchEnabled() {
	d.SetEnabled(!d.Enabled())
}

func (d *Dap) Title() string {
	return d.settings.Application.Title
}

func (d *Dap) RequiredPermissions() []Permission {
	return d.settings.Permissions.Required
}

func (d *Dap) AllowedPermissions() []Permission {
	return d.settings.Permissions.Allowed
}

// IsAllowedPermission reports whether the host grants the given capability.
func (d *Dap) IsAllowedPermission(perm Permission) bool {
	return NewPermissionSet(d.settings.Permissions.Allowed...).Contains(perm)
}

// RootURI is the dap's URL namespace: /{name}.
func (d *Dap) RootURI() string {
	return "/" + d.name
}

// StaticURI is the URL scope for the dap's static assets.
func (d *Dap) StaticURI() string {
	return d.RootURI() + "/" + StaticDirName
}

// URI joins tail onto the dap's root URI.
func (d *Dap) URI(tail string) string {
	return d.RootURI() + "/" + tail
}

// SettingsPath is the location of the dap's settings document.
func (d *Dap) SettingsPath() string {
	return filepath.Join(d.rootDir, SettingsFileName)
}

// StaticDir is the directory of the dap's static assets.
func (d *Dap) StaticDir() string {
	return filepath.Join(d.rootDir, StaticDirName)
}

// IndexFile is the dap's entry document.
func (d *Dap) IndexFile() string {
	return filepath.Join(d.StaticDir(), IndexFileName)
}

// ModuleFile is the compiled server module for this dap.
func (d *Dap) ModuleFile() string {
	return filepath.Join(d.rootDir, d.name+moduleFileSuffix)
}

// HasModule reports whether a server module ships with the dap. Static-only
// daps are valid and never reach the loaded state.
func (d *Dap) HasModule() bool {
	info, err := os.Stat(d.ModuleFile())
	return err == nil && !info.IsDir()
}

// ReloadSettings re-reads the settings document from disk, keeping the
// current settings on a missing file.
func (d *Dap) ReloadSettings() error {
	settings, err := LoadSettings(d.SettingsPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	d.settings = settings
	return nil
}

// SaveSettings persists the current settings document.
func (d *Dap) SaveSettings() error {
	return SaveSettings(d.SettingsPath(), d.settings)
}

// UpdateQuery describes a requested settings mutation. Absent fields leave
// the current value untouched.
type UpdateQuery struct {
	Enabled *bool `json:"enabled,omitempty"`
}

// Updated reports which fields an update actually changed.
type Updated struct {
	Enabled *bool `json:"enabled,omitempty"`
}

// Changed reports whether any field was modified.
func (u Updated) Changed() bool {
	return u.Enabled != nil
}

// Update applies the query, persisting settings on every effective change
// before returning. A request matching the current state is a no-op and
// performs no disk write. When persistence fails the in-memory flag is
// rolled back so memory and disk never diverge.
func (d *Dap) Update(query UpdateQuery) (Updated, error) {
	var updated Updated
	if query.Enabled != nil && *query.Enabled != d.Enabled() {
		previous := d.Enabled()
		d.SetEnabled(*query.Enabled)
		if err := d.SaveSettings(); err != nil {
			d.SetEnabled(previous)
			return Updated{}, err
		}
		updated.Enabled = query.Enabled
	}
	return updated, nil
}
