package dap

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDap(t *testing.T, root, name, settings string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Join(dir, StaticDirName), 0o755); err != nil {
		t.Fatalf("create dap dirs: %v", err)
	}
	if settings != "" {
		if err := os.WriteFile(filepath.Join(dir, SettingsFileName), []byte(settings), 0o644); err != nil {
			t.Fatalf("write settings: %v", err)
		}
	}
	return dir
}

func TestNewWithoutSettingsFileUsesDefaults(t *testing.T) {
	root := t.TempDir()
	dir := writeDap(t, root, "chat", "")

	d, err := New("chat", dir)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if d.Enabled() {
		t.Fatalf("expected dap to default to disabled")
	}
	if d.Title() != "" {
		t.Fatalf("expected empty title, got %q", d.Title())
	}
}

func TestNewSurfacesMalformedSettings(t *testing.T) {
	root := t.TempDir()
	dir := writeDap(t, root, "chat", "application: {enabled: [")

	if _, err := New("chat", dir); !IsSettingsError(err) {
		t.Fatalf("expected SettingsError, got %v", err)
	}
}

func TestDerivedPaths(t *testing.T) {
	d, err := New("todo", filepath.Join("/srv/daps", "todo"))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if got := d.RootURI(); got != "/todo" {
		t.Fatalf("RootURI = %q", got)
	}
	if got := d.StaticURI(); got != "/todo/static" {
		t.Fatalf("StaticURI = %q", got)
	}
	if got := d.URI("api"); got != "/todo/api" {
		t.Fatalf("URI = %q", got)
	}
	if got := d.StaticDir(); got != filepath.Join("/srv/daps", "todo", "static") {
		t.Fatalf("StaticDir = %q", got)
	}
	if got := d.IndexFile(); got != filepath.Join("/srv/daps", "todo", "static", "index.html") {
		t.Fatalf("IndexFile = %q", got)
	}
	if got := d.ModuleFile(); got != filepath.Join("/srv/daps", "todo", "todo_server.js") {
		t.Fatalf("ModuleFile = %q", got)
	}
}

func TestMainDapIsAlwaysEnabled(t *testing.T) {
	d := NewMain(t.TempDir())
	if !d.IsMain() {
		t.Fatalf("expected main dap")
	}
	if !d.Enabled() {
		t.Fatalf("expected main dap to be enabled")
	}
	if d.Name() != MainName {
		t.Fatalf("unexpected name %q", d.Name())
	}
}

func TestUpdateTogglesAndPersists(t *testing.T) {
	root := t.TempDir()
	dir := writeDap(t, root, "chat", "application:\n  enabled: false\n  title: Chat\n")

	d, err := New("chat", dir)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	enabled := true
	updated, err := d.Update(UpdateQuery{Enabled: &enabled})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Enabled == nil || !*updated.Enabled {
		t.Fatalf("expected enabled change to be reported, got %+v", updated)
	}

	reloaded, err := New("chat", dir)
	if err != nil {
		t.Fatalf("reload dap: %v", err)
	}
	if !reloaded.Enabled() {
		t.Fatalf("expected persisted enabled=true")
	}
	if reloaded.Title() != "Chat" {
		t.Fatalf("title must survive a toggle, got %q", reloaded.Title())
	}
}

func TestUpdateIsIdempotent(t *testing.T) {
	root := t.TempDir()
	dir := writeDap(t, root, "chat", "application:\n  enabled: true\n")

	d, err := New("chat", dir)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	settingsPath := d.SettingsPath()
	before, err := os.Stat(settingsPath)
	if err != nil {
		t.Fatalf("stat settings: %v", err)
	}

	enabled := true
	updated, err := d.Update(UpdateQuery{Enabled: &enabled})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Changed() {
		t.Fatalf("expected no-op update, got %+v", updated)
	}

	after, err := os.Stat(settingsPath)
	if err != nil {
		t.Fatalf("stat settings: %v", err)
	}
	if !after.ModTime().Equal(before.ModTime()) || after.Size() != before.Size() {
		t.Fatalf("no-op update must not rewrite the settings file")
	}
}

func TestUpdateRollsBackOnPersistFailure(t *testing.T) {
	root := t.TempDir()
	dir := writeDap(t, root, "chat", "application:\n  enabled: false\n")

	d, err := New("chat", dir)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	// Turn the settings path into a directory so the save must fail.
	if err := os.Remove(d.SettingsPath()); err != nil {
		t.Fatalf("remove settings: %v", err)
	}
	if err := os.Mkdir(d.SettingsPath(), 0o755); err != nil {
		t.Fatalf("block settings path: %v", err)
	}

	enabled := true
	if _, err := d.Update(UpdateQuery{Enabled: &enabled}); !IsSettingsError(err) {
		t.Fatalf("expected SettingsError, got %v", err)
	}
	if d.Enabled() {
		t.Fatalf("in-memory flag must roll back when persistence fails")
	}
}

func TestIsAllowedPermission(t *testing.T) {
	root := t.TempDir()
	dir := writeDap(t, root, "chat", "permissions:\n  allowed: [http, websocket]\n")

	d, err := New("chat", dir)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if !d.IsAllowedPermission(PermissionHTTP) {
		t.Fatalf("expected http to be allowed")
	}
	if d.IsAllowedPermission(PermissionFileWrite) {
		t.Fatalf("file-write must not be allowed")
	}
}

func TestHasModule(t *testing.T) {
	root := t.TempDir()
	dir := writeDap(t, root, "chat", "")

	d, err := New("chat", dir)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if d.HasModule() {
		t.Fatalf("expected no module")
	}

	if err := os.WriteFile(d.ModuleFile(), []byte("exports.ok = true;"), 0o644); err != nil {
		t.Fatalf("write module: %v", err)
	}
	if !d.HasModule() {
		t.Fatalf("expected module to be detected")
	}
}
