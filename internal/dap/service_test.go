package dap

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func newTestService(t *testing.T, root string) *Service {
	t.Helper()
	manager := NewManager(ManagerOptions{Root: root, Engine: NewMockEngine()})
	if err := manager.LoadDaps(context.Background()); err != nil {
		t.Fatalf("LoadDaps returned error: %v", err)
	}
	service, err := NewService(manager)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return service
}

func TestNewServiceRequiresManager(t *testing.T) {
	if _, err := NewService(nil); !errors.Is(err, ErrManagerRequired) {
		t.Fatalf("expected ErrManagerRequired, got %v", err)
	}
}

func TestHandleHTTPWritesResult(t *testing.T) {
	service := newTestService(t, t.TempDir())

	rec := httptest.NewRecorder()
	service.HandleHTTP(rec, func(m *Manager) (any, error) {
		return map[string]string{"status": "ok"}, nil
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestHandleHTTPErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", NotFoundError{Name: "ghost"}, http.StatusNotFound},
		{"bad request", RequestError{Reason: "enabled flag missing"}, http.StatusBadRequest},
		{"disabled", ModuleError{Name: "chat", Err: ErrDapDisabled}, http.StatusServiceUnavailable},
		{"module failure", ModuleError{Name: "chat", Err: errors.New("boom")}, http.StatusBadGateway},
		{"settings failure", SettingsError{Path: "settings.yaml", Err: errors.New("disk")}, http.StatusInternalServerError},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	service := newTestService(t, t.TempDir())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			service.HandleHTTP(rec, func(m *Manager) (any, error) {
				return nil, tc.err
			})
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			var body ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error == "" {
				t.Fatalf("expected an error message in the envelope")
			}
		})
	}
}

func TestHandleFileServesResolvedPath(t *testing.T) {
	root := t.TempDir()
	dir := writeDap(t, root, "chat", "application:\n  enabled: true\n")
	index := filepath.Join(dir, StaticDirName, IndexFileName)
	if err := os.WriteFile(index, []byte("<html>chat</html>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	service := newTestService(t, root)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	service.HandleFile(rec, req, func(m *Manager) (string, error) {
		d, err := m.Dap("chat")
		if err != nil {
			return "", err
		}
		return d.IndexFile(), nil
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != "<html>chat</html>" {
		t.Fatalf("unexpected body %q", got)
	}
}

func TestHandleFileErrorShortCircuits(t *testing.T) {
	service := newTestService(t, t.TempDir())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ghost", nil)
	service.HandleFile(rec, req, func(m *Manager) (string, error) {
		return "", NotFoundError{Name: "ghost"}
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestConcurrentUpdatesBothLand(t *testing.T) {
	root := t.TempDir()
	writeDap(t, root, "alpha", "application:\n  enabled: false\n")
	writeDap(t, root, "beta", "application:\n  enabled: false\n")
	service := newTestService(t, root)

	var wg sync.WaitGroup
	for _, name := range []string{"alpha", "beta"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			enabled := true
			err := service.WithManager(func(m *Manager) error {
				_, err := m.Update(context.Background(), name, UpdateQuery{Enabled: &enabled})
				return err
			})
			if err != nil {
				t.Errorf("update %q: %v", name, err)
			}
		}(name)
	}
	wg.Wait()

	err := service.WithManager(func(m *Manager) error {
		for _, name := range []string{"alpha", "beta"} {
			d, err := m.Dap(name)
			if err != nil {
				return err
			}
			if !d.Enabled() {
				t.Errorf("expected %q to be enabled", name)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("inspect registry: %v", err)
	}
}
