package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/dapla-platform/dapla/internal/dap"
)

const defaultHistoryLimit = 100

// Routes composes the full handler tree from a registry snapshot. Per-dap
// routes are fixed at composition time; enabled state is still checked per
// request, so a dap disabled after startup answers 503 rather than vanishing.
func (s *Server) Routes() (http.Handler, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("/dapla/daps", s.handleListDaps)
	mux.HandleFunc("/dapla/dap", s.handleUpdateDap)
	mux.HandleFunc("/dapla/dap/history", s.handleDapHistory)
	mux.HandleFunc("/dapla/events", s.handleEvents)

	var main *dap.Dap
	var daps []*dap.Dap
	err := s.service.WithManager(func(m *dap.Manager) error {
		for _, d := range m.Daps() {
			if d.IsMain() {
				main = d
				continue
			}
			daps = append(daps, d)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("server: snapshot registry: %w", err)
	}

	if main != nil {
		mux.HandleFunc("/", s.handleRoot(main))
		mux.HandleFunc("/dapla", s.handleMainIndex(main))
		static := http.FileServer(http.Dir(main.StaticDir()))
		mux.Handle("/static/", http.StripPrefix("/static/", static))
		mux.Handle("/dapla/static/", http.StripPrefix("/dapla/static/", static))
	}

	for _, d := range daps {
		name := d.Name()
		static := http.StripPrefix(d.StaticURI()+"/", http.FileServer(http.Dir(d.StaticDir())))
		mux.HandleFunc(d.RootURI(), s.handleDapIndex(name))
		mux.Handle(d.StaticURI()+"/", s.requireEnabled(name, static))
		mux.HandleFunc(d.RootURI()+"/", s.handleDapModule(name))
	}

	return mux, nil
}

// handleRoot serves the main dap index at exactly "/"; the pattern is the
// mux catch-all, so anything else that lands here is an unknown path.
func (s *Server) handleRoot(main *dap.Dap) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown path %q", r.URL.Path))
			return
		}
		s.handleMainIndex(main)(w, r)
	}
}

func (s *Server) handleMainIndex(main *dap.Dap) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.service.HandleFile(w, r, func(m *dap.Manager) (string, error) {
			return main.IndexFile(), nil
		})
	}
}

// dapSummary is one row of the registry listing.
type dapSummary struct {
	Name     string           `json:"name"`
	Title    string           `json:"title"`
	Enabled  bool             `json:"enabled"`
	Required []dap.Permission `json:"required_permissions"`
	Allowed  []dap.Permission `json:"allowed_permissions"`
}

func (s *Server) handleListDaps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.service.HandleHTTP(w, func(m *dap.Manager) (any, error) {
		summaries := make([]dapSummary, 0)
		for _, d := range m.Daps() {
			if d.IsMain() {
				continue
			}
			summaries = append(summaries, dapSummary{
				Name:     d.Name(),
				Title:    d.Title(),
				Enabled:  d.Enabled(),
				Required: d.RequiredPermissions(),
				Allowed:  d.AllowedPermissions(),
			})
		}
		sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
		return summaries, nil
	})
}

// updateRequest is the admin mutation body.
type updateRequest struct {
	DapName string `json:"dap_name"`
	dap.UpdateQuery
}

// updateResponse echoes back what actually changed.
type updateResponse struct {
	Updated dap.Updated `json:"updated"`
}

func (s *Server) handleUpdateDap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.DapName == "" {
		writeError(w, http.StatusBadRequest, "dap_name is required")
		return
	}

	s.service.HandleHTTP(w, func(m *dap.Manager) (any, error) {
		updated, err := m.Update(r.Context(), req.DapName, req.UpdateQuery)
		if err != nil {
			return nil, err
		}
		return updateResponse{Updated: updated}, nil
	})
}

// historyEntry is one recorded lifecycle event on the wire.
type historyEntry struct {
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	InstanceID string    `json:"instance_id,omitempty"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Server) handleDapHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history store unavailable")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}

	events, err := s.history.ListDapEvents(r.Context(), r.URL.Query().Get("name"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	entries := make([]historyEntry, 0, len(events))
	for _, evt := range events {
		entries = append(entries, historyEntry{
			Name:       evt.Name,
			Status:     evt.Status,
			InstanceID: evt.InstanceID,
			Message:    evt.Message,
			CreatedAt:  evt.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleDapIndex(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.service.HandleFile(w, r, func(m *dap.Manager) (string, error) {
			d, err := m.Dap(name)
			if err != nil {
				return "", err
			}
			if !d.Enabled() {
				return "", fmt.Errorf("dap %q: %w", name, dap.ErrDapDisabled)
			}
			return d.IndexFile(), nil
		})
	}
}

// moduleResponse acknowledges a request routed to a running module instance.
type moduleResponse struct {
	Dap        string `json:"dap"`
	InstanceID string `json:"instance_id"`
	Path       string `json:"path"`
}

func (s *Server) handleDapModule(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.service.HandleHTTP(w, func(m *dap.Manager) (any, error) {
			d, err := m.Dap(name)
			if err != nil {
				return nil, err
			}
			if !d.Enabled() {
				return nil, fmt.Errorf("dap %q: %w", name, dap.ErrDapDisabled)
			}
			inst, ok := m.Instance(name)
			if !ok {
				return nil, dap.NotFoundError{Name: name}
			}
			return moduleResponse{Dap: name, InstanceID: inst.ID(), Path: r.URL.Path}, nil
		})
	}
}

// requireEnabled gates a handler behind the dap's current enabled flag.
func (s *Server) requireEnabled(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var enabled bool
		err := s.service.WithManager(func(m *dap.Manager) error {
			d, err := m.Dap(name)
			if err != nil {
				return err
			}
			enabled = d.Enabled()
			return nil
		})
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if !enabled {
			writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("dap %q is disabled", name))
			return
		}
		next.ServeHTTP(w, r)
	})
}
