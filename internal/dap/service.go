package dap

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
)

// Service is the single synchronization point through which request handlers
// touch the registry. Every operation — including pure reads — holds the
// exclusive lock for its full duration, trading read concurrency for a
// consistent view of enabled/disabled state. Registry traffic is low
// frequency administrative traffic, not the hot path.
type Service struct {
	mu      sync.Mutex
	manager *Manager
}

// ErrManagerRequired indicates the service was constructed without a manager.
var ErrManagerRequired = errors.New("dap: manager is required")

// NewService wraps the manager in its concurrency boundary.
func NewService(manager *Manager) (*Service, error) {
	if manager == nil {
		return nil, ErrManagerRequired
	}
	return &Service{manager: manager}, nil
}

// WithManager runs op while holding the registry lock.
func (s *Service) WithManager(op func(*Manager) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return op(s.manager)
}

// HandleHTTP runs op under the registry lock and renders its result as JSON,
// translating internal failures into the transport error taxonomy. Errors
// never escape as unhandled faults.
func (s *Service) HandleHTTP(w http.ResponseWriter, op func(*Manager) (any, error)) {
	s.mu.Lock()
	result, err := op(s.manager)
	s.mu.Unlock()

	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleFile resolves a file path under the registry lock, then serves the
// file outside it: derived paths are immutable, so the lock only covers the
// registry lookup.
func (s *Service) HandleFile(w http.ResponseWriter, r *http.Request, op func(*Manager) (string, error)) {
	s.mu.Lock()
	path, err := op(s.manager)
	s.mu.Unlock()

	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	http.ServeFile(w, r, path)
}

func statusForError(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsRequestError(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrDapDisabled):
		return http.StatusServiceUnavailable
	case IsModuleError(err):
		return http.StatusBadGateway
	default:
		// SettingsError, IO failures and anything unexpected.
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the JSON error envelope returned by all failure responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[DapsService] failed to write response: %v", err)
	}
}
