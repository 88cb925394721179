// Package http exposes the maintenance and system control endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"metering-cloud/internal/maintenance"
	"metering-cloud/internal/recovery"
)

// Recoverer replays durable state into the reading store.
type Recoverer interface {
	Recover(ctx context.Context) (recovery.Report, error)
}

// Handler serves maintenance transitions and status.
type Handler struct {
	machine   *maintenance.StateMachine
	recoverer Recoverer
}

// NewHandler constructs the handler. The recoverer may be nil; the
// restore endpoint then responds 501.
func NewHandler(machine *maintenance.StateMachine, recoverer Recoverer) (*Handler, error) {
	if machine == nil {
		return nil, errors.New("maintenance handler: nil state machine")
	}
	return &Handler{machine: machine, recoverer: recoverer}, nil
}

// ServeHTTP routes maintenance requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/maintenance/start" && r.Method == http.MethodPost:
		h.handleStart(w, r)
	case r.URL.Path == "/maintenance/status" && r.Method == http.MethodGet:
		h.handleStatus(w)
	case r.URL.Path == "/shutdown" && r.Method == http.MethodPost:
		h.handleShutdown(w)
	case r.URL.Path == "/resume" && r.Method == http.MethodPost:
		h.handleResume(w)
	case r.URL.Path == "/restore" && r.Method == http.MethodPost:
		h.handleRestore(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	typ, err := maintenance.ParseType(r.URL.Query().Get("maintenance_type"))
	if err != nil {
		http.Error(w, "maintenance_type must be daily, monthly or both", http.StatusBadRequest)
		return
	}

	if err := h.machine.StartMaintenance(r.Context(), typ); err != nil {
		if errors.Is(err, maintenance.ErrMaintenanceActive) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]any{
		"success":          true,
		"maintenance_type": string(typ),
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter) {
	respondJSON(w, h.machine.Status())
}

func (h *Handler) handleShutdown(w http.ResponseWriter) {
	if err := h.machine.Shutdown(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	respondJSON(w, map[string]any{
		"success":           true,
		"message":           "system stopped receiving data",
		"is_receiving_data": false,
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleResume(w http.ResponseWriter) {
	if err := h.machine.Resume(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	respondJSON(w, map[string]any{
		"success":           true,
		"message":           "system resumed receiving data",
		"is_receiving_data": true,
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	})
}

// handleRestore replays durable state. It is refused while ingestion is
// open so a replay cannot race live appends.
func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	if h.recoverer == nil {
		http.Error(w, "restore not available", http.StatusNotImplemented)
		return
	}
	if h.machine.Accepting() {
		http.Error(w, "stop ingestion before restoring", http.StatusConflict)
		return
	}

	report, err := h.recoverer.Recover(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, report)
}

func respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
