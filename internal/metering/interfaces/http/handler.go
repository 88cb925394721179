// Package http exposes the reading ingestion endpoint.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	meteringapp "metering-cloud/internal/metering/application"
	metering "metering-cloud/internal/metering/domain"
)

// IngestHandler serves POST /receive_meter_reading.
type IngestHandler struct {
	service *meteringapp.IngestService
}

// NewIngestHandler constructs the handler.
func NewIngestHandler(service *meteringapp.IngestService) (*IngestHandler, error) {
	if service == nil {
		return nil, errors.New("ingest handler: nil service")
	}
	return &IngestHandler{service: service}, nil
}

// ServeHTTP accepts one reading per request.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		MeterID   string          `json:"meter_id"`
		Timestamp string          `json:"timestamp"`
		Reading   decimal.Decimal `json:"reading"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	ts, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		http.Error(w, "timestamp must be RFC3339", http.StatusBadRequest)
		return
	}

	reading, err := h.service.Ingest(r.Context(), req.MeterID, ts, req.Reading)
	if err != nil {
		respondIngestError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":   true,
		"meter_id":  reading.MeterID,
		"timestamp": reading.Timestamp.Format(time.RFC3339),
		"reading":   reading.Value,
	})
}

func respondIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, meteringapp.ErrNotAccepting):
		http.Error(w, "system is not receiving data", http.StatusServiceUnavailable)
	case errors.Is(err, metering.ErrUnknownMeter):
		http.Error(w, "meter not registered", http.StatusNotFound)
	case errors.Is(err, metering.ErrEmptyMeterID),
		errors.Is(err, metering.ErrNegativeValue),
		errors.Is(err, metering.ErrMisalignedTimestamp),
		errors.Is(err, metering.ErrOutOfOrderTimestamp),
		errors.Is(err, metering.ErrNonMonotonicReading):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
