// Package apihttp serves the query-side endpoints: consumption, bills,
// bill exports and account registration.
package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	accountsapp "metering-cloud/internal/accounts/application"
	accounts "metering-cloud/internal/accounts/domain"
	archive "metering-cloud/internal/archive/domain"
	archiveinterfaces "metering-cloud/internal/archive/interfaces"
	"metering-cloud/internal/consumption"
	metering "metering-cloud/internal/metering/domain"
	"metering-cloud/internal/observability/metrics"
)

const timeLayout = time.RFC3339

// ConsumptionHandler serves GET /get_consumption.
type ConsumptionHandler struct {
	calc *consumption.Calculator
}

// NewConsumptionHandler constructs the handler.
func NewConsumptionHandler(calc *consumption.Calculator) (*ConsumptionHandler, error) {
	if calc == nil {
		return nil, errors.New("consumption handler: nil calculator")
	}
	return &ConsumptionHandler{calc: calc}, nil
}

// ServeHTTP answers a consumption query for one meter and period.
func (h *ConsumptionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	meterID := r.URL.Query().Get("meter_id")
	if meterID == "" {
		http.Error(w, "meter_id is required", http.StatusBadRequest)
		return
	}

	period, err := parsePeriod(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	result, err := h.calc.Consumption(r.Context(), meterID, period)
	if err != nil {
		metrics.ObserveConsumption(period.Name, metrics.ResultError, time.Since(start))
		respondConsumptionError(w, err)
		return
	}
	metrics.ObserveConsumption(period.Name, metrics.ResultSuccess, time.Since(start))
	respondJSON(w, result)
}

// BillHandler serves GET /get_last_month_bill and GET /bills.
type BillHandler struct {
	calc  *consumption.Calculator
	bills archive.BillStore
}

// NewBillHandler constructs the handler.
func NewBillHandler(calc *consumption.Calculator, bills archive.BillStore) (*BillHandler, error) {
	if calc == nil {
		return nil, errors.New("bill handler: nil calculator")
	}
	if bills == nil {
		return nil, errors.New("bill handler: nil bill store")
	}
	return &BillHandler{calc: calc, bills: bills}, nil
}

// ServeHTTP routes bill requests.
func (h *BillHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/get_last_month_bill":
		h.handleLastMonth(w, r)
	case "/bills":
		h.handleMonth(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// handleLastMonth answers from the persisted bill when the month has
// rolled over, or computes live through the calculator when it has not.
func (h *BillHandler) handleLastMonth(w http.ResponseWriter, r *http.Request) {
	meterID := r.URL.Query().Get("meter_id")
	if meterID == "" {
		http.Error(w, "meter_id is required", http.StatusBadRequest)
		return
	}

	period, err := consumption.NamedPeriod(consumption.PeriodLastMonth)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	result, err := h.calc.Consumption(r.Context(), meterID, period)
	if err != nil {
		respondConsumptionError(w, err)
		return
	}
	respondJSON(w, result)
}

func (h *BillHandler) handleMonth(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonthQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	bills, err := h.bills.ReadBills(r.Context(), month)
	if err != nil {
		http.Error(w, "read bills failed", http.StatusInternalServerError)
		return
	}
	if len(bills) == 0 {
		http.Error(w, "no bills for month", http.StatusNotFound)
		return
	}
	respondJSON(w, bills)
}

// BillExportHandler serves GET /bills/export as PDF or XLSX.
type BillExportHandler struct {
	bills archive.BillStore
}

// NewBillExportHandler constructs the handler.
func NewBillExportHandler(bills archive.BillStore) (*BillExportHandler, error) {
	if bills == nil {
		return nil, errors.New("bill export handler: nil bill store")
	}
	return &BillExportHandler{bills: bills}, nil
}

// ServeHTTP renders a bill document. PDF exports need a meter_id; XLSX
// exports cover the whole month.
func (h *BillExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	month, err := parseMonthQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	format := r.URL.Query().Get("format")

	start := time.Now()
	switch format {
	case "pdf":
		meterID := r.URL.Query().Get("meter_id")
		if meterID == "" {
			http.Error(w, "meter_id is required for pdf export", http.StatusBadRequest)
			return
		}
		bill, err := h.bills.ReadBill(r.Context(), month, meterID)
		if err != nil {
			metrics.ObserveBillExport(format, metrics.ResultError, time.Since(start))
			http.Error(w, "read bill failed", http.StatusInternalServerError)
			return
		}
		if bill == nil {
			http.Error(w, "no bill for meter and month", http.StatusNotFound)
			return
		}
		data, err := archiveinterfaces.BuildBillPDF(bill)
		if err != nil {
			metrics.ObserveBillExport(format, metrics.ResultError, time.Since(start))
			http.Error(w, "render pdf failed", http.StatusInternalServerError)
			return
		}
		metrics.ObserveBillExport(format, metrics.ResultSuccess, time.Since(start))
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="bill_`+meterID+`_`+month.Format("2006-01")+`.pdf"`)
		_, _ = w.Write(data)

	case "xlsx":
		bills, err := h.bills.ReadBills(r.Context(), month)
		if err != nil {
			metrics.ObserveBillExport(format, metrics.ResultError, time.Since(start))
			http.Error(w, "read bills failed", http.StatusInternalServerError)
			return
		}
		if len(bills) == 0 {
			http.Error(w, "no bills for month", http.StatusNotFound)
			return
		}
		data, err := archiveinterfaces.BuildBillsXLSX(month, bills)
		if err != nil {
			metrics.ObserveBillExport(format, metrics.ResultError, time.Since(start))
			http.Error(w, "render xlsx failed", http.StatusInternalServerError)
			return
		}
		metrics.ObserveBillExport(format, metrics.ResultSuccess, time.Since(start))
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="bills_`+month.Format("2006-01")+`.xlsx"`)
		_, _ = w.Write(data)

	default:
		http.Error(w, "format must be pdf or xlsx", http.StatusBadRequest)
	}
}

// RegisterHandler serves POST /register_account.
type RegisterHandler struct {
	service *accountsapp.RegistrationService
}

// NewRegisterHandler constructs the handler.
func NewRegisterHandler(service *accountsapp.RegistrationService) (*RegisterHandler, error) {
	if service == nil {
		return nil, errors.New("register handler: nil service")
	}
	return &RegisterHandler{service: service}, nil
}

// ServeHTTP creates a new account.
func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		OwnerName string `json:"owner_name"`
		Address   string `json:"address"`
		MeterID   string `json:"meter_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	account, err := h.service.Register(r.Context(), req.OwnerName, req.Address, req.MeterID)
	if err != nil {
		switch {
		case errors.Is(err, accounts.ErrDuplicateMeter):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, accounts.ErrEmptyOwner),
			errors.Is(err, accounts.ErrEmptyAddress),
			errors.Is(err, accounts.ErrEmptyMeterID):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
	respondJSON(w, map[string]any{
		"meter_id": account.MeterID,
		"id":       account.ID,
		"message":  "account successfully created",
	})
}

func parsePeriod(r *http.Request) (consumption.Period, error) {
	name := r.URL.Query().Get("period")
	if name != consumption.PeriodCustom {
		return consumption.NamedPeriod(name)
	}

	from, err := parseTimeQuery(r, "from")
	if err != nil {
		return consumption.Period{}, err
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		return consumption.Period{}, err
	}
	return consumption.CustomPeriod(from, to)
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}

func parseMonthQuery(r *http.Request) (time.Time, error) {
	value := r.URL.Query().Get("month")
	if value == "" {
		return time.Time{}, errors.New("month is required")
	}
	parsed, err := time.Parse("2006-01", value)
	if err != nil {
		return time.Time{}, errors.New("month must be YYYY-MM")
	}
	return parsed.UTC(), nil
}

func respondConsumptionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, metering.ErrUnknownMeter):
		http.Error(w, "meter not registered", http.StatusNotFound)
	case errors.Is(err, consumption.ErrInvalidPeriod):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, consumption.ErrInsufficientData),
		errors.Is(err, consumption.ErrNoDataInPeriod):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
