package application

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReadingAccepted is published after a reading passed validation and was
// appended to the store.
type ReadingAccepted struct {
	MeterID    string          `json:"meter_id"`
	Timestamp  time.Time       `json:"timestamp"`
	Value      decimal.Decimal `json:"value"`
	OccurredAt time.Time       `json:"occurred_at"`
}
