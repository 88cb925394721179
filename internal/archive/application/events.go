package application

import "time"

// Archival scopes.
const (
	ScopeDaily   = "daily"
	ScopeMonthly = "monthly"
)

// ArchiveCompleted is published after an archival unit has persisted its
// partition and drained the reading store.
type ArchiveCompleted struct {
	Scope      string    `json:"scope"`
	Period     time.Time `json:"period"`
	Meters     int       `json:"meters"`
	Records    int       `json:"records"`
	Drained    int       `json:"drained"`
	OccurredAt time.Time `json:"occurred_at"`
}

// BillsGenerated is published after monthly archival derived and persisted
// the month's bills.
type BillsGenerated struct {
	Period     time.Time `json:"period"`
	Bills      int       `json:"bills"`
	OccurredAt time.Time `json:"occurred_at"`
}
