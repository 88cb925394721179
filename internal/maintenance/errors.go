package maintenance

import "errors"

var (
	// ErrMaintenanceActive signals a transition attempted while a
	// maintenance run is in progress or stuck after a failure.
	ErrMaintenanceActive = errors.New("maintenance: maintenance in progress")

	// ErrInvalidType signals an unrecognized maintenance type.
	ErrInvalidType = errors.New("maintenance: invalid maintenance type")

	// ErrAlreadyStopped signals shutdown on an already stopped system.
	ErrAlreadyStopped = errors.New("maintenance: system already stopped")

	// ErrAlreadyAccepting signals resume on an already accepting system.
	ErrAlreadyAccepting = errors.New("maintenance: system already accepting data")
)
