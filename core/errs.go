package core

import (
	"errors"
	"fmt"
)

// Lookup misses and validation sentinels. Every single-entity miss wraps
// ErrNotFound so boundaries can match the whole family at once.
var (
	ErrNotFound           = errors.New("not found")
	ErrUserNotFound       = fmt.Errorf("user %w", ErrNotFound)
	ErrInstrumentNotFound = fmt.Errorf("instrument %w", ErrNotFound)
	ErrTrackingNotFound   = fmt.Errorf("tracking %w", ErrNotFound)
	ErrProviderNotFound   = fmt.Errorf("data provider %w", ErrNotFound)
	ErrPendingNotFound    = fmt.Errorf("pending action %w", ErrNotFound)

	ErrAlreadyExists      = errors.New("already exists")
	ErrThresholdExclusive = errors.New("tracking must set exactly one of price or rate threshold")
	ErrProviderNotSet     = errors.New("no data provider configured for this category")
	ErrCapabilityMissing  = errors.New("provider does not implement this capability")
)

// IntegrityError reports rows violating a uniqueness invariant: a
// supposedly-unique criterion matched more than one row. It is fatal for the
// operation, is never retried and must never be swallowed - it indicates
// silent corruption.
type IntegrityError struct {
	Table    string
	Criteria string
	Rows     int
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf(
		"data integrity violated: %s query %q matched %d rows, want exactly 1",
		e.Table, e.Criteria, e.Rows,
	)
}

// ProviderError reports a vendor transport or auth failure. The caller
// should ask the user to retry later; there is no automatic retry.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsProviderUnavailable reports whether err is a vendor availability
// failure rather than a domain miss.
func IsProviderUnavailable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// PartialTrackError marks a track attempt that resolved or created the
// instrument row but failed to store the tracking. The instrument is safe to
// leave behind - it is deduplicated on the retry, which therefore skips the
// provider fetch.
type PartialTrackError struct {
	InstrumentID string
	Err          error
}

func (e *PartialTrackError) Error() string {
	return fmt.Sprintf("tracking not stored (instrument %s kept): %v", e.InstrumentID, e.Err)
}

func (e *PartialTrackError) Unwrap() error { return e.Err }
