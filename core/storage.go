package core

import (
	"context"
	"time"
)

// TrackingFilter narrows Trackings results.
type TrackingFilter func(tracking Tracking) bool

func WithInstrumentID(id string) TrackingFilter {
	return func(tracking Tracking) bool {
		return tracking.InstrumentID == id
	}
}

func WithUserID(id string) TrackingFilter {
	return func(tracking Tracking) bool {
		return tracking.UserID == id
	}
}

func WithCreatedBefore(t time.Time) TrackingFilter {
	return func(tracking Tracking) bool {
		return tracking.CreatedAt.Before(t)
	}
}

// Storage owns the user, instrument and tracking records.
//
// Single-row finders fail with a typed not-found error on zero rows and with
// *IntegrityError when a supposedly-unique criterion matches more than one
// row - uniqueness is enforced here as well as by the table constraint.
// Trackings returns an empty slice on zero matches, never an error.
type Storage interface {
	UserByTelegramID(ctx context.Context, tgID int64) (*User, error)
	UserByID(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	UpdateUserSettings(ctx context.Context, tgID int64, settings *UserSettings) error
	// DeleteUser removes the user and cascades into their trackings.
	DeleteUser(ctx context.Context, tgID int64) error

	FindInstrument(ctx context.Context, typ InstrumentType, provider, symbol string) (*Instrument, error)
	CreateInstrument(ctx context.Context, instrument *Instrument) error
	UpdateInstrument(ctx context.Context, instrument *Instrument) error
	Instruments(ctx context.Context) ([]*Instrument, error)

	Trackings(ctx context.Context, filters ...TrackingFilter) ([]*Tracking, error)
	CreateTracking(ctx context.Context, tracking *Tracking) error
	DeleteTracking(ctx context.Context, id string) error
}
