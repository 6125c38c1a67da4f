package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/samber/lo"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/m0rphed/stonks-bot/core"
)

// SQLStore implements core.Storage on a SQL database via GORM. Successful
// instrument writes are published to the attached change feed.
type SQLStore struct {
	db   *gorm.DB
	feed *InstrumentFeed
	log  core.Logger
}

// Config holds the configuration for SQL database connections.
type Config struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns a default configuration for SQL connections.
func DefaultConfig() Config {
	return Config{
		MaxIdleConns:    5,
		MaxOpenConns:    10,
		ConnMaxLifetime: time.Hour,
	}
}

// NewFromSQLite creates a SQLite-backed store. Pass ":memory:" for tests.
func NewFromSQLite(dbPath string, feed *InstrumentFeed, log core.Logger, config Config) (*SQLStore, error) {
	return newFromSQL(sqlite.Open(dbPath), feed, log, config)
}

func newFromSQL(dialect gorm.Dialector, feed *InstrumentFeed, log core.Logger, config Config) (*SQLStore, error) {
	db, err := gorm.Open(dialect, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err = db.AutoMigrate(&core.User{}, &core.Instrument{}, &core.Tracking{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLStore{db: db, feed: feed, log: log}, nil
}

// DB exposes the underlying GORM handle for migrations and tests.
func (s *SQLStore) DB() *gorm.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}

// exactlyOne enforces the uniqueness invariant at the store layer on top of
// the table constraint: more than one match means silent corruption and is
// reported loudly instead of picking a row.
func exactlyOne[T any](log core.Logger, rows []T, table, criteria string, notFound error) (T, error) {
	var zero T
	switch len(rows) {
	case 0:
		return zero, notFound
	case 1:
		return rows[0], nil
	default:
		err := &core.IntegrityError{Table: table, Criteria: criteria, Rows: len(rows)}
		log.WithField("table", table).
			WithField("criteria", criteria).
			Errorf("uniqueness invariant violated: %d rows", len(rows))
		return zero, err
	}
}

// isUniqueViolation matches duplicate-key failures across the translated
// GORM error and the raw SQLite message.
func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Users

func (s *SQLStore) UserByTelegramID(ctx context.Context, tgID int64) (*core.User, error) {
	var users []*core.User
	if err := s.db.WithContext(ctx).Where("telegram_id = ?", tgID).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	return exactlyOne(s.log, users, "users", fmt.Sprintf("telegram_id=%d", tgID), core.ErrUserNotFound)
}

func (s *SQLStore) UserByID(ctx context.Context, id string) (*core.User, error) {
	var users []*core.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	return exactlyOne(s.log, users, "users", fmt.Sprintf("id=%s", id), core.ErrUserNotFound)
}

func (s *SQLStore) CreateUser(ctx context.Context, user *core.User) error {
	if user.Settings != nil {
		if err := user.Settings.Validate(); err != nil {
			return err
		}
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user with telegram_id=%d %w", user.TelegramID, core.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *SQLStore) UpdateUserSettings(ctx context.Context, tgID int64, settings *core.UserSettings) error {
	if settings != nil {
		if err := settings.Validate(); err != nil {
			return err
		}
	}

	user, err := s.UserByTelegramID(ctx, tgID)
	if err != nil {
		return err
	}

	user.Settings = settings
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("failed to update user settings: %w", err)
	}
	return nil
}

// DeleteUser removes the user row and cascades into their trackings in one
// transaction. Instruments stay: they are shared, deduplicated roots.
func (s *SQLStore) DeleteUser(ctx context.Context, tgID int64) error {
	user, err := s.UserByTelegramID(ctx, tgID)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&core.Tracking{}).Error; err != nil {
			return fmt.Errorf("failed to delete trackings of user %s: %w", user.ID, err)
		}
		if err := tx.Delete(&core.User{}, "id = ?", user.ID).Error; err != nil {
			return fmt.Errorf("failed to delete user %s: %w", user.ID, err)
		}
		return nil
	})
}

// Instruments

func (s *SQLStore) FindInstrument(ctx context.Context, typ core.InstrumentType, provider, symbol string) (*core.Instrument, error) {
	var instruments []*core.Instrument
	err := s.db.WithContext(ctx).
		Where("type = ? AND data_provider = ? AND symbol = ?", typ, provider, symbol).
		Find(&instruments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}

	criteria := fmt.Sprintf("type=%s provider=%s symbol=%s", typ, provider, symbol)
	return exactlyOne(s.log, instruments, "instruments", criteria, core.ErrInstrumentNotFound)
}

func (s *SQLStore) CreateInstrument(ctx context.Context, instrument *core.Instrument) error {
	if !instrument.Type.Valid() {
		return fmt.Errorf("unknown instrument type %q", instrument.Type)
	}

	instrument.UpdatedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).Create(instrument).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf(
				"instrument (%s, %s, %s) %w",
				instrument.Type, instrument.DataProvider, instrument.Symbol, core.ErrAlreadyExists,
			)
		}
		return fmt.Errorf("failed to create instrument: %w", err)
	}

	if s.feed != nil {
		s.feed.Publish(InstrumentEvent{Type: EventInsert, Instrument: *instrument})
	}
	return nil
}

func (s *SQLStore) UpdateInstrument(ctx context.Context, instrument *core.Instrument) error {
	if instrument.ID == "" {
		return core.ErrInstrumentNotFound
	}

	instrument.UpdatedAt = time.Now().UTC()
	result := s.db.WithContext(ctx).Save(instrument)
	if result.Error != nil {
		return fmt.Errorf("failed to update instrument %s: %w", instrument.ID, result.Error)
	}

	if s.feed != nil {
		s.feed.Publish(InstrumentEvent{Type: EventUpdate, Instrument: *instrument})
	}
	return nil
}

func (s *SQLStore) Instruments(ctx context.Context) ([]*core.Instrument, error) {
	var instruments []*core.Instrument
	if err := s.db.WithContext(ctx).Find(&instruments).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch instruments: %w", err)
	}
	return instruments, nil
}

// Trackings

func (s *SQLStore) Trackings(ctx context.Context, filters ...core.TrackingFilter) ([]*core.Tracking, error) {
	var trackings []*core.Tracking
	if err := s.db.WithContext(ctx).Find(&trackings).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch trackings: %w", err)
	}

	if len(filters) == 0 {
		return trackings, nil
	}

	return lo.Filter(trackings, func(tracking *core.Tracking, _ int) bool {
		for _, filter := range filters {
			if !filter(*tracking) {
				return false
			}
		}
		return true
	}), nil
}

func (s *SQLStore) CreateTracking(ctx context.Context, tracking *core.Tracking) error {
	if err := tracking.Validate(); err != nil {
		return err
	}

	// Referential integrity at the store boundary: the tracking must not
	// outlive either referenced root entity, so both must exist up front.
	if _, err := s.UserByID(ctx, tracking.UserID); err != nil {
		return err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&core.Instrument{}).
		Where("id = ?", tracking.InstrumentID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check instrument %s: %w", tracking.InstrumentID, err)
	}
	if count == 0 {
		return core.ErrInstrumentNotFound
	}

	if err := s.db.WithContext(ctx).Create(tracking).Error; err != nil {
		return fmt.Errorf("failed to create tracking: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteTracking(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&core.Tracking{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete tracking %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return core.ErrTrackingNotFound
	}
	return nil
}
