package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/buntdb"

	"github.com/m0rphed/stonks-bot/core"
)

// Action kinds stored in the pending table.
const (
	ActionTrack         = "track"
	ActionDeleteAccount = "delete_account"
)

// PendingAction is a proposed two-step operation awaiting user confirmation.
type PendingAction struct {
	Kind       string          `json:"kind"`
	TelegramID int64           `json:"tg_user_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PendingActions stores proposals under single-use tokens with a TTL, so
// abandoned confirmations expire instead of accumulating forever.
type PendingActions struct {
	db  *buntdb.DB
	ttl time.Duration
}

// NewPendingActions opens a buntdb-backed pending store. Pass ":memory:"
// to keep proposals only for the process lifetime.
func NewPendingActions(sourceFile string, ttl time.Duration) (*PendingActions, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	if err := db.SetConfig(buntdb.Config{SyncPolicy: buntdb.Never}); err != nil {
		return nil, fmt.Errorf("failed to configure buntdb: %w", err)
	}

	return &PendingActions{db: db, ttl: ttl}, nil
}

// Put stores the action and returns its confirmation token.
func (p *PendingActions) Put(action PendingAction) (string, error) {
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}

	content, err := json.Marshal(action)
	if err != nil {
		return "", fmt.Errorf("failed to marshal pending action: %w", err)
	}

	token := uuid.NewString()
	err = p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(token, string(content), &buntdb.SetOptions{
			Expires: true,
			TTL:     p.ttl,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to store pending action: %w", err)
	}

	return token, nil
}

// Pop retrieves and removes the action under token. A second Pop of the
// same token, or one past the TTL, fails with core.ErrPendingNotFound.
func (p *PendingActions) Pop(token string) (PendingAction, error) {
	var action PendingAction
	err := p.db.Update(func(tx *buntdb.Tx) error {
		value, err := tx.Get(token)
		if errors.Is(err, buntdb.ErrNotFound) {
			return core.ErrPendingNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read pending action: %w", err)
		}

		if _, err := tx.Delete(token); err != nil {
			return fmt.Errorf("failed to consume pending action: %w", err)
		}

		return json.Unmarshal([]byte(value), &action)
	})
	return action, err
}

// Close closes the pending store.
func (p *PendingActions) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
