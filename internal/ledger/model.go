package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// SyncState tracks a touch event's progress toward the remote store.
type SyncState string

const (
	// SyncStatePending marks an event recorded locally and not yet acknowledged.
	SyncStatePending SyncState = "pending"
	// SyncStateSynced marks an event acknowledged by the remote store.
	SyncStateSynced SyncState = "synced"
	// SyncStateFailed marks an event the remote store rejected as invalid.
	SyncStateFailed SyncState = "failed"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidLocalID indicates that a local identifier is empty or exceeds storage bounds.
	ErrInvalidLocalID = errors.New("ledger: invalid local id")
	// ErrInvalidPossessionID indicates that a possession identifier is empty or exceeds storage bounds.
	ErrInvalidPossessionID = errors.New("ledger: invalid possession id")
	// ErrInvalidPaintZone indicates that a paint zone label is empty or exceeds storage bounds.
	ErrInvalidPaintZone = errors.New("ledger: invalid paint zone")
	// ErrInvalidOutcome indicates that an outcome label is empty or exceeds storage bounds.
	ErrInvalidOutcome = errors.New("ledger: invalid outcome")
	// ErrInvalidTimestamp indicates that a unix timestamp value is not positive.
	ErrInvalidTimestamp = errors.New("ledger: invalid unix timestamp")
)

// LocalID represents a validated client-generated event identifier.
type LocalID string

// NewLocalID validates raw input and returns a LocalID.
func NewLocalID(rawInput string) (LocalID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidLocalID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidLocalID, maxIdentifierLength)
	}
	return LocalID(trimmed), nil
}

// String returns the underlying string identifier.
func (id LocalID) String() string {
	return string(id)
}

// PossessionID represents a validated possession identifier.
type PossessionID string

// NewPossessionID validates raw input and returns a PossessionID.
func NewPossessionID(rawInput string) (PossessionID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPossessionID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidPossessionID, maxIdentifierLength)
	}
	return PossessionID(trimmed), nil
}

// String returns the underlying string identifier.
func (id PossessionID) String() string {
	return string(id)
}

// PaintZone represents a validated paint zone label.
type PaintZone string

// NewPaintZone validates raw input and returns a PaintZone.
func NewPaintZone(rawInput string) (PaintZone, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPaintZone)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidPaintZone, maxIdentifierLength)
	}
	return PaintZone(trimmed), nil
}

// String returns the underlying string label.
func (z PaintZone) String() string {
	return string(z)
}

// Outcome represents a validated possession outcome label.
type Outcome string

// NewOutcome validates raw input and returns an Outcome.
func NewOutcome(rawInput string) (Outcome, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidOutcome)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidOutcome, maxIdentifierLength)
	}
	return Outcome(trimmed), nil
}

// String returns the underlying string label.
func (o Outcome) String() string {
	return string(o)
}

// UnixTimestamp represents a validated unix timestamp in seconds.
type UnixTimestamp int64

// NewUnixTimestamp validates the value and returns a UnixTimestamp.
func NewUnixTimestamp(value int64) (UnixTimestamp, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidTimestamp, value)
	}
	return UnixTimestamp(value), nil
}

// Int64 exposes the raw unix seconds value.
func (ts UnixTimestamp) Int64() int64 {
	return int64(ts)
}

// TouchEvent models one persisted paint-touch record. Rows are append-only:
// after insert, only remote_id, sync_state, failure_reason and retry_requested
// ever change, and only through MarkSynced, MarkFailed and RequestRetry.
type TouchEvent struct {
	Seq               int64     `gorm:"column:seq;primaryKey;autoIncrement"`
	LocalID           string    `gorm:"column:local_id;uniqueIndex;size:190;not null"`
	RemoteID          string    `gorm:"column:remote_id;size:190;not null;default:''"`
	PossessionID      string    `gorm:"column:possession_id;size:190;not null;index:idx_touch_events_possession,priority:1"`
	PaintZone         string    `gorm:"column:paint_zone;size:190;not null"`
	Outcome           string    `gorm:"column:outcome;size:190;not null"`
	Quarter           int       `gorm:"column:quarter;not null;default:0"`
	Points            *int64    `gorm:"column:points"`
	Notes             string    `gorm:"column:notes;type:text;not null;default:''"`
	TimestampSeconds  int64     `gorm:"column:timestamp_s;not null;index:idx_touch_events_possession,priority:2"`
	SyncState         SyncState `gorm:"column:sync_state;size:32;not null;default:'pending';index"`
	FailureReason     string    `gorm:"column:failure_reason;type:text;not null;default:''"`
	RetryRequested    bool      `gorm:"column:retry_requested;not null;default:false"`
	RecordedAtSeconds int64     `gorm:"column:recorded_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (TouchEvent) TableName() string {
	return "touch_events"
}

// Possession models one logical grouping of touch events, typically a game.
type Possession struct {
	PossessionID     string `gorm:"column:possession_id;primaryKey;size:190;not null"`
	Name             string `gorm:"column:name;size:190;not null"`
	Opponent         string `gorm:"column:opponent;size:190;not null;default:''"`
	GameDate         string `gorm:"column:game_date;size:32;not null;default:''"`
	Active           bool   `gorm:"column:active;not null;default:false"`
	Closed           bool   `gorm:"column:closed;not null;default:false"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Possession) TableName() string {
	return "possessions"
}

// TouchDraft describes the input supplied when recording a touch.
// LocalID, PossessionID and Timestamp may be left zero; Append fills them
// from the id provider, the active possession and the clock respectively.
type TouchDraft struct {
	LocalID      string
	PossessionID string
	PaintZone    string
	Outcome      string
	Quarter      int
	Points       *int64
	Notes        string
	Timestamp    int64
}
