package store

import (
	"fmt"
)

// TouchEvent models a synced record in the server-side table. The row is
// immutable once written; resubmissions of the same local id return the
// stored remote id instead of inserting.
type TouchEvent struct {
	RemoteID          string `gorm:"column:remote_id;primaryKey;size:190;not null"`
	LocalID           string `gorm:"column:local_id;uniqueIndex;size:190;not null"`
	PossessionID      string `gorm:"column:possession_id;size:190;not null;index:idx_store_events_possession,priority:1"`
	PaintZone         string `gorm:"column:paint_zone;size:190;not null"`
	Outcome           string `gorm:"column:outcome;size:190;not null"`
	Quarter           int    `gorm:"column:quarter;not null;default:0"`
	Points            *int64 `gorm:"column:points"`
	Notes             string `gorm:"column:notes;type:text;not null;default:''"`
	TimestampSeconds  int64  `gorm:"column:timestamp_s;not null;index:idx_store_events_possession,priority:2"`
	ReceivedAtSeconds int64  `gorm:"column:received_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (TouchEvent) TableName() string {
	return "touch_events"
}

// Possession models a registered grouping of touch events.
type Possession struct {
	PossessionID     string `gorm:"column:possession_id;primaryKey;size:190;not null"`
	Name             string `gorm:"column:name;size:190;not null"`
	Opponent         string `gorm:"column:opponent;size:190;not null;default:''"`
	GameDate         string `gorm:"column:game_date;size:32;not null;default:''"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Possession) TableName() string {
	return "possessions"
}

// TouchEventInput describes one submitted touch event.
type TouchEventInput struct {
	LocalID      string
	PossessionID string
	PaintZone    string
	Outcome      string
	Quarter      int
	Points       *int64
	Notes        string
	Timestamp    int64
}

// PossessionInput describes one possession registration.
type PossessionInput struct {
	PossessionID string
	Name         string
	Opponent     string
	GameDate     string
}

// Receipt acknowledges an upsert. Created reports whether this submission
// inserted the record or replayed an already-seen local id.
type Receipt struct {
	RemoteID string
	Created  bool
}

// ValidationError rejects a specific record with a stable code the client
// can surface. Resubmitting the same record yields the same rejection.
type ValidationError struct {
	Code string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("store: validation failed: %s", e.Code)
}
