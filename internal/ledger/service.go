package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingName       = errors.New("possession name is required")
	noOpLogger           = zap.NewNop()

	// ErrStorageFull indicates that the local storage medium rejected a write.
	ErrStorageFull = errors.New("ledger: local storage full")
	// ErrConflictingAck indicates an acknowledgment carrying a different remote
	// id for an already-synced event. Correct remote stores never produce it.
	ErrConflictingAck = errors.New("ledger: conflicting acknowledgment")
	// ErrEventNotFound indicates that no touch event carries the given local id.
	ErrEventNotFound = errors.New("ledger: touch event not found")
	// ErrPossessionNotFound indicates that no possession carries the given id.
	ErrPossessionNotFound = errors.New("ledger: possession not found")
	// ErrPossessionClosed indicates an attempt to activate a closed possession.
	ErrPossessionClosed = errors.New("ledger: possession closed")
	// ErrNoActivePossession indicates that no possession is currently active.
	ErrNoActivePossession = errors.New("ledger: no active possession")
	// ErrNotFailed indicates a retry request against an event that is not Failed.
	ErrNotFailed = errors.New("ledger: event is not failed")
)

// ServiceError wraps a ledger failure with a dotted operation code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew        = "ledger.service.new"
	opAppend            = "ledger.append"
	opListPending       = "ledger.list_pending"
	opListByPossession  = "ledger.list_by_possession"
	opMarkSynced        = "ledger.mark_synced"
	opMarkFailed        = "ledger.mark_failed"
	opRequestRetry      = "ledger.request_retry"
	opCreatePossession  = "ledger.create_possession"
	opListPossessions   = "ledger.list_possessions"
	opActivate          = "ledger.activate_possession"
	opClose             = "ledger.close_possession"
	opActivePossession  = "ledger.active_possession"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues fresh local identifiers for recorded events.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig bundles the dependencies for constructing a Service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service is the durable local ledger of touch events and possessions.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and returns a ledger Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Append records a touch event as Pending and persists it immediately.
// A missing local id is assigned from the id provider, a missing possession id
// resolves to the active possession, and a missing timestamp takes the clock.
// Append never touches the network; it fails only on validation or storage.
func (s *Service) Append(ctx context.Context, draft TouchDraft) (TouchEvent, error) {
	localID := strings.TrimSpace(draft.LocalID)
	if localID == "" {
		generated, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opAppend, "id_generation_failed", err)
			return TouchEvent{}, newServiceError(opAppend, "id_generation_failed", err)
		}
		localID = generated
	}
	if _, err := NewLocalID(localID); err != nil {
		return TouchEvent{}, newServiceError(opAppend, "invalid_local_id", err)
	}

	zone, err := NewPaintZone(draft.PaintZone)
	if err != nil {
		return TouchEvent{}, newServiceError(opAppend, "invalid_paint_zone", err)
	}
	outcome, err := NewOutcome(draft.Outcome)
	if err != nil {
		return TouchEvent{}, newServiceError(opAppend, "invalid_outcome", err)
	}

	now := s.clock().UTC().Unix()
	timestamp := draft.Timestamp
	if timestamp == 0 {
		timestamp = now
	}
	if _, err := NewUnixTimestamp(timestamp); err != nil {
		return TouchEvent{}, newServiceError(opAppend, "invalid_timestamp", err)
	}

	possessionID := strings.TrimSpace(draft.PossessionID)
	if possessionID == "" {
		active, err := s.ActivePossession(ctx)
		if err != nil {
			return TouchEvent{}, err
		}
		possessionID = active.PossessionID
	} else {
		if _, err := NewPossessionID(possessionID); err != nil {
			return TouchEvent{}, newServiceError(opAppend, "invalid_possession_id", err)
		}
		var possession Possession
		err := s.db.WithContext(ctx).
			Where("possession_id = ?", possessionID).
			Take(&possession).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TouchEvent{}, newServiceError(opAppend, "possession_not_found", ErrPossessionNotFound)
		}
		if err != nil {
			s.logError(opAppend, "possession_select_failed", err, zap.String("possession_id", possessionID))
			return TouchEvent{}, newServiceError(opAppend, "possession_select_failed", err)
		}
	}

	event := TouchEvent{
		LocalID:           localID,
		PossessionID:      possessionID,
		PaintZone:         zone.String(),
		Outcome:           outcome.String(),
		Quarter:           draft.Quarter,
		Points:            draft.Points,
		Notes:             draft.Notes,
		TimestampSeconds:  timestamp,
		SyncState:         SyncStatePending,
		RecordedAtSeconds: now,
	}

	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		if isStorageFull(err) {
			s.logError(opAppend, "storage_full", err, zap.String("local_id", localID))
			return TouchEvent{}, newServiceError(opAppend, "storage_full", fmt.Errorf("%w: %v", ErrStorageFull, err))
		}
		s.logError(opAppend, "persist_failed", err, zap.String("local_id", localID))
		return TouchEvent{}, newServiceError(opAppend, "persist_failed", err)
	}

	return event, nil
}

// ListPending returns the push set for a sync pass in insertion order: every
// Pending event, plus Failed events flagged for retry. Passing retryAllFailed
// additionally includes every Failed event regardless of per-event flags.
func (s *Service) ListPending(ctx context.Context, retryAllFailed bool) ([]TouchEvent, error) {
	query := s.db.WithContext(ctx).Where("sync_state = ?", SyncStatePending)
	if retryAllFailed {
		query = query.Or("sync_state = ?", SyncStateFailed)
	} else {
		query = query.Or("sync_state = ? AND retry_requested = ?", SyncStateFailed, true)
	}

	var events []TouchEvent
	if err := query.Order("seq ASC").Find(&events).Error; err != nil {
		s.logError(opListPending, "query_failed", err)
		return nil, newServiceError(opListPending, "query_failed", err)
	}
	return events, nil
}

// ListByPossession returns every event for a possession in any sync state,
// ordered by timestamp with local id as the tie break.
func (s *Service) ListByPossession(ctx context.Context, possessionID string) ([]TouchEvent, error) {
	if _, err := NewPossessionID(possessionID); err != nil {
		return nil, newServiceError(opListByPossession, "invalid_possession_id", err)
	}

	var events []TouchEvent
	if err := s.db.WithContext(ctx).
		Where("possession_id = ?", possessionID).
		Order("timestamp_s ASC, local_id ASC").
		Find(&events).Error; err != nil {
		s.logError(opListByPossession, "query_failed", err, zap.String("possession_id", possessionID))
		return nil, newServiceError(opListByPossession, "query_failed", err)
	}
	return events, nil
}

// MarkSynced records the remote acknowledgment for a local event. Replaying
// the same acknowledgment is a no-op; a different remote id for an
// already-synced event reports ErrConflictingAck.
func (s *Service) MarkSynced(ctx context.Context, localID, remoteID string) error {
	if strings.TrimSpace(remoteID) == "" {
		return newServiceError(opMarkSynced, "missing_remote_id", errors.New("remote id is required"))
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := takeEvent(tx, localID)
		if err != nil {
			return wrapTakeError(opMarkSynced, err)
		}

		if event.SyncState == SyncStateSynced {
			if event.RemoteID == remoteID {
				return nil
			}
			s.logError(opMarkSynced, "conflicting_ack", ErrConflictingAck,
				zap.String("local_id", localID),
				zap.String("stored_remote_id", event.RemoteID),
				zap.String("ack_remote_id", remoteID))
			return newServiceError(opMarkSynced, "conflicting_ack", ErrConflictingAck)
		}

		updates := map[string]any{
			"remote_id":       remoteID,
			"sync_state":      SyncStateSynced,
			"failure_reason":  "",
			"retry_requested": false,
		}
		if err := tx.Model(&TouchEvent{}).Where("local_id = ?", event.LocalID).Updates(updates).Error; err != nil {
			s.logError(opMarkSynced, "update_failed", err, zap.String("local_id", localID))
			return newServiceError(opMarkSynced, "update_failed", err)
		}
		return nil
	})
}

// MarkFailed records a non-retryable remote rejection. The event stays in the
// ledger, visible and exportable; only an explicit retry request re-enters it
// into the push set.
func (s *Service) MarkFailed(ctx context.Context, localID, reason string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := takeEvent(tx, localID)
		if err != nil {
			return wrapTakeError(opMarkFailed, err)
		}

		if event.SyncState == SyncStateSynced {
			s.logError(opMarkFailed, "already_synced", ErrConflictingAck, zap.String("local_id", localID))
			return newServiceError(opMarkFailed, "already_synced", ErrConflictingAck)
		}
		if event.SyncState == SyncStateFailed && event.FailureReason == reason && !event.RetryRequested {
			return nil
		}

		updates := map[string]any{
			"sync_state":      SyncStateFailed,
			"failure_reason":  reason,
			"retry_requested": false,
		}
		if err := tx.Model(&TouchEvent{}).Where("local_id = ?", event.LocalID).Updates(updates).Error; err != nil {
			s.logError(opMarkFailed, "update_failed", err, zap.String("local_id", localID))
			return newServiceError(opMarkFailed, "update_failed", err)
		}
		return nil
	})
}

// RequestRetry flags a Failed event for inclusion in the next sync pass.
func (s *Service) RequestRetry(ctx context.Context, localID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := takeEvent(tx, localID)
		if err != nil {
			return wrapTakeError(opRequestRetry, err)
		}
		if event.SyncState != SyncStateFailed {
			return newServiceError(opRequestRetry, "not_failed", ErrNotFailed)
		}
		if event.RetryRequested {
			return nil
		}
		if err := tx.Model(&TouchEvent{}).
			Where("local_id = ?", event.LocalID).
			Update("retry_requested", true).Error; err != nil {
			s.logError(opRequestRetry, "update_failed", err, zap.String("local_id", localID))
			return newServiceError(opRequestRetry, "update_failed", err)
		}
		return nil
	})
}

// PossessionDraft describes the input supplied when creating a possession.
type PossessionDraft struct {
	PossessionID string
	Name         string
	Opponent     string
	GameDate     string
}

// CreatePossession registers a possession and makes it the active one.
func (s *Service) CreatePossession(ctx context.Context, draft PossessionDraft) (Possession, error) {
	if strings.TrimSpace(draft.Name) == "" {
		return Possession{}, newServiceError(opCreatePossession, "missing_name", errMissingName)
	}

	possessionID := strings.TrimSpace(draft.PossessionID)
	if possessionID == "" {
		generated, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opCreatePossession, "id_generation_failed", err)
			return Possession{}, newServiceError(opCreatePossession, "id_generation_failed", err)
		}
		possessionID = generated
	}
	if _, err := NewPossessionID(possessionID); err != nil {
		return Possession{}, newServiceError(opCreatePossession, "invalid_possession_id", err)
	}

	possession := Possession{
		PossessionID:     possessionID,
		Name:             strings.TrimSpace(draft.Name),
		Opponent:         strings.TrimSpace(draft.Opponent),
		GameDate:         strings.TrimSpace(draft.GameDate),
		Active:           true,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Possession{}).Where("active = ?", true).Update("active", false).Error; err != nil {
			return newServiceError(opCreatePossession, "deactivate_failed", err)
		}
		if err := tx.Create(&possession).Error; err != nil {
			return newServiceError(opCreatePossession, "persist_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opCreatePossession, "transaction_failed", txErr, zap.String("possession_id", possessionID))
		return Possession{}, txErr
	}

	return possession, nil
}

// ListPossessions returns every possession, most recently created first.
func (s *Service) ListPossessions(ctx context.Context) ([]Possession, error) {
	var possessions []Possession
	if err := s.db.WithContext(ctx).
		Order("created_at_s DESC, possession_id ASC").
		Find(&possessions).Error; err != nil {
		s.logError(opListPossessions, "query_failed", err)
		return nil, newServiceError(opListPossessions, "query_failed", err)
	}
	return possessions, nil
}

// ActivatePossession makes the given possession the single active one.
func (s *Service) ActivatePossession(ctx context.Context, possessionID string) error {
	if _, err := NewPossessionID(possessionID); err != nil {
		return newServiceError(opActivate, "invalid_possession_id", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var possession Possession
		err := tx.Where("possession_id = ?", possessionID).Take(&possession).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opActivate, "possession_not_found", ErrPossessionNotFound)
		}
		if err != nil {
			s.logError(opActivate, "select_failed", err, zap.String("possession_id", possessionID))
			return newServiceError(opActivate, "select_failed", err)
		}
		if possession.Closed {
			return newServiceError(opActivate, "possession_closed", ErrPossessionClosed)
		}
		if err := tx.Model(&Possession{}).Where("active = ?", true).Update("active", false).Error; err != nil {
			return newServiceError(opActivate, "deactivate_failed", err)
		}
		if err := tx.Model(&Possession{}).
			Where("possession_id = ?", possessionID).
			Update("active", true).Error; err != nil {
			return newServiceError(opActivate, "update_failed", err)
		}
		return nil
	})
}

// ClosePossession deactivates a possession and marks it closed. Its events
// remain in the ledger untouched.
func (s *Service) ClosePossession(ctx context.Context, possessionID string) error {
	if _, err := NewPossessionID(possessionID); err != nil {
		return newServiceError(opClose, "invalid_possession_id", err)
	}

	result := s.db.WithContext(ctx).Model(&Possession{}).
		Where("possession_id = ?", possessionID).
		Updates(map[string]any{"active": false, "closed": true})
	if result.Error != nil {
		s.logError(opClose, "update_failed", result.Error, zap.String("possession_id", possessionID))
		return newServiceError(opClose, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opClose, "possession_not_found", ErrPossessionNotFound)
	}
	return nil
}

// ActivePossession returns the possession new touches attach to.
func (s *Service) ActivePossession(ctx context.Context) (Possession, error) {
	var possession Possession
	err := s.db.WithContext(ctx).Where("active = ?", true).Take(&possession).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Possession{}, newServiceError(opActivePossession, "no_active_possession", ErrNoActivePossession)
	}
	if err != nil {
		s.logError(opActivePossession, "query_failed", err)
		return Possession{}, newServiceError(opActivePossession, "query_failed", err)
	}
	return possession, nil
}

func takeEvent(tx *gorm.DB, localID string) (TouchEvent, error) {
	if _, err := NewLocalID(localID); err != nil {
		return TouchEvent{}, err
	}
	var event TouchEvent
	err := tx.Where("local_id = ?", strings.TrimSpace(localID)).Take(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return TouchEvent{}, ErrEventNotFound
	}
	if err != nil {
		return TouchEvent{}, err
	}
	return event, nil
}

func wrapTakeError(operation string, err error) error {
	switch {
	case errors.Is(err, ErrEventNotFound):
		return newServiceError(operation, "event_not_found", err)
	case errors.Is(err, ErrInvalidLocalID):
		return newServiceError(operation, "invalid_local_id", err)
	default:
		return newServiceError(operation, "select_failed", err)
	}
}

// SQLITE_FULL surfaces as a plain error string through the driver.
func isStorageFull(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database or disk is full")
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("ledger service error", attrs...)
}
