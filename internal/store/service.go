package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()

	// ErrPossessionNotFound indicates that no possession carries the given id.
	ErrPossessionNotFound = errors.New("store: possession not found")
)

// ServiceError wraps a store failure with a dotted operation code.
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
	opServiceNew       = "store.service.new"
	opUpsert           = "store.upsert_touch_event"
	opListByPossession = "store.list_by_possession"
	opEnsurePossession = "store.ensure_possession"
	opListPossessions  = "store.list_possessions"
	opGetPossession    = "store.get_possession"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

const maxIdentifierLength = 190

// IDProvider issues remote identifiers for first-time submissions.
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

// Service is the durable server-side table of synced touch events.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and returns a store Service.
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

// UpsertTouchEvent applies one submission, deduplicated by local id. The
// first submission inserts the record and assigns a remote id; any replay
// returns the stored remote id unchanged. Validation failures return a
// *ValidationError so transport-level problems stay distinguishable.
func (s *Service) UpsertTouchEvent(ctx context.Context, input TouchEventInput) (Receipt, error) {
	if err := validateIdentifier(input.LocalID); err != nil {
		return Receipt{}, &ValidationError{Code: "invalid_local_id"}
	}
	if err := validateIdentifier(input.PossessionID); err != nil {
		return Receipt{}, &ValidationError{Code: "invalid_possession_id"}
	}
	if err := validateLabel(input.PaintZone); err != nil {
		return Receipt{}, &ValidationError{Code: "invalid_paint_zone"}
	}
	if err := validateLabel(input.Outcome); err != nil {
		return Receipt{}, &ValidationError{Code: "invalid_outcome"}
	}
	if input.Timestamp <= 0 {
		return Receipt{}, &ValidationError{Code: "invalid_timestamp"}
	}

	var receipt Receipt
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var possession Possession
		err := tx.Where("possession_id = ?", strings.TrimSpace(input.PossessionID)).
			Take(&possession).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ValidationError{Code: "possession_not_found"}
		}
		if err != nil {
			s.logError(opUpsert, "possession_select_failed", err,
				zap.String("possession_id", input.PossessionID))
			return newServiceError(opUpsert, "possession_select_failed", err)
		}

		var existing TouchEvent
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("local_id = ?", strings.TrimSpace(input.LocalID)).
			Take(&existing).Error
		if err == nil {
			receipt = Receipt{RemoteID: existing.RemoteID, Created: false}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logError(opUpsert, "event_select_failed", err, zap.String("local_id", input.LocalID))
			return newServiceError(opUpsert, "event_select_failed", err)
		}

		remoteID, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opUpsert, "id_generation_failed", err, zap.String("local_id", input.LocalID))
			return newServiceError(opUpsert, "id_generation_failed", err)
		}

		record := TouchEvent{
			RemoteID:          remoteID,
			LocalID:           strings.TrimSpace(input.LocalID),
			PossessionID:      strings.TrimSpace(input.PossessionID),
			PaintZone:         strings.TrimSpace(input.PaintZone),
			Outcome:           strings.TrimSpace(input.Outcome),
			Quarter:           input.Quarter,
			Points:            input.Points,
			Notes:             input.Notes,
			TimestampSeconds:  input.Timestamp,
			ReceivedAtSeconds: s.clock().UTC().Unix(),
		}
		if err := tx.Create(&record).Error; err != nil {
			s.logError(opUpsert, "event_insert_failed", err, zap.String("local_id", input.LocalID))
			return newServiceError(opUpsert, "event_insert_failed", err)
		}
		receipt = Receipt{RemoteID: remoteID, Created: true}
		return nil
	})
	if txErr != nil {
		return Receipt{}, txErr
	}
	return receipt, nil
}

// ListByPossession returns the synced records of a possession, ordered by
// timestamp with local id as the tie break.
func (s *Service) ListByPossession(ctx context.Context, possessionID string) ([]TouchEvent, error) {
	if err := validateIdentifier(possessionID); err != nil {
		return nil, &ValidationError{Code: "invalid_possession_id"}
	}

	var events []TouchEvent
	if err := s.db.WithContext(ctx).
		Where("possession_id = ?", strings.TrimSpace(possessionID)).
		Order("timestamp_s ASC, local_id ASC").
		Find(&events).Error; err != nil {
		s.logError(opListByPossession, "query_failed", err, zap.String("possession_id", possessionID))
		return nil, newServiceError(opListByPossession, "query_failed", err)
	}
	return events, nil
}

// EnsurePossession registers a possession, deduplicated by id. The boolean
// reports whether this call created it.
func (s *Service) EnsurePossession(ctx context.Context, input PossessionInput) (Possession, bool, error) {
	if err := validateIdentifier(input.PossessionID); err != nil {
		return Possession{}, false, &ValidationError{Code: "invalid_possession_id"}
	}
	if strings.TrimSpace(input.Name) == "" {
		return Possession{}, false, &ValidationError{Code: "missing_name"}
	}

	var possession Possession
	created := false
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("possession_id = ?", strings.TrimSpace(input.PossessionID)).
			Take(&possession).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logError(opEnsurePossession, "select_failed", err,
				zap.String("possession_id", input.PossessionID))
			return newServiceError(opEnsurePossession, "select_failed", err)
		}

		possession = Possession{
			PossessionID:     strings.TrimSpace(input.PossessionID),
			Name:             strings.TrimSpace(input.Name),
			Opponent:         strings.TrimSpace(input.Opponent),
			GameDate:         strings.TrimSpace(input.GameDate),
			CreatedAtSeconds: s.clock().UTC().Unix(),
		}
		if err := tx.Create(&possession).Error; err != nil {
			s.logError(opEnsurePossession, "insert_failed", err,
				zap.String("possession_id", input.PossessionID))
			return newServiceError(opEnsurePossession, "insert_failed", err)
		}
		created = true
		return nil
	})
	if txErr != nil {
		return Possession{}, false, txErr
	}
	return possession, created, nil
}

// ListPossessions returns every registered possession, newest first.
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

// GetPossession loads one possession by id.
func (s *Service) GetPossession(ctx context.Context, possessionID string) (Possession, error) {
	if err := validateIdentifier(possessionID); err != nil {
		return Possession{}, &ValidationError{Code: "invalid_possession_id"}
	}

	var possession Possession
	err := s.db.WithContext(ctx).
		Where("possession_id = ?", strings.TrimSpace(possessionID)).
		Take(&possession).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Possession{}, newServiceError(opGetPossession, "possession_not_found", ErrPossessionNotFound)
	}
	if err != nil {
		s.logError(opGetPossession, "query_failed", err, zap.String("possession_id", possessionID))
		return Possession{}, newServiceError(opGetPossession, "query_failed", err)
	}
	return possession, nil
}

func validateIdentifier(value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || len(trimmed) > maxIdentifierLength {
		return errors.New("invalid identifier")
	}
	return nil
}

func validateLabel(value string) error {
	return validateIdentifier(value)
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
	s.loggerOrDefault().Error("store service error", attrs...)
}
