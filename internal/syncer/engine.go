// Package syncer reconciles the local ledger against the remote store: one
// pass pushes every pending event in order and reflects acknowledgments back
// into the ledger. A pass is safe to repeat; the remote store deduplicates by
// local id, so a retried push can never create a second record.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/courtsidelabs/painttrack/internal/ledger"
	"github.com/courtsidelabs/painttrack/internal/remote"
	"go.uber.org/zap"
)

var (
	errMissingLedger = errors.New("syncer: ledger is required")
	errMissingRemote = errors.New("syncer: remote pusher is required")
	noOpLogger       = zap.NewNop()

	// ErrPassInFlight rejects a sync pass started while another is running.
	// At most one pass runs per device; two overlapping passes would read
	// overlapping pending sets.
	ErrPassInFlight = errors.New("syncer: sync pass already in flight")
)

// Ledger is the slice of the local ledger the engine needs.
type Ledger interface {
	ListPending(ctx context.Context, retryAllFailed bool) ([]ledger.TouchEvent, error)
	MarkSynced(ctx context.Context, localID, remoteID string) error
	MarkFailed(ctx context.Context, localID, reason string) error
}

// Pusher submits one touch event to the remote store.
type Pusher interface {
	PushTouchEvent(ctx context.Context, payload remote.TouchEventPayload) (remote.Ack, error)
}

// FailedPush names one event the remote store rejected, for UI display.
type FailedPush struct {
	LocalID string
	Reason  string
}

// Summary reports the outcome of one sync pass. Sent counts push attempts
// issued, Synced newly acknowledged events, Failed validation rejections and
// Untried events the pass never attempted.
type Summary struct {
	Sent     int
	Synced   int
	Failed   int
	Untried  int
	Failures []FailedPush
}

// IncompleteError reports a pass aborted by a transport failure or
// cancellation. Progress made before the abort is preserved, never rolled
// back; the caller retries by running another pass.
type IncompleteError struct {
	Summary Summary
	Cause   error
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("syncer: pass incomplete (synced %d, failed %d, untried %d): %v",
		e.Summary.Synced, e.Summary.Failed, e.Summary.Untried, e.Cause)
}

func (e *IncompleteError) Unwrap() error {
	return e.Cause
}

// Options tunes a single pass.
type Options struct {
	// RetryFailed re-enters every Failed event into the push set, not just
	// the ones individually flagged for retry.
	RetryFailed bool
}

// EngineConfig bundles the dependencies for constructing an Engine.
type EngineConfig struct {
	Ledger Ledger
	Remote Pusher
	Logger *zap.Logger
}

// Engine runs reconciliation passes. One Engine serves one device.
type Engine struct {
	ledger   Ledger
	remote   Pusher
	logger   *zap.Logger
	inFlight atomic.Bool
}

// NewEngine validates the configuration and returns an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Ledger == nil {
		return nil, errMissingLedger
	}
	if cfg.Remote == nil {
		return nil, errMissingRemote
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Engine{ledger: cfg.Ledger, remote: cfg.Remote, logger: logger}, nil
}

// Run executes one reconciliation pass. The push set is snapshotted up
// front; events appended mid-pass wait for the next invocation. Validation
// rejections mark single events Failed and never abort the pass. A transport
// failure aborts the remainder and returns the partial Summary inside an
// *IncompleteError. Cancellation stops further pushes after the in-flight
// one; untouched events stay Pending.
func (e *Engine) Run(ctx context.Context, opts Options) (Summary, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return Summary{}, ErrPassInFlight
	}
	defer e.inFlight.Store(false)

	snapshot, err := e.ledger.ListPending(ctx, opts.RetryFailed)
	if err != nil {
		return Summary{}, err
	}

	e.logger.Info("sync pass started",
		zap.Int("pending", len(snapshot)),
		zap.Bool("retry_failed", opts.RetryFailed))

	// Cancellation stops further pushes, but an acknowledgment already
	// received must still reach the ledger or the record would be
	// resubmitted as if never sent.
	ackCtx := context.WithoutCancel(ctx)

	var summary Summary
	for i, event := range snapshot {
		if ctx.Err() != nil {
			summary.Untried = len(snapshot) - i
			e.logPassAborted(summary, ctx.Err())
			return summary, &IncompleteError{Summary: summary, Cause: ctx.Err()}
		}

		summary.Sent++
		ack, pushErr := e.remote.PushTouchEvent(ctx, payloadFromEvent(event))
		if pushErr != nil {
			var validationErr *remote.ValidationError
			if errors.As(pushErr, &validationErr) {
				if markErr := e.ledger.MarkFailed(ackCtx, event.LocalID, validationErr.Code); markErr != nil {
					return summary, markErr
				}
				summary.Failed++
				summary.Failures = append(summary.Failures, FailedPush{
					LocalID: event.LocalID,
					Reason:  validationErr.Code,
				})
				e.logger.Warn("touch event rejected",
					zap.String("local_id", event.LocalID),
					zap.String("reason", validationErr.Code))
				continue
			}

			summary.Untried = len(snapshot) - i - 1
			e.logPassAborted(summary, pushErr)
			return summary, &IncompleteError{Summary: summary, Cause: pushErr}
		}

		if markErr := e.ledger.MarkSynced(ackCtx, event.LocalID, ack.RemoteID); markErr != nil {
			// ConflictingAck and storage errors are not recoverable in-pass.
			return summary, markErr
		}
		summary.Synced++
	}

	e.logger.Info("sync pass completed",
		zap.Int("sent", summary.Sent),
		zap.Int("synced", summary.Synced),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

func (e *Engine) logPassAborted(summary Summary, cause error) {
	e.logger.Warn("sync pass aborted",
		zap.Int("sent", summary.Sent),
		zap.Int("synced", summary.Synced),
		zap.Int("failed", summary.Failed),
		zap.Int("untried", summary.Untried),
		zap.Error(cause))
}

func payloadFromEvent(event ledger.TouchEvent) remote.TouchEventPayload {
	return remote.TouchEventPayload{
		LocalID:      event.LocalID,
		PossessionID: event.PossessionID,
		PaintZone:    event.PaintZone,
		Outcome:      event.Outcome,
		Quarter:      event.Quarter,
		Points:       event.Points,
		Notes:        event.Notes,
		Timestamp:    event.TimestampSeconds,
	}
}
