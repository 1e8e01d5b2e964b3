package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestAppendAssignsLocalIDAndActivePossession(t *testing.T) {
	service, db := newTestService(t, []string{"game-1", "touch-1"})
	possession := mustCreatePossession(t, service, PossessionDraft{Name: "vs Hawks"})

	event := mustAppend(t, service, TouchDraft{PaintZone: "left-block", Outcome: "score"})

	if event.LocalID != "touch-1" {
		t.Fatalf("expected generated local id, got %q", event.LocalID)
	}
	if event.PossessionID != possession.PossessionID {
		t.Fatalf("expected event to attach to active possession")
	}
	if event.SyncState != SyncStatePending {
		t.Fatalf("expected pending state, got %q", event.SyncState)
	}
	if event.TimestampSeconds != 1700000600 {
		t.Fatalf("expected clock timestamp, got %d", event.TimestampSeconds)
	}

	var stored TouchEvent
	if err := db.Where("local_id = ?", "touch-1").Take(&stored).Error; err != nil {
		t.Fatalf("failed to load stored event: %v", err)
	}
	if stored.PaintZone != "left-block" || stored.Outcome != "score" {
		t.Fatalf("unexpected stored attributes: %+v", stored)
	}
}

func TestAppendRejectsUnknownPossession(t *testing.T) {
	service, _ := newTestService(t, nil)

	_, err := service.Append(context.Background(), TouchDraft{
		LocalID:      "touch-1",
		PossessionID: "missing",
		PaintZone:    "restricted-area",
		Outcome:      "miss",
	})
	if !errors.Is(err, ErrPossessionNotFound) {
		t.Fatalf("expected possession not found, got %v", err)
	}
}

func TestAppendFailsWithoutActivePossession(t *testing.T) {
	service, _ := newTestService(t, []string{"touch-1"})

	_, err := service.Append(context.Background(), TouchDraft{PaintZone: "left-block", Outcome: "score"})
	if !errors.Is(err, ErrNoActivePossession) {
		t.Fatalf("expected no active possession, got %v", err)
	}
}

func TestListPendingKeepsInsertionOrder(t *testing.T) {
	service, _ := newTestService(t, []string{"game-1"})
	mustCreatePossession(t, service, PossessionDraft{Name: "vs Hawks"})

	// Insert with descending timestamps so insertion order differs from time order.
	for i, localID := range []string{"touch-a", "touch-b", "touch-c"} {
		mustAppend(t, service, TouchDraft{
			LocalID:   localID,
			PaintZone: "left-block",
			Outcome:   "score",
			Timestamp: int64(1700000500 - i),
		})
	}

	pending, err := service.ListPending(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending events, got %d", len(pending))
	}
	for i, want := range []string{"touch-a", "touch-b", "touch-c"} {
		if pending[i].LocalID != want {
			t.Fatalf("expected %q at position %d, got %q", want, i, pending[i].LocalID)
		}
	}
}

func TestListPendingExcludesSyncedAndUnflaggedFailed(t *testing.T) {
	service, _ := newTestService(t, []string{"game-1"})
	mustCreatePossession(t, service, PossessionDraft{Name: "vs Hawks"})
	ctx := context.Background()

	mustAppend(t, service, TouchDraft{LocalID: "touch-synced", PaintZone: "left-block", Outcome: "score"})
	mustAppend(t, service, TouchDraft{LocalID: "touch-failed", PaintZone: "left-block", Outcome: "score"})
	mustAppend(t, service, TouchDraft{LocalID: "touch-pending", PaintZone: "left-block", Outcome: "score"})

	if err := service.MarkSynced(ctx, "touch-synced", "remote-1"); err != nil {
		t.Fatalf("mark synced failed: %v", err)
	}
	if err := service.MarkFailed(ctx, "touch-failed", "bad possession"); err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}

	pending, err := service.ListPending(ctx, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 1 || pending[0].LocalID != "touch-pending" {
		t.Fatalf("expected only the pending event, got %+v", pending)
	}

	if err := service.RequestRetry(ctx, "touch-failed"); err != nil {
		t.Fatalf("request retry failed: %v", err)
	}
	pending, err = service.ListPending(ctx, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected retry-flagged event in push set, got %d events", len(pending))
	}
}

func TestListPendingRetryAllIncludesFailed(t *testing.T) {
	service, _ := newTestService(t, []string{"game-1"})
	mustCreatePossession(t, service, PossessionDraft{Name: "vs Hawks"})
	ctx := context.Background()

	mustAppend(t, service, TouchDraft{LocalID: "touch-1", PaintZone: "left-block", Outcome: "score"})
	if err := service.MarkFailed(ctx, "touch-1", "invalid outcome"); err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}

	pending, err := service.ListPending(ctx, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 1 || pending[0].LocalID != "touch-1" {
		t.Fatalf("expected failed event with retry-all, got %+v", pending)
	}
}

func TestListByPossessionOrdersByTimestampThenLocalID(t *testing.T) {
	service, _ := newTestService(t, []string{"game-1"})
	possession := mustCreatePossession(t, service, PossessionDraft{Name: "vs Hawks"})

	mustAppend(t, service, TouchDraft{LocalID: "touch-z", PaintZone: "left-block", Outcome: "score", Timestamp: 1700000100})
	mustAppend(t, service, TouchDraft{LocalID: "touch-a", PaintZone: "left-block", Outcome: "miss", Timestamp: 1700000100})
	mustAppend(t, service, TouchDraft{LocalID: "touch-m", PaintZone: "left-block", Outcome: "foul", Timestamp: 1700000050})

	events, err := service.ListByPossession(context.Background(), possession.PossessionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := make([]string, 0, len(events))
	for _, event := range events {
		got = append(got, event.LocalID)
	}
	want := []string{"touch-m", "touch-a", "touch-z"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order %v, want %v", got, want)
		}
	}
}

func TestMarkSyncedIsIdempotentAndDetectsConflicts(t *testing.T) {
	service, _ := newTestService(t, []string{"game-1"})
	mustCreatePossession(t, service, PossessionDraft{Name: "vs Hawks"})
	ctx := context.Background()

	mustAppend(t, service, TouchDraft{LocalID: "touch-1", PaintZone: "left-block", Outcome: "score"})

	if err := service.MarkSynced(ctx, "touch-1", "remote-1"); err != nil {
		t.Fatalf("mark synced failed: %v", err)
	}
	if err := service.MarkSynced(ctx, "touch-1", "remote-1"); err != nil {
		t.Fatalf("replaying the same ack should be a no-op: %v", err)
	}
	if err := service.MarkSynced(ctx, "touch-1", "remote-2"); !errors.Is(err, ErrConflictingAck) {
		t.Fatalf("expected conflicting ack, got %v", err)
	}

	events, err := service.ListByPossession(ctx, "game-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if events[0].SyncState != SyncStateSynced || events[0].RemoteID != "remote-1" {
		t.Fatalf("unexpected synced event state: %+v", events[0])
	}
}

func TestMarkSyncedUnknownEvent(t *testing.T) {
	service, _ := newTestService(t, nil)
	err := service.MarkSynced(context.Background(), "missing", "remote-1")
	if !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected event not found, got %v", err)
	}
}

func TestMarkFailedRecordsReasonAndIsIdempotent(t *testing.T) {
	service, _ := newTestService(t, []string{"game-1"})
	mustCreatePossession(t, service, PossessionDraft{Name: "vs Hawks"})
	ctx := context.Background()

	mustAppend(t, service, TouchDraft{LocalID: "touch-1", PaintZone: "left-block", Outcome: "score"})

	if err := service.MarkFailed(ctx, "touch-1", "possession_not_found"); err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}
	if err := service.MarkFailed(ctx, "touch-1", "possession_not_found"); err != nil {
		t.Fatalf("replaying the same failure should be a no-op: %v", err)
	}

	events, err := service.ListByPossession(ctx, "game-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if events[0].SyncState != SyncStateFailed || events[0].FailureReason != "possession_not_found" {
		t.Fatalf("unexpected failed event state: %+v", events[0])
	}
}

func TestMarkFailedRejectsSyncedEvent(t *testing.T) {
	service, _ := newTestService(t, []string{"game-1"})
	mustCreatePossession(t, service, PossessionDraft{Name: "vs Hawks"})
	ctx := context.Background()

	mustAppend(t, service, TouchDraft{LocalID: "touch-1", PaintZone: "left-block", Outcome: "score"})
	if err := service.MarkSynced(ctx, "touch-1", "remote-1"); err != nil {
		t.Fatalf("mark synced failed: %v", err)
	}
	if err := service.MarkFailed(ctx, "touch-1", "late rejection"); !errors.Is(err, ErrConflictingAck) {
		t.Fatalf("expected conflicting ack for synced event, got %v", err)
	}
}

func TestRequestRetryRequiresFailedState(t *testing.T) {
	service, _ := newTestService(t, []string{"game-1"})
	mustCreatePossession(t, service, PossessionDraft{Name: "vs Hawks"})

	mustAppend(t, service, TouchDraft{LocalID: "touch-1", PaintZone: "left-block", Outcome: "score"})

	if err := service.RequestRetry(context.Background(), "touch-1"); !errors.Is(err, ErrNotFailed) {
		t.Fatalf("expected not-failed error, got %v", err)
	}
}

func TestCreatePossessionSwitchesActive(t *testing.T) {
	service, _ := newTestService(t, nil)
	ctx := context.Background()

	first := mustCreatePossession(t, service, PossessionDraft{PossessionID: "game-1", Name: "vs Hawks"})
	second := mustCreatePossession(t, service, PossessionDraft{PossessionID: "game-2", Name: "vs Bulls"})

	active, err := service.ActivePossession(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active.PossessionID != second.PossessionID {
		t.Fatalf("expected newest possession active, got %q", active.PossessionID)
	}

	if err := service.ActivatePossession(ctx, first.PossessionID); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	active, err = service.ActivePossession(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active.PossessionID != "game-1" {
		t.Fatalf("expected game-1 active, got %q", active.PossessionID)
	}

	possessions, err := service.ListPossessions(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	activeCount := 0
	for _, possession := range possessions {
		if possession.Active {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Fatalf("expected exactly one active possession, got %d", activeCount)
	}
}

func TestClosePossessionKeepsEventsAndBlocksActivation(t *testing.T) {
	service, _ := newTestService(t, nil)
	ctx := context.Background()

	mustCreatePossession(t, service, PossessionDraft{PossessionID: "game-1", Name: "vs Hawks"})
	mustAppend(t, service, TouchDraft{LocalID: "touch-1", PaintZone: "left-block", Outcome: "score"})

	if err := service.ClosePossession(ctx, "game-1"); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	events, err := service.ListByPossession(ctx, "game-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected events to survive close, got %d", len(events))
	}

	if err := service.ActivatePossession(ctx, "game-1"); !errors.Is(err, ErrPossessionClosed) {
		t.Fatalf("expected possession closed, got %v", err)
	}
	if _, err := service.ActivePossession(ctx); !errors.Is(err, ErrNoActivePossession) {
		t.Fatalf("expected no active possession, got %v", err)
	}
}

func TestLedgerSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	open := func() (*Service, *gorm.DB) {
		db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
		if err != nil {
			t.Fatalf("failed to open sqlite: %v", err)
		}
		if err := db.AutoMigrate(&TouchEvent{}, &Possession{}); err != nil {
			t.Fatalf("failed to migrate: %v", err)
		}
		service, err := NewService(ServiceConfig{
			Database:   db,
			Clock:      func() time.Time { return time.Unix(1700000600, 0).UTC() },
			IDProvider: NewUUIDProvider(),
		})
		if err != nil {
			t.Fatalf("failed to construct service: %v", err)
		}
		return service, db
	}

	service, db := open()
	mustCreatePossession(t, service, PossessionDraft{PossessionID: "game-1", Name: "vs Hawks"})
	recorded := mustAppend(t, service, TouchDraft{
		LocalID:   "touch-1",
		PaintZone: "left-block",
		Outcome:   "score",
		Timestamp: 1700000100,
	})
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		t.Fatalf("failed to close database: %v", err)
	}

	service, _ = open()
	events, err := service.ListByPossession(ctx, "game-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected recorded event to survive reopen, got %d", len(events))
	}
	if events[0].LocalID != recorded.LocalID ||
		events[0].PaintZone != recorded.PaintZone ||
		events[0].Outcome != recorded.Outcome ||
		events[0].TimestampSeconds != recorded.TimestampSeconds ||
		events[0].SyncState != SyncStatePending {
		t.Fatalf("event content changed across reopen: %+v", events[0])
	}
}
