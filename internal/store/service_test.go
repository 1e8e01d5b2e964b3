package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

func newTestService(t *testing.T, ids []string) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:painttrack_store_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&TouchEvent{}, &Possession{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1700000600, 0).UTC() },
		IDProvider: &staticIDGenerator{ids: ids},
	})
	if err != nil {
		t.Fatalf("failed to construct store service: %v", err)
	}
	return service, db
}

func mustEnsurePossession(t *testing.T, service *Service) {
	t.Helper()
	if _, _, err := service.EnsurePossession(context.Background(), PossessionInput{
		PossessionID: "game-1",
		Name:         "vs Hawks",
	}); err != nil {
		t.Fatalf("failed to ensure possession: %v", err)
	}
}

func TestUpsertAssignsRemoteIDOnce(t *testing.T) {
	service, _ := newTestService(t, []string{"remote-1", "remote-never-used"})
	mustEnsurePossession(t, service)
	ctx := context.Background()

	input := TouchEventInput{
		LocalID:      "touch-1",
		PossessionID: "game-1",
		PaintZone:    "left-block",
		Outcome:      "score",
		Timestamp:    1700000100,
	}

	receipt, err := service.UpsertTouchEvent(ctx, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !receipt.Created || receipt.RemoteID != "remote-1" {
		t.Fatalf("unexpected first receipt: %+v", receipt)
	}

	// A retried submission must replay the stored remote id, never insert.
	receipt, err = service.UpsertTouchEvent(ctx, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.Created || receipt.RemoteID != "remote-1" {
		t.Fatalf("unexpected replay receipt: %+v", receipt)
	}

	events, err := service.ListByPossession(ctx, "game-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly one stored record, got %d", len(events))
	}
}

func TestUpsertRejectsUnknownPossession(t *testing.T) {
	service, _ := newTestService(t, []string{"remote-1"})

	_, err := service.UpsertTouchEvent(context.Background(), TouchEventInput{
		LocalID:      "touch-1",
		PossessionID: "missing",
		PaintZone:    "left-block",
		Outcome:      "score",
		Timestamp:    1700000100,
	})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) || validationErr.Code != "possession_not_found" {
		t.Fatalf("expected possession_not_found validation error, got %v", err)
	}
}

func TestUpsertValidatesInput(t *testing.T) {
	service, _ := newTestService(t, []string{"remote-1"})
	mustEnsurePossession(t, service)

	tests := []struct {
		name  string
		input TouchEventInput
		code  string
	}{
		{
			name:  "missing-local-id",
			input: TouchEventInput{PossessionID: "game-1", PaintZone: "z", Outcome: "o", Timestamp: 1},
			code:  "invalid_local_id",
		},
		{
			name:  "missing-paint-zone",
			input: TouchEventInput{LocalID: "t", PossessionID: "game-1", Outcome: "o", Timestamp: 1},
			code:  "invalid_paint_zone",
		},
		{
			name:  "missing-outcome",
			input: TouchEventInput{LocalID: "t", PossessionID: "game-1", PaintZone: "z", Timestamp: 1},
			code:  "invalid_outcome",
		},
		{
			name:  "zero-timestamp",
			input: TouchEventInput{LocalID: "t", PossessionID: "game-1", PaintZone: "z", Outcome: "o"},
			code:  "invalid_timestamp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.UpsertTouchEvent(context.Background(), tt.input)
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) || validationErr.Code != tt.code {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestListByPossessionOrdersByTimestampThenLocalID(t *testing.T) {
	service, _ := newTestService(t, []string{"remote-1", "remote-2", "remote-3"})
	mustEnsurePossession(t, service)
	ctx := context.Background()

	submissions := []TouchEventInput{
		{LocalID: "touch-z", PossessionID: "game-1", PaintZone: "z", Outcome: "score", Timestamp: 1700000100},
		{LocalID: "touch-a", PossessionID: "game-1", PaintZone: "z", Outcome: "miss", Timestamp: 1700000100},
		{LocalID: "touch-m", PossessionID: "game-1", PaintZone: "z", Outcome: "foul", Timestamp: 1700000050},
	}
	for _, input := range submissions {
		if _, err := service.UpsertTouchEvent(ctx, input); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	events, err := service.ListByPossession(ctx, "game-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"touch-m", "touch-a", "touch-z"}
	for i := range want {
		if events[i].LocalID != want[i] {
			t.Fatalf("unexpected order at %d: got %q want %q", i, events[i].LocalID, want[i])
		}
	}
}

func TestEnsurePossessionIsIdempotent(t *testing.T) {
	service, _ := newTestService(t, nil)
	ctx := context.Background()

	input := PossessionInput{PossessionID: "game-1", Name: "vs Hawks", Opponent: "Hawks", GameDate: "2026-03-01"}

	possession, created, err := service.EnsurePossession(ctx, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created || possession.Name != "vs Hawks" {
		t.Fatalf("unexpected first registration: created=%v %+v", created, possession)
	}

	possession, created, err = service.EnsurePossession(ctx, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatalf("expected replayed registration to be deduplicated")
	}

	possessions, err := service.ListPossessions(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(possessions) != 1 {
		t.Fatalf("expected one possession, got %d", len(possessions))
	}
}

func TestGetPossessionNotFound(t *testing.T) {
	service, _ := newTestService(t, nil)
	_, err := service.GetPossession(context.Background(), "missing")
	if !errors.Is(err, ErrPossessionNotFound) {
		t.Fatalf("expected possession not found, got %v", err)
	}
}
