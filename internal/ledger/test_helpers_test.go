package ledger

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

	dsn := fmt.Sprintf("file:painttrack_ledger_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&TouchEvent{}, &Possession{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	generator := &staticIDGenerator{ids: ids}
	clock := func() time.Time { return time.Unix(1700000600, 0).UTC() }

	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: generator,
	})
	if err != nil {
		t.Fatalf("failed to construct ledger service: %v", err)
	}

	return service, db
}

func mustCreatePossession(t *testing.T, service *Service, draft PossessionDraft) Possession {
	t.Helper()
	possession, err := service.CreatePossession(context.Background(), draft)
	if err != nil {
		t.Fatalf("unexpected possession error: %v", err)
	}
	return possession
}

func mustAppend(t *testing.T, service *Service, draft TouchDraft) TouchEvent {
	t.Helper()
	event, err := service.Append(context.Background(), draft)
	if err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}
	return event
}
