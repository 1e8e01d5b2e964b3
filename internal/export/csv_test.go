package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/courtsidelabs/painttrack/internal/ledger"
)

func newTestExport(t *testing.T) (*Service, *ledger.Service) {
	t.Helper()

	dsn := fmt.Sprintf("file:painttrack_export_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&ledger.TouchEvent{}, &ledger.Possession{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	ledgerService, err := ledger.NewService(ledger.ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1700000600, 0).UTC() },
		IDProvider: ledger.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to construct ledger service: %v", err)
	}

	if _, err := ledgerService.CreatePossession(context.Background(), ledger.PossessionDraft{
		PossessionID: "game-1",
		Name:         "vs Hawks",
	}); err != nil {
		t.Fatalf("failed to create possession: %v", err)
	}

	exportService, err := NewService(ServiceConfig{Ledger: ledgerService})
	if err != nil {
		t.Fatalf("failed to construct export service: %v", err)
	}
	return exportService, ledgerService
}

func TestExportEmptyPossessionYieldsHeaderOnly(t *testing.T) {
	exportService, _ := newTestExport(t)

	output, err := exportService.ExportPossession(context.Background(), "game-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := strings.Join(HeaderV1, ",") + "\n"
	if string(output) != want {
		t.Fatalf("expected header-only output, got %q", output)
	}
}

func TestExportOrdersByTimestampThenLocalID(t *testing.T) {
	exportService, ledgerService := newTestExport(t)
	ctx := context.Background()

	drafts := []ledger.TouchDraft{
		{LocalID: "touch-z", PaintZone: "left-block", Outcome: "score", Timestamp: 1700000100},
		{LocalID: "touch-a", PaintZone: "right-block", Outcome: "miss", Timestamp: 1700000100},
		{LocalID: "touch-m", PaintZone: "restricted-area", Outcome: "foul", Timestamp: 1700000050},
	}
	for _, draft := range drafts {
		if _, err := ledgerService.Append(ctx, draft); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	output, err := exportService.ExportPossession(ctx, "game-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimRight(string(output), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d lines", len(lines))
	}
	wantOrder := []string{"touch-m", "touch-a", "touch-z"}
	for i, localID := range wantOrder {
		if !strings.HasPrefix(lines[i+1], localID+",") {
			t.Fatalf("expected row %d to start with %q, got %q", i+1, localID, lines[i+1])
		}
	}
}

func TestExportIsDeterministic(t *testing.T) {
	exportService, ledgerService := newTestExport(t)
	ctx := context.Background()

	points := int64(2)
	if _, err := ledgerService.Append(ctx, ledger.TouchDraft{
		LocalID:   "touch-1",
		PaintZone: "left-block",
		Outcome:   "score",
		Quarter:   3,
		Points:    &points,
		Notes:     "and-one",
		Timestamp: 1700000100,
	}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	first, err := exportService.ExportPossession(ctx, "game-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := exportService.ExportPossession(ctx, "game-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("export output changed between identical calls:\n%q\n%q", first, second)
	}
}

func TestExportShowsSyncStateAndOptionalColumns(t *testing.T) {
	exportService, ledgerService := newTestExport(t)
	ctx := context.Background()

	if _, err := ledgerService.Append(ctx, ledger.TouchDraft{
		LocalID:   "touch-offline",
		PaintZone: "left-block",
		Outcome:   "score",
		Timestamp: 1700000100,
	}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	output, err := exportService.ExportPossession(ctx, "game-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "touch-offline,,game-1,left-block,score,0,,,1700000100,pending\n"
	if !strings.HasSuffix(string(output), want) {
		t.Fatalf("unexpected row rendering: %q", output)
	}

	if err := ledgerService.MarkSynced(ctx, "touch-offline", "remote-1"); err != nil {
		t.Fatalf("mark synced failed: %v", err)
	}
	output, err = exportService.ExportPossession(ctx, "game-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(output), "touch-offline,remote-1,") ||
		!strings.HasSuffix(string(output), ",synced\n") {
		t.Fatalf("expected synced row, got %q", output)
	}
}
