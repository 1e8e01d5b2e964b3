// Package export renders deterministic CSV snapshots of recorded touch
// events. The column set is versioned: rows produced today must parse the
// same way after future releases, so columns are only ever appended.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/courtsidelabs/painttrack/internal/ledger"
	"go.uber.org/zap"
)

var (
	errMissingLedger = errors.New("ledger service is required")
	noOpLogger       = zap.NewNop()
)

// HeaderV1 is the fixed column set of the v1 export format. The sync state
// column makes offline-exported rows visibly distinguishable from post-sync
// rows.
var HeaderV1 = []string{
	"localId",
	"remoteId",
	"possessionId",
	"paintZone",
	"outcome",
	"quarter",
	"points",
	"notes",
	"timestamp",
	"syncState",
}

// Row is one rendered export line.
type Row struct {
	LocalID      string
	RemoteID     string
	PossessionID string
	PaintZone    string
	Outcome      string
	Quarter      int
	Points       *int64
	Notes        string
	Timestamp    int64
	SyncState    string
}

// RowFromEvent maps a ledger event onto an export row.
func RowFromEvent(event ledger.TouchEvent) Row {
	return Row{
		LocalID:      event.LocalID,
		RemoteID:     event.RemoteID,
		PossessionID: event.PossessionID,
		PaintZone:    event.PaintZone,
		Outcome:      event.Outcome,
		Quarter:      event.Quarter,
		Points:       event.Points,
		Notes:        event.Notes,
		Timestamp:    event.TimestampSeconds,
		SyncState:    string(event.SyncState),
	}
}

// WriteRows renders the v1 header plus one line per row to the writer.
func WriteRows(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(HeaderV1); err != nil {
		return err
	}
	for _, row := range rows {
		points := ""
		if row.Points != nil {
			points = strconv.FormatInt(*row.Points, 10)
		}
		record := []string{
			row.LocalID,
			row.RemoteID,
			row.PossessionID,
			row.PaintZone,
			row.Outcome,
			strconv.Itoa(row.Quarter),
			points,
			row.Notes,
			strconv.FormatInt(row.Timestamp, 10),
			row.SyncState,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

const opExportPossession = "export.export_possession"

// ServiceConfig bundles the dependencies for constructing an export Service.
type ServiceConfig struct {
	Ledger *ledger.Service
	Logger *zap.Logger
}

// Service renders possession snapshots from the local ledger. It performs no
// network access and is a pure function of ledger contents at call time.
type Service struct {
	ledger *ledger.Service
	logger *zap.Logger
}

// NewService validates the configuration and returns an export Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("%s.missing_ledger: %w", opExportPossession, errMissingLedger)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{ledger: cfg.Ledger, logger: logger}, nil
}

// ExportPossession renders every event of a possession, ordered by timestamp
// then local id. A possession with no events yields header-only output.
func (s *Service) ExportPossession(ctx context.Context, possessionID string) ([]byte, error) {
	events, err := s.ledger.ListByPossession(ctx, possessionID)
	if err != nil {
		s.logger.Error("export failed",
			zap.String("operation", opExportPossession),
			zap.String("possession_id", possessionID),
			zap.Error(err))
		return nil, err
	}

	rows := make([]Row, 0, len(events))
	for _, event := range events {
		rows = append(rows, RowFromEvent(event))
	}

	var buf bytes.Buffer
	if err := WriteRows(&buf, rows); err != nil {
		return nil, fmt.Errorf("%s.render_failed: %w", opExportPossession, err)
	}
	return buf.Bytes(), nil
}
