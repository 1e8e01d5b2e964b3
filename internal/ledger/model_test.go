package ledger

import (
	"errors"
	"strings"
	"testing"
)

func TestNewLocalIDValidation(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
		want    string
	}{
		{name: "valid", input: "touch-1", want: "touch-1"},
		{name: "trims-whitespace", input: "  touch-2  ", want: "touch-2"},
		{name: "empty", input: "", wantErr: ErrInvalidLocalID},
		{name: "whitespace-only", input: "   ", wantErr: ErrInvalidLocalID},
		{name: "too-long", input: strings.Repeat("a", 191), wantErr: ErrInvalidLocalID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := NewLocalID(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id.String() != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, id.String())
			}
		})
	}
}

func TestNewPossessionIDRejectsEmpty(t *testing.T) {
	if _, err := NewPossessionID(" "); !errors.Is(err, ErrInvalidPossessionID) {
		t.Fatalf("expected invalid possession id, got %v", err)
	}
}

func TestNewPaintZoneRejectsOversized(t *testing.T) {
	if _, err := NewPaintZone(strings.Repeat("z", 200)); !errors.Is(err, ErrInvalidPaintZone) {
		t.Fatalf("expected invalid paint zone, got %v", err)
	}
}

func TestNewOutcomeRejectsEmpty(t *testing.T) {
	if _, err := NewOutcome(""); !errors.Is(err, ErrInvalidOutcome) {
		t.Fatalf("expected invalid outcome, got %v", err)
	}
}

func TestNewUnixTimestampRejectsNonPositive(t *testing.T) {
	for _, value := range []int64{0, -5} {
		if _, err := NewUnixTimestamp(value); !errors.Is(err, ErrInvalidTimestamp) {
			t.Fatalf("expected invalid timestamp for %d, got %v", value, err)
		}
	}
	ts, err := NewUnixTimestamp(1700000000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.Int64() != 1700000000 {
		t.Fatalf("unexpected value %d", ts.Int64())
	}
}
