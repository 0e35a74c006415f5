package aggregate

import (
	"context"
	"fmt"
	"time"

	"pairLedger/internal/storage/atomicfile"
)

// StateStore persists the last aggregated event sequence.
type StateStore interface {
	Load(ctx context.Context) (uint64, bool, error)
	Save(ctx context.Context, seq uint64) error
}

// FileStateStore stores state in a local JSON file.
type FileStateStore struct {
	Path string
}

type stateRecord struct {
	LastProcessed uint64 `json:"last_processed_seq"`
	UpdatedAt     string `json:"updated_at"`
}

func (s *FileStateStore) Load(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.Path == "" {
		return 0, false, nil
	}
	var rec stateRecord
	ok, err := atomicfile.ReadJSON(s.Path, &rec)
	if err != nil {
		return 0, false, fmt.Errorf("load state: %w", err)
	}
	return rec.LastProcessed, ok, nil
}

func (s *FileStateStore) Save(ctx context.Context, seq uint64) error {
	if s == nil || s.Path == "" {
		return nil
	}
	rec := stateRecord{
		LastProcessed: seq,
		UpdatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := atomicfile.WriteJSON(s.Path, rec, false); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
