package ledger

import (
	"context"
	"fmt"

	"pairLedger/internal/model"
	"pairLedger/internal/storage/atomicfile"
)

// SnapshotStore persists ledger snapshots.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context) (model.LedgerSnapshot, bool, error)
	SaveSnapshot(ctx context.Context, snap model.LedgerSnapshot) error
}

// FileSnapshotStore stores the snapshot in a local JSON file.
type FileSnapshotStore struct {
	Path string
}

func (s *FileSnapshotStore) LoadSnapshot(ctx context.Context) (model.LedgerSnapshot, bool, error) {
	if s == nil || s.Path == "" {
		return model.LedgerSnapshot{}, false, nil
	}
	var snap model.LedgerSnapshot
	ok, err := atomicfile.ReadJSON(s.Path, &snap)
	if err != nil {
		return model.LedgerSnapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	return snap, ok, nil
}

func (s *FileSnapshotStore) SaveSnapshot(ctx context.Context, snap model.LedgerSnapshot) error {
	if s == nil || s.Path == "" {
		return nil
	}
	if err := atomicfile.WriteJSON(s.Path, snap, true); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadInto restores the stored snapshot into l. It reports whether one was found.
func LoadInto(ctx context.Context, store SnapshotStore, l *Ledger) (bool, error) {
	if store == nil {
		return false, nil
	}
	snap, ok, err := store.LoadSnapshot(ctx)
	if err != nil || !ok {
		return false, err
	}
	if err := l.Restore(snap); err != nil {
		return false, err
	}
	return true, nil
}
