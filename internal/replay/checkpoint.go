package replay

import (
	"fmt"
	"time"

	"pairLedger/internal/storage/atomicfile"
)

// Checkpoint marks the last request line covered by a persisted snapshot.
type Checkpoint struct {
	LastProcessedLine uint64 `json:"last_processed_line"`
	LastSeq           uint64 `json:"last_seq"`
	UpdatedAt         string `json:"updated_at"`
}

// CheckpointStore persists checkpoints to disk. A disabled store loads
// nothing and saves nothing.
type CheckpointStore struct {
	path    string
	enabled bool
}

func NewCheckpointStore(path string, enabled bool) *CheckpointStore {
	return &CheckpointStore{path: path, enabled: enabled && path != ""}
}

func (c *CheckpointStore) Load() (Checkpoint, bool, error) {
	if !c.enabled {
		return Checkpoint{}, false, nil
	}
	var cp Checkpoint
	ok, err := atomicfile.ReadJSON(c.path, &cp)
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("load checkpoint: %w", err)
	}
	return cp, ok, nil
}

func (c *CheckpointStore) Save(lastLine, lastSeq uint64) error {
	if !c.enabled {
		return nil
	}
	cp := Checkpoint{
		LastProcessedLine: lastLine,
		LastSeq:           lastSeq,
		UpdatedAt:         time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := atomicfile.WriteJSON(c.path, cp, false); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
