package aggregate

import (
	"context"
	"fmt"

	"pairLedger/internal/model"
	"pairLedger/internal/storage"
)

// FileMetricsStore appends window metrics to a JSONL file.
type FileMetricsStore struct {
	Path string
}

func (s *FileMetricsStore) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	w, err := storage.NewJSONLWriter(s.Path, true)
	if err != nil {
		return err
	}
	for _, m := range metrics {
		if err := w.Write(m); err != nil {
			w.Close()
			return fmt.Errorf("write metrics %s/%s: %w", m.Token0, m.Token1, err)
		}
	}
	return w.Close()
}
