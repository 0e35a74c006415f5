package storage

import "pairLedger/internal/model"

// Storage defines a sink for committed ledger events.
type Storage interface {
	PutEventBatch(events []model.LedgerEvent) error
}
