package storage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"pairLedger/internal/ledger"
	"pairLedger/internal/model"
)

const maxFlushDelay = 30 * time.Second

// EventStream is a ledger notifier that hands committed events to a
// background writer, which flushes them to a Storage in batches. A failed
// flush keeps the batch and is retried with a doubling delay; while a full
// batch is pending, Notify blocks once the buffer fills up.
type EventStream struct {
	sink      Storage
	logger    *zap.Logger
	interval  time.Duration
	retryBase time.Duration
	maxBatch  int

	events chan model.LedgerEvent
	done   chan struct{}
	once   sync.Once
}

func NewEventStream(sink Storage, buffer int, interval time.Duration, logger *zap.Logger) *EventStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 1024
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &EventStream{
		sink:      sink,
		logger:    logger,
		interval:  interval,
		retryBase: 100 * time.Millisecond,
		maxBatch:  buffer,
		events:    make(chan model.LedgerEvent, buffer),
		done:      make(chan struct{}),
	}
}

// Notify queues the event. It blocks while the buffer is full and drops the
// event once the stream has stopped.
func (s *EventStream) Notify(ev ledger.Event) {
	select {
	case <-s.done:
		s.logger.Warn("event stream stopped, dropping event", zap.Uint64("seq", ev.Seq))
		return
	default:
	}
	select {
	case s.events <- ev.Record():
	case <-s.done:
		s.logger.Warn("event stream stopped, dropping event", zap.Uint64("seq", ev.Seq))
	}
}

// Run writes queued events until ctx is canceled, then flushes what is left.
// Only the final flush error is returned.
func (s *EventStream) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var (
		batch = make([]model.LedgerEvent, 0, s.maxBatch)
		delay time.Duration
		retry <-chan time.Time
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.sink.PutEventBatch(batch); err != nil {
			return err
		}
		s.logger.Debug("events flushed", zap.Int("events", len(batch)), zap.Uint64("last_seq", batch[len(batch)-1].Seq))
		batch = make([]model.LedgerEvent, 0, s.maxBatch)
		return nil
	}
	attempt := func() {
		err := flush()
		if err == nil {
			delay, retry = 0, nil
			return
		}
		if delay == 0 {
			delay = s.retryBase
		} else {
			delay *= 2
		}
		if delay > maxFlushDelay {
			delay = maxFlushDelay
		}
		s.logger.Warn("flush events failed, retrying",
			zap.Error(err),
			zap.Int("pending", len(batch)),
			zap.Duration("backoff", delay),
		)
		retry = time.After(delay)
	}

	for {
		events := s.events
		if len(batch) >= s.maxBatch {
			events = nil
		}

		select {
		case ev := <-events:
			batch = append(batch, ev)
			if len(batch) >= s.maxBatch && retry == nil {
				attempt()
			}
		case <-retry:
			retry = nil
			attempt()
		case <-ticker.C:
			if retry == nil {
				attempt()
			}
		case <-ctx.Done():
			s.stop()
			for {
				select {
				case ev := <-s.events:
					batch = append(batch, ev)
				default:
					return flush()
				}
			}
		}
	}
}

func (s *EventStream) stop() {
	s.once.Do(func() { close(s.done) })
}
