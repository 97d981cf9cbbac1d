package history

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alexisbeaulieu97/jumpgate/internal/infrastructure/logging"
	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

const (
	defaultFlushInterval = 2 * time.Second
	defaultBatchSize     = 20
	flushTimeout         = 5 * time.Second
)

// WriterOptions tunes the batching behaviour.
type WriterOptions struct {
	FlushInterval time.Duration
	BatchSize     int
	// MaxRows prunes the store to this many rows after each flush; zero disables.
	MaxRows int
	Logger  ports.Logger
}

// Writer buffers entries and persists them in batches off the request path.
// Entries are dropped when the buffer is full.
type Writer struct {
	store         ports.HistoryStore
	ch            chan ports.HistoryEntry
	stop          chan struct{}
	flushInterval time.Duration
	batchSize     int
	maxRows       int
	logger        ports.Logger
	dropped       atomic.Int64
	closeOnce     sync.Once
	wg            sync.WaitGroup
}

// NewWriter starts the background flush loop.
func NewWriter(store ports.HistoryStore, opts WriterOptions) *Writer {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	w := &Writer{
		store:         store,
		ch:            make(chan ports.HistoryEntry, opts.BatchSize*4),
		stop:          make(chan struct{}),
		flushInterval: opts.FlushInterval,
		batchSize:     opts.BatchSize,
		maxRows:       opts.MaxRows,
		logger:        logger.With("component", "history"),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *Writer) loop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]ports.HistoryEntry, 0, w.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := w.store.SaveBatch(ctx, batch); err != nil {
			w.logger.Error(ctx, "history flush failed", "entries", len(batch), "error", err)
		} else if w.maxRows > 0 {
			if _, err := w.store.Prune(ctx, w.maxRows); err != nil {
				w.logger.Warn(ctx, "history prune failed", "error", err)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-w.ch:
			batch = append(batch, entry)
			if len(batch) >= w.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.stop:
			for {
				select {
				case entry := <-w.ch:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Record implements ports.HistoryRecorder.
func (w *Writer) Record(entry ports.HistoryEntry) {
	select {
	case w.ch <- entry:
	default:
		w.dropped.Add(1)
	}
}

// Dropped reports how many entries were discarded because the buffer was full.
func (w *Writer) Dropped() int64 { return w.dropped.Load() }

// Close flushes pending entries and stops the loop.
func (w *Writer) Close() {
	w.closeOnce.Do(func() {
		close(w.stop)
		w.wg.Wait()
	})
}

var _ ports.HistoryRecorder = (*Writer)(nil)
