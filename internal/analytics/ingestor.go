package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/nulzo/prism-go/internal/store"
	"github.com/nulzo/prism-go/internal/store/model"
	"go.uber.org/zap"
)

// Ingestor persists usage records off the hot path, in batches.
type Ingestor interface {
	// Record queues rec. After Stop it drops rec with a warning.
	Record(rec *model.UsageRecord)
	Start(ctx context.Context)
	// Stop flushes what is buffered and waits for the writer to exit. Without
	// a prior Start the flush runs on the calling goroutine.
	Stop()
}

type ingestor struct {
	logger    *zap.Logger
	repo      store.Repository
	recChan   chan *model.UsageRecord
	batchSize int
	flushTime time.Duration

	mu      sync.RWMutex
	started bool
	stopped bool
	done    chan struct{}
}

func NewIngestor(logger *zap.Logger, repo store.Repository) Ingestor {
	return &ingestor{
		logger:    logger,
		repo:      repo,
		recChan:   make(chan *model.UsageRecord, 10000),
		batchSize: 50,
		flushTime: 5 * time.Second,
		done:      make(chan struct{}),
	}
}

func (i *ingestor) Record(rec *model.UsageRecord) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.stopped {
		i.logger.Warn("usage ingestor stopped, dropping record", zap.String("request_id", rec.RequestID))
		return
	}

	select {
	case i.recChan <- rec:
	default:
		i.logger.Warn("usage buffer full, dropping record", zap.String("request_id", rec.RequestID))
	}
}

func (i *ingestor) Start(ctx context.Context) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.started || i.stopped {
		return
	}
	i.started = true
	go i.worker(ctx)
}

func (i *ingestor) Stop() {
	i.mu.Lock()
	first := !i.stopped
	if first {
		i.stopped = true
		close(i.recChan)
	}
	started := i.started
	i.mu.Unlock()

	if first && !started {
		i.worker(context.Background())
		return
	}
	<-i.done
}

func (i *ingestor) worker(ctx context.Context) {
	defer close(i.done)

	batch := make([]*model.UsageRecord, 0, i.batchSize)
	ticker := time.NewTicker(i.flushTime)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		// one transaction per batch; on failure fall back to single writes
		err := i.repo.WithTx(context.Background(), func(tx store.Repository) error {
			for _, rec := range batch {
				if err := tx.Usage().Record(context.Background(), rec); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			i.logger.Warn("batch write failed, retrying records one by one", zap.Int("records", len(batch)), zap.Error(err))
			for _, rec := range batch {
				if err := i.repo.Usage().Record(context.Background(), rec); err != nil {
					i.logger.Error("failed to persist usage record", zap.String("id", rec.ID), zap.Error(err))
				}
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec, ok := <-i.recChan:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= i.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			// drain what was already queued
			for {
				select {
				case rec, ok := <-i.recChan:
					if !ok {
						flush()
						return
					}
					batch = append(batch, rec)
				default:
					flush()
					return
				}
			}
		}
	}
}
