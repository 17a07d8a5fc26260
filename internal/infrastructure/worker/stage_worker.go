package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/pkg/utils"
)

// JobHandler runs one stage job
type JobHandler interface {
	Handle(ctx context.Context, job port.StageJob) error
}

// StageWorker consumes stage jobs with a fixed number of goroutines. A job
// whose handler fails is nacked so the queue decides whether to retry it.
type StageWorker struct {
	queue       port.StageQueue
	handler     JobHandler
	concurrency int
	logger      *zap.Logger

	mu        sync.Mutex
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	running   bool
	processed atomic.Int64
	failed    atomic.Int64
}

// NewStageWorker creates a new stage worker
func NewStageWorker(queue port.StageQueue, handler JobHandler, concurrency int, logger *zap.Logger) *StageWorker {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StageWorker{
		queue:       queue,
		handler:     handler,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Name returns the worker name for identification
func (w *StageWorker) Name() string {
	return "StageWorker"
}

// Start launches the consumer goroutines
func (w *StageWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("stage worker already running")
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.running = true
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.consumeLoop(ctx, i)
	}

	w.logger.Info("StageWorker started", zap.Int("concurrency", w.concurrency))
	return nil
}

// Stop cancels the consumers and waits for in-flight jobs to finish
func (w *StageWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("StageWorker stopped",
		zap.Int64("processed", w.processed.Load()),
		zap.Int64("failed", w.failed.Load()))
	return nil
}

// Stats returns the number of acked and nacked jobs
func (w *StageWorker) Stats() (processed, failed int64) {
	return w.processed.Load(), w.failed.Load()
}

func (w *StageWorker) consumeLoop(ctx context.Context, id int) {
	defer w.wg.Done()

	for {
		msg, err := w.queue.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Info("Stage queue closed, consumer exiting",
				zap.Int("consumer", id),
				zap.Error(err))
			return
		}
		w.process(ctx, msg)
	}
}

func (w *StageWorker) process(ctx context.Context, msg port.Message[port.StageJob]) {
	job := *msg.T()
	log := utils.ClaimLogger(w.logger, "", job.ClaimID).With(utils.StageFields("", job.StageIndex)...)

	err := w.safeHandle(ctx, job)
	if err == nil {
		w.processed.Add(1)
		if ackErr := msg.Ack(); ackErr != nil {
			log.Warn("Ack failed", zap.Error(ackErr))
		}
		return
	}

	w.failed.Add(1)
	log.Warn("Stage job failed",
		zap.Int("attempt", msg.Attempt()),
		zap.Error(err))
	if nackErr := msg.Nack(err); nackErr != nil {
		log.Warn("Nack failed", zap.Error(nackErr))
	}
}

func (w *StageWorker) safeHandle(ctx context.Context, job port.StageJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in stage job: %v", r)
		}
	}()
	return w.handler.Handle(ctx, job)
}
