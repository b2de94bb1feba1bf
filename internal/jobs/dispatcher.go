package jobs

import (
	"context"
	"errors"
	"sync"

	"strategiq-backend/internal/queue"
	"strategiq-backend/internal/shared/telemetry"
)

// Dispatcher consumes the in-process queue and runs the processor with
// bounded concurrency. It serves single-binary deployments; the SQS worker
// binary covers the distributed case.
type Dispatcher struct {
	Queue       *queue.MemoryClient
	Processor   *Processor
	Concurrency int
}

// Run consumes messages until the context ends, then waits for in-flight
// jobs to drain.
func (d *Dispatcher) Run(ctx context.Context) {
	concurrency := d.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	telemetry.Info("dispatcher.started", map[string]any{"concurrency": concurrency})

	for {
		msg, err := d.Queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			telemetry.Error("dispatcher.receive_failed", map[string]any{"error": err.Error()})
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}

		wg.Add(1)
		go func(msg queue.Message) {
			defer wg.Done()
			defer func() { <-sem }()
			jobCtx := WithRequestID(context.Background(), msg.RequestID)
			if err := d.Processor.ProcessJob(jobCtx, msg.JobID); err != nil {
				telemetry.Error("dispatcher.process_failed", map[string]any{
					"job_id": msg.JobID,
					"error":  err.Error(),
				})
			}
		}(msg)
	}

	wg.Wait()
	telemetry.Info("dispatcher.stopped", nil)
}
