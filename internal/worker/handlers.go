package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shaiso/Pipeworks/internal/queue"
	"github.com/shaiso/Pipeworks/internal/repo"
)

// handle выполняет задачу и подтверждает её.
func (w *Worker) handle(ctx context.Context, d *queue.Delivery, logger *slog.Logger) {
	job := d.Job
	logger = logger.With("job_id", job.ID, "run_id", job.RunID)

	logger.Debug("received job", "redelivered", d.Redelivered)

	err := w.executor.Execute(ctx, job.RunID)
	switch {
	case err == nil:
		w.settle(d.Ack(), logger)

	// Ожидаемые ситуации — не возвращаем задачу (ack)
	case errors.Is(err, ErrRunNotReady), errors.Is(err, repo.ErrNotFound):
		logger.Debug("job skipped", "reason", err)
		w.settle(d.Ack(), logger)

	// Повторная ошибка — в DLQ, иначе задача будет крутиться бесконечно
	case d.Redelivered:
		logger.Error("job failed again, dead-lettering", "error", err)
		w.settle(d.Nack(false), logger)

	default:
		logger.Warn("job failed, requeueing", "error", err)
		w.settle(d.Nack(true), logger)
	}
}

func (w *Worker) settle(err error, logger *slog.Logger) {
	if err != nil {
		logger.Warn("failed to settle job", "error", err)
	}
}
