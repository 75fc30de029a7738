package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// fetch скачивает url в dest с повторами.
// Повторяются сетевые ошибки, 429 и 5xx; остальные статусы — сразу ошибка.
func (e *Executor) fetch(ctx context.Context, url, dest string, logger *slog.Logger) error {
	op := func() error {
		return e.fetchOnce(ctx, url, dest)
	}
	return backoff.RetryNotify(op, backoff.WithContext(e.newBackOff(), ctx), func(err error, d time.Duration) {
		logger.Warn("input download failed, retrying", "delay", d, "error", err)
	})
}

func (e *Executor) fetchOnce(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("%w: create request: %v", ErrDownload, err))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("%w: status %d", ErrDownload, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return err
		}
		return backoff.Permanent(err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create %s: %w", dest, err))
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("%w: read body: %v", ErrDownload, err)
	}
	return f.Close()
}
