package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/tensor"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// exchange sends msg to every leg in order and then waits for all replies.
// Replies come back in leg order. On failure every entry the exchange still
// owns is released.
func (s *State) exchange(ctx context.Context, jobID uuid.UUID, legs []leg, msg *fl.CoordinatorMessage) ([]tensor.Map, error) {
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, s.requestTimeout, ErrRequestTimeout)
		defer cancel()
	}

	kind := msg.Kind()
	for _, l := range legs {
		if err := l.worker.send(ctx, msg); err != nil {
			err = causeOf(ctx, err)
			s.logger.Warn("failed to send request",
				slog.String("job_id", jobID.String()),
				slog.String("addr", l.worker.Addr),
				slog.String("kind", kind),
				slog.Any("error", err))
			s.releaseTasks(jobID, legs)

			return nil, fmt.Errorf("worker %s: %w", l.worker.Addr, err)
		}
		s.logger.Debug("request sent", slog.String("job_id", jobID.String()), slog.String("addr", l.worker.Addr), slog.String("kind", kind))
	}

	replies := make([]tensor.Map, len(legs))
	g, gctx := errgroup.WithContext(ctx)
	for i, l := range legs {
		g.Go(func() error {
			select {
			case params, ok := <-l.task.reply:
				if !ok {
					return fmt.Errorf("worker %s: %w", l.worker.Addr, ErrChannelClosed)
				}
				replies[i] = params

				return nil
			case <-gctx.Done():
				return fmt.Errorf("worker %s: %w", l.worker.Addr, causeOf(gctx, gctx.Err()))
			}
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Warn("exchange failed", slog.String("job_id", jobID.String()), slog.String("kind", kind), slog.Any("error", err))
		s.releaseTasks(jobID, legs)

		return nil, err
	}

	return replies, nil
}

// causeOf swaps a bare context error for the cause the context was
// cancelled with.
func causeOf(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
	}

	return err
}
