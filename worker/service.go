// Package worker implements the training side of the protocol: it subscribes
// to the coordinator, trains on local data and publishes the results.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/tensor"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc"
)

const defMaxConcurrent = 1

type Service struct {
	subscriber fl.SubscriberClient
	publisher  fl.PublisherClient
	trainer    Trainer
	sem        *semaphore.Weighted
	logger     *slog.Logger
}

// NewService returns a worker speaking to the coordinator over conn. At most
// maxConcurrent requests are worked on at once.
func NewService(conn grpc.ClientConnInterface, trainer Trainer, maxConcurrent int64, logger *slog.Logger) *Service {
	if maxConcurrent <= 0 {
		maxConcurrent = defMaxConcurrent
	}

	return &Service{
		subscriber: fl.NewSubscriberClient(conn),
		publisher:  fl.NewPublisherClient(conn),
		trainer:    trainer,
		sem:        semaphore.NewWeighted(maxConcurrent),
		logger:     logger,
	}
}

// Run subscribes and serves requests until ctx is cancelled or the
// coordinator ends the stream. Requests in flight are finished first.
func (s *Service) Run(ctx context.Context) error {
	stream, err := s.subscriber.Subscribe(ctx, &fl.Empty{})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	s.logger.Info("connected to coordinator")

	var g errgroup.Group
	defer func() {
		_ = g.Wait()
	}()

	for {
		msg, err := stream.Recv()
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			s.logger.Info("coordinator closed the stream")

			return nil
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("subscription stream failed: %w", err)
		}

		s.logger.Debug("received "+msg.Kind(), slog.String("job_id", msg.JobID()))
		g.Go(func() error {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				return nil
			}
			defer s.sem.Release(1)

			if err := s.handle(ctx, msg); err != nil {
				s.logger.Error("failed to handle request",
					slog.String("job_id", msg.JobID()),
					slog.String("kind", msg.Kind()),
					slog.Any("error", err))
			}

			return nil
		})
	}
}

func (s *Service) handle(ctx context.Context, msg *fl.CoordinatorMessage) error {
	var reply fl.WorkerMessage

	switch {
	case msg.WeightsRequest != nil:
		params, err := s.trainer.InitialParameters(ctx)
		if err != nil {
			return fmt.Errorf("failed to prepare model: %w", err)
		}
		weights, err := tensor.Encode(params)
		if err != nil {
			return err
		}
		reply.WeightsResponse = &fl.WeightsResponse{JobID: msg.WeightsRequest.JobID, Weights: weights}

	case msg.FitRequest != nil:
		params, err := tensor.Decode(msg.FitRequest.Weights)
		if err != nil {
			return err
		}
		trained, err := s.trainer.Fit(ctx, params)
		if err != nil {
			return fmt.Errorf("failed to train: %w", err)
		}
		weights, err := tensor.Encode(trained)
		if err != nil {
			return err
		}
		reply.FitResponse = &fl.FitResponse{JobID: msg.FitRequest.JobID, Weights: weights}

	default:
		return fl.ErrEmptyMessage
	}

	if _, err := s.publisher.Publish(ctx, &reply); err != nil {
		return fmt.Errorf("failed to publish %s: %w", reply.Kind(), err)
	}
	s.logger.Debug("sent "+reply.Kind(), slog.String("job_id", msg.JobID()))

	return nil
}
