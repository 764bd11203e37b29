package coordinator

import (
	"context"
	"log/slog"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/tensor"
	"github.com/google/uuid"
)

// Trainer runs one training job to completion.
type Trainer interface {
	Fit(ctx context.Context, rounds int) (uuid.UUID, tensor.Map, error)
}

// Service is what the gRPC and HTTP transports expose.
type Service interface {
	Train(ctx context.Context, rounds uint64) (uuid.UUID, tensor.Map, error)
	RegisterWorker(ctx context.Context, addr string, outbound chan<- *fl.CoordinatorMessage, done <-chan struct{}) (Worker, error)
	DeliverReply(ctx context.Context, jobID uuid.UUID, addr string, params tensor.Map) error
	Workers(ctx context.Context) ([]WorkerInfo, error)
	Jobs(ctx context.Context) ([]JobInfo, error)
}

type service struct {
	state   *State
	trainer Trainer
	logger  *slog.Logger
}

func NewService(state *State, trainer Trainer, logger *slog.Logger) Service {
	return &service{
		state:   state,
		trainer: trainer,
		logger:  logger,
	}
}

func (svc *service) Train(ctx context.Context, rounds uint64) (uuid.UUID, tensor.Map, error) {
	svc.logger.Info("training requested", slog.Uint64("rounds", rounds))

	return svc.trainer.Fit(ctx, int(rounds))
}

func (svc *service) RegisterWorker(ctx context.Context, addr string, outbound chan<- *fl.CoordinatorMessage, done <-chan struct{}) (Worker, error) {
	return svc.state.RegisterWorker(ctx, addr, outbound, done)
}

func (svc *service) DeliverReply(ctx context.Context, jobID uuid.UUID, addr string, params tensor.Map) error {
	return svc.state.DeliverReply(ctx, jobID, addr, params)
}

func (svc *service) Workers(ctx context.Context) ([]WorkerInfo, error) {
	return svc.state.Workers(ctx)
}

func (svc *service) Jobs(ctx context.Context) ([]JobInfo, error) {
	return svc.state.Jobs(ctx)
}
