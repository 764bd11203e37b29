// Package strategy drives training runs on top of the coordinator state.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/pkg/events"
	"github.com/absmach/fedcoord/pkg/metrics"
	"github.com/absmach/fedcoord/pkg/tensor"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/absmach/fedcoord/strategy"

var ErrNoReplies = errors.New("no replies to aggregate")

// Coordinator is the part of coordinator.State a strategy drives.
type Coordinator interface {
	CreateJob(ctx context.Context) (uuid.UUID, error)
	Job(ctx context.Context, jobID uuid.UUID) (coordinator.JobInfo, error)
	FetchInitialParameters(ctx context.Context, jobID uuid.UUID) (tensor.Map, error)
	ExecuteFitRound(ctx context.Context, jobID uuid.UUID, params tensor.Map) ([]tensor.Map, error)
	FinishJob(ctx context.Context, jobID uuid.UUID, cause error) error
}

// FedAvg runs federated averaging: every round each worker trains from the
// current global parameters and the replies are averaged with equal weight.
type FedAvg struct {
	state   Coordinator
	logger  *slog.Logger
	emitter events.Emitter
	tracer  trace.Tracer
}

func NewFedAvg(state Coordinator, logger *slog.Logger, emitter events.Emitter) *FedAvg {
	if emitter == nil {
		emitter = events.NewNoopEmitter()
	}

	return &FedAvg{
		state:   state,
		logger:  logger,
		emitter: emitter,
		tracer:  otel.Tracer(tracerName),
	}
}

// Fit creates a job over the registered workers, seeds it with the first
// worker's parameters and runs rounds fit rounds. It returns the job id,
// which is uuid.Nil only when the job could not be created.
func (f *FedAvg) Fit(ctx context.Context, rounds int) (uuid.UUID, tensor.Map, error) {
	ctx, span := f.tracer.Start(ctx, "fedavg.fit", trace.WithAttributes(attribute.Int("rounds", rounds)))
	defer span.End()

	jobID, err := f.state.CreateJob(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create job")

		return uuid.Nil, nil, fmt.Errorf("failed to create job: %w", err)
	}
	span.SetAttributes(attribute.String("job_id", jobID.String()))

	logger := f.logger.With(slog.String("job_id", jobID.String()))
	if job, err := f.state.Job(ctx, jobID); err == nil {
		f.emit(logger, events.JobStarted, func(ctx context.Context) error {
			return f.emitter.EmitJobStarted(ctx, jobID.String(), job.Workers, rounds)
		})
	}

	params, completed, err := f.run(ctx, logger, jobID, rounds)
	if ferr := f.state.FinishJob(context.WithoutCancel(ctx), jobID, err); ferr != nil {
		logger.Warn("failed to finish job", slog.Any("error", ferr))
	}
	f.emit(logger, events.JobFinished, func(ctx context.Context) error {
		return f.emitter.EmitJobFinished(ctx, jobID.String(), completed, err)
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "training failed")
		logger.Error("training failed", slog.Int("rounds_completed", completed), slog.Any("error", err))

		return jobID, nil, err
	}
	logger.Info("training completed", slog.Int("rounds", completed))

	return jobID, params, nil
}

func (f *FedAvg) run(ctx context.Context, logger *slog.Logger, jobID uuid.UUID, rounds int) (tensor.Map, int, error) {
	params, err := f.state.FetchInitialParameters(ctx, jobID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch initial parameters: %w", err)
	}
	logger.Info("initial parameters fetched", slog.Int("tensors", len(params)))

	for round := 1; round <= rounds; round++ {
		params, err = f.round(ctx, logger, jobID, round, params)
		if err != nil {
			return nil, round - 1, fmt.Errorf("round %d: %w", round, err)
		}
	}

	return params, rounds, nil
}

func (f *FedAvg) round(ctx context.Context, logger *slog.Logger, jobID uuid.UUID, round int, params tensor.Map) (tensor.Map, error) {
	ctx, span := f.tracer.Start(ctx, "fedavg.round", trace.WithAttributes(attribute.Int("round", round)))
	defer span.End()

	start := time.Now()
	replies, err := f.state.ExecuteFitRound(ctx, jobID, params)
	if err != nil {
		metrics.RoundsTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "fit round")

		return nil, err
	}

	aggStart := time.Now()
	avg, err := Average(replies)
	metrics.AggregationDuration.Observe(time.Since(aggStart).Seconds())
	if err != nil {
		metrics.RoundsTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregation")

		return nil, err
	}

	took := time.Since(start)
	metrics.RoundsTotal.WithLabelValues("completed").Inc()
	metrics.RoundDuration.Observe(took.Seconds())
	span.SetAttributes(attribute.Int("replies", len(replies)))

	logger.Info("round completed", slog.Int("round", round), slog.Int("replies", len(replies)), slog.Duration("took", took))
	f.emit(logger, events.RoundCompleted, func(ctx context.Context) error {
		return f.emitter.EmitRoundCompleted(ctx, jobID.String(), round, len(replies), took)
	})

	return avg, nil
}

func (f *FedAvg) emit(logger *slog.Logger, event string, fn func(context.Context) error) {
	go func() {
		if err := fn(context.Background()); err != nil {
			logger.Warn("failed to emit event", slog.String("event", event), slog.Any("error", err))
		}
	}()
}

// Average is the unweighted mean of replies. Every name present in any reply
// is summed over the replies that carry it and divided by the number of
// replies.
func Average(replies []tensor.Map) (tensor.Map, error) {
	if len(replies) == 0 {
		return nil, ErrNoReplies
	}

	sum := make(tensor.Map)
	for _, reply := range replies {
		for _, name := range reply.Names() {
			t := reply[name]
			acc, ok := sum[name]
			if !ok {
				sum[name] = t.Clone()

				continue
			}
			next, err := acc.Add(t)
			if err != nil {
				return nil, fmt.Errorf("tensor %q: %w", name, err)
			}
			sum[name] = next
		}
	}

	scale := 1 / float64(len(replies))
	avg := make(tensor.Map, len(sum))
	for name, t := range sum {
		avg[name] = t.Scale(scale)
	}

	return avg, nil
}
