package coordinator

import (
	"context"
	"log/slog"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/tensor"
	"github.com/google/uuid"
)

type command interface {
	name() string
}

type result[T any] struct {
	value T
	err   error
}

type registerWorkerCmd struct {
	addr     string
	outbound chan<- *fl.CoordinatorMessage
	done     <-chan struct{}
	response chan<- result[Worker]
}

type createJobCmd struct {
	response chan<- result[uuid.UUID]
}

type fetchWeightsCmd struct {
	ctx      context.Context
	jobID    uuid.UUID
	response chan<- result[tensor.Map]
}

type fitRoundCmd struct {
	ctx      context.Context
	jobID    uuid.UUID
	params   tensor.Map
	response chan<- result[[]tensor.Map]
}

type deliverReplyCmd struct {
	jobID    uuid.UUID
	addr     string
	params   tensor.Map
	response chan<- result[struct{}]
}

type finishJobCmd struct {
	jobID    uuid.UUID
	cause    error
	response chan<- result[struct{}]
}

type listWorkersCmd struct {
	response chan<- result[[]WorkerInfo]
}

type getJobCmd struct {
	jobID    uuid.UUID
	response chan<- result[JobInfo]
}

type listJobsCmd struct {
	response chan<- result[[]JobInfo]
}

// releaseTasksCmd is sent by a failed exchange so its correlation entries
// do not outlive it.
type releaseTasksCmd struct {
	jobID uuid.UUID
	legs  []leg
}

func (registerWorkerCmd) name() string { return "register_worker" }
func (createJobCmd) name() string      { return "create_job" }
func (fetchWeightsCmd) name() string   { return "fetch_initial_parameters" }
func (fitRoundCmd) name() string       { return "execute_fit_round" }
func (deliverReplyCmd) name() string   { return "deliver_reply" }
func (finishJobCmd) name() string      { return "finish_job" }
func (listWorkersCmd) name() string    { return "workers" }
func (getJobCmd) name() string         { return "job" }
func (listJobsCmd) name() string       { return "jobs" }
func (releaseTasksCmd) name() string   { return "release_tasks" }

// call submits a command built around a fresh response channel and waits for
// the actor to resolve it.
func call[T any](ctx context.Context, s *State, build func(chan<- result[T]) command) (T, error) {
	var zero T

	resp := make(chan result[T], 1)
	if err := s.submit(ctx, build(resp)); err != nil {
		return zero, err
	}

	select {
	case res := <-resp:
		return res.value, res.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-s.done:
		// The actor may have answered just before stopping.
		select {
		case res := <-resp:
			return res.value, res.err
		default:
			return zero, ErrStateClosed
		}
	}
}

func (s *State) submit(ctx context.Context, cmd command) error {
	select {
	case <-s.done:
		return ErrStateClosed
	default:
	}

	select {
	case s.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStateClosed
	}
}

func respond[T any](logger *slog.Logger, resp chan<- result[T], value T, err error) {
	select {
	case resp <- result[T]{value: value, err: err}:
	default:
		logger.Warn("failed to set response")
	}
}
