package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/fedcoord/pkg/events"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/metrics"
	"github.com/absmach/fedcoord/pkg/tensor"
	"github.com/google/uuid"
)

const defCommandBuffer = 32

// State serialises every change to the worker registry and the job table
// through a single goroutine. All methods are safe for concurrent use.
type State struct {
	commands       chan command
	done           chan struct{}
	logger         *slog.Logger
	emitter        events.Emitter
	namegen        namegenerator.NameGenerator
	requestTimeout time.Duration
	evictFinished  bool
}

type options struct {
	commandBuffer  int
	requestTimeout time.Duration
	evictFinished  bool
	emitter        events.Emitter
}

type Option func(*options)

// WithCommandBuffer sets how many commands may queue before callers block.
func WithCommandBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.commandBuffer = n
		}
	}
}

// WithRequestTimeout bounds every worker exchange. Zero waits forever.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		o.requestTimeout = d
	}
}

// WithJobEviction drops jobs from the table once they finish.
func WithJobEviction(evict bool) Option {
	return func(o *options) {
		o.evictFinished = evict
	}
}

func WithEmitter(e events.Emitter) Option {
	return func(o *options) {
		if e != nil {
			o.emitter = e
		}
	}
}

// NewState starts the state actor. It runs until ctx is cancelled.
func NewState(ctx context.Context, logger *slog.Logger, opts ...Option) *State {
	o := options{
		commandBuffer: defCommandBuffer,
		emitter:       events.NewNoopEmitter(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &State{
		commands:       make(chan command, o.commandBuffer),
		done:           make(chan struct{}),
		logger:         logger,
		emitter:        o.emitter,
		namegen:        namegenerator.NewGenerator(),
		requestTimeout: o.requestTimeout,
		evictFinished:  o.evictFinished,
	}
	go s.run(ctx)

	return s
}

// Done is closed once the actor has stopped.
func (s *State) Done() <-chan struct{} {
	return s.done
}

// RegisterWorker appends a worker to the registry. Messages for the worker
// are pushed on outbound until done is closed.
func (s *State) RegisterWorker(ctx context.Context, addr string, outbound chan<- *fl.CoordinatorMessage, done <-chan struct{}) (Worker, error) {
	return call(ctx, s, func(resp chan<- result[Worker]) command {
		return registerWorkerCmd{addr: addr, outbound: outbound, done: done, response: resp}
	})
}

// CreateJob creates a job over every worker registered so far.
func (s *State) CreateJob(ctx context.Context) (uuid.UUID, error) {
	return call(ctx, s, func(resp chan<- result[uuid.UUID]) command {
		return createJobCmd{response: resp}
	})
}

// FetchInitialParameters asks the first worker of the job for its weights.
func (s *State) FetchInitialParameters(ctx context.Context, jobID uuid.UUID) (tensor.Map, error) {
	return call(ctx, s, func(resp chan<- result[tensor.Map]) command {
		return fetchWeightsCmd{ctx: ctx, jobID: jobID, response: resp}
	})
}

// ExecuteFitRound sends params to every worker of the job and returns their
// replies in the job's worker order. Any failing worker fails the round.
func (s *State) ExecuteFitRound(ctx context.Context, jobID uuid.UUID, params tensor.Map) ([]tensor.Map, error) {
	return call(ctx, s, func(resp chan<- result[[]tensor.Map]) command {
		return fitRoundCmd{ctx: ctx, jobID: jobID, params: params, response: resp}
	})
}

// DeliverReply hands params from the worker at addr to the request waiting
// on it.
func (s *State) DeliverReply(ctx context.Context, jobID uuid.UUID, addr string, params tensor.Map) error {
	_, err := call(ctx, s, func(resp chan<- result[struct{}]) command {
		return deliverReplyCmd{jobID: jobID, addr: addr, params: params, response: resp}
	})

	return err
}

// FinishJob marks the job Completed, or Failed when cause is not nil.
func (s *State) FinishJob(ctx context.Context, jobID uuid.UUID, cause error) error {
	_, err := call(ctx, s, func(resp chan<- result[struct{}]) command {
		return finishJobCmd{jobID: jobID, cause: cause, response: resp}
	})

	return err
}

func (s *State) Workers(ctx context.Context) ([]WorkerInfo, error) {
	return call(ctx, s, func(resp chan<- result[[]WorkerInfo]) command {
		return listWorkersCmd{response: resp}
	})
}

func (s *State) Job(ctx context.Context, jobID uuid.UUID) (JobInfo, error) {
	return call(ctx, s, func(resp chan<- result[JobInfo]) command {
		return getJobCmd{jobID: jobID, response: resp}
	})
}

func (s *State) Jobs(ctx context.Context) ([]JobInfo, error) {
	return call(ctx, s, func(resp chan<- result[[]JobInfo]) command {
		return listJobsCmd{response: resp}
	})
}

func (s *State) run(ctx context.Context) {
	defer close(s.done)

	reg := newRegistry()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("state actor stopped", slog.Any("cause", context.Cause(ctx)))

			return
		case cmd := <-s.commands:
			s.handle(reg, cmd)
		}
	}
}

// handle must never block: anything that waits on a worker runs in its own
// goroutine and answers through the command's response channel.
func (s *State) handle(reg *registry, cmd command) {
	switch cmd := cmd.(type) {
	case registerWorkerCmd:
		w := reg.addWorker(cmd.addr, s.namegen.Generate(), cmd.outbound, cmd.done)
		metrics.WorkersRegistered.Set(float64(len(reg.workers)))
		s.logger.Info("worker registered", slog.String("addr", w.Addr), slog.String("worker", w.Name))
		s.emit("worker registered", func(ctx context.Context) error {
			return s.emitter.EmitWorkerRegistered(ctx, w.Addr, w.Name)
		})
		s.count(cmd, nil)
		respond(s.logger, cmd.response, w, nil)

	case createJobCmd:
		job := reg.addJob()
		s.logger.Info("job created", slog.String("job_id", job.id.String()), slog.Int("workers", len(job.workers)))
		s.count(cmd, nil)
		respond(s.logger, cmd.response, job.id, nil)

	case fetchWeightsCmd:
		legs, msg, err := s.prepare(reg, cmd.jobID, func(job *Job) ([]leg, *fl.CoordinatorMessage, error) {
			return job.prepareFetch()
		})
		s.count(cmd, err)
		if err != nil {
			respond(s.logger, cmd.response, nil, err)

			return
		}
		go func() {
			replies, err := s.exchange(cmd.ctx, cmd.jobID, legs, msg)
			var params tensor.Map
			if err == nil {
				params = replies[0]
			}
			respond(s.logger, cmd.response, params, err)
		}()

	case fitRoundCmd:
		legs, msg, err := s.prepare(reg, cmd.jobID, func(job *Job) ([]leg, *fl.CoordinatorMessage, error) {
			return job.prepareFitRound(cmd.params)
		})
		s.count(cmd, err)
		if err != nil {
			respond(s.logger, cmd.response, nil, err)

			return
		}
		go func() {
			replies, err := s.exchange(cmd.ctx, cmd.jobID, legs, msg)
			respond(s.logger, cmd.response, replies, err)
		}()

	case deliverReplyCmd:
		err := s.deliver(reg, cmd)
		s.count(cmd, err)
		respond(s.logger, cmd.response, struct{}{}, err)

	case finishJobCmd:
		err := s.finish(reg, cmd)
		s.count(cmd, err)
		respond(s.logger, cmd.response, struct{}{}, err)

	case listWorkersCmd:
		s.count(cmd, nil)
		respond(s.logger, cmd.response, reg.workerInfos(), nil)

	case getJobCmd:
		job, err := reg.job(cmd.jobID)
		s.count(cmd, err)
		if err != nil {
			respond(s.logger, cmd.response, JobInfo{}, err)

			return
		}
		respond(s.logger, cmd.response, job.info(), nil)

	case listJobsCmd:
		s.count(cmd, nil)
		respond(s.logger, cmd.response, reg.jobInfos(), nil)

	case releaseTasksCmd:
		job, err := reg.job(cmd.jobID)
		if err != nil {
			return
		}
		for _, l := range cmd.legs {
			if job.release(l.worker.Addr, l.task) {
				s.logger.Debug("released pending task", slog.String("job_id", cmd.jobID.String()), slog.String("addr", l.worker.Addr))
			}
		}
	}
}

// prepare moves the job to Running and sets up its correlation entries.
func (s *State) prepare(reg *registry, jobID uuid.UUID, setup func(*Job) ([]leg, *fl.CoordinatorMessage, error)) ([]leg, *fl.CoordinatorMessage, error) {
	job, err := reg.job(jobID)
	if err != nil {
		return nil, nil, err
	}
	if err := job.transition(JobRunning); err != nil {
		return nil, nil, err
	}
	for _, w := range job.workers {
		if job.pending(w.Addr) {
			s.logger.Warn("replacing pending task", slog.String("job_id", jobID.String()), slog.String("addr", w.Addr))
		}
	}

	return setup(job)
}

func (s *State) deliver(reg *registry, cmd deliverReplyCmd) error {
	job, err := reg.job(cmd.jobID)
	if err != nil {
		metrics.RepliesTotal.WithLabelValues("unknown_job").Inc()

		return err
	}
	if err := job.resolve(cmd.addr, cmd.params); err != nil {
		metrics.RepliesTotal.WithLabelValues("unmatched").Inc()

		return err
	}
	metrics.RepliesTotal.WithLabelValues("matched").Inc()
	s.logger.Debug("reply delivered", slog.String("job_id", cmd.jobID.String()), slog.String("addr", cmd.addr))

	return nil
}

func (s *State) finish(reg *registry, cmd finishJobCmd) error {
	job, err := reg.job(cmd.jobID)
	if err != nil {
		return err
	}

	status := JobCompleted
	if cmd.cause != nil {
		status = JobFailed
		job.err = cmd.cause.Error()
	}
	if err := job.transition(status); err != nil {
		return err
	}
	metrics.JobsTotal.WithLabelValues(string(status)).Inc()

	if s.evictFinished {
		for addr, t := range job.tasks {
			job.release(addr, t)
		}
		reg.removeJob(job.id)
		s.logger.Debug("job evicted", slog.String("job_id", job.id.String()))
	}

	return nil
}

func (s *State) releaseTasks(jobID uuid.UUID, legs []leg) {
	select {
	case s.commands <- releaseTasksCmd{jobID: jobID, legs: legs}:
	case <-s.done:
	}
}

func (s *State) emit(event string, fn func(context.Context) error) {
	go func() {
		if err := fn(context.Background()); err != nil {
			s.logger.Warn("failed to emit event", slog.String("event", event), slog.Any("error", err))
		}
	}()
}

func (s *State) count(cmd command, err error) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	metrics.CommandsTotal.WithLabelValues(cmd.name(), res).Inc()
}
