package coordinator

import (
	"fmt"
	"slices"
	"time"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/tensor"
	"github.com/google/uuid"
)

type JobStatus string

const (
	JobCreated   JobStatus = "Created"
	JobRunning   JobStatus = "Running"
	JobCompleted JobStatus = "Completed"
	JobFailed    JobStatus = "Failed"
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobCreated:   {JobRunning, JobFailed},
	JobRunning:   {JobCompleted, JobFailed},
	JobCompleted: {},
	JobFailed:    {},
}

// JobInfo is a read-only view of a job.
type JobInfo struct {
	ID            string     `json:"id"`
	Status        JobStatus  `json:"status"`
	Workers       []string   `json:"workers"`
	RoundsStarted int        `json:"rounds_started"`
	PendingTasks  int        `json:"pending_tasks"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// task is a correlation entry: a one-shot slot for the next reply of one
// worker. The channel has room for exactly one value and is closed if the
// entry is dropped before a reply arrives.
type task struct {
	reply chan tensor.Map
}

// leg is one worker's part of an exchange.
type leg struct {
	worker Worker
	task   *task
}

// Job is one training run over a fixed set of workers. It is owned by the
// state actor and must only be touched from the actor goroutine.
type Job struct {
	id         uuid.UUID
	workers    []Worker
	tasks      map[string]*task
	status     JobStatus
	rounds     int
	err        string
	createdAt  time.Time
	finishedAt time.Time
}

func newJob(workers []Worker) *Job {
	return &Job{
		id:        uuid.New(),
		workers:   slices.Clone(workers),
		tasks:     make(map[string]*task),
		status:    JobCreated,
		createdAt: time.Now(),
	}
}

func (j *Job) ID() uuid.UUID {
	return j.id
}

// Workers returns the frozen participant set in registration order.
func (j *Job) Workers() []Worker {
	return slices.Clone(j.workers)
}

// track creates the correlation entry for addr. An entry already waiting for
// the same worker is dropped, failing its waiter with ErrChannelClosed.
func (j *Job) track(addr string) *task {
	if prev, ok := j.tasks[addr]; ok {
		close(prev.reply)
	}
	t := &task{reply: make(chan tensor.Map, 1)}
	j.tasks[addr] = t

	return t
}

// pending reports whether addr has an outstanding correlation entry.
func (j *Job) pending(addr string) bool {
	_, ok := j.tasks[addr]

	return ok
}

// resolve hands params to the entry waiting on addr and removes it.
func (j *Job) resolve(addr string, params tensor.Map) error {
	t, ok := j.tasks[addr]
	if !ok {
		return fmt.Errorf("%w: job %s, worker %s", ErrNoPendingTask, j.id, addr)
	}
	delete(j.tasks, addr)
	t.reply <- params

	return nil
}

// release drops the entry for addr if it is still t.
func (j *Job) release(addr string, t *task) bool {
	cur, ok := j.tasks[addr]
	if !ok || cur != t {
		return false
	}
	delete(j.tasks, addr)
	close(t.reply)

	return true
}

// prepareFetch sets up the weights request to the first worker of the job.
func (j *Job) prepareFetch() ([]leg, *fl.CoordinatorMessage, error) {
	if len(j.workers) == 0 {
		return nil, nil, fmt.Errorf("%w: job %s has no workers", ErrWorkerUnavailable, j.id)
	}

	w := j.workers[0]
	t := j.track(w.Addr)
	msg := &fl.CoordinatorMessage{
		WeightsRequest: &fl.WeightsRequest{JobID: j.id.String()},
	}

	return []leg{{worker: w, task: t}}, msg, nil
}

// prepareFitRound encodes params once and sets up a fit request to every
// worker of the job.
func (j *Job) prepareFitRound(params tensor.Map) ([]leg, *fl.CoordinatorMessage, error) {
	if len(j.workers) == 0 {
		return nil, nil, fmt.Errorf("%w: job %s has no workers", ErrWorkerUnavailable, j.id)
	}

	weights, err := tensor.Encode(params)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode weights: %w", err)
	}
	msg := &fl.CoordinatorMessage{
		FitRequest: &fl.FitRequest{JobID: j.id.String(), Weights: weights},
	}

	legs := make([]leg, len(j.workers))
	for i, w := range j.workers {
		t := j.track(w.Addr)
		legs[i] = leg{worker: w, task: t}
	}
	j.rounds++

	return legs, msg, nil
}

func (j *Job) transition(to JobStatus) error {
	if j.status == to {
		return nil
	}
	if !slices.Contains(jobTransitions[j.status], to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidStatusChange, j.status, to)
	}
	j.status = to
	if to == JobCompleted || to == JobFailed {
		j.finishedAt = time.Now()
	}

	return nil
}

func (j *Job) info() JobInfo {
	addrs := make([]string, len(j.workers))
	for i, w := range j.workers {
		addrs[i] = w.Addr
	}

	ji := JobInfo{
		ID:            j.id.String(),
		Status:        j.status,
		Workers:       addrs,
		RoundsStarted: j.rounds,
		PendingTasks:  len(j.tasks),
		Error:         j.err,
		CreatedAt:     j.createdAt,
	}
	if !j.finishedAt.IsZero() {
		finished := j.finishedAt
		ji.FinishedAt = &finished
	}

	return ji
}
