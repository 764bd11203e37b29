package coordinator

import (
	"fmt"
	"time"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/google/uuid"
)

// registry is the data owned by the state actor: the connected workers and
// every job created so far. It is not safe for concurrent use; only the
// actor goroutine touches it.
type registry struct {
	workers []Worker
	jobs    map[uuid.UUID]*Job
}

func newRegistry() *registry {
	return &registry{
		jobs: make(map[uuid.UUID]*Job),
	}
}

func (r *registry) addWorker(addr, name string, outbound chan<- *fl.CoordinatorMessage, done <-chan struct{}) Worker {
	w := Worker{
		Addr:         addr,
		Name:         name,
		RegisteredAt: time.Now(),
		outbound:     outbound,
		done:         done,
	}
	r.workers = append(r.workers, w)

	return w
}

// addJob snapshots the current workers into a new job.
func (r *registry) addJob() *Job {
	job := newJob(r.workers)
	r.jobs[job.id] = job

	return job
}

func (r *registry) job(id uuid.UUID) (*Job, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	return job, nil
}

func (r *registry) removeJob(id uuid.UUID) {
	delete(r.jobs, id)
}

func (r *registry) workerInfos() []WorkerInfo {
	infos := make([]WorkerInfo, len(r.workers))
	for i, w := range r.workers {
		infos[i] = w.info()
	}

	return infos
}

func (r *registry) jobInfos() []JobInfo {
	infos := make([]JobInfo, 0, len(r.jobs))
	for _, j := range r.jobs {
		infos = append(infos, j.info())
	}

	return infos
}
