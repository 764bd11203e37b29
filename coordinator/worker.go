package coordinator

import (
	"context"
	"time"

	"github.com/absmach/fedcoord/pkg/fl"
)

// Worker is an immutable handle to one subscribed worker: its peer address,
// which identifies it, and the outbound side of its Subscribe stream.
type Worker struct {
	Addr         string
	Name         string
	RegisteredAt time.Time

	outbound chan<- *fl.CoordinatorMessage
	done     <-chan struct{}
}

// WorkerInfo is a read-only view of a registered worker.
type WorkerInfo struct {
	Addr         string    `json:"addr"`
	Name         string    `json:"name"`
	Connected    bool      `json:"connected"`
	RegisteredAt time.Time `json:"registered_at"`
}

// send pushes msg on the worker's stream. It fails with ErrSendFailed once
// the stream has ended, including when msg was queued on a stream that ended
// before it could be read.
func (w Worker) send(ctx context.Context, msg *fl.CoordinatorMessage) error {
	select {
	case w.outbound <- msg:
		if !w.connected() {
			return ErrSendFailed
		}

		return nil
	case <-w.done:
		return ErrSendFailed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w Worker) connected() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

func (w Worker) info() WorkerInfo {
	return WorkerInfo{
		Addr:         w.Addr,
		Name:         w.Name,
		Connected:    w.connected(),
		RegisteredAt: w.RegisteredAt,
	}
}
