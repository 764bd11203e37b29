package coordinator

import "errors"

var (
	ErrJobNotFound         = errors.New("job not found")
	ErrNoPendingTask       = errors.New("no pending task for worker")
	ErrWorkerUnavailable   = errors.New("no worker available")
	ErrSendFailed          = errors.New("failed to send message to worker")
	ErrChannelClosed       = errors.New("reply channel closed before a result was set")
	ErrRequestTimeout      = errors.New("worker request timed out")
	ErrStateClosed         = errors.New("coordinator state is closed")
	ErrInvalidStatusChange = errors.New("invalid job status transition")
)
