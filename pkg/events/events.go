// Package events publishes coordinator lifecycle events so that dashboards
// and operators can follow training progress without polling.
package events

import (
	"context"
	"fmt"
	"time"
)

const (
	WorkerRegistered = "worker.registered"
	JobStarted       = "job.started"
	RoundCompleted   = "job.round_completed"
	JobFinished      = "job.finished"
	JobFailed        = "job.failed"
)

type Emitter interface {
	EmitWorkerRegistered(ctx context.Context, addr, name string) error
	EmitJobStarted(ctx context.Context, jobID string, workers []string, rounds int) error
	EmitRoundCompleted(ctx context.Context, jobID string, round, replies int, took time.Duration) error
	EmitJobFinished(ctx context.Context, jobID string, rounds int, cause error) error
}

type TopicBuilder struct {
	base string
}

func NewTopicBuilder(base string) *TopicBuilder {
	return &TopicBuilder{base: base}
}

func (tb *TopicBuilder) BaseTopic() string {
	return tb.base
}

func (tb *TopicBuilder) WorkersTopic() string {
	return tb.base + "/workers"
}

func (tb *TopicBuilder) JobTopic(jobID string) string {
	return fmt.Sprintf("%s/jobs/%s", tb.base, jobID)
}

func (tb *TopicBuilder) AllTopics() string {
	return tb.base + "/#"
}

type noopEmitter struct{}

// NewNoopEmitter returns an emitter that drops every event.
func NewNoopEmitter() Emitter {
	return noopEmitter{}
}

func (noopEmitter) EmitWorkerRegistered(context.Context, string, string) error {
	return nil
}

func (noopEmitter) EmitJobStarted(context.Context, string, []string, int) error {
	return nil
}

func (noopEmitter) EmitRoundCompleted(context.Context, string, int, int, time.Duration) error {
	return nil
}

func (noopEmitter) EmitJobFinished(context.Context, string, int, error) error {
	return nil
}
