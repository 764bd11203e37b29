package events

import (
	"context"
	"time"

	"github.com/absmach/fedcoord/pkg/mqtt"
)

type mqttEmitter struct {
	pubsub mqtt.PubSub
	topics *TopicBuilder
}

func NewMQTTEmitter(pubsub mqtt.PubSub, topics *TopicBuilder) Emitter {
	return &mqttEmitter{
		pubsub: pubsub,
		topics: topics,
	}
}

func (e *mqttEmitter) EmitWorkerRegistered(ctx context.Context, addr, name string) error {
	payload := map[string]any{
		"event":     WorkerRegistered,
		"addr":      addr,
		"name":      name,
		"timestamp": time.Now(),
	}

	return e.pubsub.Publish(ctx, e.topics.WorkersTopic(), payload)
}

func (e *mqttEmitter) EmitJobStarted(ctx context.Context, jobID string, workers []string, rounds int) error {
	payload := map[string]any{
		"event":     JobStarted,
		"job_id":    jobID,
		"workers":   workers,
		"rounds":    rounds,
		"timestamp": time.Now(),
	}

	return e.pubsub.Publish(ctx, e.topics.JobTopic(jobID), payload)
}

func (e *mqttEmitter) EmitRoundCompleted(ctx context.Context, jobID string, round, replies int, took time.Duration) error {
	payload := map[string]any{
		"event":       RoundCompleted,
		"job_id":      jobID,
		"round":       round,
		"replies":     replies,
		"duration_ms": took.Milliseconds(),
		"timestamp":   time.Now(),
	}

	return e.pubsub.Publish(ctx, e.topics.JobTopic(jobID), payload)
}

func (e *mqttEmitter) EmitJobFinished(ctx context.Context, jobID string, rounds int, cause error) error {
	payload := map[string]any{
		"event":     JobFinished,
		"job_id":    jobID,
		"rounds":    rounds,
		"timestamp": time.Now(),
	}
	if cause != nil {
		payload["event"] = JobFailed
		payload["error"] = cause.Error()
	}

	return e.pubsub.Publish(ctx, e.topics.JobTopic(jobID), payload)
}
