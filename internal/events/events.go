// Package events publishes run progress to a Redis stream so other processes
// can follow an orchestration while it runs.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sbenjam1n/gridrun/internal/pipeline"
)

const (
	// StreamSteps carries one entry per run start, finished step and run end.
	StreamSteps = "gridrun_steps"
	// GroupWatchers is the consumer group for watchers.
	GroupWatchers = "gridrun_watchers"

	KindRunStarted  = "run_started"
	KindStep        = "step"
	KindRunFinished = "run_finished"
)

// Client is the subset of *redis.Client the publisher uses.
type Client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XLen(ctx context.Context, stream string) *redis.IntCmd
	XPending(ctx context.Context, stream, group string) *redis.XPendingCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Event is the payload of one stream entry.
type Event struct {
	Kind       string `json:"kind"`
	RunID      string `json:"run_id"`
	Experiment string `json:"experiment,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Ordinal    int    `json:"ordinal,omitempty"`
	Total      int    `json:"total"`
	Phase      string `json:"phase,omitempty"`
	Target     string `json:"target,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Publisher writes events to StreamSteps. It implements pipeline.Observer.
type Publisher struct {
	client Client
	// MaxLen caps the stream length approximately; 0 leaves it unbounded.
	MaxLen int64
}

// New creates a Publisher from a Redis client.
func New(client Client) *Publisher {
	return &Publisher{client: client, MaxLen: 10000}
}

var _ pipeline.Observer = (*Publisher)(nil)

// ConnectRedis creates a Redis client from a URL.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// EnsureStream creates the watcher group (and the stream) if missing.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	err := p.client.XGroupCreateMkStream(ctx, StreamSteps, GroupWatchers, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", GroupWatchers, StreamSteps, err)
	}
	return nil
}

func (p *Publisher) RunStarted(ctx context.Context, run pipeline.RunInfo) error {
	return p.publish(ctx, Event{
		Kind:       KindRunStarted,
		RunID:      run.ID,
		Experiment: run.Experiment,
		Mode:       run.Mode.String(),
		Total:      run.Total,
	})
}

func (p *Publisher) StepFinished(ctx context.Context, step pipeline.StepRecord) error {
	return p.publish(ctx, Event{
		Kind:       KindStep,
		RunID:      step.RunID,
		Ordinal:    step.Ordinal,
		Total:      step.Total,
		Phase:      string(step.Phase),
		Target:     step.Target,
		Outcome:    string(step.Outcome),
		DurationMS: step.Duration.Milliseconds(),
		Error:      step.Error,
	})
}

func (p *Publisher) RunFinished(ctx context.Context, run pipeline.RunInfo, runErr error) error {
	ev := Event{Kind: KindRunFinished, RunID: run.ID, Experiment: run.Experiment, Total: run.Total}
	if runErr != nil {
		ev.Error = runErr.Error()
	}
	return p.publish(ctx, ev)
}

func (p *Publisher) publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: StreamSteps,
		Values: map[string]any{
			"kind":    ev.Kind,
			"run_id":  ev.RunID,
			"ordinal": strconv.Itoa(ev.Ordinal),
			"payload": string(payload),
		},
	}
	if p.MaxLen > 0 {
		args.MaxLen = p.MaxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Kind, err)
	}
	return nil
}

// Status reports the stream length and the number of entries delivered to
// watchers but not yet acknowledged.
func (p *Publisher) Status(ctx context.Context) (length, pending int64, err error) {
	length, err = p.client.XLen(ctx, StreamSteps).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("stream length: %w", err)
	}
	info, err := p.client.XPending(ctx, StreamSteps, GroupWatchers).Result()
	if err != nil {
		if strings.HasPrefix(err.Error(), "NOGROUP") {
			return length, 0, nil
		}
		return 0, 0, fmt.Errorf("pending entries: %w", err)
	}
	return length, info.Count, nil
}

// ErrNoEvents is returned by Next when the block timeout expires.
var ErrNoEvents = errors.New("no events")

// Next reads and acknowledges one event for consumer, waiting up to block.
func (p *Publisher) Next(ctx context.Context, consumer string, block time.Duration) (Event, error) {
	streams, err := p.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    GroupWatchers,
		Consumer: consumer,
		Streams:  []string{StreamSteps, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return Event{}, ErrNoEvents
	}
	if err != nil {
		return Event{}, fmt.Errorf("read event: %w", err)
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			var ev Event
			if err := json.Unmarshal([]byte(getString(msg.Values, "payload")), &ev); err != nil {
				return Event{}, fmt.Errorf("decode event %s: %w", msg.ID, err)
			}
			if err := p.client.XAck(ctx, StreamSteps, GroupWatchers, msg.ID).Err(); err != nil {
				return Event{}, fmt.Errorf("ack event %s: %w", msg.ID, err)
			}
			return ev, nil
		}
	}
	return Event{}, ErrNoEvents
}

func getString(values map[string]any, key string) string {
	if v, ok := values[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
