package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"identity-reconciliation/internal/models"
)

// DefaultStream is the Redis stream link events are appended to.
const DefaultStream = "identity:links"

// StreamPublisher appends link events to a Redis stream with XADD.
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// StreamOption configures a StreamPublisher.
type StreamOption func(*StreamPublisher)

// WithMaxLen caps the stream length approximately (XADD MAXLEN ~).
func WithMaxLen(n int64) StreamOption {
	return func(p *StreamPublisher) {
		if n > 0 {
			p.maxLen = n
		}
	}
}

// NewStreamPublisher publishes to stream, or DefaultStream when empty.
func NewStreamPublisher(client *redis.Client, stream string, opts ...StreamOption) *StreamPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	p := &StreamPublisher{client: client, stream: stream}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Publish appends one entry. Scalar fields are flat so consumers can filter
// without decoding; the full event is kept as JSON under "data".
func (p *StreamPublisher) Publish(ctx context.Context, event models.LinkEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal link event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"type":       string(event.Type),
			"primary_id": strconv.FormatInt(event.PrimaryID, 10),
			"timestamp":  strconv.FormatInt(event.OccurredAt.Unix(), 10),
			"data":       string(data),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish link event to %s: %w", p.stream, err)
	}
	return nil
}

// Stream returns the stream name events are written to.
func (p *StreamPublisher) Stream() string {
	return p.stream
}
