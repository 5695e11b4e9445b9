package queue

import (
	"context"
	"time"
)

// Client sends messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// Processor runs the job a message describes.
type Processor interface {
	ProcessJob(ctx context.Context, msg Message) error
}

// Delays holds the simulated pipeline latency per job kind.
type Delays struct {
	Detect   time.Duration
	Complete time.Duration
}

// For returns the delay configured for kind.
func (d Delays) For(kind Kind) time.Duration {
	switch kind {
	case KindDetect:
		return d.Detect
	case KindComplete:
		return d.Complete
	default:
		return 0
	}
}
