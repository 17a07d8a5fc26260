package port

import "context"

// Queue is a message queue for any payload type
type Queue[T any] interface {
	// Publish adds a message carrying t to the queue
	Publish(ctx context.Context, t *T) error

	// Consume blocks until a message is available or ctx is done
	Consume(ctx context.Context) (Message[T], error)
}

// Message is a delivered payload that must be acknowledged exactly once
type Message[T any] interface {
	// T returns the payload
	T() *T

	// Attempt returns how many times the payload was delivered before this one
	Attempt() int

	// Ack marks the message as processed
	Ack() error

	// Nack marks the message as failed so the queue can retry it
	Nack(err error) error
}

// StageJob asks a worker to run one stage of one claim's pipeline
type StageJob struct {
	ClaimID    string `json:"claim_id"`
	StageIndex int    `json:"stage_index"`
}

// StageQueue carries stage jobs between workers
type StageQueue = Queue[StageJob]
