package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/claimflow/internal/application/port"
)

// ErrQueueClosed is returned by Publish and Consume after Close
var ErrQueueClosed = errors.New("queue closed")

// Config for the in-memory queue
type Config struct {
	MaxRetries  int
	RetryDelay  time.Duration
	DeadLetter  bool
	QueueBuffer int
}

// DefaultConfig returns a standard configuration for the memory queue
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		RetryDelay:  100 * time.Millisecond,
		DeadLetter:  true,
		QueueBuffer: 100,
	}
}

// Message is one delivery of a payload
type Message[T any] struct {
	id         string
	payload    T
	queue      *Queue[T]
	retryCount int
	mu         sync.Mutex
	processed  bool
	lastErr    error
	createdAt  time.Time
}

// ID returns the stable message id shared by all deliveries
func (m *Message[T]) ID() string {
	return m.id
}

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.payload
}

// Attempt returns how many failed deliveries preceded this one
func (m *Message[T]) Attempt() int {
	return m.retryCount
}

// Err returns the error the message was last nacked with
func (m *Message[T]) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Ack acknowledges the message as processed successfully
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.processed {
		return fmt.Errorf("message %s already processed", m.id)
	}
	m.processed = true
	return nil
}

// Nack records a processing failure. The payload is redelivered after the
// retry delay until MaxRetries is exhausted, then moved to the dead letter list.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.processed {
		return fmt.Errorf("message %s already processed", m.id)
	}
	m.processed = true
	m.lastErr = err

	if m.retryCount < m.queue.config.MaxRetries {
		next := &Message[T]{
			id:         m.id,
			payload:    m.payload,
			queue:      m.queue,
			retryCount: m.retryCount + 1,
			createdAt:  time.Now(),
		}
		m.queue.wg.Add(1)
		go m.queue.requeue(next)
		return nil
	}

	if m.queue.config.DeadLetter {
		m.queue.dlqMu.Lock()
		m.queue.dlq = append(m.queue.dlq, m)
		m.queue.dlqMu.Unlock()
	}
	return nil
}

// Queue is an in-memory port.Queue backed by a buffered channel. When the
// channel is full, published messages wait in an unbounded backlog that a
// single pump goroutine drains in order, so Publish never blocks.
type Queue[T any] struct {
	messages chan *Message[T]
	done     chan struct{}
	dlq      []*Message[T]
	config   Config
	dlqMu    sync.Mutex
	wg       sync.WaitGroup
	once     sync.Once

	mu      sync.Mutex
	backlog []*Message[T]
	pumping bool
	closed  bool
}

// NewQueue creates a new in-memory queue
func NewQueue[T any](config Config) *Queue[T] {
	if config.QueueBuffer <= 0 {
		config.QueueBuffer = DefaultConfig().QueueBuffer
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	return &Queue[T]{
		messages: make(chan *Message[T], config.QueueBuffer),
		done:     make(chan struct{}),
		dlq:      make([]*Message[T], 0),
		config:   config,
	}
}

// Publish adds a new item to the queue without blocking on a full buffer
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	if t == nil {
		return errors.New("nil payload")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &Message[T]{
		id:        uuid.NewString(),
		payload:   *t,
		queue:     q,
		createdAt: time.Now(),
	}
	return q.push(msg)
}

// push hands msg to the channel, or to the backlog when the channel is full
// or older messages are still waiting
func (q *Queue[T]) push(msg *Message[T]) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if len(q.backlog) == 0 {
		select {
		case q.messages <- msg:
			return nil
		default:
		}
	}

	q.backlog = append(q.backlog, msg)
	if !q.pumping {
		q.pumping = true
		q.wg.Add(1)
		go q.pump()
	}
	return nil
}

func (q *Queue[T]) pump() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if len(q.backlog) == 0 {
			q.pumping = false
			q.mu.Unlock()
			return
		}
		msg := q.backlog[0]
		q.mu.Unlock()

		select {
		case q.messages <- msg:
		case <-q.done:
			return
		}

		q.mu.Lock()
		q.backlog[0] = nil
		q.backlog = q.backlog[1:]
		q.mu.Unlock()
	}
}

// Consume retrieves a single item from the queue
func (q *Queue[T]) Consume(ctx context.Context) (port.Message[T], error) {
	select {
	case msg := <-q.messages:
		return msg, nil
	case <-q.done:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Queue[T]) requeue(msg *Message[T]) {
	defer q.wg.Done()

	timer := time.NewTimer(q.config.RetryDelay)
	defer timer.Stop()

	select {
	case <-q.done:
		return
	case <-timer.C:
	}

	_ = q.push(msg)
}

// Close stops delivery and waits for pending retries to give up
func (q *Queue[T]) Close() error {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.done)
	})
	q.wg.Wait()
	return nil
}

// Size returns the number of messages waiting for a consumer. While the
// backlog drains a message can be counted twice for a moment.
func (q *Queue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages) + len(q.backlog)
}

// DLQSize returns the number of messages in the dead letter list
func (q *Queue[T]) DLQSize() int {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return len(q.dlq)
}

// DeadLetters returns copies of the dead-lettered payloads
func (q *Queue[T]) DeadLetters() []T {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()

	out := make([]T, 0, len(q.dlq))
	for _, m := range q.dlq {
		out = append(out, m.payload)
	}
	return out
}

var _ port.Queue[any] = (*Queue[any])(nil)
