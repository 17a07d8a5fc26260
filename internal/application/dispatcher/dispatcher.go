package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/claimflow/internal/domain/event"
)

var (
	// ErrClosed is returned when using a closed dispatcher
	ErrClosed = errors.New("dispatcher is closed")

	// ErrDuplicateHandler is returned when a subscription name is taken
	ErrDuplicateHandler = errors.New("handler name already subscribed")
)

// Publisher is the producing side: services that raise claim events only
// need this much.
type Publisher interface {
	// Dispatch runs every matching handler in subscription order and joins their errors
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync runs matching handlers in the background, detached from ctx cancellation
	DispatchAsync(ctx context.Context, evt *event.Event)
}

// Dispatcher routes claim events to subscriptions. A subscription picks the
// event types it wants and can narrow further to a tenant, a claim or any
// predicate over the event.
type Dispatcher interface {
	Publisher

	// Subscribe registers a handler under a unique name
	Subscribe(name string, handler Handler, opts ...SubscribeOption) error

	// Unsubscribe removes a handler by name and reports whether it existed
	Unsubscribe(name string) bool

	// Subscriptions describes the registered handlers, optionally only those
	// that would receive an event of type t
	Subscriptions(t event.Type) []HandlerInfo

	// Close rejects new events and waits for async handlers
	Close() error
}

// Logger is the minimal logging dependency of the dispatcher
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	mu     sync.RWMutex
	subs   []*HandlerInfo
	byName map[string]*HandlerInfo
	logger Logger

	wg     sync.WaitGroup
	closed atomic.Bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		byName: make(map[string]*HandlerInfo),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(name string, handler Handler, opts ...SubscribeOption) error {
	if name == "" {
		return errors.New("handler name is required")
	}
	if handler == nil {
		return fmt.Errorf("handler %s is nil", name)
	}
	if d.closed.Load() {
		return ErrClosed
	}

	info := &HandlerInfo{Name: name, Handler: handler}
	for _, opt := range opts {
		opt(info)
	}

	d.mu.Lock()
	if _, ok := d.byName[name]; ok {
		d.mu.Unlock()
		return fmt.Errorf("%s: %w", name, ErrDuplicateHandler)
	}
	d.byName[name] = info
	d.subs = append(d.subs, info)
	d.mu.Unlock()

	d.info("Handler subscribed",
		"handler_name", name,
		"event_types", info.Types,
		"tenant_id", info.TenantID,
		"claim_id", info.ClaimID,
	)
	return nil
}

func (d *eventDispatcher) Unsubscribe(name string) bool {
	d.mu.Lock()
	info, ok := d.byName[name]
	if ok {
		delete(d.byName, name)
		kept := make([]*HandlerInfo, 0, len(d.subs))
		for _, s := range d.subs {
			if s != info {
				kept = append(kept, s)
			}
		}
		d.subs = kept
	}
	d.mu.Unlock()

	if ok {
		d.info("Handler unsubscribed", "handler_name", name)
	}
	return ok
}

// matching returns the subscriptions an event is delivered to
func (d *eventDispatcher) matching(evt *event.Event) []*HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*HandlerInfo
	for _, s := range d.subs {
		if s.matches(evt) {
			out = append(out, s)
		}
	}
	return out
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if d.closed.Load() {
		return ErrClosed
	}

	var errs []error
	for _, h := range d.matching(evt) {
		if err := d.safeExecute(ctx, evt, h); err != nil {
			d.error("Handler error",
				"event_type", evt.Type,
				"claim_id", evt.ClaimID,
				"handler_name", h.Name,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("handler %s: %w", h.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	if d.closed.Load() {
		d.error("Cannot dispatch async event, dispatcher is closed",
			"event_type", evt.Type,
			"claim_id", evt.ClaimID,
		)
		return
	}

	ctx = context.WithoutCancel(ctx)
	for _, h := range d.matching(evt) {
		d.wg.Add(1)
		go func(h *HandlerInfo) {
			defer d.wg.Done()
			if err := d.safeExecute(ctx, evt, h); err != nil {
				d.error("Async handler error",
					"event_type", evt.Type,
					"claim_id", evt.ClaimID,
					"handler_name", h.Name,
					"error", err,
				)
			}
		}(h)
	}
}

func (d *eventDispatcher) Subscriptions(t event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]HandlerInfo, 0, len(d.subs))
	for _, s := range d.subs {
		if t != "" && len(s.Types) > 0 && !containsType(s.Types, t) {
			continue
		}
		cp := *s
		cp.Handler = nil
		cp.filters = nil
		out = append(out, cp)
	}
	return out
}

func (d *eventDispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	d.info("Closing dispatcher, waiting for async handlers")
	d.wg.Wait()
	d.info("Dispatcher closed")
	return nil
}

// safeExecute runs a handler with panic recovery
func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, info *HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return info.Handler(ctx, evt)
}

func (d *eventDispatcher) info(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, kv...)
	}
}

func (d *eventDispatcher) error(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Error(msg, kv...)
	}
}
