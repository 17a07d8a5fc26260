package dispatcher

import (
	"context"

	"github.com/garyjia/claimflow/internal/domain/event"
)

// Handler processes claim domain events
type Handler func(ctx context.Context, evt *event.Event) error

// Filter decides whether an event reaches a handler
type Filter func(evt *event.Event) bool

// HandlerInfo describes a subscription. Empty Types, TenantID and ClaimID
// match everything.
type HandlerInfo struct {
	Name        string
	Types       []event.Type
	TenantID    string
	ClaimID     string
	Description string
	Handler     Handler

	filters []Filter
}

func (h *HandlerInfo) matches(evt *event.Event) bool {
	if len(h.Types) > 0 && !containsType(h.Types, evt.Type) {
		return false
	}
	if h.TenantID != "" && h.TenantID != evt.TenantID {
		return false
	}
	if h.ClaimID != "" && h.ClaimID != evt.ClaimID {
		return false
	}
	for _, f := range h.filters {
		if !f(evt) {
			return false
		}
	}
	return true
}

func containsType(types []event.Type, t event.Type) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

// SubscribeOption narrows a subscription
type SubscribeOption func(*HandlerInfo)

// OnTypes limits the subscription to the given event types
func OnTypes(types ...event.Type) SubscribeOption {
	return func(h *HandlerInfo) {
		h.Types = append(h.Types, types...)
	}
}

// ForTenant limits the subscription to one tenant's claims
func ForTenant(tenantID string) SubscribeOption {
	return func(h *HandlerInfo) {
		h.TenantID = tenantID
	}
}

// ForClaim limits the subscription to a single claim
func ForClaim(claimID string) SubscribeOption {
	return func(h *HandlerInfo) {
		h.ClaimID = claimID
	}
}

// When adds a predicate every delivered event must satisfy
func When(f Filter) SubscribeOption {
	return func(h *HandlerInfo) {
		if f != nil {
			h.filters = append(h.filters, f)
		}
	}
}

// Describe attaches a description shown by Subscriptions
func Describe(desc string) SubscribeOption {
	return func(h *HandlerInfo) {
		h.Description = desc
	}
}

// StatusBecomes matches status change events landing on one of the states
func StatusBecomes(states ...string) Filter {
	return func(evt *event.Event) bool {
		if evt.Type != event.TypeStatusChanged {
			return false
		}
		to := evt.GetPayloadString("new_status")
		for _, s := range states {
			if s == to {
				return true
			}
		}
		return false
	}
}
