package event

import (
	"testing"
	"time"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{"status changed", TypeStatusChanged, true},
		{"stage completed", TypeStageCompleted, true},
		{"pipeline failed", TypePipelineFailed, true},
		{"claim settled", TypeClaimSettled, true},
		{"unknown", Type("claim.deleted"), false},
		{"empty", Type(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.IsValid(); got != tt.want {
				t.Errorf("Type.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEvent(t *testing.T) {
	before := time.Now()
	e := NewEvent(TypeStatusChanged, "acme", "claim-1", map[string]interface{}{"to": "PENDING_HR"})

	if e.ID == "" || e.CorrelationID == "" {
		t.Fatal("NewEvent() should generate ID and correlation ID")
	}
	if e.ID == e.CorrelationID {
		t.Error("ID and CorrelationID should differ")
	}
	if e.ClaimID != "claim-1" || e.TenantID != "acme" {
		t.Errorf("unexpected identity %s/%s", e.TenantID, e.ClaimID)
	}
	if e.Timestamp.Before(before) {
		t.Error("Timestamp should not precede creation")
	}
	if e.GetPayloadString("to") != "PENDING_HR" {
		t.Errorf("GetPayloadString() = %q", e.GetPayloadString("to"))
	}
}

func TestNewEvent_NilPayload(t *testing.T) {
	e := NewEvent(TypeClaimSettled, "acme", "claim-1", nil)
	if e.Payload == nil {
		t.Fatal("payload should be initialised")
	}
	if e.GetPayloadString("missing") != "" {
		t.Error("missing key should yield empty string")
	}
}

func TestNewEventWithCorrelation(t *testing.T) {
	e := NewEventWithCorrelation(TypeStageCompleted, "acme", "claim-1", nil, "corr-9")
	if e.CorrelationID != "corr-9" {
		t.Errorf("CorrelationID = %q, want corr-9", e.CorrelationID)
	}
}

func TestEvent_WithPayload(t *testing.T) {
	original := NewEvent(TypeStageCompleted, "acme", "claim-1", map[string]interface{}{"stage": "VALIDATION"})
	updated := original.WithPayload("duration_ms", 42)

	if _, ok := original.Payload["duration_ms"]; ok {
		t.Error("WithPayload() must not mutate the original event")
	}
	if updated.GetPayloadInt("duration_ms") != 42 {
		t.Errorf("GetPayloadInt() = %d, want 42", updated.GetPayloadInt("duration_ms"))
	}
	if updated.GetPayloadString("stage") != "VALIDATION" {
		t.Error("WithPayload() should keep existing entries")
	}
	if updated.ID != original.ID {
		t.Error("WithPayload() should keep the event identity")
	}
}

func TestEvent_GetPayloadFloat(t *testing.T) {
	e := NewEvent(TypeApprovalDecided, "acme", "claim-1", map[string]interface{}{
		"amount":  125.5,
		"count":   3,
		"label":   "x",
		"counter": int64(7),
	})

	tests := []struct {
		key  string
		want float64
	}{
		{"amount", 125.5},
		{"count", 3},
		{"counter", 7},
		{"label", 0},
		{"missing", 0},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := e.GetPayloadFloat(tt.key); got != tt.want {
				t.Errorf("GetPayloadFloat(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}
