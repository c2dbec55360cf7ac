package event

import (
	"testing"
	"time"
)

func TestType_String(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      string
	}{
		{name: "instance created", eventType: TypeInstanceCreated, want: "workflow.instance.created"},
		{name: "transition succeeded", eventType: TypeTransitionSucceeded, want: "workflow.transition.succeeded"},
		{name: "transition failed", eventType: TypeTransitionFailed, want: "workflow.transition.failed"},
		{name: "auto evaluated", eventType: TypeAutoEvaluated, want: "workflow.auto.evaluated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.String(); got != tt.want {
				t.Errorf("Type.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{name: "valid - instance created", eventType: TypeInstanceCreated, want: true},
		{name: "valid - transition succeeded", eventType: TypeTransitionSucceeded, want: true},
		{name: "valid - transition failed", eventType: TypeTransitionFailed, want: true},
		{name: "valid - auto evaluated", eventType: TypeAutoEvaluated, want: true},
		{name: "invalid - unknown type", eventType: Type("unknown.type"), want: false},
		{name: "invalid - empty string", eventType: Type(""), want: false},
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
	payload := map[string]interface{}{
		KeyFromState: "submitted",
		KeyToState:   "approved",
	}

	event := NewEvent(TypeTransitionSucceeded, 123, "authorization", payload)

	if event == nil {
		t.Fatal("NewEvent() returned nil")
	}
	if event.ID == "" {
		t.Error("Event ID should not be empty")
	}
	if event.Type != TypeTransitionSucceeded {
		t.Errorf("Event Type = %v, want %v", event.Type, TypeTransitionSucceeded)
	}
	if event.InstanceID != 123 {
		t.Errorf("Event InstanceID = %v, want %v", event.InstanceID, 123)
	}
	if event.DefinitionID != "authorization" {
		t.Errorf("Event DefinitionID = %v, want %v", event.DefinitionID, "authorization")
	}
	if event.GetPayloadString(KeyToState) != "approved" {
		t.Errorf("Event Payload[to_state] = %v, want %v", event.Payload[KeyToState], "approved")
	}
	if event.CorrelationID == "" || event.CorrelationID == event.ID {
		t.Error("Event CorrelationID should be set independently of ID")
	}
	if time.Since(event.Timestamp) > time.Second {
		t.Error("Event Timestamp should be recent")
	}
}

func TestNewEvent_NilPayload(t *testing.T) {
	event := NewEvent(TypeInstanceCreated, 1, "incident", nil)
	if event.Payload == nil {
		t.Fatal("Event Payload should be initialized")
	}
}

func TestNewEventWithCorrelation(t *testing.T) {
	event := NewEventWithCorrelation(TypeAutoEvaluated, 789, "incident", nil, "corr-123")

	if event.CorrelationID != "corr-123" {
		t.Errorf("Event CorrelationID = %v, want %v", event.CorrelationID, "corr-123")
	}
}

func TestEvent_WithPayload(t *testing.T) {
	original := NewEvent(TypeTransitionFailed, 1, "incident", map[string]interface{}{
		KeyEvent: "notify",
	})

	modified := original.WithPayload(KeyError, "guard rejected")

	if _, exists := original.Payload[KeyError]; exists {
		t.Error("Original event should not be modified")
	}
	if modified.GetPayloadString(KeyError) != "guard rejected" {
		t.Error("Modified event should carry the new key")
	}
	if modified.ID != original.ID {
		t.Error("Modified event should keep the original ID")
	}
}

func TestEvent_PayloadGetters(t *testing.T) {
	event := NewEvent(TypeAutoEvaluated, 1, "incident", map[string]interface{}{
		KeyCount: 3,
		KeyAuto:  true,
		"float":  float64(2),
	})

	if got := event.GetPayloadInt(KeyCount); got != 3 {
		t.Errorf("GetPayloadInt() = %v, want 3", got)
	}
	if got := event.GetPayloadInt("float"); got != 2 {
		t.Errorf("GetPayloadInt(float) = %v, want 2", got)
	}
	if !event.GetPayloadBool(KeyAuto) {
		t.Error("GetPayloadBool() should be true")
	}
	if event.GetPayloadString("missing") != "" {
		t.Error("GetPayloadString(missing) should be empty")
	}
}
