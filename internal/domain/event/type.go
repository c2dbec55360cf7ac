package event

// Type identifies the type of domain event
type Type string

const (
	TypeInstanceCreated     Type = "workflow.instance.created"
	TypeTransitionSucceeded Type = "workflow.transition.succeeded"
	TypeTransitionFailed    Type = "workflow.transition.failed"
	TypeAutoEvaluated       Type = "workflow.auto.evaluated"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeInstanceCreated,
		TypeTransitionSucceeded,
		TypeTransitionFailed,
		TypeAutoEvaluated:
		return true
	default:
		return false
	}
}
