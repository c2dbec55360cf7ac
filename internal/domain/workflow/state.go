package workflow

// State names a node in a workflow graph. States carry no ordering of their
// own; progress ordering is a concern of the definition author.
type State string

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// Event names a transition out of a state. Event names are unique per state.
type Event string

// String returns the string representation of the event
func (e Event) String() string {
	return string(e)
}
