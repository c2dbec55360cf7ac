package entity

import "time"

// TransitionHistory is the audit record of one transition attempt
type TransitionHistory struct {
	ID         int64     `json:"id"`
	InstanceID int64     `json:"instance_id"`
	EventID    string    `json:"event_id"`
	FromState  string    `json:"from_state"`
	ToState    string    `json:"to_state"`
	Event      string    `json:"event"`
	Actor      string    `json:"actor"`
	Auto       bool      `json:"auto"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
