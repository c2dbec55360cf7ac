package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

// WorkflowInstance is one run of a workflow definition. State and Data are
// the (currentState, context) pair handed to the engine on every call.
type WorkflowInstance struct {
	ID           int64                  `json:"id"`
	DefinitionID string                 `json:"definition_id"`
	State        string                 `json:"state"`
	Data         map[string]interface{} `json:"data"`
	Version      int64                  `json:"version"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// MarshalData encodes Data for storage
func (i *WorkflowInstance) MarshalData() (string, error) {
	if i.Data == nil {
		return "{}", nil
	}
	b, err := json.Marshal(i.Data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal instance data: %w", err)
	}
	return string(b), nil
}

// UnmarshalData decodes stored Data
func (i *WorkflowInstance) UnmarshalData(raw string) error {
	i.Data = make(map[string]interface{})
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &i.Data); err != nil {
		return fmt.Errorf("failed to unmarshal instance data: %w", err)
	}
	return nil
}
