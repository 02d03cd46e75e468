package models

import "time"

// AuditEvent is an append-only record of a single authorized action.
type AuditEvent struct {
	ID          string    `json:"id" db:"id"`
	OccurredAt  time.Time `json:"occurred_at" db:"occurred_at"`
	ActorType   ActorType `json:"actor_type" db:"actor_type"`
	ActorID     string    `json:"actor_id" db:"actor_id"`
	SessionID   *string   `json:"session_id,omitempty" db:"session_id"`
	Capability  string    `json:"capability" db:"capability"`
	CommandName string    `json:"command_name" db:"command_name"`
	PayloadJSON *string   `json:"payload_json,omitempty" db:"payload_json"`
	ResultJSON  *string   `json:"result_json,omitempty" db:"result_json"`
	Success     bool      `json:"success" db:"success"`
}
