package model

import "time"

type Notification struct {
	ID         string    `json:"id"`
	FamilyID   string    `json:"family_id"`
	UserID     string    `json:"user_id"`
	ActorID    string    `json:"actor_id,omitempty"`
	ActionType string    `json:"action_type"`
	Message    string    `json:"message"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}
