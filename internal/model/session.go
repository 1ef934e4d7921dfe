package model

// Session identifies who is acting and in which family. Role is the role
// the member had when the session was opened; services re-read it from the
// member list before permission checks.
type Session struct {
	UserID   string `json:"user_id"`
	FamilyID string `json:"family_id"`
	Role     Role   `json:"role"`
}
