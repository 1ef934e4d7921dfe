package model

import "time"

// Role is a member's standing within a family.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleAdminLite Role = "admin_lite"
	RoleKid       Role = "kid"
)

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleAdminLite || r == RoleKid }

type Family struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	InviteCode string    `json:"invite_code"`
	CreatedBy  string    `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Profile struct {
	ID              string     `json:"id"`
	FullName        string     `json:"full_name"`
	Nickname        string     `json:"nickname,omitempty"`
	Email           string     `json:"email,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	AvatarURL       string     `json:"avatar_url,omitempty"`
	Gender          string     `json:"gender,omitempty"`
	DateOfBirth     *time.Time `json:"date_of_birth,omitempty"`
	AnniversaryDate *time.Time `json:"anniversary_date,omitempty"`
	SpouseID        string     `json:"spouse_id,omitempty"`
}

// DisplayName prefers the nickname.
func (p Profile) DisplayName() string {
	if p.Nickname != "" {
		return p.Nickname
	}
	return p.FullName
}

// FamilyMember links a profile to a family. FatherID and MotherID refer to
// other members' user ids.
type FamilyMember struct {
	ID        string    `json:"id"`
	FamilyID  string    `json:"family_id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	Relation  string    `json:"relation,omitempty"`
	FatherID  string    `json:"father_id,omitempty"`
	MotherID  string    `json:"mother_id,omitempty"`
	AddedBy   string    `json:"added_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Profile   Profile   `json:"profile"`
}
