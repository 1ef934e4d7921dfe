package family

import (
	"github.com/dukerupert/fampulse/internal/model"
	"github.com/dukerupert/fampulse/internal/recordstore"
)

func familyFromRow(r recordstore.Row) model.Family {
	return model.Family{
		ID:         r.String("id"),
		Name:       r.String("name"),
		InviteCode: r.String("invite_code"),
		CreatedBy:  r.String("created_by"),
		CreatedAt:  r.Time("created_at"),
	}
}

// ProfileFromRow converts a profiles row.
func ProfileFromRow(r recordstore.Row) model.Profile {
	p := model.Profile{
		ID:        r.String("id"),
		FullName:  r.String("full_name"),
		Nickname:  r.String("nickname"),
		Email:     r.String("email"),
		Phone:     r.String("phone"),
		AvatarURL: r.String("avatar_url"),
		Gender:    r.String("gender"),
		SpouseID:  r.String("spouse_id"),
	}
	if d := r.Date("date_of_birth"); !d.IsZero() {
		p.DateOfBirth = &d
	}
	if d := r.Date("anniversary_date"); !d.IsZero() {
		p.AnniversaryDate = &d
	}
	return p
}

func memberFromRow(r recordstore.Row) model.FamilyMember {
	return model.FamilyMember{
		ID:        r.String("id"),
		FamilyID:  r.String("family_id"),
		UserID:    r.String("user_id"),
		Role:      model.Role(r.String("role")),
		Relation:  r.String("relation"),
		FatherID:  r.String("father_id"),
		MotherID:  r.String("mother_id"),
		AddedBy:   r.String("added_by"),
		CreatedAt: r.Time("created_at"),
	}
}

// nullable maps an empty string to NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
