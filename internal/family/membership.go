package family

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dukerupert/fampulse/internal/model"
	"github.com/dukerupert/fampulse/internal/optimistic"
	"github.com/dukerupert/fampulse/internal/recordstore"
)

var (
	ErrForbidden         = errors.New("you don't have permission to do that")
	ErrNotFound          = errors.New("member not found")
	ErrInvalidInviteCode = errors.New("invalid invite code, please check and try again")
	ErrAlreadyMember     = errors.New("already a member of this family")
	ErrNotRegistered     = errors.New("user not registered yet")
	ErrSecondAdmin       = errors.New("a family has only one admin")
	ErrCycle             = errors.New("that would make someone their own ancestor")
	ErrNameRequired      = errors.New("family name is required")
)

const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const inviteCodeLength = 6

var inviteCodePattern = regexp.MustCompile(`^[A-Z0-9]{6,12}$`)

// NewInviteCode returns a random upper-case invite code.
func NewInviteCode() (string, error) {
	buf := make([]byte, inviteCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invite code: %w", err)
	}
	for i, b := range buf {
		buf[i] = inviteAlphabet[int(b)%len(inviteAlphabet)]
	}
	return string(buf), nil
}

// NormalizeInviteCode trims and upper-cases code and checks its shape.
func NormalizeInviteCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !inviteCodePattern.MatchString(code) {
		return "", optimistic.Reject(ErrInvalidInviteCode)
	}
	return code, nil
}

// CreateFamily creates a family with a fresh invite code and makes userID
// its admin.
func CreateFamily(ctx context.Context, store recordstore.Store, userID, name string) (model.Family, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Family{}, optimistic.Reject(ErrNameRequired)
	}
	code, err := NewInviteCode()
	if err != nil {
		return model.Family{}, err
	}
	rows, err := store.Insert(ctx, "families", recordstore.Row{
		"name":        name,
		"invite_code": code,
		"created_by":  userID,
	})
	if err != nil {
		return model.Family{}, &optimistic.Error{Action: "create family", Err: err}
	}
	if len(rows) == 0 {
		return model.Family{}, &optimistic.Error{Action: "create family", Err: errors.New("no row returned")}
	}
	fam := familyFromRow(rows[0])

	_, err = store.Insert(ctx, "family_members", recordstore.Row{
		"family_id": fam.ID,
		"user_id":   userID,
		"role":      string(model.RoleAdmin),
		"added_by":  userID,
	})
	if err != nil {
		return model.Family{}, &optimistic.Error{Action: "create family", Err: err}
	}
	return fam, nil
}

// JoinFamily adds userID to the family owning code as a kid. The code is
// checked for shape before it is looked up.
func JoinFamily(ctx context.Context, store recordstore.Store, userID, code string) (model.Family, error) {
	code, err := NormalizeInviteCode(code)
	if err != nil {
		return model.Family{}, err
	}
	row, err := recordstore.SelectOne(ctx, store, recordstore.Query{
		Table:   "families",
		Filters: []recordstore.Filter{recordstore.Eq("invite_code", code)},
	})
	if err != nil {
		return model.Family{}, &optimistic.Error{Action: "join family", Err: err}
	}
	if row == nil {
		return model.Family{}, optimistic.Reject(ErrInvalidInviteCode)
	}
	fam := familyFromRow(row)

	existing, err := recordstore.SelectOne(ctx, store, recordstore.Query{
		Table:   "family_members",
		Filters: []recordstore.Filter{recordstore.Eq("family_id", fam.ID), recordstore.Eq("user_id", userID)},
	})
	if err != nil {
		return model.Family{}, &optimistic.Error{Action: "join family", Err: err}
	}
	if existing != nil {
		return model.Family{}, optimistic.Reject(ErrAlreadyMember)
	}

	_, err = store.Insert(ctx, "family_members", recordstore.Row{
		"family_id": fam.ID,
		"user_id":   userID,
		"role":      string(model.RoleKid),
	})
	if err != nil {
		return model.Family{}, &optimistic.Error{Action: "join family", Err: err}
	}
	return fam, nil
}

// Membership is one family a user belongs to.
type Membership struct {
	Family model.Family
	Role   model.Role
}

// Families lists the families userID belongs to, oldest membership first.
func Families(ctx context.Context, store recordstore.Store, userID string) ([]Membership, error) {
	rows, err := store.Select(ctx, recordstore.Query{
		Table:   "family_members",
		Filters: []recordstore.Filter{recordstore.Eq("user_id", userID)},
		Order:   []recordstore.Order{recordstore.Asc("created_at")},
	})
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.String("family_id")
	}
	famRows, err := store.Select(ctx, recordstore.Query{
		Table:   "families",
		Filters: []recordstore.Filter{recordstore.In("id", ids)},
	})
	if err != nil {
		return nil, fmt.Errorf("list families: %w", err)
	}
	byID := make(map[string]model.Family, len(famRows))
	for _, r := range famRows {
		f := familyFromRow(r)
		byID[f.ID] = f
	}

	var out []Membership
	for _, r := range rows {
		f, ok := byID[r.String("family_id")]
		if !ok {
			continue
		}
		out = append(out, Membership{Family: f, Role: model.Role(r.String("role"))})
	}
	return out, nil
}

// OpenSession resolves userID's role in familyID.
func OpenSession(ctx context.Context, store recordstore.Store, userID, familyID string) (model.Session, error) {
	row, err := recordstore.SelectOne(ctx, store, recordstore.Query{
		Table:   "family_members",
		Filters: []recordstore.Filter{recordstore.Eq("family_id", familyID), recordstore.Eq("user_id", userID)},
	})
	if err != nil {
		return model.Session{}, fmt.Errorf("open session: %w", err)
	}
	if row == nil {
		return model.Session{}, ErrNotFound
	}
	return model.Session{UserID: userID, FamilyID: familyID, Role: model.Role(row.String("role"))}, nil
}
