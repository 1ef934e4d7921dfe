// Package family holds the family roster: roles and what they allow, the
// family tree, and membership changes.
package family

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dukerupert/fampulse/internal/messaging"
	"github.com/dukerupert/fampulse/internal/model"
	"github.com/dukerupert/fampulse/internal/notify"
	"github.com/dukerupert/fampulse/internal/optimistic"
	"github.com/dukerupert/fampulse/internal/reconcile"
	"github.com/dukerupert/fampulse/internal/recordstore"
)

// Notifier tells the rest of the family about an action.
type Notifier interface {
	NotifyFamily(ctx context.Context, familyID, actorID, actionType, message string)
}

// Service is the family view of one session.
type Service struct {
	store    recordstore.Store
	cache    *reconcile.Cache
	mut      *optimistic.Mutator
	notifier Notifier
	opener   messaging.Opener
	logger   *slog.Logger
	session  model.Session
	appURL   string

	Family  *reconcile.Scope[model.Family]
	Members *reconcile.Scope[[]model.FamilyMember]
}

type Option func(*Service)

// WithAppURL sets the sign-up link included in invite messages.
func WithAppURL(u string) Option { return func(s *Service) { s.appURL = u } }

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func New(store recordstore.Store, cache *reconcile.Cache, mut *optimistic.Mutator, opener messaging.Opener, session model.Session, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		cache:   cache,
		mut:     mut,
		opener:  opener,
		logger:  logger,
		session: session,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Family = reconcile.NewScope(cache, "family", s.loadFamily, "families")
	s.Members = reconcile.NewScope(cache, "members", s.loadMembers, "family_members", "profiles")
	return s
}

func (s *Service) loadFamily(ctx context.Context) (model.Family, error) {
	row, err := recordstore.SelectOne(ctx, s.store, recordstore.Query{
		Table:   "families",
		Filters: []recordstore.Filter{recordstore.Eq("id", s.session.FamilyID)},
	})
	if err != nil {
		return model.Family{}, fmt.Errorf("load family: %w", err)
	}
	if row == nil {
		return model.Family{}, fmt.Errorf("load family %s: %w", s.session.FamilyID, ErrNotFound)
	}
	return familyFromRow(row), nil
}

// LoadMembers reads a family's members with their profiles, oldest first.
func LoadMembers(ctx context.Context, store recordstore.Store, familyID string) ([]model.FamilyMember, error) {
	rows, err := store.Select(ctx, recordstore.Query{
		Table:   "family_members",
		Filters: []recordstore.Filter{recordstore.Eq("family_id", familyID)},
		Order:   []recordstore.Order{recordstore.Asc("created_at")},
	})
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	members := make([]model.FamilyMember, len(rows))
	ids := make([]string, len(rows))
	for i, r := range rows {
		members[i] = memberFromRow(r)
		ids[i] = members[i].UserID
	}
	if len(ids) == 0 {
		return members, nil
	}

	profiles, err := store.Select(ctx, recordstore.Query{
		Table:   "profiles",
		Filters: []recordstore.Filter{recordstore.In("id", ids)},
	})
	if err != nil {
		return nil, fmt.Errorf("load member profiles: %w", err)
	}
	byID := make(map[string]model.Profile, len(profiles))
	for _, r := range profiles {
		p := ProfileFromRow(r)
		byID[p.ID] = p
	}
	for i := range members {
		members[i].Profile = byID[members[i].UserID]
	}
	return members, nil
}

func (s *Service) loadMembers(ctx context.Context) ([]model.FamilyMember, error) {
	return LoadMembers(ctx, s.store, s.session.FamilyID)
}

// Session returns the session the service acts for.
func (s *Service) Session() model.Session { return s.session }

// Role is the acting user's current role, read from the member list.
func (s *Service) Role() model.Role {
	for _, m := range s.Members.Get() {
		if m.UserID == s.session.UserID {
			return m.Role
		}
	}
	return s.session.Role
}

// Tree builds the family graph from the current member snapshot.
func (s *Service) Tree() *Tree { return NewTree(s.Members.Get()) }

func (s *Service) member(memberID string) (model.FamilyMember, error) {
	for _, m := range s.Members.Get() {
		if m.ID == memberID {
			return m, nil
		}
	}
	return model.FamilyMember{}, optimistic.Reject(ErrNotFound)
}

func (s *Service) hasAdminOtherThan(memberID string) bool {
	for _, m := range s.Members.Get() {
		if m.Role == model.RoleAdmin && m.ID != memberID {
			return true
		}
	}
	return false
}

func (s *Service) editMembers(fn func([]model.FamilyMember) []model.FamilyMember) func() func() {
	return func() func() {
		return s.Members.Apply(func(cur []model.FamilyMember) []model.FamilyMember {
			return fn(slices.Clone(cur))
		})
	}
}

// UpdateRole changes a member's role. Only admins assign roles, never their
// own, and a family keeps a single admin.
func (s *Service) UpdateRole(ctx context.Context, memberID string, role model.Role) error {
	if !role.Valid() {
		return optimistic.Invalid("role", fmt.Sprintf("unknown role %q", role))
	}
	target, err := s.member(memberID)
	if err != nil {
		return err
	}
	actor := s.Role()
	if !CanAssignRoles(actor) || !CanManage(actor, target.Role) || target.UserID == s.session.UserID {
		return optimistic.Reject(ErrForbidden)
	}
	if role == model.RoleAdmin && s.hasAdminOtherThan(memberID) {
		return optimistic.Reject(ErrSecondAdmin)
	}

	return s.mut.Do(ctx, optimistic.Command{
		Action: "update role",
		Apply: s.editMembers(func(ms []model.FamilyMember) []model.FamilyMember {
			for i := range ms {
				if ms[i].ID == memberID {
					ms[i].Role = role
				}
			}
			return ms
		}),
		Remote: func(ctx context.Context) error {
			return s.store.Update(ctx, "family_members", recordstore.Row{"role": string(role)}, recordstore.Eq("id", memberID))
		},
	})
}

// RemoveMember takes a member out of the family.
func (s *Service) RemoveMember(ctx context.Context, memberID string) error {
	target, err := s.member(memberID)
	if err != nil {
		return err
	}
	if !CanManage(s.Role(), target.Role) || target.UserID == s.session.UserID {
		return optimistic.Reject(ErrForbidden)
	}
	return s.mut.Do(ctx, optimistic.Command{
		Action: "remove member",
		Apply: s.editMembers(func(ms []model.FamilyMember) []model.FamilyMember {
			return slices.DeleteFunc(ms, func(m model.FamilyMember) bool { return m.ID == memberID })
		}),
		Remote: func(ctx context.Context) error {
			return s.store.Delete(ctx, "family_members", recordstore.Eq("id", memberID))
		},
	})
}

// AddMember adds the registered user with the given phone number and sends
// them the invite link. An unregistered number still gets the invite, and
// ErrNotRegistered is returned alongside as a notice.
func (s *Service) AddMember(ctx context.Context, phone string, role model.Role) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return optimistic.Invalid("phone", "please enter a phone number")
	}
	if !role.Valid() {
		return optimistic.Invalid("role", fmt.Sprintf("unknown role %q", role))
	}
	if !CanManage(s.Role(), role) {
		return optimistic.Reject(ErrForbidden)
	}
	if role == model.RoleAdmin && s.hasAdminOtherThan("") {
		return optimistic.Reject(ErrSecondAdmin)
	}

	profile, err := recordstore.SelectOne(ctx, s.store, recordstore.Query{
		Table:   "profiles",
		Filters: []recordstore.Filter{recordstore.Eq("phone", phone)},
	})
	if err != nil {
		return &optimistic.Error{Action: "add member", Err: err}
	}

	registered := profile != nil
	if registered {
		userID := profile.String("id")
		for _, m := range s.Members.Get() {
			if m.UserID == userID {
				return optimistic.Reject(ErrAlreadyMember)
			}
		}
		err := s.mut.Do(ctx, optimistic.Command{
			Action: "add member",
			Remote: func(ctx context.Context) error {
				_, err := s.store.Insert(ctx, "family_members", recordstore.Row{
					"family_id": s.session.FamilyID,
					"user_id":   userID,
					"role":      string(role),
					"added_by":  s.session.UserID,
				})
				return err
			},
		})
		if err != nil {
			return err
		}
		if s.notifier != nil {
			s.notifier.NotifyFamily(ctx, s.session.FamilyID, s.session.UserID, notify.MemberJoined,
				fmt.Sprintf("%s joined the family", ProfileFromRow(profile).DisplayName()))
		}
		s.refresh(ctx, s.Members)
	}

	if err := s.SendInvite(ctx, phone); err != nil {
		return err
	}
	if !registered {
		return optimistic.Reject(ErrNotRegistered)
	}
	return nil
}

// InviteLink composes the invite message deep link for phone.
func (s *Service) InviteLink(ctx context.Context, phone string) (string, error) {
	fam := s.Family.Get()
	if fam.ID == "" {
		var err error
		if fam, err = s.loadFamily(ctx); err != nil {
			return "", err
		}
	}
	return messaging.Link(phone, messaging.InviteMessage(fam.Name, fam.InviteCode, s.appURL)), nil
}

// SendInvite opens the invite message composer for phone.
func (s *Service) SendInvite(ctx context.Context, phone string) error {
	link, err := s.InviteLink(ctx, phone)
	if err != nil {
		return err
	}
	if err := s.opener.Open(ctx, link); err != nil {
		return &optimistic.Error{Action: "open invite", Err: err}
	}
	return nil
}

// RenameFamily changes the family name and refreshes the family scope.
func (s *Service) RenameFamily(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return optimistic.Reject(ErrNameRequired)
	}
	if !CanRenameFamily(s.Role()) {
		return optimistic.Reject(ErrForbidden)
	}
	if name == s.Family.Get().Name {
		return nil
	}
	err := s.mut.Do(ctx, optimistic.Command{
		Action: "update family name",
		Apply: func() func() {
			return s.Family.Apply(func(f model.Family) model.Family {
				f.Name = name
				return f
			})
		},
		Remote: func(ctx context.Context) error {
			return s.store.Update(ctx, "families", recordstore.Row{"name": name}, recordstore.Eq("id", s.session.FamilyID))
		},
	})
	if err != nil {
		return err
	}
	s.refresh(ctx, s.Family)
	return nil
}

// SetParents records a member's father and mother by user id. Empty ids
// clear the link. Links that would form a cycle are rejected.
func (s *Service) SetParents(ctx context.Context, memberID, fatherID, motherID string) error {
	if !CanEditTree(s.Role()) {
		return optimistic.Reject(ErrForbidden)
	}
	target, err := s.member(memberID)
	if err != nil {
		return err
	}
	tree := s.Tree()
	for _, parent := range []string{fatherID, motherID} {
		if parent == "" {
			continue
		}
		if _, ok := tree.Member(parent); !ok {
			return optimistic.Invalid("parent", "parent must be a member of this family")
		}
		if tree.WouldCycle(target.UserID, parent) {
			return optimistic.Reject(ErrCycle)
		}
	}
	if fatherID != "" && fatherID == motherID {
		return optimistic.Invalid("parent", "father and mother must be different people")
	}

	return s.mut.Do(ctx, optimistic.Command{
		Action: "update parents",
		Apply: s.editMembers(func(ms []model.FamilyMember) []model.FamilyMember {
			for i := range ms {
				if ms[i].ID == memberID {
					ms[i].FatherID, ms[i].MotherID = fatherID, motherID
				}
			}
			return ms
		}),
		Remote: func(ctx context.Context) error {
			return s.store.Update(ctx, "family_members",
				recordstore.Row{"father_id": nullable(fatherID), "mother_id": nullable(motherID)},
				recordstore.Eq("id", memberID))
		},
	})
}

// LinkSpouse marries two members, updating both profiles. Any previous
// spouse of either is unlinked so the edge stays mutual.
func (s *Service) LinkSpouse(ctx context.Context, userA, userB string) error {
	if !CanEditTree(s.Role()) {
		return optimistic.Reject(ErrForbidden)
	}
	if userA == userB {
		return optimistic.Invalid("spouse", "a member cannot be their own spouse")
	}
	tree := s.Tree()
	a, okA := tree.Member(userA)
	b, okB := tree.Member(userB)
	if !okA || !okB {
		return optimistic.Reject(ErrNotFound)
	}

	var stale []string
	for _, old := range []string{a.Profile.SpouseID, b.Profile.SpouseID} {
		if old != "" && old != userA && old != userB {
			stale = append(stale, old)
		}
	}

	err := s.mut.Do(ctx, optimistic.Command{
		Action: "link spouse",
		Apply:  s.editMembers(setSpouses(map[string]string{userA: userB, userB: userA}, stale)),
		Remote: func(ctx context.Context) error {
			if len(stale) > 0 {
				if err := s.store.Update(ctx, "profiles", recordstore.Row{"spouse_id": nil}, recordstore.In("id", stale)); err != nil {
					return err
				}
			}
			if err := s.store.Update(ctx, "profiles", recordstore.Row{"spouse_id": userB}, recordstore.Eq("id", userA)); err != nil {
				return err
			}
			return s.store.Update(ctx, "profiles", recordstore.Row{"spouse_id": userA}, recordstore.Eq("id", userB))
		},
	})
	if err != nil {
		return err
	}
	s.refresh(ctx, s.Members)
	return nil
}

// UnlinkSpouse clears the spouse link on both ends.
func (s *Service) UnlinkSpouse(ctx context.Context, userID string) error {
	if !CanEditTree(s.Role()) {
		return optimistic.Reject(ErrForbidden)
	}
	m, ok := s.Tree().Member(userID)
	if !ok {
		return optimistic.Reject(ErrNotFound)
	}
	if m.Profile.SpouseID == "" {
		return nil
	}
	ids := []string{userID, m.Profile.SpouseID}

	err := s.mut.Do(ctx, optimistic.Command{
		Action: "unlink spouse",
		Apply:  s.editMembers(setSpouses(nil, ids)),
		Remote: func(ctx context.Context) error {
			return s.store.Update(ctx, "profiles", recordstore.Row{"spouse_id": nil}, recordstore.In("id", ids))
		},
	})
	if err != nil {
		return err
	}
	s.refresh(ctx, s.Members)
	return nil
}

func setSpouses(links map[string]string, clear []string) func([]model.FamilyMember) []model.FamilyMember {
	return func(ms []model.FamilyMember) []model.FamilyMember {
		for i := range ms {
			if slices.Contains(clear, ms[i].UserID) {
				ms[i].Profile.SpouseID = ""
			}
			if spouse, ok := links[ms[i].UserID]; ok {
				ms[i].Profile.SpouseID = spouse
			}
		}
		return ms
	}
}

type refreshable interface {
	Name() string
	Refresh(ctx context.Context) error
}

func (s *Service) refresh(ctx context.Context, scope refreshable) {
	if err := scope.Refresh(ctx); err != nil {
		s.logger.Warn("refresh after mutation failed", "scope", scope.Name(), "error", err)
	}
}
