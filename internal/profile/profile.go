// Package profile edits the signed-in user's own profile and avatar.
package profile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/dukerupert/fampulse/internal/family"
	"github.com/dukerupert/fampulse/internal/model"
	"github.com/dukerupert/fampulse/internal/optimistic"
	"github.com/dukerupert/fampulse/internal/reconcile"
	"github.com/dukerupert/fampulse/internal/recordstore"
)

var (
	ErrNotFound         = errors.New("profile not found")
	ErrUnsupportedImage = errors.New("avatar must be a JPEG, PNG, GIF or WebP image")
)

var phonePattern = regexp.MustCompile(`^[+]?[0-9]{10,13}$`)

// imageTypes maps accepted avatar content types to file extensions.
var imageTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Uploader stores a blob and returns the URL it is served from.
type Uploader interface {
	Upload(ctx context.Context, path string, body io.Reader, contentType string) (string, error)
}

type Service struct {
	store    recordstore.Store
	mut      *optimistic.Mutator
	uploader Uploader
	logger   *slog.Logger
	userID   string

	Me *reconcile.Scope[model.Profile]
}

func New(store recordstore.Store, cache *reconcile.Cache, mut *optimistic.Mutator, uploader Uploader, userID string, logger *slog.Logger) *Service {
	s := &Service{
		store:    store,
		mut:      mut,
		uploader: uploader,
		logger:   logger,
		userID:   userID,
	}
	s.Me = reconcile.NewScope(cache, "profile", s.load, "profiles")
	return s
}

func (s *Service) load(ctx context.Context) (model.Profile, error) {
	row, err := recordstore.SelectOne(ctx, s.store, recordstore.Query{
		Table:   "profiles",
		Filters: []recordstore.Filter{recordstore.Eq("id", s.userID)},
	})
	if err != nil {
		return model.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	if row == nil {
		return model.Profile{}, ErrNotFound
	}
	return family.ProfileFromRow(row), nil
}

// Get returns the current profile, loading it if the scope is still empty.
func (s *Service) Get(ctx context.Context) (model.Profile, error) {
	if !s.Me.Loaded() {
		if err := s.Me.Refresh(ctx); err != nil {
			return model.Profile{}, err
		}
	}
	return s.Me.Get(), nil
}

// Update sets the user's name and phone number.
func (s *Service) Update(ctx context.Context, fullName, phone string) error {
	fullName = strings.TrimSpace(fullName)
	phone = strings.TrimSpace(phone)
	if fullName == "" {
		return optimistic.Invalid("full_name", "please enter your name")
	}
	if !phonePattern.MatchString(phone) {
		return optimistic.Invalid("phone", "please enter a valid phone number")
	}

	err := s.mut.Do(ctx, optimistic.Command{
		Action: "update profile",
		Apply: func() func() {
			return s.Me.Apply(func(p model.Profile) model.Profile {
				p.FullName = fullName
				p.Phone = phone
				return p
			})
		},
		Remote: func(ctx context.Context) error {
			return s.store.Update(ctx, "profiles",
				recordstore.Row{"full_name": fullName, "phone": phone},
				recordstore.Eq("id", s.userID))
		},
	})
	if err != nil {
		return err
	}
	s.refresh(ctx)
	return nil
}

// UploadAvatar stores the image read from r and points the profile at its
// public URL. It returns that URL.
func (s *Service) UploadAvatar(ctx context.Context, r io.Reader, contentType string) (string, error) {
	ext, ok := imageTypes[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", optimistic.Reject(ErrUnsupportedImage)
	}
	path := fmt.Sprintf("avatars/%s/%s.%s", s.userID, uuid.NewString(), ext)
	url, err := s.uploader.Upload(ctx, path, r, contentType)
	if err != nil {
		return "", &optimistic.Error{Action: "upload avatar", Err: err}
	}

	err = s.mut.Do(ctx, optimistic.Command{
		Action: "update avatar",
		Apply: func() func() {
			return s.Me.Apply(func(p model.Profile) model.Profile {
				p.AvatarURL = url
				return p
			})
		},
		Remote: func(ctx context.Context) error {
			return s.store.Update(ctx, "profiles", recordstore.Row{"avatar_url": url}, recordstore.Eq("id", s.userID))
		},
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("avatar updated", "user", s.userID, "path", path)
	s.refresh(ctx)
	return url, nil
}

func (s *Service) refresh(ctx context.Context) {
	if err := s.Me.Refresh(ctx); err != nil {
		s.logger.Warn("refresh after mutation failed", "scope", s.Me.Name(), "error", err)
	}
}
