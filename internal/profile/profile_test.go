package profile

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/fampulse/internal/optimistic"
	"github.com/dukerupert/fampulse/internal/reconcile"
	"github.com/dukerupert/fampulse/internal/recordstore"
	"github.com/dukerupert/fampulse/internal/recordstore/storetest"
)

type fakeUploader struct {
	paths []string
	body  string
	err   error
}

func (f *fakeUploader) Upload(_ context.Context, path string, body io.Reader, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	b, _ := io.ReadAll(body)
	f.body = string(b)
	f.paths = append(f.paths, path)
	return "https://cdn.example.com/" + path, nil
}

func newService(t *testing.T, up Uploader) (*Service, *recordstore.SQLStore) {
	t.Helper()
	store := storetest.New(t)
	ctx := context.Background()
	_, err := store.Insert(ctx, "profiles", recordstore.Row{"id": "asha", "full_name": "Asha", "phone": "9876543210"})
	require.NoError(t, err)
	cache := reconcile.New(store, storetest.Logger())
	svc := New(store, cache, optimistic.New(storetest.Logger()), up, "asha", storetest.Logger())
	cache.RefreshAll(ctx)
	return svc, store
}

func TestUpdate(t *testing.T) {
	svc, store := newService(t, &fakeUploader{})
	ctx := context.Background()

	require.NoError(t, svc.Update(ctx, "  Asha Rao ", "+919876543210"))
	assert.Equal(t, "Asha Rao", svc.Me.Get().FullName)

	row, err := recordstore.SelectOne(ctx, store, recordstore.Query{Table: "profiles", Filters: []recordstore.Filter{recordstore.Eq("id", "asha")}})
	require.NoError(t, err)
	assert.Equal(t, "+919876543210", row.String("phone"))
}

func TestUpdateValidation(t *testing.T) {
	svc, _ := newService(t, &fakeUploader{})
	ctx := context.Background()

	tests := []struct {
		name, fullName, phone string
	}{
		{"empty name", " ", "9876543210"},
		{"short phone", "Asha", "98765"},
		{"letters", "Asha", "98765abcde"},
		{"too long", "Asha", "98765432101234"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Update(ctx, tt.fullName, tt.phone)
			assert.True(t, optimistic.IsValidation(err), "err = %v", err)
		})
	}
	assert.Equal(t, "Asha", svc.Me.Get().FullName)
}

func TestUploadAvatar(t *testing.T) {
	up := &fakeUploader{}
	svc, _ := newService(t, up)
	ctx := context.Background()

	url, err := svc.UploadAvatar(ctx, strings.NewReader("img"), "image/png")
	require.NoError(t, err)
	require.Len(t, up.paths, 1)
	assert.True(t, strings.HasPrefix(up.paths[0], "avatars/asha/"))
	assert.True(t, strings.HasSuffix(up.paths[0], ".png"))
	assert.Equal(t, "img", up.body)

	p, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, url, p.AvatarURL)
}

func TestUploadAvatarRejectsNonImage(t *testing.T) {
	up := &fakeUploader{}
	svc, _ := newService(t, up)

	_, err := svc.UploadAvatar(context.Background(), strings.NewReader("%PDF"), "application/pdf")
	assert.ErrorIs(t, err, ErrUnsupportedImage)
	assert.Empty(t, up.paths)
}

func TestUploadAvatarFailureKeepsProfile(t *testing.T) {
	svc, _ := newService(t, &fakeUploader{err: errors.New("bucket unavailable")})

	_, err := svc.UploadAvatar(context.Background(), strings.NewReader("img"), "image/jpeg")
	var opErr *optimistic.Error
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "Failed to upload avatar: bucket unavailable", err.Error())
	assert.Empty(t, svc.Me.Get().AvatarURL)
}
