package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/agronect/apiserver/internal/auth"
	"github.com/agronect/apiserver/internal/store"
	"github.com/agronect/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryUserRepo struct {
	users     map[string]types.User
	getErr    error
	updateErr error
}

func newMemoryUserRepo(users ...types.User) *memoryUserRepo {
	repo := &memoryUserRepo{users: map[string]types.User{}}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *memoryUserRepo) GetByID(ctx context.Context, id string) (types.User, error) {
	if r.getErr != nil {
		return types.User{}, r.getErr
	}
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *memoryUserRepo) List(ctx context.Context) ([]types.User, error) {
	out := make([]types.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

func (r *memoryUserRepo) UpdateProfile(ctx context.Context, user types.User) (types.User, error) {
	if r.updateErr != nil {
		return types.User{}, r.updateErr
	}
	if _, ok := r.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *memoryUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = passwordHash
	r.users[id] = user
	return nil
}

type memoryPhotos struct {
	uploaded  map[string]string
	deleted   []string
	uploadErr error
}

func (p *memoryPhotos) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if p.uploadErr != nil {
		return "", p.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if p.uploaded == nil {
		p.uploaded = map[string]string{}
	}
	p.uploaded[key] = string(data)
	return "https://cdn.example.com/" + key, nil
}

func (p *memoryPhotos) KeyFromURL(publicURL string) (string, bool) {
	const prefix = "https://cdn.example.com/"
	if !strings.HasPrefix(publicURL, prefix) {
		return "", false
	}
	return strings.TrimPrefix(publicURL, prefix), true
}

func (p *memoryPhotos) DeleteIfExists(ctx context.Context, key string) (bool, error) {
	p.deleted = append(p.deleted, key)
	return true, nil
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := auth.NewBcryptHasher().Hash(password)
	require.NoError(t, err)
	return h
}

func TestUserGetNotFound(t *testing.T) {
	svc := NewUserService(newMemoryUserRepo(), auth.NewBcryptHasher(), nil, nil)

	_, err := svc.Get(context.Background(), "2")
	requireKind(t, err, KindNotFound, MsgUserNotFound)
	assert.Equal(t, 404, KindOf(err).Status())
}

func TestUserGetInternal(t *testing.T) {
	repo := newMemoryUserRepo()
	repo.getErr = errors.New("db gone")
	svc := NewUserService(repo, auth.NewBcryptHasher(), nil, nil)

	_, err := svc.Get(context.Background(), "1")
	requireKind(t, err, KindInternal, "db gone")
}

func TestUpdateProfileWithoutPhoto(t *testing.T) {
	repo := newMemoryUserRepo(types.User{ID: "1", Name: "Old Name", Email: "old@example.com", PhotoProfileURL: "oldPhotoUrl"})
	svc := NewUserService(repo, auth.NewBcryptHasher(), nil, nil)

	user, err := svc.UpdateProfile(context.Background(), "1", ProfileUpdate{Name: "New Name", Email: "newemail@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "New Name", user.Name)
	assert.Equal(t, "newemail@example.com", user.Email)
	assert.Equal(t, "oldPhotoUrl", user.PhotoProfileURL)
}

func TestUpdateProfileKeepsBlankFields(t *testing.T) {
	repo := newMemoryUserRepo(types.User{ID: "1", Name: "Old Name", Email: "old@example.com"})
	svc := NewUserService(repo, auth.NewBcryptHasher(), nil, nil)

	user, err := svc.UpdateProfile(context.Background(), "1", ProfileUpdate{Name: "  "})
	require.NoError(t, err)
	assert.Equal(t, "Old Name", user.Name)
	assert.Equal(t, "old@example.com", user.Email)
}

func TestUpdateProfileReplacesPhoto(t *testing.T) {
	repo := newMemoryUserRepo(types.User{ID: "1", Name: "Old", Email: "o@x.com", PhotoProfileURL: "https://cdn.example.com/Photo-Profile_Image/profile-photo-old"})
	photos := &memoryPhotos{}
	svc := NewUserService(repo, auth.NewBcryptHasher(), photos, nil)

	user, err := svc.UpdateProfile(context.Background(), "1", ProfileUpdate{
		Photo: &PhotoUpload{Body: strings.NewReader("fake-file"), Size: 9, ContentType: "image/png"},
	})
	require.NoError(t, err)
	require.Len(t, photos.uploaded, 1)
	for key, body := range photos.uploaded {
		assert.True(t, strings.HasPrefix(key, "Photo-Profile_Image/profile-photo-"))
		assert.Equal(t, "fake-file", body)
		assert.Equal(t, "https://cdn.example.com/"+key, user.PhotoProfileURL)
	}
	assert.Equal(t, []string{"Photo-Profile_Image/profile-photo-old"}, photos.deleted)
}

func TestUpdateProfileSkipsForeignPhotoDelete(t *testing.T) {
	repo := newMemoryUserRepo(types.User{ID: "1", PhotoProfileURL: "https://gravatar.com/me.png"})
	photos := &memoryPhotos{}
	svc := NewUserService(repo, auth.NewBcryptHasher(), photos, nil)

	_, err := svc.UpdateProfile(context.Background(), "1", ProfileUpdate{
		Photo: &PhotoUpload{Body: strings.NewReader("x"), Size: 1, ContentType: "image/png"},
	})
	require.NoError(t, err)
	assert.Empty(t, photos.deleted)
}

func TestUpdateProfilePhotoErrors(t *testing.T) {
	repo := newMemoryUserRepo(types.User{ID: "1"})
	photo := &PhotoUpload{Body: strings.NewReader("x"), Size: 1, ContentType: "image/png"}

	svc := NewUserService(repo, auth.NewBcryptHasher(), nil, nil)
	_, err := svc.UpdateProfile(context.Background(), "1", ProfileUpdate{Photo: photo})
	requireKind(t, err, KindInternal, ErrPhotoStorageDisabled.Error())

	svc = NewUserService(repo, auth.NewBcryptHasher(), &memoryPhotos{uploadErr: errors.New("Upload error")}, nil)
	_, err = svc.UpdateProfile(context.Background(), "1", ProfileUpdate{Photo: photo})
	requireKind(t, err, KindInternal, "Upload error")
}

func TestUpdateProfileRemovesUploadWhenRecordUpdateFails(t *testing.T) {
	repo := newMemoryUserRepo(types.User{ID: "1", PhotoProfileURL: "https://cdn.example.com/Photo-Profile_Image/profile-photo-old"})
	repo.updateErr = errors.New("db gone")
	photos := &memoryPhotos{}
	svc := NewUserService(repo, auth.NewBcryptHasher(), photos, nil)

	_, err := svc.UpdateProfile(context.Background(), "1", ProfileUpdate{
		Photo: &PhotoUpload{Body: strings.NewReader("x"), Size: 1, ContentType: "image/png"},
	})
	requireKind(t, err, KindInternal, "db gone")

	require.Len(t, photos.uploaded, 1)
	for key := range photos.uploaded {
		assert.Equal(t, []string{key}, photos.deleted)
	}
}

func TestUpdateProfileNotFound(t *testing.T) {
	svc := NewUserService(newMemoryUserRepo(), auth.NewBcryptHasher(), nil, nil)

	_, err := svc.UpdateProfile(context.Background(), "1", ProfileUpdate{Name: "New Name"})
	requireKind(t, err, KindNotFound, MsgUserNotFound)
}

func TestChangePassword(t *testing.T) {
	repo := newMemoryUserRepo(types.User{ID: "1", PasswordHash: hashed(t, "OldPass1")})
	hasher := auth.NewBcryptHasher()
	svc := NewUserService(repo, hasher, nil, nil)
	ctx := context.Background()

	err := svc.ChangePassword(ctx, "1", PasswordChange{OldPassword: "OldPass1", NewPassword: "NewPass1", ConfirmPassword: "Other1"})
	requireKind(t, err, KindValidationFailed, MsgPasswordMismatch)

	err = svc.ChangePassword(ctx, "1", PasswordChange{OldPassword: "wrong", NewPassword: "NewPass1", ConfirmPassword: "NewPass1"})
	requireKind(t, err, KindValidationFailed, MsgOldPassword)
	assert.Equal(t, 400, KindOf(err).Status())

	require.NoError(t, svc.ChangePassword(ctx, "1", PasswordChange{OldPassword: "OldPass1", NewPassword: "NewPass1", ConfirmPassword: "NewPass1"}))
	ok, err := hasher.Verify("NewPass1", repo.users["1"].PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	err = svc.ChangePassword(ctx, "missing", PasswordChange{OldPassword: "a", NewPassword: "b", ConfirmPassword: "b"})
	requireKind(t, err, KindNotFound, MsgUserNotFound)
}
