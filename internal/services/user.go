package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/agronect/apiserver/internal/auth"
	"github.com/agronect/apiserver/internal/store"
	"github.com/agronect/apiserver/types"
	"github.com/google/uuid"
)

const photoKeyPrefix = "Photo-Profile_Image/profile-photo-"

// ErrPhotoStorageDisabled is returned when a photo is uploaded without configured storage.
var ErrPhotoStorageDisabled = errors.New("photo storage is not configured")

// UserRepository defines persistence operations for user profiles.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	UpdateProfile(ctx context.Context, user types.User) (types.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// PhotoStore uploads profile photos and removes replaced ones.
type PhotoStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	KeyFromURL(publicURL string) (string, bool)
	DeleteIfExists(ctx context.Context, key string) (bool, error)
}

// PhotoUpload is a profile photo received from the client.
type PhotoUpload struct {
	Body        io.Reader
	Size        int64
	ContentType string
}

// ProfileUpdate carries the editable profile fields. Empty fields keep their current value.
type ProfileUpdate struct {
	Name  string
	Email string
	Photo *PhotoUpload
}

type PasswordChange struct {
	OldPassword     string
	NewPassword     string
	ConfirmPassword string
}

// UserService encapsulates profile use-cases.
type UserService struct {
	repo   UserRepository
	hasher auth.Hasher
	photos PhotoStore
	logger *slog.Logger
}

// NewUserService builds the service. photos may be nil, which rejects photo uploads.
func NewUserService(repo UserRepository, hasher auth.Hasher, photos PhotoStore, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{repo: repo, hasher: hasher, photos: photos, logger: logger}
}

func (s *UserService) Get(ctx context.Context, id string) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, s.lookupError(ctx, err)
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, internal(err.Error(), err)
	}
	return users, nil
}

// UpdateProfile applies update to user id. A new photo replaces the stored one;
// the old object is removed best-effort after the record is updated, and the new
// one is removed best-effort if the record update fails.
func (s *UserService) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, s.lookupError(ctx, err)
	}
	previousPhoto := user.PhotoProfileURL

	if name := strings.TrimSpace(update.Name); name != "" {
		user.Name = name
	}
	if email := strings.TrimSpace(update.Email); email != "" {
		user.Email = email
	}

	if update.Photo != nil {
		if s.photos == nil {
			return types.User{}, internal(ErrPhotoStorageDisabled.Error(), ErrPhotoStorageDisabled)
		}
		url, err := s.photos.Upload(ctx, photoKeyPrefix+uuid.NewString(), update.Photo.Body, update.Photo.Size, update.Photo.ContentType)
		if err != nil {
			s.logger.ErrorContext(ctx, "upload profile photo failed", slog.String("user_id", id), slog.Any("error", err))
			return types.User{}, internal(err.Error(), err)
		}
		user.PhotoProfileURL = url
	}

	if _, err := s.repo.UpdateProfile(ctx, user); err != nil {
		if update.Photo != nil {
			s.removePhoto(ctx, user.PhotoProfileURL)
		}
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, fail(KindNotFound, MsgUserNotFound)
		}
		return types.User{}, internal(err.Error(), err)
	}

	if update.Photo != nil && previousPhoto != "" && previousPhoto != user.PhotoProfileURL {
		s.removePhoto(ctx, previousPhoto)
	}

	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, s.lookupError(ctx, err)
	}
	return updated, nil
}

// ChangePassword replaces the stored hash after checking the old password.
func (s *UserService) ChangePassword(ctx context.Context, id string, change PasswordChange) error {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return s.lookupError(ctx, err)
	}

	if change.NewPassword != change.ConfirmPassword {
		return fail(KindValidationFailed, MsgPasswordMismatch)
	}

	ok, err := s.hasher.Verify(change.OldPassword, user.PasswordHash)
	if err != nil {
		return internal(err.Error(), err)
	}
	if !ok {
		return fail(KindValidationFailed, MsgOldPassword)
	}

	hashed, err := s.hasher.Hash(change.NewPassword)
	if err != nil {
		return internal(err.Error(), err)
	}
	if err := s.repo.UpdatePassword(ctx, id, hashed); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail(KindNotFound, MsgUserNotFound)
		}
		return internal(err.Error(), err)
	}

	s.logger.InfoContext(ctx, "password changed", slog.String("user_id", id))
	return nil
}

func (s *UserService) removePhoto(ctx context.Context, publicURL string) {
	if s.photos == nil {
		return
	}
	key, ok := s.photos.KeyFromURL(publicURL)
	if !ok {
		return
	}
	if _, err := s.photos.DeleteIfExists(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "delete previous profile photo failed",
			slog.String("key", key), slog.Any("error", err))
	}
}

func (s *UserService) lookupError(ctx context.Context, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fail(KindNotFound, MsgUserNotFound)
	}
	s.logger.ErrorContext(ctx, "load user failed", slog.Any("error", err))
	return internal(err.Error(), err)
}
