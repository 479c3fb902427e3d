package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/agronect/apiserver/internal/auth"
	"github.com/agronect/apiserver/internal/events"
	"github.com/agronect/apiserver/internal/store"
	"github.com/agronect/apiserver/types"
	"github.com/google/uuid"
)

const bearerPrefix = "Bearer "

// UserDirectory is the persistence the auth flows depend on.
type UserDirectory interface {
	// FindByEmail returns zero or more users with exactly this email.
	FindByEmail(ctx context.Context, email string) ([]types.User, error)
	Insert(ctx context.Context, user types.User) error
	// RecordSignout is best-effort; callers ignore its error.
	RecordSignout(ctx context.Context, token string) error
}

// TokenSigner issues access tokens for authenticated users.
type TokenSigner interface {
	Issue(claims auth.Claims) (string, error)
}

// EventPublisher receives auth events. Failures never change an outcome.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type SignupInput struct {
	Name     string
	Email    string
	Password string
}

type SigninInput struct {
	Email    string
	Password string
}

// SigninResult is the successful signin payload.
type SigninResult struct {
	UserID          string
	Name            string
	Email           string
	PhotoProfileURL string
	AccessToken     string
}

// AuthService implements signup, signin and signout. It holds no per-call state.
type AuthService struct {
	users  UserDirectory
	hasher auth.Hasher
	tokens TokenSigner
	events EventPublisher
	logger *slog.Logger
	newID  func() string
	now    func() time.Time
}

type AuthOption func(*AuthService)

func WithEventPublisher(p EventPublisher) AuthOption {
	return func(s *AuthService) {
		if p != nil {
			s.events = p
		}
	}
}

func WithAuthLogger(logger *slog.Logger) AuthOption {
	return func(s *AuthService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIDGenerator replaces uuid.NewString for new user ids.
func WithIDGenerator(newID func() string) AuthOption {
	return func(s *AuthService) {
		if newID != nil {
			s.newID = newID
		}
	}
}

func WithAuthClock(now func() time.Time) AuthOption {
	return func(s *AuthService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewAuthService(users UserDirectory, hasher auth.Hasher, tokens TokenSigner, opts ...AuthOption) *AuthService {
	s := &AuthService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		events: events.Discard,
		logger: slog.Default(),
		newID:  uuid.NewString,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup registers a new user and returns the submitted profile without the password.
//
// The duplicate check and the insert are separate directory calls, so two
// concurrent signups for one email can both pass the check unless the
// directory enforces uniqueness itself.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (types.Profile, error) {
	if strings.TrimSpace(in.Email) == "" || !strings.Contains(in.Email, "@") {
		return types.Profile{}, fail(KindValidationFailed, "email must be a valid email")
	}
	if strings.TrimSpace(in.Password) == "" {
		return types.Profile{}, fail(KindValidationFailed, "password is required")
	}

	existing, err := s.users.FindByEmail(ctx, in.Email)
	if err != nil {
		s.logger.ErrorContext(ctx, "signup: email lookup failed", slog.Any("error", err))
		return types.Profile{}, internal(err.Error(), err)
	}
	if len(existing) > 0 {
		return types.Profile{}, fail(KindDuplicateEmail, MsgEmailRegistered)
	}

	userID := s.newID()

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.logger.ErrorContext(ctx, "signup: hash password failed", slog.Any("error", err))
		return types.Profile{}, internal(err.Error(), err)
	}

	user := types.User{
		ID:           userID,
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hashed,
		CreatedAt:    s.now(),
	}
	if err := s.users.Insert(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return types.Profile{}, fail(KindDuplicateEmail, MsgEmailRegistered)
		}
		s.logger.ErrorContext(ctx, "signup: insert user failed", slog.Any("error", err))
		return types.Profile{}, internal(err.Error(), err)
	}

	s.logger.InfoContext(ctx, "user registered", slog.String("user_id", userID))
	s.publish(ctx, events.Event{Type: events.UserSignedUp, UserID: userID, Email: in.Email, At: user.CreatedAt})

	return types.Profile{Name: in.Name, Email: in.Email}, nil
}

// Signin checks the credentials and issues an access token.
func (s *AuthService) Signin(ctx context.Context, in SigninInput) (SigninResult, error) {
	users, err := s.users.FindByEmail(ctx, in.Email)
	if err != nil {
		s.logger.ErrorContext(ctx, "signin: email lookup failed", slog.Any("error", err))
		return SigninResult{}, internal(MsgInternal, err)
	}
	if len(users) == 0 {
		return SigninResult{}, fail(KindNotRegistered, MsgEmailNotRegistered)
	}
	user := users[0]

	ok, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		s.logger.ErrorContext(ctx, "signin: verify password failed",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return SigninResult{}, internal(MsgInternal, err)
	}
	if !ok {
		return SigninResult{}, fail(KindCredentialMismatch, MsgPasswordNotMatch)
	}

	token, err := s.tokens.Issue(auth.Claims{
		ID:              user.ID,
		Email:           user.Email,
		Name:            user.Name,
		PhotoProfileURL: user.PhotoProfileURL,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "signin: issue token failed", slog.Any("error", err))
		return SigninResult{}, internal(MsgInternal, err)
	}

	s.publish(ctx, events.Event{Type: events.UserSignedIn, UserID: user.ID, Email: user.Email, At: s.now()})

	return SigninResult{
		UserID:          user.ID,
		Name:            user.Name,
		Email:           user.Email,
		PhotoProfileURL: user.PhotoProfileURL,
		AccessToken:     token,
	}, nil
}

// Signout records a logout for the bearer token in header. The token itself
// is not verified: any "Bearer <x>" header signs out successfully.
func (s *AuthService) Signout(ctx context.Context, header string) error {
	token, ok := BearerToken(header)
	if !ok {
		return fail(KindMissingToken, MsgTokenNotFound)
	}

	if err := s.users.RecordSignout(ctx, token); err != nil {
		s.logger.WarnContext(ctx, "signout: record signout failed", slog.Any("error", err))
	}
	s.publish(ctx, events.Event{Type: events.UserSignedOut, At: s.now()})
	return nil
}

// BearerToken extracts the token from an Authorization header of the form
// "Bearer <token>". The token is the second space separated field and may be empty.
func BearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	return strings.Split(header, " ")[1], true
}

func (s *AuthService) publish(ctx context.Context, event events.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "publish auth event failed",
			slog.String("type", string(event.Type)), slog.Any("error", err))
	}
}
