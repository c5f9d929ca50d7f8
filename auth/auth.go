// Package auth is the authentication collaborator: email/password accounts,
// OAuth sign-in, JWT sessions and a stream of session-change events.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cppla/voicebloom/models"
	"github.com/cppla/voicebloom/repository"
	"github.com/cppla/voicebloom/utils"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid or revoked token")
)

// ValidationError rejects input before any store is touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Session is an issued bearer token.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Result is returned by sign-up and sign-in. Session is nil when the account
// was created but the caller still has to sign in.
type Result struct {
	Profile *models.Profile `json:"user"`
	Session *Session        `json:"session"`
}

// Options configure a Service.
type Options struct {
	Secret     string
	TokenTTL   time.Duration
	AutoSignIn bool
	OAuth      OAuthOptions
	Logger     *zap.Logger
}

// Service implements the auth operations on top of the profile store.
type Service struct {
	profiles  repository.ProfileRepository
	opts      Options
	providers map[string]*provider

	mu      sync.Mutex
	subs    map[int]subscriber
	nextSub int
}

func NewService(profiles repository.ProfileRepository, opts Options) *Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 72 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		profiles:  profiles,
		opts:      opts,
		providers: buildProviders(opts.OAuth),
		subs:      make(map[int]subscriber),
	}
}

// SignUp creates an email/password account.
func (s *Service) SignUp(ctx context.Context, email, password string) (Result, error) {
	email = utils.NormalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return Result{}, err
	}
	if _, err := s.profiles.GetByEmail(ctx, email); err == nil {
		return Result{}, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return Result{}, fmt.Errorf("lookup profile: %w", err)
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return Result{}, fmt.Errorf("hash password: %w", err)
	}
	profile := &models.Profile{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     defaultUsername(email),
		PasswordHash: hash,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return Result{}, ErrEmailTaken
		}
		return Result{}, fmt.Errorf("create profile: %w", err)
	}
	s.publish(EventSignedUp, profile.ID)

	res := Result{Profile: profile}
	if !s.opts.AutoSignIn {
		return res, nil
	}
	sess, err := s.issue(profile)
	if err != nil {
		return Result{}, err
	}
	res.Session = sess
	s.publish(EventSignedIn, profile.ID)
	return res, nil
}

// SignIn checks credentials and issues a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (Result, error) {
	email = utils.NormalizeEmail(email)
	if email == "" || password == "" {
		return Result{}, ErrInvalidCredentials
	}
	profile, err := s.profiles.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return Result{}, ErrInvalidCredentials
	}
	if err != nil {
		return Result{}, fmt.Errorf("lookup profile: %w", err)
	}
	if profile.PasswordHash == "" || !utils.CheckPassword(profile.PasswordHash, password) {
		return Result{}, ErrInvalidCredentials
	}
	sess, err := s.issue(profile)
	if err != nil {
		return Result{}, err
	}
	s.publish(EventSignedIn, profile.ID)
	return Result{Profile: profile, Session: sess}, nil
}

// Authenticate resolves a bearer token to its claims.
func (s *Service) Authenticate(ctx context.Context, token string) (*utils.Claims, error) {
	if token == "" || utils.IsTokenBlacklisted(ctx, token) {
		return nil, ErrInvalidToken
	}
	claims, err := utils.ParseToken(s.opts.Secret, token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SignOut revokes token until it would have expired anyway.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.Authenticate(ctx, token)
	if err != nil {
		return err
	}
	expiresAt := time.Now().Add(s.opts.TokenTTL)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	utils.BlacklistToken(ctx, token, expiresAt)
	s.publish(EventSignedOut, claims.UserID)
	return nil
}

// Profile returns the account of userID.
func (s *Service) Profile(ctx context.Context, userID string) (*models.Profile, error) {
	return s.profiles.GetByID(ctx, userID)
}

// ChangePassword replaces the password after checking the confirmation.
func (s *Service) ChangePassword(ctx context.Context, userID, password, confirm string) error {
	if password != confirm {
		return &ValidationError{Field: "confirm", Message: "passwords do not match"}
	}
	if err := utils.ValidatePassword(password); err != nil {
		return &ValidationError{Field: "password", Message: err.Error()}
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.profiles.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	s.publish(EventUserUpdated, userID)
	return nil
}

// ChangeEmail moves the account to a new address.
func (s *Service) ChangeEmail(ctx context.Context, userID, email string) error {
	email = utils.NormalizeEmail(email)
	if !utils.ValidEmail(email) {
		return &ValidationError{Field: "email", Message: "invalid email address"}
	}
	if err := s.profiles.UpdateEmail(ctx, userID, email); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrEmailTaken
		}
		return err
	}
	s.publish(EventUserUpdated, userID)
	return nil
}

func (s *Service) issue(p *models.Profile) (*Session, error) {
	token, expires, err := utils.GenerateToken(s.opts.Secret, p.ID, p.Email, s.opts.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &Session{AccessToken: token, TokenType: "bearer", ExpiresAt: expires}, nil
}

func validateCredentials(email, password string) error {
	if !utils.ValidEmail(email) {
		return &ValidationError{Field: "email", Message: "invalid email address"}
	}
	if err := utils.ValidatePassword(password); err != nil {
		return &ValidationError{Field: "password", Message: err.Error()}
	}
	return nil
}

func defaultUsername(email string) string {
	local := email
	if i := strings.IndexByte(email, '@'); i > 0 {
		local = email[:i]
	}
	return utils.Truncate(local, 64)
}
