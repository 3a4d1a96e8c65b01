package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stockassistant/orchestrator/internal/apperrors"
	"github.com/stockassistant/orchestrator/internal/logging"
	"github.com/stockassistant/orchestrator/internal/models"
)

// UserRepository is the persistence boundary the auth service depends
// on; internal/store provides the Postgres-backed implementation. Kept
// narrow (three methods) so auth stays testable without a live database.
type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
}

// TokenPair is what every successful auth operation returns to the
// caller: a fresh access/refresh token pair and the access token's
// expiry instant.
type TokenPair struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Service implements Register/Login/Refresh/Logout/VerifyAccess, the
// five operations spec.md section 4.5 names for C5.
type Service struct {
	users    UserRepository
	tokens   *TokenManager
	sessions *SessionStore
	hasher   *PasswordHasher
	log      *logging.Logger

	refreshTTL time.Duration
}

// NewService wires the auth service from its collaborators.
func NewService(users UserRepository, tokens *TokenManager, sessions *SessionStore, hasher *PasswordHasher, refreshTTL time.Duration, log *logging.Logger) *Service {
	return &Service{
		users:      users,
		tokens:     tokens,
		sessions:   sessions,
		hasher:     hasher,
		refreshTTL: refreshTTL,
		log:        log,
	}
}

// Register creates a new user and immediately issues a token pair,
// mirroring auth_service.py's register(). Fails with DuplicateEmail if
// the email is already registered.
func (s *Service) Register(ctx context.Context, email, password string) (*TokenPair, error) {
	if existing, err := s.users.GetUserByEmail(ctx, email); err == nil && existing != nil {
		return nil, apperrors.DuplicateEmail()
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, apperrors.Internal(err)
	}

	return s.issueTokens(ctx, user)
}

// Login verifies credentials and issues a fresh token pair. Invalid
// email or password both surface as the same InvalidCredentials error so
// the failure mode doesn't leak which field was wrong.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil || user == nil {
		return nil, apperrors.InvalidCredentials()
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, apperrors.InvalidCredentials()
	}
	return s.issueTokens(ctx, user)
}

// Refresh validates a refresh token, confirms its session is still live
// in the KV store, extends the session TTL, and re-mints both tokens
// under the same session id. Per spec.md section 4.5, this is the only
// path that can extend session lifetime.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	userID, sessionID, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	storedUserID, ok := s.sessions.Get(ctx, sessionID)
	if !ok || storedUserID != userID {
		return nil, apperrors.SessionExpired()
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil || user == nil {
		return nil, apperrors.UserNotFound()
	}

	access, accessExp, err := s.tokens.MintAccess(userID)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.tokens.MintRefresh(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Extend(ctx, sessionID, userID, s.refreshTTL); err != nil {
		return nil, apperrors.Internal(err)
	}

	return &TokenPair{User: user, AccessToken: access, RefreshToken: refresh, ExpiresAt: accessExp}, nil
}

// Logout deletes the session bound to refreshToken, so a subsequent
// Refresh fails with SessionExpired even though the token's signature
// remains valid until its signed expiry.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	_, sessionID, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return err
	}
	return s.sessions.Delete(ctx, sessionID)
}

// VerifyAccess validates an access token and loads the owning user.
// Access tokens remain valid until their signed expiry regardless of
// session state, per spec.md section 4.5's stateless-verification
// trade-off.
func (s *Service) VerifyAccess(ctx context.Context, accessToken string) (*models.User, error) {
	userID, err := s.tokens.ParseAccess(accessToken)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil || user == nil {
		return nil, apperrors.UserNotFound()
	}
	return user, nil
}

func (s *Service) issueTokens(ctx context.Context, user *models.User) (*TokenPair, error) {
	sessionID := uuid.New().String()

	access, accessExp, err := s.tokens.MintAccess(user.ID)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.tokens.MintRefresh(user.ID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, sessionID, user.ID, s.refreshTTL); err != nil {
		return nil, apperrors.Internal(err)
	}

	return &TokenPair{User: user, AccessToken: access, RefreshToken: refresh, ExpiresAt: accessExp}, nil
}
