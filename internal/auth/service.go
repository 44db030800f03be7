package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/types"
)

// bcryptCost is the bcrypt cost factor used for password hashing.
const bcryptCost = 12

// UserRepo defines the data access methods needed by the Service for
// user lookup during login and token resolution.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*types.User, error)
	GetByID(ctx context.Context, id int64) (*types.User, error)
}

// PasswordHasher abstracts bcrypt operations for testability.
type PasswordHasher interface {
	CompareHashAndPassword(hashedPassword, password string) error
	GenerateFromPassword(password string) (string, error)
}

// bcryptHasher is the production implementation of PasswordHasher.
type bcryptHasher struct{}

func (b *bcryptHasher) CompareHashAndPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (b *bcryptHasher) GenerateFromPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// session is a single issued bearer token with an expiry.
type session struct {
	userID    int64
	email     string
	expiresAt time.Time
}

// ServiceConfig holds the dependencies for creating a Service.
type ServiceConfig struct {
	UserRepo   UserRepo
	SessionTTL time.Duration
	Hasher     PasswordHasher
	Logger     *slog.Logger
}

// Service issues and resolves opaque bearer tokens backed by an in-memory
// session table. Sessions do not survive a restart; clients re-authenticate
// via POST /auth/login.
type Service struct {
	userRepo UserRepo
	ttl      time.Duration
	hasher   PasswordHasher
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]session
}

// NewService creates a new auth Service.
// If Hasher is nil, the production bcryptHasher is used.
// If Logger is nil, slog.Default() is used.
func NewService(cfg ServiceConfig) *Service {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = &bcryptHasher{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		userRepo: cfg.UserRepo,
		ttl:      ttl,
		hasher:   hasher,
		logger:   logger,
		sessions: make(map[string]session),
	}
}

// Login verifies the credentials and returns a new session token.
// A wrong password and an unknown email both return the same
// auth_invalid_credentials error so the endpoint cannot be used to
// enumerate accounts.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundUser {
			// Burn a bcrypt comparison anyway so the timing matches the
			// wrong-password path.
			_ = s.hasher.CompareHashAndPassword(dummyHash, password)
			return "", types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
		}
		return "", err
	}

	if err := s.hasher.CompareHashAndPassword(user.PasswordHash, password); err != nil {
		s.logger.Info("login rejected", "email", email)
		return "", types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = session{
		userID:    user.ID,
		email:     user.Email,
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()

	s.logger.Info("login succeeded", "user_id", user.ID)
	return token, nil
}

// ResolveToken maps a bearer token to the acting user. Expired sessions are
// evicted on first touch.
func (s *Service) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	s.mu.Lock()
	sess, ok := s.sessions[token]
	if ok && time.Now().After(sess.expiresAt) {
		delete(s.sessions, token)
		s.mu.Unlock()
		return nil, types.NewAppError(types.ErrCodeAuthTokenExpired, "session expired", nil)
	}
	s.mu.Unlock()

	if !ok {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid session token", nil)
	}
	return &types.Actor{UserID: sess.userID, Email: sess.email}, nil
}

// Logout invalidates the given token. Unknown tokens are a no-op.
func (s *Service) Logout(ctx context.Context, token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// dummyHash is a valid bcrypt hash of an unguessable string, used to equalize
// response timing when the email does not exist.
var dummyHash = func() string {
	h, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}()
