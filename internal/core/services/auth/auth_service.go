package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/lcalzada-xor/trapwire/internal/core/domain"
	"github.com/lcalzada-xor/trapwire/internal/core/ports"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidSession     = errors.New("invalid session")
	ErrRateLimitExceeded  = errors.New("too many login attempts")
)

const maxLoginAttempts = 5

// Session represents an active dashboard session.
type Session struct {
	Username  string
	ExpiresAt time.Time
}

// AuthService validates credentials and manages in-memory sessions.
type AuthService struct {
	repo          ports.UserRepository
	mu            sync.RWMutex
	sessions      map[string]Session
	loginAttempts map[string]int
	sessionTTL    time.Duration
}

// NewAuthService creates a new authentication service instance.
func NewAuthService(repo ports.UserRepository) *AuthService {
	return &AuthService{
		repo:          repo,
		sessions:      make(map[string]Session),
		loginAttempts: make(map[string]int),
		sessionTTL:    24 * time.Hour,
	}
}

// Login validates credentials and returns a session token plus the account.
// Errors stay generic to avoid username enumeration.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	s.mu.RLock()
	attempts := s.loginAttempts[username]
	s.mu.RUnlock()
	if attempts >= maxLoginAttempts {
		return "", nil, ErrRateLimitExceeded
	}

	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		s.bumpAttempts(username)
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.bumpAttempts(username)
		return "", nil, ErrInvalidCredentials
	}

	s.mu.Lock()
	delete(s.loginAttempts, username)
	token := uuid.New().String()
	s.sessions[token] = Session{Username: user.Username, ExpiresAt: time.Now().Add(s.sessionTTL)}
	s.mu.Unlock()

	user.LastLogin = time.Now()
	if err := s.repo.SaveUser(ctx, user); err != nil {
		// Non-fatal; the session is already valid.
		return token, user, nil
	}
	return token, user, nil
}

// ValidateToken verifies a session token and returns the associated user.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*domain.User, error) {
	s.mu.RLock()
	session, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrInvalidSession
	}
	if time.Now().After(session.ExpiresAt) {
		s.Logout(ctx, token)
		return nil, ErrTokenExpired
	}
	return s.repo.GetByUsername(ctx, session.Username)
}

// Logout invalidates a session token.
func (s *AuthService) Logout(ctx context.Context, token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// CreateUser provisions an account with a bcrypt-hashed password.
func (s *AuthService) CreateUser(ctx context.Context, user domain.User, password string) error {
	if user.Username == "" {
		return domain.ErrEmptyUsername
	}
	if !user.Role.IsValid() {
		return domain.ErrInvalidRole
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.PasswordHash = string(hash)
	user.CreatedAt = time.Now()
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	return s.repo.SaveUser(ctx, &user)
}

func (s *AuthService) bumpAttempts(username string) {
	s.mu.Lock()
	s.loginAttempts[username]++
	s.mu.Unlock()
}

var _ ports.AuthService = (*AuthService)(nil)
