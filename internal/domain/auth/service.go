package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/pawtrait/pawtrait-api/internal/domain/credit"
	"github.com/pawtrait/pawtrait-api/internal/domain/user"
	"github.com/pawtrait/pawtrait-api/internal/pkg/jwt"
	"github.com/pawtrait/pawtrait-api/internal/pkg/password"
)

// SignupKey is the idempotency key of the one free grant every account gets
const SignupKey = "signup"

// Service handles authentication business logic
type Service struct {
	userRepo      user.Repository
	ledger        credit.Service
	jwtService    *jwt.Service
	redis         *redis.Client // nil disables refresh token revocation
	signupCredits int64
	refreshTTL    time.Duration
}

// NewService creates auth service
func NewService(userRepo user.Repository, ledger credit.Service, jwtService *jwt.Service, redis *redis.Client, signupCredits int64, refreshTTL time.Duration) *Service {
	return &Service{
		userRepo:      userRepo,
		ledger:        ledger,
		jwtService:    jwtService,
		redis:         redis,
		signupCredits: signupCredits,
		refreshTTL:    refreshTTL,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates the account with a zero balance, then issues the free
// signup credits as a single ledger call.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	email := normalizeEmail(req.Email)

	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	u := &user.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Role:         user.RoleUser,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		if errors.Is(err, user.ErrEmailAlreadyExists) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, err
	}

	if err := s.ledger.OpenAccount(ctx, u.ID); err != nil {
		return nil, err
	}

	// A failed grant is retried on the next login; the key keeps it single.
	credits := s.grantSignup(ctx, u.ID)

	return s.issue(u, credits)
}

func (s *Service) grantSignup(ctx context.Context, userID uuid.UUID) int64 {
	if s.signupCredits <= 0 {
		return 0
	}

	res, err := s.ledger.Apply(ctx, credit.Operation{
		AccountID:      userID,
		Kind:           credit.KindAdd,
		Amount:         s.signupCredits,
		IdempotencyKey: SignupKey,
		Source:         credit.SourceSignup,
		Description:    "free credits on signup",
	})
	switch {
	case errors.Is(err, credit.ErrIdempotencyConflict):
		// Granted earlier under a different SIGNUP_CREDITS value.
		log.Debug().Str("user_id", userID.String()).Msg("signup credits already granted")
	case err != nil:
		log.Error().Err(err).Str("user_id", userID.String()).Msg("signup credit grant failed")
		return 0
	case !res.Replayed():
		return res.NewBalance
	}

	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return 0
	}
	return balance
}

// Login authenticates user
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	u, err := s.userRepo.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !password.Verify(req.Password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	credits, err := s.ledger.GetBalance(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if credits == 0 && s.signupCredits > 0 {
		// Retry a grant that did not land at registration.
		_, granted, err := s.ledger.Lookup(ctx, u.ID, SignupKey)
		if err != nil {
			log.Warn().Err(err).Str("user_id", u.ID.String()).Msg("signup grant lookup failed")
		} else if !granted {
			credits = s.grantSignup(ctx, u.ID)
		}
	}

	return s.issue(u, credits)
}

// Refresh exchanges a refresh token for a new pair and revokes the old one
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	if refreshToken == "" {
		return nil, ErrRefreshTokenRequired
	}

	claims, err := s.jwtService.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	revoked, err := s.isRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidRefreshToken
	}

	u, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	credits, err := s.ledger.GetBalance(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	if err := s.revoke(ctx, claims); err != nil {
		return nil, err
	}
	return s.issue(u, credits)
}

// Logout revokes the refresh token
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	claims, err := s.jwtService.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil
	}
	return s.revoke(ctx, claims)
}

// Me returns the profile with the live balance
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*UserResponse, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	credits, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := NewUserResponse(u, credits)
	return &resp, nil
}

func (s *Service) issue(u *user.User, credits int64) (*AuthResponse, error) {
	pair, err := s.jwtService.IssuePair(u.ID, string(u.Role))
	if err != nil {
		return nil, err
	}
	return &AuthResponse{User: NewUserResponse(u, credits), Tokens: pair}, nil
}

// Redis helpers (nil redis means tokens live until they expire)
func (s *Service) revoke(ctx context.Context, claims *jwt.Claims) error {
	if s.redis == nil || claims.ID == "" {
		return nil
	}
	ttl := s.refreshTTL
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		return nil
	}
	return s.redis.Set(ctx, "revoked:"+claims.ID, "1", ttl).Err()
}

func (s *Service) isRevoked(ctx context.Context, jti string) (bool, error) {
	if s.redis == nil || jti == "" {
		return false, nil
	}
	n, err := s.redis.Exists(ctx, "revoked:"+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
