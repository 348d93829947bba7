package auth

import (
	"context"
	"time"

	"github.com/congo-pay/walletcore/internal/apperr"
	"github.com/congo-pay/walletcore/internal/config"
	"github.com/congo-pay/walletcore/internal/identity"
)

var (
	ErrInvalidToken = apperr.New(apperr.KindUnauthorized, "INVALID_TOKEN", "invalid or expired token")
	ErrTokenRevoked = apperr.New(apperr.KindUnauthorized, "TOKEN_REVOKED", "token has been revoked")
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// Service issues and verifies HS256 token pairs. Bumping a user's token version
// revokes every token issued before.
type Service struct {
	cfg    config.Config
	idRepo identity.Repository
	now    func() time.Time
}

func NewService(cfg config.Config, idRepo identity.Repository) *Service {
	return &Service{cfg: cfg, idRepo: idRepo, now: time.Now}
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login issues tokens for an already authenticated user.
func (s *Service) Login(user identity.User) (TokenPair, error) {
	access, err := s.sign(user, kindAccess, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(user, kindRefresh, s.cfg.RefreshSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.cfg.AccessTokenTTL.Seconds())}, nil
}

func (s *Service) sign(user identity.User, kind, secret string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := map[string]any{
		"sub":  user.ID,
		"role": user.Role,
		"kind": kind,
		"ver":  user.TokenVersion,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return SignHS256(claims, []byte(secret))
}

// VerifyAccess checks an access token and returns its current, active user.
func (s *Service) VerifyAccess(ctx context.Context, token string) (identity.User, error) {
	return s.verify(ctx, token, kindAccess, s.cfg.JWTSecret)
}

func (s *Service) verify(ctx context.Context, token, kind, secret string) (identity.User, error) {
	claims, err := ParseAndVerifyHS256(token, []byte(secret))
	if err != nil {
		return identity.User{}, ErrInvalidToken
	}
	if k, _ := claims["kind"].(string); k != kind {
		return identity.User{}, ErrInvalidToken
	}
	if exp, ok := claims["exp"].(float64); !ok || s.now().Unix() >= int64(exp) {
		return identity.User{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	ver, _ := claims["ver"].(float64)

	user, err := s.idRepo.FindByID(ctx, sub)
	if err != nil {
		return identity.User{}, ErrInvalidToken
	}
	if user.TokenVersion != int(ver) {
		return identity.User{}, ErrTokenRevoked
	}
	if !user.Active {
		return identity.User{}, identity.ErrAccountInactive
	}
	return user, nil
}

// Refresh exchanges a valid refresh token for a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	user, err := s.verify(ctx, refreshToken, kindRefresh, s.cfg.RefreshSecret)
	if err != nil {
		return TokenPair{}, err
	}
	return s.Login(user)
}

// Logout increments the token version so every outstanding token becomes invalid.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	user, err := s.verify(ctx, refreshToken, kindRefresh, s.cfg.RefreshSecret)
	if err != nil {
		return err
	}
	return s.idRepo.UpdateTokenVersion(ctx, user.ID, user.TokenVersion+1)
}
