package service

import (
	"context"
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"schoolpay/internal/auth"
)

// ErrInvalidCredentials is returned when login fails.
var ErrInvalidCredentials = errors.New("invalid credentials")

const adminRole = "admin"

// AuthService handles admin authentication for the management surface.
type AuthService interface {
	Login(ctx context.Context, email, password string) (accessToken, refreshToken string, err error)
	Refresh(ctx context.Context, refreshToken string) (accessToken string, err error)
	Logout(ctx context.Context, refreshToken string) error
}

type authService struct {
	jwtService *auth.JWTService
	tokenStore auth.TokenStoreInterface
	adminEmail string
	adminHash  string
}

// NewAuthService creates a new auth service. The admin credential comes from
// configuration; this service owns no user table.
func NewAuthService(jwtService *auth.JWTService, tokenStore auth.TokenStoreInterface, adminEmail, adminPasswordHash string) AuthService {
	return &authService{
		jwtService: jwtService,
		tokenStore: tokenStore,
		adminEmail: adminEmail,
		adminHash:  adminPasswordHash,
	}
}

// Login checks the configured admin credential and issues a token pair.
func (s *authService) Login(ctx context.Context, email, password string) (string, string, error) {
	if s.adminHash == "" {
		return "", "", ErrInvalidCredentials
	}
	emailMatch := subtle.ConstantTimeCompare([]byte(email), []byte(s.adminEmail)) == 1
	passwordErr := bcrypt.CompareHashAndPassword([]byte(s.adminHash), []byte(password))
	if !emailMatch || passwordErr != nil {
		return "", "", ErrInvalidCredentials
	}

	accessToken, err := s.jwtService.GenerateAccessToken(email, adminRole)
	if err != nil {
		return "", "", err
	}
	tokenID, refreshToken, err := s.jwtService.GenerateRefreshToken(email, adminRole)
	if err != nil {
		return "", "", err
	}
	if err := s.tokenStore.StoreRefreshToken(ctx, tokenID, email, adminRole, auth.RefreshTokenExpiry); err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// Refresh exchanges a valid refresh token for a new access token.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	tokenID, err := s.jwtService.ExtractTokenID(refreshToken)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	email, role, err := s.tokenStore.GetRefreshToken(ctx, tokenID)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	return s.jwtService.GenerateAccessToken(email, role)
}

// Logout invalidates the refresh token.
func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	tokenID, err := s.jwtService.ExtractTokenID(refreshToken)
	if err != nil {
		return ErrInvalidCredentials
	}
	return s.tokenStore.DeleteRefreshToken(ctx, tokenID)
}
