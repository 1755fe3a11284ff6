package auth

import (
	"errors"
	"fmt"
)

// OperatorName is the subject of tokens issued by Login.
const OperatorName = "operator"

var (
	// ErrInvalidCredentials is returned when the control password doesn't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginDisabled is returned when no control password hash is configured.
	ErrLoginDisabled = errors.New("password login disabled")
)

// Service issues and validates control API tokens.
type Service struct {
	jwtConfig    *JWTConfig
	passwordHash string
}

// NewService creates a new authentication service. An empty passwordHash
// disables Login; tokens minted elsewhere with the same secret still validate.
func NewService(jwtConfig *JWTConfig, passwordHash string) *Service {
	return &Service{
		jwtConfig:    jwtConfig,
		passwordHash: passwordHash,
	}
}

// Login checks the control password and returns a JWT token.
func (s *Service) Login(password string) (string, error) {
	if s.passwordHash == "" {
		return "", ErrLoginDisabled
	}
	if err := ComparePassword(s.passwordHash, password); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.IssueToken(OperatorName)
}

// IssueToken mints a token without a password check.
func (s *Service) IssueToken(operator string) (string, error) {
	token, err := GenerateToken(s.jwtConfig, operator)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// ValidateToken validates a JWT token and returns claims.
func (s *Service) ValidateToken(token string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, token)
}
