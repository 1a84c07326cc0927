// Package auth guards the admin API with a single operator account.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/loykin/dozer/internal/config"
)

const issuer = "dozer"

var ErrInvalidCredentials = errors.New("invalid credentials")

// Token is a signed bearer token.
type Token struct {
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Claims are the JWT claims of an issued token.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service checks passwords and issues and verifies tokens.
type Service struct {
	username     string
	passwordHash []byte
	jwtSecret    []byte
	tokenTTL     time.Duration
	now          func() time.Time
}

// NewService builds a Service from api.auth. Without a jwt_secret a random
// one is generated, so tokens do not survive a restart.
func NewService(cfg config.APIAuthConfig) (*Service, error) {
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{
		username:     cfg.Username,
		passwordHash: []byte(cfg.PasswordHash),
		jwtSecret:    secret,
		tokenTTL:     ttl,
		now:          time.Now,
	}, nil
}

// HashPassword returns the bcrypt hash stored in api.auth.password_hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CheckPassword verifies operator credentials.
func (s *Service) CheckPassword(username, password string) error {
	if username == "" || password == "" {
		return ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil || !userOK {
		return ErrInvalidCredentials
	}
	return nil
}

// Login checks the credentials and issues a bearer token.
func (s *Service) Login(username, password string) (*Token, error) {
	if err := s.CheckPassword(username, password); err != nil {
		return nil, err
	}
	now := s.now()
	expiresAt := now.Add(s.tokenTTL)
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   username,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Token{Type: "Bearer", Value: signed, ExpiresAt: expiresAt}, nil
}

// Verify validates a bearer token and returns its user.
func (s *Service) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidCredentials
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", ErrInvalidCredentials
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Username != s.username {
		return "", ErrInvalidCredentials
	}
	return claims.Username, nil
}
