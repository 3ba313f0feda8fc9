package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenTTL = 12 * time.Hour
	issuer          = "trackdeck"
)

// Config describes the single operator account.
type Config struct {
	Enabled      bool
	Username     string
	PasswordHash string
	JWTSecret    string
	TokenTTL     time.Duration
}

// Service checks operator credentials and issues HS256 tokens.
type Service struct {
	enabled  bool
	username string
	hash     []byte
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

func NewService(cfg Config) (*Service, error) {
	s := &Service{
		enabled:  cfg.Enabled,
		username: cfg.Username,
		hash:     []byte(cfg.PasswordHash),
		secret:   []byte(cfg.JWTSecret),
		ttl:      cfg.TokenTTL,
		now:      time.Now,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTokenTTL
	}
	if !s.enabled {
		return s, nil
	}
	if s.username == "" || len(s.hash) == 0 {
		return nil, errors.New("auth enabled without username or password_hash")
	}
	if _, err := bcrypt.Cost(s.hash); err != nil {
		return nil, fmt.Errorf("invalid password_hash: %w", err)
	}
	if len(s.secret) < 16 {
		return nil, errors.New("jwt_secret must be at least 16 bytes")
	}
	return s, nil
}

// Enabled reports whether requests must carry a token.
func (s *Service) Enabled() bool { return s != nil && s.enabled }

// Login checks username and password and returns a fresh token.
func (s *Service) Login(username, password string) (*Token, error) {
	if !s.Enabled() {
		return nil, errors.New("auth is disabled")
	}
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	// the hash is always compared so a bad username costs the same
	passErr := bcrypt.CompareHashAndPassword(s.hash, []byte(password))
	if !userOK || passErr != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(username)
}

func (s *Service) issue(username string) (*Token, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Token{Token: signed, ExpiresAt: expiresAt.UTC()}, nil
}

// Verify parses and validates a token issued by Login.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// HashPassword returns a bcrypt hash suitable for password_hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
