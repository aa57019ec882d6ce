// Package auth issues and checks admin sessions. The admin password and the
// signing secret stay on the server; clients only ever hold a signed,
// expiring token.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"trekreg/internal/model"
	"trekreg/internal/repo"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid session token")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrNotConfigured      = errors.New("admin access is not configured")
)

const subject = "admin"

type Sessions interface {
	CreateSession(ctx context.Context, s model.AdminSession) error
	GetSession(ctx context.Context, id string) (*model.AdminSession, error)
	RevokeSession(ctx context.Context, id string) error
}

type Config struct {
	APIKey       string
	PasswordHash string
	Secret       string
	TTL          time.Duration
}

type Claims struct {
	jwt.RegisteredClaims
}

type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Manager struct {
	cfg      Config
	sessions Sessions
	log      *zerolog.Logger
	now      func() time.Time
}

func NewManager(cfg Config, sessions Sessions, log *zerolog.Logger) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 8 * time.Hour
	}
	return &Manager{cfg: cfg, sessions: sessions, log: log, now: time.Now}
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (m *Manager) Login(ctx context.Context, password string) (Token, error) {
	if m.cfg.PasswordHash == "" || m.cfg.Secret == "" {
		return Token{}, ErrNotConfigured
	}
	if err := bcrypt.CompareHashAndPassword([]byte(m.cfg.PasswordHash), []byte(password)); err != nil {
		m.log.Warn().Msg("admin login rejected")
		return Token{}, ErrInvalidCredentials
	}

	now := m.now()
	session := model.AdminSession{
		ID:        uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(m.cfg.TTL),
	}
	if err := m.sessions.CreateSession(ctx, session); err != nil {
		return Token{}, err
	}

	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        session.ID,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.cfg.Secret))
	if err != nil {
		return Token{}, fmt.Errorf("sign session token: %w", err)
	}

	m.log.Info().Str("session_id", session.ID).Time("expires_at", session.ExpiresAt).Msg("admin session issued")
	return Token{Value: signed, ExpiresAt: session.ExpiresAt}, nil
}

// Validate checks signature, expiry and revocation of a session token.
func (m *Manager) Validate(ctx context.Context, token string) (*Claims, error) {
	if m.cfg.Secret == "" {
		return nil, ErrNotConfigured
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(m.cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid || claims.Subject != subject || claims.ID == "" {
		return nil, ErrInvalidToken
	}

	session, err := m.sessions.GetSession(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repo.ErrSessionNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if session.RevokedAt != nil {
		return nil, ErrSessionRevoked
	}
	return claims, nil
}

func (m *Manager) Logout(ctx context.Context, token string) error {
	claims, err := m.Validate(ctx, token)
	if err != nil {
		return err
	}
	if err := m.sessions.RevokeSession(ctx, claims.ID); err != nil {
		if errors.Is(err, repo.ErrSessionNotFound) {
			return ErrSessionRevoked
		}
		return err
	}
	m.log.Info().Str("session_id", claims.ID).Msg("admin session revoked")
	return nil
}

// CheckAPIKey compares key with the configured static admin key. An empty
// configured key never matches.
func (m *Manager) CheckAPIKey(key string) bool {
	if m.cfg.APIKey == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(m.cfg.APIKey)) == 1
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
