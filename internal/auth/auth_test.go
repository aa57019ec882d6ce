package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trekreg/internal/model"
	"trekreg/internal/repo"
)

type memorySessions struct {
	sessions map[string]*model.AdminSession
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: map[string]*model.AdminSession{}}
}

func (m *memorySessions) CreateSession(ctx context.Context, s model.AdminSession) error {
	m.sessions[s.ID] = &s
	return nil
}

func (m *memorySessions) GetSession(ctx context.Context, id string) (*model.AdminSession, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, repo.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memorySessions) RevokeSession(ctx context.Context, id string) error {
	s, ok := m.sessions[id]
	if !ok || s.RevokedAt != nil {
		return repo.ErrSessionNotFound
	}
	now := time.Now()
	s.RevokedAt = &now
	return nil
}

func newTestManager(t *testing.T) (*Manager, *memorySessions) {
	t.Helper()
	hash, err := HashPassword("summit-2026")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	log := zerolog.Nop()
	sessions := newMemorySessions()
	m := NewManager(Config{
		APIKey:       "static-key",
		PasswordHash: hash,
		Secret:       "test-secret",
		TTL:          time.Hour,
	}, sessions, &log)
	return m, sessions
}

func TestManager_LoginValidate(t *testing.T) {
	ctx := context.Background()
	m, sessions := newTestManager(t)

	if _, err := m.Login(ctx, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login(wrong) error = %v, want %v", err, ErrInvalidCredentials)
	}
	if len(sessions.sessions) != 0 {
		t.Fatalf("failed login created %d sessions", len(sessions.sessions))
	}

	tok, err := m.Login(ctx, "summit-2026")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if tok.Value == "" {
		t.Fatal("Login() returned empty token")
	}

	claims, err := m.Validate(ctx, tok.Value)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if _, ok := sessions.sessions[claims.ID]; !ok {
		t.Errorf("session %s was not persisted", claims.ID)
	}
}

func TestManager_ValidateRejects(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	tok, err := m.Login(ctx, "summit-2026")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	t.Run("garbage", func(t *testing.T) {
		if _, err := m.Validate(ctx, "not-a-token"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Validate() error = %v, want %v", err, ErrInvalidToken)
		}
	})

	t.Run("other secret", func(t *testing.T) {
		log := zerolog.Nop()
		other := NewManager(Config{Secret: "different"}, newMemorySessions(), &log)
		if _, err := other.Validate(ctx, tok.Value); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Validate() error = %v, want %v", err, ErrInvalidToken)
		}
	})

	t.Run("expired", func(t *testing.T) {
		m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { m.now = time.Now }()
		if _, err := m.Validate(ctx, tok.Value); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Validate() error = %v, want %v", err, ErrInvalidToken)
		}
	})

	t.Run("revoked", func(t *testing.T) {
		if err := m.Logout(ctx, tok.Value); err != nil {
			t.Fatalf("Logout() error = %v", err)
		}
		if _, err := m.Validate(ctx, tok.Value); !errors.Is(err, ErrSessionRevoked) {
			t.Errorf("Validate() error = %v, want %v", err, ErrSessionRevoked)
		}
	})
}

func TestManager_NotConfigured(t *testing.T) {
	log := zerolog.Nop()
	m := NewManager(Config{}, newMemorySessions(), &log)
	if _, err := m.Login(context.Background(), "anything"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Login() error = %v, want %v", err, ErrNotConfigured)
	}
	if m.CheckAPIKey("") {
		t.Error("CheckAPIKey(\"\") = true with no configured key")
	}
}

func TestManager_CheckAPIKey(t *testing.T) {
	m, _ := newTestManager(t)
	tests := []struct {
		key  string
		want bool
	}{
		{"static-key", true},
		{"static-ke", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := m.CheckAPIKey(tt.key); got != tt.want {
			t.Errorf("CheckAPIKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"bearer abc", "abc"},
		{"Bearer ", ""},
		{"Basic abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := BearerToken(tt.header); got != tt.want {
			t.Errorf("BearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
