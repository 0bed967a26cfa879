package jwtinfra

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-support-chat/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Claims holds the customer token fields the chat client cares about.
// The portal has issued tokens with several id/name spellings over time.
type Claims struct {
	UserID    string `json:"user_id,omitempty"`
	AccountID string `json:"id,omitempty"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	Name      string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Provider holds the customer bearer token and the identity derived from it.
// It is safe for concurrent use; the REST and realtime clients read Token
// on every call.
type Provider struct {
	publicKey *rsa.PublicKey

	mu       sync.RWMutex
	token    string
	identity *domain.Identity
}

// NewProvider returns a provider. When publicKeyPath is set, tokens must carry
// a valid RS256 signature; otherwise claims are read without verification,
// which is enough for a client that only forwards the token to the backend.
func NewProvider(publicKeyPath string) (*Provider, error) {
	p := &Provider{}
	if publicKeyPath == "" {
		return p, nil
	}
	pubBytes, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	p.publicKey = pubKey
	return p, nil
}

// Parse extracts the identity carried by tokenStr without storing it.
func (p *Provider) Parse(tokenStr string) (*domain.Identity, error) {
	tokenStr = strings.TrimSpace(strings.TrimPrefix(tokenStr, "Bearer "))
	if tokenStr == "" {
		return nil, fmt.Errorf("empty token: %w", domain.ErrUnauthorized)
	}
	claims := &Claims{}
	if p.publicKey != nil {
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return p.publicKey, nil
		})
		if err != nil || !token.Valid {
			return nil, fmt.Errorf("invalid token: %w", domain.ErrUnauthorized)
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
			return nil, fmt.Errorf("malformed token: %w", domain.ErrUnauthorized)
		}
		if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
			return nil, fmt.Errorf("token expired: %w", domain.ErrUnauthorized)
		}
	}
	return claims.identity(), nil
}

// Login parses tokenStr and, on success, makes it the active credential.
func (p *Provider) Login(tokenStr string) (*domain.Identity, error) {
	ident, err := p.Parse(tokenStr)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.token = strings.TrimSpace(strings.TrimPrefix(tokenStr, "Bearer "))
	p.identity = ident
	p.mu.Unlock()
	return ident, nil
}

// Logout drops the active credential.
func (p *Provider) Logout() {
	p.mu.Lock()
	p.token = ""
	p.identity = nil
	p.mu.Unlock()
}

// Token returns the raw bearer token, or "" when nobody is logged in.
func (p *Provider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

// Identity returns a copy of the logged-in identity, or nil.
func (p *Provider) Identity() *domain.Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.identity == nil {
		return nil
	}
	ident := *p.identity
	return &ident
}

func (c *Claims) identity() *domain.Identity {
	ident := &domain.Identity{
		UserID: firstNonEmpty(c.Subject, c.UserID, c.AccountID),
		Email:  c.Email,
		Name:   firstNonEmpty(c.FirstName, c.Name),
	}
	if c.ExpiresAt != nil {
		ident.ExpiresAt = c.ExpiresAt.Time
	}
	return ident
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
