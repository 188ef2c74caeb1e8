// Package identity verifies bearer tokens issued by the external identity
// provider and turns them into a Principal.
package identity

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ManuelReschke/ContestHub/internal/pkg/env"
)

var ErrInvalidToken = errors.New("invalid token")

// Principal is the verified caller.
type Principal struct {
	Subject string
	Email   string
	Name    string
}

// Verifier turns a raw bearer token into a Principal.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// Claims are the token claims the service reads.
type Claims struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

type Config struct {
	PublicKeyPath string
	Secret        string
	Issuer        string
	Audience      string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		PublicKeyPath: strings.TrimSpace(env.GetEnv("AUTH_JWT_PUBLIC_KEY_PATH", "")),
		Secret:        env.GetEnv("AUTH_JWT_SECRET", ""),
		Issuer:        strings.TrimSpace(env.GetEnv("AUTH_JWT_ISSUER", "")),
		Audience:      strings.TrimSpace(env.GetEnv("AUTH_JWT_AUDIENCE", "")),
	}
	if cfg.PublicKeyPath == "" && cfg.Secret == "" {
		return nil, errors.New("AUTH_JWT_PUBLIC_KEY_PATH or AUTH_JWT_SECRET is required")
	}
	return cfg, nil
}

// JWTVerifier validates RS256 tokens against a public key, or HS256 tokens
// against a shared secret when no key is configured.
type JWTVerifier struct {
	pub      *rsa.PublicKey
	secret   []byte
	issuer   string
	audience string
}

// NewRSAVerifier verifies RS256 tokens with pub.
func NewRSAVerifier(pub *rsa.PublicKey, issuer, audience string) *JWTVerifier {
	return &JWTVerifier{pub: pub, issuer: issuer, audience: audience}
}

// NewHMACVerifier verifies HS256 tokens with secret.
func NewHMACVerifier(secret []byte, issuer, audience string) *JWTVerifier {
	return &JWTVerifier{secret: secret, issuer: issuer, audience: audience}
}

// NewVerifierFromConfig prefers the public key when both are configured.
func NewVerifierFromConfig(cfg *Config) (*JWTVerifier, error) {
	if cfg.PublicKeyPath != "" {
		pub, err := LoadRSAPublicKeyFromPEM(cfg.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		return NewRSAVerifier(pub, cfg.Issuer, cfg.Audience), nil
	}
	if cfg.Secret == "" {
		return nil, errors.New("no verification key configured")
	}
	return NewHMACVerifier([]byte(cfg.Secret), cfg.Issuer, cfg.Audience), nil
}

func LoadRSAPublicKeyFromPEM(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key %s: %w", path, err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse public key %s: %w", path, err)
	}
	return pub, nil
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (*Principal, error) {
	raw := strings.TrimSpace(token)
	if raw == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.pub != nil {
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	} else {
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := new(Claims)
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if v.pub != nil {
			return v.pub, nil
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		return nil, ErrInvalidToken
	}
	return &Principal{
		Subject: claims.Subject,
		Email:   email,
		Name:    strings.TrimSpace(claims.Name),
	}, nil
}
