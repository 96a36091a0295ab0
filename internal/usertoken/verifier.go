package usertoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultIssuer   = "notewise-auth"
	defaultAudience = "notewise-api"
	defaultLeeway   = 30 * time.Second
)

// Config configures access-token verification.
type Config struct {
	Secret   string
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// Verifier validates HS256 user access tokens issued by the identity
// provider and extracts the subject. The service only needs the opaque user
// id; everything else about the user lives upstream.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

// NewVerifier creates a token verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("usertoken: secret required")
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultIssuer
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = defaultAudience
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	return &Verifier{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		leeway:   leeway,
	}, nil
}

// VerifySubject validates the token and returns its subject (the user id).
func (v *Verifier) VerifySubject(tokenString string) (string, error) {
	token, err := jwt.Parse(
		tokenString,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}
	subject, err := token.Claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return "", errors.New("token missing subject")
	}
	return subject, nil
}
