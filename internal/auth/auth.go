// Package auth turns bearer credentials into verified identities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/api/idtoken"

	"github.com/liliang-cn/ragmentor/internal/domain"
)

// Modes
const (
	ModeGoogle = "google"
	ModeJWT    = "jwt"
)

// Verifier validates a bearer credential
type Verifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// New builds the verifier for mode
func New(mode, googleClientID, jwtSecret string) (Verifier, error) {
	switch mode {
	case ModeGoogle:
		return NewGoogle(googleClientID), nil
	case ModeJWT:
		return NewJWT(jwtSecret), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", mode)
	}
}

// Google verifies Google-issued ID tokens for one OAuth client
type Google struct {
	audience string
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

// NewGoogle creates a verifier for audience
func NewGoogle(audience string) *Google {
	return &Google{audience: audience, validate: idtoken.Validate}
}

// Verify checks signature, audience and expiry
func (g *Google) Verify(ctx context.Context, token string) (domain.Identity, error) {
	payload, err := g.validate(ctx, token, g.audience)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	id := domain.Identity{
		Subject: payload.Subject,
		Email:   claimString(payload.Claims, "email"),
		Name:    claimString(payload.Claims, "name"),
		Picture: claimString(payload.Claims, "picture"),
	}
	if id.Email == "" {
		return domain.Identity{}, fmt.Errorf("%w: token carries no email", domain.ErrUnauthorized)
	}
	return id, nil
}

func claimString(claims map[string]interface{}, key string) string {
	v, _ := claims[key].(string)
	return v
}

// Claims are the HS256 token claims
type Claims struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// JWT verifies and issues HS256 tokens signed with a shared secret
type JWT struct {
	secret []byte
}

// NewJWT creates a verifier for secret
func NewJWT(secret string) *JWT {
	return &JWT{secret: []byte(secret)}
}

// Verify parses token and checks its signature and expiry
func (j *JWT) Verify(_ context.Context, token string) (domain.Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if claims.Email == "" {
		return domain.Identity{}, fmt.Errorf("%w: token carries no email", domain.ErrUnauthorized)
	}
	return domain.Identity{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}, nil
}

// Issue signs a token for id valid for ttl
func (j *JWT) Issue(id domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:   id.Email,
		Name:    id.Name,
		Picture: id.Picture,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// ErrMissingToken is returned when no bearer credential is present
var ErrMissingToken = errors.New("missing bearer token")

// BearerToken extracts the credential from an Authorization header value
func BearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
