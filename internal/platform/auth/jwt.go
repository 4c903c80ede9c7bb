package auth

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"urlbox/internal/platform/config"
)

const (
	issuer = "urlbox"

	ScopeRendersRead  = "renders:read"
	ScopeRendersWrite = "renders:write"
)

var (
	ErrMissingSecret = errors.New("auth: jwt secret is not configured")
	ErrInvalidToken  = errors.New("auth: invalid token")
)

// DefaultScopes are granted to tokens minted without an explicit scope list.
var DefaultScopes = []string{ScopeRendersRead, ScopeRendersWrite}

type Claims struct {
	Scopes []string `json:"scp"`
	jwt.RegisteredClaims
}

func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

type TokenService struct {
	config config.JWTConfig
	now    func() time.Time
}

func NewTokenService(cfg config.JWTConfig) *TokenService {
	return &TokenService{config: cfg, now: time.Now}
}

// GenerateAccessToken mints an API token for subject, typically the name of
// the calling service.
func (s *TokenService) GenerateAccessToken(subject string, scopes []string) (string, error) {
	if s.config.Secret == "" {
		return "", ErrMissingSecret
	}
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	now := s.now()
	claims := Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.Secret))
}

func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	if s.config.Secret == "" {
		return nil, ErrMissingSecret
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}
