package helpers

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds carried in the "type" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	// ErrInvalidToken covers malformed tokens, bad signatures, and expired
	// tokens. Callers see one kind; the distinction stays internal.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWrongTokenType is returned when the "type" claim does not match the
	// expected kind (e.g. a refresh token presented where access is required).
	ErrWrongTokenType = errors.New("wrong token type")
)

// Claims is the fixed claim set embedded in every signed token. Roles is
// populated for access tokens only; refresh tokens re-derive roles from the
// store so stale role sets never propagate across a refresh.
type Claims struct {
	TokenType string   `json:"type"`
	Roles     []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager issues and verifies signed tokens with a shared symmetric
// secret. Issuer and verifier live in the same trust domain, so HMAC is
// sufficient.
type JWTManager struct {
	secret     []byte
	method     jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// TokenPair is the login/refresh response payload.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

var defaultManager *JWTManager

// NewJWTManager builds a manager. TTLs are in minutes; expiry is computed as
// an absolute timestamp at issuance. Unknown algorithm names fall back to
// HS256.
func NewJWTManager(secret, algorithm string, accessTTLMinutes, refreshTTLMinutes int) *JWTManager {
	m := &JWTManager{
		secret:     []byte(secret),
		method:     signingMethod(algorithm),
		accessTTL:  time.Duration(accessTTLMinutes) * time.Minute,
		refreshTTL: time.Duration(refreshTTLMinutes) * time.Minute,
	}
	defaultManager = m
	return m
}

// DefaultJWT returns the last constructed JWTManager (used for auto-wiring routes)
func DefaultJWT() *JWTManager { return defaultManager }

// AccessTTL reports the configured access-token lifetime.
func (m *JWTManager) AccessTTL() time.Duration { return m.accessTTL }

// RefreshTTL reports the configured refresh-token lifetime.
func (m *JWTManager) RefreshTTL() time.Duration { return m.refreshTTL }

func signingMethod(name string) jwt.SigningMethod {
	switch name {
	case "HS384":
		return jwt.SigningMethodHS384
	case "HS512":
		return jwt.SigningMethodHS512
	default:
		return jwt.SigningMethodHS256
	}
}

func (m *JWTManager) issue(subject, tokenType string, ttl time.Duration, roles []string) (string, error) {
	now := time.Now()
	claims := &Claims{
		TokenType: tokenType,
		Roles:     roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(m.method, claims).SignedString(m.secret)
}

// GenerateAccessToken signs an access token embedding the user's role names.
func (m *JWTManager) GenerateAccessToken(subject string, roles []string) (string, error) {
	return m.issue(subject, TokenTypeAccess, m.accessTTL, roles)
}

// GenerateRefreshToken signs a refresh token. It never carries roles.
func (m *JWTManager) GenerateRefreshToken(subject string) (string, error) {
	return m.issue(subject, TokenTypeRefresh, m.refreshTTL, nil)
}

// GeneratePair issues an access/refresh pair. The two tokens are independent;
// there is no atomicity between them.
func (m *JWTManager) GeneratePair(subject string, roles []string) (TokenPair, error) {
	access, err := m.GenerateAccessToken(subject, roles)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := m.GenerateRefreshToken(subject)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}

// Parse verifies signature and expiry and returns the claims. When
// expectedType is non-empty the "type" claim must match or
// ErrWrongTokenType is returned.
func (m *JWTManager) Parse(tokenStr, expectedType string) (*Claims, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil || !tkn.Valid {
		return nil, ErrInvalidToken
	}
	if expectedType != "" && claims.TokenType != expectedType {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// ParseAccessToken verifies an access token.
func (m *JWTManager) ParseAccessToken(tokenStr string) (*Claims, error) {
	return m.Parse(tokenStr, TokenTypeAccess)
}

// ParseRefreshToken verifies a refresh token.
func (m *JWTManager) ParseRefreshToken(tokenStr string) (*Claims, error) {
	return m.Parse(tokenStr, TokenTypeRefresh)
}
