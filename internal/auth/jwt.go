package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token purposes. A token signed for one purpose is rejected for any other.
const (
	PurposeAccess   = "access"
	PurposeConfirm  = "email_confirmation"
	PurposeRecovery = "recovery"
	PurposeOAuth    = "oauth_state"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload for every token the service issues.
type Claims struct {
	Email      string `json:"email,omitempty"`
	SessionID  string `json:"sid,omitempty"`
	Purpose    string `json:"purpose"`
	RedirectTo string `json:"redirect_to,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates HS256 tokens.
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), now: time.Now}
}

// Issue signs claims for subject valid for ttl.
func (t *TokenIssuer) Issue(subject string, ttl time.Duration, claims Claims) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses tokenString and checks its signature, expiry and purpose.
func (t *TokenIssuer) Validate(tokenString, purpose string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != purpose {
		return nil, fmt.Errorf("%w: wrong purpose %q", ErrInvalidToken, claims.Purpose)
	}
	return claims, nil
}
