package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pactline/internal/domain"
)

// ForbiddenError indicates the acting user's role does not permit an action.
type ForbiddenError struct {
	Action string
	Role   domain.Role
}

func (e ForbiddenError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("%s requires a contract role", e.Action)
	}
	return fmt.Sprintf("%s not permitted for role %s", e.Action, e.Role)
}

var ErrNoSubject = errors.New("subject claim required")

type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Subject reads the sub claim without verifying the signature. The backend owns
// token verification; the client only needs to know who it acts as.
func Subject(token string) (string, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return "", ErrNoSubject
	}
	return claims.Subject, nil
}

// Verify checks an HS256 token and returns its claims.
func Verify(token, secret string) (Claims, error) {
	if strings.TrimSpace(secret) == "" {
		return Claims{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Claims{}, err
	}
	if !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Claims{}, ErrNoSubject
	}
	return *claims, nil
}

// Sign issues an HS256 token for subject, used for local development and tests.
func Sign(secret, subject string, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	if subject == "" {
		return "", ErrNoSubject
	}
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// RequireRole returns ForbiddenError unless role is one of allowed.
func RequireRole(action string, role domain.Role, allowed ...domain.Role) error {
	for _, a := range allowed {
		if role == a {
			return nil
		}
	}
	return ForbiddenError{Action: action, Role: role}
}
