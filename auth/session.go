package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidSession = errors.New("invalid session token")
	ErrExpiredSession = errors.New("session expired")
	errMissingSecret  = errors.New("session secret not configured")
)

// SessionClaims identifies the member a session belongs to
type SessionClaims struct {
	MemberID  uuid.UUID
	Username  string
	ExpiresAt time.Time
}

type sessionJWTClaims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// SessionManager issues and validates signed session tokens carried in the
// session cookie
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionManager creates a session manager signing with secret
func NewSessionManager(secret string, ttl time.Duration) *SessionManager {
	return &SessionManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue creates a session token for the member
func (s *SessionManager) Issue(memberID uuid.UUID, username string) (string, error) {
	if len(s.secret) == 0 {
		return "", errMissingSecret
	}

	now := s.now()
	claims := sessionJWTClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   memberID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// Validate checks the signature and expiry of a session token
func (s *SessionManager) Validate(tokenString string) (*SessionClaims, error) {
	if tokenString == "" || len(s.secret) == 0 {
		return nil, ErrInvalidSession
	}

	var claims sessionJWTClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredSession
		}
		return nil, ErrInvalidSession
	}
	if !token.Valid {
		return nil, ErrInvalidSession
	}

	memberID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidSession
	}

	return &SessionClaims{
		MemberID:  memberID,
		Username:  claims.Username,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// TTL returns how long issued sessions stay valid
func (s *SessionManager) TTL() time.Duration {
	return s.ttl
}
