package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	// ClaimsKey is the context key for session claims
	ClaimsKey contextKey = "claims"

	// MemberIDKey is the context key for the authenticated member ID
	MemberIDKey contextKey = "member_id"
)

// Claims represents the session claims extracted from the token
type Claims struct {
	Sub      string `json:"sub"` // Member ID
	Username string `json:"username"`
	Exp      int64  `json:"exp"` // Expiration
}

// GetClaimsFromContext retrieves session claims from context
func GetClaimsFromContext(ctx context.Context) *Claims {
	if val := ctx.Value(ClaimsKey); val != nil {
		if claims, ok := val.(*Claims); ok {
			return claims
		}
	}
	return nil
}

// WithClaims adds session claims to the context
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetMemberIDFromContext retrieves the member ID from context
func GetMemberIDFromContext(ctx context.Context) uuid.UUID {
	if val := ctx.Value(MemberIDKey); val != nil {
		if memberID, ok := val.(uuid.UUID); ok {
			return memberID
		}
	}
	return uuid.Nil
}

// WithMemberID adds a member ID to the context
func WithMemberID(ctx context.Context, memberID uuid.UUID) context.Context {
	return context.WithValue(ctx, MemberIDKey, memberID)
}
