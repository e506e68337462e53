package models

import (
	"time"

	"github.com/google/uuid"
)

// Member is an Open Humans member who has authorized this project
type Member struct {
	ID              uuid.UUID `json:"id" db:"id"`
	ProjectMemberID string    `json:"project_member_id" db:"project_member_id"` // Open Humans project member id
	Username        string    `json:"username" db:"username"`
	AccessToken     string    `json:"-" db:"access_token"`
	RefreshToken    string    `json:"-" db:"refresh_token"`
	TokenExpiresAt  time.Time `json:"token_expires_at" db:"token_expires_at"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Member model
func (Member) TableName() string {
	return "members"
}

// NewMember creates a new Member instance
func NewMember(projectMemberID, username string) *Member {
	now := time.Now()
	return &Member{
		ID:              uuid.New(),
		ProjectMemberID: projectMemberID,
		Username:        username,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// SetTokens stores a freshly issued token pair
func (m *Member) SetTokens(accessToken, refreshToken string, expiresAt time.Time) {
	m.AccessToken = accessToken
	m.RefreshToken = refreshToken
	m.TokenExpiresAt = expiresAt
	m.UpdatedAt = time.Now()
}

// TokenExpiresWithin reports whether the access token is expired or will
// expire within d of now
func (m *Member) TokenExpiresWithin(now time.Time, d time.Duration) bool {
	return !now.Add(d).Before(m.TokenExpiresAt)
}
