// Package domain contains core types for the auth service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	ProviderEmailPassword = "EMAIL_PASSWORD"
	ProviderGoogle        = "GOOGLE"
)

// User represents a system user account. PasswordHash is nil for users
// created through an external identity provider.
type User struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	Email        string       `gorm:"type:text;not null;uniqueIndex:ux_users_email"`
	PasswordHash *string      `gorm:"type:text"`
	Name         string       `gorm:"type:text;not null"`
	AuthProvider string       `gorm:"type:varchar(32);not null"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// OrganizationSummary is the organization attached to a profile membership.
type OrganizationSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	PlanID string `json:"plan_id"`
}

type Membership struct {
	ID             string              `json:"id"`
	OrganizationID string              `json:"organization_id"`
	Role           string              `json:"role"`
	CreatedAt      time.Time           `json:"created_at"`
	Organization   OrganizationSummary `json:"organization"`
}

// Profile is a user without credentials. Memberships are ordered oldest
// first; the first one is the active organization of a new session.
type Profile struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	Name         string       `json:"name"`
	AuthProvider string       `json:"auth_provider"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Memberships  []Membership `json:"memberships"`
}

// ActiveOrganizationID returns the organization a new session is bound to,
// or "" when the user belongs to none.
func (p *Profile) ActiveOrganizationID() string {
	if p == nil || len(p.Memberships) == 0 {
		return ""
	}
	return p.Memberships[0].OrganizationID
}

// Session is the result of a successful login.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *Profile  `json:"user"`
}

// Identity is the caller resolved from a bearer token.
type Identity struct {
	UserID         snowflake.ID
	Email          string
	OrganizationID snowflake.ID
}
