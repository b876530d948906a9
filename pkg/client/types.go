package client

import "time"

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

// User is the profile returned by the auth endpoints. Memberships are
// ordered oldest first.
type User struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	Name         string       `json:"name"`
	AuthProvider string       `json:"auth_provider"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Memberships  []Membership `json:"memberships"`
}

type Plan struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Price       float64        `json:"price"`
	Features    map[string]any `json:"features"`
}

type MemberUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Member struct {
	ID        string     `json:"id"`
	OrgID     string     `json:"org_id"`
	UserID    string     `json:"user_id"`
	Role      string     `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	User      MemberUser `json:"user"`
}

type ResourceCounts struct {
	Content            int64 `json:"content"`
	PlatformIdentities int64 `json:"platform_identities"`
}

type Organization struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Slug      string         `json:"slug"`
	PlanID    string         `json:"plan_id"`
	Plan      *Plan          `json:"plan,omitempty"`
	Members   []Member       `json:"members"`
	Counts    ResourceCounts `json:"counts"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *User     `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}
