package domain

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	RoleAdmin  = "ADMIN"
	RoleMember = "MEMBER"
)

// Organization names are bounded in runes.
const (
	MinNameLength = 2
	MaxNameLength = 100
)

const personalSuffix = "'s Organization"

// PersonalOrganizationName names the organization created at registration,
// shortening the owner's name so the result stays within MaxNameLength.
func PersonalOrganizationName(owner string) string {
	owner = strings.TrimSpace(owner)
	limit := MaxNameLength - utf8.RuneCountInString(personalSuffix)
	if utf8.RuneCountInString(owner) > limit {
		owner = strings.TrimSpace(string([]rune(owner)[:limit]))
	}
	return owner + personalSuffix
}

func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleMember
}

//go:generate mockgen -source=service.go -destination=../mocks/mock_service.go -package=mocks

type Service interface {
	List(ctx context.Context, userID snowflake.ID) ([]OrganizationResponse, error)
	Get(ctx context.Context, orgID, userID snowflake.ID) (*OrganizationResponse, error)
	Create(ctx context.Context, userID snowflake.ID, req CreateOrganizationRequest) (*OrganizationResponse, error)
	Update(ctx context.Context, orgID, userID snowflake.ID, req UpdateOrganizationRequest) (*OrganizationResponse, error)
	Remove(ctx context.Context, orgID, userID snowflake.ID) error
	ListMembers(ctx context.Context, orgID, userID snowflake.ID) ([]MemberResponse, error)
	AddMember(ctx context.Context, orgID, userID snowflake.ID, req AddMemberRequest) (*MemberResponse, error)
	RemoveMember(ctx context.Context, orgID, memberID, userID snowflake.ID) error
}

// Provisioner creates an organization owned by a single ADMIN inside a
// caller-owned transaction.
type Provisioner interface {
	Provision(ctx context.Context, tx *gorm.DB, req ProvisionRequest) (*Organization, error)
}

type ProvisionRequest struct {
	OwnerID  snowflake.ID
	Name     string
	PlanName string
}

type CreateOrganizationRequest struct {
	Name string
}

type UpdateOrganizationRequest struct {
	Name *string
}

type AddMemberRequest struct {
	Email string
	Role  string
}

type PlanResponse struct {
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

type MemberResponse struct {
	ID        string     `json:"id"`
	OrgID     string     `json:"org_id"`
	UserID    string     `json:"user_id"`
	Role      string     `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	User      MemberUser `json:"user"`
}

type OrganizationResponse struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Slug      string           `json:"slug"`
	PlanID    string           `json:"plan_id"`
	Plan      *PlanResponse    `json:"plan,omitempty"`
	Members   []MemberResponse `json:"members"`
	Counts    ResourceCounts   `json:"counts"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

var (
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidEmail         = errors.New("invalid_email")
	ErrInvalidRole          = errors.New("invalid_role")
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrMemberNotFound       = errors.New("member not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrForbidden            = errors.New("access denied")
	ErrAdminRequired        = errors.New("only organization admins can perform this action")
	ErrSoleAdmin            = errors.New("cannot delete organization with only one admin")
	ErrLastAdmin            = errors.New("cannot remove the last admin from the organization")
	ErrAlreadyMember        = errors.New("user is already a member of this organization")
	ErrDefaultPlanMissing   = errors.New("free plan not found in database")
)
