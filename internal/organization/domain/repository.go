package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// MemberRow is a membership joined with its user.
type MemberRow struct {
	OrganizationMember
	UserName  string `gorm:"column:user_name"`
	UserEmail string `gorm:"column:user_email"`
}

type ResourceCounts struct {
	Content            int64 `json:"content"`
	PlatformIdentities int64 `json:"platform_identities"`
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindPlanByName(ctx context.Context, name string) (*Plan, error)
	FindPlanByID(ctx context.Context, id snowflake.ID) (*Plan, error)

	CreateOrganization(ctx context.Context, org Organization) error
	UpdateOrganization(ctx context.Context, org Organization) error
	DeleteOrganization(ctx context.Context, orgID snowflake.ID) error
	FindOrganization(ctx context.Context, orgID snowflake.ID) (*Organization, error)
	ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]Organization, error)
	LockOrganization(ctx context.Context, orgID snowflake.ID) error

	AddMember(ctx context.Context, member OrganizationMember) error
	RemoveMember(ctx context.Context, memberID snowflake.ID) error
	FindMembership(ctx context.Context, orgID, userID snowflake.ID) (*OrganizationMember, error)
	FindMember(ctx context.Context, orgID, memberID snowflake.ID) (*OrganizationMember, error)
	ListMembers(ctx context.Context, orgID snowflake.ID) ([]MemberRow, error)
	CountAdmins(ctx context.Context, orgID snowflake.ID) (int64, error)
	CountResources(ctx context.Context, orgID snowflake.ID) (ResourceCounts, error)

	FindUserByEmail(ctx context.Context, email string) (*UserSummary, error)
}
