package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	orgdomain "github.com/smallbiznis/tenantry/internal/organization/domain"
	"gorm.io/gorm"
)

// MembershipRow is a membership joined with its organization.
type MembershipRow struct {
	orgdomain.OrganizationMember
	OrgName   string       `gorm:"column:org_name"`
	OrgSlug   string       `gorm:"column:org_slug"`
	OrgPlanID snowflake.ID `gorm:"column:org_plan_id"`
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, user *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id snowflake.ID) (*User, error)
	// ListMemberships returns memberships ordered by created_at, id.
	ListMemberships(ctx context.Context, userID snowflake.ID) ([]MembershipRow, error)
}
