// Package domain contains persistence models for the org service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Organization represents a tenant.
type Organization struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Slug      string       `gorm:"type:text;not null;index:ix_organizations_slug" json:"slug"`
	PlanID    snowflake.ID `gorm:"column:plan_id;not null;index" json:"plan_id"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// OrganizationMember represents membership of a user in an organization.
type OrganizationMember struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index;uniqueIndex:ux_org_user,priority:1" json:"org_id"`
	UserID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_org_user,priority:2" json:"user_id"`
	Role      string       `gorm:"type:text;not null" json:"role"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (OrganizationMember) TableName() string { return "organization_members" }

// Plan is reference data seeded from the plan catalog.
type Plan struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name        string            `gorm:"type:varchar(64);not null;uniqueIndex:ux_organization_plans_name" json:"name"`
	Description string            `gorm:"type:text" json:"description"`
	Price       float64           `gorm:"type:numeric(10,2);not null;default:0" json:"price"`
	Features    datatypes.JSONMap `gorm:"not null" json:"features"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "organization_plans" }

// Content is owned by the publishing subsystem; only counted here.
type Content struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OrgID     snowflake.ID `gorm:"not null;index"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Content) TableName() string { return "contents" }

// PlatformIdentity is owned by the integrations subsystem; only counted here.
type PlatformIdentity struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OrgID     snowflake.ID `gorm:"not null;index"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PlatformIdentity) TableName() string { return "platform_identities" }

// OrganizationEvent is an outbox row written in the same transaction as the
// mutation it describes.
type OrganizationEvent struct {
	ID        snowflake.ID   `gorm:"primaryKey"`
	OrgID     snowflake.ID   `gorm:"not null;index"`
	EventType string         `gorm:"type:text;not null"`
	Payload   datatypes.JSON `gorm:"not null"`
	Published bool           `gorm:"not null;default:false"`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (OrganizationEvent) TableName() string { return "organization_events" }

// UserSummary is the public projection of a users row.
type UserSummary struct {
	ID    snowflake.ID `gorm:"column:id"`
	Name  string       `gorm:"column:name"`
	Email string       `gorm:"column:email"`
}
