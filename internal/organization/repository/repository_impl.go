package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantry/internal/organization/domain"
	"github.com/smallbiznis/tenantry/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) FindPlanByName(ctx context.Context, name string) (*domain.Plan, error) {
	var plan domain.Plan
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repository) FindPlanByID(ctx context.Context, id snowflake.ID) (*domain.Plan, error) {
	var plan domain.Plan
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repository) CreateOrganization(ctx context.Context, org domain.Organization) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO organizations (id, name, slug, plan_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		org.ID,
		org.Name,
		org.Slug,
		org.PlanID,
		org.CreatedAt,
		org.UpdatedAt,
	).Error
}

func (r *repository) UpdateOrganization(ctx context.Context, org domain.Organization) error {
	tx := r.db.WithContext(ctx).Exec(
		`UPDATE organizations SET name = ?, slug = ?, updated_at = ? WHERE id = ?`,
		org.Name,
		org.Slug,
		org.UpdatedAt,
		org.ID,
	)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrOrganizationNotFound
	}
	return nil
}

// DeleteOrganization removes memberships before the organization row.
func (r *repository) DeleteOrganization(ctx context.Context, orgID snowflake.ID) error {
	conn := r.db.WithContext(ctx)
	if err := conn.Exec(`DELETE FROM organization_members WHERE org_id = ?`, orgID).Error; err != nil {
		return err
	}
	tx := conn.Exec(`DELETE FROM organizations WHERE id = ?`, orgID)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrOrganizationNotFound
	}
	return nil
}

func (r *repository) FindOrganization(ctx context.Context, orgID snowflake.ID) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).Where("id = ?", orgID).First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrganizationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *repository) ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]domain.Organization, error) {
	var items []domain.Organization
	err := r.db.WithContext(ctx).Raw(
		`SELECT o.id, o.name, o.slug, o.plan_id, o.created_at, o.updated_at
		 FROM organizations o
		 JOIN organization_members m ON m.org_id = o.id
		 WHERE m.user_id = ?
		 ORDER BY o.created_at ASC, o.id ASC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}

	return items, nil
}

// LockOrganization takes a row lock on the organization for the rest of the
// transaction. Dialects without row locks serialise writers on their own.
func (r *repository) LockOrganization(ctx context.Context, orgID snowflake.ID) error {
	q := r.db.WithContext(ctx).Model(&domain.Organization{}).Select("id").Where("id = ?", orgID)
	if db.SupportsRowLocks(r.db) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var org domain.Organization
	err := q.Take(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrOrganizationNotFound
	}
	return err
}

func (r *repository) AddMember(ctx context.Context, member domain.OrganizationMember) error {
	err := r.db.WithContext(ctx).Exec(
		`INSERT INTO organization_members (id, org_id, user_id, role, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		member.ID,
		member.OrgID,
		member.UserID,
		member.Role,
		member.CreatedAt,
	).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrAlreadyMember
	}
	return err
}

func (r *repository) RemoveMember(ctx context.Context, memberID snowflake.ID) error {
	tx := r.db.WithContext(ctx).Exec(`DELETE FROM organization_members WHERE id = ?`, memberID)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

func (r *repository) FindMembership(ctx context.Context, orgID, userID snowflake.ID) (*domain.OrganizationMember, error) {
	var member domain.OrganizationMember
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND user_id = ?", orgID, userID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repository) FindMember(ctx context.Context, orgID, memberID snowflake.ID) (*domain.OrganizationMember, error) {
	var member domain.OrganizationMember
	err := r.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", memberID, orgID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repository) ListMembers(ctx context.Context, orgID snowflake.ID) ([]domain.MemberRow, error) {
	var rows []domain.MemberRow
	err := r.db.WithContext(ctx).Raw(
		`SELECT m.id, m.org_id, m.user_id, m.role, m.created_at,
		        u.name AS user_name, u.email AS user_email
		 FROM organization_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.org_id = ?
		 ORDER BY m.created_at ASC, m.id ASC`,
		orgID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CountAdmins(ctx context.Context, orgID snowflake.ID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.OrganizationMember{}).
		Where("org_id = ? AND role = ?", orgID, domain.RoleAdmin).
		Count(&count).Error
	return count, err
}

func (r *repository) CountResources(ctx context.Context, orgID snowflake.ID) (domain.ResourceCounts, error) {
	var counts domain.ResourceCounts
	conn := r.db.WithContext(ctx)
	if err := conn.Model(&domain.Content{}).Where("org_id = ?", orgID).Count(&counts.Content).Error; err != nil {
		return counts, err
	}
	if err := conn.Model(&domain.PlatformIdentity{}).Where("org_id = ?", orgID).Count(&counts.PlatformIdentities).Error; err != nil {
		return counts, err
	}
	return counts, nil
}

func (r *repository) FindUserByEmail(ctx context.Context, email string) (*domain.UserSummary, error) {
	var user domain.UserSummary
	err := r.db.WithContext(ctx).
		Table("users").
		Select("id", "name", "email").
		Where("email = ?", email).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
