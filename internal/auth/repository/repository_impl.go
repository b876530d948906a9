package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantry/internal/auth/domain"
	"github.com/smallbiznis/tenantry/pkg/db"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) WithTx(tx *gorm.DB) domain.Repository {
	return &repo{db: tx}
}

func (r *repo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.User{}).Count(&count).Error
	return count, err
}

// Create inserts the user. The unique email index is the final arbiter for
// concurrent registrations.
func (r *repo) Create(ctx context.Context, user *domain.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrUserExists
	}
	return err
}

func (r *repo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repo) ListMemberships(ctx context.Context, userID snowflake.ID) ([]domain.MembershipRow, error) {
	var rows []domain.MembershipRow
	err := r.db.WithContext(ctx).Raw(
		`SELECT m.id, m.org_id, m.user_id, m.role, m.created_at,
		        o.name AS org_name, o.slug AS org_slug, o.plan_id AS org_plan_id
		 FROM organization_members m
		 JOIN organizations o ON o.id = m.org_id
		 WHERE m.user_id = ?
		 ORDER BY m.created_at ASC, m.id ASC`,
		userID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
