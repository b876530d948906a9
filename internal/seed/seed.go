// Package seed writes reference data and the optional bootstrap admin.
package seed

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/tenantry/internal/auth/domain"
	"github.com/smallbiznis/tenantry/internal/auth/password"
	"github.com/smallbiznis/tenantry/internal/clock"
	"github.com/smallbiznis/tenantry/internal/config"
	orgdomain "github.com/smallbiznis/tenantry/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	SystemOrganizationName = "System Organization"
	systemPlanName         = "Paid"
)

var ErrBootstrapPasswordRequired = errors.New("BOOTSTRAP_ADMIN_PASSWORD is required when BOOTSTRAP_ADMIN_EMAIL is set")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Users       authdomain.Repository
	Provisioner orgdomain.Provisioner
}

type Seeder struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	users       authdomain.Repository
	provisioner orgdomain.Provisioner
}

func New(p Params) *Seeder {
	return &Seeder{
		db:          p.DB,
		log:         p.Log.Named("seed"),
		genID:       p.GenID,
		clock:       p.Clock,
		users:       p.Users,
		provisioner: p.Provisioner,
	}
}

// EnsurePlans upserts every catalog plan by name. Plans missing from the
// catalog are left in place because organizations may still reference them.
func (s *Seeder) EnsurePlans(ctx context.Context, catalog config.PlanCatalog) error {
	if err := config.ValidatePlanCatalog(catalog); err != nil {
		return err
	}

	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, def := range catalog.Plans {
			features := datatypes.JSONMap{}
			for k, v := range def.Features {
				features[k] = v
			}
			plan := orgdomain.Plan{
				ID:          s.genID.Generate(),
				Name:        strings.TrimSpace(def.Name),
				Description: def.Description,
				Price:       def.Price,
				Features:    features,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{"description", "price", "features", "updated_at"}),
			}).Create(&plan).Error
			if err != nil {
				return fmt.Errorf("seed plan %q: %w", plan.Name, err)
			}
		}
		s.log.Info("plans seeded", zap.Int("count", len(catalog.Plans)))
		return nil
	})
}

// EnsureBootstrapAdmin creates the configured admin user and its system
// organization. It is a no-op when no admin email is configured and safe to
// run on every start.
func (s *Seeder) EnsureBootstrapAdmin(ctx context.Context, cfg config.BootstrapConfig) error {
	if strings.TrimSpace(cfg.AdminEmail) == "" {
		return nil
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(cfg.AdminEmail))
	if err != nil {
		return fmt.Errorf("invalid BOOTSTRAP_ADMIN_EMAIL: %w", err)
	}
	email := strings.ToLower(addr.Address)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)

		user, err := users.FindByEmail(ctx, email)
		switch {
		case errors.Is(err, authdomain.ErrUserNotFound):
			user, err = s.createAdmin(ctx, users, email, cfg)
			if err != nil {
				return err
			}
		case err != nil:
			return err
		}

		memberships, err := users.ListMemberships(ctx, user.ID)
		if err != nil {
			return err
		}
		for _, m := range memberships {
			if m.OrgName == SystemOrganizationName && m.Role == orgdomain.RoleAdmin {
				return nil
			}
		}

		req := orgdomain.ProvisionRequest{
			OwnerID:  user.ID,
			Name:     SystemOrganizationName,
			PlanName: systemPlanName,
		}
		org, err := s.provisioner.Provision(ctx, tx, req)
		if errors.Is(err, orgdomain.ErrPlanNotFound) {
			req.PlanName = config.FreePlanName
			org, err = s.provisioner.Provision(ctx, tx, req)
		}
		if err != nil {
			return err
		}

		s.log.Info("bootstrap admin ready",
			zap.String("user_id", user.ID.String()),
			zap.String("org_id", org.ID.String()),
		)
		return nil
	})
}

func (s *Seeder) createAdmin(ctx context.Context, users authdomain.Repository, email string, cfg config.BootstrapConfig) (*authdomain.User, error) {
	if cfg.AdminPassword == "" {
		return nil, ErrBootstrapPasswordRequired
	}
	hashed, err := password.Hash(cfg.AdminPassword)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(cfg.AdminName)
	if name == "" {
		name = "Admin User"
	}

	now := s.clock.Now()
	user := &authdomain.User{
		ID:           s.genID.Generate(),
		Email:        email,
		PasswordHash: &hashed,
		Name:         name,
		AuthProvider: authdomain.ProviderEmailPassword,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
