package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantry/internal/auth/domain"
	"github.com/smallbiznis/tenantry/internal/auth/password"
	"github.com/smallbiznis/tenantry/internal/auth/token"
	"github.com/smallbiznis/tenantry/internal/clock"
	"github.com/smallbiznis/tenantry/internal/config"
	obsmetrics "github.com/smallbiznis/tenantry/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/tenantry/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	minPasswordLength = 8
	tokenType         = "Bearer"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Repo        domain.Repository
	Provisioner orgdomain.Provisioner
	Tokens      *token.Issuer
	GenID       *snowflake.Node
	Clock       clock.Clock
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	repo        domain.Repository
	provisioner orgdomain.Provisioner
	tokens      *token.Issuer
	genID       *snowflake.Node
	clock       clock.Clock
	metrics     *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("auth.service"),
		repo:        p.Repo,
		provisioner: p.Provisioner,
		tokens:      p.Tokens,
		genID:       p.GenID,
		clock:       p.Clock,
		metrics:     p.Metrics,
	}
}

// ValidateCredentials checks the provider before the password so accounts
// created through an external provider never reach hash comparison.
func (s *Service) ValidateCredentials(ctx context.Context, email, pw string) (*domain.Profile, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if user.AuthProvider != domain.ProviderEmailPassword {
		return nil, domain.ErrWrongAuthProvider
	}
	if user.PasswordHash == nil || !password.Verify(pw, *user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	return s.profile(ctx, s.repo, user)
}

// IssueSession binds the token to the earliest membership of the profile.
func (s *Service) IssueSession(ctx context.Context, profile *domain.Profile) (*domain.Session, error) {
	if profile == nil {
		return nil, domain.ErrUserNotFound
	}
	userID, err := snowflake.ParseString(profile.ID)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}

	raw, expiresAt, err := s.tokens.Issue(userID, profile.Email, profile.ActiveOrganizationID())
	if err != nil {
		return nil, err
	}

	return &domain.Session{
		AccessToken: raw,
		TokenType:   tokenType,
		ExpiresAt:   expiresAt,
		User:        profile,
	}, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.Session, error) {
	profile, err := s.ValidateCredentials(ctx, req.Email, req.Password)
	if err != nil {
		s.metrics.RecordLogin(ctx, loginResult(err))
		return nil, err
	}

	session, err := s.IssueSession(ctx, profile)
	if err != nil {
		s.metrics.RecordLogin(ctx, "error")
		return nil, err
	}

	s.metrics.RecordLogin(ctx, "success")
	s.log.Info("user logged in",
		zap.String("user_id", profile.ID),
		zap.String("org_id", profile.ActiveOrganizationID()),
	)
	return session, nil
}

// Register creates the user, its organization on the Free plan and the ADMIN
// membership in one transaction.
func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.Profile, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if len(req.Password) < minPasswordLength {
		return nil, domain.ErrInvalidPassword
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return nil, domain.ErrInvalidPassword
		}
		return nil, err
	}

	var profile *domain.Profile
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		_, err := repo.FindByEmail(ctx, email)
		switch {
		case err == nil:
			return domain.ErrUserExists
		case !errors.Is(err, domain.ErrUserNotFound):
			return err
		}

		now := s.clock.Now()
		user := &domain.User{
			ID:           s.genID.Generate(),
			Email:        email,
			PasswordHash: &hashed,
			Name:         name,
			AuthProvider: domain.ProviderEmailPassword,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := repo.Create(ctx, user); err != nil {
			return err
		}

		if _, err := s.provisioner.Provision(ctx, tx, orgdomain.ProvisionRequest{
			OwnerID:  user.ID,
			Name:     orgdomain.PersonalOrganizationName(name),
			PlanName: config.FreePlanName,
		}); err != nil {
			return err
		}

		profile, err = s.profile(ctx, repo, user)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			s.metrics.RecordRegistration(ctx, "conflict")
		} else {
			s.metrics.RecordRegistration(ctx, "error")
		}
		return nil, err
	}

	s.metrics.RecordRegistration(ctx, "success")
	s.log.Info("user registered",
		zap.String("user_id", profile.ID),
		zap.String("org_id", profile.ActiveOrganizationID()),
	)
	return profile, nil
}

func (s *Service) GetProfile(ctx context.Context, userID snowflake.ID) (*domain.Profile, error) {
	if userID == 0 {
		return nil, domain.ErrUserNotFound
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.profile(ctx, s.repo, user)
}

// Authenticate resolves a bearer token to an identity. The subject must
// still exist; deleted users lose access before their token expires.
func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.Identity, error) {
	claims, err := s.tokens.Verify(rawToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrInvalidToken
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	orgID, err := claims.OrgID()
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}

	return &domain.Identity{
		UserID:         user.ID,
		Email:          user.Email,
		OrganizationID: orgID,
	}, nil
}

func (s *Service) profile(ctx context.Context, repo domain.Repository, user *domain.User) (*domain.Profile, error) {
	rows, err := repo.ListMemberships(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	memberships := make([]domain.Membership, 0, len(rows))
	for _, row := range rows {
		memberships = append(memberships, domain.Membership{
			ID:             row.ID.String(),
			OrganizationID: row.OrgID.String(),
			Role:           row.Role,
			CreatedAt:      row.CreatedAt,
			Organization: domain.OrganizationSummary{
				ID:     row.OrgID.String(),
				Name:   row.OrgName,
				Slug:   row.OrgSlug,
				PlanID: row.OrgPlanID.String(),
			},
		})
	}

	return &domain.Profile{
		ID:           user.ID.String(),
		Email:        user.Email,
		Name:         user.Name,
		AuthProvider: user.AuthProvider,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
		Memberships:  memberships,
	}, nil
}

func loginResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrWrongAuthProvider):
		return "wrong_provider"
	default:
		return "error"
	}
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}
