package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/tenantry/internal/authorization"
	"github.com/smallbiznis/tenantry/internal/clock"
	"github.com/smallbiznis/tenantry/internal/config"
	obsmetrics "github.com/smallbiznis/tenantry/internal/observability/metrics"
	"github.com/smallbiznis/tenantry/internal/organization/domain"
	"github.com/smallbiznis/tenantry/internal/organization/event"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Repo      domain.Repository
	GenID     *snowflake.Node
	Publisher event.EventPublisher
	Authz     authorization.Service
	Clock     clock.Clock
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	repo      domain.Repository
	genID     *snowflake.Node
	publisher event.EventPublisher
	authz     authorization.Service
	clock     clock.Clock
	metrics   *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("organization.service"),
		repo:      p.Repo,
		genID:     p.GenID,
		publisher: p.Publisher,
		authz:     p.Authz,
		clock:     p.Clock,
		metrics:   p.Metrics,
	}
}

func (s *Service) List(ctx context.Context, userID snowflake.ID) ([]domain.OrganizationResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	orgs, err := s.repo.ListOrganizationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.OrganizationResponse, 0, len(orgs))
	for _, org := range orgs {
		item, err := s.detail(ctx, s.repo, org)
		if err != nil {
			return nil, err
		}
		resp = append(resp, *item)
	}
	return resp, nil
}

// Get hides organizations the caller does not belong to behind not-found.
func (s *Service) Get(ctx context.Context, orgID, userID snowflake.ID) (*domain.OrganizationResponse, error) {
	if _, err := s.authorize(ctx, s.repo, orgID, userID, authorization.ObjectOrganization, authorization.ActionOrganizationView, domain.ErrOrganizationNotFound); err != nil {
		return nil, err
	}

	org, err := s.repo.FindOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, s.repo, *org)
}

func (s *Service) Create(ctx context.Context, userID snowflake.ID, req domain.CreateOrganizationRequest) (*domain.OrganizationResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	name, err := normalizeName(req.Name)
	if err != nil {
		return nil, err
	}

	var org *domain.Organization
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := s.Provision(ctx, tx, domain.ProvisionRequest{
			OwnerID:  userID,
			Name:     name,
			PlanName: config.FreePlanName,
		})
		if err != nil {
			return err
		}
		org = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.detail(ctx, s.repo, *org)
}

// Provision creates the organization, its ADMIN membership and the outbox
// event on tx. A missing Free plan is a deployment error, not a client one.
func (s *Service) Provision(ctx context.Context, tx *gorm.DB, req domain.ProvisionRequest) (*domain.Organization, error) {
	if req.OwnerID == 0 {
		return nil, domain.ErrInvalidUser
	}
	name, err := normalizeName(req.Name)
	if err != nil {
		return nil, err
	}
	planName := strings.TrimSpace(req.PlanName)
	if planName == "" {
		planName = config.FreePlanName
	}

	repo := s.repo.WithTx(tx)
	plan, err := repo.FindPlanByName(ctx, planName)
	if err != nil {
		if errors.Is(err, domain.ErrPlanNotFound) && planName == config.FreePlanName {
			s.log.Error("default plan missing", zap.String("plan", planName))
			return nil, domain.ErrDefaultPlanMissing
		}
		return nil, err
	}

	now := s.clock.Now()
	org := domain.Organization{
		ID:        s.genID.Generate(),
		Name:      name,
		Slug:      slug.Make(name),
		PlanID:    plan.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.CreateOrganization(ctx, org); err != nil {
		return nil, err
	}

	member := domain.OrganizationMember{
		ID:        s.genID.Generate(),
		OrgID:     org.ID,
		UserID:    req.OwnerID,
		Role:      domain.RoleAdmin,
		CreatedAt: now,
	}
	if err := repo.AddMember(ctx, member); err != nil {
		return nil, err
	}

	if err := s.emit(ctx, tx, org.ID, event.OrganizationCreatedTopic, map[string]string{
		"organization_id": org.ID.String(),
		"owner_user_id":   req.OwnerID.String(),
		"plan_id":         plan.ID.String(),
		"created_at":      now.Format(time.RFC3339),
	}); err != nil {
		return nil, err
	}

	s.metrics.RecordOrganizationMutation(ctx, "create")
	s.log.Info("organization created",
		zap.String("org_id", org.ID.String()),
		zap.String("owner_user_id", req.OwnerID.String()),
	)
	return &org, nil
}

func (s *Service) Update(ctx context.Context, orgID, userID snowflake.ID, req domain.UpdateOrganizationRequest) (*domain.OrganizationResponse, error) {
	var name string
	if req.Name != nil {
		normalized, err := normalizeName(*req.Name)
		if err != nil {
			return nil, err
		}
		name = normalized
	}

	var updated domain.Organization
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.lock(ctx, repo, orgID); err != nil {
			return err
		}
		if _, err := s.authorize(ctx, repo, orgID, userID, authorization.ObjectOrganization, authorization.ActionOrganizationUpdate, domain.ErrAdminRequired); err != nil {
			return err
		}

		org, err := repo.FindOrganization(ctx, orgID)
		if err != nil {
			return err
		}
		if req.Name != nil {
			org.Name = name
			org.Slug = slug.Make(name)
		}
		org.UpdatedAt = s.clock.Now()
		if err := repo.UpdateOrganization(ctx, *org); err != nil {
			return err
		}
		updated = *org

		return s.emit(ctx, tx, org.ID, event.OrganizationUpdatedTopic, map[string]string{
			"organization_id": org.ID.String(),
			"actor_user_id":   userID.String(),
			"name":            org.Name,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordOrganizationMutation(ctx, "update")
	return s.detail(ctx, s.repo, updated)
}

// Remove deletes the organization and its memberships. An organization whose
// admin count is exactly one cannot be deleted, even by that admin.
func (s *Service) Remove(ctx context.Context, orgID, userID snowflake.ID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.lock(ctx, repo, orgID); err != nil {
			return err
		}
		if _, err := s.authorize(ctx, repo, orgID, userID, authorization.ObjectOrganization, authorization.ActionOrganizationDelete, domain.ErrAdminRequired); err != nil {
			return err
		}

		admins, err := repo.CountAdmins(ctx, orgID)
		if err != nil {
			return err
		}
		if admins == 1 {
			return domain.ErrSoleAdmin
		}

		if err := repo.DeleteOrganization(ctx, orgID); err != nil {
			return err
		}

		return s.emit(ctx, tx, orgID, event.OrganizationDeletedTopic, map[string]string{
			"organization_id": orgID.String(),
			"actor_user_id":   userID.String(),
		})
	})
	if err != nil {
		return err
	}

	s.metrics.RecordOrganizationMutation(ctx, "delete")
	s.log.Info("organization deleted",
		zap.String("org_id", orgID.String()),
		zap.String("actor_user_id", userID.String()),
	)
	return nil
}

func (s *Service) ListMembers(ctx context.Context, orgID, userID snowflake.ID) ([]domain.MemberResponse, error) {
	if _, err := s.authorize(ctx, s.repo, orgID, userID, authorization.ObjectMember, authorization.ActionMemberList, domain.ErrForbidden); err != nil {
		return nil, err
	}

	rows, err := s.repo.ListMembers(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return toMemberResponses(rows), nil
}

func (s *Service) AddMember(ctx context.Context, orgID, userID snowflake.ID, req domain.AddMemberRequest) (*domain.MemberResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}
	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if !domain.ValidRole(role) {
		return nil, domain.ErrInvalidRole
	}

	var resp domain.MemberResponse
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.lock(ctx, repo, orgID); err != nil {
			return err
		}
		if _, err := s.authorize(ctx, repo, orgID, userID, authorization.ObjectMember, authorization.ActionMemberAdd, domain.ErrAdminRequired); err != nil {
			return err
		}

		user, err := repo.FindUserByEmail(ctx, email)
		if err != nil {
			return err
		}

		_, err = repo.FindMembership(ctx, orgID, user.ID)
		switch {
		case err == nil:
			return domain.ErrAlreadyMember
		case !errors.Is(err, domain.ErrMemberNotFound):
			return err
		}

		member := domain.OrganizationMember{
			ID:        s.genID.Generate(),
			OrgID:     orgID,
			UserID:    user.ID,
			Role:      role,
			CreatedAt: s.clock.Now(),
		}
		if err := repo.AddMember(ctx, member); err != nil {
			return err
		}

		resp = toMemberResponse(domain.MemberRow{
			OrganizationMember: member,
			UserName:           user.Name,
			UserEmail:          user.Email,
		})

		return s.emit(ctx, tx, orgID, event.MemberAddedTopic, map[string]string{
			"organization_id": orgID.String(),
			"member_id":       member.ID.String(),
			"user_id":         user.ID.String(),
			"role":            role,
			"actor_user_id":   userID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordMembershipMutation(ctx, "add", role)
	return &resp, nil
}

// RemoveMember never leaves an organization without an ADMIN.
func (s *Service) RemoveMember(ctx context.Context, orgID, memberID, userID snowflake.ID) error {
	var removedRole string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.lock(ctx, repo, orgID); err != nil {
			return err
		}
		if _, err := s.authorize(ctx, repo, orgID, userID, authorization.ObjectMember, authorization.ActionMemberRemove, domain.ErrAdminRequired); err != nil {
			return err
		}

		target, err := repo.FindMember(ctx, orgID, memberID)
		if err != nil {
			return err
		}

		if target.Role == domain.RoleAdmin {
			admins, err := repo.CountAdmins(ctx, orgID)
			if err != nil {
				return err
			}
			if admins <= 1 {
				return domain.ErrLastAdmin
			}
		}

		if err := repo.RemoveMember(ctx, target.ID); err != nil {
			return err
		}
		removedRole = target.Role

		return s.emit(ctx, tx, orgID, event.MemberRemovedTopic, map[string]string{
			"organization_id": orgID.String(),
			"member_id":       target.ID.String(),
			"user_id":         target.UserID.String(),
			"actor_user_id":   userID.String(),
		})
	})
	if err != nil {
		return err
	}

	s.metrics.RecordMembershipMutation(ctx, "remove", removedRole)
	return nil
}

// authorize loads the caller's membership from repo and checks its role.
// Callers choose which error a missing or insufficient role surfaces as.
func (s *Service) authorize(ctx context.Context, repo domain.Repository, orgID, userID snowflake.ID, object, action string, denied error) (*domain.OrganizationMember, error) {
	if orgID == 0 || userID == 0 {
		return nil, denied
	}
	membership, err := repo.FindMembership(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrMemberNotFound) {
			return nil, denied
		}
		return nil, err
	}
	if err := s.authz.Authorize(ctx, membership.Role, object, action); err != nil {
		if errors.Is(err, authorization.ErrForbidden) {
			return nil, denied
		}
		return nil, err
	}
	return membership, nil
}

// lock serialises membership mutations of one organization. A missing
// organization has no admins, so it surfaces as a role failure.
func (s *Service) lock(ctx context.Context, repo domain.Repository, orgID snowflake.ID) error {
	if orgID == 0 {
		return domain.ErrAdminRequired
	}
	err := repo.LockOrganization(ctx, orgID)
	if errors.Is(err, domain.ErrOrganizationNotFound) {
		return domain.ErrAdminRequired
	}
	return err
}

func (s *Service) detail(ctx context.Context, repo domain.Repository, org domain.Organization) (*domain.OrganizationResponse, error) {
	resp := &domain.OrganizationResponse{
		ID:        org.ID.String(),
		Name:      org.Name,
		Slug:      org.Slug,
		PlanID:    org.PlanID.String(),
		CreatedAt: org.CreatedAt,
		UpdatedAt: org.UpdatedAt,
	}

	plan, err := repo.FindPlanByID(ctx, org.PlanID)
	switch {
	case err == nil:
		resp.Plan = toPlanResponse(*plan)
	case !errors.Is(err, domain.ErrPlanNotFound):
		return nil, err
	}

	rows, err := repo.ListMembers(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	resp.Members = toMemberResponses(rows)

	counts, err := repo.CountResources(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	resp.Counts = counts

	return resp, nil
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, topic string, payload map[string]string) error {
	if s.publisher == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, tx, orgID, topic, data)
}

func normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(name)
	if n < domain.MinNameLength || n > domain.MaxNameLength {
		return "", domain.ErrInvalidName
	}
	return name, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func toPlanResponse(plan domain.Plan) *domain.PlanResponse {
	features := map[string]any(plan.Features)
	if features == nil {
		features = map[string]any{}
	}
	return &domain.PlanResponse{
		ID:          plan.ID.String(),
		Name:        plan.Name,
		Description: plan.Description,
		Price:       plan.Price,
		Features:    features,
	}
}

func toMemberResponses(rows []domain.MemberRow) []domain.MemberResponse {
	resp := make([]domain.MemberResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, toMemberResponse(row))
	}
	return resp
}

func toMemberResponse(row domain.MemberRow) domain.MemberResponse {
	return domain.MemberResponse{
		ID:        row.ID.String(),
		OrgID:     row.OrgID.String(),
		UserID:    row.UserID.String(),
		Role:      row.Role,
		CreatedAt: row.CreatedAt,
		User: domain.MemberUser{
			ID:    row.UserID.String(),
			Name:  row.UserName,
			Email: row.UserEmail,
		},
	}
}
