package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	orgdomain "github.com/smallbiznis/tenantry/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectOrganization = "organization"
	ObjectMember       = "member"
)

const (
	ActionOrganizationView   = "organization.view"
	ActionOrganizationUpdate = "organization.update"
	ActionOrganizationDelete = "organization.delete"

	ActionMemberList   = "member.list"
	ActionMemberAdd    = "member.add"
	ActionMemberRemove = "member.remove"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

// Service decides whether a membership role may perform action on object.
// Callers pass the role they just loaded from the store; nothing is cached
// per user here.
type Service interface {
	Authorize(ctx context.Context, role string, object string, action string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Metrics  *DecisionMetrics `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	metrics  *DecisionMetrics
}

// NewEnforcer loads persisted policies through the gorm adapter and seeds the
// built-in role grants.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		metrics:  p.Metrics,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, role string, object string, action string) error {
	role = strings.TrimSpace(role)
	if !orgdomain.ValidRole(role) {
		s.metrics.observe(object, action, decisionDenied)
		return ErrForbidden
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(roleSubject(role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.metrics.observe(object, action, decisionDenied)
		s.log.Debug("authorization denied",
			zap.String("role", role),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}

	s.metrics.observe(object, action, decisionAllowed)
	return nil
}

func roleSubject(role string) string {
	return fmt.Sprintf("role:%s", strings.ToLower(role))
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	admin := roleSubject(orgdomain.RoleAdmin)
	member := roleSubject(orgdomain.RoleMember)

	policies := [][]string{
		// Member permissions (read-only)
		{member, ObjectOrganization, ActionOrganizationView},
		{member, ObjectMember, ActionMemberList},

		// Admin permissions
		{admin, ObjectOrganization, ActionOrganizationView},
		{admin, ObjectOrganization, ActionOrganizationUpdate},
		{admin, ObjectOrganization, ActionOrganizationDelete},
		{admin, ObjectMember, ActionMemberList},
		{admin, ObjectMember, ActionMemberAdd},
		{admin, ObjectMember, ActionMemberRemove},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy[0], policy[1], policy[2])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return err
		}
	}
	return nil
}
