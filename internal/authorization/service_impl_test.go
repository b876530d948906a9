package authorization

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	orgdomain "github.com/smallbiznis/tenantry/internal/organization/domain"
	"github.com/smallbiznis/tenantry/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) (Service, *DecisionMetrics) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)

	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)

	metrics, err := newDecisionMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	return NewService(Params{
		Log:      zaptest.NewLogger(t),
		Enforcer: enforcer,
		Metrics:  metrics,
	}), metrics
}

func TestAuthorizeRoleGrants(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		role    string
		object  string
		action  string
		allowed bool
	}{
		{orgdomain.RoleAdmin, ObjectOrganization, ActionOrganizationView, true},
		{orgdomain.RoleAdmin, ObjectOrganization, ActionOrganizationUpdate, true},
		{orgdomain.RoleAdmin, ObjectOrganization, ActionOrganizationDelete, true},
		{orgdomain.RoleAdmin, ObjectMember, ActionMemberList, true},
		{orgdomain.RoleAdmin, ObjectMember, ActionMemberAdd, true},
		{orgdomain.RoleAdmin, ObjectMember, ActionMemberRemove, true},
		{orgdomain.RoleMember, ObjectOrganization, ActionOrganizationView, true},
		{orgdomain.RoleMember, ObjectMember, ActionMemberList, true},
		{orgdomain.RoleMember, ObjectOrganization, ActionOrganizationUpdate, false},
		{orgdomain.RoleMember, ObjectOrganization, ActionOrganizationDelete, false},
		{orgdomain.RoleMember, ObjectMember, ActionMemberAdd, false},
		{orgdomain.RoleMember, ObjectMember, ActionMemberRemove, false},
		{"OWNER", ObjectOrganization, ActionOrganizationView, false},
		{"", ObjectOrganization, ActionOrganizationView, false},
	}

	for _, tc := range cases {
		err := svc.Authorize(ctx, tc.role, tc.object, tc.action)
		if tc.allowed {
			assert.NoError(t, err, "%s %s", tc.role, tc.action)
		} else {
			assert.ErrorIs(t, err, ErrForbidden, "%s %s", tc.role, tc.action)
		}
	}
}

func TestAuthorizeRecordsDecisions(t *testing.T) {
	svc, metrics := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, orgdomain.RoleAdmin, ObjectMember, ActionMemberAdd))
	require.Error(t, svc.Authorize(ctx, orgdomain.RoleMember, ObjectMember, ActionMemberAdd))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.decisions.WithLabelValues(ObjectMember, ActionMemberAdd, decisionAllowed)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.decisions.WithLabelValues(ObjectMember, ActionMemberAdd, decisionDenied)))
}

func TestNewEnforcerIsIdempotent(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	_, err = NewEnforcer(conn)
	require.NoError(t, err)
	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)

	policies, err := enforcer.GetPolicy()
	require.NoError(t, err)
	assert.Len(t, policies, 8)
}
