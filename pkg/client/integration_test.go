package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/tenantry/internal/observability"
	obsmetrics "github.com/smallbiznis/tenantry/internal/observability/metrics"
	"github.com/smallbiznis/tenantry/internal/server"
	"github.com/smallbiznis/tenantry/internal/testenv"
	"github.com/smallbiznis/tenantry/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startAPI(t *testing.T) (*testenv.Env, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := testenv.New(t)
	httpMetrics, err := obsmetrics.NewHTTPMetricsWithRegisterer(prometheus.NewRegistry())
	require.NoError(t, err)

	s := server.NewServer(server.ServerParams{
		Gin:             server.NewEngine(observability.Config{Environment: "test"}, httpMetrics),
		Cfg:             env.Config,
		Authsvc:         env.Auth,
		OrganizationSvc: env.Orgs,
	})
	srv := httptest.NewServer(s.Engine())
	t.Cleanup(srv.Close)
	return env, srv.URL
}

func TestClientAgainstServer(t *testing.T) {
	_, baseURL := startAPI(t)
	ctx := context.Background()

	ada, err := client.New(baseURL, nil)
	require.NoError(t, err)

	user, err := ada.Register(ctx, "ada@example.com", testenv.DefaultPassword, "Ada")
	require.NoError(t, err)
	require.Len(t, user.Memberships, 1)
	home := user.Memberships[0].OrganizationID
	assert.Equal(t, home, ada.Session().CurrentOrganization())

	org, err := ada.CurrentOrganization(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ada's Organization", org.Name)
	require.NotNil(t, org.Plan)
	assert.Equal(t, "Free", org.Plan.Name)

	second, err := ada.CreateOrganization(ctx, "Analytical Engines")
	require.NoError(t, err)

	_, err = ada.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, home, ada.Session().CurrentOrganization())
	require.NoError(t, ada.Session().SetCurrentOrganization(second.ID))

	orgs, err := ada.ListOrganizations(ctx)
	require.NoError(t, err)
	assert.Len(t, orgs, 2)

	renamed := "Difference Engines"
	updated, err := ada.UpdateOrganization(ctx, second.ID, &renamed)
	require.NoError(t, err)
	assert.Equal(t, renamed, updated.Name)

	charles, err := client.New(baseURL, nil)
	require.NoError(t, err)
	_, err = charles.Register(ctx, "charles@example.com", testenv.DefaultPassword, "Charles")
	require.NoError(t, err)

	member, err := ada.AddMember(ctx, second.ID, "charles@example.com", "member")
	require.NoError(t, err)
	assert.Equal(t, "MEMBER", member.Role)

	_, err = charles.UpdateOrganization(ctx, second.ID, &renamed)
	assert.True(t, client.IsStatus(err, http.StatusForbidden))

	members, err := ada.ListMembers(ctx, second.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	require.NoError(t, ada.RemoveMember(ctx, second.ID, member.ID))
	_, err = charles.GetOrganization(ctx, second.ID)
	assert.True(t, client.IsStatus(err, http.StatusNotFound))

	err = ada.DeleteOrganization(ctx, second.ID)
	assert.True(t, client.IsStatus(err, http.StatusForbidden), "a sole admin cannot delete")

	ada.Logout()
	_, err = ada.ListOrganizations(ctx)
	require.ErrorIs(t, err, client.ErrNotAuthenticated)
}

func TestClientLoginWithWrongPassword(t *testing.T) {
	env, baseURL := startAPI(t)
	env.Register(t, "ada@example.com", "Ada")

	c, err := client.New(baseURL, nil)
	require.NoError(t, err)

	_, err = c.Login(context.Background(), "ada@example.com", "not-the-password")
	require.True(t, client.IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, client.StateUnauthenticated, c.Session().State())
}

func TestClientValidationError(t *testing.T) {
	_, baseURL := startAPI(t)

	c, err := client.New(baseURL, nil)
	require.NoError(t, err)

	_, err = c.Register(context.Background(), "not-an-email", "short", "")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "validation_error", apiErr.Type)
	assert.NotEmpty(t, apiErr.Errors)
}
