package server

import (
	"net/http"
	"testing"

	authdomain "github.com/smallbiznis/tenantry/internal/auth/domain"
	orgdomain "github.com/smallbiznis/tenantry/internal/organization/domain"
	"github.com/smallbiznis/tenantry/internal/testenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type e2e struct {
	env    *testenv.Env
	server *Server
}

func newE2E(t *testing.T) *e2e {
	env := testenv.New(t)
	return &e2e{env: env, server: newTestServer(t, env.Auth, env.Orgs, nil)}
}

// signUp registers through the API and returns a bearer token from /auth/login.
func (e *e2e) signUp(t *testing.T, email, name string) (string, authdomain.Profile) {
	t.Helper()
	rec := doRequest(t, e.server, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    email,
		"password": testenv.DefaultPassword,
		"name":     name,
	})
	requireStatus(t, rec, http.StatusCreated)
	profile := decodeJSON[authdomain.Profile](t, rec)

	rec = doRequest(t, e.server, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    email,
		"password": testenv.DefaultPassword,
	})
	requireStatus(t, rec, http.StatusOK)
	session := decodeJSON[authdomain.Session](t, rec)
	require.NotEmpty(t, session.AccessToken)
	return session.AccessToken, profile
}

func TestE2ERegisterThenLoginBindsRegistrationOrganization(t *testing.T) {
	e := newE2E(t)

	token, profile := e.signUp(t, "ada@example.com", "Ada")
	require.Len(t, profile.Memberships, 1)
	assert.Equal(t, orgdomain.RoleAdmin, profile.Memberships[0].Role)
	assert.Equal(t, "Ada's Organization", profile.Memberships[0].Organization.Name)

	claims, err := e.env.Tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, profile.Memberships[0].OrganizationID, claims.OrganizationID)
	assert.Equal(t, profile.ID, claims.Subject)

	rec := doRequest(t, e.server, http.MethodGet, "/auth/profile", token, nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, profile.ID, decodeJSON[authdomain.Profile](t, rec).ID)
}

func TestE2EDuplicateRegistrationConflicts(t *testing.T) {
	e := newE2E(t)
	e.signUp(t, "ada@example.com", "Ada")

	rec := doRequest(t, e.server, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    "ADA@example.com",
		"password": testenv.DefaultPassword,
		"name":     "Other Ada",
	})
	requireStatus(t, rec, http.StatusConflict)
	assert.Equal(t, int64(1), e.env.Count(t, "users", "1 = 1"))
}

func TestE2EWrongPasswordIsUnauthorized(t *testing.T) {
	e := newE2E(t)
	e.signUp(t, "ada@example.com", "Ada")

	rec := doRequest(t, e.server, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "ada@example.com",
		"password": "not-the-password",
	})
	requireStatus(t, rec, http.StatusUnauthorized)
	assert.Equal(t, "invalid credentials", decodeError(t, rec).Message)
}

func TestE2EMemberCannotRenameAdminCan(t *testing.T) {
	e := newE2E(t)
	tokenA, _ := e.signUp(t, "a@example.com", "Alice")
	tokenB, _ := e.signUp(t, "b@example.com", "Bob")

	rec := doRequest(t, e.server, http.MethodPost, "/organizations", tokenA, map[string]string{"name": "Acme"})
	requireStatus(t, rec, http.StatusCreated)
	org := decodeJSON[orgdomain.OrganizationResponse](t, rec)
	orgPath := "/organizations/" + org.ID

	requireStatus(t, doRequest(t, e.server, http.MethodGet, orgPath, tokenB, nil), http.StatusNotFound)

	rec = doRequest(t, e.server, http.MethodPost, orgPath+"/members", tokenA, map[string]string{
		"email": "b@example.com",
		"role":  "MEMBER",
	})
	requireStatus(t, rec, http.StatusCreated)

	rec = doRequest(t, e.server, http.MethodPatch, orgPath, tokenB, map[string]string{"name": "Bob's Acme"})
	requireStatus(t, rec, http.StatusForbidden)

	rec = doRequest(t, e.server, http.MethodPatch, orgPath, tokenA, map[string]string{"name": "Acme Renamed"})
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, "Acme Renamed", decodeJSON[orgdomain.OrganizationResponse](t, rec).Name)

	rec = doRequest(t, e.server, http.MethodGet, orgPath, tokenB, nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Len(t, decodeJSON[orgdomain.OrganizationResponse](t, rec).Members, 2)

	rec = doRequest(t, e.server, http.MethodGet, orgPath+"/members", tokenB, nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Len(t, decodeJSON[[]orgdomain.MemberResponse](t, rec), 2)
}

func TestE2ESoleAdminCannotDeleteOrganization(t *testing.T) {
	e := newE2E(t)
	tokenA, profileA := e.signUp(t, "a@example.com", "Alice")
	e.signUp(t, "b@example.com", "Bob")

	orgPath := "/organizations/" + profileA.Memberships[0].OrganizationID
	requireStatus(t, doRequest(t, e.server, http.MethodPost, orgPath+"/members", tokenA, map[string]string{
		"email": "b@example.com",
		"role":  "MEMBER",
	}), http.StatusCreated)

	rec := doRequest(t, e.server, http.MethodDelete, orgPath, tokenA, nil)
	requireStatus(t, rec, http.StatusForbidden)
	assert.Equal(t, orgdomain.ErrSoleAdmin.Error(), decodeError(t, rec).Message)

	requireStatus(t, doRequest(t, e.server, http.MethodGet, orgPath, tokenA, nil), http.StatusOK)
}

func TestE2ELastAdminCannotBeRemoved(t *testing.T) {
	e := newE2E(t)
	tokenA, profileA := e.signUp(t, "a@example.com", "Alice")
	orgPath := "/organizations/" + profileA.Memberships[0].OrganizationID

	rec := doRequest(t, e.server, http.MethodDelete, orgPath+"/members/"+profileA.Memberships[0].ID, tokenA, nil)
	requireStatus(t, rec, http.StatusForbidden)

	rec = doRequest(t, e.server, http.MethodGet, orgPath+"/members", tokenA, nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Len(t, decodeJSON[[]orgdomain.MemberResponse](t, rec), 1)
}

func TestE2EAddMemberTwiceConflicts(t *testing.T) {
	e := newE2E(t)
	tokenA, profileA := e.signUp(t, "a@example.com", "Alice")
	e.signUp(t, "b@example.com", "Bob")
	path := "/organizations/" + profileA.Memberships[0].OrganizationID + "/members"
	body := map[string]string{"email": "b@example.com", "role": "ADMIN"}

	requireStatus(t, doRequest(t, e.server, http.MethodPost, path, tokenA, body), http.StatusCreated)
	requireStatus(t, doRequest(t, e.server, http.MethodPost, path, tokenA, body), http.StatusConflict)

	requireStatus(t, doRequest(t, e.server, http.MethodPost, path, tokenA, map[string]string{
		"email": "nobody@example.com",
		"role":  "MEMBER",
	}), http.StatusNotFound)
}
