package service_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	orgdomain "github.com/smallbiznis/tenantry/internal/organization/domain"
	"github.com/smallbiznis/tenantry/internal/testenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	env   *testenv.Env
	admin snowflake.ID
	orgID snowflake.ID
}

// newFixture registers an admin whose organization is returned as orgID.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := testenv.New(t)
	profile := env.Register(t, "admin@example.com", "Admin")
	return &fixture{
		env:   env,
		admin: testenv.UserID(t, profile),
		orgID: testenv.ParseID(t, profile.Memberships[0].OrganizationID),
	}
}

func (f *fixture) addMember(t *testing.T, email, name, role string) (snowflake.ID, *orgdomain.MemberResponse) {
	t.Helper()
	profile := f.env.Register(t, email, name)
	member, err := f.env.Orgs.AddMember(context.Background(), f.orgID, f.admin, orgdomain.AddMemberRequest{
		Email: email,
		Role:  role,
	})
	require.NoError(t, err)
	return testenv.UserID(t, profile), member
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	org, err := f.env.Orgs.Create(ctx, f.admin, orgdomain.CreateOrganizationRequest{Name: "  Acme Widgets "})
	require.NoError(t, err)

	assert.Equal(t, "Acme Widgets", org.Name)
	assert.Equal(t, "acme-widgets", org.Slug)
	require.NotNil(t, org.Plan)
	assert.Equal(t, "Free", org.Plan.Name)
	assert.Equal(t, json.Number("1"), org.Plan.Features["max_users"])
	require.Len(t, org.Members, 1)
	assert.Equal(t, orgdomain.RoleAdmin, org.Members[0].Role)
	assert.Equal(t, f.admin.String(), org.Members[0].User.ID)
	assert.Equal(t, "admin@example.com", org.Members[0].User.Email)
	assert.Equal(t, orgdomain.ResourceCounts{}, org.Counts)
}

func TestCreateValidatesName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"", " ", "A", string(make([]rune, 101))} {
		_, err := f.env.Orgs.Create(ctx, f.admin, orgdomain.CreateOrganizationRequest{Name: name})
		assert.ErrorIs(t, err, orgdomain.ErrInvalidName, "%q", name)
	}
}

func TestProvisionValidatesName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"", "A", strings.Repeat("x", orgdomain.MaxNameLength+1)} {
		_, err := f.env.Orgs.Provision(ctx, f.env.DB, orgdomain.ProvisionRequest{OwnerID: f.admin, Name: name})
		assert.ErrorIs(t, err, orgdomain.ErrInvalidName, "%q", name)
	}
	assert.EqualValues(t, 1, f.env.Count(t, "organizations", ""))
}

func TestCreateWithoutFreePlan(t *testing.T) {
	env := testenv.New(t)
	profile := env.Register(t, "a@x.com", "A")
	require.NoError(t, env.DB.Exec(`DELETE FROM organization_plans WHERE name = ?`, "Free").Error)

	_, err := env.Orgs.Create(context.Background(), testenv.UserID(t, profile), orgdomain.CreateOrganizationRequest{Name: "Beta"})
	assert.ErrorIs(t, err, orgdomain.ErrDefaultPlanMissing)
	assert.EqualValues(t, 1, env.Count(t, "organizations", ""))
}

func TestListReturnsOnlyMemberships(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	outsider := testenv.UserID(t, f.env.Register(t, "outsider@example.com", "Outsider"))

	_, err := f.env.Orgs.Create(ctx, f.admin, orgdomain.CreateOrganizationRequest{Name: "Second"})
	require.NoError(t, err)

	orgs, err := f.env.Orgs.List(ctx, f.admin)
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, "Admin's Organization", orgs[0].Name)
	assert.Equal(t, "Second", orgs[1].Name)

	orgs, err = f.env.Orgs.List(ctx, outsider)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, "Outsider's Organization", orgs[0].Name)
}

func TestGetCountsResources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.env.DB.Create(&orgdomain.Content{ID: f.env.GenID.Generate(), OrgID: f.orgID}).Error)
	require.NoError(t, f.env.DB.Create(&orgdomain.Content{ID: f.env.GenID.Generate(), OrgID: f.orgID}).Error)
	require.NoError(t, f.env.DB.Create(&orgdomain.PlatformIdentity{ID: f.env.GenID.Generate(), OrgID: f.orgID}).Error)

	org, err := f.env.Orgs.Get(ctx, f.orgID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, orgdomain.ResourceCounts{Content: 2, PlatformIdentities: 1}, org.Counts)
}

func TestGetHidesOrganizationFromNonMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	outsider := testenv.UserID(t, f.env.Register(t, "outsider@example.com", "Outsider"))

	org, err := f.env.Orgs.Get(ctx, f.orgID, outsider)
	assert.ErrorIs(t, err, orgdomain.ErrOrganizationNotFound)
	assert.Nil(t, org)

	_, err = f.env.Orgs.Get(ctx, f.env.GenID.Generate(), f.admin)
	assert.ErrorIs(t, err, orgdomain.ErrOrganizationNotFound)

	_, err = f.env.Orgs.Get(ctx, 0, f.admin)
	assert.ErrorIs(t, err, orgdomain.ErrOrganizationNotFound)
}

func TestUpdateRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member, _ := f.addMember(t, "member@example.com", "Member", orgdomain.RoleMember)
	name := "Renamed"

	_, err := f.env.Orgs.Update(ctx, f.orgID, member, orgdomain.UpdateOrganizationRequest{Name: &name})
	assert.ErrorIs(t, err, orgdomain.ErrAdminRequired)

	org, err := f.env.Orgs.Update(ctx, f.orgID, f.admin, orgdomain.UpdateOrganizationRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", org.Name)
	assert.Equal(t, "renamed", org.Slug)

	org, err = f.env.Orgs.Update(ctx, f.orgID, f.admin, orgdomain.UpdateOrganizationRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", org.Name)

	short := "x"
	_, err = f.env.Orgs.Update(ctx, f.orgID, f.admin, orgdomain.UpdateOrganizationRequest{Name: &short})
	assert.ErrorIs(t, err, orgdomain.ErrInvalidName)
}

func TestUpdateRechecksRoleOnEveryCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	second, member := f.addMember(t, "second@example.com", "Second", orgdomain.RoleAdmin)
	name := "By Second"

	_, err := f.env.Orgs.Update(ctx, f.orgID, second, orgdomain.UpdateOrganizationRequest{Name: &name})
	require.NoError(t, err)

	require.NoError(t, f.env.Orgs.RemoveMember(ctx, f.orgID, testenv.ParseID(t, member.ID), f.admin))

	_, err = f.env.Orgs.Update(ctx, f.orgID, second, orgdomain.UpdateOrganizationRequest{Name: &name})
	assert.ErrorIs(t, err, orgdomain.ErrAdminRequired)
}

func TestRemoveWithSingleAdminIsForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addMember(t, "member@example.com", "Member", orgdomain.RoleMember)

	err := f.env.Orgs.Remove(ctx, f.orgID, f.admin)
	assert.ErrorIs(t, err, orgdomain.ErrSoleAdmin)
	assert.EqualValues(t, 1, f.env.Count(t, "organizations", "id = ?", f.orgID))
	assert.EqualValues(t, 2, f.env.Count(t, "organization_members", "org_id = ?", f.orgID))
}

func TestRemoveSoloOrganizationIsForbidden(t *testing.T) {
	f := newFixture(t)

	err := f.env.Orgs.Remove(context.Background(), f.orgID, f.admin)
	assert.ErrorIs(t, err, orgdomain.ErrSoleAdmin)
}

func TestRemoveWithTwoAdmins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member, _ := f.addMember(t, "member@example.com", "Member", orgdomain.RoleMember)
	f.addMember(t, "second@example.com", "Second", orgdomain.RoleAdmin)

	err := f.env.Orgs.Remove(ctx, f.orgID, member)
	assert.ErrorIs(t, err, orgdomain.ErrAdminRequired)

	require.NoError(t, f.env.Orgs.Remove(ctx, f.orgID, f.admin))
	assert.EqualValues(t, 0, f.env.Count(t, "organizations", "id = ?", f.orgID))
	assert.EqualValues(t, 0, f.env.Count(t, "organization_members", "org_id = ?", f.orgID))
	assert.EqualValues(t, 1, f.env.Count(t, "organization_events", "org_id = ? AND event_type = ?", f.orgID, "organization.deleted"))

	_, err = f.env.Orgs.Get(ctx, f.orgID, f.admin)
	assert.ErrorIs(t, err, orgdomain.ErrOrganizationNotFound)
}

func TestRemoveUnknownOrganization(t *testing.T) {
	f := newFixture(t)

	err := f.env.Orgs.Remove(context.Background(), f.env.GenID.Generate(), f.admin)
	assert.ErrorIs(t, err, orgdomain.ErrAdminRequired)
}

func TestListMembersRequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member, _ := f.addMember(t, "member@example.com", "Member", orgdomain.RoleMember)
	outsider := testenv.UserID(t, f.env.Register(t, "outsider@example.com", "Outsider"))

	members, err := f.env.Orgs.ListMembers(ctx, f.orgID, member)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, orgdomain.RoleAdmin, members[0].Role)
	assert.Equal(t, "member@example.com", members[1].User.Email)

	_, err = f.env.Orgs.ListMembers(ctx, f.orgID, outsider)
	assert.ErrorIs(t, err, orgdomain.ErrForbidden)
}

func TestAddMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := testenv.UserID(t, f.env.Register(t, "Bob@Example.com", "Bob"))

	member, err := f.env.Orgs.AddMember(ctx, f.orgID, f.admin, orgdomain.AddMemberRequest{
		Email: "bob@example.com",
		Role:  "member",
	})
	require.NoError(t, err)
	assert.Equal(t, orgdomain.RoleMember, member.Role)
	assert.Equal(t, userID.String(), member.UserID)
	assert.Equal(t, "Bob", member.User.Name)
	assert.EqualValues(t, 1, f.env.Count(t, "organization_events", "org_id = ? AND event_type = ?", f.orgID, "organization.member_added"))
}

func TestAddMemberTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addMember(t, "bob@example.com", "Bob", orgdomain.RoleMember)

	_, err := f.env.Orgs.AddMember(ctx, f.orgID, f.admin, orgdomain.AddMemberRequest{
		Email: "bob@example.com",
		Role:  orgdomain.RoleAdmin,
	})
	assert.ErrorIs(t, err, orgdomain.ErrAlreadyMember)
	assert.EqualValues(t, 2, f.env.Count(t, "organization_members", "org_id = ?", f.orgID))
}

func TestAddMemberErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member, _ := f.addMember(t, "member@example.com", "Member", orgdomain.RoleMember)
	f.env.Register(t, "carol@example.com", "Carol")

	_, err := f.env.Orgs.AddMember(ctx, f.orgID, member, orgdomain.AddMemberRequest{Email: "carol@example.com", Role: orgdomain.RoleMember})
	assert.ErrorIs(t, err, orgdomain.ErrAdminRequired)

	_, err = f.env.Orgs.AddMember(ctx, f.orgID, f.admin, orgdomain.AddMemberRequest{Email: "ghost@example.com", Role: orgdomain.RoleMember})
	assert.ErrorIs(t, err, orgdomain.ErrUserNotFound)

	_, err = f.env.Orgs.AddMember(ctx, f.orgID, f.admin, orgdomain.AddMemberRequest{Email: "carol@example.com", Role: "OWNER"})
	assert.ErrorIs(t, err, orgdomain.ErrInvalidRole)

	_, err = f.env.Orgs.AddMember(ctx, f.orgID, f.admin, orgdomain.AddMemberRequest{Email: "carol", Role: orgdomain.RoleMember})
	assert.ErrorIs(t, err, orgdomain.ErrInvalidEmail)
}

func TestRemoveLastAdminIsForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addMember(t, "member@example.com", "Member", orgdomain.RoleMember)

	membership, err := f.env.OrgRepo.FindMembership(ctx, f.orgID, f.admin)
	require.NoError(t, err)

	err = f.env.Orgs.RemoveMember(ctx, f.orgID, membership.ID, f.admin)
	assert.ErrorIs(t, err, orgdomain.ErrLastAdmin)

	_, err = f.env.OrgRepo.FindMembership(ctx, f.orgID, f.admin)
	assert.NoError(t, err, "membership stays intact")
}

func TestRemoveMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	memberUser, member := f.addMember(t, "member@example.com", "Member", orgdomain.RoleMember)
	_, other := f.addMember(t, "other@example.com", "Other", orgdomain.RoleMember)

	err := f.env.Orgs.RemoveMember(ctx, f.orgID, testenv.ParseID(t, other.ID), memberUser)
	assert.ErrorIs(t, err, orgdomain.ErrAdminRequired)

	err = f.env.Orgs.RemoveMember(ctx, f.orgID, f.env.GenID.Generate(), f.admin)
	assert.ErrorIs(t, err, orgdomain.ErrMemberNotFound)

	require.NoError(t, f.env.Orgs.RemoveMember(ctx, f.orgID, testenv.ParseID(t, member.ID), f.admin))
	_, err = f.env.OrgRepo.FindMembership(ctx, f.orgID, memberUser)
	assert.ErrorIs(t, err, orgdomain.ErrMemberNotFound)
}

func TestRemoveMemberFromAnotherOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	otherProfile := f.env.Register(t, "other@example.com", "Other")
	otherOrg := testenv.ParseID(t, otherProfile.Memberships[0].OrganizationID)

	foreign, err := f.env.OrgRepo.FindMembership(ctx, otherOrg, testenv.UserID(t, otherProfile))
	require.NoError(t, err)

	err = f.env.Orgs.RemoveMember(ctx, f.orgID, foreign.ID, f.admin)
	assert.ErrorIs(t, err, orgdomain.ErrMemberNotFound)
}

func TestRemoveOneOfTwoAdmins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, second := f.addMember(t, "second@example.com", "Second", orgdomain.RoleAdmin)

	require.NoError(t, f.env.Orgs.RemoveMember(ctx, f.orgID, testenv.ParseID(t, second.ID), f.admin))

	admins, err := f.env.OrgRepo.CountAdmins(ctx, f.orgID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, admins)
}
