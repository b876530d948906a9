// Package testenv wires the services against an in-memory database for
// integration tests.
package testenv

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/tenantry/internal/auth/domain"
	authrepository "github.com/smallbiznis/tenantry/internal/auth/repository"
	authservice "github.com/smallbiznis/tenantry/internal/auth/service"
	"github.com/smallbiznis/tenantry/internal/auth/token"
	"github.com/smallbiznis/tenantry/internal/authorization"
	"github.com/smallbiznis/tenantry/internal/clock"
	"github.com/smallbiznis/tenantry/internal/config"
	"github.com/smallbiznis/tenantry/internal/migration"
	orgdomain "github.com/smallbiznis/tenantry/internal/organization/domain"
	"github.com/smallbiznis/tenantry/internal/organization/event"
	orgrepository "github.com/smallbiznis/tenantry/internal/organization/repository"
	orgservice "github.com/smallbiznis/tenantry/internal/organization/service"
	"github.com/smallbiznis/tenantry/internal/seed"
	"github.com/smallbiznis/tenantry/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// DefaultPassword is used by Register.
const DefaultPassword = "password123"

type Env struct {
	DB     *gorm.DB
	Clock  *clock.FakeClock
	GenID  *snowflake.Node
	Config config.Config

	Tokens  *token.Issuer
	Users   authdomain.Repository
	Auth    authdomain.Service
	OrgRepo orgdomain.Repository
	Orgs    *orgservice.Service
	Authz   authorization.Service
	Seeder  *seed.Seeder
}

// Option adjusts the environment before services are built.
type Option func(*options)

type options struct {
	skipPlans bool
}

// WithoutPlans leaves organization_plans empty.
func WithoutPlans() Option {
	return func(o *options) { o.skipPlans = true }
}

func New(t testing.TB, opts ...Option) *Env {
	t.Helper()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	log := zaptest.NewLogger(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))

	cfg := config.Config{
		Environment: "test",
		Auth: config.AuthConfig{
			JWTSecret:     "test-secret",
			JWTIssuer:     "tenantry",
			JWTExpiration: time.Hour,
		},
	}

	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer})

	orgRepo := orgrepository.NewRepository(conn)
	orgs := orgservice.NewService(orgservice.Params{
		DB:        conn,
		Log:       log,
		Repo:      orgRepo,
		GenID:     node,
		Publisher: event.NewOutboxPublisher(conn, node),
		Authz:     authz,
		Clock:     clk,
	})

	issuer, err := token.NewIssuer(cfg, clk)
	require.NoError(t, err)

	users := authrepository.New(conn)
	auth := authservice.New(authservice.Params{
		DB:          conn,
		Log:         log,
		Repo:        users,
		Provisioner: orgs,
		Tokens:      issuer,
		GenID:       node,
		Clock:       clk,
	})

	seeder := seed.New(seed.Params{
		DB:          conn,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Users:       users,
		Provisioner: orgs,
	})
	if !o.skipPlans {
		require.NoError(t, seeder.EnsurePlans(context.Background(), config.DefaultPlanCatalog()))
	}

	return &Env{
		DB:      conn,
		Clock:   clk,
		GenID:   node,
		Config:  cfg,
		Tokens:  issuer,
		Users:   users,
		Auth:    auth,
		OrgRepo: orgRepo,
		Orgs:    orgs,
		Authz:   authz,
		Seeder:  seeder,
	}
}

// Register creates a user with DefaultPassword and advances the clock so
// later rows sort after it.
func (e *Env) Register(t testing.TB, email, name string) *authdomain.Profile {
	t.Helper()
	profile, err := e.Auth.Register(context.Background(), authdomain.RegisterRequest{
		Email:    email,
		Password: DefaultPassword,
		Name:     name,
	})
	require.NoError(t, err)
	e.Clock.Advance(time.Second)
	return profile
}

// UserID parses the id of a profile.
func UserID(t testing.TB, profile *authdomain.Profile) snowflake.ID {
	t.Helper()
	id, err := snowflake.ParseString(profile.ID)
	require.NoError(t, err)
	return id
}

// ParseID parses a decimal snowflake id.
func ParseID(t testing.TB, raw string) snowflake.ID {
	t.Helper()
	id, err := snowflake.ParseString(raw)
	require.NoError(t, err)
	return id
}

// Count returns the number of rows in table matching where.
func (e *Env) Count(t testing.TB, table string, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := e.DB.Table(table)
	if where != "" {
		q = q.Where(where, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}
