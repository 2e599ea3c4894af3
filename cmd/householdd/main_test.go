package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	household "github.com/goliatone/go-household"
	"github.com/goliatone/go-household/config"
	"github.com/goliatone/go-household/repository"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newPagesApp(t *testing.T, viewer household.Viewer) *fiber.App {
	t.Helper()

	policy := household.NewAccessPolicy()
	guard := household.NewRouteGuard(policy, household.ViewerResolverFunc(func(router.Context) (household.Viewer, error) {
		return viewer, nil
	}))

	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		return fiber.New()
	})
	registerPages(srv.Router(), household.DefaultRouteTable(), guard)
	srv.Init()
	return srv.WrappedRouter()
}

func memberViewer(role household.Role) household.Viewer {
	return household.Viewer{
		Session: &household.Session{SubjectID: "u1"},
		Profile: &household.UserProfile{ID: "u1", Name: "Ana", Role: role, HouseholdID: "h1"},
	}
}

func TestPagesRenderViewForRole(t *testing.T) {
	app := newPagesApp(t, memberViewer(household.RoleChild))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.Equal(t, "kids-dashboard", page["view"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/bills", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, household.HomePath, resp.Header.Get("Location"))
}

func TestUnknownPagesAreGated(t *testing.T) {
	app := newPagesApp(t, memberViewer(household.RoleFamily))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/somewhere/else", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, household.HomePath, resp.Header.Get("Location"))

	anonymous := newPagesApp(t, household.Viewer{})
	resp, err = anonymous.Test(httptest.NewRequest(http.MethodGet, "/somewhere/else", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, household.LoginPath, resp.Header.Get("Location"))
}

func TestOpenPersistenceMigrates(t *testing.T) {
	ctx := context.Background()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqldb.Close() })

	cfg, err := config.LoadFrom(map[string]string{"HOUSEHOLD_DB_DSN": "file::memory:"})
	require.NoError(t, err)

	client, err := openPersistence(ctx, cfg, sqldb, newLogger("info").GetLogger("persistence"))
	require.NoError(t, err)

	manager := repository.NewManager(client.DB())
	require.NoError(t, manager.Validate())

	profile := &household.UserProfile{ID: "u1", Name: "Ana", Role: household.RoleFamily, HouseholdID: "h1"}
	require.NoError(t, manager.Profiles().SaveProfile(ctx, profile))

	got, err := manager.Profiles().FindProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.Name)
}
