package repository

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	household "github.com/goliatone/go-household"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfilesSaveAndFind(t *testing.T) {
	ctx := context.Background()
	profiles := setupManager(t).Profiles()

	require.NoError(t, profiles.SaveProfile(ctx, &household.UserProfile{
		ID:          "u1",
		Email:       "ana@home.test",
		Name:        "Ana",
		Role:        household.RoleFamily,
		HouseholdID: "h1",
	}))

	got, err := profiles.FindProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, &household.UserProfile{
		ID:          "u1",
		Email:       "ana@home.test",
		Name:        "Ana",
		Role:        household.RoleFamily,
		HouseholdID: "h1",
	}, got)

	require.NoError(t, profiles.SaveProfile(ctx, &household.UserProfile{
		ID:          "u1",
		Name:        "Ana M",
		Role:        household.RoleRoommate,
		HouseholdID: "h2",
	}))

	got, err = profiles.FindProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana M", got.Name)
	assert.Equal(t, household.RoleRoommate, got.Role)
	assert.Equal(t, "h2", got.HouseholdID)
	assert.Empty(t, got.Email)
}

func TestProfilesFindMissing(t *testing.T) {
	profiles := setupManager(t).Profiles()

	got, err := profiles.FindProfile(context.Background(), "nobody")
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, household.IsProfileNotFound(err))
}

func TestProfilesSaveRejects(t *testing.T) {
	ctx := context.Background()
	profiles := setupManager(t).Profiles()

	err := profiles.SaveProfile(ctx, nil)
	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryBadInput, richErr.Category)

	assert.Error(t, profiles.SaveProfile(ctx, &household.UserProfile{Name: "x", Role: household.RoleFamily}))

	guest := household.NewGuestIdentity("", testTime)
	assert.Error(t, profiles.SaveProfile(ctx, guest.Profile))
	assert.Error(t, profiles.SaveProfile(ctx, &household.UserProfile{ID: "u1", Role: "admin"}))
}

func TestProfilesListByHousehold(t *testing.T) {
	ctx := context.Background()
	profiles := setupManager(t).Profiles()

	for _, p := range []*household.UserProfile{
		{ID: "u1", Name: "Zoe", Role: household.RoleChild, HouseholdID: "h1"},
		{ID: "u2", Name: "Ana", Role: household.RoleFamily, HouseholdID: "h1"},
		{ID: "u3", Name: "Bob", Role: household.RoleFamily, HouseholdID: "h2"},
	} {
		require.NoError(t, profiles.SaveProfile(ctx, p))
	}

	members, err := profiles.ListByHousehold(ctx, "h1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "Ana", members[0].Name)
	assert.Equal(t, "Zoe", members[1].Name)

	members, err = profiles.ListByHousehold(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, members)

	_, err = profiles.ListByHousehold(ctx, "")
	assert.ErrorIs(t, err, household.ErrHouseholdNotSet)
}

func TestProfilesUpdateDisplay(t *testing.T) {
	ctx := context.Background()
	profiles := setupManager(t).Profiles()

	require.NoError(t, profiles.SaveProfile(ctx, &household.UserProfile{
		ID: "u1", Name: "Ana", Role: household.RoleNanny, HouseholdID: "h1", About: "hello",
	}))

	name := "Ana Maria"
	require.NoError(t, profiles.UpdateDisplay(ctx, "u1", household.ProfileUpdate{Name: &name}))

	got, err := profiles.FindProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", got.Name)
	assert.Equal(t, "hello", got.About)
	assert.Equal(t, household.RoleNanny, got.Role)

	assert.NoError(t, profiles.UpdateDisplay(ctx, "u1", household.ProfileUpdate{}))

	err = profiles.UpdateDisplay(ctx, "ghost", household.ProfileUpdate{Name: &name})
	assert.True(t, household.IsProfileNotFound(err))
}

func TestProfilesBackResolver(t *testing.T) {
	ctx := context.Background()
	profiles := setupManager(t).Profiles()

	require.NoError(t, profiles.SaveProfile(ctx, &household.UserProfile{
		ID: "u1", Name: "Ana", Role: household.RoleFamily, HouseholdID: "h1",
	}))

	resolver := household.NewProfileResolver(profiles)

	res, err := resolver.Resolve(ctx, &household.Session{SubjectID: "u1", Email: "ana@home.test"})
	require.NoError(t, err)
	assert.Equal(t, household.ResolveHydrated, res.Outcome)
	assert.Equal(t, "ana@home.test", res.Profile.Email)

	res, err = resolver.Resolve(ctx, &household.Session{SubjectID: "u2"})
	require.NoError(t, err)
	assert.Equal(t, household.ResolveNotFoundYet, res.Outcome)
}

func TestProfileKey(t *testing.T) {
	subject := "4a1f9d0e-6c0b-4f7e-8d7b-2a9c3e5f1b20"
	assert.Equal(t, subject, ProfileKey(subject).String())

	assert.Equal(t, ProfileKey("u1"), ProfileKey("u1"))
	assert.NotEqual(t, ProfileKey("u1"), ProfileKey("u2"))
}

func TestProfilesGenericRepository(t *testing.T) {
	ctx := context.Background()
	profiles := setupManager(t).Profiles()

	require.NoError(t, profiles.SaveProfile(ctx, &household.UserProfile{
		ID: "u1", Name: "Ana", Role: household.RoleFamily, HouseholdID: "h1",
	}))

	record, err := profiles.GetByIdentifier(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ProfileKey("u1"), record.ID)
	assert.Equal(t, "u1", record.SubjectID)
	assert.False(t, record.CreatedAt.IsZero())

	require.NoError(t, profiles.SaveProfile(ctx, &household.UserProfile{
		ID: "u1", Name: "Ana", Role: household.RoleNanny, HouseholdID: "h1",
	}))

	records, total, err := profiles.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, string(household.RoleNanny), records[0].Role)
}
