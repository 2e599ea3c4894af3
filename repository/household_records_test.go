package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	household "github.com/goliatone/go-household"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func raw(values ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(values))
	for i, v := range values {
		out[i] = json.RawMessage(v)
	}
	return out
}

func TestHouseholdRecordsReplaceKeepsOrder(t *testing.T) {
	ctx := context.Background()
	records := setupManager(t).Records()

	require.NoError(t, records.Replace(ctx, "h1", "notes", raw(`{"id":"c"}`, `{"id":"a"}`, `{"id":"b"}`)))

	got, err := records.List(ctx, "h1", "notes")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.JSONEq(t, `{"id":"c"}`, string(got[0]))
	assert.JSONEq(t, `{"id":"a"}`, string(got[1]))
	assert.JSONEq(t, `{"id":"b"}`, string(got[2]))

	require.NoError(t, records.Replace(ctx, "h1", "notes", raw(`{"id":"a"}`)))
	got, err = records.List(ctx, "h1", "notes")
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.NoError(t, records.Replace(ctx, "h1", "notes", nil))
	got, err = records.List(ctx, "h1", "notes")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHouseholdRecordsPartitions(t *testing.T) {
	ctx := context.Background()
	records := setupManager(t).Records()

	require.NoError(t, records.Replace(ctx, "h1", "bills", raw(`{"id":"rent"}`)))
	require.NoError(t, records.Replace(ctx, "h2", "bills", raw(`{"id":"power"}`)))
	require.NoError(t, records.Replace(ctx, "h1", "tasks", raw(`{"id":"mop"}`)))

	got, err := records.List(ctx, "h2", "bills")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"id":"power"}`, string(got[0]))

	got, err = records.List(ctx, "h1", "goals")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHouseholdRecordsRejects(t *testing.T) {
	ctx := context.Background()
	records := setupManager(t).Records()

	_, err := records.List(ctx, "", "notes")
	assert.ErrorIs(t, err, household.ErrHouseholdNotSet)
	assert.ErrorIs(t, records.Replace(ctx, "", "notes", nil), household.ErrHouseholdNotSet)

	require.NoError(t, records.Replace(ctx, "h1", "notes", raw(`{"id":"keep"}`)))
	assert.Error(t, records.Replace(ctx, "h1", "notes", raw(`{"id":"new"}`, `{broken`)))

	got, err := records.List(ctx, "h1", "notes")
	require.NoError(t, err)
	require.Len(t, got, 1, "a rejected replace leaves the collection untouched")
	assert.JSONEq(t, `{"id":"keep"}`, string(got[0]))
}

type chore struct {
	household.ShareableRecord
	Title string `json:"title"`
}

func TestHouseholdRecordsBackScopedCollections(t *testing.T) {
	ctx := context.Background()
	records := setupManager(t).Records()
	policy := household.NewAccessPolicy()

	parent := &household.UserProfile{ID: "mom", Name: "Maria", Role: household.RoleFamily, HouseholdID: "h1"}
	child := &household.UserProfile{ID: "kai", Name: "Kai", Role: household.RoleChild, HouseholdID: "h1"}

	chores := household.NewCollection[chore](household.NewScopedStore(records, nil, parent), household.FeatureChores)
	require.NoError(t, chores.Replace(ctx, []chore{
		{ShareableRecord: household.ShareableRecord{ID: "1", Feature: household.FeatureChores, HouseholdID: "h1", CreatorID: "mom", Recipient: household.Recipient{ID: "kai"}}, Title: "dishes"},
		{ShareableRecord: household.ShareableRecord{ID: "2", Feature: household.FeatureChores, HouseholdID: "h1", CreatorID: "mom", Recipient: household.Recipient{ID: "zoe"}}, Title: "laundry"},
	}))

	actor, ok := household.ActorFromProfile(child)
	require.True(t, ok)

	kidChores := household.NewCollection[chore](household.NewScopedStore(records, nil, child), household.FeatureChores)
	visible, err := kidChores.ListVisible(ctx, policy, actor, func(c chore) household.ShareableRecord { return c.ShareableRecord })
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "dishes", visible[0].Title)
}

func TestHouseholdRecordsUpdate(t *testing.T) {
	ctx := context.Background()
	records := setupManager(t).Records()

	require.NoError(t, records.Replace(ctx, "h1", "notes", raw(`{"id":"a"}`)))

	err := records.Update(ctx, "h1", "notes", func(current []json.RawMessage) ([]json.RawMessage, error) {
		require.Len(t, current, 1)
		return append(current, json.RawMessage(`{"id":"b"}`)), nil
	})
	require.NoError(t, err)

	got, err := records.List(ctx, "h1", "notes")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.JSONEq(t, `{"id":"b"}`, string(got[1]))

	err = records.Update(ctx, "", "notes", func(current []json.RawMessage) ([]json.RawMessage, error) {
		return current, nil
	})
	assert.ErrorIs(t, err, household.ErrHouseholdNotSet)
}

func TestHouseholdRecordsUpdateRollsBack(t *testing.T) {
	ctx := context.Background()
	records := setupManager(t).Records()

	require.NoError(t, records.Replace(ctx, "h1", "notes", raw(`{"id":"a"}`)))

	boom := assert.AnError
	err := records.Update(ctx, "h1", "notes", func(current []json.RawMessage) ([]json.RawMessage, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	err = records.Update(ctx, "h1", "notes", func(current []json.RawMessage) ([]json.RawMessage, error) {
		return raw(`{"id":`), nil
	})
	assert.Error(t, err)

	got, err := records.List(ctx, "h1", "notes")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"id":"a"}`, string(got[0]))
}
