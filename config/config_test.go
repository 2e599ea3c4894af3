package config_test

import (
	"testing"
	"time"

	household "github.com/goliatone/go-household"
	"github.com/goliatone/go-household/config"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.GetLoadingTimeout())
	assert.Equal(t, household.DefaultGuestHouseholdID, cfg.GetGuestHouseholdID())
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Empty(t, cfg.PolicyRules)
}

func TestLoadFromOverrides(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{
		"HOUSEHOLD_LOADING_TIMEOUT":    "3s",
		"HOUSEHOLD_GUEST_HOUSEHOLD_ID": "demo-household",
		"HOUSEHOLD_TOKEN_AUDIENCE":     "web,mobile",
		"HOUSEHOLD_POLICY_RULES":       `notes:actor.role == "nanny";chores:record.anyone`,
	})
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.GetLoadingTimeout())
	assert.Equal(t, "demo-household", cfg.GetGuestHouseholdID())
	assert.Equal(t, []string{"web", "mobile"}, cfg.TokenAudience)

	rules, err := cfg.ExtraRules()
	require.NoError(t, err)
	assert.Equal(t, 1, rules.Len(household.FeatureNotes))
	assert.Equal(t, 1, rules.Len(household.FeatureChores))
}

func TestLoadFromInvalidDuration(t *testing.T) {
	_, err := config.LoadFrom(map[string]string{"HOUSEHOLD_LOADING_TIMEOUT": "soon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestExtraRulesRejectsMalformedEntries(t *testing.T) {
	cfg := config.Config{PolicyRules: []string{"no separator here"}}
	_, err := cfg.ExtraRules()
	require.Error(t, err)

	cfg = config.Config{PolicyRules: []string{"notes:actor.role +"}}
	_, err = cfg.ExtraRules()
	require.Error(t, err)
	assert.Equal(t, household.TextCodeInvalidPolicyRule, household.TextCode(err))
}

func TestLoadReadsProcessEnvironment(t *testing.T) {
	t.Setenv("HOUSEHOLD_HTTP_ADDR", ":9999")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
}

func TestRedactedHidesSigningKey(t *testing.T) {
	cfg := config.Config{SigningKey: "secret", HTTPAddr: ":8080"}

	redacted := cfg.Redacted()
	assert.NotEqual(t, "secret", redacted.SigningKey)
	assert.Equal(t, ":8080", redacted.HTTPAddr)
	assert.Equal(t, "secret", cfg.SigningKey)
}

func TestPersistenceSettings(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{})
	require.NoError(t, err)

	var pc persistence.Config = cfg
	assert.Equal(t, "sqlite", pc.GetDriver())
	assert.Equal(t, "file:household.db?cache=shared", pc.GetServer())
	assert.Equal(t, 5*time.Second, pc.GetPingTimeout())
	assert.False(t, pc.GetDebug())
	assert.Empty(t, pc.GetOtelIdentifier())

	cfg, err = config.LoadFrom(map[string]string{
		"HOUSEHOLD_DB_DSN":          "file::memory:",
		"HOUSEHOLD_DB_DEBUG":        "true",
		"HOUSEHOLD_DB_PING_TIMEOUT": "250ms",
		"HOUSEHOLD_DB_OTEL_NAME":    "household",
	})
	require.NoError(t, err)
	assert.Equal(t, "file::memory:", cfg.GetServer())
	assert.True(t, cfg.GetDebug())
	assert.Equal(t, 250*time.Millisecond, cfg.GetPingTimeout())
	assert.Equal(t, "household", cfg.GetOtelIdentifier())

	assert.Equal(t, 5*time.Second, config.Config{}.GetPingTimeout())
}
