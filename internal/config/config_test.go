package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidatesOnceRequiredFieldsAreSet(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err, "defaults alone omit relay_id/jwt_secret")

	cfg.RelayID = "relay-a"
	cfg.JWTSecret = "secret"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsDropLimitBelowWarnLimit(t *testing.T) {
	cfg := Default()
	cfg.RelayID = "relay-a"
	cfg.JWTSecret = "secret"
	cfg.WarnLimit = 100
	cfg.DropLimit = 50

	assert.Error(t, cfg.Validate())
}

func TestLoadWithEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/relay.toml")
	assert.Error(t, err)
}
