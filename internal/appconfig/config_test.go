package appconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadAppliesEnvironmentOverride(t *testing.T) {
	t.Setenv("SHEPHERD_RPC_URL", "http://example.invalid:8899")
	t.Setenv("SHEPHERD_RETRY_COUNT", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "http://example.invalid:8899", cfg.RPCURL)
	require.Equal(t, uint32(7), cfg.RetryCount)
	require.Equal(t, 400*time.Millisecond, cfg.BlockhashInterval)
}
