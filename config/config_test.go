package config

import (
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perseid-labs/txengine/recovery"
	"github.com/perseid-labs/txengine/retry"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	rc := cfg.RetryConfig()
	assert.Equal(t, 3, rc.MaxRetries)
	assert.Equal(t, time.Second, rc.BaseDelay)
	assert.Equal(t, 30*time.Second, rc.MaxDelay)
	assert.Equal(t, uint32(20_000), rc.DelayMultiplierBps)
	assert.Equal(t, retry.StrategyExponential, rc.Strategy)

	sc := cfg.StatusConfig()
	assert.Equal(t, uint32(3), sc.ConfirmationTarget)
	assert.Equal(t, 3*time.Second, sc.BlockPeriod)
	assert.Equal(t, 50, sc.UpdateHistoryCap)

	vc := cfg.RecoveryConfig()
	assert.Equal(t, 5*time.Minute, vc.StuckThreshold)
	assert.Equal(t, uint32(11_000), vc.CancelFeeBps)
	assert.Equal(t, uint32(15_000), vc.SpeedUpFeeBps)
	assert.False(t, vc.AutoRecovery)
	assert.Equal(t, []recovery.ActionKind{recovery.ActionSpeedUp, recovery.ActionCancel}, vc.AutoRecoveryOrder)

	assert.Equal(t, 10*time.Minute, cfg.RetentionPeriod())
	assert.Equal(t, time.Minute, cfg.ReapInterval())

	assert.True(t, cfg.IsEnabled())
}

func TestUnmarshalTOML(t *testing.T) {
	doc := `
NetworkID = "mainnet"

[Retry]
MaxRetries = 5
BaseDelay = "2s"
Strategy = "linear"

[Status]
ConfirmationTarget = 6

[Recovery]
StuckThreshold = "1m"
CancelFeeBps = 12000
AutoRecovery = true
AutoRecoveryOrder = ["cancel"]

[Engine]
ReapInterval = "30s"
`
	var cfg TOMLConfig
	require.NoError(t, toml.Unmarshal([]byte(doc), &cfg))
	cfg.SetDefaults()
	require.NoError(t, cfg.ValidateConfig())

	assert.Equal(t, "mainnet", *cfg.NetworkID)

	rc := cfg.RetryConfig()
	assert.Equal(t, 5, rc.MaxRetries)
	assert.Equal(t, 2*time.Second, rc.BaseDelay)
	assert.Equal(t, retry.StrategyLinear, rc.Strategy)
	// Untouched fields keep defaults.
	assert.Equal(t, 30*time.Second, rc.MaxDelay)

	assert.Equal(t, uint32(6), cfg.StatusConfig().ConfirmationTarget)

	vc := cfg.RecoveryConfig()
	assert.Equal(t, time.Minute, vc.StuckThreshold)
	assert.Equal(t, uint32(12_000), vc.CancelFeeBps)
	assert.True(t, vc.AutoRecovery)
	assert.Equal(t, []recovery.ActionKind{recovery.ActionCancel}, vc.AutoRecoveryOrder)

	assert.Equal(t, 30*time.Second, cfg.ReapInterval())
}

func TestValidateConfig(t *testing.T) {
	cfg := NewDefault()
	require.Error(t, cfg.ValidateConfig(), "NetworkID is required")

	networkID := "mainnet"
	cfg.NetworkID = &networkID
	require.NoError(t, cfg.ValidateConfig())

	bad := "quadratic"
	cfg.Retry.Strategy = &bad
	require.Error(t, cfg.ValidateConfig())
	good := retry.StrategyFixed
	cfg.Retry.Strategy = &good
	require.NoError(t, cfg.ValidateConfig())

	lowFee := uint32(9_000)
	cfg.Recovery.SpeedUpFeeBps = &lowFee
	require.Error(t, cfg.ValidateConfig())
	okFee := uint32(15_000)
	cfg.Recovery.SpeedUpFeeBps = &okFee
	require.NoError(t, cfg.ValidateConfig())

	cfg.Recovery.AutoRecoveryOrder = []string{"speed_up", "teleport"}
	require.Error(t, cfg.ValidateConfig())
	cfg.Recovery.AutoRecoveryOrder = []string{"speed_up"}
	require.NoError(t, cfg.ValidateConfig())

	negative := -1
	cfg.Retry.MaxRetries = &negative
	require.Error(t, cfg.ValidateConfig())
}

func TestSetFrom(t *testing.T) {
	base := NewDefault()
	networkID := "mainnet"
	base.NetworkID = &networkID

	override := &TOMLConfig{}
	maxRetries := 9
	override.Retry.MaxRetries = &maxRetries
	enabled := false
	override.Enabled = &enabled

	base.SetFrom(override)
	assert.Equal(t, 9, *base.Retry.MaxRetries)
	assert.Equal(t, "mainnet", *base.NetworkID)
	assert.False(t, base.IsEnabled())
	// Untouched sections keep their values.
	assert.Equal(t, uint32(11_000), *base.Recovery.CancelFeeBps)
}

func TestTOMLConfigs_DuplicateNetworkIDs(t *testing.T) {
	a, b := "mainnet", "mainnet"
	cs := TOMLConfigs{
		{NetworkID: &a},
		{NetworkID: &b},
	}
	require.Error(t, cs.ValidateConfig())

	c := "testnet"
	cs[1].NetworkID = &c
	require.NoError(t, cs.ValidateConfig())
}

func TestLoad(t *testing.T) {
	cfg, err := Load([]byte("NetworkID = \"mainnet\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "mainnet", *cfg.NetworkID)
	assert.Equal(t, 3, *cfg.Retry.MaxRetries)

	_, err = Load([]byte("NetworkID = 42\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse engine config")

	_, err = Load([]byte("[Retry]\nStrategy = \"quadratic\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid engine config")
}

func TestTOMLString(t *testing.T) {
	cfg := NewDefault()
	s, err := cfg.TOMLString()
	require.NoError(t, err)
	assert.Contains(t, s, "MaxRetries")
}
