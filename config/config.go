package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pelletier/go-toml/v2"
	commonconfig "github.com/smartcontractkit/chainlink-common/pkg/config"

	"github.com/perseid-labs/txengine/recovery"
	"github.com/perseid-labs/txengine/retry"
	"github.com/perseid-labs/txengine/status"
)

// Global engine defaults.
var defaultConfigSet = configSet{
	MaxRetries:         3,
	BaseDelay:          time.Second,
	MaxDelay:           30 * time.Second,
	DelayMultiplierBps: 20_000,
	JitterBps:          1_000,
	Strategy:           retry.StrategyExponential,

	ConfirmationTarget: 3,
	BlockPeriod:        3 * time.Second,
	StatusPollPeriod:   2 * time.Second,
	UpdateHistoryCap:   50,
	SubscriberBuffer:   64,

	StuckThreshold:      5 * time.Minute,
	RecoveryPollPeriod:  10 * time.Second,
	MaxRecoveryAttempts: 3,
	CancelFeeBps:        11_000,
	SpeedUpFeeBps:       15_000,
	ReplaceFeeBps:       15_000,
	AutoRecovery:        false,

	RetentionPeriod: 10 * time.Minute,
	ReapInterval:    time.Minute,
}

type configSet struct {
	MaxRetries         int
	BaseDelay          time.Duration
	MaxDelay           time.Duration
	DelayMultiplierBps uint32
	JitterBps          uint32
	Strategy           string

	ConfirmationTarget uint32
	BlockPeriod        time.Duration
	StatusPollPeriod   time.Duration
	UpdateHistoryCap   int
	SubscriberBuffer   int

	StuckThreshold      time.Duration
	RecoveryPollPeriod  time.Duration
	MaxRecoveryAttempts int
	CancelFeeBps        uint32
	SpeedUpFeeBps       uint32
	ReplaceFeeBps       uint32
	AutoRecovery        bool

	RetentionPeriod time.Duration
	ReapInterval    time.Duration
}

type RetryConfig struct {
	MaxRetries         *int
	BaseDelay          *commonconfig.Duration
	MaxDelay           *commonconfig.Duration
	DelayMultiplierBps *uint32
	JitterBps          *uint32
	Strategy           *string
}

func (c *RetryConfig) SetDefaults() {
	if c.MaxRetries == nil {
		c.MaxRetries = &defaultConfigSet.MaxRetries
	}
	if c.BaseDelay == nil {
		c.BaseDelay = commonconfig.MustNewDuration(defaultConfigSet.BaseDelay)
	}
	if c.MaxDelay == nil {
		c.MaxDelay = commonconfig.MustNewDuration(defaultConfigSet.MaxDelay)
	}
	if c.DelayMultiplierBps == nil {
		c.DelayMultiplierBps = &defaultConfigSet.DelayMultiplierBps
	}
	if c.JitterBps == nil {
		c.JitterBps = &defaultConfigSet.JitterBps
	}
	if c.Strategy == nil {
		c.Strategy = &defaultConfigSet.Strategy
	}
}

func (c *RetryConfig) ValidateConfig() (err error) {
	if c.MaxRetries != nil && *c.MaxRetries < 0 {
		err = errors.Join(err, fmt.Errorf("MaxRetries: must not be negative: %d", *c.MaxRetries))
	}
	if c.Strategy != nil {
		if _, serr := retry.ForName(*c.Strategy); serr != nil {
			err = errors.Join(err, serr)
		}
	}
	return
}

type StatusConfig struct {
	ConfirmationTarget *uint32
	BlockPeriod        *commonconfig.Duration
	PollPeriod         *commonconfig.Duration
	UpdateHistoryCap   *int
	SubscriberBuffer   *int
}

func (c *StatusConfig) SetDefaults() {
	if c.ConfirmationTarget == nil {
		c.ConfirmationTarget = &defaultConfigSet.ConfirmationTarget
	}
	if c.BlockPeriod == nil {
		c.BlockPeriod = commonconfig.MustNewDuration(defaultConfigSet.BlockPeriod)
	}
	if c.PollPeriod == nil {
		c.PollPeriod = commonconfig.MustNewDuration(defaultConfigSet.StatusPollPeriod)
	}
	if c.UpdateHistoryCap == nil {
		c.UpdateHistoryCap = &defaultConfigSet.UpdateHistoryCap
	}
	if c.SubscriberBuffer == nil {
		c.SubscriberBuffer = &defaultConfigSet.SubscriberBuffer
	}
}

func (c *StatusConfig) ValidateConfig() (err error) {
	if c.ConfirmationTarget != nil && *c.ConfirmationTarget == 0 {
		err = errors.Join(err, commonconfig.ErrEmpty{Name: "ConfirmationTarget", Msg: "must be at least 1"})
	}
	return
}

type RecoveryConfig struct {
	StuckThreshold      *commonconfig.Duration
	PollPeriod          *commonconfig.Duration
	MaxRecoveryAttempts *int
	CancelFeeBps        *uint32
	SpeedUpFeeBps       *uint32
	ReplaceFeeBps       *uint32
	AutoRecovery        *bool
	AutoRecoveryOrder   []string
}

func (c *RecoveryConfig) SetDefaults() {
	if c.StuckThreshold == nil {
		c.StuckThreshold = commonconfig.MustNewDuration(defaultConfigSet.StuckThreshold)
	}
	if c.PollPeriod == nil {
		c.PollPeriod = commonconfig.MustNewDuration(defaultConfigSet.RecoveryPollPeriod)
	}
	if c.MaxRecoveryAttempts == nil {
		c.MaxRecoveryAttempts = &defaultConfigSet.MaxRecoveryAttempts
	}
	if c.CancelFeeBps == nil {
		c.CancelFeeBps = &defaultConfigSet.CancelFeeBps
	}
	if c.SpeedUpFeeBps == nil {
		c.SpeedUpFeeBps = &defaultConfigSet.SpeedUpFeeBps
	}
	if c.ReplaceFeeBps == nil {
		c.ReplaceFeeBps = &defaultConfigSet.ReplaceFeeBps
	}
	if c.AutoRecovery == nil {
		c.AutoRecovery = &defaultConfigSet.AutoRecovery
	}
	if len(c.AutoRecoveryOrder) == 0 {
		c.AutoRecoveryOrder = []string{string(recovery.ActionSpeedUp), string(recovery.ActionCancel)}
	}
}

// Escalation factors below 100% would submit replacements guaranteed to lose
// the nonce race, so they are rejected outright.
func (c *RecoveryConfig) ValidateConfig() (err error) {
	for name, bps := range map[string]*uint32{
		"CancelFeeBps":  c.CancelFeeBps,
		"SpeedUpFeeBps": c.SpeedUpFeeBps,
		"ReplaceFeeBps": c.ReplaceFeeBps,
	} {
		if bps != nil && *bps < 10_000 {
			err = errors.Join(err, fmt.Errorf("%s: must be at least 10000 (100%%): %d", name, *bps))
		}
	}
	for i, kind := range c.AutoRecoveryOrder {
		switch recovery.ActionKind(kind) {
		case recovery.ActionCancel, recovery.ActionSpeedUp, recovery.ActionReplace, recovery.ActionRetry:
		default:
			err = errors.Join(err, fmt.Errorf("AutoRecoveryOrder.%d: unknown action kind: %q", i, kind))
		}
	}
	return
}

type EngineConfig struct {
	RetentionPeriod *commonconfig.Duration
	ReapInterval    *commonconfig.Duration
}

func (c *EngineConfig) SetDefaults() {
	if c.RetentionPeriod == nil {
		c.RetentionPeriod = commonconfig.MustNewDuration(defaultConfigSet.RetentionPeriod)
	}
	if c.ReapInterval == nil {
		c.ReapInterval = commonconfig.MustNewDuration(defaultConfigSet.ReapInterval)
	}
}

// TOMLConfig is the engine configuration for one network.
type TOMLConfig struct {
	NetworkID *string
	// Do not access directly, use [IsEnabled]
	Enabled  *bool
	Retry    RetryConfig
	Status   StatusConfig
	Recovery RecoveryConfig
	Engine   EngineConfig
}

func (c *TOMLConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

func (c *TOMLConfig) SetDefaults() {
	c.Retry.SetDefaults()
	c.Status.SetDefaults()
	c.Recovery.SetDefaults()
	c.Engine.SetDefaults()
}

func (c *TOMLConfig) SetFrom(f *TOMLConfig) {
	if f.NetworkID != nil {
		c.NetworkID = f.NetworkID
	}
	if f.Enabled != nil {
		c.Enabled = f.Enabled
	}
	setFromRetry(&c.Retry, &f.Retry)
	setFromStatus(&c.Status, &f.Status)
	setFromRecovery(&c.Recovery, &f.Recovery)
	setFromEngine(&c.Engine, &f.Engine)
}

func setFromRetry(c, f *RetryConfig) {
	if f.MaxRetries != nil {
		c.MaxRetries = f.MaxRetries
	}
	if f.BaseDelay != nil {
		c.BaseDelay = f.BaseDelay
	}
	if f.MaxDelay != nil {
		c.MaxDelay = f.MaxDelay
	}
	if f.DelayMultiplierBps != nil {
		c.DelayMultiplierBps = f.DelayMultiplierBps
	}
	if f.JitterBps != nil {
		c.JitterBps = f.JitterBps
	}
	if f.Strategy != nil {
		c.Strategy = f.Strategy
	}
}

func setFromStatus(c, f *StatusConfig) {
	if f.ConfirmationTarget != nil {
		c.ConfirmationTarget = f.ConfirmationTarget
	}
	if f.BlockPeriod != nil {
		c.BlockPeriod = f.BlockPeriod
	}
	if f.PollPeriod != nil {
		c.PollPeriod = f.PollPeriod
	}
	if f.UpdateHistoryCap != nil {
		c.UpdateHistoryCap = f.UpdateHistoryCap
	}
	if f.SubscriberBuffer != nil {
		c.SubscriberBuffer = f.SubscriberBuffer
	}
}

func setFromRecovery(c, f *RecoveryConfig) {
	if f.StuckThreshold != nil {
		c.StuckThreshold = f.StuckThreshold
	}
	if f.PollPeriod != nil {
		c.PollPeriod = f.PollPeriod
	}
	if f.MaxRecoveryAttempts != nil {
		c.MaxRecoveryAttempts = f.MaxRecoveryAttempts
	}
	if f.CancelFeeBps != nil {
		c.CancelFeeBps = f.CancelFeeBps
	}
	if f.SpeedUpFeeBps != nil {
		c.SpeedUpFeeBps = f.SpeedUpFeeBps
	}
	if f.ReplaceFeeBps != nil {
		c.ReplaceFeeBps = f.ReplaceFeeBps
	}
	if f.AutoRecovery != nil {
		c.AutoRecovery = f.AutoRecovery
	}
	if len(f.AutoRecoveryOrder) > 0 {
		c.AutoRecoveryOrder = f.AutoRecoveryOrder
	}
}

func setFromEngine(c, f *EngineConfig) {
	if f.RetentionPeriod != nil {
		c.RetentionPeriod = f.RetentionPeriod
	}
	if f.ReapInterval != nil {
		c.ReapInterval = f.ReapInterval
	}
}

func (c *TOMLConfig) ValidateConfig() error {
	var err error
	if c.NetworkID == nil {
		err = errors.Join(err, commonconfig.ErrMissing{Name: "NetworkID", Msg: "required for all networks"})
	} else if *c.NetworkID == "" {
		err = errors.Join(err, commonconfig.ErrEmpty{Name: "NetworkID", Msg: "required for all networks"})
	}
	err = errors.Join(err, c.Retry.ValidateConfig())
	err = errors.Join(err, c.Status.ValidateConfig())
	err = errors.Join(err, c.Recovery.ValidateConfig())
	return err
}

func (c *TOMLConfig) TOMLString() (string, error) {
	b, err := toml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// RetryConfig converts the TOML section to the orchestrator's config.
func (c *TOMLConfig) RetryConfig() retry.Config {
	return retry.Config{
		MaxRetries:         *c.Retry.MaxRetries,
		BaseDelay:          c.Retry.BaseDelay.Duration(),
		MaxDelay:           c.Retry.MaxDelay.Duration(),
		DelayMultiplierBps: *c.Retry.DelayMultiplierBps,
		JitterBps:          *c.Retry.JitterBps,
		Strategy:           *c.Retry.Strategy,
	}
}

// StatusConfig converts the TOML section to the tracker's config.
func (c *TOMLConfig) StatusConfig() status.Config {
	return status.Config{
		ConfirmationTarget: *c.Status.ConfirmationTarget,
		BlockPeriod:        c.Status.BlockPeriod.Duration(),
		PollPeriod:         c.Status.PollPeriod.Duration(),
		UpdateHistoryCap:   *c.Status.UpdateHistoryCap,
		SubscriberBuffer:   *c.Status.SubscriberBuffer,
	}
}

// RecoveryConfig converts the TOML section to the manager's config.
func (c *TOMLConfig) RecoveryConfig() recovery.Config {
	order := make([]recovery.ActionKind, 0, len(c.Recovery.AutoRecoveryOrder))
	for _, kind := range c.Recovery.AutoRecoveryOrder {
		order = append(order, recovery.ActionKind(kind))
	}
	return recovery.Config{
		StuckThreshold:      c.Recovery.StuckThreshold.Duration(),
		PollPeriod:          c.Recovery.PollPeriod.Duration(),
		MaxRecoveryAttempts: *c.Recovery.MaxRecoveryAttempts,
		CancelFeeBps:        *c.Recovery.CancelFeeBps,
		SpeedUpFeeBps:       *c.Recovery.SpeedUpFeeBps,
		ReplaceFeeBps:       *c.Recovery.ReplaceFeeBps,
		AutoRecovery:        *c.Recovery.AutoRecovery,
		AutoRecoveryOrder:   order,
	}
}

func (c *TOMLConfig) RetentionPeriod() time.Duration {
	return c.Engine.RetentionPeriod.Duration()
}

func (c *TOMLConfig) ReapInterval() time.Duration {
	return c.Engine.ReapInterval.Duration()
}

func NewDefault() *TOMLConfig {
	cfg := &TOMLConfig{}
	cfg.SetDefaults()
	return cfg
}
