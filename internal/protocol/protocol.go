package protocol

import (
	"time"
)

// Well-known protocol names. Trigger sources pick between these: the
// system-wide breaker and critical risk select the pause playbook, liquidity
// trouble selects liquidity protection, everything else risk containment.
const (
	EmergencyPause      = "emergency-pause"
	RiskContainment     = "risk-containment"
	LiquidityProtection = "liquidity-protection"
)

// Known action names. Each maps to a callback contract into the trading
// engine; the engine reports a status payload or fails.
const (
	ActionPauseAllTrading         = "pause-all-trading"
	ActionFreezeLiquidityOps      = "freeze-liquidity-operations"
	ActionHaltWithdrawals         = "halt-withdrawals"
	ActionReducePositionSizes     = "reduce-position-sizes"
	ActionIncreaseFeesTemporarily = "increase-fees-temporarily"
	ActionSwitchToBackupOracles   = "switch-to-backup-oracles"
	ActionActivateManualPricing   = "activate-manual-pricing"
	ActionNotifyGovernance        = "notify-governance"
	ActionActivateMultiSig        = "activate-multi-sig"
)

// Protocol is one named ordered-action playbook. Static configuration.
// RequiredApprovals is advisory: it is stamped on the execution record for
// audit but does not gate execution.
type Protocol struct {
	Name              string        `yaml:"name" json:"name"`
	TriggerCondition  string        `yaml:"trigger_condition" json:"trigger_condition"`
	Actions           []string      `yaml:"actions" json:"actions"`
	RequiredApprovals int           `yaml:"required_approvals" json:"required_approvals"`
	Budget            time.Duration `yaml:"budget" json:"budget"`
	Enabled           bool          `yaml:"enabled" json:"enabled"`
}

// DefaultProtocols returns the three standard playbooks.
func DefaultProtocols() []Protocol {
	return []Protocol{
		{
			Name:             EmergencyPause,
			TriggerCondition: "system-wide breaker open, critical risk, or active attack",
			Actions: []string{
				ActionPauseAllTrading,
				ActionHaltWithdrawals,
				ActionFreezeLiquidityOps,
				ActionNotifyGovernance,
				ActionActivateMultiSig,
			},
			RequiredApprovals: 2,
			Budget:            2 * time.Minute,
			Enabled:           true,
		},
		{
			Name:             LiquidityProtection,
			TriggerCondition: "liquidity ratio breach on any venue",
			Actions: []string{
				ActionFreezeLiquidityOps,
				ActionReducePositionSizes,
				ActionIncreaseFeesTemporarily,
				ActionNotifyGovernance,
			},
			RequiredApprovals: 1,
			Budget:            90 * time.Second,
			Enabled:           true,
		},
		{
			Name:             RiskContainment,
			TriggerCondition: "asset breaker trip or elevated risk level",
			Actions: []string{
				ActionReducePositionSizes,
				ActionSwitchToBackupOracles,
				ActionActivateManualPricing,
				ActionNotifyGovernance,
			},
			RequiredApprovals: 1,
			Budget:            90 * time.Second,
			Enabled:           true,
		},
	}
}

// KnownActions lists every action name with a defined callback contract.
func KnownActions() []string {
	return []string{
		ActionPauseAllTrading,
		ActionFreezeLiquidityOps,
		ActionHaltWithdrawals,
		ActionReducePositionSizes,
		ActionIncreaseFeesTemporarily,
		ActionSwitchToBackupOracles,
		ActionActivateManualPricing,
		ActionNotifyGovernance,
		ActionActivateMultiSig,
	}
}
