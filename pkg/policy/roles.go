// Package policy is the gate's decision point. It reconciles validation
// findings, risk classification, and the execution context's role and
// environment into a single verdict with a stable reason code.
//
// Every path is fail-closed: internal errors deny, unknown roles get the
// most restrictive policy, and the default classification already
// requires approval.
package policy

import (
	"github.com/oversight-labs/opsgate/pkg/contracts"
)

// RolePolicy bounds what a trust tier may do without a human.
type RolePolicy struct {
	// AllowedCategories is the whitelist of operational categories the
	// role may invoke at all. Commands outside it are denied
	// NotWhitelisted regardless of risk.
	AllowedCategories []contracts.Category `yaml:"allowed_categories"`
	// AutoApproveCeiling is the highest risk tier the role may run
	// without approval. Risk at or above the ceiling is held.
	AutoApproveCeiling contracts.RiskTier `yaml:"auto_approve_ceiling"`
}

// Allows reports whether the role policy whitelists the category.
func (p RolePolicy) Allows(cat contracts.Category) bool {
	for _, c := range p.AllowedCategories {
		if c == cat {
			return true
		}
	}
	return false
}

// DefaultRolePolicies is the built-in role/whitelist table. Read-only
// roles may only invoke query-class commands; wider tiers add categories
// and raise the auto-approve ceiling.
func DefaultRolePolicies() map[contracts.Role]RolePolicy {
	query := []contracts.Category{contracts.CategoryQuery}
	limited := append([]contracts.Category{}, query...)
	limited = append(limited, contracts.CategoryFileOperation, contracts.CategoryServiceManagement)
	supervised := append([]contracts.Category{}, limited...)
	supervised = append(supervised, contracts.CategoryProcessManagement, contracts.CategoryNetworkConfig)
	full := append([]contracts.Category{}, supervised...)
	full = append(full, contracts.CategorySecurityPolicy, contracts.CategoryUnknown)

	return map[contracts.Role]RolePolicy{
		contracts.RoleManualApproval: {
			AllowedCategories:  query,
			AutoApproveCeiling: contracts.RiskLow, // everything is held
		},
		contracts.RoleReadOnly: {
			AllowedCategories:  query,
			AutoApproveCeiling: contracts.RiskMedium,
		},
		contracts.RoleLimitedWrite: {
			AllowedCategories:  limited,
			AutoApproveCeiling: contracts.RiskMedium,
		},
		contracts.RoleSupervised: {
			AllowedCategories:  supervised,
			AutoApproveCeiling: contracts.RiskHigh,
		},
		contracts.RoleFullAuto: {
			AllowedCategories:  full,
			AutoApproveCeiling: contracts.RiskCritical, // critical still held by classification
		},
	}
}
