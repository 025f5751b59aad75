package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oversight-labs/opsgate/pkg/contracts"
	"github.com/oversight-labs/opsgate/pkg/policy"
	"github.com/oversight-labs/opsgate/pkg/validator"
)

// Profile is the operator-tuned policy profile. Every section is
// optional; omitted sections keep compiled defaults.
type Profile struct {
	Name      string              `yaml:"name"`
	Roles     map[string]RoleSpec `yaml:"roles,omitempty"`
	Validator ValidatorSpec       `yaml:"validator,omitempty"`
	RateLimit RateLimitSpec       `yaml:"rate_limit,omitempty"`
	Breaker   BreakerSpec         `yaml:"breaker,omitempty"`
	Timeouts  map[string]int      `yaml:"timeout_overrides,omitempty"`
	Schemas   map[string]string   `yaml:"param_schemas,omitempty"`
}

// RoleSpec is one role's policy in YAML form.
type RoleSpec struct {
	AllowedCategories  []string `yaml:"allowed_categories"`
	AutoApproveCeiling string   `yaml:"auto_approve_ceiling"`
}

// ValidatorSpec overrides validation limits. Zero fields keep defaults.
type ValidatorSpec struct {
	MaxCommandLength    int `yaml:"max_command_length,omitempty"`
	MaxParameterCount   int `yaml:"max_parameter_count,omitempty"`
	MaxParamNameLength  int `yaml:"max_param_name_length,omitempty"`
	MaxParamValueLength int `yaml:"max_param_value_length,omitempty"`
}

// RateLimitSpec configures the per-agent limiter. Zero disables it.
type RateLimitSpec struct {
	DecisionsPerSecond float64 `yaml:"decisions_per_second,omitempty"`
	Burst              int     `yaml:"burst,omitempty"`
}

// BreakerSpec configures the decision-path circuit breaker. A zero
// threshold disables it.
type BreakerSpec struct {
	FailureThreshold int `yaml:"failure_threshold,omitempty"`
	ResetSeconds     int `yaml:"reset_seconds,omitempty"`
}

// LoadProfile reads and validates a YAML profile. An empty path returns
// the compiled defaults.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return &Profile{Name: "default"}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if _, err := p.RolePolicies(); err != nil {
		return nil, err
	}
	return &p, nil
}

// RolePolicies converts the YAML role table to the policy form,
// starting from the built-in table so unlisted roles stay restrictive.
func (p *Profile) RolePolicies() (map[contracts.Role]policy.RolePolicy, error) {
	out := policy.DefaultRolePolicies()
	for name, spec := range p.Roles {
		role, err := contracts.ParseRole(name)
		if err != nil {
			return nil, fmt.Errorf("profile role: %w", err)
		}
		tier, err := parseRiskTier(spec.AutoApproveCeiling)
		if err != nil {
			return nil, fmt.Errorf("profile role %s: %w", name, err)
		}
		var cats []contracts.Category
		for _, c := range spec.AllowedCategories {
			cat := contracts.Category(c)
			if !cat.Valid() {
				return nil, fmt.Errorf("profile role %s: unknown category %q", name, c)
			}
			cats = append(cats, cat)
		}
		out[role] = policy.RolePolicy{AllowedCategories: cats, AutoApproveCeiling: tier}
	}
	return out, nil
}

// ValidatorLimits merges the spec over the compiled limits.
func (p *Profile) ValidatorLimits() validator.Limits {
	l := validator.DefaultLimits()
	if p.Validator.MaxCommandLength > 0 {
		l.MaxCommandLength = p.Validator.MaxCommandLength
	}
	if p.Validator.MaxParameterCount > 0 {
		l.MaxParameterCount = p.Validator.MaxParameterCount
	}
	if p.Validator.MaxParamNameLength > 0 {
		l.MaxParamNameLength = p.Validator.MaxParamNameLength
	}
	if p.Validator.MaxParamValueLength > 0 {
		l.MaxParamValueLength = p.Validator.MaxParamValueLength
	}
	return l
}

// EngineOptions assembles the policy engine options the profile calls
// for: role table, limits, optional rate limiter and breaker, and any
// registered parameter schemas.
func (p *Profile) EngineOptions() ([]policy.Option, error) {
	roles, err := p.RolePolicies()
	if err != nil {
		return nil, err
	}

	opts := []policy.Option{
		policy.WithRolePolicies(roles),
		policy.WithValidator(validator.New(p.ValidatorLimits())),
	}

	if len(p.Timeouts) > 0 {
		opts = append(opts, policy.WithTimeoutOverrides(p.Timeouts))
	}

	if p.RateLimit.DecisionsPerSecond > 0 {
		burst := p.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		opts = append(opts, policy.WithRateLimiter(
			policy.NewAgentRateLimiter(p.RateLimit.DecisionsPerSecond, burst)))
	}

	if p.Breaker.FailureThreshold > 0 {
		reset := time.Duration(p.Breaker.ResetSeconds) * time.Second
		if reset <= 0 {
			reset = 30 * time.Second
		}
		opts = append(opts, policy.WithBreaker(
			policy.NewCircuitBreaker("decide", p.Breaker.FailureThreshold, reset)))
	}

	if len(p.Schemas) > 0 {
		reg := policy.NewSchemaRegistry()
		for verb, schema := range p.Schemas {
			if err := reg.Register(verb, schema); err != nil {
				return nil, err
			}
		}
		opts = append(opts, policy.WithSchemaRegistry(reg))
	}

	return opts, nil
}

func parseRiskTier(s string) (contracts.RiskTier, error) {
	switch s {
	case "low":
		return contracts.RiskLow, nil
	case "medium":
		return contracts.RiskMedium, nil
	case "high":
		return contracts.RiskHigh, nil
	case "critical":
		return contracts.RiskCritical, nil
	}
	return contracts.RiskLow, fmt.Errorf("unknown risk tier %q", s)
}
