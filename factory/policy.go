/*
Package factory provides JSON/YAML to Go policy conversion.

PURPOSE:
  Converts policy definitions into generic.Policy values. Payroll and
  operations staff tune overtime, week start, break deduction and the
  strictness switches in a config file; the factory fills in defaults and
  rejects values the engine cannot honour.

JSON SCHEMA:
  {
    "id": "site-default",
    "name": "Default site policy",
    "overtime_threshold_hours": 8,
    "overtime_multiplier": "1.5",
    "week_start": "monday",
    "unpaid_break_minutes": 0,
    "lock_horizon_days": 7,
    "strict_conflicts": false,
    "reject_empty_submit": true,
    "regenerate_rejected": true
  }

  Every field is optional; omitted fields keep generic.DefaultPolicy values.
  The same keys are accepted in YAML (the `policy:` block of config.yaml).

USAGE:
  factory := NewPolicyFactory()

  policy, err := factory.ParsePolicy(jsonString)
  policy, err := factory.ParsePolicyYAML(yamlBytes)

  svc := scheduling.NewService(store, *policy, notifier)

SEE ALSO:
  - generic/policy.go: Policy type definition
  - config/config.go: Embeds PolicyJSON in the service config
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/workforce-engine/generic"
)

// =============================================================================
// SCHEMA TYPES
// =============================================================================

// PolicyJSON is the serialized form of a policy. Pointer fields distinguish
// "not set" from an explicit zero.
type PolicyJSON struct {
	ID                     string   `json:"id,omitempty" yaml:"id,omitempty"`
	Name                   string   `json:"name,omitempty" yaml:"name,omitempty"`
	OvertimeThresholdHours *float64 `json:"overtime_threshold_hours,omitempty" yaml:"overtime_threshold_hours,omitempty" validate:"omitempty,gt=0,lte=24"`
	OvertimeMultiplier     string   `json:"overtime_multiplier,omitempty" yaml:"overtime_multiplier,omitempty" validate:"omitempty,numeric"`
	WeekStart              string   `json:"week_start,omitempty" yaml:"week_start,omitempty"`
	UnpaidBreakMinutes     *int     `json:"unpaid_break_minutes,omitempty" yaml:"unpaid_break_minutes,omitempty" validate:"omitempty,gte=0,lte=720"`
	LockHorizonDays        *int     `json:"lock_horizon_days,omitempty" yaml:"lock_horizon_days,omitempty" validate:"omitempty,gte=0"`
	StrictConflicts        *bool    `json:"strict_conflicts,omitempty" yaml:"strict_conflicts,omitempty"`
	RejectEmptySubmit      *bool    `json:"reject_empty_submit,omitempty" yaml:"reject_empty_submit,omitempty"`
	RegenerateRejected     *bool    `json:"regenerate_rejected,omitempty" yaml:"regenerate_rejected,omitempty"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts serialized policies to generic.Policy.
type PolicyFactory struct {
	validate *validator.Validate
}

// NewPolicyFactory creates a new policy factory.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{validate: validator.New()}
}

// ParsePolicy parses a JSON document into a Policy.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (*generic.Policy, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// ParsePolicyYAML parses a YAML document into a Policy.
func (f *PolicyFactory) ParsePolicyYAML(data []byte) (*generic.Policy, error) {
	var pj PolicyJSON
	if err := yaml.Unmarshal(data, &pj); err != nil {
		return nil, fmt.Errorf("failed to parse policy YAML: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON validates pj and layers it over generic.DefaultPolicy.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (*generic.Policy, error) {
	if err := f.validate.Struct(pj); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	policy := generic.DefaultPolicy()
	if pj.ID != "" {
		policy.ID = generic.PolicyID(pj.ID)
	}
	if pj.Name != "" {
		policy.Name = pj.Name
	}
	if pj.OvertimeThresholdHours != nil {
		policy.OvertimeThreshold = generic.Hours(*pj.OvertimeThresholdHours)
	}
	if pj.OvertimeMultiplier != "" {
		m, err := decimal.NewFromString(pj.OvertimeMultiplier)
		if err != nil {
			return nil, fmt.Errorf("invalid overtime_multiplier: %w", err)
		}
		if m.LessThan(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("overtime_multiplier must be at least 1, got %s", m)
		}
		policy.OvertimeMultiplier = m
	}
	if pj.WeekStart != "" {
		day, err := parseWeekday(pj.WeekStart)
		if err != nil {
			return nil, err
		}
		policy.WeekStart = day
	}
	if pj.UnpaidBreakMinutes != nil {
		policy.UnpaidBreakMinutes = *pj.UnpaidBreakMinutes
	}
	if pj.LockHorizonDays != nil {
		days := *pj.LockHorizonDays
		policy.LockHorizonDays = &days
	}
	if pj.StrictConflicts != nil {
		policy.StrictConflicts = *pj.StrictConflicts
	}
	if pj.RejectEmptySubmit != nil {
		policy.RejectEmptySubmit = *pj.RejectEmptySubmit
	}
	if pj.RegenerateRejected != nil {
		policy.RegenerateRejected = *pj.RegenerateRejected
	}

	return &policy, nil
}

// ToJSON converts a Policy to its serialized form with every field set.
func (f *PolicyFactory) ToJSON(policy generic.Policy) PolicyJSON {
	threshold, _ := policy.OvertimeThreshold.Value.Float64()
	breakMinutes := policy.UnpaidBreakMinutes
	strict := policy.StrictConflicts
	rejectEmpty := policy.RejectEmptySubmit
	regenerate := policy.RegenerateRejected

	pj := PolicyJSON{
		ID:                     string(policy.ID),
		Name:                   policy.Name,
		OvertimeThresholdHours: &threshold,
		OvertimeMultiplier:     policy.OvertimeMultiplier.String(),
		WeekStart:              strings.ToLower(policy.WeekStart.String()),
		UnpaidBreakMinutes:     &breakMinutes,
		StrictConflicts:        &strict,
		RejectEmptySubmit:      &rejectEmpty,
		RegenerateRejected:     &regenerate,
	}
	if policy.LockHorizonDays != nil {
		days := *policy.LockHorizonDays
		pj.LockHorizonDays = &days
	}
	return pj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

// parseWeekday accepts English weekday names in any case.
func parseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid week_start %q: want a weekday name such as monday", s)
}

// =============================================================================
// PRESET POLICIES
// =============================================================================

// StrictSitePolicyJSON returns a policy that blocks double-booking and
// freezes assignments older than lockDays.
func StrictSitePolicyJSON(id, name string, lockDays int) string {
	return fmt.Sprintf(`{
		"id": %q,
		"name": %q,
		"strict_conflicts": true,
		"lock_horizon_days": %d
	}`, id, name, lockDays)
}

// BreakDeductedPolicyJSON returns a policy that deducts an unpaid break
// from every worked day.
func BreakDeductedPolicyJSON(id, name string, breakMinutes int) string {
	return fmt.Sprintf(`{
		"id": %q,
		"name": %q,
		"unpaid_break_minutes": %d
	}`, id, name, breakMinutes)
}
