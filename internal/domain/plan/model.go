package plan

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/benefits/accumulator/pkg/dates"
	"github.com/benefits/accumulator/pkg/money"
)

// Rule is one immutable version of a plan's financial parameters for a plan year.
// A zero family deductible or family OOP max means the plan has no family tier.
type Rule struct {
	TenantID             string                     `json:"tenant_id" yaml:"-"`
	PlanID               string                     `json:"plan_id" yaml:"plan_id"`
	PlanYear             int                        `json:"plan_year" yaml:"plan_year"`
	Version              int                        `json:"version" yaml:"-"`
	EffectiveDate        time.Time                  `json:"effective_date" yaml:"effective_date"`
	PlanName             string                     `json:"plan_name,omitempty" yaml:"plan_name"`
	PlanType             string                     `json:"plan_type,omitempty" yaml:"plan_type"`
	MonthlyPremium       decimal.Decimal            `json:"monthly_premium" yaml:"monthly_premium"`
	DeductibleIndividual decimal.Decimal            `json:"deductible_individual" yaml:"deductible_individual"`
	DeductibleFamily     decimal.Decimal            `json:"deductible_family" yaml:"deductible_family"`
	OOPMaxIndividual     decimal.Decimal            `json:"oop_max_individual" yaml:"oop_max_individual"`
	OOPMaxFamily         decimal.Decimal            `json:"oop_max_family" yaml:"oop_max_family"`
	CoinsuranceRate      decimal.Decimal            `json:"coinsurance_rate" yaml:"coinsurance_rate"`
	Copays               map[string]decimal.Decimal `json:"copays,omitempty" yaml:"copays"`
	RxCopays             map[string]decimal.Decimal `json:"rx_copays,omitempty" yaml:"rx_copays"`
	CreatedAt            time.Time                  `json:"created_at" yaml:"-"`
}

func (r *Rule) GetTenantID() string { return r.TenantID }

// UnmarshalJSON accepts effective_date as YYYY-MM-DD as well as RFC 3339.
func (r *Rule) UnmarshalJSON(data []byte) error {
	type alias Rule
	aux := struct {
		*alias
		EffectiveDate string `json:"effective_date"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d, err := dates.Parse(aux.EffectiveDate)
	if err != nil {
		return err
	}
	r.EffectiveDate = d
	return nil
}

// HasFamilyDeductible reports whether family-level deductible accumulation applies.
func (r *Rule) HasFamilyDeductible() bool { return r.DeductibleFamily.IsPositive() }

// HasFamilyOOPMax reports whether the family out-of-pocket cap applies.
func (r *Rule) HasFamilyOOPMax() bool { return r.OOPMaxFamily.IsPositive() }

// CopayFor returns the flat copay for a visit category, if the plan defines one.
func (r *Rule) CopayFor(category string) (decimal.Decimal, bool) {
	if category == "" {
		return decimal.Zero, false
	}
	c, ok := r.Copays[category]
	return c, ok
}

// RxCopayFor returns the flat copay for a prescription tier, if the plan defines one.
func (r *Rule) RxCopayFor(tier string) (decimal.Decimal, bool) {
	if tier == "" {
		return decimal.Zero, false
	}
	c, ok := r.RxCopays[tier]
	return c, ok
}

// Validate checks the rule is internally consistent.
func (r *Rule) Validate() error {
	if r.PlanID == "" {
		return fmt.Errorf("plan_id is required")
	}
	if r.PlanYear < 1900 || r.PlanYear > 9999 {
		return fmt.Errorf("invalid plan_year: %d", r.PlanYear)
	}
	amounts := map[string]decimal.Decimal{
		"deductible_individual": r.DeductibleIndividual,
		"deductible_family":     r.DeductibleFamily,
		"oop_max_individual":    r.OOPMaxIndividual,
		"oop_max_family":        r.OOPMaxFamily,
		"monthly_premium":       r.MonthlyPremium,
	}
	for name, v := range amounts {
		if err := money.Validate(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for cat, v := range r.Copays {
		if err := money.Validate(v); err != nil {
			return fmt.Errorf("copay %s: %w", cat, err)
		}
	}
	for tier, v := range r.RxCopays {
		if err := money.Validate(v); err != nil {
			return fmt.Errorf("rx copay %s: %w", tier, err)
		}
	}
	if r.CoinsuranceRate.IsNegative() || r.CoinsuranceRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("coinsurance_rate must be between 0 and 1, got %s", r.CoinsuranceRate)
	}
	if !r.OOPMaxIndividual.IsPositive() {
		return fmt.Errorf("oop_max_individual must be positive")
	}
	if r.DeductibleIndividual.GreaterThan(r.OOPMaxIndividual) {
		return fmt.Errorf("deductible_individual exceeds oop_max_individual")
	}
	if r.HasFamilyDeductible() && r.DeductibleFamily.LessThan(r.DeductibleIndividual) {
		return fmt.Errorf("deductible_family is below deductible_individual")
	}
	if r.HasFamilyOOPMax() && r.OOPMaxFamily.LessThan(r.OOPMaxIndividual) {
		return fmt.Errorf("oop_max_family is below oop_max_individual")
	}
	return nil
}

// Info is the tenant-free view of a rule returned to API callers.
type Info struct {
	PlanID               string                     `json:"plan_id"`
	PlanYear             int                        `json:"plan_year"`
	Version              int                        `json:"version"`
	PlanName             string                     `json:"plan_name,omitempty"`
	PlanType             string                     `json:"plan_type,omitempty"`
	MonthlyPremium       decimal.Decimal            `json:"monthly_premium"`
	DeductibleIndividual decimal.Decimal            `json:"deductible_individual"`
	DeductibleFamily     decimal.Decimal            `json:"deductible_family"`
	OOPMaxIndividual     decimal.Decimal            `json:"oop_max_individual"`
	OOPMaxFamily         decimal.Decimal            `json:"oop_max_family"`
	CoinsuranceRate      decimal.Decimal            `json:"coinsurance_rate"`
	Copays               map[string]decimal.Decimal `json:"copays,omitempty"`
	RxCopays             map[string]decimal.Decimal `json:"rx_copays,omitempty"`
	EffectiveDate        time.Time                  `json:"effective_date"`
}

func (r *Rule) ToInfo() *Info {
	return &Info{
		PlanID:               r.PlanID,
		PlanYear:             r.PlanYear,
		Version:              r.Version,
		PlanName:             r.PlanName,
		PlanType:             r.PlanType,
		MonthlyPremium:       r.MonthlyPremium,
		DeductibleIndividual: r.DeductibleIndividual,
		DeductibleFamily:     r.DeductibleFamily,
		OOPMaxIndividual:     r.OOPMaxIndividual,
		OOPMaxFamily:         r.OOPMaxFamily,
		CoinsuranceRate:      r.CoinsuranceRate,
		Copays:               r.Copays,
		RxCopays:             r.RxCopays,
		EffectiveDate:        r.EffectiveDate,
	}
}
