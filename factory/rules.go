/*
Package factory converts JSON rules documents into component definitions.

PURPOSE:
  A tenant's KPIs, penalty rules, achievements and bonus settings can be
  kept in one JSON document, versioned alongside other tenant config and
  installed in a single call.

JSON SCHEMA:
  {
    "kpis": [
      {"metric": "calls_made", "name": "Calls", "weight": 40,
       "target_min": 100, "direction": "higher_is_better", "period_type": "monthly"}
    ],
    "penalty_rules": [
      {"code": "lead_idle", "name": "Idle lead", "category": "lead_handling",
       "trigger_event": "lead.idle", "type": "fixed", "amount": 50000,
       "conditions": [{"field": "lead.status", "operator": "equals", "value": "new"}],
       "max_per_day": 3, "allow_appeal": true, "appeal_deadline_days": 3}
    ],
    "achievements": [
      {"code": "calls_250", "name": "Dialer", "tier": "silver", "points": 150,
       "trigger": "cumulative", "metric": "calls_made", "target_value": 250}
    ],
    "bonus_settings": [
      {"name": "Sales bonus", "base_amount": 1000000, "applies_to_roles": ["sales"]}
    ]
  }

  Omitted "is_active" means active. Amounts accept JSON numbers or strings.

SEE ALSO:
  - config/tables.go: rule tables shared by every tenant
*/
package factory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/performance-engine/achievement"
	"github.com/warp/performance-engine/bonus"
	"github.com/warp/performance-engine/engine"
	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/kpi"
	"github.com/warp/performance-engine/penalty"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type RulesJSON struct {
	KPIs          []KPIJSON          `json:"kpis" validate:"dive"`
	PenaltyRules  []PenaltyRuleJSON  `json:"penalty_rules" validate:"dive"`
	Achievements  []AchievementJSON  `json:"achievements" validate:"dive"`
	BonusSettings []BonusSettingJSON `json:"bonus_settings" validate:"dive"`
}

type KPIJSON struct {
	Metric          string   `json:"metric" validate:"required"`
	Name            string   `json:"name" validate:"required"`
	Unit            string   `json:"unit" validate:"omitempty,oneof=count currency percentage minutes hours"`
	Weight          float64  `json:"weight" validate:"gte=0,lte=100"`
	TargetMin       float64  `json:"target_min" validate:"gte=0"`
	TargetGood      float64  `json:"target_good" validate:"gte=0"`
	TargetExcellent float64  `json:"target_excellent" validate:"gte=0"`
	Direction       string   `json:"direction" validate:"omitempty,oneof=higher_is_better lower_is_better"`
	PeriodType      string   `json:"period_type" validate:"omitempty,oneof=daily weekly monthly quarterly yearly"`
	AppliesToRoles  []string `json:"applies_to_roles"`
	IsActive        *bool    `json:"is_active"`
}

type PenaltyRuleJSON struct {
	Code                  string              `json:"code" validate:"required"`
	Name                  string              `json:"name" validate:"required"`
	Description           string              `json:"description"`
	Category              string              `json:"category" validate:"omitempty,oneof=crm lead_handling task activity discipline other"`
	TriggerEvent          string              `json:"trigger_event"`
	Conditions            []generic.Condition `json:"conditions"`
	Type                  string              `json:"type" validate:"required,oneof=fixed percentage_of_bonus warning_only"`
	Amount                decimal.Decimal     `json:"amount"`
	Percentage            decimal.Decimal     `json:"percentage"`
	WarningBeforePenalty  bool                `json:"warning_before_penalty"`
	WarningsBeforePenalty int                 `json:"warnings_before_penalty" validate:"gte=0"`
	WarningValidityDays   int                 `json:"warning_validity_days" validate:"gte=0"`
	MaxPerDay             int                 `json:"max_per_day" validate:"gte=0"`
	MaxPerMonth           int                 `json:"max_per_month" validate:"gte=0"`
	AllowAppeal           bool                `json:"allow_appeal"`
	AppealDeadlineDays    int                 `json:"appeal_deadline_days" validate:"gte=0"`
	IsActive              *bool               `json:"is_active"`
}

type AchievementJSON struct {
	Code         string  `json:"code" validate:"required"`
	Name         string  `json:"name" validate:"required"`
	Description  string  `json:"description"`
	Category     string  `json:"category" validate:"omitempty,oneof=sales activity quality streak milestone special"`
	Tier         string  `json:"tier" validate:"omitempty,oneof=bronze silver gold platinum diamond"`
	Points       int64   `json:"points" validate:"gte=0"`
	Trigger      string  `json:"trigger" validate:"required,oneof=threshold cumulative streak milestone special"`
	Metric       string  `json:"metric"`
	TargetValue  float64 `json:"target_value" validate:"gte=0"`
	IsRepeatable bool    `json:"is_repeatable"`
	MaxTimes     int     `json:"max_times" validate:"gte=0"`
	IsSecret     bool    `json:"is_secret"`
	SortOrder    int     `json:"sort_order"`
	IsActive     *bool   `json:"is_active"`
}

type BonusTierJSON struct {
	Name       string          `json:"name" validate:"required"`
	MinScore   float64         `json:"min_score" validate:"gte=0"`
	Multiplier decimal.Decimal `json:"multiplier"`
}

type BonusSettingJSON struct {
	Name           string          `json:"name" validate:"required"`
	BaseAmount     decimal.Decimal `json:"base_amount"`
	Tiers          []BonusTierJSON `json:"tiers" validate:"dive"`
	MinKpiScore    float64         `json:"min_kpi_score" validate:"gte=0,lte=100"`
	MinWorkingDays int             `json:"min_working_days" validate:"gte=0"`
	AppliesToRoles []string        `json:"applies_to_roles"`
	PeriodType     string          `json:"period_type" validate:"omitempty,oneof=daily weekly monthly quarterly yearly"`
	IsActive       *bool           `json:"is_active"`
}

// =============================================================================
// RULES FACTORY
// =============================================================================

// Rules is a parsed document, not yet bound to a tenant.
type Rules struct {
	KPIs          []kpi.Definition
	PenaltyRules  []penalty.Rule
	Achievements  []achievement.Definition
	BonusSettings []bonus.Setting
}

type RulesFactory struct {
	validate *validator.Validate
}

func NewRulesFactory() *RulesFactory {
	return &RulesFactory{validate: validator.New()}
}

// ParseRules decodes and validates a JSON rules document.
func (f *RulesFactory) ParseRules(jsonStr string) (*Rules, error) {
	dec := json.NewDecoder(strings.NewReader(jsonStr))
	dec.DisallowUnknownFields()
	var rj RulesJSON
	if err := dec.Decode(&rj); err != nil {
		return nil, fmt.Errorf("failed to parse rules JSON: %w", err)
	}
	return f.FromJSON(rj)
}

// FromJSON validates the document and converts every entry. Domain
// validation runs too, so a document that parses is installable.
func (f *RulesFactory) FromJSON(rj RulesJSON) (*Rules, error) {
	if err := f.validate.Struct(rj); err != nil {
		return nil, fieldError(err)
	}

	out := &Rules{}
	for _, kj := range rj.KPIs {
		d := kpi.Definition{
			Metric:          kj.Metric,
			Name:            kj.Name,
			Unit:            kpi.Unit(orDefault(kj.Unit, string(kpi.UnitCount))),
			Weight:          kj.Weight,
			TargetMin:       kj.TargetMin,
			TargetGood:      kj.TargetGood,
			TargetExcellent: kj.TargetExcellent,
			Direction:       kpi.Direction(orDefault(kj.Direction, string(kpi.HigherIsBetter))),
			PeriodType:      generic.PeriodType(orDefault(kj.PeriodType, string(generic.PeriodMonthly))),
			AppliesToRoles:  kj.AppliesToRoles,
			IsActive:        active(kj.IsActive),
		}
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("kpi %s: %w", kj.Metric, err)
		}
		out.KPIs = append(out.KPIs, d)
	}

	for _, pj := range rj.PenaltyRules {
		r := penalty.Rule{
			Code:                  pj.Code,
			Name:                  pj.Name,
			Description:           pj.Description,
			Category:              penalty.Category(orDefault(pj.Category, string(penalty.CategoryOther))),
			TriggerEvent:          pj.TriggerEvent,
			Conditions:            pj.Conditions,
			Type:                  penalty.Type(pj.Type),
			Amount:                pj.Amount,
			Percentage:            pj.Percentage,
			WarningBeforePenalty:  pj.WarningBeforePenalty,
			WarningsBeforePenalty: pj.WarningsBeforePenalty,
			WarningValidityDays:   pj.WarningValidityDays,
			MaxPerDay:             pj.MaxPerDay,
			MaxPerMonth:           pj.MaxPerMonth,
			AllowAppeal:           pj.AllowAppeal,
			AppealDeadlineDays:    pj.AppealDeadlineDays,
			IsActive:              active(pj.IsActive),
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("penalty rule %s: %w", pj.Code, err)
		}
		out.PenaltyRules = append(out.PenaltyRules, r)
	}

	for _, aj := range rj.Achievements {
		d := achievement.Definition{
			Code:         aj.Code,
			Name:         aj.Name,
			Description:  aj.Description,
			Category:     achievement.Category(orDefault(aj.Category, string(achievement.CategorySpecial))),
			Tier:         achievement.Tier(orDefault(aj.Tier, string(achievement.TierBronze))),
			Points:       aj.Points,
			Trigger:      achievement.Trigger(aj.Trigger),
			Metric:       aj.Metric,
			TargetValue:  aj.TargetValue,
			IsRepeatable: aj.IsRepeatable,
			MaxTimes:     aj.MaxTimes,
			IsSecret:     aj.IsSecret,
			SortOrder:    aj.SortOrder,
			IsActive:     active(aj.IsActive),
		}
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("achievement %s: %w", aj.Code, err)
		}
		out.Achievements = append(out.Achievements, d)
	}

	for _, bj := range rj.BonusSettings {
		s := bonus.Setting{
			Name:           bj.Name,
			BaseAmount:     bj.BaseAmount,
			MinKpiScore:    bj.MinKpiScore,
			MinWorkingDays: bj.MinWorkingDays,
			AppliesToRoles: bj.AppliesToRoles,
			PeriodType:     generic.PeriodType(orDefault(bj.PeriodType, string(generic.PeriodMonthly))),
			IsActive:       active(bj.IsActive),
		}
		for _, tj := range bj.Tiers {
			s.Tiers = append(s.Tiers, bonus.Tier{Name: tj.Name, MinScore: tj.MinScore, Multiplier: tj.Multiplier})
		}
		// Empty tiers are filled in at install time from the tables.
		if len(s.Tiers) > 0 {
			if err := s.Validate(); err != nil {
				return nil, fmt.Errorf("bonus setting %s: %w", bj.Name, err)
			}
		}
		out.BonusSettings = append(out.BonusSettings, s)
	}
	return out, nil
}

// InstallReport counts what Install created.
type InstallReport struct {
	KPIs          int `json:"kpis"`
	PenaltyRules  int `json:"penalty_rules"`
	Achievements  int `json:"achievements"`
	BonusSettings int `json:"bonus_settings"`
}

// Install defines every entry for the tenant. It stops at the first
// failure; entries defined before it stay defined.
func (r *Rules) Install(ctx context.Context, tenantID generic.TenantID, eng *engine.Engine) (InstallReport, error) {
	var rep InstallReport
	for _, d := range r.KPIs {
		d.TenantID = tenantID
		if _, err := eng.KPI.DefineKPI(ctx, d); err != nil {
			return rep, fmt.Errorf("install kpi %s: %w", d.Metric, err)
		}
		rep.KPIs++
	}
	for _, pr := range r.PenaltyRules {
		pr.TenantID = tenantID
		if _, err := eng.Penalties.DefineRule(ctx, pr); err != nil {
			return rep, fmt.Errorf("install penalty rule %s: %w", pr.Code, err)
		}
		rep.PenaltyRules++
	}
	for _, d := range r.Achievements {
		d.TenantID = tenantID
		if _, err := eng.Achievements.Define(ctx, d); err != nil {
			return rep, fmt.Errorf("install achievement %s: %w", d.Code, err)
		}
		rep.Achievements++
	}
	for _, s := range r.BonusSettings {
		s.TenantID = tenantID
		if _, err := eng.Bonuses.DefineSetting(ctx, s); err != nil {
			return rep, fmt.Errorf("install bonus setting %s: %w", s.Name, err)
		}
		rep.BonusSettings++
	}
	return rep, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// fieldError reports the first failing field as a generic.ValidationError.
func fieldError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return generic.Invalid(ve[0].Namespace(), "failed "+ve[0].Tag()+" check")
	}
	return fmt.Errorf("validate rules: %w", err)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func active(b *bool) bool {
	return b == nil || *b
}
