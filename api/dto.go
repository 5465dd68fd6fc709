/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain types carry no
  JSON contract of their own; these types pin field names, date formats and
  decimal rendering for clients.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags. Handlers run
  h.validate.Struct before touching the engine; domain validation still
  runs behind it.

DATES:
  Dates are "2006-01-02". Instants are RFC3339. Money is a decimal string.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/performance-engine/achievement"
	"github.com/warp/performance-engine/bonus"
	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/kpi"
	"github.com/warp/performance-engine/leaderboard"
	"github.com/warp/performance-engine/penalty"
	"github.com/warp/performance-engine/points"
	"github.com/warp/performance-engine/streak"
)

const dateLayout = "2006-01-02"

// =============================================================================
// PERIODS
// =============================================================================

type PeriodDTO struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// PeriodRequest names a period by type and aligned start date.
type PeriodRequest struct {
	PeriodType  string `json:"period_type" validate:"required,oneof=daily weekly monthly quarterly yearly"`
	PeriodStart string `json:"period_start" validate:"required,datetime=2006-01-02"`
}

type PublishRequest struct {
	PeriodRequest
	Force bool `json:"force"`
}

// =============================================================================
// KPIS AND TARGETS
// =============================================================================

type KPIDTO struct {
	ID              string   `json:"id"`
	Metric          string   `json:"metric"`
	Name            string   `json:"name"`
	Unit            string   `json:"unit"`
	Weight          float64  `json:"weight"`
	TargetMin       float64  `json:"target_min"`
	TargetGood      float64  `json:"target_good"`
	TargetExcellent float64  `json:"target_excellent"`
	Direction       string   `json:"direction"`
	PeriodType      string   `json:"period_type"`
	AppliesToRoles  []string `json:"applies_to_roles,omitempty"`
	IsActive        bool     `json:"is_active"`
}

type TargetDTO struct {
	ID                 string    `json:"id"`
	KpiID              string    `json:"kpi_id"`
	UserID             string    `json:"user_id"`
	Period             PeriodDTO `json:"period"`
	TargetValue        float64   `json:"target_value"`
	AdjustedValue      *float64  `json:"adjusted_value,omitempty"`
	AdjustmentReason   string    `json:"adjustment_reason,omitempty"`
	AchievedValue      float64   `json:"achieved_value"`
	AchievementPercent float64   `json:"achievement_percent"`
	Score              int       `json:"score"`
	Status             string    `json:"status"`
}

type CreateTargetRequest struct {
	KpiID       string  `json:"kpi_id" validate:"required"`
	UserID      string  `json:"user_id" validate:"required"`
	PeriodType  string  `json:"period_type" validate:"required,oneof=daily weekly monthly quarterly yearly"`
	PeriodStart string  `json:"period_start" validate:"required,datetime=2006-01-02"`
	TargetValue float64 `json:"target_value" validate:"gte=0"`
}

type RecordActualRequest struct {
	Value float64 `json:"value" validate:"gte=0"`
}

type AdjustTargetRequest struct {
	Value      float64 `json:"value" validate:"gte=0"`
	Reason     string  `json:"reason" validate:"required"`
	AdjustedBy string  `json:"adjusted_by" validate:"required"`
}

// =============================================================================
// LEADERBOARD
// =============================================================================

type KPIScoreDTO struct {
	KpiID              string  `json:"kpi_id"`
	Metric             string  `json:"metric"`
	Weight             float64 `json:"weight"`
	Score              int     `json:"score"`
	AchievementPercent float64 `json:"achievement_percent"`
}

type LeaderboardRowDTO struct {
	UserID        string        `json:"user_id"`
	Period        PeriodDTO     `json:"period"`
	Rank          int           `json:"rank"`
	PreviousRank  int           `json:"previous_rank"`
	RankChange    int           `json:"rank_change"`
	WeightedScore float64       `json:"weighted_score"`
	Tier          string        `json:"tier"`
	KPIs          []KPIScoreDTO `json:"kpis"`
	WorkingDays   int           `json:"working_days"`
	ComputedAt    string        `json:"computed_at"`
}

type EntryDTO struct {
	UserID      string  `json:"user_id"`
	Rank        int     `json:"rank"`
	Score       float64 `json:"score"`
	Tier        string  `json:"tier"`
	Medal       string  `json:"medal"`
	PublishedAt string  `json:"published_at"`
}

// =============================================================================
// POINTS, STREAKS, ACHIEVEMENTS
// =============================================================================

type AccountDTO struct {
	UserID            string  `json:"user_id"`
	Total             int64   `json:"total"`
	Available         int64   `json:"available"`
	Spent             int64   `json:"spent"`
	Level             int     `json:"level"`
	Experience        int64   `json:"experience"`
	NextLevelXP       int64   `json:"next_level_xp"`
	LevelProgress     float64 `json:"level_progress"`
	AchievementsCount int     `json:"achievements_count"`
	BestRank          int     `json:"best_rank"`
	GoldMedals        int     `json:"gold_medals"`
	SilverMedals      int     `json:"silver_medals"`
	BronzeMedals      int     `json:"bronze_medals"`
}

type TransactionDTO struct {
	ID           string `json:"id"`
	EffectiveAt  string `json:"effective_at"`
	Type         string `json:"type"`
	Delta        int64  `json:"delta"`
	BalanceAfter int64  `json:"balance_after"`
	Source       string `json:"source"`
	SourceID     string `json:"source_id,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

type AwardPointsRequest struct {
	Points         int64  `json:"points" validate:"gt=0"`
	Reason         string `json:"reason" validate:"required"`
	IdempotencyKey string `json:"idempotency_key"`
}

type SpendPointsRequest struct {
	Points         int64  `json:"points" validate:"gt=0"`
	Reason         string `json:"reason" validate:"required"`
	IdempotencyKey string `json:"idempotency_key"`
}

type StreakDTO struct {
	Type            string  `json:"type"`
	Name            string  `json:"name"`
	Current         int     `json:"current"`
	Best            int     `json:"best"`
	Multiplier      float64 `json:"multiplier"`
	IsActive        bool    `json:"is_active"`
	IsAtRisk        bool    `json:"is_at_risk"`
	Frozen          bool    `json:"frozen"`
	NextMilestone   int     `json:"next_milestone,omitempty"`
	DaysToMilestone int     `json:"days_to_milestone,omitempty"`
}

type ActivityRequest struct {
	UserID     string `json:"user_id"` // only read on the tenant-level route
	StreakType string `json:"streak_type" validate:"required"`
	Date       string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type FreezeRequest struct {
	Days int `json:"days" validate:"gte=1,lte=30"`
}

type AchievementDTO struct {
	ID          string  `json:"id"`
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category"`
	Tier        string  `json:"tier"`
	Points      int64   `json:"points"`
	Trigger     string  `json:"trigger"`
	Metric      string  `json:"metric,omitempty"`
	TargetValue float64 `json:"target_value"`
	Earned      bool    `json:"earned"`
	TimesEarned int     `json:"times_earned,omitempty"`
	EarnedAt    string  `json:"earned_at,omitempty"`
}

// =============================================================================
// PENALTIES
// =============================================================================

type PenaltyDTO struct {
	ID                  string `json:"id"`
	RuleID              string `json:"rule_id,omitempty"`
	UserID              string `json:"user_id"`
	Category            string `json:"category"`
	Reason              string `json:"reason"`
	Description         string `json:"description,omitempty"`
	RelatedKind         string `json:"related_kind,omitempty"`
	RelatedID           string `json:"related_id,omitempty"`
	Amount              string `json:"amount"`
	Percentage          string `json:"percentage,omitempty"`
	Status              string `json:"status"`
	AllowAppeal         bool   `json:"allow_appeal"`
	AppealDeadline      string `json:"appeal_deadline,omitempty"`
	AppealReason        string `json:"appeal_reason,omitempty"`
	Resolution          string `json:"resolution,omitempty"`
	DeductedFromBonusID string `json:"deducted_from_bonus_id,omitempty"`
	TriggeredAt         string `json:"triggered_at"`
}

type PenaltyRuleDTO struct {
	ID                 string `json:"id"`
	Code               string `json:"code"`
	Name               string `json:"name"`
	Category           string `json:"category"`
	TriggerEvent       string `json:"trigger_event"`
	Type               string `json:"type"`
	Amount             string `json:"amount"`
	Percentage         string `json:"percentage"`
	MaxPerDay          int    `json:"max_per_day"`
	MaxPerMonth        int    `json:"max_per_month"`
	AllowAppeal        bool   `json:"allow_appeal"`
	AppealDeadlineDays int    `json:"appeal_deadline_days"`
	IsActive           bool   `json:"is_active"`
}

type TriggerRequest struct {
	UserID      string         `json:"user_id" validate:"required"`
	Event       string         `json:"event" validate:"required"`
	Data        map[string]any `json:"data"`
	RelatedKind string         `json:"related_kind" validate:"omitempty,oneof=lead task call deal"`
	RelatedID   string         `json:"related_id" validate:"required_with=RelatedKind"`
	Description string         `json:"description"`
	BonusBase   string         `json:"bonus_base" validate:"omitempty,numeric"`
}

type OutcomeDTO struct {
	RuleID        string      `json:"rule_id"`
	Kind          string      `json:"kind"`
	Penalty       *PenaltyDTO `json:"penalty,omitempty"`
	WarningNumber int         `json:"warning_number,omitempty"`
	Reason        string      `json:"reason,omitempty"`
}

type ManualPenaltyRequest struct {
	UserID             string `json:"user_id" validate:"required"`
	Category           string `json:"category" validate:"required,oneof=crm lead_handling task activity discipline other"`
	Reason             string `json:"reason" validate:"required"`
	Description        string `json:"description"`
	Amount             string `json:"amount" validate:"required,numeric"`
	RelatedKind        string `json:"related_kind" validate:"omitempty,oneof=lead task call deal"`
	RelatedID          string `json:"related_id" validate:"required_with=RelatedKind"`
	IssuedBy           string `json:"issued_by" validate:"required"`
	AppealDeadlineDays int    `json:"appeal_deadline_days" validate:"gte=0"`
}

type ActorRequest struct {
	By string `json:"by" validate:"required"`
}

type AppealRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type ReviewRequest struct {
	By         string `json:"by" validate:"required"`
	Approve    bool   `json:"approve"`
	Resolution string `json:"resolution"`
}

type CancelRequest struct {
	By     string `json:"by" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

type PenaltySummaryDTO struct {
	TotalPenalties int            `json:"total_penalties"`
	TotalWarnings  int            `json:"total_warnings"`
	ActiveWarnings int            `json:"active_warnings"`
	PendingCount   int            `json:"pending_count"`
	ConfirmedCount int            `json:"confirmed_count"`
	AppealedCount  int            `json:"appealed_count"`
	TotalAmount    string         `json:"total_amount"`
	PendingAmount  string         `json:"pending_amount"`
	ByCategory     map[string]int `json:"by_category"`
	Recent         []PenaltyDTO   `json:"recent"`
}

// =============================================================================
// BONUSES
// =============================================================================

type BonusDTO struct {
	ID                     string    `json:"id"`
	SettingID              string    `json:"setting_id"`
	UserID                 string    `json:"user_id"`
	Period                 PeriodDTO `json:"period"`
	KpiScore               float64   `json:"kpi_score"`
	WorkingDays            int       `json:"working_days"`
	IsQualified            bool      `json:"is_qualified"`
	DisqualificationReason string    `json:"disqualification_reason,omitempty"`
	BaseAmount             string    `json:"base_amount"`
	TierMultiplier         string    `json:"tier_multiplier"`
	AppliedTier            string    `json:"applied_tier,omitempty"`
	FinalAmount            string    `json:"final_amount"`
	Status                 string    `json:"status"`
	ApprovedBy             string    `json:"approved_by,omitempty"`
	RejectionReason        string    `json:"rejection_reason,omitempty"`
	PaymentReference       string    `json:"payment_reference,omitempty"`
	CalculatedAt           string    `json:"calculated_at"`
}

type BonusSettingDTO struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	BaseAmount     string       `json:"base_amount"`
	Tiers          []bonus.Tier `json:"tiers"`
	MinKpiScore    float64      `json:"min_kpi_score"`
	MinWorkingDays int          `json:"min_working_days"`
	AppliesToRoles []string     `json:"applies_to_roles,omitempty"`
	PeriodType     string       `json:"period_type"`
	IsActive       bool         `json:"is_active"`
}

type CalculateBonusRequest struct {
	UserID string `json:"user_id" validate:"required"`
	PeriodRequest
}

type ApproveBonusRequest struct {
	By    string `json:"by" validate:"required"`
	Notes string `json:"notes"`
}

type RejectBonusRequest struct {
	By     string `json:"by" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

type PayBonusRequest struct {
	Reference string `json:"reference" validate:"required"`
}

type NetAmountDTO struct {
	BonusID     string `json:"bonus_id"`
	FinalAmount string `json:"final_amount"`
	NetAmount   string `json:"net_amount"`
}

type BonusSummaryDTO struct {
	TotalEarned   string     `json:"total_earned"`
	TotalPending  string     `json:"total_pending"`
	TotalRejected string     `json:"total_rejected"`
	Count         int        `json:"count"`
	AverageBonus  string     `json:"average_bonus"`
	History       []BonusDTO `json:"history"`
}

// =============================================================================
// OVERVIEW, HOLIDAYS, ERRORS
// =============================================================================

type UserSummaryDTO struct {
	UserID  string             `json:"user_id"`
	Summary *LeaderboardRowDTO `json:"summary,omitempty"`
	Targets []TargetDTO        `json:"targets"`
	Account AccountDTO         `json:"account"`
	Streaks []StreakDTO        `json:"streaks"`
}

type MemberDTO struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type SaveMemberRequest struct {
	Role string `json:"role" validate:"required"`
}

type FactRequest struct {
	UserID string  `json:"user_id" validate:"required"`
	Metric string  `json:"metric" validate:"required"`
	Date   string  `json:"date" validate:"required,datetime=2006-01-02"`
	Value  float64 `json:"value" validate:"gte=0"`
}

type RecordFactsRequest struct {
	Facts []FactRequest `json:"facts" validate:"required,min=1,dive"`
}

type HolidayDTO struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id,omitempty"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

type CreateHolidayRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Name      string `json:"name" validate:"required"`
	Recurring bool   `json:"recurring"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toPeriodDTO(p generic.Period) PeriodDTO {
	return PeriodDTO{
		Key:   p.Key(),
		Type:  string(p.Type),
		Start: p.Start.Time.Format(dateLayout),
		End:   p.End.Time.Format(dateLayout),
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toKPIDTO(d kpi.Definition) KPIDTO {
	return KPIDTO{
		ID:              d.ID,
		Metric:          d.Metric,
		Name:            d.Name,
		Unit:            string(d.Unit),
		Weight:          d.Weight,
		TargetMin:       d.TargetMin,
		TargetGood:      d.TargetGood,
		TargetExcellent: d.TargetExcellent,
		Direction:       string(d.Direction),
		PeriodType:      string(d.PeriodType),
		AppliesToRoles:  d.AppliesToRoles,
		IsActive:        d.IsActive,
	}
}

func toTargetDTO(t kpi.Target) TargetDTO {
	return TargetDTO{
		ID:                 t.ID,
		KpiID:              t.KpiID,
		UserID:             string(t.UserID),
		Period:             toPeriodDTO(t.Period),
		TargetValue:        t.TargetValue,
		AdjustedValue:      t.AdjustedValue,
		AdjustmentReason:   t.AdjustmentReason,
		AchievedValue:      t.AchievedValue,
		AchievementPercent: t.AchievementPercent,
		Score:              t.Score,
		Status:             string(t.Status),
	}
}

func toTargetDTOs(ts []kpi.Target) []TargetDTO {
	out := make([]TargetDTO, len(ts))
	for i, t := range ts {
		out[i] = toTargetDTO(t)
	}
	return out
}

func toLeaderboardRowDTO(s leaderboard.Summary) LeaderboardRowDTO {
	kpis := make([]KPIScoreDTO, len(s.KPIs))
	for i, k := range s.KPIs {
		kpis[i] = KPIScoreDTO{
			KpiID:              k.KpiID,
			Metric:             k.Metric,
			Weight:             k.Weight,
			Score:              k.Score,
			AchievementPercent: k.AchievementPercent,
		}
	}
	return LeaderboardRowDTO{
		UserID:        string(s.UserID),
		Period:        toPeriodDTO(s.Period),
		Rank:          s.Rank,
		PreviousRank:  s.PreviousRank,
		RankChange:    s.RankChange,
		WeightedScore: s.WeightedScore,
		Tier:          string(s.Tier),
		KPIs:          kpis,
		WorkingDays:   s.WorkingDays,
		ComputedAt:    formatTime(&s.ComputedAt),
	}
}

func toLeaderboardRowDTOs(rows []leaderboard.Summary) []LeaderboardRowDTO {
	out := make([]LeaderboardRowDTO, len(rows))
	for i, s := range rows {
		out[i] = toLeaderboardRowDTO(s)
	}
	return out
}

func toEntryDTOs(entries []leaderboard.Entry) []EntryDTO {
	out := make([]EntryDTO, len(entries))
	for i, e := range entries {
		out[i] = EntryDTO{
			UserID:      string(e.UserID),
			Rank:        e.Rank,
			Score:       e.Score,
			Tier:        string(e.Tier),
			Medal:       string(e.Medal),
			PublishedAt: formatTime(&e.PublishedAt),
		}
	}
	return out
}

func toAccountDTO(a points.Account, levels points.LevelTable) AccountDTO {
	return AccountDTO{
		UserID:            string(a.UserID),
		Total:             a.Total,
		Available:         a.Available,
		Spent:             a.Spent,
		Level:             a.Level,
		Experience:        a.Experience,
		NextLevelXP:       a.NextLevelXP,
		LevelProgress:     a.LevelProgress(levels),
		AchievementsCount: a.AchievementsCount,
		BestRank:          a.BestRank,
		GoldMedals:        a.GoldMedals,
		SilverMedals:      a.SilverMedals,
		BronzeMedals:      a.BronzeMedals,
	}
}

func toTransactionDTOs(txs []generic.Transaction) []TransactionDTO {
	out := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		out[i] = TransactionDTO{
			ID:           string(tx.ID),
			EffectiveAt:  tx.EffectiveAt.Time.Format(time.RFC3339),
			Type:         string(tx.Type),
			Delta:        tx.Delta.Value.IntPart(),
			BalanceAfter: tx.BalanceAfter.Value.IntPart(),
			Source:       tx.Source,
			SourceID:     tx.SourceID,
			Reason:       tx.Reason,
		}
	}
	return out
}

func toStreakDTOs(ss []streak.Summary) []StreakDTO {
	out := make([]StreakDTO, len(ss))
	for i, s := range ss {
		out[i] = StreakDTO{
			Type:            s.Type.Code,
			Name:            s.Type.Name,
			Current:         s.Current,
			Best:            s.Best,
			Multiplier:      s.Multiplier,
			IsActive:        s.IsActive,
			IsAtRisk:        s.IsAtRisk,
			Frozen:          s.Frozen,
			NextMilestone:   s.NextMilestone,
			DaysToMilestone: s.DaysToMilestone,
		}
	}
	return out
}

func toAchievementDTO(d achievement.Definition) AchievementDTO {
	return AchievementDTO{
		ID:          d.ID,
		Code:        d.Code,
		Name:        d.Name,
		Description: d.Description,
		Category:    string(d.Category),
		Tier:        string(d.Tier),
		Points:      d.Points,
		Trigger:     string(d.Trigger),
		Metric:      d.Metric,
		TargetValue: d.TargetValue,
	}
}

func toAchievementViewDTOs(views []achievement.View) []AchievementDTO {
	out := make([]AchievementDTO, len(views))
	for i, v := range views {
		dto := toAchievementDTO(v.Definition)
		dto.Earned = v.Earned
		dto.TimesEarned = v.TimesEarned
		dto.EarnedAt = formatTime(v.EarnedAt)
		out[i] = dto
	}
	return out
}

func toPenaltyDTO(p penalty.Penalty) PenaltyDTO {
	dto := PenaltyDTO{
		ID:                  p.ID,
		RuleID:              p.RuleID,
		UserID:              string(p.UserID),
		Category:            string(p.Category),
		Reason:              p.Reason,
		Description:         p.Description,
		RelatedKind:         string(p.Related.Kind),
		RelatedID:           p.Related.ID,
		Amount:              p.Amount.StringFixed(2),
		Status:              string(p.Status),
		AllowAppeal:         p.AllowAppeal,
		AppealDeadline:      formatTime(p.AppealDeadline),
		AppealReason:        p.AppealReason,
		Resolution:          p.Resolution,
		DeductedFromBonusID: p.DeductedFromBonusID,
		TriggeredAt:         formatTime(&p.TriggeredAt),
	}
	if !p.AmountResolved {
		dto.Percentage = p.Percentage.String()
	}
	return dto
}

func toPenaltyDTOs(ps []penalty.Penalty) []PenaltyDTO {
	out := make([]PenaltyDTO, len(ps))
	for i, p := range ps {
		out[i] = toPenaltyDTO(p)
	}
	return out
}

func toPenaltyRuleDTO(r penalty.Rule) PenaltyRuleDTO {
	return PenaltyRuleDTO{
		ID:                 r.ID,
		Code:               r.Code,
		Name:               r.Name,
		Category:           string(r.Category),
		TriggerEvent:       r.TriggerEvent,
		Type:               string(r.Type),
		Amount:             r.Amount.StringFixed(2),
		Percentage:         r.Percentage.String(),
		MaxPerDay:          r.MaxPerDay,
		MaxPerMonth:        r.MaxPerMonth,
		AllowAppeal:        r.AllowAppeal,
		AppealDeadlineDays: r.AppealDeadlineDays,
		IsActive:           r.IsActive,
	}
}

func toOutcomeDTO(o penalty.Outcome) OutcomeDTO {
	dto := OutcomeDTO{RuleID: o.RuleID, Kind: string(o.Kind)}
	if o.Penalty != nil {
		p := toPenaltyDTO(*o.Penalty)
		dto.Penalty = &p
	}
	if o.Warning != nil {
		dto.WarningNumber = o.Warning.Number
	}
	if o.Reason != nil {
		dto.Reason = o.Reason.Error()
	}
	return dto
}

func toPenaltySummaryDTO(s penalty.Summary) PenaltySummaryDTO {
	byCategory := make(map[string]int, len(s.ByCategory))
	for c, n := range s.ByCategory {
		byCategory[string(c)] = n
	}
	return PenaltySummaryDTO{
		TotalPenalties: s.TotalPenalties,
		TotalWarnings:  s.TotalWarnings,
		ActiveWarnings: s.ActiveWarnings,
		PendingCount:   s.PendingCount,
		ConfirmedCount: s.ConfirmedCount,
		AppealedCount:  s.AppealedCount,
		TotalAmount:    s.TotalAmount.StringFixed(2),
		PendingAmount:  s.PendingAmount.StringFixed(2),
		ByCategory:     byCategory,
		Recent:         toPenaltyDTOs(s.Recent),
	}
}

func toBonusDTO(c bonus.Calculation) BonusDTO {
	return BonusDTO{
		ID:                     c.ID,
		SettingID:              c.SettingID,
		UserID:                 string(c.UserID),
		Period:                 toPeriodDTO(c.Period),
		KpiScore:               c.KpiScore,
		WorkingDays:            c.WorkingDays,
		IsQualified:            c.IsQualified,
		DisqualificationReason: c.DisqualificationReason,
		BaseAmount:             c.BaseAmount.StringFixed(2),
		TierMultiplier:         c.TierMultiplier.String(),
		AppliedTier:            c.AppliedTier,
		FinalAmount:            c.FinalAmount.StringFixed(2),
		Status:                 string(c.Status),
		ApprovedBy:             c.ApprovedBy,
		RejectionReason:        c.RejectionReason,
		PaymentReference:       c.PaymentReference,
		CalculatedAt:           formatTime(&c.CalculatedAt),
	}
}

func toBonusDTOs(cs []bonus.Calculation) []BonusDTO {
	out := make([]BonusDTO, len(cs))
	for i, c := range cs {
		out[i] = toBonusDTO(c)
	}
	return out
}

func toBonusSettingDTO(s bonus.Setting) BonusSettingDTO {
	return BonusSettingDTO{
		ID:             s.ID,
		Name:           s.Name,
		BaseAmount:     s.BaseAmount.StringFixed(2),
		Tiers:          s.Tiers,
		MinKpiScore:    s.MinKpiScore,
		MinWorkingDays: s.MinWorkingDays,
		AppliesToRoles: s.AppliesToRoles,
		PeriodType:     string(s.PeriodType),
		IsActive:       s.IsActive,
	}
}

func toHolidayDTO(h generic.Holiday) HolidayDTO {
	return HolidayDTO{
		ID:        h.ID,
		TenantID:  string(h.TenantID),
		Date:      h.Date.Time.Format(dateLayout),
		Name:      h.Name,
		Recurring: h.Recurring,
	}
}
