/*
handlers.go - HTTP API handlers for the performance engine

PURPOSE:
  Exposes the performance engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS (all under /api/tenants/{tenantID}):
  Rules:
    POST   /rules                          Install a JSON rules document
    GET    /kpis                           Active KPI definitions
    GET    /achievements                   Achievement definitions
    POST   /achievements/seed              Seed the system achievements
    GET    /penalty-rules                  Penalty rules
    GET    /bonus-settings                 Bonus settings

  Targets:
    POST   /targets                        Create a target
    POST   /targets/{id}/actual            Record an actual value
    POST   /targets/{id}/adjust            Adjust the target value

  Periods:
    POST   /periods/recompute              Recompute a period
    POST   /periods/publish                Publish medals for a period
    GET    /leaderboard                    Ranked summaries
    GET    /leaderboard/entries            Published medal entries
    GET    /medals                         All-time medal table

  Users:
    GET    /users/{userID}/summary         Period overview
    GET    /users/{userID}/rank-history    Past ranks for a period type
    GET    /users/{userID}/streaks         Streak summaries
    POST   /users/{userID}/activity        Record a day of activity
    POST   /users/{userID}/streaks/{type}/freeze
    POST   /users/{userID}/streaks/{type}/unfreeze
    GET    /users/{userID}/achievements    Earned achievements
    GET    /users/{userID}/points          Points account
    GET    /users/{userID}/transactions    Points ledger
    POST   /users/{userID}/points          Award manual points
    POST   /users/{userID}/points/spend    Spend points
    GET    /users/{userID}/penalties       Penalties and summary
    GET    /users/{userID}/bonuses         Bonus history and summary

  Penalties:
    POST   /penalties/trigger              Evaluate a trigger event
    POST   /penalties                      Issue a manual penalty
    GET    /penalties/pending              Awaiting confirmation
    GET    /penalties/appeals              Appeals awaiting review
    POST   /penalties/{id}/confirm|appeal|review|cancel

  Bonuses:
    POST   /bonuses/calculate              Calculate one user
    POST   /bonuses/calculate-all          Calculate the directory
    GET    /bonuses/pending                Awaiting approval
    POST   /bonuses/{id}/approve|reject|cancel|pay|deduct-penalties
    GET    /bonuses/{id}/net               Net amount after penalties

  Local collaborators:
    GET    /members                        Tenant roster
    PUT    /members/{userID}               Add or update a member
    DELETE /members/{userID}               Remove a member
    POST   /facts                          Record daily metric values
    POST   /activity                       Record activity, user in the body
    GET    /holidays, POST /holidays, DELETE /holidays/{id}

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, insufficient points
  - 404: Resource not found
  - 409: Illegal state transition, cap exceeded
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. The tenant comes from the path.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/performance-engine/bonus"
	"github.com/warp/performance-engine/engine"
	"github.com/warp/performance-engine/factory"
	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/kpi"
	"github.com/warp/performance-engine/logger"
	"github.com/warp/performance-engine/penalty"
	"github.com/warp/performance-engine/points"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend holds the local collaborators: holiday calendar, member roster
// and activity facts. store/sqlite implements it.
type Backend interface {
	SaveHoliday(ctx context.Context, h generic.Holiday) error
	DeleteHoliday(ctx context.Context, id string) error
	Holidays(ctx context.Context, tenantID generic.TenantID) ([]generic.Holiday, error)

	SaveMember(ctx context.Context, tenantID generic.TenantID, m engine.Member) error
	RemoveMember(ctx context.Context, tenantID generic.TenantID, userID generic.UserID) error
	Members(ctx context.Context, tenantID generic.TenantID) ([]engine.Member, error)

	RecordFact(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, metric string, day generic.TimePoint, value float64) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *engine.Engine
	Store  Backend // nil disables the holiday, member and fact endpoints
	Rules  *factory.RulesFactory

	validate *validator.Validate
	log      *logger.Logger
}

func NewHandler(eng *engine.Engine, store Backend, log *logger.Logger) *Handler {
	return &Handler{
		Engine:   eng,
		Store:    store,
		Rules:    factory.NewRulesFactory(),
		validate: validator.New(),
		log:      logger.OrNop(log).With("component", "api"),
	}
}

func (h *Handler) requireStore(w http.ResponseWriter) bool {
	if h.Store == nil {
		writeError(w, http.StatusNotImplemented, "No local store configured", nil)
		return false
	}
	return true
}

func tenantOf(r *http.Request) generic.TenantID {
	return generic.TenantID(chi.URLParam(r, "tenantID"))
}

func userOf(r *http.Request) generic.UserID {
	return generic.UserID(chi.URLParam(r, "userID"))
}

// decode reads the body into dst and runs its validator tags.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func (h *Handler) period(w http.ResponseWriter, req PeriodRequest) (generic.PeriodType, generic.TimePoint, bool) {
	start, err := generic.ParseDate(req.PeriodStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period_start (use YYYY-MM-DD)", err)
		return "", generic.TimePoint{}, false
	}
	return generic.PeriodType(req.PeriodType), start, true
}

// periodQuery reads ?period_type=&period_start= from the URL.
func (h *Handler) periodQuery(w http.ResponseWriter, r *http.Request) (generic.PeriodType, generic.TimePoint, bool) {
	req := PeriodRequest{
		PeriodType:  r.URL.Query().Get("period_type"),
		PeriodStart: r.URL.Query().Get("period_start"),
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "period_type and period_start are required", err)
		return "", generic.TimePoint{}, false
	}
	return h.period(w, req)
}

func intQuery(r *http.Request, name string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

// =============================================================================
// RULE HANDLERS
// =============================================================================

// InstallRules parses a rules document and defines every entry for the
// tenant.
func (h *Handler) InstallRules(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}
	rules, err := h.Rules.ParseRules(string(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rules document", err)
		return
	}
	report, err := rules.Install(r.Context(), tenantOf(r), h.Engine)
	if err != nil {
		writeDomainError(w, "Failed to install rules", err)
		return
	}
	h.log.Info("rules installed", "tenant_id", tenantOf(r), "kpis", report.KPIs,
		"penalty_rules", report.PenaltyRules, "achievements", report.Achievements, "bonus_settings", report.BonusSettings)
	writeJSON(w, http.StatusCreated, report)
}

func (h *Handler) ListKPIs(w http.ResponseWriter, r *http.Request) {
	defs, err := h.Engine.KPI.ActiveDefinitions(r.Context(), tenantOf(r))
	if err != nil {
		writeDomainError(w, "Failed to list KPIs", err)
		return
	}
	out := make([]KPIDTO, len(defs))
	for i, d := range defs {
		out[i] = toKPIDTO(d)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ListAchievements(w http.ResponseWriter, r *http.Request) {
	defs, err := h.Engine.Achievements.Definitions(r.Context(), tenantOf(r))
	if err != nil {
		writeDomainError(w, "Failed to list achievements", err)
		return
	}
	out := make([]AchievementDTO, len(defs))
	for i, d := range defs {
		out[i] = toAchievementDTO(d)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) SeedAchievements(w http.ResponseWriter, r *http.Request) {
	n, err := h.Engine.Achievements.SeedSystem(r.Context(), tenantOf(r))
	if err != nil {
		writeDomainError(w, "Failed to seed achievements", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"created": n})
}

func (h *Handler) ListPenaltyRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Engine.Penalties.Rules(r.Context(), tenantOf(r))
	if err != nil {
		writeDomainError(w, "Failed to list penalty rules", err)
		return
	}
	out := make([]PenaltyRuleDTO, len(rules))
	for i, rule := range rules {
		out[i] = toPenaltyRuleDTO(rule)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ListBonusSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Engine.Bonuses.Settings(r.Context(), tenantOf(r))
	if err != nil {
		writeDomainError(w, "Failed to list bonus settings", err)
		return
	}
	out := make([]BonusSettingDTO, len(settings))
	for i, s := range settings {
		out[i] = toBonusSettingDTO(s)
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// TARGET HANDLERS
// =============================================================================

func (h *Handler) CreateTarget(w http.ResponseWriter, r *http.Request) {
	var req CreateTargetRequest
	if !h.decode(w, r, &req) {
		return
	}
	pt, start, ok := h.period(w, PeriodRequest{PeriodType: req.PeriodType, PeriodStart: req.PeriodStart})
	if !ok {
		return
	}
	t, err := h.Engine.KPI.CreateTarget(r.Context(), kpi.CreateTargetInput{
		TenantID:    tenantOf(r),
		KpiID:       req.KpiID,
		UserID:      generic.UserID(req.UserID),
		PeriodType:  pt,
		PeriodStart: start,
		TargetValue: req.TargetValue,
	})
	if err != nil {
		writeDomainError(w, "Failed to create target", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTargetDTO(t))
}

func (h *Handler) RecordActual(w http.ResponseWriter, r *http.Request) {
	var req RecordActualRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.Engine.KPI.RecordActual(r.Context(), tenantOf(r), chi.URLParam(r, "id"), req.Value)
	if err != nil {
		writeDomainError(w, "Failed to record actual", err)
		return
	}
	writeJSON(w, http.StatusOK, toTargetDTO(t))
}

func (h *Handler) AdjustTarget(w http.ResponseWriter, r *http.Request) {
	var req AdjustTargetRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.Engine.KPI.AdjustTarget(r.Context(), tenantOf(r), chi.URLParam(r, "id"), req.Value, req.Reason, req.AdjustedBy)
	if err != nil {
		writeDomainError(w, "Failed to adjust target", err)
		return
	}
	writeJSON(w, http.StatusOK, toTargetDTO(t))
}

// =============================================================================
// PERIOD HANDLERS
// =============================================================================

func (h *Handler) RecomputePeriod(w http.ResponseWriter, r *http.Request) {
	var req PeriodRequest
	if !h.decode(w, r, &req) {
		return
	}
	pt, start, ok := h.period(w, req)
	if !ok {
		return
	}
	rows, err := h.Engine.RecomputePeriod(r.Context(), tenantOf(r), pt, start)
	if err != nil {
		writeDomainError(w, "Failed to recompute period", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaderboardRowDTOs(rows))
}

func (h *Handler) PublishPeriod(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if !h.decode(w, r, &req) {
		return
	}
	pt, start, ok := h.period(w, req.PeriodRequest)
	if !ok {
		return
	}
	entries, err := h.Engine.PublishPeriod(r.Context(), tenantOf(r), pt, start, req.Force)
	if err != nil {
		writeDomainError(w, "Failed to publish period", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	pt, start, ok := h.periodQuery(w, r)
	if !ok {
		return
	}
	rows, err := h.Engine.Leaderboard(r.Context(), tenantOf(r), pt, start, intQuery(r, "limit", 0))
	if err != nil {
		writeDomainError(w, "Failed to load leaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaderboardRowDTOs(rows))
}

func (h *Handler) GetEntries(w http.ResponseWriter, r *http.Request) {
	pt, start, ok := h.periodQuery(w, r)
	if !ok {
		return
	}
	period, err := generic.PeriodStarting(pt, start)
	if err != nil {
		writeDomainError(w, "Invalid period", err)
		return
	}
	entries, err := h.Engine.Board.Entries(r.Context(), tenantOf(r), period)
	if err != nil {
		writeDomainError(w, "Failed to load entries", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

func (h *Handler) GetMedalTable(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Engine.Board.MedalTable(r.Context(), tenantOf(r))
	if err != nil {
		writeDomainError(w, "Failed to load medal table", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// =============================================================================
// USER HANDLERS
// =============================================================================

func (h *Handler) GetUserSummary(w http.ResponseWriter, r *http.Request) {
	pt, start, ok := h.periodQuery(w, r)
	if !ok {
		return
	}
	ov, err := h.Engine.UserSummary(r.Context(), tenantOf(r), userOf(r), pt, start)
	if err != nil {
		writeDomainError(w, "Failed to load user summary", err)
		return
	}
	dto := UserSummaryDTO{
		UserID:  string(userOf(r)),
		Targets: toTargetDTOs(ov.Targets),
		Account: toAccountDTO(ov.Account, h.levels()),
		Streaks: toStreakDTOs(ov.Streaks),
	}
	if ov.Summary != nil {
		row := toLeaderboardRowDTO(*ov.Summary)
		dto.Summary = &row
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) GetRankHistory(w http.ResponseWriter, r *http.Request) {
	pt := generic.PeriodType(r.URL.Query().Get("period_type"))
	if pt == "" {
		pt = generic.PeriodMonthly
	}
	rows, err := h.Engine.Board.UserRankHistory(r.Context(), tenantOf(r), userOf(r), pt, intQuery(r, "limit", 12))
	if err != nil {
		writeDomainError(w, "Failed to load rank history", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaderboardRowDTOs(rows))
}

func (h *Handler) GetStreaks(w http.ResponseWriter, r *http.Request) {
	h.writeStreaks(w, r, userOf(r))
}

func (h *Handler) writeStreaks(w http.ResponseWriter, r *http.Request, userID generic.UserID) {
	streaks, err := h.Engine.UserStreaks(r.Context(), tenantOf(r), userID)
	if err != nil {
		writeDomainError(w, "Failed to load streaks", err)
		return
	}
	writeJSON(w, http.StatusOK, toStreakDTOs(streaks))
}

// RecordActivity serves both /users/{userID}/activity and the tenant-level
// /activity, where the body names the user.
func (h *Handler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	var req ActivityRequest
	if !h.decode(w, r, &req) {
		return
	}
	userID := userOf(r)
	if userID == "" {
		userID = generic.UserID(req.UserID)
	}
	if userID == "" {
		writeError(w, http.StatusBadRequest, "Validation failed", generic.Invalid("user_id", "required"))
		return
	}
	var day generic.TimePoint
	if req.Date != "" {
		var err error
		if day, err = generic.ParseDate(req.Date); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
			return
		}
	}
	if _, err := h.Engine.RecordDailyActivity(r.Context(), tenantOf(r), userID, req.StreakType, day); err != nil {
		writeDomainError(w, "Failed to record activity", err)
		return
	}
	h.writeStreaks(w, r, userID)
}

func (h *Handler) FreezeStreak(w http.ResponseWriter, r *http.Request) {
	var req FreezeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := h.Engine.Streaks.Freeze(r.Context(), tenantOf(r), userOf(r), chi.URLParam(r, "type"), req.Days); err != nil {
		writeDomainError(w, "Failed to freeze streak", err)
		return
	}
	h.GetStreaks(w, r)
}

func (h *Handler) UnfreezeStreak(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Engine.Streaks.Unfreeze(r.Context(), tenantOf(r), userOf(r), chi.URLParam(r, "type")); err != nil {
		writeDomainError(w, "Failed to unfreeze streak", err)
		return
	}
	h.GetStreaks(w, r)
}

func (h *Handler) GetUserAchievements(w http.ResponseWriter, r *http.Request) {
	views, err := h.Engine.UserAchievements(r.Context(), tenantOf(r), userOf(r))
	if err != nil {
		writeDomainError(w, "Failed to load achievements", err)
		return
	}
	writeJSON(w, http.StatusOK, toAchievementViewDTOs(views))
}

func (h *Handler) GetPoints(w http.ResponseWriter, r *http.Request) {
	acc, err := h.Engine.Points.Account(r.Context(), tenantOf(r), userOf(r))
	if err != nil {
		writeDomainError(w, "Failed to load points", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(acc, h.levels()))
}

func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Engine.Points.Transactions(r.Context(), tenantOf(r), userOf(r))
	if err != nil {
		writeDomainError(w, "Failed to load transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

func (h *Handler) AwardPoints(w http.ResponseWriter, r *http.Request) {
	var req AwardPointsRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Engine.Points.AddPoints(r.Context(), points.EarnInput{
		TenantID:       tenantOf(r),
		UserID:         userOf(r),
		Points:         req.Points,
		Source:         "manual",
		Reason:         req.Reason,
		IdempotencyKey: clientKey("manual", userOf(r), req.IdempotencyKey),
	})
	if err != nil {
		writeDomainError(w, "Failed to award points", err)
		return
	}
	status := http.StatusCreated
	if !res.Applied {
		status = http.StatusOK
	}
	writeJSON(w, status, toAccountDTO(res.Account, h.levels()))
}

func (h *Handler) SpendPoints(w http.ResponseWriter, r *http.Request) {
	var req SpendPointsRequest
	if !h.decode(w, r, &req) {
		return
	}
	acc, err := h.Engine.Points.SpendPoints(r.Context(), points.SpendInput{
		TenantID:       tenantOf(r),
		UserID:         userOf(r),
		Points:         req.Points,
		Source:         "redemption",
		Reason:         req.Reason,
		IdempotencyKey: clientKey("redemption", userOf(r), req.IdempotencyKey),
	})
	if err != nil {
		writeDomainError(w, "Failed to spend points", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(acc, h.levels()))
}

// clientKey scopes a caller-supplied idempotency key to one user and
// operation; the ledger scopes it to the tenant.
func clientKey(op string, userID generic.UserID, key string) string {
	if key == "" {
		return ""
	}
	return op + ":" + string(userID) + ":" + key
}

func (h *Handler) GetUserPenalties(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.Penalties.UserSummary(r.Context(), tenantOf(r), userOf(r), intQuery(r, "months", 3))
	if err != nil {
		writeDomainError(w, "Failed to load penalties", err)
		return
	}
	writeJSON(w, http.StatusOK, toPenaltySummaryDTO(s))
}

func (h *Handler) GetUserBonuses(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.Bonuses.UserSummary(r.Context(), tenantOf(r), userOf(r), intQuery(r, "months", 12))
	if err != nil {
		writeDomainError(w, "Failed to load bonuses", err)
		return
	}
	writeJSON(w, http.StatusOK, BonusSummaryDTO{
		TotalEarned:   s.TotalEarned.StringFixed(2),
		TotalPending:  s.TotalPending.StringFixed(2),
		TotalRejected: s.TotalRejected.StringFixed(2),
		Count:         s.Count,
		AverageBonus:  s.AverageBonus.StringFixed(2),
		History:       toBonusDTOs(s.History),
	})
}

func (h *Handler) levels() points.LevelTable {
	return h.Engine.Points.Tables().Levels
}

// =============================================================================
// PENALTY HANDLERS
// =============================================================================

func (h *Handler) TriggerPenalty(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if !h.decode(w, r, &req) {
		return
	}
	t := penalty.Trigger{
		TenantID:    tenantOf(r),
		UserID:      generic.UserID(req.UserID),
		Event:       req.Event,
		Data:        req.Data,
		Related:     generic.RelatedRef{Kind: generic.RelatedKind(req.RelatedKind), ID: req.RelatedID},
		Description: req.Description,
	}
	if req.BonusBase != "" {
		base, err := decimal.NewFromString(req.BonusBase)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid bonus_base", err)
			return
		}
		t.BonusBase = &base
	}
	outcomes, err := h.Engine.EvaluatePenaltyTrigger(r.Context(), t)
	if err != nil {
		writeDomainError(w, "Failed to evaluate trigger", err)
		return
	}
	out := make([]OutcomeDTO, len(outcomes))
	for i, o := range outcomes {
		out[i] = toOutcomeDTO(o)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) IssuePenalty(w http.ResponseWriter, r *http.Request) {
	var req ManualPenaltyRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	p, err := h.Engine.Penalties.IssueManual(r.Context(), penalty.ManualInput{
		TenantID:           tenantOf(r),
		UserID:             generic.UserID(req.UserID),
		Category:           penalty.Category(req.Category),
		Reason:             req.Reason,
		Description:        req.Description,
		Amount:             amount,
		Related:            generic.RelatedRef{Kind: generic.RelatedKind(req.RelatedKind), ID: req.RelatedID},
		IssuedBy:           req.IssuedBy,
		AppealDeadlineDays: req.AppealDeadlineDays,
	})
	if err != nil {
		writeDomainError(w, "Failed to issue penalty", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPenaltyDTO(p))
}

func (h *Handler) ListPendingPenalties(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Engine.PendingPenalties(r.Context(), tenantOf(r))
	if err != nil {
		writeDomainError(w, "Failed to list penalties", err)
		return
	}
	writeJSON(w, http.StatusOK, toPenaltyDTOs(ps))
}

func (h *Handler) ListAppeals(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Engine.Penalties.AwaitingAppealReview(r.Context(), tenantOf(r))
	if err != nil {
		writeDomainError(w, "Failed to list appeals", err)
		return
	}
	writeJSON(w, http.StatusOK, toPenaltyDTOs(ps))
}

func (h *Handler) ConfirmPenalty(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Engine.Penalties.Confirm(r.Context(), tenantOf(r), chi.URLParam(r, "id"), req.By)
	h.writePenalty(w, p, err)
}

func (h *Handler) AppealPenalty(w http.ResponseWriter, r *http.Request) {
	var req AppealRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Engine.Penalties.SubmitAppeal(r.Context(), tenantOf(r), chi.URLParam(r, "id"), req.Reason)
	h.writePenalty(w, p, err)
}

func (h *Handler) ReviewAppeal(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Engine.Penalties.ReviewAppeal(r.Context(), tenantOf(r), chi.URLParam(r, "id"), req.By, req.Approve, req.Resolution)
	h.writePenalty(w, p, err)
}

func (h *Handler) CancelPenalty(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Engine.Penalties.Cancel(r.Context(), tenantOf(r), chi.URLParam(r, "id"), req.By, req.Reason)
	h.writePenalty(w, p, err)
}

func (h *Handler) writePenalty(w http.ResponseWriter, p penalty.Penalty, err error) {
	if err != nil {
		writeDomainError(w, "Penalty transition failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toPenaltyDTO(p))
}

// =============================================================================
// BONUS HANDLERS
// =============================================================================

func (h *Handler) CalculateBonus(w http.ResponseWriter, r *http.Request) {
	var req CalculateBonusRequest
	if !h.decode(w, r, &req) {
		return
	}
	pt, start, ok := h.period(w, req.PeriodRequest)
	if !ok {
		return
	}
	calc, err := h.Engine.CalculateBonus(r.Context(), tenantOf(r), generic.UserID(req.UserID), pt, start)
	if err != nil {
		writeDomainError(w, "Failed to calculate bonus", err)
		return
	}
	writeJSON(w, http.StatusOK, toBonusDTO(calc))
}

func (h *Handler) CalculateAllBonuses(w http.ResponseWriter, r *http.Request) {
	var req PeriodRequest
	if !h.decode(w, r, &req) {
		return
	}
	pt, start, ok := h.period(w, req)
	if !ok {
		return
	}
	calcs, err := h.Engine.CalculateBonuses(r.Context(), tenantOf(r), pt, start)
	if err != nil {
		writeDomainError(w, "Failed to calculate bonuses", err)
		return
	}
	writeJSON(w, http.StatusOK, toBonusDTOs(calcs))
}

func (h *Handler) ListPendingBonuses(w http.ResponseWriter, r *http.Request) {
	calcs, err := h.Engine.PendingBonuses(r.Context(), tenantOf(r))
	if err != nil {
		writeDomainError(w, "Failed to list bonuses", err)
		return
	}
	writeJSON(w, http.StatusOK, toBonusDTOs(calcs))
}

func (h *Handler) ApproveBonus(w http.ResponseWriter, r *http.Request) {
	var req ApproveBonusRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.Engine.Bonuses.Approve(r.Context(), tenantOf(r), chi.URLParam(r, "id"), req.By, req.Notes)
	h.writeBonus(w, c, err)
}

func (h *Handler) RejectBonus(w http.ResponseWriter, r *http.Request) {
	var req RejectBonusRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.Engine.Bonuses.Reject(r.Context(), tenantOf(r), chi.URLParam(r, "id"), req.By, req.Reason)
	h.writeBonus(w, c, err)
}

func (h *Handler) CancelBonus(w http.ResponseWriter, r *http.Request) {
	c, err := h.Engine.Bonuses.Cancel(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	h.writeBonus(w, c, err)
}

func (h *Handler) PayBonus(w http.ResponseWriter, r *http.Request) {
	var req PayBonusRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.Engine.Bonuses.MarkPaid(r.Context(), tenantOf(r), chi.URLParam(r, "id"), req.Reference)
	h.writeBonus(w, c, err)
}

// DeductPenalties marks the period's payable penalties as deducted from
// the bonus and returns them.
func (h *Handler) DeductPenalties(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Engine.Bonuses.DeductPenalties(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to deduct penalties", err)
		return
	}
	writeJSON(w, http.StatusOK, toPenaltyDTOs(ps))
}

func (h *Handler) GetNetAmount(w http.ResponseWriter, r *http.Request) {
	c, err := h.Engine.Bonuses.Get(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to load bonus", err)
		return
	}
	net, err := h.Engine.Bonuses.NetAmount(r.Context(), c)
	if err != nil {
		writeDomainError(w, "Failed to compute net amount", err)
		return
	}
	writeJSON(w, http.StatusOK, NetAmountDTO{
		BonusID:     c.ID,
		FinalAmount: c.FinalAmount.StringFixed(2),
		NetAmount:   net.StringFixed(2),
	})
}

func (h *Handler) writeBonus(w http.ResponseWriter, c bonus.Calculation, err error) {
	if err != nil {
		writeDomainError(w, "Bonus transition failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toBonusDTO(c))
}

// =============================================================================
// MEMBER AND FACT ENDPOINTS
// =============================================================================

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	members, err := h.Store.Members(r.Context(), tenantOf(r))
	if err != nil {
		writeDomainError(w, "Failed to list members", err)
		return
	}
	out := make([]MemberDTO, len(members))
	for i, m := range members {
		out[i] = MemberDTO{UserID: string(m.UserID), Role: m.Role}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) SaveMember(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	var req SaveMemberRequest
	if !h.decode(w, r, &req) {
		return
	}
	m := engine.Member{UserID: userOf(r), Role: req.Role}
	if err := h.Store.SaveMember(r.Context(), tenantOf(r), m); err != nil {
		writeDomainError(w, "Failed to save member", err)
		return
	}
	writeJSON(w, http.StatusOK, MemberDTO{UserID: string(m.UserID), Role: m.Role})
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	if err := h.Store.RemoveMember(r.Context(), tenantOf(r), userOf(r)); err != nil {
		writeDomainError(w, "Failed to remove member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecordFacts stores a batch of daily metric values. The batch stops at the
// first failure; earlier facts stay recorded.
func (h *Handler) RecordFacts(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	var req RecordFactsRequest
	if !h.decode(w, r, &req) {
		return
	}
	for i, f := range req.Facts {
		day, err := generic.ParseDate(f.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
			return
		}
		if err := h.Store.RecordFact(r.Context(), tenantOf(r), generic.UserID(f.UserID), f.Metric, day, f.Value); err != nil {
			writeDomainError(w, "Failed to record fact "+strconv.Itoa(i), err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"recorded": len(req.Facts)})
}

// =============================================================================
// HOLIDAY ENDPOINTS
// =============================================================================

func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	hs, err := h.Store.Holidays(r.Context(), tenantOf(r))
	if err != nil {
		writeDomainError(w, "Failed to list holidays", err)
		return
	}
	out := make([]HolidayDTO, len(hs))
	for i, hol := range hs {
		out[i] = toHolidayDTO(hol)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	var req CreateHolidayRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := generic.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}
	hol := generic.Holiday{
		ID:        generic.NewID(),
		TenantID:  tenantOf(r),
		Date:      date,
		Name:      req.Name,
		Recurring: req.Recurring,
	}
	if err := h.Store.SaveHoliday(r.Context(), hol); err != nil {
		writeDomainError(w, "Failed to save holiday", err)
		return
	}
	writeJSON(w, http.StatusCreated, toHolidayDTO(hol))
}

func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	if err := h.Store.DeleteHoliday(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, "Failed to delete holiday", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the engine's error kinds onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	resp := ErrorResponse{Error: message, Details: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case generic.IsNotFound(err):
		status, resp.Code = http.StatusNotFound, "not_found"
	case errors.Is(err, generic.ErrCapExceeded):
		status, resp.Code = http.StatusConflict, "cap_exceeded"
	case generic.IsPrecondition(err):
		status, resp.Code = http.StatusConflict, "precondition_failed"
	case generic.IsClientError(err):
		status, resp.Code = http.StatusBadRequest, "invalid"
	}
	writeJSON(w, status, resp)
}
