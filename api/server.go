/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for dashboards

ROUTE GROUPS:
  /api/health                       Liveness
  /api/scenarios                    Demo scenario catalog
  /api/tenants/{tenantID}/*         Everything tenant scoped

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter builds the API. An empty origins list allows any origin.
func NewRouter(h *Handler, origins []string) *chi.Mux {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.Get("/scenarios", h.ListScenarios)

		r.Route("/tenants/{tenantID}", func(r chi.Router) {
			r.Post("/rules", h.InstallRules)
			r.Post("/scenarios/load", h.LoadScenario)
			r.Get("/kpis", h.ListKPIs)
			r.Get("/penalty-rules", h.ListPenaltyRules)
			r.Get("/bonus-settings", h.ListBonusSettings)

			r.Route("/achievements", func(r chi.Router) {
				r.Get("/", h.ListAchievements)
				r.Post("/seed", h.SeedAchievements)
			})

			r.Route("/targets", func(r chi.Router) {
				r.Post("/", h.CreateTarget)
				r.Post("/{id}/actual", h.RecordActual)
				r.Post("/{id}/adjust", h.AdjustTarget)
			})

			r.Route("/periods", func(r chi.Router) {
				r.Post("/recompute", h.RecomputePeriod)
				r.Post("/publish", h.PublishPeriod)
			})
			r.Get("/leaderboard", h.GetLeaderboard)
			r.Get("/leaderboard/entries", h.GetEntries)
			r.Get("/medals", h.GetMedalTable)

			r.Route("/users/{userID}", func(r chi.Router) {
				r.Get("/summary", h.GetUserSummary)
				r.Get("/rank-history", h.GetRankHistory)
				r.Get("/streaks", h.GetStreaks)
				r.Post("/activity", h.RecordActivity)
				r.Post("/streaks/{type}/freeze", h.FreezeStreak)
				r.Post("/streaks/{type}/unfreeze", h.UnfreezeStreak)
				r.Get("/achievements", h.GetUserAchievements)
				r.Get("/points", h.GetPoints)
				r.Post("/points", h.AwardPoints)
				r.Post("/points/spend", h.SpendPoints)
				r.Get("/transactions", h.GetTransactions)
				r.Get("/penalties", h.GetUserPenalties)
				r.Get("/bonuses", h.GetUserBonuses)
			})

			r.Route("/penalties", func(r chi.Router) {
				r.Post("/", h.IssuePenalty)
				r.Post("/trigger", h.TriggerPenalty)
				r.Get("/pending", h.ListPendingPenalties)
				r.Get("/appeals", h.ListAppeals)
				r.Post("/{id}/confirm", h.ConfirmPenalty)
				r.Post("/{id}/appeal", h.AppealPenalty)
				r.Post("/{id}/review", h.ReviewAppeal)
				r.Post("/{id}/cancel", h.CancelPenalty)
			})

			r.Route("/bonuses", func(r chi.Router) {
				r.Post("/calculate", h.CalculateBonus)
				r.Post("/calculate-all", h.CalculateAllBonuses)
				r.Get("/pending", h.ListPendingBonuses)
				r.Post("/{id}/approve", h.ApproveBonus)
				r.Post("/{id}/reject", h.RejectBonus)
				r.Post("/{id}/cancel", h.CancelBonus)
				r.Post("/{id}/pay", h.PayBonus)
				r.Post("/{id}/deduct-penalties", h.DeductPenalties)
				r.Get("/{id}/net", h.GetNetAmount)
			})

			r.Post("/activity", h.RecordActivity)
			r.Post("/facts", h.RecordFacts)
			r.Route("/members", func(r chi.Router) {
				r.Get("/", h.ListMembers)
				r.Put("/{userID}", h.SaveMember)
				r.Delete("/{userID}", h.RemoveMember)
			})

			r.Route("/holidays", func(r chi.Router) {
				r.Get("/", h.ListHolidays)
				r.Post("/", h.CreateHoliday)
				r.Delete("/{id}", h.DeleteHoliday)
			})
		})
	})

	return r
}
