package app

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies, health *HealthHandler) {

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/healthz", health.Check).Methods("GET")

	// Budget workflow
	r.HandleFunc("/api/budget", deps.BudgetRequestHandler.Propose).Methods("POST")
	r.HandleFunc("/api/budget/confirmation/{token}", deps.BudgetRequestHandler.Approve).Methods("POST")
	r.HandleFunc("/api/budget/{budgetId}/complete", deps.BudgetRequestHandler.Complete).Methods("POST")
	r.HandleFunc("/api/budget/{budgetId}", deps.BudgetRequestHandler.Delete).Methods("DELETE")
	r.HandleFunc("/api/confirmation/{kind}/{token}", deps.BudgetRequestHandler.Reject).Methods("DELETE")
	r.HandleFunc("/api/refund", deps.BudgetRequestHandler.Refund).Methods("POST")
	r.HandleFunc("/api/spend", deps.BudgetRequestHandler.Spend).Queries("codes", "{codes}").Methods("GET")
	r.HandleFunc("/api/spend", deps.BudgetRequestHandler.SpendByPrefix).Queries("prefix", "{prefix}").Methods("GET")

	// Reports, holds and deposits
	r.HandleFunc("/api/report", deps.BudgetRequestHandler.StageReport).Methods("POST")
	r.HandleFunc("/api/report/{token}", deps.BudgetRequestHandler.ApproveReport).Methods("POST")
	r.HandleFunc("/api/hold", deps.BudgetRequestHandler.StageHold).Methods("POST")
	r.HandleFunc("/api/hold/{token}", deps.BudgetRequestHandler.ApproveHold).Methods("POST")
	r.HandleFunc("/api/deposit", deps.BudgetRequestHandler.StageDeposit).Methods("POST")
	r.HandleFunc("/api/deposit/{token}", deps.BudgetRequestHandler.ApproveDeposit).Methods("POST")

	// Ledger
	r.HandleFunc("/api/ledger", deps.LedgerHandler.ListEntries).Methods("GET")
	r.HandleFunc("/api/ledger/budget", deps.LedgerHandler.ListBudgetIDs).Methods("GET")
	r.HandleFunc("/api/ledger/budget/{budgetId}", deps.LedgerHandler.GetBudget).Methods("GET")
	r.HandleFunc("/api/ledger/entry/{entryId}", deps.LedgerHandler.GetEntry).Methods("GET")

	// Aggregation
	r.HandleFunc("/api/window", deps.AggregationHandler.CurrentWindow).Methods("GET")
	r.HandleFunc("/api/team/{team}/total", deps.AggregationHandler.GetTeamTotal).Methods("GET")

	// Administration
	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.Use(requireAdmin(deps))
	admin.HandleFunc("/ledger/entry/{entryId}", deps.LedgerHandler.UpdateEntry).Methods("PATCH")
	admin.HandleFunc("/limit/{code}", deps.AggregationHandler.SetLimit).Methods("PUT")
	admin.HandleFunc("/team/{team}/threshold", deps.AggregationHandler.SetTeamThreshold).Methods("PUT")
	admin.HandleFunc("/access/{role}", deps.AccessHandler.ListMembers).Methods("GET")
	admin.HandleFunc("/access/{role}", deps.AccessHandler.PutMember).Methods("PUT")
	admin.HandleFunc("/access/{role}/{memberId}", deps.AccessHandler.DeleteMember).Methods("DELETE")
}
