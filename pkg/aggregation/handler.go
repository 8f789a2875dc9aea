package aggregation

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type LimitDTO struct {
	Limit int64 `json:"limit"`
}

type TeamThresholdDTO struct {
	Team             string `json:"team"`
	Threshold        int64  `json:"threshold"`
	AdditionalBudget int64  `json:"additionalBudget"`
}

type TeamTotalDTO struct {
	Team      string `json:"team"`
	Total     int64  `json:"total"`
	Threshold int64  `json:"threshold,omitempty"`
	Exceeded  bool   `json:"exceeded"`
}

type WindowDTO struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine}
}

func (handler *Handler) CurrentWindow(w http.ResponseWriter, r *http.Request) {
	window := handler.engine.CurrentWindow()
	writeJSON(w, http.StatusOK, WindowDTO{From: window.From(), To: window.To()})
}

func (handler *Handler) SetLimit(w http.ResponseWriter, r *http.Request) {
	log.Debug("Setting limit")
	code := strings.ToUpper(strings.TrimSpace(mux.Vars(r)["code"]))
	var limitDTO LimitDTO
	if err := json.NewDecoder(r.Body).Decode(&limitDTO); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !handler.engine.SetLimit(r.Context(), code, limitDTO.Limit) {
		http.Error(w, "could not store limit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, limitDTO)
}

func (handler *Handler) GetTeamTotal(w http.ResponseWriter, r *http.Request) {
	team := mux.Vars(r)["team"]
	total := TeamTotalDTO{Team: team, Total: handler.engine.TeamMonthlyTotal(r.Context(), team)}
	if threshold, ok := handler.engine.GetTeamThreshold(r.Context(), team); ok {
		total.Team = threshold.Team
		total.Threshold = threshold.Threshold
		total.Exceeded = threshold.Threshold > 0 && total.Total > threshold.Threshold
	}
	writeJSON(w, http.StatusOK, total)
}

func (handler *Handler) SetTeamThreshold(w http.ResponseWriter, r *http.Request) {
	log.Debug("Setting team threshold")
	team := mux.Vars(r)["team"]
	var thresholdDTO TeamThresholdDTO
	if err := json.NewDecoder(r.Body).Decode(&thresholdDTO); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !handler.engine.SetTeamThreshold(r.Context(), team, thresholdDTO.Threshold, thresholdDTO.AdditionalBudget) {
		http.Error(w, "could not store threshold", http.StatusInternalServerError)
		return
	}
	threshold, ok := handler.engine.GetTeamThreshold(r.Context(), team)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, TeamThresholdDTO{
		Team:             threshold.Team,
		Threshold:        threshold.Threshold,
		AdditionalBudget: threshold.AdditionalBudget,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("could not encode response: %v", err)
	}
}
