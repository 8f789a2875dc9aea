package budget_request

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/RitoIssei/bot-mng-ns/pkg/confirmation"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type RequestDTO struct {
	Team      string `json:"team"`
	Codes     string `json:"codes"`
	Amount    string `json:"amount"`
	GroupName string `json:"groupName,omitempty"`
	ChatID    int64  `json:"chatId,omitempty"`
	Note      string `json:"note,omitempty"`
}

type LineDTO struct {
	Code      string `json:"code"`
	Original  string `json:"original,omitempty"`
	Count     int    `json:"count"`
	Share     int64  `json:"share"`
	Current   int64  `json:"current"`
	Projected int64  `json:"projected"`
	Limit     int64  `json:"limit,omitempty"`
	Exceeded  bool   `json:"exceeded"`
	OverBy    int64  `json:"overBy,omitempty"`
}

type ProposalDTO struct {
	Token    string    `json:"token"`
	BudgetID string    `json:"budgetId"`
	Team     string    `json:"team"`
	Amount   int64     `json:"amount"`
	Lines    []LineDTO `json:"lines"`
	Note     string    `json:"note,omitempty"`
}

type ApprovalDTO struct {
	BudgetID  string           `json:"budgetId"`
	Team      string           `json:"team"`
	Timestamp int64            `json:"timestamp"`
	Shares    map[string]int64 `json:"shares"`
}

type CompleteDTO struct {
	Amount string `json:"amount,omitempty"`
}

type CompletionDTO struct {
	BudgetID  string           `json:"budgetId"`
	Team      string           `json:"team"`
	Completed int              `json:"completed"`
	Spend     map[string]int64 `json:"spend"`
}

type RefundRequestDTO struct {
	Team      string `json:"team"`
	Code      string `json:"code"`
	Amount    string `json:"amount"`
	Period    string `json:"period,omitempty"`
	GroupName string `json:"groupName,omitempty"`
	ChatID    int64  `json:"chatId,omitempty"`
	Note      string `json:"note,omitempty"`
}

type RefundDTO struct {
	ID        string `json:"id"`
	Team      string `json:"team"`
	Code      string `json:"code"`
	Amount    int64  `json:"amount"`
	Timestamp int64  `json:"timestamp"`
	Total     int64  `json:"total"`
}

type TokenDTO struct {
	Token string `json:"token"`
}

type DeletedDTO struct {
	Deleted int `json:"deleted"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service}
}

func (handler *Handler) Propose(w http.ResponseWriter, r *http.Request) {
	log.Debug("Proposing budget")
	var requestDTO RequestDTO
	if err := json.NewDecoder(r.Body).Decode(&requestDTO); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	proposal, err := handler.service.Propose(r.Context(), Request(requestDTO))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, proposalToDTO(proposal))
}

func (handler *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	log.Debug("Approving budget")
	actor, err := CurrentActor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	approval, err := handler.service.Approve(r.Context(), mux.Vars(r)["token"], actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ApprovalDTO{
		BudgetID:  approval.BudgetID,
		Team:      approval.Team,
		Timestamp: approval.Timestamp,
		Shares:    approval.Shares,
	})
}

func (handler *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	log.Debug("Rejecting confirmation")
	actor, err := CurrentActor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	vars := mux.Vars(r)
	if err := handler.service.Reject(r.Context(), confirmation.Kind(vars["kind"]), vars["token"], actor); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (handler *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	log.Debug("Completing budget")
	var completeDTO CompleteDTO
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&completeDTO); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	completion, err := handler.service.Complete(r.Context(), mux.Vars(r)["budgetId"], completeDTO.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CompletionDTO(completion))
}

func (handler *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log.Debug("Deleting budget")
	actor, err := CurrentActor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	deleted, err := handler.service.Delete(r.Context(), mux.Vars(r)["budgetId"], actor)
	if err != nil {
		writeError(w, err)
		return
	}
	if deleted == 0 {
		http.Error(w, "budget not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, DeletedDTO{Deleted: deleted})
}

func (handler *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	log.Debug("Booking refund")
	actor, err := CurrentActor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	var refundDTO RefundRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&refundDTO); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	refund, err := handler.service.Refund(r.Context(), RefundRequest(refundDTO), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, RefundDTO(refund))
}

func (handler *Handler) Spend(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	writeJSON(w, http.StatusOK, handler.service.Spend(r.Context(), query.Get("team"), query.Get("codes")))
}

func (handler *Handler) SpendByPrefix(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	writeJSON(w, http.StatusOK, handler.service.SpendByPrefix(r.Context(), query.Get("team"), query.Get("prefix")))
}

func (handler *Handler) StageReport(w http.ResponseWriter, r *http.Request) {
	var report confirmation.SpendReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	stage(w, func() (string, error) { return handler.service.StageReport(r.Context(), report) })
}

func (handler *Handler) ApproveReport(w http.ResponseWriter, r *http.Request) {
	approve(w, r, handler.service.ApproveReport)
}

func (handler *Handler) StageHold(w http.ResponseWriter, r *http.Request) {
	var hold confirmation.Hold
	if err := json.NewDecoder(r.Body).Decode(&hold); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	stage(w, func() (string, error) { return handler.service.StageHold(r.Context(), hold) })
}

func (handler *Handler) ApproveHold(w http.ResponseWriter, r *http.Request) {
	approve(w, r, handler.service.ApproveHold)
}

func (handler *Handler) StageDeposit(w http.ResponseWriter, r *http.Request) {
	var deposit confirmation.Deposit
	if err := json.NewDecoder(r.Body).Decode(&deposit); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	stage(w, func() (string, error) { return handler.service.StageDeposit(r.Context(), deposit) })
}

func (handler *Handler) ApproveDeposit(w http.ResponseWriter, r *http.Request) {
	approve(w, r, handler.service.ApproveDeposit)
}

func stage(w http.ResponseWriter, stageFn func() (string, error)) {
	token, err := stageFn()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, TokenDTO{Token: token})
}

func approve[T confirmation.Payload](w http.ResponseWriter, r *http.Request, approveFn func(ctx context.Context, token string, actor Actor) (T, error)) {
	actor, err := CurrentActor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	payload, err := approveFn(r.Context(), mux.Vars(r)["token"], actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func proposalToDTO(proposal Proposal) ProposalDTO {
	lines := make([]LineDTO, 0, len(proposal.Lines))
	for _, line := range proposal.Lines {
		lines = append(lines, LineDTO{
			Code:      line.Code,
			Original:  line.Original,
			Count:     line.Count,
			Share:     line.Share,
			Current:   line.Current,
			Projected: line.Projected,
			Limit:     line.Threshold.Limit,
			Exceeded:  line.Threshold.Exceeded,
			OverBy:    line.Threshold.OverBy,
		})
	}
	return ProposalDTO{
		Token:    proposal.Token,
		BudgetID: proposal.BudgetID,
		Team:     proposal.Team,
		Amount:   proposal.Amount,
		Lines:    lines,
		Note:     proposal.Note,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("could not encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrMissingFields), errors.Is(err, ErrInvalidAmount), errors.Is(err, confirmation.ErrUnknownKind):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNoActor):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, confirmation.ErrNotFound), errors.Is(err, ErrNothingPending):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrLedgerUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
