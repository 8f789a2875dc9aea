package ledger

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type EntryDTO struct {
	ID                   string `json:"id"`
	BudgetID             string `json:"budgetId"`
	Team                 string `json:"team"`
	ContractCode         string `json:"contractCode"`
	OriginalContractCode string `json:"originalContractCode,omitempty"`
	Area                 string `json:"area"`
	GroupName            string `json:"groupName,omitempty"`
	ChatID               int64  `json:"chatId,omitempty"`
	Amount               int64  `json:"amount"`
	Status               string `json:"status"`
	Timestamp            int64  `json:"timestamp"`
	EndTime              int64  `json:"endTime,omitempty"`
	Assistant            string `json:"assistant,omitempty"`
	Note                 string `json:"note,omitempty"`
}

// PatchDTO carries the fields an admin may correct. Absent fields are left unchanged.
type PatchDTO struct {
	Team         *string     `json:"team,omitempty"`
	ContractCode *string     `json:"contractCode,omitempty"`
	GroupName    *string     `json:"groupName,omitempty"`
	Assistant    *string     `json:"assistant,omitempty"`
	Note         *string     `json:"note,omitempty"`
	Timestamp    *int64      `json:"timestamp,omitempty"`
	Amount       json.Number `json:"amount,omitempty"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service}
}

func (handler *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	log.Debug("Listing ledger entries")
	entries := handler.service.ListAll(r.Context())
	entriesDTO := make([]EntryDTO, 0, len(entries))
	for _, entry := range entries {
		entriesDTO = append(entriesDTO, EntryToDTO(entry))
	}
	writeJSON(w, http.StatusOK, entriesDTO)
}

func (handler *Handler) ListBudgetIDs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, handler.service.ListBudgetIDs(r.Context()))
}

func (handler *Handler) GetBudget(w http.ResponseWriter, r *http.Request) {
	budgetID := mux.Vars(r)["budgetId"]
	entry, ok := handler.service.GetByBudgetID(r.Context(), budgetID)
	if !ok {
		http.Error(w, "budget not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, EntryToDTO(entry))
}

func (handler *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entry, ok := handler.service.GetByID(r.Context(), mux.Vars(r)["entryId"])
	if !ok {
		http.Error(w, "entry not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, EntryToDTO(entry))
}

func (handler *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	log.Debug("Updating ledger entry")
	id := mux.Vars(r)["entryId"]
	var patchDTO PatchDTO
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&patchDTO); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	patch := Patch{
		Team:         patchDTO.Team,
		ContractCode: patchDTO.ContractCode,
		GroupName:    patchDTO.GroupName,
		Assistant:    patchDTO.Assistant,
		Note:         patchDTO.Note,
		Timestamp:    patchDTO.Timestamp,
	}
	if patchDTO.Amount != "" {
		patch.Amount = patchDTO.Amount
	}

	updated, err := handler.service.UpdateFields(r.Context(), id, patch)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !updated {
		http.Error(w, "entry not updated", http.StatusNotFound)
		return
	}
	entry, ok := handler.service.GetByID(r.Context(), id)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, EntryToDTO(entry))
}

func EntryToDTO(entry Entry) EntryDTO {
	return EntryDTO{
		ID:                   entry.ID,
		BudgetID:             entry.BudgetID,
		Team:                 entry.Team,
		ContractCode:         entry.ContractCode,
		OriginalContractCode: entry.OriginalContractCode,
		Area:                 entry.Area,
		GroupName:            entry.GroupName,
		ChatID:               entry.ChatID,
		Amount:               entry.Amount,
		Status:               string(entry.Status),
		Timestamp:            entry.Timestamp,
		EndTime:              entry.EndTime,
		Assistant:            entry.Assistant,
		Note:                 entry.Note,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("could not encode response: %v", err)
	}
}
