package access

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type MemberDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
	Area string `json:"area,omitempty"`
}

// Handler manages the stored authorization lists and keeps the authorizer's cache in step.
type Handler struct {
	repo       MemberRepository
	authorizer *Authorizer
}

func NewHandler(repo MemberRepository, authorizer *Authorizer) *Handler {
	return &Handler{repo: repo, authorizer: authorizer}
}

func (handler *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	role, ok := parseRole(w, r)
	if !ok {
		return
	}
	members, err := handler.authorizer.Members(r.Context(), role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	membersDTO := make([]MemberDTO, 0, len(members))
	for _, m := range members {
		membersDTO = append(membersDTO, MemberDTO(m))
	}
	writeJSON(w, http.StatusOK, membersDTO)
}

func (handler *Handler) PutMember(w http.ResponseWriter, r *http.Request) {
	log.Debug("Storing access member")
	role, ok := parseRole(w, r)
	if !ok {
		return
	}
	var memberDTO MemberDTO
	if err := json.NewDecoder(r.Body).Decode(&memberDTO); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if memberDTO.ID == 0 {
		http.Error(w, "member id is required", http.StatusBadRequest)
		return
	}
	if err := handler.repo.Upsert(r.Context(), role, Member(memberDTO)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	handler.authorizer.Refresh(role)
	writeJSON(w, http.StatusOK, memberDTO)
}

func (handler *Handler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	log.Debug("Removing access member")
	role, ok := parseRole(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["memberId"], 10, 64)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	removed, err := handler.repo.Remove(r.Context(), role, id, r.URL.Query().Get("area"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !removed {
		http.Error(w, "member not found", http.StatusNotFound)
		return
	}
	handler.authorizer.Refresh(role)
	w.WriteHeader(http.StatusNoContent)
}

func parseRole(w http.ResponseWriter, r *http.Request) (Role, bool) {
	role := Role(mux.Vars(r)["role"])
	switch role {
	case RoleRoom, RoleAssistant, RoleOperator:
		return role, true
	}
	http.Error(w, "unknown role", http.StatusBadRequest)
	return "", false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("could not encode response: %v", err)
	}
}
