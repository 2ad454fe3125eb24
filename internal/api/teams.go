package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pulsevault/pulsevault/internal/auth"
	"github.com/pulsevault/pulsevault/internal/datastore"
	"github.com/pulsevault/pulsevault/pkg/models"
)

type teamHandler struct {
	ds *datastore.Datastore
}

func (h *teamHandler) create(w http.ResponseWriter, r *http.Request) {
	var req models.TeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", requestIDFrom(r))
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", requestIDFrom(r))
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())
	if err := h.ds.AddTeam(req, id.UserID); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (h *teamHandler) list(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	teams, err := h.ds.GetTeams(id.UserID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

func (h *teamHandler) mine(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	teams, err := h.ds.GetUserTeams(id.UserID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

func (h *teamHandler) get(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "teamID")
	if !ok {
		return
	}
	team, err := h.ds.GetTeam(teamID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	count, err := h.ds.GetTeamMembersCount(teamID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"team": team, "members": count})
}

func (h *teamHandler) members(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "teamID")
	if !ok {
		return
	}
	members, err := h.ds.GetTeamMembers(teamID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

type addMembersRequest struct {
	UserIDs []int64 `json:"user_ids"`
}

func (h *teamHandler) addMembers(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "teamID")
	if !ok {
		return
	}
	var req addMembersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", requestIDFrom(r))
		return
	}
	if len(req.UserIDs) == 0 {
		writeError(w, http.StatusBadRequest, "user_ids must not be empty", requestIDFrom(r))
		return
	}
	if err := h.ds.AddMembers(teamID, req.UserIDs); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *teamHandler) removeMember(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "teamID")
	if !ok {
		return
	}
	memberID, ok := pathID(w, r, "memberID")
	if !ok {
		return
	}
	if err := h.ds.RemoveMember(teamID, memberID); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type configurationRequest struct {
	Apps []string `json:"apps"`
}

func (h *teamHandler) addConfiguration(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "teamID")
	if !ok {
		return
	}
	var req configurationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", requestIDFrom(r))
		return
	}
	if err := h.ds.AddTeamConfiguration(teamID, strings.Join(req.Apps, ",")); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (h *teamHandler) updateConfiguration(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "teamID")
	if !ok {
		return
	}
	var req configurationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", requestIDFrom(r))
		return
	}
	if err := h.ds.UpdateTeamConfiguration(teamID, strings.Join(req.Apps, ",")); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *teamHandler) getConfiguration(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "teamID")
	if !ok {
		return
	}
	cfg, err := h.ds.GetTeamConfiguration(teamID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}
