package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pulsevault/pulsevault/internal/auth"
	"github.com/pulsevault/pulsevault/internal/datastore"
	"github.com/pulsevault/pulsevault/pkg/models"
)

type userHandler struct {
	ds  *datastore.Datastore
	jwt *auth.JWT
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string            `json:"token"`
	User  models.PublicUser `json:"user"`
}

func (h *userHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", requestIDFrom(r))
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required", requestIDFrom(r))
		return
	}

	user, err := h.ds.GetUserByEmail(req.Email)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials", requestIDFrom(r))
		return
	}
	ok, err := auth.VerifyPassword(req.Password, user.Password)
	if err != nil || !ok {
		writeError(w, http.StatusUnauthorized, "invalid credentials", requestIDFrom(r))
		return
	}

	token, err := h.jwt.Sign(user.ID, user.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token", requestIDFrom(r))
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user.Public()})
}

func (h *userHandler) signup(w http.ResponseWriter, r *http.Request) {
	var user models.User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", requestIDFrom(r))
		return
	}
	user.Email = strings.TrimSpace(strings.ToLower(user.Email))
	if user.Email == "" || len(user.Password) < 8 {
		writeError(w, http.StatusBadRequest, "email and a password of at least 8 characters are required", requestIDFrom(r))
		return
	}

	created, err := h.ds.AddUser(user)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *userHandler) me(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	user, err := h.ds.GetUser(id.UserID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *userHandler) list(w http.ResponseWriter, r *http.Request) {
	users, err := h.ds.GetAllUsers()
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}
