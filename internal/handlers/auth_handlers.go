package handlers

import (
	"encoding/json"
	"net/http"

	"chat-server/internal/auth"
	"chat-server/internal/database"
	"chat-server/internal/models"
	"chat-server/pkg/logger"
)

type AuthHandlers struct {
	authService *auth.Service
	db          database.Store
}

func NewAuthHandlers(authService *auth.Service, db database.Store) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		db:          db,
	}
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	response, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		logger.Error("Registration error: %v", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, response)
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	response, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		logger.Error("Login error: %v", err)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)

	user, err := h.db.GetUserByID(r.Context(), identity.ID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// ListUsers backs the DM partner picker; it returns everyone but the caller.
func (h *AuthHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)

	users, err := h.db.ListUsers(r.Context())
	if err != nil {
		logger.Error("List users error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]*models.User, 0, len(users))
	for _, u := range users {
		if u.ID != identity.ID {
			out = append(out, u)
		}
	}

	writeJSON(w, http.StatusOK, out)
}
