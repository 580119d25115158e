package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/pbeck/parley/internal/auth"
	"github.com/pbeck/parley/internal/middleware"
	"github.com/pbeck/parley/internal/models"
	"github.com/pbeck/parley/internal/store"
)

type AuthHandler struct {
	Store  store.Store
	Tokens *auth.TokenManager
	// Secure marks the session cookie; on in production.
	Secure bool
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
		Password    string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, "Malformed body", nil)
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, "Internal Server Error", nil)
		return
	}

	user := &models.User{
		ID:          uuid.NewString(),
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Password:    hashed,
	}
	if err := h.Store.CreateUser(user); err != nil {
		writeJSON(w, http.StatusConflict, "Username already exists", nil)
		return
	}

	writeJSON(w, http.StatusCreated, "Created new user", envelope{"user": user})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, "Malformed body", nil)
		return
	}

	user, err := h.Store.UserByUsername(creds.Username)
	if err != nil || user == nil {
		writeJSON(w, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}
	if err := auth.CheckPassword(user.Password, creds.Password); err != nil {
		writeJSON(w, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}

	token, err := h.Tokens.Mint(user.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, "Internal Server Error", nil)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, "Logged in", envelope{"user": user})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, "Logged out", nil)
}

func (h *AuthHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusOK, "Found 0 user(s)", envelope{"users": []models.UserRef{}})
		return
	}

	users, err := h.Store.SearchUsers(query)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, "Internal Server Error", nil)
		return
	}
	if users == nil {
		users = []models.UserRef{}
	}
	writeJSON(w, http.StatusOK, "Found user(s)", envelope{"users": users})
}
