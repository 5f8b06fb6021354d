package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/starksgalaxy/errands-gobackend/internal/apperr"
	"github.com/starksgalaxy/errands-gobackend/internal/services"
)

type UserHandler struct {
	service *services.UserService
}

func NewUserHandler(service *services.UserService) *UserHandler {
	return &UserHandler{service: service}
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Phone    string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("invalid request body: %w", apperr.ErrInvalidArgument))
		return
	}

	user, err := h.service.Register(r.Context(), req.Name, req.Email, req.Password, req.Phone)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": user.ID})
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("invalid request body: %w", apperr.ErrInvalidArgument))
		return
	}

	token, user, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  user,
	})
}

func (h *UserHandler) TopUpWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := Principal(r.Context())
	if !ok {
		writeError(w, apperr.ErrUnauthenticated)
		return
	}

	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("invalid request body: %w", apperr.ErrInvalidArgument))
		return
	}

	if err := h.service.TopUpWallet(r.Context(), userID, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "wallet topped up"})
}

func (h *UserHandler) Wallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := Principal(r.Context())
	if !ok {
		writeError(w, apperr.ErrUnauthenticated)
		return
	}

	balance, txns, err := h.service.Wallet(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"balance":      balance,
		"transactions": txns,
	})
}
