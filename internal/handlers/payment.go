package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/starksgalaxy/errands-gobackend/internal/apperr"
	"github.com/starksgalaxy/errands-gobackend/internal/services"
)

type PaymentHandler struct {
	service *services.PaymentService
}

func NewPaymentHandler(service *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// InitiateBidPayment triggers the STK push for an accepted bid.
func (h *PaymentHandler) InitiateBidPayment(w http.ResponseWriter, r *http.Request) {
	posterID, ok := Principal(r.Context())
	if !ok {
		writeError(w, apperr.ErrUnauthenticated)
		return
	}

	var req struct {
		BidIndex    *int   `json:"bid_index"`
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("invalid request body: %w", apperr.ErrInvalidArgument))
		return
	}
	if req.BidIndex == nil || req.PhoneNumber == "" {
		writeError(w, fmt.Errorf("bid_index and phone_number are required: %w", apperr.ErrInvalidArgument))
		return
	}

	result, err := h.service.InitiateBidPayment(r.Context(), posterID, mux.Vars(r)["errandID"], *req.BidIndex, req.PhoneNumber)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"payment_id":     result.PaymentID,
		"transaction_id": result.TransactionID,
		"message":        result.Message,
	})
}

// Callback is the gateway webhook. Processing failures other than an
// unknown transaction are acknowledged with 200 so the gateway does not
// redeliver forever; the payment keeps its last known state.
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TransactionID string `json:"transaction_id"`
		Status        string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, `{"error":"invalid callback payload"}`, http.StatusBadRequest)
		return
	}
	if payload.TransactionID == "" {
		http.Error(w, `{"error":"transaction_id required"}`, http.StatusBadRequest)
		return
	}

	if err := h.service.HandleCallback(r.Context(), payload.TransactionID, payload.Status); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeError(w, err)
			return
		}
		log.Printf("Callback processing failed for txn=%s: %v", payload.TransactionID, err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *PaymentHandler) CheckPaymentStatus(w http.ResponseWriter, r *http.Request) {
	callerID, ok := Principal(r.Context())
	if !ok {
		writeError(w, apperr.ErrUnauthenticated)
		return
	}

	payment, err := h.service.CheckPaymentStatus(r.Context(), callerID, mux.Vars(r)["paymentID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     payment.Status,
		"amount":     payment.Amount,
		"created_at": payment.CreatedAt,
	})
}

func (h *PaymentHandler) GetPaymentHistory(w http.ResponseWriter, r *http.Request) {
	callerID, ok := Principal(r.Context())
	if !ok {
		writeError(w, apperr.ErrUnauthenticated)
		return
	}

	payments, err := h.service.GetPaymentHistory(r.Context(), callerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
}
