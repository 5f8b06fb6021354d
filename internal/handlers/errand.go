package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/starksgalaxy/errands-gobackend/internal/apperr"
	"github.com/starksgalaxy/errands-gobackend/internal/services"
)

type ErrandHandler struct {
	errands  *services.ErrandService
	disputes *services.DisputeService
}

func NewErrandHandler(errands *services.ErrandService, disputes *services.DisputeService) *ErrandHandler {
	return &ErrandHandler{errands: errands, disputes: disputes}
}

func (h *ErrandHandler) Create(w http.ResponseWriter, r *http.Request) {
	posterID, ok := Principal(r.Context())
	if !ok {
		writeError(w, apperr.ErrUnauthenticated)
		return
	}

	var in services.CreateErrandInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, fmt.Errorf("invalid request body: %w", apperr.ErrInvalidArgument))
		return
	}

	errand, err := h.errands.CreateErrand(r.Context(), posterID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, errand)
}

func (h *ErrandHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	posterID, ok := Principal(r.Context())
	if !ok {
		writeError(w, apperr.ErrUnauthenticated)
		return
	}

	errands, err := h.errands.ListMyErrands(r.Context(), posterID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, errands)
}

func (h *ErrandHandler) Get(w http.ResponseWriter, r *http.Request) {
	errand, err := h.errands.GetErrand(r.Context(), mux.Vars(r)["errandID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, errand)
}

func (h *ErrandHandler) SubmitBid(w http.ResponseWriter, r *http.Request) {
	runnerID, ok := Principal(r.Context())
	if !ok {
		writeError(w, apperr.ErrUnauthenticated)
		return
	}

	var req struct {
		Amount  float64 `json:"amount"`
		Message string  `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("invalid request body: %w", apperr.ErrInvalidArgument))
		return
	}

	if err := h.errands.SubmitBid(r.Context(), runnerID, mux.Vars(r)["errandID"], req.Amount, req.Message); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "bid submitted"})
}

func (h *ErrandHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	bids, err := h.errands.ListBids(r.Context(), mux.Vars(r)["errandID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bids)
}

func (h *ErrandHandler) RejectBid(w http.ResponseWriter, r *http.Request) {
	posterID, ok := Principal(r.Context())
	if !ok {
		writeError(w, apperr.ErrUnauthenticated)
		return
	}

	var req struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("invalid request body: %w", apperr.ErrInvalidArgument))
		return
	}

	if err := h.errands.RejectBid(r.Context(), posterID, mux.Vars(r)["errandID"], req.Index); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "bid rejected"})
}

func (h *ErrandHandler) Start(w http.ResponseWriter, r *http.Request) {
	runnerID, ok := Principal(r.Context())
	if !ok {
		writeError(w, apperr.ErrUnauthenticated)
		return
	}

	if err := h.errands.StartWork(r.Context(), runnerID, mux.Vars(r)["errandID"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "errand started"})
}

func (h *ErrandHandler) RequestCompletion(w http.ResponseWriter, r *http.Request) {
	runnerID, ok := Principal(r.Context())
	if !ok {
		writeError(w, apperr.ErrUnauthenticated)
		return
	}

	var req struct {
		Notes string `json:"notes"`
	}
	// Body is optional here.
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.errands.RequestCompletion(r.Context(), runnerID, mux.Vars(r)["errandID"], req.Notes); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "completion requested"})
}

func (h *ErrandHandler) Approve(w http.ResponseWriter, r *http.Request) {
	posterID, ok := Principal(r.Context())
	if !ok {
		writeError(w, apperr.ErrUnauthenticated)
		return
	}

	if err := h.errands.ApproveCompletion(r.Context(), posterID, mux.Vars(r)["errandID"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "completion approved, funds released"})
}

func (h *ErrandHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	posterID, ok := Principal(r.Context())
	if !ok {
		writeError(w, apperr.ErrUnauthenticated)
		return
	}

	var req struct {
		Reason      string `json:"reason"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("invalid request body: %w", apperr.ErrInvalidArgument))
		return
	}

	dispute, err := h.disputes.RaiseDispute(r.Context(), posterID, mux.Vars(r)["errandID"], req.Reason, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dispute)
}
