package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/egannguyen/autoparts-marketplace/internal/entity"
	"github.com/egannguyen/autoparts-marketplace/internal/service"
)

func (h *Handler) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req service.TransactionRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.transactionSvc.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.transactionSvc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

type transactionStatusRequest struct {
	Status        entity.TransactionStatus `json:"status"`
	PaymentStatus *entity.PaymentStatus    `json:"payment_status,omitempty"`
}

func (h *Handler) handleUpdateTransactionStatus(w http.ResponseWriter, r *http.Request) {
	var req transactionStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	tx, err := h.transactionSvc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.PaymentStatus)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) handleCancelTransaction(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	tx, err := h.transactionSvc.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) handleTransactionWarranties(w http.ResponseWriter, r *http.Request) {
	warranties, err := h.warrantySvc.ListByTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, warranties)
}

func (h *Handler) handleTransactionIssuances(w http.ResponseWriter, r *http.Request) {
	requests, err := h.transactionSvc.Issuances(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (h *Handler) handleGetProtection(w http.ResponseWriter, r *http.Request) {
	st, err := h.ledgerSvc.GetByTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleProtectionHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.ledgerSvc.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

type protectionEventRequest struct {
	Type        string            `json:"type"`
	Description string            `json:"description"`
	Amount      *decimal.Decimal  `json:"amount,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (h *Handler) handleRecordProtectionEvent(w http.ResponseWriter, r *http.Request) {
	var req protectionEventRequest
	if !h.decode(w, r, &req) {
		return
	}
	st, err := h.ledgerSvc.RecordEvent(r.Context(), chi.URLParam(r, "id"), req.Type, req.Description, req.Amount, req.Metadata)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleBuyerTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.transactionSvc.ListByBuyer(r.Context(), chi.URLParam(r, "buyerID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}
