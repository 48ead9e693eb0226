package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/egannguyen/autoparts-marketplace/internal/entity"
	"github.com/egannguyen/autoparts-marketplace/internal/service"
)

func (h *Handler) writeClaim(w http.ResponseWriter, status int, c *entity.Claim) {
	writeJSON(w, status, h.claimSvc.View(c))
}

func (h *Handler) handleFileClaim(w http.ResponseWriter, r *http.Request) {
	var req service.ClaimRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.claimSvc.File(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeClaim(w, http.StatusCreated, c)
}

func (h *Handler) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	c, err := h.claimSvc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeClaim(w, http.StatusOK, c)
}

func (h *Handler) handleGetClaimByNumber(w http.ResponseWriter, r *http.Request) {
	c, err := h.claimSvc.GetByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeClaim(w, http.StatusOK, c)
}

func (h *Handler) handleUpdateClaim(w http.ResponseWriter, r *http.Request) {
	var req service.ClaimUpdate
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.claimSvc.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeClaim(w, http.StatusOK, c)
}

type claimStatusRequest struct {
	Status entity.ClaimStatus `json:"status"`
	Notes  string             `json:"notes,omitempty"`
}

func (h *Handler) handleUpdateClaimStatus(w http.ResponseWriter, r *http.Request) {
	var req claimStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.claimSvc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeClaim(w, http.StatusOK, c)
}

func (h *Handler) handleAddEvidence(w http.ResponseWriter, r *http.Request) {
	var req service.EvidenceRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.claimSvc.AddEvidence(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeClaim(w, http.StatusOK, c)
}

func (h *Handler) handleAddCommunication(w http.ResponseWriter, r *http.Request) {
	var req service.CommunicationRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.claimSvc.AddCommunication(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeClaim(w, http.StatusOK, c)
}

type assignRequest struct {
	AgentID string `json:"agent_id"`
}

func (h *Handler) handleAssignClaim(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.claimSvc.Assign(r.Context(), chi.URLParam(r, "id"), req.AgentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeClaim(w, http.StatusOK, c)
}

type approveRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Notes  string           `json:"notes,omitempty"`
}

func (h *Handler) handleApproveClaim(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.claimSvc.Approve(r.Context(), chi.URLParam(r, "id"), req.Amount, req.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeClaim(w, http.StatusOK, c)
}

type notesRequest struct {
	Notes string `json:"notes,omitempty"`
}

func (h *Handler) handleRejectClaim(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.claimSvc.Reject(r.Context(), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeClaim(w, http.StatusOK, c)
}

func (h *Handler) handleResolveClaim(w http.ResponseWriter, r *http.Request) {
	var req service.ResolutionRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.claimSvc.Resolve(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeClaim(w, http.StatusOK, c)
}

func (h *Handler) handleCancelClaim(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.claimSvc.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeClaim(w, http.StatusOK, c)
}

func (h *Handler) handleBuyerClaims(w http.ResponseWriter, r *http.Request) {
	claims, err := h.claimSvc.ListByBuyer(r.Context(), chi.URLParam(r, "buyerID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claims)
}
