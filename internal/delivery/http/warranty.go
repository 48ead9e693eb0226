package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/egannguyen/autoparts-marketplace/internal/apperror"
	"github.com/egannguyen/autoparts-marketplace/internal/entity"
	"github.com/egannguyen/autoparts-marketplace/internal/service"
)

func (h *Handler) handleValidateWarranty(w http.ResponseWriter, r *http.Request) {
	var req service.WarrantyRequest
	if !h.decode(w, r, &req) {
		return
	}
	v, err := h.warrantySvc.ValidateCreation(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleCreateWarranty(w http.ResponseWriter, r *http.Request) {
	var req service.WarrantyRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.warrantySvc.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleGetWarranty(w http.ResponseWriter, r *http.Request) {
	warranty, err := h.warrantySvc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, warranty)
}

func (h *Handler) handleActivateWarranty(w http.ResponseWriter, r *http.Request) {
	warranty, err := h.warrantySvc.Activate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, warranty)
}

type extendRequest struct {
	Days int `json:"days"`
}

func (h *Handler) handleExtendWarranty(w http.ResponseWriter, r *http.Request) {
	var req extendRequest
	if !h.decode(w, r, &req) {
		return
	}
	warranty, err := h.warrantySvc.Extend(r.Context(), chi.URLParam(r, "id"), req.Days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, warranty)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleCancelWarranty(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	warranty, err := h.warrantySvc.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, warranty)
}

func (h *Handler) handleEligibility(w http.ResponseWriter, r *http.Request) {
	claimType := entity.ClaimType(r.URL.Query().Get("claim_type"))
	if claimType == "" {
		h.writeError(w, r, apperror.Validation("claim_type query parameter is required"))
		return
	}
	ok, err := h.warrantySvc.CheckClaimEligibility(r.Context(), chi.URLParam(r, "id"), claimType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"claim_type": claimType, "eligible": ok})
}

func (h *Handler) handleAvailableCoverage(w http.ResponseWriter, r *http.Request) {
	amount, err := h.warrantySvc.AvailableCoverage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available_coverage": amount})
}

func (h *Handler) handleWarrantyClaims(w http.ResponseWriter, r *http.Request) {
	claims, err := h.claimSvc.ListByWarranty(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.warrantySvc.SweepExpired(r.Context(), 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleBuyerWarranties(w http.ResponseWriter, r *http.Request) {
	warranties, err := h.warrantySvc.ListByBuyer(r.Context(), chi.URLParam(r, "buyerID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, warranties)
}
