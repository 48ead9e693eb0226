package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/egannguyen/autoparts-marketplace/internal/apperror"
	"github.com/egannguyen/autoparts-marketplace/internal/service"
)

// Handler handles HTTP requests for the protection engine.
type Handler struct {
	warrantySvc    *service.WarrantyService
	transactionSvc *service.TransactionService
	claimSvc       *service.ClaimService
	ledgerSvc      *service.LedgerService
	log            *zap.Logger
}

func NewHandler(
	warrantySvc *service.WarrantyService,
	transactionSvc *service.TransactionService,
	claimSvc *service.ClaimService,
	ledgerSvc *service.LedgerService,
	log *zap.Logger,
) *Handler {
	return &Handler{
		warrantySvc:    warrantySvc,
		transactionSvc: transactionSvc,
		claimSvc:       claimSvc,
		ledgerSvc:      ledgerSvc,
		log:            log.Named("http"),
	}
}

// Routes returns the full router with middleware applied.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)
	r.Use(EnableCORS)
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Route("/api/warranties", func(r chi.Router) {
		r.Post("/", h.handleCreateWarranty)
		r.Post("/validate", h.handleValidateWarranty)
		r.Post("/sweep", h.handleSweep)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGetWarranty)
			r.Post("/activate", h.handleActivateWarranty)
			r.Post("/extend", h.handleExtendWarranty)
			r.Post("/cancel", h.handleCancelWarranty)
			r.Get("/eligibility", h.handleEligibility)
			r.Get("/coverage", h.handleAvailableCoverage)
			r.Get("/claims", h.handleWarrantyClaims)
		})
	})

	r.Route("/api/transactions", func(r chi.Router) {
		r.Post("/", h.handleCreateTransaction)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGetTransaction)
			r.Patch("/status", h.handleUpdateTransactionStatus)
			r.Post("/cancel", h.handleCancelTransaction)
			r.Get("/warranties", h.handleTransactionWarranties)
			r.Get("/issuances", h.handleTransactionIssuances)
			r.Get("/protection", h.handleGetProtection)
			r.Get("/protection/history", h.handleProtectionHistory)
			r.Post("/protection/events", h.handleRecordProtectionEvent)
		})
	})

	r.Route("/api/claims", func(r chi.Router) {
		r.Post("/", h.handleFileClaim)
		r.Get("/by-number/{number}", h.handleGetClaimByNumber)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGetClaim)
			r.Patch("/", h.handleUpdateClaim)
			r.Patch("/status", h.handleUpdateClaimStatus)
			r.Post("/evidence", h.handleAddEvidence)
			r.Post("/communications", h.handleAddCommunication)
			r.Post("/assign", h.handleAssignClaim)
			r.Post("/approve", h.handleApproveClaim)
			r.Post("/reject", h.handleRejectClaim)
			r.Post("/resolve", h.handleResolveClaim)
			r.Post("/cancel", h.handleCancelClaim)
		})
	})

	r.Route("/api/buyers/{buyerID}", func(r chi.Router) {
		r.Get("/warranties", h.handleBuyerWarranties)
		r.Get("/transactions", h.handleBuyerTransactions)
		r.Get("/claims", h.handleBuyerClaims)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorBody struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func statusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindValidation, apperror.KindIneligible:
		return http.StatusUnprocessableEntity
	case apperror.KindIllegalTransition, apperror.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		writeJSON(w, statusFor(appErr.Kind), map[string]errorBody{"error": {
			Kind:    string(appErr.Kind),
			Message: appErr.Message,
			Details: appErr.Details,
		}})
		return
	}
	h.log.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, map[string]errorBody{"error": {
		Kind:    "internal",
		Message: "internal server error",
	}})
}

// decode reads a JSON body. An empty body leaves dst untouched.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {
		Kind:    "bad_request",
		Message: "invalid request body",
		Details: []string{err.Error()},
	}})
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		began := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(began)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// EnableCORS is a middleware to allow browser frontends to connect.
func EnableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
