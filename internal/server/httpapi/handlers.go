package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/avaluotech/fieldsync/internal/common"
	"github.com/avaluotech/fieldsync/internal/logging"
	"github.com/avaluotech/fieldsync/internal/server/services"
)

type handler struct {
	svc    SyncAPI
	logger logging.Logger
}

// bearerToken strips the Bearer prefix from the Authorization header. The
// token is forwarded to the Blob Store, never validated here: the store is
// the authority on it.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get(common.AuthorizationHeaderName)
	if strings.HasPrefix(auth, common.BearerPrefix) {
		return strings.TrimPrefix(auth, common.BearerPrefix)
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// syncBatch handles POST /sync/datos. Partial success is still HTTP 200: the
// per-item breakdown travels in the body, never in the status code.
func (h *handler) syncBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "cuerpo JSON inválido"})
		return
	}

	outcome, err := h.svc.Reconcile(r.Context(), req.PeritoID, bearerToken(r), toFormInputs(req.Formularios), toEvidenceInputs(req.Evidencias))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, batchResponse{
		Success:     true,
		Formularios: toGroupResult(outcome.Forms),
		Evidencias:  toGroupResult(outcome.Evidences),
		Timestamp:   outcome.Timestamp,
	})
}

// registerEvidence handles POST /sync/registro.
func (h *handler) registerEvidence(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "cuerpo JSON inválido"})
		return
	}

	err := h.svc.RegisterEvidence(r.Context(), services.RegistrationInput{
		CaseCode:   req.CaseCode,
		RemoteRef:  req.RemoteRef,
		Checksum:   req.Checksum,
		Size:       req.Size,
		CapturedBy: req.CapturedBy,
		CapturedAt: req.CapturedAt,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, common.ErrorNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "expediente no encontrado"})
	default:
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "error interno"})
	}
}
