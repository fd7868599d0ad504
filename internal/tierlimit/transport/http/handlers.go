// Package httptransport provides HTTP handlers.
package httptransport

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"tierlimit/internal/tierlimit"
)

const defaultMaxBodyBytes = 1 << 20

type httpErrorResponse struct {
	Error string `json:"error"`
}

func (t *Transport) handleCheck(w http.ResponseWriter, r *http.Request) {
	var httpReq httpCheckRequest
	if err := t.decodeJSON(w, r, &httpReq); err != nil {
		t.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if httpReq.PrincipalID == "" || httpReq.Resource == "" || httpReq.Tier == "" {
		t.writeError(w, r, http.StatusBadRequest, tierlimit.ErrInvalidInput)
		return
	}
	resp, err := t.quota.CheckQuota(r.Context(), toCheckQuotaRequest(httpReq))
	if err != nil {
		t.writeQuotaError(w, r, err)
		return
	}
	tierlimit.ApplyHeaders(w.Header(), resp, resp.Window)
	if !resp.Allowed {
		body := tierlimit.NewDeniedBody(resp, resp.Window)
		t.quota.ReleaseResponse(resp)
		writeJSON(w, http.StatusTooManyRequests, body)
		return
	}
	writeJSON(w, http.StatusOK, fromCheckQuotaResponse(resp))
	t.quota.ReleaseResponse(resp)
}

// handleCheckBatch returns one decision per request. Denials ride in
// the response array as allowed=false entries; the batch status stays
// 200 unless the whole batch fails.
func (t *Transport) handleCheckBatch(w http.ResponseWriter, r *http.Request) {
	var httpReqs []httpCheckRequest
	if err := t.decodeJSON(w, r, &httpReqs); err != nil {
		t.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	requests := make([]*tierlimit.CheckQuotaRequest, len(httpReqs))
	for i, req := range httpReqs {
		requests[i] = toCheckQuotaRequest(req)
	}
	responses, err := t.quota.CheckQuotaBatch(r.Context(), requests)
	if err != nil {
		t.writeQuotaError(w, r, err)
		return
	}
	result := make([]httpCheckResponse, len(responses))
	for i, resp := range responses {
		result[i] = fromCheckQuotaResponse(resp)
		t.quota.ReleaseResponse(resp)
	}
	writeJSON(w, http.StatusOK, result)
}

func (t *Transport) handleCreateOverride(w http.ResponseWriter, r *http.Request) {
	var httpReq httpCreateOverrideRequest
	if err := t.decodeJSON(w, r, &httpReq); err != nil {
		t.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if httpReq.PrincipalID == "" || httpReq.Resource == "" || httpReq.BaseLimit <= 0 {
		t.writeError(w, r, http.StatusBadRequest, tierlimit.ErrInvalidInput)
		return
	}
	override, err := t.admin.CreateOverride(r.Context(), toCreateOverrideRequest(httpReq))
	if err != nil {
		t.writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fromOverride(override))
}

func (t *Transport) handleUpdateOverride(w http.ResponseWriter, r *http.Request) {
	var httpReq httpUpdateOverrideRequest
	if err := t.decodeJSON(w, r, &httpReq); err != nil {
		t.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if httpReq.PrincipalID == "" || httpReq.Resource == "" || httpReq.BaseLimit <= 0 {
		t.writeError(w, r, http.StatusBadRequest, tierlimit.ErrInvalidInput)
		return
	}
	override, err := t.admin.UpdateOverride(r.Context(), toUpdateOverrideRequest(httpReq))
	if err != nil {
		t.writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fromOverride(override))
}

func (t *Transport) handleDeleteOverride(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	principalID := query.Get("principalID")
	resource := query.Get("resource")
	versionStr := query.Get("expectedVersion")
	if principalID == "" || resource == "" || versionStr == "" {
		t.writeError(w, r, http.StatusBadRequest, tierlimit.ErrInvalidInput)
		return
	}
	expectedVersion, err := strconv.ParseInt(versionStr, 10, 64)
	if err != nil {
		t.writeError(w, r, http.StatusBadRequest, tierlimit.ErrInvalidInput)
		return
	}
	if err := t.admin.DeleteOverride(r.Context(), principalID, resource, expectedVersion); err != nil {
		t.writeAdminError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (t *Transport) handleGetOverride(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	principalID := query.Get("principalID")
	resource := query.Get("resource")
	if principalID == "" || resource == "" {
		t.writeError(w, r, http.StatusBadRequest, tierlimit.ErrInvalidInput)
		return
	}
	override, err := t.admin.GetOverride(r.Context(), principalID, resource)
	if err != nil {
		t.writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fromOverride(override))
}

func (t *Transport) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	principalID := r.URL.Query().Get("principalID")
	if principalID == "" {
		t.writeError(w, r, http.StatusBadRequest, tierlimit.ErrInvalidInput)
		return
	}
	overrides, err := t.admin.ListOverrides(r.Context(), principalID)
	if err != nil {
		t.writeAdminError(w, r, err)
		return
	}
	resp := make([]httpOverrideResponse, len(overrides))
	for i, override := range overrides {
		resp[i] = fromOverride(override)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (t *Transport) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (t *Transport) handleMetricsSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, t.snapshot())
}

func (t *Transport) handleReady(w http.ResponseWriter, r *http.Request) {
	if t.appReady != nil && t.appReady() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

func (t *Transport) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return tierlimit.ErrInvalidInput
	}
	maxBytes := t.maxBodyBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return tierlimit.ErrInvalidInput
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return tierlimit.ErrInvalidInput
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (t *Transport) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if t != nil {
		t.logRequestError(r, status, err)
	}
	// Storage failures never leak internals to callers.
	if status == http.StatusServiceUnavailable {
		writeJSON(w, status, httpErrorResponse{Error: "service unavailable"})
		return
	}
	writeJSON(w, status, httpErrorResponse{Error: err.Error()})
}

func (t *Transport) writeQuotaError(w http.ResponseWriter, r *http.Request, err error) {
	switch tierlimit.CodeOf(err) {
	case tierlimit.CodeInvalidInput, tierlimit.CodeUnknownTier:
		t.writeError(w, r, http.StatusBadRequest, err)
	case tierlimit.CodeStorageUnavailable:
		t.writeError(w, r, http.StatusServiceUnavailable, err)
	default:
		t.writeError(w, r, http.StatusInternalServerError, err)
	}
}

func (t *Transport) writeAdminError(w http.ResponseWriter, r *http.Request, err error) {
	t.writeError(w, r, statusForCode(tierlimit.CodeOf(err)), err)
}

func statusForCode(code tierlimit.ErrorCode) int {
	switch code {
	case tierlimit.CodeInvalidInput, tierlimit.CodeUnknownTier:
		return http.StatusBadRequest
	case tierlimit.CodeConflict:
		return http.StatusConflict
	case tierlimit.CodeNotFound:
		return http.StatusNotFound
	case tierlimit.CodeUnauthorized:
		return http.StatusUnauthorized
	case tierlimit.CodeForbidden:
		return http.StatusForbidden
	case tierlimit.CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (t *Transport) logRequestError(r *http.Request, status int, err error) {
	if t == nil || t.logger == nil || r == nil || err == nil {
		return
	}
	fields := map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
		"error":  err.Error(),
	}
	if status >= http.StatusInternalServerError {
		t.logger.Error("http request error", fields)
		return
	}
	t.logger.Info("http request error", fields)
}
