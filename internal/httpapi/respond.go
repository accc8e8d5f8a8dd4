package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/MrEthical07/twostep"
)

type errorBody struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}

type errorMapping struct {
	kind   error
	status int
	code   string
}

// errorTable is checked in order. Login failures carry both
// ErrAuthenticationFailed and their cause. Only throttling and delivery
// outages may be told apart from it; every other cause collapses into
// AUTHENTICATION_FAILED so the response never names the failing step.
var errorTable = []errorMapping{
	{twostep.ErrEngineNotReady, http.StatusServiceUnavailable, "UNAVAILABLE"},
	{twostep.ErrLoginRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
	{twostep.ErrDeliveryFailure, http.StatusBadGateway, "DELIVERY_FAILED"},
	{twostep.ErrAuthenticationFailed, http.StatusUnauthorized, "AUTHENTICATION_FAILED"},
	{twostep.ErrValidation, http.StatusBadRequest, "VALIDATION_FAILED"},
	{twostep.ErrPhoneRequired, http.StatusBadRequest, "PHONE_REQUIRED"},
	{twostep.ErrAccountDisabled, http.StatusForbidden, "ACCOUNT_DISABLED"},
	{twostep.ErrAccountExists, http.StatusConflict, "ACCOUNT_EXISTS"},
	{twostep.ErrTwoFactorNotPending, http.StatusConflict, "TWO_FACTOR_NOT_PENDING"},
	{twostep.ErrInvalidOrExpiredCode, http.StatusUnauthorized, "INVALID_CODE"},
	{twostep.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{twostep.ErrTokenRevoked, http.StatusUnauthorized, "TOKEN_REVOKED"},
	{twostep.ErrTokenInvalid, http.StatusUnauthorized, "TOKEN_INVALID"},
	{twostep.ErrAccountNotFound, http.StatusNotFound, "NOT_FOUND"},
}

// renderError writes the outward form of err. Only the kind's message is
// sent; the cause is logged.
func (h *handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorTable {
		if !errors.Is(err, m.kind) {
			continue
		}
		body := errorBody{Error: m.kind.Error(), Code: m.code}
		if m.status == http.StatusBadRequest {
			body.Details = fieldErrors(err)
		}
		writeJSON(w, m.status, body)
		return
	}

	h.logger.ErrorContext(r.Context(), "unhandled error", slog.Any("error", err))
	writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
}

func fieldErrors(err error) map[string]string {
	var fields validation.Errors
	if !errors.As(err, &fields) {
		return nil
	}
	out := make(map[string]string, len(fields))
	for name, fe := range fields {
		out[name] = fe.Error()
	}
	return out
}

var errBadBody = errors.New("malformed request body")

func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "MALFORMED_BODY", errBadBody.Error())
		return false
	}
	return true
}
