package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/twostep"
	"github.com/MrEthical07/twostep/middleware"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type codeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type loginVerifyRequest struct {
	ChallengeID string `json:"challengeId"`
	Code        string `json:"code"`
}

type resendRequest struct {
	Email string           `json:"email"`
	Type  twostep.CodeType `json:"type"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

type loginResponse struct {
	State       string                  `json:"state"`
	Token       string                  `json:"token,omitempty"`
	ChallengeID string                  `json:"challengeId,omitempty"`
	Method      twostep.TwoFactorMethod `json:"method,omitempty"`
	ExpiresAt   time.Time               `json:"expiresAt"`
}

func newLoginResponse(res *twostep.LoginResult) loginResponse {
	out := loginResponse{State: res.State.String()}
	if res.State == twostep.StateAuthenticated {
		out.Token = res.Token
		out.ExpiresAt = res.TokenExpiresAt
		return out
	}
	out.ChallengeID = res.ChallengeID
	out.Method = res.Method
	out.ExpiresAt = res.ChallengeExpiresAt
	return out
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *handler) signup(w http.ResponseWriter, r *http.Request) {
	var req twostep.SignupRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Signup(r.Context(), req)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.LoginInitiate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoginResponse(res))
}

func (h *handler) loginVerify(w http.ResponseWriter, r *http.Request) {
	var req loginVerifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.LoginComplete(r.Context(), req.ChallengeID, req.Code)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoginResponse(res))
}

func (h *handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.VerifyEmail(r.Context(), req.Email, req.Code); err != nil {
		h.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "email verified"})
}

func (h *handler) verifyPhone(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.VerifyPhone(r.Context(), req.Email, req.Code); err != nil {
		h.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "phone verified"})
}

// resendCode answers the same way whether or not the account exists.
func (h *handler) resendCode(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Type == "" {
		req.Type = twostep.CodeTypeEmail
	}
	if err := h.svc.ResendCode(r.Context(), req.Email, req.Type); err != nil {
		h.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, messageResponse{Message: "if the account exists, a code was sent"})
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.BearerToken(r)
	_ = h.svc.Logout(r.Context(), token)
	w.WriteHeader(http.StatusNoContent)
}

func subject(r *http.Request) string {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return ""
	}
	return claims.Subject
}

func (h *handler) verifyTOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.VerifyTOTPSetup(r.Context(), subject(r), req.Code); err != nil {
		h.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "authenticator app enabled"})
}

func (h *handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.svc.ChangePassword(r.Context(), subject(r), req.CurrentPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "password changed"})
}

func (h *handler) changeTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req twostep.ChangeTwoFactorRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Email = subject(r)

	res, err := h.svc.ChangeTwoFactorMethod(r.Context(), req)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) qrPayload(w http.ResponseWriter, r *http.Request) {
	prov, err := h.svc.QRPayload(r.Context(), subject(r))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prov)
}

func (h *handler) profile(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Profile(r.Context(), subject(r))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
