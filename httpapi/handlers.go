package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/MrEthical07/goOTP/middleware"
)

type emailRequest struct {
	Email string `json:"email"`
}

type codeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type completeResetRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	Authorization string `json:"authorization"`
}

type issueResponse struct {
	Email          string    `json:"email"`
	Purpose        string    `json:"purpose"`
	ExpiresAt      time.Time `json:"expiresAt"`
	ResendAfter    time.Time `json:"resendAfter"`
	DeliveryFailed bool      `json:"deliveryFailed,omitempty"`
}

type identityResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Role      goOTP.Role `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
}

type sessionResponse struct {
	Token     string     `json:"token"`
	TokenType string     `json:"tokenType"`
	Role      goOTP.Role `json:"role"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

type signupResponse struct {
	Identity identityResponse `json:"identity"`
	sessionResponse
}

type resetAuthorizationResponse struct {
	Authorization string    `json:"authorization"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

type claimsResponse struct {
	Subject   string     `json:"subject"`
	Role      goOTP.Role `json:"role"`
	TokenID   string     `json:"tokenId"`
	IssuedAt  time.Time  `json:"issuedAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

func newIssueResponse(res goOTP.IssueResult) issueResponse {
	return issueResponse{
		Email:          res.Email,
		Purpose:        res.Purpose.String(),
		ExpiresAt:      res.ExpiresAt.UTC(),
		ResendAfter:    res.ResendAfter.UTC(),
		DeliveryFailed: res.DeliveryFailed,
	}
}

func newSessionResponse(s goOTP.Session) sessionResponse {
	return sessionResponse{
		Token:     s.Token,
		TokenType: "Bearer",
		Role:      s.Role,
		ExpiresAt: s.ExpiresAt.UTC(),
	}
}

// decode reads a single JSON object into dst. It writes the 400 itself and
// reports false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "BODY_TOO_LARGE", Message: "request body too large"})
		case errors.Is(err, io.EOF):
			h.badRequest(w, "request body is empty")
		default:
			h.badRequest(w, "request body is not valid JSON")
		}
		return false
	}
	return true
}

func (h *Handler) requestSignup(w http.ResponseWriter, r *http.Request) {
	var req goOTP.SignupRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.RequestSignupCode(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newIssueResponse(res))
}

func (h *Handler) resendSignup(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.ResendSignupCode(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newIssueResponse(res))
}

func (h *Handler) verifySignup(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.VerifySignupCode(r.Context(), req.Email, req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, signupResponse{
		Identity: identityResponse{
			ID:        res.Identity.ID,
			Email:     res.Identity.EmailOrUsername,
			FirstName: res.Identity.FirstName,
			LastName:  res.Identity.LastName,
			Role:      res.Identity.Role,
			CreatedAt: res.Identity.CreatedAt.UTC(),
		},
		sessionResponse: newSessionResponse(res.Session),
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

func (h *Handler) loginAdmin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.engine.LoginAdmin(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

// logout acknowledges missing and invalid tokens alike.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r.Header.Get("Authorization"))
	if ok {
		if err := h.engine.Logout(r.Context(), token); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requestReset(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.RequestResetCode(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newIssueResponse(res))
}

func (h *Handler) resendReset(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.ResendResetCode(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newIssueResponse(res))
}

func (h *Handler) verifyReset(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !h.decode(w, r, &req) {
		return
	}
	auth, err := h.engine.VerifyResetCode(r.Context(), req.Email, req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resetAuthorizationResponse{
		Authorization: auth.Token,
		ExpiresAt:     auth.ExpiresAt.UTC(),
	})
}

func (h *Handler) completeReset(w http.ResponseWriter, r *http.Request) {
	var req completeResetRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.CompleteReset(r.Context(), req.Email, req.Password, req.Authorization); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, goOTP.ErrTokenInvalid)
		return
	}
	writeJSON(w, http.StatusOK, claimsResponse{
		Subject:   claims.Subject,
		Role:      claims.Role,
		TokenID:   claims.TokenID,
		IssuedAt:  claims.IssuedAt.UTC(),
		ExpiresAt: claims.ExpiresAt.UTC(),
	})
}
