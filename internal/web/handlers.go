// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Password actions accepted by /api/password-action.
const (
	ActionForgot = "FORGOT"
	ActionReset  = "RESET"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

type loginResponse struct {
	UserID    string    `json:"userId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type forgotRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type resetRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Token       string `json:"token" validate:"required,max=256"`
	NewPassword string `json:"newPassword" validate:"required,max=128"`
}

type resendRequest struct {
	UserID string `json:"userId" validate:"required,ulid"`
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type userResponse struct {
	UserID         string `json:"userId"`
	Email          string `json:"email,omitempty"`
	EmailConfirmed bool   `json:"emailConfirmed"`
}

type meResponse struct {
	UserID string `json:"userId"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	req, fields, err := decodeBody[loginRequest](w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(fields) > 0 {
		respondInvalid(w, fields)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("userId", result.UserID.String())
	w.Header().Set("token", result.Token)
	respond(w, http.StatusOK, loginResponse{
		UserID:    result.UserID.String(),
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
	})
}

func (h *Handler) passwordAction(w http.ResponseWriter, r *http.Request) {
	switch strings.ToUpper(r.URL.Query().Get("action")) {
	case ActionForgot:
		h.forgotPassword(w, r)
	case ActionReset:
		h.resetPassword(w, r)
	default:
		respondInvalid(w, []invalidField{{Name: "action", Rule: "oneof"}})
	}
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	req, fields, err := decodeBody[forgotRequest](w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(fields) > 0 {
		respondInvalid(w, fields)
		return
	}
	h.workflowResult(w, h.reset.Request(r.Context(), req.Email))
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	req, fields, err := decodeBody[resetRequest](w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(fields) > 0 {
		respondInvalid(w, fields)
		return
	}
	h.workflowResult(w, h.reset.Complete(r.Context(), req.Email, req.Token, req.NewPassword))
}

func (h *Handler) emailConfirm(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, err := ulid.Parse(q.Get("userId"))
	if err != nil {
		respondInvalid(w, []invalidField{{Name: "userId", Rule: "ulid"}})
		return
	}
	token := q.Get("token")
	if token == "" {
		respondInvalid(w, []invalidField{{Name: "token", Rule: "required"}})
		return
	}
	h.workflowResult(w, h.confirm.Confirm(r.Context(), userID, token))
}

func (h *Handler) resendEmailConfirm(w http.ResponseWriter, r *http.Request) {
	req, fields, err := decodeBody[resendRequest](w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(fields) > 0 {
		respondInvalid(w, fields)
		return
	}
	// The validator already checked the ULID syntax.
	h.workflowResult(w, h.confirm.Resend(r.Context(), ulid.MustParse(req.UserID)))
}

func (h *Handler) registerUser(w http.ResponseWriter, r *http.Request) {
	req, fields, err := decodeBody[registerRequest](w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(fields) > 0 {
		respondInvalid(w, fields)
		return
	}

	user, err := h.register.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/me")
	respond(w, http.StatusCreated, userResponse{
		UserID:         user.ID.String(),
		Email:          user.Email,
		EmailConfirmed: user.EmailConfirmed,
	})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, errorIDFor(http.StatusUnauthorized))
		return
	}
	respond(w, http.StatusOK, meResponse{UserID: userID.String()})
}

// workflowResult maps a workflow's boolean result onto 200 or 400.
func (h *Handler) workflowResult(w http.ResponseWriter, ok bool) {
	if !ok {
		respondError(w, http.StatusBadRequest, "workflow_rejected")
		return
	}
	respond(w, http.StatusOK, nil)
}
