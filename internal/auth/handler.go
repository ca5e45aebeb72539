// AngelaMos | 2026
// handler.go

package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/templates/ordering-auth/internal/core"
	"github.com/carterperez-dev/templates/ordering-auth/internal/middleware"
)

var kindStatus = map[ErrorKind]int{
	KindBadRequest:            http.StatusBadRequest,
	KindInvalidCredentials:    http.StatusUnauthorized,
	KindDuplicateAccount:      http.StatusBadRequest,
	KindInvalidToken:          http.StatusUnauthorized,
	KindInvalidOrExpiredToken: http.StatusUnauthorized,
	KindDataIntegrity:         http.StatusInternalServerError,
	KindInternal:              http.StatusInternalServerError,
}

// StatusFor returns the HTTP status for kind.
func StatusFor(kind ErrorKind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Get("/verify-email/{token}", h.VerifyEmail)
		r.Post("/forgot-password", h.ForgotPassword)
		r.Post("/reset-password/{token}", h.ResetPassword)
		r.Get("/logout", h.Logout)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(authenticator)
			r.Get("/me", h.Me)
			r.Post("/change-password", h.ChangePassword)
		})
	})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	view, err := h.service.Register(r.Context(), w, req)
	if err != nil {
		writeError(w, err)
		return
	}

	core.Created(w, UserEnvelope{User: view})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	view, err := h.service.Login(r.Context(), w, req)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, UserEnvelope{User: view})
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	if err := h.service.VerifyEmail(r.Context(), token); err != nil {
		writeError(w, err)
		return
	}

	core.Message(w, "email verified")
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}

	core.Message(w, "if the account exists, a reset link has been sent")
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	var req ResetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), token, req); err != nil {
		writeError(w, err)
		return
	}

	core.Message(w, "password has been reset")
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.service.Logout(r.Context(), w)
	core.Message(w, "logged out")
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		core.Unauthorized(w, "")
		return
	}

	view, err := h.service.Me(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, UserEnvelope{User: view})
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		core.Unauthorized(w, "")
		return
	}

	var req ChangePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), userID, req); err != nil {
		writeError(w, err)
		return
	}

	core.Message(w, "password changed")
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		core.BadRequest(w, "invalid request body")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return false
	}

	return true
}

func writeError(w http.ResponseWriter, err error) {
	kind := KindOf(err)
	status := StatusFor(kind)

	var authErr *Error
	if status >= http.StatusInternalServerError || !errors.As(err, &authErr) {
		core.InternalServerError(w, err)
		return
	}

	core.JSONError(w, core.NewAppError(err, authErr.Message, status, string(kind)))
}
