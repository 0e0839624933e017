package student

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/student/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

// Handler exposes HTTP endpoints for student operations (onboard / login).
type Handler struct {
	svc    *Service
	tokens *auth.TokenService
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, tokens *auth.TokenService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, tokens: tokens, logger: logger}
}

// OnboardRequest request body for the onboard endpoint.
type OnboardRequest struct {
	Email           string `json:"email" validate:"required,email"`
	AdmissionCode   string `json:"admissionCode" validate:"required"`
	FirstName       string `json:"firstName" validate:"required"`
	LastName        string `json:"lastName" validate:"required"`
	Stack           string `json:"stack" validate:"omitempty,oneof=frontend backend product-design"`
	Gender          string `json:"gender" validate:"omitempty,oneof=male female"`
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// LoginRequest login payload.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UpdateMeRequest carries the profile fields a student may edit. The
// password fields exist only so they can be refused with a clear message.
type UpdateMeRequest struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Gender          string `json:"gender" validate:"omitempty,oneof=male female"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type UpdatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// TokenResponse is returned by onboard and login.
type TokenResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Student   *entity.Student `json:"student"`
}

func (h *Handler) Onboard(w http.ResponseWriter, r *http.Request) {
	var req OnboardRequest
	if err := utilities.DecodeJSON(w, r, &req); err != nil {
		h.logger.Debugw("invalid onboard payload", "err", err)
		utilities.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := h.svc.Onboard(r.Context(), OnboardInput{
		Email:         req.Email,
		AdmissionCode: req.AdmissionCode,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Stack:         req.Stack,
		Gender:        req.Gender,
		Password:      req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotInvited):
			utilities.Fail(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, ErrAlreadyOnboarded):
			utilities.Fail(w, http.StatusConflict, err.Error())
		case errors.Is(err, ErrInvalidAdmissionCode):
			utilities.Fail(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Warnw("onboard failed", "err", err)
			utilities.Fail(w, http.StatusInternalServerError, "onboarding failed")
		}
		return
	}
	h.sendToken(w, http.StatusCreated, st)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := utilities.DecodeJSON(w, r, &req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		utilities.Fail(w, http.StatusBadRequest, "please provide email and password")
		return
	}
	st, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrBadCredentials) {
			utilities.Fail(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.logger.Warnw("login failed", "err", err)
		utilities.Fail(w, http.StatusInternalServerError, "login failed")
		return
	}
	h.sendToken(w, http.StatusOK, st)
}

// Logout requires auth.Middleware.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.StudentID(r.Context())
	if !ok {
		utilities.Fail(w, http.StatusUnauthorized, "missing token")
		return
	}
	if err := h.svc.Logout(r.Context(), id); err != nil {
		h.logger.Warnw("logout failed", "student_id", id, "err", err)
		utilities.Fail(w, http.StatusInternalServerError, "logout failed")
		return
	}
	utilities.Success(w, http.StatusOK, nil)
}

// Me requires auth.Middleware.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.StudentID(r.Context())
	if !ok {
		utilities.Fail(w, http.StatusUnauthorized, "missing token")
		return
	}
	st, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			utilities.Fail(w, http.StatusNotFound, err.Error())
			return
		}
		utilities.Fail(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	utilities.Success(w, http.StatusOK, map[string]any{"student": st})
}

// UpdateMe requires auth.Middleware.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.StudentID(r.Context())
	if !ok {
		utilities.Fail(w, http.StatusUnauthorized, "missing token")
		return
	}
	var req UpdateMeRequest
	if err := utilities.DecodeJSON(w, r, &req); err != nil {
		utilities.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Password != "" || req.ConfirmPassword != "" {
		utilities.Fail(w, http.StatusBadRequest, "this route is not for password updates, use /students/me/password")
		return
	}
	st, err := h.svc.UpdateProfile(r.Context(), id, entity.Profile{FirstName: req.FirstName, LastName: req.LastName, Gender: req.Gender})
	if err != nil {
		h.fail(w, "update profile", id, err)
		return
	}
	utilities.Success(w, http.StatusOK, map[string]any{"student": st})
}

// UpdatePassword requires auth.Middleware. It answers with a fresh token
// since the change revokes the old ones.
func (h *Handler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.StudentID(r.Context())
	if !ok {
		utilities.Fail(w, http.StatusUnauthorized, "missing token")
		return
	}
	var req UpdatePasswordRequest
	if err := utilities.DecodeJSON(w, r, &req); err != nil {
		utilities.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := h.svc.UpdatePassword(r.Context(), id, req.CurrentPassword, req.Password)
	if err != nil {
		h.fail(w, "update password", id, err)
		return
	}
	h.sendToken(w, http.StatusOK, st)
}

// DeleteMe requires auth.Middleware.
func (h *Handler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.StudentID(r.Context())
	if !ok {
		utilities.Fail(w, http.StatusUnauthorized, "missing token")
		return
	}
	if err := h.svc.Deactivate(r.Context(), id); err != nil {
		h.fail(w, "deactivate", id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op, id string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		utilities.Fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrWrongPassword):
		utilities.Fail(w, http.StatusUnauthorized, err.Error())
	default:
		h.logger.Warnw(op+" failed", "student_id", id, "err", err)
		utilities.Fail(w, http.StatusInternalServerError, op+" failed")
	}
}

// List handles GET /students?cohortId=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.svc.List(r.Context(), r.URL.Query().Get("cohortId"))
	if err != nil {
		h.logger.Errorw("list students failed", "err", err)
		utilities.Fail(w, http.StatusInternalServerError, "list failed")
		return
	}
	utilities.Success(w, http.StatusOK, map[string]any{"result": len(all), "students": all})
}

func (h *Handler) sendToken(w http.ResponseWriter, status int, st *entity.Student) {
	tok, exp, err := h.tokens.Issue(st.ID, st.TokenVersion)
	if err != nil {
		h.logger.Errorw("issue token failed", "student_id", st.ID, "err", err)
		utilities.Fail(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	utilities.WriteJSON(w, status, map[string]any{
		"status": "success",
		"data":   TokenResponse{Token: tok, ExpiresAt: exp, Student: st},
	})
}
