package verification

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/biometric"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// EnrollPayload is the register-face request body. SubjectID may be left
// out; it defaults to the authenticated student.
type EnrollPayload struct {
	SubjectID  string    `json:"subjectId"`
	Descriptor []float64 `json:"descriptor" validate:"required,min=1"`
}

// VerifyPayload is the verify-face request body.
type VerifyPayload struct {
	SubjectID  string    `json:"subjectId" validate:"required"`
	Descriptor []float64 `json:"descriptor" validate:"required,min=1"`
	ClassDay   int       `json:"classDay" validate:"required,gt=0"`
}

// Register requires auth.Middleware. A student can only register their own face.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.StudentID(r.Context())
	if !ok {
		utilities.Fail(w, http.StatusUnauthorized, "missing token")
		return
	}
	var p EnrollPayload
	if err := utilities.DecodeJSON(w, r, &p); err != nil {
		utilities.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if p.SubjectID == "" {
		p.SubjectID = caller
	}
	if p.SubjectID != caller {
		h.logger.Warnw("face registration for another student refused", "caller", caller, "subject_id", p.SubjectID)
		utilities.Fail(w, http.StatusForbidden, "you can only register your own face")
		return
	}
	err := h.svc.RegisterTemplate(r.Context(), EnrollRequest{SubjectID: p.SubjectID, Descriptor: biometric.FeatureVector(p.Descriptor)})
	if err != nil {
		h.fail(w, "register face", err)
		return
	}
	utilities.Success(w, http.StatusCreated, map[string]any{"message": "Face registered successfully!"})
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var p VerifyPayload
	if err := utilities.DecodeJSON(w, r, &p); err != nil {
		utilities.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.VerifyAndMark(r.Context(), VerifyRequest{
		SubjectID:  p.SubjectID,
		Descriptor: biometric.FeatureVector(p.Descriptor),
		ClassDay:   p.ClassDay,
	})
	if err != nil {
		h.fail(w, "verify face", err)
		return
	}
	utilities.Success(w, http.StatusOK, map[string]any{
		"message": "Welcome, " + res.DisplayName,
		"result":  res,
	})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	kind := KindOf(err)
	if kind == KindInternal {
		h.logger.Errorw(op+" failed", "err", err)
		utilities.Fail(w, kind.HTTPStatus(), op+" failed")
		return
	}
	// decrypt details stay in the log
	msg := err.Error()
	if kind == KindSecurityFailure && !errors.Is(err, ErrFaceMismatch) {
		msg = ErrTemplateCorrupt.Error()
	}
	utilities.WriteJSON(w, kind.HTTPStatus(), map[string]any{"status": "fail", "kind": kind.String(), "error": msg})
}
