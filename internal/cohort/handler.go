package cohort

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in NewCohort
	if err := utilities.DecodeJSON(w, r, &in); err != nil {
		utilities.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.fail(w, "create cohort", err)
		return
	}
	utilities.Success(w, http.StatusCreated, map[string]any{"data": res})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		h.fail(w, "list cohorts", err)
		return
	}
	utilities.Success(w, http.StatusOK, map[string]any{"cohorts": list})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "get cohort", err)
		return
	}
	utilities.Success(w, http.StatusOK, map[string]any{"cohort": c})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		utilities.Fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrCohortExists):
		utilities.Fail(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidCohort):
		utilities.Fail(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Errorw(op+" failed", "err", err)
		utilities.Fail(w, http.StatusInternalServerError, op+" failed")
	}
}
