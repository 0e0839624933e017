package scheme

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/scheme/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

// Handler contains dependencies for handling scheme endpoints.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type EntryRequest struct {
	Track   string    `json:"track" validate:"required,oneof=frontend backend product-design"`
	Day     int       `json:"day" validate:"required,gt=0"`
	Subject string    `json:"subject" validate:"required"`
	Date    time.Time `json:"date"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		h.fail(w, "list schemes", err)
		return
	}
	utilities.Success(w, http.StatusOK, map[string]any{"schemes": list})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	number, ok := cohortNumber(w, r)
	if !ok {
		return
	}
	// ?track= narrows the answer to one track
	if t := r.URL.Query().Get("track"); t != "" {
		entries, err := h.svc.Track(r.Context(), number, entity.Track(t))
		if err != nil {
			h.fail(w, "get scheme track", err)
			return
		}
		utilities.Success(w, http.StatusOK, map[string]any{"track": t, "entries": entries})
		return
	}
	sc, err := h.svc.GetByCohortNumber(r.Context(), number)
	if err != nil {
		h.fail(w, "get scheme", err)
		return
	}
	utilities.Success(w, http.StatusOK, map[string]any{"scheme": sc})
}

func (h *Handler) AddEntry(w http.ResponseWriter, r *http.Request) {
	number, ok := cohortNumber(w, r)
	if !ok {
		return
	}
	var req EntryRequest
	if err := utilities.DecodeJSON(w, r, &req); err != nil {
		utilities.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	sc, err := h.svc.AddEntry(r.Context(), number, entity.Track(req.Track), entity.Entry{Day: req.Day, Subject: req.Subject, Date: req.Date})
	if err != nil {
		h.fail(w, "add scheme entry", err)
		return
	}
	utilities.Success(w, http.StatusOK, map[string]any{"scheme": sc})
}

// ClearTrack handles DELETE /schemes/{cohortNumber}/tracks/{track}.
func (h *Handler) ClearTrack(w http.ResponseWriter, r *http.Request) {
	number, ok := cohortNumber(w, r)
	if !ok {
		return
	}
	sc, err := h.svc.ClearTrack(r.Context(), number, entity.Track(r.PathValue("track")))
	if err != nil {
		h.fail(w, "clear scheme track", err)
		return
	}
	utilities.Success(w, http.StatusOK, map[string]any{"scheme": sc})
}

func cohortNumber(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(r.PathValue("cohortNumber"))
	if err != nil || n <= 0 {
		utilities.Fail(w, http.StatusBadRequest, "invalid cohort number")
		return 0, false
	}
	return n, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		utilities.Fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrVersionConflict), errors.Is(err, ErrExists):
		utilities.Fail(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnknownTrack), errors.Is(err, ErrInvalidEntry):
		utilities.Fail(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Errorw(op+" failed", "err", err)
		utilities.Fail(w, http.StatusInternalServerError, op+" failed")
	}
}
