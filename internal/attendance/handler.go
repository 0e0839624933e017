package attendance

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

// Handler exposes the read side of the attendance sheets.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Cohort handles GET /attendance?cohortId=
func (h *Handler) Cohort(w http.ResponseWriter, r *http.Request) {
	cohortID := r.URL.Query().Get("cohortId")
	if cohortID == "" {
		utilities.Fail(w, http.StatusBadRequest, "cohortId is required")
		return
	}
	view, err := h.svc.CohortAttendance(r.Context(), cohortID)
	if err != nil {
		h.fail(w, "cohort attendance", err)
		return
	}
	utilities.Success(w, http.StatusOK, map[string]any{"attendance": view})
}

// ClassDay handles GET /attendance/class-day?cohortId=&classDay=
func (h *Handler) ClassDay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cohortID := q.Get("cohortId")
	day, err := strconv.Atoi(q.Get("classDay"))
	if cohortID == "" || err != nil || day <= 0 {
		utilities.Fail(w, http.StatusBadRequest, "cohortId and a positive classDay are required")
		return
	}
	view, err := h.svc.ClassDayAttendance(r.Context(), cohortID, day)
	if err != nil {
		h.fail(w, "class day attendance", err)
		return
	}
	utilities.Success(w, http.StatusOK, map[string]any{"classDayAttendance": view})
}

// Student handles GET /attendance/student?studentId=
func (h *Handler) Student(w http.ResponseWriter, r *http.Request) {
	studentID := r.URL.Query().Get("studentId")
	if studentID == "" {
		utilities.Fail(w, http.StatusBadRequest, "studentId is required")
		return
	}
	history, err := h.svc.StudentHistory(r.Context(), studentID)
	if err != nil {
		h.fail(w, "student history", err)
		return
	}
	utilities.Success(w, http.StatusOK, map[string]any{"attendanceHistory": history})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrLedgerNotFound), errors.Is(err, ErrClassDayNotFound),
		errors.Is(err, ErrStudentNotInRecord), errors.Is(err, ErrNoHistory):
		utilities.Fail(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Errorw(op+" failed", "err", err)
		utilities.Fail(w, http.StatusInternalServerError, op+" failed")
	}
}
