package verification

import (
	"errors"
	"net/http"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/biometric"
)

var (
	ErrSubjectNotFound       = errors.New("student not found")
	ErrTemplateNotRegistered = errors.New("student has not registered a face")
	ErrTemplateCorrupt       = errors.New("stored face template cannot be decrypted")
	ErrFaceMismatch          = errors.New("face does not match")
	ErrAlreadyRegistered     = errors.New("face already registered")
)

// Kind classifies verification and enrolment failures for callers.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindInvalid
	KindSecurityFailure
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalid:
		return "invalid"
	case KindSecurityFailure:
		return "security_failure"
	default:
		return "internal"
	}
}

// KindOf maps err onto the taxonomy. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrSubjectNotFound), errors.Is(err, ErrTemplateNotRegistered),
		errors.Is(err, attendance.ErrLedgerNotFound), errors.Is(err, attendance.ErrClassDayNotFound),
		errors.Is(err, attendance.ErrStudentNotInRecord):
		return KindNotFound
	case errors.Is(err, ErrAlreadyRegistered), errors.Is(err, attendance.ErrAlreadyPresent),
		errors.Is(err, attendance.ErrVersionConflict):
		return KindConflict
	case errors.Is(err, biometric.ErrDimensionMismatch), errors.Is(err, biometric.ErrMalformedDescriptor):
		return KindInvalid
	case errors.Is(err, ErrTemplateCorrupt), errors.Is(err, biometric.ErrDecryption), errors.Is(err, ErrFaceMismatch):
		return KindSecurityFailure
	default:
		return KindInternal
	}
}

// HTTPStatus is the response code for a Kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInvalid:
		return http.StatusBadRequest
	case KindSecurityFailure:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
