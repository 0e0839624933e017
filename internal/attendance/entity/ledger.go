package entity

import "time"

// Status of a student on one class day. The only transition is Absent -> Present.
type Status string

const (
	StatusAbsent  Status = "Absent"
	StatusPresent Status = "Present"
)

// Ledger is the attendance sheet of one cohort. The whole ledger is saved as
// one row and guarded by Version.
type Ledger struct {
	ID        string     `json:"id" db:"id"`
	CohortID  string     `json:"cohort_id" db:"cohort_id"`
	ClassDays []ClassDay `json:"class_days" db:"-"`
	Version   int64      `json:"version" db:"version"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// ClassDay is one scheduled session, Day counts from 1 within the ledger.
type ClassDay struct {
	Day      int                 `json:"day"`
	Date     time.Time           `json:"date"`
	Students []StudentAttendance `json:"students"`
}

type StudentAttendance struct {
	StudentID    string     `json:"student_id"`
	Status       Status     `json:"status"`
	CheckInTime  *time.Time `json:"check_in_time,omitempty"`
	CheckOutTime *time.Time `json:"check_out_time,omitempty"` // not written yet
	Score        int        `json:"score"`
}

// ClassDay returns the record for day, or nil.
func (l *Ledger) ClassDay(day int) *ClassDay {
	for i := range l.ClassDays {
		if l.ClassDays[i].Day == day {
			return &l.ClassDays[i]
		}
	}
	return nil
}

// Entry returns the student's entry in the class day, or nil.
func (cd *ClassDay) Entry(studentID string) *StudentAttendance {
	for i := range cd.Students {
		if cd.Students[i].StudentID == studentID {
			return &cd.Students[i]
		}
	}
	return nil
}

// HasStudent reports whether any class day lists the student.
func (l *Ledger) HasStudent(studentID string) bool {
	for i := range l.ClassDays {
		if l.ClassDays[i].Entry(studentID) != nil {
			return true
		}
	}
	return false
}

// Clone deep-copies the ledger so callers can mutate without aliasing a store.
func (l *Ledger) Clone() *Ledger {
	out := *l
	out.ClassDays = make([]ClassDay, len(l.ClassDays))
	for i, cd := range l.ClassDays {
		cd.Students = append([]StudentAttendance(nil), cd.Students...)
		for j := range cd.Students {
			cd.Students[j].CheckInTime = cloneTime(cd.Students[j].CheckInTime)
			cd.Students[j].CheckOutTime = cloneTime(cd.Students[j].CheckOutTime)
		}
		out.ClassDays[i] = cd
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ClassDayView is a class day with display names joined in.
type ClassDayView struct {
	Day      int               `json:"day"`
	Date     time.Time         `json:"date"`
	Students []AttendanceEntry `json:"students"`
}

type AttendanceEntry struct {
	StudentID   string     `json:"student_id"`
	Name        string     `json:"name"`
	Status      Status     `json:"status"`
	CheckInTime *time.Time `json:"check_in_time,omitempty"`
	Score       int        `json:"score"`
}

// LedgerView is a cohort ledger with display names joined in.
type LedgerView struct {
	ID        string         `json:"id"`
	CohortID  string         `json:"cohort_id"`
	ClassDays []ClassDayView `json:"class_days"`
}

// HistoryEntry is one row of a student's flattened attendance history.
type HistoryEntry struct {
	CohortID    string     `json:"cohort_id"`
	ClassDay    int        `json:"class_day"`
	Date        time.Time  `json:"date"`
	Status      Status     `json:"status"`
	Score       int        `json:"score"`
	CheckInTime *time.Time `json:"check_in_time,omitempty"`
}
