package entity

import "time"

// Cohort is one intake of the training programme, identified publicly by
// its sequential number.
type Cohort struct {
	ID        string    `json:"id" db:"id"`
	Number    int       `json:"number" db:"number"`
	StartDate time.Time `json:"start_date" db:"start_date"`
	EndDate   time.Time `json:"end_date" db:"end_date"`
	Size      int       `json:"size" db:"size"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
