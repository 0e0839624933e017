package entity

import (
	"sort"
	"time"
)

// Track names a learning stack within a cohort's scheme of work.
type Track string

const (
	TrackFrontend      Track = "frontend"
	TrackBackend       Track = "backend"
	TrackProductDesign Track = "product-design"
)

// Tracks lists every track a scheme carries.
var Tracks = []Track{TrackFrontend, TrackBackend, TrackProductDesign}

func (t Track) Valid() bool {
	for _, k := range Tracks {
		if k == t {
			return true
		}
	}
	return false
}

// Entry is one class day's subject on a track.
type Entry struct {
	Day     int       `json:"day"`
	Subject string    `json:"subject"`
	Date    time.Time `json:"date"`
}

// Scheme is the per-cohort curriculum, one ordered entry list per track.
type Scheme struct {
	ID           string            `json:"id"`
	CohortID     string            `json:"cohort_id"`
	CohortNumber int               `json:"cohort_number"`
	Tracks       map[Track][]Entry `json:"tracks"`
	Version      int64             `json:"version"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// NewScheme returns a scheme with an empty entry list for every track.
func NewScheme(id, cohortID string, number int, now time.Time) *Scheme {
	s := &Scheme{ID: id, CohortID: cohortID, CohortNumber: number, Tracks: map[Track][]Entry{}, CreatedAt: now, UpdatedAt: now}
	for _, t := range Tracks {
		s.Tracks[t] = []Entry{}
	}
	return s
}

// Put inserts or replaces the entry for e.Day on track t, keeping the list
// ordered by day.
func (s *Scheme) Put(t Track, e Entry) {
	entries := s.Tracks[t]
	for i := range entries {
		if entries[i].Day == e.Day {
			entries[i] = e
			return
		}
	}
	entries = append(entries, e)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Day < entries[j].Day })
	s.Tracks[t] = entries
}

// Clear empties the entry list of track t.
func (s *Scheme) Clear(t Track) { s.Tracks[t] = []Entry{} }

func (s *Scheme) Clone() *Scheme {
	c := *s
	c.Tracks = make(map[Track][]Entry, len(s.Tracks))
	for t, es := range s.Tracks {
		c.Tracks[t] = append([]Entry{}, es...)
	}
	return &c
}
