package models

import "time"

// ResumeFilter narrows by whether a resume is attached.
type ResumeFilter string

const (
	ResumeAny     ResumeFilter = "any"
	ResumeWith    ResumeFilter = "with"
	ResumeWithout ResumeFilter = "without"
)

// DateRange bounds the activity date. Either end may be open.
type DateRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Active reports whether either bound is set.
func (r DateRange) Active() bool {
	return r.Start != nil || r.End != nil
}

// FilterState is the client-side filter applied to the loaded records.
type FilterState struct {
	Search               string       `json:"search,omitempty"`
	Status               string       `json:"status,omitempty"`
	Priority             string       `json:"priority,omitempty"`
	Rating               *int         `json:"rating,omitempty"`
	HasResume            ResumeFilter `json:"has_resume,omitempty"`
	DateRange            DateRange    `json:"date_range"`
	JobMatchMin          *int         `json:"job_match_min,omitempty"`
	Tags                 []string     `json:"tags,omitempty"`
	OnlyRevealedContacts bool         `json:"only_revealed_contacts,omitempty"`
}

// Query is what the record store asks the backend for.
type Query struct {
	JobID  int64
	Stage  string
	Search string
	Limit  int
}
