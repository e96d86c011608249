package models

import (
	"strings"
	"time"
)

// StagePhoneScreening is the first human-reviewed stage. Entering it clears lead flags.
const (
	StageNew            = "new"
	StagePhoneScreening = "phone_screening"
)

// Priority ranks how urgently an application needs attention.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ParsePriority maps free-form input onto a Priority. Unknown values fall back to normal.
func ParsePriority(s string) Priority {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if p.Valid() {
		return p
	}
	return PriorityNormal
}

// Applicant is the person behind an application.
type Applicant struct {
	FullName string   `json:"full_name"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone"`
	Location string   `json:"location"`
	Skills   []string `json:"skills"`
}

// Application is a candidate record tracked through the pipeline.
type Application struct {
	ID              int64      `json:"id"`
	JobID           int64      `json:"job_id"`
	Stage           string     `json:"stage"`
	Priority        Priority   `json:"priority"`
	Rating          int        `json:"rating"`
	Tags            []string   `json:"tags"`
	Flagged         bool       `json:"flagged"`
	IsNewLead       bool       `json:"is_new_lead"`
	ContactVisible  bool       `json:"contact_visible"`
	ContactRevealed bool       `json:"contact_revealed"`
	JobMatchScore   *int       `json:"job_match_score,omitempty"`
	ResumeURL       string     `json:"resume_url,omitempty"`
	AppliedAt       *time.Time `json:"applied_at,omitempty"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
	Applicant       Applicant  `json:"applicant"`
	Notes           *string    `json:"notes,omitempty"`
	Version         int64      `json:"version"`
}

// Clone returns a deep copy so optimistic snapshots never share slices with live records.
func (a Application) Clone() Application {
	out := a
	out.Tags = cloneStrings(a.Tags)
	out.Applicant.Skills = cloneStrings(a.Applicant.Skills)
	if a.JobMatchScore != nil {
		v := *a.JobMatchScore
		out.JobMatchScore = &v
	}
	if a.AppliedAt != nil {
		v := *a.AppliedAt
		out.AppliedAt = &v
	}
	if a.CreatedAt != nil {
		v := *a.CreatedAt
		out.CreatedAt = &v
	}
	if a.Notes != nil {
		v := *a.Notes
		out.Notes = &v
	}
	return out
}

// HasResume reports whether a resume is attached.
func (a Application) HasResume() bool {
	return strings.TrimSpace(a.ResumeURL) != ""
}

// ActivityDate is the date used by range filters: applied_at, falling back to created_at.
func (a Application) ActivityDate() (time.Time, bool) {
	if a.AppliedAt != nil && !a.AppliedAt.IsZero() {
		return *a.AppliedAt, true
	}
	if a.CreatedAt != nil && !a.CreatedAt.IsZero() {
		return *a.CreatedAt, true
	}
	return time.Time{}, false
}

// HasTag reports whether the application carries tag, ignoring case.
func (a Application) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// EnterStage moves the application into stage. Every entry into phone screening
// clears the flagged and new-lead markers, whatever stage it came from.
func EnterStage(a *Application, stage string) {
	a.Stage = stage
	if stage == StagePhoneScreening {
		a.Flagged = false
		a.IsNewLead = false
	}
}

// ClampRating keeps a rating inside [0,5].
func ClampRating(r int) int {
	if r < 0 {
		return 0
	}
	if r > 5 {
		return 5
	}
	return r
}

// ClampScore keeps a match score inside [0,100].
func ClampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// NormalizeTags trims, drops empties and removes case-insensitive duplicates, keeping order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		k := strings.ToLower(t)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// ApplicationEvent is an audit row for one application.
type ApplicationEvent struct {
	ApplicationID int64     `json:"application_id"`
	Event         string    `json:"event"`
	Detail        string    `json:"detail"`
	Recorded      time.Time `json:"recorded_at"`
}
