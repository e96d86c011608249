package models

import "time"

// ApplicationDTO is the wire shape of an application. Mutable fields are pointers so a
// partial server payload can be merged without clobbering fields it did not carry.
type ApplicationDTO struct {
	ID              int64      `json:"id"`
	JobID           int64      `json:"job_id,omitempty"`
	Stage           *string    `json:"stage,omitempty"`
	Priority        *Priority  `json:"priority,omitempty"`
	Rating          *int       `json:"rating,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
	Flagged         *bool      `json:"flagged,omitempty"`
	IsNewLead       *bool      `json:"is_new_lead,omitempty"`
	ContactVisible  *bool      `json:"contact_visible,omitempty"`
	ContactRevealed *bool      `json:"contact_revealed,omitempty"`
	JobMatchScore   *int       `json:"job_match_score,omitempty"`
	ResumeURL       *string    `json:"resume_url,omitempty"`
	AppliedAt       *time.Time `json:"applied_at,omitempty"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
	Applicant       *Applicant `json:"applicant,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	Version         *int64     `json:"version,omitempty"`
}

// ToDTO renders a full application for the wire.
func ToDTO(a Application) ApplicationDTO {
	a = a.Clone()
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	applicant := a.Applicant
	return ApplicationDTO{
		ID:              a.ID,
		JobID:           a.JobID,
		Stage:           &a.Stage,
		Priority:        &a.Priority,
		Rating:          &a.Rating,
		Tags:            tags,
		Flagged:         &a.Flagged,
		IsNewLead:       &a.IsNewLead,
		ContactVisible:  &a.ContactVisible,
		ContactRevealed: &a.ContactRevealed,
		JobMatchScore:   a.JobMatchScore,
		ResumeURL:       &a.ResumeURL,
		AppliedAt:       a.AppliedAt,
		CreatedAt:       a.CreatedAt,
		Applicant:       &applicant,
		Notes:           a.Notes,
		Version:         &a.Version,
	}
}

// Normalize builds a complete application from a possibly partial payload. Missing
// flagged/is_new_lead default to "still in the intake stage"; a missing contact
// visibility counts as visible.
func (d ApplicationDTO) Normalize() Application {
	a := Application{
		ID:             d.ID,
		JobID:          d.JobID,
		Stage:          StageNew,
		Priority:       PriorityNormal,
		ContactVisible: true,
		AppliedAt:      d.AppliedAt,
		CreatedAt:      d.CreatedAt,
		Notes:          d.Notes,
	}
	if d.Stage != nil && *d.Stage != "" {
		a.Stage = *d.Stage
	}
	a.Flagged = a.Stage == StageNew
	a.IsNewLead = a.Stage == StageNew
	d.MergeInto(&a)
	return a.Clone()
}

// MergeInto overwrites the fields of a that d carries. Stage moves go through EnterStage
// only when the caller asks for it, so a reconcile never re-derives flags on its own.
func (d ApplicationDTO) MergeInto(a *Application) {
	if d.JobID != 0 {
		a.JobID = d.JobID
	}
	if d.Stage != nil && *d.Stage != "" {
		a.Stage = *d.Stage
	}
	if d.Priority != nil {
		a.Priority = ParsePriority(string(*d.Priority))
	}
	if d.Rating != nil {
		a.Rating = ClampRating(*d.Rating)
	}
	if d.Tags != nil {
		a.Tags = NormalizeTags(d.Tags)
	}
	if d.Flagged != nil {
		a.Flagged = *d.Flagged
	}
	if d.IsNewLead != nil {
		a.IsNewLead = *d.IsNewLead
	}
	if d.ContactVisible != nil {
		a.ContactVisible = *d.ContactVisible
	}
	if d.ContactRevealed != nil {
		a.ContactRevealed = *d.ContactRevealed
	}
	if d.JobMatchScore != nil {
		v := ClampScore(*d.JobMatchScore)
		a.JobMatchScore = &v
	}
	if d.ResumeURL != nil {
		a.ResumeURL = *d.ResumeURL
	}
	if d.AppliedAt != nil {
		a.AppliedAt = d.AppliedAt
	}
	if d.CreatedAt != nil {
		a.CreatedAt = d.CreatedAt
	}
	if d.Applicant != nil {
		a.Applicant = *d.Applicant
	}
	if d.Notes != nil {
		v := *d.Notes
		a.Notes = &v
	}
	if d.Version != nil {
		a.Version = *d.Version
	}
}
