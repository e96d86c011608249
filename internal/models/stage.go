package models

import (
	"fmt"
	"strings"
)

// Stage is one kanban column of the pipeline.
type Stage struct {
	ID              string   `json:"id" yaml:"id"`
	Name            string   `json:"name" yaml:"name"`
	ColorTag        string   `json:"color_tag" yaml:"color_tag"`
	IsLocked        bool     `json:"is_locked" yaml:"locked"`
	Description     string   `json:"description" yaml:"description"`
	AutomationHints []string `json:"automation_hints" yaml:"automation_hints"`
}

// Clone copies the stage including its hint slice.
func (s Stage) Clone() Stage {
	out := s
	if s.AutomationHints != nil {
		out.AutomationHints = append([]string(nil), s.AutomationHints...)
	}
	return out
}

// StagePatch carries the fields an update may change. Nil leaves a field alone.
type StagePatch struct {
	Name            *string  `json:"name,omitempty"`
	ColorTag        *string  `json:"color_tag,omitempty"`
	Description     *string  `json:"description,omitempty"`
	IsLocked        *bool    `json:"is_locked,omitempty"`
	AutomationHints []string `json:"automation_hints,omitempty"`
}

// DefaultStages is the template a new workspace starts from.
func DefaultStages() []Stage {
	return []Stage{
		{ID: StageNew, Name: "New", ColorTag: "blue", IsLocked: true, Description: "Fresh applications awaiting review"},
		{ID: "reviewing", Name: "Reviewing", ColorTag: "indigo", Description: "Resume under review"},
		{ID: StagePhoneScreening, Name: "Phone Screening", ColorTag: "yellow", Description: "First call with a recruiter", AutomationHints: []string{"send_screening_invite"}},
		{ID: "interview", Name: "Interview", ColorTag: "purple", Description: "Interviews with the hiring team", AutomationHints: []string{"schedule_interview"}},
		{ID: "offer", Name: "Offer", ColorTag: "orange", Description: "Offer extended"},
		{ID: "hired", Name: "Hired", ColorTag: "green", IsLocked: true, Description: "Accepted the offer", AutomationHints: []string{"send_welcome_email"}},
		{ID: "rejected", Name: "Rejected", ColorTag: "red", IsLocked: true, Description: "Not moving forward", AutomationHints: []string{"send_rejection_email"}},
	}
}

// ValidateStages rejects an empty list, blank ids and duplicate ids.
func ValidateStages(stages []Stage) error {
	if len(stages) == 0 {
		return fmt.Errorf("no stages")
	}
	seen := make(map[string]struct{}, len(stages))
	for _, s := range stages {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("stage %q has no id", s.Name)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("duplicate stage id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}
