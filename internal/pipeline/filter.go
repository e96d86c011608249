package pipeline

import (
	"strings"
	"time"

	"candidate-pipeline/internal/models"
)

type predicate func(models.Application) bool

// ComputeVisibleSet returns the records that pass every active filter, in input order.
// It has no side effects. Malformed filter values are ignored rather than rejected.
func ComputeVisibleSet(records []models.Application, f models.FilterState) []models.Application {
	preds := compile(f)
	out := make([]models.Application, 0, len(records))
	for _, rec := range records {
		if matchesAll(rec, preds) {
			out = append(out, rec)
		}
	}
	return out
}

func matchesAll(rec models.Application, preds []predicate) bool {
	for _, p := range preds {
		if !p(rec) {
			return false
		}
	}
	return true
}

// compile turns the active fields of f into predicates. Order: search, status,
// priority, rating, resume, match score, date range, tags, contact reveal.
func compile(f models.FilterState) []predicate {
	var preds []predicate

	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		preds = append(preds, func(a models.Application) bool { return matchesSearch(a, q) })
	}
	if status := strings.TrimSpace(f.Status); status != "" && status != "all" {
		preds = append(preds, func(a models.Application) bool { return a.Stage == status })
	}
	if p := models.Priority(strings.ToLower(strings.TrimSpace(f.Priority))); p.Valid() {
		preds = append(preds, func(a models.Application) bool { return a.Priority == p })
	}
	if f.Rating != nil && *f.Rating >= 0 && *f.Rating <= 5 {
		floor := *f.Rating
		preds = append(preds, func(a models.Application) bool { return a.Rating >= floor })
	}
	switch f.HasResume {
	case models.ResumeWith:
		preds = append(preds, func(a models.Application) bool { return a.HasResume() })
	case models.ResumeWithout:
		preds = append(preds, func(a models.Application) bool { return !a.HasResume() })
	}
	if f.JobMatchMin != nil && *f.JobMatchMin >= 0 && *f.JobMatchMin <= 100 {
		floor := *f.JobMatchMin
		preds = append(preds, func(a models.Application) bool {
			return a.JobMatchScore != nil && *a.JobMatchScore >= floor
		})
	}
	if start, end, ok := normalizeRange(f.DateRange); ok {
		preds = append(preds, func(a models.Application) bool {
			d, has := a.ActivityDate()
			if !has {
				return false
			}
			if start != nil && d.Before(*start) {
				return false
			}
			if end != nil && d.After(*end) {
				return false
			}
			return true
		})
	}
	if tags := models.NormalizeTags(f.Tags); len(tags) > 0 {
		preds = append(preds, func(a models.Application) bool {
			for _, t := range tags {
				if !a.HasTag(t) {
					return false
				}
			}
			return true
		})
	}
	if f.OnlyRevealedContacts {
		preds = append(preds, func(a models.Application) bool { return a.ContactVisible || a.ContactRevealed })
	}
	return preds
}

// normalizeRange swaps an inverted range instead of producing an empty result.
func normalizeRange(r models.DateRange) (*time.Time, *time.Time, bool) {
	if !r.Active() {
		return nil, nil, false
	}
	start, end := r.Start, r.End
	if start != nil && end != nil && start.After(*end) {
		start, end = end, start
	}
	return start, end, true
}

func matchesSearch(a models.Application, q string) bool {
	fields := []string{a.Applicant.FullName, a.Applicant.Email, a.Applicant.Location, a.Applicant.Phone}
	fields = append(fields, a.Applicant.Skills...)
	fields = append(fields, a.Tags...)
	if a.Notes != nil {
		fields = append(fields, *a.Notes)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// Column is one stage and the visible applications in it.
type Column struct {
	Stage        models.Stage
	Applications []models.Application
}

// GroupByStage partitions the visible set by stage id. Records whose stage is not
// registered land in no group.
func GroupByStage(visible []models.Application, stages []models.Stage) map[string][]models.Application {
	groups := make(map[string][]models.Application, len(stages))
	for _, s := range stages {
		groups[s.ID] = []models.Application{}
	}
	for _, a := range visible {
		if _, ok := groups[a.Stage]; !ok {
			continue
		}
		groups[a.Stage] = append(groups[a.Stage], a)
	}
	return groups
}

// Board returns the grouped columns in stage order.
func Board(visible []models.Application, stages []models.Stage) []Column {
	groups := GroupByStage(visible, stages)
	cols := make([]Column, 0, len(stages))
	for _, s := range stages {
		cols = append(cols, Column{Stage: s, Applications: groups[s.ID]})
	}
	return cols
}
