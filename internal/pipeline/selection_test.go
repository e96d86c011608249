package pipeline

import (
	"reflect"
	"testing"

	"candidate-pipeline/internal/models"
)

func TestSelectionToggleAllPartialGroup(t *testing.T) {
	s := NewSelection()
	s.Toggle(1, true)
	s.Toggle(2, true)

	if selected := s.ToggleAll([]int64{1, 2, 3}); !selected {
		t.Fatalf("partially selected group should become fully selected")
	}
	if !reflect.DeepEqual(s.IDs(), []int64{1, 2, 3}) {
		t.Fatalf("unexpected selection %v", s.IDs())
	}

	if selected := s.ToggleAll([]int64{1, 2, 3}); selected {
		t.Fatalf("fully selected group should be deselected")
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty selection, got %v", s.IDs())
	}
}

func TestSelectionPrune(t *testing.T) {
	s := NewSelection()
	for _, id := range []int64{1, 2, 3} {
		s.Toggle(id, true)
	}
	dropped := s.Prune([]models.Application{{ID: 2}, {ID: 4}})
	if dropped != 2 {
		t.Fatalf("expected 2 dropped, got %d", dropped)
	}
	if !reflect.DeepEqual(s.IDs(), []int64{2}) {
		t.Fatalf("unexpected selection %v", s.IDs())
	}
	s.Toggle(2, false)
	if s.Has(2) {
		t.Fatalf("expected deselect")
	}
}
