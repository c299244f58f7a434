package models

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	v1 "github.com/lizmareco/tablero/pkg/api/v1"
)

func TestCardIsOverdue(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name   string
		card   Card
		expect bool
	}{
		{"no due date", Card{Status: "open"}, false},
		{"past and open", Card{DueDate: &past, Status: "open"}, true},
		{"past and empty status", Card{DueDate: &past}, true},
		{"past but closed", Card{DueDate: &past, Status: "closed"}, false},
		{"future", Card{DueDate: &future, Status: "open"}, false},
		{"exactly now", Card{DueDate: &now, Status: "open"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.card.IsOverdue(now); got != tt.expect {
				t.Errorf("IsOverdue() = %v, want %v", got, tt.expect)
			}
		})
	}
}

func TestTaskIsOverdue(t *testing.T) {
	now := time.Now()
	past := now.Add(-24 * time.Hour)
	task := Task{DueDate: &past, Status: "open"}
	if !task.IsOverdue(now) {
		t.Error("expected open task with past due date to be overdue")
	}
	task.Status = "closed"
	if task.IsOverdue(now) {
		t.Error("closed task must not be overdue")
	}
}

func TestListAtWIPLimit(t *testing.T) {
	tests := []struct {
		name   string
		maxWIP int
		cards  int
		expect bool
	}{
		{"unset limit", 0, 10, false},
		{"below limit", 3, 2, false},
		{"at limit", 3, 3, true},
		{"over limit", 3, 4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &List{MaxWIP: tt.maxWIP}
			for i := 0; i < tt.cards; i++ {
				l.Cards = append(l.Cards, &Card{ID: int64(i + 1)})
			}
			if got := l.AtWIPLimit(); got != tt.expect {
				t.Errorf("AtWIPLimit() = %v, want %v", got, tt.expect)
			}
		})
	}
}

func TestListCloneIsDeep(t *testing.T) {
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	uid := int64(5)
	orig := &List{ID: 1, Name: "Todo", Cards: []*Card{{ID: 10, ListID: 1, DueDate: &due, AssignedUserID: &uid}}}

	cp := orig.Clone()
	if diff := cmp.Diff(orig, cp); diff != "" {
		t.Fatalf("clone differs (-orig +clone):\n%s", diff)
	}

	cp.Cards[0].Title = "changed"
	*cp.Cards[0].DueDate = due.AddDate(1, 0, 0)
	*cp.Cards[0].AssignedUserID = 9
	cp.Cards = append(cp.Cards, &Card{ID: 11})

	if orig.Cards[0].Title != "" || !orig.Cards[0].DueDate.Equal(due) || *orig.Cards[0].AssignedUserID != 5 {
		t.Error("mutating the clone leaked into the original card")
	}
	if len(orig.Cards) != 1 {
		t.Error("mutating the clone leaked into the original sequence")
	}
}

func TestListFromAPI_NormalizesCards(t *testing.T) {
	wip := 2
	in := &v1.List{ID: 3, Nombre: "Doing", MaxWIP: &wip, Cards: []*v1.Card{
		{ID: 7, Nombre: "b", Posicion: 5},
		{ID: 8, Nombre: "a", Estado: "closed", Posicion: 1},
	}}

	got := ListFromAPI(in)
	want := &List{ID: 3, Name: "Doing", MaxWIP: 2, Cards: []*Card{
		{ID: 7, ListID: 3, Title: "b", Status: "open", Position: 0},
		{ID: 8, ListID: 3, Title: "a", Status: "closed", Position: 1},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListFromAPI mismatch (-want +got):\n%s", diff)
	}

	empty := ListFromAPI(&v1.List{ID: 4, Nombre: "Done"})
	if empty.Cards == nil || len(empty.Cards) != 0 {
		t.Errorf("expected empty, non-nil card sequence, got %#v", empty.Cards)
	}
}
