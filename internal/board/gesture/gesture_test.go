package gesture

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lizmareco/tablero/internal/common/errors"
)

func TestInterpret(t *testing.T) {
	tests := []struct {
		name string
		in   DragResult
		want Action
	}{
		{
			name: "dropped outside any list",
			in:   DragResult{DraggableID: "4", Type: TypeCard, Source: Location{"1", 0}},
			want: Noop,
		},
		{
			name: "dropped where it started",
			in:   DragResult{DraggableID: "4", Type: TypeCard, Source: Location{"1", 2}, Destination: &Location{"1", 2}},
			want: Noop,
		},
		{
			name: "card across lists",
			in:   DragResult{DraggableID: "2", Type: TypeCard, Source: Location{"1", 1}, Destination: &Location{"2", 1}},
			want: Action{Kind: ActionMoveCard, Card: &CardMove{CardID: 2, SourceListID: 1, SourceIndex: 1, DestinationListID: 2, DestinationIndex: 1}},
		},
		{
			name: "card within a list with implicit type",
			in:   DragResult{DraggableID: "7", Source: Location{"3", 0}, Destination: &Location{"3", 2}},
			want: Action{Kind: ActionMoveCard, Card: &CardMove{CardID: 7, SourceListID: 3, SourceIndex: 0, DestinationListID: 3, DestinationIndex: 2}},
		},
		{
			name: "list reorder",
			in:   DragResult{DraggableID: "list-5", Type: TypeList, Source: Location{BoardDroppableID, 0}, Destination: &Location{BoardDroppableID, 2}},
			want: Action{Kind: ActionMoveList, List: &ListMove{ListID: 5, SourceIndex: 0, DestinationIndex: 2}},
		},
		{
			name: "list dropped in place",
			in:   DragResult{DraggableID: "list-5", Type: TypeList, Source: Location{BoardDroppableID, 1}, Destination: &Location{BoardDroppableID, 1}},
			want: Noop,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Interpret(tt.in)
			if err != nil {
				t.Fatalf("Interpret() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Interpret() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInterpret_Malformed(t *testing.T) {
	tests := []struct {
		name string
		in   DragResult
	}{
		{"non numeric card", DragResult{DraggableID: "abc", Type: TypeCard, Source: Location{"1", 0}, Destination: &Location{"2", 0}}},
		{"non numeric list container", DragResult{DraggableID: "3", Type: TypeCard, Source: Location{"todo", 0}, Destination: &Location{"2", 0}}},
		{"list without prefix", DragResult{DraggableID: "5", Type: TypeList, Source: Location{BoardDroppableID, 0}, Destination: &Location{BoardDroppableID, 1}}},
		{"list onto a list", DragResult{DraggableID: "list-5", Type: TypeList, Source: Location{BoardDroppableID, 0}, Destination: &Location{"3", 1}}},
		{"negative index", DragResult{DraggableID: "3", Type: TypeCard, Source: Location{"1", 0}, Destination: &Location{"2", -1}}},
		{"unknown type", DragResult{DraggableID: "3", Type: "column", Source: Location{"1", 0}, Destination: &Location{"2", 0}}},
		{"zero id", DragResult{DraggableID: "0", Type: TypeCard, Source: Location{"1", 0}, Destination: &Location{"2", 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Interpret(tt.in)
			if !errors.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if got.Kind != ActionNoop {
				t.Errorf("expected noop action on error, got %v", got.Kind)
			}
		})
	}
}

func TestDraggableIDsRoundTrip(t *testing.T) {
	got, err := Interpret(DragResult{
		DraggableID: ListDraggableID(12),
		Type:        TypeList,
		Source:      Location{BoardDroppableID, 3},
		Destination: &Location{BoardDroppableID, 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.List == nil || got.List.ListID != 12 {
		t.Errorf("expected list 12, got %+v", got.List)
	}
	if CardDraggableID(9) != "9" {
		t.Errorf("CardDraggableID(9) = %q", CardDraggableID(9))
	}
}
