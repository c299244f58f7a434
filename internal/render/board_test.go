package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lizmareco/tablero/internal/board/models"
)

func TestBoard(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)

	lists := []*models.List{
		{ID: 1, Name: "Doing", MaxWIP: 2, Cards: []*models.Card{
			{ID: 10, Title: "late", Status: "open", DueDate: &past, Label: "bug", AssignedUserName: "ana"},
			{ID: 11, Title: "fine", Status: "open", DueDate: &future, Position: 1},
		}},
		{ID: 2, Name: "Done", Cards: []*models.Card{
			{ID: 12, Title: "old", Status: "closed", DueDate: &past},
		}},
	}

	out := Board(lists, Options{
		Title: "Sprint",
		Now:   now,
		TaskCounts: func(cardID int64) (int, int) {
			if cardID == 10 {
				return 1, 3
			}
			return 0, 0
		},
	})

	assert.Contains(t, out, "Sprint")
	assert.Contains(t, out, "Doing (2/2)")
	assert.Contains(t, out, "WIP limit reached")
	assert.Contains(t, out, "Done (1)")
	assert.Contains(t, out, "[bug]")
	assert.Contains(t, out, "@ana")
	assert.Contains(t, out, "1/3 tasks")
	assert.Equal(t, 1, strings.Count(out, "OVERDUE"), "closed and future cards are not overdue")
	assert.NotContains(t, out, "out of date")
}

func TestBoard_EmptyAndStale(t *testing.T) {
	out := Board(nil, Options{Stale: true})
	assert.Contains(t, out, "(no lists)")
	assert.Contains(t, out, "out of date")
}

func TestStats(t *testing.T) {
	out := Stats([]*models.StatEntry{
		{Name: "To do", Value: 4, Color: "#0088FE"},
		{Name: "Done", Value: 1},
		{Name: "Blocked", Value: 0},
	}, 8)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, 8, strings.Count(lines[0], "█"))
	assert.Equal(t, 2, strings.Count(lines[1], "█"))
	assert.Equal(t, 0, strings.Count(lines[2], "█"))
	assert.True(t, strings.HasSuffix(lines[2], " 0"))
}
