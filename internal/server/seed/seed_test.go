package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lizmareco/tablero/internal/common/logger"
	"github.com/lizmareco/tablero/internal/server/repository"
	"github.com/lizmareco/tablero/internal/server/service"
)

const fixture = `
users:
  - name: Ana
    email: ana@example.com
    password: secret1
  - name: Bob
    email: bob@example.com
    password: secret2
workspaces:
  - name: Team
    owner: ana@example.com
    members: [bob@example.com]
    boards:
      - name: Sprint
        lists:
          - name: To do
            maxWIP: 3
            cards:
              - title: Write docs
                label: docs
                due: 2030-01-15
                assignee: bob@example.com
                tasks:
                  - name: outline
                    status: closed
              - title: Fix login
          - name: Done
            cards:
              - title: Setup
                status: closed
`

func TestLoadAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	f, err := Load(path)
	require.NoError(t, err)

	ctx := context.Background()
	svc := service.NewService(repository.NewMemoryRepository(), nil, nil, logger.NewNop())
	require.NoError(t, Apply(ctx, svc, f, logger.NewNop()))

	_, ana, err := svc.Login(ctx, "ana@example.com", "secret1")
	require.NoError(t, err)
	ws, err := svc.Workspaces(ctx, ana.ID)
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Len(t, ws[0].UserIDs, 2)

	boards, err := svc.Boards(ctx, ws[0].ID)
	require.NoError(t, err)
	require.Len(t, boards, 1)

	lists, err := svc.BoardLists(ctx, boards[0].ID)
	require.NoError(t, err)
	require.Len(t, lists, 2)
	assert.Equal(t, 3, lists[0].MaxWIP)
	assert.Equal(t, 2, lists[1].MaxWIP, "missing WIP limit defaults to room for the seeded cards")
	require.Len(t, lists[0].Cards, 2)

	doc := lists[0].Cards[0]
	assert.Equal(t, "Write docs", doc.Title)
	assert.Equal(t, "Bob", doc.AssignedUserName)
	require.NotNil(t, doc.DueDate)
	assert.Equal(t, "2030-01-15", doc.DueDate.Format("2006-01-02"))
	assert.True(t, lists[1].Cards[0].IsClosed())

	tasks, err := svc.Tasks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].IsClosed())

	// a second run leaves the store alone
	require.NoError(t, Apply(ctx, svc, f, logger.NewNop()))
	boards, err = svc.Boards(ctx, ws[0].ID)
	require.NoError(t, err)
	assert.Len(t, boards, 1)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("users:\n  - name: a\n    mail: x\n"))
	assert.Error(t, err)
}

func TestApply_UnknownUser(t *testing.T) {
	f, err := Parse([]byte("workspaces:\n  - name: W\n    owner: ghost@example.com\n"))
	require.NoError(t, err)
	svc := service.NewService(repository.NewMemoryRepository(), nil, nil, logger.NewNop())
	assert.Error(t, Apply(context.Background(), svc, f, logger.NewNop()))
}
