// Package seed loads YAML fixtures into an empty board store.
package seed

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/lizmareco/tablero/internal/board/models"
	"github.com/lizmareco/tablero/internal/common/errors"
	"github.com/lizmareco/tablero/internal/common/logger"
	"github.com/lizmareco/tablero/internal/server/service"
	v1 "github.com/lizmareco/tablero/pkg/api/v1"
)

// Fixture is the root of a seed file.
type Fixture struct {
	Users      []User      `yaml:"users"`
	Workspaces []Workspace `yaml:"workspaces"`
}

type User struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type Workspace struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Owner       string   `yaml:"owner"`
	Members     []string `yaml:"members"`
	Boards      []Board  `yaml:"boards"`
}

type Board struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Lists       []List `yaml:"lists"`
}

type List struct {
	Name   string `yaml:"name"`
	MaxWIP int    `yaml:"maxWIP"`
	Cards  []Card `yaml:"cards"`
}

type Card struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Label       string `yaml:"label"`
	Due         string `yaml:"due"`
	Assignee    string `yaml:"assignee"`
	Status      string `yaml:"status"`
	Tasks       []Task `yaml:"tasks"`
}

type Task struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Status      string `yaml:"status"`
	Due         string `yaml:"due"`
}

// Load reads a fixture file. Unknown keys are rejected.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a fixture.
func Parse(data []byte) (*Fixture, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f Fixture
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &f, nil
}

// Apply creates the fixture's users, workspaces, boards, lists, cards and
// tasks in order. A store whose first user already exists is treated as
// seeded and left untouched.
func Apply(ctx context.Context, svc *service.Service, f *Fixture, log *logger.Logger) error {
	users := make(map[string]int64, len(f.Users))
	for i, u := range f.Users {
		created, err := svc.Register(ctx, u.Name, u.Email, u.Password)
		if i == 0 && errors.IsConflict(err) {
			log.Info("seed skipped, store already has users")
			return nil
		}
		if err != nil {
			return fmt.Errorf("seed user %s: %w", u.Email, err)
		}
		users[u.Email] = created.ID
	}
	lookup := func(email string) (int64, error) {
		id, ok := users[email]
		if !ok {
			return 0, fmt.Errorf("seed references unknown user %q", email)
		}
		return id, nil
	}

	var boards, cards int
	for _, w := range f.Workspaces {
		owner, err := lookup(w.Owner)
		if err != nil {
			return err
		}
		members := make([]int64, 0, len(w.Members))
		for _, m := range w.Members {
			id, err := lookup(m)
			if err != nil {
				return err
			}
			members = append(members, id)
		}
		ws, err := svc.CreateWorkspace(ctx, owner, w.Name, w.Description, members)
		if err != nil {
			return fmt.Errorf("seed workspace %s: %w", w.Name, err)
		}
		for _, b := range w.Boards {
			board, err := svc.CreateBoard(ctx, ws.ID, b.Name, b.Description)
			if err != nil {
				return fmt.Errorf("seed board %s: %w", b.Name, err)
			}
			boards++
			for _, l := range b.Lists {
				n, err := applyList(ctx, svc, board, l, lookup)
				if err != nil {
					return err
				}
				cards += n
			}
		}
	}
	log.Info("seed applied",
		zap.Int("users", len(f.Users)),
		zap.Int("boards", boards),
		zap.Int("cards", cards))
	return nil
}

func applyList(ctx context.Context, svc *service.Service, board *models.Board, l List, lookup func(string) (int64, error)) (int, error) {
	maxWIP := l.MaxWIP
	if maxWIP <= 0 {
		maxWIP = len(l.Cards) + 1
	}
	list, err := svc.CreateList(ctx, board.ID, l.Name, maxWIP)
	if err != nil {
		return 0, fmt.Errorf("seed list %s: %w", l.Name, err)
	}
	for _, c := range l.Cards {
		in := service.CardInput{ListID: list.ID, Title: c.Title, Description: c.Description, Label: c.Label}
		if in.DueDate, err = parseDue(c.Due); err != nil {
			return 0, fmt.Errorf("seed card %s: %w", c.Title, err)
		}
		if c.Assignee != "" {
			id, err := lookup(c.Assignee)
			if err != nil {
				return 0, err
			}
			in.AssignedUserID = &id
		}
		card, err := svc.CreateCard(ctx, in)
		if err != nil {
			return 0, fmt.Errorf("seed card %s: %w", c.Title, err)
		}
		if c.Status != "" {
			status := c.Status
			if _, err := svc.UpdateCard(ctx, card.ID, service.CardPatch{Status: &status}); err != nil {
				return 0, fmt.Errorf("seed card %s: %w", c.Title, err)
			}
		}
		for _, t := range c.Tasks {
			due, err := parseDue(t.Due)
			if err != nil {
				return 0, fmt.Errorf("seed task %s: %w", t.Name, err)
			}
			if _, err := svc.CreateTask(ctx, card.ID, service.TaskInput{
				Name: t.Name, Description: t.Description, Status: t.Status, DueDate: due,
			}); err != nil {
				return 0, fmt.Errorf("seed task %s: %w", t.Name, err)
			}
		}
	}
	return len(l.Cards), nil
}

func parseDue(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := v1.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
