package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lizmareco/tablero/internal/board/controller"
	"github.com/lizmareco/tablero/internal/board/models"
	"github.com/lizmareco/tablero/internal/board/reconciler"
	"github.com/lizmareco/tablero/internal/live"
	"github.com/lizmareco/tablero/internal/render"
	v1 "github.com/lizmareco/tablero/pkg/api/v1"
)

func (a *app) boardsCmd() *cobra.Command {
	var workspaceID int64
	var create string
	cmd := &cobra.Command{
		Use:   "boards",
		Short: "List the boards of a workspace, or create one with --create",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			if create != "" {
				b, err := c.CreateBoard(cmd.Context(), &v1.CreateBoardRequest{Nombre: create, WorkspaceID: workspaceID})
				if err != nil {
					return a.explain(err)
				}
				fmt.Fprintf(a.out, "%d\t%s\n", b.ID, b.Name)
				return nil
			}
			boards, err := c.ListBoards(cmd.Context(), workspaceID)
			if err != nil {
				return a.explain(err)
			}
			for _, b := range boards {
				fmt.Fprintf(a.out, "%d\t%s\n", b.ID, b.Name)
			}
			return nil
		},
	}
	cmd.Flags().Int64VarP(&workspaceID, "workspace", "w", 0, "workspace id")
	cmd.Flags().StringVar(&create, "create", "", "name of a board to create")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}

// boardView holds the display flags shared by show and watch.
type boardView struct {
	assignee string
	label    string
	width    int
}

func (v *boardView) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&v.assignee, "assignee", "", "only cards assigned to this user name")
	cmd.Flags().StringVar(&v.label, "label", "", "only cards with this label")
	cmd.Flags().IntVar(&v.width, "width", 0, "column width")
}

func (v *boardView) render(ctrl *controller.BoardController, title string) string {
	rec := ctrl.Reconciler()
	filter := reconciler.Filter{AssigneeName: v.assignee, Label: v.label}
	var pred reconciler.Predicate
	if !filter.IsZero() {
		pred = filter.Match
	}
	return render.Board(rec.FilterCards(pred), render.Options{
		Title:       title,
		Now:         time.Now(),
		ColumnWidth: v.width,
		Stale:       rec.Stale(),
		TaskCounts: func(cardID int64) (int, int) {
			tasks := ctrl.Tasks(cardID)
			closed := 0
			for _, t := range tasks {
				if t.IsClosed() {
					closed++
				}
			}
			return closed, len(tasks)
		},
	})
}

func (a *app) boardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show, watch and summarize a board",
	}
	cmd.AddCommand(a.boardShowCmd())
	cmd.AddCommand(a.boardWatchCmd())
	cmd.AddCommand(a.boardStatsCmd())
	return cmd
}

func (a *app) boardShowCmd() *cobra.Command {
	var view boardView
	cmd := &cobra.Command{
		Use:   "show <board-id>",
		Short: "Print a board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			boardID, err := parseIDArg("board id", args[0])
			if err != nil {
				return err
			}
			ctrl, _, finish, err := a.openBoard(cmd.Context(), boardID)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, view.render(ctrl, fmt.Sprintf("Board %d", boardID)))
			return finish()
		},
	}
	view.bind(cmd)
	return cmd
}

func (a *app) boardWatchCmd() *cobra.Command {
	var view boardView
	cmd := &cobra.Command{
		Use:   "watch <board-id>",
		Short: "Print a board and reprint it whenever it changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			boardID, err := parseIDArg("board id", args[0])
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ctrl, c, finish, err := a.openBoard(ctx, boardID)
			if err != nil {
				return err
			}
			title := fmt.Sprintf("Board %d", boardID)
			draw := func() {
				// clear screen, cursor home
				fmt.Fprint(a.out, "\033[H\033[2J")
				fmt.Fprintln(a.out, view.render(ctrl, title))
			}
			draw()

			w := live.NewWatcher(c.BaseURL(), c.Session(), ctrl.Reconciler(), live.Options{OnRefresh: draw}, a.log)
			err = w.Run(ctx)
			finishErr := finish()
			if err != nil && ctx.Err() == nil {
				return a.explain(err)
			}
			if finishErr != nil && ctx.Err() == nil {
				return finishErr
			}
			return nil
		},
	}
	view.bind(cmd)
	return cmd
}

func (a *app) boardStatsCmd() *cobra.Command {
	var width int
	cmd := &cobra.Command{
		Use:   "stats <board-id>",
		Short: "Print the card count of each list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			boardID, err := parseIDArg("board id", args[0])
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			stats, err := c.Dashboard(cmd.Context(), boardID)
			if err != nil {
				return a.explain(err)
			}
			fmt.Fprint(a.out, render.Stats(stats, width))
			return nil
		},
	}
	cmd.Flags().IntVar(&width, "width", 30, "bar width")
	return cmd
}

func indexOfList(lists []*models.List, listID int64) int {
	for i, l := range lists {
		if l.ID == listID {
			return i
		}
	}
	return -1
}
