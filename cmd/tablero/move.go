package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lizmareco/tablero/internal/board/controller"
	"github.com/lizmareco/tablero/internal/board/gesture"
	"github.com/lizmareco/tablero/internal/common/constants"
	v1 "github.com/lizmareco/tablero/pkg/api/v1"
)

func (a *app) listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Add and move lists",
	}
	cmd.AddCommand(a.listAddCmd())
	cmd.AddCommand(a.listMoveCmd())
	return cmd
}

func (a *app) listAddCmd() *cobra.Command {
	var boardID int64
	var maxWIP int
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Append a list to a board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, _, finish, err := a.openBoard(cmd.Context(), boardID)
			if err != nil {
				return err
			}
			list, err := ctrl.CreateList(cmd.Context(), args[0], maxWIP)
			if err != nil {
				_ = finish()
				return a.explain(err)
			}
			fmt.Fprintf(a.out, "%d\t%s\n", list.ID, list.Name)
			return finish()
		},
	}
	cmd.Flags().Int64VarP(&boardID, "board", "b", 0, "board id")
	cmd.Flags().IntVar(&maxWIP, "max-wip", 5, "WIP limit")
	_ = cmd.MarkFlagRequired("board")
	return cmd
}

func (a *app) listMoveCmd() *cobra.Command {
	var boardID int64
	var position int
	cmd := &cobra.Command{
		Use:   "move <list-id>",
		Short: "Move a list to a position of its board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			listID, err := parseIDArg("list id", args[0])
			if err != nil {
				return err
			}
			ctrl, _, finish, err := a.openBoard(cmd.Context(), boardID)
			if err != nil {
				return err
			}
			rec := ctrl.Reconciler()
			from := indexOfList(rec.Snapshot(), listID)
			if from < 0 {
				_ = finish()
				return fmt.Errorf("list %d is not on board %d", listID, boardID)
			}
			action, err := gesture.Interpret(gesture.DragResult{
				DraggableID: gesture.ListDraggableID(listID),
				Type:        gesture.TypeList,
				Source:      gesture.Location{DroppableID: gesture.BoardDroppableID, Index: from},
				Destination: &gesture.Location{DroppableID: gesture.BoardDroppableID, Index: position},
			})
			if err != nil {
				_ = finish()
				return err
			}
			if _, err := rec.Dispatch(cmd.Context(), action); err != nil {
				_ = finish()
				return err
			}
			if err := finish(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "list %d moved to %d\n", listID, indexOfList(rec.Snapshot(), listID))
			return nil
		},
	}
	cmd.Flags().Int64VarP(&boardID, "board", "b", 0, "board id")
	cmd.Flags().IntVarP(&position, "position", "p", 0, "destination index")
	_ = cmd.MarkFlagRequired("board")
	return cmd
}

func (a *app) cardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Add, close and move cards",
	}
	cmd.AddCommand(a.cardAddCmd())
	cmd.AddCommand(a.cardCloseCmd())
	cmd.AddCommand(a.cardMoveCmd())
	return cmd
}

func (a *app) cardAddCmd() *cobra.Command {
	var (
		boardID  int64
		in       controller.CardInput
		due      string
		assignee int64
	)
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Append a card to a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Title = args[0]
			if due != "" {
				t, err := v1.ParseDate(due)
				if err != nil {
					return err
				}
				in.DueDate = &t
			}
			if assignee > 0 {
				in.AssigneeID = &assignee
			}
			ctrl, _, finish, err := a.openBoard(cmd.Context(), boardID)
			if err != nil {
				return err
			}
			card, err := ctrl.CreateCard(cmd.Context(), in)
			if err != nil {
				_ = finish()
				return a.explain(err)
			}
			fmt.Fprintf(a.out, "%d\t%s\n", card.ID, card.Title)
			return finish()
		},
	}
	cmd.Flags().Int64VarP(&boardID, "board", "b", 0, "board id")
	cmd.Flags().Int64VarP(&in.ListID, "list", "l", 0, "list id")
	cmd.Flags().StringVarP(&in.Description, "description", "d", "", "card description")
	cmd.Flags().StringVar(&in.Label, "label", "", "card label")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().Int64Var(&assignee, "assignee", 0, "assigned user id")
	_ = cmd.MarkFlagRequired("board")
	_ = cmd.MarkFlagRequired("list")
	return cmd
}

func (a *app) cardCloseCmd() *cobra.Command {
	var reopen bool
	cmd := &cobra.Command{
		Use:   "close <card-id>",
		Short: "Close a card, or reopen it with --reopen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cardID, err := parseIDArg("card id", args[0])
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			status := constants.StatusClosed
			if reopen {
				status = constants.StatusOpen
			}
			card, err := c.UpdateCard(cmd.Context(), cardID, &v1.UpdateCardRequest{Estado: &status})
			if err != nil {
				return a.explain(err)
			}
			fmt.Fprintf(a.out, "%d\t%s\t%s\n", card.ID, card.Title, card.Status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reopen, "reopen", false, "reopen instead of closing")
	return cmd
}

func (a *app) cardMoveCmd() *cobra.Command {
	var (
		boardID  int64
		listID   int64
		position int
	)
	cmd := &cobra.Command{
		Use:   "move <card-id>",
		Short: "Move a card to a position of a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cardID, err := parseIDArg("card id", args[0])
			if err != nil {
				return err
			}
			ctrl, _, finish, err := a.openBoard(cmd.Context(), boardID)
			if err != nil {
				return err
			}
			rec := ctrl.Reconciler()
			card, ok := rec.Card(cardID)
			if !ok {
				_ = finish()
				return fmt.Errorf("card %d is not on board %d", cardID, boardID)
			}
			if listID == 0 {
				listID = card.ListID
			}
			action, err := gesture.Interpret(gesture.DragResult{
				DraggableID: gesture.CardDraggableID(cardID),
				Type:        gesture.TypeCard,
				Source:      gesture.Location{DroppableID: strconv.FormatInt(card.ListID, 10), Index: card.Position},
				Destination: &gesture.Location{DroppableID: strconv.FormatInt(listID, 10), Index: position},
			})
			if err != nil {
				_ = finish()
				return err
			}
			res, err := rec.Dispatch(cmd.Context(), action)
			if err != nil {
				_ = finish()
				return err
			}
			if err := finish(); err != nil {
				return err
			}
			moved, _ := rec.Card(cardID)
			fmt.Fprintf(a.out, "card %d is at %d in list %d\n", cardID, moved.Position, moved.ListID)
			if res.DestinationAtWIPLimit {
				fmt.Fprintf(a.out, "warning: list %d is at its WIP limit\n", listID)
			}
			return nil
		},
	}
	cmd.Flags().Int64VarP(&boardID, "board", "b", 0, "board id")
	cmd.Flags().Int64VarP(&listID, "list", "l", 0, "destination list id (defaults to the card's list)")
	cmd.Flags().IntVarP(&position, "position", "p", 0, "destination index")
	_ = cmd.MarkFlagRequired("board")
	return cmd
}
