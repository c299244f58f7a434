package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lizmareco/tablero/internal/backend/client"
	v1 "github.com/lizmareco/tablero/pkg/api/v1"
)

func (a *app) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(a.cfg.Backend, nil, a.log)
			sess, err := c.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if err := a.store.Save(sess); err != nil {
				return err
			}
			name := email
			if sess.User != nil && sess.User.Name != "" {
				name = sess.User.Name
			}
			fmt.Fprintf(a.out, "Logged in as %s\n", name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		},
	}
}

func (a *app) registerCmd() *cobra.Command {
	var req v1.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(a.cfg.Backend, nil, a.log)
			if err := c.Register(cmd.Context(), &req); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Registered %s\n", req.Email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Nombre, "name", "n", "", "display name")
	cmd.Flags().StringVarP(&req.Email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "account password")
	return cmd
}

func (a *app) workspacesCmd() *cobra.Command {
	var create, description string
	cmd := &cobra.Command{
		Use:   "workspaces",
		Short: "List workspaces, or create one with --create",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			if create != "" {
				ws, err := c.CreateWorkspace(cmd.Context(), &v1.CreateWorkspaceRequest{Nombre: create, Descripcion: description})
				if err != nil {
					return a.explain(err)
				}
				fmt.Fprintf(a.out, "%d\t%s\n", ws.ID, ws.Name)
				return nil
			}
			list, err := c.Workspaces(cmd.Context())
			if err != nil {
				return a.explain(err)
			}
			for _, ws := range list {
				fmt.Fprintf(a.out, "%d\t%s\n", ws.ID, ws.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&create, "create", "", "name of a workspace to create")
	cmd.Flags().StringVar(&description, "description", "", "description of the new workspace")
	return cmd
}
