package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lizmareco/tablero/internal/backend/client"
	"github.com/lizmareco/tablero/internal/board/controller"
	"github.com/lizmareco/tablero/internal/board/reconciler"
	"github.com/lizmareco/tablero/internal/common/config"
	"github.com/lizmareco/tablero/internal/common/errors"
	"github.com/lizmareco/tablero/internal/common/logger"
	"github.com/lizmareco/tablero/internal/events"
	"github.com/lizmareco/tablero/internal/session"
)

// app carries what every command needs once flags are parsed.
type app struct {
	configDir   string
	backendURL  string
	sessionPath string
	verbose     bool

	cfg   *config.Config
	log   *logger.Logger
	store *session.Store
	out   io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "tablero",
		Short:         "Kanban boards from the terminal",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configDir, "config", "", "directory holding config.yaml")
	flags.StringVar(&a.backendURL, "backend", "", "backend base URL (overrides backend.baseURL)")
	flags.StringVar(&a.sessionPath, "session", "", "session file (overrides session.path)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(a.loginCmd())
	root.AddCommand(a.logoutCmd())
	root.AddCommand(a.registerCmd())
	root.AddCommand(a.workspacesCmd())
	root.AddCommand(a.boardsCmd())
	root.AddCommand(a.boardCmd())
	root.AddCommand(a.listCmd())
	root.AddCommand(a.cardCmd())
	root.AddCommand(a.exportCmd())
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.LoadWithPath(a.configDir)
	if err != nil {
		return err
	}
	if a.backendURL != "" {
		cfg.Backend.BaseURL = a.backendURL
	}
	if a.sessionPath != "" {
		cfg.Session.Path = a.sessionPath
	}
	level := cfg.Logging.Level
	if a.verbose {
		level = "debug"
	}
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.cfg = cfg
	a.log = log
	a.store = session.NewStore(cfg.Session.Path)
	a.out = cmd.OutOrStdout()
	return nil
}

// client returns a backend client for the saved session.
func (a *app) client() (*client.Client, error) {
	sess, err := a.store.Load()
	if errors.IsAuth(err) {
		return nil, fmt.Errorf("not logged in, run: tablero login")
	}
	if err != nil {
		return nil, err
	}
	return client.New(a.cfg.Backend, sess, a.log), nil
}

// openBoard loads a board through a reconciler. Move failures are
// collected and returned by the returned func.
func (a *app) openBoard(ctx context.Context, boardID int64) (*controller.BoardController, *client.Client, func() error, error) {
	c, err := a.client()
	if err != nil {
		return nil, nil, nil, err
	}

	var (
		mu       sync.Mutex
		failures []reconciler.Failure
	)
	eventBus, closeBus, err := events.Provide(a.cfg, a.log)
	if err != nil {
		return nil, nil, nil, err
	}
	rec, err := reconciler.New(reconciler.Options{
		BoardID:     boardID,
		Persister:   c,
		Source:      c,
		Bus:         eventBus,
		MoveTimeout: a.cfg.Backend.MoveTimeoutDuration(),
		OnFailure: func(f reconciler.Failure) {
			mu.Lock()
			failures = append(failures, f)
			mu.Unlock()
		},
	}, a.log)
	if err != nil {
		_ = closeBus()
		return nil, nil, nil, err
	}

	ctrl := controller.NewBoardController(c, rec, a.log)
	if err := ctrl.Open(ctx); err != nil {
		rec.Close()
		_ = closeBus()
		return nil, nil, nil, a.explain(err)
	}

	finish := func() error {
		waitErr := rec.Wait(ctx)
		rec.Close()
		if err := closeBus(); err != nil {
			a.log.Debug("failed to close event bus", zap.Error(err))
		}
		if waitErr != nil {
			return waitErr
		}
		mu.Lock()
		defer mu.Unlock()
		if len(failures) > 0 {
			f := failures[0]
			outcome := "board is stale"
			switch {
			case f.RolledBack:
				outcome = "rolled back"
			case f.Resynced, f.ResyncQueued && !rec.Stale():
				outcome = "resynchronized"
			}
			return fmt.Errorf("%s %d was not saved (%s): %w", f.Kind, f.EntityID, outcome, f.Err)
		}
		return nil
	}
	return ctrl, c, finish, nil
}

// explain turns authorization failures into a login hint.
func (a *app) explain(err error) error {
	if errors.IsAuth(err) {
		return fmt.Errorf("session rejected by the backend, run: tablero login: %w", err)
	}
	return err
}

func parseIDArg(name, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return id, nil
}
