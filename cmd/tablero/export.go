package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lizmareco/tablero/internal/archive"
)

// exportTimeout bounds the upload of one snapshot.
const exportTimeout = 60 * time.Second

func (a *app) exportCmd() *cobra.Command {
	var latest bool
	cmd := &cobra.Command{
		Use:   "export <board-id>",
		Short: "Upload a board snapshot to the configured S3 bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			boardID, err := parseIDArg("board id", args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), exportTimeout)
			defer cancel()

			exporter, err := archive.NewS3Exporter(ctx, a.cfg.Archive, a.log)
			if err != nil {
				return err
			}
			if err := exporter.CheckBucket(ctx); err != nil {
				return err
			}
			if latest {
				snap, err := exporter.Latest(ctx, boardID)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "board %d exported at %s with %d lists\n",
					snap.BoardID, snap.ExportedAt.Format(time.RFC3339), len(snap.Lists))
				return nil
			}

			ctrl, _, finish, err := a.openBoard(ctx, boardID)
			if err != nil {
				return err
			}
			if err := finish(); err != nil {
				return err
			}
			key, err := exporter.Export(ctx, boardID, ctrl.Reconciler().Snapshot())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "exported board %d to s3://%s/%s\n", boardID, a.cfg.Archive.Bucket, key)
			return nil
		},
	}
	cmd.Flags().BoolVar(&latest, "latest", false, "describe the newest snapshot instead of exporting")
	return cmd
}
