package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/askiada/clinic-pipeline/internal/mcptools"
	"github.com/askiada/clinic-pipeline/pkg/pipeline"
)

func (a *app) mcpCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the board as MCP tools",
		Long: `Exposes list_items, stage_totals and move_item to MCP clients.

Without --addr the tools are served on stdin and stdout, otherwise over
streamable HTTP on the given address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			s, err := a.openSession(ctx, nil)
			if err != nil {
				return err
			}
			defer func() {
				closeErr := s.close(ctx)
				if err == nil {
					err = closeErr
				}
			}()

			if interval := a.cfg.Board.RefreshInterval; interval > 0 {
				go func() {
					watchErr := s.board.Watch(ctx, interval)
					if watchErr != nil && !errors.Is(watchErr, context.Canceled) &&
						!errors.Is(watchErr, pipeline.ErrBoardClosed) {
						a.logger.Warn("board refresh stopped", zap.Error(watchErr))
					}
				}()
			}

			svc := mcptools.NewBoardService(s.board, s.member, a.cfg.Board.ConfirmTimeout, a.logger)
			if addr == "" {
				a.logger.Info("serving MCP tools on stdio")

				return mcptools.RunStdio(ctx, svc)
			}

			a.logger.Info("serving MCP tools over HTTP", zap.String("addr", addr))

			return mcptools.RunHTTP(ctx, svc, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address for streamable HTTP, e.g. :8080 (default stdio)")

	return cmd
}
