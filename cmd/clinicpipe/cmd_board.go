package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/askiada/clinic-pipeline/internal/tui"
	"github.com/askiada/clinic-pipeline/pkg/pipeline"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/drawer"
)

func (a *app) boardCmd() *cobra.Command {
	var draw bool

	cmd := &cobra.Command{
		Use:   "board",
		Short: "Open the interactive kanban board",
		Long: `Shows one column per stage with the patients of the clinic as cards.

Use h/l and j/k to select a card, H/L to move it to the previous or next stage
and K/J to reorder it within its stage. Press ? for every key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()

			var d drawer.Drawer
			if draw {
				d = drawer.NewDOTDrawer(a.cfg.Draw.Output)
			}

			notifier := &tui.ProgramNotifier{}
			s, err := a.openSession(ctx, d, pipeline.WithNotifier(notifier))
			if err != nil {
				return err
			}
			defer func() {
				closeErr := s.close(ctx)
				if err == nil {
					err = closeErr
				}
			}()

			m := tui.New(ctx, s.board,
				tui.WithMember(s.member),
				tui.WithRefreshInterval(a.cfg.Board.RefreshInterval),
			)
			p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
			notifier.Attach(p)

			_, err = p.Run()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return errors.Wrap(err, "unable to run the board")
			}
			a.logger.Info("board closed", zap.Int("in_flight", s.board.InFlight()))

			return nil
		},
	}

	cmd.Flags().BoolVar(&draw, "draw", false, "write the board graph with the moves of the session on exit")
	cmd.Flags().String("out", "", "graph file written with --draw (default from draw.output)")

	return cmd
}
