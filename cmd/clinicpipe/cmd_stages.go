package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/askiada/clinic-pipeline/internal/store"
	"github.com/askiada/clinic-pipeline/pkg/pipeline"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

func (a *app) stagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stages",
		Short: "Print the stages of the board in order",
		Long: `Prints the stages of the board in order. The subcommands change the stages and
need the admin role.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStages(cmd, false, func(context.Context, *session, []model.Stage) error {
				return nil
			})
		},
	}

	cmd.AddCommand(
		a.stagesAddCmd(),
		a.stagesRenameCmd(),
		a.stagesReorderCmd(),
		a.stagesDeleteCmd(),
	)

	return cmd
}

func (a *app) stagesAddCmd() *cobra.Command {
	var color string

	cmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Add a stage after the last one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStages(cmd, true, func(ctx context.Context, s *session, stages []model.Stage) error {
				created, err := s.backend.CreateStage(ctx, model.Stage{
					ClinicID: a.cfg.Store.ClinicID,
					Name:     strings.TrimSpace(args[0]),
					Order:    nextOrder(stages),
					Color:    color,
				})
				if err != nil {
					return err
				}
				a.logger.Info("stage added", zap.String("stage", created.Name), zap.String("id", created.ID))

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&color, "color", "", "background colour of the stage, e.g. #16a34a")

	return cmd
}

func (a *app) stagesRenameCmd() *cobra.Command {
	var color string

	cmd := &cobra.Command{
		Use:   "rename [stage] [name]",
		Short: "Rename a stage, its patients follow it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStages(cmd, true, func(ctx context.Context, s *session, stages []model.Stage) error {
				st, err := findStage(stages, args[0])
				if err != nil {
					return err
				}

				updated, err := s.backend.UpdateStage(ctx, model.Stage{
					ID:    st.ID,
					Name:  strings.TrimSpace(args[1]),
					Color: color,
				})
				if err != nil {
					return err
				}
				a.logger.Info("stage updated", zap.String("from", st.Name), zap.String("to", updated.Name))

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&color, "color", "", "new background colour of the stage")

	return cmd
}

func (a *app) stagesReorderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reorder [stage]...",
		Short: "Put the given stages first, in that order",
		Long: `Puts the given stages first, in the given order. The stages left out keep their
relative order after them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStages(cmd, true, func(ctx context.Context, s *session, stages []model.Stage) error {
				ids, err := reorderedIDs(stages, args)
				if err != nil {
					return err
				}

				return s.backend.ReorderStages(ctx, ids)
			})
		},
	}
}

func (a *app) stagesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [stage]",
		Short: "Delete a stage without patients",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStages(cmd, true, func(ctx context.Context, s *session, stages []model.Stage) error {
				st, err := findStage(stages, args[0])
				if err != nil {
					return err
				}

				err = s.backend.DeleteStage(ctx, st.ID)
				if errors.Is(err, store.ErrStageInUse) {
					return errors.Wrap(err, "move its patients to another stage first")
				}

				return err
			})
		},
	}
}

// withStages opens a session, runs fn with the stages of the store and prints the stages of the
// reloaded board. manage requires the member to be allowed to change stages.
func (a *app) withStages(
	cmd *cobra.Command,
	manage bool,
	fn func(ctx context.Context, s *session, stages []model.Stage) error,
) (err error) {
	ctx := cmd.Context()

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

	if manage && !s.member.CanManageStages() {
		return errors.Errorf("a %s cannot manage stages", s.member.Role)
	}

	stages, err := s.backend.FetchStages(ctx)
	if err != nil {
		return errors.Wrap(err, "unable to fetch stages")
	}

	err = fn(ctx, s, stages)
	if err != nil {
		return err
	}

	if manage {
		err = s.board.Refresh(ctx)
		if err != nil {
			return errors.Wrap(err, "unable to reload the board")
		}
	}
	printStages(cmd.OutOrStdout(), s.board.Stages())

	return nil
}

func printStages(w io.Writer, stages *pipeline.StageSet) {
	t := newTable("#", "Stage", "Colour", "Next")
	for i, name := range stages.Names() {
		next, _ := stages.Next(name)
		t.Row(strconv.Itoa(i+1), name, stages.Color(name), next)
	}
	fmt.Fprintln(w, t.Render())
}

// findStage looks ref up as an id, then as a case insensitive name.
func findStage(stages []model.Stage, ref string) (model.Stage, error) {
	for _, st := range stages {
		if st.ID == ref {
			return st, nil
		}
	}
	for _, st := range stages {
		if strings.EqualFold(st.Name, strings.TrimSpace(ref)) {
			return st, nil
		}
	}

	return model.Stage{}, errors.Wrapf(store.ErrNotFound, "stage %q", ref)
}

func nextOrder(stages []model.Stage) int {
	order := 0
	for _, st := range stages {
		order = max(order, st.Order+1)
	}

	return order
}

// reorderedIDs returns the ids of the stages named in refs, then the ids of the others in their
// current order.
func reorderedIDs(stages []model.Stage, refs []string) ([]string, error) {
	set, err := pipeline.NewStageSet(stages)
	if err != nil {
		return nil, err
	}
	current := set.Stages()

	ids := make([]string, 0, len(current))
	seen := make(map[string]bool, len(current))
	for _, ref := range refs {
		st, err := findStage(current, ref)
		if err != nil {
			return nil, err
		}
		if seen[st.ID] {
			return nil, errors.Errorf("stage %q is given twice", st.Name)
		}
		seen[st.ID] = true
		ids = append(ids, st.ID)
	}

	for _, st := range current {
		if !seen[st.ID] {
			ids = append(ids, st.ID)
		}
	}

	return ids, nil
}
