package main

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/askiada/clinic-pipeline/pkg/pipeline"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

func (a *app) moveCmd() *cobra.Command {
	var index int

	cmd := &cobra.Command{
		Use:   "move [patient] [stage]",
		Short: "Move a patient to a stage and wait until it is saved",
		Long: `Moves a patient, given by id or by name, to a stage.

Without --index the patient goes after the last patient of the stage. The index
is the final position of the patient in the whole board.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
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

			if !s.member.CanMoveItems() {
				return errors.Errorf("a %s cannot move patients", s.member.Role)
			}

			it, err := findItem(s.visible(), args[0])
			if err != nil {
				return err
			}

			target := index
			if target < 0 {
				target = pipeline.EndOfStage(s.board.Displayed(), it.ID, args[1])
			}

			mv, err := s.board.ApplyMove(it.ID, args[1], target)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if mv.Noop() {
				fmt.Fprintf(out, "%s is already there\n", it.Name)

				return nil
			}

			err = mv.Wait(ctx)
			if err != nil {
				return errors.Wrap(err, "could not move item")
			}

			info := mv.Info()
			if info.FromStage == info.ToStage {
				fmt.Fprintf(out, "reordered %s in %s\n", it.Name, info.ToStage)
			} else {
				fmt.Fprintf(out, "moved %s from %s to %s\n", it.Name, info.FromStage, info.ToStage)
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&index, "index", -1, "final position in the board (default after the last patient of the stage)")

	return cmd
}

// findItem looks ref up as an id, then as a case insensitive name that must be unique.
func findItem(items []model.Item, ref string) (model.Item, error) {
	if i := model.IndexOf(items, ref); i >= 0 {
		return items[i], nil
	}

	var found []model.Item
	for _, it := range items {
		if strings.EqualFold(strings.TrimSpace(it.Name), strings.TrimSpace(ref)) {
			found = append(found, it)
		}
	}

	switch len(found) {
	case 0:
		return model.Item{}, errors.Wrapf(pipeline.ErrUnknownItem, "patient %q", ref)
	case 1:
		return found[0], nil
	}

	return model.Item{}, errors.Errorf("%d patients are named %q, use the id", len(found), ref)
}
