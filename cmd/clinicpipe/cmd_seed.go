package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/askiada/clinic-pipeline/internal/store/seed"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

func (a *app) seedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load stages and patients from a YAML fixture into the store",
		Long: `Creates the stages and the patients of a fixture. Without --file the demo
board is loaded. Stages that already exist are kept as they are; creating stages needs the
admin role.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()

			var fixture seed.Fixture
			if file != "" {
				fixture, err = seed.Load(file)
			} else {
				fixture, err = seed.Demo(a.cfg.Store.ClinicID)
			}
			if err != nil {
				return err
			}
			if fixture.ClinicID == "" {
				fixture.ClinicID = a.cfg.Store.ClinicID
			}

			backend, err := openBackend(ctx, a.cfg.Store, a.logger)
			if err != nil {
				return err
			}
			defer func() {
				closeErr := backend.Close()
				if err == nil {
					err = errors.Wrap(closeErr, "unable to close the store")
				}
			}()

			existing, err := backend.FetchStages(ctx)
			if err != nil {
				return errors.Wrap(err, "unable to fetch stages")
			}
			fixture.Stages = missingStages(fixture.Stages, existing)
			if len(fixture.Stages) > 0 && !a.cfg.Member("clinicpipe").CanManageStages() {
				return errors.Errorf("a %s cannot create stages", a.cfg.Role())
			}

			stages, items, err := seed.Apply(ctx, backend, fixture)
			if err != nil {
				return err
			}
			a.logger.Info("store seeded", zap.Int("stages", stages), zap.Int("patients", items))
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d stages and %d patients\n", stages, items)

			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML fixture to load (default the demo board)")

	return cmd
}

// missingStages returns the stages of want that are not in have, keeping their order in want.
func missingStages(want, have []model.Stage) []model.Stage {
	known := make(map[string]bool, len(have))
	for _, st := range have {
		known[st.Name] = true
	}

	var out []model.Stage
	for i, st := range want {
		if known[st.Name] {
			continue
		}
		if st.Order == 0 {
			st.Order = i
		}
		out = append(out, st)
	}

	return out
}
