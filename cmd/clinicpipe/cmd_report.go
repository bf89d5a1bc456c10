package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/askiada/clinic-pipeline/pkg/pipeline/drawer"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}

			return lipgloss.NewStyle().Padding(0, 1)
		})
}

func (a *app) totalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "totals",
		Short: "Print the number of patients and the treatment value of every stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
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

			fmt.Fprintln(cmd.OutOrStdout(), totalsTable(s.totals()).Render())

			return nil
		},
	}
}

func totalsTable(totals []model.StageTotal) *table.Table {
	t := newTable("Stage", "Patients", "Value")

	count, sum := 0, decimal.Zero
	for _, total := range totals {
		t.Row(total.Stage, strconv.Itoa(total.Count), model.FormatMoney(total.Sum))
		count += total.Count
		sum = sum.Add(total.Sum)
	}
	t.Row("Total", strconv.Itoa(count), model.FormatMoney(sum))

	return t
}

func (a *app) drawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draw",
		Short: "Write the stages and their totals as a Graphviz DOT graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			s, err := a.openSession(ctx, drawer.NewDOTDrawer(a.cfg.Draw.Output))
			if err != nil {
				return err
			}

			// the drawer writes the file when the board is closed
			err = s.close(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", a.cfg.Draw.Output)

			return nil
		},
	}

	cmd.Flags().String("out", "", "output file (default from draw.output)")

	return cmd
}
