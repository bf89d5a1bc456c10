package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/askiada/clinic-pipeline/internal/config"
	"github.com/askiada/clinic-pipeline/internal/logging"
)

const logFileName = "clinicpipe.log"

// app holds what every command shares once the root command is set up.
type app struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "clinicpipe",
		Short: "Sales pipeline board of a small clinic",
		Long: `clinicpipe shows the patients of a clinic as cards on a kanban board.

Moving a card is displayed at once and saved in the background. When the store
rejects the change, only that card goes back where it was.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ./config.yaml or ~/.clinicpipe/config.yaml)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")
	flags.String("role", "", "role of the user: admin, doctor or receptionist")
	flags.String("user", "", "id of the user, a doctor only sees the patients they registered")

	rootCmd.AddCommand(
		a.boardCmd(),
		a.moveCmd(),
		a.totalsCmd(),
		a.stagesCmd(),
		a.drawCmd(),
		a.seedCmd(),
		a.mcpCmd(),
	)

	return rootCmd
}

// setup reads the configuration and builds the logger. The board command draws on the terminal, so
// it logs to a file in the clinicpipe directory instead of stderr.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	v := viper.New()
	config.SetDefaults(v)

	bindings := map[string]string{
		"role": "session.role",
		"user": "session.user_id",
		"out":  "draw.output",
	}
	for flag, key := range bindings {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		err := v.BindPFlag(key, f)
		if err != nil {
			return errors.Wrapf(err, "unable to bind flag %s", flag)
		}
	}

	err := config.ReadFile(v, a.configPath)
	if err != nil {
		return err
	}

	a.cfg, err = config.Load(v)
	if err != nil {
		return err
	}

	var outputs []string
	if cmd.Name() == "board" {
		dir := config.Dir()
		err = os.MkdirAll(dir, 0o755)
		if err != nil {
			return errors.Wrap(err, "unable to create log directory")
		}
		outputs = append(outputs, filepath.Join(dir, logFileName))
	}

	a.logger, err = logging.New(a.cfg.Logging, a.verbose, outputs...)
	if err != nil {
		return err
	}
	a.logger.Debug("configuration loaded",
		zap.String("config", v.ConfigFileUsed()),
		zap.String("backend", a.cfg.Store.Backend),
		zap.String("role", a.cfg.Session.Role),
		zap.String("user", a.cfg.Session.UserID),
	)

	return nil
}
