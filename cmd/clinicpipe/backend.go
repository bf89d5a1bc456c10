package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/askiada/clinic-pipeline/internal/config"
	"github.com/askiada/clinic-pipeline/internal/store"
	"github.com/askiada/clinic-pipeline/internal/store/memstore"
	"github.com/askiada/clinic-pipeline/internal/store/pgstore"
	"github.com/askiada/clinic-pipeline/internal/store/rest"
	"github.com/askiada/clinic-pipeline/internal/store/seed"
	"github.com/askiada/clinic-pipeline/internal/store/sqlitestore"
	"github.com/askiada/clinic-pipeline/pkg/access"
	"github.com/askiada/clinic-pipeline/pkg/pipeline"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/drawer"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/measure"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

const closeTimeout = 5 * time.Second

// openBackend connects to the configured store. The memory backend starts with the demo board.
func openBackend(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.Backend, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := sqlitestore.Open(ctx, cfg.SQLitePath, cfg.ClinicID)
		if err != nil {
			return nil, err
		}

		return s, nil
	case config.BackendREST:
		opts := []rest.Option{rest.WithLogger(logger)}
		if cfg.AccessToken != "" {
			opts = append(opts, rest.WithAccessToken(cfg.AccessToken))
		}
		if cfg.ClinicID != "" {
			opts = append(opts, rest.WithClinic(cfg.ClinicID))
		}
		c, err := rest.New(cfg.URL, cfg.APIKey, opts...)
		if err != nil {
			return nil, err
		}

		return c, nil
	case config.BackendPostgres:
		s, err := pgstore.Open(ctx, cfg.DSN, cfg.ClinicID)
		if err != nil {
			return nil, err
		}
		err = s.Migrate(ctx)
		if err != nil {
			s.Close()

			return nil, err
		}

		return s, nil
	case config.BackendMemory:
		s := memstore.New()
		fixture, err := seed.Demo(cfg.ClinicID)
		if err != nil {
			return nil, err
		}
		_, _, err = seed.Apply(ctx, s, fixture)
		if err != nil {
			return nil, err
		}

		return s, nil
	}

	return nil, errors.Errorf("unknown store backend %q", cfg.Backend)
}

// ensureStages creates the default stages when the clinic has none yet.
func ensureStages(ctx context.Context, backend store.Backend, clinicID string, logger *zap.Logger) error {
	stages, err := backend.FetchStages(ctx)
	if err != nil {
		return errors.Wrap(err, "unable to fetch stages")
	}
	if len(stages) > 0 {
		return nil
	}

	created, _, err := seed.Apply(ctx, backend, seed.Default(clinicID))
	if err != nil {
		return err
	}
	logger.Info("created default stages", zap.Int("stages", created))

	return nil
}

// session is an open backend with a loaded board on top of it.
type session struct {
	backend store.Backend
	board   *pipeline.Board
	measure measure.Measure
	member  access.Member
}

// openSession connects to the store and loads the board. When d is set, the board graph is drawn
// with it when the session is closed. extra options come after the configured ones.
func (a *app) openSession(ctx context.Context, d drawer.Drawer, extra ...pipeline.Option) (*session, error) {
	backend, err := openBackend(ctx, a.cfg.Store, a.logger)
	if err != nil {
		return nil, err
	}

	err = ensureStages(ctx, backend, a.cfg.Store.ClinicID, a.logger)
	if err != nil {
		backend.Close()

		return nil, err
	}

	msr := measure.NewDefaultMeasure()
	opts := []pipeline.Option{
		pipeline.WithLogger(a.logger),
		pipeline.WithConfirmTimeout(a.cfg.Board.ConfirmTimeout),
		pipeline.WithObservers(measure.BoardMeasure(msr)),
	}
	if d != nil {
		opts = append(opts, pipeline.WithObservers(drawer.BoardDrawer(d, msr)))
	}
	if a.cfg.Board.RefreshOnSettle {
		opts = append(opts, pipeline.WithRefreshOnSettle())
	}
	opts = append(opts, extra...)

	board, err := pipeline.New(backend, opts...)
	if err != nil {
		backend.Close()

		return nil, err
	}

	s := &session{
		backend: backend,
		board:   board,
		measure: msr,
		member:  a.cfg.Member("clinicpipe"),
	}

	err = board.Refresh(ctx)
	if err != nil {
		_ = s.close(ctx)

		return nil, errors.Wrap(err, "unable to load the board")
	}

	return s, nil
}

// visible returns the displayed patients the member sees.
func (s *session) visible() []model.Item {
	return s.member.Visible(s.board.Displayed())
}

// totals sums the patients the member sees.
func (s *session) totals() []model.StageTotal {
	if s.member.CanViewAllPatients() {
		return s.board.Totals()
	}

	return pipeline.ComputeStageTotals(s.visible(), s.board.Stages().Names())
}

// close waits for in-flight moves, even when ctx is already done, then closes the store.
func (s *session) close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()

	boardErr := s.board.Close(ctx)
	storeErr := s.backend.Close()
	if boardErr != nil {
		return errors.Wrap(boardErr, "unable to close the board")
	}

	return errors.Wrap(storeErr, "unable to close the store")
}
