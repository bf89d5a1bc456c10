package seed_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/clinic-pipeline/internal/store"
	"github.com/askiada/clinic-pipeline/internal/store/memstore"
	"github.com/askiada/clinic-pipeline/internal/store/seed"
)

const fixture = `
clinic_id: c1
stages:
  - name: Em aberto
  - name: Ganha
    order: 3
    color: "#16a34a"
items:
  - name: Ana
    stage: Ganha
    value: "1500.50"
    treatment: Implante
  - name: Bruno
    stage: Em aberto
`

func TestDecodeApply(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, err := seed.Decode(strings.NewReader(fixture))
	require.NoError(t, err)
	assert.Equal(t, "c1", f.ClinicID)
	require.Len(t, f.Items, 2)

	s := memstore.New()
	stages, items, err := seed.Apply(ctx, s, f)
	require.NoError(t, err)
	assert.Equal(t, 2, stages)
	assert.Equal(t, 2, items)

	got, err := s.FetchItems(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Ana", got[0].Name)
	assert.Equal(t, "1500.5", got[0].Value.String())
	assert.True(t, got[1].Value.IsZero())

	gotStages, err := s.FetchStages(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c1", gotStages[0].ClinicID)
	assert.Equal(t, 3, gotStages[1].Order)
}

func TestDecodeInvalid(t *testing.T) {
	t.Parallel()

	_, err := seed.Decode(strings.NewReader("stages: [{name: x, unknown: 1}]"))
	assert.Error(t, err)

	f, err := seed.Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Stages)
}

func TestApplyErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	stages, items, err := seed.Apply(ctx, memstore.New(), seed.Fixture{
		Stages: seed.Default("c1").Stages,
		Items:  []seed.Item{{Name: "Ana", Stage: "Archived"}},
	})
	assert.ErrorIs(t, err, store.ErrUnknownStage)
	assert.Equal(t, 5, stages)
	assert.Zero(t, items)

	_, _, err = seed.Apply(ctx, memstore.New(), seed.Fixture{
		Stages: seed.Default("c1").Stages,
		Items:  []seed.Item{{Name: "Ana", Stage: "Ganha", Value: "a lot"}},
	})
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	f, err := seed.Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Stages, 2)

	_, err = seed.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDemo(t *testing.T) {
	t.Parallel()

	f, err := seed.Demo("c9")
	require.NoError(t, err)
	assert.Equal(t, "c9", f.ClinicID)

	s := memstore.New()
	stages, items, err := seed.Apply(context.Background(), s, f)
	require.NoError(t, err)
	assert.Equal(t, 5, stages)
	assert.Equal(t, 5, items)

	got, err := s.FetchItems(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", got[0].Name)
	assert.Equal(t, "dr-lima", got[0].UserID)
	assert.Empty(t, got[1].UserID)
}
