// Package seed loads board fixtures from YAML and writes them to a store.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/askiada/clinic-pipeline/internal/store"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

type Fixture struct {
	ClinicID string        `yaml:"clinic_id"`
	Stages   []model.Stage `yaml:"stages"`
	Items    []Item        `yaml:"items"`
}

// Item is a patient of a fixture. Value is a decimal string so amounts stay exact.
type Item struct {
	Name        string    `yaml:"name"`
	Stage       string    `yaml:"stage"`
	Value       string    `yaml:"value"`
	Phone       string    `yaml:"phone"`
	Email       string    `yaml:"email"`
	CPF         string    `yaml:"cpf"`
	Treatment   string    `yaml:"treatment"`
	Description string    `yaml:"description"`
	CreatedAt   time.Time `yaml:"created_at"`
	UserID      string    `yaml:"user_id"`
}

func (it Item) item() (model.Item, error) {
	value := decimal.Zero
	if it.Value != "" {
		var err error
		value, err = decimal.NewFromString(it.Value)
		if err != nil {
			return model.Item{}, errors.Wrapf(err, "invalid value of %q", it.Name)
		}
	}

	return model.Item{
		Stage:       it.Stage,
		Value:       value,
		Name:        it.Name,
		Phone:       it.Phone,
		Email:       it.Email,
		CPF:         it.CPF,
		Treatment:   it.Treatment,
		Description: it.Description,
		CreatedAt:   it.CreatedAt,
		UserID:      it.UserID,
	}, nil
}

// Default is the fixture of a new clinic: the default stages and no patient.
func Default(clinicID string) Fixture {
	return Fixture{ClinicID: clinicID, Stages: model.DefaultStages(clinicID)}
}

//go:embed demo.yaml
var demo []byte

// Demo is a small board with a few patients in every stage but the last one.
func Demo(clinicID string) (Fixture, error) {
	f, err := Decode(bytes.NewReader(demo))
	if err != nil {
		return Fixture{}, err
	}
	f.ClinicID = clinicID

	return f, nil
}

func Decode(r io.Reader) (Fixture, error) {
	var f Fixture

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	err := dec.Decode(&f)
	if err != nil && !errors.Is(err, io.EOF) {
		return Fixture{}, errors.Wrap(err, "unable to decode fixture")
	}

	return f, nil
}

func Load(path string) (Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fixture{}, errors.Wrapf(err, "unable to open fixture %s", path)
	}
	defer file.Close()

	return Decode(file)
}

// Apply creates the stages then the items of f. Items are created oldest first so that stores
// listing newest first keep the order of the file when creation times are not set.
func Apply(ctx context.Context, seeder store.Seeder, f Fixture) (stages, items int, err error) {
	for i, stage := range f.Stages {
		if stage.ClinicID == "" {
			stage.ClinicID = f.ClinicID
		}
		if stage.Order == 0 {
			stage.Order = i
		}

		_, err = seeder.CreateStage(ctx, stage)
		if err != nil {
			return stages, items, errors.Wrapf(err, "unable to seed stage %q", stage.Name)
		}
		stages++
	}

	for i := len(f.Items) - 1; i >= 0; i-- {
		it, err := f.Items[i].item()
		if err != nil {
			return stages, items, err
		}

		_, err = seeder.CreateItem(ctx, it)
		if err != nil {
			return stages, items, errors.Wrapf(err, "unable to seed patient %q", it.Name)
		}
		items++
	}

	return stages, items, nil
}
