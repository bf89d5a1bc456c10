package model

import "github.com/shopspring/decimal"

// Stage is a named column of the board.
type Stage struct {
	ID       string `json:"id" yaml:"id,omitempty"`
	ClinicID string `json:"clinic_id" yaml:"clinic_id,omitempty"`
	Name     string `json:"name" yaml:"name"`
	Order    int    `json:"order" yaml:"order"`
	Color    string `json:"color,omitempty" yaml:"color,omitempty"`
}

// StageTotal is the derived count and monetary sum of the items in one stage.
type StageTotal struct {
	Stage string          `json:"stage"`
	Count int             `json:"count"`
	Sum   decimal.Decimal `json:"sum"`
}

// defaultStageNames are the columns every new clinic starts with.
var defaultStageNames = []string{"Pré-orçamento", "Em aberto", "Em andamento", "Ganha", "Perdida"}

// DefaultStages returns the stages created for a new clinic.
func DefaultStages(clinicID string) []Stage {
	stages := make([]Stage, len(defaultStageNames))
	for i, name := range defaultStageNames {
		stages[i] = Stage{ClinicID: clinicID, Name: name, Order: i}
	}

	return stages
}
