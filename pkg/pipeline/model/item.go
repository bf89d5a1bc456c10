package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is one tracked entity (a patient) positioned on the board.
// Its position inside a stage is its index in the displayed sequence, not a stored field.
type Item struct {
	ID          string          `json:"id"`
	Stage       string          `json:"stage"`
	Value       decimal.Decimal `json:"value"`
	Name        string          `json:"name"`
	Phone       string          `json:"phone,omitempty"`
	Email       string          `json:"email,omitempty"`
	CPF         string          `json:"cpf,omitempty"`
	Treatment   string          `json:"treatment,omitempty"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UserID      string          `json:"user_id,omitempty"` // member who registered the patient
}

// CloneItems returns a shallow copy of items. Item has no reference fields that are
// mutated in place, so the copy is independent from the source.
func CloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)

	return out
}

// IndexOf returns the position of the item with the given id, or -1.
func IndexOf(items []Item, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}

	return -1
}
