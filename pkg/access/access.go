// Package access holds the clinic roles and what each one may do on the board.
package access

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

// ErrUnknownRole is returned when a role name is not one of the clinic roles.
var ErrUnknownRole = errors.New("unknown role")

// Role is the role of a clinic member.
type Role int

const (
	Admin Role = iota + 1
	Doctor
	Receptionist
)

func (r Role) String() string {
	switch r {
	case Admin:
		return "admin"
	case Doctor:
		return "doctor"
	case Receptionist:
		return "receptionist"
	}

	return fmt.Sprintf("Role(%d)", int(r))
}

func (r Role) MarshalText() ([]byte, error) {
	if r < Admin || r > Receptionist {
		return nil, errors.Wrapf(ErrUnknownRole, "role %d", int(r))
	}

	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role

	return nil
}

// ParseRole parses a role name, ignoring case and surrounding spaces.
func ParseRole(name string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "admin":
		return Admin, nil
	case "doctor":
		return Doctor, nil
	case "receptionist":
		return Receptionist, nil
	}

	return 0, errors.Wrapf(ErrUnknownRole, "role %q", name)
}

// Member is a user of a clinic.
type Member struct {
	UserID          string `json:"user_id"`
	Name            string `json:"name"`
	Role            Role   `json:"role"`
	ViewAllPatients bool   `json:"can_view_all_patients"`
}

// CanMoveItems reports whether the member may move patients across the board.
func (m Member) CanMoveItems() bool {
	switch m.Role {
	case Admin, Doctor, Receptionist:
		return true
	}

	return false
}

// CanManageStages reports whether the member may add, rename, reorder and delete stages.
func (m Member) CanManageStages() bool { return m.Role == Admin }

// CanViewAllPatients reports whether the member sees every patient of the clinic. Doctors only see
// the patients they registered unless they were granted the permission.
func (m Member) CanViewAllPatients() bool {
	switch m.Role {
	case Admin, Receptionist:
		return true
	case Doctor:
		return m.ViewAllPatients
	}

	return false
}

// CanSee reports whether the member sees it on the board.
func (m Member) CanSee(it model.Item) bool {
	return m.CanViewAllPatients() || (m.UserID != "" && it.UserID == m.UserID)
}

// Visible returns the items the member sees, in the same order. items is returned as is when the
// member sees every patient.
func (m Member) Visible(items []model.Item) []model.Item {
	if m.CanViewAllPatients() {
		return items
	}

	out := make([]model.Item, 0, len(items))
	for _, it := range items {
		if m.CanSee(it) {
			out = append(out, it)
		}
	}

	return out
}
