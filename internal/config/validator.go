package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/askiada/clinic-pipeline/pkg/access"
)

// ValidationError is a single invalid setting.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}

	return sb.String()
}

func ValidBackends() []string {
	return []string{BackendSQLite, BackendREST, BackendPostgres, BackendMemory}
}

func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate returns every invalid setting of c.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	add := func(field string, value any, message string) {
		errs = append(errs, ValidationError{Field: field, Value: value, Message: message})
	}

	switch c.Store.Backend {
	case BackendREST:
		u, err := url.Parse(c.Store.URL)
		if c.Store.URL == "" || err != nil || u.Scheme == "" || u.Host == "" {
			add("store.url", c.Store.URL, "must be an absolute url for the rest backend")
		}
		if c.Store.APIKey == "" {
			add("store.api_key", "", "must be set for the rest backend")
		}
	case BackendPostgres:
		if c.Store.DSN == "" {
			add("store.dsn", "", "must be set for the postgres backend")
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			add("store.sqlite_path", "", "must be set for the sqlite backend")
		}
	case BackendMemory:
	default:
		add("store.backend", c.Store.Backend, "must be one of "+strings.Join(ValidBackends(), ", "))
	}

	if c.Board.ConfirmTimeout <= 0 {
		add("board.confirm_timeout", c.Board.ConfirmTimeout, "must be positive")
	}
	if c.Board.RefreshInterval < 0 {
		add("board.refresh_interval", c.Board.RefreshInterval, "must not be negative")
	}

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		add("logging.level", c.Logging.Level, "must be one of "+strings.Join(ValidLogLevels(), ", "))
	}

	role, err := access.ParseRole(c.Session.Role)
	if err != nil {
		add("session.role", c.Session.Role, "must be admin, doctor or receptionist")
	}

	if role == access.Doctor && !c.Session.ViewAllPatients && c.Session.UserID == "" {
		add("session.user_id", c.Session.UserID, "required for a doctor who cannot view all patients")
	}

	return errs
}

// Role returns the parsed session role. It assumes c is valid.
func (c *Config) Role() access.Role {
	role, _ := access.ParseRole(c.Session.Role)

	return role
}

// Member returns the clinic member the session acts as. It assumes c is valid.
func (c *Config) Member(name string) access.Member {
	return access.Member{
		UserID:          c.Session.UserID,
		Name:            name,
		Role:            c.Role(),
		ViewAllPatients: c.Session.ViewAllPatients,
	}
}
