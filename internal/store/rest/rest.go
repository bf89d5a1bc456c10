// Package rest is a board store talking to the hosted backend REST API (PostgREST dialect).
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/askiada/clinic-pipeline/internal/store"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

const (
	patientsPath = "/rest/v1/patients"
	stagesPath   = "/rest/v1/kanban_stages"

	// uniqueViolation is the database error code the API forwards for a duplicate key.
	uniqueViolation = "23505"
	// reorderConcurrency bounds the stage updates sent at once.
	reorderConcurrency = 4
)

// APIError is a non 2xx answer of the backend.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
	Hint       string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}

	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL     *url.URL
	apiKey      string
	accessToken string
	clinicID    string
	httpClient  *http.Client
	logger      *zap.Logger
}

type Option func(c *Client)

// WithAccessToken authenticates requests as a user. Without it the api key is used as bearer.
func WithAccessToken(token string) Option {
	return func(c *Client) {
		c.accessToken = token
	}
}

// WithClinic restricts the board to one clinic and tags created rows with it.
func WithClinic(clinicID string) Option {
	return func(c *Client) {
		c.clinicID = clinicID
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key must be set")
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to parse url %q", baseURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL:    u,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

type treatmentRow struct {
	Name string `json:"name"`
}

type patientRow struct {
	ID             string          `json:"id,omitempty"`
	CreatedAt      *time.Time      `json:"created_at,omitempty"`
	Name           string          `json:"name"`
	CPF            string          `json:"cpf"`
	Phone          string          `json:"phone"`
	Email          *string         `json:"email"`
	Status         string          `json:"status"`
	TreatmentValue decimal.Decimal `json:"treatment_value"`
	Description    *string         `json:"description"`
	ClinicID       string          `json:"clinic_id,omitempty"`
	UserID         string          `json:"user_id,omitempty"`
	Treatments     *treatmentRow   `json:"treatments,omitempty"`
}

func (r patientRow) item() model.Item {
	it := model.Item{
		ID:     r.ID,
		Stage:  r.Status,
		Value:  r.TreatmentValue,
		Name:   r.Name,
		Phone:  r.Phone,
		CPF:    r.CPF,
		UserID: r.UserID,
	}
	if r.Email != nil {
		it.Email = *r.Email
	}
	if r.Description != nil {
		it.Description = *r.Description
	}
	if r.Treatments != nil {
		it.Treatment = r.Treatments.Name
	}
	if r.CreatedAt != nil {
		it.CreatedAt = *r.CreatedAt
	}

	return it
}

func optional(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

type stageRow struct {
	ID       string `json:"id,omitempty"`
	ClinicID string `json:"clinic_id,omitempty"`
	Name     string `json:"name"`
	Order    int    `json:"order"`
	Color    string `json:"color,omitempty"`
}

func (r stageRow) stage() model.Stage {
	return model.Stage{ID: r.ID, ClinicID: r.ClinicID, Name: r.Name, Order: r.Order, Color: r.Color}
}

// FetchItems lists the patients newest first, with the name of their treatment.
func (c *Client) FetchItems(ctx context.Context) ([]model.Item, error) {
	query := url.Values{}
	query.Set("select", "*,treatments(name)")
	if c.clinicID != "" {
		query.Set("clinic_id", "eq."+c.clinicID)
	}
	query.Set("order", "created_at.desc")

	var rows []patientRow
	err := c.do(ctx, http.MethodGet, patientsPath, query, nil, &rows)
	if err != nil {
		return nil, errors.Wrap(err, "unable to list patients")
	}

	items := make([]model.Item, len(rows))
	for i, row := range rows {
		items[i] = row.item()
	}

	return items, nil
}

func (c *Client) FetchStages(ctx context.Context) ([]model.Stage, error) {
	query := url.Values{}
	query.Set("select", "*")
	if c.clinicID != "" {
		query.Set("clinic_id", "eq."+c.clinicID)
	}
	query.Set("order", "order.asc")

	var rows []stageRow
	err := c.do(ctx, http.MethodGet, stagesPath, query, nil, &rows)
	if err != nil {
		return nil, errors.Wrap(err, "unable to list stages")
	}

	stages := make([]model.Stage, len(rows))
	for i, row := range rows {
		stages[i] = row.stage()
	}

	return stages, nil
}

// UpdateItemStage sets the status of one patient. Updating no row is reported as store.ErrNotFound.
func (c *Client) UpdateItemStage(ctx context.Context, id, stage string) error {
	query := url.Values{}
	query.Set("id", "eq."+id)

	var rows []patientRow
	err := c.do(ctx, http.MethodPatch, patientsPath, query, map[string]string{"status": stage}, &rows)
	if err != nil {
		return errors.Wrapf(err, "unable to update patient %q", id)
	}
	if len(rows) == 0 {
		return errors.Wrapf(store.ErrNotFound, "patient %q", id)
	}

	return nil
}

func (c *Client) CreateStage(ctx context.Context, stage model.Stage) (model.Stage, error) {
	row := stageRow{Name: stage.Name, Order: stage.Order, Color: stage.Color, ClinicID: stage.ClinicID}
	if row.ClinicID == "" {
		row.ClinicID = c.clinicID
	}

	var rows []stageRow
	err := c.do(ctx, http.MethodPost, stagesPath, nil, row, &rows)
	if isUniqueViolation(err) {
		return model.Stage{}, errors.Wrapf(store.ErrStageExists, "stage %q", stage.Name)
	}
	if err != nil {
		return model.Stage{}, errors.Wrapf(err, "unable to create stage %q", stage.Name)
	}
	if len(rows) == 0 {
		return model.Stage{}, errors.Errorf("stage %q was not returned", stage.Name)
	}

	return rows[0].stage(), nil
}

func (c *Client) CreateItem(ctx context.Context, it model.Item) (model.Item, error) {
	row := patientRow{
		Name:           it.Name,
		CPF:            it.CPF,
		Phone:          it.Phone,
		Email:          optional(it.Email),
		Status:         it.Stage,
		TreatmentValue: it.Value,
		Description:    optional(it.Description),
		ClinicID:       c.clinicID,
		UserID:         it.UserID,
	}

	var rows []patientRow
	err := c.do(ctx, http.MethodPost, patientsPath, nil, row, &rows)
	if err != nil {
		return model.Item{}, errors.Wrapf(err, "unable to create patient %q", it.Name)
	}
	if len(rows) == 0 {
		return model.Item{}, errors.Errorf("patient %q was not returned", it.Name)
	}

	created := rows[0].item()
	created.Treatment = it.Treatment

	return created, nil
}

func isUniqueViolation(err error) bool {
	var apiErr *APIError

	return errors.As(err, &apiErr) && apiErr.Code == uniqueViolation
}

// stage reads one stage of the clinic.
func (c *Client) stage(ctx context.Context, id string) (model.Stage, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("id", "eq."+id)
	if c.clinicID != "" {
		query.Set("clinic_id", "eq."+c.clinicID)
	}

	var rows []stageRow
	err := c.do(ctx, http.MethodGet, stagesPath, query, nil, &rows)
	if err != nil {
		return model.Stage{}, errors.Wrapf(err, "unable to read stage %q", id)
	}
	if len(rows) == 0 {
		return model.Stage{}, errors.Wrapf(store.ErrNotFound, "stage %q", id)
	}

	return rows[0].stage(), nil
}

// patientsOf filters the patients in the named stage of clinicID.
func patientsOf(name, clinicID string) url.Values {
	query := url.Values{}
	query.Set("status", "eq."+name)
	if clinicID != "" {
		query.Set("clinic_id", "eq."+clinicID)
	}

	return query
}

// UpdateStage renames and recolours a stage, then moves the patients of a renamed stage to the new
// name. The API has no transactions, so a failure between the two leaves those patients behind.
func (c *Client) UpdateStage(ctx context.Context, stage model.Stage) (model.Stage, error) {
	current, err := c.stage(ctx, stage.ID)
	if err != nil {
		return model.Stage{}, err
	}

	patch := map[string]string{}
	if stage.Name != "" && stage.Name != current.Name {
		patch["name"] = stage.Name
	}
	if stage.Color != "" {
		patch["color"] = stage.Color
	}
	if len(patch) == 0 {
		return current, nil
	}

	query := url.Values{}
	query.Set("id", "eq."+current.ID)

	var rows []stageRow
	err = c.do(ctx, http.MethodPatch, stagesPath, query, patch, &rows)
	if isUniqueViolation(err) {
		return model.Stage{}, errors.Wrapf(store.ErrStageExists, "stage %q", stage.Name)
	}
	if err != nil {
		return model.Stage{}, errors.Wrapf(err, "unable to update stage %q", current.ID)
	}
	if len(rows) == 0 {
		return model.Stage{}, errors.Wrapf(store.ErrNotFound, "stage %q", current.ID)
	}
	updated := rows[0].stage()

	if updated.Name != current.Name {
		err = c.do(ctx, http.MethodPatch, patientsPath, patientsOf(current.Name, current.ClinicID),
			map[string]string{"status": updated.Name}, nil)
		if err != nil {
			return model.Stage{}, errors.Wrapf(err, "unable to move patients of stage %q", current.Name)
		}
	}

	return updated, nil
}

// ReorderStages updates the order of every stage concurrently, one request per stage.
func (c *Client) ReorderStages(ctx context.Context, ids []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(reorderConcurrency)

	for order, id := range ids {
		g.Go(func() error {
			query := url.Values{}
			query.Set("id", "eq."+id)
			if c.clinicID != "" {
				query.Set("clinic_id", "eq."+c.clinicID)
			}

			var rows []stageRow
			err := c.do(ctx, http.MethodPatch, stagesPath, query, map[string]int{"order": order}, &rows)
			if err != nil {
				return errors.Wrapf(err, "unable to reorder stage %q", id)
			}
			if len(rows) == 0 {
				return errors.Wrapf(store.ErrNotFound, "stage %q", id)
			}

			return nil
		})
	}

	return g.Wait()
}

// DeleteStage removes a stage without patients.
func (c *Client) DeleteStage(ctx context.Context, id string) error {
	current, err := c.stage(ctx, id)
	if err != nil {
		return err
	}

	query := patientsOf(current.Name, current.ClinicID)
	query.Set("select", "id")
	query.Set("limit", "1")

	var used []patientRow
	err = c.do(ctx, http.MethodGet, patientsPath, query, nil, &used)
	if err != nil {
		return errors.Wrapf(err, "unable to check stage %q", current.Name)
	}
	if len(used) > 0 {
		return errors.Wrapf(store.ErrStageInUse, "stage %q", current.Name)
	}

	query = url.Values{}
	query.Set("id", "eq."+id)
	err = c.do(ctx, http.MethodDelete, stagesPath, query, nil, nil)

	return errors.Wrapf(err, "unable to delete stage %q", current.Name)
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()

	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.baseURL
	u.Path += path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "unable to encode body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return errors.Wrap(err, "unable to build request")
	}

	token := c.accessToken
	if token == "" {
		token = c.apiKey
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("Prefer", "return=representation")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "unable to read response")
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil {
			apiErr.Message = strings.TrimSpace(string(data))
		}

		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	return errors.Wrap(json.Unmarshal(data, out), "unable to decode response")
}

var _ store.Backend = (*Client)(nil)
