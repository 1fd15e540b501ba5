// Package apiclient talks to the remote appointment store over HTTP.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/dukerupert/appointments/internal/model"
)

// maxErrorBody caps how much of a failed response is kept on a StoreError.
const maxErrorBody = 4 << 10

// StoreError is a failed call to the appointment store: a non-2xx response
// or a transport failure.
type StoreError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *StoreError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("store %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("store %s: status %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreError reports whether err is, or wraps, a StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// Client is an HTTP client for the appointment store.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the store at baseURL. A nil httpClient uses a
// client with no timeout; hung calls stall only the operation that made them.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// List fetches every appointment. A body that is not a JSON array of
// appointments yields an empty collection.
func (c *Client) List(ctx context.Context) ([]model.Appointment, error) {
	body, err := c.do(ctx, "list", http.MethodGet, "/get_appointments", nil)
	if err != nil {
		return nil, err
	}

	var appts []model.Appointment
	if err := json.Unmarshal(body, &appts); err != nil {
		c.logger.Warn("decode appointment list, using empty collection", "error", err)
		return []model.Appointment{}, nil
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	return appts, nil
}

// Create stores a new appointment and returns the store's response, which
// carries the assigned id when the store provides one.
func (c *Client) Create(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	appt.ID = ""
	body, err := c.do(ctx, "create", http.MethodPost, "/add_appointment", appt)
	if err != nil {
		return model.Appointment{}, err
	}

	var created model.Appointment
	if err := json.Unmarshal(body, &created); err != nil {
		return model.Appointment{}, &StoreError{Op: "create", Err: fmt.Errorf("decode response: %w", err)}
	}
	return created, nil
}

// Update replaces the appointment with appt.ID.
func (c *Client) Update(ctx context.Context, appt model.Appointment) error {
	if appt.ID == "" {
		return &StoreError{Op: "update", Err: errors.New("missing id")}
	}
	_, err := c.do(ctx, "update", http.MethodPut, "/update_appointment/"+url.PathEscape(appt.ID.String()), appt)
	return err
}

// Delete removes the appointment with the given id.
func (c *Client) Delete(ctx context.Context, id model.ID) error {
	if id == "" {
		return &StoreError{Op: "delete", Err: errors.New("missing id")}
	}
	_, err := c.do(ctx, "delete", http.MethodDelete, "/delete_appointment/"+url.PathEscape(id.String()), nil)
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &StoreError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, &StoreError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &StoreError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &StoreError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, &StoreError{Op: op, StatusCode: resp.StatusCode, Body: msg}
	}

	c.logger.Debug("store call", "op", op, "status", resp.StatusCode)
	return body, nil
}
