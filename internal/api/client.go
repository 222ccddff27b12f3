// Package api provides the REST client for the remote patient queue API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/careflow/patientqueue/internal/logging"
	"github.com/careflow/patientqueue/internal/models"
)

// Credentials is the single auth contract shared by the REST client and
// the push client.
type Credentials struct {
	UserID string
	Token  string
}

// Error is a remote API failure normalized to status, message and
// optional per-field errors.
type Error struct {
	Status  int                 `json:"status"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Client talks to the patient queue REST API. Requests carry a bearer
// token once credentials are set.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      Credentials
}

// New creates a Client for the given base URL and request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetCredentials sets the credentials injected into every request.
func (c *Client) SetCredentials(creds Credentials) {
	c.creds = creds
}

// Credentials returns the current credentials.
func (c *Client) Credentials() Credentials {
	return c.creds
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

// Login authenticates against the API and stores the returned credentials
// on the client.
func (c *Client) Login(ctx context.Context, email, password string) (Credentials, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", loginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return Credentials{}, err
	}

	c.creds = Credentials{UserID: resp.UserID, Token: resp.Token}
	return c.creds, nil
}

// Health probes the API health endpoint. A nil return means the API is
// reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// RegisterPatient creates a patient on the server.
func (c *Client) RegisterPatient(ctx context.Context, p models.Patient) error {
	return c.do(ctx, http.MethodPost, "/patients", p, nil)
}

// UpdatePatient applies a partial update to a patient.
func (c *Client) UpdatePatient(ctx context.Context, patientID string, update models.UpdatePayload) error {
	return c.do(ctx, http.MethodPut, "/patients/"+patientID, update, nil)
}

// RemovePatient deletes a patient from the server queue.
func (c *Client) RemovePatient(ctx context.Context, patientID string) error {
	return c.do(ctx, http.MethodDelete, "/patients/"+patientID, nil, nil)
}

// ReorderQueue replaces the server-side queue order in one call.
func (c *Client) ReorderQueue(ctx context.Context, patientIDs []string) error {
	return c.do(ctx, http.MethodPut, "/queue/reorder", models.ReorderPayload{PatientIDs: patientIDs}, nil)
}

// UpdateDoctorStatus updates a doctor's availability status.
func (c *Client) UpdateDoctorStatus(ctx context.Context, doctorID, status string) error {
	body := map[string]string{"status": status}
	return c.do(ctx, http.MethodPut, "/doctors/"+doctorID+"/status", body, nil)
}

// FetchQueue returns the server's view of the patient queue.
func (c *Client) FetchQueue(ctx context.Context) ([]models.Patient, error) {
	var patients []models.Patient
	if err := c.do(ctx, http.MethodGet, "/patients", nil, &patients); err != nil {
		return nil, err
	}
	return patients, nil
}

// do performs one JSON request/response round trip. Non-2xx responses are
// normalized to *Error.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.creds.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.normalizeError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response body: %w", err)
		}
	}

	return nil
}

// normalizeError maps an error response body to *Error. Bodies that are
// not the expected JSON shape still produce a usable error with the
// HTTP status text.
func (c *Client) normalizeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		logging.Debug("reading error response body failed", map[string]interface{}{"error": err.Error()})
		return apiErr
	}

	var parsed struct {
		Message string              `json:"message"`
		Errors  map[string][]string `json:"errors"`
	}
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Message != "" {
		apiErr.Message = parsed.Message
		apiErr.Errors = parsed.Errors
	}

	return apiErr
}
