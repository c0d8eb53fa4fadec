package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"asistencia/checador-terminal/internal/models"

	"go.uber.org/zap"
)

// APIClient handles communication with the attendance backend
type APIClient struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAPIClient creates a new API client
func NewAPIClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// BaseURL returns the configured backend base URL
func (c *APIClient) BaseURL() string {
	return c.baseURL
}

// ReserveReader reserves the physical reader for this terminal session
func (c *APIClient) ReserveReader(ctx context.Context, reader, sessionID string) error {
	return c.readerCommand(ctx, http.MethodPut, "lectores", reader, "reservar", sessionID)
}

// ReleaseReader releases a previously reserved reader
func (c *APIClient) ReleaseReader(ctx context.Context, reader, sessionID string) error {
	return c.readerCommand(ctx, http.MethodPut, "lectores", reader, "liberar", sessionID)
}

// StartCheckin starts the backend check-in session bound to the reader
func (c *APIClient) StartCheckin(ctx context.Context, reader, sessionID string) error {
	return c.readerCommand(ctx, http.MethodPost, "checador", reader, "iniciar", sessionID)
}

// StopCheckin stops the backend check-in session bound to the reader
func (c *APIClient) StopCheckin(ctx context.Context, reader, sessionID string) error {
	return c.readerCommand(ctx, http.MethodPost, "checador", reader, "detener", sessionID)
}

// readerCommand issues one reader-lifecycle command keyed by reader name
// (path) and session id (query param)
func (c *APIClient) readerCommand(ctx context.Context, method, resource, reader, command, sessionID string) error {
	u := fmt.Sprintf("%s/api/v1/%s/%s/%s?sesion=%s",
		c.baseURL, resource, url.PathEscape(reader), command, url.QueryEscape(sessionID))

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Error("Reader command failed",
			zap.Error(err),
			zap.String("reader", reader),
			zap.String("command", command),
			zap.Duration("duration", duration),
		)
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Info("Reader command succeeded",
			zap.String("reader", reader),
			zap.String("command", command),
			zap.Int("status_code", resp.StatusCode),
			zap.Duration("duration", duration),
		)
		return nil
	}

	return c.classifyError(resp.StatusCode, body, command)
}

// SubmitCard submits a PIN pad card number for check-in. Non-2xx responses
// still carry a structured body that is parsed and returned so the caller
// can display any employee context it holds.
func (c *APIClient) SubmitCard(ctx context.Context, card int64) (*models.PinResponse, error) {
	jsonData, err := json.Marshal(models.CardRequest{Card: card})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal card request: %w", err)
	}

	u := fmt.Sprintf("%s/api/v1/checador/tarjeta", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Error("Card submission failed",
			zap.Error(err),
			zap.Duration("duration", duration),
		)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var pinResp models.PinResponse
	if err := json.Unmarshal(body, &pinResp); err != nil {
		c.logger.Error("Failed to parse card response",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(body)),
		)
		return nil, fmt.Errorf("failed to parse card response: %w", err)
	}

	c.logger.Info("Card submitted",
		zap.Int("status_code", resp.StatusCode),
		zap.String("code", pinResp.Code),
		zap.String("type", pinResp.Type),
		zap.Duration("duration", duration),
	)

	return &pinResp, nil
}

// FetchEmployee fetches an employee record by id
func (c *APIClient) FetchEmployee(ctx context.Context, employeeID int64) (*models.Employee, error) {
	u := fmt.Sprintf("%s/api/v1/empleados/%d", c.baseURL, employeeID)

	var employee models.Employee
	if err := c.getJSON(ctx, u, &employee); err != nil {
		return nil, err
	}
	return &employee, nil
}

// FetchDayShifts fetches the shift states for an employee on a given date
func (c *APIClient) FetchDayShifts(ctx context.Context, employeeID int64, date time.Time) ([]models.WorkShiftSession, error) {
	u := fmt.Sprintf("%s/api/v1/empleados/%d/jornadas?fecha=%s",
		c.baseURL, employeeID, date.Format("2006-01-02"))

	var shifts []models.WorkShiftSession
	if err := c.getJSON(ctx, u, &shifts); err != nil {
		return nil, err
	}
	return shifts, nil
}

// HealthCheck checks if the backend is reachable
func (c *APIClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

func (c *APIClient) getJSON(ctx context.Context, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.classifyError(resp.StatusCode, body, req.URL.Path)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

func (c *APIClient) classifyError(statusCode int, body []byte, op string) error {
	errMsg := fmt.Sprintf("backend returned status %d: %s", statusCode, string(body))

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		c.logger.Error("Authentication failed",
			zap.Int("status_code", statusCode),
			zap.String("op", op),
		)
		return &AuthError{Message: errMsg, StatusCode: statusCode}
	case http.StatusConflict:
		c.logger.Warn("Reader conflict",
			zap.Int("status_code", statusCode),
			zap.String("op", op),
		)
		return &ConflictError{Message: errMsg, StatusCode: statusCode}
	case http.StatusBadRequest:
		c.logger.Error("Invalid request",
			zap.Int("status_code", statusCode),
			zap.String("op", op),
			zap.String("response", string(body)),
		)
		return &BadRequestError{Message: errMsg, StatusCode: statusCode}
	default:
		c.logger.Error("Backend error",
			zap.Int("status_code", statusCode),
			zap.String("op", op),
			zap.String("response", string(body)),
		)
		return &BackendError{Message: errMsg, StatusCode: statusCode}
	}
}

// Error types
type AuthError struct {
	Message    string
	StatusCode int
}

func (e *AuthError) Error() string {
	return e.Message
}

type ConflictError struct {
	Message    string
	StatusCode int
}

func (e *ConflictError) Error() string {
	return e.Message
}

type BadRequestError struct {
	Message    string
	StatusCode int
}

func (e *BadRequestError) Error() string {
	return e.Message
}

type BackendError struct {
	Message    string
	StatusCode int
}

func (e *BackendError) Error() string {
	return e.Message
}
