// Package httpclient реализует клиентскую сторону HTTP-транспорта синхронизации.
package httpclient

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
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/iudanet/chatsync/pkg/api"
)

// ErrServer сервер ответил ошибкой
var ErrServer = errors.New("server error")

// StatusError ответ сервера с кодом вне 2xx или с success=false
type StatusError struct {
	Message string
	Code    int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Code, e.Message)
}

// Unwrap позволяет проверять errors.Is(err, ErrServer)
func (e *StatusError) Unwrap() error {
	return ErrServer
}

// Temporary true для ошибок, которые имеет смысл повторить
func (e *StatusError) Temporary() bool {
	return e.Code >= http.StatusInternalServerError || e.Code == http.StatusTooManyRequests
}

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	defaultBackoff    = 500 * time.Millisecond
)

// Option настраивает Client
type Option func(*Client)

// WithHTTPClient подменяет http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout таймаут одного запроса
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithDeviceID представляет клиента серверу, чтобы тот вел учет отданных записей
func WithDeviceID(id string) Option {
	return func(c *Client) {
		c.deviceID = id
	}
}

// WithRetries число повторов и начальная пауза между ними
func WithRetries(maxRetries uint64, initial time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.initialBackoff = initial
	}
}

// WithLogger логгер для повторов
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client HTTP клиент сервера синхронизации
type Client struct {
	httpClient     *http.Client
	logger         *slog.Logger
	baseURL        string
	deviceID       string
	maxRetries     uint64
	initialBackoff time.Duration
}

// New создает новый клиент
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{Timeout: defaultTimeout},
		logger:         slog.Default(),
		maxRetries:     defaultMaxRetries,
		initialBackoff: defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint базовый URL сервера
func (c *Client) Endpoint() string {
	return c.baseURL
}

// Health запрашивает GET /health
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, fmt.Errorf("health request failed: %w", err)
	}
	return &resp, nil
}

// Stats запрашивает GET /stats
func (c *Client) Stats(ctx context.Context) (*api.StatsResponse, error) {
	var resp api.StatsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/stats", nil, &resp); err != nil {
		return nil, fmt.Errorf("stats request failed: %w", err)
	}
	return &resp, nil
}

// Status запрос Status протокола поверх GET /stats
func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	stats, err := c.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &api.StatusResponse{
		DeviceID:      stats.DeviceID,
		DeviceName:    stats.DeviceName,
		Conversations: stats.Conversations,
		Clock:         stats.Clock,
	}, nil
}

// Pull запрашивает GET /sync/pull?limit=N
func (c *Client) Pull(ctx context.Context, req api.PullRequest) ([]api.Record, error) {
	query := url.Values{}
	if req.Limit > 0 {
		query.Set("limit", strconv.Itoa(req.Limit))
	}

	var records []api.Record
	if err := c.doRequest(ctx, http.MethodGet, c.withDevice("/sync/pull", query), nil, &records); err != nil {
		return nil, fmt.Errorf("pull request failed: %w", err)
	}
	return records, nil
}

// Push отправляет POST /sync/push с массивом записей
func (c *Client) Push(ctx context.Context, req api.PushRequest) (*api.PushAck, error) {
	records := req.Conversations
	if records == nil {
		records = []api.Record{}
	}

	var ack api.PushAck
	if err := c.doRequest(ctx, http.MethodPost, c.withDevice("/sync/push", url.Values{}), records, &ack); err != nil {
		return nil, fmt.Errorf("push request failed: %w", err)
	}
	return &ack, nil
}

// Sync комбинированный POST /sync
func (c *Client) Sync(ctx context.Context, req api.SyncRequest) (*api.SyncResponse, error) {
	if req.DeviceID == "" {
		req.DeviceID = c.deviceID
	}

	var resp api.SyncResponse
	if err := c.doRequest(ctx, http.MethodPost, "/sync", req, &resp); err != nil {
		return nil, fmt.Errorf("sync request failed: %w", err)
	}
	return &resp, nil
}

func (c *Client) withDevice(path string, query url.Values) string {
	if c.deviceID != "" {
		query.Set("device_id", c.deviceID)
	}
	if len(query) == 0 {
		return path
	}
	return path + "?" + query.Encode()
}

// doRequest выполняет запрос с повторами транспортных ошибок и 5xx.
// Ответы 4xx не повторяются.
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = data
	}

	var permanent error
	operation := func() error {
		err := c.roundTrip(ctx, method, path, payload, result)
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			permanent = err
			return nil
		}
		if ctx.Err() != nil {
			permanent = err
			return nil
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialBackoff
	policy.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("Retrying request", "method", method, "path", path, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx), notify); err != nil {
		return err
	}
	return permanent
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, result any) error {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var envelope api.Envelope
	decodeErr := json.Unmarshal(respBody, &envelope)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := strings.TrimSpace(string(respBody))
		if decodeErr == nil && envelope.Error != "" {
			message = envelope.Error
		}
		return &StatusError{Code: resp.StatusCode, Message: message}
	}

	if decodeErr != nil {
		return fmt.Errorf("failed to decode response envelope: %w", decodeErr)
	}
	if !envelope.Success {
		return &StatusError{Code: resp.StatusCode, Message: envelope.Error}
	}

	if result != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
