// Package repairdesk is a client for the RepairDesk REST API.
package repairdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nestdesk/internal/tickets/metrics"
	"nestdesk/internal/tickets/models"
	"nestdesk/pkg/platform/circuit"
)

const (
	DefaultTimeout  = 15 * time.Second
	DefaultMaxPages = 1000

	endpointGetTicket = "tickets.get"
	endpointListPage  = "tickets.list"
	endpointAddNote   = "ticket.addnote"
	endpointHealth    = "health"

	maxResponseBytes = 32 << 20
)

// NoteType values accepted by the add-note endpoint.
const (
	NoteInternal   = 0
	NoteDiagnostic = 1
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryConfig controls backoff for retryable failures.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetry makes two attempts, 500ms apart, growing by 1.2x up to 2s.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:  2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   1.2,
	}
}

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient HTTPDoer
	Retry      RetryConfig
	// Breaker is optional; nil disables fail-fast.
	Breaker  *circuit.Breaker
	MaxPages int
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Client talks to RepairDesk. It is safe for concurrent use.
type Client struct {
	baseURL  string
	apiKey   string
	client   HTTPDoer
	retry    RetryConfig
	breaker  *circuit.Breaker
	maxPages int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetry()
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		client:   httpClient,
		retry:    cfg.Retry,
		breaker:  cfg.Breaker,
		maxPages: cfg.MaxPages,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// TicketDetail is the per-ticket payload. Raw is the vendor's "data" object.
// OrderID is the display identifier the vendor reports, empty if absent.
type TicketDetail struct {
	InternalID models.InternalID
	OrderID    models.OrderID
	Raw        json.RawMessage
}

// envelope is the common RepairDesk response wrapper.
type envelope struct {
	Success    *bool           `json:"success"`
	StatusCode any             `json:"statusCode"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

func (e envelope) failed() bool {
	return e.Success != nil && !*e.Success
}

func (e envelope) notFound() bool {
	switch v := e.StatusCode.(type) {
	case float64:
		return v == http.StatusNotFound
	case string:
		return v == "404"
	}
	return false
}

// GetTicket fetches a ticket by the id the per-ticket endpoint accepts.
// A vendor "not found" answer, in any of its shapes, is ErrorNotFound.
func (c *Client) GetTicket(ctx context.Context, id string) (*TicketDetail, error) {
	path := "/web/v1/tickets/" + url.PathEscape(id)
	body, err := c.call(ctx, endpointGetTicket, http.MethodGet, path, nil, nil, true)
	if err != nil {
		return nil, err
	}

	env, err := decodeEnvelope(endpointGetTicket, body)
	if err != nil {
		return nil, err
	}
	if env.failed() || env.notFound() {
		return nil, NewVendorError(ErrorNotFound, endpointGetTicket, "ticket "+id+" not found", nil)
	}

	var data struct {
		ID      models.InternalID `json:"id"`
		Summary struct {
			ID      models.InternalID `json:"id"`
			OrderID models.OrderID    `json:"order_id"`
		} `json:"summary"`
	}
	if len(env.Data) == 0 || json.Unmarshal(env.Data, &data) != nil {
		return nil, NewVendorError(ErrorBadData, endpointGetTicket, "malformed ticket payload", nil)
	}

	internalID := data.ID
	if internalID == "" {
		internalID = data.Summary.ID
	}
	if internalID == "" {
		return nil, NewVendorError(ErrorBadData, endpointGetTicket, "ticket payload has no id", nil)
	}
	return &TicketDetail{InternalID: internalID, OrderID: data.Summary.OrderID, Raw: env.Data}, nil
}

// ListPage fetches one listing page. Pages start at 1.
func (c *Client) ListPage(ctx context.Context, page, size int) (models.Records, error) {
	records, _, err := c.listPage(ctx, page, size)
	return records, err
}

// listPage also reports how many items the page held before malformed
// entries were dropped; pagination counts those.
func (c *Client) listPage(ctx context.Context, page, size int) (models.Records, int, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(size))

	body, err := c.call(ctx, endpointListPage, http.MethodGet, "/web/v1/tickets", query, nil, true)
	if err != nil {
		return nil, 0, err
	}

	env, err := decodeEnvelope(endpointListPage, body)
	if err != nil {
		return nil, 0, err
	}
	if env.failed() {
		return nil, 0, NewVendorError(ErrorBadData, endpointListPage, "listing rejected: "+env.Message, nil)
	}

	records, count, err := decodeListing(env.Data)
	if err != nil {
		return nil, 0, NewVendorError(ErrorBadData, endpointListPage, "malformed listing", err)
	}
	c.metrics.IncListingPages()
	return records, count, nil
}

// ListAll fetches pages until one holds fewer than size records.
// On failure it returns the records gathered so far along with the error.
func (c *Client) ListAll(ctx context.Context, size int) (models.Records, error) {
	if size <= 0 {
		return nil, NewVendorError(ErrorInternal, endpointListPage, fmt.Sprintf("invalid page size %d", size), nil)
	}

	var all models.Records
	for page := 1; ; page++ {
		if page > c.maxPages {
			return all, NewVendorError(ErrorBadData, endpointListPage,
				fmt.Sprintf("listing did not end within %d pages", c.maxPages), nil)
		}
		if err := ctx.Err(); err != nil {
			return all, err
		}

		records, count, err := c.listPage(ctx, page, size)
		if err != nil {
			return all, fmt.Errorf("listing page %d: %w", page, err)
		}
		all = append(all, records...)

		if count < size {
			return all, nil
		}
	}
}

// NoteRequest is the add-note payload. Type other than NoteInternal or
// NoteDiagnostic is sent as NoteDiagnostic.
type NoteRequest struct {
	ID     models.InternalID
	Note   string
	Type   int
	IsFlag bool
}

// AddNote attaches a note to the ticket with the given internal id.
// It is not retried, since the endpoint is not idempotent.
func (c *Client) AddNote(ctx context.Context, req NoteRequest) error {
	noteType := req.Type
	if noteType != NoteInternal && noteType != NoteDiagnostic {
		noteType = NoteDiagnostic
	}
	isFlag := 0
	if req.IsFlag {
		isFlag = 1
	}

	payload := map[string]any{
		"id":      req.ID.String(),
		"note":    req.Note,
		"type":    noteType,
		"is_flag": isFlag,
	}
	body, err := c.call(ctx, endpointAddNote, http.MethodPost, "/web/v1/ticket/addnote", nil, payload, false)
	if err != nil {
		return err
	}

	env, err := decodeEnvelope(endpointAddNote, body)
	if err != nil {
		return err
	}
	if env.failed() {
		msg := env.Message
		if msg == "" {
			msg = "note rejected"
		}
		return NewVendorError(ErrorBadData, endpointAddNote, msg, nil)
	}
	return nil
}

// Health checks that the listing endpoint answers 200. It bypasses retry
// and the circuit breaker.
func (c *Client) Health(ctx context.Context) error {
	query := url.Values{}
	query.Set("page", "1")
	query.Set("limit", "1")

	req, err := c.newRequest(ctx, http.MethodGet, "/web/v1/tickets", query, nil)
	if err != nil {
		return NewVendorError(ErrorInternal, endpointHealth, "failed to create request", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return NewVendorError(ErrorProviderOutage, endpointHealth, "health check failed", redactErr(err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode != http.StatusOK {
		return NewVendorError(ErrorProviderOutage, endpointHealth,
			fmt.Sprintf("unhealthy status: %d", resp.StatusCode), nil)
	}
	return nil
}

// call runs one logical request with breaker gating and, when retryable is
// set, exponential backoff on retryable failures.
func (c *Client) call(ctx context.Context, endpoint, method, path string, query url.Values, payload any, retryable bool) ([]byte, error) {
	attempts := 1
	if retryable {
		attempts = c.retry.MaxAttempts
	}

	var lastErr error
	delay := c.retry.InitialDelay
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.retry.Multiplier)
			if c.retry.MaxDelay > 0 && delay > c.retry.MaxDelay {
				delay = c.retry.MaxDelay
			}
		}

		if c.breaker != nil && !c.breaker.Allow() {
			err := &VendorError{
				Category:   ErrorProviderOutage,
				Endpoint:   endpoint,
				Message:    "failing fast",
				Underlying: ErrCircuitOpen,
			}
			c.metrics.ObserveVendorRequest(endpoint, string(err.Category), 0)
			return nil, err
		}

		start := time.Now()
		body, err := c.attempt(ctx, endpoint, method, path, query, payload)
		result := "ok"
		if err != nil {
			result = string(CategoryOf(err))
		}
		c.metrics.ObserveVendorRequest(endpoint, result, time.Since(start).Seconds())
		c.recordBreaker(ctx, err)

		if err == nil {
			return body, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return nil, err
		}
		c.logger.WarnContext(ctx, "repairdesk request failed",
			"endpoint", endpoint,
			"url", c.redactedURL(path, query),
			"attempt", attempt+1,
			"error", err,
		)
	}
	return nil, lastErr
}

func (c *Client) recordBreaker(ctx context.Context, err error) {
	if c.breaker == nil {
		return
	}
	if err != nil && IsRetryable(err) {
		if change := c.breaker.RecordFailure(); change.Opened {
			c.logger.ErrorContext(ctx, "circuit breaker opened", "circuit", c.breaker.Name(), "error", err)
		}
		return
	}
	if change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "circuit breaker closed", "circuit", c.breaker.Name())
	}
}

func (c *Client) attempt(ctx context.Context, endpoint, method, path string, query url.Values, payload any) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, query, payload)
	if err != nil {
		return nil, NewVendorError(ErrorInternal, endpoint, "failed to create request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransport(ctx, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransport(ctx, endpoint, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, NewVendorError(ErrorAuthentication, endpoint,
			fmt.Sprintf("authentication failed: %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusNotFound:
		return nil, NewVendorError(ErrorNotFound, endpoint, "not found", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, NewVendorError(ErrorRateLimited, endpoint, "rate limit exceeded", nil)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, NewVendorError(ErrorProviderOutage, endpoint,
			fmt.Sprintf("vendor unavailable: %d", resp.StatusCode), nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, NewVendorError(ErrorBadData, endpoint,
			fmt.Sprintf("unexpected status: %d", resp.StatusCode), nil)
	}
	return body, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, payload any) (*http.Request, error) {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("api_key", c.apiKey)

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+q.Encode(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) redactedURL(path string, query url.Values) string {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("api_key", "REDACTED")
	return c.baseURL + path + "?" + q.Encode()
}

func classifyTransport(ctx context.Context, endpoint string, err error) error {
	err = redactErr(err)
	if errors.Is(ctx.Err(), context.Canceled) {
		return &VendorError{Category: ErrorInternal, Endpoint: endpoint, Message: "request cancelled", Underlying: ctx.Err()}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return NewVendorError(ErrorTimeout, endpoint, "request timeout", err)
	}
	return NewVendorError(ErrorProviderOutage, endpoint, "failed to execute request", err)
}

// redactErr strips the query string from *url.Error so the api key never
// reaches logs.
func redactErr(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if u, perr := url.Parse(urlErr.URL); perr == nil {
			u.RawQuery = ""
			urlErr.URL = u.String()
		}
	}
	return err
}

func decodeEnvelope(endpoint string, body []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}, NewVendorError(ErrorBadData, endpoint, "response is not JSON", err)
	}
	return env, nil
}
