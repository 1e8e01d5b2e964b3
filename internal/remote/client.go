// Package remote implements the HTTP client side of the remote store
// contract: idempotent touch-event upsert keyed by the client-generated
// local id, plus possession registration and audit queries.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var errMissingBaseURL = errors.New("remote: base url is required")

// ValidationError reports a 422 rejection of a specific record. It is
// non-retryable: resubmitting the same record yields the same rejection.
type ValidationError struct {
	Code string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("remote: validation rejected: %s", e.Code)
}

// Ack is the remote acknowledgment of a pushed touch event. Created reports
// whether this push inserted the record or replayed an already-seen local id.
type Ack struct {
	RemoteID string
	Created  bool
}

// TouchEventPayload is the wire form of a pushed touch event.
type TouchEventPayload struct {
	LocalID      string `json:"localId"`
	PossessionID string `json:"possessionId"`
	PaintZone    string `json:"paintZone"`
	Outcome      string `json:"outcome"`
	Quarter      int    `json:"quarter"`
	Points       *int64 `json:"points,omitempty"`
	Notes        string `json:"notes,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// StoredTouchEvent is the wire form of a synced record returned by the
// remote store's query endpoint.
type StoredTouchEvent struct {
	RemoteID     string `json:"remoteId"`
	LocalID      string `json:"localId"`
	PossessionID string `json:"possessionId"`
	PaintZone    string `json:"paintZone"`
	Outcome      string `json:"outcome"`
	Quarter      int    `json:"quarter"`
	Points       *int64 `json:"points,omitempty"`
	Notes        string `json:"notes,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// PossessionPayload is the wire form of a possession registration.
type PossessionPayload struct {
	PossessionID string `json:"possessionId"`
	Name         string `json:"name"`
	Opponent     string `json:"opponent,omitempty"`
	GameDate     string `json:"gameDate,omitempty"`
}

// ClientConfig bundles the settings for constructing a Client.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to one remote store instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient validates the configuration and returns a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{baseURL: baseURL, httpClient: httpClient}, nil
}

// PushTouchEvent submits one event using its local id as the idempotency
// key. A replayed local id returns the previously assigned remote id with
// Created false. A 422 maps to *ValidationError; any other failure is a
// transport error and the record's state is unknown to the caller.
func (c *Client) PushTouchEvent(ctx context.Context, payload TouchEventPayload) (Ack, error) {
	body, err := c.postJSON(ctx, "/touch-events", payload)
	if err != nil {
		return Ack{}, err
	}

	var response struct {
		RemoteID string `json:"remoteId"`
		Created  bool   `json:"created"`
	}
	if err := json.Unmarshal(body.payload, &response); err != nil {
		return Ack{}, fmt.Errorf("remote: decode ack: %w", err)
	}
	if response.RemoteID == "" {
		return Ack{}, errors.New("remote: ack missing remote id")
	}
	return Ack{RemoteID: response.RemoteID, Created: body.status == http.StatusCreated}, nil
}

// ListByPossession returns the synced records the remote store holds for a
// possession, in the store's canonical order. Used for audit and
// reconciliation; the push path does not depend on it.
func (c *Client) ListByPossession(ctx context.Context, possessionID string) ([]StoredTouchEvent, error) {
	endpoint := c.baseURL + "/touch-events?possessionId=" + url.QueryEscape(possessionID)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, err
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("remote: list touch events: %w", err)
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("remote: read response: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return nil, statusError(response.StatusCode, payload)
	}

	var events []StoredTouchEvent
	if err := json.Unmarshal(payload, &events); err != nil {
		return nil, fmt.Errorf("remote: decode touch events: %w", err)
	}
	return events, nil
}

// EnsurePossession registers a possession, deduplicated by its id. Returns
// whether this call created it.
func (c *Client) EnsurePossession(ctx context.Context, payload PossessionPayload) (bool, error) {
	body, err := c.postJSON(ctx, "/possessions", payload)
	if err != nil {
		return false, err
	}
	return body.status == http.StatusCreated, nil
}

// Health reports whether the remote store answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return err
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("remote: health check: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("remote: health check returned status %d", response.StatusCode)
	}
	return nil
}

type postResult struct {
	status  int
	payload []byte
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (postResult, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return postResult{}, fmt.Errorf("remote: encode request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return postResult{}, err
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return postResult{}, fmt.Errorf("remote: post %s: %w", path, err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return postResult{}, fmt.Errorf("remote: read response: %w", err)
	}

	switch response.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return postResult{status: response.StatusCode, payload: body}, nil
	case http.StatusUnprocessableEntity:
		return postResult{}, &ValidationError{Code: validationCode(body)}
	default:
		return postResult{}, statusError(response.StatusCode, body)
	}
}

func validationCode(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error == "" {
		return "rejected"
	}
	return payload.Error
}

func statusError(status int, body []byte) error {
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > 200 {
		trimmed = trimmed[:200]
	}
	return fmt.Errorf("remote: unexpected status %d: %s", status, trimmed)
}
