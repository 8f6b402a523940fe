// Package panelapi provides the shared HTTP transport for both control-plane
// dialects: bearer auth, response classification, install-race retries and the
// signed-URL file upload protocol. Centralizing the tolerant-error rules here
// keeps the 404-is-success logic out of the individual client methods.
package panelapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/guildhost/guildhost/internal/port/controlplane"
	"github.com/guildhost/guildhost/internal/resilience"
)

const (
	// Mutating calls that race an in-progress install are retried with linear
	// backoff: installRetryStep, 2*installRetryStep, 3*installRetryStep.
	installRetries   = 3
	installRetryStep = 5 * time.Second
)

// Transport is the low-level HTTP client both dialect adapters build on.
type Transport struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker

	sleep func(time.Duration) // for testing
}

// New creates a Transport for the given panel base URL and bearer credential.
func New(baseURL, apiKey string, timeout time.Duration) *Transport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Transport{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		sleep: time.Sleep,
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (t *Transport) SetBreaker(b *resilience.Breaker) {
	t.breaker = b
}

// Get issues a GET request. A 404 surfaces as a typed not-found APIError so
// callers can treat "already gone" distinctly from real failures.
func (t *Transport) Get(ctx context.Context, path string) ([]byte, error) {
	return t.roundTrip(ctx, http.MethodGet, path, nil)
}

// Do issues a mutating request with an optional JSON body. When the panel
// rejects the call because the instance is still installing, the request is
// retried with linear backoff before the error is surfaced.
func (t *Transport) Do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	var data []byte
	var err error
	for attempt := 1; ; attempt++ {
		data, err = t.roundTrip(ctx, method, path, payload)
		if err == nil || !controlplane.IsStillInstalling(err) || attempt >= installRetries {
			break
		}
		t.sleep(time.Duration(attempt) * installRetryStep)
	}
	return data, err
}

// DoTolerant issues a mutating request and treats a 404 as success: the
// target no longer exists, which for deletes, power signals and commands is
// the desired end state. Empty response bodies are success as well; some
// panel builds return no payload on success.
func (t *Transport) DoTolerant(ctx context.Context, method, path string, body any) error {
	_, err := t.Do(ctx, method, path, body)
	if err != nil && controlplane.IsNotFound(err) {
		return nil
	}
	return err
}

// Upload performs the second step of the signed-URL file upload protocol:
// a multipart/form-data POST of content against the one-time URL issued by
// the panel. File bytes never travel inline in a JSON body.
func (t *Transport) Upload(ctx context.Context, uploadURL, filename string, content []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("files", filename)
	if err != nil {
		return fmt.Errorf("multipart create: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("multipart write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("multipart close: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &buf)
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return &controlplane.APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return nil
}

// roundTrip performs a single HTTP exchange and classifies the response:
// 2xx returns the body (possibly empty), everything else returns a typed
// APIError carrying the status code and raw body for logging. Only transport
// failures and 5xx responses count toward opening the circuit breaker: a 4xx
// is an answer from the panel, not an outage, and the tolerant 404 path must
// stay available no matter how many already-gone targets are deleted in a row.
func (t *Transport) roundTrip(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var result []byte
	var apiErr *controlplane.APIError
	call := func() error {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if t.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+t.apiKey)
		}

		resp, err := t.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 500 {
			return &controlplane.APIError{StatusCode: resp.StatusCode, Body: string(data)}
		}
		if resp.StatusCode >= 400 {
			apiErr = &controlplane.APIError{StatusCode: resp.StatusCode, Body: string(data)}
			return nil
		}

		result = data
		return nil
	}

	var err error
	if t.breaker != nil {
		err = t.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, err
	}
	if apiErr != nil {
		return nil, apiErr
	}
	return result, nil
}
