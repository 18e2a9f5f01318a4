package orchestration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/config"
)

// Invoker sends a JSON request to a named remote function and decodes its JSON response.
type Invoker interface {
	Invoke(ctx context.Context, functionID string, request, response interface{}) error
}

// Client invokes remote functions over HTTP
type Client struct {
	baseURL    string
	region     string
	httpClient *http.Client
	tracer     trace.Tracer
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewClient creates a client for the resolved endpoint map
func NewClient(endpoints config.Endpoints, logger *zap.Logger) *Client {
	logger = logger.Named("invoker")

	settings := gobreaker.Settings{
		Name:        "codegen-functions",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Client{
		baseURL: endpoints.Endpoint,
		region:  endpoints.Region,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		tracer:  otel.Tracer("codegen-invoker"),
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// SetBaseURL sets the base URL for testing purposes
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// Available reports whether the circuit breaker currently admits calls.
func (c *Client) Available() bool {
	return c.breaker.State() != gobreaker.StateOpen
}

// Invoke marshals request, calls functionID and decodes the reply into response.
func (c *Client) Invoke(ctx context.Context, functionID string, request, response interface{}) error {
	ctx, span := c.tracer.Start(ctx, "codegen.invoke")
	defer span.End()

	requestID := uuid.New().String()
	span.SetAttributes(
		attribute.String("function.id", functionID),
		attribute.String("request.id", requestID),
	)

	body, err := json.Marshal(request)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.invokeInternal(ctx, functionID, requestID, body)
	})
	if err != nil {
		span.RecordError(err)
		c.logger.Error("invocation failed", zap.String("function", functionID), zap.String("request_id", requestID), zap.Error(err))
		return fmt.Errorf("failed to invoke %s: %w", functionID, err)
	}

	if response == nil {
		return nil
	}
	if err := json.Unmarshal(result.([]byte), response); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// invokeInternal performs the actual HTTP request
func (c *Client) invokeInternal(ctx context.Context, functionID, requestID string, body []byte) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/2015-03-31/functions/%s/invocations", c.baseURL, url.PathEscape(functionID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", requestID)
	if c.region != "" {
		httpReq.Header.Set("X-Region", c.region)
	}

	// Inject trace context
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("function returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if fnErr := resp.Header.Get("X-Amz-Function-Error"); fnErr != "" {
		return nil, fmt.Errorf("function error (%s): %s", fnErr, string(respBody))
	}

	return respBody, nil
}
