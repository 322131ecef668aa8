package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/integrail/gamma-client/pkg/client/dto"
	"github.com/integrail/gamma-client/pkg/metrics"
)

var tracer = otel.Tracer("gamma-client")

type Client interface {
	Settings() *Settings
	BuildRequest(in Input) (dto.GenerationRequest, error)
	Submit(ctx context.Context, req dto.GenerationRequest) (*Job, error)
	Status(ctx context.Context, generationID string) (*dto.Generation, error)
	Poll(ctx context.Context, job *Job, opts ...CallOption) (*dto.Generation, error)
	Fetch(ctx context.Context, completed *dto.Generation) (*ArtifactResult, error)
	CreatePresentation(ctx context.Context, in Input, opts ...CallOption) (*ArtifactResult, error)
}

type gammaClient struct {
	settings   *Settings
	httpClient *http.Client
	log        zerolog.Logger
	clock      Clock
}

type ClientOption func(c *gammaClient)

// WithHTTPClient replaces the shared connection pool. Per-request deadlines still come from the settings.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *gammaClient) {
		c.httpClient = httpClient
	}
}

func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *gammaClient) {
		c.log = log
	}
}

func WithClock(clock Clock) ClientOption {
	return func(c *gammaClient) {
		c.clock = clock
	}
}

func NewClient(settings *Settings, opts ...ClientOption) Client {
	c := &gammaClient{
		settings:   settings,
		httpClient: &http.Client{Transport: http.DefaultTransport},
		log:        zerolog.Nop(),
		clock:      realClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "gamma-client").Logger()
	return c
}

func (o *gammaClient) Settings() *Settings {
	return o.settings
}

// runClient performs one exchange with the API bounded by the request timeout and returns the
// response body. Failures are returned as *transportError.
func (o *gammaClient) runClient(ctx context.Context, method, endpoint string, body any) (int, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, o.settings.requestTimeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		reqBodyBytes, err := json.Marshal(body)
		if err != nil {
			return 0, nil, errors.Wrapf(err, "failed to marshal gamma request")
		}
		reqBody = bytes.NewReader(reqBodyBytes)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, o.settings.baseURL+endpoint, reqBody)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "failed to init request to %s", endpoint)
	}
	req.Header.Set("X-API-KEY", o.settings.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	} else {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return 0, nil, classifyErr(ctx, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, classifyErr(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, respBytes, classifyStatus(resp.StatusCode, respBytes)
	}
	return resp.StatusCode, respBytes, nil
}

func (o *gammaClient) Submit(ctx context.Context, req dto.GenerationRequest) (*Job, error) {
	ctx, span := tracer.Start(ctx, "gamma_submit", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	if strings.TrimSpace(req.InputText) == "" {
		metrics.RecordSubmission("invalid")
		return nil, &SubmissionError{Body: "input text is required"}
	}

	submittedAt := o.clock.Now()
	statusCode, respBytes, err := o.runClient(ctx, http.MethodPost, "/generations", req)
	if err != nil {
		span.RecordError(err)
		if ctx.Err() != nil {
			metrics.RecordSubmission("cancelled")
			return nil, &CancelledError{LastStatus: StatusPending, Cause: ctx.Err()}
		}
		metrics.RecordSubmission("rejected")
		o.log.Error().Err(err).Int("status", statusCode).Msg("POST /generations failed")
		var te *transportError
		if errors.As(err, &te) {
			return nil, &SubmissionError{StatusCode: te.StatusCode, Body: te.Body, Retryable: te.Retryable, Cause: te.Cause}
		}
		return nil, &SubmissionError{Cause: err}
	}

	var resp dto.SubmitResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		metrics.RecordSubmission("malformed")
		return nil, &SubmissionError{Cause: errors.Wrapf(err, "failed to unmarshal gamma response: %s", string(respBytes))}
	}
	generationID := resp.Identifier()
	if generationID == "" {
		metrics.RecordSubmission("malformed")
		return nil, &SubmissionError{Cause: errors.Errorf("no generation id in response: %s", string(respBytes))}
	}

	span.SetAttributes(attribute.String("gamma.generation_id", generationID))
	metrics.RecordSubmission("accepted")
	o.log.Info().
		Int("status", statusCode).
		Str("generation_id", generationID).
		Msg("POST /generations")

	return &Job{
		ID:             generationID,
		Status:         StatusPending,
		SubmittedAt:    submittedAt,
		LastObservedAt: submittedAt,
	}, nil
}

// Status queries the generation once, without retries.
func (o *gammaClient) Status(ctx context.Context, generationID string) (*dto.Generation, error) {
	ctx, span := tracer.Start(ctx, "gamma_get_status", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("gamma.generation_id", generationID))

	generation, err := o.queryStatus(ctx, generationID)
	if err != nil {
		span.RecordError(err)
		return nil, o.pollError(generationID, err)
	}
	span.SetAttributes(attribute.String("gamma.status", generation.Status))
	return generation, nil
}

func (o *gammaClient) queryStatus(ctx context.Context, generationID string) (*dto.Generation, error) {
	endpoint := fmt.Sprintf("/generations/%s", url.PathEscape(generationID))
	_, respBytes, err := o.runClient(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	generation, err := dto.ParseGeneration(respBytes)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal gamma response: %s", string(respBytes))
	}
	if generation.Identifier() == "" {
		generation.GenerationID = generationID
	}
	return generation, nil
}

func (o *gammaClient) pollError(generationID string, err error) *PollError {
	var pe *PollError
	if errors.As(err, &pe) {
		return pe
	}
	var te *transportError
	if errors.As(err, &te) {
		return &PollError{GenerationID: generationID, StatusCode: te.StatusCode, Body: te.Body, Retryable: te.Retryable, Cause: te.Cause}
	}
	return &PollError{GenerationID: generationID, Cause: err}
}
