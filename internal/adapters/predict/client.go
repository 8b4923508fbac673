// Package predict calls the object-detection model service over HTTP.
package predict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/paulmach/orb/geojson"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/geodetect/internal/core/domain"
	"github.com/samirrijal/geodetect/internal/pkg/logging"
	"github.com/samirrijal/geodetect/internal/pkg/metrics"
	"github.com/samirrijal/geodetect/internal/pkg/telemetry"
)

// Options configures a Client.
type Options struct {
	TextURL        string
	PointURL       string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
}

// Client implements ports.PredictionClient.
type Client struct {
	http *fasthttp.Client
	opts Options
}

// New creates a prediction client.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Client{
		http: &fasthttp.Client{
			Name:                "geodetect",
			ReadTimeout:         opts.Timeout,
			WriteTimeout:        opts.Timeout,
			MaxIdleConnDuration: 90 * time.Second,
		},
		opts: opts,
	}
}

// PredictText posts a text-prompted request.
func (c *Client) PredictText(ctx context.Context, req *domain.PredictionRequest) (*geojson.FeatureCollection, error) {
	return c.post(ctx, "text", c.opts.TextURL, req)
}

// PredictPoints posts a point-prompted request.
func (c *Client) PredictPoints(ctx context.Context, req *domain.PredictionRequest) (*geojson.FeatureCollection, error) {
	return c.post(ctx, "points", c.opts.PointURL, req)
}

func (c *Client) post(ctx context.Context, endpoint, url string, req *domain.PredictionRequest) (*geojson.FeatureCollection, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanPredict,
		trace.WithAttributes(attribute.String(telemetry.AttrEndpoint, endpoint)))
	defer span.End()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode prediction request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	var (
		fc      *geojson.FeatureCollection
		attempt int
	)
	op := func() error {
		attempt++
		var err error
		fc, err = c.once(ctx, endpoint, url, body)
		if err == nil {
			return nil
		}
		var predErr *domain.PredictionError
		if errors.As(err, &predErr) && !predErr.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logging.FromContext(ctx).Warn("prediction call failed, retrying",
			"endpoint", endpoint, "attempt", attempt, "wait", wait.String(), "error", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.MaxRetries)), ctx)
	err = backoff.RetryNotify(op, policy, notify)
	span.SetAttributes(attribute.Int(telemetry.AttrAttempt, attempt))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int(telemetry.AttrFeatures, len(fc.Features)))
	return fc, nil
}

// once performs a single POST.
func (c *Client) once(ctx context.Context, endpoint, url string, body []byte) (*geojson.FeatureCollection, error) {
	if err := ctx.Err(); err != nil {
		return nil, backoff.Permanent(err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set(fasthttp.HeaderAccept, "application/geo+json, application/json")
	req.SetBody(body)

	deadline := time.Now().Add(c.opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	start := time.Now()
	err := c.http.DoDeadline(req, resp, deadline)
	metrics.PredictionDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PredictionAttempts.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &domain.PredictionError{Message: err.Error()}
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		metrics.PredictionAttempts.WithLabelValues(endpoint, fmt.Sprintf("%dxx", status/100)).Inc()
		return nil, &domain.PredictionError{StatusCode: status, Message: errorMessage(resp.Body(), status)}
	}

	fc, err := geojson.UnmarshalFeatureCollection(resp.Body())
	if err != nil {
		metrics.PredictionAttempts.WithLabelValues(endpoint, "bad_body").Inc()
		return nil, &domain.PredictionError{StatusCode: status, Message: "response is not a GeoJSON FeatureCollection"}
	}
	metrics.PredictionAttempts.WithLabelValues(endpoint, "ok").Inc()
	return fc, nil
}

// errorMessage extracts {"error":{"message":...}} or {"detail":...} from an
// error body, falling back to the raw text.
func errorMessage(body []byte, status int) string {
	var envelope struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error != nil && envelope.Error.Message != "" {
			return envelope.Error.Message
		}
		if envelope.Detail != "" {
			return envelope.Detail
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return fasthttp.StatusMessage(status)
	}
	if len(text) > 512 {
		text = text[:512]
	}
	return text
}
