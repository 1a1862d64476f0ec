// Package inference talks to the fertilizer inference service.
package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	apperrors "fertismart/internal/common/errors"
	commonhttp "fertismart/internal/common/http"
	"fertismart/internal/common/logger"
	"fertismart/internal/common/metrics"
	"fertismart/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	metadataPath = "/metadata"
	predictPath  = "/predict"

	endpointMetadata = "metadata"
	endpointPredict  = "predict"

	tracerName = "fertismart/inference"
)

// Config is injected at construction; the client never reads the
// environment.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is the remote half of the prediction pipeline. Every call issues
// exactly one HTTP request.
type Client struct {
	http   *commonhttp.Client
	logger logger.Logger
	tracer trace.Tracer
}

type clientOptions struct {
	httpClient *http.Client
	tracer     trace.Tracer
}

type Option func(*clientOptions)

// WithHTTPClient replaces the default *http.Client (whose timeout is
// Config.Timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = hc }
}

// WithTracer sets the tracer used for request spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *clientOptions) { o.tracer = t }
}

func NewClient(cfg Config, log logger.Logger, opts ...Option) *Client {
	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &Client{
		http:   commonhttp.NewClient(cfg.BaseURL, o.httpClient),
		logger: log.WithFields(map[string]interface{}{"component": "inference", "baseURL": cfg.BaseURL}),
		tracer: o.tracer,
	}
}

// FetchMetadata loads the service's crop list, feature order and label
// mapping.
func (c *Client) FetchMetadata(ctx context.Context) (*models.Metadata, error) {
	ctx, span := c.tracer.Start(ctx, "inference.fetch_metadata")
	defer span.End()
	start := time.Now()

	resp, err := c.http.Get(ctx, metadataPath)
	if err != nil {
		return nil, c.finish(span, endpointMetadata, start, transportError(ctx, "metadata fetch", err))
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if !resp.OK() {
		body := string(resp.Body)
		msg := fmt.Sprintf("Failed to load metadata (%d): %s", resp.StatusCode, body)
		return nil, c.finish(span, endpointMetadata, start, apperrors.NewServerError(resp.StatusCode, msg, body))
	}

	if result := metadataSchema.ValidateBytes(resp.Body); !result.Valid {
		return nil, c.finish(span, endpointMetadata, start,
			apperrors.NewInvalidResponseError(endpointMetadata, result.Summary()))
	}

	var meta models.Metadata
	if err := json.Unmarshal(resp.Body, &meta); err != nil {
		return nil, c.finish(span, endpointMetadata, start,
			apperrors.NewInvalidResponseError(endpointMetadata, err.Error()))
	}

	c.finish(span, endpointMetadata, start, nil)
	c.logger.Debug("metadata fetched", map[string]interface{}{
		"crops":     len(meta.Crops),
		"labels":    len(meta.LabelMapping),
		"requestId": resp.RequestID,
	})
	return &meta, nil
}

// Predict posts req to the service and decodes its recommendation.
func (c *Client) Predict(ctx context.Context, req *models.PredictRequest) (*models.PredictResponse, error) {
	if req == nil {
		return nil, apperrors.NewIncompleteInputError(models.FormFields)
	}

	ctx, span := c.tracer.Start(ctx, "inference.predict",
		trace.WithAttributes(attribute.String("fertismart.crop", req.Crop)))
	defer span.End()
	start := time.Now()

	resp, err := c.http.PostJSON(ctx, predictPath, req)
	if err != nil {
		return nil, c.finish(span, endpointPredict, start, transportError(ctx, "prediction", err))
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if !resp.OK() {
		msg := errorDetail(resp.Body)
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return nil, c.finish(span, endpointPredict, start,
			apperrors.NewServerError(resp.StatusCode, msg, string(resp.Body)))
	}

	if result := predictResponseSchema.ValidateBytes(resp.Body); !result.Valid {
		return nil, c.finish(span, endpointPredict, start,
			apperrors.NewInvalidResponseError(endpointPredict, result.Summary()))
	}

	var out models.PredictResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, c.finish(span, endpointPredict, start,
			apperrors.NewInvalidResponseError(endpointPredict, err.Error()))
	}

	c.finish(span, endpointPredict, start, nil)
	c.logger.Info("prediction received", map[string]interface{}{
		"fertilizer":     out.Fertilizer,
		"predictedClass": out.PredictedClass,
		"requestId":      resp.RequestID,
	})
	return &out, nil
}

// finish records metrics and span status for one request and returns err.
func (c *Client) finish(span trace.Span, endpoint string, start time.Time, err error) error {
	metrics.InferenceDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	metrics.InferenceRequests.WithLabelValues(endpoint, metrics.Outcome(string(apperrors.CodeOf(err)))).Inc()

	if err == nil {
		span.SetStatus(codes.Ok, "")
		return nil
	}

	stdErr := apperrors.Normalize(err)
	span.SetAttributes(attribute.String("fertismart.error_code", string(stdErr.Code)))

	fields := map[string]interface{}{
		"endpoint":  endpoint,
		"errorCode": string(stdErr.Code),
		"status":    stdErr.Status,
		"message":   stdErr.Message,
	}
	if stdErr.Code == apperrors.ErrCodeCancelled {
		c.logger.Debug("inference request cancelled", fields)
		return err
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, stdErr.Message)
	c.logger.Warn("inference request failed", fields)
	return err
}

// transportError classifies a failed exchange. Only caller cancellation is
// CANCELLED; timeouts are network failures.
func transportError(ctx context.Context, operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return apperrors.NewCancelledError(operation)
	}
	return apperrors.NewNetworkError(err)
}

// errorDetail extracts the "detail" member of an error body. Bodies that are
// not JSON objects are treated as empty.
func errorDetail(body []byte) string {
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return ""
	}

	switch detail := data["detail"].(type) {
	case nil:
		return ""
	case string:
		return detail
	default:
		encoded, err := json.Marshal(detail)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}
