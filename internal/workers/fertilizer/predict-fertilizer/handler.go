// internal/workers/fertilizer/predict-fertilizer/handler.go
package predictfertilizer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	apperrors "fertismart/internal/common/errors"
	"fertismart/internal/common/logger"
	"fertismart/internal/common/metrics"
	"fertismart/internal/common/validation"
	"fertismart/internal/fertilizer"
	"fertismart/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "predict-fertilizer"
)

type Predictor interface {
	Predict(ctx context.Context, req *models.PredictRequest) (*models.PredictResponse, error)
}

// MetadataSource is satisfied by *fertilizer.MetadataProvider.
type MetadataSource interface {
	Get(ctx context.Context) (*models.Metadata, error)
	Cached(ctx context.Context) (*models.Metadata, bool)
}

type Handler struct {
	config    *Config
	predictor Predictor
	metadata  MetadataSource
	schema    *validation.Schema
	logger    logger.Logger
	errors    *apperrors.ErrorHandler
	parent    context.Context
}

// NewHandler builds the worker. metadata may be nil, in which case labels
// are not decoded and crops are never checked.
func NewHandler(config *Config, predictor Predictor, metadata MetadataSource, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		predictor: predictor,
		metadata:  metadata,
		logger:    log,
		errors:    apperrors.NewErrorHandler(log),
		parent:    context.Background(),
	}
}

// WithInputSchema validates job variables before they are decoded.
func (h *Handler) WithInputSchema(schema *validation.Schema) *Handler {
	h.schema = schema
	return h
}

// WithContext ties job execution to ctx; cancelling it releases running jobs.
func (h *Handler) WithContext(ctx context.Context) *Handler {
	h.parent = ctx
	return h
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()
	start := time.Now()
	defer func() {
		metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	}()

	input, err := h.parseInput(job.Variables)
	if err != nil {
		h.fail(client, job, err)
		return
	}

	ctx, cancel := context.WithTimeout(h.parent, h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, input)
	if err != nil {
		h.fail(client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

// parseInput checks the variables against the registered schema and decodes
// them. Mismatched readings are invalid numbers; a crop that is not a string
// counts as missing, like an empty crop field.
func (h *Handler) parseInput(variables string) (*Input, error) {
	if h.schema != nil {
		result := h.schema.ValidateBytes([]byte(variables))
		if !result.Valid {
			fields := make([]string, 0, len(result.Errors))
			for _, e := range result.Errors {
				fields = append(fields, e.Field)
			}
			return nil, inputError(fields)
		}
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == models.FieldCrop {
			return nil, inputError([]string{models.FieldCrop})
		}
		stdErr := apperrors.NewInvalidNumberError(nil)
		stdErr.Details = "parse input: " + err.Error()
		return nil, stdErr
	}
	return &input, nil
}

func inputError(fields []string) *apperrors.StandardError {
	numeric := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == models.FieldCrop {
			return apperrors.NewIncompleteInputError([]string{models.FieldCrop})
		}
		numeric = append(numeric, f)
	}
	return apperrors.NewInvalidNumberError(numeric)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	validator, err := h.validator(ctx)
	if err != nil {
		return nil, err
	}

	req, err := validator.Validate(input.Form())
	if err != nil {
		metrics.ValidationFailures.WithLabelValues(string(apperrors.CodeOf(err))).Inc()
		return nil, err
	}

	resp, err := h.predictor.Predict(ctx, req)
	if err != nil {
		return nil, err
	}

	output := &Output{
		Fertilizer:     resp.Fertilizer,
		PredictedClass: resp.PredictedClass,
	}
	if h.metadata != nil {
		if meta, ok := h.metadata.Cached(ctx); ok {
			output.Label, _ = meta.Label(resp.PredictedClass)
		}
	}

	h.logger.Info("recommendation generated", map[string]interface{}{
		"crop":           req.Crop,
		"fertilizer":     output.Fertilizer,
		"predictedClass": output.PredictedClass,
	})
	return output, nil
}

func (h *Handler) validator(ctx context.Context) (*fertilizer.Validator, error) {
	if !h.config.StrictCrops || h.metadata == nil {
		return fertilizer.NewValidator(), nil
	}
	meta, err := h.metadata.Get(ctx)
	if err != nil {
		return nil, err
	}
	return fertilizer.NewValidator(
		fertilizer.WithKnownCrops(meta.Crops),
		fertilizer.WithStrictCrops(true),
	), nil
}

func (h *Handler) fail(client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.CodeOf(err))).Inc()
	h.errors.HandleJobError(context.Background(), client, job, err)
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err = cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

// ParseInput exposes job variable decoding for tests and tooling.
func (h *Handler) ParseInput(variables string) (*Input, error) {
	return h.parseInput(strings.TrimSpace(variables))
}
