// internal/workers/fertilizer/fetch-metadata/handler.go
package fetchmetadata

import (
	"context"
	"strconv"
	"time"

	apperrors "fertismart/internal/common/errors"
	"fertismart/internal/common/logger"
	"fertismart/internal/common/metrics"
	"fertismart/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "fetch-fertilizer-metadata"
)

// MetadataSource is satisfied by *fertilizer.MetadataProvider.
type MetadataSource interface {
	Get(ctx context.Context) (*models.Metadata, error)
}

type Handler struct {
	config   *Config
	metadata MetadataSource
	logger   logger.Logger
	errors   *apperrors.ErrorHandler
	parent   context.Context
}

func NewHandler(config *Config, metadata MetadataSource, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		metadata: metadata,
		logger:   log,
		errors:   apperrors.NewErrorHandler(log),
		parent:   context.Background(),
	}
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

	ctx, cancel := context.WithTimeout(h.parent, h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx)
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.CodeOf(err))).Inc()
		h.errors.HandleJobError(context.Background(), client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context) (*Output, error) {
	meta, err := h.metadata.Get(ctx)
	if err != nil {
		return nil, err
	}

	labels := make(map[string]string, len(meta.LabelMapping))
	for class, name := range meta.LabelMapping {
		labels[strconv.Itoa(class)] = name
	}

	return &Output{
		Crops:        nonNil(meta.Crops),
		FeatureOrder: nonNil(meta.FeatureOrder),
		LabelMapping: labels,
	}, nil
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

func (h *Handler) Execute(ctx context.Context) (*Output, error) {
	return h.execute(ctx)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
