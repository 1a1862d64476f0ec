package fertilizer

import (
	"context"
	"sync"

	apperrors "fertismart/internal/common/errors"
	"fertismart/internal/common/logger"
	"fertismart/internal/common/metrics"
	"fertismart/internal/models"
)

// Transient notification texts.
const (
	MsgRecommendationGenerated = "Recommendation generated"
	MsgPredictionFailed        = "Prediction failed"
	MsgCropsUnavailable        = "Failed to load crops"
)

// Notifier shows short-lived messages to the user.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Predictor issues one prediction request.
type Predictor interface {
	Predict(ctx context.Context, req *models.PredictRequest) (*models.PredictResponse, error)
}

// MetadataSource is satisfied by *MetadataProvider.
type MetadataSource interface {
	Get(ctx context.Context) (*models.Metadata, error)
	Cached(ctx context.Context) (*models.Metadata, bool)
}

// Session drives submissions the way a single prediction form would. It is
// safe for concurrent use; only the latest submission commits its result.
type Session struct {
	metadata    MetadataSource
	predictor   Predictor
	tracker     *Tracker
	notifier    Notifier
	logger      logger.Logger
	strictCrops bool

	base context.Context
	stop context.CancelFunc

	mu            sync.Mutex
	cancelCurrent context.CancelFunc
	errorMessage  string
}

type SessionOption func(*Session)

// WithStrictCropCheck rejects crops that are not in the loaded metadata.
func WithStrictCropCheck(strict bool) SessionOption {
	return func(s *Session) { s.strictCrops = strict }
}

func NewSession(metadata MetadataSource, predictor Predictor, tracker *Tracker, notifier Notifier, log logger.Logger, opts ...SessionOption) *Session {
	if tracker == nil {
		tracker = NewTracker()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	base, stop := context.WithCancel(context.Background())
	s := &Session{
		metadata:  metadata,
		predictor: predictor,
		tracker:   tracker,
		notifier:  notifier,
		logger:    log.WithFields(map[string]interface{}{"component": "session"}),
		base:      base,
		stop:      stop,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadMetadata returns the crop options. Cancellation is not an error and
// leaves the session untouched; any other failure becomes the session's
// error message.
func (s *Session) LoadMetadata(ctx context.Context) ([]string, error) {
	ctx, cancel := s.attach(ctx)
	defer cancel()

	meta, err := s.metadata.Get(ctx)
	if err != nil {
		if apperrors.IsCancelled(err) {
			s.logger.Debug("metadata load cancelled", nil)
			return nil, nil
		}
		msg := apperrors.UserMessage(err)
		if msg == "" {
			msg = MsgCropsUnavailable
		}
		s.mu.Lock()
		s.errorMessage = msg
		s.mu.Unlock()
		s.logger.Error("failed to load metadata", map[string]interface{}{
			"errorCode": string(apperrors.CodeOf(err)),
			"message":   msg,
		})
		return nil, err
	}

	return append([]string(nil), meta.Crops...), nil
}

// Submit validates raw and, if it is well formed, runs one prediction. A
// submission supersedes any attempt still in flight. The returned state is
// the tracker's state once this submission has finished.
func (s *Session) Submit(ctx context.Context, raw map[string]string) State {
	s.mu.Lock()
	s.errorMessage = ""
	s.mu.Unlock()

	req, err := s.validator(ctx).Validate(raw)
	if err != nil {
		s.mu.Lock()
		s.supersedeLocked()
		s.tracker.Reset()
		s.mu.Unlock()

		metrics.ValidationFailures.WithLabelValues(string(apperrors.CodeOf(err))).Inc()
		s.logger.Debug("submission rejected", map[string]interface{}{
			"errorCode": string(apperrors.CodeOf(err)),
			"fields":    apperrors.Normalize(err).Details,
		})
		s.notifier.Error(apperrors.UserMessage(err))
		return s.tracker.State()
	}

	attemptCtx, cancel := s.attach(ctx)
	s.mu.Lock()
	s.supersedeLocked()
	s.cancelCurrent = cancel
	id := s.tracker.Begin()
	s.mu.Unlock()

	resp, err := s.predictor.Predict(attemptCtx, req)
	committed := s.tracker.Resolve(id, resp, err)

	s.mu.Lock()
	if s.tracker.IsLatest(id) {
		s.cancelCurrent = nil
	}
	s.mu.Unlock()
	cancel()

	fields := map[string]interface{}{"attempt": id}
	switch {
	case !committed && apperrors.IsCancelled(err):
		s.logger.Debug("prediction cancelled", fields)
	case !committed:
		metrics.StaleResults.Inc()
		s.logger.Debug("discarding stale prediction result", fields)
	case err != nil:
		fields["errorCode"] = string(apperrors.CodeOf(err))
		fields["message"] = apperrors.UserMessage(err)
		s.logger.Warn("prediction failed", fields)
		s.notifier.Error(MsgPredictionFailed)
	default:
		fields["fertilizer"] = resp.Fertilizer
		s.logger.Info("recommendation generated", fields)
		s.notifier.Success(MsgRecommendationGenerated)
	}

	return s.tracker.State()
}

// State returns the current result state.
func (s *Session) State() State {
	return s.tracker.State()
}

// ErrorMessage is the persistent error shown next to the form: the last
// failed prediction or, before any submission, a metadata failure.
func (s *Session) ErrorMessage() string {
	if st := s.tracker.State(); st.Phase == PhaseFailed {
		return st.Message
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorMessage
}

// Label decodes a predicted class with the loaded metadata, if any.
func (s *Session) Label(ctx context.Context, class int) (string, bool) {
	meta, ok := s.metadata.Cached(ctx)
	if !ok {
		return "", false
	}
	return meta.Label(class)
}

// Close cancels every in-flight operation. The session must not be used
// afterwards.
func (s *Session) Close() {
	s.stop()
}

func (s *Session) validator(ctx context.Context) *Validator {
	opts := []ValidatorOption{WithStrictCrops(s.strictCrops)}
	if s.strictCrops {
		if meta, ok := s.metadata.Cached(ctx); ok {
			opts = append(opts, WithKnownCrops(meta.Crops))
		}
	}
	return NewValidator(opts...)
}

// supersedeLocked cancels the attempt in flight, if any. s.mu must be held
// so that no attempt can begin between the cancel and the tracker update
// that follows.
func (s *Session) supersedeLocked() {
	if s.cancelCurrent != nil {
		s.cancelCurrent()
		s.cancelCurrent = nil
	}
}

// attach derives a context cancelled by either ctx or Close.
func (s *Session) attach(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.base, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

type nopNotifier struct{}

func (nopNotifier) Success(string) {}
func (nopNotifier) Error(string)   {}
