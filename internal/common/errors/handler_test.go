package errors

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fertismart/internal/common/camunda/camundatest"
)

type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) Error(msg string, _ map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *recordingLogger) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages...)
}

// ==========================
// HandleJobError
// ==========================

func TestHandleJobError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      camundatest.CommandKind
		bpmnCode  string
		message   string
		extraVars map[string]interface{}
	}{
		{
			name:     "validation",
			err:      NewInvalidNumberError([]string{"ph"}),
			kind:     camundatest.CommandThrow,
			bpmnCode: "FERTILIZER_INPUT_INVALID",
			message:  "Please enter valid numbers in all numeric fields",
		},
		{
			name:      "server",
			err:       NewServerError(503, "model unavailable", `{"detail":"model unavailable"}`),
			kind:      camundatest.CommandThrow,
			bpmnCode:  "INFERENCE_FAILED",
			message:   "model unavailable",
			extraVars: map[string]interface{}{"httpStatus": float64(503)},
		},
		{
			name:     "foreign",
			err:      stderrors.New("boom"),
			kind:     camundatest.CommandThrow,
			bpmnCode: string(ErrCodeInternal),
			message:  "Unexpected error",
		},
		{
			name:    "cancelled",
			err:     NewCancelledError("prediction"),
			kind:    camundatest.CommandFail,
			message: "prediction cancelled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := camundatest.NewJobClient()
			job := camundatest.NewJob(42, "predict-fertilizer", 3, `{}`)
			log := &recordingLogger{}

			NewErrorHandler(log).HandleJobError(context.Background(), client, job, tt.err)

			sent := client.Commands()
			require.Len(t, sent, 1)
			cmd := sent[0]
			assert.Equal(t, tt.kind, cmd.Kind)
			assert.Equal(t, int64(42), cmd.JobKey)
			assert.Equal(t, tt.message, cmd.ErrorMessage)
			assert.Equal(t, []string{"Job failed"}, log.Messages())

			if tt.kind == camundatest.CommandFail {
				assert.Equal(t, int32(3), cmd.Retries, "a released job keeps its retries")
				assert.Empty(t, cmd.ErrorCode)
				return
			}

			assert.Equal(t, tt.bpmnCode, cmd.ErrorCode)
			vars, err := cmd.DecodeVariables()
			require.NoError(t, err)
			assert.Equal(t, tt.bpmnCode, vars["errorCode"])
			assert.Equal(t, tt.message, vars["errorMessage"])
			assert.Equal(t, string(CodeOf(tt.err)), vars["originalErrorCode"])
			assert.Equal(t, false, vars["retryable"])
			for k, v := range tt.extraVars {
				assert.Equal(t, v, vars[k], k)
			}
		})
	}
}

func TestHandleJobError_SendFailureIsLogged(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"throw", NewNetworkError(stderrors.New("connection refused")), "failed to throw BPMN error"},
		{"release", NewCancelledError("metadata fetch"), "failed to release job"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := camundatest.NewJobClient()
			client.FailSends(stderrors.New("gateway unavailable"))
			log := &recordingLogger{}

			NewErrorHandler(log).HandleJobError(context.Background(), client, camundatest.NewJob(7, "fetch-fertilizer-metadata", 1, `{}`), tt.err)

			assert.Len(t, client.Commands(), 1)
			assert.Equal(t, []string{"Job failed", tt.message}, log.Messages())
		})
	}
}
