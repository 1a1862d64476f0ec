// internal/workers/fertilizer/fetch-metadata/handler_test.go
package fetchmetadata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"fertismart/internal/common/camunda/camundatest"
	apperrors "fertismart/internal/common/errors"
	"fertismart/internal/common/inference"
	"fertismart/internal/common/logger"
	"fertismart/internal/fertilizer"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func setupInferenceServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/metadata", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client
}

func createTestHandler(t *testing.T, baseURL string, cache fertilizer.MetadataCache) *Handler {
	testLog := logger.NewTestLogger(t)
	client := inference.NewClient(inference.Config{BaseURL: baseURL, Timeout: 2 * time.Second}, testLog)
	provider := fertilizer.NewMetadataProvider(client, cache, testLog)
	return NewHandler(&Config{Timeout: 5 * time.Second}, provider, testLog)
}

const metadataBody = `{
  "feature_order": ["N","P","K","temperature","humidity","pH","rainfall","moisture","crop"],
  "crops": ["Maize","Wheat"],
  "label_mapping": {"0": "Urea", "1": "DAP"},
  "artifacts_dir": "artifacts",
  "uses_preprocessor": false
}`

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	server, calls := setupInferenceServer(t, http.StatusOK, metadataBody)
	handler := createTestHandler(t, server.URL, nil)

	output, err := handler.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Maize", "Wheat"}, output.Crops)
	assert.Len(t, output.FeatureOrder, 9)
	assert.Equal(t, map[string]string{"0": "Urea", "1": "DAP"}, output.LabelMapping)

	_, err = handler.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls), "metadata is fetched once")

	data, err := json.Marshal(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"labelMapping":{"0":"Urea","1":"DAP"}`)
}

func TestHandler_Execute_SharedRedisCache(t *testing.T) {
	server, calls := setupInferenceServer(t, http.StatusOK, metadataBody)
	redisClient := setupRedis(t)

	first := createTestHandler(t, server.URL, fertilizer.NewRedisCache(redisClient, "", time.Hour, nil))
	second := createTestHandler(t, server.URL, fertilizer.NewRedisCache(redisClient, "", time.Hour, nil))

	_, err := first.Execute(context.Background())
	require.NoError(t, err)
	output, err := second.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Maize", "Wheat"}, output.Crops)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

// ==========================
// Error Handling Tests
// ==========================

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		errorCode apperrors.ErrorCode
		bpmnCode  string
	}{
		{
			name:      "service error",
			status:    http.StatusServiceUnavailable,
			body:      "warming up",
			errorCode: apperrors.ErrCodeServer,
			bpmnCode:  "INFERENCE_FAILED",
		},
		{
			name:      "malformed metadata",
			status:    http.StatusOK,
			body:      `{"crops": "Maize"}`,
			errorCode: apperrors.ErrCodeInvalidResponse,
			bpmnCode:  "INFERENCE_INVALID_RESPONSE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := setupInferenceServer(t, tt.status, tt.body)
			handler := createTestHandler(t, server.URL, nil)

			output, err := handler.Execute(context.Background())
			require.Error(t, err)
			assert.Nil(t, output)
			assert.Equal(t, tt.errorCode, apperrors.CodeOf(err))
			assert.Equal(t, tt.bpmnCode, apperrors.ConvertToBPMNError(apperrors.Normalize(err)).Code)
		})
	}
}

func TestHandler_Execute_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := createTestHandler(t, url, nil).Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNetwork, apperrors.CodeOf(err))
}

func TestHandler_WithContext_Cancelled(t *testing.T) {
	server, _ := setupInferenceServer(t, http.StatusOK, metadataBody)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	handler := createTestHandler(t, server.URL, nil).WithContext(ctx)
	_, err := handler.Execute(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsCancelled(err))
}

// ==========================
// Job Handling Tests
// ==========================

func TestHandler_Handle(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		cancelled bool
		kind      camundatest.CommandKind
		bpmnCode  string
	}{
		{
			name:   "success completes the job",
			status: http.StatusOK,
			body:   metadataBody,
			kind:   camundatest.CommandComplete,
		},
		{
			name:     "server failure throws",
			status:   http.StatusServiceUnavailable,
			body:     "warming up",
			kind:     camundatest.CommandThrow,
			bpmnCode: "INFERENCE_FAILED",
		},
		{
			name:     "malformed metadata throws",
			status:   http.StatusOK,
			body:     `{"crops": "Maize"}`,
			kind:     camundatest.CommandThrow,
			bpmnCode: "INFERENCE_INVALID_RESPONSE",
		},
		{
			name:      "cancellation releases the job",
			status:    http.StatusOK,
			body:      metadataBody,
			cancelled: true,
			kind:      camundatest.CommandFail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := setupInferenceServer(t, tt.status, tt.body)
			handler := createTestHandler(t, server.URL, nil)
			if tt.cancelled {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				handler.WithContext(ctx)
			}

			client := camundatest.NewJobClient()
			handler.Handle(client, camundatest.NewJob(55, TaskType, 2, `{}`))

			sent := client.Commands()
			require.Len(t, sent, 1)
			cmd := sent[0]
			assert.Equal(t, tt.kind, cmd.Kind)
			assert.Equal(t, int64(55), cmd.JobKey)

			vars, err := cmd.DecodeVariables()
			require.NoError(t, err)

			switch tt.kind {
			case camundatest.CommandComplete:
				assert.Equal(t, []interface{}{"Maize", "Wheat"}, vars["crops"])
				assert.Len(t, vars["featureOrder"], 9)
				assert.Equal(t, map[string]interface{}{"0": "Urea", "1": "DAP"}, vars["labelMapping"])
			case camundatest.CommandThrow:
				assert.Equal(t, tt.bpmnCode, cmd.ErrorCode)
				assert.Equal(t, tt.bpmnCode, vars["errorCode"])
				assert.Equal(t, cmd.ErrorMessage, vars["errorMessage"])
			case camundatest.CommandFail:
				assert.Equal(t, int32(2), cmd.Retries, "a cancelled job keeps its retries")
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	assert.Equal(t, 10*time.Second, LoadConfig().Timeout)
}
