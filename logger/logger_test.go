package logger_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/invoice-engine/logger"
)

func decodeLine(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var fields map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &fields))
	return fields
}

func TestSetup_JSONFileWithCaller(t *testing.T) {
	// GIVEN: JSON output to a file with the caller enabled
	// WHEN: A component logger writes an entry
	// THEN: The entry carries the component and the call site

	path := filepath.Join(t.TempDir(), "engine.log")
	cfg := logger.DefaultConfig()
	cfg.Format = "json"
	cfg.Output = path
	cfg.Caller = true
	require.NoError(t, logger.Setup(cfg))
	t.Cleanup(func() {
		require.NoError(t, logger.Setup(logger.DefaultConfig()))
	})

	planLog := logger.WithComponent("planner")
	planLog.Info().Msg("drafts computed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	fields := decodeLine(t, data)
	assert.Equal(t, "planner", fields["component"])
	assert.Equal(t, "drafts computed", fields["message"])
	assert.Contains(t, fields["caller"], "logger_test.go")
}

func TestSetup_InvalidLevel(t *testing.T) {
	cfg := logger.DefaultConfig()
	cfg.Level = "loud"
	assert.Error(t, logger.Setup(cfg))
}

func TestWithRequest(t *testing.T) {
	// GIVEN: A request that went through the request id middleware
	// WHEN: Logging through WithRequest
	// THEN: The id, method and path are attached

	var buf bytes.Buffer
	base := zerolog.New(&buf)

	var reqLog zerolog.Logger
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLog = logger.WithRequest(base, r)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/drafts/r1-2025-3-0/edit", nil))

	reqLog.Error().Msg("save edit failed")

	fields := decodeLine(t, buf.Bytes())
	assert.Equal(t, http.MethodPut, fields["method"])
	assert.Equal(t, "/api/drafts/r1-2025-3-0/edit", fields["path"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestWithRequest_WithoutRequestID(t *testing.T) {
	var buf bytes.Buffer
	reqLog := logger.WithRequest(zerolog.New(&buf), httptest.NewRequest(http.MethodGet, "/api/drafts", nil))

	reqLog.Info().Msg("listed")

	fields := decodeLine(t, buf.Bytes())
	assert.NotContains(t, fields, "request_id")
}
