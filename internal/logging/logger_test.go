package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected log.Level
	}{
		{"debug lowercase", "debug", log.DebugLevel},
		{"debug uppercase", "DEBUG", log.DebugLevel},
		{"verbose", "verbose", log.DebugLevel},
		{"info", "info", log.InfoLevel},
		{"warn", "warn", log.WarnLevel},
		{"warning mixed case", "Warning", log.WarnLevel},
		{"error", "error", log.ErrorLevel},
		{"quiet", "quiet", log.FatalLevel},
		{"silent uppercase", "SILENT", log.FatalLevel},
		{"padded", "  debug ", log.DebugLevel},
		{"empty string", "", log.InfoLevel},
		{"unknown", "loud", log.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log.SetLevel(log.PanicLevel)
			SetLogLevel(tt.input)
			assert.Equal(t, tt.expected, log.GetLevel())
		})
	}
}

func TestSetupWritesRotatingFile(t *testing.T) {
	defer func() {
		log.SetOutput(os.Stderr)
		log.SetLevel(log.InfoLevel)
	}()

	path := filepath.Join(t.TempDir(), "logs", "shariahguide.log")
	closer, err := Setup("debug", path)
	require.NoError(t, err)

	log.Debug("document loaded")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "document loaded")
	assert.Equal(t, log.DebugLevel, log.GetLevel())
}

func TestSetupWithoutFile(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)

	closer, err := Setup("warn", "")
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
	assert.Equal(t, log.WarnLevel, log.GetLevel())
}

func TestGinLogrusLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	router := gin.New()
	router.Use(GinLogrusLogger())
	router.GET("/healthz", func(c *gin.Context) {
		SkipGinRequestLogging(c)
		c.Status(http.StatusOK)
	})
	router.GET("/api/conversation", func(c *gin.Context) {
		c.String(http.StatusOK, RequestID(c))
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/conversation", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	router.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-123", rec.Body.String())
	assert.Contains(t, buf.String(), "/api/conversation")

	buf.Reset()
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Empty(t, buf.String())
}

func TestGinLogrusRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	router := gin.New()
	router.Use(GinLogrusRecovery())
	router.GET("/boom", func(*gin.Context) { panic("speech engine exploded") })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "recovered from panic")
}
