package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCorrelationID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	serve := func(header string) (*httptest.ResponseRecorder, string) {
		router := gin.New()
		router.Use(CorrelationID())
		var captured string
		router.GET("/ping", func(c *gin.Context) {
			captured = GetCorrelationID(c)
			c.Status(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		if header != "" {
			req.Header.Set(CorrelationIDHeader, header)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr, captured
	}

	t.Run("MintsWhenAbsent", func(t *testing.T) {
		rr, captured := serve("")
		id := rr.Header().Get(CorrelationIDHeader)
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
		assert.Equal(t, id, captured)
	})

	t.Run("KeepsCallerID", func(t *testing.T) {
		rr, captured := serve("join-42")
		assert.Equal(t, "join-42", rr.Header().Get(CorrelationIDHeader))
		assert.Equal(t, "join-42", captured)
	})

	t.Run("ReplacesOversizedID", func(t *testing.T) {
		long := strings.Repeat("x", maxCorrelationIDLength+1)
		rr, captured := serve(long)
		assert.NotEqual(t, long, captured)
		assert.Equal(t, rr.Header().Get(CorrelationIDHeader), captured)
	})
}

func TestGetCorrelationID_NonString(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, GetCorrelationID(c))

	c.Set(CorrelationIDKey, 12345)
	assert.Empty(t, GetCorrelationID(c))
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	RequestLogger(c, base).Info("no id")
	assert.NotContains(t, buf.String(), "correlation_id")

	buf.Reset()
	c.Set(CorrelationIDKey, "abc")
	RequestLogger(c, base).Info("with id")
	assert.Contains(t, buf.String(), `"correlation_id":"abc"`)
}
