package log

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestNew_StaticFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "debug", ServiceName: "relay", InstanceID: "relay-1", Output: &buf})

	logger.Debug().Msg("hello")

	m := decodeLine(t, &buf)
	assert.Equal(t, "relay", m[FieldService])
	assert.Equal(t, "relay-1", m[FieldInstanceID])
	assert.Equal(t, "debug", m["level"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, parseLevel(" WARNING "))
	assert.Equal(t, zerolog.Disabled, parseLevel("off"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("bogus"))
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Output: &buf})

	ctx := WithLogger(context.Background(), base)
	ctx = WithFields(ctx, FieldConnID, "c1")
	ctx = WithFields(ctx, FieldRoom, "lobby", "dangling")

	l := Ctx(ctx)
	l.Info().Msg("x")

	m := decodeLine(t, &buf)
	assert.Equal(t, "c1", m[FieldConnID])
	assert.Equal(t, "lobby", m[FieldRoom])
	assert.NotContains(t, m, "dangling")
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := New(Config{Output: &buf})

	r := gin.New()
	r.Use(GinMiddleware(logger))
	r.GET("/api/v1/rooms/:name", func(c *gin.Context) {
		l := Ctx(c.Request.Context())
		assert.NotEqual(t, zerolog.Disabled, l.GetLevel())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rooms/lobby", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

	m := decodeLine(t, &buf)
	assert.Equal(t, "req-42", m[FieldRequestID])
	assert.Equal(t, "lobby", m[FieldRoom])
	assert.Equal(t, float64(http.StatusNoContent), m[FieldStatus])
	assert.Equal(t, "request completed", m["message"])
}
