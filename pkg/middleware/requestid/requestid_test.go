package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, incoming string) (header, stored string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		stored = Value(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if incoming != "" {
		req.Header.Set(headerKey, incoming)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Header().Get(headerKey), stored
}

func TestMiddlewareGeneratesID(t *testing.T) {
	header, stored := run(t, "")
	assert.Equal(t, header, stored)
	_, err := uuid.Parse(header)
	assert.NoError(t, err)
}

func TestMiddlewareKeepsClientID(t *testing.T) {
	header, stored := run(t, "edge-42")
	assert.Equal(t, "edge-42", header)
	assert.Equal(t, "edge-42", stored)
}

func TestMiddlewareReplacesUnsafeID(t *testing.T) {
	for _, incoming := range []string{"has space", strings.Repeat("x", 129)} {
		header, _ := run(t, incoming)
		assert.NotEqual(t, incoming, header)
		_, err := uuid.Parse(header)
		assert.NoError(t, err)
	}
}

func TestValueWithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, Value(c))
}
