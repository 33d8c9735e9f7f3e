package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(e *echo.Echo, method, target string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRateLimitAllowsUnderBurst(t *testing.T) {
	e := echo.New()
	mw := RateLimit(10, 5)
	c, rec := newTestContext(e, http.MethodGet, "/")

	err := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitRejectsOverBurst(t *testing.T) {
	e := echo.New()
	mw := RateLimit(1, 1)
	handler := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	c1, rec1 := newTestContext(e, http.MethodGet, "/")
	require.NoError(t, handler(c1))
	assert.Equal(t, http.StatusOK, rec1.Code)

	c2, rec2 := newTestContext(e, http.MethodGet, "/")
	require.NoError(t, handler(c2))
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
}

func TestRateLimitDisabledWhenRPSNonPositive(t *testing.T) {
	e := echo.New()
	mw := RateLimit(0, 0)
	handler := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	for i := 0; i < 5; i++ {
		c, rec := newTestContext(e, http.MethodGet, "/")
		require.NoError(t, handler(c))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestCORSSetsAllowOriginHeader(t *testing.T) {
	e := echo.New()
	mw := CORS([]string{"https://example.com"})
	c, rec := newTestContext(e, http.MethodGet, "/")
	c.Request().Header.Set("Origin", "https://example.com")

	err := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
