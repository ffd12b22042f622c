package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-booking/internal/apperror"
	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/logging"
	"github.com/iliyamo/event-booking/internal/utils"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	mw := JWTAuth("secret", logging.Nop())
	ok := func(c echo.Context) error {
		id, _ := UserID(c)
		assert.Equal(t, uint64(7), id)
		assert.Equal(t, "admin", Role(c))
		assert.True(t, IsStaff(c))
		return nil
	}

	tok, err := utils.NewAccessToken("secret", 7, "admin", 5)
	require.NoError(t, err)

	e := echo.New()
	cases := map[string]struct {
		header string
		code   apperror.Code
	}{
		"valid":        {"Bearer " + tok.Token, ""},
		"lowercase":    {"bearer " + tok.Token, ""},
		"missing":      {"", apperror.CodeUnauthorized},
		"wrong scheme": {"Basic abc", apperror.CodeUnauthorized},
		"bad token":    {"Bearer nope", apperror.CodeUnauthorized},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tc.header)
			}
			c := e.NewContext(req, httptest.NewRecorder())
			err := mw(ok)(c)
			if tc.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tc.code, apperror.CodeOf(err))
		})
	}
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.Set(ctxRole, "user")

	called := false
	err := RequireRole("admin", "staff")(func(echo.Context) error { called = true; return nil })(c)
	assert.Equal(t, apperror.CodeForbidden, apperror.CodeOf(err))
	assert.False(t, called)

	c.Set(ctxRole, "staff")
	err = RequireRole("admin", "staff")(func(echo.Context) error { called = true; return nil })(c)
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestRateLimitBlocksAfterCapacity(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Minute,
		TTL: 10 * time.Minute, KeyStrategy: "ip", Prefix: "rl",
	}
	e := echo.New()
	var lastErr error
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		lastErr = err
		_ = c.NoContent(apperror.MetadataFor(apperror.CodeOf(err)).HTTPStatus)
	}
	e.Use(RateLimit(cfg, rdb, logging.Nop()))
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })

	for i := 0; i < 2; i++ {
		rec := serve(e, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, apperror.CodeRateLimit, apperror.CodeOf(lastErr))
}

func TestRateLimitFailsOpen(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute, Prefix: "rl"}

	e := echo.New()
	e.Use(RateLimit(cfg, rdb, logging.Nop()))
	e.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(e, httptest.NewRequest(http.MethodGet, "/ping", nil)).Code)
	}
}

func TestResponseCacheHitAndPurge(t *testing.T) {
	_, rdb := newRedis(t)
	rc := NewResponseCache(config.CacheConfig{
		Enabled: true, Methods: []string{"GET"}, TTL: time.Minute, KeyStrategy: "route_query", Prefix: "cache",
	}, rdb, logging.Nop())

	calls := 0
	e := echo.New()
	e.Use(rc.Middleware())
	e.GET("/api/packages/:id", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, map[string]any{"id": c.Param("id"), "calls": calls})
	})

	first := serve(e, httptest.NewRequest(http.MethodGet, "/api/packages/1", nil))
	second := serve(e, httptest.NewRequest(http.MethodGet, "/api/packages/1", nil))
	other := serve(e, httptest.NewRequest(http.MethodGet, "/api/packages/2", nil))

	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "MISS", other.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)

	rc.Purge(context.Background(), "packages")
	third := serve(e, httptest.NewRequest(http.MethodGet, "/api/packages/1", nil))
	assert.Equal(t, "MISS", third.Header().Get("X-Cache"))
	assert.Equal(t, 3, calls)
}

func TestResponseCacheSkipsAuthenticated(t *testing.T) {
	_, rdb := newRedis(t)
	rc := NewResponseCache(config.CacheConfig{Enabled: true, Methods: []string{"GET"}, Prefix: "cache"}, rdb, nil)
	e := echo.New()
	e.Use(rc.Middleware())
	e.GET("/api/packages", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/packages", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer x")
	rec := serve(e, req)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestCacheGroup(t *testing.T) {
	assert.Equal(t, "packages", CacheGroup("/api/packages/3/ratings"))
	assert.Equal(t, "portfolios", CacheGroup("/api/portfolios"))
	assert.Equal(t, "root", CacheGroup("/"))
}

func TestAssignRequestID(t *testing.T) {
	e := echo.New()
	var seen string
	e.Use(AssignRequestID(logging.Nop()))
	e.GET("/", func(c echo.Context) error { seen = RequestID(c); return nil })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderXRequestID, "abc-123")
	rec := serve(e, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(echo.HeaderXRequestID))

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, rec.Header().Get(echo.HeaderXRequestID), 36)
}

func TestErrorHandlerEnvelope(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(logging.Nop())
	e.GET("/validation", func(c echo.Context) error {
		return apperror.Validation("packs", "must be at least 1")
	})
	e.GET("/internal", func(c echo.Context) error {
		return apperror.Internal(errors.New("db exploded"), "load booking")
	})
	e.GET("/state", func(c echo.Context) error {
		return apperror.New(apperror.CodeStateConflict, "booking is completed").
			WithDetails(map[string]string{"from": "completed", "to": "pending"})
	})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/validation", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t,
		`{"error":{"code":"VALIDATION_ERROR","message":"must be at least 1","details":{"packs":"must be at least 1"}}}`,
		rec.Body.String())

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/internal", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":{"code":"INTERNAL_ERROR","message":"internal server error"}}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "exploded")

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/state", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"from":"completed"`)

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"NOT_FOUND"`)
}
