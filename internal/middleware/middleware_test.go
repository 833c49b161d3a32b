package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parkmate/internal/config"
	"github.com/iliyamo/parkmate/internal/utils"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func do(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		id, ok := UserID(c)
		require.True(t, ok)
		return c.String(http.StatusOK, strconv.FormatUint(id, 10)+" "+Caller(c))
	}, JWTAuth("secret"))

	tok, err := utils.NewAccessToken("secret", 7, "admin", 5)
	require.NoError(t, err)

	rec := do(e, http.MethodGet, "/me", tok.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7 7", rec.Body.String())

	rec = do(e, http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing bearer token")

	rec = do(e, http.MethodGet, "/me", "nope")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, err := utils.NewAccessToken("other", 7, "admin", 5)
	require.NoError(t, err)
	rec = do(e, http.MethodGet, "/me", other.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCallerGuest(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	assert.Equal(t, "guest", Caller(c))
	c.Set(UserIDKey, "12")
	assert.Equal(t, "12", Caller(c))
}

func rateCfg(capacity int) config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       capacity,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            5 * time.Hour,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	}
}

func assertLimited(t *testing.T, mw echo.MiddlewareFunc) {
	t.Helper()
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, mw)

	for i := 0; i < 2; i++ {
		rec := do(e, http.MethodGet, "/x", "")
		require.Equal(t, http.StatusNoContent, rec.Code, "request %d", i)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}
	rec := do(e, http.MethodGet, "/x", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestTokenBucketRedis(t *testing.T) {
	_, rdb := newRedis(t)
	assertLimited(t, NewTokenBucket(rateCfg(2), rdb))
}

func TestTokenBucketLocalFallback(t *testing.T) {
	assertLimited(t, NewTokenBucket(rateCfg(2), nil))
}

func TestTokenBucketDisabled(t *testing.T) {
	cfg := rateCfg(1)
	cfg.Enabled = false
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, NewTokenBucket(cfg, nil))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusNoContent, do(e, http.MethodGet, "/x", "").Code)
	}
}

func TestResponseCacheHitAndInvalidate(t *testing.T) {
	_, rdb := newRedis(t)
	rc := NewResponseCache(config.CacheConfig{
		Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute,
		KeyStrategy: "route_query", Prefix: "cache", MaxBodyBytes: 1 << 20,
	}, rdb)

	var calls int32
	e := echo.New()
	e.GET("/slots/:id", func(c echo.Context) error {
		n := atomic.AddInt32(&calls, 1)
		return c.JSON(http.StatusOK, echo.Map{"id": c.Param("id"), "n": n})
	}, rc.Middleware())
	e.POST("/slots/:id/book", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	}, rc.InvalidateOnSuccess())

	rec := do(e, http.MethodGet, "/slots/101", "")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	first := rec.Body.String()

	rec = do(e, http.MethodGet, "/slots/101", "")
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, first, rec.Body.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	rec = do(e, http.MethodGet, "/slots/102", "")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	require.Equal(t, http.StatusOK, do(e, http.MethodPost, "/slots/101/book", "").Code)

	rec = do(e, http.MethodGet, "/slots/101", "")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestResponseCacheSkipsErrors(t *testing.T) {
	_, rdb := newRedis(t)
	rc := NewResponseCache(config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, Prefix: "cache"}, rdb)

	var calls int32
	e := echo.New()
	e.GET("/missing", func(c echo.Context) error {
		atomic.AddInt32(&calls, 1)
		return c.JSON(http.StatusNotFound, echo.Map{"error": "slot not found"})
	}, rc.Middleware())

	do(e, http.MethodGet, "/missing", "")
	do(e, http.MethodGet, "/missing", "")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPayloadCodec(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{1, 2})
	assert.False(t, ok)
}

func TestErrorHandler(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusBadRequest, "bad id") })
	e.GET("/panic", func(c echo.Context) error { return assert.AnError })

	rec := do(e, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"bad id"}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}
