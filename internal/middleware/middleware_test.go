package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pc_store/internal/apperr"
	"pc_store/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append(mw, func(c *gin.Context) {
		caller := CallerFrom(c)
		c.JSON(http.StatusOK, gin.H{"user": caller.UserID, "role": caller.Role})
	})
	r.GET("/x", handlers...)
	return r
}

func do(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuth(t *testing.T) {
	r := newEngine(Auth(testSecret))

	token, err := IssueToken(testSecret, "user-1", "", time.Hour)
	require.NoError(t, err)
	w := do(r, token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", decode(t, w)["user"])

	w = do(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decode(t, w)
	assert.Equal(t, apperr.CodeUnauthorized, body["code"])
	assert.Equal(t, false, body["success"])

	other, err := IssueToken("other-secret", "user-1", "", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, other).Code)

	expired, err := IssueToken(testSecret, "user-1", "", -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, expired).Code)
}

func TestAuth_RejectsNonHMAC(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ParseToken(testSecret, unsigned)
	assert.Error(t, err)
}

func TestRequireAdmin(t *testing.T) {
	r := newEngine(Auth(testSecret), RequireAdmin())

	user, err := IssueToken(testSecret, "user-1", "", time.Hour)
	require.NoError(t, err)
	w := do(r, user)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, apperr.CodeForbidden, decode(t, w)["code"])

	admin, err := IssueToken(testSecret, "root", model.RoleAdmin, time.Hour)
	require.NoError(t, err)
	w = do(r, admin)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.RoleAdmin, decode(t, w)["role"])
}

// unreachableRedis 连不上的 Redis：限流与下单锁都应降级放行。
func unreachableRedis(t *testing.T) *rd.Client {
	rdb := rd.NewClient(&rd.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisRateLimit_FailsOpen(t *testing.T) {
	r := newEngine(RedisRateLimit(unreachableRedis(t), "orders", 1, time.Minute))
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(r, "").Code)
	}
}

func TestCheckoutLock_FailsOpen(t *testing.T) {
	r := newEngine(Auth(testSecret), CheckoutLock(unreachableRedis(t), time.Second))
	token, err := IssueToken(testSecret, "user-1", "", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, do(r, token).Code)
}

func TestSecurityHeaders(t *testing.T) {
	w := do(newEngine(SecurityHeaders()), "")
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
