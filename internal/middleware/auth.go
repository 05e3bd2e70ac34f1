package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pc_store/internal/apperr"
	"pc_store/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// Claims 外部认证服务签发的 token：sub 为用户 ID，role 为角色。
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Auth 校验 Bearer token（HS256），把调用方写入 gin 上下文。
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			abort(c, apperr.New(http.StatusUnauthorized, apperr.CodeUnauthorized, "missing bearer token"))
			return
		}

		claims, err := ParseToken(secret, strings.TrimSpace(parts[1]))
		if err != nil {
			abort(c, apperr.Wrap(err, http.StatusUnauthorized, apperr.CodeUnauthorized, "invalid or expired token"))
			return
		}

		c.Set(ctxUserID, claims.Subject)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

// RequireAdmin 必须挂在 Auth 之后。
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CallerFrom(c).Admin() {
			abort(c, apperr.New(http.StatusForbidden, apperr.CodeForbidden, "admin role required"))
			return
		}
		c.Next()
	}
}

// CallerFrom 取出 Auth 写入的调用方；未鉴权时为空值。
func CallerFrom(c *gin.Context) model.Caller {
	return model.Caller{UserID: c.GetString(ctxUserID), Role: c.GetString(ctxRole)}
}

// ParseToken 校验签名、算法与有效期。
func ParseToken(secret, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// IssueToken 签发 token。生产环境由认证服务签发，这里供压测/命令行工具和测试使用。
func IssueToken(secret, userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// abort 以统一错误体终止请求。中间件拿不到运行环境，5xx 一律不回显细节。
func abort(c *gin.Context, err error) {
	status, body := apperr.Response(err, true)
	c.AbortWithStatusJSON(status, body)
}
