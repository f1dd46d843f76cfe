// Package middleware 提供HTTP中间件
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ClientKey 认证通过后写入 gin.Context 的调用方标识（脱敏后的 API Key）
const ClientKey = "api_client"

// AuthConfig API认证配置；APIKeys 全为空时不校验
type AuthConfig struct {
	APIKeys []string
}

func (c AuthConfig) keys() [][]byte {
	out := make([][]byte, 0, len(c.APIKeys))
	for _, k := range c.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, []byte(k))
		}
	}
	return out
}

// Enabled 是否启用认证
func (c AuthConfig) Enabled() bool { return len(c.keys()) > 0 }

// APIKeyAuth 只读接口的 API Key 认证，接受 X-API-Key 或 Authorization: Bearer。
// 缺少密钥返回 401，密钥不匹配返回 403。
func APIKeyAuth(cfg AuthConfig, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	keys := cfg.keys()
	if len(keys) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		presented := presentedKey(c.Request)
		if presented == "" {
			logger.Debug("api request without key",
				zap.String("path", c.FullPath()),
				zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
			return
		}
		if !matchAny(keys, []byte(presented)) {
			logger.Warn("api key rejected",
				zap.String("path", c.FullPath()),
				zap.String("client_ip", c.ClientIP()),
				zap.String("api_key", maskAPIKey(presented)))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid api key"})
			return
		}
		c.Set(ClientKey, maskAPIKey(presented))
		c.Next()
	}
}

func presentedKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("X-API-Key")); k != "" {
		return k
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// matchAny 比较全部密钥，耗时与命中位置无关
func matchAny(keys [][]byte, presented []byte) bool {
	hit := 0
	for _, k := range keys {
		hit |= subtle.ConstantTimeCompare(k, presented)
	}
	return hit == 1
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
