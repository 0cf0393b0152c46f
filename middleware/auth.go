package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok2api/common/config"
	"github.com/fuchsia74/grok2api/common/ctxkey"
)

func abortUnauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"message": message,
			"type":    "authentication_error",
		},
	})
	c.Abort()
}

func bearerToken(c *gin.Context) string {
	token := strings.TrimSpace(c.GetHeader("Authorization"))
	token = strings.TrimPrefix(token, "Bearer ")
	return strings.TrimSpace(token)
}

// TokenAuth guards the OpenAI-shaped surface. An empty key list disables the
// check entirely.
func TokenAuth() func(c *gin.Context) {
	return func(c *gin.Context) {
		if len(config.APIKeys) == 0 {
			c.Next()
			return
		}
		token := bearerToken(c)
		if token == "" {
			abortUnauthorized(c, "missing api key")
			return
		}
		for _, key := range config.APIKeys {
			if token == key {
				c.Next()
				return
			}
		}
		abortUnauthorized(c, "invalid api key")
	}
}

// AdminAuth guards credential management. The admin key is mandatory: an
// unset key keeps the whole admin surface closed.
func AdminAuth() func(c *gin.Context) {
	return func(c *gin.Context) {
		if config.AdminKey == "" {
			abortUnauthorized(c, "admin key not configured")
			return
		}
		if bearerToken(c) != config.AdminKey {
			abortUnauthorized(c, "invalid admin key")
			return
		}
		c.Next()
	}
}

// CredentialBinding lifts an optional caller-pinned credential id off the
// request so the relay can seed its first pick.
func CredentialBinding() func(c *gin.Context) {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader("X-Credential-Id")); id != "" {
			c.Set(ctxkey.SpecificCredentialId, id)
		}
		c.Next()
	}
}
