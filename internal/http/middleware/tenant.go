package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	TenantHeader = "X-Tenant-Id"
	ActorHeader  = "X-User-Id"

	TenantKey = "tenant_id"
	ActorKey  = "actor_id"
)

// Tenant requires the tenant header set by the upstream auth proxy and
// exposes it, plus the optional acting user, on the gin context.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := strings.TrimSpace(c.GetHeader(TenantHeader))
		if tenant == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "MISSING_TENANT",
					"message": "X-Tenant-Id header is required",
				},
			})
			return
		}
		c.Set(TenantKey, tenant)
		c.Set(ActorKey, strings.TrimSpace(c.GetHeader(ActorHeader)))
		c.Next()
	}
}
