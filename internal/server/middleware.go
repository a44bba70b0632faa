package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/meridian/internal/orgcontext"
)

const (
	HeaderOrg  = "X-Org-ID"
	HeaderUser = "X-User-ID"
)

// OrgContext resolves the tenant from the X-Org-ID header into the request
// context. Every /v1 route requires it; the acting user is optional.
func OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderOrg))
		if raw == "" {
			AbortWithError(c, ErrMissingOrg)
			return
		}

		orgID, err := snowflake.ParseString(raw)
		if err != nil || orgID == 0 {
			AbortWithError(c, ErrMissingOrg)
			return
		}

		ctx := orgcontext.WithOrgID(c.Request.Context(), orgID)
		if actor := strings.TrimSpace(c.GetHeader(HeaderUser)); actor != "" {
			ctx = orgcontext.WithActorID(ctx, actor)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
