package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/tenantry/internal/observability/context"
)

const (
	headerAuthorization = "Authorization"
	contextUserIDKey    = "user_id"
)

// AuthRequired resolves the bearer token into an identity. The token's
// organization claim is informational; every organization route reloads
// the caller's membership.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader(headerAuthorization))
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		identity, err := s.authsvc.Authenticate(c.Request.Context(), raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserIDKey, identity.UserID.String())

		ctx := obscontext.WithUserID(c.Request.Context(), identity.UserID.String())
		if identity.OrganizationID != 0 {
			ctx = obscontext.WithOrgID(ctx, identity.OrganizationID.String())
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

func (s *Server) userIDFromSession(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0, false
	}
	raw, ok := value.(string)
	if !ok {
		return 0, false
	}
	userID, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || userID == 0 {
		return 0, false
	}
	return userID, true
}
