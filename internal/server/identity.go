package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/escrow/internal/authorization"
	obscontext "github.com/smallbiznis/escrow/internal/observability/context"
)

// Caller identity arrives as forwarded claims from the upstream identity
// service; this core does not authenticate, it only authorizes.
const (
	headerActorID   = "X-Actor-Id"
	headerActorRole = "X-Actor-Role"
)

type actor struct {
	ID   snowflake.ID
	Role authorization.Role
}

func actorFromRequest(c *gin.Context) (actor, error) {
	rawID := strings.TrimSpace(c.GetHeader(headerActorID))
	id, err := snowflake.ParseString(rawID)
	if err != nil || id == 0 {
		return actor{}, authorization.ErrInvalidActor
	}

	role := authorization.Role(strings.ToLower(strings.TrimSpace(c.GetHeader(headerActorRole))))
	switch role {
	case authorization.RoleCustomer, authorization.RoleShop, authorization.RoleAdmin:
	default:
		return actor{}, authorization.ErrInvalidRole
	}

	c.Request = c.Request.WithContext(
		obscontext.WithActor(c.Request.Context(), string(role), id.String()),
	)
	return actor{ID: id, Role: role}, nil
}

func adminFromRequest(c *gin.Context) (actor, error) {
	caller, err := actorFromRequest(c)
	if err != nil {
		return actor{}, err
	}
	if caller.Role != authorization.RoleAdmin {
		return actor{}, authorization.ErrForbidden
	}
	return caller, nil
}

func parseOptionalID(raw string) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return snowflake.ParseString(raw)
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, ErrNotFound
	}
	return id, nil
}
